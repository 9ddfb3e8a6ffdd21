package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConsentRecord proves a signer accepted the signing terms in force for a
// file. One record per (file, signer, session, policy version).
type ConsentRecord struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	SigningFileID string `gorm:"type:uuid;not null;index" json:"signingFileId"`
	SignerID      string `gorm:"type:uuid;not null;index" json:"signerId"`
	SessionID     string `gorm:"not null" json:"sessionId"`

	PolicyVersion string `gorm:"not null" json:"policyVersion"`
	ContentHash   string `gorm:"type:varchar(64);not null" json:"contentHash"`

	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	AcceptedAt time.Time `gorm:"not null" json:"acceptedAt"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name
func (ConsentRecord) TableName() string {
	return "consent_records"
}

// BeforeCreate assigns an ID when the caller did not provide one
func (c *ConsentRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// OtpChallenge binds a one-time code to a signing file, signer, session and
// the exact document hash presented to the signer. Consumed (verified) at
// most once; expires otherwise.
type OtpChallenge struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	SigningFileID string `gorm:"type:uuid;not null;index" json:"signingFileId"`
	SignerID      string `gorm:"type:uuid;not null;index" json:"signerId"`
	SessionID     string `gorm:"not null" json:"sessionId"`
	DocumentHash  string `gorm:"type:varchar(64);not null" json:"documentHash"`

	CodeHash    string `gorm:"not null" json:"-"` // bcrypt hash, never exposed
	Attempts    int    `gorm:"default:0" json:"attempts"`
	MaxAttempts int    `gorm:"default:5" json:"maxAttempts"`

	ExpiresAt  time.Time  `gorm:"not null" json:"expiresAt"`
	Verified   bool       `gorm:"default:false" json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name
func (OtpChallenge) TableName() string {
	return "otp_challenges"
}

// BeforeCreate assigns an ID when the caller did not provide one
func (o *OtpChallenge) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// Usable reports whether the challenge can still accept a verification
// attempt at the given time.
func (o *OtpChallenge) Usable(now time.Time) bool {
	return !o.Verified && o.Attempts < o.MaxAttempts && now.Before(o.ExpiresAt)
}
