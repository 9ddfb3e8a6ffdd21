package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SignatureSpot is one placeholder rectangle on one page of a SigningFile.
// Coordinates live in the fixed reference pixel space the client renders at
// (see detect.BaseRenderWidth), not in PDF points.
type SignatureSpot struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	SigningFileID string `gorm:"type:uuid;not null;index" json:"signingFileId"`

	PageNum int     `gorm:"not null" json:"pageNum"` // 1-based
	X       float64 `gorm:"not null" json:"x"`
	Y       float64 `gorm:"not null" json:"y"`
	Width   float64 `gorm:"not null" json:"width"`
	Height  float64 `gorm:"not null" json:"height"`

	// nil means "any signer" (legacy single-signer documents)
	AssignedSignerID *string `gorm:"type:uuid;index" json:"assignedSignerId,omitempty"`
	SignerName       string  `json:"signerName,omitempty"`
	SignerLabel      string  `json:"signerLabel,omitempty"`

	Required bool `gorm:"default:true" json:"required"`

	IsSigned     bool       `gorm:"default:false" json:"isSigned"`
	SignedAt     *time.Time `json:"signedAt,omitempty"`
	SignatureKey *string    `json:"signatureKey,omitempty"` // storage key of signature image

	// Forensic context captured at signing time
	SignerIP        string `json:"signerIp,omitempty"`
	SignerUserAgent string `json:"signerUserAgent,omitempty"`
	SignerSessionID string `json:"signerSessionId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (SignatureSpot) TableName() string {
	return "signature_spots"
}

// BeforeCreate assigns an ID when the caller did not provide one
func (s *SignatureSpot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ClearSignature resets the spot back to unsigned and drops all signature
// data, including the forensic context. Used by reject and reupload.
func (s *SignatureSpot) ClearSignature() {
	s.IsSigned = false
	s.SignedAt = nil
	s.SignatureKey = nil
	s.SignerIP = ""
	s.SignerUserAgent = ""
	s.SignerSessionID = ""
}
