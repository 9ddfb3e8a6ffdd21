package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SigningFile lifecycle statuses
const (
	FileStatusPending  = "pending"
	FileStatusSigned   = "signed"
	FileStatusRejected = "rejected"
	FileStatusArchived = "archived"
)

// SigningFile represents one document routed for signature collection.
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type SigningFile struct {
	ID       string  `gorm:"primaryKey;type:uuid" json:"id"`
	LawyerID string  `gorm:"type:uuid;not null;index" json:"lawyerId"`
	ClientID string  `gorm:"type:uuid;index" json:"clientId"`
	CaseID   *string `gorm:"type:uuid;index" json:"caseId,omitempty"`

	FileName string `gorm:"not null" json:"fileName"`
	FileKey  string `gorm:"not null" json:"fileKey"`

	// Integrity hashes (SHA-256 hex) of the document at each stage
	OriginalHash  string `gorm:"type:varchar(64)" json:"originalHash"`
	PresentedHash string `gorm:"type:varchar(64)" json:"presentedHash"`
	SignedHash    string `gorm:"type:varchar(64)" json:"signedHash"`

	Status          string `gorm:"default:'pending';index" json:"status"`
	RejectionReason string `json:"rejectionReason,omitempty"`

	// signer roster as supplied at upload, kept verbatim for evidence
	SignerRoster datatypes.JSON `gorm:"type:jsonb" json:"signerRoster,omitempty"`

	// Policy snapshot in force for this file. Once the file is signed these
	// fields are immutable (legal evidence).
	RequireOtp      bool       `gorm:"default:true" json:"requireOtp"`
	PolicyVersion   string     `gorm:"default:'v1'" json:"policyVersion"`
	OtpWaiverAckd   bool       `gorm:"default:false" json:"otpWaiverAcknowledged"`
	OtpWaiverAckdBy string     `json:"otpWaiverAcknowledgedBy,omitempty"`
	OtpWaiverAckdAt *time.Time `json:"otpWaiverAcknowledgedAt,omitempty"`

	SignedAt    *time.Time `json:"signedAt,omitempty"`
	ImmutableAt *time.Time `json:"immutableAt,omitempty"`

	Spots []SignatureSpot `gorm:"foreignKey:SigningFileID" json:"spots,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (SigningFile) TableName() string {
	return "signing_files"
}

// BeforeCreate assigns an ID when the caller did not provide one
func (f *SigningFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// AllRequiredSigned reports whether every required spot carries a signature.
// Returns false for a file with no spots at all.
func (f *SigningFile) AllRequiredSigned() bool {
	if len(f.Spots) == 0 {
		return false
	}
	for _, s := range f.Spots {
		if s.Required && !s.IsSigned {
			return false
		}
	}
	return true
}
