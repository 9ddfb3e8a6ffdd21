package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit event types. These are part of the evidence contract: renaming one
// invalidates previously issued evidence packages.
const (
	EventFileUploaded    = "file_uploaded"
	EventFileReuploaded  = "file_reuploaded"
	EventDocumentViewed  = "document_viewed"
	EventSpotSigned      = "spot_signed"
	EventFileCompleted   = "file_completed"
	EventFileRejected    = "file_rejected"
	EventPolicyUpdated   = "policy_updated"
	EventConsentRecorded = "consent_recorded"
	EventOtpRequested    = "otp_requested"
	EventOtpVerified     = "otp_verified"
	EventOtpFailed       = "otp_failed"
	EventAccessDenied    = "access_denied"
	EventEvidenceIssued  = "evidence_issued"
)

// Actor types
const (
	ActorLawyer = "lawyer"
	ActorClient = "client"
	ActorSigner = "signer"
	ActorSystem = "system"
)

// AuditEvent is an append-only, hash-chained record of something that
// happened to a signing file. Rows are never updated or deleted; the chain
// is scoped per signing file.
type AuditEvent struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	OccurredAt time.Time `gorm:"not null;index" json:"occurredAt"`
	EventType  string    `gorm:"not null;index" json:"eventType"`

	// Seq positions the event within its file's chain, starting at 1.
	// Assigned under the append lock; the unique index turns a chain fork
	// into a hard insert error instead of two events sharing a position.
	Seq int64 `gorm:"not null;default:0;uniqueIndex:uq_audit_file_seq" json:"seq"`

	SigningFileID *string `gorm:"type:uuid;index;uniqueIndex:uq_audit_file_seq" json:"signingFileId,omitempty"`
	SpotID        *string `gorm:"type:uuid" json:"spotId,omitempty"`

	ActorID   string `json:"actorId"`
	ActorType string `json:"actorType"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	Success  bool  `gorm:"default:true" json:"success"`
	Metadata JSONB `gorm:"type:jsonb" json:"metadata,omitempty"`

	// PrevHash is nil only for the first event of a file's chain
	PrevHash *string `gorm:"type:varchar(64)" json:"prevHash,omitempty"`
	Hash     string  `gorm:"type:varchar(64);not null" json:"hash"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name
func (AuditEvent) TableName() string {
	return "audit_events"
}

// BeforeCreate assigns an ID when the caller did not provide one
func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
