// Package audit maintains the append-only, hash-chained event log that
// backs the evidence package. Every record's hash input includes the
// previous record's hash, so silent alteration of history is detectable.
// Chains are scoped per signing file.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
	"github.com/lexsign-io/lexsigngo/internal/database"
	"github.com/lexsign-io/lexsigngo/internal/models"
)

// Chain appends hash-linked audit events.
type Chain struct {
	db    *database.DB
	fatal bool
}

// NewChain creates the appender. fatal controls whether a failed write
// propagates (production) or is logged and swallowed (everywhere else): a
// legally relevant event that silently fails to log is worse than a hard
// error, but only where the log is actually legally relevant.
func NewChain(db *database.DB, fatal bool) *Chain {
	return &Chain{db: db, fatal: fatal}
}

// Entry is the caller-supplied part of an audit event.
type Entry struct {
	FileID    *string
	SpotID    *string
	EventType string
	ActorID   string
	ActorType string
	IP        string
	UserAgent string
	SessionID string
	Success   bool
	Metadata  models.JSONB
}

// Append writes one event, linked to the latest prior event of the same
// signing file. When tx is non-nil the write joins the caller's
// transaction, so a failed workflow mutation never leaves a stray event.
//
// The latest-hash lookup and the insert must not interleave for the same
// file across concurrent writers, or the chain forks; a transaction-scoped
// advisory lock serializes them.
func (c *Chain) Append(tx *gorm.DB, e Entry) error {
	if tx == nil {
		tx = c.db.DB
	}
	if err := c.append(tx, e); err != nil {
		if c.fatal {
			return apperr.Wrap(apperr.CodeAuditWriteFailed, "audit event not recorded", err)
		}
		log.Printf("⚠️ audit: event %s not recorded: %v", e.EventType, err)
	}
	return nil
}

func (c *Chain) append(tx *gorm.DB, e Entry) error {
	if err := database.AdvisoryXactLock(tx, lockKey(e)); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	var prevHash *string
	var seq int64
	if e.FileID != nil {
		var prev models.AuditEvent
		err := tx.Where("signing_file_id = ?", *e.FileID).
			Order("seq DESC").
			First(&prev).Error
		switch {
		case err == nil:
			prevHash = &prev.Hash
			seq = prev.Seq + 1
		case err == gorm.ErrRecordNotFound:
			// first event of this file's chain
			seq = 1
		default:
			return fmt.Errorf("latest hash lookup: %w", err)
		}
	}

	event := models.AuditEvent{
		ID:            uuid.NewString(),
		OccurredAt:    time.Now().UTC(),
		EventType:     e.EventType,
		Seq:           seq,
		SigningFileID: e.FileID,
		SpotID:        e.SpotID,
		ActorID:       e.ActorID,
		ActorType:     e.ActorType,
		IP:            e.IP,
		UserAgent:     e.UserAgent,
		SessionID:     e.SessionID,
		Success:       e.Success,
		Metadata:      e.Metadata,
		PrevHash:      prevHash,
	}
	event.Hash = ComputeHash(&event)

	return tx.Create(&event).Error
}

// lockKey derives a stable advisory-lock key from the event's logical
// identity: file + actor + type.
func lockKey(e Entry) string {
	fileID := ""
	if e.FileID != nil {
		fileID = *e.FileID
	}
	return strings.Join([]string{"audit", fileID, e.ActorID, e.EventType}, ":")
}

// ComputeHash builds the canonical representation of every field plus the
// previous hash and returns its SHA-256 hex digest. Any change to this
// layout invalidates previously issued evidence, so it never changes.
func ComputeHash(e *models.AuditEvent) string {
	var b strings.Builder
	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteString("\n")
	}
	writeLine(e.ID)
	writeLine(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	writeLine(e.EventType)
	writeLine(fmt.Sprintf("%d", e.Seq))
	writeLine(deref(e.SigningFileID))
	writeLine(deref(e.SpotID))
	writeLine(e.ActorID)
	writeLine(e.ActorType)
	writeLine(e.IP)
	writeLine(e.UserAgent)
	writeLine(e.SessionID)
	writeLine(fmt.Sprintf("%t", e.Success))
	// json.Marshal sorts map keys, so this is deterministic
	meta, _ := json.Marshal(e.Metadata)
	writeLine(string(meta))
	writeLine(deref(e.PrevHash))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify walks a file's events in chain order and returns the index of the
// first broken link, or -1 when the chain is intact. A break is either a
// stored hash that does not recompute or a prevHash that does not match the
// prior event's hash.
func Verify(events []models.AuditEvent) (int, error) {
	var prevHash *string
	for i := range events {
		e := &events[i]
		if ComputeHash(e) != e.Hash {
			return i, fmt.Errorf("event %s: stored hash does not recompute", e.ID)
		}
		if deref(e.PrevHash) != deref(prevHash) {
			return i, fmt.Errorf("event %s: chain link broken", e.ID)
		}
		prevHash = &e.Hash
	}
	return -1, nil
}

// FileEvents loads a file's audit trail in chain order. Seq, not the
// insert timestamp, is the order: two events written in the same clock
// tick would otherwise sort arbitrarily.
func FileEvents(db *gorm.DB, fileID string) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := db.Where("signing_file_id = ?", fileID).
		Order("seq ASC").
		Find(&events).Error
	return events, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
