package workflow

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
	"github.com/lexsign-io/lexsigngo/internal/audit"
	"github.com/lexsign-io/lexsigngo/internal/models"
)

// evaluateGate decides whether a sign/reject action may proceed for this
// signer right now. Order is fixed: consent first, then OTP. The checks run
// on every attempt; nothing here is cached per session.
func (s *Service) evaluateGate(tx *gorm.DB, file *models.SigningFile, sc SignerContext) error {
	var consent models.ConsentRecord
	err := tx.Where(
		"signing_file_id = ? AND signer_id = ? AND session_id = ? AND policy_version = ?",
		file.ID, sc.UserID, sc.SessionID, file.PolicyVersion,
	).First(&consent).Error
	if err == gorm.ErrRecordNotFound {
		return apperr.New(apperr.CodeConsentRequired, "consent for the current terms has not been recorded")
	}
	if err != nil {
		return err
	}

	if file.RequireOtp {
		var challenge models.OtpChallenge
		err := tx.Where(
			"signing_file_id = ? AND signer_id = ? AND session_id = ? AND document_hash = ? AND verified = ?",
			file.ID, sc.UserID, sc.SessionID, file.PresentedHash, true,
		).First(&challenge).Error
		if err == gorm.ErrRecordNotFound {
			return apperr.New(apperr.CodeOtpRequired, "a verified one-time code is required")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SubmitConsent records the signer's acceptance of the terms in force.
// Re-submitting within the same session is a no-op returning the existing
// record.
func (s *Service) SubmitConsent(fileID string, sc SignerContext, contentHash string) (*models.ConsentRecord, error) {
	file, err := s.loadFile(fileID)
	if err != nil {
		return nil, err
	}

	var existing models.ConsentRecord
	err = s.db.Where(
		"signing_file_id = ? AND signer_id = ? AND session_id = ? AND policy_version = ?",
		file.ID, sc.UserID, sc.SessionID, file.PolicyVersion,
	).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	record := models.ConsentRecord{
		SigningFileID: file.ID,
		SignerID:      sc.UserID,
		SessionID:     sc.SessionID,
		PolicyVersion: file.PolicyVersion,
		ContentHash:   contentHash,
		IP:            sc.IP,
		UserAgent:     sc.UserAgent,
		AcceptedAt:    time.Now().UTC(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return s.chain.Append(tx, audit.Entry{
			FileID:    &file.ID,
			EventType: models.EventConsentRecorded,
			ActorID:   sc.UserID,
			ActorType: sc.ActorType,
			IP:        sc.IP,
			UserAgent: sc.UserAgent,
			SessionID: sc.SessionID,
			Success:   true,
			Metadata:  models.JSONB{"policyVersion": file.PolicyVersion, "contentHash": contentHash},
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// RequestOtp mints a new challenge bound to the file, signer, session and
// the document hash as currently presented. The clear-text code goes back
// to the caller for delivery; only its bcrypt hash is stored.
func (s *Service) RequestOtp(fileID string, sc SignerContext) (code string, err error) {
	file, err := s.loadFile(fileID)
	if err != nil {
		return "", err
	}

	code, err = randomCode(6)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	challenge := models.OtpChallenge{
		SigningFileID: file.ID,
		SignerID:      sc.UserID,
		SessionID:     sc.SessionID,
		DocumentHash:  file.PresentedHash,
		CodeHash:      string(hash),
		MaxAttempts:   s.cfg.OtpMaxAttempts,
		ExpiresAt:     time.Now().UTC().Add(s.cfg.OtpTTL),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&challenge).Error; err != nil {
			return err
		}
		return s.chain.Append(tx, audit.Entry{
			FileID:    &file.ID,
			EventType: models.EventOtpRequested,
			ActorID:   sc.UserID,
			ActorType: sc.ActorType,
			IP:        sc.IP,
			UserAgent: sc.UserAgent,
			SessionID: sc.SessionID,
			Success:   true,
			Metadata:  models.JSONB{"challengeId": challenge.ID, "expiresAt": challenge.ExpiresAt.Format(time.RFC3339)},
		})
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// VerifyOtp consumes one attempt against the signer's latest usable
// challenge. A challenge verifies at most once.
func (s *Service) VerifyOtp(fileID string, sc SignerContext, code string) error {
	file, err := s.loadFile(fileID)
	if err != nil {
		return err
	}

	// Failed attempts must survive (attempt counter and failure event), so
	// the policy error cannot ride inside a transaction that would roll
	// them back.
	var challenge models.OtpChallenge
	err = s.db.Where(
		"signing_file_id = ? AND signer_id = ? AND session_id = ? AND verified = ?",
		file.ID, sc.UserID, sc.SessionID, false,
	).Order("created_at DESC").First(&challenge).Error
	if err == gorm.ErrRecordNotFound {
		return apperr.New(apperr.CodeOtpRequired, "no pending code for this session")
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if !challenge.Usable(now) {
		if !now.Before(challenge.ExpiresAt) {
			s.auditOtpFailure(nil, file, sc, challenge.ID, "expired")
			return apperr.New(apperr.CodeOtpExpired, "the code has expired")
		}
		s.auditOtpFailure(nil, file, sc, challenge.ID, "attempts_exhausted")
		return apperr.New(apperr.CodeOtpInvalid, "attempt limit reached, request a new code")
	}

	challenge.Attempts++
	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)) != nil {
		if err := s.db.Model(&challenge).Update("attempts", challenge.Attempts).Error; err != nil {
			return err
		}
		s.auditOtpFailure(nil, file, sc, challenge.ID, "mismatch")
		return apperr.New(apperr.CodeOtpInvalid, "incorrect code")
	}

	// consume: flips verified exactly once
	res := s.db.Model(&models.OtpChallenge{}).
		Where("id = ? AND verified = ?", challenge.ID, false).
		Updates(map[string]interface{}{
			"attempts":    challenge.Attempts,
			"verified":    true,
			"verified_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeOtpInvalid, "code already consumed")
	}

	return s.chain.Append(nil, audit.Entry{
		FileID:    &file.ID,
		EventType: models.EventOtpVerified,
		ActorID:   sc.UserID,
		ActorType: sc.ActorType,
		IP:        sc.IP,
		UserAgent: sc.UserAgent,
		SessionID: sc.SessionID,
		Success:   true,
		Metadata:  models.JSONB{"challengeId": challenge.ID},
	})
}

func (s *Service) auditOtpFailure(tx *gorm.DB, file *models.SigningFile, sc SignerContext, challengeID, reason string) {
	_ = s.chain.Append(tx, audit.Entry{
		FileID:    &file.ID,
		EventType: models.EventOtpFailed,
		ActorID:   sc.UserID,
		ActorType: sc.ActorType,
		IP:        sc.IP,
		UserAgent: sc.UserAgent,
		SessionID: sc.SessionID,
		Success:   false,
		Metadata:  models.JSONB{"challengeId": challengeID, "reason": reason},
	})
}

// randomCode returns n decimal digits from crypto/rand.
func randomCode(n int) (string, error) {
	code := ""
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code += fmt.Sprintf("%d", d.Int64())
	}
	return code, nil
}
