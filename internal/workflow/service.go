// Package workflow owns the signing-file lifecycle: creation, per-spot
// signature capture, policy gating, completion, rejection and reupload.
// Every mutation is transactional and leaves an audit event behind.
package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
	"github.com/lexsign-io/lexsigngo/internal/audit"
	"github.com/lexsign-io/lexsigngo/internal/config"
	"github.com/lexsign-io/lexsigngo/internal/database"
	"github.com/lexsign-io/lexsigngo/internal/models"
	"github.com/lexsign-io/lexsigngo/internal/notify"
	"github.com/lexsign-io/lexsigngo/internal/storage"
)

// SignerContext identifies the acting user for one request.
type SignerContext struct {
	UserID    string
	ActorType string // models.ActorLawyer / ActorClient / ActorSigner
	SessionID string
	IP        string
	UserAgent string
}

// SpotInput describes one spot to create on upload or reupload.
type SpotInput struct {
	PageNum     int     `json:"pageNum"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Required    *bool   `json:"required,omitempty"` // nil means required
	Label       string  `json:"label,omitempty"`
	SignerID    *string `json:"signerId,omitempty"`
	SignerIndex *int    `json:"signerIndex,omitempty"`
	SignerName  string  `json:"signerName,omitempty"`
}

// UploadInput is the caller-facing payload of uploadForSigning.
type UploadInput struct {
	LawyerID   string
	ClientID   string
	CaseID     *string
	FileName   string
	PDF        []byte
	Spots      []SpotInput
	Signers    []models.Signer
	RequireOtp *bool // nil takes the firm default
}

// Service is the signing workflow state machine.
type Service struct {
	db       *database.DB
	chain    *audit.Chain
	store    storage.Store
	notifier notify.Notifier
	cfg      config.SigningConfig
	caps     *CapabilitiesCache
}

// New wires the workflow service.
func New(db *database.DB, chain *audit.Chain, store storage.Store, notifier notify.Notifier, cfg config.SigningConfig, caps *CapabilitiesCache) *Service {
	return &Service{db: db, chain: chain, store: store, notifier: notifier, cfg: cfg, caps: caps}
}

// HashBytes is the document identity hash: SHA-256 hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Service) loadFile(fileID string) (*models.SigningFile, error) {
	if fileID == "" {
		return nil, apperr.New(apperr.CodeValidation, "file id is required")
	}
	var file models.SigningFile
	err := s.db.Preload("Spots").First(&file, "id = ?", fileID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.New(apperr.CodeNotFound, "signing file not found")
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// Get returns the file with its spots.
func (s *Service) Get(fileID string) (*models.SigningFile, error) {
	return s.loadFile(fileID)
}

// Upload creates a signing file from raw PDF bytes plus spot definitions
// and routes it. Returns the new file id.
func (s *Service) Upload(in UploadInput) (string, error) {
	if in.LawyerID == "" || in.ClientID == "" {
		return "", apperr.New(apperr.CodeValidation, "lawyer and client ids are required")
	}
	if len(in.PDF) == 0 {
		return "", apperr.New(apperr.CodeInvalidPDF, "empty document")
	}

	hash := HashBytes(in.PDF)
	key := storage.NewKey("documents")
	if err := s.store.Put(key, in.PDF); err != nil {
		return "", err
	}

	requireOtp := s.cfg.RequireOtpDefault
	if in.RequireOtp != nil {
		requireOtp = *in.RequireOtp
	}

	file := models.SigningFile{
		LawyerID:      in.LawyerID,
		ClientID:      in.ClientID,
		CaseID:        in.CaseID,
		FileName:      in.FileName,
		FileKey:       key,
		OriginalHash:  hash,
		PresentedHash: hash,
		Status:        models.FileStatusPending,
		RequireOtp:    requireOtp,
		PolicyVersion: s.cfg.ConsentVersion,
		SignerRoster:  signerRoster(in.Signers),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		spots := s.buildSpots(file.ID, in.Spots, in.Signers)
		if len(spots) > 0 {
			if err := tx.Create(&spots).Error; err != nil {
				return err
			}
		}
		return s.chain.Append(tx, audit.Entry{
			FileID:    &file.ID,
			EventType: models.EventFileUploaded,
			ActorID:   in.LawyerID,
			ActorType: models.ActorLawyer,
			Success:   true,
			Metadata:  models.JSONB{"fileName": in.FileName, "spots": len(spots), "hash": hash},
		})
	})
	if err != nil {
		return "", err
	}

	s.notifySigners(&file, in.Spots, in.Signers, "מסמך חדש לחתימה", in.FileName)
	return file.ID, nil
}

// signerRoster preserves the supplied signer list verbatim for the file
// record and the evidence package.
func signerRoster(signers []models.Signer) datatypes.JSON {
	if len(signers) == 0 {
		return nil
	}
	roster, err := json.Marshal(signers)
	if err != nil {
		return nil
	}
	return datatypes.JSON(roster)
}

// buildSpots materializes spot rows, resolving each one's signer through
// the schema-capability strategy.
func (s *Service) buildSpots(fileID string, inputs []SpotInput, signers []models.Signer) []models.SignatureSpot {
	strategy := assignmentFor(s.caps.Get())
	rr := 0
	nextRR := func() *models.Signer {
		if len(signers) == 0 {
			return nil
		}
		sg := &signers[rr%len(signers)]
		rr++
		return sg
	}

	spots := make([]models.SignatureSpot, 0, len(inputs))
	for _, in := range inputs {
		signerID, signerName := strategy.ResolveSigner(in, signers, nextRR)
		required := in.Required == nil || *in.Required
		spots = append(spots, models.SignatureSpot{
			SigningFileID:    fileID,
			PageNum:          in.PageNum,
			X:                in.X,
			Y:                in.Y,
			Width:            in.Width,
			Height:           in.Height,
			Required:         required,
			SignerLabel:      in.Label,
			AssignedSignerID: signerID,
			SignerName:       signerName,
		})
	}
	return spots
}

// SignResult reports the outcome of a sign operation.
type SignResult struct {
	FileCompleted bool `json:"fileCompleted"`
}

// SignSpot captures one signature. The spot transitions unsigned to signed
// exactly once; the file completes the instant its last required spot is
// signed. signatureImage may be nil for pre-approved fields.
func (s *Service) SignSpot(fileID, spotID string, sc SignerContext, signatureImage []byte) (*SignResult, error) {
	file, err := s.loadFile(fileID)
	if err != nil {
		return nil, err
	}

	var spot *models.SignatureSpot
	for i := range file.Spots {
		if file.Spots[i].ID == spotID {
			spot = &file.Spots[i]
			break
		}
	}
	if spot == nil {
		return nil, apperr.New(apperr.CodeNotFound, "signature spot not found on this file")
	}
	if file.Status != models.FileStatusPending {
		return nil, apperr.New(apperr.CodeFileNotPending, "file is not open for signing")
	}
	if spot.IsSigned {
		return nil, apperr.New(apperr.CodeAlreadySigned, "spot is already signed")
	}

	if !assignmentFor(s.caps.Get()).MaySign(file, spot, sc) {
		s.auditDenied(file, &spot.ID, sc, "sign")
		return nil, apperr.New(apperr.CodeForbidden, "you are not a signer of this spot")
	}

	if err := s.evaluateGate(s.db.DB, file, sc); err != nil {
		s.auditPolicyFailure(file, &spot.ID, sc, err)
		return nil, err
	}

	var signatureKey *string
	if len(signatureImage) > 0 {
		key := storage.NewKey("signatures")
		if err := s.store.Put(key, signatureImage); err != nil {
			return nil, err
		}
		signatureKey = &key
	}

	now := time.Now().UTC()
	completed := false

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// conditional update: concurrent attempts on the same spot
		// serialize here, the loser sees zero rows
		res := tx.Model(&models.SignatureSpot{}).
			Where("id = ? AND is_signed = ?", spot.ID, false).
			Updates(map[string]interface{}{
				"is_signed":         true,
				"signed_at":         now,
				"signature_key":     signatureKey,
				"signer_ip":         sc.IP,
				"signer_user_agent": sc.UserAgent,
				"signer_session_id": sc.SessionID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.CodeAlreadySigned, "spot is already signed")
		}

		// re-read spot state inside the transaction so a concurrent
		// sign of another spot is visible to the completion check
		if err := tx.Where("signing_file_id = ?", file.ID).
			Find(&file.Spots).Error; err != nil {
			return err
		}

		if file.AllRequiredSigned() {
			res := tx.Model(&models.SigningFile{}).
				Where("id = ? AND status = ?", file.ID, models.FileStatusPending).
				Updates(map[string]interface{}{
					"status":       models.FileStatusSigned,
					"signed_at":    now,
					"immutable_at": now,
					"signed_hash":  file.PresentedHash,
				})
			if res.Error != nil {
				return res.Error
			}
			completed = res.RowsAffected > 0
		}

		if err := s.chain.Append(tx, audit.Entry{
			FileID:    &file.ID,
			SpotID:    &spot.ID,
			EventType: models.EventSpotSigned,
			ActorID:   sc.UserID,
			ActorType: sc.ActorType,
			IP:        sc.IP,
			UserAgent: sc.UserAgent,
			SessionID: sc.SessionID,
			Success:   true,
			Metadata:  models.JSONB{"pageNum": spot.PageNum, "hasImage": signatureKey != nil},
		}); err != nil {
			return err
		}
		if completed {
			return s.chain.Append(tx, audit.Entry{
				FileID:    &file.ID,
				EventType: models.EventFileCompleted,
				ActorID:   sc.UserID,
				ActorType: sc.ActorType,
				IP:        sc.IP,
				UserAgent: sc.UserAgent,
				SessionID: sc.SessionID,
				Success:   true,
				Metadata:  models.JSONB{"signedHash": file.PresentedHash},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		s.notifier.Notify(file.LawyerID, "המסמך נחתם במלואו", file.FileName, map[string]interface{}{"fileId": file.ID})
	}
	return &SignResult{FileCompleted: completed}, nil
}

// Reject resets every spot back to unsigned, clears signature data and
// marks the file rejected. Idempotent on spot state.
func (s *Service) Reject(fileID, reason string, sc SignerContext) error {
	file, err := s.loadFile(fileID)
	if err != nil {
		return err
	}
	if file.Status == models.FileStatusSigned {
		return apperr.New(apperr.CodeFileNotPending, "a signed file cannot be rejected")
	}

	if !s.mayReject(file, sc) {
		s.auditDenied(file, nil, sc, "reject")
		return apperr.New(apperr.CodeForbidden, "you are not a signer of this file")
	}

	if err := s.evaluateGate(s.db.DB, file, sc); err != nil {
		s.auditPolicyFailure(file, nil, sc, err)
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for i := range file.Spots {
			file.Spots[i].ClearSignature()
		}
		if len(file.Spots) > 0 {
			if err := tx.Save(&file.Spots).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.SigningFile{}).
			Where("id = ?", file.ID).
			Updates(map[string]interface{}{
				"status":           models.FileStatusRejected,
				"rejection_reason": reason,
			}).Error; err != nil {
			return err
		}
		return s.chain.Append(tx, audit.Entry{
			FileID:    &file.ID,
			EventType: models.EventFileRejected,
			ActorID:   sc.UserID,
			ActorType: sc.ActorType,
			IP:        sc.IP,
			UserAgent: sc.UserAgent,
			SessionID: sc.SessionID,
			Success:   true,
			Metadata:  models.JSONB{"reason": reason},
		})
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(file.LawyerID, "המסמך נדחה", reason, map[string]interface{}{"fileId": file.ID})
	return nil
}

func (s *Service) mayReject(file *models.SigningFile, sc SignerContext) bool {
	if sc.UserID == file.ClientID {
		return true
	}
	for _, spot := range file.Spots {
		if spot.AssignedSignerID != nil && *spot.AssignedSignerID == sc.UserID {
			return true
		}
	}
	return false
}

// ReuploadInput is the payload of reuploadFile.
type ReuploadInput struct {
	FileName string
	PDF      []byte
	Spots    []SpotInput
	Signers  []models.Signer
}

// Reupload replaces the document after a rejection: new file bytes, fresh
// spots, status back to pending. Restricted to the owning lawyer.
func (s *Service) Reupload(fileID string, in ReuploadInput, sc SignerContext) error {
	file, err := s.loadFile(fileID)
	if err != nil {
		return err
	}
	if sc.UserID != file.LawyerID {
		s.auditDenied(file, nil, sc, "reupload")
		return apperr.New(apperr.CodeForbidden, "only the owning lawyer may reupload")
	}
	if file.Status == models.FileStatusSigned {
		return apperr.New(apperr.CodeFileNotPending, "a signed file cannot be replaced")
	}
	if len(in.PDF) == 0 {
		return apperr.New(apperr.CodeInvalidPDF, "empty document")
	}

	hash := HashBytes(in.PDF)
	key := storage.NewKey("documents")
	if err := s.store.Put(key, in.PDF); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("signing_file_id = ?", file.ID).
			Delete(&models.SignatureSpot{}).Error; err != nil {
			return err
		}
		spots := s.buildSpots(file.ID, in.Spots, in.Signers)
		if len(spots) > 0 {
			if err := tx.Create(&spots).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.SigningFile{}).
			Where("id = ?", file.ID).
			Updates(map[string]interface{}{
				"file_name":        in.FileName,
				"file_key":         key,
				"original_hash":    hash,
				"presented_hash":   hash,
				"signed_hash":      "",
				"status":           models.FileStatusPending,
				"rejection_reason": "",
				"signed_at":        nil,
				"signer_roster":    signerRoster(in.Signers),
			}).Error; err != nil {
			return err
		}
		return s.chain.Append(tx, audit.Entry{
			FileID:    &file.ID,
			EventType: models.EventFileReuploaded,
			ActorID:   sc.UserID,
			ActorType: sc.ActorType,
			IP:        sc.IP,
			UserAgent: sc.UserAgent,
			SessionID: sc.SessionID,
			Success:   true,
			Metadata:  models.JSONB{"fileName": in.FileName, "spots": len(in.Spots), "hash": hash},
		})
	})
	if err != nil {
		return err
	}

	s.notifySigners(file, in.Spots, in.Signers, "מסמך עודכן לחתימה", in.FileName)
	return nil
}

// UpdatePolicy changes the OTP requirement. Disabling OTP demands an
// explicit waiver acknowledgement in the same call; it is never implied.
func (s *Service) UpdatePolicy(fileID string, requireOtp bool, waiverAck bool, sc SignerContext) error {
	file, err := s.loadFile(fileID)
	if err != nil {
		return err
	}
	if sc.UserID != file.LawyerID {
		s.auditDenied(file, nil, sc, "update_policy")
		return apperr.New(apperr.CodeForbidden, "only the owning lawyer may change policy")
	}
	if file.Status == models.FileStatusSigned {
		return apperr.New(apperr.CodeFileNotPending, "policy is immutable after signing")
	}
	if !requireOtp && !waiverAck {
		return apperr.New(apperr.CodeOtpWaiverAck, "disabling OTP requires an explicit waiver acknowledgement")
	}

	updates := map[string]interface{}{"require_otp": requireOtp}
	if !requireOtp {
		now := time.Now().UTC()
		updates["otp_waiver_ackd"] = true
		updates["otp_waiver_ackd_by"] = sc.UserID
		updates["otp_waiver_ackd_at"] = now
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SigningFile{}).
			Where("id = ?", file.ID).Updates(updates).Error; err != nil {
			return err
		}
		return s.chain.Append(tx, audit.Entry{
			FileID:    &file.ID,
			EventType: models.EventPolicyUpdated,
			ActorID:   sc.UserID,
			ActorType: sc.ActorType,
			IP:        sc.IP,
			UserAgent: sc.UserAgent,
			SessionID: sc.SessionID,
			Success:   true,
			Metadata:  models.JSONB{"requireOtp": requireOtp, "waiverAcknowledged": waiverAck},
		})
	})
}

// ViewDocument returns the presented document bytes and audits the access.
func (s *Service) ViewDocument(fileID string, sc SignerContext) ([]byte, string, error) {
	file, err := s.loadFile(fileID)
	if err != nil {
		return nil, "", err
	}
	data, err := s.store.Get(file.FileKey)
	if err != nil {
		return nil, "", err
	}
	if err := s.chain.Append(nil, audit.Entry{
		FileID:    &file.ID,
		EventType: models.EventDocumentViewed,
		ActorID:   sc.UserID,
		ActorType: sc.ActorType,
		IP:        sc.IP,
		UserAgent: sc.UserAgent,
		SessionID: sc.SessionID,
		Success:   true,
		Metadata:  models.JSONB{"hash": file.PresentedHash},
	}); err != nil {
		return nil, "", err
	}
	return data, file.FileName, nil
}

// auditDenied records a rejected authorization attempt. Denials are worth
// keeping: a stranger probing a signing link is itself evidence.
func (s *Service) auditDenied(file *models.SigningFile, spotID *string, sc SignerContext, action string) {
	_ = s.chain.Append(nil, audit.Entry{
		FileID:    &file.ID,
		SpotID:    spotID,
		EventType: models.EventAccessDenied,
		ActorID:   sc.UserID,
		ActorType: sc.ActorType,
		IP:        sc.IP,
		UserAgent: sc.UserAgent,
		SessionID: sc.SessionID,
		Success:   false,
		Metadata:  models.JSONB{"action": action},
	})
}

func (s *Service) auditPolicyFailure(file *models.SigningFile, spotID *string, sc SignerContext, cause error) {
	_ = s.chain.Append(nil, audit.Entry{
		FileID:    &file.ID,
		SpotID:    spotID,
		EventType: models.EventSpotSigned,
		ActorID:   sc.UserID,
		ActorType: sc.ActorType,
		IP:        sc.IP,
		UserAgent: sc.UserAgent,
		SessionID: sc.SessionID,
		Success:   false,
		Metadata:  models.JSONB{"code": apperr.CodeOf(cause)},
	})
}

// notifySigners pings every distinct assigned signer, or the primary
// client when none are distinguishable.
func (s *Service) notifySigners(file *models.SigningFile, spots []SpotInput, signers []models.Signer, title, body string) {
	meta := map[string]interface{}{"fileId": file.ID}
	seen := map[string]bool{}
	for _, sp := range spots {
		if sp.SignerID != nil && !seen[*sp.SignerID] {
			seen[*sp.SignerID] = true
			s.notifier.Notify(*sp.SignerID, title, body, meta)
		}
	}
	for _, sg := range signers {
		if sg.UserID != nil && !seen[*sg.UserID] {
			seen[*sg.UserID] = true
			s.notifier.Notify(*sg.UserID, title, body, meta)
		}
	}
	if len(seen) == 0 {
		s.notifier.Notify(file.ClientID, title, body, meta)
	}
}

// VerifyChain recomputes the file's audit chain and returns the index of
// the first broken link, or -1 when intact.
func (s *Service) VerifyChain(fileID string) (int, int, error) {
	if _, err := s.loadFile(fileID); err != nil {
		return 0, 0, err
	}
	events, err := audit.FileEvents(s.db.DB, fileID)
	if err != nil {
		return 0, 0, err
	}
	broken, verr := audit.Verify(events)
	if verr != nil {
		return broken, len(events), nil
	}
	return -1, len(events), nil
}

// AssertUserDeletable guards user deletion elsewhere in the platform: a
// user referenced by signing or audit history is under legal retention and
// may never be removed.
func (s *Service) AssertUserDeletable(userID string) error {
	var n int64
	if err := s.db.Model(&models.AuditEvent{}).
		Where("actor_id = ?", userID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		err := s.db.Model(&models.SigningFile{}).
			Where("lawyer_id = ? OR client_id = ?", userID, userID).Count(&n).Error
		if err != nil {
			return err
		}
	}
	if n > 0 {
		return apperr.New(apperr.CodeUserHasLegalData,
			fmt.Sprintf("user %s is referenced by legally retained signing records", userID))
	}
	return nil
}
