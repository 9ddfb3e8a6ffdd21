package evidence

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lexsign-io/lexsigngo/internal/audit"
	"github.com/lexsign-io/lexsigngo/internal/database"
	"github.com/lexsign-io/lexsigngo/internal/models"
	"github.com/lexsign-io/lexsigngo/internal/storage"
)

type testEnv struct {
	asm   *Assembler
	db    *database.DB
	store *storage.MemStore
	chain *audit.Chain
}

func strp(s string) *string { return &s }

// newTestEnv seeds a fully signed file with one signature image, a consent
// record and a realistic audit trail.
func newTestEnv(t *testing.T) (*testEnv, *models.SigningFile) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	err = gdb.AutoMigrate(
		&models.SigningFile{}, &models.SignatureSpot{}, &models.AuditEvent{},
		&models.ConsentRecord{}, &models.OtpChallenge{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	db := database.Wrap(gdb)
	store := storage.NewMemStore()
	chain := audit.NewChain(db, true)

	pdf := []byte("%PDF-1.4 signed contract")
	if err := store.Put("documents/doc-1", pdf); err != nil {
		t.Fatalf("Store document: %v", err)
	}
	if err := store.Put("signatures/sig-1", []byte("png-bytes")); err != nil {
		t.Fatalf("Store signature: %v", err)
	}

	now := time.Now().UTC()
	file := models.SigningFile{
		ID:            "file-1",
		LawyerID:      "lawyer-1",
		ClientID:      "client-1",
		FileName:      "contract.pdf",
		FileKey:       "documents/doc-1",
		OriginalHash:  "aaaa",
		PresentedHash: "aaaa",
		SignedHash:    "aaaa",
		Status:        models.FileStatusSigned,
		RequireOtp:    true,
		PolicyVersion: "v1",
		SignedAt:      &now,
	}
	if err := db.Create(&file).Error; err != nil {
		t.Fatalf("Create file: %v", err)
	}

	spots := []models.SignatureSpot{
		{ID: "spot-1", SigningFileID: file.ID, PageNum: 1, X: 100, Y: 200, Width: 200, Height: 80,
			Required: true, IsSigned: true, SignedAt: &now, SignatureKey: strp("signatures/sig-1")},
		{ID: "spot-2", SigningFileID: file.ID, PageNum: 2, X: 100, Y: 400, Width: 200, Height: 80,
			Required: true, IsSigned: true, SignedAt: &now, SignatureKey: strp("signatures/missing")},
	}
	if err := db.Create(&spots).Error; err != nil {
		t.Fatalf("Create spots: %v", err)
	}

	consent := models.ConsentRecord{
		SigningFileID: file.ID, SignerID: "client-1", SessionID: "sess-1",
		PolicyVersion: "v1", ContentHash: "tttt", AcceptedAt: now,
	}
	if err := db.Create(&consent).Error; err != nil {
		t.Fatalf("Create consent: %v", err)
	}

	entries := []audit.Entry{
		{FileID: &file.ID, EventType: models.EventFileUploaded, ActorID: "lawyer-1",
			ActorType: models.ActorLawyer, Success: true,
			Metadata: models.JSONB{"fileName": "contract.pdf"}},
		{FileID: &file.ID, EventType: models.EventOtpRequested, ActorID: "client-1",
			ActorType: models.ActorClient, Success: true,
			Metadata: models.JSONB{"challengeId": "ch-1", "codeHash": "$2a$10$secret", "code": "123456"}},
		{FileID: &file.ID, EventType: models.EventSpotSigned, ActorID: "client-1",
			ActorType: models.ActorClient, Success: true,
			Metadata: models.JSONB{"pageNum": 1}},
		{FileID: &file.ID, EventType: models.EventFileCompleted, ActorID: "client-1",
			ActorType: models.ActorClient, Success: true},
	}
	for _, e := range entries {
		if err := chain.Append(nil, e); err != nil {
			t.Fatalf("Append %s: %v", e.EventType, err)
		}
	}

	env := &testEnv{asm: NewAssembler(db, store, chain), db: db, store: store, chain: chain}
	return env, &file
}

func TestBuildManifest_Fields(t *testing.T) {
	env, file := newTestEnv(t)

	m, err := env.asm.BuildManifest(file.ID)
	if err != nil {
		t.Fatalf("BuildManifest failed: %v", err)
	}
	if m.BundleVersion != "evidence/v1" {
		t.Errorf("Bundle version: %q", m.BundleVersion)
	}
	if m.SigningFileID != file.ID || m.FileName != "contract.pdf" || m.Status != models.FileStatusSigned {
		t.Errorf("File identity wrong: %+v", m)
	}
	if !m.RequireOtp || m.PolicyVersion != "v1" {
		t.Error("Policy snapshot not carried into the manifest")
	}
	if m.OriginalHash != "aaaa" || m.PresentedHash != "aaaa" || m.SignedHash != "aaaa" {
		t.Error("Document hashes not carried into the manifest")
	}
	if len(m.Spots) != 2 || len(m.Consents) != 1 || len(m.Events) != 4 {
		t.Errorf("Counts: %d spots, %d consents, %d events", len(m.Spots), len(m.Consents), len(m.Events))
	}
	if !m.ChainIntact {
		t.Error("Untampered chain must verify intact")
	}
	if len(m.BundleHash) != 64 {
		t.Errorf("Bundle hash: %q", m.BundleHash)
	}
}

func TestBuildManifest_RedactsSensitiveMetadata(t *testing.T) {
	env, file := newTestEnv(t)

	m, err := env.asm.BuildManifest(file.ID)
	if err != nil {
		t.Fatalf("BuildManifest failed: %v", err)
	}

	var otpEvent *models.AuditEvent
	for i := range m.Events {
		if m.Events[i].EventType == models.EventOtpRequested {
			otpEvent = &m.Events[i]
		}
	}
	if otpEvent == nil {
		t.Fatal("OTP request event missing from manifest")
	}
	if otpEvent.Metadata["codeHash"] != "[REDACTED]" || otpEvent.Metadata["code"] != "[REDACTED]" {
		t.Errorf("Sensitive metadata not redacted: %v", otpEvent.Metadata)
	}
	if otpEvent.Metadata["challengeId"] != "ch-1" {
		t.Errorf("Harmless metadata must survive: %v", otpEvent.Metadata)
	}

	// the stored row keeps the original metadata
	var stored models.AuditEvent
	if err := env.db.First(&stored, "id = ?", otpEvent.ID).Error; err != nil {
		t.Fatalf("Load stored event: %v", err)
	}
	if stored.Metadata["codeHash"] == "[REDACTED]" {
		t.Error("Redaction must not touch the database")
	}
}

func TestBuildManifest_FlagsBrokenChain(t *testing.T) {
	env, file := newTestEnv(t)

	if err := env.db.Model(&models.AuditEvent{}).
		Where("signing_file_id = ? AND event_type = ?", file.ID, models.EventSpotSigned).
		Update("actor_id", "intruder").Error; err != nil {
		t.Fatalf("Tamper failed: %v", err)
	}

	m, err := env.asm.BuildManifest(file.ID)
	if err != nil {
		t.Fatalf("BuildManifest failed: %v", err)
	}
	if m.ChainIntact {
		t.Error("Tampered chain must not verify intact")
	}
}

func TestBuildBundle_Contents(t *testing.T) {
	env, file := newTestEnv(t)

	data, err := env.asm.BuildBundle(file.ID, "lawyer-1")
	if err != nil {
		t.Fatalf("BuildBundle failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Bundle is not a zip: %v", err)
	}
	entries := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open %s: %v", f.Name, err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		entries[f.Name] = b
	}

	for _, name := range []string{"manifest.json", "document.pdf", "signatures/spot-1.png", "certificate.pdf"} {
		if _, ok := entries[name]; !ok {
			t.Errorf("Bundle missing %s", name)
		}
	}
	// the second spot's image object does not exist; the bundle skips it
	if _, ok := entries["signatures/spot-2.png"]; ok {
		t.Error("Missing signature object must be skipped, not fabricated")
	}

	var m Manifest
	if err := json.Unmarshal(entries["manifest.json"], &m); err != nil {
		t.Fatalf("Manifest does not parse: %v", err)
	}
	if m.SigningFileID != file.ID {
		t.Errorf("Manifest points at %q", m.SigningFileID)
	}
	if !bytes.Equal(entries["document.pdf"], []byte("%PDF-1.4 signed contract")) {
		t.Error("Document bytes altered in the bundle")
	}
	if !bytes.HasPrefix(entries["certificate.pdf"], []byte("%PDF")) {
		t.Error("Certificate is not a PDF")
	}

	var n int64
	env.db.Model(&models.AuditEvent{}).
		Where("signing_file_id = ? AND event_type = ?", file.ID, models.EventEvidenceIssued).
		Count(&n)
	if n != 1 {
		t.Errorf("Expected 1 issuance event, got %d", n)
	}
}

func TestRenderCertificate(t *testing.T) {
	env, file := newTestEnv(t)
	m, err := env.asm.BuildManifest(file.ID)
	if err != nil {
		t.Fatalf("BuildManifest failed: %v", err)
	}

	pdf, err := RenderCertificate(m)
	if err != nil {
		t.Fatalf("RenderCertificate failed: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("Certificate output is not a PDF")
	}
}
