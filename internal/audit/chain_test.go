package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
	"github.com/lexsign-io/lexsigngo/internal/database"
	"github.com/lexsign-io/lexsigngo/internal/models"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.AuditEvent{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return database.Wrap(db)
}

func strp(s string) *string { return &s }

func baseEvent() models.AuditEvent {
	return models.AuditEvent{
		ID:            "evt-1",
		OccurredAt:    time.Date(2026, 3, 12, 10, 30, 0, 0, time.UTC),
		EventType:     models.EventSpotSigned,
		SigningFileID: strp("file-1"),
		SpotID:        strp("spot-1"),
		ActorID:       "user-1",
		ActorType:     models.ActorClient,
		IP:            "10.0.0.5",
		UserAgent:     "test-agent",
		SessionID:     "sess-1",
		Success:       true,
		Metadata:      models.JSONB{"hash": "abc"},
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	a := baseEvent()
	b := baseEvent()
	if ComputeHash(&a) != ComputeHash(&b) {
		t.Error("Identical events must hash identically")
	}
	if len(ComputeHash(&a)) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(ComputeHash(&a)))
	}
}

func TestComputeHash_SensitiveToEveryField(t *testing.T) {
	base := baseEvent()
	baseHash := ComputeHash(&base)

	mutations := map[string]func(*models.AuditEvent){
		"eventType": func(e *models.AuditEvent) { e.EventType = models.EventFileRejected },
		"seq":       func(e *models.AuditEvent) { e.Seq = 7 },
		"actorId":   func(e *models.AuditEvent) { e.ActorID = "user-2" },
		"success":   func(e *models.AuditEvent) { e.Success = false },
		"metadata":  func(e *models.AuditEvent) { e.Metadata = models.JSONB{"hash": "xyz"} },
		"prevHash":  func(e *models.AuditEvent) { e.PrevHash = strp("0000") },
		"spotId":    func(e *models.AuditEvent) { e.SpotID = nil },
	}
	for name, mutate := range mutations {
		e := baseEvent()
		mutate(&e)
		if ComputeHash(&e) == baseHash {
			t.Errorf("Hash did not change when %s changed", name)
		}
	}
}

func TestAppend_LinksChain(t *testing.T) {
	db := testDB(t)
	chain := NewChain(db, true)

	fileID := "file-chain"
	for i := 0; i < 3; i++ {
		err := chain.Append(nil, Entry{
			FileID:    &fileID,
			EventType: models.EventDocumentViewed,
			ActorID:   "user-1",
			ActorType: models.ActorClient,
			Success:   true,
		})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	events, err := FileEvents(db.DB, fileID)
	if err != nil {
		t.Fatalf("FileEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].PrevHash != nil {
		t.Error("First event must have no previous hash")
	}
	for i := 1; i < len(events); i++ {
		if events[i].PrevHash == nil || *events[i].PrevHash != events[i-1].Hash {
			t.Errorf("Event %d not linked to its predecessor", i)
		}
	}
	for i := range events {
		if events[i].Seq != int64(i+1) {
			t.Errorf("Event %d has seq %d, expected %d", i, events[i].Seq, i+1)
		}
	}

	if broken, _ := Verify(events); broken != -1 {
		t.Errorf("Fresh chain reported broken at %d", broken)
	}
}

// Events appended within one clock tick share a created_at value, so the
// timestamp cannot order the chain. Seq keeps insertion order regardless.
func TestFileEvents_OrderIndependentOfTimestamp(t *testing.T) {
	db := testDB(t)
	chain := NewChain(db, true)

	fileID := "file-ties"
	for i := 0; i < 3; i++ {
		if err := chain.Append(nil, Entry{
			FileID:    &fileID,
			EventType: models.EventDocumentViewed,
			ActorID:   "user-1",
			ActorType: models.ActorClient,
			Success:   true,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	// collapse every insert timestamp into the same tick
	tick := time.Date(2026, 3, 12, 10, 30, 0, 0, time.UTC)
	if err := db.Model(&models.AuditEvent{}).
		Where("signing_file_id = ?", fileID).
		Update("created_at", tick).Error; err != nil {
		t.Fatalf("Collapsing timestamps failed: %v", err)
	}

	events, err := FileEvents(db.DB, fileID)
	if err != nil {
		t.Fatalf("FileEvents failed: %v", err)
	}
	for i := range events {
		if events[i].Seq != int64(i+1) {
			t.Fatalf("Event %d has seq %d, expected %d", i, events[i].Seq, i+1)
		}
	}
	if broken, _ := Verify(events); broken != -1 {
		t.Errorf("Chain reported broken at %d after timestamp collapse", broken)
	}
}

func TestAppend_SeparateChainsPerFile(t *testing.T) {
	db := testDB(t)
	chain := NewChain(db, true)

	a, b := "file-a", "file-b"
	for _, id := range []string{a, b, a} {
		fid := id
		if err := chain.Append(nil, Entry{
			FileID:    &fid,
			EventType: models.EventDocumentViewed,
			ActorID:   "user-1",
			ActorType: models.ActorClient,
			Success:   true,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	eventsB, _ := FileEvents(db.DB, b)
	if len(eventsB) != 1 || eventsB[0].PrevHash != nil {
		t.Error("Chains must not link across files")
	}
	eventsA, _ := FileEvents(db.DB, a)
	if len(eventsA) != 2 || eventsA[1].PrevHash == nil || *eventsA[1].PrevHash != eventsA[0].Hash {
		t.Error("Same-file events must stay linked")
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	db := testDB(t)
	chain := NewChain(db, true)

	fileID := "file-tamper"
	for i := 0; i < 3; i++ {
		if err := chain.Append(nil, Entry{
			FileID:    &fileID,
			EventType: models.EventDocumentViewed,
			ActorID:   "user-1",
			ActorType: models.ActorClient,
			Success:   true,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	events, _ := FileEvents(db.DB, fileID)
	events[1].ActorID = "intruder"

	broken, err := Verify(events)
	if broken != 1 {
		t.Errorf("Expected break at index 1, got %d", broken)
	}
	if err == nil {
		t.Error("Expected a verification error")
	}
}

func TestAppend_FailureHandling(t *testing.T) {
	db := testDB(t)
	fileID := "file-closed"
	entry := Entry{
		FileID:    &fileID,
		EventType: models.EventDocumentViewed,
		ActorID:   "user-1",
		ActorType: models.ActorClient,
		Success:   true,
	}

	// a closed connection makes every insert fail
	sqlDB, err := db.DB.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.Close()

	if err := NewChain(db, false).Append(nil, entry); err != nil {
		t.Errorf("Non-fatal chain must swallow write errors, got %v", err)
	}

	err = NewChain(db, true).Append(nil, entry)
	if apperr.CodeOf(err) != apperr.CodeAuditWriteFailed {
		t.Errorf("Fatal chain must report AUDIT_WRITE_FAILED, got %v", err)
	}
}
