package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/SistemasTSJavier/MOPER-TS/internal/folio"
)

func testDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:database_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
}

func TestOpenSQLiteSeedsFolioSequence(t *testing.T) {
	db, err := OpenSQLite(testDSN(t), Options{FolioInitial: 280}, nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	var seq folio.Sequence
	if err := db.Where("id = ?", 1).Take(&seq).Error; err != nil {
		t.Fatalf("counter row missing: %v", err)
	}
	if seq.LastNumber != 280 {
		t.Fatalf("expected seeded counter 280, got %d", seq.LastNumber)
	}

	var applied migrationRecord
	if err := db.Where("name = ?", migrationSeedFolioSequence).Take(&applied).Error; err != nil {
		t.Fatalf("migration ledger entry missing: %v", err)
	}
}

func TestReopenDoesNotResetCounter(t *testing.T) {
	dsn := testDSN(t)
	db, err := OpenSQLite(dsn, Options{FolioInitial: 280}, nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	if err := db.Model(&folio.Sequence{}).Where("id = ?", 1).Update("last_number", 300).Error; err != nil {
		t.Fatalf("failed to advance counter: %v", err)
	}

	// A second startup against the same database must leave the counter alone,
	// even when configured with a different initial value.
	if _, err := OpenSQLite(dsn, Options{FolioInitial: 500}, nil); err != nil {
		t.Fatalf("unexpected reopen error: %v", err)
	}

	var seq folio.Sequence
	if err := db.Where("id = ?", 1).Take(&seq).Error; err != nil {
		t.Fatalf("counter row missing after reopen: %v", err)
	}
	if seq.LastNumber != 300 {
		t.Fatalf("reopen reset the counter: got %d, want 300", seq.LastNumber)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", Options{}, nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
