package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/mailforward/internal/ledger"
)

// NewTestSQLiteLedger creates an in-memory SQLite ledger with all
// migrations applied. It automatically closes the ledger when the test
// completes.
func NewTestSQLiteLedger(t *testing.T) *ledger.SQLite {
	t.Helper()

	s, err := ledger.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("creating test ledger: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test ledger: %v", err)
		}
	})

	return s
}

// NewTestJSONLedger returns a JSON file ledger inside a fresh temporary
// directory. The file does not exist until the first mark.
func NewTestJSONLedger(t *testing.T) *ledger.JSONFile {
	t.Helper()
	return ledger.NewJSONFile(filepath.Join(t.TempDir(), "processed.json"))
}
