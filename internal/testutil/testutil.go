package testutil

import (
	"path/filepath"
	"testing"

	"github.com/headline-goat/variant-goat/internal/store"
)

// SetupTestStore creates a SQLite database in t.TempDir() and closes it on
// test completion.
func SetupTestStore(t testing.TB) *store.SQLStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
