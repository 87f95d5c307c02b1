package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/docmap/internal/crypt"
	"github.com/roach88/docmap/internal/mapper"
	"github.com/roach88/docmap/internal/testutil"
)

// createTestStore opens a store in a temp dir with deterministic ids, op
// ids and clock, and a fresh encryption key.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	key, err := crypt.NewKey()
	require.NoError(t, err)
	return createTestStoreWithKey(t, filepath.Join(t.TempDir(), "test.db"), key)
}

func createTestStoreWithKey(t *testing.T, path string, key []byte) *Store {
	t.Helper()
	adapter, err := crypt.NewAEAD(key)
	require.NoError(t, err)

	mp := mapper.New(testutil.Registry(t), mapper.WithGate(crypt.NewGate(adapter)))
	s, err := Open(path, mp,
		WithIDGenerator(&testutil.SequentialIDs{}),
		WithOpIDGenerator(&testutil.SequentialOps{}),
		WithClock(testutil.NewDeterministicClock().Now),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newUser() *testutil.User {
	return &testutil.User{
		Name:    "Ada",
		Email:   "ada@example.com",
		Age:     36,
		Status:  "active",
		Tags:    []string{"math"},
		Address: &testutil.Address{Street: "St James's Square", City: "London", Zip: "SW1"},
	}
}
