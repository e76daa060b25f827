package chunkstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// openTestStore opens a Store rooted at a fresh temp directory and arranges
// for it to be closed when t finishes.
func openTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seqChunk returns a small, distinct payload for index i, suitable for
// generating many non-colliding chunks in a loop.
func seqChunk(prefix string, i int) []byte {
	return []byte(fmt.Sprintf("%s-%08d", prefix, i))
}
