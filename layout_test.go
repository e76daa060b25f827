package chunkstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardDirName(t *testing.T) {
	assert.Equal(t, "shard-00", shardDirName(0x00))
	assert.Equal(t, "shard-d7", shardDirName(0xd7))
	assert.Equal(t, "shard-ff", shardDirName(0xff))
}

func TestPackBaseName(t *testing.T) {
	assert.Equal(t, "pack-000001", packBaseName(1))
	assert.Equal(t, "pack-123456", packBaseName(123456))
	assert.Equal(t, "pack-1234567", packBaseName(1234567))
}

func TestLayoutPackPaths(t *testing.T) {
	dir := t.TempDir()
	l := newLayout(dir)

	dat, idx, err := l.packPaths(PackID{Shard: 0xd7, Number: 1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shard-d7", "pack-000001.dat"), dat)
	assert.Equal(t, filepath.Join(dir, "shard-d7", "pack-000001.idx"), idx)

	_, err = os.Stat(filepath.Join(dir, "shard-d7"))
	assert.NoError(t, err, "packPaths must create the shard directory")
}

func TestWithShardLockSerializesAndReturnsError(t *testing.T) {
	l := newLayout(t.TempDir())
	sentinel := errors.New("boom")

	err := l.withShardLock(3, func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	// Lock must have been released even on error.
	err = l.withShardLock(3, func() error { return nil })
	assert.NoError(t, err)
}

func TestWithShardLockPoisonsOnPanic(t *testing.T) {
	l := newLayout(t.TempDir())

	func() {
		defer func() { recover() }()
		_ = l.withShardLock(9, func() error { panic("boom") })
	}()

	assert.True(t, l.isPoisoned(9))
	err := l.withShardLock(9, func() error { return nil })
	assert.ErrorIs(t, err, ErrShardPoisoned)

	// Other shards remain usable.
	assert.False(t, l.isPoisoned(10))
	err = l.withShardLock(10, func() error { return nil })
	assert.NoError(t, err)
}
