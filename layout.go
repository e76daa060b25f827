// layout.go implements Layout (spec §4.1): resolving shard/pack paths and
// owning the per-shard lock array. No operation here crosses shards.
package chunkstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// layout resolves on-disk paths under a store's root directory and owns
// the 256 per-shard locks plus their poison flags.
//
// A layout is immutable after construction aside from the locks
// themselves; all its path-computing methods are pure functions of the
// root and are safe for concurrent use.
type layout struct {
	root string

	// locks holds one mutex per shard (0..255). Both WriteChunk and the
	// brief ShardState-refreshing phase of LocateChunk take the full
	// lock — there is no reader/writer split because both paths mutate
	// ShardState (refresh_known_packs), per spec §4.6. The lock is
	// released before any on-disk .idx scan, which is where read
	// concurrency actually comes from.
	locks [shardCount]sync.Mutex

	// poisoned[i] is set once a goroutine panics while holding locks[i].
	// Guarded by poisonMu rather than the shard lock itself, since a
	// panic can leave the shard lock in an inconsistent held state.
	poisonMu sync.Mutex
	poisoned [shardCount]bool
}

func newLayout(root string) *layout { return &layout{root: root} }

// shardDirName returns "shard-XX" for XX the two lowercase hex digits of shard.
func shardDirName(shard byte) string { return fmt.Sprintf("shard-%02x", shard) }

// shardDir returns the directory holding all packs for shard, creating it
// (and any missing parents) if necessary.
func (l *layout) shardDir(shard byte) (string, error) {
	dir := filepath.Join(l.root, shardDirName(shard))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("chunkstore: create shard dir %s: %w", dir, err)
	}
	return dir, nil
}

// packBaseName returns "pack-NNNNNN" zero-padded to at least six digits.
func packBaseName(number uint32) string { return fmt.Sprintf("pack-%06d", number) }

// packPaths returns the (.dat, .idx) paths for id, ensuring the shard
// directory exists.
func (l *layout) packPaths(id PackID) (datPath, idxPath string, err error) {
	dir, err := l.shardDir(id.Shard)
	if err != nil {
		return "", "", err
	}
	base := filepath.Join(dir, packBaseName(id.Number))
	return base + ".dat", base + ".idx", nil
}

// withShardLock runs fn holding the write lock for shard, converting a
// panic inside fn into ErrShardPoisoned for every future caller of this
// shard (including the one in progress, which still panics through —
// poisoning is recorded, not swallowed).
func (l *layout) withShardLock(shard byte, fn func() error) error {
	if l.isPoisoned(shard) {
		return ErrShardPoisoned
	}
	l.locks[shard].Lock()
	defer func() {
		if r := recover(); r != nil {
			l.poisonMu.Lock()
			l.poisoned[shard] = true
			l.poisonMu.Unlock()
			l.locks[shard].Unlock()
			panic(r)
		}
	}()
	err := fn()
	l.locks[shard].Unlock()
	return err
}

func (l *layout) isPoisoned(shard byte) bool {
	l.poisonMu.Lock()
	defer l.poisonMu.Unlock()
	return l.poisoned[shard]
}
