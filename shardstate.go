// shardstate.go implements ShardState (spec §4.2): the in-memory state for
// a single shard, protected end-to-end by that shard's lock in layout.go.
package chunkstore

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// packStats mirrors the original implementation's PackStats
// (original_source/crv-hive/src/repository/pack.rs): running totals for an
// active pack, used by the rotation policy in store.go and exposed
// read-only via Store.ShardStats.
type packStats struct {
	ChunkCount    uint64
	LogicalBytes  uint64
	PhysicalBytes uint64
}

func (s *packStats) apply(logicalLen, storedLen uint32) {
	s.ChunkCount++
	s.LogicalBytes += uint64(logicalLen)
	s.PhysicalBytes += chunkEntryFixedSize + uint64(storedLen)
}

func (s *packStats) rollback(logicalLen, storedLen uint32) {
	if s.ChunkCount > 0 {
		s.ChunkCount--
	}
	s.LogicalBytes = satSub(s.LogicalBytes, uint64(logicalLen))
	s.PhysicalBytes = satSub(s.PhysicalBytes, chunkEntryFixedSize+uint64(storedLen))
}

func satSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// activePack bundles everything ShardState needs to keep writing to the
// one pack this process owns for the shard.
type activePack struct {
	id    PackID
	dat   *packWriter
	idx   *indexFile
	stats packStats
}

// shardState is the in-memory state for one shard (spec §4.2). Every
// field is only ever touched while the owning layout's shard lock is held.
type shardState struct {
	knownPackIDs map[uint32]struct{}
	active       *activePack
}

func newShardState() *shardState { return &shardState{knownPackIDs: make(map[uint32]struct{})} }

// refreshKnownPacks scans shard's directory for pack-NNNNNN.dat files and
// merges any newly-discovered numbers into knownPackIDs. It tolerates
// packs with only a .dat (no .idx) by still recording the number — per
// spec §4.2, such packs are invisible to Locator until a (deferred)
// recovery step runs. A shard whose directory does not exist yet has no
// packs; the scan does not create the directory.
func (s *shardState) refreshKnownPacks(l *layout, shard byte) error {
	dir := filepath.Join(l.root, shardDirName(shard))
	st, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("chunkstore: shard path %s is not a directory", dir)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "pack-*.dat"))
	if err != nil {
		return err
	}
	for _, p := range paths {
		base := strings.TrimSuffix(filepath.Base(p), ".dat")
		numStr := strings.TrimPrefix(base, "pack-")
		if len(numStr) < 6 {
			continue
		}
		n, err := strconv.ParseUint(numStr, 10, 32)
		if err != nil {
			continue
		}
		s.knownPackIDs[uint32(n)] = struct{}{}
	}
	return nil
}

// findInActive performs a point lookup in the active pack's in-memory
// index, returning the matching entry and the .dat path to read it from.
func (s *shardState) findInActive(hash ChunkHash) (IndexEntry, string, bool) {
	if s.active == nil {
		return IndexEntry{}, "", false
	}
	e, ok := s.active.idx.find(hash)
	if !ok {
		return IndexEntry{}, "", false
	}
	return e, s.active.dat.path, true
}

// allPackIDs returns a snapshot of every known pack number, ascending.
func (s *shardState) allPackIDs() []uint32 {
	out := make([]uint32, 0, len(s.knownPackIDs))
	for n := range s.knownPackIDs {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// allocateNewPackNumber returns max(knownPackIDs)+1, or 1 if empty.
func (s *shardState) allocateNewPackNumber() uint32 {
	var max uint32
	for n := range s.knownPackIDs {
		if n > max {
			max = n
		}
	}
	return max + 1
}

