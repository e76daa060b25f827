// locator.go implements Locator (spec §4.6): given a hash, search the
// active in-memory index first, then each on-disk .idx for that shard via
// binary search.
package chunkstore

import (
	"os"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// sealedIndexCache caches parsed, CRC-verified sealed .idx snapshots keyed
// by PackID, so that a hot shard's locate path does not reparse and
// re-checksum the same sealed index on every lookup. Unlike the teacher's
// ARC object cache (which balances recency and frequency over a
// read-heavy, effectively fixed object set) a plain LRU is the right fit
// here: sealed indexes are immutable once cached, there is no
// write-invalidation to reason about, and access skew is dominated by
// which shards are hot right now, which plain recency already captures.
type sealedIndexCache struct {
	lru *lru.Cache[PackID, *sealedIndexSnapshot]
}

type sealedIndexSnapshot struct {
	entries []IndexEntry
}

func newSealedIndexCache(size int) (*sealedIndexCache, error) {
	c, err := lru.New[PackID, *sealedIndexSnapshot](size)
	if err != nil {
		return nil, err
	}
	return &sealedIndexCache{lru: c}, nil
}

func (c *sealedIndexCache) get(id PackID, idxPath string) (*sealedIndexSnapshot, error) {
	if snap, ok := c.lru.Get(id); ok {
		return snap, nil
	}
	entries, sealed, err := readIndexEntries(idxPath)
	if err != nil {
		return nil, err
	}
	if !sealed {
		// The pack is known but not yet sealed by anyone — a reader-only
		// snapshot of it is still useful for this single call, but must
		// not be cached: an unsealed index keeps changing underneath us.
		return &sealedIndexSnapshot{entries: entries}, nil
	}
	snap := &sealedIndexSnapshot{entries: entries}
	c.lru.Add(id, snap)
	return snap, nil
}

func (snap *sealedIndexSnapshot) find(hash ChunkHash) (IndexEntry, bool) {
	i, ok := slices.BinarySearchFunc(snap.entries, hash, compareHashes)
	if !ok {
		return IndexEntry{}, false
	}
	return snap.entries[i], true
}

// locateInPacks searches each pack id in ids for hash, from the last id in
// ids to the first (newest pack first for an ascending ids), skipping
// packs that have no on-disk .idx (unindexed-only packs are invisible to
// Locator per spec §4.2). It returns the first match along with the
// matching pack's .dat path.
func locateInPacks(l *layout, cache *sealedIndexCache, shard byte, ids []uint32, hash ChunkHash) (IndexEntry, string, PackID, bool, error) {
	for i := len(ids) - 1; i >= 0; i-- {
		id := PackID{Shard: shard, Number: ids[i]}
		datPath, idxPath, err := l.packPaths(id)
		if err != nil {
			return IndexEntry{}, "", PackID{}, false, err
		}
		if _, err := os.Stat(idxPath); err != nil {
			continue // no .idx for this pack; skip (spec §4.2).
		}
		snap, err := cache.get(id, idxPath)
		if err != nil {
			return IndexEntry{}, "", PackID{}, false, err
		}
		if e, ok := snap.find(hash); ok {
			return e, datPath, id, true, nil
		}
	}
	return IndexEntry{}, "", PackID{}, false, nil
}
