// store.go wires Layout, ShardState, PackWriter, IndexFile, ChunkCodec,
// Locator, and Sealer into the package's public API (spec §6):
// WriteChunk, ReadChunk, LocateChunk, SealActive.
package chunkstore

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Default pack rotation thresholds (SPEC_FULL.md "Pack rotation policy",
// grounded on original_source/crv-hive/src/repository/manager.rs).
const (
	DefaultPackSoftLimitBytes  = 512 << 20
	DefaultHardSizeLimitBytes  = 2 << 30
	DefaultHardChunkCountLimit = 100_000
)

// Store is the top-level handle on a chunk store rooted at one directory.
// A Store owns 256 independently-lockable ShardStates; all its exported
// methods are safe for concurrent use by multiple goroutines.
type Store struct {
	layout *layout
	shards [shardCount]*shardState
	cache  *sealedIndexCache

	// PackSoftLimitBytes/HardSizeLimitBytes/HardChunkCountLimit configure
	// automatic pack rotation (SPEC_FULL.md, supplemented feature 1).
	// WriteChunk seals the active pack once it has already crossed the
	// soft limit, or once appending the chunk about to be written would
	// cross a hard limit, before appending. Zero disables the
	// corresponding check.
	PackSoftLimitBytes  uint64
	HardSizeLimitBytes  uint64
	HardChunkCountLimit uint64

	profiling     *ProfilingConfig
	profileServer *http.Server
	traceFile     *os.File
}

// StoreOption configures a Store during Open.
type StoreOption func(*Store)

// Open constructs a Store rooted at dir, creating it if necessary, and
// eagerly discovers existing packs in every shard (SPEC_FULL.md,
// supplemented feature 4) so that a malformed root is rejected up front
// rather than on first access.
func Open(dir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chunkstore: create root %s: %w", dir, err)
	}
	cache, err := newSealedIndexCache(4096)
	if err != nil {
		return nil, err
	}

	s := &Store{
		layout:              newLayout(dir),
		cache:               cache,
		PackSoftLimitBytes:  DefaultPackSoftLimitBytes,
		HardSizeLimitBytes:  DefaultHardSizeLimitBytes,
		HardChunkCountLimit: DefaultHardChunkCountLimit,
	}
	for i := range s.shards {
		s.shards[i] = newShardState()
	}
	for _, opt := range opts {
		opt(s)
	}

	for shard := 0; shard < shardCount; shard++ {
		if err := s.shards[shard].refreshKnownPacks(s.layout, byte(shard)); err != nil {
			return nil, fmt.Errorf("chunkstore: discover packs for shard %02x: %w", shard, err)
		}
	}

	if err := s.startProfiling(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases any resources Open acquired (currently only the
// profiling server/trace, if enabled). Open packs have no long-lived
// handles beyond ShardState.active, which Close does not seal — callers
// that want every pack sealed before exit must call SealAll first.
func (s *Store) Close() error {
	s.stopProfiling()
	return nil
}

// WriteChunk implements write_chunk (spec §4.8): encode, hash, dedupe
// against the active pack and every known on-disk pack in the shard,
// append, index, and return a ChunkRecord. Byte-identical duplicate
// writes succeed idempotently and return the original record.
func (s *Store) WriteChunk(data []byte, compression Compression) (ChunkRecord, error) {
	h := hashChunk(data)
	shard := h.Shard()

	var rec ChunkRecord
	err := s.layout.withShardLock(shard, func() error {
		ss := s.shards[shard]
		if err := ss.refreshKnownPacks(s.layout, shard); err != nil {
			return err
		}

		if e, _, ok := ss.findInActive(h); ok {
			rec = e.toRecord(ss.active.id)
			return nil
		}
		if e, id, ok, err := s.findOnDiskLocked(ss, shard, h); err != nil {
			return err
		} else if ok {
			rec = e.toRecord(id)
			return nil
		}

		payload, flags, err := encodeChunk(data, compression)
		if err != nil {
			return err
		}

		if err := s.ensureActiveLocked(ss, shard, uint32(len(payload))); err != nil {
			return err
		}

		offset, err := ss.active.dat.append(h, payload, flags)
		if err != nil {
			return err
		}
		entry := IndexEntry{Hash: h, Offset: offset, Length: uint32(len(payload)), Flags: flags}

		if err := ss.active.dat.fsync(); err != nil {
			_ = ss.active.dat.truncate(offset)
			return err
		}
		if err := ss.active.idx.insert(entry, ss.active.id); err != nil {
			// Rewind the .dat tail so a failed index insertion never
			// leaves an orphaned-but-indexable entry behind (SPEC_FULL.md,
			// supplemented feature 2).
			_ = ss.active.dat.truncate(offset)
			return err
		}
		ss.active.stats.apply(uint32(len(data)), uint32(len(payload)))

		rec = entry.toRecord(ss.active.id)
		return nil
	})
	return rec, err
}

// findOnDiskLocked scans every known pack for shard looking for hash. It
// must run with the shard lock held, mirroring the write path's dedupe
// check against Locator §4.6 step 5 so that WriteChunk and LocateChunk
// agree on what "already present" means.
func (s *Store) findOnDiskLocked(ss *shardState, shard byte, hash ChunkHash) (IndexEntry, PackID, bool, error) {
	e, _, id, ok, err := locateInPacks(s.layout, s.cache, shard, ss.allPackIDs(), hash)
	return e, id, ok, err
}

// ensureActiveLocked creates a new active pack if the shard has none, or
// rotates (seals) the current one first if appending nextPayloadLen bytes
// would cross the configured hard limits (SPEC_FULL.md, supplemented
// feature 1). Must run with the shard lock held.
func (s *Store) ensureActiveLocked(ss *shardState, shard byte, nextPayloadLen uint32) error {
	if ss.active != nil && s.shouldRotateLocked(ss, nextPayloadLen) {
		if err := s.sealActiveLocked(ss); err != nil {
			return err
		}
	}
	if ss.active != nil {
		return nil
	}

	if reopened, err := s.reopenExistingActiveLocked(ss, shard); err != nil {
		return err
	} else if reopened {
		return nil
	}

	number := ss.allocateNewPackNumber()
	id := PackID{Shard: shard, Number: number}
	datPath, idxPath, err := s.layout.packPaths(id)
	if err != nil {
		return err
	}
	dat, err := createPackWriter(datPath)
	if err != nil {
		return err
	}
	idx, err := createIndexFile(idxPath)
	if err != nil {
		dat.close()
		return err
	}
	ss.knownPackIDs[number] = struct{}{}
	ss.active = &activePack{id: id, dat: dat, idx: idx}
	return nil
}

// reopenExistingActiveLocked looks for the highest-numbered known pack
// that is still unsealed on disk — left behind by a prior run of this
// process that exited (or crashed) before sealing it — and resumes
// writing to it instead of allocating a new pack number. This keeps a
// shard from accumulating one pack per process lifetime when a store is
// repeatedly reopened against the same root. Reports whether it reopened
// a pack.
func (s *Store) reopenExistingActiveLocked(ss *shardState, shard byte) (bool, error) {
	ids := ss.allPackIDs()
	if len(ids) == 0 {
		return false, nil
	}
	number := ids[len(ids)-1]
	id := PackID{Shard: shard, Number: number}
	datPath, idxPath, err := s.layout.packPaths(id)
	if err != nil {
		return false, err
	}

	entries, sealed, err := readIndexEntries(idxPath)
	if err != nil || sealed {
		// Missing .idx, unreadable, or already sealed: nothing to resume.
		return false, nil
	}

	dat, err := openPackWriter(datPath)
	if err != nil {
		return false, err
	}
	idx, err := openIndexFile(idxPath)
	if err != nil {
		dat.close()
		return false, err
	}

	var stats packStats
	for _, e := range entries {
		// The original uncompressed length isn't recoverable from the
		// index alone without decompressing every entry, so LogicalBytes
		// is left at zero for a reopened pack; it is only reported through
		// ShardStats, and the rotation thresholds do not read it.
		stats.ChunkCount++
		stats.PhysicalBytes += chunkEntryFixedSize + uint64(e.Length)
	}

	ss.active = &activePack{id: id, dat: dat, idx: idx, stats: stats}
	return true, nil
}

func (s *Store) shouldRotateLocked(ss *shardState, nextPayloadLen uint32) bool {
	projected := uint64(ss.active.dat.size) + chunkEntryFixedSize + uint64(nextPayloadLen)
	if s.HardSizeLimitBytes > 0 && projected > s.HardSizeLimitBytes {
		return true
	}
	if s.HardChunkCountLimit > 0 && ss.active.stats.ChunkCount+1 > s.HardChunkCountLimit {
		return true
	}
	if s.PackSoftLimitBytes > 0 && uint64(ss.active.dat.size) >= s.PackSoftLimitBytes {
		return true
	}
	return false
}

// LocateChunk implements locate_chunk (spec §4.6): returns the matching
// IndexEntry and the .dat path it lives in, without reading chunk bytes.
func (s *Store) LocateChunk(hash ChunkHash) (IndexEntry, string, error) {
	shard := hash.Shard()
	ss := s.shards[shard]

	var (
		entry   IndexEntry
		datPath string
		found   bool
		ids     []uint32
	)
	err := s.layout.withShardLock(shard, func() error {
		if err := ss.refreshKnownPacks(s.layout, shard); err != nil {
			return err
		}
		if e, path, ok := ss.findInActive(hash); ok {
			entry, datPath, found = e, path, true
			return nil
		}
		ids = ss.allPackIDs()
		return nil
	})
	if err != nil {
		return IndexEntry{}, "", err
	}
	if found {
		return entry, datPath, nil
	}

	// The on-disk scan itself must run unlocked (spec §4.6 steps 4-5); the
	// pack-id snapshot above was still taken under the lock.
	e, path, _, ok, err := locateInPacks(s.layout, s.cache, shard, ids, hash)
	if err != nil {
		return IndexEntry{}, "", err
	}
	if !ok {
		return IndexEntry{}, "", ErrChunkNotFound
	}
	return e, path, nil
}

// ReadChunk implements read_chunk (spec §6): locate, read the raw
// ChunkEntry bytes at the recorded offset, and decode (decompress +
// integrity-check) them.
func (s *Store) ReadChunk(hash ChunkHash) ([]byte, error) {
	entry, datPath, err := s.LocateChunk(hash)
	if err != nil {
		return nil, err
	}

	shard := hash.Shard()
	ss := s.shards[shard]

	var payload []byte
	var flags uint16
	err = s.layout.withShardLock(shard, func() error {
		if ss.active == nil || ss.active.dat.path != datPath {
			return nil // not the active pack; read it unlocked below.
		}
		var readErr error
		payload, flags, _, readErr = readChunkEntryAtActive(ss.active.dat.file, ss.active.dat.size, entry.Offset, entry.Length, ss.active.id)
		return readErr
	})
	if err != nil {
		return nil, err
	}

	if payload == nil {
		id := packIDFromDatPath(datPath, shard)
		var readErr error
		payload, flags, _, readErr = readChunkEntryAt(datPath, entry.Offset, entry.Length, id)
		if readErr != nil {
			return nil, readErr
		}
	}

	return decodeChunk(payload, flags, hash)
}

// packIDFromDatPath recovers the PackID from a .dat path, purely for
// building a PackID to attach to error messages; datPath always comes
// from this Store's own layout, whose packBaseName is "pack-%06d".
func packIDFromDatPath(datPath string, shard byte) PackID {
	base := filepath.Base(datPath)
	base = strings.TrimSuffix(base, ".dat")
	base = strings.TrimPrefix(base, "pack-")
	n, _ := strconv.ParseUint(base, 10, 32)
	return PackID{Shard: shard, Number: uint32(n)}
}

// SealActive implements seal_active (spec §4.7): seals the shard's
// current active pack and clears ShardState.active. Returns
// ErrNoActivePack if the shard has none.
func (s *Store) SealActive(shard byte) error {
	ss := s.shards[shard]
	return s.layout.withShardLock(shard, func() error {
		return s.sealActiveLocked(ss)
	})
}

func (s *Store) sealActiveLocked(ss *shardState) error {
	if ss.active == nil {
		return ErrNoActivePack
	}
	datPath := ss.active.dat.path
	idxPath := ss.active.idx.path
	id := ss.active.id

	if err := ss.active.dat.fsync(); err != nil {
		return err
	}
	if err := ss.active.dat.close(); err != nil {
		return err
	}
	if err := sealPack(datPath, idxPath, id); err != nil {
		return err
	}
	ss.active = nil
	return nil
}

// SealAll seals every shard's active pack, if any. It continues past
// ErrNoActivePack for individual shards and returns the first other error
// encountered, if any, after attempting every shard.
func (s *Store) SealAll() error {
	var firstErr error
	for shard := 0; shard < shardCount; shard++ {
		if err := s.SealActive(byte(shard)); err != nil && err != ErrNoActivePack {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// VerifyPack recomputes and checks the trailing CRC-32 of both files of a
// sealed pack, the maintenance-time check spec §8's crash-scenario 6
// describes ("sealed-file CRC will also report mismatch"). It is not run
// automatically on every read — ReadChunk already checks the BLAKE3 of
// each decoded chunk against the requested hash — but gives operators a
// way to sweep for bit rot across whole packs.
func (s *Store) VerifyPack(id PackID) error {
	datPath, idxPath, err := s.layout.packPaths(id)
	if err != nil {
		return err
	}
	if _, err := verifySealedFileCRC(idxPath); err != nil {
		return fmt.Errorf("chunkstore: verify index for %s: %w", id, err)
	}
	if _, err := verifySealedFileCRC(datPath); err != nil {
		return fmt.Errorf("chunkstore: verify pack %s: %w", id, err)
	}
	return nil
}

// ShardStats reports the active pack's running totals for shard, or the
// zero value if the shard has no active pack (SPEC_FULL.md, supplemented
// feature 3).
func (s *Store) ShardStats(shard byte) packStats {
	ss := s.shards[shard]
	var stats packStats
	_ = s.layout.withShardLock(shard, func() error {
		if ss.active != nil {
			stats = ss.active.stats
		}
		return nil
	})
	return stats
}
