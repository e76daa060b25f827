// Package chunkstore implements the content-addressed chunk store that
// underlies a centralized version-control system for large binary assets.
//
// The store owns the only raw bytes that ever touch disk: higher-level
// entities (branches, changelists, file revisions, workspaces) live in an
// external metadata store and reference immutable chunks by BLAKE3 hash.
// This package never interprets chunk contents — a chunk is an opaque byte
// string addressed whole.
//
// IMPLEMENTATION:
// Chunks are grouped into 256 hash-prefix shards, each holding a sequence
// of packs — a (pack-NNNNNN.dat, pack-NNNNNN.idx) pair. Within a shard,
// at most one pack is "active" (mutable, appendable) per process; all
// others are sealed (immutable, CRC-protected). Writes append to the
// active pack's .dat and insert a sorted entry into its .idx via an
// atomic temp-file rename; reads binary-search each shard's .idx files in
// turn. One mutex per shard serializes writers and allows
// concurrent on-disk lookups across shards and, for most of each read, within
// a shard too.
package chunkstore

import "fmt"

// ChunkHash is the BLAKE3-256 digest of a chunk's uncompressed bytes. The
// first byte selects the chunk's shard.
type ChunkHash [32]byte

// String renders the hash as lowercase hex, matching the canonical form
// used in pack/index on-disk dumps and error messages.
func (h ChunkHash) String() string { return fmt.Sprintf("%x", h[:]) }

// Shard returns the shard byte (the hash's first byte) this chunk belongs to.
func (h ChunkHash) Shard() byte { return h[0] }

// Compression names the per-chunk payload encoding. It is a closed, tagged
// variant rather than an interface — adding an algorithm means adding a
// variant and a flag bit, not a new implementation of some codec interface.
type Compression uint16

const (
	// CompressionNone stores the chunk's raw bytes verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 stores the chunk as an LZ4 frame of the raw bytes.
	CompressionLZ4 Compression = 1
)

// flagCompressionBit is the bit within ChunkEntry/IndexEntry flags that
// records the compression algorithm. Bits 1..15 are reserved and must be
// zero on write; readers ignore them.
const flagCompressionBit = 1 << 0

func flagsForCompression(c Compression) uint16 {
	if c == CompressionLZ4 {
		return flagCompressionBit
	}
	return 0
}

func compressionFromFlags(flags uint16) Compression {
	if flags&flagCompressionBit != 0 {
		return CompressionLZ4
	}
	return CompressionNone
}

// PackID identifies a pack uniquely within the store: a shard byte plus a
// monotonically increasing number unique within that shard.
type PackID struct {
	Shard  byte
	Number uint32
}

func (p PackID) String() string { return fmt.Sprintf("shard-%02x/pack-%06d", p.Shard, p.Number) }

// ChunkRecord is the in-memory handle returned to the caller after a
// successful write. It carries everything needed to re-locate the chunk
// without consulting the index again.
type ChunkRecord struct {
	Hash   ChunkHash
	Pack   PackID
	Offset uint64
	Length uint32
	Flags  uint16
}

// Compression reports the encoding recorded in the record's flags.
func (r ChunkRecord) Compression() Compression { return compressionFromFlags(r.Flags) }

// On-disk format constants (see spec §6, "External interfaces").
const (
	packMagic   uint32 = 0x43525642 // "CRVB"
	packVersion uint16 = 0x0001

	// packHeaderSize is the 10-byte fixed pack header: magic(4) + version(2) + reserved(4).
	packHeaderSize = 10

	// chunkEntryFixedSize is the fixed portion of a ChunkEntry:
	// len(4) + flags(2) + hash(32) = 38 bytes, preceding the variable data.
	chunkEntryFixedSize = 38

	packTrailerSize = 4 // CRC32

	indexMagic   uint32 = 0x43525649 // "CRVI"
	indexVersion uint16 = 0x0001

	// indexHeaderSize is magic(4) + version(2) + reserved(4) + entry_count(8) = 18 bytes.
	indexHeaderSize = 18

	// indexEntrySize is hash(32) + offset(8) + length(4) + flags(2) = 46 bytes.
	indexEntrySize = 46

	indexTrailerSize = 4 // CRC32

	hashSize = 32

	shardCount = 256
)

// IndexEntry is the fixed-size on-disk record stored in a .idx file.
type IndexEntry struct {
	Hash   ChunkHash
	Offset uint64
	Length uint32
	Flags  uint16
}

func (e IndexEntry) toRecord(pack PackID) ChunkRecord {
	return ChunkRecord{Hash: e.Hash, Pack: pack, Offset: e.Offset, Length: e.Length, Flags: e.Flags}
}
