package chunkstore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by package-level helpers. Wrapped errors use
// %w so callers can still errors.Is against these.
var (
	// ErrChunkNotFound is returned by ReadChunk/LocateChunk when no pack
	// in the chunk's shard holds a matching entry.
	ErrChunkNotFound = errors.New("chunkstore: chunk not found")

	// ErrSealed is a policy error returned when a write or insert is
	// attempted against a pack or index that has already been sealed.
	ErrSealed = errors.New("chunkstore: pack already sealed")

	// ErrNoActivePack is a policy error returned by SealActive when the
	// shard has no active pack to seal.
	ErrNoActivePack = errors.New("chunkstore: no active pack for shard")

	// ErrChunkTooLarge is a policy error returned when a chunk's payload
	// does not fit the u32 length field of a ChunkEntry.
	ErrChunkTooLarge = errors.New("chunkstore: chunk exceeds maximum size")

	// ErrShardPoisoned is returned when a prior goroutine panicked while
	// holding the shard's lock. The shard is unusable until restart.
	ErrShardPoisoned = errors.New("chunkstore: shard lock poisoned")

	// ErrIndexOutOfOrder is a corruption error: an .idx file's entries
	// are not strictly ascending by hash.
	ErrIndexOutOfOrder = errors.New("chunkstore: index entries not strictly ascending")

	// ErrIntegrityMismatch is a corruption error: a chunk's BLAKE3 does
	// not match the hash recorded for it.
	ErrIntegrityMismatch = errors.New("chunkstore: chunk hash mismatch")

	// ErrHashCollision is a corruption error: the same hash is mapped to
	// two different byte sequences. This must be treated as catastrophic
	// data corruption, never silently resolved.
	ErrHashCollision = errors.New("chunkstore: hash collision detected")
)

// CorruptionError names the pack and the specific check that failed. All
// corruption detected by the core is surfaced through this type so that
// callers can log the offending artifact without parsing error strings.
type CorruptionError struct {
	Pack   PackID
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("chunkstore: corruption in pack %s: %s", e.Pack, e.Detail)
}

func newCorruptionError(pack PackID, format string, args ...any) *CorruptionError {
	return &CorruptionError{Pack: pack, Detail: fmt.Sprintf(format, args...)}
}

// FormatError reports a magic/version mismatch or a short read inside a
// fixed-size header.
type FormatError struct {
	Path   string
	Detail string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("chunkstore: format error in %s: %s", e.Path, e.Detail)
}

func newFormatError(path, format string, args ...any) *FormatError {
	return &FormatError{Path: path, Detail: fmt.Sprintf(format, args...)}
}

// PolicyError reports a caller misuse the core refuses to perform, such as
// writing to a sealed pack.
type PolicyError struct {
	Op     string
	Detail string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("chunkstore: policy error in %s: %s", e.Op, e.Detail)
}

func newPolicyError(op, format string, args ...any) *PolicyError {
	return &PolicyError{Op: op, Detail: fmt.Sprintf(format, args...)}
}
