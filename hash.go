package chunkstore

import (
	"encoding/hex"
	"fmt"
	"unsafe"
)

// hostLittle reports whether the running process is little-endian. All
// on-disk integers are little-endian regardless (see spec §6); this flag
// only decides which byte order the ARM build of Uint64
// (hash_unaligned.go) reads the first eight bytes in.
var hostLittle = func() bool {
	var i uint16 = 1
	return *(*byte)(unsafe.Pointer(&i)) == 1
}()

// ParseChunkHash converts the canonical 64-character hex digest of a BLAKE3
// hash into its raw 32-byte representation.
//
// An error is returned when the input is not exactly 64 bytes long or
// cannot be decoded as hexadecimal. The zero ChunkHash never corresponds to
// a real chunk and is therefore safe to use as a sentinel in maps.
func ParseChunkHash(s string) (ChunkHash, error) {
	var h ChunkHash
	if len(s) != hashSize*2 {
		return h, fmt.Errorf("chunkstore: invalid hash length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}
