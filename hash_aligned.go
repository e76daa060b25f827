//go:build !arm || arm64
// +build !arm arm64

package chunkstore

import "unsafe"

// Uint64 returns the first eight bytes of h as an implementation-native
// uint64, for use as a cheap map-sharding key. This version uses an unsafe
// cast on architectures where unaligned word loads are safe.
func (h ChunkHash) Uint64() uint64 { return *(*uint64)(unsafe.Pointer(&h[0])) }
