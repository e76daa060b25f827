//go:build go1.22
// +build go1.22

package chunkstore

import "unsafe"

// copyMemory is a fast memory copy used when serializing the in-memory
// index-entry array to its on-disk byte layout (see index.go).
//
//go:linkname copyMemory runtime.memmove
//go:noescape
func copyMemory(to, from unsafe.Pointer, n int)
