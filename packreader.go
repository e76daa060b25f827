// packreader.go reads chunk bytes out of a .dat file given the offset and
// length an IndexEntry recorded. Sealed packs are read through a
// freshly-opened mmap handle (closed at the end of the call, per spec §5 —
// "no pooling in the core"), mirroring the teacher's store.go. The active,
// still-appended pack is read through a plain *os.File since mmap over a
// file whose length keeps changing is unsafe.
package chunkstore

import (
	"fmt"
	"os"

	"golang.org/x/exp/mmap"
)

// readChunkEntryAt validates and extracts the ChunkEntry at off inside
// datPath, which must hold length bytes of payload per the caller's
// IndexEntry. It returns the raw on-disk bytes (still possibly compressed)
// along with the flags recorded in the entry itself, so callers can check
// IndexEntry/ChunkEntry agreement (invariant 3).
func readChunkEntryAt(datPath string, off uint64, length uint32, pack PackID) (payload []byte, flags uint16, hash ChunkHash, err error) {
	r, err := mmap.Open(datPath)
	if err != nil {
		return nil, 0, ChunkHash{}, fmt.Errorf("chunkstore: open pack %s: %w", datPath, err)
	}
	defer r.Close()
	return readChunkEntryFromReaderAt(readerAtAdapter{r}, uint64(r.Len()), off, length, pack)
}

// readChunkEntryAtActive is the equivalent of readChunkEntryAt for a pack
// that is still the shard's active (unsealed, being appended to) pack.
func readChunkEntryAtActive(f *os.File, size int64, off uint64, length uint32, pack PackID) (payload []byte, flags uint16, hash ChunkHash, err error) {
	return readChunkEntryFromReaderAt(f, uint64(size), off, length, pack)
}

type readerAt interface {
	ReadAt(b []byte, off int64) (int, error)
}

// readerAtAdapter exists only so *mmap.ReaderAt and *os.File satisfy the
// same tiny local interface without pulling golang.org/x/exp/mmap's
// concrete type into every signature above.
type readerAtAdapter struct{ r *mmap.ReaderAt }

func (a readerAtAdapter) ReadAt(b []byte, off int64) (int, error) { return a.r.ReadAt(b, off) }

func readChunkEntryFromReaderAt(r readerAt, fileSize uint64, off uint64, length uint32, pack PackID) (payload []byte, flags uint16, hash ChunkHash, err error) {
	end := off + chunkEntryFixedSize + uint64(length)
	if off < packHeaderSize || end > fileSize {
		return nil, 0, ChunkHash{}, newCorruptionError(pack, "entry at offset %d (length %d) falls outside pack bounds [%d,%d)", off, length, packHeaderSize, fileSize)
	}

	fixed := make([]byte, chunkEntryFixedSize)
	if _, err := r.ReadAt(fixed, int64(off)); err != nil {
		return nil, 0, ChunkHash{}, fmt.Errorf("chunkstore: read chunk entry header: %w", err)
	}
	onDiskLen := le32(fixed[0:4])
	onDiskFlags := le16(fixed[4:6])
	var onDiskHash ChunkHash
	copy(onDiskHash[:], fixed[6:6+hashSize])

	if onDiskLen != length {
		return nil, 0, ChunkHash{}, newCorruptionError(pack, "entry at offset %d: on-disk len %d != index length %d", off, onDiskLen, length)
	}

	payload = make([]byte, length)
	if length > 0 {
		if _, err := r.ReadAt(payload, int64(off)+chunkEntryFixedSize); err != nil {
			return nil, 0, ChunkHash{}, fmt.Errorf("chunkstore: read chunk payload: %w", err)
		}
	}
	return payload, onDiskFlags, onDiskHash, nil
}
