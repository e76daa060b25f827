// packwriter.go implements PackWriter (spec §4.3): the append cursor for
// an active pack's .dat file.
package chunkstore

import (
	"fmt"
	"os"
)

// packWriter owns the single *os.File handle for an active, unsealed
// pack's .dat file and tracks its length so every append is an O(1)
// write at a known offset rather than an lseek-to-end.
//
// Not safe for concurrent use by itself — callers serialize access via the
// owning shard's lock.
type packWriter struct {
	file *os.File
	path string
	size int64 // current file length, including the header.
}

// createPackWriter creates a new .dat file at path with the fixed 10-byte
// pack header and returns a writer positioned at the end (i.e. right after
// the header).
func createPackWriter(path string) (*packWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: create pack %s: %w", path, err)
	}
	var hdr [packHeaderSize]byte
	putLE32(hdr[0:4], packMagic)
	putLE16(hdr[4:6], packVersion)
	putLE32(hdr[6:10], 0)
	if _, err := f.Write(hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("chunkstore: write pack header %s: %w", path, err)
	}
	return &packWriter{file: f, path: path, size: packHeaderSize}, nil
}

// openPackWriter reopens an existing, unsealed .dat file for continued
// appends, verifying its header and trusting the on-disk length as the
// append cursor.
func openPackWriter(path string) (*packWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open pack %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := verifyPackHeader(f, path); err != nil {
		f.Close()
		return nil, err
	}
	return &packWriter{file: f, path: path, size: st.Size()}, nil
}

func verifyPackHeader(f *os.File, path string) error {
	var hdr [packHeaderSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("chunkstore: read pack header %s: %w", path, err)
	}
	if magic := le32(hdr[0:4]); magic != packMagic {
		return newFormatError(path, "bad pack magic %#08x", magic)
	}
	if version := le16(hdr[4:6]); version != packVersion {
		return newFormatError(path, "unsupported pack version %#04x", version)
	}
	return nil
}

// append writes a ChunkEntry {len, flags, hash, data} at the current end of
// the file and returns the byte offset of the entry's first byte (its len
// field). The caller must ensure the pack is not sealed.
func (w *packWriter) append(hash ChunkHash, payload []byte, flags uint16) (offset uint64, err error) {
	if len(payload) > 1<<32-1 {
		return 0, fmt.Errorf("%w: payload is %d bytes", ErrChunkTooLarge, len(payload))
	}

	entry := make([]byte, chunkEntryFixedSize+len(payload))
	putLE32(entry[0:4], uint32(len(payload)))
	putLE16(entry[4:6], flags)
	copy(entry[6:6+hashSize], hash[:])
	copy(entry[6+hashSize:], payload)

	offset = uint64(w.size)
	if _, err := w.file.WriteAt(entry, w.size); err != nil {
		return 0, fmt.Errorf("chunkstore: append chunk to %s: %w", w.path, err)
	}
	w.size += int64(len(entry))
	return offset, nil
}

// truncate shrinks the file back to offset, discarding any bytes appended
// since. Used to roll back an append whose index insertion failed (see
// SPEC_FULL.md's "rewind on failed append").
func (w *packWriter) truncate(offset uint64) error {
	if err := w.file.Truncate(int64(offset)); err != nil {
		return fmt.Errorf("chunkstore: truncate pack %s: %w", w.path, err)
	}
	w.size = int64(offset)
	return nil
}

// fsync flushes the .dat file's data to the OS before any dependent .idx
// rename is allowed to make the new entry visible (spec §4.8 ordering rule).
func (w *packWriter) fsync() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("chunkstore: fsync pack %s: %w", w.path, err)
	}
	return nil
}

func (w *packWriter) close() error { return w.file.Close() }
