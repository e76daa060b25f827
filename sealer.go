// sealer.go implements Sealer (spec §4.4 "Seal" and §4.7): the
// pack -> sealed-pack state transition. Sealing is irreversible: once a
// pack is sealed its .dat and .idx are never rewritten again, only CRC
// -verified and read.
package chunkstore

import (
	"fmt"
	"os"
)

// sealPack validates an active pack's .idx against its .dat, then writes
// CRC-32 trailers to both files and marks them read-only. It is the only
// place invariants 2-5 (spec §3) are checked exhaustively rather than
// incrementally.
func sealPack(datPath, idxPath string, id PackID) error {
	entries, sealed, err := readIndexEntries(idxPath)
	if err != nil {
		return err
	}
	if sealed {
		return fmt.Errorf("%w: %w", ErrSealed, newPolicyError("sealPack", "%s is already sealed", idxPath))
	}

	datInfo, err := os.Stat(datPath)
	if err != nil {
		return err
	}
	datSize := datInfo.Size()

	if err := validatePackAgainstIndex(datPath, datSize, entries, id); err != nil {
		return err
	}

	if err := sealFile(idxPath, indexHeaderSize+int64(len(entries))*indexEntrySize); err != nil {
		return fmt.Errorf("chunkstore: seal index %s: %w", idxPath, err)
	}
	if err := sealFile(datPath, datSize); err != nil {
		return fmt.Errorf("chunkstore: seal pack %s: %w", datPath, err)
	}
	return nil
}

// validatePackAgainstIndex checks spec invariants 1-4 for every entry:
// ascending-and-unique hashes (already enforced by readIndexEntries),
// in-bounds offsets, and on-disk len/flags/hash agreement with the index.
func validatePackAgainstIndex(datPath string, datSize int64, entries []IndexEntry, id PackID) error {
	f, err := os.Open(datPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if datSize < packHeaderSize {
		return newCorruptionError(id, "pack %s shorter than its header", datPath)
	}
	var hdr [packHeaderSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return err
	}
	if magic := le32(hdr[0:4]); magic != packMagic {
		return newFormatError(datPath, "bad pack magic %#08x", magic)
	}

	for _, e := range entries {
		end := e.Offset + chunkEntryFixedSize + uint64(e.Length)
		if e.Offset < packHeaderSize || end > uint64(datSize) {
			return newCorruptionError(id, "entry %s offset %d length %d out of pack bounds", e.Hash, e.Offset, e.Length)
		}
		fixed := make([]byte, chunkEntryFixedSize)
		if _, err := f.ReadAt(fixed, int64(e.Offset)); err != nil {
			return err
		}
		onDiskLen := le32(fixed[0:4])
		onDiskFlags := le16(fixed[4:6])
		var onDiskHash ChunkHash
		copy(onDiskHash[:], fixed[6:6+hashSize])
		if onDiskLen != e.Length {
			return newCorruptionError(id, "entry %s: on-disk len %d != index length %d", e.Hash, onDiskLen, e.Length)
		}
		if onDiskFlags != e.Flags {
			return newCorruptionError(id, "entry %s: on-disk flags %#04x != index flags %#04x", e.Hash, onDiskFlags, e.Flags)
		}
		if onDiskHash != e.Hash {
			return newCorruptionError(id, "entry %s: on-disk hash %s != index hash", e.Hash, onDiskHash)
		}
	}
	return nil
}

// sealFile appends a CRC-32 trailer over the file's first contentLen
// bytes, fsyncs, and marks the file read-only (0o444).
func sealFile(path string, contentLen int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}

	crc, err := crc32OfFile(f, contentLen)
	if err != nil {
		f.Close()
		return err
	}
	var trailer [packTrailerSize]byte
	putLE32(trailer[:], crc)
	if _, err := f.WriteAt(trailer[:], contentLen); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chmod(path, 0o444)
}
