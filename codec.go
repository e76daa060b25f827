// codec.go implements ChunkCodec (spec §4.5): BLAKE3 hashing and optional
// LZ4 compression. The CRC-32 helpers of ChunkCodec live in crc.go.
//
// Compression uses the LZ4 *frame* format (github.com/pierrec/lz4/v4)
// rather than a raw block, resolving the open question spec.md §9 leaves:
// a frame is self-delimiting on decode (it carries its own end marker), so
// Decode never needs a separately stored "uncompressed length" — only the
// outer ChunkEntry.len, which bounds the compressed bytes, is needed to
// know where the payload ends inside the pack.
package chunkstore

import (
	"bytes"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// hashChunk returns the BLAKE3-256 digest of raw.
func hashChunk(raw []byte) ChunkHash {
	var h ChunkHash
	sum := blake3.Sum256(raw)
	copy(h[:], sum[:])
	return h
}

// encodeChunk compresses raw per c and returns the payload to store in a
// ChunkEntry along with the flags that record the choice. For
// CompressionNone the payload aliases raw; callers must not mutate it
// afterwards.
func encodeChunk(raw []byte, c Compression) (payload []byte, flags uint16, err error) {
	switch c {
	case CompressionNone:
		return raw, 0, nil
	case CompressionLZ4:
		w := getLZ4Writer()
		defer putLZ4Writer(w)
		buf := getSerializeBuf()
		defer putSerializeBuf(buf)
		w.Reset(buf)
		if _, err := w.Write(raw); err != nil {
			return nil, 0, fmt.Errorf("chunkstore: lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, 0, fmt.Errorf("chunkstore: lz4 compress: %w", err)
		}
		out := make([]byte, buf.Len())
		copy(out, buf.Bytes())
		return out, flagsForCompression(CompressionLZ4), nil
	default:
		return nil, 0, newPolicyError("encode", "unknown compression %d", c)
	}
}

// decodeChunk reverses encodeChunk and verifies the result hashes to
// expectedHash, returning ErrIntegrityMismatch wrapped with detail on
// mismatch.
func decodeChunk(payload []byte, flags uint16, expectedHash ChunkHash) ([]byte, error) {
	var raw []byte
	switch compressionFromFlags(flags) {
	case CompressionNone:
		raw = payload
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		decoded, err := decodeLZ4Frame(r)
		if err != nil {
			return nil, fmt.Errorf("chunkstore: lz4 decompress: %w", err)
		}
		raw = decoded
	default:
		return nil, newFormatError("", "unknown compression flags %#04x", flags)
	}

	got := hashChunk(raw)
	if got != expectedHash {
		return nil, fmt.Errorf("%w: got %s want %s", ErrIntegrityMismatch, got, expectedHash)
	}
	return raw, nil
}

func decodeLZ4Frame(r *lz4.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
