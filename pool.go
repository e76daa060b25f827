// pool.go centralizes the sync.Pool instances the store uses to avoid
// reallocating scratch buffers on hot paths.
package chunkstore

import (
	"bytes"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// lz4WriterPool reuses *lz4.Writer instances across ChunkCodec.Encode
// calls, the same way the teacher's zrPool reuses zlib.Reader instances
// across delta hops.
var lz4WriterPool = sync.Pool{New: func() any { return lz4.NewWriter(nil) }}

func getLZ4Writer() *lz4.Writer { return lz4WriterPool.Get().(*lz4.Writer) }

func putLZ4Writer(w *lz4.Writer) { lz4WriterPool.Put(w) }

// serializeBufPool reuses the intermediate bytes.Buffer ChunkCodec.Encode
// writes an LZ4 frame into before copying the result out for the caller.
var serializeBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func getSerializeBuf() *bytes.Buffer {
	b := serializeBufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func putSerializeBuf(b *bytes.Buffer) { serializeBufPool.Put(b) }
