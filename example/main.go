package main

import (
	"fmt"
	"log"
	"os"

	chunkstore "github.com/ahrav/go-chunkstore"
)

func main() {
	fmt.Println("=== Chunk Store Example ===")
	fmt.Println()

	root, err := os.MkdirTemp("", "chunkstore-example-")
	if err != nil {
		log.Fatal("create temp dir:", err)
	}
	defer os.RemoveAll(root)

	store, err := chunkstore.Open(root)
	if err != nil {
		log.Fatal("open store:", err)
	}
	defer store.Close()

	demonstrateWriteAndRead(store)
	fmt.Println()
	demonstrateIdempotentWrite(store)
	fmt.Println()
	demonstrateCompression(store)
	fmt.Println()
	demonstrateSeal(store)
}

func demonstrateWriteAndRead(store *chunkstore.Store) {
	fmt.Println("--- Write and read ---")

	data := []byte("hello world")
	rec, err := store.WriteChunk(data, chunkstore.CompressionNone)
	if err != nil {
		log.Fatal("write chunk:", err)
	}
	fmt.Printf("wrote chunk hash=%s pack=%s offset=%d length=%d\n", rec.Hash, rec.Pack, rec.Offset, rec.Length)

	got, err := store.ReadChunk(rec.Hash)
	if err != nil {
		log.Fatal("read chunk:", err)
	}
	fmt.Printf("read back: %q\n", got)
}

func demonstrateIdempotentWrite(store *chunkstore.Store) {
	fmt.Println("--- Idempotent duplicate write ---")

	data := []byte("hello world")
	first, err := store.WriteChunk(data, chunkstore.CompressionNone)
	if err != nil {
		log.Fatal("write chunk:", err)
	}
	second, err := store.WriteChunk(data, chunkstore.CompressionNone)
	if err != nil {
		log.Fatal("write chunk again:", err)
	}
	fmt.Printf("first=%+v second=%+v (identical: %v)\n", first, second, first == second)
}

func demonstrateCompression(store *chunkstore.Store) {
	fmt.Println("--- LZ4 compression ---")

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 7) // compressible, repetitive content.
	}
	rec, err := store.WriteChunk(data, chunkstore.CompressionLZ4)
	if err != nil {
		log.Fatal("write compressed chunk:", err)
	}
	fmt.Printf("wrote %d raw bytes as %d-byte LZ4 payload (compression=%v)\n", len(data), rec.Length, rec.Compression())

	got, err := store.ReadChunk(rec.Hash)
	if err != nil {
		log.Fatal("read compressed chunk:", err)
	}
	fmt.Printf("decompressed round-trip matches input: %v\n", string(got) == string(data))
}

func demonstrateSeal(store *chunkstore.Store) {
	fmt.Println("--- Sealing ---")

	hash, err := chunkstore.ParseChunkHash("d74981efa70a0c880b8d8c1985d075dbcbf679b99a5f9914e5aac65e5d4d4f7")
	if err != nil {
		log.Fatal("parse hash:", err)
	}

	if err := store.SealActive(hash.Shard()); err != nil {
		fmt.Printf("seal shard %02x: %v\n", hash.Shard(), err)
		return
	}
	fmt.Printf("sealed active pack for shard %02x\n", hash.Shard())
}
