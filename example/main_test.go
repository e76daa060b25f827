package main

import (
	"testing"

	chunkstore "github.com/ahrav/go-chunkstore"
)

func TestParseChunkHashExamples(t *testing.T) {
	validHashes := []string{
		"d74981efa70a0c880b8d8c1985d075dbcbf679b99a5f9914e5aac65e5d4d4f7",
		"0000000000000000000000000000000000000000000000000000000000000000000000000000", // deliberately wrong length, see below
	}

	hash, err := chunkstore.ParseChunkHash(validHashes[0])
	if err != nil {
		t.Fatalf("expected valid hash to parse: %v", err)
	}
	if hash.String() != validHashes[0] {
		t.Errorf("round-trip failed: got %s want %s", hash.String(), validHashes[0])
	}

	if _, err := chunkstore.ParseChunkHash(validHashes[1]); err == nil {
		t.Errorf("expected wrong-length hash to fail parsing")
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := chunkstore.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	data := []byte("hello world")
	rec, err := store.WriteChunk(data, chunkstore.CompressionNone)
	if err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	got, err := store.ReadChunk(rec.Hash)
	if err != nil {
		t.Fatalf("read chunk: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("round-trip mismatch: got %q want %q", got, data)
	}
}
