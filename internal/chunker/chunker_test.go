package chunker

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return key
}

func writeTestFile(t *testing.T, dir string, size int) string {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	path := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestChunkerReassemblerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t)

	// two full chunks plus 1234 bytes, to exercise a short final chunk.
	src := writeTestFile(t, dir, ChunkSize*2+1234)
	want, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	ck, err := Open(src, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dst := filepath.Join(dir, "nested", "dest.bin")
	re, err := Create(dst, key)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	chunkCount := 0
	for {
		chunk, ok, err := ck.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if err := re.WriteChunk(chunk.Ciphertext, chunk.Nonce); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
		chunkCount++
	}
	if chunkCount != 3 {
		t.Fatalf("expected 3 chunks, got %d", chunkCount)
	}

	senderDigest, err := ck.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := re.Verify(senderDigest); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile dest: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("reassembled file does not match source")
	}
}

func TestReassemblerVerifyMismatch(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t)
	dst := filepath.Join(dir, "dest.bin")

	re, err := Create(dst, key)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	enc, err := Open(writeTestFile(t, dir, ChunkSize), key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	chunk, _, err := enc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := re.WriteChunk(chunk.Ciphertext, chunk.Nonce); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	var wrongDigest [32]byte
	wrongDigest[0] = 0xFF
	if err := re.Verify(wrongDigest); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestReassemblerAbortRemovesFile(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t)
	dst := filepath.Join(dir, "partial.bin")

	re, err := Create(dst, key)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	re.Abort()

	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatal("expected partial file to be removed after Abort")
	}
}
