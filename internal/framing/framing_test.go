package framing

import (
	"bytes"
	"testing"
)

func strPtr(s string) *string { return &s }

func allVariants() []PeerMessage {
	relPath := strPtr("my-project/src/main.rs")
	return []PeerMessage{
		NewFileOffer([]FileInfo{
			{Name: "hello.txt", Size: 65536},
			{Name: "main.rs", Size: 1024, RelativePath: relPath},
		}),
		NewFileAccept(),
		NewFileDecline(),
		NewFileChunk(0, 3, []byte("ciphertext-bytes"), [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}),
		NewFileComplete(0, [32]byte{0xAA, 0xBB}),
		NewFileVerified(0),
		NewTransferComplete(),
		NewCancel("user requested cancellation"),
		NewPing(),
		NewPong(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, m := range allVariants() {
		encoded, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%v): %v", m.Type, err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%v): %v", m.Type, err)
		}
		reencoded, err := Encode(decoded)
		if err != nil {
			t.Fatalf("re-Encode(%v): %v", m.Type, err)
		}
		if !bytes.Equal(encoded, reencoded) {
			t.Fatalf("%v: re-encoding did not match original", m.Type)
		}
	}
}

func TestWriteReadMessage(t *testing.T) {
	var buf bytes.Buffer
	for _, m := range allVariants() {
		if err := WriteMessage(&buf, m); err != nil {
			t.Fatalf("WriteMessage(%v): %v", m.Type, err)
		}
	}
	for _, want := range allVariants() {
		got, err := ReadMessage(&buf)
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if got.Type != want.Type {
			t.Fatalf("type mismatch: got %v want %v", got.Type, want.Type)
		}
	}
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)
	if _, err := ReadMessage(&buf); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestFileChunkPreservesFixedSizeFields(t *testing.T) {
	nonce := [12]byte{9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 10, 11}
	m := NewFileChunk(5, 42, []byte("payload"), nonce)

	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Nonce) != 12 {
		t.Fatalf("nonce length = %d, want 12", len(decoded.Nonce))
	}
	if decoded.Nonce12() != nonce {
		t.Fatalf("nonce mismatch: got %x want %x", decoded.Nonce12(), nonce)
	}
	if decoded.FileIndex != 5 || decoded.ChunkIndex != 42 {
		t.Fatalf("index mismatch: got file=%d chunk=%d", decoded.FileIndex, decoded.ChunkIndex)
	}
}
