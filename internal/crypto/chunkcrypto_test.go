package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return key
}

func TestChunkCryptoRoundTrip(t *testing.T) {
	key := randomKey(t)
	enc, err := NewChunkEncryptor(key)
	if err != nil {
		t.Fatalf("NewChunkEncryptor: %v", err)
	}
	dec, err := NewChunkDecryptor(key)
	if err != nil {
		t.Fatalf("NewChunkDecryptor: %v", err)
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ct, nonce, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(ct) != len(plaintext)+16 {
		t.Fatalf("ciphertext length = %d, want %d", len(ct), len(plaintext)+16)
	}

	pt, err := dec.Decrypt(ct, nonce)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("decrypted plaintext mismatch")
	}
}

func TestChunkCryptoSequentialNonces(t *testing.T) {
	key := randomKey(t)
	enc, err := NewChunkEncryptor(key)
	if err != nil {
		t.Fatalf("NewChunkEncryptor: %v", err)
	}
	dec, err := NewChunkDecryptor(key)
	if err != nil {
		t.Fatalf("NewChunkDecryptor: %v", err)
	}

	seen := make(map[[12]byte]bool)
	for i := 0; i < 100; i++ {
		data := []byte{byte(i)}
		ct, nonce, err := enc.Encrypt(data)
		if err != nil {
			t.Fatalf("Encrypt chunk %d: %v", i, err)
		}
		if seen[nonce] {
			t.Fatalf("nonce reused at chunk %d", i)
		}
		seen[nonce] = true

		pt, err := dec.Decrypt(ct, nonce)
		if err != nil {
			t.Fatalf("Decrypt chunk %d: %v", i, err)
		}
		if !bytes.Equal(pt, data) {
			t.Fatalf("chunk %d data mismatch", i)
		}
	}
}

func TestChunkCryptoTamperedCiphertext(t *testing.T) {
	key := randomKey(t)
	enc, _ := NewChunkEncryptor(key)
	dec, _ := NewChunkDecryptor(key)

	ct, nonce, err := enc.Encrypt([]byte("secret payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct[0] ^= 0x01

	if _, err := dec.Decrypt(ct, nonce); err == nil {
		t.Fatal("Decrypt should fail on tampered ciphertext")
	}
}

func TestChunkCryptoWrongKey(t *testing.T) {
	key := randomKey(t)
	wrongKey := randomKey(t)
	enc, _ := NewChunkEncryptor(key)
	dec, err := NewChunkDecryptor(wrongKey)
	if err != nil {
		t.Fatalf("NewChunkDecryptor: %v", err)
	}

	ct, nonce, err := enc.Encrypt([]byte("secret payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := dec.Decrypt(ct, nonce); err == nil {
		t.Fatal("Decrypt should fail with wrong key")
	}
}

func TestStreamingHashMatchesOneShot(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	chunkSizes := []int{1, 7, 256, 4096}

	for _, size := range chunkSizes {
		sh := NewStreamingHash()
		for off := 0; off < len(data); off += size {
			end := off + size
			if end > len(data) {
				end = len(data)
			}
			sh.Update(data[off:end])
		}
		got := sh.Finalize()

		oneShot := NewStreamingHash()
		oneShot.Update(data)
		want := oneShot.Finalize()

		if got != want {
			t.Fatalf("chunk size %d: streaming hash mismatch", size)
		}
	}
}
