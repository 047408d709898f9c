package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeySize is returned when the provided key is not 32 bytes.
	ErrInvalidKeySize = errors.New("key must be exactly 32 bytes for AES-256")

	// ErrInvalidNonceSize is returned when the provided nonce is not 12 bytes.
	ErrInvalidNonceSize = errors.New("nonce must be exactly 12 bytes for GCM")

	// ErrAuthenticationFailed is returned when GCM tag verification fails.
	ErrAuthenticationFailed = errors.New("authentication failed: ciphertext has been tampered with")
)

// Seal encrypts and authenticates plaintext under key with AES-256-GCM,
// returning ciphertext with the 16-byte tag appended. ChunkEncryptor always
// passes a nil aad: §4.2's wire format has no associated data, since the
// nonce's embedded counter already orders chunks within a file.
//
// The caller owns nonce uniqueness: reusing a nonce under the same key
// breaks GCM's confidentiality and authenticity guarantees entirely.
func Seal(key []byte, nonce []byte, aad []byte, plaintext []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	if len(nonce) != 12 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidNonceSize, len(nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext (plaintext || 16-byte tag)
// under key and nonce. It returns ErrAuthenticationFailed — never partial
// plaintext — if the tag doesn't verify, whether from a tampered chunk or a
// wrong key.
func Open(key []byte, nonce []byte, aad []byte, ciphertext []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	if len(nonce) != 12 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidNonceSize, len(nonce))
	}
	if len(ciphertext) < 16 {
		return nil, errors.New("ciphertext too short (must be at least 16 bytes for tag)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}
