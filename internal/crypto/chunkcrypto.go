package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTampered is returned by ChunkDecryptor.Decrypt when the authentication
// tag does not verify: either the ciphertext was modified in transit or the
// wrong key was used.
var ErrTampered = errors.New("tampered or wrong key")

// ChunkEncryptor encrypts a sequence of plaintext chunks under one AES-256
// key, deriving a fresh 12-byte nonce for every chunk from a random 4-byte
// prefix (chosen once, at construction) concatenated with an 8-byte
// big-endian counter that starts at zero and increments on every call to
// Encrypt. Exactly one ChunkEncryptor must be used per file, each with its
// own random prefix; within one encryptor the counter never repeats.
type ChunkEncryptor struct {
	key     []byte
	prefix  [4]byte
	counter uint64
}

// NewChunkEncryptor constructs a ChunkEncryptor for the given 32-byte key,
// generating a fresh random nonce prefix.
func NewChunkEncryptor(key []byte) (*ChunkEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	e := &ChunkEncryptor{key: key}
	if _, err := rand.Read(e.prefix[:]); err != nil {
		return nil, fmt.Errorf("generate nonce prefix: %w", err)
	}
	return e, nil
}

// Encrypt seals plaintext and returns the ciphertext (with the 16-byte GCM
// tag appended) along with the 12-byte nonce used, then advances the
// internal counter. AAD is always empty.
func (e *ChunkEncryptor) Encrypt(plaintext []byte) (ciphertext []byte, nonce [12]byte, err error) {
	nonce = e.nextNonce()
	ct, err := Seal(e.key, nonce[:], nil, plaintext)
	if err != nil {
		return nil, nonce, err
	}
	return ct, nonce, nil
}

func (e *ChunkEncryptor) nextNonce() [12]byte {
	var nonce [12]byte
	copy(nonce[0:4], e.prefix[:])
	binary.BigEndian.PutUint64(nonce[4:12], e.counter)
	e.counter++
	return nonce
}

// ChunkDecryptor decrypts chunks under one AES-256 key. It is stateless
// with respect to any counter: the nonce accompanying each chunk on the
// wire is authoritative.
type ChunkDecryptor struct {
	key []byte
}

// NewChunkDecryptor constructs a ChunkDecryptor for the given 32-byte key.
func NewChunkDecryptor(key []byte) (*ChunkDecryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	return &ChunkDecryptor{key: key}, nil
}

// Decrypt authenticates and decrypts ciphertext using the given nonce.
// Any failure (tampering or wrong key) returns ErrTampered.
func (d *ChunkDecryptor) Decrypt(ciphertext []byte, nonce [12]byte) ([]byte, error) {
	pt, err := Open(d.key, nonce[:], nil, ciphertext)
	if err != nil {
		return nil, ErrTampered
	}
	return pt, nil
}
