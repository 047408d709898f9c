// Package chunker turns a file on disk into a sequence of encrypted,
// checksummed chunks on the way out (Chunker), and turns that same sequence
// back into a file on disk on the way in (Reassembler).
package chunker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quantarax/relay/internal/crypto"
)

// ChunkSize is the fixed plaintext size of every chunk except possibly the
// last, which may be shorter.
const ChunkSize = 256 * 1024

// Chunk is one ciphertext unit produced by a Chunker, ready to be placed
// into a file_chunk PeerMessage.
type Chunk struct {
	Index      uint32
	Ciphertext []byte
	Nonce      [12]byte
}

// Chunker streams a file's plaintext through a ChunkEncryptor, chunk by
// chunk, while accumulating a running SHA-256 of the plaintext.
type Chunker struct {
	file      *os.File
	encryptor *crypto.ChunkEncryptor
	hash      *crypto.StreamingHash
	index     uint32
	buf       []byte
}

// Open prepares path for chunked, encrypted reading under the given
// session key. A fresh ChunkEncryptor is created here, so callers must
// open a new Chunker for every file and never reuse one across files.
func Open(path string, key []byte) (*Chunker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunker: open %s: %w", path, err)
	}
	enc, err := crypto.NewChunkEncryptor(key)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chunker: new encryptor: %w", err)
	}
	return &Chunker{
		file:      f,
		encryptor: enc,
		hash:      crypto.NewStreamingHash(),
		buf:       make([]byte, ChunkSize),
	}, nil
}

// Next reads and encrypts the next chunk. It returns (nil, false, nil) at
// EOF once every byte of the file has been consumed.
func (c *Chunker) Next() (*Chunk, bool, error) {
	n, err := io.ReadFull(c.file, c.buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, false, fmt.Errorf("chunker: read: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	plaintext := c.buf[:n]
	c.hash.Update(plaintext)

	ciphertext, nonce, encErr := c.encryptor.Encrypt(plaintext)
	if encErr != nil {
		return nil, false, fmt.Errorf("chunker: encrypt: %w", encErr)
	}

	chunk := &Chunk{Index: c.index, Ciphertext: ciphertext, Nonce: nonce}
	c.index++
	return chunk, true, nil
}

// Finalize returns the SHA-256 of every plaintext byte seen and closes the
// underlying file. It must be called exactly once, after Next has returned
// ok=false.
func (c *Chunker) Finalize() ([32]byte, error) {
	digest := c.hash.Finalize()
	if err := c.file.Close(); err != nil {
		return digest, fmt.Errorf("chunker: close: %w", err)
	}
	return digest, nil
}

// Reassembler writes decrypted chunks to a file in order, accumulating the
// same streaming SHA-256 the sender computed, so the two can be compared
// once the sender announces its digest in a file_complete message.
type Reassembler struct {
	file         *os.File
	decryptor    *crypto.ChunkDecryptor
	hash         *crypto.StreamingHash
	bytesWritten int64
	path         string
}

// Create opens (creating parent directories as needed) path for writing
// decrypted chunks under the given session key.
func Create(path string, key []byte) (*Reassembler, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("reassembler: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("reassembler: create %s: %w", path, err)
	}
	dec, err := crypto.NewChunkDecryptor(key)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reassembler: new decryptor: %w", err)
	}
	return &Reassembler{
		file:      f,
		decryptor: dec,
		hash:      crypto.NewStreamingHash(),
		path:      path,
	}, nil
}

// WriteChunk decrypts ciphertext under nonce, writes the plaintext, and
// folds it into the running checksum.
func (r *Reassembler) WriteChunk(ciphertext []byte, nonce [12]byte) error {
	plaintext, err := r.decryptor.Decrypt(ciphertext, nonce)
	if err != nil {
		return err
	}
	r.hash.Update(plaintext)
	n, err := r.file.Write(plaintext)
	if err != nil {
		return fmt.Errorf("reassembler: write: %w", err)
	}
	r.bytesWritten += int64(n)
	return nil
}

// BytesWritten returns the number of plaintext bytes written so far.
func (r *Reassembler) BytesWritten() int64 {
	return r.bytesWritten
}

// ErrChecksumMismatch is returned by Verify when the finalized digest
// doesn't match the sender's announced digest.
type ErrChecksumMismatch struct {
	Path     string
	Expected [32]byte
	Got      [32]byte
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("reassembler: checksum mismatch for %s: expected %x, got %x",
		e.Path, e.Expected[:4], e.Got[:4])
}

// Verify closes the file and compares the finalized local digest against
// expected (the sender's file_complete.sha256).
func (r *Reassembler) Verify(expected [32]byte) error {
	got := r.hash.Finalize()
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("reassembler: close: %w", err)
	}
	if got != expected {
		return &ErrChecksumMismatch{Path: r.path, Expected: expected, Got: got}
	}
	return nil
}

// Abort closes the file (ignoring the result) and removes it; used when a
// transfer is cancelled mid-file.
func (r *Reassembler) Abort() {
	r.file.Close()
	os.Remove(r.path)
}
