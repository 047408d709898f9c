// Package framing defines the peer-to-peer wire protocol: a ten-variant
// tagged message type carried inside length-prefixed MessagePack frames,
// identical whether the underlying transport is a direct QUIC stream or a
// relayed WebSocket connection.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize is the largest frame this protocol will accept. A peer that
// announces a longer frame has violated the protocol.
const MaxFrameSize = 256 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadMessage when the announced frame
// length exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("framing: frame exceeds maximum size")

// MessageType discriminates the variants of PeerMessage.
type MessageType string

const (
	TypeFileOffer        MessageType = "file_offer"
	TypeFileAccept       MessageType = "file_accept"
	TypeFileDecline      MessageType = "file_decline"
	TypeFileChunk        MessageType = "file_chunk"
	TypeFileComplete     MessageType = "file_complete"
	TypeFileVerified     MessageType = "file_verified"
	TypeTransferComplete MessageType = "transfer_complete"
	TypeCancel           MessageType = "cancel"
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
)

// FileInfo describes one file offered in a file_offer message. RelativePath
// is set (as a POSIX-style path under the shared root) when the file is
// part of a folder transfer; it is nil for a single flat file.
type FileInfo struct {
	Name         string  `msgpack:"name"`
	Size         uint64  `msgpack:"size"`
	RelativePath *string `msgpack:"relative_path,omitempty"`
}

// PeerMessage is the tagged union of every message exchanged between the
// two endpoints of a transfer, whether over a direct QUIC stream or a
// relayed WebSocket. Only the fields relevant to Type are populated; the
// zero value of an unused field is omitted from the wire encoding.
type PeerMessage struct {
	Type MessageType `msgpack:"type"`

	// file_offer
	Files []FileInfo `msgpack:"files,omitempty"`

	// file_chunk / file_complete / file_verified
	FileIndex  uint16 `msgpack:"file_index,omitempty"`
	ChunkIndex uint32 `msgpack:"chunk_index,omitempty"`
	Data       []byte `msgpack:"data,omitempty"`
	Nonce      []byte `msgpack:"nonce,omitempty"`
	SHA256     []byte `msgpack:"sha256,omitempty"`

	// cancel
	Reason string `msgpack:"reason,omitempty"`
}

// NewFileOffer builds a file_offer message.
func NewFileOffer(files []FileInfo) PeerMessage {
	return PeerMessage{Type: TypeFileOffer, Files: files}
}

// NewFileAccept builds a file_accept message.
func NewFileAccept() PeerMessage { return PeerMessage{Type: TypeFileAccept} }

// NewFileDecline builds a file_decline message.
func NewFileDecline() PeerMessage { return PeerMessage{Type: TypeFileDecline} }

// NewFileChunk builds a file_chunk message. nonce must be 12 bytes.
func NewFileChunk(fileIndex uint16, chunkIndex uint32, data []byte, nonce [12]byte) PeerMessage {
	return PeerMessage{
		Type:       TypeFileChunk,
		FileIndex:  fileIndex,
		ChunkIndex: chunkIndex,
		Data:       data,
		Nonce:      append([]byte(nil), nonce[:]...),
	}
}

// NewFileComplete builds a file_complete message. sha256 must be 32 bytes.
func NewFileComplete(fileIndex uint16, sha256 [32]byte) PeerMessage {
	return PeerMessage{
		Type:      TypeFileComplete,
		FileIndex: fileIndex,
		SHA256:    append([]byte(nil), sha256[:]...),
	}
}

// NewFileVerified builds a file_verified message.
func NewFileVerified(fileIndex uint16) PeerMessage {
	return PeerMessage{Type: TypeFileVerified, FileIndex: fileIndex}
}

// NewTransferComplete builds a transfer_complete message.
func NewTransferComplete() PeerMessage { return PeerMessage{Type: TypeTransferComplete} }

// NewCancel builds a cancel message.
func NewCancel(reason string) PeerMessage {
	return PeerMessage{Type: TypeCancel, Reason: reason}
}

// NewPing builds a ping message.
func NewPing() PeerMessage { return PeerMessage{Type: TypePing} }

// NewPong builds a pong message.
func NewPong() PeerMessage { return PeerMessage{Type: TypePong} }

// Nonce12 returns the message's Nonce field as a fixed-size array, for use
// with crypto.ChunkDecryptor. Decode does not check the field's length: a
// shorter Nonce is zero-padded and a longer one truncated, so a malformed
// nonce surfaces as a decryption failure rather than a panic.
func (m PeerMessage) Nonce12() [12]byte {
	var n [12]byte
	copy(n[:], m.Nonce)
	return n
}

// SHA256Array returns the message's SHA256 field as a fixed-size array.
func (m PeerMessage) SHA256Array() [32]byte {
	var s [32]byte
	copy(s[:], m.SHA256)
	return s
}

// Encode serializes m as MessagePack.
func Encode(m PeerMessage) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode deserializes a PeerMessage from MessagePack bytes.
func Decode(b []byte) (PeerMessage, error) {
	var m PeerMessage
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return PeerMessage{}, fmt.Errorf("framing: decode: %w", err)
	}
	return m, nil
}

// WriteMessage writes m to w as a 4-byte big-endian length prefix followed
// by its MessagePack encoding.
func WriteMessage(w io.Writer, m PeerMessage) error {
	payload, err := Encode(m)
	if err != nil {
		return fmt.Errorf("framing: encode: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("framing: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("framing: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed MessagePack frame from r and
// decodes it into a PeerMessage.
func ReadMessage(r io.Reader) (PeerMessage, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return PeerMessage{}, fmt.Errorf("framing: read header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return PeerMessage{}, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return PeerMessage{}, fmt.Errorf("framing: read payload: %w", err)
	}
	return Decode(payload)
}
