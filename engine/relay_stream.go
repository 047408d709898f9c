package engine

import (
	"bytes"

	"github.com/gorilla/websocket"
	"github.com/quantarax/relay/internal/framing"
)

// RelayStream carries PeerMessages over a WebSocket connection to the
// rendezvous server once both endpoints have switched into opaque binary
// relay mode. Each WebSocket binary message carries exactly one length-
// prefixed MessagePack frame, identical to the direct QUIC wire format, so
// Sender and Receiver never need to know which transport they are using.
type RelayStream struct {
	ws *websocket.Conn
}

// NewRelayStream wraps an already-connected signaling WebSocket that has
// just switched into relay mode.
func NewRelayStream(ws *websocket.Conn) *RelayStream {
	return &RelayStream{ws: ws}
}

// Send encodes m and writes it as a single binary WebSocket message.
func (r *RelayStream) Send(m framing.PeerMessage) error {
	var buf bytes.Buffer
	if err := framing.WriteMessage(&buf, m); err != nil {
		return errSerialization("encode relayed message", err)
	}
	if err := r.ws.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return errWebSocket("write relayed message", err)
	}
	return nil
}

// Recv reads the next PeerMessage, skipping any stray text messages (e.g.
// JSON errors the server may still emit on this socket) rather than
// treating them as fatal.
func (r *RelayStream) Recv() (framing.PeerMessage, error) {
	for {
		kind, data, err := r.ws.ReadMessage()
		if err != nil {
			return framing.PeerMessage{}, errWebSocket("read relayed message", err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		m, err := framing.ReadMessage(bytes.NewReader(data))
		if err != nil {
			return framing.PeerMessage{}, errSerialization("decode relayed message", err)
		}
		return m, nil
	}
}

// Close best-effort closes the underlying WebSocket.
func (r *RelayStream) Close() error {
	return r.ws.Close()
}
