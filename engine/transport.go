package engine

import (
	"github.com/quic-go/quic-go"
	"github.com/quantarax/relay/internal/framing"
)

// Transport unifies the two ways a session's PeerMessages can travel: a
// direct QUIC bidirectional stream, or a relayed WebSocket connection to
// the rendezvous server. Sender and Receiver depend only on this interface
// and never branch on which concrete path was chosen.
type Transport interface {
	SendPeerMessage(framing.PeerMessage) error
	RecvPeerMessage() (framing.PeerMessage, error)
	FinishSend() error
	IsRelayed() bool
	Close() error
}

// DirectTransport carries PeerMessages over one QUIC bidirectional stream.
// It holds the QuicEndpoint the stream was negotiated on so that Close can
// tear down the whole endpoint rather than leaking its UDP socket.
type DirectTransport struct {
	endpoint *QuicEndpoint
	stream   *quic.Stream
}

// NewDirectTransport wraps an established bidirectional QUIC stream and the
// endpoint it came from.
func NewDirectTransport(endpoint *QuicEndpoint, stream *quic.Stream) *DirectTransport {
	return &DirectTransport{endpoint: endpoint, stream: stream}
}

func (d *DirectTransport) SendPeerMessage(m framing.PeerMessage) error {
	if err := framing.WriteMessage(d.stream, m); err != nil {
		return errNetwork("write direct message", err)
	}
	return nil
}

func (d *DirectTransport) RecvPeerMessage() (framing.PeerMessage, error) {
	m, err := framing.ReadMessage(d.stream)
	if err != nil {
		return framing.PeerMessage{}, errNetwork("read direct message", err)
	}
	return m, nil
}

// FinishSend closes the write half of the stream, signaling the peer that
// no further messages will be sent in this direction.
func (d *DirectTransport) FinishSend() error {
	return d.stream.Close()
}

func (d *DirectTransport) IsRelayed() bool { return false }

func (d *DirectTransport) Close() error {
	d.stream.CancelRead(0)
	err := d.stream.Close()
	d.endpoint.Close()
	return err
}

// RelayedTransport carries PeerMessages over a RelayStream.
type RelayedTransport struct {
	stream *RelayStream
}

// NewRelayedTransport wraps a RelayStream as a Transport.
func NewRelayedTransport(stream *RelayStream) *RelayedTransport {
	return &RelayedTransport{stream: stream}
}

func (r *RelayedTransport) SendPeerMessage(m framing.PeerMessage) error {
	return r.stream.Send(m)
}

func (r *RelayedTransport) RecvPeerMessage() (framing.PeerMessage, error) {
	return r.stream.Recv()
}

// FinishSend is a no-op for the relayed path: a WebSocket has no separate
// half-close signal that the protocol relies on.
func (r *RelayedTransport) FinishSend() error { return nil }

func (r *RelayedTransport) IsRelayed() bool { return true }

func (r *RelayedTransport) Close() error { return r.stream.Close() }
