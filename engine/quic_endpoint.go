package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quantarax/relay/internal/crypto"
	"github.com/quantarax/relay/internal/quicutil"
)

// QuicEndpoint is a single UDP-bound QUIC endpoint that can both accept an
// inbound connection and dial an outbound one, matching the protocol's
// symmetric connection race: neither peer knows in advance whether it will
// end up listening or dialing.
type QuicEndpoint struct {
	transport   *quic.Transport
	conn        net.PacketConn
	tlsConfig   *tls.Config
	clientTLS   *tls.Config
	fingerprint [crypto.FingerprintSize]byte

	quicConn *quic.Conn
}

// NewQuicEndpoint binds a UDP socket on addr (port 0 for an OS-assigned
// port) and generates a fresh self-signed certificate for it.
func NewQuicEndpoint(addr string) (*QuicEndpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}

	certPEM, keyPEM, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("generate cert: %w", err)
	}
	tlsConfig, err := quicutil.MakeTLSConfig(certPEM, keyPEM)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls config: %w", err)
	}
	certDER, err := quicutil.CertDER(certPEM)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("cert der: %w", err)
	}

	return &QuicEndpoint{
		transport:   &quic.Transport{Conn: conn},
		conn:        conn,
		tlsConfig:   tlsConfig,
		clientTLS:   quicutil.MakeClientTLSConfig(),
		fingerprint: crypto.CertFingerprint(certDER),
	}, nil
}

// LocalAddr returns the UDP address this endpoint is bound to.
func (e *QuicEndpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Fingerprint returns the SHA-256 fingerprint of this endpoint's
// self-signed certificate.
func (e *QuicEndpoint) Fingerprint() [crypto.FingerprintSize]byte {
	return e.fingerprint
}

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 15 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
}

// AcceptAny waits for a single inbound QUIC handshake. Peer authenticity is
// not checked here: the certificate is self-signed and unconditionally
// accepted. EstablishConnection exchanges certificate fingerprints over
// signaling before the race, but the fingerprint received from the peer is
// not compared with the certificate this connection presents.
func (e *QuicEndpoint) AcceptAny(ctx context.Context) (*quic.Conn, error) {
	listener, err := e.transport.Listen(e.tlsConfig, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	conn, err := listener.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	e.quicConn = conn
	return conn, nil
}

// Connect dials addr.
func (e *QuicEndpoint) Connect(ctx context.Context, addr string) (*quic.Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := e.transport.Dial(ctx, udpAddr, e.clientTLS, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	e.quicConn = conn
	return conn, nil
}

// Close shuts the endpoint down without waiting for it to go idle. Per
// §4.6, any still-open QUIC connection is dropped with error code 0 and
// reason "done" rather than left to the transport's default close.
func (e *QuicEndpoint) Close() error {
	if e.quicConn != nil {
		_ = e.quicConn.CloseWithError(0, "done")
	}
	_ = e.transport.Close()
	return e.conn.Close()
}
