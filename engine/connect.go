package engine

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quantarax/relay/internal/crypto/spake2"
	"github.com/quantarax/relay/internal/observability"
)

// establishTraceName identifies the connection-establishment span reported
// through internal/observability's tracer, independent of the binary that
// calls EstablishConnection (cmd/send, cmd/receive, or the daemon engine).
const establishTraceName = "establish_connection"

// receiverDialTimeout bounds how long the receiver waits for a direct QUIC
// dial to succeed before falling back to the relay.
const receiverDialTimeout = 5 * time.Second

// senderAcceptTimeout bounds how long the sender waits for an inbound QUIC
// handshake before falling back to the relay.
const senderAcceptTimeout = 10 * time.Second

// EstablishResult is everything ConnectEstablish hands back once a Transport
// is ready: the transport itself and the 32-byte SPAKE2 session key that the
// Sender/Receiver pipelines use to build a fresh ChunkCrypto per file.
type EstablishResult struct {
	Transport  Transport
	SessionKey []byte
	Relayed    bool
}

// EstablishConnection runs the connection-establishment state machine common
// to both roles: it opens the signaling channel, registers, waits for the
// peer, runs SPAKE2 to derive a shared key, exchanges QUIC certificate
// fingerprints under that key, and finally races a direct QUIC connection
// against a relay fallback. The race itself is role-specific (see
// receiverRace and senderRace).
// quicEP must already be bound (see NewQuicEndpoint); EstablishConnection
// takes ownership of it and closes it on every return path except a
// successful direct connection, whose DirectTransport takes over that
// responsibility. Callers that want to know the bound port before the peer
// joins (e.g. the Engine facade's start_send response) create it themselves
// and pass it in here.
func EstablishConnection(sess *Session, serverURL string, quicEP *QuicEndpoint, bus *ProgressBus, log *observability.Logger, metrics *observability.Metrics) (result *EstablishResult, err error) {
	log = log.WithSession(sess.ID)

	_, endSpan := observability.StartSpan(context.Background(), establishTraceName)
	defer func() { endSpan(err) }()

	setState := func(st State) {
		sess.SetState(st)
		bus.Publish(ProgressEvent{Kind: EventStateChanged, State: st})
	}

	setState(StateConnecting)
	sig, err := Connect(serverURL, sess.Code.String())
	if err != nil {
		quicEP.Close()
		return nil, err
	}

	abort := func(err error) (*EstablishResult, error) {
		quicEP.Close()
		sig.Disconnect()
		return nil, err
	}

	setState(StateRegistering)
	if err := sig.Register(sess.Role, quicEP.LocalAddr().String()); err != nil {
		return abort(err)
	}

	setState(StateWaitingPeer)
	peer, err := sig.WaitForPeer()
	if err != nil {
		return abort(err)
	}
	log.Info("peer joined")

	setState(StateKeyAgree)
	spakeStart := time.Now()
	var sessionKey []byte
	if sess.RequireSPAKE2 {
		exch, outbound, err := spake2.Start([]byte(sess.Code.String()))
		if err != nil {
			return abort(errCrypto("start spake2 exchange", err))
		}
		peerOutbound, err := sig.ExchangeSpake2(outbound)
		if err != nil {
			return abort(err)
		}
		key, err := exch.Finish(peerOutbound)
		if err != nil {
			return abort(errCrypto("finish spake2 exchange", err))
		}
		sessionKey = key[:]
	} else {
		sessionKey = deriveLegacyKey(sess.Code.String())
	}
	if metrics != nil {
		metrics.RecordCryptoOperation("spake2_key_agreement", time.Since(spakeStart).Seconds())
	}

	setState(StateFingerprint)
	if _, err := sig.ExchangeCertFingerprint(quicEP.Fingerprint(), sessionKey); err != nil {
		return abort(err)
	}

	setState(StateRacing)
	var transport Transport
	if sess.Role == RoleReceiver {
		transport, err = receiverRace(sess, sig, quicEP, peer)
	} else {
		transport, err = senderRace(sess, sig, quicEP)
	}
	if err != nil {
		return nil, err
	}

	connType := "direct"
	if transport.IsRelayed() {
		connType = "relay"
	}
	bus.Publish(ProgressEvent{Kind: EventConnectionTypeChanged, ConnectionType: connType})
	log.Info(fmt.Sprintf("connected via %s", connType))

	return &EstablishResult{Transport: transport, SessionKey: sessionKey, Relayed: transport.IsRelayed()}, nil
}

// receiverRace implements the receiver side of §4.8's Race state: the
// receiver actively dials the address it was told about, falling back to
// the relay on any timeout, dial error, or absence of a usable address.
func receiverRace(sess *Session, sig *SignalingClient, quicEP *QuicEndpoint, peer PeerInfo) (Transport, error) {
	addr := resolvePeerAddr(peer)
	if addr == "" {
		return activateRelay(sig, quicEP)
	}

	ctx, cancel := context.WithTimeout(context.Background(), receiverDialTimeout)
	defer cancel()

	type dialResult struct {
		conn *quic.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := quicEP.Connect(ctx, addr)
		resultCh <- dialResult{conn: conn, err: err}
	}()

	select {
	case <-sess.Cancel.Done():
		cancel()
		quicEP.Close()
		sig.Disconnect()
		return nil, errCancelled()
	case res := <-resultCh:
		if res.err != nil {
			return activateRelay(sig, quicEP)
		}
		sig.Disconnect()
		stream, err := res.conn.AcceptStream(context.Background())
		if err != nil {
			quicEP.Close()
			return nil, errNetwork("accept direct stream", err)
		}
		return NewDirectTransport(quicEP, stream), nil
	}
}

// senderRace implements the sender side of §4.8's Race state: the sender
// listens for an inbound QUIC handshake while concurrently watching the
// signaling socket for a relay request (or any other message, which per the
// design's documented open question is conflated with a relay signal) and
// the session's cancel token. The first of the three to fire decides the
// outcome.
func senderRace(sess *Session, sig *SignalingClient, quicEP *QuicEndpoint) (Transport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), senderAcceptTimeout)
	defer cancel()

	type acceptResult struct {
		conn *quic.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := quicEP.AcceptAny(ctx)
		acceptCh <- acceptResult{conn: conn, err: err}
	}()

	type sigResult struct {
		msgType string
		err     error
	}
	sigCh := make(chan sigResult, 1)
	go func() {
		typ, err := sig.NextDuringRace()
		sigCh <- sigResult{msgType: typ, err: err}
	}()

	select {
	case <-sess.Cancel.Done():
		cancel()
		quicEP.Close()
		sig.Disconnect()
		return nil, errCancelled()

	case res := <-acceptCh:
		if res.err != nil {
			// Timeout or transport error: fall back to relay.
			return activateRelay(sig, quicEP)
		}
		sig.Disconnect()
		stream, err := res.conn.OpenStreamSync(context.Background())
		if err != nil {
			quicEP.Close()
			return nil, errNetwork("open direct stream", err)
		}
		return NewDirectTransport(quicEP, stream), nil

	case <-sigCh:
		// Any signaling traffic during the race — a relay_request from the
		// peer, or anything else — is treated as a relay signal.
		return activateRelay(sig, quicEP)
	}
}

// activateRelay asks the rendezvous server to switch this code's pair of
// sockets into opaque binary relay mode and returns the resulting Transport.
func activateRelay(sig *SignalingClient, quicEP *QuicEndpoint) (Transport, error) {
	quicEP.Close()
	if err := sig.RequestRelay(); err != nil {
		return nil, err
	}
	return NewRelayedTransport(sig.IntoRelayStream()), nil
}

// resolvePeerAddr implements §4.8's receiver address preference: the local
// address if both fields are present and the port is usable, else the
// public address, else no usable address at all (signaled by "").
func resolvePeerAddr(peer PeerInfo) string {
	if peer.LocalIP != "" && peer.LocalPort > 0 {
		return net.JoinHostPort(peer.LocalIP, strconv.Itoa(peer.LocalPort))
	}
	if peer.PublicIP != "" && peer.PublicPort > 0 {
		return net.JoinHostPort(peer.PublicIP, strconv.Itoa(peer.PublicPort))
	}
	return ""
}
