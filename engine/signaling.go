package engine

import (
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/quantarax/relay/internal/crypto"
)

// PeerInfo is the address information the rendezvous server relays between
// the two endpoints of a session.
type PeerInfo struct {
	PublicIP   string `json:"public_ip,omitempty"`
	PublicPort int    `json:"public_port,omitempty"`
	LocalIP    string `json:"local_ip,omitempty"`
	LocalPort  int    `json:"local_port,omitempty"`
}

// signalMessage is the JSON envelope exchanged with the rendezvous server.
type signalMessage struct {
	Type     string    `json:"type"`
	Role     string    `json:"role,omitempty"`
	Message  string    `json:"message,omitempty"`
	Code     string    `json:"code,omitempty"`
	PeerInfo *PeerInfo `json:"peer_info,omitempty"`
	Payload  string    `json:"payload,omitempty"`
}

// SignalingClient drives the WebSocket rendezvous protocol: registration,
// waiting for the peer, relaying the SPAKE2 and certificate-fingerprint
// exchanges, and requesting (or observing) a relay fallback.
type SignalingClient struct {
	ws *websocket.Conn
}

// Connect dials {serverURL}/ws/{code}.
func Connect(serverURL, transferCode string) (*SignalingClient, error) {
	url := strings.TrimSuffix(serverURL, "/") + "/ws/" + transferCode
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errWebSocket(fmt.Sprintf("connect to %s", url), err)
	}
	return &SignalingClient{ws: ws}, nil
}

func (c *SignalingClient) send(m signalMessage) error {
	if err := c.ws.WriteJSON(m); err != nil {
		return errWebSocket("send signaling message", err)
	}
	return nil
}

// next reads the next JSON message from the signaling socket.
func (c *SignalingClient) next() (signalMessage, error) {
	var m signalMessage
	if err := c.ws.ReadJSON(&m); err != nil {
		return signalMessage{}, errWebSocket("read signaling message", err)
	}
	return m, nil
}

// Register announces this endpoint's role. For a sender, localAddr is the
// address of its QuicEndpoint and is relayed to the receiver as peer_info;
// if its IP is unspecified, a routable local address is substituted.
func (c *SignalingClient) Register(role Role, localAddr string) error {
	msg := signalMessage{Type: "register", Role: string(role)}
	if role == RoleSender && localAddr != "" {
		host, portStr, err := net.SplitHostPort(localAddr)
		if err == nil {
			port, _ := strconv.Atoi(portStr)
			if host == "" || host == "0.0.0.0" || host == "::" {
				if routable, err := discoverLocalIP(); err == nil {
					host = routable
				}
			}
			msg.PeerInfo = &PeerInfo{LocalIP: host, LocalPort: port}
		}
	}
	return c.send(msg)
}

// WaitForPeer blocks until a peer_joined message arrives, skipping unrelated
// message types in between, and returns the peer's address info. An "error"
// message from the server aborts the wait.
func (c *SignalingClient) WaitForPeer() (PeerInfo, error) {
	for {
		m, err := c.next()
		if err != nil {
			return PeerInfo{}, err
		}
		switch m.Type {
		case "peer_joined":
			if m.PeerInfo != nil {
				return *m.PeerInfo, nil
			}
			return PeerInfo{}, nil
		case "error":
			return PeerInfo{}, errWebSocket("rendezvous error", fmt.Errorf("%s", m.Message))
		default:
			continue
		}
	}
}

// ExchangeSpake2 sends our outbound SPAKE2 message and waits for the peer's.
func (c *SignalingClient) ExchangeSpake2(outbound []byte) ([]byte, error) {
	if err := c.send(signalMessage{Type: "spake2", Message: base64.StdEncoding.EncodeToString(outbound)}); err != nil {
		return nil, err
	}
	for {
		m, err := c.next()
		if err != nil {
			return nil, err
		}
		switch m.Type {
		case "spake2":
			return base64.StdEncoding.DecodeString(m.Message)
		case "error":
			return nil, errWebSocket("rendezvous error", fmt.Errorf("%s", m.Message))
		default:
			continue
		}
	}
}

// ExchangeCertFingerprint sends our QUIC certificate fingerprint encrypted
// under the SPAKE2-derived key and waits for the peer's.
func (c *SignalingClient) ExchangeCertFingerprint(ourFingerprint [crypto.FingerprintSize]byte, sessionKey []byte) ([crypto.FingerprintSize]byte, error) {
	var zero [crypto.FingerprintSize]byte

	enc, err := crypto.NewChunkEncryptor(sessionKey)
	if err != nil {
		return zero, errCrypto("create fingerprint encryptor", err)
	}
	ciphertext, nonce, err := enc.Encrypt(ourFingerprint[:])
	if err != nil {
		return zero, errCrypto("encrypt fingerprint", err)
	}
	packed := append(append([]byte(nil), nonce[:]...), ciphertext...)

	if err := c.send(signalMessage{Type: "cert_fingerprint", Message: base64.StdEncoding.EncodeToString(packed)}); err != nil {
		return zero, err
	}

	dec, err := crypto.NewChunkDecryptor(sessionKey)
	if err != nil {
		return zero, errCrypto("create fingerprint decryptor", err)
	}

	for {
		m, err := c.next()
		if err != nil {
			return zero, err
		}
		switch m.Type {
		case "cert_fingerprint":
			raw, err := base64.StdEncoding.DecodeString(m.Message)
			if err != nil || len(raw) < 12 {
				return zero, errSerialization("decode peer fingerprint envelope", err)
			}
			var peerNonce [12]byte
			copy(peerNonce[:], raw[:12])
			plaintext, err := dec.Decrypt(raw[12:], peerNonce)
			if err != nil {
				return zero, errCrypto("decrypt peer fingerprint", err)
			}
			if len(plaintext) != crypto.FingerprintSize {
				return zero, errSerialization("peer fingerprint has wrong length", nil)
			}
			var fp [crypto.FingerprintSize]byte
			copy(fp[:], plaintext)
			return fp, nil
		case "error":
			return zero, errWebSocket("rendezvous error", fmt.Errorf("%s", m.Message))
		default:
			continue
		}
	}
}

// RequestRelay asks the rendezvous server to switch both endpoints of this
// code into opaque binary relay mode. No further JSON may be sent on this
// socket afterward.
func (c *SignalingClient) RequestRelay() error {
	return c.send(signalMessage{Type: "request_relay"})
}

// NextDuringRace reads the next message during the connection race,
// returning its raw type string so callers can distinguish "relay_request"
// from anything else without fully decoding it.
func (c *SignalingClient) NextDuringRace() (string, error) {
	m, err := c.next()
	if err != nil {
		return "", err
	}
	return m.Type, nil
}

// IntoRelayStream hands the underlying WebSocket off to a RelayStream once
// both sides have committed to relay mode.
func (c *SignalingClient) IntoRelayStream() *RelayStream {
	return NewRelayStream(c.ws)
}

// Disconnect sends a best-effort disconnect notice and closes the socket.
func (c *SignalingClient) Disconnect() {
	_ = c.send(signalMessage{Type: "disconnect"})
	_ = c.ws.Close()
}

// discoverLocalIP finds a routable local address by opening a UDP socket
// toward a public host; no packet is actually sent, so this works offline
// too (it just returns whatever address the OS would have routed through).
func discoverLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type")
	}
	return addr.IP.String(), nil
}
