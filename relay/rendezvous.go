package main

import (
	"encoding/json"
	"net"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/quantarax/relay/internal/observability"
)

// signalMessage is the JSON envelope exchanged with a client over
// /ws/{code}, matching engine.SignalingClient's wire shape exactly.
type signalMessage struct {
	Type     string    `json:"type"`
	Role     string    `json:"role,omitempty"`
	Message  string    `json:"message,omitempty"`
	Code     string    `json:"code,omitempty"`
	PeerInfo *peerInfo `json:"peer_info,omitempty"`
	Payload  string    `json:"payload,omitempty"`
}

type peerInfo struct {
	PublicIP   string `json:"public_ip,omitempty"`
	PublicPort int    `json:"public_port,omitempty"`
	LocalIP    string `json:"local_ip,omitempty"`
	LocalPort  int    `json:"local_port,omitempty"`
}

// peerConn is one half of a paired transfer code: the WebSocket connection
// plus enough state to relay messages to (and, after request_relay, raw
// frames from) its counterpart. writeMu serializes writes from both this
// peer's own handler goroutine and its counterpart's forwarding goroutine,
// since gorilla/websocket forbids concurrent writes to the same *Conn.
type peerConn struct {
	ws       *websocket.Conn
	role     string
	peerInfo *peerInfo

	writeMu sync.Mutex
}

func (p *peerConn) writeJSON(m signalMessage) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.WriteJSON(m)
}

func (p *peerConn) writeRaw(messageType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.WriteMessage(messageType, data)
}

// codeSession pairs up to two peers under one transfer code and tracks
// whether they have switched into opaque binary relay mode.
type codeSession struct {
	mu      sync.Mutex
	code    string
	peers   []*peerConn
	relayed bool
}

func (s *codeSession) addPeer(p *peerConn) (peerCount int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) >= 2 {
		return len(s.peers), false
	}
	s.peers = append(s.peers, p)
	return len(s.peers), true
}

func (s *codeSession) removePeer(p *peerConn) (remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, peer := range s.peers {
		if peer == p {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			break
		}
	}
	return len(s.peers)
}

// other returns the counterpart of p in this session, or nil if p is
// unpaired (its peer hasn't joined, or has already left).
func (s *codeSession) other(p *peerConn) *peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, peer := range s.peers {
		if peer != p {
			return peer
		}
	}
	return nil
}

func (s *codeSession) setRelayed() {
	s.mu.Lock()
	s.relayed = true
	s.mu.Unlock()
}

func (s *codeSession) isRelayed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relayed
}

// rendezvous is the process-wide registry of in-flight transfer codes, the
// server half of engine.SignalingClient's protocol.
type rendezvous struct {
	log     *observability.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	sessions map[string]*codeSession
}

func newRendezvous(log *observability.Logger, metrics *observability.Metrics) *rendezvous {
	return &rendezvous{log: log, metrics: metrics, sessions: make(map[string]*codeSession)}
}

func (r *rendezvous) sessionFor(code string) *codeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		s = &codeSession{code: code}
		r.sessions[code] = s
	}
	return s
}

func (r *rendezvous) dropIfEmpty(code string, remaining int) {
	if remaining > 0 {
		return
	}
	r.mu.Lock()
	delete(r.sessions, code)
	r.mu.Unlock()
}

// activeCodeCount reports how many transfer codes currently have at least
// one registered peer, for the health check.
func (r *rendezvous) activeCodeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// handlePeer drives one WebSocket connection's lifetime: registration,
// JSON relaying of the SPAKE2/fingerprint exchange, and the switch into
// opaque binary relay framing on request_relay.
func (r *rendezvous) handlePeer(code string, ws *websocket.Conn, remoteAddr string) {
	session := r.sessionFor(code)
	self := &peerConn{ws: ws}

	if _, ok := session.addPeer(self); !ok {
		_ = ws.WriteJSON(signalMessage{Type: "error", Message: "transfer code already has two peers"})
		_ = ws.Close()
		return
	}
	r.metrics.RecordRelayConnection(true)
	r.log.Info("peer joined rendezvous code")

	defer func() {
		remaining := session.removePeer(self)
		r.dropIfEmpty(code, remaining)
		_ = ws.Close()
		if other := session.other(self); other != nil && remaining > 0 {
			_ = other.writeJSON(signalMessage{Type: "error", Message: "peer disconnected"})
		}
	}()

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		if session.isRelayed() {
			if other := session.other(self); other != nil {
				_ = other.writeRaw(mt, data)
			}
			continue
		}

		if mt != websocket.TextMessage {
			continue
		}
		var msg signalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "register":
			r.handleRegister(session, self, msg, remoteAddr)
		case "spake2", "cert_fingerprint":
			r.relayJSON(session, self, msg)
		case "request_relay":
			r.handleRequestRelay(session, self)
		case "disconnect":
			return
		default:
			r.log.Warn("rendezvous: ignoring unknown message type " + msg.Type)
		}
	}
}

func (r *rendezvous) handleRegister(session *codeSession, self *peerConn, msg signalMessage, remoteAddr string) {
	self.role = msg.Role
	self.peerInfo = msg.PeerInfo
	if self.peerInfo != nil {
		if host, portStr, err := net.SplitHostPort(remoteAddr); err == nil {
			self.peerInfo.PublicIP = host
			if port, err := strconv.Atoi(portStr); err == nil {
				self.peerInfo.PublicPort = port
			}
		} else {
			self.peerInfo.PublicIP = remoteAddr
		}
	}

	other := session.other(self)
	if other == nil {
		return
	}
	// Both peers are now present: each learns the other's address info.
	_ = self.writeJSON(signalMessage{Type: "peer_joined", PeerInfo: other.peerInfo})
	_ = other.writeJSON(signalMessage{Type: "peer_joined", PeerInfo: self.peerInfo})
}

func (r *rendezvous) relayJSON(session *codeSession, self *peerConn, msg signalMessage) {
	other := session.other(self)
	if other == nil {
		_ = self.writeJSON(signalMessage{Type: "error", Message: "no peer to relay to"})
		return
	}
	_ = other.writeJSON(msg)
}

func (r *rendezvous) handleRequestRelay(session *codeSession, self *peerConn) {
	session.setRelayed()
	if other := session.other(self); other != nil {
		_ = other.writeJSON(signalMessage{Type: "relay_request"})
	}
}
