package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantarax/relay/internal/observability"
)

func TestDefaultRelayConfig(t *testing.T) {
	cfg := DefaultRelayConfig()
	if cfg.ListenAddress == "" {
		t.Error("expected a default listen address")
	}
	if cfg.ConnectRateLimit <= 0 || cfg.ConnectBurst <= 0 {
		t.Error("expected positive rate limit defaults")
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *RelayService) {
	t.Helper()
	log := observability.NewLogger("relay-rendezvous-test", "test", os.Stdout)
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker("test")
	cfg := DefaultRelayConfig()

	svc := NewRelayService(cfg, log, metrics, health)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", svc.handleWebSocket)

	srv := httptest.NewServer(mux)
	return srv, svc
}

func dialWS(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + code
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestRegisterPairsTwoPeers(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	a := dialWS(t, srv, "7-apple-bridge")
	defer a.Close()
	b := dialWS(t, srv, "7-apple-bridge")
	defer b.Close()

	if err := a.WriteJSON(signalMessage{Type: "register", Role: "sender", PeerInfo: &peerInfo{LocalIP: "10.0.0.1", LocalPort: 9000}}); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := b.WriteJSON(signalMessage{Type: "register", Role: "receiver"}); err != nil {
		t.Fatalf("register b: %v", err)
	}

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	b.SetReadDeadline(time.Now().Add(2 * time.Second))

	var aMsg, bMsg signalMessage
	if err := a.ReadJSON(&aMsg); err != nil {
		t.Fatalf("a read: %v", err)
	}
	if err := b.ReadJSON(&bMsg); err != nil {
		t.Fatalf("b read: %v", err)
	}

	if aMsg.Type != "peer_joined" || bMsg.Type != "peer_joined" {
		t.Fatalf("expected peer_joined, got %q and %q", aMsg.Type, bMsg.Type)
	}
	if bMsg.PeerInfo == nil || bMsg.PeerInfo.LocalIP != "10.0.0.1" {
		t.Fatalf("expected b to learn a's peer info, got %+v", bMsg.PeerInfo)
	}
}

func TestThirdPeerRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	a := dialWS(t, srv, "9-cedar-forest")
	defer a.Close()
	b := dialWS(t, srv, "9-cedar-forest")
	defer b.Close()
	c := dialWS(t, srv, "9-cedar-forest")
	defer c.Close()

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg signalMessage
	if err := c.ReadJSON(&msg); err != nil {
		t.Fatalf("expected an error message, got read error: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("expected error type for third peer, got %q", msg.Type)
	}
}

func TestSpake2RelaysVerbatim(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	a := dialWS(t, srv, "3-delta-harbor")
	defer a.Close()
	b := dialWS(t, srv, "3-delta-harbor")
	defer b.Close()

	_ = a.WriteJSON(signalMessage{Type: "register", Role: "sender"})
	_ = b.WriteJSON(signalMessage{Type: "register", Role: "receiver"})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	var discard signalMessage
	_ = a.ReadJSON(&discard)
	_ = b.ReadJSON(&discard)

	if err := a.WriteJSON(signalMessage{Type: "spake2", Payload: "deadbeef"}); err != nil {
		t.Fatalf("send spake2: %v", err)
	}
	var got signalMessage
	if err := b.ReadJSON(&got); err != nil {
		t.Fatalf("recv spake2: %v", err)
	}
	if got.Type != "spake2" || got.Payload != "deadbeef" {
		t.Fatalf("expected relayed spake2 payload, got %+v", got)
	}
}

func TestRequestRelaySwitchesToBinaryForwarding(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	a := dialWS(t, srv, "1-echo-island")
	defer a.Close()
	b := dialWS(t, srv, "1-echo-island")
	defer b.Close()

	_ = a.WriteJSON(signalMessage{Type: "register", Role: "sender"})
	_ = b.WriteJSON(signalMessage{Type: "register", Role: "receiver"})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	var discard signalMessage
	_ = a.ReadJSON(&discard)
	_ = b.ReadJSON(&discard)

	if err := a.WriteJSON(signalMessage{Type: "request_relay"}); err != nil {
		t.Fatalf("request_relay: %v", err)
	}
	var relayMsg signalMessage
	if err := b.ReadJSON(&relayMsg); err != nil {
		t.Fatalf("recv relay_request: %v", err)
	}
	if relayMsg.Type != "relay_request" {
		t.Fatalf("expected relay_request, got %q", relayMsg.Type)
	}

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	if err := a.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("send binary: %v", err)
	}
	mt, data, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("recv binary: %v", err)
	}
	if mt != websocket.BinaryMessage || string(data) != string(payload) {
		t.Fatalf("expected forwarded binary payload, got type=%d data=%v", mt, data)
	}
}
