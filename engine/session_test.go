package engine

import (
	"testing"
	"time"

	"github.com/quantarax/relay/internal/code"
)

func TestCancelTokenFiresOnce(t *testing.T) {
	ct := NewCancelToken()
	if ct.Cancelled() {
		t.Fatal("expected token to start uncancelled")
	}

	ct.Cancel()
	ct.Cancel() // must not panic or double-close

	if !ct.Cancelled() {
		t.Fatal("expected token to report cancelled")
	}
	select {
	case <-ct.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done channel to be closed")
	}
}

func TestNewSessionDefaultsToSPAKE2Required(t *testing.T) {
	c, err := code.Generate()
	if err != nil {
		t.Fatalf("code.Generate: %v", err)
	}
	sess := NewSession(RoleSender, c)

	if !sess.RequireSPAKE2 {
		t.Fatal("expected RequireSPAKE2 to default true")
	}
	if sess.GetState() != StateConnecting {
		t.Fatalf("expected initial state StateConnecting, got %v", sess.GetState())
	}

	sess.SetState(StateRacing)
	if sess.GetState() != StateRacing {
		t.Fatalf("expected state to update to StateRacing, got %v", sess.GetState())
	}
}

func TestDeriveLegacyKeyIsDeterministicAndCodeDependent(t *testing.T) {
	a := deriveLegacyKey("1-apple-bridge")
	b := deriveLegacyKey("1-apple-bridge")
	c := deriveLegacyKey("2-cedar-forest")

	if len(a) != 32 {
		t.Fatalf("expected a 32-byte key, got %d bytes", len(a))
	}
	if string(a) != string(b) {
		t.Fatal("expected deriveLegacyKey to be deterministic for the same code")
	}
	if string(a) == string(c) {
		t.Fatal("expected different codes to derive different keys")
	}
}
