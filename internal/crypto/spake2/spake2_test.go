package spake2

import "testing"

func TestSymmetricKeyAgreement(t *testing.T) {
	password := []byte("4-anchor-shadow")

	a, aMsg, err := Start(password)
	if err != nil {
		t.Fatalf("Start (a): %v", err)
	}
	b, bMsg, err := Start(password)
	if err != nil {
		t.Fatalf("Start (b): %v", err)
	}

	aKey, err := a.Finish(bMsg)
	if err != nil {
		t.Fatalf("Finish (a): %v", err)
	}
	bKey, err := b.Finish(aMsg)
	if err != nil {
		t.Fatalf("Finish (b): %v", err)
	}

	if aKey != bKey {
		t.Fatalf("derived keys differ: %x != %x", aKey, bKey)
	}
}

func TestDifferentPasswordsDeriveDifferentKeys(t *testing.T) {
	a, aMsg, err := Start([]byte("4-anchor-shadow"))
	if err != nil {
		t.Fatalf("Start (a): %v", err)
	}
	b, bMsg, err := Start([]byte("9-arrow-arctic"))
	if err != nil {
		t.Fatalf("Start (b): %v", err)
	}

	aKey, err := a.Finish(bMsg)
	if err != nil {
		t.Fatalf("Finish (a): %v", err)
	}
	bKey, err := b.Finish(aMsg)
	if err != nil {
		t.Fatalf("Finish (b): %v", err)
	}

	if aKey == bKey {
		t.Fatal("different passwords produced the same key")
	}
}

func TestFinishTwicePanics(t *testing.T) {
	password := []byte("4-anchor-shadow")
	a, _, err := Start(password)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, peerMsg, err := Start(password)
	if err != nil {
		t.Fatalf("Start (peer): %v", err)
	}

	if _, err := a.Finish(peerMsg); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("second Finish should have panicked")
		}
	}()
	_, _ = a.Finish(peerMsg)
}

func TestInvalidPeerMessage(t *testing.T) {
	a, _, err := Start([]byte("4-anchor-shadow"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := a.Finish([]byte("too short")); err == nil {
		t.Fatal("expected error for malformed peer message")
	}
}
