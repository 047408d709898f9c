// Package spake2 implements the symmetric variant of SPAKE2 over edwards25519:
// a password-authenticated key exchange that lets two endpoints holding the
// same low-entropy password derive a shared 32-byte secret without ever
// putting the password itself, or anything equivalent to an offline
// dictionary oracle for it, on the wire.
//
// Unlike the augmented/asymmetric SPAKE2 variants that assign a distinct
// blinding point to each role (conventionally named M and N), the symmetric
// variant used here has both endpoints blind their message with the same
// point, since neither side is distinguished as "client" or "server" — both
// are peers that happen to have typed the same code.
package spake2

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// sharedIdentity is mixed into both the password scalar and the transcript
// hash so that a transcript from one protocol role can never be replayed
// against another. Since this variant is symmetric, one fixed string
// suffices for both endpoints.
const sharedIdentity = "relay-symmetric"

// MessageSize is the length in bytes of the wire encoding of an Exchange's
// outbound message (a compressed edwards25519 point).
const MessageSize = 32

// ErrAlreadyFinished is returned (in fact, never: it backs a panic — see
// Finish) if a caller tries to consume the same Exchange twice.
var ErrAlreadyFinished = errors.New("spake2: exchange already finished")

// ErrInvalidMessage is returned when a peer message cannot be decoded as a
// valid curve point.
var ErrInvalidMessage = errors.New("spake2: invalid peer message")

// Exchange holds the state of one side of one SPAKE2 run. Create one with
// Start, send its outbound message, then call Finish exactly once with the
// peer's message to obtain the shared key.
type Exchange struct {
	password []byte
	x        *edwards25519.Scalar
	outbound *edwards25519.Point
	finished bool
}

// blindingPoint is the shared blinding point M used by both roles. It is
// derived deterministically from a fixed domain-separation string by
// hashing to a scalar and multiplying the base point — a simplification of
// rigorous hash-to-curve (comparable in spirit to NUMS-point generation).
func blindingPoint() *edwards25519.Point {
	h := sha512.Sum512([]byte("relay-spake2-blinding-point-M"))
	s, err := edwards25519.NewScalar().SetUniformBytes(h[:])
	if err != nil {
		panic("spake2: blinding point derivation failed: " + err.Error())
	}
	return edwards25519.NewIdentityPoint().ScalarBaseMult(s)
}

func passwordScalar(password []byte) (*edwards25519.Scalar, error) {
	h := sha512.New()
	h.Write([]byte(sharedIdentity))
	h.Write([]byte{0})
	h.Write(password)
	sum := h.Sum(nil)
	return edwards25519.NewScalar().SetUniformBytes(sum)
}

// Start begins a new exchange using password as the shared secret (the
// canonical "d-word1-word2" transfer code, as raw UTF-8 bytes) and returns
// the message to send to the peer through the signaling channel.
func Start(password []byte) (*Exchange, []byte, error) {
	var xb [64]byte
	if _, err := rand.Read(xb[:]); err != nil {
		return nil, nil, fmt.Errorf("spake2: generate ephemeral scalar: %w", err)
	}
	x, err := edwards25519.NewScalar().SetUniformBytes(xb[:])
	if err != nil {
		return nil, nil, fmt.Errorf("spake2: ephemeral scalar: %w", err)
	}
	w, err := passwordScalar(password)
	if err != nil {
		return nil, nil, fmt.Errorf("spake2: password scalar: %w", err)
	}

	// outbound = x*G + w*M
	xG := edwards25519.NewIdentityPoint().ScalarBaseMult(x)
	wM := edwards25519.NewIdentityPoint().ScalarMult(w, blindingPoint())
	outbound := edwards25519.NewIdentityPoint().Add(xG, wM)

	e := &Exchange{
		password: append([]byte(nil), password...),
		x:        x,
		outbound: outbound,
	}
	return e, append([]byte(nil), outbound.Bytes()...), nil
}

// Finish consumes the peer's message and derives the 32-byte shared key.
// Calling Finish a second time on the same Exchange is a programmer error
// (the session's key material would be derived from stale state) and
// panics rather than returning a value that looks usable.
func (e *Exchange) Finish(peerMsg []byte) ([32]byte, error) {
	if e.finished {
		panic(ErrAlreadyFinished)
	}
	e.finished = true

	var zero [32]byte
	peerPoint, err := edwards25519.NewIdentityPoint().SetBytes(peerMsg)
	if err != nil {
		return zero, ErrInvalidMessage
	}

	w, err := passwordScalar(e.password)
	if err != nil {
		return zero, fmt.Errorf("spake2: password scalar: %w", err)
	}

	// shared = x * (peerPoint - w*M) = x*y*G
	wM := edwards25519.NewIdentityPoint().ScalarMult(w, blindingPoint())
	unblinded := edwards25519.NewIdentityPoint().Subtract(peerPoint, wM)
	shared := edwards25519.NewIdentityPoint().ScalarMult(e.x, unblinded)

	h := sha512.New()
	h.Write([]byte("relay-spake2-confirm"))
	h.Write([]byte(sharedIdentity))
	h.Write(shared.Bytes())
	digest := h.Sum(nil)

	var key [32]byte
	copy(key[:], digest[:32])
	return key, nil
}
