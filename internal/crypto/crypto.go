// Package crypto provides the cryptographic primitives used by the transfer
// engine: AES-256-GCM chunk encryption (aead.go, chunkcrypto.go), streaming
// SHA-256 integrity verification (filehash.go), and certificate fingerprints
// for binding a QUIC endpoint's self-signed TLS identity to the session's
// SPAKE2 secret.
package crypto

import "crypto/sha256"

// FingerprintSize is the length in bytes of a certificate fingerprint.
const FingerprintSize = sha256.Size

// CertFingerprint returns the SHA-256 digest of a DER-encoded certificate.
// Both peers exchange this value under SPAKE2-key encryption so that
// whoever controls the session password is the intended holder of the
// matching private key, independent of the (self-signed, unverified) TLS
// chain itself.
func CertFingerprint(certDER []byte) [FingerprintSize]byte {
	return sha256.Sum256(certDER)
}
