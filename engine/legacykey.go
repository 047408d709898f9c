package engine

import "crypto/sha256"

// deriveLegacyKey derives a 32-byte session key directly from the transfer
// code, with no network exchange at all. It predates the SPAKE2 key
// agreement added for §4's threat model (a passive relay operator must not
// be able to recover the session key by observing the wire) and is kept
// only as an escape hatch for Session.RequireSPAKE2 == false. Nothing in
// this repository ever constructs a session that way.
func deriveLegacyKey(transferCode string) []byte {
	sum := sha256.Sum256([]byte("relay-v1-key-derivation:" + transferCode))
	return sum[:]
}
