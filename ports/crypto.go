package ports

import "github.com/layer-3/mpin/core"

// Crypto implements the elliptic-curve primitives of the M-Pin protocol.
// Implementations are stateless and safe for concurrent use.
type Crypto interface {
	// GenerateSigningKeyPair creates a fresh key pair for a new identity.
	GenerateSigningKeyPair() (core.SigningKeyPair, error)

	// GetSigningClientToken combines the two server-issued secret shares
	// and the signing private key into the PIN-locked client token for the
	// given proof subject.
	GetSigningClientToken(share1, share2, privateKey, subject []byte, pin int) ([]byte, error)

	// GetClientPass1Proof starts a proof round: it reassembles the client
	// secret from token and PIN and commits to a random scalar.
	GetClientPass1Proof(subject, token []byte, pin int) (core.Pass1Proof, error)

	// GetClientPass2Proof answers the server challenge y using the pass 1
	// artifacts.
	GetClientPass2Proof(x, y, sec []byte) (core.Pass2Proof, error)

	// GetSigningChallenge folds a document hash and signing timestamp into
	// the server challenge, binding the resulting proof to the document.
	GetSigningChallenge(y, hash []byte, timestamp int64) ([]byte, error)

	// SupportsCurve reports whether the provider implements the named curve.
	SupportsCurve(name string) bool
}
