package core

import "time"

// Signature is a detached, externally verifiable proof that the holder of a
// registered identity approved the hashed document at the given time. All
// point and byte fields are hex encoded.
type Signature struct {
	MPinID    string `json:"mpinId"`
	U         string `json:"u"`
	V         string `json:"v"`
	PublicKey string `json:"publicKey"`
	DTAS      string `json:"dtas"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// SigningResult is the outcome of a completed signing operation.
type SigningResult struct {
	Signature Signature
	Timestamp time.Time
}

// SigningKeyPair is the ephemeral key pair generated during registration.
// The private key is consumed into the client token and never persisted.
type SigningKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Pass1Proof holds the client-side artifacts of the first proof round.
// X and SEC never leave the process; U is sent to the server.
type Pass1Proof struct {
	X   []byte
	SEC []byte
	U   []byte
}

// Pass2Proof holds the proof value of the second round.
type Pass2Proof struct {
	V []byte
}
