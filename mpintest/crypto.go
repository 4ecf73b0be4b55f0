package mpintest

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	mpincrypto "github.com/layer-3/mpin/adapters/crypto/bn254"
	"github.com/layer-3/mpin/core"
)

// issueShares splits the identity's client secret s·A into two additive
// shares s1·A and s2·A. The full secret exists only on the client after it
// combines them.
func (p *Platform) issueShares(id *identity) error {
	a, err := mpincrypto.HashSubject(proofSubject(id))
	if err != nil {
		return err
	}

	var s1, s2 fr.Element
	if _, err := s1.SetRandom(); err != nil {
		return fmt.Errorf("failed to sample share scalar: %w", err)
	}
	s2.Sub(&p.master, &s1)

	var b1, b2 big.Int
	s1.BigInt(&b1)
	s2.BigInt(&b2)

	var p1, p2 bn254.G1Affine
	p1.ScalarMultiplication(&a, &b1)
	p2.ScalarMultiplication(&a, &b2)

	o1 := p1.Bytes()
	o2 := p2.Bytes()
	id.share0 = o1[:]
	id.share1 = o2[:]
	return nil
}

// newChallenge samples the pass1 challenge scalar.
func newChallenge() ([]byte, error) {
	var y fr.Element
	if _, err := y.SetRandom(); err != nil {
		return nil, fmt.Errorf("failed to sample challenge: %w", err)
	}
	out := y.Bytes()
	return out[:], nil
}

// verifyProof checks the zero-knowledge proof (U, V) against the challenge
// with the pairing equation e(V, G2) · e(U + y·A, s·Pa) == 1, where A is
// the identity's subject point and Pa its signing public key. The equation
// holds only when V was produced from the client secret s·A locked by the
// correct PIN and the private key behind Pa.
func (p *Platform) verifyProof(id *identity, u, v []byte, challenge []byte) bool {
	a, err := mpincrypto.HashSubject(proofSubject(id))
	if err != nil {
		return false
	}

	uPoint, err := decodeG1(u)
	if err != nil {
		return false
	}
	vPoint, err := decodeG1(v)
	if err != nil {
		return false
	}
	pa, err := decodeG2(id.publicKey)
	if err != nil {
		return false
	}

	var y fr.Element
	y.SetBytes(challenge)
	var yBig big.Int
	y.BigInt(&yBig)

	var ya, t bn254.G1Affine
	ya.ScalarMultiplication(&a, &yBig)
	t.Add(uPoint, &ya)

	var sBig big.Int
	p.master.BigInt(&sBig)
	var spa bn254.G2Affine
	spa.ScalarMultiplication(pa, &sBig)

	_, _, _, g2 := bn254.Generators()

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{*vPoint, t},
		[]bn254.G2Affine{g2, spa},
	)
	return err == nil && ok
}

// VerifySignature verifies a detached signature the way the designated
// verifier endpoint does: the proof must come from a live registration,
// reuse the challenge issued for its round and satisfy the pairing
// equation under the document-bound challenge. Any altered field, document
// byte or timestamp breaks it.
func (p *Platform) VerifySignature(sig *core.Signature) bool {
	if sig == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verifySignature(sig)
}

// verifySignature must be called with p.mu held.
func (p *Platform) verifySignature(sig *core.Signature) bool {
	id, ok := p.identities[sig.MPinID]
	if !ok || id.revoked {
		return false
	}
	if sig.DTAS != id.dtas {
		return false
	}

	publicKey, err := hex.DecodeString(sig.PublicKey)
	if err != nil || !bytes.Equal(publicKey, id.publicKey) {
		return false
	}

	y, ok := p.challenges[challengeKey(sig.MPinID, sig.Timestamp)]
	if !ok {
		return false
	}

	hash, err := hex.DecodeString(sig.Hash)
	if err != nil || len(hash) == 0 {
		return false
	}
	challenge, err := p.crypto.GetSigningChallenge(y, hash, sig.Timestamp)
	if err != nil {
		return false
	}

	u, err := hex.DecodeString(sig.U)
	if err != nil {
		return false
	}
	v, err := hex.DecodeString(sig.V)
	if err != nil {
		return false
	}

	return p.verifyProof(id, u, v, challenge)
}

// proofSubject mirrors the subject the client commits to: the mpinId
// followed by the signing public key.
func proofSubject(id *identity) []byte {
	subject := make([]byte, 0, len(id.mpinID)+len(id.publicKey))
	subject = append(subject, id.mpinID...)
	return append(subject, id.publicKey...)
}

func decodeG1(b []byte) (*bn254.G1Affine, error) {
	if len(b) != bn254.SizeOfG1AffineCompressed {
		return nil, fmt.Errorf("want %d bytes, got %d", bn254.SizeOfG1AffineCompressed, len(b))
	}
	var point bn254.G1Affine
	if _, err := point.SetBytes(b); err != nil {
		return nil, err
	}
	return &point, nil
}

func decodeG2(b []byte) (*bn254.G2Affine, error) {
	if len(b) != bn254.SizeOfG2AffineCompressed {
		return nil, fmt.Errorf("want %d bytes, got %d", bn254.SizeOfG2AffineCompressed, len(b))
	}
	var point bn254.G2Affine
	if _, err := point.SetBytes(b); err != nil {
		return nil, err
	}
	return &point, nil
}
