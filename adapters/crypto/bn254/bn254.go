// Package bn254 implements the M-Pin protocol primitives on the BN254
// pairing curve using gnark-crypto.
//
// An identity's client secret is the G1 point s·A, where s is the
// platform's master secret and A the hash of the proof subject to G1. The
// platform hands it out as two shares s1·A and s2·A that only ever meet on
// the client. The stored token z·s·A − pin·A additionally folds in the
// signing private key z and subtracts the PIN multiple, so neither the
// token alone nor the PIN alone is useful to an attacker.
package bn254

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/layer-3/mpin/core"
)

// CurveName is the curve identifier this provider serves, as reported by
// the platform in registration responses.
const CurveName = "BN254"

// Domain separation tags for hashing subjects to G1 and challenges to the
// scalar field.
var (
	g1DST     = []byte("MPIN-V1:BN254G1_XMD:SHA-256_SVDW_RO_")
	scalarDST = []byte("MPIN-V1:BN254FR_XMD:SHA-256_RO_")
)

// Provider implements the ports.Crypto primitives on BN254. It is
// stateless and safe for concurrent use.
type Provider struct{}

// New creates a BN254 crypto provider.
func New() *Provider { return &Provider{} }

// SupportsCurve reports whether name identifies the BN254 curve.
func (p *Provider) SupportsCurve(name string) bool { return name == CurveName }

// GenerateSigningKeyPair samples a random scalar z and returns (z·G2, z).
func (p *Provider) GenerateSigningKeyPair() (core.SigningKeyPair, error) {
	var z fr.Element
	if _, err := z.SetRandom(); err != nil {
		return core.SigningKeyPair{}, fmt.Errorf("failed to sample private key: %w", err)
	}

	var zBig big.Int
	z.BigInt(&zBig)

	var pub bn254.G2Affine
	pub.ScalarMultiplicationBase(&zBig)

	priv := z.Bytes()
	pubBytes := pub.Bytes()
	return core.SigningKeyPair{PublicKey: pubBytes[:], PrivateKey: priv[:]}, nil
}

// GetSigningClientToken combines the two secret shares into s·A, folds in
// the signing private key and locks the result with the PIN:
// token = z·(share1+share2) − pin·A.
func (p *Provider) GetSigningClientToken(share1, share2, privateKey, subject []byte, pin int) ([]byte, error) {
	if pin < 0 {
		return nil, errors.New("negative pin")
	}

	cs1, err := decodeG1(share1)
	if err != nil {
		return nil, fmt.Errorf("invalid first secret share: %w", err)
	}
	cs2, err := decodeG1(share2)
	if err != nil {
		return nil, fmt.Errorf("invalid second secret share: %w", err)
	}

	var cs bn254.G1Affine
	cs.Add(cs1, cs2)
	if cs.IsInfinity() {
		return nil, errors.New("combined client secret is the point at infinity")
	}

	a, err := HashSubject(subject)
	if err != nil {
		return nil, err
	}

	var z fr.Element
	z.SetBytes(privateKey)
	if z.IsZero() {
		return nil, errors.New("invalid signing private key")
	}
	var zBig big.Int
	z.BigInt(&zBig)

	var token bn254.G1Affine
	token.ScalarMultiplication(&cs, &zBig)

	var pinA bn254.G1Affine
	pinA.ScalarMultiplication(&a, big.NewInt(int64(pin)))
	token.Sub(&token, &pinA)

	out := token.Bytes()
	return out[:], nil
}

// GetClientPass1Proof reassembles the client secret SEC = token + pin·A,
// samples the round scalar x and commits with U = x·A.
func (p *Provider) GetClientPass1Proof(subject, token []byte, pin int) (core.Pass1Proof, error) {
	if pin < 0 {
		return core.Pass1Proof{}, errors.New("negative pin")
	}

	tok, err := decodeG1(token)
	if err != nil {
		return core.Pass1Proof{}, fmt.Errorf("invalid token: %w", err)
	}

	a, err := HashSubject(subject)
	if err != nil {
		return core.Pass1Proof{}, err
	}

	var pinA bn254.G1Affine
	pinA.ScalarMultiplication(&a, big.NewInt(int64(pin)))

	var sec bn254.G1Affine
	sec.Add(tok, &pinA)

	var x fr.Element
	if _, err := x.SetRandom(); err != nil {
		return core.Pass1Proof{}, fmt.Errorf("failed to sample round scalar: %w", err)
	}
	var xBig big.Int
	x.BigInt(&xBig)

	var u bn254.G1Affine
	u.ScalarMultiplication(&a, &xBig)

	xBytes := x.Bytes()
	secBytes := sec.Bytes()
	uBytes := u.Bytes()
	return core.Pass1Proof{X: xBytes[:], SEC: secBytes[:], U: uBytes[:]}, nil
}

// GetClientPass2Proof answers the challenge y with V = −(x+y)·SEC.
func (p *Provider) GetClientPass2Proof(x, y, sec []byte) (core.Pass2Proof, error) {
	secPoint, err := decodeG1(sec)
	if err != nil {
		return core.Pass2Proof{}, fmt.Errorf("invalid pass 1 secret: %w", err)
	}

	var xe, ye, w fr.Element
	xe.SetBytes(x)
	ye.SetBytes(y)
	w.Add(&xe, &ye)
	w.Neg(&w)

	var wBig big.Int
	w.BigInt(&wBig)

	var v bn254.G1Affine
	v.ScalarMultiplication(secPoint, &wBig)

	vBytes := v.Bytes()
	return core.Pass2Proof{V: vBytes[:]}, nil
}

// GetSigningChallenge derives the document-bound challenge
// Hq(y ‖ hash ‖ timestamp). Both sides of the protocol derive it
// independently, so any change to the document breaks verification.
func (p *Provider) GetSigningChallenge(y, hash []byte, timestamp int64) ([]byte, error) {
	if len(hash) == 0 {
		return nil, errors.New("empty document hash")
	}

	buf := make([]byte, 0, len(y)+len(hash)+8)
	buf = append(buf, y...)
	buf = append(buf, hash...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp))

	es, err := fr.Hash(buf, scalarDST, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to hash signing challenge: %w", err)
	}

	out := es[0].Bytes()
	return out[:], nil
}

// HashSubject maps a proof subject (mpinId, optionally followed by the
// signing public key) to a G1 point. The platform performs the identical
// mapping when issuing secret shares and verifying proofs.
func HashSubject(subject []byte) (bn254.G1Affine, error) {
	if len(subject) == 0 {
		return bn254.G1Affine{}, errors.New("empty subject")
	}
	a, err := bn254.HashToG1(subject, g1DST)
	if err != nil {
		return bn254.G1Affine{}, fmt.Errorf("failed to hash subject to curve: %w", err)
	}
	return a, nil
}

func decodeG1(b []byte) (*bn254.G1Affine, error) {
	if len(b) != bn254.SizeOfG1AffineCompressed {
		return nil, fmt.Errorf("want %d bytes, got %d", bn254.SizeOfG1AffineCompressed, len(b))
	}
	var p bn254.G1Affine
	if _, err := p.SetBytes(b); err != nil {
		return nil, err
	}
	return &p, nil
}
