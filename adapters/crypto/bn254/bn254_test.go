package bn254

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

// masterSecret plays the platform: it issues the two shares of s·A and
// verifies finished proofs with the pairing check.
type masterSecret struct {
	s fr.Element
}

func newMasterSecret(t *testing.T) *masterSecret {
	t.Helper()
	var s fr.Element
	_, err := s.SetRandom()
	require.NoError(t, err)
	return &masterSecret{s: s}
}

func (m *masterSecret) issueShares(t *testing.T, subject []byte) ([]byte, []byte) {
	t.Helper()
	a, err := HashSubject(subject)
	require.NoError(t, err)

	var s1, s2 fr.Element
	_, err = s1.SetRandom()
	require.NoError(t, err)
	s2.Sub(&m.s, &s1)

	var b1, b2 big.Int
	s1.BigInt(&b1)
	s2.BigInt(&b2)

	var p1, p2 bn254.G1Affine
	p1.ScalarMultiplication(&a, &b1)
	p2.ScalarMultiplication(&a, &b2)

	r1 := p1.Bytes()
	r2 := p2.Bytes()
	return r1[:], r2[:]
}

// verify checks e(V, G2)·e(U + y·A, s·Pa) == 1, the designated-verifier
// equation only the holder of the master secret can evaluate.
func (m *masterSecret) verify(t *testing.T, subject, publicKey, u, y, v []byte) bool {
	t.Helper()
	a, err := HashSubject(subject)
	require.NoError(t, err)

	var uPoint, vPoint bn254.G1Affine
	_, err = uPoint.SetBytes(u)
	require.NoError(t, err)
	_, err = vPoint.SetBytes(v)
	require.NoError(t, err)

	var pa bn254.G2Affine
	_, err = pa.SetBytes(publicKey)
	require.NoError(t, err)

	var ye fr.Element
	ye.SetBytes(y)
	var yBig big.Int
	ye.BigInt(&yBig)

	var ya, uya bn254.G1Affine
	ya.ScalarMultiplication(&a, &yBig)
	uya.Add(&uPoint, &ya)

	var sBig big.Int
	m.s.BigInt(&sBig)
	var spa bn254.G2Affine
	spa.ScalarMultiplication(&pa, &sBig)

	_, _, _, g2 := bn254.Generators()

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{vPoint, uya},
		[]bn254.G2Affine{g2, spa},
	)
	require.NoError(t, err)
	return ok
}

func randomChallenge(t *testing.T) []byte {
	t.Helper()
	var y fr.Element
	_, err := y.SetRandom()
	require.NoError(t, err)
	b := y.Bytes()
	return b[:]
}

func TestProtocolRoundTrip(t *testing.T) {
	provider := New()
	platform := newMasterSecret(t)

	keyPair, err := provider.GenerateSigningKeyPair()
	require.NoError(t, err)

	mpinID := []byte("7b226d70696e223a2274657374227d")
	subject := append(append([]byte{}, mpinID...), keyPair.PublicKey...)

	share1, share2 := platform.issueShares(t, subject)

	const pin = 4321
	token, err := provider.GetSigningClientToken(share1, share2, keyPair.PrivateKey, subject, pin)
	require.NoError(t, err)

	pass1, err := provider.GetClientPass1Proof(subject, token, pin)
	require.NoError(t, err)

	y := randomChallenge(t)
	pass2, err := provider.GetClientPass2Proof(pass1.X, y, pass1.SEC)
	require.NoError(t, err)

	require.True(t, platform.verify(t, subject, keyPair.PublicKey, pass1.U, y, pass2.V))
}

func TestWrongPinFailsVerification(t *testing.T) {
	provider := New()
	platform := newMasterSecret(t)

	keyPair, err := provider.GenerateSigningKeyPair()
	require.NoError(t, err)

	subject := append([]byte("mpin-id"), keyPair.PublicKey...)
	share1, share2 := platform.issueShares(t, subject)

	token, err := provider.GetSigningClientToken(share1, share2, keyPair.PrivateKey, subject, 4321)
	require.NoError(t, err)

	pass1, err := provider.GetClientPass1Proof(subject, token, 1111)
	require.NoError(t, err)

	y := randomChallenge(t)
	pass2, err := provider.GetClientPass2Proof(pass1.X, y, pass1.SEC)
	require.NoError(t, err)

	require.False(t, platform.verify(t, subject, keyPair.PublicKey, pass1.U, y, pass2.V))
}

func TestSigningChallengeBindsDocument(t *testing.T) {
	provider := New()
	y := randomChallenge(t)
	hash := []byte("document-digest-0123456789abcdef")

	c1, err := provider.GetSigningChallenge(y, hash, 1700000000)
	require.NoError(t, err)
	c2, err := provider.GetSigningChallenge(y, hash, 1700000000)
	require.NoError(t, err)
	require.Equal(t, c1, c2)

	altered := append([]byte{}, hash...)
	altered[0] ^= 0x01
	c3, err := provider.GetSigningChallenge(y, altered, 1700000000)
	require.NoError(t, err)
	require.NotEqual(t, c1, c3)

	c4, err := provider.GetSigningChallenge(y, hash, 1700000001)
	require.NoError(t, err)
	require.NotEqual(t, c1, c4)

	_, err = provider.GetSigningChallenge(y, nil, 1700000000)
	require.Error(t, err)
}

func TestSignedProofRejectsAlteredDocument(t *testing.T) {
	provider := New()
	platform := newMasterSecret(t)

	keyPair, err := provider.GenerateSigningKeyPair()
	require.NoError(t, err)

	subject := append([]byte("signer"), keyPair.PublicKey...)
	share1, share2 := platform.issueShares(t, subject)

	const pin = 5150
	token, err := provider.GetSigningClientToken(share1, share2, keyPair.PrivateKey, subject, pin)
	require.NoError(t, err)

	pass1, err := provider.GetClientPass1Proof(subject, token, pin)
	require.NoError(t, err)

	y := randomChallenge(t)
	hash := []byte("contract-digest")
	const timestamp = int64(1700000000)

	yDoc, err := provider.GetSigningChallenge(y, hash, timestamp)
	require.NoError(t, err)
	pass2, err := provider.GetClientPass2Proof(pass1.X, yDoc, pass1.SEC)
	require.NoError(t, err)

	// The verifier derives the same document-bound challenge.
	require.True(t, platform.verify(t, subject, keyPair.PublicKey, pass1.U, yDoc, pass2.V))

	// One flipped byte in the document gives a different challenge.
	altered := append([]byte{}, hash...)
	altered[3] ^= 0xff
	yAltered, err := provider.GetSigningChallenge(y, altered, timestamp)
	require.NoError(t, err)
	require.False(t, platform.verify(t, subject, keyPair.PublicKey, pass1.U, yAltered, pass2.V))
}

func TestGenerateSigningKeyPair(t *testing.T) {
	provider := New()

	keyPair, err := provider.GenerateSigningKeyPair()
	require.NoError(t, err)
	require.Len(t, keyPair.PrivateKey, fr.Bytes)
	require.Len(t, keyPair.PublicKey, bn254.SizeOfG2AffineCompressed)

	var z fr.Element
	z.SetBytes(keyPair.PrivateKey)
	var zBig big.Int
	z.BigInt(&zBig)

	var want bn254.G2Affine
	want.ScalarMultiplicationBase(&zBig)

	var got bn254.G2Affine
	_, err = got.SetBytes(keyPair.PublicKey)
	require.NoError(t, err)
	require.True(t, want.Equal(&got))

	second, err := provider.GenerateSigningKeyPair()
	require.NoError(t, err)
	require.NotEqual(t, keyPair.PrivateKey, second.PrivateKey)
}

func TestTokenRejectsMalformedShares(t *testing.T) {
	provider := New()
	platform := newMasterSecret(t)

	keyPair, err := provider.GenerateSigningKeyPair()
	require.NoError(t, err)

	subject := append([]byte("malformed"), keyPair.PublicKey...)
	share1, share2 := platform.issueShares(t, subject)

	_, err = provider.GetSigningClientToken([]byte("short"), share2, keyPair.PrivateKey, subject, 1234)
	require.Error(t, err)

	garbage := make([]byte, bn254.SizeOfG1AffineCompressed)
	for i := range garbage {
		garbage[i] = 0xff
	}
	_, err = provider.GetSigningClientToken(share1, garbage, keyPair.PrivateKey, subject, 1234)
	require.Error(t, err)

	_, err = provider.GetSigningClientToken(share1, share2, keyPair.PrivateKey, nil, 1234)
	require.Error(t, err)

	_, err = provider.GetSigningClientToken(share1, share2, keyPair.PrivateKey, subject, -1)
	require.Error(t, err)
}

func TestSupportsCurve(t *testing.T) {
	provider := New()
	require.True(t, provider.SupportsCurve("BN254"))
	require.False(t, provider.SupportsCurve("BLS12-381"))
	require.False(t, provider.SupportsCurve(""))
}
