package mpintest

import (
	"math/big"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mpincrypto "github.com/layer-3/mpin/adapters/crypto/bn254"
)

// newTestIdentity registers an identity directly against the platform
// state and returns it along with the signing private key, which in the
// real flow only the client ever sees.
func newTestIdentity(t *testing.T, p *Platform) (*identity, []byte) {
	t.Helper()

	keyPair, err := p.crypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	mpinID := uuid.New()
	id := &identity{
		userID:    "alice@example.com",
		projectID: "project-1",
		mpinID:    mpinID[:],
		dtas:      uuid.NewString(),
		publicKey: keyPair.PublicKey,
		curve:     "BN254",
	}
	require.NoError(t, p.issueShares(id))
	return id, keyPair.PrivateKey
}

func TestSharesCombineToClientSecret(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	id, _ := newTestIdentity(t, p)

	s1, err := decodeG1(id.share0)
	require.NoError(t, err)
	s2, err := decodeG1(id.share1)
	require.NoError(t, err)

	var combined bn254.G1Affine
	combined.Add(s1, s2)

	a, err := mpincrypto.HashSubject(proofSubject(id))
	require.NoError(t, err)

	var sBig big.Int
	p.master.BigInt(&sBig)
	var want bn254.G1Affine
	want.ScalarMultiplication(&a, &sBig)

	assert.True(t, combined.Equal(&want), "shares must combine to s·A")
}

func TestVerifyProofDecidesByPin(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	id, privateKey := newTestIdentity(t, p)
	subject := proofSubject(id)
	const pin = 4321

	token, err := p.crypto.GetSigningClientToken(id.share0, id.share1, privateKey, subject, pin)
	require.NoError(t, err)

	runRound := func(enteredPin int) bool {
		proof, err := p.crypto.GetClientPass1Proof(subject, token, enteredPin)
		require.NoError(t, err)

		y, err := newChallenge()
		require.NoError(t, err)

		pass2, err := p.crypto.GetClientPass2Proof(proof.X, y, proof.SEC)
		require.NoError(t, err)

		return p.verifyProof(id, proof.U, pass2.V, y)
	}

	assert.True(t, runRound(pin), "correct pin must verify")
	assert.False(t, runRound(pin+1), "wrong pin must not verify")
}

func TestIssueAndParseJWT(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	token, err := p.issueJWT("alice@example.com", "project-1", scopeJWT)
	require.NoError(t, err)

	claims, err := p.ParseJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Subject)
	assert.Contains(t, claims.Audience, "project-1")
	assert.Equal(t, scopeJWT, claims.Scope)
	assert.True(t, claims.ExpiresAt.After(time.Now()))

	_, err = p.ParseJWT(token, jwt.WithAudience("other-project"))
	assert.Error(t, err)

	_, err = p.ParseJWT("not-a-token")
	assert.Error(t, err)
}

func TestSessionHelpers(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	p.baseURL = "http://platform.local"

	accessID, qrURL := p.CreateSession("project-1", "")
	assert.Equal(t, "http://platform.local/mobile-login/#"+accessID, qrURL)
	assert.Empty(t, p.SessionUser(accessID))

	sessionID, signingURL := p.CreateSigningSession("project-1", "alice@example.com", "deadbeef", "contract")
	assert.Equal(t, "http://platform.local/dvs/#"+sessionID, signingURL)
	assert.Nil(t, p.SessionSignature(sessionID))
}

func TestTriggerSecretRenewalRequiresRegistration(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	assert.False(t, p.TriggerSecretRenewal("project-1", "nobody@example.com"))
}
