package mpin_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/mpin"
	"github.com/layer-3/mpin/mpintest"
)

const (
	projectID = "integration-project"
	userID    = "alice@example.com"
	goodPin   = "1234"
	wrongPin  = "9999"
)

func startPlatform(t *testing.T) *mpintest.Platform {
	t.Helper()
	platform, err := mpintest.New()
	require.NoError(t, err)
	platform.Start()
	t.Cleanup(platform.Close)
	return platform
}

func newClient(t *testing.T, platform *mpintest.Platform, project string) *mpin.Client {
	t.Helper()
	client, err := mpin.New(project,
		mpin.WithBaseURL(platform.URL()),
		mpin.WithDeviceName("integration-test"),
		mpin.WithoutLogging(),
	)
	require.NoError(t, err)
	return client
}

func pinOf(pin string) mpin.PinProvider {
	return func(context.Context) (string, error) { return pin, nil }
}

func register(t *testing.T, platform *mpintest.Platform, client *mpin.Client, user, pin string) *mpin.User {
	t.Helper()
	token := platform.CreateActivationToken(client.Project(), user)
	registered, err := client.Register(context.Background(), user, token, "", pinOf(pin))
	require.NoError(t, err)
	return registered
}

func TestRegisterAndAuthenticate(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)
	assert.Equal(t, userID, user.UserID)
	assert.Equal(t, projectID, user.ProjectID)
	assert.Equal(t, len(goodPin), user.PinLength)
	assert.NotEmpty(t, user.MPinID)
	assert.NotEmpty(t, user.Token)
	assert.NotEmpty(t, user.DTAS)

	stored, err := client.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.MPinID, stored.MPinID)

	token, err := client.Authenticate(ctx, user, pinOf(goodPin))
	require.NoError(t, err)

	claims, err := platform.ParseJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Contains(t, claims.Audience, projectID)
	assert.Equal(t, "jwt", claims.Scope)
}

func TestRegisterRejectsReusedActivationToken(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	token := platform.CreateActivationToken(projectID, userID)
	_, err := client.Register(ctx, userID, token, "", pinOf(goodPin))
	require.NoError(t, err)

	_, err = client.Register(ctx, userID, token, "", pinOf(goodPin))
	assert.ErrorIs(t, err, mpin.ErrInvalidActivationToken)

	_, err = client.Register(ctx, userID, "made-up-token", "", pinOf(goodPin))
	assert.ErrorIs(t, err, mpin.ErrInvalidActivationToken)
}

func TestRegisterProjectMismatch(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)

	foreign := platform.CreateActivationToken("other-project", userID)
	_, err := client.Register(context.Background(), userID, foreign, "", pinOf(goodPin))
	assert.ErrorIs(t, err, mpin.ErrProjectMismatch)
}

func TestRegisterHonorsProjectPinLength(t *testing.T) {
	platform := startPlatform(t)
	platform.SetProject(mpintest.Project{
		ID:                 "strict-pin-project",
		Name:               "Strict PIN",
		PinLength:          5,
		VerificationMethod: "code",
	})
	client := newClient(t, platform, "strict-pin-project")

	token := platform.CreateActivationToken("strict-pin-project", userID)
	_, err := client.Register(context.Background(), userID, token, "", pinOf("1234"))
	assert.ErrorIs(t, err, mpin.ErrInvalidPin)

	user := register(t, platform, client, userID, "12345")
	assert.Equal(t, 5, user.PinLength)
}

func TestAuthenticateWrongPinThenRecover(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)

	_, err := client.Authenticate(ctx, user, pinOf(wrongPin))
	assert.ErrorIs(t, err, mpin.ErrUnsuccessfulAuthentication)
	assert.False(t, user.Revoked)

	// A correct proof clears the strike count.
	_, err = client.Authenticate(ctx, user, pinOf(goodPin))
	require.NoError(t, err)
}

func TestThreeWrongPinsRevoke(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)

	for i := 0; i < 2; i++ {
		_, err := client.Authenticate(ctx, user, pinOf(wrongPin))
		assert.ErrorIs(t, err, mpin.ErrUnsuccessfulAuthentication)
	}

	_, err := client.Authenticate(ctx, user, pinOf(wrongPin))
	assert.ErrorIs(t, err, mpin.ErrRevoked)
	assert.True(t, user.Revoked)
	assert.True(t, platform.Revoked(projectID, userID))

	stored, err := client.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)

	// Even the right PIN is refused now, without reaching the platform.
	_, err = client.Authenticate(ctx, user, pinOf(goodPin))
	assert.ErrorIs(t, err, mpin.ErrRevoked)

	// Registering anew clears the revocation.
	user = register(t, platform, client, userID, goodPin)
	assert.False(t, user.Revoked)
	_, err = client.Authenticate(ctx, user, pinOf(goodPin))
	require.NoError(t, err)
}

func TestExpiredIdentityRevokesLocally(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)
	require.True(t, platform.ExpireIdentity(projectID, userID))

	_, err := client.Authenticate(ctx, user, pinOf(goodPin))
	assert.ErrorIs(t, err, mpin.ErrRevoked)
	assert.True(t, user.Revoked)

	stored, err := client.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)
}

func TestSecretRenewal(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)
	originalMPinID := hex.EncodeToString(user.MPinID)

	require.True(t, platform.TriggerSecretRenewal(projectID, userID))

	token, err := client.Authenticate(ctx, user, pinOf(goodPin))
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// The identity was transparently re-registered mid-authentication.
	assert.NotEqual(t, originalMPinID, hex.EncodeToString(user.MPinID))

	stored, err := client.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.MPinID, stored.MPinID)

	_, err = client.Authenticate(ctx, user, pinOf(goodPin))
	require.NoError(t, err)
}

func TestSignAndVerify(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)

	digest := sha256.Sum256([]byte("the agreement text"))
	result, err := client.Sign(ctx, digest[:], user, pinOf(goodPin))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), result.Timestamp, time.Minute)

	assert.True(t, platform.VerifySignature(&result.Signature))

	// Any altered field breaks the designated-verifier check.
	tampered := result.Signature
	otherDigest := sha256.Sum256([]byte("the agreement text, amended"))
	tampered.Hash = hex.EncodeToString(otherDigest[:])
	assert.False(t, platform.VerifySignature(&tampered))

	tampered = result.Signature
	tampered.Timestamp++
	assert.False(t, platform.VerifySignature(&tampered))

	tampered = result.Signature
	tampered.U, tampered.V = tampered.V, tampered.U
	assert.False(t, platform.VerifySignature(&tampered))
}

func TestSignRejectsWrongPin(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)

	user := register(t, platform, client, userID, goodPin)

	digest := sha256.Sum256([]byte("payload"))
	_, err := client.Sign(context.Background(), digest[:], user, pinOf(wrongPin))
	assert.ErrorIs(t, err, mpin.ErrUnsuccessfulAuthentication)
}

func TestSigningSessionFlow(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)

	digest := sha256.Sum256([]byte("sign me elsewhere"))
	sessionID, qrURL := platform.CreateSigningSession(projectID, userID, hex.EncodeToString(digest[:]), "a contract")

	details, err := client.GetSigningSessionDetailsFromAppLink(ctx, qrURL)
	require.NoError(t, err)
	assert.Equal(t, sessionID, details.SessionID)
	assert.Equal(t, hex.EncodeToString(digest[:]), details.SigningHash)
	assert.Equal(t, "a contract", details.SigningDescription)
	assert.Equal(t, mpin.SessionStatusActive, details.Status)

	// Signing a different document than the session's is refused locally.
	foreign := sha256.Sum256([]byte("not that document"))
	_, err = client.SignWithSigningSession(ctx, foreign[:], user, details, pinOf(goodPin))
	assert.ErrorIs(t, err, mpin.ErrInvalidSigningSession)

	result, err := client.SignWithSigningSession(ctx, digest[:], user, details, pinOf(goodPin))
	require.NoError(t, err)

	delivered := platform.SessionSignature(sessionID)
	require.NotNil(t, delivered)
	assert.Equal(t, result.Signature, *delivered)
	assert.True(t, platform.VerifySignature(delivered))
}

func TestAbortSigningSession(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	digest := sha256.Sum256([]byte("abandoned"))
	_, qrURL := platform.CreateSigningSession(projectID, userID, hex.EncodeToString(digest[:]), "")

	details, err := client.GetSigningSessionDetailsFromQRCode(ctx, qrURL)
	require.NoError(t, err)

	require.NoError(t, client.AbortSigningSession(ctx, details))

	_, err = client.GetSigningSessionDetailsFromQRCode(ctx, qrURL)
	assert.ErrorIs(t, err, mpin.ErrInvalidSigningSession)
}

func TestCrossDeviceAuthentication(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)

	accessID, qrURL := platform.CreateSession(projectID, "")

	details, err := client.GetAuthenticationSessionDetailsFromQRCode(ctx, qrURL)
	require.NoError(t, err)
	assert.Equal(t, accessID, details.AccessID)
	assert.Equal(t, projectID, details.ProjectID)

	require.NoError(t, client.AuthenticateWithQRCode(ctx, user, qrURL, pinOf(goodPin)))
	assert.Equal(t, userID, platform.SessionUser(accessID))
}

func TestAbortAuthenticationSession(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	_, qrURL := platform.CreateSession(projectID, "")

	details, err := client.GetAuthenticationSessionDetailsFromQRCode(ctx, qrURL)
	require.NoError(t, err)

	require.NoError(t, client.AbortAuthenticationSession(ctx, details))

	_, err = client.GetAuthenticationSessionDetailsFromQRCode(ctx, qrURL)
	assert.ErrorIs(t, err, mpin.ErrInvalidAuthenticationSession)
}

func TestAuthenticateWithNotificationPayload(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	register(t, platform, client, userID, goodPin)

	accessID, qrURL := platform.CreateSession(projectID, "")
	payload := map[string]string{
		"projectID": projectID,
		"userID":    userID,
		"qrURL":     qrURL,
	}

	require.NoError(t, client.AuthenticateWithNotificationPayload(ctx, payload, pinOf(goodPin)))
	assert.Equal(t, userID, platform.SessionUser(accessID))

	err := client.AuthenticateWithNotificationPayload(ctx, map[string]string{"userID": userID}, pinOf(goodPin))
	assert.ErrorIs(t, err, mpin.ErrInvalidPushNotificationPayload)
}

func TestCrossDeviceUnifiedSessions(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	user := register(t, platform, client, userID, goodPin)

	// Authentication-originated: no signing hash, log in directly.
	accessID, authQR := platform.CreateSession(projectID, "")
	session, err := client.GetCrossDeviceSessionFromQRCode(ctx, authQR)
	require.NoError(t, err)
	assert.Empty(t, session.SigningHash)

	require.NoError(t, client.AuthenticateWithCrossDeviceSession(ctx, user, session, pinOf(goodPin)))
	assert.Equal(t, userID, platform.SessionUser(accessID))

	// Signing-originated: hash present, sign instead.
	digest := sha256.Sum256([]byte("cross-device document"))
	sessionID, signQR := platform.CreateSigningSession(projectID, userID, hex.EncodeToString(digest[:]), "expense report")

	session, err = client.GetCrossDeviceSessionFromQRCode(ctx, signQR)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(digest[:]), session.SigningHash)
	assert.Equal(t, "expense report", session.SigningDescription)

	_, err = client.SignWithCrossDeviceSession(ctx, digest[:], user, session, pinOf(goodPin))
	require.NoError(t, err)
	require.NotNil(t, platform.SessionSignature(sessionID))

	// Either origin aborts through the same descriptor.
	_, abortQR := platform.CreateSession(projectID, "")
	session, err = client.GetCrossDeviceSessionFromQRCode(ctx, abortQR)
	require.NoError(t, err)
	require.NoError(t, client.AbortCrossDeviceSession(ctx, session))
	_, err = client.GetCrossDeviceSessionFromQRCode(ctx, abortQR)
	assert.ErrorIs(t, err, mpin.ErrInvalidAuthenticationSession)
}

func TestEmailVerificationFlow(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	resp, err := client.SendVerificationEmail(ctx, userID, nil)
	require.NoError(t, err)
	assert.Equal(t, "code", resp.Method)
	assert.Greater(t, resp.Backoff, int64(0))

	link := platform.VerificationURL(projectID, userID)
	require.NotEmpty(t, link)

	activation, err := client.GetActivationTokenFromURL(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, userID, activation.UserID)
	assert.Equal(t, projectID, activation.ProjectID)
	require.NotEmpty(t, activation.ActivationToken)

	user, err := client.Register(ctx, userID, activation.ActivationToken, "", pinOf(goodPin))
	require.NoError(t, err)

	_, err = client.Authenticate(ctx, user, pinOf(goodPin))
	require.NoError(t, err)
}

func TestVerificationRejectsWrongCode(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	_, err := client.SendVerificationEmail(ctx, userID, nil)
	require.NoError(t, err)

	// Seven digits can never have been issued.
	_, err = client.GetActivationToken(ctx, userID, "0000000")
	assert.ErrorIs(t, err, mpin.ErrUnsuccessfulVerification)

	var verErr *mpin.UnsuccessfulVerificationError
	require.ErrorAs(t, err, &verErr)
	assert.Equal(t, userID, verErr.UserID)
}

func TestVerificationBackoff(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)
	ctx := context.Background()

	until := time.Now().Add(time.Hour)
	platform.SetVerificationBackoff(until)

	_, err := client.SendVerificationEmail(ctx, userID, nil)
	assert.ErrorIs(t, err, mpin.ErrRequestBackoff)

	var backoffErr *mpin.RequestBackoffError
	require.ErrorAs(t, err, &backoffErr)
	assert.Equal(t, until.Unix(), backoffErr.Backoff)

	platform.SetVerificationBackoff(time.Time{})
	_, err = client.SendVerificationEmail(ctx, userID, nil)
	require.NoError(t, err)
}

func TestQuickCodeFlow(t *testing.T) {
	platform := startPlatform(t)
	platform.SetProject(mpintest.Project{
		ID:                 projectID,
		Name:               "Integration",
		VerificationMethod: "code",
		LimitQuickCode:     true,
	})
	ctx := context.Background()

	deskClient := newClient(t, platform, projectID)
	user := register(t, platform, deskClient, userID, goodPin)

	quickCode, err := deskClient.GenerateQuickCode(ctx, user, pinOf(goodPin))
	require.NoError(t, err)
	require.NotEmpty(t, quickCode.Code)
	assert.Positive(t, quickCode.TTLSeconds)

	// A second device redeems the code and ends up with its own identity.
	phoneClient := newClient(t, platform, projectID)
	activation, err := phoneClient.GetActivationToken(ctx, userID, quickCode.Code)
	require.NoError(t, err)

	phoneUser, err := phoneClient.Register(ctx, userID, activation.ActivationToken, "", pinOf("5678"))
	require.NoError(t, err)
	assert.NotEqual(t, user.MPinID, phoneUser.MPinID)

	_, err = phoneClient.Authenticate(ctx, phoneUser, pinOf("5678"))
	require.NoError(t, err)

	// The first identity keeps working alongside the new one.
	_, err = deskClient.Authenticate(ctx, user, pinOf(goodPin))
	require.NoError(t, err)

	// QuickCode-registered users may not mint further QuickCodes here.
	_, err = phoneClient.GenerateQuickCode(ctx, phoneUser, pinOf("5678"))
	assert.ErrorIs(t, err, mpin.ErrLimitedQuickCodeGeneration)
}

func TestQuickCodeWrongPin(t *testing.T) {
	platform := startPlatform(t)
	client := newClient(t, platform, projectID)

	user := register(t, platform, client, userID, goodPin)

	_, err := client.GenerateQuickCode(context.Background(), user, pinOf(wrongPin))
	assert.ErrorIs(t, err, mpin.ErrUnsuccessfulAuthentication)
}
