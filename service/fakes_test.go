package service

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	memstore "github.com/layer-3/mpin/adapters/store"
	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/log"
	"github.com/layer-3/mpin/ports"
)

const (
	testProject = "project-1"
	testUserID  = "alice@example.com"
	testDevice  = "test-device"
	testPin     = "1234"
)

// staticPin returns a provider that always supplies pin.
func staticPin(pin string) ports.PinProvider {
	return func(context.Context) (string, error) {
		return pin, nil
	}
}

// fakeAPI implements ports.API with overridable behavior per endpoint and a
// call log. Unset endpoints answer with a consistent happy path.
type fakeAPI struct {
	registerUser          func(ctx context.Context, req ports.RegisterRequest) (*ports.RegisterResponse, error)
	getClientSecretShare  func(ctx context.Context, shareURL string) (*ports.ClientSecretResponse, error)
	pass1                 func(ctx context.Context, req ports.Pass1Request) (*ports.Pass1Response, error)
	pass2                 func(ctx context.Context, req ports.Pass2Request) (*ports.Pass2Response, error)
	authenticate          func(ctx context.Context, req ports.AuthenticateRequest) (*ports.AuthenticateResponse, error)
	sendVerificationEmail func(ctx context.Context, req ports.VerificationRequest) (*core.VerificationResponse, error)
	confirmVerification   func(ctx context.Context, req ports.ConfirmationRequest) (*ports.ConfirmationResponse, error)
	generateQuickCode     func(ctx context.Context, req ports.QuickCodeRequest) (*core.QuickCode, error)
	fetchSessionStatus    func(ctx context.Context, accessID string) (*ports.SessionStatusResponse, error)
	updateSessionStatus   func(ctx context.Context, accessID, userID string) error
	abortSession          func(ctx context.Context, accessID string) error
	fetchSigningSession   func(ctx context.Context, sessionID string) (*ports.SigningSessionResponse, error)
	updateSigningSession  func(ctx context.Context, sessionID string, signature *core.Signature) (string, error)
	abortSigningSession   func(ctx context.Context, sessionID string) error

	calls []string
}

func (f *fakeAPI) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeAPI) RegisterUser(ctx context.Context, req ports.RegisterRequest) (*ports.RegisterResponse, error) {
	f.record("RegisterUser")
	if f.registerUser != nil {
		return f.registerUser(ctx, req)
	}
	return &ports.RegisterResponse{
		MPinID:     hex.EncodeToString([]byte("mpin-" + req.UserID)),
		ProjectID:  req.ProjectID,
		DTAS:       "dtas-1",
		Curve:      "BN254",
		SecretURLs: []string{"https://dta-1.example/share", "https://dta-2.example/share"},
	}, nil
}

func (f *fakeAPI) GetClientSecretShare(ctx context.Context, shareURL string) (*ports.ClientSecretResponse, error) {
	f.record("GetClientSecretShare")
	if f.getClientSecretShare != nil {
		return f.getClientSecretShare(ctx, shareURL)
	}
	return &ports.ClientSecretResponse{DVSClientSecret: "0f0f"}, nil
}

func (f *fakeAPI) Pass1(ctx context.Context, req ports.Pass1Request) (*ports.Pass1Response, error) {
	f.record("Pass1")
	if f.pass1 != nil {
		return f.pass1(ctx, req)
	}
	return &ports.Pass1Response{Y: "1234"}, nil
}

func (f *fakeAPI) Pass2(ctx context.Context, req ports.Pass2Request) (*ports.Pass2Response, error) {
	f.record("Pass2")
	if f.pass2 != nil {
		return f.pass2(ctx, req)
	}
	return &ports.Pass2Response{AuthOTT: "auth-ott"}, nil
}

func (f *fakeAPI) Authenticate(ctx context.Context, req ports.AuthenticateRequest) (*ports.AuthenticateResponse, error) {
	f.record("Authenticate")
	if f.authenticate != nil {
		return f.authenticate(ctx, req)
	}
	return &ports.AuthenticateResponse{JWT: "jwt-token"}, nil
}

func (f *fakeAPI) SendVerificationEmail(ctx context.Context, req ports.VerificationRequest) (*core.VerificationResponse, error) {
	f.record("SendVerificationEmail")
	if f.sendVerificationEmail != nil {
		return f.sendVerificationEmail(ctx, req)
	}
	return &core.VerificationResponse{Backoff: 0, Method: "code"}, nil
}

func (f *fakeAPI) ConfirmVerification(ctx context.Context, req ports.ConfirmationRequest) (*ports.ConfirmationResponse, error) {
	f.record("ConfirmVerification")
	if f.confirmVerification != nil {
		return f.confirmVerification(ctx, req)
	}
	return &ports.ConfirmationResponse{ProjectID: testProject, ActivateToken: "activation-token"}, nil
}

func (f *fakeAPI) GenerateQuickCode(ctx context.Context, req ports.QuickCodeRequest) (*core.QuickCode, error) {
	f.record("GenerateQuickCode")
	if f.generateQuickCode != nil {
		return f.generateQuickCode(ctx, req)
	}
	return &core.QuickCode{Code: "123456", ExpireTime: time.Now().Add(time.Minute).Unix(), TTLSeconds: 60}, nil
}

func (f *fakeAPI) FetchSessionStatus(ctx context.Context, accessID string) (*ports.SessionStatusResponse, error) {
	f.record("FetchSessionStatus")
	if f.fetchSessionStatus != nil {
		return f.fetchSessionStatus(ctx, accessID)
	}
	return &ports.SessionStatusResponse{
		ProjectID:   testProject,
		ProjectName: "Demo Project",
		PinLength:   4,
		Status:      core.SessionStatusActive,
	}, nil
}

func (f *fakeAPI) UpdateSessionStatus(ctx context.Context, accessID, userID string) error {
	f.record("UpdateSessionStatus")
	if f.updateSessionStatus != nil {
		return f.updateSessionStatus(ctx, accessID, userID)
	}
	return nil
}

func (f *fakeAPI) AbortSession(ctx context.Context, accessID string) error {
	f.record("AbortSession")
	if f.abortSession != nil {
		return f.abortSession(ctx, accessID)
	}
	return nil
}

func (f *fakeAPI) FetchSigningSession(ctx context.Context, sessionID string) (*ports.SigningSessionResponse, error) {
	f.record("FetchSigningSession")
	if f.fetchSigningSession != nil {
		return f.fetchSigningSession(ctx, sessionID)
	}
	return &ports.SigningSessionResponse{
		ProjectID:   testProject,
		SigningHash: hex.EncodeToString([]byte("document")),
		Status:      core.SessionStatusActive,
		ExpireTime:  time.Now().Add(time.Minute).Unix(),
	}, nil
}

func (f *fakeAPI) UpdateSigningSession(ctx context.Context, sessionID string, signature *core.Signature) (string, error) {
	f.record("UpdateSigningSession")
	if f.updateSigningSession != nil {
		return f.updateSigningSession(ctx, sessionID, signature)
	}
	return core.SessionStatusSigned, nil
}

func (f *fakeAPI) AbortSigningSession(ctx context.Context, sessionID string) error {
	f.record("AbortSigningSession")
	if f.abortSigningSession != nil {
		return f.abortSigningSession(ctx, sessionID)
	}
	return nil
}

// fakeCrypto implements ports.Crypto with deterministic defaults.
type fakeCrypto struct {
	generateSigningKeyPair func() (core.SigningKeyPair, error)
	getSigningClientToken  func(share1, share2, privateKey, subject []byte, pin int) ([]byte, error)
	getClientPass1Proof    func(subject, token []byte, pin int) (core.Pass1Proof, error)
	getClientPass2Proof    func(x, y, sec []byte) (core.Pass2Proof, error)
	getSigningChallenge    func(y, hash []byte, timestamp int64) ([]byte, error)
	supportsCurve          func(name string) bool
}

func (f *fakeCrypto) GenerateSigningKeyPair() (core.SigningKeyPair, error) {
	if f.generateSigningKeyPair != nil {
		return f.generateSigningKeyPair()
	}
	return core.SigningKeyPair{PublicKey: []byte("public-key"), PrivateKey: []byte("private-key")}, nil
}

func (f *fakeCrypto) GetSigningClientToken(share1, share2, privateKey, subject []byte, pin int) ([]byte, error) {
	if f.getSigningClientToken != nil {
		return f.getSigningClientToken(share1, share2, privateKey, subject, pin)
	}
	return []byte("client-token"), nil
}

func (f *fakeCrypto) GetClientPass1Proof(subject, token []byte, pin int) (core.Pass1Proof, error) {
	if f.getClientPass1Proof != nil {
		return f.getClientPass1Proof(subject, token, pin)
	}
	return core.Pass1Proof{X: []byte("x"), SEC: []byte("sec"), U: []byte("u")}, nil
}

func (f *fakeCrypto) GetClientPass2Proof(x, y, sec []byte) (core.Pass2Proof, error) {
	if f.getClientPass2Proof != nil {
		return f.getClientPass2Proof(x, y, sec)
	}
	return core.Pass2Proof{V: []byte("v")}, nil
}

func (f *fakeCrypto) GetSigningChallenge(y, hash []byte, timestamp int64) ([]byte, error) {
	if f.getSigningChallenge != nil {
		return f.getSigningChallenge(y, hash, timestamp)
	}
	return y, nil
}

func (f *fakeCrypto) SupportsCurve(name string) bool {
	if f.supportsCurve != nil {
		return f.supportsCurve(name)
	}
	return name == "BN254"
}

// fakePublisher records published lifecycle events.
type fakePublisher struct {
	registered []*core.User
	revoked    []*core.User
	deleted    []*core.User
	fail       error
}

func (p *fakePublisher) PublishUserRegistered(_ context.Context, user *core.User) error {
	p.registered = append(p.registered, user)
	return p.fail
}

func (p *fakePublisher) PublishUserRevoked(_ context.Context, user *core.User) error {
	p.revoked = append(p.revoked, user)
	return p.fail
}

func (p *fakePublisher) PublishUserDeleted(_ context.Context, user *core.User) error {
	p.deleted = append(p.deleted, user)
	return p.fail
}

// fixture wires the engines against fakes and an in-memory store.
type fixture struct {
	api    *fakeAPI
	crypto *fakeCrypto
	store  ports.UserStore
	events *fakePublisher

	reg      *Registrator
	auth     *Authenticator
	ver      *Verificator
	signer   *Signer
	sessions *AuthenticationSessionManager
	signSess *SigningSessionManager
	crossDev *CrossDeviceSessionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend, err := log.New(nil, "ERROR", true)
	require.NoError(t, err)
	logger := backend.GetLogger("test")

	f := &fixture{
		api:    &fakeAPI{},
		crypto: &fakeCrypto{},
		store:  memstore.NewMemoryStore(),
		events: &fakePublisher{},
	}
	f.reg = NewRegistrator(f.api, f.crypto, f.store, f.events, time.Second, logger)
	f.auth = NewAuthenticator(f.api, f.api, f.crypto, f.store, f.events, f.reg, time.Second, logger)
	f.ver = NewVerificator(f.api, f.store, f.auth, logger)
	f.signer = NewSigner(f.auth, f.api, logger)
	f.sessions = NewAuthenticationSessionManager(f.api, logger)
	f.signSess = NewSigningSessionManager(f.api, logger)
	f.crossDev = NewCrossDeviceSessionManager(f.api, logger)
	return f
}

// register enrolls the standard test identity through the full happy path.
func (f *fixture) register(t *testing.T) *core.User {
	t.Helper()
	user, err := f.reg.Register(context.Background(), testUserID, testProject, "activation-token", testDevice, "", staticPin(testPin))
	require.NoError(t, err)
	return user
}
