// Package mpintest runs a self-contained M-Pin platform for tests, demos
// and local development. It speaks the platform wire protocol the SDK
// expects and decides outcomes with the real math: registrations receive
// genuine secret shares split from a per-instance master secret, and
// authentication verifies the client proof with the pairing equation, so a
// wrong PIN fails exactly as it would against a production deployment.
//
// The platform also plays the relying party: tests create sessions and
// activation tokens through Platform methods instead of the customer
// backend APIs a real deployment would use.
package mpintest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	mpincrypto "github.com/layer-3/mpin/adapters/crypto/bn254"
	"github.com/layer-3/mpin/core"
)

// Lifetimes of the short-lived artifacts the platform hands out.
const (
	activationTokenTTL = 15 * time.Minute
	verificationTTL    = 15 * time.Minute
	quickCodeTTL       = 5 * time.Minute
	sessionTTL         = 15 * time.Minute
	jwtTTL             = 15 * time.Minute

	resendInterval = 30 * time.Second
)

// Identities are revoked after this many consecutive failed proofs.
const maxStrikes = 3

// Project configures per-project behavior. Unknown projects referenced by
// activation tokens or sessions behave like the zero Project.
type Project struct {
	ID                 string
	Name               string
	LogoURL            string
	PinLength          int    // 0 lets the client choose within its own bounds
	VerificationMethod string // "code" or "link", defaults to "code"
	LimitQuickCode     bool   // QuickCode-registered users may not generate QuickCodes
}

// identity is one registered mpinId and its server-side protocol state.
type identity struct {
	userID          string
	projectID       string
	mpinID          []byte
	dtas            string
	publicKey       []byte // Compressed G2, as provided at registration
	curve           string
	pinLength       int
	share0          []byte
	share1          []byte
	strikes         int
	revoked         bool
	renew           bool // Offer a renewal token on the next successful proof
	quickRegistered bool
}

// transcript is an open proof round between pass1 and authenticate.
type transcript struct {
	mpinID    string // Hex, key into identities
	u         []byte // Compressed G1 commitment
	y         []byte // Challenge scalar, canonical 32 bytes
	v         []byte // Compressed G1 proof, set at pass2
	scope     string
	accessID  string
	hash      []byte
	timestamp int64
}

// activation is an outstanding single-use activation token.
type activation struct {
	projectID string
	userID    string
	accessID  string
	expires   time.Time
	quick     bool
}

// verification is an outstanding emailed code or QuickCode.
type verification struct {
	projectID string
	userID    string
	accessID  string
	expires   time.Time
	quick     bool
}

type authSession struct {
	projectID string
	userID    string
	status    string
}

type signingSession struct {
	projectID   string
	userID      string
	hash        string // Hex digest of the document to sign
	description string
	status      string
	expires     time.Time
	signature   *core.Signature
}

// Platform is one in-memory M-Pin platform instance with its own master
// secret and JWT signing key. All methods are safe for concurrent use.
type Platform struct {
	mu sync.Mutex

	baseURL string
	engine  *gin.Engine
	server  *httptest.Server

	master  fr.Element
	signKey *ecdsa.PrivateKey
	crypto  *mpincrypto.Provider

	projects        map[string]Project
	identities      map[string]*identity // By hex mpinId
	current         map[string]string    // projectID/userID -> hex mpinId
	transcripts     map[string]*transcript
	authOTTs        map[string]*transcript
	activations     map[string]*activation
	verifications   map[string]*verification
	lastCodes       map[string]string // projectID/userID -> last issued code
	sessions        map[string]*authSession
	signingSessions map[string]*signingSession
	challenges      map[string][]byte // mpinId/timestamp -> pass1 challenge

	backoffUntil int64
}

// New creates a platform with a fresh master secret and JWT signing key.
// Call Start to serve it from an in-process test server, or Run to listen
// on a real address.
func New() (*Platform, error) {
	p := &Platform{
		crypto:          mpincrypto.New(),
		projects:        make(map[string]Project),
		identities:      make(map[string]*identity),
		current:         make(map[string]string),
		transcripts:     make(map[string]*transcript),
		authOTTs:        make(map[string]*transcript),
		activations:     make(map[string]*activation),
		verifications:   make(map[string]*verification),
		lastCodes:       make(map[string]string),
		sessions:        make(map[string]*authSession),
		signingSessions: make(map[string]*signingSession),
		challenges:      make(map[string][]byte),
	}

	if _, err := p.master.SetRandom(); err != nil {
		return nil, fmt.Errorf("failed to sample master secret: %w", err)
	}

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	p.signKey = signKey

	gin.SetMode(gin.ReleaseMode)
	p.engine = p.setupRouter()
	return p, nil
}

// Start serves the platform from an in-process test server and returns its
// base URL.
func (p *Platform) Start() string {
	p.server = httptest.NewServer(p.engine)
	p.mu.Lock()
	p.baseURL = p.server.URL
	p.mu.Unlock()
	return p.server.URL
}

// Close shuts down the test server started by Start.
func (p *Platform) Close() {
	if p.server != nil {
		p.server.Close()
	}
}

// Run listens on addr, advertising baseURL in share and session links.
func (p *Platform) Run(addr, baseURL string) error {
	p.mu.Lock()
	p.baseURL = baseURL
	p.mu.Unlock()
	return p.engine.Run(addr)
}

// URL returns the advertised base URL.
func (p *Platform) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baseURL
}

// SetProject configures per-project behavior such as a fixed PIN length or
// the verification method.
func (p *Platform) SetProject(project Project) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.projects[project.ID] = project
}

// CreateActivationToken issues an activation token for userID, standing in
// for the verification flow a relying party backend would drive.
func (p *Platform) CreateActivationToken(projectID, userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newActivationToken(projectID, userID, "", false)
}

// CreateSession opens a cross-device authentication session and returns
// its accessId and the QR code URL a browser would display.
func (p *Platform) CreateSession(projectID, userID string) (accessID, qrURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	accessID = uuid.NewString()
	p.sessions[accessID] = &authSession{
		projectID: projectID,
		userID:    userID,
		status:    core.SessionStatusActive,
	}
	return accessID, p.baseURL + "/mobile-login/#" + accessID
}

// CreateSigningSession opens a cross-device signing session for the given
// hex document hash and returns its id and QR code URL.
func (p *Platform) CreateSigningSession(projectID, userID, hash, description string) (sessionID, qrURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessionID = uuid.NewString()
	p.signingSessions[sessionID] = &signingSession{
		projectID:   projectID,
		userID:      userID,
		hash:        hash,
		description: description,
		status:      core.SessionStatusActive,
		expires:     time.Now().Add(sessionTTL),
	}
	return sessionID, p.baseURL + "/dvs/#" + sessionID
}

// SessionUser returns the user bound to an authentication session, empty
// if the session is unknown or unbound.
func (p *Platform) SessionUser(accessID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[accessID]; ok {
		return s.userID
	}
	return ""
}

// SessionSignature returns the signature delivered to a signing session,
// nil while the session is still active.
func (p *Platform) SessionSignature(sessionID string) *core.Signature {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.signingSessions[sessionID]; ok {
		return s.signature
	}
	return nil
}

// TriggerSecretRenewal makes the user's next successful authentication
// carry a renewal token, forcing the SDK to refresh its secret material.
// It reports whether the user has a current registration.
func (p *Platform) TriggerSecretRenewal(projectID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.currentIdentity(projectID, userID)
	if !ok {
		return false
	}
	id.renew = true
	return true
}

// ExpireIdentity drops the user's current registration, making its mpinId
// unknown to the platform the way a migration or retention cleanup would.
// The SDK sees the expired-identity error on its next proof attempt.
func (p *Platform) ExpireIdentity(projectID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := userKey(projectID, userID)
	mpinID, ok := p.current[key]
	if !ok {
		return false
	}
	delete(p.identities, mpinID)
	delete(p.current, key)
	return true
}

// Revoked reports whether the user's current registration has been revoked.
func (p *Platform) Revoked(projectID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.currentIdentity(projectID, userID)
	return ok && id.revoked
}

// VerificationCode returns the code most recently emailed to userID.
func (p *Platform) VerificationCode(projectID, userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCodes[userKey(projectID, userID)]
}

// VerificationURL returns the confirmation link the most recent
// verification email would carry.
func (p *Platform) VerificationURL(projectID, userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	code := p.lastCodes[userKey(projectID, userID)]
	if code == "" {
		return ""
	}
	return fmt.Sprintf("%s/verification/confirmation?user_id=%s&code=%s",
		p.baseURL, url.QueryEscape(userID), url.QueryEscape(code))
}

// SetVerificationBackoff throttles verification emails until the given
// time. The zero time clears the throttle.
func (p *Platform) SetVerificationBackoff(until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if until.IsZero() {
		p.backoffUntil = 0
		return
	}
	p.backoffUntil = until.Unix()
}

// project returns the configuration for projectID, falling back to an
// unconfigured default.
func (p *Platform) project(projectID string) Project {
	if project, ok := p.projects[projectID]; ok {
		return project
	}
	return Project{ID: projectID, Name: projectID, VerificationMethod: "code"}
}

func (p *Platform) currentIdentity(projectID, userID string) (*identity, bool) {
	mpinID, ok := p.current[userKey(projectID, userID)]
	if !ok {
		return nil, false
	}
	id, ok := p.identities[mpinID]
	return id, ok
}

// newActivationToken must be called with p.mu held.
func (p *Platform) newActivationToken(projectID, userID, accessID string, quick bool) string {
	token := uuid.NewString()
	p.activations[token] = &activation{
		projectID: projectID,
		userID:    userID,
		accessID:  accessID,
		expires:   time.Now().Add(activationTokenTTL),
		quick:     quick,
	}
	return token
}

// newVerificationCode must be called with p.mu held.
func (p *Platform) newVerificationCode(projectID, userID, accessID string, quick bool) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", err
	}

	ttl := verificationTTL
	if quick {
		ttl = quickCodeTTL
	}
	p.verifications[code] = &verification{
		projectID: projectID,
		userID:    userID,
		accessID:  accessID,
		expires:   time.Now().Add(ttl),
		quick:     quick,
	}
	p.lastCodes[userKey(projectID, userID)] = code
	return code, nil
}

func userKey(projectID, userID string) string {
	return projectID + "/" + userID
}

func challengeKey(mpinID string, timestamp int64) string {
	return fmt.Sprintf("%s/%d", mpinID, timestamp)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n), nil
}
