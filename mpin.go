// Package mpin is a client SDK for the M-Pin protocol: PIN-based
// multi-factor authentication with zero-knowledge proofs. The PIN never
// leaves the device and is never stored; what is stored is a PIN-locked
// token that is useless without the PIN that locked it.
//
// A Client is scoped to one platform project. It registers identities,
// authenticates them for JWTs or cross-device sessions, signs document
// hashes and drives email and QuickCode verification flows. Registered
// identities are kept in a pluggable UserStore, in memory unless
// configured otherwise.
package mpin

import (
	"context"
	"os"
	"strings"

	"gopkg.in/op/go-logging.v1"

	"github.com/layer-3/mpin/adapters/api"
	"github.com/layer-3/mpin/adapters/crypto/bn254"
	"github.com/layer-3/mpin/adapters/events"
	"github.com/layer-3/mpin/adapters/store"
	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/log"
	"github.com/layer-3/mpin/ports"
	"github.com/layer-3/mpin/service"
)

// Version is the SDK version reported to the platform with every request.
const Version = "1.2.0"

// Domain types, re-exported from the core package.
type (
	User                         = core.User
	AuthenticationSessionDetails = core.AuthenticationSessionDetails
	SigningSessionDetails        = core.SigningSessionDetails
	CrossDeviceSession           = core.CrossDeviceSession
	Signature                    = core.Signature
	SigningResult                = core.SigningResult
	VerificationResponse         = core.VerificationResponse
	ActivationTokenResponse      = core.ActivationTokenResponse
	QuickCode                    = core.QuickCode

	// PinProvider supplies the user's PIN for a single operation. It may
	// block, bounded by the configured PIN wait, and is invoked at most
	// once per operation.
	PinProvider = ports.PinProvider
)

// Cross-device session statuses.
const (
	SessionStatusActive = core.SessionStatusActive
	SessionStatusSigned = core.SessionStatusSigned
)

// Client talks to one M-Pin platform project.
type Client struct {
	projectID  string
	deviceName string

	store  ports.UserStore
	events ports.EventPublisher

	registrator   *service.Registrator
	authenticator *service.Authenticator
	verificator   *service.Verificator
	signer        *service.Signer

	authSessions    *service.AuthenticationSessionManager
	signingSessions *service.SigningSessionManager
	crossDevice     *service.CrossDeviceSessionManager

	log *logging.Logger
}

// New creates a Client for the given platform project.
func New(projectID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, core.ErrEmptyProjectID
	}

	cfg := config{
		baseURL:  DefaultBaseURL,
		logLevel: "WARNING",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.deviceName == "" {
		cfg.deviceName = defaultDeviceName()
	}

	backend, err := log.New(cfg.logWriter, cfg.logLevel, cfg.logDisable)
	if err != nil {
		return nil, err
	}

	platform := cfg.api
	if platform == nil {
		exec := cfg.executor
		if exec == nil {
			exec = api.NewHTTPExecutor(cfg.httpClient, "mpin-go/"+Version)
		}
		platform = api.NewClient(cfg.baseURL, exec, backend.GetLogger("api"))
	}

	userStore := cfg.store
	if userStore == nil {
		userStore = store.NewMemoryStore()
	}
	provider := cfg.crypto
	if provider == nil {
		provider = bn254.New()
	}
	publisher := cfg.events
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}

	registrator := service.NewRegistrator(
		platform, provider, userStore, publisher, cfg.pinWait, backend.GetLogger("registration"))
	authenticator := service.NewAuthenticator(
		platform, platform, provider, userStore, publisher, registrator, cfg.pinWait, backend.GetLogger("authentication"))
	verificator := service.NewVerificator(
		platform, userStore, authenticator, backend.GetLogger("verification"))
	signer := service.NewSigner(authenticator, platform, backend.GetLogger("signing"))

	sessionLog := backend.GetLogger("session")

	return &Client{
		projectID:       projectID,
		deviceName:      cfg.deviceName,
		store:           userStore,
		events:          publisher,
		registrator:     registrator,
		authenticator:   authenticator,
		verificator:     verificator,
		signer:          signer,
		authSessions:    service.NewAuthenticationSessionManager(platform, sessionLog),
		signingSessions: service.NewSigningSessionManager(platform, sessionLog),
		crossDevice:     service.NewCrossDeviceSessionManager(platform, sessionLog),
		log:             backend.GetLogger("mpin"),
	}, nil
}

// Project returns the platform project this client is scoped to.
func (c *Client) Project() string { return c.projectID }

// WithProject derives a client scoped to another project of the same
// platform. The derived client shares the user store, connections and
// configuration of the original.
func (c *Client) WithProject(projectID string) (*Client, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, core.ErrEmptyProjectID
	}
	derived := *c
	derived.projectID = projectID
	return &derived, nil
}

// Register enrolls userID in the project using a one-time activation token
// obtained from a verification flow. The provider chooses the PIN that
// locks the new identity. Registering an already known userID replaces its
// secret material in place.
func (c *Client) Register(ctx context.Context, userID, activationToken, pushToken string, provide PinProvider) (*User, error) {
	return c.registrator.Register(ctx, userID, c.projectID, activationToken, c.deviceName, pushToken, provide)
}

// Authenticate proves possession of the user's PIN to the platform and
// returns the issued JWT on success. Three consecutive wrong PINs revoke
// the identity.
func (c *Client) Authenticate(ctx context.Context, user *User, provide PinProvider) (string, error) {
	result, err := c.authenticator.Authenticate(ctx, user, "", provide, service.ScopeJWT, c.deviceName)
	if err != nil {
		return "", err
	}
	return result.JWT, nil
}

// AuthenticateWithAppLink logs the user into the cross-device session
// referenced by an app link of the form https://host/path#accessID.
func (c *Client) AuthenticateWithAppLink(ctx context.Context, user *User, appLink string, provide PinProvider) error {
	_, err := c.authenticator.AuthenticateWithAppLink(ctx, user, appLink, provide, c.deviceName)
	return err
}

// AuthenticateWithQRCode logs the user into the cross-device session
// referenced by a scanned QR code URL.
func (c *Client) AuthenticateWithQRCode(ctx context.Context, user *User, qrCode string, provide PinProvider) error {
	_, err := c.authenticator.AuthenticateWithQRCode(ctx, user, qrCode, provide, c.deviceName)
	return err
}

// AuthenticateWithNotificationPayload logs in the user referenced by a
// push notification payload carrying projectID, userID and qrURL keys. The
// identity is resolved from the user store.
func (c *Client) AuthenticateWithNotificationPayload(ctx context.Context, payload map[string]string, provide PinProvider) error {
	_, err := c.authenticator.AuthenticateWithNotificationPayload(ctx, payload, provide, c.deviceName)
	return err
}

// AuthenticateWithCrossDeviceSession logs the user into a cross-device
// authentication session previously fetched with one of the
// GetCrossDeviceSession methods.
func (c *Client) AuthenticateWithCrossDeviceSession(ctx context.Context, user *User, session *CrossDeviceSession, provide PinProvider) error {
	if session == nil || strings.TrimSpace(session.SessionID) == "" {
		return core.ErrInvalidCrossDeviceSession
	}
	_, err := c.authenticator.Authenticate(ctx, user, session.SessionID, provide, service.ScopeOIDC, c.deviceName)
	return err
}

// SendVerificationEmail asks the platform to email a verification link or
// code to userID. Session details, when given, tie the verification to
// that cross-device session.
func (c *Client) SendVerificationEmail(ctx context.Context, userID string, session *AuthenticationSessionDetails) (*VerificationResponse, error) {
	return c.verificator.SendVerificationEmail(ctx, userID, c.projectID, c.deviceName, session)
}

// GetActivationTokenFromURL exchanges the verification link from an email
// for a registration activation token.
func (c *Client) GetActivationTokenFromURL(ctx context.Context, verificationURL string) (*ActivationTokenResponse, error) {
	return c.verificator.GetActivationTokenFromURL(ctx, verificationURL)
}

// GetActivationToken exchanges an emailed verification code or a QuickCode
// for a registration activation token.
func (c *Client) GetActivationToken(ctx context.Context, userID, code string) (*ActivationTokenResponse, error) {
	return c.verificator.GetActivationToken(ctx, userID, code)
}

// GenerateQuickCode authenticates the user and returns a short-lived code
// another device can register with, skipping email verification.
func (c *Client) GenerateQuickCode(ctx context.Context, user *User, provide PinProvider) (*QuickCode, error) {
	return c.verificator.GenerateQuickCode(ctx, user, provide, c.deviceName)
}

// Sign authenticates the user under the signing scope and returns a
// designated-verifier signature over hash, the caller-computed document
// digest. Only the platform project can verify the signature.
func (c *Client) Sign(ctx context.Context, hash []byte, user *User, provide PinProvider) (*SigningResult, error) {
	return c.signer.Sign(ctx, hash, user, provide, c.deviceName)
}

// SignWithSigningSession signs the document hash a cross-device signing
// session asks for and delivers the signature to that session. The hash
// must match the session's.
func (c *Client) SignWithSigningSession(ctx context.Context, hash []byte, user *User, session *SigningSessionDetails, provide PinProvider) (*SigningResult, error) {
	return c.signer.SignWithSession(ctx, hash, user, session, provide, c.deviceName)
}

// SignWithCrossDeviceSession signs the document hash a signing-originated
// cross-device session asks for and delivers the signature to it.
func (c *Client) SignWithCrossDeviceSession(ctx context.Context, hash []byte, user *User, session *CrossDeviceSession, provide PinProvider) (*SigningResult, error) {
	return c.signer.SignWithCrossDeviceSession(ctx, hash, user, session, provide, c.deviceName)
}

// GetAuthenticationSessionDetailsFromAppLink fetches the status of the
// authentication session an app link refers to.
func (c *Client) GetAuthenticationSessionDetailsFromAppLink(ctx context.Context, appLink string) (*AuthenticationSessionDetails, error) {
	return c.authSessions.GetFromAppLink(ctx, appLink)
}

// GetAuthenticationSessionDetailsFromQRCode fetches the status of the
// authentication session a QR code refers to.
func (c *Client) GetAuthenticationSessionDetailsFromQRCode(ctx context.Context, qrCode string) (*AuthenticationSessionDetails, error) {
	return c.authSessions.GetFromQRCode(ctx, qrCode)
}

// GetAuthenticationSessionDetailsFromNotificationPayload fetches the
// status of the authentication session a push notification refers to.
func (c *Client) GetAuthenticationSessionDetailsFromNotificationPayload(ctx context.Context, payload map[string]string) (*AuthenticationSessionDetails, error) {
	return c.authSessions.GetFromNotificationPayload(ctx, payload)
}

// AbortAuthenticationSession invalidates an authentication session so no
// further logins can complete it.
func (c *Client) AbortAuthenticationSession(ctx context.Context, details *AuthenticationSessionDetails) error {
	return c.authSessions.Abort(ctx, details)
}

// GetSigningSessionDetailsFromAppLink fetches the signing session an app
// link refers to, including the document hash to sign.
func (c *Client) GetSigningSessionDetailsFromAppLink(ctx context.Context, appLink string) (*SigningSessionDetails, error) {
	return c.signingSessions.GetFromAppLink(ctx, appLink)
}

// GetSigningSessionDetailsFromQRCode fetches the signing session a QR code
// refers to, including the document hash to sign.
func (c *Client) GetSigningSessionDetailsFromQRCode(ctx context.Context, qrCode string) (*SigningSessionDetails, error) {
	return c.signingSessions.GetFromQRCode(ctx, qrCode)
}

// AbortSigningSession invalidates a signing session.
func (c *Client) AbortSigningSession(ctx context.Context, details *SigningSessionDetails) error {
	return c.signingSessions.Abort(ctx, details)
}

// GetCrossDeviceSessionFromAppLink fetches the unified descriptor of the
// session an app link refers to, whether it authenticates or signs.
func (c *Client) GetCrossDeviceSessionFromAppLink(ctx context.Context, appLink string) (*CrossDeviceSession, error) {
	return c.crossDevice.GetFromAppLink(ctx, appLink)
}

// GetCrossDeviceSessionFromQRCode fetches the unified descriptor of the
// session a QR code refers to.
func (c *Client) GetCrossDeviceSessionFromQRCode(ctx context.Context, qrCode string) (*CrossDeviceSession, error) {
	return c.crossDevice.GetFromQRCode(ctx, qrCode)
}

// GetCrossDeviceSessionFromNotificationPayload fetches the unified
// descriptor of the session a push notification refers to.
func (c *Client) GetCrossDeviceSessionFromNotificationPayload(ctx context.Context, payload map[string]string) (*CrossDeviceSession, error) {
	return c.crossDevice.GetFromNotificationPayload(ctx, payload)
}

// AbortCrossDeviceSession invalidates a cross-device session of either
// origin.
func (c *Client) AbortCrossDeviceSession(ctx context.Context, session *CrossDeviceSession) error {
	return c.crossDevice.Abort(ctx, session)
}

// GetUser returns the locally stored identity for userID in this client's
// project, or ErrUserNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := c.store.GetUser(ctx, userID, c.projectID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}
	return user, nil
}

// GetUsers returns all identities stored for this client's project.
func (c *Client) GetUsers(ctx context.Context) ([]*User, error) {
	all, err := c.store.GetUsers(ctx)
	if err != nil {
		return nil, err
	}
	var users []*User
	for _, u := range all {
		if u.ProjectID == c.projectID {
			users = append(users, u)
		}
	}
	return users, nil
}

// DeleteUser removes the identity from local storage. The platform
// registration stays valid until it expires or is revoked; the identity
// can be restored only by registering again.
func (c *Client) DeleteUser(ctx context.Context, user *User) error {
	if user == nil || strings.TrimSpace(user.UserID) == "" {
		return core.ErrInvalidUserData
	}
	if err := c.store.Delete(ctx, user); err != nil {
		return err
	}
	if err := c.events.PublishUserDeleted(ctx, user); err != nil {
		c.log.Warningf("user deleted event not published: %v", err)
	}
	return nil
}

func defaultDeviceName() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "unknown device"
}
