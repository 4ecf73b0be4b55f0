package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/internal/applink"
	"github.com/layer-3/mpin/ports"
)

// AuthResult carries the artifacts of a completed handshake. JWT is set for
// token-issuing scopes; U and V are the proof points consumed by signing.
type AuthResult struct {
	JWT string
	U   []byte
	V   []byte
}

// authOptions describes one authenticate call.
type authOptions struct {
	accessID    string
	scope       string
	deviceName  string
	docHash     []byte // Set for signing-scoped calls
	timestamp   int64  // Unix seconds, set together with docHash
	bindSession bool
}

// Authenticator drives the two-round zero-knowledge handshake, the
// renew-secret flow and revocation mirroring.
type Authenticator struct {
	api         ports.AuthenticationAPI
	sessions    ports.SessionAPI
	crypto      ports.Crypto
	store       ports.UserStore
	events      ports.EventPublisher
	registrator *Registrator
	pins        pinReader
	log         *logging.Logger
}

// NewAuthenticator creates an authentication engine. The registrator is
// used for transparent secret renewal.
func NewAuthenticator(
	api ports.AuthenticationAPI,
	sessions ports.SessionAPI,
	crypto ports.Crypto,
	store ports.UserStore,
	events ports.EventPublisher,
	registrator *Registrator,
	pinWait time.Duration,
	logger *logging.Logger,
) *Authenticator {
	return &Authenticator{
		api:         api,
		sessions:    sessions,
		crypto:      crypto,
		store:       store,
		events:      events,
		registrator: registrator,
		pins:        newPinReader(pinWait),
		log:         logger,
	}
}

// Authenticate proves possession of the user's PIN to the platform. A
// non-empty accessID binds the authenticated user to that session after
// success.
func (a *Authenticator) Authenticate(
	ctx context.Context,
	user *core.User,
	accessID string,
	provide ports.PinProvider,
	scope, deviceName string,
) (*AuthResult, error) {
	return a.authenticate(ctx, user, provide, authOptions{
		accessID:    accessID,
		scope:       scope,
		deviceName:  deviceName,
		bindSession: accessID != "",
	})
}

// AuthenticateForSigning runs a signing-scoped handshake whose proof is
// bound to the given document hash and timestamp. No session binding is
// performed; signature delivery is the signer's concern.
func (a *Authenticator) AuthenticateForSigning(
	ctx context.Context,
	user *core.User,
	accessID string,
	provide ports.PinProvider,
	deviceName string,
	hash []byte,
	timestamp int64,
) (*AuthResult, error) {
	return a.authenticate(ctx, user, provide, authOptions{
		accessID:   accessID,
		scope:      ScopeSigning,
		deviceName: deviceName,
		docHash:    hash,
		timestamp:  timestamp,
	})
}

// AuthenticateWithAppLink authenticates the session referenced by the app
// link's fragment.
func (a *Authenticator) AuthenticateWithAppLink(
	ctx context.Context,
	user *core.User,
	link string,
	provide ports.PinProvider,
	deviceName string,
) (*AuthResult, error) {
	accessID, err := applink.Fragment(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidAppLink, err)
	}
	return a.Authenticate(ctx, user, accessID, provide, ScopeOIDC, deviceName)
}

// AuthenticateWithQRCode authenticates the session referenced by the QR
// code's fragment.
func (a *Authenticator) AuthenticateWithQRCode(
	ctx context.Context,
	user *core.User,
	qrCode string,
	provide ports.PinProvider,
	deviceName string,
) (*AuthResult, error) {
	accessID, err := applink.Fragment(qrCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidQRCode, err)
	}
	return a.Authenticate(ctx, user, accessID, provide, ScopeOIDC, deviceName)
}

// AuthenticateWithNotificationPayload authenticates the session referenced
// by a push notification. The payload carries the projectID, userID and
// qrURL keys; the identity is resolved from storage.
func (a *Authenticator) AuthenticateWithNotificationPayload(
	ctx context.Context,
	payload map[string]string,
	provide ports.PinProvider,
	deviceName string,
) (*AuthResult, error) {
	projectID := payload[applink.PayloadKeyProjectID]
	userID := payload[applink.PayloadKeyUserID]
	qrURL := payload[applink.PayloadKeyQRURL]
	if projectID == "" || userID == "" || qrURL == "" {
		return nil, core.ErrInvalidPushNotificationPayload
	}

	accessID, err := applink.Fragment(qrURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidPushNotificationPayload, err)
	}

	user, err := a.store.GetUser(ctx, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFail, err)
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}

	return a.Authenticate(ctx, user, accessID, provide, ScopeOIDC, deviceName)
}

func (a *Authenticator) authenticate(ctx context.Context, user *core.User, provide ports.PinProvider, opts authOptions) (*AuthResult, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}

	pin, err := a.pins.read(ctx, provide, 0)
	if err != nil {
		return nil, err
	}

	result, renew, err := a.handshake(ctx, user, pin.value, opts)
	if err != nil {
		return nil, err
	}

	// Renewal is opportunistic: any failure on this path leaves the
	// original result in place.
	if renew != nil {
		if renewed, ok := a.renewAndRerun(ctx, user, pin, renew, opts); ok {
			result = renewed
		}
	}

	if opts.bindSession && opts.accessID != "" {
		if err := a.sessions.UpdateSessionStatus(ctx, opts.accessID, user.UserID); err != nil {
			a.log.Debugf("failed to bind session %s to %s: %v", opts.accessID, user.UserID, err)
		}
	}

	a.log.Infof("authenticated %s with scope %s", user.UserID, opts.scope)
	return result, nil
}

// handshake runs the pass1/pass2/authenticate rounds once.
func (a *Authenticator) handshake(ctx context.Context, user *core.User, pin int, opts authOptions) (*AuthResult, *ports.RenewSecretResponse, error) {
	proof, err := a.crypto.GetClientPass1Proof(proofSubject(user.MPinID, user.PublicKey), user.Token, pin)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", core.ErrClientPass1Proof, err)
	}

	pass1 := ports.Pass1Request{
		MPinID: hex.EncodeToString(user.MPinID),
		DTAS:   user.DTAS,
		U:      hex.EncodeToString(proof.U),
		Scope:  []string{opts.scope},
	}
	if len(user.PublicKey) > 0 {
		pass1.PublicKey = hex.EncodeToString(user.PublicKey)
	}
	resp1, err := a.api.Pass1(ctx, pass1)
	if err != nil {
		if clientErr, ok := asClientError(err); ok {
			switch clientErr.Code {
			case codeMPinIDExpired, codeExpiredMPinID:
				a.revokeLocal(ctx, user)
				return nil, nil, fmt.Errorf("%w: %w", core.ErrRevoked, err)
			}
		}
		return nil, nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFail, err)
	}

	y, err := hex.DecodeString(resp1.Y)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: malformed challenge: %w", core.ErrAuthenticationFail, err)
	}

	// Signing folds the document hash and timestamp into the challenge,
	// binding the emitted proof to the document.
	challenge := y
	if len(opts.docHash) > 0 {
		challenge, err = a.crypto.GetSigningChallenge(y, opts.docHash, opts.timestamp)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFail, err)
		}
	}

	pass2Proof, err := a.crypto.GetClientPass2Proof(proof.X, challenge, proof.SEC)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFail, err)
	}

	pass2 := ports.Pass2Request{
		MPinID:   hex.EncodeToString(user.MPinID),
		AccessID: opts.accessID,
		V:        hex.EncodeToString(pass2Proof.V),
	}
	if len(opts.docHash) > 0 {
		pass2.Hash = hex.EncodeToString(opts.docHash)
		pass2.Timestamp = opts.timestamp
	}
	resp2, err := a.api.Pass2(ctx, pass2)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFail, err)
	}

	auth, err := a.api.Authenticate(ctx, ports.AuthenticateRequest{AuthOTT: resp2.AuthOTT})
	if err != nil {
		return nil, nil, a.mapAuthenticateError(ctx, user, err)
	}

	return &AuthResult{JWT: auth.JWT, U: proof.U, V: pass2Proof.V}, auth.RenewSecret, nil
}

func (a *Authenticator) mapAuthenticateError(ctx context.Context, user *core.User, err error) error {
	if clientErr, ok := asClientError(err); ok {
		switch clientErr.Code {
		case codeInvalidAuth, codeUnsuccessfulAuthentication:
			return fmt.Errorf("%w: %w", core.ErrUnsuccessfulAuthentication, err)
		case codeMPinIDRevoked, codeRevokedMPinID:
			a.revokeLocal(ctx, user)
			return fmt.Errorf("%w: %w", core.ErrRevoked, err)
		case codeInvalidAuthSession, codeInvalidAuthenticationSession:
			return fmt.Errorf("%w: %w", core.ErrInvalidAuthenticationSession, err)
		}
	}
	return fmt.Errorf("%w: %w", core.ErrAuthenticationFail, err)
}

// renewAndRerun refreshes the identity's secret material when the platform
// signals renewal, then repeats the handshake with the new credentials.
func (a *Authenticator) renewAndRerun(
	ctx context.Context,
	user *core.User,
	pin pinEntry,
	renew *ports.RenewSecretResponse,
	opts authOptions,
) (*AuthResult, bool) {
	if !a.crypto.SupportsCurve(renew.Curve) {
		a.log.Warningf("secret renewal skipped: unsupported curve %s", renew.Curve)
		return nil, false
	}

	renewed, err := a.registrator.Register(ctx, user.UserID, user.ProjectID, renew.Token, opts.deviceName, "", fixedPin(pin.text))
	if err != nil {
		a.log.Warningf("secret renewal for %s failed: %v", user.UserID, err)
		return nil, false
	}

	// Storage already holds the renewed identity; keep the caller's copy
	// in step with it even if the repeated handshake fails below.
	*user = *renewed

	result, _, err := a.handshake(ctx, user, pin.value, opts)
	if err != nil {
		a.log.Warningf("authentication with renewed secret for %s failed: %v", user.UserID, err)
		return nil, false
	}

	a.log.Infof("renewed secret material for %s", user.UserID)
	return result, true
}

// revokeLocal mirrors a server-side revocation into local storage before
// the error is surfaced. A storage failure does not change the surfaced
// error.
func (a *Authenticator) revokeLocal(ctx context.Context, user *core.User) {
	user.Revoked = true
	if err := a.store.Update(ctx, user); err != nil {
		a.log.Warningf("failed to persist revocation of %s: %v", user.UserID, err)
	}
	if err := a.events.PublishUserRevoked(ctx, user); err != nil {
		a.log.Warningf("failed to publish revocation event for %s: %v", user.UserID, err)
	}
}

// fixedPin adapts an already collected PIN for the renewal re-registration.
func fixedPin(pin string) ports.PinProvider {
	return func(context.Context) (string, error) {
		return pin, nil
	}
}

func validateUser(user *core.User) error {
	if user == nil {
		return core.ErrInvalidUserData
	}
	if user.Revoked {
		return core.ErrRevoked
	}
	if len(user.MPinID) == 0 || len(user.Token) == 0 || user.DTAS == "" {
		return core.ErrInvalidUserData
	}
	return nil
}
