package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/ports"
)

// SecretShareAttempts bounds fetch attempts for a single secret share. Only
// transport-level failures are retried, without backoff; client and server
// errors surface immediately.
const SecretShareAttempts = 2

// Registrator drives identity enrollment: it exchanges an activation token
// for a partial identity, collects the PIN, fetches and combines the secret
// shares into a PIN-locked token and persists the result.
type Registrator struct {
	api    ports.RegistrationAPI
	crypto ports.Crypto
	store  ports.UserStore
	events ports.EventPublisher
	pins   pinReader
	log    *logging.Logger
}

// NewRegistrator creates a registration engine.
func NewRegistrator(
	api ports.RegistrationAPI,
	crypto ports.Crypto,
	store ports.UserStore,
	events ports.EventPublisher,
	pinWait time.Duration,
	logger *logging.Logger,
) *Registrator {
	return &Registrator{
		api:    api,
		crypto: crypto,
		store:  store,
		events: events,
		pins:   newPinReader(pinWait),
		log:    logger,
	}
}

// Register enrolls userID with the project using a one-time activation
// token. Registering an already known identity replaces its secret material
// in place and clears any revocation.
func (r *Registrator) Register(
	ctx context.Context,
	userID, projectID, activationToken, deviceName, pushToken string,
	provide ports.PinProvider,
) (*core.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}
	if strings.TrimSpace(activationToken) == "" {
		return nil, core.ErrEmptyActivationToken
	}

	keyPair, err := r.crypto.GenerateSigningKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrGenerateSigningKeyPair, err)
	}

	resp, err := r.api.RegisterUser(ctx, ports.RegisterRequest{
		ProjectID:       projectID,
		UserID:          userID,
		DeviceName:      deviceName,
		ActivationToken: activationToken,
		PushToken:       pushToken,
		PublicKey:       hex.EncodeToString(keyPair.PublicKey),
	})
	if err != nil {
		if clientErr, ok := asClientError(err); ok && clientErr.Code == codeInvalidActivationToken {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidActivationToken, err)
		}
		return nil, fmt.Errorf("%w: %w", core.ErrRegistrationFail, err)
	}

	// The platform echoes the project the activation token was issued for.
	if resp.ProjectID != projectID {
		r.log.Warningf("register response for project %s, requested %s", resp.ProjectID, projectID)
		return nil, core.ErrProjectMismatch
	}
	if !r.crypto.SupportsCurve(resp.Curve) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedCurve, resp.Curve)
	}

	return r.finishRegistration(ctx, userID, projectID, resp, keyPair, provide)
}

// finishRegistration completes the enrollment handshake: PIN, both secret
// shares, token combination, storage upsert.
func (r *Registrator) finishRegistration(
	ctx context.Context,
	userID, projectID string,
	reg *ports.RegisterResponse,
	keyPair core.SigningKeyPair,
	provide ports.PinProvider,
) (*core.User, error) {
	pin, err := r.pins.read(ctx, provide, reg.PinLength)
	if err != nil {
		return nil, err
	}

	if len(reg.SecretURLs) != 2 {
		return nil, fmt.Errorf("%w: expected 2 secret share urls, got %d", core.ErrRegistrationFail, len(reg.SecretURLs))
	}

	share1, err := r.fetchShare(ctx, reg.SecretURLs[0])
	if err != nil {
		return nil, err
	}
	share2, err := r.fetchShare(ctx, reg.SecretURLs[1])
	if err != nil {
		return nil, err
	}

	mpinID, err := hex.DecodeString(reg.MPinID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed mpin id: %w", core.ErrRegistrationFail, err)
	}

	token, err := r.crypto.GetSigningClientToken(share1, share2, keyPair.PrivateKey, proofSubject(mpinID, keyPair.PublicKey), pin.value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRegistrationFail, err)
	}

	user := &core.User{
		UserID:    userID,
		ProjectID: projectID,
		PinLength: len(pin.text),
		MPinID:    mpinID,
		Token:     token,
		DTAS:      reg.DTAS,
		PublicKey: keyPair.PublicKey,
	}

	existing, err := r.store.GetUser(ctx, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRegistrationFail, err)
	}
	if existing != nil {
		err = r.store.Update(ctx, user)
	} else {
		err = r.store.Add(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRegistrationFail, err)
	}

	if err := r.events.PublishUserRegistered(ctx, user); err != nil {
		r.log.Warningf("failed to publish registration event for %s: %v", user.UserID, err)
	}

	r.log.Infof("registered %s with project %s", user.UserID, user.ProjectID)
	return user, nil
}

// fetchShare retrieves and decodes one secret share.
func (r *Registrator) fetchShare(ctx context.Context, shareURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= SecretShareAttempts; attempt++ {
		resp, err := r.api.GetClientSecretShare(ctx, shareURL)
		if err != nil {
			lastErr = err
			var execErr *core.ExecutionError
			if errors.As(err, &execErr) {
				r.log.Debugf("secret share fetch attempt %d/%d failed: %v", attempt, SecretShareAttempts, err)
				continue
			}
			break
		}

		share, err := hex.DecodeString(resp.DVSClientSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed secret share: %w", core.ErrRegistrationFail, err)
		}
		return share, nil
	}
	return nil, fmt.Errorf("%w: %w", core.ErrRegistrationFail, lastErr)
}
