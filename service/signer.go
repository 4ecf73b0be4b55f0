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

// Signer produces detached signatures over caller-supplied document hashes
// by running signing-scoped authentications.
type Signer struct {
	authenticator *Authenticator
	sessions      ports.SessionAPI
	log           *logging.Logger
}

// NewSigner creates a signing engine.
func NewSigner(authenticator *Authenticator, sessions ports.SessionAPI, logger *logging.Logger) *Signer {
	return &Signer{
		authenticator: authenticator,
		sessions:      sessions,
		log:           logger,
	}
}

// Sign authenticates the user under the signing scope and returns a
// signature over hash. The hash is the document digest computed by the
// caller; the signature timestamp is fixed before the handshake and bound
// into the proof.
func (s *Signer) Sign(
	ctx context.Context,
	hash []byte,
	user *core.User,
	provide ports.PinProvider,
	deviceName string,
) (*core.SigningResult, error) {
	return s.sign(ctx, hash, user, provide, deviceName)
}

// SignWithSession signs the document a signing session asks for and pushes
// the signature to that session.
func (s *Signer) SignWithSession(
	ctx context.Context,
	hash []byte,
	user *core.User,
	session *core.SigningSessionDetails,
	provide ports.PinProvider,
	deviceName string,
) (*core.SigningResult, error) {
	if session == nil || strings.TrimSpace(session.SessionID) == "" {
		return nil, core.ErrInvalidSigningSessionDetails
	}
	if err := checkSessionHash(session.SigningHash, hash); err != nil {
		return nil, err
	}

	result, err := s.sign(ctx, hash, user, provide, deviceName)
	if err != nil {
		return nil, err
	}

	if err := s.pushSignature(ctx, session.SessionID, &result.Signature); err != nil {
		return nil, err
	}
	return result, nil
}

// SignWithCrossDeviceSession signs the document a signing-originated
// cross-device session asks for and pushes the signature to it.
func (s *Signer) SignWithCrossDeviceSession(
	ctx context.Context,
	hash []byte,
	user *core.User,
	session *core.CrossDeviceSession,
	provide ports.PinProvider,
	deviceName string,
) (*core.SigningResult, error) {
	if session == nil || strings.TrimSpace(session.SessionID) == "" {
		return nil, core.ErrInvalidCrossDeviceSession
	}
	if err := checkSessionHash(session.SigningHash, hash); err != nil {
		return nil, err
	}

	result, err := s.sign(ctx, hash, user, provide, deviceName)
	if err != nil {
		return nil, err
	}

	if err := s.pushSignature(ctx, session.SessionID, &result.Signature); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Signer) sign(
	ctx context.Context,
	hash []byte,
	user *core.User,
	provide ports.PinProvider,
	deviceName string,
) (*core.SigningResult, error) {
	if len(hash) == 0 {
		return nil, core.ErrEmptyMessageHash
	}

	timestamp := time.Now()
	auth, err := s.authenticator.AuthenticateForSigning(ctx, user, "", provide, deviceName, hash, timestamp.Unix())
	if err != nil {
		return nil, mapSigningError(err)
	}

	signature := core.Signature{
		MPinID:    hex.EncodeToString(user.MPinID),
		U:         hex.EncodeToString(auth.U),
		V:         hex.EncodeToString(auth.V),
		PublicKey: hex.EncodeToString(user.PublicKey),
		DTAS:      user.DTAS,
		Hash:      hex.EncodeToString(hash),
		Timestamp: timestamp.Unix(),
	}

	s.log.Infof("signed %s for %s", signature.Hash, user.UserID)
	return &core.SigningResult{Signature: signature, Timestamp: timestamp}, nil
}

// pushSignature delivers a finished signature to a signing session.
func (s *Signer) pushSignature(ctx context.Context, sessionID string, signature *core.Signature) error {
	status, err := s.sessions.UpdateSigningSession(ctx, sessionID, signature)
	if err != nil {
		if clientErr, ok := asClientError(err); ok && clientErr.Code == codeInvalidSigningSession {
			return fmt.Errorf("%w: %w", core.ErrInvalidSigningSession, err)
		}
		return fmt.Errorf("%w: %w", core.ErrSigningFail, err)
	}
	s.log.Debugf("signing session %s now %s", sessionID, status)
	return nil
}

// checkSessionHash rejects signing a document other than the one the
// session was created for.
func checkSessionHash(sessionHash string, hash []byte) error {
	if sessionHash != "" && sessionHash != hex.EncodeToString(hash) {
		return core.ErrInvalidSigningSession
	}
	return nil
}

// mapSigningError keeps PIN and authentication outcomes recognizable and
// flavors everything else as a signing failure.
func mapSigningError(err error) error {
	switch {
	case errors.Is(err, core.ErrEmptyMessageHash),
		errors.Is(err, core.ErrInvalidPin),
		errors.Is(err, core.ErrPinCancelled),
		errors.Is(err, core.ErrUnsuccessfulAuthentication),
		errors.Is(err, core.ErrRevoked),
		errors.Is(err, core.ErrInvalidUserData):
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrSigningFail, err)
}
