package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/op/go-logging.v1"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/internal/applink"
	"github.com/layer-3/mpin/ports"
)

// Verificator drives out-of-band identity verification: email verification,
// QuickCode generation and activation token retrieval.
type Verificator struct {
	api           ports.VerificationAPI
	store         ports.UserStore
	authenticator *Authenticator
	log           *logging.Logger
}

// NewVerificator creates a verification engine. The authenticator runs the
// QuickCode-scoped handshake.
func NewVerificator(
	api ports.VerificationAPI,
	store ports.UserStore,
	authenticator *Authenticator,
	logger *logging.Logger,
) *Verificator {
	return &Verificator{
		api:           api,
		store:         store,
		authenticator: authenticator,
		log:           logger,
	}
}

// SendVerificationEmail asks the platform to email a verification link or
// code to userID. When session details are supplied the verification is
// tied to that session's accessId.
func (v *Verificator) SendVerificationEmail(
	ctx context.Context,
	userID, projectID, deviceName string,
	session *core.AuthenticationSessionDetails,
) (*core.VerificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}

	var accessID string
	if session != nil {
		if strings.TrimSpace(session.AccessID) == "" {
			return nil, core.ErrInvalidSessionDetails
		}
		accessID = session.AccessID
	}

	req := ports.VerificationRequest{
		ProjectID:  projectID,
		UserID:     userID,
		DeviceName: deviceName,
		AccessID:   accessID,
	}

	// An existing registration is passed along as a correlation hint.
	if user, err := v.store.GetUser(ctx, userID, projectID); err != nil {
		v.log.Debugf("skipping mpinId hint for %s: %v", userID, err)
	} else if user != nil {
		req.MPinID = hex.EncodeToString(user.MPinID)
	}

	resp, err := v.api.SendVerificationEmail(ctx, req)
	if err != nil {
		return nil, mapVerificationError(err)
	}
	return resp, nil
}

func mapVerificationError(err error) error {
	if clientErr, ok := asClientError(err); ok {
		switch clientErr.Code {
		case codeBackoffError, codeRequestBackoff:
			if backoff, parseErr := strconv.ParseInt(clientErr.Context["backoff"], 10, 64); parseErr == nil {
				return &core.RequestBackoffError{Backoff: backoff}
			}
		}
	}
	return fmt.Errorf("%w: %w", core.ErrVerificationFail, err)
}

// GenerateQuickCode authenticates the user under the QuickCode scope and
// exchanges the issued JWT for a short-lived registration code.
func (v *Verificator) GenerateQuickCode(
	ctx context.Context,
	user *core.User,
	provide ports.PinProvider,
	deviceName string,
) (*core.QuickCode, error) {
	auth, err := v.authenticator.Authenticate(ctx, user, "", provide, ScopeQuickCode, deviceName)
	if err != nil {
		return nil, mapQuickCodeError(err)
	}
	if auth.JWT == "" {
		return nil, fmt.Errorf("%w: missing jwt in authentication response", core.ErrQuickCodeGenerationFail)
	}

	code, err := v.api.GenerateQuickCode(ctx, ports.QuickCodeRequest{
		ProjectID:  user.ProjectID,
		JWT:        auth.JWT,
		DeviceName: deviceName,
	})
	if err != nil {
		return nil, mapQuickCodeError(err)
	}
	return code, nil
}

// mapQuickCodeError keeps PIN and authentication outcomes recognizable and
// flavors everything else as a QuickCode failure.
func mapQuickCodeError(err error) error {
	if clientErr, ok := asClientError(err); ok && clientErr.Code == codeLimitedQuickCodeGeneration {
		return fmt.Errorf("%w: %w", core.ErrLimitedQuickCodeGeneration, err)
	}
	switch {
	case errors.Is(err, core.ErrInvalidPin),
		errors.Is(err, core.ErrPinCancelled),
		errors.Is(err, core.ErrUnsuccessfulAuthentication),
		errors.Is(err, core.ErrRevoked),
		errors.Is(err, core.ErrInvalidUserData):
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrQuickCodeGenerationFail, err)
}

// GetActivationTokenFromURL extracts the user id and verification code from
// a verification link and confirms them.
func (v *Verificator) GetActivationTokenFromURL(ctx context.Context, verificationURL string) (*core.ActivationTokenResponse, error) {
	userID, code, err := applink.VerificationQuery(verificationURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrGetActivationTokenFail, err)
	}
	return v.GetActivationToken(ctx, userID, code)
}

// GetActivationToken confirms a verification code and returns the
// activation token to register with.
func (v *Verificator) GetActivationToken(ctx context.Context, userID, code string) (*core.ActivationTokenResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}
	if strings.TrimSpace(code) == "" {
		return nil, core.ErrEmptyVerificationCode
	}

	resp, err := v.api.ConfirmVerification(ctx, ports.ConfirmationRequest{UserID: userID, Code: code})
	if err != nil {
		if clientErr, ok := asClientError(err); ok {
			switch clientErr.Code {
			case codeInvalidVerificationCode, codeUnsuccessfulVerification:
				return nil, &core.UnsuccessfulVerificationError{
					ProjectID: clientErr.Context["projectId"],
					UserID:    clientErr.Context["userId"],
					AccessID:  clientErr.Context["accessId"],
				}
			}
		}
		return nil, fmt.Errorf("%w: %w", core.ErrGetActivationTokenFail, err)
	}

	if resp.ProjectID == "" || resp.ActivateToken == "" {
		return nil, fmt.Errorf("%w: incomplete confirmation response", core.ErrGetActivationTokenFail)
	}

	return &core.ActivationTokenResponse{
		ActivationToken: resp.ActivateToken,
		UserID:          userID,
		ProjectID:       resp.ProjectID,
		AccessID:        resp.AccessID,
	}, nil
}
