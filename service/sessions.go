package service

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/op/go-logging.v1"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/internal/applink"
	"github.com/layer-3/mpin/ports"
)

// AuthenticationSessionManager fetches and aborts cross-device
// authentication sessions identified by an accessId.
type AuthenticationSessionManager struct {
	api ports.SessionAPI
	log *logging.Logger
}

// NewAuthenticationSessionManager creates an authentication session manager.
func NewAuthenticationSessionManager(api ports.SessionAPI, logger *logging.Logger) *AuthenticationSessionManager {
	return &AuthenticationSessionManager{api: api, log: logger}
}

// GetFromAppLink fetches the session referenced by the app link's fragment.
func (m *AuthenticationSessionManager) GetFromAppLink(ctx context.Context, link string) (*core.AuthenticationSessionDetails, error) {
	accessID, err := applink.Fragment(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidAppLink, err)
	}
	return m.fetch(ctx, accessID)
}

// GetFromQRCode fetches the session referenced by the QR code's fragment.
func (m *AuthenticationSessionManager) GetFromQRCode(ctx context.Context, qrCode string) (*core.AuthenticationSessionDetails, error) {
	accessID, err := applink.Fragment(qrCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidQRCode, err)
	}
	return m.fetch(ctx, accessID)
}

// GetFromNotificationPayload fetches the session referenced by a push
// notification's qrURL entry.
func (m *AuthenticationSessionManager) GetFromNotificationPayload(ctx context.Context, payload map[string]string) (*core.AuthenticationSessionDetails, error) {
	qrURL := payload[applink.PayloadKeyQRURL]
	if qrURL == "" {
		return nil, core.ErrInvalidPushNotificationPayload
	}
	accessID, err := applink.Fragment(qrURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidPushNotificationPayload, err)
	}
	return m.fetch(ctx, accessID)
}

// Abort terminates the session so it can no longer be authenticated.
func (m *AuthenticationSessionManager) Abort(ctx context.Context, details *core.AuthenticationSessionDetails) error {
	if details == nil || strings.TrimSpace(details.AccessID) == "" {
		return core.ErrInvalidSessionDetails
	}
	if err := m.api.AbortSession(ctx, details.AccessID); err != nil {
		return mapSessionError(err)
	}
	m.log.Debugf("aborted authentication session %s", details.AccessID)
	return nil
}

func (m *AuthenticationSessionManager) fetch(ctx context.Context, accessID string) (*core.AuthenticationSessionDetails, error) {
	status, err := m.api.FetchSessionStatus(ctx, accessID)
	if err != nil {
		return nil, mapSessionError(err)
	}

	return &core.AuthenticationSessionDetails{
		AccessID:                   accessID,
		UserID:                     status.UserID,
		ProjectID:                  status.ProjectID,
		ProjectName:                status.ProjectName,
		ProjectLogoURL:             status.ProjectLogoURL,
		PinLength:                  status.PinLength,
		VerificationMethod:         status.VerificationMethod,
		VerificationURL:            status.VerificationURL,
		VerificationCustomText:     status.VerificationCustomText,
		IdentityType:               status.IdentityType,
		IdentityTypeLabel:          status.IdentityTypeLabel,
		QuickCodeEnabled:           status.QuickCodeEnabled,
		LimitQuickCodeRegistration: status.LimitQuickCodeRegistration,
	}, nil
}

// SigningSessionManager fetches and aborts signing sessions identified by a
// sessionId.
type SigningSessionManager struct {
	api ports.SessionAPI
	log *logging.Logger
}

// NewSigningSessionManager creates a signing session manager.
func NewSigningSessionManager(api ports.SessionAPI, logger *logging.Logger) *SigningSessionManager {
	return &SigningSessionManager{api: api, log: logger}
}

// GetFromAppLink fetches the signing session referenced by the app link's
// fragment.
func (m *SigningSessionManager) GetFromAppLink(ctx context.Context, link string) (*core.SigningSessionDetails, error) {
	sessionID, err := applink.Fragment(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidAppLink, err)
	}
	return m.fetch(ctx, sessionID)
}

// GetFromQRCode fetches the signing session referenced by the QR code's
// fragment.
func (m *SigningSessionManager) GetFromQRCode(ctx context.Context, qrCode string) (*core.SigningSessionDetails, error) {
	sessionID, err := applink.Fragment(qrCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidQRCode, err)
	}
	return m.fetch(ctx, sessionID)
}

// Abort terminates the signing session.
func (m *SigningSessionManager) Abort(ctx context.Context, details *core.SigningSessionDetails) error {
	if details == nil || strings.TrimSpace(details.SessionID) == "" {
		return core.ErrInvalidSigningSessionDetails
	}
	if err := m.api.AbortSigningSession(ctx, details.SessionID); err != nil {
		return mapSessionError(err)
	}
	m.log.Debugf("aborted signing session %s", details.SessionID)
	return nil
}

func (m *SigningSessionManager) fetch(ctx context.Context, sessionID string) (*core.SigningSessionDetails, error) {
	session, err := m.api.FetchSigningSession(ctx, sessionID)
	if err != nil {
		return nil, mapSessionError(err)
	}

	return &core.SigningSessionDetails{
		SessionID:                  sessionID,
		SigningHash:                session.SigningHash,
		SigningDescription:         session.SigningDescription,
		Status:                     session.Status,
		ExpireTime:                 session.ExpireTime,
		UserID:                     session.UserID,
		ProjectID:                  session.ProjectID,
		ProjectName:                session.ProjectName,
		ProjectLogoURL:             session.ProjectLogoURL,
		PinLength:                  session.PinLength,
		VerificationMethod:         session.VerificationMethod,
		VerificationURL:            session.VerificationURL,
		VerificationCustomText:     session.VerificationCustomText,
		IdentityType:               session.IdentityType,
		IdentityTypeLabel:          session.IdentityTypeLabel,
		QuickCodeEnabled:           session.QuickCodeEnabled,
		LimitQuickCodeRegistration: session.LimitQuickCodeRegistration,
	}, nil
}

// CrossDeviceSessionManager handles both authentication- and
// signing-originated cross-device sessions through one descriptor.
type CrossDeviceSessionManager struct {
	api ports.SessionAPI
	log *logging.Logger
}

// NewCrossDeviceSessionManager creates a cross-device session manager.
func NewCrossDeviceSessionManager(api ports.SessionAPI, logger *logging.Logger) *CrossDeviceSessionManager {
	return &CrossDeviceSessionManager{api: api, log: logger}
}

// GetFromAppLink fetches the cross-device session referenced by the app
// link's fragment.
func (m *CrossDeviceSessionManager) GetFromAppLink(ctx context.Context, link string) (*core.CrossDeviceSession, error) {
	sessionID, err := applink.Fragment(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidAppLink, err)
	}
	return m.fetch(ctx, sessionID)
}

// GetFromQRCode fetches the cross-device session referenced by the QR
// code's fragment.
func (m *CrossDeviceSessionManager) GetFromQRCode(ctx context.Context, qrCode string) (*core.CrossDeviceSession, error) {
	sessionID, err := applink.Fragment(qrCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidQRCode, err)
	}
	return m.fetch(ctx, sessionID)
}

// GetFromNotificationPayload fetches the cross-device session referenced by
// a push notification's qrURL entry.
func (m *CrossDeviceSessionManager) GetFromNotificationPayload(ctx context.Context, payload map[string]string) (*core.CrossDeviceSession, error) {
	qrURL := payload[applink.PayloadKeyQRURL]
	if qrURL == "" {
		return nil, core.ErrInvalidPushNotificationPayload
	}
	sessionID, err := applink.Fragment(qrURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidPushNotificationPayload, err)
	}
	return m.fetch(ctx, sessionID)
}

// Abort terminates the cross-device session.
func (m *CrossDeviceSessionManager) Abort(ctx context.Context, session *core.CrossDeviceSession) error {
	if session == nil || strings.TrimSpace(session.SessionID) == "" {
		return core.ErrInvalidCrossDeviceSession
	}
	if err := m.api.AbortSession(ctx, session.SessionID); err != nil {
		return mapSessionError(err)
	}
	m.log.Debugf("aborted cross-device session %s", session.SessionID)
	return nil
}

func (m *CrossDeviceSessionManager) fetch(ctx context.Context, sessionID string) (*core.CrossDeviceSession, error) {
	status, err := m.api.FetchSessionStatus(ctx, sessionID)
	if err != nil {
		return nil, mapSessionError(err)
	}

	return &core.CrossDeviceSession{
		SessionID:          sessionID,
		UserID:             status.UserID,
		ProjectID:          status.ProjectID,
		ProjectName:        status.ProjectName,
		Status:             status.Status,
		SigningHash:        status.SigningHash,
		SigningDescription: status.SigningDescription,
	}, nil
}

func mapSessionError(err error) error {
	if clientErr, ok := asClientError(err); ok {
		switch clientErr.Code {
		case codeInvalidAuthSession, codeInvalidAuthenticationSession:
			return fmt.Errorf("%w: %w", core.ErrInvalidAuthenticationSession, err)
		case codeInvalidSigningSession:
			return fmt.Errorf("%w: %w", core.ErrInvalidSigningSession, err)
		}
	}
	return fmt.Errorf("%w: %w", core.ErrSessionFail, err)
}
