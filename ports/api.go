package ports

import (
	"context"

	"github.com/layer-3/mpin/core"
)

// RegisterRequest enrolls a new identity or renews an existing one.
type RegisterRequest struct {
	ProjectID       string `json:"projectId"`
	UserID          string `json:"userId"`
	DeviceName      string `json:"deviceName"`
	ActivationToken string `json:"activateToken"`
	PushToken       string `json:"pushToken,omitempty"`
	PublicKey       string `json:"publicKey"` // Hex, compressed G2 point
}

// RegisterResponse names the partial identity and where to collect its
// secret shares. PinLength is the project-configured PIN length; zero
// leaves the choice to the client.
type RegisterResponse struct {
	MPinID     string   `json:"mpinId"` // Hex
	ProjectID  string   `json:"projectId"`
	DTAS       string   `json:"dtas"`
	Curve      string   `json:"curve"`
	SecretURLs []string `json:"secretUrls"`
	PinLength  int      `json:"pinLength,omitempty"`
}

// ClientSecretResponse carries one secret share.
type ClientSecretResponse struct {
	DVSClientSecret string `json:"dvsClientSecret"` // Hex, compressed G1 point
}

// Pass1Request opens a proof round.
type Pass1Request struct {
	MPinID    string   `json:"mpinId"` // Hex
	DTAS      string   `json:"dtas"`
	U         string   `json:"u"` // Hex, commitment point
	Scope     []string `json:"scope"`
	PublicKey string   `json:"publicKey,omitempty"` // Hex, present for signing-capable identities
}

// Pass1Response carries the server challenge.
type Pass1Response struct {
	Y string `json:"y"` // Hex scalar
}

// Pass2Request closes the proof round. Hash and Timestamp are set only for
// signing-scoped rounds so the server can derive the document-bound
// challenge.
type Pass2Request struct {
	MPinID    string `json:"mpinId"` // Hex
	AccessID  string `json:"accessId,omitempty"`
	V         string `json:"v"` // Hex, proof point
	Hash      string `json:"hash,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Pass2Response carries the one-time token redeemed by Authenticate.
type Pass2Response struct {
	AuthOTT string `json:"authOTT"`
}

// AuthenticateRequest redeems a completed proof.
type AuthenticateRequest struct {
	AuthOTT string `json:"authOTT"`
}

// RenewSecretResponse signals that the client must re-register with the
// given renewal token to refresh its secret material.
type RenewSecretResponse struct {
	Token string `json:"token"`
	Curve string `json:"curve"`
}

// AuthenticateResponse is the outcome of a successful handshake. JWT is
// present for token-issuing scopes only.
type AuthenticateResponse struct {
	JWT         string               `json:"jwt,omitempty"`
	RenewSecret *RenewSecretResponse `json:"renewSecret,omitempty"`
}

// VerificationRequest asks the platform to email a verification link or
// code to the user. MPinID carries the hex mpinId of an already registered
// identity as a correlation hint, when one exists.
type VerificationRequest struct {
	ProjectID  string `json:"projectId"`
	UserID     string `json:"userId"`
	DeviceName string `json:"deviceName"`
	AccessID   string `json:"accessId,omitempty"`
	MPinID     string `json:"mpinId,omitempty"`
}

// ConfirmationRequest exchanges a verification code for an activation token.
type ConfirmationRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

// ConfirmationResponse carries the activation token of a confirmed
// verification.
type ConfirmationResponse struct {
	ProjectID     string `json:"projectId"`
	AccessID      string `json:"accessId,omitempty"`
	ActivateToken string `json:"actToken"`
}

// QuickCodeRequest exchanges a freshly issued JWT for a QuickCode.
type QuickCodeRequest struct {
	ProjectID  string `json:"projectId"`
	JWT        string `json:"jwt"`
	DeviceName string `json:"deviceName"`
}

// SessionStatusResponse describes a cross-device session tracked by the
// platform. Signing fields are empty for authentication sessions.
type SessionStatusResponse struct {
	UserID                     string `json:"userId"`
	ProjectID                  string `json:"projectId"`
	ProjectName                string `json:"projectName"`
	ProjectLogoURL             string `json:"projectLogoUrl"`
	PinLength                  int    `json:"pinLength"`
	VerificationMethod         string `json:"verificationMethod"`
	VerificationURL            string `json:"verificationUrl"`
	VerificationCustomText     string `json:"verificationCustomText"`
	IdentityType               string `json:"identityType"`
	IdentityTypeLabel          string `json:"identityTypeLabel"`
	QuickCodeEnabled           bool   `json:"quickCodeEnabled"`
	LimitQuickCodeRegistration bool   `json:"limitQuickCodeRegistration"`
	Status                     string `json:"status"`
	SigningHash                string `json:"signingHash,omitempty"`
	SigningDescription         string `json:"signingDescription,omitempty"`
}

// SigningSessionResponse describes a signing session and the document hash
// it asks to be signed.
type SigningSessionResponse struct {
	UserID                     string `json:"userId"`
	ProjectID                  string `json:"projectId"`
	ProjectName                string `json:"projectName"`
	ProjectLogoURL             string `json:"projectLogoUrl"`
	PinLength                  int    `json:"pinLength"`
	VerificationMethod         string `json:"verificationMethod"`
	VerificationURL            string `json:"verificationUrl"`
	VerificationCustomText     string `json:"verificationCustomText"`
	IdentityType               string `json:"identityType"`
	IdentityTypeLabel          string `json:"identityTypeLabel"`
	QuickCodeEnabled           bool   `json:"quickCodeEnabled"`
	LimitQuickCodeRegistration bool   `json:"limitQuickCodeRegistration"`
	SigningHash                string `json:"signingHash"`
	SigningDescription         string `json:"signingDescription"`
	Status                     string `json:"status"`
	ExpireTime                 int64  `json:"expireTime"`
}

// RegistrationAPI covers the enrollment endpoints.
type RegistrationAPI interface {
	RegisterUser(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	GetClientSecretShare(ctx context.Context, shareURL string) (*ClientSecretResponse, error)
}

// AuthenticationAPI covers the two-round handshake endpoints.
type AuthenticationAPI interface {
	Pass1(ctx context.Context, req Pass1Request) (*Pass1Response, error)
	Pass2(ctx context.Context, req Pass2Request) (*Pass2Response, error)
	Authenticate(ctx context.Context, req AuthenticateRequest) (*AuthenticateResponse, error)
}

// VerificationAPI covers out-of-band verification and QuickCode endpoints.
type VerificationAPI interface {
	SendVerificationEmail(ctx context.Context, req VerificationRequest) (*core.VerificationResponse, error)
	ConfirmVerification(ctx context.Context, req ConfirmationRequest) (*ConfirmationResponse, error)
	GenerateQuickCode(ctx context.Context, req QuickCodeRequest) (*core.QuickCode, error)
}

// SessionAPI covers the cross-device session endpoints.
type SessionAPI interface {
	FetchSessionStatus(ctx context.Context, accessID string) (*SessionStatusResponse, error)
	UpdateSessionStatus(ctx context.Context, accessID, userID string) error
	AbortSession(ctx context.Context, accessID string) error
	FetchSigningSession(ctx context.Context, sessionID string) (*SigningSessionResponse, error)
	UpdateSigningSession(ctx context.Context, sessionID string, signature *core.Signature) (string, error)
	AbortSigningSession(ctx context.Context, sessionID string) error
}

// API aggregates every platform endpoint the SDK calls.
type API interface {
	RegistrationAPI
	AuthenticationAPI
	VerificationAPI
	SessionAPI
}
