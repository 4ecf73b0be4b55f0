package core

import (
	"errors"
	"fmt"
)

// Input validation errors, detected before any network call.
var (
	ErrEmptyProjectID        = errors.New("empty project id")
	ErrEmptyUserID           = errors.New("empty user id")
	ErrEmptyActivationToken  = errors.New("empty activation token")
	ErrEmptyVerificationCode = errors.New("empty verification code")
	ErrEmptyMessageHash      = errors.New("empty message hash")
	ErrInvalidPin            = errors.New("invalid pin")
	ErrPinCancelled          = errors.New("pin entry cancelled")
)

// Registration errors.
var (
	ErrInvalidActivationToken = errors.New("invalid or expired activation token")
	ErrProjectMismatch        = errors.New("activation token belongs to a different project")
	ErrUnsupportedCurve       = errors.New("unsupported elliptic curve")
	ErrGenerateSigningKeyPair = errors.New("signing key pair generation failed")
	ErrRegistrationFail       = errors.New("registration failed")
)

// Authentication errors.
var (
	ErrInvalidUserData                = errors.New("invalid user data")
	ErrRevoked                        = errors.New("user identity revoked")
	ErrUnsuccessfulAuthentication     = errors.New("unsuccessful authentication")
	ErrInvalidAuthenticationSession   = errors.New("invalid authentication session")
	ErrClientPass1Proof               = errors.New("pass 1 proof generation failed")
	ErrAuthenticationFail             = errors.New("authentication failed")
	ErrInvalidAppLink                 = errors.New("invalid app link")
	ErrInvalidQRCode                  = errors.New("invalid qr code")
	ErrInvalidPushNotificationPayload = errors.New("invalid push notification payload")
	ErrUserNotFound                   = errors.New("user not found")
)

// Verification and QuickCode errors.
var (
	ErrInvalidSessionDetails      = errors.New("invalid authentication session details")
	ErrRequestBackoff             = errors.New("verification request throttled")
	ErrVerificationFail           = errors.New("verification failed")
	ErrUnsuccessfulVerification   = errors.New("unsuccessful verification")
	ErrGetActivationTokenFail     = errors.New("activation token retrieval failed")
	ErrLimitedQuickCodeGeneration = errors.New("quickcode generation limited for quickcode-registered users")
	ErrQuickCodeGenerationFail    = errors.New("quickcode generation failed")
)

// Signing and session management errors.
var (
	ErrSigningFail                  = errors.New("signing failed")
	ErrInvalidSigningSession        = errors.New("invalid signing session")
	ErrInvalidSigningSessionDetails = errors.New("invalid signing session details")
	ErrInvalidCrossDeviceSession    = errors.New("invalid cross-device session")
	ErrSessionFail                  = errors.New("session operation failed")
)

// ClientError is a 4xx platform response carrying a machine-readable code
// that the protocol engines map onto domain errors.
type ClientError struct {
	Code    string            // Platform error code, e.g. "INVALID_ACTIVATION_TOKEN"
	Info    string            // Human-readable description from the platform
	Context map[string]string // Optional structured values attached to the error
}

func (e *ClientError) Error() string {
	if e.Info != "" {
		return fmt.Sprintf("client error %s: %s", e.Code, e.Info)
	}
	return fmt.Sprintf("client error %s", e.Code)
}

// ServerError is a 5xx platform response.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d", e.Status)
}

// ExecutionError wraps a transport-level failure: connection errors,
// timeouts, or an unreadable response body. Execution failures are the only
// class eligible for the secret share fetch retry.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("request execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// RequestBackoffError reports that the platform throttled a verification
// email request. Backoff is the unix time after which sending may succeed.
// It matches ErrRequestBackoff with errors.Is.
type RequestBackoffError struct {
	Backoff int64
}

func (e *RequestBackoffError) Error() string {
	return fmt.Sprintf("verification request throttled until %d", e.Backoff)
}

func (e *RequestBackoffError) Is(target error) bool { return target == ErrRequestBackoff }

// UnsuccessfulVerificationError reports a rejected verification code,
// echoing the identifiers the platform associated with the attempt. It
// matches ErrUnsuccessfulVerification with errors.Is.
type UnsuccessfulVerificationError struct {
	ProjectID string
	UserID    string
	AccessID  string
}

func (e *UnsuccessfulVerificationError) Error() string {
	return "unsuccessful verification"
}

func (e *UnsuccessfulVerificationError) Is(target error) bool {
	return target == ErrUnsuccessfulVerification
}
