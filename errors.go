package mpin

import "github.com/layer-3/mpin/core"

// The core error taxonomy, re-exported so applications can match outcomes
// with errors.Is without importing the core package.
var (
	// Input validation, detected before any network call.
	ErrEmptyProjectID        = core.ErrEmptyProjectID
	ErrEmptyUserID           = core.ErrEmptyUserID
	ErrEmptyActivationToken  = core.ErrEmptyActivationToken
	ErrEmptyVerificationCode = core.ErrEmptyVerificationCode
	ErrEmptyMessageHash      = core.ErrEmptyMessageHash
	ErrInvalidPin            = core.ErrInvalidPin
	ErrPinCancelled          = core.ErrPinCancelled

	// Registration.
	ErrInvalidActivationToken = core.ErrInvalidActivationToken
	ErrProjectMismatch        = core.ErrProjectMismatch
	ErrUnsupportedCurve       = core.ErrUnsupportedCurve
	ErrGenerateSigningKeyPair = core.ErrGenerateSigningKeyPair
	ErrRegistrationFail       = core.ErrRegistrationFail

	// Authentication.
	ErrInvalidUserData                = core.ErrInvalidUserData
	ErrRevoked                        = core.ErrRevoked
	ErrUnsuccessfulAuthentication     = core.ErrUnsuccessfulAuthentication
	ErrInvalidAuthenticationSession   = core.ErrInvalidAuthenticationSession
	ErrClientPass1Proof               = core.ErrClientPass1Proof
	ErrAuthenticationFail             = core.ErrAuthenticationFail
	ErrInvalidAppLink                 = core.ErrInvalidAppLink
	ErrInvalidQRCode                  = core.ErrInvalidQRCode
	ErrInvalidPushNotificationPayload = core.ErrInvalidPushNotificationPayload
	ErrUserNotFound                   = core.ErrUserNotFound

	// Verification and QuickCode.
	ErrInvalidSessionDetails      = core.ErrInvalidSessionDetails
	ErrRequestBackoff             = core.ErrRequestBackoff
	ErrVerificationFail           = core.ErrVerificationFail
	ErrUnsuccessfulVerification   = core.ErrUnsuccessfulVerification
	ErrGetActivationTokenFail     = core.ErrGetActivationTokenFail
	ErrLimitedQuickCodeGeneration = core.ErrLimitedQuickCodeGeneration
	ErrQuickCodeGenerationFail    = core.ErrQuickCodeGenerationFail

	// Signing and session management.
	ErrSigningFail                  = core.ErrSigningFail
	ErrInvalidSigningSession        = core.ErrInvalidSigningSession
	ErrInvalidSigningSessionDetails = core.ErrInvalidSigningSessionDetails
	ErrInvalidCrossDeviceSession    = core.ErrInvalidCrossDeviceSession
	ErrSessionFail                  = core.ErrSessionFail
)

// Error payload types carried by some outcomes, re-exported for errors.As.
type (
	ClientError                   = core.ClientError
	ServerError                   = core.ServerError
	ExecutionError                = core.ExecutionError
	RequestBackoffError           = core.RequestBackoffError
	UnsuccessfulVerificationError = core.UnsuccessfulVerificationError
)
