// Package service implements the M-Pin protocol engines: registration,
// authentication, verification, document signing and cross-device session
// management. Engines talk to the platform through the ports interfaces and
// never touch the transport directly.
package service

import (
	"errors"

	"github.com/layer-3/mpin/core"
)

// Authentication scopes accepted by the platform.
const (
	ScopeJWT       = "jwt"
	ScopeOIDC      = "oidc"
	ScopeQuickCode = "reg-code"
	ScopeSigning   = "dvs-auth"
)

// Platform error codes mapped onto domain errors. Older deployments use the
// reversed spellings, so both are recognized.
const (
	codeInvalidActivationToken       = "INVALID_ACTIVATION_TOKEN"
	codeMPinIDExpired                = "MPINID_EXPIRED"
	codeExpiredMPinID                = "EXPIRED_MPINID"
	codeMPinIDRevoked                = "MPINID_REVOKED"
	codeRevokedMPinID                = "REVOKED_MPINID"
	codeInvalidAuth                  = "INVALID_AUTH"
	codeUnsuccessfulAuthentication   = "UNSUCCESSFUL_AUTHENTICATION"
	codeInvalidAuthSession           = "INVALID_AUTH_SESSION"
	codeInvalidAuthenticationSession = "INVALID_AUTHENTICATION_SESSION"
	codeBackoffError                 = "BACKOFF_ERROR"
	codeRequestBackoff               = "REQUEST_BACKOFF"
	codeInvalidVerificationCode      = "INVALID_VERIFICATION_CODE"
	codeUnsuccessfulVerification     = "UNSUCCESSFUL_VERIFICATION"
	codeLimitedQuickCodeGeneration   = "LIMITED_QUICKCODE_GENERATION"
	codeInvalidSigningSession        = "INVALID_SIGNING_SESSION"
)

// asClientError extracts the platform client error from err, if any.
func asClientError(err error) (*core.ClientError, bool) {
	var clientErr *core.ClientError
	if errors.As(err, &clientErr) {
		return clientErr, true
	}
	return nil, false
}

// proofSubject is the identity the proofs commit to: the mpinId followed by
// the signing public key.
func proofSubject(mpinID, publicKey []byte) []byte {
	subject := make([]byte, 0, len(mpinID)+len(publicKey))
	subject = append(subject, mpinID...)
	return append(subject, publicKey...)
}
