package core

// Session statuses reported by the platform for cross-device sessions.
const (
	SessionStatusActive = "active"
	SessionStatusSigned = "signed"
)

// AuthenticationSessionDetails describes a server-tracked cross-device
// authentication session, typically started by scanning a QR code or
// following an app link on another device.
type AuthenticationSessionDetails struct {
	AccessID                   string // Opaque session identifier
	UserID                     string // User the session was started for, if any
	ProjectID                  string
	ProjectName                string
	ProjectLogoURL             string
	PinLength                  int
	VerificationMethod         string // How new users verify, "link" or "code"
	VerificationURL            string
	VerificationCustomText     string
	IdentityType               string
	IdentityTypeLabel          string
	QuickCodeEnabled           bool
	LimitQuickCodeRegistration bool
}

// SigningSessionDetails describes a server-tracked cross-device signing
// session carrying the document hash the other device asked to be signed.
type SigningSessionDetails struct {
	SessionID                  string
	SigningHash                string // Hex digest of the document to sign
	SigningDescription         string
	Status                     string
	ExpireTime                 int64 // Unix seconds
	UserID                     string
	ProjectID                  string
	ProjectName                string
	ProjectLogoURL             string
	PinLength                  int
	VerificationMethod         string
	VerificationURL            string
	VerificationCustomText     string
	IdentityType               string
	IdentityTypeLabel          string
	QuickCodeEnabled           bool
	LimitQuickCodeRegistration bool
}

// CrossDeviceSession is the unified descriptor of a cross-device session,
// covering both authentication and signing origins. SigningHash and
// SigningDescription are empty for authentication sessions.
type CrossDeviceSession struct {
	SessionID          string
	UserID             string
	ProjectID          string
	ProjectName        string
	Status             string
	SigningHash        string
	SigningDescription string
}
