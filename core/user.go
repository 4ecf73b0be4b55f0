package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// User is a registered M-Pin identity bound to a single project.
type User struct {
	UserID    string // End-user identifier, typically an email address
	ProjectID string // Platform project the identity belongs to
	Revoked   bool   // True once the platform has revoked the identity
	PinLength int    // Number of digits of the PIN chosen at registration
	MPinID    []byte // Opaque public identifier issued at registration
	Token     []byte // PIN-locked client secret, useless without the PIN
	DTAS      string // Registration epoch string, echoed in every proof
	PublicKey []byte // Public half of the signing key pair
}

// HashedMPinID returns the SHA-256 hex digest of the mpinId. Lifecycle
// events carry it instead of the raw identifier.
func (u *User) HashedMPinID() string {
	if len(u.MPinID) == 0 {
		return ""
	}
	sum := sha256.Sum256(u.MPinID)
	return hex.EncodeToString(sum[:])
}
