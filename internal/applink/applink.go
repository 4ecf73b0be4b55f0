// Package applink extracts session identifiers from the universal links,
// QR code payloads and push notifications the platform produces. Links
// carry the session id in the URI fragment, e.g.
// https://mcl.mpin.io/mobile-login/#b2c3d4e5.
package applink

import (
	"errors"
	"net/url"
	"strings"
)

// Keys of the push notification payload understood by the SDK.
const (
	PayloadKeyProjectID = "projectID"
	PayloadKeyUserID    = "userID"
	PayloadKeyQRURL     = "qrURL"
)

var errNoFragment = errors.New("applink: missing fragment")

// Fragment returns the non-empty URI fragment of link.
func Fragment(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", err
	}
	if u.Fragment == "" {
		return "", errNoFragment
	}
	return u.Fragment, nil
}

// VerificationQuery extracts the user_id and code query parameters from a
// verification confirmation link. Either value may be empty; callers apply
// their own blank checks.
func VerificationQuery(link string) (userID, code string, err error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", "", err
	}

	q := u.Query()
	return q.Get("user_id"), q.Get("code"), nil
}
