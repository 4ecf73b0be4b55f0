package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/layer-3/mpin/core"
)

// userRecord is the serialized form of a core.User. Stored records survive
// SDK upgrades, so fields are only ever added, never renamed.
type userRecord struct {
	UserID    string
	ProjectID string
	Revoked   bool
	PinLength int
	MPinID    []byte
	Token     []byte
	DTAS      string
	PublicKey []byte
}

func encodeUser(u *core.User) ([]byte, error) {
	rec := userRecord{
		UserID:    u.UserID,
		ProjectID: u.ProjectID,
		Revoked:   u.Revoked,
		PinLength: u.PinLength,
		MPinID:    u.MPinID,
		Token:     u.Token,
		DTAS:      u.DTAS,
		PublicKey: u.PublicKey,
	}

	payload, err := cbor.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user record: %w", err)
	}
	return payload, nil
}

func decodeUser(payload []byte) (*core.User, error) {
	var rec userRecord
	if err := cbor.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode user record: %w", err)
	}

	return &core.User{
		UserID:    rec.UserID,
		ProjectID: rec.ProjectID,
		Revoked:   rec.Revoked,
		PinLength: rec.PinLength,
		MPinID:    rec.MPinID,
		Token:     rec.Token,
		DTAS:      rec.DTAS,
		PublicKey: rec.PublicKey,
	}, nil
}

// userKey builds the (userID, projectID) composite key.
func userKey(userID, projectID string) string {
	return projectID + "/" + userID
}
