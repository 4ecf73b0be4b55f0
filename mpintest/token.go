package mpintest

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthClaims combines standard claims with the authentication scope the
// token was issued under.
type AuthClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// issueJWT signs an authentication token for the user. The audience is the
// project and the subject the user id, which is how relying parties tell
// who logged in where.
func (p *Platform) issueJWT(userID, projectID, scope string) (string, error) {
	now := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.baseURL,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{projectID},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
		},
		Scope: scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(p.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ParseJWT verifies a platform-issued token and returns its claims. Tests
// use it to check what the SDK got back from an authentication.
func (p *Platform) ParseJWT(tokenStr string, opts ...jwt.ParserOption) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &p.signKey.PublicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}
