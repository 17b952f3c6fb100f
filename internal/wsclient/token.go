package wsclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiryFromAccessToken derives a Token's expiry from the OAuth2
// server's declared expires_in when present, falling back to decoding
// the access token itself as a JWT and reading its exp claim. The
// agent is a token consumer, never an issuer, so the JWT is parsed
// unverified — there is no shared secret to check a signature
// against, only the expiry it carries.
func expiryFromAccessToken(body tokenResponse, now time.Time) time.Time {
	if body.ExpiresIn > 0 {
		return now.Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	if exp, ok := parseJWTExpiry(body.AccessToken); ok {
		return exp
	}
	return now.Add(defaultTokenLifetime)
}

const defaultTokenLifetime = 5 * time.Minute

func parseJWTExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
