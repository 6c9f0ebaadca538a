package pkg

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingBearer   = errors.New("authorization header is empty")
	ErrMalformedBearer = errors.New("authorization header is not a bearer token")
)

// UserClaims is the payload storefront tokens carry. Expiry and the other
// registered claims are checked while parsing.
type UserClaims struct {
	UID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// ParseUserToken verifies an HMAC-signed token against secret and returns
// its claims.
func ParseUserToken(raw, secret string) (UserClaims, error) {
	var claims UserClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return UserClaims{}, err
	}
	return claims, nil
}

// BearerToken pulls the token out of an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingBearer
	}

	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrMalformedBearer
	}
	return token, nil
}
