// Copyright (c) 2024 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

// Package jwt inspects the bearer tokens that relay clients hand us.
// Tokens are issued and verified by the backend; we only read their
// expiry so that a stale access token can be refreshed before it is used.
package jwt

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotJWT        = errors.New("token is not a JWT")
	ErrNoExpiry      = errors.New("token has no exp claim")
	unverifiedParser = jwt.NewParser()
)

// Expiry returns the exp claim of a token without verifying its signature.
func Expiry(token string) (expiry time.Time, err error) {
	parsed, _, err := unverifiedParser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return expiry, ErrNotJWT
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return expiry, err
	}
	if exp == nil {
		return expiry, ErrNoExpiry
	}
	return exp.Time, nil
}

// Expired reports whether a token is a JWT whose exp claim is before
// now+leeway. Opaque tokens and tokens without exp are never expired.
func Expired(token string, now time.Time, leeway time.Duration) bool {
	expiry, err := Expiry(token)
	if err != nil {
		return false
	}
	return !expiry.After(now.Add(leeway))
}
