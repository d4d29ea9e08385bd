// Copyright (c) 2024 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

package jwt

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	token := signedToken(t, jwt.MapClaims{"sub": "alice", "exp": exp.Unix()})

	expiry, err := Expiry(token)
	if err != nil {
		t.Fatalf("could not read expiry: %v", err)
	}
	if !expiry.Equal(exp) {
		t.Errorf("expected %v, got %v", exp, expiry)
	}

	if _, err := Expiry(signedToken(t, jwt.MapClaims{"sub": "alice"})); err != ErrNoExpiry {
		t.Errorf("expected ErrNoExpiry, got %v", err)
	}

	if _, err := Expiry("opaque-access-token"); err != ErrNotJWT {
		t.Errorf("expected ErrNotJWT, got %v", err)
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	past := signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
	future := signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	soon := signedToken(t, jwt.MapClaims{"exp": now.Add(10 * time.Second).Unix()})

	if !Expired(past, now, 0) {
		t.Errorf("token in the past should be expired")
	}
	if Expired(future, now, 0) {
		t.Errorf("token in the future should not be expired")
	}
	if !Expired(soon, now, 30*time.Second) {
		t.Errorf("token expiring within the leeway should count as expired")
	}
	if Expired("opaque-access-token", now, time.Hour) {
		t.Errorf("opaque tokens are never considered expired")
	}
}
