// Copyright (c) 2018 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

const (
	// SecretTokenLength is the length of the tokens produced by GenerateSecretToken.
	SecretTokenLength = 32
)

// GenerateSecretToken generates a secret token that cannot be brute-forced
// via online attacks. It is used for the admin API bearer token when none
// is configured.
func GenerateSecretToken() string {
	// 128 bits of entropy are enough to resist any online attack:
	var buf [16]byte
	rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// SecretTokensMatch checks in constant time whether a supplied token
// matches a stored one.
func SecretTokensMatch(storedToken string, suppliedToken string) bool {
	// an uninitialized stored token matches nothing, not even an empty one
	if len(storedToken) == 0 {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(storedToken), []byte(suppliedToken)) == 1
}
