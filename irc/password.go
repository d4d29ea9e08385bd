// Copyright (c) 2012-2014 Jeremy Latt
// released under the MIT license

package irc

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/GehirnInc/crypt"
	_ "github.com/GehirnInc/crypt/md5_crypt"
	_ "github.com/GehirnInc/crypt/sha256_crypt"
	_ "github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/bcrypt"
)

var (
	EmptyPasswordError = errors.New("empty password")
	errUnknownHashType = errors.New("unrecognized password hash")
)

// GenerateEncodedPassword hashes passwd with bcrypt; the result is suitable
// for server.password in the config file.
func GenerateEncodedPassword(passwd string, cost int) (encoded string, err error) {
	if passwd == "" {
		err = EmptyPasswordError
		return
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bcrypted, err := bcrypt.GenerateFromPassword([]byte(passwd), cost)
	if err != nil {
		return
	}
	encoded = string(bcrypted)
	return
}

// ComparePassword checks password against a stored hash. bcrypt hashes may
// be given raw or base64-encoded; crypt(3) style hashes ($1$, $5$, $6$)
// are verified with the matching algorithm.
func ComparePassword(hash, password string) error {
	if hash == "" {
		return EmptyPasswordError
	}
	switch {
	case strings.HasPrefix(hash, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	case strings.HasPrefix(hash, "$"):
		if !crypt.IsHashSupported(hash) {
			return errUnknownHashType
		}
		return crypt.NewFromHash(hash).Verify(hash, []byte(password))
	}
	decoded, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return errUnknownHashType
	}
	return bcrypt.CompareHashAndPassword(decoded, []byte(password))
}

func checkServerPassword(hash, password string) bool {
	return ComparePassword(hash, password) == nil
}
