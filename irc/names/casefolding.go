// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package names

import (
	"errors"
	"strings"

	"github.com/ergochat/confusables"
	"golang.org/x/text/secure/precis"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxIdentifierLength bounds both identifiers and channel names, in bytes.
	MaxIdentifierLength = 64

	casemappingName = "rfc8265"
)

var (
	errCouldNotStabilize = errors.New("Could not stabilize string while casefolding")
	errStringIsEmpty     = errors.New("String is empty")
	errInvalidCharacter  = errors.New("Invalid character")
	errTooLong           = errors.New("String is too long")
)

// Each pass of PRECIS casefolding is a composition of idempotent operations,
// but not idempotent itself, so repeat until it converges (at most 4 times).
func iterateFolding(profile *precis.Profile, oldStr string) (str string, err error) {
	str = oldStr
	for i := 0; i < 4; i++ {
		str, err = profile.CompareKey(str)
		if err != nil {
			return "", err
		}
		if oldStr == str {
			break
		}
		oldStr = str
	}
	if oldStr != str {
		return "", errCouldNotStabilize
	}
	return str, nil
}

// Casefold returns a casefolded string, without doing any name or channel character checks.
func Casefold(str string) (string, error) {
	return iterateFolding(precis.UsernameCaseMapped, str)
}

// CasefoldChannel returns the normalized form of a channel name.
func CasefoldChannel(name string) (string, error) {
	if len(name) == 0 {
		return "", errStringIsEmpty
	} else if len(name) > MaxIdentifierLength {
		return "", errTooLong
	}

	// don't casefold the preceding #'s
	var start int
	for start = 0; start < len(name) && name[start] == '#'; start += 1 {
	}

	if start == 0 {
		return "", errInvalidCharacter
	}

	lowered, err := Casefold(name[start:])
	if err != nil {
		return "", err
	}

	// space can't be used
	// , is used as a separator
	// * and ? are used in mask matching
	if strings.ContainsAny(lowered, " ,*?") {
		return "", errInvalidCharacter
	}

	return name[:start] + lowered, nil
}

// CasefoldIdentifier returns the normalized form of a direct-message identifier.
// Folding is RFC 8265 (PRECIS), which agrees with strings.ToLower and
// strings.ToUpper on ASCII but not on all of Unicode: "İlker" and its
// strings.ToLower form fold differently, since Go maps İ to "i̇".
func CasefoldIdentifier(name string) (string, error) {
	if len(name) > MaxIdentifierLength {
		return "", errTooLong
	}
	lowered, err := Casefold(name)

	if err != nil {
		return "", err
	} else if len(lowered) == 0 {
		return "", errStringIsEmpty
	}

	// . denotes a server name
	// ! separates the identifier from the username
	// @ separates username from hostname
	// : means trailing
	// # is the channel prefix and ~&@%+ are membership prefixes
	if strings.ContainsAny(lowered, " ,*?.!@:") || strings.ContainsAny(string(lowered[0]), "#~&@%+-") {
		return "", errInvalidCharacter
	}

	return lowered, nil
}

// "boring" names are exempt from skeletonization, since confusables.txt
// considers pure ASCII alphanumerics like 0 and O confusable.
func isBoring(name string) bool {
	for i := 0; i < len(name); i += 1 {
		chr := name[i]
		if (chr >= 'a' && chr <= 'z') || (chr >= 'A' && chr <= 'Z') || (chr >= '0' && chr <= '9') {
			continue
		}
		switch chr {
		case '$', '%', '^', '&', '(', ')', '{', '}', '[', ']', '<', '>', '=':
			continue
		default:
			return false
		}
	}
	return true
}

var skeletonCasefolder = precis.NewIdentifier(precis.FoldWidth, precis.LowerCase(), precis.Norm(norm.NFC))

// Skeleton produces a canonicalized identifier that tries to catch
// homoglyphic / confusable identifiers. The skeleton is computed from the
// original (unfolded) identifier, not from its casefolded form.
func Skeleton(name string) (string, error) {
	if !isBoring(name) {
		name = confusables.Skeleton(name)
	}
	return iterateFolding(skeletonCasefolder, name)
}

// CasemappingName is advertised in the welcome burst.
func CasemappingName() string {
	return casemappingName
}
