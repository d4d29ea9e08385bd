// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package relay

import (
	"errors"
	"fmt"
)

var (
	ErrUndecryptable        = errors.New("backend response could not be decrypted")
	ErrAccessTokenNotFound  = errors.New("access token not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrNoKeys               = errors.New("backend returned no keys")
	ErrDisabled             = errors.New("relay is disabled")
)

// IsAuthenticationError reports whether err means the payload lacked the
// tokens needed to post it.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrAccessTokenNotFound) || errors.Is(err, ErrRefreshTokenNotFound)
}

// RemoteError is a terminal failure talking to the backend: a non-200
// status (StatusCode set) or a transport failure (Err set).
type RemoteError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relay %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("relay %s failed: status %d", e.Endpoint, e.StatusCode)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
