// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package command

import (
	"errors"
	"fmt"

	"github.com/cartisim/relayd/irc/modes"
)

// Parse errors; every error returned by Parse is a *ParserError whose Kind
// is one of these.
var (
	ErrInvalidArgumentCount = errors.New("invalid argument count")
	ErrInvalidDMID          = errors.New("invalid identifier")
	ErrInvalidChannelName   = errors.New("invalid channel name")
	ErrInvalidMessageTarget = errors.New("invalid message target")
	ErrInvalidCAPCommand    = errors.New("invalid CAP subcommand")
	ErrUnknownMode          = modes.ErrUnknownMode
)

// ParserError describes why a (name, arguments) pair could not be parsed.
type ParserError struct {
	Kind    error
	Command string
	// Value is the offending token, when there is one
	Value    string
	Count    int
	Expected int
}

func (e *ParserError) Error() string {
	if e.Kind == ErrInvalidArgumentCount {
		return fmt.Sprintf("%s: %s got %d, expected %d", e.Kind.Error(), e.Command, e.Count, e.Expected)
	}
	return fmt.Sprintf("%s: %s %q", e.Kind.Error(), e.Command, e.Value)
}

func (e *ParserError) Unwrap() error {
	return e.Kind
}

func argumentCountError(command string, count, expected int) error {
	return &ParserError{Kind: ErrInvalidArgumentCount, Command: command, Count: count, Expected: expected}
}

func tokenError(kind error, command, value string) error {
	return &ParserError{Kind: kind, Command: command, Value: value}
}
