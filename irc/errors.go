// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cartisim/relayd/irc/command"
)

// Runtime Errors
var (
	errIdentifierInUse   = errors.New("Identifier in use")
	errNoSuchIdentifier  = errors.New("No such identifier")
	errNoSuchChannel     = errors.New("No such channel")
	errNotRegistered     = errors.New("Not registered")
	errAlreadyRegistered = errors.New("Already registered")
	errUsersDontMatch    = errors.New("Cannot change mode for other users")
	errChanOPrivsNeeded  = errors.New("Channel operator privileges needed")
	errNoSuchServer      = errors.New("No such server")
	errDoesNotRespondTo  = errors.New("Command not implemented")
	errPasswordMismatch  = errors.New("Password incorrect")
	errBroadcast         = errors.New("Broadcast recipients are not supported")
)

// Socket Errors
var (
	errReadQ         = errors.New("ReadQ Exceeded")
	errSendQExceeded = errors.New("SendQ Exceeded")
)

// Config Errors
var (
	ErrDatastorePathMissing  = errors.New("Datastore path missing")
	ErrInvalidCertKeyPair    = errors.New("tls cert+key: invalid pair")
	ErrNetworkNameMissing    = errors.New("Network name missing")
	ErrNoListenersDefined    = errors.New("Server listening addresses missing")
	ErrServerNameMissing     = errors.New("Server name missing")
	ErrServerNameNotHostname = errors.New("Server name must match the format of a hostname")
	ErrRelayBaseURLMissing   = errors.New("Relay is enabled but relay.base-url is empty")
	ErrUnknownDatastore      = errors.New("Unknown datastore driver")
)

// errorCodes maps runtime errors to the numeric they are reported with.
var errorCodes = map[error]command.Code{
	errIdentifierInUse:   command.ERR_NICKNAMEINUSE,
	errNoSuchIdentifier:  command.ERR_NOSUCHNICK,
	errNoSuchChannel:     command.ERR_NOSUCHCHANNEL,
	errNotRegistered:     command.ERR_NOTREGISTERED,
	errAlreadyRegistered: command.ERR_ALREADYREGISTRED,
	errUsersDontMatch:    command.ERR_USERSDONTMATCH,
	errChanOPrivsNeeded:  command.ERR_CHANOPRIVSNEEDED,
	errNoSuchServer:      command.ERR_NOSUCHSERVER,
	errDoesNotRespondTo:  command.ERR_UNKNOWNCOMMAND,
	errPasswordMismatch:  command.ERR_PASSWDMISMATCH,
	errBroadcast:         command.ERR_NOSUCHNICK,
}

// ServerError is a protocol-level failure that is reported to the session
// that caused it as a numeric reply, rather than ending the connection.
type ServerError struct {
	Code command.Code
	// Params precede the human-readable text in the reply
	Params []string
	// Message overrides the default text for Code
	Message string
	Err     error
}

// newServerError wraps one of the runtime errors above.
func newServerError(err error, params ...string) *ServerError {
	code, ok := errorCodes[err]
	if !ok {
		code = command.ERR_UNKNOWNCOMMAND
	}
	return &ServerError{Code: code, Params: params, Err: err}
}

func (e *ServerError) Error() string {
	if len(e.Params) == 0 {
		return fmt.Sprintf("%s: %s", e.Code.String(), e.Text())
	}
	return fmt.Sprintf("%s %s: %s", e.Code.String(), strings.Join(e.Params, " "), e.Text())
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// Text is the human-readable part of the reply.
func (e *ServerError) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultReplyText(e.Code)
}

// Arguments is the full argument list of the numeric reply.
func (e *ServerError) Arguments() []string {
	result := make([]string, 0, len(e.Params)+1)
	result = append(result, e.Params...)
	return append(result, e.Text())
}
