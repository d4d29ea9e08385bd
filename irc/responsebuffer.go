// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"errors"

	"github.com/cartisim/relayd/irc/command"
	"github.com/cartisim/relayd/irc/names"
)

// ResponseBuffer collects the replies to one command and then writes them
// to the session in a single Send, so they are never interleaved with
// messages from other sessions.
type ResponseBuffer struct {
	session  *Session
	messages []command.Message
}

// NewResponseBuffer returns a new ResponseBuffer.
func NewResponseBuffer(session *Session) *ResponseBuffer {
	return &ResponseBuffer{
		session: session,
	}
}

// Add adds a message from the server to our queue.
func (rb *ResponseBuffer) Add(c command.Command) {
	rb.AddFrom(rb.session.server.name, c)
}

// AddFrom adds a message with an explicit origin to our queue.
func (rb *ResponseBuffer) AddFrom(origin string, c command.Command) {
	rb.messages = append(rb.messages, command.NewMessage(origin, rb.session.Target(), c))
}

// Reply adds a numeric reply.
func (rb *ResponseBuffer) Reply(code command.Code, args ...string) {
	rb.Add(command.NewNumeric(code, args...))
}

// addError adds the numeric for err. Errors that are not protocol errors
// are reported as an unknown command.
func (rb *ResponseBuffer) addError(err error) {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		serverErr = newServerError(err)
	}
	rb.Reply(serverErr.Code, serverErr.Arguments()...)
}

// addErrors adds one numeric per joined error.
func (rb *ResponseBuffer) addErrors(err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			rb.addErrors(e)
		}
		return
	}
	rb.addError(err)
}

// Notice adds a NOTICE from the server.
func (rb *ResponseBuffer) Notice(text string) {
	recipient := names.AllRecipients
	if id, ok := rb.session.ID(); ok {
		recipient = names.DMRecipient(id)
	}
	rb.Add(command.Notice{Recipients: []names.MessageRecipient{recipient}, Text: text})
}

// Send sends the queued messages to the session.
func (rb *ResponseBuffer) Send() {
	if len(rb.messages) == 0 {
		return
	}
	rb.session.Send(rb.messages...)
	rb.messages = nil
}
