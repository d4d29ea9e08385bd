// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"github.com/cartisim/relayd/irc/command"
)

// Command represents a command accepted from a client.
type Command struct {
	handler      func(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool
	usablePreReg bool
	// minParams only applies to commands the codec does not model
	minParams int
}

// Run runs this command for the session.
func (cmd *Command) Run(server *Server, session *Session, c command.Command) (exiting bool) {
	rb := NewResponseBuffer(session)

	exiting = func() bool {
		defer rb.Send()

		if !cmd.usablePreReg && !session.IsRegistered() {
			rb.addError(newServerError(errNotRegistered))
			return false
		}
		if other, ok := c.(command.OtherCommand); ok && len(other.Args) < cmd.minParams {
			rb.Reply(command.ERR_NEEDMOREPARAMS, other.Command, defaultReplyText(command.ERR_NEEDMOREPARAMS))
			return false
		}

		return cmd.handler(server, session, c, rb)
	}()

	if exiting {
		return
	}

	// after each command, see if we can send registration to the client
	if !session.Welcomed() {
		exiting = server.tryRegister(session)
	}
	return exiting
}

// unknownCommand answers anything not in Commands.
var unknownCommand = Command{
	handler:      unknownCommandHandler,
	usablePreReg: true,
}

// Commands holds all commands executable by a client connected to us.
var Commands map[string]Command

func init() {
	Commands = map[string]Command{
		"CAP": {
			handler:      capHandler,
			usablePreReg: true,
		},
		"DMID": {
			handler:      dmidHandler,
			usablePreReg: true,
		},
		"ISON": {
			handler: isonHandler,
		},
		"JOIN": {
			handler: joinHandler,
		},
		"LIST": {
			handler: listHandler,
		},
		"LUSERS": {
			handler: lusersHandler,
		},
		"MODE": {
			handler: modeHandler,
		},
		"MOTD": {
			handler: motdHandler,
		},
		"NOTICE": {
			handler: noticeHandler,
		},
		"PART": {
			handler: partHandler,
		},
		"PASS": {
			handler:      passHandler,
			usablePreReg: true,
			minParams:    1,
		},
		"PING": {
			handler:      pingHandler,
			usablePreReg: true,
			minParams:    1,
		},
		"PONG": {
			handler:      pongHandler,
			usablePreReg: true,
		},
		"PRIVMSG": {
			handler: privmsgHandler,
		},
		"QUIT": {
			handler:      quitHandler,
			usablePreReg: true,
		},
		"USER": {
			handler:      userHandler,
			usablePreReg: true,
		},
		"WHO": {
			handler: whoHandler,
		},
		"WHOIS": {
			handler: whoisHandler,
		},
	}
}
