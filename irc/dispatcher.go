// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"errors"

	"github.com/cartisim/relayd/irc/command"
	"github.com/cartisim/relayd/irc/names"
)

// Dispatch delivers a PRIVMSG from sender to each recipient. A recipient
// that cannot be resolved does not stop delivery to the others; the
// failures come back joined, one *ServerError per bad recipient.
func (server *Server) Dispatch(sender *Session, recipients []names.MessageRecipient, text string) error {
	return server.dispatch(sender, recipients, text, false)
}

func (server *Server) dispatch(sender *Session, recipients []names.MessageRecipient, text string, notice bool) error {
	origin := sender.UserID().String()
	var errs []error

	for _, recipient := range recipients {
		single := []names.MessageRecipient{recipient}
		var c command.Command
		if notice {
			c = command.Notice{Recipients: single, Text: text}
		} else {
			c = command.PrivMsg{Recipients: single, Text: text}
		}

		switch recipient.Kind {
		case names.RecipientChannel:
			subscribers, ok := server.context.GetSessions(recipient.Channel)
			if !ok {
				errs = append(errs, newServerError(errNoSuchChannel, recipient.Channel.String()))
				continue
			}
			msg := command.NewMessage(origin, recipient.Channel.String(), c)
			for _, subscriber := range subscribers {
				if subscriber != sender {
					subscriber.Send(msg)
				}
			}
			server.metrics.MessageDelivered("channel", len(subscribers))

		case names.RecipientDM:
			target, ok := server.context.GetSession(recipient.DM)
			if !ok {
				errs = append(errs, newServerError(errNoSuchIdentifier, recipient.DM.String()))
				continue
			}
			target.Send(command.NewMessage(origin, recipient.DM.String(), c))
			server.metrics.MessageDelivered("dm", 1)

		default:
			errs = append(errs, newServerError(errBroadcast, "*"))
		}
	}
	return errors.Join(errs...)
}

// peers returns every other session sharing a channel with session.
func (server *Server) peers(session *Session) (result []*Session) {
	seen := make(map[*Session]struct{})
	for _, channel := range session.Channels() {
		members, _ := server.context.GetSessions(channel)
		for _, member := range members {
			if member == session {
				continue
			}
			if _, ok := seen[member]; !ok {
				seen[member] = struct{}{}
				result = append(result, member)
			}
		}
	}
	return
}

// audience is who sees a relayed message: every subscriber of every
// channel the sender has joined, plus the sender itself.
func (server *Server) audience(session *Session) []*Session {
	return append([]*Session{session}, server.peers(session)...)
}
