// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package names

import (
	"github.com/ergochat/irc-go/ircmsg"
)

// DMIdentifier names a session for direct messages. The display form keeps
// the case it was created with; equality uses the casefolded form.
type DMIdentifier struct {
	name   string
	folded string
}

// NewDMIdentifier validates and normalizes a direct-message identifier.
func NewDMIdentifier(name string) (id DMIdentifier, err error) {
	folded, err := CasefoldIdentifier(name)
	if err != nil {
		return
	}
	return DMIdentifier{name: name, folded: folded}, nil
}

// MustDMIdentifier is NewDMIdentifier for trusted literals.
func MustDMIdentifier(name string) DMIdentifier {
	id, err := NewDMIdentifier(name)
	if err != nil {
		panic(err)
	}
	return id
}

func (id DMIdentifier) String() string { return id.name }

// Folded is the normalized form, suitable as a map key.
func (id DMIdentifier) Folded() string { return id.folded }

func (id DMIdentifier) IsZero() bool { return id.folded == "" }

func (id DMIdentifier) Equal(other DMIdentifier) bool {
	return id.folded == other.folded
}

// ChannelName names a channel; it always starts with '#'.
type ChannelName struct {
	name   string
	folded string
}

func NewChannelName(name string) (channel ChannelName, err error) {
	folded, err := CasefoldChannel(name)
	if err != nil {
		return
	}
	return ChannelName{name: name, folded: folded}, nil
}

func MustChannelName(name string) ChannelName {
	channel, err := NewChannelName(name)
	if err != nil {
		panic(err)
	}
	return channel
}

func (c ChannelName) String() string { return c.name }

func (c ChannelName) Folded() string { return c.folded }

func (c ChannelName) IsZero() bool { return c.folded == "" }

func (c ChannelName) Equal(other ChannelName) bool {
	return c.folded == other.folded
}

// RecipientKind discriminates MessageRecipient.
type RecipientKind uint8

const (
	RecipientChannel RecipientKind = iota
	RecipientDM
	RecipientAll
)

// MessageRecipient is the target of a PRIVMSG or NOTICE.
type MessageRecipient struct {
	Kind    RecipientKind
	Channel ChannelName
	DM      DMIdentifier
}

// AllRecipients is the "*" recipient.
var AllRecipients = MessageRecipient{Kind: RecipientAll}

// ParseRecipient parses a single target token: "*" is everyone, otherwise
// an identifier, otherwise a channel name.
func ParseRecipient(token string) (recipient MessageRecipient, ok bool) {
	if token == "*" {
		return AllRecipients, true
	}
	if id, err := NewDMIdentifier(token); err == nil {
		return DMRecipient(id), true
	}
	if channel, err := NewChannelName(token); err == nil {
		return ChannelRecipient(channel), true
	}
	return
}

func DMRecipient(id DMIdentifier) MessageRecipient {
	return MessageRecipient{Kind: RecipientDM, DM: id}
}

func ChannelRecipient(channel ChannelName) MessageRecipient {
	return MessageRecipient{Kind: RecipientChannel, Channel: channel}
}

func (r MessageRecipient) String() string {
	switch r.Kind {
	case RecipientChannel:
		return r.Channel.String()
	case RecipientDM:
		return r.DM.String()
	default:
		return "*"
	}
}

// Equal compares recipients by kind and normalized name.
func (r MessageRecipient) Equal(other MessageRecipient) bool {
	if r.Kind != other.Kind {
		return false
	}
	switch r.Kind {
	case RecipientChannel:
		return r.Channel.Equal(other.Channel)
	case RecipientDM:
		return r.DM.Equal(other.DM)
	default:
		return true
	}
}

// UserID is a full nick!user@host source.
type UserID struct {
	ID   DMIdentifier
	User string
	Host string
}

// ParseUserID parses nick[!user][@host]; the nick must be a valid identifier.
func ParseUserID(source string) (userID UserID, err error) {
	nuh, err := ircmsg.ParseNUH(source)
	if err != nil {
		return
	}
	id, err := NewDMIdentifier(nuh.Name)
	if err != nil {
		return
	}
	return UserID{ID: id, User: nuh.User, Host: nuh.Host}, nil
}

func (u UserID) String() string {
	nuh := ircmsg.NUH{Name: u.ID.String(), User: u.User, Host: u.Host}
	return nuh.Canonical()
}
