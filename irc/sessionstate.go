// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"github.com/cartisim/relayd/irc/command"
	"github.com/cartisim/relayd/irc/names"
)

type sessionStateKind uint8

const (
	stateInitial sessionStateKind = iota
	stateIDAssigned
	stateUserSet
	stateRegistered
)

// SessionState is the registration state of a session. A session is
// registered once it has both an identifier and user info, in either order.
type SessionState struct {
	kind sessionStateKind
	id   names.DMIdentifier
	info command.UserInfo
}

// ChangeID returns the state after the session is given id.
func (s SessionState) ChangeID(id names.DMIdentifier) SessionState {
	switch s.kind {
	case stateInitial, stateIDAssigned:
		return SessionState{kind: stateIDAssigned, id: id}
	default:
		return SessionState{kind: stateRegistered, id: id, info: s.info}
	}
}

// SetUserInfo returns the state after USER.
func (s SessionState) SetUserInfo(info command.UserInfo) SessionState {
	switch s.kind {
	case stateInitial, stateUserSet:
		return SessionState{kind: stateUserSet, info: info}
	default:
		return SessionState{kind: stateRegistered, id: s.id, info: info}
	}
}

func (s SessionState) IsRegistered() bool {
	return s.kind == stateRegistered
}

func (s SessionState) ID() (id names.DMIdentifier, ok bool) {
	if s.kind == stateIDAssigned || s.kind == stateRegistered {
		return s.id, true
	}
	return
}

func (s SessionState) UserInfo() (info command.UserInfo, ok bool) {
	if s.kind == stateUserSet || s.kind == stateRegistered {
		return s.info, true
	}
	return
}

func (s SessionState) String() string {
	switch s.kind {
	case stateInitial:
		return "initial"
	case stateIDAssigned:
		return "id-assigned(" + s.id.String() + ")"
	case stateUserSet:
		return "user-set(" + s.info.Username + ")"
	default:
		return "registered(" + s.id.String() + ")"
	}
}
