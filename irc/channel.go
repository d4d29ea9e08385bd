// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016- Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"sort"
	"time"

	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
)

// ServerChannel is a channel on the server. It is owned by the
// ServerContext and every field is guarded by the ServerContext lock;
// code outside the registry only ever sees a ChannelInfo snapshot.
type ServerChannel struct {
	name        names.ChannelName
	welcome     string
	operators   map[string]names.DMIdentifier // casefolded id -> id
	subscribers []*Session
	modes       modes.ChannelModeSet
	ctime       time.Time
	registered  bool
}

// ChannelInfo is an immutable snapshot of a ServerChannel.
type ChannelInfo struct {
	Name        names.ChannelName
	Welcome     string
	Operators   []names.DMIdentifier
	Subscribers []names.DMIdentifier
	Modes       modes.ChannelModeSet
	Created     time.Time
	// Registered channels are persisted in the datastore
	Registered bool
}

// NewServerChannel creates a channel with no subscribers.
func NewServerChannel(name names.ChannelName, welcome string, channelModes modes.ChannelModeSet) *ServerChannel {
	return &ServerChannel{
		name:      name,
		welcome:   welcome,
		operators: make(map[string]names.DMIdentifier),
		modes:     channelModes,
		ctime:     time.Now().UTC(),
	}
}

func (channel *ServerChannel) hasSubscriber(session *Session) bool {
	for _, s := range channel.subscribers {
		if s == session {
			return true
		}
	}
	return false
}

// subscribe adds session; it reports false if it was already subscribed.
func (channel *ServerChannel) subscribe(session *Session) bool {
	if channel.hasSubscriber(session) {
		return false
	}
	channel.subscribers = append(channel.subscribers, session)
	return true
}

func (channel *ServerChannel) unsubscribe(session *Session) bool {
	for i, s := range channel.subscribers {
		if s == session {
			channel.subscribers = append(channel.subscribers[:i], channel.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

func (channel *ServerChannel) isOperator(id names.DMIdentifier) bool {
	_, ok := channel.operators[id.Folded()]
	return ok
}

func (channel *ServerChannel) addOperator(id names.DMIdentifier) {
	channel.operators[id.Folded()] = id
}

func (channel *ServerChannel) getInfo() ChannelInfo {
	info := ChannelInfo{
		Name:       channel.name,
		Welcome:    channel.welcome,
		Modes:      channel.modes,
		Created:    channel.ctime,
		Registered: channel.registered,
	}
	for _, id := range channel.operators {
		info.Operators = append(info.Operators, id)
	}
	sort.Slice(info.Operators, func(i, j int) bool {
		return info.Operators[i].Folded() < info.Operators[j].Folded()
	})
	for _, session := range channel.subscribers {
		if id, ok := session.ID(); ok {
			info.Subscribers = append(info.Subscribers, id)
		}
	}
	return info
}

// IsOperator reports whether id was an operator when the snapshot was taken.
func (info ChannelInfo) IsOperator(id names.DMIdentifier) bool {
	for _, op := range info.Operators {
		if op.Equal(id) {
			return true
		}
	}
	return false
}
