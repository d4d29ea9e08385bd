// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"sort"
	"sync"

	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
)

// ServerContext is the directory of sessions and channels. One lock guards
// both maps, and channel membership only changes under it; no method holds
// the lock across I/O. Lock order: ServerContext, then Session.stateMutex.
type ServerContext struct {
	sync.RWMutex
	// casefolded id -> session
	idToSession map[string]*Session
	// casefolded channel name -> channel
	nameToChannel map[string]*ServerChannel
	// skeleton -> casefolded id, maintained only when confusables are forbidden
	skeletonToID      map[string]string
	forbidConfusables bool
	// open connections, with or without an identifier
	connected int

	defaultModes modes.ChannelModeSet
	logger       *logger.Manager
}

// ServerInfo holds the counts reported by LUSERS and the admin API.
type ServerInfo struct {
	Users        int
	Invisible    int
	Operators    int
	Channels     int
	Servers      int
	Unregistered int
}

// NewServerContext returns an empty registry.
func NewServerContext(logger *logger.Manager) *ServerContext {
	return &ServerContext{
		idToSession:   make(map[string]*Session),
		nameToChannel: make(map[string]*ServerChannel),
		skeletonToID:  make(map[string]string),
		defaultModes:  modes.DefaultChannelModes,
		logger:        logger,
	}
}

// SetPolicy updates the settings that rehash may change.
func (sc *ServerContext) SetPolicy(forbidConfusables bool, defaultModes modes.ChannelModeSet) {
	sc.Lock()
	defer sc.Unlock()
	sc.defaultModes = defaultModes
	if sc.forbidConfusables == forbidConfusables {
		return
	}
	sc.forbidConfusables = forbidConfusables
	sc.skeletonToID = make(map[string]string)
	if forbidConfusables {
		for folded, session := range sc.idToSession {
			if id, ok := session.ID(); ok {
				if skeleton, err := names.Skeleton(id.String()); err == nil {
					sc.skeletonToID[skeleton] = folded
				}
			}
		}
	}
}

// AddChannel creates a channel if it does not exist yet. It is used for the
// configured default channels and for channels restored from the datastore.
func (sc *ServerContext) AddChannel(name names.ChannelName, welcome string, channelModes modes.ChannelModeSet, operators []names.DMIdentifier, registered bool) (created bool) {
	sc.Lock()
	defer sc.Unlock()
	if _, ok := sc.nameToChannel[name.Folded()]; ok {
		return false
	}
	channel := NewServerChannel(name, welcome, channelModes)
	channel.registered = registered
	for _, op := range operators {
		channel.addOperator(op)
	}
	sc.nameToChannel[name.Folded()] = channel
	return true
}

// skeletonConflict must be called with the write lock held.
func (sc *ServerContext) skeletonConflict(id names.DMIdentifier, except string) (skeleton string, conflict bool) {
	if !sc.forbidConfusables {
		return "", false
	}
	skeleton, err := names.Skeleton(id.String())
	if err != nil {
		return "", false
	}
	holder, ok := sc.skeletonToID[skeleton]
	return skeleton, ok && holder != id.Folded() && holder != except
}

// RegisterSession claims id for session.
func (sc *ServerContext) RegisterSession(session *Session, id names.DMIdentifier) error {
	sc.Lock()
	defer sc.Unlock()

	if existing, ok := sc.idToSession[id.Folded()]; ok && existing != session {
		return errIdentifierInUse
	}
	skeleton, conflict := sc.skeletonConflict(id, "")
	if conflict {
		return errIdentifierInUse
	}
	sc.idToSession[id.Folded()] = session
	if skeleton != "" {
		sc.skeletonToID[skeleton] = id.Folded()
	}
	return nil
}

// RenameSession moves session from oldID to newID in one step, carrying its
// channel operator status along.
func (sc *ServerContext) RenameSession(session *Session, oldID, newID names.DMIdentifier) error {
	sc.Lock()
	defer sc.Unlock()

	if existing, ok := sc.idToSession[newID.Folded()]; ok && existing != session {
		return errIdentifierInUse
	}
	skeleton, conflict := sc.skeletonConflict(newID, oldID.Folded())
	if conflict {
		return errIdentifierInUse
	}

	if existing, ok := sc.idToSession[oldID.Folded()]; ok && existing == session {
		delete(sc.idToSession, oldID.Folded())
		if oldSkeleton, err := names.Skeleton(oldID.String()); err == nil && sc.skeletonToID[oldSkeleton] == oldID.Folded() {
			delete(sc.skeletonToID, oldSkeleton)
		}
	}
	sc.idToSession[newID.Folded()] = session
	if skeleton != "" {
		sc.skeletonToID[skeleton] = newID.Folded()
	}

	for _, channel := range sc.nameToChannel {
		if channel.hasSubscriber(session) && channel.isOperator(oldID) {
			delete(channel.operators, oldID.Folded())
			channel.addOperator(newID)
		}
	}
	return nil
}

// UnregisterSession releases id. If id is held by a different session this
// logs a warning and changes nothing.
func (sc *ServerContext) UnregisterSession(session *Session, id names.DMIdentifier) error {
	sc.Lock()
	defer sc.Unlock()

	existing, ok := sc.idToSession[id.Folded()]
	if !ok {
		return errNoSuchIdentifier
	}
	if existing != session {
		sc.logger.Warning(logger.TypeRegistry, "refusing to unregister identifier held by another session", id.String(), session.uuid)
		return nil
	}
	delete(sc.idToSession, id.Folded())
	if skeleton, err := names.Skeleton(id.String()); err == nil && sc.skeletonToID[skeleton] == id.Folded() {
		delete(sc.skeletonToID, skeleton)
	}
	return nil
}

// JoinChannel subscribes session to name, creating the channel on first
// reference. The first member of a channel becomes its operator. joined is
// false if session was already subscribed.
func (sc *ServerContext) JoinChannel(name names.ChannelName, session *Session) (info ChannelInfo, joined, created bool) {
	sc.Lock()
	defer sc.Unlock()

	channel, ok := sc.nameToChannel[name.Folded()]
	if !ok {
		channel = NewServerChannel(name, "", sc.defaultModes)
		sc.nameToChannel[name.Folded()] = channel
		created = true
	}
	joined = channel.subscribe(session)
	if joined && len(channel.subscribers) == 1 {
		if id, ok := session.ID(); ok {
			channel.addOperator(id)
		}
	}
	return channel.getInfo(), joined, created
}

// PartChannel unsubscribes session from name; absent channels and
// non-members are a no-op.
func (sc *ServerContext) PartChannel(name names.ChannelName, session *Session) (parted bool) {
	sc.Lock()
	defer sc.Unlock()

	channel, ok := sc.nameToChannel[name.Folded()]
	if !ok {
		return false
	}
	return channel.unsubscribe(session)
}

// GetSessions returns the subscribers of channel; ok is false if the
// channel does not exist.
func (sc *ServerContext) GetSessions(channel names.ChannelName) (sessions []*Session, ok bool) {
	sc.RLock()
	defer sc.RUnlock()

	ch, ok := sc.nameToChannel[channel.Folded()]
	if !ok {
		return nil, false
	}
	sessions = make([]*Session, len(ch.subscribers))
	copy(sessions, ch.subscribers)
	return sessions, true
}

// GetSession returns the session holding id.
func (sc *ServerContext) GetSession(id names.DMIdentifier) (session *Session, ok bool) {
	sc.RLock()
	defer sc.RUnlock()
	session, ok = sc.idToSession[id.Folded()]
	return
}

// AllSessions returns every registered session.
func (sc *ServerContext) AllSessions() (result []*Session) {
	sc.RLock()
	defer sc.RUnlock()
	result = make([]*Session, 0, len(sc.idToSession))
	for _, session := range sc.idToSession {
		result = append(result, session)
	}
	return
}

// IdentifiersOnline filters ids down to those currently held.
func (sc *ServerContext) IdentifiersOnline(ids []names.DMIdentifier) (result []names.DMIdentifier) {
	sc.RLock()
	defer sc.RUnlock()
	for _, id := range ids {
		if session, ok := sc.idToSession[id.Folded()]; ok {
			if current, ok := session.ID(); ok {
				result = append(result, current)
			}
		}
	}
	return
}

// ChannelInfo returns a snapshot of one channel.
func (sc *ServerContext) ChannelInfo(name names.ChannelName) (info ChannelInfo, ok bool) {
	sc.RLock()
	defer sc.RUnlock()
	channel, ok := sc.nameToChannel[name.Folded()]
	if !ok {
		return
	}
	return channel.getInfo(), true
}

// ChannelInfos returns snapshots of the named channels that exist, or of
// every channel (sorted by name) when no names are given.
func (sc *ServerContext) ChannelInfos(channelNames []names.ChannelName) (result []ChannelInfo) {
	sc.RLock()
	defer sc.RUnlock()

	if len(channelNames) == 0 {
		for _, channel := range sc.nameToChannel {
			result = append(result, channel.getInfo())
		}
		sort.Slice(result, func(i, j int) bool {
			return result[i].Name.Folded() < result[j].Name.Folded()
		})
		return
	}
	for _, name := range channelNames {
		if channel, ok := sc.nameToChannel[name.Folded()]; ok {
			result = append(result, channel.getInfo())
		}
	}
	return
}

// ChannelMode returns the current modes of a channel.
func (sc *ServerContext) ChannelMode(name names.ChannelName) (channelModes modes.ChannelModeSet, ok bool) {
	sc.RLock()
	defer sc.RUnlock()
	channel, ok := sc.nameToChannel[name.Folded()]
	if !ok {
		return
	}
	return channel.modes, true
}

// SetChannelMode applies a mode change on behalf of session, which must be
// a channel operator.
func (sc *ServerContext) SetChannelMode(name names.ChannelName, session *Session, add, remove modes.ChannelModeSet) (info ChannelInfo, err error) {
	id, registered := session.ID()

	sc.Lock()
	defer sc.Unlock()

	channel, ok := sc.nameToChannel[name.Folded()]
	if !ok {
		return info, errNoSuchChannel
	}
	if !registered || !channel.isOperator(id) {
		return info, errChanOPrivsNeeded
	}
	channel.modes = channel.modes.Apply(add, remove)
	return channel.getInfo(), nil
}

// SetChannelRegistered marks a channel as persisted (or not).
func (sc *ServerContext) SetChannelRegistered(name names.ChannelName, registered bool) (info ChannelInfo, ok bool) {
	sc.Lock()
	defer sc.Unlock()
	channel, ok := sc.nameToChannel[name.Folded()]
	if !ok {
		return
	}
	channel.registered = registered
	return channel.getInfo(), true
}

// SessionConnected and SessionDisconnected track open connections, so
// sessions that have not sent DMID yet still show up in ServerInfo.
func (sc *ServerContext) SessionConnected() {
	sc.Lock()
	sc.connected++
	sc.Unlock()
}

func (sc *ServerContext) SessionDisconnected() {
	sc.Lock()
	sc.connected--
	sc.Unlock()
}

// ServerInfo counts sessions and channels. Unregistered covers every open
// connection that hasn't completed registration, identifier or not.
func (sc *ServerContext) ServerInfo() (info ServerInfo) {
	sc.RLock()
	defer sc.RUnlock()

	info.Servers = 1
	info.Channels = len(sc.nameToChannel)
	for _, session := range sc.idToSession {
		if !session.IsRegistered() {
			continue
		}
		info.Users++
		sessionModes := session.Modes()
		if sessionModes.HasMode(modes.Invisible) {
			info.Invisible++
		}
		if sessionModes.HasMode(modes.Operator) || sessionModes.HasMode(modes.LocalOperator) {
			info.Operators++
		}
	}
	info.Unregistered = max(sc.connected-info.Users, 0)
	return
}
