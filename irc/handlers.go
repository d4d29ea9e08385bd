// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2018 Daniel Oaks <daniel@danieloaks.net>
// Copyright (c) 2017-2018 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

package irc

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cartisim/relayd/irc/caps"
	"github.com/cartisim/relayd/irc/command"
	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
	"github.com/cartisim/relayd/irc/utils"
)

var (
	// SupportedCapabilities are the caps we advertise.
	SupportedCapabilities = caps.NewSet(caps.UserhostInNames, caps.MultiPrefix, caps.ServerTime, caps.RelayNotify)

	// CapValues are the values sent to CAP 302 clients.
	CapValues = map[caps.Capability]string{}

	// user modes a client may set on itself with MODE; anything may be
	// removed except TLS
	selfSettableModes = modes.NewUserModeSet(modes.Invisible, modes.WallOps, modes.BlockUnidentified, modes.DisableForwarding)
	// user modes USER may request through its mode mask
	userMaskModes = modes.NewUserModeSet(modes.WallOps, modes.Invisible)
)

func intersectUserModes(set, other modes.UserModeSet) modes.UserModeSet {
	return set.Difference(set.Difference(other))
}

// CAP <subcmd> [<caps>]
func capHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	msg := c.(command.Cap)

	switch msg.Subcommand {
	case command.CapLS:
		session.stateMutex.Lock()
		// negotiation only holds back the welcome burst, not the state machine
		if !session.welcomeSent {
			session.capState = caps.NegotiatingState
		}
		if len(msg.IDs) > 0 && msg.IDs[0] == "302" {
			session.capVersion = caps.Cap302
		}
		version := session.capVersion
		session.stateMutex.Unlock()
		rb.Add(command.Cap{Subcommand: command.CapLS, IDs: strings.Fields(SupportedCapabilities.String(version, CapValues))})

	case command.CapLIST:
		session.stateMutex.RLock()
		// values are not sent on LIST
		enabled := session.capabilities.String(caps.Cap301, CapValues)
		session.stateMutex.RUnlock()
		rb.Add(command.Cap{Subcommand: command.CapLIST, IDs: strings.Fields(enabled)})

	case command.CapREQ:
		toAdd := caps.NewSet()
		toRemove := caps.NewSet()
		for _, name := range msg.IDs {
			remove := strings.HasPrefix(name, "-")
			capability, err := caps.NameToCapability(strings.TrimPrefix(name, "-"))
			if err != nil || !SupportedCapabilities.Has(capability) {
				rb.Add(command.Cap{Subcommand: command.CapNAK, IDs: msg.IDs})
				return false
			}
			if remove {
				toRemove.Enable(capability)
			} else {
				toAdd.Enable(capability)
			}
		}
		session.stateMutex.Lock()
		if !session.welcomeSent {
			session.capState = caps.NegotiatingState
		}
		session.capabilities.Union(toAdd)
		session.capabilities.Subtract(toRemove)
		session.stateMutex.Unlock()
		rb.Add(command.Cap{Subcommand: command.CapACK, IDs: msg.IDs})

	case command.CapEND:
		session.stateMutex.Lock()
		if !session.welcomeSent {
			session.capState = caps.NegotiatedState
		}
		session.stateMutex.Unlock()

	case command.CapACK, command.CapNAK:
		// client-side acknowledgements carry nothing for us
	}
	return false
}

// DMID <identifier>
func dmidHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	newID := c.(command.DMID).ID
	oldID, hadID := session.ID()
	if hadID && oldID.String() == newID.String() {
		return false
	}
	oldUserID := session.UserID()

	var err error
	if hadID && oldID.Folded() != newID.Folded() {
		err = server.context.RenameSession(session, oldID, newID)
	} else {
		err = server.context.RegisterSession(session, newID)
	}
	if err != nil {
		rb.addError(newServerError(err, newID.String()))
		return false
	}

	session.stateMutex.Lock()
	session.state = session.state.ChangeID(newID)
	session.stateMutex.Unlock()

	server.logger.Debug(logger.TypeRegistry, "identifier assigned", session.uuid, newID.String())

	if hadID && session.Welcomed() {
		change := command.DMID{ID: newID}
		rb.AddFrom(oldUserID.String(), change)
		for _, peer := range server.peers(session) {
			peer.SendFrom(oldUserID.String(), change)
		}
	}
	return false
}

// USER <username> <hostname|mode> <servername|unused> <realname>
func userHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	if session.IsRegistered() {
		rb.addError(newServerError(errAlreadyRegistered))
		return false
	}
	info := c.(command.User).Info

	session.stateMutex.Lock()
	session.state = session.state.SetUserInfo(info)
	if info.Mask != nil {
		session.userModes = session.userModes.Union(intersectUserModes(*info.Mask, userMaskModes))
	}
	session.stateMutex.Unlock()
	return false
}

// PASS <password>
func passHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	if session.IsRegistered() {
		rb.addError(newServerError(errAlreadyRegistered))
		return false
	}

	config := server.Config()
	if !config.Server.passwordRequired() {
		return false
	}
	password := c.(command.OtherCommand).Args[0]
	if !checkServerPassword(config.Server.Password, password) {
		rb.addError(newServerError(errPasswordMismatch))
		rb.Send()
		session.Quit("Password incorrect")
		return true
	}

	session.stateMutex.Lock()
	session.passOK = true
	session.stateMutex.Unlock()
	return false
}

// tryRegister sends the welcome burst once the session has an identifier
// and user info, CAP negotiation (if any) has ended, and the server password
// (if any) was supplied.
func (server *Server) tryRegister(session *Session) (exiting bool) {
	config := server.Config()

	session.stateMutex.Lock()
	if session.welcomeSent || !session.state.IsRegistered() || session.capState == caps.NegotiatingState {
		session.stateMutex.Unlock()
		return false
	}
	passOK := session.passOK || !config.Server.passwordRequired()
	if passOK {
		session.welcomeSent = true
	}
	session.stateMutex.Unlock()

	if !passOK {
		rb := NewResponseBuffer(session)
		rb.addError(newServerError(errPasswordMismatch))
		rb.Send()
		session.Quit("Password incorrect")
		return true
	}

	session.idletimer.Registered()

	rb := NewResponseBuffer(session)
	server.welcome(session, rb)
	rb.Send()
	server.logger.Info(logger.TypeConnect, "Client registered", session.uuid, session.UserID().String())

	if config.Channels.AutoJoin {
		rb := NewResponseBuffer(session)
		for _, channel := range config.Channels.defaultNames {
			server.joinChannel(session, channel, rb)
		}
		rb.Send()
	}
	return false
}

// JOIN <channel>{,<channel>} [<key>{,<key>}]
// JOIN 0
func joinHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	switch msg := c.(type) {
	case command.UnsubAll:
		for _, channel := range session.Channels() {
			server.partChannel(session, channel, nil, rb)
		}
	case command.Join:
		// keys are accepted and ignored
		for _, channel := range msg.Channels {
			server.joinChannel(session, channel, rb)
		}
	}
	return false
}

// joinChannel subscribes session to channel and announces it.
func (server *Server) joinChannel(session *Session, channel names.ChannelName, rb *ResponseBuffer) {
	info, joined, created := server.context.JoinChannel(channel, session)
	if !joined {
		return
	}
	session.addChannel(info.Name)

	if created {
		server.logger.Debug(logger.TypeRegistry, "channel created", info.Name.String())
		server.metrics.ChannelsChanged(server.context.ServerInfo().Channels)
		if server.Config().Channels.Persist {
			if registered, ok := server.context.SetChannelRegistered(info.Name, true); ok {
				server.storeChannel(registered)
			}
		}
	}

	origin := session.UserID().String()
	join := command.Join{Channels: []names.ChannelName{info.Name}}
	members, _ := server.context.GetSessions(info.Name)
	for _, member := range members {
		if member != session {
			member.SendFrom(origin, join)
		}
	}

	rb.AddFrom(origin, join)
	if info.Welcome != "" {
		rb.Reply(command.RPL_TOPIC, info.Name.String(), info.Welcome)
	}
	server.namesReply(session, info, members, rb)
}

// namesReply sends 353/366 for a channel.
func (server *Server) namesReply(session *Session, info ChannelInfo, members []*Session, rb *ResponseBuffer) {
	userhost := session.HasCap(caps.UserhostInNames)
	var entries []string
	for _, member := range members {
		id, ok := member.ID()
		if !ok {
			continue
		}
		entry := id.String()
		if userhost {
			entry = member.UserID().String()
		}
		if info.IsOperator(id) {
			entry = "@" + entry
		}
		entries = append(entries, entry)
	}
	if len(entries) > 0 {
		rb.Reply(command.RPL_NAMREPLY, "=", info.Name.String(), strings.Join(entries, " "))
	}
	rb.Reply(command.RPL_ENDOFNAMES, info.Name.String(), "End of /NAMES list.")
}

// PART <channel>{,<channel>} [<reason>]
func partHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	msg := c.(command.Part)
	for _, channel := range msg.Channels {
		if _, ok := server.context.ChannelInfo(channel); !ok {
			rb.addError(newServerError(errNoSuchChannel, channel.String()))
			continue
		}
		if !server.partChannel(session, channel, msg.Message, rb) {
			rb.Reply(command.ERR_NOTONCHANNEL, channel.String(), "You're not on that channel")
		}
	}
	return false
}

// partChannel unsubscribes session and tells everyone who was in the channel.
func (server *Server) partChannel(session *Session, channel names.ChannelName, message *string, rb *ResponseBuffer) (parted bool) {
	members, _ := server.context.GetSessions(channel)
	if !server.context.PartChannel(channel, session) {
		return false
	}
	session.removeChannel(channel)

	origin := session.UserID().String()
	part := command.Part{Channels: []names.ChannelName{channel}, Message: message}
	for _, member := range members {
		if member != session {
			member.SendFrom(origin, part)
		}
	}
	rb.AddFrom(origin, part)
	return true
}

// isOwnName reports whether target names this server.
func (server *Server) isOwnName(target string) bool {
	if strings.EqualFold(target, server.name) {
		return true
	}
	matcher, err := utils.CompileGlob(strings.ToLower(target), false)
	return err == nil && matcher.MatchString(strings.ToLower(server.name))
}

// LIST [<channel>{,<channel>} [<server>]]
func listHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	msg := c.(command.List)
	if msg.Target != nil && !server.isOwnName(*msg.Target) {
		rb.addError(newServerError(errNoSuchServer, *msg.Target))
		return false
	}

	rb.Reply(command.RPL_LISTSTART, "Channel", "Users  Name")
	for _, info := range server.context.ChannelInfos(msg.Channels) {
		rb.Reply(command.RPL_LIST, info.Name.String(), strconv.Itoa(len(info.Subscribers)), info.Welcome)
	}
	rb.Reply(command.RPL_LISTEND, "End of /LIST")
	return false
}

// ISON <identifier>{ <identifier>}
func isonHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	online := server.context.IdentifiersOnline(c.(command.IsOn).IDs)
	result := make([]string, len(online))
	for i, id := range online {
		result[i] = id.String()
	}
	rb.Reply(command.RPL_ISON, strings.Join(result, " "))
	return false
}

// LUSERS
func lusersHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	server.lusers(rb)
	return false
}

// MOTD
func motdHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	server.motd(rb)
	return false
}

// MODE <target> [<modestring> [<mode arguments>...]]
func modeHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	switch msg := c.(type) {
	case command.ModeGet:
		if !isSelf(session, msg.ID) {
			rb.addError(newServerError(errUsersDontMatch))
			return false
		}
		rb.Reply(command.RPL_UMODEIS, "+"+session.Modes().String())

	case command.Mode:
		if !isSelf(session, msg.ID) {
			rb.addError(newServerError(errUsersDontMatch))
			return false
		}
		add := intersectUserModes(msg.Add, selfSettableModes)
		remove := msg.Remove.Difference(modes.NewUserModeSet(modes.TLS))
		before := session.Modes()
		after := session.ApplyModes(add, remove)
		added, removed := after.Difference(before), before.Difference(after)
		if !added.IsEmpty() || !removed.IsEmpty() {
			userID := session.UserID()
			rb.AddFrom(userID.String(), command.Mode{ID: userID.ID, Add: added, Remove: removed})
		}

	case command.ChannelModeGet:
		channelModes, ok := server.context.ChannelMode(msg.Channel)
		if !ok {
			rb.addError(newServerError(errNoSuchChannel, msg.Channel.String()))
			return false
		}
		rb.Reply(command.RPL_CHANNELMODEIS, msg.Channel.String(), "+"+channelModes.String())

	case command.ChannelModeGetBanMask:
		if _, ok := server.context.ChannelInfo(msg.Channel); !ok {
			rb.addError(newServerError(errNoSuchChannel, msg.Channel.String()))
			return false
		}
		// bans are not kept, so the list is always empty
		rb.Reply(command.RPL_ENDOFBANLIST, msg.Channel.String(), "End of channel ban list")

	case command.ChannelModeChange:
		before, _ := server.context.ChannelMode(msg.Channel)
		info, err := server.context.SetChannelMode(msg.Channel, session, msg.Add, msg.Remove)
		if err != nil {
			rb.addError(newServerError(err, msg.Channel.String()))
			return false
		}
		added, removed := info.Modes.Difference(before), before.Difference(info.Modes)
		if added.IsEmpty() && removed.IsEmpty() {
			return false
		}
		change := command.ChannelModeChange{Channel: info.Name, Add: added, Remove: removed}
		origin := session.UserID().String()
		members, _ := server.context.GetSessions(info.Name)
		for _, member := range members {
			if member != session {
				member.SendFrom(origin, change)
			}
		}
		rb.AddFrom(origin, change)
		if info.Registered {
			server.storeChannel(info)
		}
	}
	return false
}

func isSelf(session *Session, id names.DMIdentifier) bool {
	current, ok := session.ID()
	return ok && current.Folded() == id.Folded()
}

// NOTICE <target>{,<target>} <message>
func noticeHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	msg := c.(command.Notice)
	// NOTICE never generates error replies
	server.dispatch(session, msg.Recipients, msg.Text, true)
	return false
}

// PRIVMSG <target>{,<target>} <message>
func privmsgHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	msg := c.(command.PrivMsg)
	if msg.Text == "" {
		rb.Reply(command.ERR_NOTEXTTOSEND, defaultReplyText(command.ERR_NOTEXTTOSEND))
		return false
	}
	rb.addErrors(server.Dispatch(session, msg.Recipients, msg.Text))
	return false
}

// PING <server1> [<server2>]
func pingHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	token := c.(command.OtherCommand).Args[0]
	rb.Add(command.OtherCommand{Command: "PONG", Args: []string{server.name, token}})
	return false
}

// PONG <server> [ <server2> ]
func pongHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	// any line resets the idle timer, so there is nothing to do
	return false
}

// QUIT [<reason>]
func quitHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	reason := "Quit"
	if msg := c.(command.Quit); msg.Message != nil && *msg.Message != "" {
		reason += ": " + *msg.Message
	}
	session.setQuitMessage(reason)
	return true
}

// WHO [<mask> [o]]
func whoHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	msg := c.(command.Who)
	mask := "*"
	if msg.Mask != nil && *msg.Mask != "" && *msg.Mask != "0" {
		mask = *msg.Mask
	}

	include := func(target *Session) bool {
		if !msg.OnlyOperators {
			return true
		}
		targetModes := target.Modes()
		return targetModes.HasMode(modes.Operator) || targetModes.HasMode(modes.LocalOperator)
	}

	if strings.HasPrefix(mask, "#") {
		channel, err := names.NewChannelName(mask)
		if err == nil {
			if info, ok := server.context.ChannelInfo(channel); ok {
				members, _ := server.context.GetSessions(channel)
				for _, member := range members {
					if include(member) {
						server.whoReply(member, info.Name.String(), &info, rb)
					}
				}
			}
		}
	} else if matcher, err := utils.CompileGlob(strings.ToLower(mask), false); err == nil {
		for _, target := range sortedSessions(server.context.AllSessions()) {
			id, ok := target.ID()
			if !ok || !include(target) {
				continue
			}
			// invisible users are only visible to themselves
			if target != session && target.Modes().HasMode(modes.Invisible) {
				continue
			}
			if matcher.MatchString(id.Folded()) {
				server.whoReply(target, "*", nil, rb)
			}
		}
	}

	rb.Reply(command.RPL_ENDOFWHO, mask, "End of WHO list")
	return false
}

func (server *Server) whoReply(target *Session, channel string, info *ChannelInfo, rb *ResponseBuffer) {
	userID := target.UserID()
	flags := "H"
	targetModes := target.Modes()
	if targetModes.HasMode(modes.Operator) || targetModes.HasMode(modes.LocalOperator) {
		flags += "*"
	}
	if info != nil && info.IsOperator(userID.ID) {
		flags += "@"
	}
	rb.Reply(command.RPL_WHOREPLY, channel, userID.User, userID.Host, server.name, userID.ID.String(), flags, "0 "+target.Realname())
}

// WHOIS [<target>] <mask>{,<mask>}
func whoisHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	msg := c.(command.WhoIs)
	if msg.Server != nil && !server.isOwnName(*msg.Server) {
		rb.addError(newServerError(errNoSuchServer, *msg.Server))
		return false
	}

	for _, mask := range msg.Masks {
		matcher, err := utils.CompileGlob(strings.ToLower(mask), false)
		found := false
		if err == nil {
			for _, target := range sortedSessions(server.context.AllSessions()) {
				id, ok := target.ID()
				if ok && target.IsRegistered() && matcher.MatchString(id.Folded()) {
					found = true
					server.whoisReply(target, rb)
				}
			}
		}
		if !found {
			rb.addError(newServerError(errNoSuchIdentifier, mask))
		}
	}
	rb.Reply(command.RPL_ENDOFWHOIS, strings.Join(msg.Masks, ","), "End of /WHOIS list")
	return false
}

func (server *Server) whoisReply(target *Session, rb *ResponseBuffer) {
	userID := target.UserID()
	id := userID.ID.String()
	rb.Reply(command.RPL_WHOISUSER, id, userID.User, userID.Host, "*", target.Realname())
	rb.Reply(command.RPL_WHOISSERVER, id, server.name, server.Config().Network.Name)

	channels := target.Channels()
	if len(channels) > 0 {
		entries := make([]string, 0, len(channels))
		for _, info := range server.context.ChannelInfos(channels) {
			entry := info.Name.String()
			if info.IsOperator(userID.ID) {
				entry = "@" + entry
			}
			entries = append(entries, entry)
		}
		rb.Reply(command.RPL_WHOISCHANNELS, id, strings.Join(entries, " "))
	}
	targetModes := target.Modes()
	if targetModes.HasMode(modes.Operator) || targetModes.HasMode(modes.LocalOperator) {
		rb.Reply(command.RPL_WHOISOPERATOR, id, "is an IRC operator")
	}
}

func sortedSessions(sessions []*Session) []*Session {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Target() < sessions[j].Target()
	})
	return sessions
}

func unknownCommandHandler(server *Server, session *Session, c command.Command, rb *ResponseBuffer) bool {
	rb.addError(newServerError(errDoesNotRespondTo, c.Name()))
	return false
}
