// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cartisim/relayd/irc/command"
	"github.com/cartisim/relayd/irc/isupport"
	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
)

// default texts for numeric replies; call sites may override them
var replyTexts = map[command.Code]string{
	command.ERR_UNKNOWNCOMMAND:     "No such command.",
	command.ERR_NOSUCHSERVER:       "No such server.",
	command.ERR_NICKNAMEINUSE:      "Identity is already in use.",
	command.ERR_NOSUCHNICK:         "No such Identifier.",
	command.ERR_ALREADYREGISTRED:   "You may not reregister.",
	command.ERR_NOTREGISTERED:      "You have not registered",
	command.ERR_USERSDONTMATCH:     "Users don't match",
	command.ERR_NOSUCHCHANNEL:      "No such channel",
	command.ERR_ILLEGALCHANNELNAME: "Illegal channel name",
	command.ERR_NEEDMOREPARAMS:     "Not enough parameters",
	command.ERR_ERRONEUSNICKNAME:   "Erroneous identifier",
	command.ERR_UNKNOWNMODE:        "is unknown mode char to me",
	command.ERR_UMODEUNKNOWNFLAG:   "Unknown MODE flag",
	command.ERR_CHANOPRIVSNEEDED:   "You're not channel operator",
	command.ERR_PASSWDMISMATCH:     "Password incorrect",
	command.ERR_INVALIDCAPCMD:      "Invalid CAP subcommand",
	command.ERR_NOMOTD:             "MOTD File is missing",
	command.ERR_NOTEXTTOSEND:       "No text to send",
}

func defaultReplyText(code command.Code) string {
	return replyTexts[code]
}

var (
	supportedUserModesString    = modes.SupportedUserModes.String()
	supportedChannelModesString = modes.SupportedChannelModes.String()
)

// welcome sends the registration burst to a session that just registered.
func (server *Server) welcome(session *Session, rb *ResponseBuffer) {
	config := server.Config()
	id := session.Target()
	userID := session.UserID()

	rb.Reply(command.RPL_WELCOME, fmt.Sprintf("Welcome to the Internet Relay Network %s", userID.String()))
	rb.Reply(command.RPL_YOURHOST, fmt.Sprintf("Your host is %s, running version %s", server.name, Ver))
	rb.Reply(command.RPL_CREATED, fmt.Sprintf("This server was created %s", server.ctime.Format(time.RFC1123)))
	rb.Reply(command.RPL_MYINFO, server.name, Ver, supportedUserModesString, supportedChannelModesString)
	for _, tokens := range config.isupport.Replies() {
		rb.Reply(command.RPL_ISUPPORT, append(tokens, "are supported by this server")...)
	}
	server.lusers(rb)
	server.motd(rb)

	if current := session.Modes(); !current.IsEmpty() {
		rb.AddFrom(id, command.Mode{ID: userID.ID, Add: current})
	}
}

// generateISupport builds the RPL_ISUPPORT tokens advertised under config.
func (config *Config) generateISupport() error {
	list := isupport.NewList()
	list.Add("CASEMAPPING", names.CasemappingName())
	list.Add("CHANTYPES", "#")
	list.Add("CHANMODES", strings.Join([]string{modes.Modes{modes.BanMask}.String(), modes.Modes{modes.Key}.String(), modes.Modes{modes.UserLimit}.String(), "imnpst"}, ","))
	list.Add("PREFIX", "(o)@")
	list.Add("NICKLEN", strconv.Itoa(names.MaxIdentifierLength))
	list.Add("CHANNELLEN", strconv.Itoa(names.MaxIdentifierLength))
	list.Add("NETWORK", config.Network.Name)
	list.AddNoValue("SAFELIST")
	if config.Relay.Enabled {
		list.Add("RELAY", "encryptedobject")
	}
	if err := list.Validate(); err != nil {
		return err
	}
	config.isupport = list
	return nil
}

// announceISupport tells registered sessions about tokens changed by a rehash.
func (server *Server) announceISupport(oldConfig, newConfig *Config) {
	diff := oldConfig.isupport.Difference(newConfig.isupport)
	if len(diff) == 0 {
		return
	}
	for _, session := range server.context.AllSessions() {
		if !session.Welcomed() {
			continue
		}
		rb := NewResponseBuffer(session)
		for _, tokens := range diff {
			rb.Reply(command.RPL_ISUPPORT, append(tokens, "are supported by this server")...)
		}
		rb.Send()
	}
}

// lusers sends the 251/252/254 server counts.
func (server *Server) lusers(rb *ResponseBuffer) {
	info := server.context.ServerInfo()
	rb.Reply(command.RPL_LUSERCLIENT, fmt.Sprintf("There are %d users and %d invisible on %d server(s)", info.Users-info.Invisible, info.Invisible, info.Servers))
	rb.Reply(command.RPL_LUSEROP, strconv.Itoa(info.Operators), "operator(s) online")
	rb.Reply(command.RPL_LUSERUNKNOWN, strconv.Itoa(info.Unregistered), "unknown connection(s)")
	rb.Reply(command.RPL_LUSERCHANNELS, strconv.Itoa(info.Channels), "channels formed")
}

// motd sends the message of the day, or 422 when there is none.
func (server *Server) motd(rb *ResponseBuffer) {
	lines := server.motdLines.Load()
	if lines == nil || len(*lines) == 0 {
		rb.Reply(command.ERR_NOMOTD, defaultReplyText(command.ERR_NOMOTD))
		return
	}
	rb.Reply(command.RPL_MOTDSTART, fmt.Sprintf("- %s Message of the Day -", server.name))
	for _, line := range *lines {
		rb.Reply(command.RPL_MOTD, line)
	}
	rb.Reply(command.RPL_ENDOFMOTD, "End of /MOTD command.")
}
