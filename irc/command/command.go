// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

// Package command is the typed model of the relay protocol: every command
// and reply is one of the variants below, parsed from and encoded to a
// (name, arguments) pair.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
)

// Command is the closed set of protocol commands.
type Command interface {
	// Name is the canonical command name, or the zero-padded numeric code.
	Name() string
	Arguments() []string
	String() string

	command()
}

// UserInfo is the payload of USER. Exactly one of Mask or
// (Hostname, Servername) is populated. An empty Hostname or Servername is
// sent as "*" and "*" reads back as empty.
type UserInfo struct {
	Username   string
	Realname   string
	Mask       *modes.UserModeSet
	Hostname   string
	Servername string
}

// NewMaskUserInfo builds the RFC 2812 form: <username> <mode> <unused> <realname>.
func NewMaskUserInfo(username string, mask modes.UserModeSet, realname string) UserInfo {
	return UserInfo{Username: username, Mask: &mask, Realname: realname}
}

// NewHostUserInfo builds the RFC 1459 form: <username> <hostname> <servername> <realname>.
// A hostname that reads as a 16-bit mode mask can't be told apart from the
// RFC 2812 form on the wire, so it is dropped.
func NewHostUserInfo(username, hostname, servername, realname string) UserInfo {
	if isModeMask(hostname) {
		hostname = ""
	}
	return UserInfo{Username: username, Hostname: unstar(hostname), Servername: unstar(servername), Realname: realname}
}

func isModeMask(s string) bool {
	_, err := strconv.ParseUint(s, 10, 16)
	return err == nil
}

func unstar(s string) string {
	if s == "*" {
		return ""
	}
	return s
}

func (info UserInfo) String() string {
	if info.Mask != nil {
		return fmt.Sprintf("<UserInfo: %s mask=%s '%s'>", info.Username, info.Mask.String(), info.Realname)
	}
	return fmt.Sprintf("<UserInfo: %s host=%s server=%s '%s'>", info.Username, info.Hostname, info.Servername, info.Realname)
}

// CapSubcommand is the first argument of CAP.
type CapSubcommand string

const (
	CapLS   CapSubcommand = "LS"
	CapLIST CapSubcommand = "LIST"
	CapREQ  CapSubcommand = "REQ"
	CapACK  CapSubcommand = "ACK"
	CapNAK  CapSubcommand = "NAK"
	CapEND  CapSubcommand = "END"
)

func parseCapSubcommand(s string) (sub CapSubcommand, ok bool) {
	switch CapSubcommand(s) {
	case CapLS, CapLIST, CapREQ, CapACK, CapNAK, CapEND:
		return CapSubcommand(s), true
	}
	return
}

type DMID struct {
	ID names.DMIdentifier
}

type User struct {
	Info UserInfo
}

// IsOn asks which of IDs are online; an empty IDs is sent as a single
// empty argument.
type IsOn struct {
	IDs []names.DMIdentifier
}

type Quit struct {
	Message *string
}

// Join subscribes to channels. A nil Keys means no keys were given; keys
// are positional, so an empty key skips its channel. Keys never contain
// commas.
type Join struct {
	Channels []names.ChannelName
	Keys     []string
}

// UnsubAll is JOIN 0: part every channel.
type UnsubAll struct{}

type Part struct {
	Channels []names.ChannelName
	Message  *string
}

type List struct {
	Channels []names.ChannelName
	Target   *string
}

type PrivMsg struct {
	Recipients []names.MessageRecipient
	Text       string
}

type Notice struct {
	Recipients []names.MessageRecipient
	Text       string
}

// Mode changes the user modes of ID.
type Mode struct {
	ID     names.DMIdentifier
	Add    modes.UserModeSet
	Remove modes.UserModeSet
}

type ModeGet struct {
	ID names.DMIdentifier
}

// ChannelModeChange changes channel modes; build it with NewChannelModeChange
// so that a bare "+b" becomes a ban list query.
type ChannelModeChange struct {
	Channel names.ChannelName
	Add     modes.ChannelModeSet
	Remove  modes.ChannelModeSet
}

type ChannelModeGet struct {
	Channel names.ChannelName
}

type ChannelModeGetBanMask struct {
	Channel names.ChannelName
}

// WhoIs queries Masks, which are non-empty and never contain commas.
type WhoIs struct {
	Server *string
	Masks  []string
}

// Who lists sessions matching Mask. A set Mask is never empty: the empty
// mask on the wire stands for no mask, which lets OnlyOperators travel
// without one.
type Who struct {
	Mask          *string
	OnlyOperators bool
}

// Numeric is a reply with a code from the numeric table.
type Numeric struct {
	Code Code
	Args []string
}

// OtherCommand preserves a command we don't model; Command is uppercase.
type OtherCommand struct {
	Command string
	Args    []string
}

// OtherNumeric preserves a numeric reply outside the table. Its Code is
// never a known Code; build replies from raw codes with ParseNumeric.
type OtherNumeric struct {
	Code int
	Args []string
}

type Cap struct {
	Subcommand CapSubcommand
	IDs        []string
}

// NewChannelModeChange returns the command for a channel mode change;
// an add-only ban mask change is the ban list query.
func NewChannelModeChange(channel names.ChannelName, add, remove modes.ChannelModeSet) Command {
	if add == modes.NewChannelModeSet(modes.BanMask) && remove.IsEmpty() {
		return ChannelModeGetBanMask{Channel: channel}
	}
	return ChannelModeChange{Channel: channel, Add: add, Remove: remove}
}

// NewNumeric builds a known numeric reply.
func NewNumeric(code Code, args ...string) Numeric {
	return Numeric{Code: code, Args: args}
}

func (DMID) command()                  {}
func (User) command()                  {}
func (IsOn) command()                  {}
func (Quit) command()                  {}
func (Join) command()                  {}
func (UnsubAll) command()              {}
func (Part) command()                  {}
func (List) command()                  {}
func (PrivMsg) command()               {}
func (Notice) command()                {}
func (Mode) command()                  {}
func (ModeGet) command()               {}
func (ChannelModeChange) command()     {}
func (ChannelModeGet) command()        {}
func (ChannelModeGetBanMask) command() {}
func (WhoIs) command()                 {}
func (Who) command()                   {}
func (Numeric) command()               {}
func (OtherCommand) command()          {}
func (OtherNumeric) command()          {}
func (Cap) command()                   {}

func (DMID) Name() string                  { return "DMID" }
func (User) Name() string                  { return "USER" }
func (IsOn) Name() string                  { return "ISON" }
func (Quit) Name() string                  { return "QUIT" }
func (Join) Name() string                  { return "JOIN" }
func (UnsubAll) Name() string              { return "JOIN" }
func (Part) Name() string                  { return "PART" }
func (List) Name() string                  { return "LIST" }
func (PrivMsg) Name() string               { return "PRIVMSG" }
func (Notice) Name() string                { return "NOTICE" }
func (Mode) Name() string                  { return "MODE" }
func (ModeGet) Name() string               { return "MODE" }
func (ChannelModeChange) Name() string     { return "MODE" }
func (ChannelModeGet) Name() string        { return "MODE" }
func (ChannelModeGetBanMask) Name() string { return "MODE" }
func (WhoIs) Name() string                 { return "WHOIS" }
func (Who) Name() string                   { return "WHO" }
func (c Numeric) Name() string             { return c.Code.String() }
func (c OtherCommand) Name() string        { return c.Command }
func (c OtherNumeric) Name() string        { return fmt.Sprintf("%03d", c.Code) }
func (Cap) Name() string                   { return "CAP" }

func joinChannels(channels []names.ChannelName) string {
	strs := make([]string, len(channels))
	for i, c := range channels {
		strs[i] = c.String()
	}
	return strings.Join(strs, ",")
}

func joinRecipients(recipients []names.MessageRecipient) string {
	strs := make([]string, len(recipients))
	for i, r := range recipients {
		strs[i] = r.String()
	}
	return strings.Join(strs, ",")
}

func (c DMID) Arguments() []string { return []string{c.ID.String()} }

func (c User) Arguments() []string {
	info := c.Info
	if info.Mask != nil {
		return []string{info.Username, strconv.FormatUint(uint64(*info.Mask), 10), "*", info.Realname}
	}
	hostname, servername := info.Hostname, info.Servername
	if hostname == "" {
		hostname = "*"
	}
	if servername == "" {
		servername = "*"
	}
	return []string{info.Username, hostname, servername, info.Realname}
}

func (c IsOn) Arguments() []string {
	if len(c.IDs) == 0 {
		return []string{""}
	}
	result := make([]string, len(c.IDs))
	for i, id := range c.IDs {
		result[i] = id.String()
	}
	return result
}

func (c Quit) Arguments() []string {
	if c.Message == nil {
		return nil
	}
	return []string{*c.Message}
}

func (c Join) Arguments() []string {
	if len(c.Keys) == 0 {
		return []string{joinChannels(c.Channels)}
	}
	return []string{joinChannels(c.Channels), strings.Join(c.Keys, ",")}
}

func (UnsubAll) Arguments() []string { return []string{"0"} }

func (c Part) Arguments() []string {
	if c.Message == nil {
		return []string{joinChannels(c.Channels)}
	}
	return []string{joinChannels(c.Channels), *c.Message}
}

func (c List) Arguments() []string {
	if c.Target == nil {
		if len(c.Channels) == 0 {
			return nil
		}
		return []string{joinChannels(c.Channels)}
	}
	return []string{joinChannels(c.Channels), *c.Target}
}

func (c PrivMsg) Arguments() []string {
	return []string{joinRecipients(c.Recipients), c.Text}
}

func (c Notice) Arguments() []string {
	return []string{joinRecipients(c.Recipients), c.Text}
}

func modeArguments(target, add, remove string) []string {
	change := modes.FormatChange(add, remove)
	if len(change) == 0 {
		return []string{target, ""}
	}
	return append([]string{target}, change...)
}

func (c Mode) Arguments() []string {
	return modeArguments(c.ID.String(), c.Add.String(), c.Remove.String())
}

func (c ModeGet) Arguments() []string { return []string{c.ID.String()} }

func (c ChannelModeChange) Arguments() []string {
	return modeArguments(c.Channel.String(), c.Add.String(), c.Remove.String())
}

func (c ChannelModeGet) Arguments() []string { return []string{c.Channel.String()} }

func (c ChannelModeGetBanMask) Arguments() []string {
	return []string{c.Channel.String(), string(modes.BanMask)}
}

func (c WhoIs) Arguments() []string {
	if c.Server == nil {
		return []string{strings.Join(c.Masks, ",")}
	}
	return []string{*c.Server, strings.Join(c.Masks, ",")}
}

func (c Who) Arguments() []string {
	switch {
	case c.Mask == nil && c.OnlyOperators:
		return []string{"", "o"}
	case c.Mask == nil:
		return nil
	case c.OnlyOperators:
		return []string{*c.Mask, "o"}
	default:
		return []string{*c.Mask}
	}
}

func (c Numeric) Arguments() []string      { return c.Args }
func (c OtherCommand) Arguments() []string { return c.Args }
func (c OtherNumeric) Arguments() []string { return c.Args }

func (c Cap) Arguments() []string {
	if len(c.IDs) == 0 {
		return []string{string(c.Subcommand)}
	}
	return []string{string(c.Subcommand), strings.Join(c.IDs, " ")}
}

func (c DMID) String() string { return "DMID " + c.ID.String() }
func (c User) String() string { return "USER " + c.Info.String() }

func (c IsOn) String() string { return "ISON " + strings.Join(c.Arguments(), ",") }

func (c Quit) String() string {
	if c.Message == nil {
		return "QUIT"
	}
	return fmt.Sprintf("QUIT '%s'", *c.Message)
}

func (c Join) String() string {
	if c.Keys == nil {
		return "JOIN " + joinChannels(c.Channels)
	}
	return fmt.Sprintf("JOIN %s keys: %s", joinChannels(c.Channels), strings.Join(c.Keys, ","))
}

func (UnsubAll) String() string { return "UNSUBSCRIBE ALL" }

func (c Part) String() string {
	if c.Message == nil {
		return "PART " + joinChannels(c.Channels)
	}
	return fmt.Sprintf("PART %s '%s'", joinChannels(c.Channels), *c.Message)
}

func (c List) String() string {
	channels := "*"
	if c.Channels != nil {
		channels = joinChannels(c.Channels)
	}
	if c.Target == nil {
		return "LIST " + channels
	}
	return fmt.Sprintf("LIST %s @%s", channels, *c.Target)
}

func (c PrivMsg) String() string {
	return fmt.Sprintf("PRIVMSG %s '%s'", joinRecipients(c.Recipients), c.Text)
}

func (c Notice) String() string {
	return fmt.Sprintf("NOTICE %s '%s'", joinRecipients(c.Recipients), c.Text)
}

func (c Mode) String() string {
	return strings.Join(append([]string{"MODE", c.ID.String()}, modes.FormatChange(c.Add.String(), c.Remove.String())...), " ")
}

func (c ModeGet) String() string { return "MODE " + c.ID.String() }

func (c ChannelModeChange) String() string {
	return strings.Join(append([]string{"MODE", c.Channel.String()}, modes.FormatChange(c.Add.String(), c.Remove.String())...), " ")
}

func (c ChannelModeGet) String() string        { return "MODE " + c.Channel.String() }
func (c ChannelModeGetBanMask) String() string { return "MODE b " + c.Channel.String() }

func (c WhoIs) String() string {
	if c.Server == nil {
		return "WHOIS " + strings.Join(c.Masks, ",")
	}
	return fmt.Sprintf("WHOIS @%s %s", *c.Server, strings.Join(c.Masks, ","))
}

func (c Who) String() string {
	if c.Mask == nil {
		return "WHO"
	}
	if c.OnlyOperators {
		return fmt.Sprintf("WHO %s o", *c.Mask)
	}
	return "WHO " + *c.Mask
}

func (c Numeric) String() string {
	return fmt.Sprintf("<Cmd: %s args=%s>", c.Name(), strings.Join(c.Args, ","))
}

func (c OtherCommand) String() string {
	return fmt.Sprintf("<Cmd: %s args=%s>", c.Command, strings.Join(c.Args, ","))
}

func (c OtherNumeric) String() string {
	return fmt.Sprintf("<Cmd: %s args=%s>", c.Name(), strings.Join(c.Args, ","))
}

func (c Cap) String() string {
	return fmt.Sprintf("CAP %s %s", c.Subcommand, strings.Join(c.IDs, ","))
}
