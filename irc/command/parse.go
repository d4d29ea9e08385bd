// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package command

import (
	"strconv"
	"strings"

	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
)

// Encode returns the wire form of a command.
func Encode(c Command) (name string, args []string) {
	return c.Name(), c.Arguments()
}

// splitList splits on sep, dropping empty items; nil when nothing remains.
func splitList(s string, sep string) (result []string) {
	for _, item := range strings.Split(s, sep) {
		if item != "" {
			result = append(result, item)
		}
	}
	return
}

func isNumeric(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}

func optional(args []string, i int) *string {
	if i < len(args) {
		value := args[i]
		return &value
	}
	return nil
}

// Parse builds a Command from a command name and its arguments. Unknown
// names are preserved as OtherCommand; all-digit names are numerics.
func Parse(name string, args []string) (Command, error) {
	if isNumeric(name) {
		code, err := strconv.Atoi(name)
		if err != nil {
			return OtherCommand{Command: name, Args: args}, nil
		}
		return ParseNumeric(code, args), nil
	}

	command := strings.ToUpper(name)

	expect := func(count int) error {
		if len(args) != count {
			return argumentCountError(command, len(args), count)
		}
		return nil
	}
	expectRange := func(min, max int) error {
		if max >= 0 && len(args) > max {
			return argumentCountError(command, len(args), max)
		}
		if len(args) < min {
			return argumentCountError(command, len(args), min)
		}
		return nil
	}
	splitChannels := func(s string) (result []names.ChannelName, err error) {
		for _, token := range splitList(s, ",") {
			channel, err := names.NewChannelName(token)
			if err != nil {
				return nil, tokenError(ErrInvalidChannelName, command, token)
			}
			result = append(result, channel)
		}
		return
	}
	splitRecipients := func(s string) (result []names.MessageRecipient, err error) {
		for _, token := range splitList(s, ",") {
			recipient, ok := names.ParseRecipient(token)
			if !ok {
				return nil, tokenError(ErrInvalidMessageTarget, command, token)
			}
			result = append(result, recipient)
		}
		return
	}

	switch command {
	case "QUIT":
		if err := expectRange(0, 1); err != nil {
			return nil, err
		}
		return Quit{Message: optional(args, 0)}, nil

	case "DMID":
		if err := expect(1); err != nil {
			return nil, err
		}
		id, err := names.NewDMIdentifier(args[0])
		if err != nil {
			return nil, tokenError(ErrInvalidDMID, command, args[0])
		}
		return DMID{ID: id}, nil

	case "MODE":
		if err := expectRange(1, -1); err != nil {
			return nil, err
		}
		return parseMode(command, args)

	case "USER":
		// RFC 1459 <username> <hostname> <servername> <realname>
		// RFC 2812 <username> <mode>     <unused>     <realname>
		if err := expect(4); err != nil {
			return nil, err
		}
		if mask, err := strconv.ParseUint(args[1], 10, 16); err == nil {
			return User{Info: NewMaskUserInfo(args[0], modes.UserModeSet(mask), args[3])}, nil
		}
		return User{Info: UserInfo{Username: args[0], Hostname: unstar(args[1]), Servername: unstar(args[2]), Realname: args[3]}}, nil

	case "JOIN":
		if err := expectRange(1, 2); err != nil {
			return nil, err
		}
		if args[0] == "0" {
			return UnsubAll{}, nil
		}
		channels, err := splitChannels(args[0])
		if err != nil {
			return nil, err
		}
		var keys []string
		if len(args) > 1 {
			keys = strings.Split(args[1], ",")
		}
		return Join{Channels: channels, Keys: keys}, nil

	case "PART":
		if err := expectRange(1, 2); err != nil {
			return nil, err
		}
		channels, err := splitChannels(args[0])
		if err != nil {
			return nil, err
		}
		return Part{Channels: channels, Message: optional(args, 1)}, nil

	case "LIST":
		if err := expectRange(0, 2); err != nil {
			return nil, err
		}
		var channels []names.ChannelName
		if len(args) > 0 {
			var err error
			if channels, err = splitChannels(args[0]); err != nil {
				return nil, err
			}
		}
		return List{Channels: channels, Target: optional(args, 1)}, nil

	case "ISON":
		if err := expectRange(1, -1); err != nil {
			return nil, err
		}
		var ids []names.DMIdentifier
		for _, arg := range args {
			for _, token := range splitList(arg, " ") {
				id, err := names.NewDMIdentifier(token)
				if err != nil {
					return nil, tokenError(ErrInvalidDMID, command, token)
				}
				ids = append(ids, id)
			}
		}
		return IsOn{IDs: ids}, nil

	case "PRIVMSG", "NOTICE":
		if err := expect(2); err != nil {
			return nil, err
		}
		recipients, err := splitRecipients(args[0])
		if err != nil {
			return nil, err
		}
		if command == "PRIVMSG" {
			return PrivMsg{Recipients: recipients, Text: args[1]}, nil
		}
		return Notice{Recipients: recipients, Text: args[1]}, nil

	case "CAP":
		if err := expectRange(1, 2); err != nil {
			return nil, err
		}
		sub, ok := parseCapSubcommand(args[0])
		if !ok {
			return nil, tokenError(ErrInvalidCAPCommand, command, args[0])
		}
		var ids []string
		if len(args) > 1 {
			ids = splitList(args[1], " ")
		}
		return Cap{Subcommand: sub, IDs: ids}, nil

	case "WHOIS":
		if err := expectRange(1, 2); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return WhoIs{Masks: splitList(args[0], ",")}, nil
		}
		return WhoIs{Server: optional(args, 0), Masks: splitList(args[1], ",")}, nil

	case "WHO":
		if err := expectRange(0, 2); err != nil {
			return nil, err
		}
		mask := optional(args, 0)
		if mask != nil && *mask == "" {
			mask = nil
		}
		return Who{Mask: mask, OnlyOperators: len(args) == 2 && args[1] == "o"}, nil

	default:
		return OtherCommand{Command: command, Args: args}, nil
	}
}

// ParseNumeric maps a numeric code to Numeric when it is in the table and
// to OtherNumeric otherwise.
func ParseNumeric(code int, args []string) Command {
	if Code(code).Known() {
		return Numeric{Code: Code(code), Args: args}
	}
	return OtherNumeric{Code: code, Args: args}
}

func parseMode(command string, args []string) (Command, error) {
	recipient, ok := names.ParseRecipient(args[0])
	if !ok || recipient.Kind == names.RecipientAll {
		return nil, tokenError(ErrInvalidMessageTarget, command, args[0])
	}

	if recipient.Kind == names.RecipientDM {
		if len(args) == 1 {
			return ModeGet{ID: recipient.DM}, nil
		}
		add, remove, err := modes.ParseUserModeChange(args[1:]...)
		if err != nil {
			return nil, modeError(command, err)
		}
		return Mode{ID: recipient.DM, Add: add, Remove: remove}, nil
	}

	if len(args) == 1 {
		return ChannelModeGet{Channel: recipient.Channel}, nil
	}
	add, remove, err := modes.ParseChannelModeChange(args[1:]...)
	if err != nil {
		return nil, modeError(command, err)
	}
	return NewChannelModeChange(recipient.Channel, add, remove), nil
}

func modeError(command string, err error) error {
	if unknown, ok := err.(*modes.UnknownModeError); ok {
		return tokenError(ErrUnknownMode, command, string(unknown.Mode))
	}
	return tokenError(ErrUnknownMode, command, "")
}
