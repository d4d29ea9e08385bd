// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package modes

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownMode is wrapped by every UnknownModeError.
	ErrUnknownMode = errors.New("unknown mode character")
)

// UnknownModeError reports the first mode character that is not part of
// the relevant mode table.
type UnknownModeError struct {
	Mode rune
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownMode.Error(), e.Mode)
}

func (e *UnknownModeError) Unwrap() error {
	return ErrUnknownMode
}

// ModeOp is an operation performed with modes
type ModeOp rune

const (
	// Add is used when adding the given key.
	Add ModeOp = '+'
	// Remove is used when taking away the given key.
	Remove ModeOp = '-'
)

// Mode represents a user/channel mode token
type Mode rune

func (mode Mode) String() string {
	return string(mode)
}

// Modes is just a raw list of modes
type Modes []Mode

func (modes Modes) String() string {
	var builder strings.Builder
	for _, m := range modes {
		builder.WriteRune(rune(m))
	}
	return builder.String()
}

// User Modes
const (
	WallOps           Mode = 'w'
	Invisible         Mode = 'i'
	Away              Mode = 'a'
	Restricted        Mode = 'r'
	Operator          Mode = 'o'
	LocalOperator     Mode = 'O'
	ServerNotice      Mode = 's'
	IgnoreUnknown     Mode = 'g'
	DisableForwarding Mode = 'Q'
	BlockUnidentified Mode = 'R'
	TLS               Mode = 'Z'
	HideHostname      Mode = 'x'
)

// Channel Modes
const (
	ChannelOperator Mode = 'o'
	Private         Mode = 'p'
	Secret          Mode = 's'
	InviteOnly      Mode = 'i'
	OpOnlyTopic     Mode = 't'
	NoOutside       Mode = 'n'
	Moderated       Mode = 'm'
	UserLimit       Mode = 'l'
	BanMask         Mode = 'b'
	Voice           Mode = 'v'
	Key             Mode = 'k'
)

type modeBit struct {
	mode Mode
	bit  uint16
}

// the table order is the canonical render order; the bit values are
// visible on the wire through the numeric USER mask
var userModeTable = []modeBit{
	{WallOps, 1 << 2},
	{Invisible, 1 << 3},
	{Away, 1 << 4},
	{Restricted, 1 << 5},
	{Operator, 1 << 6},
	{LocalOperator, 1 << 7},
	{ServerNotice, 1 << 8},
	{IgnoreUnknown, 1 << 9},
	{DisableForwarding, 1 << 10},
	{BlockUnidentified, 1 << 11},
	{TLS, 1 << 12},
	{HideHostname, 1 << 13},
}

var channelModeTable = []modeBit{
	{ChannelOperator, 1 << 0},
	{Private, 1 << 1},
	{Secret, 1 << 2},
	{InviteOnly, 1 << 3},
	{OpOnlyTopic, 1 << 4},
	{NoOutside, 1 << 5},
	{Moderated, 1 << 6},
	{UserLimit, 1 << 7},
	{BanMask, 1 << 8},
	{Voice, 1 << 9},
	{Key, 1 << 10},
}

var (
	// SupportedUserModes lists the user modes in canonical order.
	SupportedUserModes = tableModes(userModeTable)
	// SupportedChannelModes lists the channel modes in canonical order.
	SupportedChannelModes = tableModes(channelModeTable)
)

func tableModes(table []modeBit) (result Modes) {
	result = make(Modes, len(table))
	for i, entry := range table {
		result[i] = entry.mode
	}
	return
}

func lookupBit(table []modeBit, mode Mode) (bit uint16, ok bool) {
	for _, entry := range table {
		if entry.mode == mode {
			return entry.bit, true
		}
	}
	return 0, false
}

func parseTokens(table []modeBit, tokens string) (result uint16, err error) {
	for _, r := range tokens {
		bit, ok := lookupBit(table, Mode(r))
		if !ok {
			return 0, &UnknownModeError{Mode: r}
		}
		result |= bit
	}
	return
}

func render(table []modeBit, set uint16) string {
	var builder strings.Builder
	for _, entry := range table {
		if set&entry.bit != 0 {
			builder.WriteRune(rune(entry.mode))
		}
	}
	return builder.String()
}

func listModes(table []modeBit, set uint16) (result Modes) {
	for _, entry := range table {
		if set&entry.bit != 0 {
			result = append(result, entry.mode)
		}
	}
	return
}

// parseChange walks mode arguments character by character. Each argument
// starts out adding; a '+' or '-' switches the sign for the remainder of
// that argument.
func parseChange(table []modeBit, args []string) (add, remove uint16, err error) {
	for _, arg := range args {
		op := Add
		for _, r := range arg {
			switch r {
			case '+':
				op = Add
			case '-':
				op = Remove
			default:
				bit, ok := lookupBit(table, Mode(r))
				if !ok {
					return 0, 0, &UnknownModeError{Mode: r}
				}
				if op == Add {
					add |= bit
				} else {
					remove |= bit
				}
			}
		}
	}
	return
}

// FormatChange renders an add/remove pair as mode arguments: "+add" and
// "-remove", omitting empty halves.
func FormatChange(add, remove string) (result []string) {
	if add != "" {
		result = append(result, "+"+add)
	}
	if remove != "" {
		result = append(result, "-"+remove)
	}
	return
}

// UserModeSet is a set of user modes, stored as the raw 16-bit mask.
type UserModeSet uint16

// ParseUserModes builds a set from a string of mode tokens, e.g. "iw".
func ParseUserModes(tokens string) (UserModeSet, error) {
	set, err := parseTokens(userModeTable, tokens)
	return UserModeSet(set), err
}

// ParseUserModeChange parses MODE arguments for a user target.
func ParseUserModeChange(args ...string) (add, remove UserModeSet, err error) {
	a, r, err := parseChange(userModeTable, args)
	return UserModeSet(a), UserModeSet(r), err
}

// NewUserModeSet returns a set containing the given modes; modes that
// are not user modes are ignored.
func NewUserModeSet(modes ...Mode) (set UserModeSet) {
	for _, mode := range modes {
		if bit, ok := lookupBit(userModeTable, mode); ok {
			set |= UserModeSet(bit)
		}
	}
	return
}

func (set UserModeSet) HasMode(mode Mode) bool {
	bit, ok := lookupBit(userModeTable, mode)
	return ok && uint16(set)&bit != 0
}

func (set UserModeSet) Has(other UserModeSet) bool {
	return set&other == other
}

func (set UserModeSet) IsEmpty() bool {
	return set == 0
}

func (set UserModeSet) Union(other UserModeSet) UserModeSet {
	return set | other
}

func (set UserModeSet) Difference(other UserModeSet) UserModeSet {
	return set &^ other
}

// Apply returns the set with `add` applied and then `remove` taken away.
func (set UserModeSet) Apply(add, remove UserModeSet) UserModeSet {
	return set.Union(add).Difference(remove)
}

// AllModes returns the modes in canonical order.
func (set UserModeSet) AllModes() Modes {
	return listModes(userModeTable, uint16(set))
}

// String renders the canonical token string, e.g. "iZ".
func (set UserModeSet) String() string {
	return render(userModeTable, uint16(set))
}

// ChannelModeSet is a set of channel modes, stored as the raw 16-bit mask.
type ChannelModeSet uint16

// DefaultChannelModes are applied to newly created channels.
var DefaultChannelModes = NewChannelModeSet(NoOutside, OpOnlyTopic)

// ParseChannelModes builds a set from a string of mode tokens, e.g. "nt".
func ParseChannelModes(tokens string) (ChannelModeSet, error) {
	set, err := parseTokens(channelModeTable, tokens)
	return ChannelModeSet(set), err
}

// ParseChannelModeChange parses MODE arguments for a channel target.
func ParseChannelModeChange(args ...string) (add, remove ChannelModeSet, err error) {
	a, r, err := parseChange(channelModeTable, args)
	return ChannelModeSet(a), ChannelModeSet(r), err
}

// NewChannelModeSet returns a set containing the given modes; modes that
// are not channel modes are ignored.
func NewChannelModeSet(modes ...Mode) (set ChannelModeSet) {
	for _, mode := range modes {
		if bit, ok := lookupBit(channelModeTable, mode); ok {
			set |= ChannelModeSet(bit)
		}
	}
	return
}

func (set ChannelModeSet) HasMode(mode Mode) bool {
	bit, ok := lookupBit(channelModeTable, mode)
	return ok && uint16(set)&bit != 0
}

func (set ChannelModeSet) Has(other ChannelModeSet) bool {
	return set&other == other
}

func (set ChannelModeSet) IsEmpty() bool {
	return set == 0
}

func (set ChannelModeSet) Union(other ChannelModeSet) ChannelModeSet {
	return set | other
}

func (set ChannelModeSet) Difference(other ChannelModeSet) ChannelModeSet {
	return set &^ other
}

func (set ChannelModeSet) Apply(add, remove ChannelModeSet) ChannelModeSet {
	return set.Union(add).Difference(remove)
}

func (set ChannelModeSet) AllModes() Modes {
	return listModes(channelModeTable, uint16(set))
}

func (set ChannelModeSet) String() string {
	return render(channelModeTable, uint16(set))
}
