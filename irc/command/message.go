// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package command

import (
	"encoding/json"
	"errors"
)

var (
	errMissingCommand = errors.New("message has no command")
)

// Message is one protocol message: a command plus optional origin and target.
type Message struct {
	Origin  *string
	Target  *string
	Command Command
}

// NewMessage builds a message; empty origin or target are omitted.
func NewMessage(origin, target string, c Command) Message {
	msg := Message{Command: c}
	if origin != "" {
		msg.Origin = &origin
	}
	if target != "" {
		msg.Target = &target
	}
	return msg
}

// wireMessage is the JSON shape of a Message.
type wireMessage struct {
	Origin    *string  `json:"origin,omitempty"`
	Target    *string  `json:"target,omitempty"`
	Command   string   `json:"command"`
	Arguments []string `json:"arguments"`
}

func (msg Message) MarshalJSON() ([]byte, error) {
	if msg.Command == nil {
		return nil, errMissingCommand
	}
	name, args := Encode(msg.Command)
	if args == nil {
		args = []string{}
	}
	return json.Marshal(wireMessage{
		Origin:    msg.Origin,
		Target:    msg.Target,
		Command:   name,
		Arguments: args,
	})
}

// UnmarshalJSON re-parses the command; parse failures surface as *ParserError.
func (msg *Message) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Command == "" {
		return errMissingCommand
	}
	c, err := Parse(wire.Command, wire.Arguments)
	if err != nil {
		return err
	}
	msg.Origin = wire.Origin
	msg.Target = wire.Target
	msg.Command = c
	return nil
}

func (msg Message) String() string {
	result := "<Msg:"
	if msg.Origin != nil {
		result += " from=" + *msg.Origin
	}
	if msg.Target != nil {
		result += " to=" + *msg.Target
	}
	if msg.Command != nil {
		result += " " + msg.Command.String()
	}
	return result + ">"
}
