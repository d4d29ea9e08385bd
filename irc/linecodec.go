// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/cartisim/relayd/irc/command"
	"github.com/cartisim/relayd/irc/envelope"
)

const (
	// carries an encrypted envelope on raw IRC line connections
	envelopeCommand = "ENCRYPTEDOBJECT"
)

var (
	errMalformedLine = errors.New("malformed line")
)

// inboundLine is one decoded line: either a command name and its raw
// arguments, or an encrypted envelope for the relay.
type inboundLine struct {
	Name     string
	Args     []string
	Envelope *envelope.Object
}

// LineCodec converts between wire lines and messages. Encoded lines
// include their terminator.
type LineCodec interface {
	Name() string
	Decode(line []byte) (inboundLine, error)
	Encode(msg command.Message, serverTime bool) ([]byte, error)
	EncodeEnvelope(obj envelope.Object) ([]byte, error)
}

// JSONCodec is the default transport: one JSON object per line.
type JSONCodec struct{}

type jsonLine struct {
	EncryptedObject *string  `json:"encryptedObject"`
	Command         string   `json:"command"`
	Arguments       []string `json:"arguments"`
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Decode(line []byte) (result inboundLine, err error) {
	var wire jsonLine
	if err = json.Unmarshal(line, &wire); err != nil {
		return
	}
	if wire.EncryptedObject != nil {
		result.Envelope = &envelope.Object{EncryptedObject: *wire.EncryptedObject}
		return
	}
	if wire.Command == "" {
		return result, errMalformedLine
	}
	result.Name, result.Args = wire.Command, wire.Arguments
	return
}

func (JSONCodec) Encode(msg command.Message, serverTime bool) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (JSONCodec) EncodeEnvelope(obj envelope.Object) ([]byte, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// IRCLineCodec speaks RFC 1459 framing, for ordinary IRC clients.
type IRCLineCodec struct{}

func (IRCLineCodec) Name() string { return "irc" }

func (IRCLineCodec) Decode(line []byte) (result inboundLine, err error) {
	msg, err := ircmsg.ParseLineStrict(string(line), true, 0)
	if err != nil {
		return
	}
	if msg.Command == envelopeCommand {
		if len(msg.Params) != 1 {
			return result, errMalformedLine
		}
		result.Envelope = &envelope.Object{EncryptedObject: msg.Params[0]}
		return
	}
	result.Name, result.Args = msg.Command, msg.Params
	return
}

// needsTarget reports whether the IRC form of c starts with the recipient,
// which the JSON form carries in the target field instead.
func needsTarget(c command.Command) bool {
	switch c.(type) {
	case command.Numeric, command.OtherNumeric, command.Cap:
		return true
	}
	return false
}

func (IRCLineCodec) Encode(msg command.Message, serverTime bool) ([]byte, error) {
	name, args := command.Encode(msg.Command)
	if needsTarget(msg.Command) {
		target := "*"
		if msg.Target != nil {
			target = *msg.Target
		}
		args = append([]string{target}, args...)
	}
	var source string
	if msg.Origin != nil {
		source = *msg.Origin
	}
	var tags map[string]string
	if serverTime {
		tags = map[string]string{"time": time.Now().UTC().Format("2006-01-02T15:04:05.000Z")}
	}
	ircMessage := ircmsg.MakeMessage(tags, source, name, args...)
	return ircMessage.LineBytesStrict(false, 0)
}

func (IRCLineCodec) EncodeEnvelope(obj envelope.Object) ([]byte, error) {
	ircMessage := ircmsg.MakeMessage(nil, "", envelopeCommand, obj.EncryptedObject)
	return ircMessage.LineBytesStrict(false, 0)
}
