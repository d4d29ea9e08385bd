// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartisim/relayd/irc/command"
	"github.com/cartisim/relayd/irc/envelope"
	"github.com/cartisim/relayd/irc/names"
)

func TestJSONCodecDecode(t *testing.T) {
	var codec JSONCodec

	line, err := codec.Decode([]byte(`{"command": "privmsg", "arguments": ["#general", "hi there"]}`))
	require.NoError(t, err)
	assert.Equal(t, "privmsg", line.Name)
	assert.Equal(t, []string{"#general", "hi there"}, line.Args)
	assert.Nil(t, line.Envelope)

	line, err = codec.Decode([]byte(`{"encryptedObject": "c2VjcmV0"}`))
	require.NoError(t, err)
	require.NotNil(t, line.Envelope)
	assert.Equal(t, "c2VjcmV0", line.Envelope.EncryptedObject)

	for _, bad := range []string{``, `[]`, `{"arguments": ["x"]}`, `{"command": 5}`, `{"command": "PING"`} {
		_, err = codec.Decode([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestJSONCodecEncode(t *testing.T) {
	var codec JSONCodec
	msg := command.NewMessage("alice!alice@example.com", "#general", command.PrivMsg{
		Recipients: []names.MessageRecipient{names.ChannelRecipient(mustChannel("#general"))},
		Text:       "hello",
	})

	data, err := codec.Encode(msg, true)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\n"))

	var wire testMessage
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "alice!alice@example.com", wire.origin())
	assert.Equal(t, "PRIVMSG", wire.Command)
	assert.Equal(t, []string{"#general", "hello"}, wire.Arguments)

	data, err = codec.EncodeEnvelope(envelope.Object{EncryptedObject: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"encryptedObject": "abc"}`, string(data))
}

func TestIRCLineCodec(t *testing.T) {
	var codec IRCLineCodec

	line, err := codec.Decode([]byte("PRIVMSG #general :hi there"))
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG", line.Name)
	assert.Equal(t, []string{"#general", "hi there"}, line.Args)

	line, err = codec.Decode([]byte("ENCRYPTEDOBJECT c2VjcmV0"))
	require.NoError(t, err)
	require.NotNil(t, line.Envelope)
	assert.Equal(t, "c2VjcmV0", line.Envelope.EncryptedObject)

	_, err = codec.Decode([]byte("ENCRYPTEDOBJECT a b"))
	assert.Equal(t, errMalformedLine, err)
	_, err = codec.Decode([]byte(""))
	assert.Error(t, err)

	// numerics carry the recipient as their first parameter
	reply := command.NewMessage("relay.test", "alice", command.NewNumeric(command.RPL_WELCOME, "Welcome"))
	data, err := codec.Encode(reply, false)
	require.NoError(t, err)
	assert.Equal(t, ":relay.test 001 alice Welcome\r\n", string(data))

	reply = command.NewMessage("relay.test", "", command.NewNumeric(command.RPL_WELCOME, "Welcome"))
	data, err = codec.Encode(reply, false)
	require.NoError(t, err)
	assert.Equal(t, ":relay.test 001 * Welcome\r\n", string(data))

	msg := command.NewMessage("alice!alice", "", command.Quit{})
	data, err = codec.Encode(msg, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "@time="))
	assert.True(t, strings.HasSuffix(string(data), " :alice!alice QUIT\r\n"))

	data, err = codec.EncodeEnvelope(envelope.Object{EncryptedObject: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "ENCRYPTEDOBJECT abc\r\n", string(data))
}
