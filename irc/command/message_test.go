// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package command

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartisim/relayd/irc/names"
)

func TestMessageJSON(t *testing.T) {
	general := names.MustChannelName("#general")
	msg := NewMessage("alice", "#general", PrivMsg{
		Recipients: []names.MessageRecipient{names.ChannelRecipient(general)},
		Text:       "hi",
	})

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"origin":"alice","target":"#general","command":"PRIVMSG","arguments":["#general","hi"]}`, string(data))

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestMessageJSONOptionalFields(t *testing.T) {
	data, err := json.Marshal(NewMessage("", "", Quit{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"QUIT","arguments":[]}`, string(data))

	var decoded Message
	require.NoError(t, json.Unmarshal([]byte(`{"command":"LIST"}`), &decoded))
	assert.Nil(t, decoded.Origin)
	assert.Nil(t, decoded.Target)
	assert.Equal(t, List{}, decoded.Command)

	require.NoError(t, json.Unmarshal([]byte(`{"command":"001","arguments":["alice","Welcome"]}`), &decoded))
	assert.Equal(t, NewNumeric(RPL_WELCOME, "alice", "Welcome"), decoded.Command)
}

func TestMessageJSONErrors(t *testing.T) {
	var decoded Message
	err := json.Unmarshal([]byte(`{"command":"DMID","arguments":[]}`), &decoded)
	assert.True(t, errors.Is(err, ErrInvalidArgumentCount))

	err = json.Unmarshal([]byte(`{"arguments":["x"]}`), &decoded)
	assert.Error(t, err)

	_, err = json.Marshal(Message{})
	assert.Error(t, err)
}
