// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartisim/relayd/irc/command"
)

func TestSessionStateTransitions(t *testing.T) {
	info := command.UserInfo{Username: "alice", Realname: "Alice"}
	alice, bob := mustID("alice"), mustID("bob")

	var initial SessionState
	assert.False(t, initial.IsRegistered())
	_, ok := initial.ID()
	assert.False(t, ok)
	assert.Equal(t, "initial", initial.String())

	// identifier first
	state := initial.ChangeID(alice)
	assert.False(t, state.IsRegistered())
	id, ok := state.ID()
	assert.True(t, ok)
	assert.Equal(t, "alice", id.String())
	state = state.ChangeID(bob)
	assert.Equal(t, "id-assigned(bob)", state.String())
	state = state.SetUserInfo(info)
	assert.True(t, state.IsRegistered())
	id, _ = state.ID()
	assert.Equal(t, "bob", id.String())

	// user info first
	state = initial.SetUserInfo(info)
	assert.False(t, state.IsRegistered())
	_, ok = state.ID()
	assert.False(t, ok)
	got, ok := state.UserInfo()
	assert.True(t, ok)
	assert.Equal(t, "alice", got.Username)
	state = state.ChangeID(alice)
	assert.True(t, state.IsRegistered())
	assert.Equal(t, "registered(alice)", state.String())

	// renaming a registered session keeps it registered
	state = state.ChangeID(bob)
	assert.True(t, state.IsRegistered())
	got, _ = state.UserInfo()
	assert.Equal(t, "Alice", got.Realname)
}
