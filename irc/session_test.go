// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartisim/relayd/irc/modes"
)

func TestRegistrationBurst(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server)

	// USER may come before DMID
	client.send("USER", "alice", "0", "*", "Alice Liddell")
	assert.Empty(t, client.sync())
	client.send("DMID", "alice")

	burst := client.sync()
	got := commands(burst)
	require.NotEmpty(t, got)
	assert.Equal(t, []string{"001", "002", "003", "004", "005"}, got[:5])
	assert.Contains(t, got, "251")
	assert.Equal(t, "422", got[len(got)-1])
	assert.Contains(t, burst[0].arg(0), "alice!alice")
	assert.Equal(t, "relay.test", burst[3].arg(0))

	// the burst is sent exactly once
	client.send("MODE", "alice", "+i")
	assert.Equal(t, []string{"MODE"}, commands(client.sync()))
}

func TestCommandsBeforeRegistration(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server)

	client.send("JOIN", "#general")
	msg := client.expect("451")
	assert.Equal(t, "You have not registered", msg.arg(len(msg.Arguments)-1))

	client.send("DMID", "alice")
	// an identifier alone does not register
	assert.Empty(t, client.sync())
	client.send("PRIVMSG", "#general", "hi")
	client.expect("451")
}

func TestIdentifierInUse(t *testing.T) {
	server := newTestServer(t, nil)
	registeredClient(t, server, "alice")

	other := newTestClient(t, server)
	other.send("DMID", "ALICE")
	msg := other.expect("433")
	assert.Equal(t, "ALICE", msg.arg(0))

	other.send("DMID", "bob")
	other.send("USER", "bob", "0", "*", "Bob")
	other.expect("001")
}

func TestRegistrationRace(t *testing.T) {
	server := newTestServer(t, nil)
	clients := []*testClient{newTestClient(t, server), newTestClient(t, server)}

	var wg sync.WaitGroup
	results := make([][]string, len(clients))
	for i, client := range clients {
		wg.Add(1)
		go func(i int, client *testClient) {
			defer wg.Done()
			client.send("DMID", "racer")
			client.send("USER", "racer", "0", "*", "Racer")
			results[i] = commands(client.sync())
		}(i, client)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, result := range results {
		if len(result) > 0 && result[0] == "001" {
			winners++
		} else if len(result) > 0 && result[0] == "433" {
			losers++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)
}

func TestJoinPartAndChannelMessages(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	bob := registeredClient(t, server, "bob")

	alice.send("JOIN", "#general")
	replies := alice.sync()
	require.Equal(t, []string{"JOIN", "353", "366"}, commands(replies))
	assert.Equal(t, []string{"#general"}, replies[0].Arguments)
	// the creator is the channel operator
	assert.Equal(t, "@alice", replies[1].arg(2))

	bob.send("JOIN", "#General")
	bob.expect("366")
	join := alice.expect("JOIN")
	assert.Equal(t, "bob!bob", join.origin())

	alice.send("PRIVMSG", "#general", "hello everyone")
	// no echo to the sender
	assert.Empty(t, alice.sync())
	msg := bob.expect("PRIVMSG")
	assert.Equal(t, "alice!alice", msg.origin())
	assert.Equal(t, []string{"#general", "hello everyone"}, msg.Arguments)
	require.NotNil(t, msg.Target)
	assert.Equal(t, "#general", *msg.Target)

	bob.send("PART", "#general", "bye")
	part := bob.expect("PART")
	assert.Equal(t, []string{"#general", "bye"}, part.Arguments)
	part = alice.expect("PART")
	assert.Equal(t, "bob!bob", part.origin())

	// channels outlive their last member
	alice.send("PART", "#general")
	alice.expect("PART")
	_, ok := server.context.ChannelInfo(mustChannel("#general"))
	assert.True(t, ok)

	alice.send("PART", "#general")
	alice.expect("442")
	alice.send("PART", "#nowhere")
	alice.expect("403")
}

func TestJoinTwiceIsSilent(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")

	alice.send("JOIN", "#general")
	alice.expect("366")
	alice.send("JOIN", "#general")
	assert.Empty(t, alice.sync())
}

func TestJoinZeroLeavesEverything(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")

	alice.send("JOIN", "#one,#two")
	alice.sync()
	alice.send("JOIN", "0")
	parts := alice.sync()
	assert.Equal(t, []string{"PART", "PART"}, commands(parts))
}

func TestDirectMessages(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	bob := registeredClient(t, server, "bob")

	alice.send("PRIVMSG", "Bob", "psst")
	assert.Empty(t, alice.sync())
	msg := bob.expect("PRIVMSG")
	assert.Equal(t, "alice!alice", msg.origin())
	assert.Equal(t, "psst", msg.arg(1))

	// messages to yourself are delivered
	alice.send("PRIVMSG", "alice", "note to self")
	assert.Equal(t, []string{"PRIVMSG"}, commands(alice.sync()))

	alice.send("PRIVMSG", "carol", "anyone?")
	assert.Equal(t, []string{"401"}, commands(alice.sync()))

	alice.send("PRIVMSG", "bob", "")
	assert.Equal(t, []string{"412"}, commands(alice.sync()))

	// NOTICE never answers with an error
	alice.send("NOTICE", "carol", "anyone?")
	assert.Empty(t, alice.sync())
}

func TestPartialDeliveryFailure(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	bob := registeredClient(t, server, "bob")

	alice.send("PRIVMSG", "#missing,bob,carol", "hi")
	errs := alice.sync()
	assert.Equal(t, []string{"403", "401"}, commands(errs))
	assert.Equal(t, "#missing", errs[0].arg(0))
	assert.Equal(t, "carol", errs[1].arg(0))
	assert.Equal(t, "hi", bob.expect("PRIVMSG").arg(1))
}

func TestBroadcastIsRejected(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")

	alice.send("PRIVMSG", "*", "everyone")
	errs := alice.sync()
	require.Equal(t, []string{"401"}, commands(errs))
	assert.Equal(t, "*", errs[0].arg(0))
}

func TestUnknownAndMalformedCommands(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")

	alice.send("FROBNICATE", "x")
	msg := alice.expect("421")
	assert.Equal(t, "FROBNICATE", msg.arg(0))

	alice.send("PRIVMSG", "bob")
	msg = alice.expect("461")
	assert.Equal(t, "PRIVMSG", msg.arg(0))

	alice.send("JOIN", "nohash")
	alice.expect("479")

	// lines that do not decode are dropped without a reply
	alice.sendRaw(`{"command": 7}`)
	alice.sendRaw(`not json at all`)
	alice.sendRaw(`{"arguments": []}`)
	assert.Empty(t, alice.sync())
}

func TestQuitNotifiesPeers(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	bob := registeredClient(t, server, "bob")
	carol := registeredClient(t, server, "carol")

	alice.send("JOIN", "#general")
	alice.sync()
	bob.send("JOIN", "#general")
	bob.sync()

	alice.send("QUIT", "gone fishing")
	assert.Equal(t, "Quit: gone fishing", alice.expectClosed())

	quit := bob.expect("QUIT")
	assert.Equal(t, "alice!alice", quit.origin())
	assert.Equal(t, []string{"Quit: gone fishing"}, quit.Arguments)
	// carol shared no channel with alice
	assert.Empty(t, carol.sync())

	_, ok := server.context.GetSession(mustID("alice"))
	assert.False(t, ok)
	members, _ := server.context.GetSessions(mustChannel("#general"))
	assert.Len(t, members, 1)

	// the identifier is free again
	registeredClient(t, server, "alice")
}

func TestDisconnectCleansUp(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	bob := registeredClient(t, server, "bob")
	alice.send("JOIN", "#general")
	alice.sync()
	bob.send("JOIN", "#general")
	bob.sync()

	alice.conn.Close()
	quit := bob.expect("QUIT")
	assert.Equal(t, []string{"connection closed"}, quit.Arguments)
}

func TestRenameNotifiesPeers(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	bob := registeredClient(t, server, "bob")
	alice.send("JOIN", "#general")
	alice.sync()
	bob.send("JOIN", "#general")
	bob.sync()

	alice.send("DMID", "alicia")
	change := alice.expect("DMID")
	assert.Equal(t, "alice!alice", change.origin())
	assert.Equal(t, []string{"alicia"}, change.Arguments)
	change = bob.expect("DMID")
	assert.Equal(t, []string{"alicia"}, change.Arguments)

	_, ok := server.context.GetSession(mustID("alice"))
	assert.False(t, ok)
	_, ok = server.context.GetSession(mustID("alicia"))
	assert.True(t, ok)

	// operator status follows the rename
	info, _ := server.context.ChannelInfo(mustChannel("#general"))
	assert.True(t, info.IsOperator(mustID("alicia")))
}

func TestChannelModes(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	bob := registeredClient(t, server, "bob")
	alice.send("JOIN", "#general")
	alice.sync()
	bob.send("JOIN", "#general")
	bob.sync()

	alice.send("MODE", "#general")
	msg := alice.expect("324")
	assert.Equal(t, []string{"#general", "+" + modes.DefaultChannelModes.String()}, msg.Arguments)

	bob.send("MODE", "#general", "+s")
	bob.expect("482")

	alice.send("MODE", "#general", "+s-t")
	change := alice.expect("MODE")
	assert.Equal(t, "alice!alice", change.origin())
	change = bob.expect("MODE")
	assert.Equal(t, "#general", change.arg(0))

	alice.send("MODE", "#general", "+Z")
	alice.expect("472")

	alice.send("MODE", "#general", "b")
	alice.expect("368")
}

func TestUserModes(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	registeredClient(t, server, "bob")

	alice.send("MODE", "alice", "+i")
	change := alice.expect("MODE")
	assert.Equal(t, []string{"alice", "+i"}, change.Arguments)

	// setting it again is a no-op
	alice.send("MODE", "alice", "+i")
	assert.Empty(t, alice.sync())

	alice.send("MODE", "alice")
	assert.Equal(t, "+i", alice.expect("221").arg(0))

	alice.send("MODE", "bob", "+i")
	alice.expect("502")
}

func TestListAndIsOn(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")
	registeredClient(t, server, "bob")
	alice.send("JOIN", "#b,#a")
	alice.sync()

	alice.send("LIST")
	list := alice.sync()
	require.Equal(t, []string{"321", "322", "322", "323"}, commands(list))
	assert.Equal(t, "#a", list[1].arg(0))
	assert.Equal(t, "1", list[1].arg(1))

	alice.send("LIST", "#b", "elsewhere.example")
	alice.expect("402")

	alice.send("ISON", "bob carol", "ALICE")
	ison := alice.expect("303")
	assert.Equal(t, "bob alice", ison.arg(0))
}

func TestDefaultChannelsAutoJoin(t *testing.T) {
	server := newTestServer(t, func(config *Config) {
		config.Channels.AutoJoin = true
		config.Channels.Defaults = []DefaultChannelConfig{{Name: "#lobby", Welcome: "welcome aboard"}}
	})
	client := newTestClient(t, server)
	client.send("DMID", "alice")
	client.send("USER", "alice", "0", "*", "Alice")
	join := client.expect("JOIN")
	assert.Equal(t, []string{"#lobby"}, join.Arguments)
	topic := client.expect("332")
	assert.Equal(t, []string{"#lobby", "welcome aboard"}, topic.Arguments)
}

func TestServerPassword(t *testing.T) {
	hash, err := GenerateEncodedPassword("opensesame", 4)
	require.NoError(t, err)
	server := newTestServer(t, func(config *Config) {
		config.Server.Password = hash
	})

	good := newTestClient(t, server)
	good.send("PASS", "opensesame")
	good.send("DMID", "alice")
	good.send("USER", "alice", "0", "*", "Alice")
	good.expect("001")

	bad := newTestClient(t, server)
	bad.send("PASS", "guess")
	bad.expect("464")
	assert.Equal(t, "Password incorrect", bad.expectClosed())

	missing := newTestClient(t, server)
	missing.send("DMID", "bob")
	missing.send("USER", "bob", "0", "*", "Bob")
	missing.expect("464")
	missing.expectClosed()
}

func TestCapNegotiationDelaysRegistration(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server)

	client.send("CAP", "LS", "302")
	ls := client.expect("CAP")
	assert.Equal(t, "LS", ls.arg(0))
	client.send("DMID", "alice")
	client.send("USER", "alice", "0", "*", "Alice")
	client.send("CAP", "REQ", "server-time")
	ack := client.expect("CAP")
	assert.Equal(t, "ACK", ack.arg(0))
	assert.NotContains(t, commands(client.sync()), "001")

	client.send("CAP", "END")
	client.expect("001")
}

func TestRegistrationTimeout(t *testing.T) {
	server := newTestServer(t, func(config *Config) {
		config.Server.Timeouts.Registration = 100 * time.Millisecond
	})
	client := newTestClient(t, server)
	client.send("DMID", "alice")
	assert.Equal(t, "Registration timeout: 100ms", client.expectClosed())
}

func TestIdlePingAndTimeout(t *testing.T) {
	server := newTestServer(t, func(config *Config) {
		config.Server.Timeouts.Idle = 100 * time.Millisecond
		config.Server.Timeouts.Ping = 100 * time.Millisecond
	})
	client := registeredClient(t, server, "alice")

	ping := client.expect("PING")
	assert.Equal(t, []string{"relay.test"}, ping.Arguments)
	client.send("PONG", "relay.test")

	client.expect("PING")
	assert.Equal(t, "Ping timeout: 200ms", client.expectClosed())
}

func TestShutdownDisconnectsSessions(t *testing.T) {
	server := newTestServer(t, nil)
	client := registeredClient(t, server, "alice")

	server.Shutdown()
	assert.Equal(t, "Server shutting down", client.expectClosed())
}

func TestLusersCountsUnregistered(t *testing.T) {
	server := newTestServer(t, nil)
	alice := registeredClient(t, server, "alice")

	// no DMID yet, but the connection is open
	lurker := newTestClient(t, server)
	lurker.sync()
	named := newTestClient(t, server)
	named.send("DMID", "bob")
	named.sync()

	alice.send("LUSERS")
	unknown := alice.expect("253")
	assert.Equal(t, "2", unknown.arg(0))

	info := server.context.ServerInfo()
	assert.Equal(t, 1, info.Users)
	assert.Equal(t, 2, info.Unregistered)

	lurker.send("QUIT")
	lurker.expectClosed()
	assert.Eventually(t, func() bool {
		return server.context.ServerInfo().Unregistered == 1
	}, testTimeout, 10*time.Millisecond)
}

func TestCapNegotiationAfterUserAndDMID(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server)

	// the usual IRCv3 order: LS, then identity, then REQ and END
	client.send("CAP", "LS", "302")
	client.expect("CAP")
	client.send("DMID", "alice")
	client.send("USER", "alice", "0", "*", "Alice")
	assert.NotContains(t, commands(client.sync()), "001")
	client.send("CAP", "REQ", "server-time")
	client.expect("CAP")
	client.send("CAP", "END")
	client.expect("001")

	// renegotiating after the burst doesn't hold anything back
	client.send("CAP", "LS", "302")
	client.expect("CAP")
	client.send("JOIN", "#general")
	client.expect("JOIN")
}
