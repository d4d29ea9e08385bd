// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/names"
)

const testTimeout = 2 * time.Second

// newTestServer starts a server with an in-memory datastore; mutate may
// adjust the config before it is processed.
func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	config := minimalConfig()
	if mutate != nil {
		mutate(config)
	}
	require.NoError(t, config.postprocess())

	logman, err := logger.NewManager(config.Logging)
	require.NoError(t, err)
	server, err := NewServer(config, logman)
	require.NoError(t, err)
	t.Cleanup(server.Shutdown)
	return server
}

// testMessage is what a test client sees on the wire.
type testMessage struct {
	Origin          *string  `json:"origin"`
	Target          *string  `json:"target"`
	Command         string   `json:"command"`
	Arguments       []string `json:"arguments"`
	EncryptedObject *string  `json:"encryptedObject"`
}

func (m testMessage) arg(i int) string {
	if i < len(m.Arguments) {
		return m.Arguments[i]
	}
	return ""
}

func (m testMessage) origin() string {
	if m.Origin == nil {
		return ""
	}
	return *m.Origin
}

// testClient drives one session over an in-memory pipe using the JSON codec.
type testClient struct {
	t        *testing.T
	conn     net.Conn
	messages chan testMessage
}

func newTestClient(t *testing.T, server *Server) *testClient {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	client := &testClient{
		t:        t,
		conn:     clientSide,
		messages: make(chan testMessage, 1024),
	}
	go server.RunClient(NewIRCStreamConn(serverSide, server.Config().Server.MaxReadQBytes), JSONCodec{}, false)
	go client.read()
	t.Cleanup(func() { clientSide.Close() })
	return client
}

func (client *testClient) read() {
	defer close(client.messages)
	scanner := bufio.NewScanner(client.conn)
	for scanner.Scan() {
		var msg testMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			client.t.Errorf("server sent invalid json %q: %v", scanner.Text(), err)
			continue
		}
		client.messages <- msg
	}
}

func (client *testClient) sendRaw(line string) {
	client.t.Helper()
	client.conn.SetWriteDeadline(time.Now().Add(testTimeout))
	_, err := client.conn.Write([]byte(line + "\n"))
	require.NoError(client.t, err)
}

func (client *testClient) send(name string, args ...string) {
	client.t.Helper()
	if args == nil {
		args = []string{}
	}
	line, err := json.Marshal(jsonLine{Command: name, Arguments: args})
	require.NoError(client.t, err)
	client.sendRaw(string(line))
}

// next returns the next message from the server.
func (client *testClient) next() testMessage {
	client.t.Helper()
	select {
	case msg, ok := <-client.messages:
		if !ok {
			client.t.Fatal("connection closed")
		}
		return msg
	case <-time.After(testTimeout):
		client.t.Fatal("timed out waiting for a message")
	}
	return testMessage{}
}

// expect skips messages until one with the given command arrives.
func (client *testClient) expect(name string) testMessage {
	client.t.Helper()
	for {
		msg := client.next()
		if msg.Command == name {
			return msg
		}
	}
}

// sync round-trips a PING so that everything the server queued before it
// is known to have arrived; it returns what came before the PONG.
func (client *testClient) sync() (before []testMessage) {
	client.t.Helper()
	client.send("PING", "sync")
	for {
		msg := client.next()
		if msg.Command == "PONG" && msg.arg(1) == "sync" {
			return
		}
		before = append(before, msg)
	}
}

// expectClosed waits for the server to hang up and returns the ERROR text.
func (client *testClient) expectClosed() (errorText string) {
	client.t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case msg, ok := <-client.messages:
			if !ok {
				return
			}
			if msg.Command == "ERROR" {
				errorText = msg.arg(0)
			}
		case <-deadline:
			client.t.Fatal("server did not close the connection")
		}
	}
}

// register completes registration as id and consumes the welcome burst.
func (client *testClient) register(id string) {
	client.t.Helper()
	client.send("DMID", id)
	client.send("USER", id, "0", "*", "Test User")
	client.expect("001")
	client.sync()
}

func registeredClient(t *testing.T, server *Server, id string) *testClient {
	t.Helper()
	client := newTestClient(t, server)
	client.register(id)
	return client
}

func commands(messages []testMessage) (result []string) {
	for _, msg := range messages {
		result = append(result, msg.Command)
	}
	return
}

func mustChannel(name string) names.ChannelName {
	return names.MustChannelName(name)
}

func mustID(id string) names.DMIdentifier {
	return names.MustDMIdentifier(id)
}
