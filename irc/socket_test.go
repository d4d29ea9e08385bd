// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConn is an IRCConn that remembers what was written to it.
type recordingConn struct {
	sync.Mutex
	written []string
	closed  chan struct{}
	once    sync.Once
}

func newRecordingConn() *recordingConn {
	return &recordingConn{closed: make(chan struct{})}
}

func (c *recordingConn) UnderlyingConn() net.Conn { return nil }

func (c *recordingConn) Write(buf []byte) error {
	return c.WriteBuffers([][]byte{buf})
}

func (c *recordingConn) WriteBuffers(buffers [][]byte) error {
	c.Lock()
	defer c.Unlock()
	for _, buf := range buffers {
		c.written = append(c.written, string(buf))
	}
	return nil
}

func (c *recordingConn) ReadLine() ([]byte, error) {
	<-c.closed
	return nil, io.EOF
}

func (c *recordingConn) SetReadDeadline(time.Time) error { return nil }

func (c *recordingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *recordingConn) lines() []string {
	c.Lock()
	defer c.Unlock()
	return append([]string(nil), c.written...)
}

func (c *recordingConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(testTimeout):
		t.Fatal("connection was not closed")
	}
}

func TestSocketWriteAndClose(t *testing.T) {
	conn := newRecordingConn()
	socket := NewSocket(conn, 1024, []byte("sendq\n"))

	require.NoError(t, socket.Write([]byte("one\n"), []byte("two\n")))
	assert.Eventually(t, func() bool { return len(conn.lines()) == 2 }, testTimeout, 5*time.Millisecond)

	socket.SetFinalData([]byte("bye\n"))
	socket.Close()
	conn.waitClosed(t)
	assert.Equal(t, []string{"one\n", "two\n", "bye\n"}, conn.lines())
	assert.True(t, socket.IsClosed())

	assert.Equal(t, io.EOF, socket.Write([]byte("late\n")))
	_, err := socket.Read()
	assert.Equal(t, io.EOF, err)
}

func TestSocketSendQExceeded(t *testing.T) {
	conn := newRecordingConn()
	socket := NewSocket(conn, 8, []byte("sendq\n"))
	socket.SetFinalData([]byte("bye\n"))

	// the whole batch is refused
	assert.Equal(t, errSendQExceeded, socket.Write([]byte("12345\n"), []byte("67890\n")))
	conn.waitClosed(t)
	assert.Equal(t, []string{"sendq\n"}, conn.lines())
}

func TestSocketBlockingWrite(t *testing.T) {
	conn := newRecordingConn()
	socket := NewSocket(conn, 0, nil)

	require.NoError(t, socket.BlockingWrite([]byte("now\n")))
	assert.Equal(t, []string{"now\n"}, conn.lines())

	socket.Close()
	conn.waitClosed(t)
	assert.Equal(t, io.EOF, socket.BlockingWrite([]byte("never\n")))
}
