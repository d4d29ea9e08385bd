// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ergochat/go-ident"
	"github.com/ergochat/irc-go/ircutils"
	"github.com/google/uuid"

	"github.com/cartisim/relayd/irc/caps"
	"github.com/cartisim/relayd/irc/command"
	"github.com/cartisim/relayd/irc/envelope"
	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
	"github.com/cartisim/relayd/irc/utils"
)

const (
	// IdentTimeout is how long before our ident (username) check times out.
	IdentTimeout = time.Second + 500*time.Millisecond

	// longest quit message we pass on to peers
	maxQuitMessageBytes = 390
)

// Session is one client connection. Its registration state, channel set,
// modes and capabilities are guarded by stateMutex; everything else is
// fixed at connection time.
type Session struct {
	server *Server

	uuid   string
	socket *Socket
	codec  LineCodec
	realIP net.IP
	ctime  time.Time
	isTLS  bool

	stateMutex   sync.RWMutex
	state        SessionState
	channels     map[string]names.ChannelName
	userModes    modes.UserModeSet
	capabilities caps.Set
	capState     caps.State
	capVersion   caps.Version
	passOK       bool
	welcomeSent  bool
	identUser    string
	quitMessage  string

	// serializes relays from this session
	relaySem  utils.Semaphore
	destroyed atomic.Bool
	idletimer IdleTimer
}

// RunClient starts a session on conn and blocks until it ends.
func (server *Server) RunClient(conn IRCConn, codec LineCodec, isTLS bool) {
	config := server.Config()
	wConn := conn.UnderlyingConn()
	now := time.Now().UTC()

	session := &Session{
		server:     server,
		uuid:       uuid.NewString(),
		codec:      codec,
		realIP:     addrToIP(wConn.RemoteAddr()),
		ctime:      now,
		isTLS:      isTLS,
		channels:   make(map[string]names.ChannelName),
		capVersion: caps.Cap301,
		capState:   caps.NoneState,
	}
	session.socket = NewSocket(conn, config.Server.MaxSendQBytes, session.errorLine("SendQ exceeded"))
	session.relaySem.Initialize(1)
	if isTLS {
		session.userModes = session.userModes.Union(modes.NewUserModeSet(modes.TLS))
	}

	server.logger.Info(logger.TypeConnect, fmt.Sprintf("Client connecting: real IP %v, transport %s", session.realIP, codec.Name()), session.uuid)
	server.metrics.SessionOpened(codec.Name())
	server.context.SessionConnected()

	if config.Server.CheckIdent {
		session.doIdentLookup(wConn)
	}
	timeouts := config.Server.Timeouts
	session.idletimer.Initialize(timeouts.Registration, timeouts.Idle, timeouts.Ping, session.Ping, session.Quit)

	session.run()
}

func addrToIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	if addr != nil {
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			return net.ParseIP(host)
		}
	}
	return nil
}

func (session *Session) doIdentLookup(conn net.Conn) {
	localTCPAddr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return
	}
	serverPort := localTCPAddr.Port
	remoteTCPAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return
	}
	clientPort := remoteTCPAddr.Port

	session.Notice("*** Looking up your username")
	resp, err := ident.Query(remoteTCPAddr.IP.String(), serverPort, clientPort, IdentTimeout)
	if err == nil && isIdentValid(resp.Identifier) {
		session.stateMutex.Lock()
		session.identUser = resp.Identifier
		session.stateMutex.Unlock()
		session.Notice("*** Found your username")
	} else if err == nil {
		session.Notice("*** Got a malformed username, ignoring")
	} else {
		session.Notice("*** Could not find your username")
	}
}

func isIdentValid(username string) bool {
	if username == "" || len(username) > names.MaxIdentifierLength {
		return false
	}
	for _, r := range username {
		if r <= ' ' || r == '@' || r == '!' || r > '~' {
			return false
		}
	}
	return true
}

func (session *Session) run() {
	server := session.server

	defer func() {
		if r := recover(); r != nil {
			server.logger.Error(logger.TypeInternal,
				fmt.Sprintf("Client caused panic: %v\n%s", r, debug.Stack()))
			if server.Config().Debug.recoverFromErrors {
				server.logger.Error(logger.TypeInternal, "Disconnecting client and attempting to recover")
			} else {
				panic(r)
			}
		}
		// ensure client connection gets closed
		session.destroy()
	}()

	for {
		line, err := session.socket.Read()
		if err != nil {
			quitMessage := "connection closed"
			if err == errReadQ {
				quitMessage = "readQ exceeded"
			}
			session.setQuitMessage(quitMessage)
			break
		}
		session.idletimer.Touch()

		if server.logger.IsLoggingRawIO() {
			server.logger.Debug(logger.TypeUserInput, session.Target(), "<- ", string(line))
		}
		if len(line) == 0 {
			continue
		}

		if session.handleLine(line) {
			break
		}
	}
}

// handleLine processes one inbound line; it reports whether the session
// should end.
func (session *Session) handleLine(line []byte) (exiting bool) {
	server := session.server

	parsed, err := session.codec.Decode(line)
	if err != nil {
		server.logger.Debug(logger.TypeSession, "dropping malformed line", session.uuid, err.Error())
		return false
	}

	if parsed.Envelope != nil {
		server.relayEnvelope(session, *parsed.Envelope)
		return false
	}

	c, err := command.Parse(parsed.Name, parsed.Args)
	if err != nil {
		rb := NewResponseBuffer(session)
		session.handleError(err, parsed.Args, rb)
		rb.Send()
		return false
	}

	server.metrics.CommandReceived(c.Name())
	cmd, exists := Commands[c.Name()]
	if !exists {
		cmd = unknownCommand
	}
	return cmd.Run(server, session, c)
}

// handleError maps a parse failure to its numeric reply. args are the raw
// arguments of the offending line.
func (session *Session) handleError(err error, args []string, rb *ResponseBuffer) {
	var parseErr *command.ParserError
	if !errors.As(err, &parseErr) {
		rb.addError(err)
		return
	}

	switch parseErr.Kind {
	case command.ErrInvalidArgumentCount:
		rb.Reply(command.ERR_NEEDMOREPARAMS, parseErr.Command, defaultReplyText(command.ERR_NEEDMOREPARAMS))
	case command.ErrInvalidDMID:
		rb.Reply(command.ERR_ERRONEUSNICKNAME, parseErr.Value, defaultReplyText(command.ERR_ERRONEUSNICKNAME))
	case command.ErrInvalidChannelName:
		rb.Reply(command.ERR_ILLEGALCHANNELNAME, parseErr.Value, defaultReplyText(command.ERR_ILLEGALCHANNELNAME))
	case command.ErrInvalidMessageTarget:
		rb.Reply(command.ERR_NOSUCHNICK, parseErr.Value, defaultReplyText(command.ERR_NOSUCHNICK))
	case command.ErrInvalidCAPCommand:
		rb.Reply(command.ERR_INVALIDCAPCMD, parseErr.Value, defaultReplyText(command.ERR_INVALIDCAPCMD))
	case command.ErrUnknownMode:
		if len(args) > 0 && len(args[0]) > 0 && args[0][0] == '#' {
			rb.Reply(command.ERR_UNKNOWNMODE, parseErr.Value, defaultReplyText(command.ERR_UNKNOWNMODE))
		} else {
			rb.Reply(command.ERR_UMODEUNKNOWNFLAG, defaultReplyText(command.ERR_UMODEUNKNOWNFLAG))
		}
	default:
		rb.addError(err)
	}
}

// ID returns the session's identifier, if it has one.
func (session *Session) ID() (id names.DMIdentifier, ok bool) {
	session.stateMutex.RLock()
	defer session.stateMutex.RUnlock()
	return session.state.ID()
}

// IsRegistered reports whether the session has completed registration.
func (session *Session) IsRegistered() bool {
	session.stateMutex.RLock()
	defer session.stateMutex.RUnlock()
	return session.state.IsRegistered()
}

// Target is how replies address this session: its identifier, or "*"
// before it has one.
func (session *Session) Target() string {
	if id, ok := session.ID(); ok {
		return id.String()
	}
	return "*"
}

// UserID returns the id!user@host of the session. The host is the
// servername given in USER when it is a valid hostname, otherwise the
// connection's IP address.
func (session *Session) UserID() names.UserID {
	session.stateMutex.RLock()
	defer session.stateMutex.RUnlock()
	return session.userIDNoMutex()
}

func (session *Session) userIDNoMutex() (userID names.UserID) {
	userID.ID, _ = session.state.ID()
	info, hasInfo := session.state.UserInfo()
	if hasInfo {
		userID.User = info.Username
	}
	if session.identUser != "" {
		userID.User = session.identUser
	}
	if hasInfo && info.Servername != "" && ircutils.HostnameIsValid(info.Servername) {
		userID.Host = info.Servername
	} else if session.realIP != nil {
		userID.Host = session.realIP.String()
	}
	return
}

// Realname is the realname given in USER.
func (session *Session) Realname() string {
	session.stateMutex.RLock()
	defer session.stateMutex.RUnlock()
	info, _ := session.state.UserInfo()
	return info.Realname
}

func (session *Session) Modes() modes.UserModeSet {
	session.stateMutex.RLock()
	defer session.stateMutex.RUnlock()
	return session.userModes
}

// ApplyModes changes the session's user modes and returns the result.
func (session *Session) ApplyModes(add, remove modes.UserModeSet) modes.UserModeSet {
	session.stateMutex.Lock()
	defer session.stateMutex.Unlock()
	session.userModes = session.userModes.Apply(add, remove)
	return session.userModes
}

// Channels returns the channels the session has joined, sorted by name.
func (session *Session) Channels() (result []names.ChannelName) {
	session.stateMutex.RLock()
	defer session.stateMutex.RUnlock()
	result = make([]names.ChannelName, 0, len(session.channels))
	for _, channel := range session.channels {
		result = append(result, channel)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Folded() < result[j].Folded()
	})
	return
}

func (session *Session) addChannel(channel names.ChannelName) {
	session.stateMutex.Lock()
	defer session.stateMutex.Unlock()
	session.channels[channel.Folded()] = channel
}

func (session *Session) removeChannel(channel names.ChannelName) {
	session.stateMutex.Lock()
	defer session.stateMutex.Unlock()
	delete(session.channels, channel.Folded())
}

func (session *Session) HasCap(capability caps.Capability) bool {
	session.stateMutex.RLock()
	defer session.stateMutex.RUnlock()
	return session.capabilities.Has(capability)
}

// Destroyed reports whether the session has been torn down.
func (session *Session) Destroyed() bool {
	return session.destroyed.Load()
}

// Welcomed reports whether the registration burst has been sent.
func (session *Session) Welcomed() bool {
	session.stateMutex.RLock()
	defer session.stateMutex.RUnlock()
	return session.welcomeSent
}

// Send queues messages for the session. It is safe to call from any
// goroutine; messages sent after the session is destroyed are dropped.
func (session *Session) Send(messages ...command.Message) {
	if session.Destroyed() || len(messages) == 0 {
		return
	}
	server := session.server
	serverTime := session.HasCap(caps.ServerTime)

	lines := make([][]byte, 0, len(messages))
	for _, msg := range messages {
		line, err := session.codec.Encode(msg, serverTime)
		if err != nil {
			server.logger.Error(logger.TypeInternal, fmt.Sprintf("Error assembling message for sending: %v\n%s", err, debug.Stack()))
			continue
		}
		if server.logger.IsLoggingRawIO() {
			server.logger.Debug(logger.TypeUserOutput, session.Target(), " ->", string(trimLineEnding(line)))
		}
		lines = append(lines, line)
	}
	session.write(lines...)
}

// SendFrom sends a single command with the given origin.
func (session *Session) SendFrom(origin string, c command.Command) {
	session.Send(command.NewMessage(origin, session.Target(), c))
}

// Notice sends a NOTICE from the server.
func (session *Session) Notice(text string) {
	rb := NewResponseBuffer(session)
	rb.Notice(text)
	rb.Send()
}

// Ping asks an idle session to show it is still there.
func (session *Session) Ping() {
	session.SendFrom(session.server.name, command.OtherCommand{Command: "PING", Args: []string{session.server.name}})
}

// SendEnvelope queues an encrypted envelope for the session.
func (session *Session) SendEnvelope(obj envelope.Object) {
	if session.Destroyed() {
		return
	}
	line, err := session.codec.EncodeEnvelope(obj)
	if err != nil {
		session.server.logger.Error(logger.TypeInternal, "could not encode envelope", err.Error())
		return
	}
	session.write(line)
}

func (session *Session) write(lines ...[]byte) {
	if err := session.socket.Write(lines...); err == errSendQExceeded {
		session.server.logger.Info(logger.TypeSession, "SendQ exceeded, disconnecting", session.uuid)
		session.setQuitMessage("SendQ exceeded")
	}
}

func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

// errorLine encodes the ERROR line that precedes a disconnect.
func (session *Session) errorLine(message string) []byte {
	line, _ := session.codec.Encode(command.NewMessage("", "", command.OtherCommand{Command: "ERROR", Args: []string{message}}), false)
	return line
}

// setQuitMessage records why the session is ending; the first reason wins.
func (session *Session) setQuitMessage(message string) (set bool) {
	session.stateMutex.Lock()
	defer session.stateMutex.Unlock()
	if session.quitMessage == "" {
		session.quitMessage = ircutils.SanitizeText(message, maxQuitMessageBytes)
		return true
	}
	return false
}

// Quit ends the session from any goroutine: the ERROR line is flushed, the
// connection is closed and the read loop then tears the session down.
func (session *Session) Quit(message string) {
	session.setQuitMessage(message)
	session.stateMutex.RLock()
	message = session.quitMessage
	session.stateMutex.RUnlock()
	session.socket.SetFinalData(session.errorLine(message))
	session.socket.Close()
}

// destroy removes the session from every channel and from the registry,
// tells the peers it shared channels with, and closes the connection.
func (session *Session) destroy() {
	if !session.destroyed.CompareAndSwap(false, true) {
		return
	}
	server := session.server

	session.idletimer.Stop()

	session.stateMutex.Lock()
	if session.quitMessage == "" {
		session.quitMessage = "connection closed"
	}
	quitMessage := session.quitMessage
	userID := session.userIDNoMutex()
	id, hasID := session.state.ID()
	registered := session.state.IsRegistered()
	session.stateMutex.Unlock()

	peers := server.peers(session)
	for _, channel := range session.Channels() {
		server.context.PartChannel(channel, session)
		session.removeChannel(channel)
	}
	if hasID {
		if err := server.context.UnregisterSession(session, id); err != nil {
			server.logger.Debug(logger.TypeRegistry, "identifier was not registered", id.String(), session.uuid)
		}
	}

	if registered {
		quit := command.Quit{Message: &quitMessage}
		for _, peer := range peers {
			peer.SendFrom(userID.String(), quit)
		}
	}

	session.socket.SetFinalData(session.errorLine(quitMessage))
	session.socket.Close()

	server.metrics.SessionClosed()
	server.context.SessionDisconnected()
	server.logger.Info(logger.TypeConnect, fmt.Sprintf("Client disconnected: %s", quitMessage), session.uuid, userID.String())
}
