// Copyright (c) 2020 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

package irc

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cartisim/relayd/irc/logger"
)

var (
	errCantReloadListener = errors.New("can't switch a listener between stream and websocket")
	errListenerClosed     = errors.New("listener closed")
)

// IRCListener is an abstract wrapper for a listener (TCP port or unix domain socket).
// Server tracks these by listen address and can reload or stop them during rehash.
type IRCListener interface {
	Reload(config listenerConfig) error
	Stop() error
}

// ReloadableListener is a wrapper for net.Listener that allows reloading
// of config data for postprocessing connections (TLS, framing).
type ReloadableListener struct {
	sync.Mutex
	realListener net.Listener
	config       listenerConfig
	isClosed     bool
}

// acceptedConn remembers the listener config that was current when the
// connection was accepted.
type acceptedConn struct {
	net.Conn
	Config listenerConfig
}

func NewReloadableListener(realListener net.Listener, config listenerConfig) *ReloadableListener {
	return &ReloadableListener{
		realListener: realListener,
		config:       config,
	}
}

func (rl *ReloadableListener) Reload(config listenerConfig) {
	rl.Lock()
	rl.config = config
	rl.Unlock()
}

func (rl *ReloadableListener) currentConfig() listenerConfig {
	rl.Lock()
	defer rl.Unlock()
	return rl.config
}

func (rl *ReloadableListener) Accept() (conn net.Conn, err error) {
	conn, err = rl.realListener.Accept()

	rl.Lock()
	config := rl.config
	isClosed := rl.isClosed
	rl.Unlock()

	if isClosed {
		if err == nil {
			conn.Close()
		}
		err = errListenerClosed
	}
	if err != nil {
		return nil, err
	}

	if config.TLSConfig != nil {
		conn = tls.Server(conn, config.TLSConfig)
	}

	return &acceptedConn{
		Conn:   conn,
		Config: config,
	}, nil
}

func (rl *ReloadableListener) Close() error {
	rl.Lock()
	rl.isClosed = true
	rl.Unlock()

	return rl.realListener.Close()
}

func (rl *ReloadableListener) Addr() net.Addr {
	return rl.realListener.Addr()
}

// NewListener creates a new listener according to the specifications in the config file
func NewListener(server *Server, addr string, config listenerConfig, bindMode os.FileMode) (result IRCListener, err error) {
	baseListener, err := createBaseListener(addr, bindMode)
	if err != nil {
		return
	}

	wrappedListener := NewReloadableListener(baseListener, config)

	if config.WebSocket {
		return NewWSListener(server, addr, wrappedListener, config)
	} else {
		return NewNetListener(server, addr, wrappedListener, config)
	}
}

func createBaseListener(addr string, bindMode os.FileMode) (listener net.Listener, err error) {
	addr = strings.TrimPrefix(addr, "unix:")
	if strings.HasPrefix(addr, "/") {
		os.Remove(addr)
		listener, err = net.Listen("unix", addr)
		if err == nil && bindMode != 0 {
			os.Chmod(addr, bindMode)
		}
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	return
}

// NetListener is an IRCListener for a regular stream socket (TCP or unix domain)
type NetListener struct {
	listener *ReloadableListener
	server   *Server
	addr     string
}

func NewNetListener(server *Server, addr string, listener *ReloadableListener, config listenerConfig) (result *NetListener, err error) {
	nl := NetListener{
		server:   server,
		listener: listener,
		addr:     addr,
	}
	go nl.serve()
	return &nl, nil
}

func (nl *NetListener) Reload(config listenerConfig) error {
	if config.WebSocket {
		return errCantReloadListener
	}
	nl.listener.Reload(config)
	return nil
}

func (nl *NetListener) Stop() error {
	return nl.listener.Close()
}

func (nl *NetListener) serve() {
	for {
		conn, err := nl.listener.Accept()

		if err == nil {
			// hand off the connection
			aConn := conn.(*acceptedConn)
			maxReadQ := nl.server.Config().Server.MaxReadQBytes
			go nl.server.RunClient(NewIRCStreamConn(aConn, maxReadQ), aConn.Config.codec(), aConn.Config.TLSConfig != nil)
		} else if errors.Is(err, errListenerClosed) || errors.Is(err, net.ErrClosed) {
			return
		} else {
			nl.server.logger.Error(logger.TypeListeners, "accept error", nl.addr, err.Error())
		}
	}
}

// WSListener is a listener for websocket connections (initially HTTP, then upgraded to a
// message-based protocol carrying one JSON line per text frame, possibly with TLS)
type WSListener struct {
	listener   *ReloadableListener
	httpServer *http.Server
	server     *Server
	addr       string
}

func NewWSListener(server *Server, addr string, listener *ReloadableListener, config listenerConfig) (result *WSListener, err error) {
	result = &WSListener{
		listener: listener,
		server:   server,
		addr:     addr,
	}
	result.httpServer = &http.Server{
		Handler:      http.HandlerFunc(result.handle),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go result.httpServer.Serve(listener)
	return
}

func (wl *WSListener) Reload(config listenerConfig) error {
	if !config.WebSocket {
		return errCantReloadListener
	}
	wl.listener.Reload(config)
	return nil
}

func (wl *WSListener) Stop() error {
	return wl.httpServer.Close()
}

func (wl *WSListener) handle(w http.ResponseWriter, r *http.Request) {
	config := wl.server.Config()

	wsUpgrader := websocket.Upgrader{
		// clients are not browsers; there is no origin to check
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		wl.server.logger.Info(logger.TypeListeners, "websocket upgrade error", wl.addr, err.Error())
		return
	}

	// the http server does not see our TLS termination, so ask the listener
	isTLS := wl.listener.currentConfig().TLSConfig != nil
	if aConn, ok := conn.UnderlyingConn().(*acceptedConn); ok {
		isTLS = aConn.Config.TLSConfig != nil
	}

	// avoid a DoS attack from buffering excessively large messages:
	conn.SetReadLimit(int64(config.Server.MaxReadQBytes))

	go wl.server.RunClient(NewIRCWSConn(conn), JSONCodec{}, isTLS)
}
