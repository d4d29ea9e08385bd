// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/okzk/sdnotify"

	"github.com/cartisim/relayd/irc/envelope"
	"github.com/cartisim/relayd/irc/flock"
	"github.com/cartisim/relayd/irc/kv"
	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/names"
	"github.com/cartisim/relayd/irc/relay"
	"github.com/cartisim/relayd/irc/utils"
)

const (
	// coalesces the burst of events an editor produces when saving
	configWatchDelay = 250 * time.Millisecond
)

// Server is the main relayd server.
type Server struct {
	name  string
	ctime time.Time

	config  utils.ConfigStore[Config]
	context *ServerContext
	keyring *envelope.Keyring
	// nil when relaying is disabled
	relayClient atomic.Pointer[relay.Client]

	logger          *logger.Manager
	metrics         *Metrics
	motdLines       atomic.Pointer[[]string]
	listeners       map[string]IRCListener
	apiServer       *http.Server
	apiListener     string
	store           kv.Store
	flock           flock.Flocker
	channelRegistry *ChannelRegistry
	semaphores      *ServerSemaphores
	watcher         *fsnotify.Watcher
	rehashMutex     sync.Mutex // tier 4

	// cancelled at shutdown; bounds relay requests in flight
	ctx    context.Context
	cancel context.CancelFunc

	exitSignals      chan os.Signal
	rehashSignals    chan os.Signal
	tracebackSignals chan os.Signal
}

// NewServer returns a new relayd server.
func NewServer(config *Config, logger *logger.Manager) (*Server, error) {
	keyring, err := envelope.NewKeyring("")
	if err != nil {
		return nil, err
	}

	// initialize data structures
	server := &Server{
		ctime:            time.Now().UTC(),
		context:          NewServerContext(logger),
		keyring:          keyring,
		listeners:        make(map[string]IRCListener),
		logger:           logger,
		metrics:          NewMetrics(),
		exitSignals:      make(chan os.Signal, 1),
		rehashSignals:    make(chan os.Signal, 1),
		tracebackSignals: make(chan os.Signal, 1),
	}
	server.ctx, server.cancel = context.WithCancel(context.Background())
	server.channelRegistry = NewChannelRegistry(server)
	server.semaphores = NewServerSemaphores(config.Relay.MaxConcurrentRequests)

	if err := server.applyConfig(config, true); err != nil {
		server.cancel()
		for _, listener := range server.listeners {
			listener.Stop()
		}
		if server.apiServer != nil {
			server.apiServer.Close()
		}
		if server.store != nil {
			server.store.Close()
		}
		if server.flock != nil {
			server.flock.Unlock()
		}
		return nil, err
	}

	// Attempt to clean up when receiving these signals.
	signal.Notify(server.exitSignals, utils.ServerExitSignals...)
	signal.Notify(server.rehashSignals, utils.ServerRehashSignals...)
	signal.Notify(server.tracebackSignals, utils.ServerTracebackSignals...)

	return server, nil
}

// Config returns the current configuration; callers must not modify it.
func (server *Server) Config() (config *Config) {
	return server.config.Get()
}

// Shutdown tries to close all connections and the datastore.
func (server *Server) Shutdown() {
	sdnotify.Stopping()
	server.logger.Info(logger.TypeServer, "Stopping server")

	server.cancel()
	for addr, listener := range server.listeners {
		if err := listener.Stop(); err != nil {
			server.logger.Error(logger.TypeListeners, "could not stop listener", addr, err.Error())
		}
	}
	if server.apiServer != nil {
		server.apiServer.Close()
	}
	if server.watcher != nil {
		server.watcher.Close()
	}

	for _, session := range server.context.AllSessions() {
		session.Notice("Server is shutting down")
		session.Quit("Server shutting down")
	}

	if err := server.store.Close(); err != nil {
		server.logger.Error(logger.TypeDatastore, "Could not close datastore", err.Error())
	}
	if err := server.flock.Unlock(); err != nil {
		server.logger.Error(logger.TypeDatastore, "Could not release datastore lock", err.Error())
	}
}

// Run starts the server and blocks until an exit signal arrives.
func (server *Server) Run() {
	defer server.Shutdown()

	sdnotify.Ready()
	server.logger.Info(logger.TypeServer, "Server running")

	for {
		select {
		case <-server.exitSignals:
			return
		case <-server.rehashSignals:
			server.logger.Info(logger.TypeRehash, "Rehashing due to SIGHUP")
			go server.rehashAndLog()
		case <-server.tracebackSignals:
			go func() {
				var buf bytes.Buffer
				pprof.Lookup("goroutine").WriteTo(&buf, 1)
				server.logger.Info(logger.TypeServer, "Goroutine traceback", buf.String())
			}()
		}
	}
}

func (server *Server) rehashAndLog() {
	defer server.HandlePanic(nil)
	if err := server.rehash(); err != nil {
		server.logger.Error(logger.TypeRehash, "Failed to rehash", err.Error())
	}
}

// rehash reloads the config and applies the changes from the config file.
func (server *Server) rehash() (err error) {
	server.logger.Info(logger.TypeRehash, "Attempting rehash")

	// only let one rehash go on at a time
	server.rehashMutex.Lock()
	defer server.rehashMutex.Unlock()

	sdnotify.Reloading()
	defer sdnotify.Ready()
	defer func() {
		server.metrics.Rehashed(err)
	}()

	config, err := LoadConfig(server.Config().Filename)
	if err != nil {
		return fmt.Errorf("Error loading config file config: %w", err)
	}

	err = server.applyConfig(config, false)
	if err != nil {
		return fmt.Errorf("Error applying config changes: %w", err)
	}

	server.logger.Info(logger.TypeRehash, "Rehash completed successfully")
	return nil
}

func (server *Server) applyConfig(config *Config, initial bool) (err error) {
	oldConfig := server.Config()

	if initial {
		server.name = config.Server.Name
	} else {
		// enforce configs that can't be changed after launch:
		if server.name != config.Server.Name {
			return errors.New("Server name cannot be changed after launching the server, rehash aborted")
		} else if oldConfig.Datastore.Path != config.Datastore.Path || oldConfig.Datastore.Driver != config.Datastore.Driver {
			return errors.New("Datastore cannot be changed after launching the server, rehash aborted")
		}
		if err = server.logger.ApplyConfig(config.Logging); err != nil {
			return err
		}
	}

	if err = server.loadMOTD(config.Server.MOTD); err != nil {
		return fmt.Errorf("Failed to load MOTD: %w", err)
	}

	server.context.SetPolicy(config.Server.ForbidConfusableIdentities, config.Channels.defaultModes)

	if initial {
		if err = server.loadDatastore(config); err != nil {
			return err
		}
	}

	for _, channel := range config.Channels.Defaults {
		name := names.MustChannelName(channel.Name)
		if server.context.AddChannel(name, channel.Welcome, config.channelModes(channel), nil, false) {
			server.logger.Debug(logger.TypeRegistry, "created default channel", name.String())
		}
	}
	server.metrics.ChannelsChanged(server.context.ServerInfo().Channels)

	if err = server.setupRelay(config); err != nil {
		return err
	}

	// activate the new config
	server.config.Set(config)
	if !initial {
		server.announceISupport(oldConfig, config)
	}

	if server.logger.IsLoggingRawIO() {
		server.logger.Warning(logger.TypeServer, "Raw I/O logging is enabled; all client traffic will be logged")
	}

	if err = server.setupListeners(config); err != nil {
		return err
	}
	if err = server.setupAPI(config); err != nil {
		return err
	}
	server.setupWatcher(config)
	return nil
}

// setupRelay installs (or removes) the relay client for config.
func (server *Server) setupRelay(config *Config) error {
	if config.Relay.SharedSecret != "" {
		if err := server.keyring.SetSecret(config.Relay.SharedSecret); err != nil {
			return err
		}
	}

	if !config.Relay.Enabled {
		if server.relayClient.Swap(nil) != nil {
			server.logger.Info(logger.TypeRelay, "relaying disabled")
		}
		return nil
	}

	userAgent := config.Relay.UserAgent
	if userAgent == "" {
		userAgent = Ver
	}
	client, err := relay.NewClient(relay.Config{
		BaseURL:      config.Relay.BaseURL,
		Timeout:      config.Relay.Timeout,
		TLSConfig:    config.Relay.tlsConfig,
		ExpiryLeeway: config.Relay.ExpiryLeeway,
		UserAgent:    userAgent,
	}, server.keyring)
	if err != nil {
		return err
	}
	client.Observe = server.metrics.ObserveRelay
	server.relayClient.Store(client)
	server.logger.Info(logger.TypeRelay, "relaying to", config.Relay.BaseURL)

	if config.Relay.FetchKeys {
		go server.fetchRelayKeys(client)
	} else if !server.keyring.HasKey() {
		server.logger.Warning(logger.TypeRelay, "relay enabled without a shared secret or fetch-keys; envelopes will be dropped")
	}
	return nil
}

func (server *Server) fetchRelayKeys(client *relay.Client) {
	defer server.HandlePanic(nil)

	if err := client.FetchKeys(server.ctx); err != nil {
		server.logger.Error(logger.TypeRelay, "could not fetch keys", err.Error())
	} else {
		server.logger.Info(logger.TypeRelay, "installed envelope key from backend")
	}
}

func (server *Server) loadMOTD(motdPath string) error {
	server.logger.Debug(logger.TypeRehash, "Loading MOTD")
	motdLines := make([]string, 0)
	if motdPath != "" {
		file, err := os.Open(motdPath)
		if err != nil {
			return err
		}
		defer file.Close()

		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadString('\n')
			line = strings.TrimRight(line, "\r\n")
			if line != "" || err == nil {
				// "- " is the required prefix for MOTD, we just add it here to make
				// bursting it out to clients easier
				motdLines = append(motdLines, "- "+line)
			}
			if err != nil {
				break
			}
		}
	}

	server.motdLines.Store(&motdLines)
	return nil
}

func (server *Server) loadDatastore(config *Config) (err error) {
	// open the datastore and load server state for which it (rather than config)
	// is the source of truth

	if config.Datastore.Driver != datastoreMySQL {
		server.flock, err = flock.TryAcquireFlock(config.Datastore.Path)
		if err != nil {
			return fmt.Errorf("Failed to lock datastore: %w", err)
		}
	}

	server.logger.Debug(logger.TypeDatastore, "Opening datastore")
	db, err := OpenDatabase(config)
	if err != nil {
		return fmt.Errorf("Failed to open datastore: %w", err)
	}
	server.store = db

	if server.flock == nil {
		server.flock, _ = flock.TryAcquireFlock("")
	}

	return server.loadChannels()
}

func (server *Server) setupListeners(config *Config) (err error) {
	logListener := func(addr string, config listenerConfig) {
		server.logger.Info(logger.TypeListeners,
			fmt.Sprintf("now listening on %s, tls=%t, websocket=%t, irc-lines=%t.", addr, (config.TLSConfig != nil), config.WebSocket, config.IRCLines),
		)
	}

	// update or destroy all existing listeners
	for addr := range server.listeners {
		currentListener := server.listeners[addr]
		newConfig, stillConfigured := config.Server.listeners[addr]

		if stillConfigured {
			if reloadErr := currentListener.Reload(newConfig); reloadErr == nil {
				logListener(addr, newConfig)
			} else {
				// stop the listener; we will attempt to replace it below
				currentListener.Stop()
				delete(server.listeners, addr)
			}
		} else {
			currentListener.Stop()
			delete(server.listeners, addr)
			server.logger.Info(logger.TypeListeners, fmt.Sprintf("stopped listening on %s.", addr))
		}
	}

	publicPlaintextListener := ""
	// create new listeners that were not previously configured,
	// or that couldn't be reloaded above:
	for newAddr, newConfig := range config.Server.listeners {
		if newConfig.TLSConfig == nil && !isLoopbackAddr(newAddr) {
			publicPlaintextListener = newAddr
		}
		_, exists := server.listeners[newAddr]
		if !exists {
			// make a new listener
			newListener, newErr := NewListener(server, newAddr, newConfig, 0)
			if newErr == nil {
				server.listeners[newAddr] = newListener
				logListener(newAddr, newConfig)
			} else {
				server.logger.Error(logger.TypeListeners, "couldn't listen on", newAddr, newErr.Error())
				err = newErr
			}
		}
	}

	if publicPlaintextListener != "" {
		server.logger.Warning(logger.TypeListeners, fmt.Sprintf("Your server is configured with public plaintext listener %s. Consider disabling it for improved security and privacy.", publicPlaintextListener))
	}

	return
}

func isLoopbackAddr(addr string) bool {
	if strings.HasPrefix(addr, "unix:") || strings.HasPrefix(addr, "/") {
		return true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// setupAPI starts, moves or stops the admin HTTP listener.
func (server *Server) setupAPI(config *Config) error {
	listenAddr := ""
	if config.API.Enabled {
		listenAddr = config.API.Listener
	}
	if listenAddr == server.apiListener {
		return nil
	}

	if server.apiServer != nil {
		server.apiServer.Close()
		server.apiServer = nil
		server.logger.Info(logger.TypeAdmin, "stopped admin API on", server.apiListener)
	}
	server.apiListener = ""
	if listenAddr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("couldn't start admin API: %w", err)
	}
	server.apiServer = &http.Server{
		Handler:           newAPIHandler(server),
		ReadHeaderTimeout: 5 * time.Second,
	}
	server.apiListener = listenAddr
	go server.apiServer.Serve(listener)
	server.logger.Info(logger.TypeAdmin, "admin API listening on", listenAddr)
	if config.API.generatedToken != "" {
		server.logger.Warning(logger.TypeAdmin, "no bearer tokens configured, generated one for this run", config.API.generatedToken)
	}
	return nil
}

// setupWatcher starts or stops watching the config file for changes.
func (server *Server) setupWatcher(config *Config) {
	if !config.Server.WatchConfig {
		if server.watcher != nil {
			server.watcher.Close()
			server.watcher = nil
		}
		return
	}
	if server.watcher != nil || config.Filename == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		server.logger.Error(logger.TypeRehash, "could not create config watcher", err.Error())
		return
	}
	// watch the directory: editors often replace the file rather than write it
	if err := watcher.Add(filepath.Dir(config.Filename)); err != nil {
		server.logger.Error(logger.TypeRehash, "could not watch config file", err.Error())
		watcher.Close()
		return
	}
	server.watcher = watcher
	go server.watchConfig(watcher, filepath.Clean(config.Filename))
}

func (server *Server) watchConfig(watcher *fsnotify.Watcher, filename string) {
	defer server.HandlePanic(nil)

	var timer *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filename || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(configWatchDelay, func() {
					server.logger.Info(logger.TypeRehash, "Rehashing due to config file change")
					server.rehashAndLog()
				})
			} else {
				timer.Reset(configWatchDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			server.logger.Error(logger.TypeRehash, "config watcher error", err.Error())
		}
	}
}
