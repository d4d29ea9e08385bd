// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"errors"
	"fmt"

	"github.com/cartisim/relayd/irc/caps"
	"github.com/cartisim/relayd/irc/envelope"
	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/relay"
)

// relayEnvelope handles an encrypted chat message from session. The post
// runs off the read loop; posts from one session are serialized.
func (server *Server) relayEnvelope(session *Session, obj envelope.Object) {
	client := server.relayClient.Load()
	if client == nil {
		server.logger.Debug(logger.TypeRelay, "relay disabled, dropping envelope", session.uuid)
		server.relayFailed(session, relay.ErrDisabled)
		return
	}

	var data relay.MessageData
	if !server.keyring.Open(obj, &data) {
		server.logger.Debug(logger.TypeRelay, "dropping undecryptable envelope", session.uuid)
		server.metrics.RelayOutcome("undecryptable")
		return
	}

	creds := data.Credentials()
	if creds.AccessToken == "" {
		server.relayFailed(session, relay.ErrAccessTokenNotFound)
		return
	}

	go server.postRelay(client, session, obj, creds)
}

func (server *Server) postRelay(client *relay.Client, session *Session, obj envelope.Object, creds relay.Credentials) {
	defer server.HandlePanic(nil)

	if !session.relaySem.AcquireWithContext(server.ctx) {
		return
	}
	defer session.relaySem.Release()
	// posts queued behind this one outlive a disconnect; drop them
	if session.Destroyed() {
		server.metrics.RelayOutcome("abandoned")
		return
	}

	semaphores := server.semaphores
	if !semaphores.RelayPost.AcquireWithContext(server.ctx) {
		return
	}
	defer semaphores.RelayPost.Release()

	outcome, err := client.Post(server.ctx, obj, creds)
	server.logger.Debug(logger.TypeRelay, "post finished", session.uuid, outcome.State.String(),
		fmt.Sprintf("posts=%d refreshes=%d", outcome.Posts, outcome.Refreshes))

	// the new tokens belong to the sender alone, even if the retry failed
	if outcome.Refresh != nil {
		session.SendEnvelope(*outcome.Refresh)
	}
	if err != nil {
		server.relayFailed(session, err)
		return
	}

	server.metrics.RelayOutcome(outcome.State.String())
	for _, member := range server.audience(session) {
		member.SendEnvelope(outcome.Response)
	}
}

// relayFailed records a failed relay and, if the session asked for it,
// tells the session.
func (server *Server) relayFailed(session *Session, err error) {
	var remoteErr *relay.RemoteError
	switch {
	case relay.IsAuthenticationError(err):
		server.logger.Warning(logger.TypeRelay, "relay rejected", session.uuid, err.Error())
		server.metrics.RelayOutcome("unauthenticated")
	case errors.Is(err, relay.ErrUndecryptable):
		server.logger.Debug(logger.TypeRelay, "dropping undecryptable response", session.uuid)
		server.metrics.RelayOutcome("undecryptable")
	case errors.As(err, &remoteErr):
		server.logger.Error(logger.TypeRelay, "relay failed", session.uuid, err.Error())
		server.metrics.RelayOutcome("remote-error")
	case errors.Is(err, relay.ErrDisabled):
		server.metrics.RelayOutcome("disabled")
	default:
		server.logger.Error(logger.TypeRelay, "relay failed", session.uuid, err.Error())
		server.metrics.RelayOutcome("failed")
	}

	if session.HasCap(caps.RelayNotify) {
		session.Notice(fmt.Sprintf("*** Message could not be relayed: %v", err))
	}
}
