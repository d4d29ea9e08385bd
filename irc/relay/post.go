// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package relay

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cartisim/relayd/irc/envelope"
	"github.com/cartisim/relayd/irc/jwt"
)

// State is a step of the post state machine.
type State uint8

const (
	StatePosting State = iota
	StateRefreshing
	StateRetrying
	StateFailed
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePosting:
		return "posting"
	case StateRefreshing:
		return "refreshing"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome is everything a post produced, including on failure.
type Outcome struct {
	State State
	// Response is the envelope returned by a successful post
	Response envelope.Object
	// Message is Response, decrypted
	Message MessageResponse
	// Refresh is the envelope returned by the token refresh, when one happened
	Refresh *envelope.Object
	// Tokens is Refresh, decrypted
	Tokens *TokenPair
	// Posts and Refreshes count the HTTP requests made
	Posts     int
	Refreshes int
	Retries   int
}

// Post relays an envelope for creds.SessionID. A 401 triggers one refresh
// with creds.RefreshToken followed by one retry with the new access token;
// at most 2 posts and 1 refresh are made. A JWT access token that has
// already expired is refreshed up front, which uses up that single retry:
// the bound is then 1 post and 1 refresh.
func (c *Client) Post(ctx context.Context, env envelope.Object, creds Credentials) (outcome Outcome, err error) {
	if creds.AccessToken == "" {
		outcome.State = StateFailed
		return outcome, ErrAccessTokenNotFound
	}

	access := creds.AccessToken
	state := StatePosting
	if creds.RefreshToken != "" && jwt.Expired(access, c.now(), c.leeway) {
		state = StateRefreshing
	}

	fail := func(e error) (Outcome, error) {
		outcome.State = StateFailed
		return outcome, e
	}

	for {
		outcome.State = state
		switch state {
		case StatePosting, StateRetrying:
			outcome.Posts++
			status, body, err := c.roundTrip(ctx, EndpointPost, http.MethodPost, c.postURL(creds.SessionID), access, env)
			if err != nil {
				return fail(err)
			}
			switch status {
			case http.StatusOK:
				if !c.openBody(body, &outcome.Response, &outcome.Message) {
					return fail(ErrUndecryptable)
				}
				state = StateDone
			case http.StatusUnauthorized:
				if outcome.Retries >= maxRetries {
					return fail(&RemoteError{Endpoint: EndpointPost, StatusCode: status})
				}
				if creds.RefreshToken == "" {
					return fail(ErrRefreshTokenNotFound)
				}
				state = StateRefreshing
			default:
				return fail(&RemoteError{Endpoint: EndpointPost, StatusCode: status})
			}

		case StateRefreshing:
			outcome.Retries++
			outcome.Refreshes++
			status, body, err := c.roundTrip(ctx, EndpointRefresh, http.MethodPost, c.baseURL+accessTokenPath, creds.RefreshToken, env)
			if err != nil {
				return fail(err)
			}
			if status != http.StatusOK {
				return fail(&RemoteError{Endpoint: EndpointRefresh, StatusCode: status})
			}
			var refresh envelope.Object
			var tokens TokenPair
			if !c.openBody(body, &refresh, &tokens) || tokens.AccessToken == "" {
				return fail(ErrUndecryptable)
			}
			outcome.Refresh = &refresh
			outcome.Tokens = &tokens
			access = tokens.AccessToken
			state = StateRetrying

		case StateDone:
			return outcome, nil
		}
	}
}

// openBody decodes an envelope from a response body and decrypts it into v.
func (c *Client) openBody(body []byte, obj *envelope.Object, v any) bool {
	if err := json.Unmarshal(body, obj); err != nil || obj.EncryptedObject == "" {
		return false
	}
	return c.keyring.Open(*obj, v)
}
