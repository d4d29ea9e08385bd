// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartisim/relayd/irc/envelope"
)

const testSecret = "backend-shared-secret"

// backend is a scripted fake of the message API.
type backend struct {
	sync.Mutex
	t       *testing.T
	keyring *envelope.Keyring

	postStatuses   []int
	refreshStatus  int
	refreshGarbage bool
	newAccessToken string
	posts          int
	refreshes      int
	postTokens     []string
	refreshTokens  []string
	postSessionIDs []string
	keys           []KeyRecord
}

func newBackend(t *testing.T) *backend {
	keyring, err := envelope.NewKeyring(testSecret)
	require.NoError(t, err)
	return &backend{t: t, keyring: keyring, refreshStatus: http.StatusOK, newAccessToken: "fresh-access"}
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) {
		return h[len(prefix):]
	}
	return ""
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.Lock()
	defer b.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/fetch-keys":
		json.NewEncoder(w).Encode(b.keys)

	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/access-token":
		b.refreshes++
		b.refreshTokens = append(b.refreshTokens, bearer(r))
		if b.refreshStatus != http.StatusOK {
			w.WriteHeader(b.refreshStatus)
			return
		}
		if b.refreshGarbage {
			json.NewEncoder(w).Encode(envelope.Object{EncryptedObject: "garbage"})
			return
		}
		obj, err := b.keyring.Seal(TokenPair{AccessToken: b.newAccessToken})
		require.NoError(b.t, err)
		json.NewEncoder(w).Encode(obj)

	case r.Method == http.MethodPost && len(r.URL.Path) > len("/api/post-message/"):
		b.posts++
		b.postTokens = append(b.postTokens, bearer(r))
		b.postSessionIDs = append(b.postSessionIDs, r.URL.Path[len("/api/post-message/"):])

		var in envelope.Object
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&in))
		var data MessageData
		require.True(b.t, b.keyring.Open(in, &data), "backend could not open the relayed envelope")

		status := http.StatusOK
		if b.posts <= len(b.postStatuses) {
			status = b.postStatuses[b.posts-1]
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		obj, err := b.keyring.Seal(MessageResponse{
			ContactID:     data.ContactID,
			Name:          data.Name,
			Message:       data.Message,
			ChatSessionID: data.ChatSessionID,
		})
		require.NoError(b.t, err)
		json.NewEncoder(w).Encode(obj)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func str(s string) *string { return &s }

func setup(t *testing.T, b *backend) (*Client, envelope.Object, Credentials) {
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)

	keyring, err := envelope.NewKeyring(testSecret)
	require.NoError(t, err)
	client, err := NewClient(Config{BaseURL: server.URL + "/api", Timeout: 5 * time.Second}, keyring)
	require.NoError(t, err)

	data := MessageData{
		SessionID:     "session 1",
		AccessToken:   str("stale-access"),
		RefreshToken:  str("refresh-1"),
		ContactID:     "contact-1",
		Name:          "Alice",
		Message:       "hello",
		ChatSessionID: "chat-1",
	}
	env, err := keyring.Seal(data)
	require.NoError(t, err)
	return client, env, data.Credentials()
}

func TestPostSuccess(t *testing.T) {
	b := newBackend(t)
	client, env, creds := setup(t, b)

	outcome, err := client.Post(context.Background(), env, creds)
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, "hello", outcome.Message.Message)
	assert.Equal(t, "chat-1", outcome.Message.ChatSessionID)
	assert.NotEmpty(t, outcome.Response.EncryptedObject)
	assert.Nil(t, outcome.Refresh)
	assert.Equal(t, 1, outcome.Posts)
	assert.Equal(t, 0, outcome.Refreshes)

	assert.Equal(t, []string{"stale-access"}, b.postTokens)
	assert.Equal(t, []string{"session 1"}, b.postSessionIDs)
}

func TestPostRefreshThenSuccess(t *testing.T) {
	b := newBackend(t)
	b.postStatuses = []int{http.StatusUnauthorized}
	client, env, creds := setup(t, b)

	outcome, err := client.Post(context.Background(), env, creds)
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	require.NotNil(t, outcome.Refresh)
	require.NotNil(t, outcome.Tokens)
	assert.Equal(t, "fresh-access", outcome.Tokens.AccessToken)
	assert.Equal(t, 2, b.posts)
	assert.Equal(t, 1, b.refreshes)
	assert.Equal(t, []string{"stale-access", "fresh-access"}, b.postTokens)
	assert.Equal(t, []string{"refresh-1"}, b.refreshTokens)
}

func TestRetryBound(t *testing.T) {
	b := newBackend(t)
	b.postStatuses = []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusUnauthorized}
	client, env, creds := setup(t, b)

	outcome, err := client.Post(context.Background(), env, creds)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote), "expected RemoteError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
	assert.Equal(t, EndpointPost, remote.Endpoint)
	assert.Equal(t, StateFailed, outcome.State)

	// exactly two posts and one refresh; never a third attempt
	assert.Equal(t, 2, b.posts)
	assert.Equal(t, 1, b.refreshes)
	assert.Equal(t, 2, outcome.Posts)
	assert.Equal(t, 1, outcome.Refreshes)
	// the refresh response is still reported so the sender can get it
	assert.NotNil(t, outcome.Refresh)
}

func TestMissingRefreshToken(t *testing.T) {
	b := newBackend(t)
	b.postStatuses = []int{http.StatusUnauthorized}
	client, env, creds := setup(t, b)
	creds.RefreshToken = ""

	_, err := client.Post(context.Background(), env, creds)
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
	assert.True(t, IsAuthenticationError(err))
	assert.Equal(t, 1, b.posts)
	assert.Equal(t, 0, b.refreshes)
}

func TestMissingAccessToken(t *testing.T) {
	b := newBackend(t)
	client, env, creds := setup(t, b)
	creds.AccessToken = ""

	_, err := client.Post(context.Background(), env, creds)
	assert.ErrorIs(t, err, ErrAccessTokenNotFound)
	assert.Equal(t, 0, b.posts)
}

func TestRefreshFailure(t *testing.T) {
	b := newBackend(t)
	b.postStatuses = []int{http.StatusUnauthorized}
	b.refreshStatus = http.StatusForbidden
	client, env, creds := setup(t, b)

	_, err := client.Post(context.Background(), env, creds)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, EndpointRefresh, remote.Endpoint)
	assert.Equal(t, http.StatusForbidden, remote.StatusCode)
	assert.Equal(t, 1, b.posts)
}

func TestUndecryptableRefresh(t *testing.T) {
	b := newBackend(t)
	b.postStatuses = []int{http.StatusUnauthorized}
	b.refreshGarbage = true
	client, env, creds := setup(t, b)

	_, err := client.Post(context.Background(), env, creds)
	assert.ErrorIs(t, err, ErrUndecryptable)
	assert.Equal(t, 1, b.posts)
}

func TestOtherStatusIsTerminal(t *testing.T) {
	b := newBackend(t)
	b.postStatuses = []int{http.StatusInternalServerError}
	client, env, creds := setup(t, b)

	_, err := client.Post(context.Background(), env, creds)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusInternalServerError, remote.StatusCode)
	assert.Equal(t, 1, b.posts)
	assert.Equal(t, 0, b.refreshes)
}

func TestExpiredAccessTokenRefreshesFirst(t *testing.T) {
	b := newBackend(t)
	b.postStatuses = []int{http.StatusUnauthorized}
	client, env, creds := setup(t, b)

	expired, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	creds.AccessToken = expired

	_, err = client.Post(context.Background(), env, creds)
	// the up-front refresh used the only retry, so the 401 is final
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, 1, b.refreshes)
	assert.Equal(t, 1, b.posts)
	assert.Equal(t, []string{"fresh-access"}, b.postTokens)
}

func TestNetworkFailure(t *testing.T) {
	b := newBackend(t)
	server := httptest.NewServer(b)
	url := server.URL
	server.Close()

	keyring, _ := envelope.NewKeyring(testSecret)
	client, err := NewClient(Config{BaseURL: url}, keyring)
	require.NoError(t, err)

	var observed []int
	client.Observe = func(endpoint string, status int, elapsed time.Duration) {
		observed = append(observed, status)
	}

	env, _ := keyring.Seal(MessageData{SessionID: "s"})
	_, err = client.Post(context.Background(), env, Credentials{SessionID: "s", AccessToken: "a"})
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Error(t, remote.Err)
	assert.Equal(t, []int{0}, observed)
}

func TestFetchKeys(t *testing.T) {
	b := newBackend(t)
	b.keys = []KeyRecord{{KeychainEncryptionKey: "old"}, {KeychainEncryptionKey: testSecret}}
	server := httptest.NewServer(b)
	defer server.Close()

	keyring, _ := envelope.NewKeyring("")
	client, err := NewClient(Config{BaseURL: server.URL + "/api/"}, keyring)
	require.NoError(t, err)

	require.NoError(t, client.FetchKeys(context.Background()))
	require.True(t, keyring.HasKey())

	// the last key was installed: the backend can read what we seal
	obj, err := keyring.Seal(TokenPair{AccessToken: "x"})
	require.NoError(t, err)
	var pair TokenPair
	assert.True(t, b.keyring.Open(obj, &pair))

	b.keys = nil
	assert.ErrorIs(t, client.FetchKeys(context.Background()), ErrNoKeys)
}

func TestNewClientValidation(t *testing.T) {
	keyring, _ := envelope.NewKeyring("")
	_, err := NewClient(Config{BaseURL: "ftp://example.com"}, keyring)
	assert.Error(t, err)
	_, err = NewClient(Config{BaseURL: "://"}, keyring)
	assert.Error(t, err)
}
