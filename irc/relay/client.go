// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

// Package relay is the client side of the backend message API: it posts
// encrypted chat envelopes and refreshes bearer tokens when they are rejected.
package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cartisim/relayd/irc/envelope"
)

const (
	postMessagePath = "post-message/"
	accessTokenPath = "auth/access-token"
	fetchKeysPath   = "fetch-keys"

	// maxRetries is the number of refresh-and-retry cycles allowed per post
	maxRetries = 1

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Endpoint names, as reported in RemoteError and to Observe.
const (
	EndpointPost      = "post-message"
	EndpointRefresh   = "access-token"
	EndpointFetchKeys = "fetch-keys"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// TLSConfig carries the client certificate for the backend, if any
	TLSConfig *tls.Config
	// ExpiryLeeway treats access tokens expiring this soon as already expired
	ExpiryLeeway time.Duration
	UserAgent    string
}

// Client talks to the backend message API.
type Client struct {
	baseURL   string
	userAgent string
	leeway    time.Duration
	http      *http.Client
	keyring   *envelope.Keyring

	// Observe, if set, is called after every HTTP round trip; status is 0
	// on transport failure.
	Observe func(endpoint string, status int, elapsed time.Duration)

	now func() time.Time
}

// NewClient returns a client for the API rooted at config.BaseURL.
func NewClient(config Config, keyring *envelope.Keyring) (*Client, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay base-url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid relay base-url scheme: %q", base.Scheme)
	}
	baseURL := base.String()
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLSConfig != nil {
		transport.TLSClientConfig = config.TLSConfig
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "relayd"
	}

	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		leeway:    config.ExpiryLeeway,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		keyring: keyring,
		now:     time.Now,
	}, nil
}

// FetchKeys downloads the key list and installs the last key in the keyring.
func (c *Client) FetchKeys(ctx context.Context) error {
	status, body, err := c.roundTrip(ctx, EndpointFetchKeys, http.MethodGet, c.baseURL+fetchKeysPath, "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &RemoteError{Endpoint: EndpointFetchKeys, StatusCode: status}
	}
	var records []KeyRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return &RemoteError{Endpoint: EndpointFetchKeys, StatusCode: status, Err: err}
	}
	if len(records) == 0 || records[len(records)-1].KeychainEncryptionKey == "" {
		return ErrNoKeys
	}
	return c.keyring.SetSecret(records[len(records)-1].KeychainEncryptionKey)
}

func (c *Client) roundTrip(ctx context.Context, endpoint, method, target, bearer string, body any) (status int, respBody []byte, err error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, &RemoteError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, 0, time.Since(start))
		return 0, nil, &RemoteError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.observe(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return resp.StatusCode, nil, &RemoteError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) observe(endpoint string, status int, elapsed time.Duration) {
	if c.Observe != nil {
		c.Observe(endpoint, status, elapsed)
	}
}

func (c *Client) postURL(sessionID string) string {
	return c.baseURL + postMessagePath + url.PathEscape(sessionID)
}
