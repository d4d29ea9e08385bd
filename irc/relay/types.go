// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package relay

// MessageData is the decrypted payload a client sends for relaying.
type MessageData struct {
	SessionID     string  `json:"sessionID"`
	AccessToken   *string `json:"accessToken,omitempty"`
	RefreshToken  *string `json:"refreshToken,omitempty"`
	Avatar        *string `json:"avatar,omitempty"`
	ContactID     string  `json:"contactID"`
	Name          string  `json:"name"`
	Message       string  `json:"message"`
	ChatSessionID string  `json:"chatSessionID"`
}

// Credentials extracts what Post needs from the payload.
func (m *MessageData) Credentials() Credentials {
	creds := Credentials{SessionID: m.SessionID}
	if m.AccessToken != nil {
		creds.AccessToken = *m.AccessToken
	}
	if m.RefreshToken != nil {
		creds.RefreshToken = *m.RefreshToken
	}
	return creds
}

// MessageResponse is the decrypted body of a successful post.
type MessageResponse struct {
	Avatar        *string `json:"avatar,omitempty"`
	ContactID     string  `json:"contactID"`
	Name          string  `json:"name"`
	Message       string  `json:"message"`
	ChatSessionID string  `json:"chatSessionID"`
}

// TokenPair is the decrypted body of a successful refresh.
type TokenPair struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken *string `json:"refreshToken,omitempty"`
}

// KeyRecord is one element of the fetch-keys response.
type KeyRecord struct {
	KeychainEncryptionKey string `json:"keychainEncryptionKey"`
}

// Credentials authorize one post.
type Credentials struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
}
