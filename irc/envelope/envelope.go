// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

// Package envelope implements the encrypted JSON envelope shared by relay
// clients, this server and the backend API.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/cartisim/relayd/irc/utils"
)

var (
	ErrNoKey = errors.New("no envelope key is installed")
)

// Object is the wire form of an envelope.
type Object struct {
	EncryptedObject string `json:"encryptedObject"`
}

// DeriveKey turns a shared secret into AES-256 key material: the first 32
// characters of the lowercase hex SHA-256 of the secret, used as raw bytes.
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return []byte(hex.EncodeToString(sum[:])[:32])
}

type installedKey struct {
	aead cipher.AEAD
}

// Keyring holds the process-wide envelope key. Installing a new secret
// swaps the key atomically; concurrent users see either the old or the new key.
type Keyring struct {
	key utils.ConfigStore[installedKey]
}

// NewKeyring returns a keyring; an empty secret leaves it without a key.
func NewKeyring(secret string) (*Keyring, error) {
	k := new(Keyring)
	if secret != "" {
		if err := k.SetSecret(secret); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// SetSecret derives and installs the key for `secret`.
func (k *Keyring) SetSecret(secret string) error {
	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	k.key.Set(&installedKey{aead: aead})
	return nil
}

func (k *Keyring) HasKey() bool {
	return k.key.Get() != nil
}

// Encrypt marshals v to JSON, seals it with a fresh nonce and returns
// base64(nonce || ciphertext || tag).
func (k *Keyring) Encrypt(v any) (string, error) {
	key := k.key.Get()
	if key == nil {
		return "", ErrNoKey
	}
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, key.aead.NonceSize(), key.aead.NonceSize()+len(plaintext)+key.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := key.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt into v. It reports false on any failure
// (no key, bad base64, authentication failure, bad JSON); callers drop the
// message in that case.
func (k *Keyring) Decrypt(s string, v any) bool {
	key := k.key.Get()
	if key == nil {
		return false
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	nonceSize := key.aead.NonceSize()
	if len(data) < nonceSize+key.aead.Overhead() {
		return false
	}
	plaintext, err := key.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return false
	}
	return json.Unmarshal(plaintext, v) == nil
}

// Seal encrypts v into an envelope.
func (k *Keyring) Seal(v any) (Object, error) {
	s, err := k.Encrypt(v)
	if err != nil {
		return Object{}, err
	}
	return Object{EncryptedObject: s}, nil
}

// Open decrypts an envelope into v.
func (k *Keyring) Open(obj Object, v any) bool {
	return k.Decrypt(obj.EncryptedObject, v)
}
