// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package envelope

import (
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	SessionID string   `json:"sessionID"`
	Message   string   `json:"message"`
	Count     int      `json:"count"`
	Tags      []string `json:"tags,omitempty"`
}

func TestDeriveKey(t *testing.T) {
	key := DeriveKey("secret")
	// sha256("secret") = 2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b
	assert.Equal(t, []byte("2bb80d537b1da3e38bd30361aa855686"), key)
	assert.Len(t, key, 32)
}

func TestEncryptDecrypt(t *testing.T) {
	keyring, err := NewKeyring("hunter2")
	require.NoError(t, err)

	for _, in := range []payload{
		{},
		{SessionID: "abc", Message: "hello", Count: 3},
		{Message: "ünïcødé ✓", Tags: []string{"a", "b"}},
	} {
		s, err := keyring.Encrypt(in)
		require.NoError(t, err)
		var out payload
		require.True(t, keyring.Decrypt(s, &out))
		assert.Equal(t, in, out)
	}
}

func TestNoncesDiffer(t *testing.T) {
	keyring, _ := NewKeyring("hunter2")
	a, _ := keyring.Encrypt("same")
	b, _ := keyring.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestTamperedCiphertext(t *testing.T) {
	keyring, _ := NewKeyring("hunter2")
	s, err := keyring.Encrypt(payload{Message: "hello"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	var out payload
	assert.False(t, keyring.Decrypt(tampered, &out))
	assert.False(t, keyring.Decrypt("not base64!!", &out))
	assert.False(t, keyring.Decrypt("", &out))
	assert.False(t, keyring.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")), &out))

	other, _ := NewKeyring("a different secret")
	assert.False(t, other.Decrypt(s, &out))
}

func TestWrongShape(t *testing.T) {
	keyring, _ := NewKeyring("hunter2")
	s, _ := keyring.Encrypt([]int{1, 2, 3})
	var out payload
	assert.False(t, keyring.Decrypt(s, &out))
}

func TestNoKey(t *testing.T) {
	keyring, err := NewKeyring("")
	require.NoError(t, err)
	assert.False(t, keyring.HasKey())

	_, err = keyring.Encrypt("x")
	assert.ErrorIs(t, err, ErrNoKey)
	var out string
	assert.False(t, keyring.Decrypt("anything", &out))

	_, err = keyring.Seal("x")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestSealOpen(t *testing.T) {
	keyring, _ := NewKeyring("hunter2")
	obj, err := keyring.Seal(payload{SessionID: "s1"})
	require.NoError(t, err)
	assert.NotEmpty(t, obj.EncryptedObject)

	var out payload
	require.True(t, keyring.Open(obj, &out))
	assert.Equal(t, "s1", out.SessionID)
}

func TestKeyRotation(t *testing.T) {
	keyring, _ := NewKeyring("old")
	before, _ := keyring.Encrypt("message")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := keyring.Encrypt("concurrent")
			if assert.NoError(t, err) {
				var out string
				// either key may be installed at this point
				keyring.Decrypt(s, &out)
			}
		}()
	}
	require.NoError(t, keyring.SetSecret("new"))
	wg.Wait()

	var out string
	assert.False(t, keyring.Decrypt(before, &out))
	after, _ := keyring.Encrypt("message")
	assert.True(t, keyring.Decrypt(after, &out))
	assert.Equal(t, "message", out)
}
