// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modmesh/internal/message"
)

func validCredentials() map[string]any {
	return map[string]any{
		"api_key":        "test-key",
		"component_type": "router",
	}
}

func TestAuthenticate_valid_credentials(t *testing.T) {
	g := NewGate()
	err := g.Authenticate("router-1", validCredentials())
	require.NoError(t, err)
	assert.True(t, g.Authenticated("router-1"))
}

func TestAuthenticate_missing_fields(t *testing.T) {
	tests := []struct {
		name        string
		credentials map[string]any
		wantErr     error
	}{
		{
			name:        "no api_key",
			credentials: map[string]any{"component_type": "router"},
			wantErr:     ErrMissingAPIKey,
		},
		{
			name:        "empty api_key",
			credentials: map[string]any{"api_key": "", "component_type": "router"},
			wantErr:     ErrMissingAPIKey,
		},
		{
			name:        "no component_type",
			credentials: map[string]any{"api_key": "k"},
			wantErr:     ErrMissingComponentType,
		},
		{
			name:        "api_key wrong type",
			credentials: map[string]any{"api_key": 42, "component_type": "router"},
			wantErr:     ErrMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate()
			err := g.Authenticate("c1", tt.credentials)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, g.Authenticated("c1"))
		})
	}
}

func TestAuthenticate_shared_key(t *testing.T) {
	g := NewGate(WithSharedKey("secret"))

	creds := validCredentials()
	creds["api_key"] = "wrong"
	assert.ErrorIs(t, g.Authenticate("c1", creds), ErrInvalidAPIKey)

	creds["api_key"] = "secret"
	assert.NoError(t, g.Authenticate("c1", creds))
}

func TestAuthorize_requires_authentication(t *testing.T) {
	g := NewGate()
	err := g.Authorize("ghost", message.PriorityNormal)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthorize_sliding_window(t *testing.T) {
	g := NewGate(WithRateLimiter(NewRateLimiter(3, 200*time.Millisecond)))
	require.NoError(t, g.Authenticate("c1", validCredentials()))

	for i := 0; i < 3; i++ {
		assert.NoError(t, g.Authorize("c1", message.PriorityNormal), "request %d", i+1)
	}
	assert.ErrorIs(t, g.Authorize("c1", message.PriorityNormal), ErrRateLimited)

	// A new window admits the same source again.
	time.Sleep(250 * time.Millisecond)
	assert.NoError(t, g.Authorize("c1", message.PriorityNormal))
}

func TestAuthorize_window_is_per_source(t *testing.T) {
	g := NewGate(WithRateLimiter(NewRateLimiter(1, time.Minute)))
	require.NoError(t, g.Authenticate("c1", validCredentials()))
	require.NoError(t, g.Authenticate("c2", validCredentials()))

	assert.NoError(t, g.Authorize("c1", message.PriorityNormal))
	assert.ErrorIs(t, g.Authorize("c1", message.PriorityNormal), ErrRateLimited)
	assert.NoError(t, g.Authorize("c2", message.PriorityNormal))
}

func TestAuthorize_critical_requires_permission(t *testing.T) {
	g := NewGate()
	require.NoError(t, g.Authenticate("plain", validCredentials()))

	creds := validCredentials()
	creds["permissions"] = []string{PermCriticalOperations}
	require.NoError(t, g.Authenticate("privileged", creds))

	assert.ErrorIs(t, g.Authorize("plain", message.PriorityCritical), ErrPermissionDenied)
	assert.NoError(t, g.Authorize("plain", message.PriorityHigh))
	assert.NoError(t, g.Authorize("privileged", message.PriorityCritical))
}

func TestAuthorize_permissions_from_json(t *testing.T) {
	// Credentials decoded from JSON carry []any, not []string.
	g := NewGate()
	creds := validCredentials()
	creds["permissions"] = []any{PermCriticalOperations}
	require.NoError(t, g.Authenticate("c1", creds))
	assert.NoError(t, g.Authorize("c1", message.PriorityCritical))
}

func TestRevoke(t *testing.T) {
	g := NewGate()
	require.NoError(t, g.Authenticate("c1", validCredentials()))
	require.NoError(t, g.Authorize("c1", message.PriorityNormal))

	g.Revoke("c1")
	assert.ErrorIs(t, g.Authorize("c1", message.PriorityNormal), ErrNotAuthenticated)
}

func TestEncrypt_passthrough_without_cipher(t *testing.T) {
	g := NewGate()
	payload := []byte(`{"text":"hello"}`)

	out, err := g.Encrypt(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	back, err := g.Decrypt(out)
	require.NoError(t, err)
	assert.Equal(t, payload, back)
}

func TestEncrypt_round_trip(t *testing.T) {
	c, err := NewAESCipher("test-passphrase")
	require.NoError(t, err)
	g := NewGate(WithCipher(c))

	payload := []byte(`{"text":"classified"}`)
	sealed, err := g.Encrypt(payload)
	require.NoError(t, err)
	assert.NotEqual(t, payload, sealed)
	assert.Contains(t, string(sealed), `"encrypted":true`)

	back, err := g.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, back)
}

func TestDecrypt_encrypted_without_cipher(t *testing.T) {
	c, err := NewAESCipher("test-passphrase")
	require.NoError(t, err)
	sender := NewGate(WithCipher(c))

	sealed, err := sender.Encrypt([]byte("secret"))
	require.NoError(t, err)

	receiver := NewGate()
	_, err = receiver.Decrypt(sealed)
	assert.Error(t, err)
}

func TestDecrypt_wrong_passphrase(t *testing.T) {
	c1, err := NewAESCipher("alpha")
	require.NoError(t, err)
	c2, err := NewAESCipher("beta")
	require.NoError(t, err)

	sealed, err := NewGate(WithCipher(c1)).Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = NewGate(WithCipher(c2)).Decrypt(sealed)
	assert.Error(t, err)
}

func TestAESCipher_truncated_ciphertext(t *testing.T) {
	c, err := NewAESCipher("alpha")
	require.NoError(t, err)
	_, err = c.Decrypt([]byte("AAAA"))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}
