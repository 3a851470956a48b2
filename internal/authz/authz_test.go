package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestOrganizer(t *testing.T, store OrganizerStore, caps ...Capability) (*Organizer, string) {
	t.Helper()
	secret, err := GenerateKeySecret()
	require.NoError(t, err)
	hash, err := HashKeySecret(secret)
	require.NoError(t, err)

	organizer := &Organizer{
		Name:         "Board Member",
		Email:        "board@example.org",
		KeyID:        "board",
		KeyHash:      hash,
		Capabilities: caps,
	}
	require.NoError(t, store.Save(context.Background(), organizer))
	return organizer, "board." + secret
}

func TestKeySecretRoundTrip(t *testing.T) {
	secret, err := GenerateKeySecret()
	require.NoError(t, err)

	hash, err := HashKeySecret(secret)
	require.NoError(t, err)

	require.NoError(t, VerifyKeySecret(secret, hash))
	require.Error(t, VerifyKeySecret("wrong", hash))
}

func TestCapabilityAuthorizer(t *testing.T) {
	auth := CapabilityAuthorizer{}
	organizer := &Organizer{Capabilities: []Capability{CapGetParticipants}}

	require.True(t, auth.HasAccess(context.Background(), organizer, CapGetParticipants))
	require.False(t, auth.HasAccess(context.Background(), organizer, CapWriteEmail))
	require.False(t, auth.HasAccess(context.Background(), nil, CapGetParticipants))
}

func TestAuthenticateAndRequire(t *testing.T) {
	store := NewInMemoryStore()
	_, apiKey := newTestOrganizer(t, store, CapGetParticipants)

	var seen *Organizer
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Authenticate(store)(Require(CapabilityAuthorizer{}, CapGetParticipants)(inner))

	t.Run("valid key with capability passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/participants", nil)
		req.Header.Set("Authorization", "Bearer "+apiKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		require.Equal(t, "board", seen.KeyID)
	})

	t.Run("anonymous request is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/participants", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/participants", nil)
		req.Header.Set("Authorization", "Bearer board.wrong-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing capability is forbidden", func(t *testing.T) {
		mailOnly := Authenticate(store)(Require(CapabilityAuthorizer{}, CapWriteEmail)(inner))
		req := httptest.NewRequest(http.MethodGet, "/participants", nil)
		req.Header.Set("Authorization", "Bearer "+apiKey)
		rec := httptest.NewRecorder()
		mailOnly.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}
