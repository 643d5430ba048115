package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakogegia/noira/internal/api/audiobookshelf"
	"github.com/shakogegia/noira/internal/credentials"
	"github.com/shakogegia/noira/internal/crypto"
	"github.com/shakogegia/noira/internal/database"
	"github.com/shakogegia/noira/internal/logger"
	"github.com/shakogegia/noira/internal/models"
)

func testStore(t *testing.T) *credentials.Store {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "noira.db"), logger.Get())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	enc, err := crypto.NewEncryptorWithKey(crypto.DeriveKeyFromPassword("test"), logger.Get())
	require.NoError(t, err)

	store, err := credentials.NewStore(db, enc, logger.Get())
	require.NoError(t, err)
	return store
}

func seedStore(t *testing.T, store *credentials.Store, serverURL, username, token, libraryID string) {
	t.Helper()
	require.NoError(t, store.Set(credentials.FieldServerURL, serverURL))
	require.NoError(t, store.Set(credentials.FieldUsername, username))
	require.NoError(t, store.Set(credentials.FieldAuthToken, token))
	require.NoError(t, store.Set(credentials.FieldLibraryID, libraryID))
}

func loginHandler(t *testing.T, token string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		json.NewEncoder(w).Encode(models.LoginResponse{
			User: models.User{
				ID:       "user-1",
				Username: "shalva",
				Token:    token,
			},
			UserDefaultLibraryID: "lib-1",
		})
	}
}

func TestCheckAuthenticationMissingFields(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		username  string
		token     string
	}{
		{"all missing", "", "", ""},
		{"no server url", "", "shalva", "tok"},
		{"no username", "http://abs.local", "", "tok"},
		{"no token", "http://abs.local", "shalva", ""},
		{"only token", "", "", "tok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testStore(t)
			if tt.serverURL != "" {
				require.NoError(t, store.Set(credentials.FieldServerURL, tt.serverURL))
			}
			if tt.username != "" {
				require.NoError(t, store.Set(credentials.FieldUsername, tt.username))
			}
			if tt.token != "" {
				require.NoError(t, store.Set(credentials.FieldAuthToken, tt.token))
			}

			m := NewManager(store, 0, logger.Get())
			assert.False(t, m.CheckAuthentication(context.Background()))
			assert.Equal(t, Unauthenticated, m.State())
			assert.Empty(t, m.CurrentUser())
		})
	}
}

func TestCheckAuthenticationOptimistic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := testStore(t)
	seedStore(t, store, server.URL, "shalva", "tok-123", "lib-1")

	m := NewManager(store, 0, logger.Get())
	assert.True(t, m.CheckAuthentication(context.Background()))
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "shalva", m.CurrentUser())
}

func TestCheckAuthenticationBackgroundRejectionLogsOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store := testStore(t)
	seedStore(t, store, server.URL, "shalva", "stale-token", "lib-1")

	m := NewManager(store, 0, logger.Get())
	assert.True(t, m.CheckAuthentication(context.Background()), "optimistic result is synchronous")

	assert.Eventually(t, func() bool {
		return !m.IsAuthenticated()
	}, 2*time.Second, 10*time.Millisecond, "rejected token must log the session out")

	creds, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, credentials.Credentials{}, creds)
}

func TestCheckAuthenticationBackgroundFailOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := testStore(t)
	seedStore(t, store, server.URL, "shalva", "tok-123", "lib-1")

	m := NewManager(store, 0, logger.Get())
	assert.True(t, m.CheckAuthentication(context.Background()))

	// A flaky server must not evict the session.
	time.Sleep(200 * time.Millisecond)
	assert.True(t, m.IsAuthenticated())
}

func TestLoginSuccessPersistsAndNormalizes(t *testing.T) {
	server := httptest.NewServer(loginHandler(t, "tok-123"))
	defer server.Close()

	store := testStore(t)
	m := NewManager(store, 0, logger.Get())

	// Trailing slash must be stripped before the URL is stored.
	err := m.Login(context.Background(), server.URL+"/", "shalva", "hunter2")
	require.NoError(t, err)

	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "shalva", m.CurrentUser())
	assert.False(t, m.IsLoading())

	creds, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, server.URL, creds.ServerURL)
	assert.Equal(t, "shalva", creds.Username)
	assert.Equal(t, "tok-123", creds.AuthToken)
	assert.Equal(t, "lib-1", creds.LibraryID)
}

func TestLoginPrefersTokenOverAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.LoginResponse{
			User: models.User{
				Username:    "shalva",
				AccessToken: "access-only",
			},
			UserDefaultLibraryID: "lib-1",
		})
	}))
	defer server.Close()

	store := testStore(t)
	m := NewManager(store, 0, logger.Get())
	require.NoError(t, m.Login(context.Background(), server.URL, "shalva", "hunter2"))

	token, err := store.Get(credentials.FieldAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "access-only", token)
}

func TestLoginInvalidCredentialsDoesNotTouchStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store := testStore(t)
	m := NewManager(store, 0, logger.Get())

	err := m.Login(context.Background(), server.URL, "shalva", "wrong")
	assert.ErrorIs(t, err, audiobookshelf.ErrInvalidCredentials)
	assert.False(t, m.IsAuthenticated())
	assert.False(t, m.IsLoading())

	creds, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, credentials.Credentials{}, creds)
}

func TestLoginNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	store := testStore(t)
	m := NewManager(store, 0, logger.Get())

	err := m.Login(context.Background(), server.URL, "shalva", "hunter2")
	var netErr *audiobookshelf.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.False(t, m.IsAuthenticated())
	assert.False(t, m.IsLoading())
}

func TestLogoutIsIdempotent(t *testing.T) {
	server := httptest.NewServer(loginHandler(t, "tok-123"))
	defer server.Close()

	store := testStore(t)
	m := NewManager(store, 0, logger.Get())
	require.NoError(t, m.Login(context.Background(), server.URL, "shalva", "hunter2"))

	m.Logout()
	m.Logout()

	assert.False(t, m.IsAuthenticated())
	assert.Empty(t, m.CurrentUser())

	creds, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, credentials.Credentials{}, creds)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
	assert.Equal(t, "authenticating", Authenticating.String())
	assert.Equal(t, "authenticated", Authenticated.String())
}
