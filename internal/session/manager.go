package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shakogegia/noira/internal/api/audiobookshelf"
	"github.com/shakogegia/noira/internal/credentials"
	"github.com/shakogegia/noira/internal/logger"
)

// State is the authentication state of the session.
type State int

const (
	// Unauthenticated is the initial state.
	Unauthenticated State = iota
	// Authenticating is entered for the duration of a login or an
	// in-flight validation.
	Authenticating
	// Authenticated means a complete credential set is stored.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Manager owns the session state machine. It is the only writer of session
// state and of the credential store; observers read through the accessors.
type Manager struct {
	store   *credentials.Store
	logger  *logger.Logger
	timeout time.Duration

	mu          sync.RWMutex
	state       State
	currentUser string
	loading     bool
}

// NewManager creates a session manager in the Unauthenticated state.
// Call CheckAuthentication to restore a persisted session.
func NewManager(store *credentials.Store, timeout time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		store:   store,
		logger:  log.ForComponent("session"),
		timeout: timeout,
		state:   Unauthenticated,
	}
}

// CheckAuthentication restores the session from stored credentials. When
// server URL, username, and token are all present it transitions to
// Authenticated optimistically and returns true immediately; the token is
// then validated against the server in the background, and a rejected token
// logs the session out. Incomplete credentials leave the session
// Unauthenticated.
func (m *Manager) CheckAuthentication(ctx context.Context) bool {
	creds, err := m.store.Snapshot()
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to read stored credentials")
	}

	if !creds.Complete() {
		m.mu.Lock()
		m.state = Unauthenticated
		m.currentUser = ""
		m.mu.Unlock()
		return false
	}

	m.mu.Lock()
	m.state = Authenticated
	m.currentUser = creds.Username
	m.mu.Unlock()

	m.logger.Debug().Str("username", creds.Username).Msg("Restored session, validating token in background")

	// Detached from the caller: the optimistic result above is returned
	// synchronously, the validation outcome is applied whenever it lands.
	go func() {
		if !m.ValidateToken(context.Background()) {
			m.logger.Info().Msg("Stored token rejected by server, logging out")
			m.Logout()
		}
	}()

	return true
}

// Login authenticates against the server and persists the resulting
// credentials. The server URL is normalized before use, so a stored URL
// never carries a trailing slash. Exactly one terminal result is produced
// per call and the loading flag is reset on every path.
func (m *Manager) Login(ctx context.Context, serverURL, username, password string) error {
	m.mu.Lock()
	m.loading = true
	m.state = Authenticating
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
	}()

	normalized := audiobookshelf.NormalizeServerURL(serverURL)
	client := audiobookshelf.NewClient(normalized, "", m.timeout)

	resp, err := client.Login(ctx, username, password)
	if err != nil {
		m.mu.Lock()
		m.state = Unauthenticated
		m.mu.Unlock()
		m.logger.Warn().Err(err).Str("server", normalized).Msg("Login failed")
		return err
	}

	if err := m.persistCredentials(normalized, resp.User.Username, resp.User.AuthToken(), resp.UserDefaultLibraryID); err != nil {
		m.mu.Lock()
		m.state = Unauthenticated
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.state = Authenticated
	m.currentUser = resp.User.Username
	m.mu.Unlock()

	m.logger.Info().Str("username", resp.User.Username).Str("server", normalized).Msg("Logged in")
	return nil
}

func (m *Manager) persistCredentials(serverURL, username, token, libraryID string) error {
	fields := []struct {
		field credentials.Field
		value string
	}{
		{credentials.FieldServerURL, serverURL},
		{credentials.FieldUsername, username},
		{credentials.FieldAuthToken, token},
		{credentials.FieldLibraryID, libraryID},
	}
	for _, f := range fields {
		if err := m.store.Set(f.field, f.value); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}
	return nil
}

// Logout clears the credential store and resets the session. It always
// succeeds from the caller's point of view; a store-level partial failure
// is logged, not surfaced.
func (m *Manager) Logout() {
	if err := m.store.Clear(); err != nil {
		m.logger.Error().Err(err).Msg("Failed to fully clear credentials on logout")
	}

	m.mu.Lock()
	m.state = Unauthenticated
	m.currentUser = ""
	m.mu.Unlock()

	m.logger.Info().Msg("Logged out")
}

// ValidateToken checks the stored token against the server. The check fails
// open: only an authoritative 401 reports false.
func (m *Manager) ValidateToken(ctx context.Context) bool {
	creds, err := m.store.Snapshot()
	if err != nil || creds.ServerURL == "" {
		// Without a reachable server there is nothing authoritative to
		// say; fail open like any other ambiguous outcome.
		return true
	}

	client := audiobookshelf.NewClient(creds.ServerURL, creds.AuthToken, m.timeout)
	return client.ValidateToken(ctx)
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsAuthenticated reports whether the session is authenticated.
func (m *Manager) IsAuthenticated() bool {
	return m.State() == Authenticated
}

// CurrentUser returns the authenticated username, or "".
func (m *Manager) CurrentUser() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentUser
}

// IsLoading reports whether a login is in flight.
func (m *Manager) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}
