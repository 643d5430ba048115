package library

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shakogegia/noira/internal/api/audiobookshelf"
	"github.com/shakogegia/noira/internal/cache"
	"github.com/shakogegia/noira/internal/credentials"
	"github.com/shakogegia/noira/internal/logger"
	"github.com/shakogegia/noira/internal/models"
)

const (
	// defaultSnapshotTTL bounds how long a fetched book list may serve
	// searches before a refresh is required.
	defaultSnapshotTTL = 5 * time.Minute

	maxSuggestions = 8
)

// Service fetches the selected library's items and publishes them as Books.
// Fetched books live in a TTL cache keyed by library id: an expired entry
// or a switch to another library makes the service report an empty catalog
// until the next fetch. Concurrent fetches are safe to issue but are not
// cancelled, so the last completion wins.
type Service struct {
	store       *credentials.Store
	logger      *logger.Logger
	timeout     time.Duration
	snapshots   cache.Cache[string, []models.Book]
	snapshotTTL time.Duration

	generation atomic.Uint64

	mu      sync.RWMutex
	loading bool
	lastErr error
}

// NewService creates a library service reading connection state from store.
func NewService(store *credentials.Store, timeout time.Duration, log *logger.Logger) *Service {
	return &Service{
		store:       store,
		logger:      log.ForComponent("library"),
		timeout:     timeout,
		snapshots:   cache.NewMemoryCache[string, []models.Book](),
		snapshotTTL: defaultSnapshotTTL,
	}
}

// Fetch retrieves the items of the selected library, rebuilds the book list
// from scratch, and publishes it. The previous error is reset at the start
// of every call. Preconditions are checked in order and the first failure
// is returned without touching the network.
func (s *Service) Fetch(ctx context.Context) error {
	gen := s.generation.Add(1)
	log := s.logger.With().Uint64("generation", gen).Logger()

	s.mu.Lock()
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	creds, err := s.store.Snapshot()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read stored credentials")
		return s.fail(err)
	}

	switch {
	case creds.LibraryID == "":
		return s.fail(ErrNoLibraryID)
	case creds.ServerURL == "":
		return s.fail(ErrNoServerURL)
	case creds.AuthToken == "":
		return s.fail(ErrNoAuthToken)
	}

	if parsed, err := url.ParseRequestURI(creds.ServerURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return s.fail(audiobookshelf.ErrInvalidURL)
	}

	client := audiobookshelf.NewClient(creds.ServerURL, creds.AuthToken, s.timeout)
	resp, err := client.GetLibraryItems(ctx, creds.LibraryID)
	if err != nil {
		log.Warn().Err(err).Str("library_id", creds.LibraryID).Msg("Library fetch failed")
		return s.fail(err)
	}

	books := make([]models.Book, 0, len(resp.Results))
	for _, item := range resp.Results {
		// Non-book items are excluded silently; their presence is not
		// an error.
		if book, ok := models.NewBookFromItem(item, creds.ServerURL); ok {
			books = append(books, book)
		}
	}

	s.snapshots.Set(creds.LibraryID, books, s.snapshotTTL)

	log.Info().Int("books", len(books)).Int("items", len(resp.Results)).Msg("Library refreshed")
	return nil
}

func (s *Service) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// Books returns the fresh snapshot of the currently selected library, or
// an empty list when no fetch succeeded recently enough. The returned
// slice is a copy.
func (s *Service) Books() []models.Book {
	libraryID, err := s.store.Get(credentials.FieldLibraryID)
	if err != nil || libraryID == "" {
		return nil
	}
	books, ok := s.snapshots.Get(libraryID)
	if !ok {
		return nil
	}
	out := make([]models.Book, len(books))
	copy(out, books)
	return out
}

// Err returns the error of the most recent fetch, or nil.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// IsLoading reports whether a fetch is in flight.
func (s *Service) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Search filters the current snapshot by a case-insensitive substring match
// on title, author names, and narrator names. An empty term returns every
// book. Search never refetches; it works on whatever the last successful
// fetch produced.
func (s *Service) Search(term string) []models.Book {
	books := s.Books()

	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return books
	}

	var matches []models.Book
	for _, book := range books {
		if bookMatches(book, term) {
			matches = append(matches, book)
		}
	}
	return matches
}

// Suggestions returns up to eight unique book titles for a search box.
// With an empty term it offers a sample of the catalog; otherwise titles
// containing the term, de-duplicated with order preserved.
func (s *Service) Suggestions(term string) []string {
	books := s.Books()
	term = strings.ToLower(strings.TrimSpace(term))

	seen := make(map[string]struct{})
	var titles []string
	for _, book := range books {
		if term != "" && !strings.Contains(strings.ToLower(book.Title), term) {
			continue
		}
		if _, ok := seen[book.Title]; ok {
			continue
		}
		seen[book.Title] = struct{}{}
		titles = append(titles, book.Title)
		if len(titles) >= maxSuggestions {
			break
		}
	}
	return titles
}

func bookMatches(book models.Book, term string) bool {
	if strings.Contains(strings.ToLower(book.Title), term) {
		return true
	}
	for _, author := range book.Authors {
		if strings.Contains(strings.ToLower(author.Name), term) {
			return true
		}
	}
	for _, narrator := range book.Narrators {
		if strings.Contains(strings.ToLower(narrator), term) {
			return true
		}
	}
	return false
}
