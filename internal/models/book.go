package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaTypeBook is the only media type the library client keeps.
const MediaTypeBook = "book"

// Author is a display author derived from the item's authorName field.
// The server does not expose author ids on the items endpoint, so ids are
// synthesized from the item id and the author's position.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Book is the canonical in-memory representation of an audiobook. A Book is
// immutable once constructed; refreshes build new values instead of mutating.
type Book struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Authors       []Author   `json:"authors"`
	Narrators     []string   `json:"narrators"`
	Genres        []string   `json:"genres"`
	Description   string     `json:"description"`
	Duration      float64    `json:"duration"` // seconds
	CoverImageURL string     `json:"coverPath,omitempty"`
	Progress      float64    `json:"progress"` // 0.0 to 1.0
	LastPlayedAt  *time.Time `json:"lastPlayed,omitempty"`
}

// NewBookFromItem maps a server library item to a Book. It returns false
// when the item is not a book and must be excluded from the result set.
func NewBookFromItem(item LibraryItem, serverURL string) (Book, bool) {
	if item.MediaType != MediaTypeBook {
		return Book{}, false
	}

	meta := item.Media.Metadata

	authors := []Author{}
	for i, name := range splitNames(meta.AuthorName) {
		authors = append(authors, Author{
			ID:   fmt.Sprintf("%s_author_%d", item.ID, i),
			Name: name,
		})
	}

	genres := []string{}
	for _, genre := range meta.Genres {
		if strings.TrimSpace(genre) != "" {
			genres = append(genres, genre)
		}
	}

	duration := item.Media.Duration
	if duration < 0 {
		duration = 0
	}

	// The cover endpoint only depends on the item id; the stored coverPath
	// value is consulted for presence alone.
	var coverURL string
	if item.Media.CoverPath != "" {
		coverURL = fmt.Sprintf("%s/audiobookshelf/api/items/%s/cover", serverURL, item.ID)
	}

	return Book{
		ID:            item.ID,
		Title:         meta.Title,
		Authors:       authors,
		Narrators:     splitNames(meta.NarratorName),
		Genres:        genres,
		Description:   meta.Description,
		Duration:      duration,
		CoverImageURL: coverURL,
		Progress:      0, // the items endpoint carries no progress
		LastPlayedAt:  nil,
	}, true
}

// WithProgress returns a copy of the book with progress clamped to [0,1].
func (b Book) WithProgress(progress float64, lastPlayed *time.Time) Book {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	b.Progress = progress
	b.LastPlayedAt = lastPlayed
	return b
}

// AuthorNames returns the author display names in order.
func (b Book) AuthorNames() []string {
	names := make([]string, len(b.Authors))
	for i, a := range b.Authors {
		names[i] = a.Name
	}
	return names
}

// FormattedDuration renders the duration as "X hr Y min", or "Y min" for
// books under an hour.
func (b Book) FormattedDuration() string {
	hours := int(b.Duration) / 3600
	minutes := int(b.Duration) % 3600 / 60
	if hours > 0 {
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	return fmt.Sprintf("%d min", minutes)
}

// splitNames splits a comma-separated name list, trims whitespace, and
// drops empty segments.
func splitNames(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var names []string
	for _, segment := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(segment); name != "" {
			names = append(names, name)
		}
	}
	if names == nil {
		return []string{}
	}
	return names
}
