package models

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the 2xx body of POST /login.
type LoginResponse struct {
	User                 User   `json:"user"`
	UserDefaultLibraryID string `json:"userDefaultLibraryId"`
}

// User is the authenticated user as returned by the server.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
}

// AuthToken returns the usable auth token, preferring the legacy token
// field over the newer accessToken.
func (u User) AuthToken() string {
	if u.Token != "" {
		return u.Token
	}
	return u.AccessToken
}

// ErrorResponse is the error envelope some endpoints return on non-2xx.
// Both fields are optional.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Text returns the best available human-readable message, or "".
func (e ErrorResponse) Text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// Library represents a library in Audiobookshelf
type Library struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
}

// LibraryItemsResponse is the body of GET /api/libraries/<id>/items.
type LibraryItemsResponse struct {
	Results   []LibraryItem `json:"results"`
	Total     int           `json:"total"`
	Limit     int           `json:"limit"`
	Page      int           `json:"page"`
	MediaType string        `json:"mediaType"`
}

// LibraryItem represents one item from the Audiobookshelf API. It is
// untrusted input: optional fields may be absent or empty.
type LibraryItem struct {
	ID        string `json:"id"`
	LibraryID string `json:"libraryId"`
	MediaType string `json:"mediaType"`
	Media     struct {
		ID       string `json:"id"`
		Metadata struct {
			Title         string   `json:"title"`
			Subtitle      string   `json:"subtitle"`
			AuthorName    string   `json:"authorName"`
			NarratorName  string   `json:"narratorName"`
			SeriesName    string   `json:"seriesName"`
			Genres        []string `json:"genres"`
			PublishedYear string   `json:"publishedYear"`
			PublishedDate string   `json:"publishedDate"`
			Publisher     string   `json:"publisher"`
			Description   string   `json:"description"`
			Language      string   `json:"language"`
		} `json:"metadata"`
		CoverPath string  `json:"coverPath"`
		Duration  float64 `json:"duration"`
	} `json:"media"`
	AddedAt   int64 `json:"addedAt"`
	UpdatedAt int64 `json:"updatedAt"`
}
