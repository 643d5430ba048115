package audiobookshelf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shakogegia/noira/internal/logger"
	"github.com/shakogegia/noira/internal/models"
)

const (
	apiPath        = "/api"
	defaultTimeout = 30 * time.Second
)

// Client is a client for the Audiobookshelf API
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logger.Logger
}

// NewClient creates a new Audiobookshelf client. The token may be empty for
// a client that only logs in. A timeout of 0 selects the default.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: NormalizeServerURL(baseURL),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Get().ForComponent("audiobookshelf_client"),
	}
}

// NormalizeServerURL strips surrounding whitespace and trailing slashes so
// the URL can be joined with request paths directly.
func NormalizeServerURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// Login authenticates against POST /login and returns the decoded response.
// Errors are typed: ErrInvalidCredentials on 401, *ServerError on any other
// non-2xx status, *NetworkError when no response arrived, and
// *DecodingError when a 2xx body cannot be parsed.
func (c *Client) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	log := c.logger.With().Str("endpoint", "/login").Logger()

	payload, err := json.Marshal(models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create request")
		return nil, ErrInvalidURL
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Login request failed")
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read response body")
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.Debug().Msg("Login rejected")
		return nil, ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// The envelope is best-effort; an undecodable error body still
		// yields a ServerError with the bare status.
		var envelope models.ErrorResponse
		_ = json.Unmarshal(body, &envelope)
		log.Error().Int("status", resp.StatusCode).Str("message", envelope.Text()).Msg("Login failed")
		return nil, &ServerError{Status: resp.StatusCode, Message: envelope.Text()}
	}

	var result models.LoginResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.Error().Err(err).Msg("Failed to decode login response")
		return nil, &DecodingError{Err: err}
	}

	log.Info().Str("username", result.User.Username).Msg("Login succeeded")
	return &result, nil
}

// ValidateToken checks the token against GET /api/me. It returns true on
// 2xx and false on 401. Every other outcome, transport failures included,
// reports true: transient server or network trouble must not evict an
// otherwise valid session, only an authoritative 401 may.
func (c *Client) ValidateToken(ctx context.Context) bool {
	log := c.logger.With().Str("endpoint", "/me").Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+"/me", nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create validation request, failing open")
		return true
	}
	c.setAuthHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Token validation request failed, failing open")
		return true
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true
	case resp.StatusCode == http.StatusUnauthorized:
		log.Info().Msg("Server rejected token")
		return false
	default:
		log.Warn().Int("status", resp.StatusCode).Msg("Unexpected validation status, failing open")
		return true
	}
}

// GetLibraries fetches all libraries from Audiobookshelf
func (c *Client) GetLibraries(ctx context.Context) ([]models.Library, error) {
	log := c.logger.With().Str("endpoint", "/libraries").Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+"/libraries", nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create request")
		return nil, ErrInvalidURL
	}
	c.setAuthHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Request failed")
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read response body")
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().Int("status", resp.StatusCode).Msg("Unexpected status code")
		return nil, &ServerError{Status: resp.StatusCode}
	}

	var result struct {
		Libraries []models.Library `json:"libraries"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		log.Error().Err(err).Msg("Failed to decode response")
		return nil, &DecodingError{Err: err}
	}

	log.Debug().Int("count", len(result.Libraries)).Msg("Fetched libraries")
	return result.Libraries, nil
}

// GetLibraryItems returns the items of a library.
func (c *Client) GetLibraryItems(ctx context.Context, libraryID string) (*models.LibraryItemsResponse, error) {
	endpoint := fmt.Sprintf("/libraries/%s/items", libraryID)
	log := c.logger.With().Str("endpoint", endpoint).Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+endpoint, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create request")
		return nil, ErrInvalidURL
	}
	c.setAuthHeaders(req)

	log.Debug().Msg("Fetching library items")
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch library items")
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read response body")
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().Int("status", resp.StatusCode).Msg("Unexpected status code")
		return nil, &ServerError{Status: resp.StatusCode}
	}

	var result models.LibraryItemsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.Error().Err(err).Msg("Failed to decode library items")
		return nil, &DecodingError{Err: err}
	}

	log.Debug().Int("count", len(result.Results)).Int("total", result.Total).Msg("Fetched library items")
	return &result, nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
}
