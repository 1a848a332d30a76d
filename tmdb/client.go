package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the TMDB v3 API endpoint
	DefaultBaseURL = "https://api.themoviedb.org/3"
	// DefaultLanguage is sent with every request unless overridden
	DefaultLanguage = "en-US"
	// DefaultTimeout bounds each request
	DefaultTimeout = 15 * time.Second
)

// Client represents a TMDB API client
type Client struct {
	baseURL      string
	imageBaseURL string
	apiKey       string
	language     string
	timeout      time.Duration
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewClient creates a new TMDB client
func NewClient(apiKey string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: TMDB API key is required", ErrInvalidConfig)
	}

	client := &Client{
		baseURL:      DefaultBaseURL,
		imageBaseURL: DefaultImageBaseURL,
		apiKey:       apiKey,
		language:     DefaultLanguage,
		timeout:      DefaultTimeout,
		httpClient:   &http.Client{},
		logger:       logger.With().Str("component", "tmdb").Logger(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// doRequest performs a GET request carrying the API key and language
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("api_key", c.apiKey)
	query.Set("language", c.language)

	reqURL := c.baseURL + endpoint + "?" + query.Encode()

	// The deadline covers reading the body too
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Interface("params", params).
		Msg("Making TMDB API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.StatusMessage != "" {
			apiErr.Message = eb.StatusMessage
		}
		return nil, apiErr
	}

	return body, nil
}

// getJSON performs a request and decodes the response into out
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	body, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// guard runs call and converts any failure into empty. Every catalog
// operation goes through it so the empty-on-failure contract lives in one place.
func guard[T any](c *Client, op string, empty T, call func() (T, error)) T {
	result, err := call()
	if err != nil {
		c.logFailure(op, err)
		return empty
	}
	return result
}

// logFailure records a failed call for diagnostics
func (c *Client) logFailure(op string, err error) {
	event := c.logger.Warn()
	switch {
	case errors.Is(err, context.Canceled):
		// superseded fetches are routine
		event = c.logger.Debug()
	case errors.Is(err, ErrInvalidArgument):
		event = c.logger.Info()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		event = event.Int("status", apiErr.StatusCode)
	}

	event.Err(err).Str("op", op).Msg("TMDB request failed, returning empty result")
}

// Ping verifies the API key against the configuration endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, "/configuration", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to TMDB: %w", err)
	}
	return nil
}

// Trending returns the trending items for a kind and time window
func (c *Client) Trending(ctx context.Context, kind TrendingKind, window Window) []MediaItem {
	return guard(c, "trending", []MediaItem{}, func() ([]MediaItem, error) {
		if kind == "" {
			kind = TrendingAll
		}
		if window == "" {
			window = WindowDay
		}
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: trending kind %q", ErrInvalidArgument, kind)
		}
		if !window.Valid() {
			return nil, fmt.Errorf("%w: trending window %q", ErrInvalidArgument, window)
		}

		var page Page
		if err := c.getJSON(ctx, fmt.Sprintf("/trending/%s/%s", kind, window), nil, &page); err != nil {
			return nil, err
		}

		var fallbackKind MediaKind
		if kind != TrendingAll {
			fallbackKind = MediaKind(kind)
		}
		return catalogItems(page.Results, fallbackKind), nil
	})
}

// Movies returns one page of a movie category
func (c *Client) Movies(ctx context.Context, category Category, page int) Page {
	return c.ByCategory(ctx, KindMovie, category, page)
}

// TVShows returns one page of a TV category
func (c *Client) TVShows(ctx context.Context, category Category, page int) Page {
	return c.ByCategory(ctx, KindTV, category, page)
}

// ByCategory returns one page of a category listing for the given kind
func (c *Client) ByCategory(ctx context.Context, kind MediaKind, category Category, page int) Page {
	return guard(c, "category", emptyPage(), func() (Page, error) {
		if !kind.Valid() {
			return Page{}, fmt.Errorf("%w: media kind %q", ErrInvalidArgument, kind)
		}
		if category == "" {
			category = CategoryPopular
		}
		if !category.ValidFor(kind) {
			return Page{}, fmt.Errorf("%w: %s category %q", ErrInvalidArgument, kind, category)
		}

		params := url.Values{}
		params.Set("page", strconv.Itoa(normalizePage(page)))

		var result Page
		if err := c.getJSON(ctx, fmt.Sprintf("/%s/%s", kind, category), params, &result); err != nil {
			return Page{}, err
		}
		result.Results = catalogItems(result.Results, kind)

		c.logger.Debug().
			Str("kind", string(kind)).
			Str("category", string(category)).
			Int("page", result.Page).
			Int("count", len(result.Results)).
			Msg("Retrieved category listing from TMDB")

		return result, nil
	})
}

// SearchMulti searches movies and TV shows. Person results are dropped since
// they are not catalog items. An empty query returns an empty page without a request.
func (c *Client) SearchMulti(ctx context.Context, query string, page int) Page {
	query = strings.TrimSpace(query)
	if query == "" {
		return emptyPage()
	}

	return guard(c, "search", emptyPage(), func() (Page, error) {
		params := url.Values{}
		params.Set("query", query)
		params.Set("page", strconv.Itoa(normalizePage(page)))

		var result Page
		if err := c.getJSON(ctx, "/search/multi", params, &result); err != nil {
			return Page{}, err
		}
		result.Results = catalogItems(result.Results, "")
		return result, nil
	})
}

// Details returns the full record for one movie or TV show, or nil
func (c *Client) Details(ctx context.Context, kind MediaKind, id int) *Details {
	return guard(c, "details", (*Details)(nil), func() (*Details, error) {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: media kind %q", ErrInvalidArgument, kind)
		}
		if id <= 0 {
			return nil, fmt.Errorf("%w: id %d", ErrInvalidArgument, id)
		}

		var details Details
		if err := c.getJSON(ctx, fmt.Sprintf("/%s/%d", kind, id), nil, &details); err != nil {
			return nil, err
		}
		details.MediaType = kind
		return &details, nil
	})
}

// Videos returns the videos attached to one movie or TV show
func (c *Client) Videos(ctx context.Context, kind MediaKind, id int) []Video {
	return guard(c, "videos", []Video{}, func() ([]Video, error) {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: media kind %q", ErrInvalidArgument, kind)
		}
		if id <= 0 {
			return nil, fmt.Errorf("%w: id %d", ErrInvalidArgument, id)
		}

		var resp videosResponse
		if err := c.getJSON(ctx, fmt.Sprintf("/%s/%d/videos", kind, id), nil, &resp); err != nil {
			return nil, err
		}
		if resp.Results == nil {
			return []Video{}, nil
		}
		return resp.Results, nil
	})
}

// catalogItems keeps movie and TV entries and fills in the kind for listings
// whose responses omit media_type
func catalogItems(items []MediaItem, kind MediaKind) []MediaItem {
	out := make([]MediaItem, 0, len(items))
	for _, item := range items {
		if item.MediaType == "" && kind != "" {
			item.MediaType = kind
		}
		if item.MediaType != "" && !item.MediaType.Valid() {
			continue
		}
		out = append(out, item)
	}
	return out
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
