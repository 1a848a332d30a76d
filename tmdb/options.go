package tmdb

import (
	"net/http"
	"strings"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used by tests and proxies.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithImageBaseURL overrides the image CDN prefix.
func WithImageBaseURL(imageBaseURL string) Option {
	return func(c *Client) {
		if imageBaseURL != "" {
			c.imageBaseURL = imageBaseURL
		}
	}
}

// WithLanguage sets the language parameter sent with every request.
func WithLanguage(language string) Option {
	return func(c *Client) {
		if language != "" {
			c.language = language
		}
	}
}

// WithTimeout sets the per-request timeout. It applies to any HTTP client,
// including one set with WithHTTPClient.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. The client is used as
// is; requests are still bounded by the client's per-request timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}
