package tmdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithBaseURL(server.URL)}, opts...)
	client, err := NewClient("test-key", zerolog.Nop(), opts...)
	require.NoError(t, err)
	return client, server
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	t.Run("missing API key", func(t *testing.T) {
		_, err := NewClient("", zerolog.Nop())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("defaults", func(t *testing.T) {
		client, err := NewClient("test-key", zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, client.baseURL)
		assert.Equal(t, DefaultLanguage, client.language)
		assert.Equal(t, DefaultTimeout, client.timeout)
	})
}

func TestClientOptions(t *testing.T) {
	t.Run("with timeout", func(t *testing.T) {
		client, err := NewClient("test-key", zerolog.Nop(), WithTimeout(5*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, client.timeout)
	})

	t.Run("with base URL trims trailing slash", func(t *testing.T) {
		client, err := NewClient("test-key", zerolog.Nop(), WithBaseURL("http://localhost:9999/3/"))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9999/3", client.baseURL)
	})

	t.Run("with custom http client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		client, err := NewClient("test-key", zerolog.Nop(), WithHTTPClient(customClient))
		require.NoError(t, err)
		assert.Equal(t, customClient, client.httpClient)
		assert.Equal(t, 10*time.Second, customClient.Timeout)
		assert.Equal(t, DefaultTimeout, client.timeout)
	})

	t.Run("timeout survives a later http client", func(t *testing.T) {
		customClient := &http.Client{}
		client, err := NewClient("test-key", zerolog.Nop(), WithTimeout(2*time.Second), WithHTTPClient(customClient))
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, client.timeout)
		assert.Zero(t, customClient.Timeout)
	})

	t.Run("with language", func(t *testing.T) {
		client, err := NewClient("test-key", zerolog.Nop(), WithLanguage("de-DE"))
		require.NoError(t, err)
		assert.Equal(t, "de-DE", client.language)
	})
}

func TestEveryRequestCarriesKeyAndLanguage(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "en-US", r.URL.Query().Get("language"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		writeJSON(w, map[string]any{"page": 1, "results": []any{}})
	})

	ctx := context.Background()
	client.Trending(ctx, TrendingAll, WindowDay)
	client.Movies(ctx, CategoryPopular, 1)
	client.TVShows(ctx, CategoryPopular, 1)
	client.SearchMulti(ctx, "dune", 1)
	client.Details(ctx, KindMovie, 42)
	client.Videos(ctx, KindMovie, 42)

	assert.Equal(t, int32(6), calls.Load())
}

func TestTrending(t *testing.T) {
	t.Run("defaults to all/day", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/trending/all/day", r.URL.Path)
			writeJSON(w, map[string]any{
				"page": 1,
				"results": []map[string]any{
					{"id": 1, "title": "Dune", "media_type": "movie", "vote_average": 8.2},
					{"id": 2, "name": "Shogun", "media_type": "tv"},
					{"id": 3, "name": "Zendaya", "media_type": "person"},
				},
			})
		})

		items := client.Trending(context.Background(), "", "")
		require.Len(t, items, 2)
		assert.Equal(t, "Dune", items[0].DisplayName())
		assert.Equal(t, KindTV, items[1].Kind())
	})

	t.Run("kind fills missing media type", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/trending/tv/week", r.URL.Path)
			writeJSON(w, map[string]any{"results": []map[string]any{{"id": 7, "name": "Severance"}}})
		})

		items := client.Trending(context.Background(), TrendingTV, WindowWeek)
		require.Len(t, items, 1)
		assert.Equal(t, KindTV, items[0].MediaType)
	})

	t.Run("invalid window returns empty without a request", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})

		items := client.Trending(context.Background(), TrendingAll, Window("month"))
		assert.NotNil(t, items)
		assert.Empty(t, items)
		assert.Equal(t, int32(0), calls.Load())
	})
}

func TestByCategory(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/movie/top_rated":
			assert.Equal(t, "3", r.URL.Query().Get("page"))
			writeJSON(w, map[string]any{
				"page":          3,
				"total_pages":   10,
				"total_results": 200,
				"results":       []map[string]any{{"id": 278, "title": "The Shawshank Redemption"}},
			})
		case "/tv/on_the_air":
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			writeJSON(w, map[string]any{"page": 1, "results": []map[string]any{{"id": 1399, "name": "Game of Thrones"}}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()

	movies := client.Movies(ctx, CategoryTopRated, 3)
	assert.Equal(t, 3, movies.Page)
	assert.Equal(t, 10, movies.TotalPages)
	require.Len(t, movies.Results, 1)
	assert.Equal(t, KindMovie, movies.Results[0].MediaType)
	assert.True(t, movies.HasMorePages())

	shows := client.TVShows(ctx, CategoryOnTheAir, 0)
	require.Len(t, shows.Results, 1)
	assert.Equal(t, "/tv/1399", shows.Results[0].Path())

	t.Run("category of the other kind is rejected", func(t *testing.T) {
		page := client.Movies(ctx, CategoryAiringToday, 1)
		assert.NotNil(t, page.Results)
		assert.Empty(t, page.Results)
	})
}

func TestSearchMulti(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/search/multi", r.URL.Path)
		assert.Equal(t, "star wars", r.URL.Query().Get("query"))
		writeJSON(w, map[string]any{
			"page": 1,
			"results": []map[string]any{
				{"id": 11, "title": "Star Wars", "media_type": "movie"},
				{"id": 2, "name": "Mark Hamill", "media_type": "person"},
				{"id": 4, "name": "Andor", "media_type": "tv"},
			},
		})
	})

	page := client.SearchMulti(context.Background(), "  star wars ", 1)
	require.Len(t, page.Results, 2)
	assert.Equal(t, KindMovie, page.Results[0].Kind())
	assert.Equal(t, KindTV, page.Results[1].Kind())

	empty := client.SearchMulti(context.Background(), "   ", 1)
	assert.NotNil(t, empty.Results)
	assert.Empty(t, empty.Results)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDetailsAndVideos(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tv/1396":
			writeJSON(w, map[string]any{
				"id":                1396,
				"name":              "Breaking Bad",
				"first_air_date":    "2008-01-20",
				"overview":          "A chemistry teacher...",
				"vote_average":      8.9,
				"vote_count":        14000,
				"number_of_seasons": 5,
				"genres":            []map[string]any{{"id": 18, "name": "Drama"}, {"id": 80, "name": "Crime"}},
			})
		case "/tv/1396/videos":
			writeJSON(w, map[string]any{
				"id": 1396,
				"results": []map[string]any{
					{"key": "abc", "type": "Teaser", "site": "YouTube"},
					{"key": "def", "type": "Trailer", "site": "YouTube"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"status_code": 34, "status_message": "The resource you requested could not be found."})
		}
	})

	ctx := context.Background()

	details := client.Details(ctx, KindTV, 1396)
	require.NotNil(t, details)
	assert.Equal(t, "Breaking Bad", details.DisplayName())
	assert.Equal(t, KindTV, details.Kind())
	assert.Equal(t, 2008, details.Year())
	assert.Equal(t, []string{"Drama", "Crime"}, details.GenreNames())
	assert.Equal(t, "4.5", details.RatingLabel())

	videos := client.Videos(ctx, KindTV, 1396)
	require.Len(t, videos, 2)
	assert.True(t, videos[1].IsTrailer())
	assert.Equal(t, "https://www.youtube.com/embed/def", videos[1].EmbedURL())

	t.Run("404 resolves to nil", func(t *testing.T) {
		assert.Nil(t, client.Details(ctx, KindMovie, 999999))
	})

	t.Run("invalid kind resolves to nil", func(t *testing.T) {
		assert.Nil(t, client.Details(ctx, MediaKind("person"), 1))
	})
}

func TestFailuresDegradeToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		opts    []Option
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				writeJSON(w, map[string]any{"status_code": 7, "status_message": "Invalid API key"})
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"results": [`))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(500 * time.Millisecond):
				case <-r.Context().Done():
				}
			},
			opts: []Option{WithTimeout(20 * time.Millisecond)},
		},
		{
			name: "timeout with a custom http client",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(500 * time.Millisecond):
				case <-r.Context().Done():
				}
			},
			opts: []Option{WithTimeout(20 * time.Millisecond), WithHTTPClient(&http.Client{})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.handler, tt.opts...)
			ctx := context.Background()

			trending := client.Trending(ctx, TrendingAll, WindowDay)
			assert.NotNil(t, trending)
			assert.Empty(t, trending)

			movies := client.Movies(ctx, CategoryPopular, 1)
			assert.NotNil(t, movies.Results)
			assert.Empty(t, movies.Results)

			shows := client.TVShows(ctx, CategoryPopular, 1)
			assert.NotNil(t, shows.Results)
			assert.Empty(t, shows.Results)

			search := client.SearchMulti(ctx, "alien", 1)
			assert.NotNil(t, search.Results)
			assert.Empty(t, search.Results)

			assert.Nil(t, client.Details(ctx, KindMovie, 1))

			videos := client.Videos(ctx, KindMovie, 1)
			assert.NotNil(t, videos)
			assert.Empty(t, videos)
		})
	}

	t.Run("transport failure", func(t *testing.T) {
		client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		server.Close()

		assert.Empty(t, client.Trending(context.Background(), TrendingAll, WindowDay))
		assert.Empty(t, client.Movies(context.Background(), CategoryPopular, 1).Results)
		assert.Nil(t, client.Details(context.Background(), KindTV, 1))
	})

	t.Run("cancelled context", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"results": []map[string]any{{"id": 1, "title": "x"}}})
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Empty(t, client.Movies(ctx, CategoryPopular, 1).Results)
	})
}

func TestPing(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/configuration", r.URL.Path)
		writeJSON(w, map[string]any{"images": map[string]any{}})
	})
	require.NoError(t, client.Ping(context.Background()))

	bad, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]any{"status_code": 7, "status_message": "Invalid API key: You must be granted a valid key."})
	})
	err := bad.Ping(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnauthorized())
	assert.Contains(t, apiErr.Message, "Invalid API key")
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	assert.Equal(t, "tmdb API error: status 404: Not Found", err.Error())
	assert.True(t, err.IsNotFound())
	assert.False(t, err.IsUnauthorized())
}
