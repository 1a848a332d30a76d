package tmdb

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestBuildImageURL(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		size     ImageSize
		expected string
	}{
		{
			name:     "empty path returns placeholder",
			path:     "",
			size:     SizeW500,
			expected: PlaceholderImageURL,
		},
		{
			name:     "empty path ignores size",
			path:     "",
			size:     SizeOriginal,
			expected: PlaceholderImageURL,
		},
		{
			name:     "leading slash inserted",
			path:     "poster.jpg",
			size:     SizeW500,
			expected: "https://image.tmdb.org/t/p/w500/poster.jpg",
		},
		{
			name:     "existing slash kept",
			path:     "/backdrop.jpg",
			size:     SizeOriginal,
			expected: "https://image.tmdb.org/t/p/original/backdrop.jpg",
		},
		{
			name:     "unknown size falls back to w500",
			path:     "/poster.jpg",
			size:     ImageSize("bogus"),
			expected: "https://image.tmdb.org/t/p/w500/poster.jpg",
		},
		{
			name:     "empty size falls back to w500",
			path:     "/poster.jpg",
			size:     "",
			expected: "https://image.tmdb.org/t/p/w500/poster.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildImageURL(tt.path, tt.size))
		})
	}
}

func TestBuildImageURLUnknownSizeMatchesDefault(t *testing.T) {
	for _, size := range []ImageSize{"bogus", "w1000", "W500", "h632"} {
		assert.Equal(t, BuildImageURL("/a.jpg", SizeW500), BuildImageURL("/a.jpg", size), "size %q", size)
	}
}

func TestClientImageURL(t *testing.T) {
	client, err := NewClient("test-key", zerolog.Nop(), WithImageBaseURL("https://cdn.example.com/t/p"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/t/p/w342/x.jpg", client.ImageURL("x.jpg", SizeW342))
	assert.Equal(t, PlaceholderImageURL, client.ImageURL("  ", SizeW342))
}

func TestMediaItemDisplay(t *testing.T) {
	t.Run("movie uses title and release date", func(t *testing.T) {
		item := MediaItem{ID: 1, Title: "Alien", Name: "ignored", MediaType: KindMovie, ReleaseDate: "1979-05-25"}
		assert.Equal(t, "Alien", item.DisplayName())
		assert.Equal(t, 1979, item.Year())
		assert.Equal(t, "/movie/1", item.Path())
	})

	t.Run("tv uses name and first air date", func(t *testing.T) {
		item := MediaItem{ID: 2, Name: "The Wire", MediaType: KindTV, FirstAirDate: "2002-06-02"}
		assert.Equal(t, "The Wire", item.DisplayName())
		assert.Equal(t, 2002, item.Year())
	})

	t.Run("kind inferred when discriminator missing", func(t *testing.T) {
		assert.Equal(t, KindTV, MediaItem{Name: "Lost"}.Kind())
		assert.Equal(t, KindMovie, MediaItem{Title: "Heat"}.Kind())
	})

	t.Run("missing date has no year", func(t *testing.T) {
		assert.Equal(t, 0, MediaItem{Title: "TBA"}.Year())
	})
}

func TestMediaItemRating(t *testing.T) {
	tests := []struct {
		name      string
		item      MediaItem
		wantOK    bool
		wantStars float64
		wantLabel string
	}{
		{
			name:      "average halved",
			item:      MediaItem{VoteAverage: ptr(8.0), VoteCount: 100},
			wantOK:    true,
			wantStars: 4.0,
			wantLabel: "4.0",
		},
		{
			name:      "absent rating is not available",
			item:      MediaItem{},
			wantOK:    false,
			wantLabel: "N/A",
		},
		{
			name:      "zero with no votes is not available",
			item:      MediaItem{VoteAverage: ptr(0)},
			wantOK:    false,
			wantLabel: "N/A",
		},
		{
			name:      "zero with votes is not available",
			item:      MediaItem{VoteAverage: ptr(0), VoteCount: 12},
			wantOK:    false,
			wantLabel: "N/A",
		},
		{
			name:      "low rating is kept",
			item:      MediaItem{VoteAverage: ptr(0.4), VoteCount: 12},
			wantOK:    true,
			wantStars: 0.2,
			wantLabel: "0.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stars, ok := tt.item.Stars()
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantStars, stars, 0.0001)
			assert.Equal(t, tt.wantLabel, tt.item.RatingLabel())
		})
	}
}

func TestCategories(t *testing.T) {
	assert.True(t, CategoryNowPlaying.ValidFor(KindMovie))
	assert.False(t, CategoryNowPlaying.ValidFor(KindTV))
	assert.True(t, CategoryAiringToday.ValidFor(KindTV))
	assert.Equal(t, "Top Rated", CategoryTopRated.Label())
	assert.Len(t, Categories(KindTV), 4)
	assert.Nil(t, Categories(MediaKind("person")))
}

func TestParseMediaKind(t *testing.T) {
	kind, err := ParseMediaKind("tv")
	require.NoError(t, err)
	assert.Equal(t, KindTV, kind)

	_, err = ParseMediaKind("person")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPage(t *testing.T) {
	p := Page{Page: 2, TotalPages: 5}
	next, err := p.NextPage()
	require.NoError(t, err)
	assert.Equal(t, 3, next)

	p.Page = 5
	_, err = p.NextPage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no more pages")
}
