package tmdb

import (
	"fmt"
	"strconv"
	"time"
)

// MediaKind discriminates movies from TV shows sharing the catalog
type MediaKind string

const (
	// KindMovie represents a movie
	KindMovie MediaKind = "movie"
	// KindTV represents a TV show
	KindTV MediaKind = "tv"
)

// Valid reports whether the kind is movie or tv
func (k MediaKind) Valid() bool {
	return k == KindMovie || k == KindTV
}

// IsMovie checks if the media kind is a movie
func (k MediaKind) IsMovie() bool {
	return k == KindMovie
}

// ParseMediaKind converts a route or flag value into a MediaKind
func ParseMediaKind(s string) (MediaKind, error) {
	k := MediaKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: media kind %q", ErrInvalidArgument, s)
	}
	return k, nil
}

// TrendingKind selects which media kinds a trending list covers
type TrendingKind string

const (
	TrendingAll   TrendingKind = "all"
	TrendingMovie TrendingKind = "movie"
	TrendingTV    TrendingKind = "tv"
)

// Valid reports whether the trending kind is recognized
func (k TrendingKind) Valid() bool {
	return k == TrendingAll || k == TrendingMovie || k == TrendingTV
}

// Window is the time horizon of a trending computation
type Window string

const (
	WindowDay  Window = "day"
	WindowWeek Window = "week"
)

// Valid reports whether the window is day or week
func (w Window) Valid() bool {
	return w == WindowDay || w == WindowWeek
}

// Category is a named listing bucket for one media kind
type Category string

const (
	CategoryPopular     Category = "popular"
	CategoryTopRated    Category = "top_rated"
	CategoryNowPlaying  Category = "now_playing"
	CategoryUpcoming    Category = "upcoming"
	CategoryOnTheAir    Category = "on_the_air"
	CategoryAiringToday Category = "airing_today"
)

var categoryLabels = map[Category]string{
	CategoryPopular:     "Popular",
	CategoryTopRated:    "Top Rated",
	CategoryNowPlaying:  "Now Playing",
	CategoryUpcoming:    "Upcoming",
	CategoryOnTheAir:    "On The Air",
	CategoryAiringToday: "Airing Today",
}

// Label returns the tab label for the category
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Categories returns the listing buckets available for a media kind, in tab order
func Categories(kind MediaKind) []Category {
	switch kind {
	case KindMovie:
		return []Category{CategoryPopular, CategoryTopRated, CategoryNowPlaying, CategoryUpcoming}
	case KindTV:
		return []Category{CategoryPopular, CategoryTopRated, CategoryOnTheAir, CategoryAiringToday}
	default:
		return nil
	}
}

// ValidFor reports whether the category exists for the given media kind
func (c Category) ValidFor(kind MediaKind) bool {
	for _, candidate := range Categories(kind) {
		if candidate == c {
			return true
		}
	}
	return false
}

// MediaItem is a single catalog entry as returned by listing endpoints
type MediaItem struct {
	ID           int       `json:"id"`
	Title        string    `json:"title,omitempty"`
	Name         string    `json:"name,omitempty"`
	MediaType    MediaKind `json:"media_type,omitempty"`
	ReleaseDate  string    `json:"release_date,omitempty"`
	FirstAirDate string    `json:"first_air_date,omitempty"`
	PosterPath   string    `json:"poster_path,omitempty"`
	BackdropPath string    `json:"backdrop_path,omitempty"`
	Overview     string    `json:"overview,omitempty"`
	VoteAverage  *float64  `json:"vote_average,omitempty"`
	VoteCount    int       `json:"vote_count"`
	Popularity   float64   `json:"popularity,omitempty"`
	GenreIDs     []int     `json:"genre_ids,omitempty"`
}

// Kind returns the item's media kind, inferring it from the populated title
// field when the response carried no discriminator
func (m MediaItem) Kind() MediaKind {
	if m.MediaType.Valid() {
		return m.MediaType
	}
	if m.Title == "" && m.Name != "" {
		return KindTV
	}
	return KindMovie
}

// DisplayName returns the title for movies and the name for TV shows
func (m MediaItem) DisplayName() string {
	if m.Kind().IsMovie() {
		if m.Title != "" {
			return m.Title
		}
		return m.Name
	}
	if m.Name != "" {
		return m.Name
	}
	return m.Title
}

// Date returns the release date for movies and the first air date for TV shows
func (m MediaItem) Date() string {
	if m.Kind().IsMovie() {
		return m.ReleaseDate
	}
	return m.FirstAirDate
}

// Year returns the year of Date, or 0 when the date is absent or malformed
func (m MediaItem) Year() int {
	date := m.Date()
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Year()
	}
	if len(date) >= 4 {
		if year, err := strconv.Atoi(date[:4]); err == nil {
			return year
		}
	}
	return 0
}

// HasRating reports whether the item carries a usable average rating. A zero
// average is never shown as a rating, whatever the vote count.
func (m MediaItem) HasRating() bool {
	return m.VoteAverage != nil && *m.VoteAverage != 0
}

// Stars maps the 0-10 average onto a 0-5 star scale
func (m MediaItem) Stars() (float64, bool) {
	if !m.HasRating() {
		return 0, false
	}
	return *m.VoteAverage / 2, true
}

// RatingLabel formats Stars with one decimal, or "N/A" when there is no rating
func (m MediaItem) RatingLabel() string {
	stars, ok := m.Stars()
	if !ok {
		return "N/A"
	}
	return strconv.FormatFloat(stars, 'f', 1, 64)
}

// Path returns the item's detail page address
func (m MediaItem) Path() string {
	return fmt.Sprintf("/%s/%d", m.Kind(), m.ID)
}

// Genre is a TMDB genre
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Details is the full record returned by the per-item endpoint
type Details struct {
	MediaItem
	Genres           []Genre `json:"genres"`
	Tagline          string  `json:"tagline,omitempty"`
	Status           string  `json:"status,omitempty"`
	Homepage         string  `json:"homepage,omitempty"`
	Runtime          int     `json:"runtime,omitempty"`
	EpisodeRunTime   []int   `json:"episode_run_time,omitempty"`
	NumberOfSeasons  int     `json:"number_of_seasons,omitempty"`
	NumberOfEpisodes int     `json:"number_of_episodes,omitempty"`
}

// GenreNames returns the genre names in response order
func (d *Details) GenreNames() []string {
	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		names = append(names, g.Name)
	}
	return names
}

// Video is a video attached to a movie or TV show
type Video struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

// VideoTypeTrailer is the type label of trailer videos
const VideoTypeTrailer = "Trailer"

// IsTrailer checks if the video type is exactly "Trailer"
func (v Video) IsTrailer() bool {
	return v.Type == VideoTypeTrailer
}

// EmbedURL returns the embeddable player address for the video key
func (v Video) EmbedURL() string {
	return "https://www.youtube.com/embed/" + v.Key
}

// Page is a paginated listing response
type Page struct {
	Page         int         `json:"page"`
	Results      []MediaItem `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

// HasMorePages checks if there are more pages to fetch
func (p *Page) HasMorePages() bool {
	return p.Page < p.TotalPages
}

// NextPage returns the next page number, or an error if there are no more pages
func (p *Page) NextPage() (int, error) {
	if !p.HasMorePages() {
		return 0, fmt.Errorf("no more pages available")
	}
	return p.Page + 1, nil
}

// emptyPage is the sentinel returned by failed listing calls
func emptyPage() Page {
	return Page{Results: []MediaItem{}}
}

type videosResponse struct {
	ID      int     `json:"id"`
	Results []Video `json:"results"`
}
