// Package catalog composes Media Client calls into page views and guards
// every fetch site so that only the latest request's result is applied.
package catalog

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/movieflix/tmdb"
)

// MediaSource is the part of the Media Client the loaders use
type MediaSource interface {
	Trending(ctx context.Context, kind tmdb.TrendingKind, window tmdb.Window) []tmdb.MediaItem
	ByCategory(ctx context.Context, kind tmdb.MediaKind, category tmdb.Category, page int) tmdb.Page
	SearchMulti(ctx context.Context, query string, page int) tmdb.Page
	Details(ctx context.Context, kind tmdb.MediaKind, id int) *tmdb.Details
	Videos(ctx context.Context, kind tmdb.MediaKind, id int) []tmdb.Video
}

// HomeView is the landing page: trending today plus popular movies and TV
type HomeView struct {
	Trending      []tmdb.MediaItem
	PopularMovies []tmdb.MediaItem
	PopularTV     []tmdb.MediaItem
}

// ListingView is one category tab of the movie or TV listing
type ListingView struct {
	Kind       tmdb.MediaKind
	Category   tmdb.Category
	Categories []tmdb.Category
	Page       tmdb.Page
}

// TrendingView is the trending page for one kind and window
type TrendingView struct {
	Kind   tmdb.TrendingKind
	Window tmdb.Window
	Items  []tmdb.MediaItem
}

// SearchView is a search result page. Searched is false for an empty query.
type SearchView struct {
	Query    string
	Searched bool
	Page     tmdb.Page
}

// DetailView is the detail page of one item
type DetailView struct {
	Kind    tmdb.MediaKind
	ID      int
	Found   bool
	Details *tmdb.Details
	Videos  []tmdb.Video
	Trailer *tmdb.Video
}

// Loader builds page views from a MediaSource
type Loader struct {
	source MediaSource
	logger zerolog.Logger
}

// NewLoader creates a page loader
func NewLoader(source MediaSource, logger zerolog.Logger) *Loader {
	return &Loader{
		source: source,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// Home fetches the three home sections in parallel and waits for all of them.
// The only error is the context's, when the load was abandoned.
func (l *Loader) Home(ctx context.Context) (HomeView, error) {
	var view HomeView

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view.Trending = l.source.Trending(gctx, tmdb.TrendingAll, tmdb.WindowDay)
		return nil
	})
	g.Go(func() error {
		view.PopularMovies = l.source.ByCategory(gctx, tmdb.KindMovie, tmdb.CategoryPopular, 1).Results
		return nil
	})
	g.Go(func() error {
		view.PopularTV = l.source.ByCategory(gctx, tmdb.KindTV, tmdb.CategoryPopular, 1).Results
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return HomeView{}, err
	}

	l.logger.Debug().
		Int("trending", len(view.Trending)).
		Int("popular_movies", len(view.PopularMovies)).
		Int("popular_tv", len(view.PopularTV)).
		Msg("Loaded home")

	return view, nil
}

// Listing fetches one category page for a media kind. An empty or unknown
// category falls back to popular.
func (l *Loader) Listing(ctx context.Context, kind tmdb.MediaKind, category tmdb.Category, page int) (ListingView, error) {
	if category == "" || !category.ValidFor(kind) {
		category = tmdb.CategoryPopular
	}

	result := l.source.ByCategory(ctx, kind, category, page)
	if err := ctx.Err(); err != nil {
		return ListingView{}, err
	}

	return ListingView{
		Kind:       kind,
		Category:   category,
		Categories: tmdb.Categories(kind),
		Page:       result,
	}, nil
}

// Trending fetches a trending list. Invalid selectors fall back to all/day.
func (l *Loader) Trending(ctx context.Context, kind tmdb.TrendingKind, window tmdb.Window) (TrendingView, error) {
	if !kind.Valid() {
		kind = tmdb.TrendingAll
	}
	if !window.Valid() {
		window = tmdb.WindowDay
	}

	items := l.source.Trending(ctx, kind, window)
	if err := ctx.Err(); err != nil {
		return TrendingView{}, err
	}

	return TrendingView{Kind: kind, Window: window, Items: items}, nil
}

// Search runs a multi search. A blank query performs no request.
func (l *Loader) Search(ctx context.Context, query string, page int) (SearchView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchView{Page: tmdb.Page{Results: []tmdb.MediaItem{}}}, nil
	}

	result := l.source.SearchMulti(ctx, query, page)
	if err := ctx.Err(); err != nil {
		return SearchView{}, err
	}

	return SearchView{Query: query, Searched: true, Page: result}, nil
}

// Details fetches an item and its videos in parallel
func (l *Loader) Details(ctx context.Context, kind tmdb.MediaKind, id int) (DetailView, error) {
	view := DetailView{Kind: kind, ID: id}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view.Details = l.source.Details(gctx, kind, id)
		return nil
	})
	g.Go(func() error {
		view.Videos = l.source.Videos(gctx, kind, id)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return DetailView{}, err
	}

	view.Found = view.Details != nil
	if view.Found {
		view.Trailer = SelectTrailer(view.Videos)
	} else {
		l.logger.Debug().Str("kind", string(kind)).Int("id", id).Msg("Content not found")
	}

	return view, nil
}

// SelectTrailer returns the first video typed exactly "Trailer", otherwise the
// first video, otherwise nil
func SelectTrailer(videos []tmdb.Video) *tmdb.Video {
	for i := range videos {
		if videos[i].IsTrailer() {
			v := videos[i]
			return &v
		}
	}
	if len(videos) > 0 {
		v := videos[0]
		return &v
	}
	return nil
}
