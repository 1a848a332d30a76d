package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/s0up4200/movieflix/catalog"
	"github.com/s0up4200/movieflix/filter"
	"github.com/s0up4200/movieflix/tmdb"
)

// filterForm feeds the filter form partial
type filterForm struct {
	Hidden  map[string]string
	Filter  string
	Preset  string
	Presets []string
}

type listingPage struct {
	Listing catalog.ListingView
	Form    filterForm
	PrevURL string
	NextURL string
}

type trendingPage struct {
	Trending catalog.TrendingView
	Form     filterForm
}

type searchPage struct {
	Search  catalog.SearchView
	PrevURL string
	NextURL string
}

// browser returns the request's browser state, answering 500 on failure
func (s *Server) browser(w http.ResponseWriter, r *http.Request) (*browser, bool) {
	b, err := s.browsers.get(w, r)
	if err != nil {
		s.serverError(w, r, err)
		return nil, false
	}
	return b, true
}

// page builds the data shared by every page
func (s *Server) page(b *browser, nav, title string) pageData {
	data := pageData{
		Title:  title,
		Nav:    nav,
		User:   b.session.Current(),
		Google: s.google != nil,
	}
	if s.filters != nil {
		data.Presets = s.filters.Presets()
	}
	return data
}

// abandoned handles a failed site load. A load overtaken by a newer request
// of the same browser answers 204 so the stale result is never rendered.
func (s *Server) abandoned(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, catalog.ErrSuperseded):
		s.logger.Debug().Str("path", r.URL.Path).Msg("Request superseded by a newer one")
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		s.logger.Debug().Str("path", r.URL.Path).Msg("Client went away")
	default:
		s.serverError(w, r, err)
	}
	return true
}

// applyFilter filters items by the request's ?preset= or ?filter=. An invalid
// filter is reported on the page and leaves the items unfiltered.
func (s *Server) applyFilter(r *http.Request, data *pageData, items []tmdb.MediaItem) []tmdb.MediaItem {
	data.Filter = r.URL.Query().Get("filter")
	data.Preset = r.URL.Query().Get("preset")
	if s.filters == nil {
		return items
	}

	f, err := s.filters.Resolve(data.Preset, data.Filter)
	if err != nil {
		data.Error = "Invalid filter: " + err.Error()
		return items
	}
	if f == nil {
		return items
	}
	return filter.Apply(f, items)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}

	view, err := b.home.Load(r.Context(), s.loader.Home)
	if s.abandoned(w, r, err) {
		return
	}

	data := s.page(b, "home", "")
	data.View = view
	s.render(w, r, http.StatusOK, "home", data)
}

func (s *Server) handleListing(kind tmdb.MediaKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := s.browser(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		category := tmdb.Category(q.Get("category"))
		page := pageParam(q)

		view, err := b.listing(kind.IsMovie()).Load(r.Context(), func(ctx context.Context) (catalog.ListingView, error) {
			return s.loader.Listing(ctx, kind, category, page)
		})
		if s.abandoned(w, r, err) {
			return
		}

		data := s.page(b, string(kind), kindName(kind))
		view.Page.Results = s.applyFilter(r, &data, view.Page.Results)

		p := listingPage{
			Listing: view,
			Form: filterForm{
				Hidden:  map[string]string{"category": string(view.Category)},
				Filter:  data.Filter,
				Preset:  data.Preset,
				Presets: data.Presets,
			},
		}
		p.PrevURL, p.NextURL = pagerURLs(r, view.Page)
		data.View = p
		s.render(w, r, http.StatusOK, "listing", data)
	}
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	kind := tmdb.TrendingKind(q.Get("kind"))
	window := tmdb.Window(q.Get("window"))

	view, err := b.trending.Load(r.Context(), func(ctx context.Context) (catalog.TrendingView, error) {
		return s.loader.Trending(ctx, kind, window)
	})
	if s.abandoned(w, r, err) {
		return
	}

	data := s.page(b, "trending", "Trending")
	view.Items = s.applyFilter(r, &data, view.Items)
	data.View = trendingPage{
		Trending: view,
		Form: filterForm{
			Hidden:  map[string]string{"kind": string(view.Kind), "window": string(view.Window)},
			Filter:  data.Filter,
			Preset:  data.Preset,
			Presets: data.Presets,
		},
	}
	s.render(w, r, http.StatusOK, "trending", data)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := q.Get("q")
	page := pageParam(q)

	view, err := b.search.Load(r.Context(), func(ctx context.Context) (catalog.SearchView, error) {
		return s.loader.Search(ctx, query, page)
	})
	if s.abandoned(w, r, err) {
		return
	}

	data := s.page(b, "search", "Search")
	p := searchPage{Search: view}
	if view.Searched {
		p.PrevURL, p.NextURL = pagerURLs(r, view.Page)
	}
	data.View = p
	s.render(w, r, http.StatusOK, "search", data)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	kind, err := tmdb.ParseMediaKind(vars["kind"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.Atoi(vars["id"])
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}

	view, err := b.details.Load(r.Context(), func(ctx context.Context) (catalog.DetailView, error) {
		return s.loader.Details(ctx, kind, id)
	})
	if s.abandoned(w, r, err) {
		return
	}

	status := http.StatusOK
	title := "Content not found"
	if view.Found {
		title = view.Details.DisplayName()
	} else {
		status = http.StatusNotFound
	}

	data := s.page(b, "", title)
	data.View = view
	s.render(w, r, status, "details", data)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if err := s.pages.render(w, status, name, data); err != nil {
		s.serverError(w, r, err)
	}
}

// pageParam reads ?page=, defaulting to 1
func pageParam(q url.Values) int {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// pagerURLs returns the previous and next page links, empty at either end
func pagerURLs(r *http.Request, page tmdb.Page) (prev, next string) {
	link := func(n int) string {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(n))
		return r.URL.Path + "?" + q.Encode()
	}
	if page.Page > 1 {
		prev = link(page.Page - 1)
	}
	if page.HasMorePages() {
		next = link(page.Page + 1)
	}
	return prev, next
}

// localRedirect returns target when it is a path on this site, else "/"
func localRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
