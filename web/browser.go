package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/s0up4200/movieflix/catalog"
	"github.com/s0up4200/movieflix/identity"
	"github.com/s0up4200/movieflix/session"
)

// browserCookie carries the browser id
const browserCookie = "movieflix_browser"

// browser is the state of one browser: its own session and fetch sites
type browser struct {
	id      string
	session *session.Context

	home     catalog.Site[catalog.HomeView]
	movies   catalog.Site[catalog.ListingView]
	tv       catalog.Site[catalog.ListingView]
	trending catalog.Site[catalog.TrendingView]
	search   catalog.Site[catalog.SearchView]
	details  catalog.Site[catalog.DetailView]

	mu         sync.Mutex
	oauthState string
}

// listing returns the fetch site of the movie or TV listing
func (b *browser) listing(movies bool) *catalog.Site[catalog.ListingView] {
	if movies {
		return &b.movies
	}
	return &b.tv
}

// setOAuthState remembers the state parameter of a pending Google sign-in
func (b *browser) setOAuthState(state string) {
	b.mu.Lock()
	b.oauthState = state
	b.mu.Unlock()
}

// takeOAuthState returns and clears the pending state parameter
func (b *browser) takeOAuthState() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.oauthState
	b.oauthState = ""
	return state
}

func (b *browser) close() {
	b.home.Cancel()
	b.movies.Cancel()
	b.tv.Cancel()
	b.trending.Cancel()
	b.search.Cancel()
	b.details.Cancel()
	b.session.Close()
}

// browserRegistry keeps browser states in an expiring LRU. Evicted and
// expired states are closed.
type browserRegistry struct {
	mu       sync.Mutex
	browsers *expirable.LRU[string, *browser]
	factory  identity.Factory
	ttl      time.Duration
	secure   bool
	logger   zerolog.Logger
}

func newBrowserRegistry(factory identity.Factory, size int, ttl time.Duration, secure bool, logger zerolog.Logger) *browserRegistry {
	r := &browserRegistry{
		factory: factory,
		ttl:     ttl,
		secure:  secure,
		logger:  logger,
	}
	r.browsers = expirable.NewLRU[string, *browser](size, r.onEvict, ttl)
	return r
}

func (r *browserRegistry) onEvict(id string, b *browser) {
	b.close()
	r.logger.Debug().Str("browser", id).Msg("Browser state closed")
}

// lookup returns the browser of the request's cookie without creating one
func (r *browserRegistry) lookup(req *http.Request) (*browser, bool) {
	c, err := req.Cookie(browserCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	return r.browsers.Get(c.Value)
}

// get returns the request's browser, creating one and setting the cookie
// when the request has none or its state expired
func (r *browserRegistry) get(w http.ResponseWriter, req *http.Request) (*browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.lookup(req); ok {
		// re-adding slides the expiry
		r.browsers.Add(b.id, b)
		return b, nil
	}

	b := &browser{id: uuid.NewString()}
	b.session = session.New(r.factory.NewProvider(), r.logger.With().Str("browser", b.id).Logger())
	if err := b.session.Init(); err != nil {
		return nil, err
	}
	r.browsers.Add(b.id, b)

	http.SetCookie(w, &http.Cookie{
		Name:     browserCookie,
		Value:    b.id,
		Path:     "/",
		MaxAge:   int(r.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})

	r.logger.Debug().Str("browser", b.id).Msg("Browser state created")
	return b, nil
}

// len returns the number of live browser states
func (r *browserRegistry) len() int {
	return r.browsers.Len()
}

// closeAll closes every browser state
func (r *browserRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.browsers.Purge()
}
