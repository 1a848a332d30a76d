// Package web serves the MovieFlix front end. Every browser gets its own
// session and fetch sites, keyed by a cookie.
package web

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/s0up4200/movieflix/catalog"
	"github.com/s0up4200/movieflix/filter"
	"github.com/s0up4200/movieflix/identity"
	"github.com/s0up4200/movieflix/tmdb"
)

// Default server settings
const (
	DefaultSessionTTL  = 24 * time.Hour
	DefaultMaxSessions = 1000
)

// Options configures a Server
type Options struct {
	// Media serves the catalog
	Media catalog.MediaSource
	// ImageURL resolves artwork paths; nil uses the public TMDB host
	ImageURL func(path string, size tmdb.ImageSize) string
	// Auth creates one provider instance per browser
	Auth identity.Factory
	// Filters resolves ?filter= and ?preset=; nil disables filtering
	Filters *filter.Manager
	// Google enables "Sign in with Google" when set
	Google *oauth2.Config

	SessionTTL    time.Duration
	MaxSessions   int
	AuthRateLimit rate.Limit
	AuthRateBurst int
	SecureCookies bool
	// TrustedProxies lists the IPs or CIDR ranges allowed to set
	// X-Forwarded-For and X-Real-IP. Empty means the headers are ignored.
	TrustedProxies []string
}

// Server is the web front end
type Server struct {
	loader   *catalog.Loader
	filters  *filter.Manager
	google   *oauth2.Config
	browsers *browserRegistry
	limiter  *ipRateLimiter
	pages    *renderer
	logger   zerolog.Logger
}

// NewServer creates the web front end
func NewServer(opts Options, logger zerolog.Logger) (*Server, error) {
	if opts.Media == nil {
		return nil, errors.New("media source is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("identity factory is required")
	}
	if opts.ImageURL == nil {
		opts.ImageURL = tmdb.BuildImageURL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.AuthRateLimit <= 0 {
		opts.AuthRateLimit = 1
	}
	if opts.AuthRateBurst <= 0 {
		opts.AuthRateBurst = 5
	}

	proxies, err := parseProxies(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	logger = logger.With().Str("component", "web").Logger()

	pages, err := newRenderer(opts.ImageURL)
	if err != nil {
		return nil, err
	}

	return &Server{
		loader:   catalog.NewLoader(opts.Media, logger),
		filters:  opts.Filters,
		google:   opts.Google,
		browsers: newBrowserRegistry(opts.Auth, opts.MaxSessions, opts.SessionTTL, opts.SecureCookies, logger),
		limiter:  newIPRateLimiter(opts.AuthRateLimit, opts.AuthRateBurst, opts.MaxSessions, proxies),
		pages:    pages,
		logger:   logger,
	}, nil
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/movies", s.handleListing(tmdb.KindMovie)).Methods(http.MethodGet)
	r.HandleFunc("/tv", s.handleListing(tmdb.KindTV)).Methods(http.MethodGet)
	r.HandleFunc("/trending", s.handleTrending).Methods(http.MethodGet)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/{kind:movie|tv}/{id:[0-9]+}", s.handleDetails).Methods(http.MethodGet)

	r.HandleFunc("/login", s.handleLoginForm).Methods(http.MethodGet)
	r.HandleFunc("/login", s.rateLimited(s.handleLogin)).Methods(http.MethodPost)
	r.HandleFunc("/signup", s.handleSignupForm).Methods(http.MethodGet)
	r.HandleFunc("/signup", s.rateLimited(s.handleSignup)).Methods(http.MethodPost)
	r.HandleFunc("/auth/google", s.handleGoogleStart).Methods(http.MethodGet)
	r.HandleFunc("/auth/google/callback", s.handleGoogleCallback).Methods(http.MethodGet)
	r.HandleFunc("/profile", s.handleProfileForm).Methods(http.MethodGet)
	r.HandleFunc("/profile", s.handleProfile).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	return r
}

// Close closes every browser state. Call it after the HTTP server stopped.
func (s *Server) Close() {
	n := s.browsers.len()
	s.browsers.closeAll()
	s.logger.Info().Int("browsers", n).Msg("Closed browser sessions")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rateLimited wraps a handler with per-IP rate limiting
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(r) {
			s.logger.Warn().Str("ip", s.limiter.proxies.clientIP(r)).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too many attempts. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// serverError logs err and answers 500
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
