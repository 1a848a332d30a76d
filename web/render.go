package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strings"

	"github.com/s0up4200/movieflix/identity"
	"github.com/s0up4200/movieflix/tmdb"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"home", "listing", "trending", "search", "details", "login", "signup", "profile",
}

// pageData is what every page template receives
type pageData struct {
	Title   string
	Nav     string
	User    *identity.Identity
	Google  bool
	Filter  string
	Preset  string
	Presets []string
	Error   string
	Notice  string
	View    any
}

// renderer renders page templates inside the shared layout
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer(imageURL func(path string, size tmdb.ImageSize) string) (*renderer, error) {
	funcs := template.FuncMap{
		"poster": func(path string) string {
			return imageURL(path, tmdb.SizeW342)
		},
		"backdrop": func(path string) string {
			return imageURL(path, tmdb.SizeOriginal)
		},
		"stars":    starBar,
		"join":     strings.Join,
		"label":    func(c tmdb.Category) string { return c.Label() },
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
		"runtime":  formatRuntime,
		"kindName": kindName,
	}

	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// render writes a page. The page is rendered to a buffer first so a template
// error never produces a half-written response.
func (r *renderer) render(w http.ResponseWriter, status int, name string, data pageData) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// starBar renders the five-star scale, e.g. "★★★★☆ 4.2", or "N/A"
func starBar(item tmdb.MediaItem) string {
	stars, ok := item.Stars()
	if !ok {
		return "N/A"
	}
	full := int(math.Round(stars))
	full = max(0, min(5, full))
	return strings.Repeat("★", full) + strings.Repeat("☆", 5-full) + " " + item.RatingLabel()
}

func formatRuntime(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func kindName(kind tmdb.MediaKind) string {
	if kind.IsMovie() {
		return "Movies"
	}
	return "TV Shows"
}
