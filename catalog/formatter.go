package catalog

import (
	"fmt"
	"strings"

	"github.com/s0up4200/movieflix/tmdb"
)

// FormatOptions controls console output
type FormatOptions struct {
	ShowOverview bool
	ShowIDs      bool
	ShowImages   bool
	ImageSize    tmdb.ImageSize
}

// ConsoleFormatter provides console output formatting for catalog views
type ConsoleFormatter struct {
	imageURL func(path string, size tmdb.ImageSize) string
}

// NewConsoleFormatter creates a new console formatter. imageURL resolves
// poster paths; nil uses the public TMDB image host.
func NewConsoleFormatter(imageURL func(path string, size tmdb.ImageSize) string) *ConsoleFormatter {
	if imageURL == nil {
		imageURL = tmdb.BuildImageURL
	}
	return &ConsoleFormatter{imageURL: imageURL}
}

// FormatItemList formats a titled list of items for console display
func (f *ConsoleFormatter) FormatItemList(title string, items []tmdb.MediaItem, options FormatOptions) string {
	if len(items) == 0 {
		return fmt.Sprintf("%s: no results found\n", title)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s (%d):\n\n", title, len(items))

	for i, item := range items {
		isLast := i == len(items)-1
		f.formatItem(&sb, item, isLast, options)

		if !isLast {
			sb.WriteString("│\n")
		}
	}

	sb.WriteString("\n")
	return sb.String()
}

// FormatHome formats the three home sections
func (f *ConsoleFormatter) FormatHome(view HomeView, options FormatOptions) string {
	var sb strings.Builder
	sb.WriteString(f.FormatItemList("Trending Now", view.Trending, options))
	sb.WriteString(f.FormatItemList("Popular Movies", view.PopularMovies, options))
	sb.WriteString(f.FormatItemList("Popular TV Shows", view.PopularTV, options))
	return sb.String()
}

// FormatPage formats a listing page with its pagination footer
func (f *ConsoleFormatter) FormatPage(title string, page tmdb.Page, options FormatOptions) string {
	var sb strings.Builder
	sb.WriteString(f.FormatItemList(title, page.Results, options))
	if page.TotalPages > 0 {
		fmt.Fprintf(&sb, "Page %d of %d (%d results)\n", page.Page, page.TotalPages, page.TotalResults)
	}
	return sb.String()
}

// FormatDetails formats a detail view
func (f *ConsoleFormatter) FormatDetails(view DetailView, options FormatOptions) string {
	if !view.Found || view.Details == nil {
		return "Content not found\n"
	}

	d := view.Details
	var sb strings.Builder

	fmt.Fprintf(&sb, "\n%s", d.DisplayName())
	if year := d.Year(); year > 0 {
		fmt.Fprintf(&sb, " (%d)", year)
	}
	sb.WriteString("\n")
	if d.Tagline != "" {
		fmt.Fprintf(&sb, "│   %q\n", d.Tagline)
	}

	var parts []string
	parts = append(parts, ratingLine(d.MediaItem))
	if date := d.Date(); date != "" {
		parts = append(parts, date)
	}
	if d.Runtime > 0 {
		parts = append(parts, fmt.Sprintf("%d min", d.Runtime))
	}
	if d.NumberOfSeasons > 0 {
		parts = append(parts, fmt.Sprintf("%d seasons, %d episodes", d.NumberOfSeasons, d.NumberOfEpisodes))
	}
	if d.Status != "" {
		parts = append(parts, d.Status)
	}
	fmt.Fprintf(&sb, "├── %s\n", strings.Join(parts, " | "))

	if genres := d.GenreNames(); len(genres) > 0 {
		fmt.Fprintf(&sb, "├── Genres: %s\n", strings.Join(genres, ", "))
	}
	if options.ShowImages {
		fmt.Fprintf(&sb, "├── Poster: %s\n", f.imageURL(d.PosterPath, options.ImageSize))
		fmt.Fprintf(&sb, "├── Backdrop: %s\n", f.imageURL(d.BackdropPath, tmdb.SizeOriginal))
	}
	if view.Trailer != nil {
		fmt.Fprintf(&sb, "├── Trailer: %s (%s)\n", view.Trailer.EmbedURL(), view.Trailer.Name)
	} else {
		sb.WriteString("├── Trailer: none\n")
	}

	overview := d.Overview
	if overview == "" {
		overview = "No overview available."
	}
	fmt.Fprintf(&sb, "╰── %s\n\n", overview)

	return sb.String()
}

// formatItem formats a single list entry
func (f *ConsoleFormatter) formatItem(sb *strings.Builder, item tmdb.MediaItem, isLast bool, options FormatOptions) {
	prefix := "├"
	if isLast {
		prefix = "╰"
	}

	fmt.Fprintf(sb, "%s── %s", prefix, item.DisplayName())
	if year := item.Year(); year > 0 {
		fmt.Fprintf(sb, " (%d)", year)
	}
	fmt.Fprintf(sb, " [%s]\n", kindLabel(item.Kind()))

	indent := "│   "
	if isLast {
		indent = "    "
	}

	fmt.Fprintf(sb, "%s%s\n", indent, ratingLine(item))

	if options.ShowIDs {
		fmt.Fprintf(sb, "%sPath: %s\n", indent, item.Path())
	}
	if options.ShowImages {
		fmt.Fprintf(sb, "%sPoster: %s\n", indent, f.imageURL(item.PosterPath, options.ImageSize))
	}
	if options.ShowOverview && item.Overview != "" {
		fmt.Fprintf(sb, "%s%s\n", indent, truncate(item.Overview, 160))
	}
}

func ratingLine(item tmdb.MediaItem) string {
	if !item.HasRating() {
		return "Rating: N/A"
	}
	return fmt.Sprintf("Rating: %s/5 (%d votes)", item.RatingLabel(), item.VoteCount)
}

func kindLabel(kind tmdb.MediaKind) string {
	if kind.IsMovie() {
		return "Movie"
	}
	return "TV"
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
