package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s0up4200/movieflix/catalog"
	"github.com/s0up4200/movieflix/filter"
	"github.com/s0up4200/movieflix/tmdb"
)

var (
	category     string
	page         int
	trendingKind string
	window       string
	showOverview bool
	showIDs      bool
	showImages   bool
	imageSize    string
	imageURLSize string
)

// homeCmd prints the three home sections
var homeCmd = &cobra.Command{
	Use:     "home",
	Short:   "Show trending titles and popular movies and TV shows",
	PreRunE: initializeApp,
	RunE:    runHome,
}

// trendingCmd represents the trending command
var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List trending movies and TV shows",
	Long: `List trending titles for today or this week.

Examples:
  movieflix trending
  movieflix trending --kind movie --window week
  movieflix trending --filter "rating:>=7"`,
	PreRunE: initializeApp,
	RunE:    runTrending,
}

// moviesCmd represents the movies command
var moviesCmd = &cobra.Command{
	Use:     "movies",
	Short:   "List movies by category (popular, top_rated, now_playing, upcoming)",
	PreRunE: initializeApp,
	RunE:    runListing(tmdb.KindMovie),
}

// tvCmd represents the tv command
var tvCmd = &cobra.Command{
	Use:     "tv",
	Short:   "List TV shows by category (popular, top_rated, on_the_air, airing_today)",
	PreRunE: initializeApp,
	RunE:    runListing(tmdb.KindTV),
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:     "search <query>",
	Short:   "Search movies and TV shows",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: initializeApp,
	RunE:    runSearch,
}

// detailsCmd represents the details command
var detailsCmd = &cobra.Command{
	Use:   "details <movie|tv> <id>",
	Short: "Show details and the trailer of a movie or TV show",
	Example: `  movieflix details movie 693134
  movieflix details tv 1396`,
	Args:    cobra.ExactArgs(2),
	PreRunE: initializeApp,
	RunE:    runDetails,
}

// imageURLCmd prints the URL of an image path
var imageURLCmd = &cobra.Command{
	Use:   "image-url <path>",
	Short: "Print the image URL for a poster or backdrop path",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImageURL,
}

func init() {
	for _, c := range []*cobra.Command{homeCmd, trendingCmd, moviesCmd, tvCmd, searchCmd, detailsCmd} {
		c.Flags().BoolVar(&showOverview, "overview", false, "show overviews")
		c.Flags().BoolVar(&showIDs, "ids", false, "show TMDB IDs")
		c.Flags().BoolVar(&showImages, "images", false, "show poster URLs")
		c.Flags().StringVar(&imageSize, "size", string(tmdb.SizeW342), "poster size for --images")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(imageURLCmd)

	trendingCmd.Flags().StringVar(&trendingKind, "kind", string(tmdb.TrendingAll), "media kind (all, movie, tv)")
	trendingCmd.Flags().StringVar(&window, "window", string(tmdb.WindowDay), "time window (day, week)")

	for _, c := range []*cobra.Command{moviesCmd, tvCmd} {
		c.Flags().StringVarP(&category, "category", "c", string(tmdb.CategoryPopular), "listing category")
		c.Flags().IntVar(&page, "page", 1, "page number")
	}
	searchCmd.Flags().IntVar(&page, "page", 1, "page number")

	imageURLCmd.Flags().StringVar(&imageURLSize, "size", string(tmdb.SizeOriginal), "image size")
}

func formatOptions() catalog.FormatOptions {
	return catalog.FormatOptions{
		ShowOverview: showOverview,
		ShowIDs:      showIDs,
		ShowImages:   showImages,
		ImageSize:    tmdb.ImageSize(imageSize),
	}
}

func newFormatter() *catalog.ConsoleFormatter {
	return catalog.NewConsoleFormatter(tmdbClient.ImageURL)
}

func runHome(cmd *cobra.Command, args []string) error {
	f, err := resolveFilter()
	if err != nil {
		return err
	}

	view, err := catalog.NewLoader(tmdbClient, logger).Home(cmd.Context())
	if err != nil {
		return err
	}

	view.Trending = filter.Apply(f, view.Trending)
	view.PopularMovies = filter.Apply(f, view.PopularMovies)
	view.PopularTV = filter.Apply(f, view.PopularTV)

	fmt.Print(newFormatter().FormatHome(view, formatOptions()))
	return nil
}

func runTrending(cmd *cobra.Command, args []string) error {
	kind := tmdb.TrendingKind(trendingKind)
	if !kind.Valid() {
		return fmt.Errorf("invalid kind: %s (must be 'all', 'movie' or 'tv')", trendingKind)
	}
	w := tmdb.Window(window)
	if !w.Valid() {
		return fmt.Errorf("invalid window: %s (must be 'day' or 'week')", window)
	}

	f, err := resolveFilter()
	if err != nil {
		return err
	}

	view, err := catalog.NewLoader(tmdbClient, logger).Trending(cmd.Context(), kind, w)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Trending %s (%s)", kind, w)
	fmt.Print(newFormatter().FormatItemList(title, filter.Apply(f, view.Items), formatOptions()))
	return nil
}

func runListing(kind tmdb.MediaKind) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c := tmdb.Category(category)
		if !c.ValidFor(kind) {
			return fmt.Errorf("invalid category for %s: %s (valid: %v)", kind, category, tmdb.Categories(kind))
		}

		f, err := resolveFilter()
		if err != nil {
			return err
		}

		view, err := catalog.NewLoader(tmdbClient, logger).Listing(cmd.Context(), kind, c, page)
		if err != nil {
			return err
		}
		view.Page.Results = filter.Apply(f, view.Page.Results)

		title := fmt.Sprintf("%s %s", c.Label(), kindLabel(kind))
		fmt.Print(newFormatter().FormatPage(title, view.Page, formatOptions()))
		return nil
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	f, err := resolveFilter()
	if err != nil {
		return err
	}

	view, err := catalog.NewLoader(tmdbClient, logger).Search(cmd.Context(), query, page)
	if err != nil {
		return err
	}
	if !view.Searched {
		fmt.Println("Enter a search term to find movies and TV shows.")
		return nil
	}
	view.Page.Results = filter.Apply(f, view.Page.Results)

	fmt.Print(newFormatter().FormatPage(fmt.Sprintf("Results for %q", view.Query), view.Page, formatOptions()))
	return nil
}

func runDetails(cmd *cobra.Command, args []string) error {
	kind, err := tmdb.ParseMediaKind(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(args[1])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid id: %s", args[1])
	}

	view, err := catalog.NewLoader(tmdbClient, logger).Details(cmd.Context(), kind, id)
	if err != nil {
		return err
	}

	fmt.Print(newFormatter().FormatDetails(view, formatOptions()))
	return nil
}

func runImageURL(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	fmt.Println(tmdb.BuildImageURL(path, tmdb.ImageSize(imageURLSize)))
	return nil
}

func kindLabel(kind tmdb.MediaKind) string {
	if kind.IsMovie() {
		return "Movies"
	}
	return "TV Shows"
}

