package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/s0up4200/movieflix/config"
	"github.com/s0up4200/movieflix/filter"
	"github.com/s0up4200/movieflix/tmdb"
)

var (
	cfgFile    string
	cfg        *config.Config
	logger     = zerolog.Nop()
	logFile    io.Closer
	tmdbClient *tmdb.Client
	filters    *filter.Manager

	// Command flags
	filterExpr string
	preset     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "movieflix",
	Short: "Browse movies and TV shows from TMDB",
	Long: `movieflix is a movie and TV discovery app backed by The Movie Database.

It serves a web front end with trending, popular and top rated listings,
search, detail pages with trailers and user accounts, and offers the same
listings on the command line.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if logFile != nil {
		_ = logFile.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&filterExpr, "filter", "f", "", "filter expression applied to listings")
	rootCmd.PersistentFlags().StringVarP(&preset, "preset", "p", "", "use a preset filter from config")
}

// initializeApp initializes the configuration and clients
func initializeApp(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	logger, logFile = setupLogger(cfg.Logging, os.Stderr, isTerminal)

	// Create TMDB client
	tmdbClient, err = tmdb.NewClient(cfg.TMDB.APIKey, logger,
		tmdb.WithBaseURL(cfg.TMDB.BaseURL),
		tmdb.WithImageBaseURL(cfg.TMDB.ImageBaseURL),
		tmdb.WithLanguage(cfg.TMDB.Language),
		tmdb.WithTimeout(cfg.TMDB.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create TMDB client: %w", err)
	}

	// Compile filter presets up front so a broken preset fails fast
	filters = filter.NewManager(filter.WithCompiler(
		filter.NewExprCompiler(filter.WithCache(100), filter.WithLogger(logger)),
	))
	if err := filters.RegisterPresets(cfg.Filter.Presets); err != nil {
		return fmt.Errorf("invalid filter preset: %w", err)
	}

	logger.Debug().
		Str("config", cfgFile).
		Str("identity_provider", cfg.Identity.Provider).
		Int("presets", len(cfg.Filter.Presets)).
		Msg("Application initialized")

	return nil
}

// setupLogger configures the zerolog logger. Console colors are only used on
// a terminal. When a log file is configured, JSON lines are also written to a
// rotating file whose closer is returned.
func setupLogger(cfg config.LoggingConfig, stderr io.Writer, isTerminal bool) (zerolog.Logger, io.Closer) {
	// Set log level
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output format
	var output io.Writer = stderr
	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{
			Out:        stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !cfg.Color || !isTerminal,
		}
	}

	if cfg.File.Path == "" {
		return zerolog.New(output).With().Timestamp().Logger(), nil
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSizeMB,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAgeDays,
		Compress:   cfg.File.Compress,
	}

	return zerolog.New(zerolog.MultiLevelWriter(output, file)).With().Timestamp().Logger(), file
}

// resolveFilter returns the filter selected by --preset or --filter, or nil
func resolveFilter() (filter.CompiledFilter, error) {
	f, err := filters.Resolve(preset, filterExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	if f == nil {
		return nil, nil
	}

	logger.Info().Str("filter", f.Expression()).Msg("Filtering results")
	return f, nil
}
