package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:     "test",
	Short:   "Test the TMDB connection and identity configuration",
	PreRunE: initializeApp,
	RunE:    runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fmt.Print("→ Connecting to TMDB... ")
	if err := tmdbClient.Ping(ctx); err != nil {
		fmt.Printf("✗ Failed: %v\n", err)
		return err
	}
	fmt.Println("✓ Connected")

	fmt.Printf("→ Checking %s identity provider... ", cfg.Identity.Provider)
	if err := cfg.ValidateServer(); err != nil {
		fmt.Printf("✗ Invalid: %v\n", err)
		return err
	}
	if _, err := newIdentityFactory(cfg.Identity); err != nil {
		fmt.Printf("✗ Failed: %v\n", err)
		return err
	}
	fmt.Println("✓ Ready")

	if cfg.Identity.Google.Enabled() {
		fmt.Printf("✓ Google sign-in enabled (redirect %s)\n", cfg.Identity.Google.RedirectURL)
	}
	if n := len(filters.Presets()); n > 0 {
		fmt.Printf("✓ %d filter presets compiled\n", n)
	}

	return nil
}
