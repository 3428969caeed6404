package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackarch/wordlistctl/internal/cli"
)

var (
	configPath   string
	verbose      bool
	outputFormat string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wordlistctl",
		Short: "Fetch, install and search wordlist archives",
		Long: `wordlistctl fetches wordlists from a catalog into a local directory tree:
- HTTP downloads with resume, retries and landing-page resolution
- BitTorrent sources through one shared session
- checksum verification and decompression after each download`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "log-format", "o", "", "log format (text, json)")

	// Set up CLI pkg variables
	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.OutputFormat = &outputFormat

	cmd.AddCommand(
		cli.NewFetchCmd(),
		cli.NewSearchCmd(),
		cli.NewListCmd(),
		cli.NewConfigCmd(),
		cli.NewCacheCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
