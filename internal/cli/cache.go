package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/cache"
)

// NewCacheCmd creates the cache command with subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean the base directory",
		Long:  "Show disk usage of fetched wordlists and remove interrupted downloads or leftover torrent files",
	}

	cmd.AddCommand(
		newCacheInfoCmd(),
		newCacheCleanCmd(),
	)

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show base directory usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheInfo(cmd)
		},
	}
}

func newCacheCleanCmd() *cobra.Command {
	var options cache.CleanOptions

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover files",
		Long: `Remove interrupted .part downloads and .torrent descriptors below the base
directory. Without flags both are removed. Removed .part files cannot resume.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheClean(cmd, options)
		},
	}

	cmd.Flags().BoolVar(&options.Partials, "partials", false, "remove interrupted .part downloads")
	cmd.Flags().BoolVar(&options.Descriptors, "descriptors", false, "remove .torrent descriptors")

	return cmd
}

func runCacheInfo(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := cache.NewManager(cfg.Settings.BaseDir).GetInfo()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Directory: %s\n\n", info.Directory)

	tabWriter := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "GROUP\tFILES\tSIZE")
	for _, g := range info.Groups {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%d\t%s\n", g.Name, g.Files, humanize.Bytes(uint64(g.Size)))
	}
	_, _ = fmt.Fprintf(tabWriter, "(partial)\t%d\t%s\n", info.PartialFiles, humanize.Bytes(uint64(info.PartialSize)))
	_, _ = fmt.Fprintf(tabWriter, "(torrent)\t%d\t%s\n", info.DescriptorFiles, humanize.Bytes(uint64(info.DescriptorSize)))
	_ = tabWriter.Flush()

	_, _ = fmt.Fprintf(out, "\nTotal: %s\n", humanize.Bytes(uint64(info.TotalSize)))
	return nil
}

func runCacheClean(cmd *cobra.Command, options cache.CleanOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := cache.NewManager(cfg.Settings.BaseDir).Clean(options)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 {
		_, _ = fmt.Fprintln(out, "No leftover files were found.")
		return nil
	}

	_, _ = fmt.Fprintf(out, "Removed %d file(s), freed %s.\n", len(result.Removed), humanize.Bytes(uint64(result.TotalFreed)))
	if result.PartialFreed > 0 {
		_, _ = fmt.Fprintf(out, "- Partial downloads: %s\n", humanize.Bytes(uint64(result.PartialFreed)))
	}
	if result.DescriptorFreed > 0 {
		_, _ = fmt.Fprintf(out, "- Torrent files: %s\n", humanize.Bytes(uint64(result.DescriptorFreed)))
	}
	logger.Success("Base directory cleaned", logger.Fields{"freed": result.TotalFreed})
	return nil
}
