package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/catalog"
	"github.com/blackarch/wordlistctl/pkg/config"
	"github.com/blackarch/wordlistctl/pkg/errors"
)

// fetchOptions are the flags shared by fetch and search --fetch. Only flags
// set on the command line override the config file.
type fetchOptions struct {
	groups         []string
	baseDir        string
	workers        int
	decompress     bool
	userAgent      string
	proxy          string
	preferTorrent  bool
	skipIntegrity  bool
	retry          bool
	nonInteractive bool
}

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch [NAME...]",
		Short: "Download wordlists",
		Long: `Download the named wordlists, or every wordlist in the selected groups,
into <base-dir>/<group>/. Interrupted transfers resume from their .part file.
Failed items are reported in the summary; the exit code is only non-zero for
configuration problems.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args, opts)
		},
	}

	addFetchFlags(cmd, opts, true)

	return cmd
}

func addFetchFlags(cmd *cobra.Command, opts *fetchOptions, withGroup bool) {
	flags := cmd.Flags()
	if withGroup {
		flags.StringSliceVarP(&opts.groups, "group", "g", nil,
			fmt.Sprintf("wordlist groups to fetch (%s)", groupNames()))
	}
	flags.StringVarP(&opts.baseDir, "base-dir", "b", "", "download directory (default from config)")
	flags.IntVarP(&opts.workers, "workers", "w", config.DefaultWorkers, "number of concurrent downloads")
	flags.BoolVarP(&opts.decompress, "decompress", "d", true, "decompress downloaded archives")
	flags.StringVarP(&opts.userAgent, "user-agent", "u", "", "HTTP user agent")
	flags.StringVarP(&opts.proxy, "proxy", "P", "", "proxy URL (http, https or socks5)")
	flags.BoolVarP(&opts.preferTorrent, "prefer-torrent", "T", false, "try torrent sources before HTTP")
	flags.BoolVar(&opts.skipIntegrity, "skip-integrity", false, "only warn on checksum mismatches")
	flags.BoolVarP(&opts.retry, "retry", "r", false, "retry failed downloads once without asking")
	flags.BoolVar(&opts.nonInteractive, "non-interactive", false, "never prompt")
}

// apply copies the flags the user set onto cfg.
func (o *fetchOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("base-dir") {
		cfg.Settings.BaseDir = o.baseDir
	}
	if flags.Changed("workers") {
		if o.workers < 1 {
			return errors.Wrapf(errors.ErrInvalidConcurrency, "got %d", o.workers)
		}
		cfg.Settings.Workers = o.workers
	}
	if flags.Changed("decompress") {
		cfg.Settings.Decompress = o.decompress
	}
	if flags.Changed("user-agent") {
		cfg.Settings.UserAgent = o.userAgent
	}
	if flags.Changed("proxy") {
		cfg.Settings.Proxy = o.proxy
	}
	if flags.Changed("prefer-torrent") {
		cfg.Settings.PreferTorrent = o.preferTorrent
	}
	if flags.Changed("skip-integrity") {
		cfg.Settings.SkipIntegrity = o.skipIntegrity
	}
	if o.nonInteractive {
		cfg.Settings.Interactive = false
	}
	return cfg.Validate()
}

func runFetch(cmd *cobra.Command, names []string, opts *fetchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return err
	}

	groups, err := parseGroups(opts.groups)
	if err != nil {
		return err
	}
	if len(names) == 0 && len(groups) == 0 {
		return errors.Wrap(errors.ErrConfigValidation, "nothing to fetch: name wordlists or pass --group")
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	entries, unknown := cat.Select(names, groups)
	return fetchEntries(cmd, cfg, opts, entries, unknown)
}

// fetchEntries runs one batch and prints its summary. Per-item failures never
// turn into a command error.
func fetchEntries(cmd *cobra.Command, cfg *config.Config, opts *fetchOptions, entries []catalog.Entry, unknown []string) error {
	for _, name := range unknown {
		logger.Warn("Unknown wordlist, skipping", logger.Fields{"name": name})
	}

	out := cmd.OutOrStdout()
	eng, err := newEngine(cfg, engineOptions{
		RetryFailed: opts.retry,
		Prompt:      newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()),
		Out:         out,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	logger.Info("Fetching wordlists", logger.Fields{
		"count": len(entries), "base_dir": cfg.Settings.BaseDir, "workers": cfg.Settings.Workers,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	batch, err := eng.run(ctx, entries, unknown)
	if err != nil {
		return err
	}

	printSummary(out, batch)
	return nil
}

func parseGroups(values []string) ([]catalog.Group, error) {
	groups := make([]catalog.Group, 0, len(values))
	for _, v := range values {
		// Accept both --group a,b and --group "a b".
		for _, name := range strings.Fields(v) {
			g, err := catalog.ParseGroup(name)
			if err != nil {
				return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
			}
			groups = append(groups, g)
		}
	}
	return groups, nil
}

func groupNames() string {
	names := make([]string, 0, len(catalog.Groups()))
	for _, g := range catalog.Groups() {
		names = append(names, string(g))
	}
	return strings.Join(names, ", ")
}
