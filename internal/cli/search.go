package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackarch/wordlistctl/pkg/catalog"
	"github.com/blackarch/wordlistctl/pkg/errors"
)

type searchOptions struct {
	local bool
	regex bool
	fetch string
	fetchOptions
}

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search for wordlists",
		Long: `Search wordlist names in the catalog, or with --local the files already
present under the base directory. Matching is a case-insensitive substring
unless --regex is given.

Results are numbered; --fetch=1,3 downloads the catalog results with those
numbers using the same options as the fetch command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.local, "local", "l", false, "search files under the base directory")
	cmd.Flags().BoolVarP(&opts.regex, "regex", "x", false, "treat QUERY as a regular expression")
	cmd.Flags().StringVarP(&opts.fetch, "fetch", "f", "", "fetch results by 1-based index, e.g. 1,3")
	addFetchFlags(cmd, &opts.fetchOptions, false)

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts *searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return err
	}

	if opts.local {
		if opts.fetch != "" {
			return errors.Wrap(errors.ErrConfigValidation, "--fetch cannot be combined with --local")
		}
		return searchLocal(cmd, cfg.Settings.BaseDir, query, opts.regex)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	results, err := cat.Search(query, opts.regex)
	if err != nil {
		return errors.Wrap(errors.ErrConfigValidation, err.Error())
	}

	if opts.fetch == "" {
		printEntries(cmd, results, true)
		if len(results) == 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No wordlists found matching '%s'\n", query)
		}
		return nil
	}

	indexes, err := parseIndexes(opts.fetch, len(results))
	if err != nil {
		return err
	}
	selected := make([]catalog.Entry, 0, len(indexes))
	for _, i := range indexes {
		selected = append(selected, results[i-1])
	}

	return fetchEntries(cmd, cfg, &opts.fetchOptions, selected, nil)
}

func searchLocal(cmd *cobra.Command, root, query string, regex bool) error {
	files, err := catalog.SearchLocal(root, query, regex)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(files) == 0 {
		_, _ = fmt.Fprintf(out, "No local files found matching '%s' under %s\n", query, root)
		return nil
	}

	tabWriter := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "#\tPATH\tSIZE")
	for i, f := range files {
		_, _ = fmt.Fprintf(tabWriter, "%d\t%s\t%s\n", i+1, f.Path, humanize.Bytes(uint64(f.Size)))
	}
	return tabWriter.Flush()
}

// parseIndexes parses a comma separated list of 1-based indexes into a
// de-duplicated list, keeping the given order.
func parseIndexes(selection string, count int) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrConfigValidation, "invalid index %q", part)
		}
		if n < 1 || n > count {
			return nil, errors.Wrapf(errors.ErrConfigValidation, "index %d out of range 1..%d", n, count)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrap(errors.ErrConfigValidation, "no indexes given")
	}
	return out, nil
}
