package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackarch/wordlistctl/pkg/catalog"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var groups []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog wordlists",
		Long: `List the wordlists known to the catalog with their group, declared size
and available source protocols. Use --group to restrict the listing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, groups)
		},
	}

	cmd.Flags().StringSliceVarP(&groups, "group", "g", nil,
		fmt.Sprintf("only list these groups (%s)", groupNames()))

	return cmd
}

func runList(cmd *cobra.Command, groupFlags []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	groups, err := parseGroups(groupFlags)
	if err != nil {
		return err
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	entries := cat.All()
	if len(groups) > 0 {
		entries = cat.ByGroup(groups...)
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No wordlists in catalog")
		return nil
	}

	printEntries(cmd, entries, false)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d wordlist(s)\n", len(entries))
	return nil
}

// printEntries writes a table of entries, optionally numbered from 1 for
// search --fetch.
func printEntries(cmd *cobra.Command, entries []catalog.Entry, numbered bool) {
	if len(entries) == 0 {
		return
	}

	tabWriter := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, TabWidth, ' ', 0)
	header := "NAME\tGROUP\tSIZE\tSOURCES"
	if numbered {
		header = "#\t" + header
	}
	_, _ = fmt.Fprintln(tabWriter, header)

	for i, e := range entries {
		size := "-"
		if e.Size() > 0 {
			size = humanize.Bytes(e.Size())
		}
		row := fmt.Sprintf("%s\t%s\t%s\t%s", e.Name, e.Group, size, sourceProtocols(e))
		if numbered {
			row = fmt.Sprintf("%d\t%s", i+1, row)
		}
		_, _ = fmt.Fprintln(tabWriter, row)
	}

	_ = tabWriter.Flush()
}

func sourceProtocols(e catalog.Entry) string {
	protos := make([]string, 0, len(e.Sources))
	seen := make(map[string]bool)
	for _, s := range e.Sources {
		p := s.Protocol.String()
		if !seen[p] {
			seen[p] = true
			protos = append(protos, p)
		}
	}
	return strings.Join(protos, ",")
}
