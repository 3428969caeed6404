// Package catalog loads the wordlist catalog and answers lookups by name,
// group and search query. A Catalog is read-only after loading and safe for
// concurrent use.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/errors"
)

// Catalog is the set of known entries keyed by name.
type Catalog struct {
	entries map[string]Entry
	names   []string
}

// stringList accepts either a JSON string or a list of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = []string{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = many
	return nil
}

// sizeList accepts a number, a human size string ("1.2 GB"), or a list of either.
type sizeList []uint64

func (l *sizeList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		raw = []json.RawMessage{data}
	}
	out := make([]uint64, 0, len(raw))
	for _, item := range raw {
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			out = append(out, uint64(n))
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("invalid size %s", string(item))
		}
		b, err := humanize.ParseBytes(s)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", s, err)
		}
		out = append(out, b)
	}
	*l = out
	return nil
}

type rawEntry struct {
	Group string     `json:"group"`
	URL   stringList `json:"url"`
	Sum   stringList `json:"sum"`
	Size  sizeList   `json:"size"`
}

// Load reads a catalog file. Any read or parse failure is a configuration error.
func Load(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCatalog, "%s: %v", path, err)
	}
	defer func() { _ = file.Close() }()
	return Parse(file)
}

// Parse decodes a catalog document. Sources with unsupported schemes are
// dropped with a warning; entries left without sources stay listed and fail
// at fetch time with ErrNoUsableSource.
func Parse(r io.Reader) (*Catalog, error) {
	var raw map[string]rawEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(errors.ErrCatalog, err.Error())
	}

	c := &Catalog{entries: make(map[string]Entry, len(raw))}
	for name, re := range raw {
		group, err := ParseGroup(re.Group)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCatalog, "entry %s: %v", name, err)
		}
		entry := Entry{Name: name, Group: group, Sizes: re.Size}
		for i, locator := range re.URL {
			proto, err := InferProtocol(locator)
			if err != nil {
				logger.Warn("Ignoring catalog source", logger.Fields{"entry": name, "error": err})
				continue
			}
			src := SourceRef{Protocol: proto, URL: locator}
			if i < len(re.Sum) {
				src.Checksum = re.Sum[i]
			}
			entry.Sources = append(entry.Sources, src)
		}
		c.entries[name] = entry
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, nil
}

// New builds a catalog from in-memory entries.
func New(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, dup := c.entries[e.Name]; !dup {
			c.names = append(c.names, e.Name)
		}
		c.entries[e.Name] = e
	}
	sort.Strings(c.names)
	return c
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.names) }

// Lookup returns the entry with the given name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// All returns every entry sorted by name.
func (c *Catalog) All() []Entry {
	out := make([]Entry, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.entries[n])
	}
	return out
}

// ByGroup returns the entries belonging to any of groups, sorted by name.
func (c *Catalog) ByGroup(groups ...Group) []Entry {
	want := make(map[Group]bool, len(groups))
	for _, g := range groups {
		want[g] = true
	}
	var out []Entry
	for _, n := range c.names {
		if e := c.entries[n]; want[e.Group] {
			out = append(out, e)
		}
	}
	return out
}

// Select resolves explicit names and group filters into a deduplicated list
// of entries. Names not present in the catalog are returned in unknown.
func (c *Catalog) Select(names []string, groups []Group) (selected []Entry, unknown []string) {
	seen := make(map[string]bool)
	for _, n := range names {
		e, ok := c.entries[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		if !seen[n] {
			seen[n] = true
			selected = append(selected, e)
		}
	}
	for _, e := range c.ByGroup(groups...) {
		if !seen[e.Name] {
			seen[e.Name] = true
			selected = append(selected, e)
		}
	}
	return selected, unknown
}

// Search returns entries whose name contains query (case-insensitive), or
// matches it as a regular expression when regex is set.
func (c *Catalog) Search(query string, regex bool) ([]Entry, error) {
	match, err := Matcher(query, regex)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, n := range c.names {
		if match(n) {
			out = append(out, c.entries[n])
		}
	}
	return out, nil
}

// Matcher builds the name predicate shared by catalog and local search.
func Matcher(query string, regex bool) (func(string) bool, error) {
	if regex {
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("invalid search pattern: %w", err)
		}
		return re.MatchString, nil
	}
	q := strings.ToLower(query)
	return func(s string) bool { return strings.Contains(strings.ToLower(s), q) }, nil
}
