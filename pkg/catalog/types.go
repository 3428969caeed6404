package catalog

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/blackarch/wordlistctl/pkg/archive"
	"github.com/blackarch/wordlistctl/pkg/errors"
)

// Protocol is the closed set of retrieval methods a source can use.
type Protocol int

const (
	ProtocolHTTP Protocol = iota
	ProtocolTorrent
	ProtocolMagnet
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolTorrent:
		return "torrent"
	case ProtocolMagnet:
		return "magnet"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// IsSwarm reports whether the protocol is served by the BitTorrent session.
func (p Protocol) IsSwarm() bool {
	return p == ProtocolTorrent || p == ProtocolMagnet
}

// InferProtocol classifies a locator string.
func InferProtocol(locator string) (Protocol, error) {
	if strings.HasPrefix(strings.ToLower(locator), "magnet:") {
		return ProtocolMagnet, nil
	}
	u, err := url.Parse(locator)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrUnsupportedProto, "%q", locator)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return 0, errors.Wrapf(errors.ErrUnsupportedProto, "%q", locator)
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".torrent") {
		return ProtocolTorrent, nil
	}
	return ProtocolHTTP, nil
}

// Group is one of the fixed wordlist categories; it names the subdirectory
// of the base directory an entry is stored in.
type Group string

const (
	GroupUsernames Group = "usernames"
	GroupPasswords Group = "passwords"
	GroupDiscovery Group = "discovery"
	GroupFuzzing   Group = "fuzzing"
	GroupMisc      Group = "misc"
)

// Groups returns every known group in display order.
func Groups() []Group {
	return []Group{GroupUsernames, GroupPasswords, GroupDiscovery, GroupFuzzing, GroupMisc}
}

// ParseGroup validates a group name.
func ParseGroup(s string) (Group, error) {
	g := Group(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Groups() {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown group %q (valid: usernames, passwords, discovery, fuzzing, misc)", s)
}

// SourceRef is a single retrieval method for an entry.
type SourceRef struct {
	Protocol Protocol
	URL      string
	// Checksum is a hex digest, "SKIP", or empty.
	Checksum string
	// Name overrides the file name derived from URL. See Entry.LocalName.
	Name string
}

// FileName derives the on-disk name for the source's payload. Magnet links
// have no name until swarm metadata arrives, so they return "".
func (s SourceRef) FileName() string {
	if s.Protocol == ProtocolMagnet {
		return ""
	}
	if s.Name != "" {
		return filepath.Base(s.Name)
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	base := path.Base(p)
	// SourceForge style: /files/<name>/download
	if base == "download" {
		base = path.Base(path.Dir(p))
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return filepath.Base(base)
}

// Entry is one named wordlist. Entries are immutable once loaded.
type Entry struct {
	Name    string
	Group   Group
	Sources []SourceRef
	// Sizes holds the declared sizes in bytes, aligned with Sources where given.
	Sizes []uint64
}

// Size returns the first declared size, or 0.
func (e Entry) Size() uint64 {
	if len(e.Sizes) == 0 {
		return 0
	}
	return e.Sizes[0]
}

// Dir returns the group directory for the entry below root.
func (e Entry) Dir(root string) string {
	return filepath.Join(root, string(e.Group))
}

// LocalName returns the file name src is stored under for e: the entry name
// followed by the suffixes of the remote file that decide how it is unpacked.
// Entry names are unique in a catalog, so two entries of one group never
// share a destination. Magnet sources return "".
func (e Entry) LocalName(src SourceRef) string {
	src.Name = ""
	remote := src.FileName()
	if remote == "" {
		return ""
	}
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(e.Name)
	if name == "" || name == "." || name == ".." {
		return remote
	}
	return name + localSuffix(remote)
}

// WithLocalName returns src with Name set to e.LocalName(src).
func (e Entry) WithLocalName(src SourceRef) SourceRef {
	src.Name = e.LocalName(src)
	return src
}

// localSuffix keeps an archive suffix as a whole, and for single compressed
// streams also the extension in front of it, so "rockyou.txt.gz" keeps
// ".txt.gz" and inflates to a ".txt" file.
func localSuffix(remote string) string {
	kind, suffix := archive.Classify(remote)
	switch kind {
	case archive.KindArchive:
		return remote[len(remote)-len(suffix):]
	case archive.KindStream:
		stem := remote[:len(remote)-len(suffix)]
		return plainExt(stem) + remote[len(stem):]
	default:
		return plainExt(remote)
	}
}

// plainExt returns the extension of name when it looks like a file type:
// short, alphanumeric and not purely digits.
func plainExt(name string) string {
	ext := filepath.Ext(name)
	if len(ext) < 2 || len(ext) > 10 || len(ext) == len(name) {
		return ""
	}
	letter := false
	for _, r := range ext[1:] {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
		default:
			return ""
		}
	}
	if !letter {
		return ""
	}
	return ext
}

// SelectSource applies the source preference rule: HTTP first, unless
// BitTorrent is the only option or explicitly preferred.
func (e Entry) SelectSource(preferTorrent bool) (SourceRef, error) {
	ordered := e.OrderedSources(preferTorrent)
	if len(ordered) == 0 {
		return SourceRef{}, errors.Wrapf(errors.ErrNoUsableSource, "%s", e.Name)
	}
	return ordered[0], nil
}

// OrderedSources returns the sources with HTTP before swarm sources, or the
// reverse when preferTorrent is set. Relative order within a family is kept.
func (e Entry) OrderedSources(preferTorrent bool) []SourceRef {
	var http, swarm []SourceRef
	for _, s := range e.Sources {
		if s.Protocol.IsSwarm() {
			swarm = append(swarm, s)
		} else {
			http = append(http, s)
		}
	}
	if preferTorrent {
		return append(swarm, http...)
	}
	return append(http, swarm...)
}
