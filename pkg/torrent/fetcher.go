package torrent

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/catalog"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/fetch"
	"github.com/blackarch/wordlistctl/pkg/fsutil"
)

const (
	DefaultMetadataTimeout = 10 * time.Minute
	DefaultPollInterval    = time.Second
	DefaultPeerGrace       = 30
	// addTimeout caps how long adding a swarm may block on a busy client.
	addTimeout = 10 * time.Second
)

// DescriptorFetcher retrieves .torrent files over HTTP.
type DescriptorFetcher interface {
	Download(ctx context.Context, rawURL, destination string) (fetch.Outcome, error)
}

// AbortPrompt is asked once when a swarm shows no peers for the grace period.
// Returning true aborts the job.
type AbortPrompt func(name string) bool

// Options tune the fetcher's waits.
type Options struct {
	MetadataTimeout time.Duration
	PollInterval    time.Duration
	// PeerGrace is the number of polls without any peer before warning.
	PeerGrace   int
	Descriptors DescriptorFetcher
	AbortPrompt AbortPrompt
}

// Fetcher implements fetch.Fetcher for magnet and .torrent sources.
type Fetcher struct {
	session *Session
	opts    Options
}

// NewFetcher creates a fetcher on top of the shared session.
func NewFetcher(session *Session, opts Options) *Fetcher {
	if opts.MetadataTimeout <= 0 {
		opts.MetadataTimeout = DefaultMetadataTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PeerGrace <= 0 {
		opts.PeerGrace = DefaultPeerGrace
	}
	return &Fetcher{session: session, opts: opts}
}

// Fetch joins the swarm for src, downloads everything it advertises and moves
// the payload from the session data directory into destDir. The handle is
// dropped when the job ends; the session stays up for other jobs.
func (f *Fetcher) Fetch(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
	if !src.Protocol.IsSwarm() {
		return fetch.Outcome{}, errors.Wrapf(errors.ErrUnsupportedProto, "%s source given to torrent fetcher", src.Protocol)
	}
	fetch.Report(ctx, fetch.StateConnecting, src.URL)

	cl, err := f.session.client()
	if err != nil {
		return fetch.Outcome{}, err
	}
	h, err := f.add(ctx, cl, src, destDir)
	if err != nil {
		return fetch.Outcome{}, err
	}

	owner := fetch.JobID(ctx)
	if owner == "" {
		owner = destDir
	}
	hash := h.InfoHash()
	if err := f.session.register(hash, owner); err != nil {
		// the handle is shared with the owning job and must stay up
		return fetch.Outcome{}, err
	}
	defer f.session.release(hash, owner)

	if err := f.awaitInfo(ctx, h); err != nil {
		h.Drop()
		return fetch.Outcome{}, err
	}
	name := h.Name()
	fields := logger.Fields{"name": name, "info_hash": hash}

	payload := filepath.Join(f.session.DataDir(), name)
	final := filepath.Join(destDir, name)
	relocate := filepath.Clean(payload) != filepath.Clean(final)
	if relocate && fsutil.Exists(final) {
		h.Drop()
		logger.Debug("Torrent payload already present", fields)
		return fetch.Outcome{Path: final, Skipped: true}, nil
	}

	h.DownloadAll()
	missing := h.BytesMissing()
	fields["size"] = humanize.Bytes(uint64(max(missing, 0)))
	logger.Debug("Downloading torrent", fields)
	fetch.Report(ctx, fetch.StateTransferring, name)

	err = f.awaitComplete(ctx, h, name)
	h.Drop()
	if err != nil {
		return fetch.Outcome{}, err
	}

	if relocate {
		if err := fsutil.Move(payload, final); err != nil {
			return fetch.Outcome{}, errors.Wrap(err, "could not move torrent payload")
		}
	}
	return fetch.Outcome{Path: final, Bytes: missing, Attempts: 1}, nil
}

func (f *Fetcher) add(ctx context.Context, cl client, src catalog.SourceRef, destDir string) (handle, error) {
	var addFn func() (handle, error)
	switch src.Protocol {
	case catalog.ProtocolMagnet:
		addFn = func() (handle, error) { return cl.AddMagnet(src.URL) }
	default:
		descriptor, err := f.descriptor(ctx, src, destDir)
		if err != nil {
			return nil, err
		}
		addFn = func() (handle, error) { return cl.AddTorrentFromFile(descriptor) }
	}

	type addResult struct {
		h   handle
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		h, err := addFn()
		ch <- addResult{h, err}
	}()

	dropLate := func() {
		if res := <-ch; res.h != nil {
			res.h.Drop()
		}
	}
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, errors.Wrapf(errors.ErrPermanent, "could not add %s: %v", src.URL, res.err)
		}
		return res.h, nil
	case <-time.After(addTimeout):
		go dropLate()
		return nil, errors.Wrap(errors.ErrTransient, "torrent client busy")
	case <-ctx.Done():
		go dropLate()
		return nil, ctx.Err()
	}
}

// descriptor returns a local path to the .torrent file for src, downloading
// it into destDir when src is remote.
func (f *Fetcher) descriptor(ctx context.Context, src catalog.SourceRef, destDir string) (string, error) {
	u, err := url.Parse(src.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return strings.TrimPrefix(src.URL, "file://"), nil
	}
	if f.opts.Descriptors == nil {
		return "", errors.Wrap(errors.ErrUnsupportedProto, "no HTTP fetcher for torrent descriptors")
	}
	name := src.FileName()
	if name == "" {
		return "", errors.Wrapf(errors.ErrPermanent, "cannot derive a file name from %s", src.URL)
	}
	out, err := f.opts.Descriptors.Download(ctx, src.URL, filepath.Join(destDir, name))
	if err != nil {
		return "", errors.Wrap(err, "could not fetch torrent descriptor")
	}
	return out.Path, nil
}

func (f *Fetcher) awaitInfo(ctx context.Context, h handle) error {
	timeout := time.NewTimer(f.opts.MetadataTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.GotInfo():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return errors.Wrapf(errors.ErrMetadata, "no metadata for %s after %s", h.InfoHash(), f.opts.MetadataTimeout)
		case <-ticker.C:
			logger.Debug("Waiting for torrent metadata", logger.Fields{"info_hash": h.InfoHash(), "peers": h.ActivePeers()})
		}
	}
}

func (f *Fetcher) awaitComplete(ctx context.Context, h handle, name string) error {
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	seenPeer := false
	for {
		if h.BytesMissing() <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if h.ActivePeers() > 0 {
			seenPeer = true
			continue
		}
		if seenPeer {
			continue
		}
		polls++
		if polls != f.opts.PeerGrace {
			continue
		}
		logger.Warn("Torrent has no peers", logger.Fields{"name": name, "polls": polls})
		if f.opts.AbortPrompt != nil && f.opts.AbortPrompt(name) {
			return errors.Wrap(errors.Join(errors.ErrAborted, errors.ErrNoPeers), name)
		}
	}
}
