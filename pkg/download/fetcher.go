package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/catalog"
	pkgerrors "github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/fetch"
	"github.com/blackarch/wordlistctl/pkg/fsutil"
	"github.com/blackarch/wordlistctl/pkg/retry"
)

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "wordlistctl/0.2.0"

const copyBufferSize = 64 * 1024

// Fetcher downloads files over HTTP(S) into a sibling ".part" file, resumes
// from it with Range requests and renames it into place on completion.
type Fetcher struct {
	client    *http.Client
	userAgent string
	policy    retry.Policy
	resolver  Resolver
	limit     datasize.ByteSize
}

// NewFetcher creates a fetcher from opts.
func NewFetcher(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry.Attempts = 5
		opts.Retry.Interval = 5 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Proxy.Transport(nil),
		},
		userAgent: opts.UserAgent,
		policy:    opts.Retry,
		resolver:  opts.Resolver,
		limit:     opts.RateLimit,
	}
}

// Fetch implements fetch.Fetcher for HTTP sources. The destination file name
// is derived from the source URL.
func (f *Fetcher) Fetch(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
	name := src.FileName()
	if name == "" {
		return fetch.Outcome{}, pkgerrors.Wrapf(pkgerrors.ErrPermanent, "cannot derive a file name from %s", src.URL)
	}
	return f.Download(ctx, src.URL, filepath.Join(destDir, name))
}

// Download retrieves rawURL into destination. An existing destination is
// reported as a skipped success without any network traffic.
func (f *Fetcher) Download(ctx context.Context, rawURL, destination string) (fetch.Outcome, error) {
	if fsutil.Exists(destination) {
		logger.Debug("Already downloaded", logger.Fields{"path": destination})
		return fetch.Outcome{Path: destination, Skipped: true}, nil
	}
	if err := fsutil.EnsureFileDir(destination); err != nil {
		return fetch.Outcome{}, pkgerrors.Wrap(err, "could not create destination directory")
	}

	target := rawURL
	if f.resolver != nil {
		resolved, err := f.resolver.Resolve(ctx, rawURL)
		if err != nil {
			return fetch.Outcome{}, err
		}
		if resolved != rawURL {
			logger.Debug("Resolved download link", logger.Fields{"from": rawURL, "to": resolved})
		}
		target = resolved
	}

	part := fsutil.PartPath(destination)
	out := fetch.Outcome{Path: destination}

	policy := f.policy
	policy.Notify = func(attempt int, err error, wait time.Duration) {
		fetch.Report(ctx, fetch.StateRetrying, err.Error())
		logger.WarnfWithFields(logger.Fields{"url": rawURL, "attempt": attempt, "error": err.Error()},
			"Download attempt failed, retrying in %s", wait)
	}

	err := policy.Do(ctx, func(attempt int) error {
		out.Attempts = attempt
		n, resumed, err := f.attempt(ctx, target, part)
		out.Bytes += n
		out.Resumed = out.Resumed || resumed
		return err
	})
	if err != nil {
		if !pkgerrors.IsRetryable(err) && ctx.Err() == nil {
			_ = fsutil.RemoveIfExists(part)
		}
		return out, err
	}

	if err := fsutil.Move(part, destination); err != nil {
		return out, pkgerrors.Wrap(err, "could not finalize file")
	}
	logger.Debug("Downloaded", logger.Fields{"path": destination, "received": humanize.Bytes(uint64(out.Bytes))})
	return out, nil
}

// attempt performs one request and streams the body into part.
func (f *Fetcher) attempt(ctx context.Context, target, part string) (int64, bool, error) {
	fetch.Report(ctx, fetch.StateConnecting, target)

	offset, err := fsutil.FileSize(part)
	if err != nil {
		return 0, false, pkgerrors.Wrap(err, "could not inspect partial file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return 0, false, pkgerrors.Wrapf(pkgerrors.ErrPermanent, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.ErrTransient, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	var flags int
	resumed := false
	switch {
	case resp.StatusCode == http.StatusOK:
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case resp.StatusCode == http.StatusPartialContent:
		start, ok := contentRangeStart(resp.Header.Get("Content-Range"))
		if !ok || start != offset {
			// the server picked a different range than asked; restart cleanly
			_ = fsutil.RemoveIfExists(part)
			return 0, false, pkgerrors.Wrapf(pkgerrors.ErrTransient, "unexpected Content-Range %q", resp.Header.Get("Content-Range"))
		}
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		resumed = true
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok && total == offset {
			return 0, true, nil
		}
		_ = fsutil.RemoveIfExists(part)
		return 0, false, pkgerrors.Wrap(pkgerrors.ErrTransient, "partial file does not match remote size")
	case resp.StatusCode == http.StatusNotFound:
		return 0, false, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "GET %s", target)
	default:
		// every other status, 4xx included, gets the full retry budget
		return 0, false, pkgerrors.Wrapf(pkgerrors.ErrTransient, "GET %s: status %d", target, resp.StatusCode)
	}

	file, err := os.OpenFile(part, flags, fsutil.FileModeDefault)
	if err != nil {
		return 0, resumed, pkgerrors.Wrapf(pkgerrors.ErrPermanent, "could not open %s: %v", part, err)
	}

	fetch.Report(ctx, fetch.StateTransferring, target)
	var body io.Reader = resp.Body
	if f.limit > 0 {
		body = newRateReader(ctx, body, f.limit.Bytes())
	}
	n, copyErr := io.CopyBuffer(file, body, make([]byte, copyBufferSize))
	syncErr := file.Sync()
	closeErr := file.Close()

	if copyErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, resumed, ctxErr
		}
		return n, resumed, pkgerrors.Wrap(pkgerrors.ErrTransient, copyErr.Error())
	}
	if syncErr != nil {
		return n, resumed, pkgerrors.Wrap(syncErr, "could not sync file")
	}
	if closeErr != nil {
		return n, resumed, pkgerrors.Wrap(closeErr, "could not close file")
	}
	return n, resumed, nil
}

// contentRangeStart parses "bytes <start>-<end>/<total>".
func contentRangeStart(header string) (int64, bool) {
	rng, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	startStr, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	return start, err == nil
}

// contentRangeTotal parses the total from "bytes */<total>" or a full range.
func contentRangeTotal(header string) (int64, bool) {
	_, totalStr, ok := strings.Cut(header, "/")
	if !ok || totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(totalStr), 10, 64)
	return total, err == nil
}

type rateReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func newRateReader(ctx context.Context, r io.Reader, bytesPerSecond uint64) io.Reader {
	burst := copyBufferSize
	if bytesPerSecond < uint64(burst) {
		burst = int(bytesPerSecond)
	}
	return &rateReader{ctx: ctx, r: r, limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

func (rr *rateReader) Read(p []byte) (int, error) {
	if b := rr.limiter.Burst(); len(p) > b {
		p = p[:b]
	}
	n, err := rr.r.Read(p)
	if n > 0 {
		if werr := rr.limiter.WaitN(rr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
