// Package resolve turns landing pages of file hosting sites into direct
// download links.
package resolve

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/proxy"
	"github.com/blackarch/wordlistctl/pkg/retry"
)

// maxPageSize bounds how much of a landing page is parsed.
const maxPageSize = 4 << 20

// Rule matches URLs by prefix. Label is matched against an anchor's id,
// class, aria-label and text to find the download link.
type Rule struct {
	Prefix string
	Label  *regexp.Regexp
}

// DefaultRules cover the hosts the public catalog links to.
func DefaultRules() []Rule {
	mediafire := regexp.MustCompile(`(?i)download`)
	sourceforge := regexp.MustCompile(`(?i)direct[ -]?(download|link)|download`)
	return []Rule{
		{Prefix: "https://www.mediafire.com/", Label: mediafire},
		{Prefix: "http://www.mediafire.com/", Label: mediafire},
		{Prefix: "https://mediafire.com/", Label: mediafire},
		{Prefix: "https://sourceforge.net/", Label: sourceforge},
		{Prefix: "http://sourceforge.net/", Label: sourceforge},
	}
}

// Options configure a Resolver.
type Options struct {
	UserAgent string
	Proxy     proxy.Settings
	Timeout   time.Duration
	// Retry defaults to 10 attempts 10 seconds apart.
	Retry retry.Policy
	// Extra rules are consulted before the defaults.
	Extra []Rule
}

// Resolver implements download.Resolver.
type Resolver struct {
	client    *http.Client
	userAgent string
	policy    retry.Policy
	rules     []Rule
}

// New builds a Resolver.
func New(opts Options) *Resolver {
	if opts.Retry.Attempts == 0 {
		opts.Retry.Attempts = 10
		opts.Retry.Interval = 10 * time.Second
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Resolver{
		client:    &http.Client{Timeout: timeout, Transport: opts.Proxy.Transport(nil)},
		userAgent: opts.UserAgent,
		policy:    opts.Retry,
		rules:     append(append([]Rule(nil), opts.Extra...), DefaultRules()...),
	}
}

// CompileRule builds a rule from configured strings. An empty label uses a
// generic "download" pattern.
func CompileRule(prefix, label string) (Rule, error) {
	if label == "" {
		label = "(?i)download"
	}
	re, err := regexp.Compile(label)
	if err != nil {
		return Rule{}, errors.Wrapf(errors.ErrConfigValidation, "resolver rule %s: %v", prefix, err)
	}
	return Rule{Prefix: prefix, Label: re}, nil
}

func (r *Resolver) match(rawURL string) (Rule, bool) {
	for _, rule := range r.rules {
		if strings.HasPrefix(rawURL, rule.Prefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Resolve returns a direct link for rawURL. URLs not covered by a rule are
// returned unchanged. When the attempt budget runs out it returns "" and an
// error wrapping ErrResolveFailed.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	rule, ok := r.match(rawURL)
	if !ok {
		return rawURL, nil
	}

	var direct string
	policy := r.policy
	policy.Notify = func(attempt int, err error, wait time.Duration) {
		logger.Debug("Resolve attempt failed", logger.Fields{"url": rawURL, "attempt": attempt, "error": err.Error()})
	}
	err := policy.Do(ctx, func(int) error {
		link, err := r.resolveOnce(ctx, rawURL, rule)
		if err != nil {
			return err
		}
		direct = link
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(errors.ErrResolveFailed, "%s: %v", rawURL, err)
	}
	return direct, nil
}

func (r *Resolver) resolveOnce(ctx context.Context, rawURL string, rule Rule) (string, error) {
	// A HEAD that lands on a non-HTML resource is the file itself.
	if final, contentType, err := r.head(ctx, rawURL); err == nil {
		if final != rawURL && !isHTML(contentType) {
			return final, nil
		}
	} else if errors.Is(err, errors.ErrNotFound) {
		return "", err
	}

	page, base, err := r.page(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = page.Close() }()

	link, err := ExtractLink(io.LimitReader(page, maxPageSize), base, rule.Label)
	if err != nil {
		return "", err
	}
	return link, nil
}

func (r *Resolver) head(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, http.NoBody)
	if err != nil {
		return "", "", errors.Wrap(errors.ErrPermanent, err.Error())
	}
	r.decorate(req)
	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", errors.Wrap(errors.ErrTransient, err.Error())
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", "", errors.Wrapf(errors.ErrNotFound, "HEAD %s", rawURL)
	}
	if resp.StatusCode >= 400 {
		return "", "", errors.Wrapf(errors.ErrTransient, "HEAD %s: status %d", rawURL, resp.StatusCode)
	}
	return resp.Request.URL.String(), resp.Header.Get("Content-Type"), nil
}

func (r *Resolver) page(ctx context.Context, rawURL string) (io.ReadCloser, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrPermanent, err.Error())
	}
	r.decorate(req)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrTransient, err.Error())
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, nil, errors.Wrapf(errors.ErrNotFound, "GET %s", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, nil, errors.Wrapf(errors.ErrTransient, "GET %s: status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, resp.Request.URL, nil
}

func (r *Resolver) decorate(req *http.Request) {
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
