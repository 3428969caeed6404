// Package proxy turns the single configured proxy URL into the transport
// hooks used by the HTTP fetcher and the torrent session.
package proxy

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/anacrolix/torrent"
	xproxy "golang.org/x/net/proxy"

	"github.com/blackarch/wordlistctl/pkg/errors"
)

// DialContextFunc matches net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Settings is a parsed proxy. The zero value means "no proxy".
type Settings struct {
	url *url.URL
}

// Parse validates raw. An empty string disables proxying. Anything that is
// not an absolute http, https, socks5 or socks5h URL with a host is a
// configuration error.
func Parse(raw string) (Settings, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Settings{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Settings{}, errors.Wrapf(errors.ErrInvalidProxy, "%v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return Settings{}, errors.Wrapf(errors.ErrInvalidProxy, "unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return Settings{}, errors.Wrapf(errors.ErrInvalidProxy, "missing host in %q", Redact(raw))
	}
	return Settings{url: u}, nil
}

// Enabled reports whether a proxy is configured.
func (s Settings) Enabled() bool { return s.url != nil }

// URL returns the proxy URL or nil.
func (s Settings) URL() *url.URL { return s.url }

// IsSOCKS reports whether the proxy speaks SOCKS5.
func (s Settings) IsSOCKS() bool {
	return s.url != nil && strings.HasPrefix(strings.ToLower(s.url.Scheme), "socks5")
}

// String returns the proxy URL with any password masked.
func (s Settings) String() string {
	if s.url == nil {
		return ""
	}
	return s.url.Redacted()
}

// ProxyFunc returns a function suitable for http.Transport.Proxy. Without a
// configured proxy it returns nil so that environment proxies are ignored.
func (s Settings) ProxyFunc() func(*http.Request) (*url.URL, error) {
	if s.url == nil {
		return nil
	}
	return http.ProxyURL(s.url)
}

// Transport clones base (or http.DefaultTransport) and routes it through the proxy.
func (s Settings) Transport(base *http.Transport) *http.Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	transport := base.Clone()
	transport.Proxy = s.ProxyFunc()
	return transport
}

// DialContext returns a dialer for raw TCP connections (torrent trackers).
// HTTP proxies cannot tunnel arbitrary TCP here, so only SOCKS proxies
// produce a dialer; otherwise nil is returned.
func (s Settings) DialContext() (DialContextFunc, error) {
	if !s.IsSOCKS() {
		return nil, nil
	}
	dialer, err := xproxy.FromURL(s.url, xproxy.Direct)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidProxy, err.Error())
	}
	if cd, ok := dialer.(xproxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// ApplyTorrent routes the torrent client's HTTP traffic (trackers and web
// seeds) through the proxy and, for SOCKS proxies, its tracker dials as well.
// Peer wire connections are not proxied.
func (s Settings) ApplyTorrent(cfg *torrent.ClientConfig) error {
	if s.url == nil {
		return nil
	}
	cfg.HTTPProxy = s.ProxyFunc()
	dial, err := s.DialContext()
	if err != nil {
		return err
	}
	if dial != nil {
		cfg.TrackerDialContext = dial
	}
	return nil
}

// Redact masks the password in a proxy URL string for logging.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid proxy url>"
	}
	return u.Redacted()
}
