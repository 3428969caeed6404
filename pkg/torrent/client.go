package torrent

import (
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"golang.org/x/time/rate"

	"github.com/blackarch/wordlistctl/pkg/errors"
)

// rateChunk is the limiter burst, large enough for one piece request.
const rateChunk = 256 * 1024

// client is the subset of *torrent.Client the fetcher drives.
type client interface {
	AddMagnet(uri string) (handle, error)
	AddTorrentFromFile(path string) (handle, error)
	Close() []error
}

// handle is the subset of *torrent.Torrent the fetcher drives.
type handle interface {
	InfoHash() string
	GotInfo() <-chan struct{}
	Name() string
	DownloadAll()
	BytesMissing() int64
	ActivePeers() int
	Drop()
}

type anacrolixClient struct {
	cl *torrent.Client
}

func newAnacrolixClient(cfg Config) (client, error) {
	cc := torrent.NewDefaultClientConfig()
	cc.DataDir = cfg.DataDir
	cc.ListenPort = cfg.ListenPort
	cc.NoDHT = cfg.NoDHT
	cc.Seed = cfg.Seed
	if cfg.UserAgent != "" {
		cc.HTTPUserAgent = cfg.UserAgent
	}
	if cfg.DownloadRate > 0 {
		cc.DownloadRateLimiter = rate.NewLimiter(rate.Limit(cfg.DownloadRate.Bytes()), rateChunk)
	}
	if cfg.UploadRate > 0 {
		cc.UploadRateLimiter = rate.NewLimiter(rate.Limit(cfg.UploadRate.Bytes()), rateChunk)
	}
	if err := cfg.Proxy.ApplyTorrent(cc); err != nil {
		return nil, err
	}

	cl, err := torrent.NewClient(cc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start torrent client")
	}
	return &anacrolixClient{cl: cl}, nil
}

func (c *anacrolixClient) AddMagnet(uri string) (handle, error) {
	t, err := c.cl.AddMagnet(uri)
	if err != nil {
		return nil, err
	}
	return &anacrolixHandle{t: t}, nil
}

func (c *anacrolixClient) AddTorrentFromFile(path string) (handle, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid torrent file %s", path)
	}
	t, err := c.cl.AddTorrent(mi)
	if err != nil {
		return nil, err
	}
	return &anacrolixHandle{t: t}, nil
}

func (c *anacrolixClient) Close() []error {
	return c.cl.Close()
}

type anacrolixHandle struct {
	t *torrent.Torrent
}

func (h *anacrolixHandle) InfoHash() string         { return h.t.InfoHash().HexString() }
func (h *anacrolixHandle) GotInfo() <-chan struct{} { return h.t.GotInfo() }
func (h *anacrolixHandle) Name() string             { return h.t.Name() }
func (h *anacrolixHandle) DownloadAll()             { h.t.DownloadAll() }
func (h *anacrolixHandle) BytesMissing() int64      { return h.t.BytesMissing() }
func (h *anacrolixHandle) ActivePeers() int         { return h.t.Stats().ActivePeers }
func (h *anacrolixHandle) Drop()                    { h.t.Drop() }
