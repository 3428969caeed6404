// Package torrent fetches magnet links and .torrent descriptors through one
// shared BitTorrent client per process.
package torrent

import (
	"sync"

	"github.com/c2h5oh/datasize"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/proxy"
)

// Config configures the shared client. It is applied once, when the first
// torrent job starts the session.
type Config struct {
	// DataDir receives swarm payloads and the piece completion database.
	DataDir      string
	ListenPort   int
	NoDHT        bool
	Seed         bool
	UserAgent    string
	DownloadRate datasize.ByteSize
	UploadRate   datasize.ByteSize
	Proxy        proxy.Settings
}

// Session owns the lazily created client and the registry of live handles.
// It is safe for concurrent use.
type Session struct {
	cfg       Config
	newClient func(Config) (client, error)

	mu      sync.Mutex
	cl      client
	closed  bool
	handles map[string]string // info hash -> owning job
}

// NewSession prepares a session. No client is started until the first fetch.
func NewSession(cfg Config) *Session {
	return &Session{
		cfg:       cfg,
		newClient: newAnacrolixClient,
		handles:   make(map[string]string),
	}
}

// DataDir returns where payloads are written.
func (s *Session) DataDir() string { return s.cfg.DataDir }

// Started reports whether the client has been created.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cl != nil
}

func (s *Session) client() (client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.Wrap(errors.ErrAborted, "torrent session closed")
	}
	if s.cl != nil {
		return s.cl, nil
	}
	cl, err := s.newClient(s.cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Torrent session started", logger.Fields{"data_dir": s.cfg.DataDir, "proxy": s.cfg.Proxy.String()})
	s.cl = cl
	return cl, nil
}

// register records owner as the job transferring infoHash. A different owner
// registering the same hash while the first is live is rejected.
func (s *Session) register(infoHash, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.handles[infoHash]; ok && current != owner {
		return errors.Wrapf(errors.ErrDuplicateSwarm, "info hash %s", infoHash)
	}
	s.handles[infoHash] = owner
	return nil
}

func (s *Session) release(infoHash, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles[infoHash] == owner {
		delete(s.handles, infoHash)
	}
}

// Live returns the number of registered handles.
func (s *Session) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close shuts the client down. Calling it on a session that never started is
// a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cl == nil {
		return nil
	}
	errs := s.cl.Close()
	s.cl = nil
	return errors.Join(errs...)
}
