package torrent

import (
	"sync"
	"sync/atomic"
)

// fakeHandle simulates a swarm. Each BytesMissing call after DownloadAll
// consumes one step of the missing schedule; the last value repeats.
type fakeHandle struct {
	hash string
	name string
	info chan struct{}

	mu       sync.Mutex
	missing  []int64
	peers    []int
	started  bool
	dropped  int
	onFinish func()
}

func newFakeHandle(hash, name string, missing []int64, peers []int) *fakeHandle {
	return &fakeHandle{hash: hash, name: name, info: make(chan struct{}), missing: missing, peers: peers}
}

func (h *fakeHandle) resolveInfo() { close(h.info) }

func (h *fakeHandle) InfoHash() string         { return h.hash }
func (h *fakeHandle) GotInfo() <-chan struct{} { return h.info }
func (h *fakeHandle) Name() string             { return h.name }

func (h *fakeHandle) DownloadAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = true
}

func (h *fakeHandle) BytesMissing() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.missing[0]
	if len(h.missing) > 1 {
		h.missing = h.missing[1:]
	}
	if v == 0 && h.onFinish != nil {
		h.onFinish()
		h.onFinish = nil
	}
	return v
}

func (h *fakeHandle) ActivePeers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.peers[0]
	if len(h.peers) > 1 {
		h.peers = h.peers[1:]
	}
	return v
}

func (h *fakeHandle) Drop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped++
}

func (h *fakeHandle) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

type fakeClient struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle // keyed by magnet URI or descriptor path
	added   []string
	closed  atomic.Int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{handles: make(map[string]*fakeHandle)}
}

func (c *fakeClient) set(key string, h *fakeHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[key] = h
}

func (c *fakeClient) lookup(key string) (handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, key)
	h, ok := c.handles[key]
	if !ok {
		return nil, errUnknownSwarm
	}
	return h, nil
}

func (c *fakeClient) AddMagnet(uri string) (handle, error)           { return c.lookup(uri) }
func (c *fakeClient) AddTorrentFromFile(path string) (handle, error) { return c.lookup(path) }

func (c *fakeClient) Close() []error {
	c.closed.Add(1)
	return nil
}

func (c *fakeClient) Added() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.added...)
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errUnknownSwarm = fakeError("unknown swarm")

// newFakeSession returns a session whose client factory hands out fc and
// counts how often it was called.
func newFakeSession(dataDir string, fc *fakeClient, created *atomic.Int32) *Session {
	s := NewSession(Config{DataDir: dataDir})
	s.newClient = func(Config) (client, error) {
		if created != nil {
			created.Add(1)
		}
		return fc, nil
	}
	return s
}
