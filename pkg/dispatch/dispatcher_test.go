package dispatch

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/blackarch/wordlistctl/pkg/catalog"
	"github.com/blackarch/wordlistctl/pkg/dispatch/mocks"
	"github.com/blackarch/wordlistctl/pkg/download"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/fetch"
	"github.com/blackarch/wordlistctl/pkg/hook"
	"github.com/blackarch/wordlistctl/pkg/metrics"
	"github.com/blackarch/wordlistctl/pkg/pipeline"
	fixtures "github.com/blackarch/wordlistctl/test/testutil"
)

func httpEntry(name string, group catalog.Group) catalog.Entry {
	return catalog.Entry{
		Name:  name,
		Group: group,
		Sources: []catalog.SourceRef{{
			Protocol: catalog.ProtocolHTTP,
			URL:      "https://lists.example/" + name + ".txt",
		}},
	}
}

func magnetEntry(name string) catalog.Entry {
	return catalog.Entry{
		Name:  name,
		Group: catalog.GroupMisc,
		Sources: []catalog.SourceRef{{
			Protocol: catalog.ProtocolMagnet,
			URL:      "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567",
		}},
	}
}

func okFetch(_ context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
	return fetch.Outcome{Path: filepath.Join(destDir, src.FileName()), Bytes: 10}, nil
}

func okProcess(_ context.Context, path, _ string, _ bool) (pipeline.Result, error) {
	return pipeline.Result{Path: path}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) statesFor(entry string) []fetch.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []fetch.State
	for _, e := range l.events {
		if e.Entry == entry {
			out = append(out, e.State)
		}
	}
	return out
}

func TestSubmit_InvalidConcurrency(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := &Dispatcher{HTTP: mocks.NewMockSourceFetcher(ctrl), Post: mocks.NewMockPostProcessor(ctrl)}

	for _, limit := range []int{0, -1} {
		_, err := d.Submit(context.Background(), []catalog.Entry{httpEntry("a", catalog.GroupMisc)}, t.TempDir(), limit)
		assert.ErrorIs(t, err, errors.ErrInvalidConcurrency)
		assert.True(t, errors.IsConfigError(err))
	}
}

func TestSubmit_EmptyRoot(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := &Dispatcher{HTTP: mocks.NewMockSourceFetcher(ctrl), Post: mocks.NewMockPostProcessor(ctrl)}
	_, err := d.Submit(context.Background(), nil, "", 1)
	assert.True(t, errors.IsConfigError(err))
}

func TestSubmit_CreatesGroupDirectories(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)
	root := filepath.Join(t.TempDir(), "wordlists")

	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			assert.DirExists(t, destDir)
			return okFetch(context.Background(), src, destDir)
		}).Times(2)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(2)

	d := &Dispatcher{HTTP: httpF, Post: post}
	res, err := d.Submit(context.Background(), []catalog.Entry{
		httpEntry("users", catalog.GroupUsernames),
		httpEntry("dirs", catalog.GroupDiscovery),
	}, root, 2)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)
	assert.DirExists(t, filepath.Join(root, "usernames"))
	assert.DirExists(t, filepath.Join(root, "discovery"))
}

func TestSubmit_BoundedConcurrency(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	var inFlight, peak atomic.Int32
	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return okFetch(ctx, src, destDir)
		}).Times(10)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(10)

	entries := make([]catalog.Entry, 10)
	for i := range entries {
		entries[i] = httpEntry(string(rune('a'+i)), catalog.GroupPasswords)
	}

	d := &Dispatcher{HTTP: httpF, Post: post}
	res, err := d.Submit(context.Background(), entries, t.TempDir(), 3)
	require.NoError(t, err)

	assert.Len(t, res.Succeeded, 10)
	assert.Empty(t, res.Failed)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(3), peak.Load())
}

func TestSubmit_FailuresAreIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			fetch.Report(ctx, fetch.StateConnecting, src.URL)
			if src.FileName() == "missing.txt" {
				return fetch.Outcome{}, errors.Wrap(errors.ErrNotFound, "GET")
			}
			return okFetch(ctx, src, destDir)
		}).Times(3)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(2)

	d := &Dispatcher{HTTP: httpF, Post: post}
	res, err := d.Submit(context.Background(), []catalog.Entry{
		httpEntry("one", catalog.GroupMisc),
		httpEntry("missing", catalog.GroupMisc),
		httpEntry("two", catalog.GroupMisc),
	}, t.TempDir(), 1)
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "missing", res.Failed[0].Entry.Name)
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrNotFound)
	assert.Equal(t, fetch.StateConnecting, res.Failed[0].State)
	assert.Equal(t, []string{"one", "two"}, []string{res.Succeeded[0].Name, res.Succeeded[1].Name})
}

func TestSubmit_PanicBecomesFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			if src.FileName() == "boom.txt" {
				panic("nil map write")
			}
			return okFetch(ctx, src, destDir)
		}).Times(2)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(1)

	d := &Dispatcher{HTTP: httpF, Post: post}
	res, err := d.Submit(context.Background(), []catalog.Entry{
		httpEntry("boom", catalog.GroupMisc),
		httpEntry("fine", catalog.GroupMisc),
	}, t.TempDir(), 2)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].Err.Error(), "nil map write")
	assert.Len(t, res.Succeeded, 1)
}

func TestSubmit_NoUsableSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := &Dispatcher{HTTP: mocks.NewMockSourceFetcher(ctrl), Post: mocks.NewMockPostProcessor(ctrl)}

	res, err := d.Submit(context.Background(), []catalog.Entry{{Name: "empty", Group: catalog.GroupMisc}}, t.TempDir(), 1)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrNoUsableSource)
	assert.Equal(t, fetch.StatePending, res.Failed[0].State)
}

func TestSubmit_RoutesSwarmSources(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	swarm := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	swarm.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			assert.Equal(t, catalog.ProtocolMagnet, src.Protocol)
			return fetch.Outcome{Path: filepath.Join(destDir, "payload.txt")}, nil
		}).Times(1)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(1)

	d := &Dispatcher{HTTP: httpF, Swarm: swarm, Post: post}
	res, err := d.Submit(context.Background(), []catalog.Entry{magnetEntry("swarm")}, t.TempDir(), 1)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 1)

	d.Swarm = nil
	res, err = d.Submit(context.Background(), []catalog.Entry{magnetEntry("swarm")}, t.TempDir(), 1)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrUnsupportedProto)
}

func TestSubmit_PreferTorrent(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	swarm := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	entry := httpEntry("both", catalog.GroupMisc)
	entry.Sources = append(entry.Sources, magnetEntry("x").Sources[0])

	swarm.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(fetch.Outcome{Path: "/tmp/x"}, nil).Times(1)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(1)

	d := &Dispatcher{HTTP: httpF, Swarm: swarm, Post: post, Options: Options{PreferTorrent: true}}
	res, err := d.Submit(context.Background(), []catalog.Entry{entry}, t.TempDir(), 1)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 1)
}

func TestSubmit_PostProcessingFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	entry := httpEntry("bad", catalog.GroupMisc)
	entry.Sources[0].Checksum = "deadbeef"
	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okFetch)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), "deadbeef", true).DoAndReturn(
		func(ctx context.Context, path, _ string, _ bool) (pipeline.Result, error) {
			fetch.Report(ctx, fetch.StateVerifying, path)
			return pipeline.Result{}, errors.ErrChecksumMismatch
		})

	d := &Dispatcher{HTTP: httpF, Post: post, Options: Options{Decompress: true}}
	res, err := d.Submit(context.Background(), []catalog.Entry{entry}, t.TempDir(), 1)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrChecksumMismatch)
	assert.Equal(t, fetch.StateVerifying, res.Failed[0].State)
}

func TestSubmit_EventsAndJobID(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	var seenID string
	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			seenID = fetch.JobID(ctx)
			fetch.Report(ctx, fetch.StateConnecting, src.URL)
			fetch.Report(ctx, fetch.StateTransferring, src.URL)
			return okFetch(ctx, src, destDir)
		})
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, path, _ string, _ bool) (pipeline.Result, error) {
			fetch.Report(ctx, fetch.StateVerifying, path)
			return pipeline.Result{Path: path}, nil
		})

	log := &eventLog{}
	d := &Dispatcher{HTTP: httpF, Post: post, Hooks: Hooks{OnEvent: log.record}}
	_, err := d.Submit(context.Background(), []catalog.Entry{httpEntry("ev", catalog.GroupMisc)}, t.TempDir(), 1)
	require.NoError(t, err)

	assert.Equal(t, []fetch.State{
		fetch.StatePending, fetch.StateConnecting, fetch.StateTransferring, fetch.StateVerifying, fetch.StateDone,
	}, log.statesFor("ev"))
	assert.NotEmpty(t, seenID)
	for _, e := range log.events {
		assert.Equal(t, seenID, e.JobID)
	}
	assert.Equal(t, int64(10), log.events[len(log.events)-1].Bytes)
}

func TestSubmit_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := &Dispatcher{HTTP: mocks.NewMockSourceFetcher(ctrl), Post: mocks.NewMockPostProcessor(ctrl)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := d.Submit(ctx, []catalog.Entry{httpEntry("a", catalog.GroupMisc), httpEntry("b", catalog.GroupMisc)}, t.TempDir(), 2)
	require.NoError(t, err)
	require.Len(t, res.Failed, 2)
	for _, f := range res.Failed {
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
}

func TestRun_RetriesFailedOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	var flakyCalls atomic.Int32
	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			if src.FileName() == "flaky.txt" && flakyCalls.Add(1) == 1 {
				return fetch.Outcome{}, errors.ErrTransient
			}
			return okFetch(ctx, src, destDir)
		}).Times(3)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(2)

	var asked []Failure
	d := &Dispatcher{HTTP: httpF, Post: post, ConfirmRetry: func(failed []Failure) bool {
		asked = failed
		return true
	}}
	res, err := d.Run(context.Background(), []catalog.Entry{
		httpEntry("stable", catalog.GroupMisc),
		httpEntry("flaky", catalog.GroupMisc),
	}, []string{"nosuch"}, t.TempDir(), 2)
	require.NoError(t, err)

	require.Len(t, asked, 1)
	assert.Equal(t, "flaky", asked[0].Entry.Name)
	assert.Len(t, res.Succeeded, 2)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{"nosuch"}, res.Unknown)
}

func TestRun_DeclinedRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(fetch.Outcome{}, errors.ErrTransient).Times(1)

	d := &Dispatcher{HTTP: httpF, Post: post, ConfirmRetry: func([]Failure) bool { return false }}
	res, err := d.Run(context.Background(), []catalog.Entry{httpEntry("x", catalog.GroupMisc)}, nil, t.TempDir(), 1)
	require.NoError(t, err)
	assert.Len(t, res.Failed, 1)
	assert.Equal(t, []catalog.Entry{httpEntry("x", catalog.GroupMisc)}, res.FailedEntries())
}

func TestSubmit_HookFailureOnlyWarns(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)
	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okFetch)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess)

	hooks := hook.NewManager()
	require.NoError(t, hooks.AddHook(hook.Hook{Type: hook.PostFetch, Content: `err = "hook says no: " + entryName`}))

	d := &Dispatcher{HTTP: httpF, Post: post, Hook: hooks}
	res, err := d.Submit(context.Background(), []catalog.Entry{httpEntry("h", catalog.GroupMisc)}, t.TempDir(), 1)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 1)
}

func TestSubmit_RecordsMetrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)
	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			if src.FileName() == "bad.txt" {
				return fetch.Outcome{}, errors.ErrNotFound
			}
			return okFetch(ctx, src, destDir)
		}).Times(2)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess)

	rec := metrics.New()
	d := &Dispatcher{HTTP: httpF, Post: post, Metrics: rec}
	_, err := d.Submit(context.Background(), []catalog.Entry{
		httpEntry("good", catalog.GroupMisc),
		httpEntry("bad", catalog.GroupMisc),
	}, t.TempDir(), 2)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.JobsTotal.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.JobsTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.ActiveJobs))
	assert.Equal(t, 10.0, testutil.ToFloat64(rec.BytesTotal.WithLabelValues("http")))
}

// TestSubmit_EndToEnd fetches a gzip wordlist over HTTP, inflates it next to
// the download and removes the compressed original. A second run finds the
// inflated file and makes no request.
func TestSubmit_EndToEnd(t *testing.T) {
	payload := []byte("alpha\nbravo\ncharlie\n")
	srv := fixtures.NewWordlistServer(t, map[string]*fixtures.Route{
		"/alpha.gz": {Body: fixtures.Gzip(t, payload)},
	})
	root := t.TempDir()
	entry := catalog.Entry{
		Name:    "alpha",
		Group:   catalog.GroupPasswords,
		Sources: []catalog.SourceRef{{Protocol: catalog.ProtocolHTTP, URL: srv.URLFor("/alpha.gz"), Checksum: pipeline.SkipChecksum}},
	}

	d := &Dispatcher{
		HTTP:    download.NewFetcher(download.Options{}),
		Post:    pipeline.New(pipeline.Options{}),
		Options: Options{Decompress: true},
	}
	res, err := d.Submit(context.Background(), []catalog.Entry{entry}, root, 5)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	got, err := os.ReadFile(filepath.Join(root, "passwords", "alpha"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.NoFileExists(t, filepath.Join(root, "passwords", "alpha.gz"))
	assert.NoFileExists(t, filepath.Join(root, "passwords", "alpha.gz.part"))
	assert.Len(t, srv.Requests("/alpha.gz"), 1)

	res, err = d.Submit(context.Background(), []catalog.Entry{entry}, root, 5)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 1)
	assert.Len(t, srv.Requests("/alpha.gz"), 1)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func tarGzBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.tar.gz")
	fixtures.TarGz(t, path, files)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func realDispatcher(decompress bool) *Dispatcher {
	return &Dispatcher{
		HTTP:    download.NewFetcher(download.Options{}),
		Post:    pipeline.New(pipeline.Options{}),
		Options: Options{Decompress: decompress},
	}
}

func TestSubmit_ArchiveFetchedOnce(t *testing.T) {
	srv := fixtures.NewWordlistServer(t, map[string]*fixtures.Route{
		"/rockyou.txt.tar.gz": {Body: tarGzBytes(t, map[string]string{"rockyou.txt": "123456\npassword\n"})},
	})
	root := t.TempDir()
	entry := catalog.Entry{
		Name:    "rockyou",
		Group:   catalog.GroupPasswords,
		Sources: []catalog.SourceRef{{Protocol: catalog.ProtocolHTTP, URL: srv.URLFor("/rockyou.txt.tar.gz")}},
	}
	d := realDispatcher(true)

	for run := 0; run < 2; run++ {
		res, err := d.Submit(context.Background(), []catalog.Entry{entry}, root, 1)
		require.NoError(t, err)
		require.Empty(t, res.Failed)
		assert.Len(t, res.Succeeded, 1)
	}

	assert.Len(t, srv.Requests("/rockyou.txt.tar.gz"), 1)
	assert.FileExists(t, filepath.Join(root, "passwords", "rockyou.txt"))
	assert.NoFileExists(t, filepath.Join(root, "passwords", "rockyou.tar.gz"))

	// Removing the wordlist makes the record stale and the entry is fetched again.
	require.NoError(t, os.Remove(filepath.Join(root, "passwords", "rockyou.txt")))
	res, err := d.Submit(context.Background(), []catalog.Entry{entry}, root, 1)
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	assert.Len(t, srv.Requests("/rockyou.txt.tar.gz"), 2)
	assert.FileExists(t, filepath.Join(root, "passwords", "rockyou.txt"))
}

func TestSubmit_RecordedSwarmEntrySkipsFetcher(t *testing.T) {
	ctrl := gomock.NewController(t)
	swarm := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	swarm.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ catalog.SourceRef, destDir string) (fetch.Outcome, error) {
			path := filepath.Join(destDir, "payload.txt")
			require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))
			return fetch.Outcome{Path: path}, nil
		}).Times(1)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(1)

	root := t.TempDir()
	d := &Dispatcher{HTTP: mocks.NewMockSourceFetcher(ctrl), Swarm: swarm, Post: post}
	for run := 0; run < 2; run++ {
		res, err := d.Submit(context.Background(), []catalog.Entry{magnetEntry("swarm")}, root, 1)
		require.NoError(t, err)
		assert.Len(t, res.Succeeded, 1)
	}
}

func TestSubmit_EntriesSharingRemoteName(t *testing.T) {
	srv := fixtures.NewWordlistServer(t, map[string]*fixtures.Route{
		"/a/list.txt": {Body: []byte("AAAA\n")},
		"/b/list.txt": {Body: []byte("BBBB\n")},
	})
	root := t.TempDir()
	entries := []catalog.Entry{
		{Name: "alpha", Group: catalog.GroupMisc, Sources: []catalog.SourceRef{{Protocol: catalog.ProtocolHTTP, URL: srv.URLFor("/a/list.txt")}}},
		{Name: "bravo", Group: catalog.GroupMisc, Sources: []catalog.SourceRef{{Protocol: catalog.ProtocolHTTP, URL: srv.URLFor("/b/list.txt")}}},
	}

	res, err := realDispatcher(false).Submit(context.Background(), entries, root, 1)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	for name, want := range map[string]string{"alpha.txt": "AAAA\n", "bravo.txt": "BBBB\n"} {
		got, err := os.ReadFile(filepath.Join(root, "misc", name))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Len(t, srv.Requests("/a/list.txt"), 1)
	assert.Len(t, srv.Requests("/b/list.txt"), 1)
	assert.NoFileExists(t, filepath.Join(root, "misc", "list.txt"))
}

func TestSubmit_DestinationConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpF := mocks.NewMockSourceFetcher(ctrl)
	post := mocks.NewMockPostProcessor(ctrl)

	httpF.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okFetch).Times(1)
	post.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(okProcess).Times(1)

	log := &eventLog{}
	d := &Dispatcher{HTTP: httpF, Post: post, Hooks: Hooks{OnEvent: log.record}}
	res, err := d.Submit(context.Background(), []catalog.Entry{
		{Name: "alpha", Group: catalog.GroupMisc, Sources: []catalog.SourceRef{{Protocol: catalog.ProtocolHTTP, URL: "https://h/x/list.txt"}}},
		{Name: "alpha.txt", Group: catalog.GroupMisc, Sources: []catalog.SourceRef{{Protocol: catalog.ProtocolHTTP, URL: "https://h/y/data"}}},
	}, t.TempDir(), 2)
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "alpha.txt", res.Failed[0].Entry.Name)
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrDestinationConflict)
	assert.Equal(t, []fetch.State{fetch.StatePending, fetch.StateFailed}, log.statesFor("alpha.txt"))
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, "alpha", res.Succeeded[0].Name)
}

func TestSubmit_VerifiedArtifactNotHashedAgain(t *testing.T) {
	payload := []byte("alpha\nbravo\n")
	gz := fixtures.Gzip(t, payload)
	srv := fixtures.NewWordlistServer(t, map[string]*fixtures.Route{"/alpha.gz": {Body: gz}})
	root := t.TempDir()
	entry := catalog.Entry{
		Name:    "alpha",
		Group:   catalog.GroupMisc,
		Sources: []catalog.SourceRef{{Protocol: catalog.ProtocolHTTP, URL: srv.URLFor("/alpha.gz"), Checksum: md5Hex(gz)}},
	}

	res, err := realDispatcher(false).Submit(context.Background(), []catalog.Entry{entry}, root, 1)
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	assert.FileExists(t, filepath.Join(root, "misc", "alpha.gz"))

	// Decompression asked for later: the kept artifact is reused and only
	// unpacked, its checksum is not computed again.
	ctrl := gomock.NewController(t)
	post := mocks.NewMockPostProcessor(ctrl)
	post.EXPECT().Process(gomock.Any(), filepath.Join(root, "misc", "alpha.gz"), "", true).DoAndReturn(okProcess).Times(1)

	d := realDispatcher(true)
	d.Post = post
	res, err = d.Submit(context.Background(), []catalog.Entry{entry}, root, 1)
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	assert.Len(t, srv.Requests("/alpha.gz"), 1)
}

func TestSubmit_ChangedSourceFetchedAgain(t *testing.T) {
	srv := fixtures.NewWordlistServer(t, map[string]*fixtures.Route{
		"/v1/list.txt": {Body: []byte("old\n")},
		"/v2/list.txt": {Body: []byte("new\n")},
	})
	root := t.TempDir()
	entry := catalog.Entry{
		Name:    "alpha",
		Group:   catalog.GroupMisc,
		Sources: []catalog.SourceRef{{Protocol: catalog.ProtocolHTTP, URL: srv.URLFor("/v1/list.txt")}},
	}
	d := realDispatcher(false)

	_, err := d.Submit(context.Background(), []catalog.Entry{entry}, root, 1)
	require.NoError(t, err)

	entry.Sources[0].URL = srv.URLFor("/v2/list.txt")
	res, err := d.Submit(context.Background(), []catalog.Entry{entry}, root, 1)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	got, err := os.ReadFile(filepath.Join(root, "misc", "alpha.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(got))
	assert.Len(t, srv.Requests("/v2/list.txt"), 1)
}
