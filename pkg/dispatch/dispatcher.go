// Package dispatch runs fetch jobs for catalog entries on a fixed pool of
// workers and folds their outcomes into one batch result.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/archive"
	"github.com/blackarch/wordlistctl/pkg/catalog"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/fetch"
	"github.com/blackarch/wordlistctl/pkg/fsutil"
	"github.com/blackarch/wordlistctl/pkg/hook"
	"github.com/blackarch/wordlistctl/pkg/manifest"
	"github.com/blackarch/wordlistctl/pkg/metrics"
	"github.com/blackarch/wordlistctl/pkg/pipeline"
)

// Dispatcher ties the fetchers, the post-processing pipeline and the
// optional post-fetch hook together.
type Dispatcher struct {
	HTTP  SourceFetcher
	Swarm SourceFetcher
	Post  PostProcessor
	// Hook runs hook.PostFetch after a successful job; failures only warn.
	Hook    hook.Runner
	Metrics *metrics.Recorder
	Hooks   Hooks
	Options Options
	// ConfirmRetry is asked by Run whether failed jobs get a second pass.
	ConfirmRetry func(failed []Failure) bool
}

type jobResult struct {
	job   *fetch.Job
	err   error
	bytes int64
}

func (d *Dispatcher) emit(e Event) {
	if d.Hooks.OnEvent != nil {
		d.Hooks.OnEvent(e)
	}
}

// Submit runs one job per entry with at most limit jobs in flight and waits
// for all of them. Individual failures are collected, never returned; the
// error is reserved for problems that prevent the batch from starting.
func (d *Dispatcher) Submit(ctx context.Context, entries []catalog.Entry, root string, limit int) (BatchResult, error) {
	if limit < 1 {
		return BatchResult{}, errors.Wrapf(errors.ErrInvalidConcurrency, "got %d", limit)
	}
	if root == "" {
		return BatchResult{}, errors.Wrap(errors.ErrConfigValidation, "base directory cannot be empty")
	}
	if d.HTTP == nil || d.Post == nil {
		return BatchResult{}, fmt.Errorf("dispatcher is not configured")
	}
	if err := prepareDirs(entries, root); err != nil {
		return BatchResult{}, err
	}

	jobs := make([]*fetch.Job, len(entries))
	for i, e := range entries {
		jobs[i] = &fetch.Job{ID: uuid.NewString(), Entry: e, DestDir: e.Dir(root), State: fetch.StatePending}
		d.emit(Event{JobID: jobs[i].ID, Entry: e.Name, State: fetch.StatePending})
	}

	results := make([]jobResult, len(jobs))
	runnable := d.claimDestinations(jobs, results)
	d.runWorkers(ctx, manifest.NewStore(root), jobs, runnable, results, limit)

	var batch BatchResult
	for _, r := range results {
		if r.err != nil {
			batch.Failed = append(batch.Failed, Failure{Entry: r.job.Entry, Err: r.err, State: r.job.State})
			continue
		}
		batch.Succeeded = append(batch.Succeeded, r.job.Entry)
	}
	return batch, nil
}

// claimDestinations gives every destination path to the first job that maps
// to it. Later jobs with the same path fail without running. It returns the
// indexes of the jobs that may run.
func (d *Dispatcher) claimDestinations(jobs []*fetch.Job, results []jobResult) []int {
	owners := make(map[string]string, len(jobs))
	runnable := make([]int, 0, len(jobs))
	for i, job := range jobs {
		results[i].job = job
		dest := d.destination(job)
		if dest == "" {
			runnable = append(runnable, i)
			continue
		}
		if owner, taken := owners[dest]; taken {
			err := errors.Wrapf(errors.ErrDestinationConflict, "%s is already written by %s", dest, owner)
			results[i].err = err
			job.State = fetch.StateFailed
			d.emit(Event{JobID: job.ID, Entry: job.Entry.Name, State: fetch.StateFailed, Err: err, Msg: err.Error()})
			continue
		}
		owners[dest] = job.Entry.Name
		runnable = append(runnable, i)
	}
	return runnable
}

// destination is the file the job's HTTP transfer writes, or "" when the
// name is only known after the transfer starts.
func (d *Dispatcher) destination(job *fetch.Job) string {
	src, err := job.Entry.SelectSource(d.Options.PreferTorrent)
	if err != nil {
		return ""
	}
	name := job.Entry.LocalName(src)
	if name == "" {
		return ""
	}
	return filepath.Join(job.DestDir, name)
}

// Retry re-submits exactly the failed entries once with the same limit.
func (d *Dispatcher) Retry(ctx context.Context, failed []Failure, root string, limit int) (BatchResult, error) {
	entries := make([]catalog.Entry, 0, len(failed))
	for _, f := range failed {
		entries = append(entries, f.Entry)
	}
	return d.Submit(ctx, entries, root, limit)
}

// Run submits entries and, when some fail and ConfirmRetry agrees, retries
// the failed ones once. unknown is carried into the result unchanged.
func (d *Dispatcher) Run(ctx context.Context, entries []catalog.Entry, unknown []string, root string, limit int) (BatchResult, error) {
	batch, err := d.Submit(ctx, entries, root, limit)
	if err != nil {
		return batch, err
	}
	batch.Unknown = unknown

	if len(batch.Failed) == 0 || ctx.Err() != nil || d.ConfirmRetry == nil || !d.ConfirmRetry(batch.Failed) {
		return batch, nil
	}

	logger.Info("Retrying failed downloads", logger.Fields{"count": len(batch.Failed)})
	second, err := d.Retry(ctx, batch.Failed, root, limit)
	if err != nil {
		return batch, err
	}
	batch.Succeeded = append(batch.Succeeded, second.Succeeded...)
	batch.Failed = second.Failed
	return batch, nil
}

func prepareDirs(entries []catalog.Entry, root string) error {
	seen := make(map[catalog.Group]bool)
	for _, e := range entries {
		if seen[e.Group] {
			continue
		}
		seen[e.Group] = true
		if err := fsutil.EnsureDir(e.Dir(root)); err != nil {
			return errors.Wrapf(err, "could not create %s", e.Dir(root))
		}
	}
	return nil
}

// runWorkers executes the jobs named by runnable on limit workers and stores
// each result at the job's index.
func (d *Dispatcher) runWorkers(ctx context.Context, store *manifest.Store, jobs []*fetch.Job, runnable []int, results []jobResult, limit int) {
	tasks := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < min(limit, len(runnable)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				results[i] = d.runJob(ctx, store, jobs[i])
			}
		}()
	}

	for _, i := range runnable {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
}

// runJob drives one job to a terminal state. Each worker owns its job, so
// job fields are only touched by this goroutine.
func (d *Dispatcher) runJob(ctx context.Context, store *manifest.Store, job *fetch.Job) (res jobResult) {
	res.job = job
	start := time.Now()
	if d.Metrics != nil {
		d.Metrics.Started()
	}
	protocol := ""

	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic in job %s: %v", job.Entry.Name, r)
		}
		final := fetch.StateDone
		if res.err != nil {
			final = fetch.StateFailed
		}
		ev := Event{JobID: job.ID, Entry: job.Entry.Name, State: final, Err: res.err, Bytes: res.bytes, Elapsed: time.Since(start)}
		if res.err != nil {
			ev.Msg = res.err.Error()
			logger.ErrorfWithFields(logger.Fields{"entry": job.Entry.Name, "error": res.err.Error()},
				"Job failed while %s", job.State)
		}
		d.emit(ev)
		if d.Metrics != nil {
			d.Metrics.Transition(final)
			d.Metrics.Finished(final, protocol, res.bytes, ev.Elapsed)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	src, err := job.Entry.SelectSource(d.Options.PreferTorrent)
	if err != nil {
		res.err = err
		return res
	}
	src = job.Entry.WithLocalName(src)
	job.Source = src
	protocol = src.Protocol.String()

	prior, found := d.loadRecord(store, job)
	if found && d.upToDate(store, prior) {
		logger.Info("Already present, skipping", logger.Fields{"entry": job.Entry.Name, "files": len(prior.Files)})
		return res
	}

	fetcher := d.HTTP
	if src.Protocol.IsSwarm() {
		fetcher = d.Swarm
	}
	if fetcher == nil {
		res.err = errors.Wrapf(errors.ErrUnsupportedProto, "no fetcher for %s sources", src.Protocol)
		return res
	}

	jobCtx := fetch.WithJobID(fetch.WithReporter(ctx, func(state fetch.State, msg string) {
		d.transition(job, state, msg)
	}), job.ID)

	out, err := fetcher.Fetch(jobCtx, src, job.DestDir)
	res.bytes = out.Bytes
	if err != nil {
		res.err = err
		return res
	}

	checksum := src.Checksum
	reuseVerdict := false
	if out.Skipped {
		logger.Info("Already downloaded", logger.Fields{"entry": job.Entry.Name, "path": out.Path})
		reuseVerdict = found && verifiedArtifact(store, prior, out.Path)
		if reuseVerdict {
			checksum = ""
		}
	}

	processed, err := d.Post.Process(jobCtx, out.Path, checksum, d.Options.Decompress)
	if err != nil {
		res.err = err
		return res
	}
	if reuseVerdict {
		processed.Verdict = pipeline.VerdictVerified
	}

	d.saveRecord(store, job, processed)
	d.runHook(jobCtx, job, processed)
	logger.Success("Downloaded", logger.Fields{"entry": job.Entry.Name, "path": out.Path})
	return res
}

func (d *Dispatcher) transition(job *fetch.Job, state fetch.State, msg string) {
	job.State = state
	d.emit(Event{JobID: job.ID, Entry: job.Entry.Name, State: state, Msg: msg})
	if d.Metrics != nil {
		d.Metrics.Transition(state)
	}
}

// loadRecord returns the completion record of the job's entry. A record
// written for another source is stale: its files are removed so the new
// source is not mistaken for an earlier download.
func (d *Dispatcher) loadRecord(store *manifest.Store, job *fetch.Job) (manifest.Record, bool) {
	rec, found, err := store.Load(string(job.Entry.Group), job.Entry.Name)
	if err != nil {
		logger.Warn("Ignoring unreadable completion record", logger.Fields{"entry": job.Entry.Name, "error": err.Error()})
		return rec, false
	}
	if !found {
		return rec, false
	}
	if rec.Source != job.Source.URL || rec.Checksum != job.Source.Checksum {
		logger.Info("Catalog source changed, fetching again", logger.Fields{"entry": job.Entry.Name, "was": rec.Source})
		for _, f := range rec.Files {
			if err := os.RemoveAll(store.Abs(f)); err != nil {
				logger.Warn("Could not remove outdated file", logger.Fields{"path": f, "error": err.Error()})
			}
		}
		_ = store.Remove(rec.Group, rec.Entry)
		return manifest.Record{}, false
	}
	return rec, true
}

// upToDate reports whether rec still matches the disk and the requested
// processing. A record without decompression is not enough when
// decompression is now asked for and the kept artifact is compressed.
func (d *Dispatcher) upToDate(store *manifest.Store, rec manifest.Record) bool {
	if !store.Complete(rec) {
		return false
	}
	if d.Options.Decompress && !rec.Decompressed && rec.Artifact != "" {
		if kind, _ := archive.Classify(rec.Artifact); kind != archive.KindNone {
			return false
		}
	}
	return true
}

// verifiedArtifact reports whether path is the artifact rec already verified.
func verifiedArtifact(store *manifest.Store, rec manifest.Record, path string) bool {
	return rec.Artifact != "" && rec.Verdict == pipeline.VerdictVerified.String() &&
		filepath.Clean(store.Abs(rec.Artifact)) == filepath.Clean(path)
}

// saveRecord stores what the job left on disk. Failures only warn; the
// entry is fetched again on the next run.
func (d *Dispatcher) saveRecord(store *manifest.Store, job *fetch.Job, processed pipeline.Result) {
	rec := manifest.Record{
		Entry:        job.Entry.Name,
		Group:        string(job.Entry.Group),
		Source:       job.Source.URL,
		Protocol:     job.Source.Protocol.String(),
		Checksum:     job.Source.Checksum,
		Verdict:      processed.Verdict.String(),
		Decompressed: d.Options.Decompress,
	}

	// Outputs that already existed may belong to another entry and are not
	// claimed.
	files := make([]string, 0, len(processed.Outputs)+1)
	if !processed.Removed && processed.Path != "" {
		files = append(files, processed.Path)
		if rel, err := store.Rel(processed.Path); err == nil {
			rec.Artifact = rel
		}
	}
	files = append(files, processed.Outputs...)
	for _, f := range files {
		rel, err := store.Rel(f)
		if err != nil {
			logger.Warn("Not recording file outside the base directory", logger.Fields{"path": f})
			continue
		}
		if !slices.Contains(rec.Files, rel) {
			rec.Files = append(rec.Files, rel)
		}
	}

	if err := store.Save(rec); err != nil {
		logger.Warn("Could not record completed entry", logger.Fields{"entry": job.Entry.Name, "error": err.Error()})
	}
}

func (d *Dispatcher) runHook(ctx context.Context, job *fetch.Job, processed pipeline.Result) {
	if d.Hook == nil || !d.Hook.HasHook(hook.PostFetch) {
		return
	}
	err := d.Hook.Execute(ctx, hook.PostFetch, hook.Context{
		EntryName: job.Entry.Name,
		Group:     string(job.Entry.Group),
		Path:      processed.Path,
		Outputs:   processed.Outputs,
		Verdict:   processed.Verdict.String(),
	})
	if err != nil {
		logger.Warn("Post-fetch hook failed", logger.Fields{"entry": job.Entry.Name, "error": err.Error()})
	}
}
