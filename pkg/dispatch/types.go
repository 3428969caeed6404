//go:generate mockgen -destination=./mocks/dispatch.go -package=mocks . SourceFetcher,PostProcessor

package dispatch

import (
	"context"
	"time"

	"github.com/blackarch/wordlistctl/pkg/catalog"
	"github.com/blackarch/wordlistctl/pkg/fetch"
	"github.com/blackarch/wordlistctl/pkg/pipeline"
)

// SourceFetcher transfers one source into a directory.
type SourceFetcher interface {
	Fetch(ctx context.Context, src catalog.SourceRef, destDir string) (fetch.Outcome, error)
}

// PostProcessor verifies and unpacks a transferred artifact.
type PostProcessor interface {
	Process(ctx context.Context, path, checksum string, decompress bool) (pipeline.Result, error)
}

// Event is a job state change.
type Event struct {
	JobID string
	Entry string
	State fetch.State
	Msg   string
	// Err is set on Failed events.
	Err error
	// Bytes and Elapsed are set on terminal events.
	Bytes   int64
	Elapsed time.Duration
}

// Hooks carries callbacks for progress events. OnEvent may be called from
// several workers at once.
type Hooks struct {
	OnEvent func(Event)
}

// Options control job execution.
type Options struct {
	Decompress    bool
	PreferTorrent bool
}

// Failure is a job that did not reach Done.
type Failure struct {
	Entry catalog.Entry
	Err   error
	// State is where the job was when it failed.
	State fetch.State
}

// BatchResult summarizes a batch once every job settled.
type BatchResult struct {
	Succeeded []catalog.Entry
	Failed    []Failure
	// Unknown are requested names with no catalog entry.
	Unknown []string
}

// FailedEntries returns the entries of r.Failed.
func (r BatchResult) FailedEntries() []catalog.Entry {
	out := make([]catalog.Entry, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Entry)
	}
	return out
}
