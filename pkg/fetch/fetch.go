// Package fetch defines the per-job transfer model shared by the HTTP and
// torrent fetchers and the dispatcher: transfer states, outcomes and the
// Fetcher capability.
package fetch

import (
	"context"
	"fmt"

	"github.com/blackarch/wordlistctl/pkg/catalog"
)

// State is the lifecycle position of a fetch job.
//
//	Pending -> Connecting -> Transferring -> Verifying -> Decompressing -> Done
//
// Failed is reachable from any non-terminal state. Retrying re-enters
// Connecting while the retry budget lasts.
type State int

const (
	StatePending State = iota
	StateConnecting
	StateTransferring
	StateVerifying
	StateDecompressing
	StateDone
	StateFailed
	StateRetrying
)

var stateNames = [...]string{
	StatePending:       "pending",
	StateConnecting:    "connecting",
	StateTransferring:  "transferring",
	StateVerifying:     "verifying",
	StateDecompressing: "decompressing",
	StateDone:          "done",
	StateFailed:        "failed",
	StateRetrying:      "retrying",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Outcome describes a finished transfer.
type Outcome struct {
	// Path is the completed artifact on disk.
	Path string
	// Skipped is set when the artifact already existed and nothing was transferred.
	Skipped bool
	// Resumed is set when an HTTP transfer continued from a .part file.
	Resumed bool
	// Bytes counts payload bytes received during this call.
	Bytes int64
	// Attempts is the number of connection attempts made.
	Attempts int
}

// Job is one entry being acquired.
type Job struct {
	ID    string
	Entry catalog.Entry
	// DestDir is root/group for the entry.
	DestDir string
	Source  catalog.SourceRef
	State   State
}

// Fetcher retrieves one source into destDir. Implementations exist for
// HTTP and for the swarm protocols.
type Fetcher interface {
	Fetch(ctx context.Context, src catalog.SourceRef, destDir string) (Outcome, error)
}

// Reporter receives state transitions from inside a fetcher.
type Reporter func(state State, msg string)

type reporterKey struct{}

// WithReporter attaches r to ctx so fetchers can publish progress.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// Report publishes a state transition to the reporter attached to ctx, if any.
func Report(ctx context.Context, state State, msg string) {
	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok && r != nil {
		r(state, msg)
	}
}

type jobIDKey struct{}

// WithJobID tags ctx with the dispatcher job that owns the transfer.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobID returns the job tag of ctx, or "".
func JobID(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
