// Package pipeline runs the post-transfer stages of a fetch job: integrity
// verification, decompression and cleanup of the compressed original.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/archive"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/fetch"
)

// MismatchPolicy decides what a checksum mismatch does to the job.
type MismatchPolicy int

const (
	// MismatchWarn logs and keeps going.
	MismatchWarn MismatchPolicy = iota
	// MismatchFail fails the job and keeps the file for inspection.
	MismatchFail
	// MismatchDelete fails the job and removes the file.
	MismatchDelete
)

// ParseMismatchPolicy maps the config value onto a policy.
func ParseMismatchPolicy(s string) (MismatchPolicy, error) {
	switch s {
	case "", "warn":
		return MismatchWarn, nil
	case "fail":
		return MismatchFail, nil
	case "delete":
		return MismatchDelete, nil
	default:
		return MismatchWarn, errors.Wrapf(errors.ErrConfigValidation, "unknown mismatch policy %q", s)
	}
}

// Options configure a Pipeline.
type Options struct {
	OnMismatch MismatchPolicy
	// SkipIntegrity downgrades every mismatch to a warning and never deletes.
	SkipIntegrity bool
}

// Result describes what Process did.
type Result struct {
	// Path is the artifact that was processed.
	Path    string
	Verdict Verdict
	// Outputs are the decompressed files; empty when nothing was inflated.
	Outputs []string
	// Existing are decompression outputs that were already present.
	Existing []string
	// Removed is set when the compressed original was deleted.
	Removed bool
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	opts    Options
	archive *archive.Manager
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts, archive: archive.NewManager()}
}

// Process verifies path against checksum and, when decompress is set,
// unpacks it. Stages run in order and the first failure stops the rest.
func (p *Pipeline) Process(ctx context.Context, path, checksum string, decompress bool) (Result, error) {
	res := Result{Path: path}

	fetch.Report(ctx, fetch.StateVerifying, path)
	verdict, err := Verify(path, checksum)
	if err != nil {
		return res, err
	}
	res.Verdict = verdict
	if verdict == VerdictMismatch {
		if err := p.onMismatch(path); err != nil {
			return res, err
		}
	}

	if !decompress {
		return res, nil
	}

	kind, _ := archive.Classify(path)
	if kind == archive.KindNone {
		return res, nil
	}

	fetch.Report(ctx, fetch.StateDecompressing, path)
	switch kind {
	case archive.KindArchive:
		extracted, err := p.archive.ExtractAll(ctx, path, filepath.Dir(path))
		if err != nil {
			return res, errors.Wrapf(err, "extract %s", path)
		}
		res.Outputs = extracted.Written
		res.Existing = extracted.Existing
		if len(res.Outputs) == 0 && len(res.Existing) > 0 {
			return res, nil
		}
	case archive.KindStream:
		out, existed, err := p.archive.Inflate(ctx, path)
		if err != nil {
			return res, errors.Wrapf(err, "inflate %s", path)
		}
		if existed {
			res.Existing = []string{out}
			return res, nil
		}
		res.Outputs = []string{out}
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("Could not remove compressed original", logger.Fields{"path": path, "error": err.Error()})
		return res, nil
	}
	res.Removed = true
	return res, nil
}

func (p *Pipeline) onMismatch(path string) error {
	fields := logger.Fields{"path": path}
	if p.opts.SkipIntegrity {
		logger.Warn("Checksum mismatch ignored", fields)
		return nil
	}
	switch p.opts.OnMismatch {
	case MismatchFail:
		logger.Error("Checksum mismatch", fields)
		return errors.Wrapf(errors.ErrChecksumMismatch, "%s", path)
	case MismatchDelete:
		logger.Error("Checksum mismatch, removing file", fields)
		if err := os.Remove(path); err != nil {
			logger.Warn("Could not remove mismatched file", logger.Fields{"path": path, "error": err.Error()})
		}
		return errors.Wrapf(errors.ErrChecksumMismatch, "%s", path)
	default:
		logger.Warn("Checksum mismatch", fields)
		return nil
	}
}
