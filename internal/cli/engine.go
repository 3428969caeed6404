package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/catalog"
	"github.com/blackarch/wordlistctl/pkg/config"
	"github.com/blackarch/wordlistctl/pkg/dispatch"
	"github.com/blackarch/wordlistctl/pkg/download"
	"github.com/blackarch/wordlistctl/pkg/fetch"
	"github.com/blackarch/wordlistctl/pkg/hook"
	"github.com/blackarch/wordlistctl/pkg/metrics"
	"github.com/blackarch/wordlistctl/pkg/pipeline"
	"github.com/blackarch/wordlistctl/pkg/proxy"
	"github.com/blackarch/wordlistctl/pkg/resolve"
	"github.com/blackarch/wordlistctl/pkg/retry"
	"github.com/blackarch/wordlistctl/pkg/torrent"
)

// engine is one fully wired acquisition run.
type engine struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	session    *torrent.Session
	registry   *prometheus.Registry
}

// engineOptions carry the per-invocation choices that are not config keys.
type engineOptions struct {
	// RetryFailed re-submits failures without asking.
	RetryFailed bool
	Prompt      *prompter
	Out         io.Writer
}

func newEngine(cfg *config.Config, opts engineOptions) (*engine, error) {
	settings := cfg.Settings

	proxySettings, err := proxy.Parse(settings.Proxy)
	if err != nil {
		return nil, err
	}
	if proxySettings.Enabled() {
		logger.Debug("Using proxy", logger.Fields{"proxy": proxySettings.String()})
	}

	rules := make([]resolve.Rule, 0, len(cfg.Resolver.Rules))
	for _, r := range cfg.Resolver.Rules {
		rule, err := resolve.CompileRule(r.Prefix, r.Label)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	resolver := resolve.New(resolve.Options{
		UserAgent: settings.UserAgent,
		Proxy:     proxySettings,
		Timeout:   settings.HTTPTimeout,
		Retry:     retry.Policy{Attempts: cfg.Resolver.Attempts, Interval: cfg.Resolver.Interval},
		Extra:     rules,
	})

	httpFetcher := download.NewFetcher(download.Options{
		Timeout:   settings.HTTPTimeout,
		UserAgent: settings.UserAgent,
		Proxy:     proxySettings,
		Retry:     retry.Policy{Attempts: cfg.Retry.Attempts, Interval: cfg.Retry.Interval},
		RateLimit: settings.DownloadRate,
		Resolver:  resolver,
	})

	session := torrent.NewSession(torrent.Config{
		DataDir:      settings.BaseDir,
		ListenPort:   cfg.Torrent.ListenPort,
		NoDHT:        cfg.Torrent.NoDHT,
		Seed:         cfg.Torrent.Seed,
		UserAgent:    settings.UserAgent,
		DownloadRate: settings.DownloadRate,
		UploadRate:   cfg.Torrent.UploadRate,
		Proxy:        proxySettings,
	})

	torrentOpts := torrent.Options{
		MetadataTimeout: cfg.Torrent.MetadataTimeout,
		PollInterval:    cfg.Torrent.PollInterval,
		PeerGrace:       cfg.Torrent.PeerGrace,
		Descriptors:     httpFetcher,
	}
	if settings.Interactive && opts.Prompt != nil {
		torrentOpts.AbortPrompt = func(name string) bool {
			return opts.Prompt.confirm(fmt.Sprintf("No peers for %s. Abort this download?", name))
		}
	}

	policy, err := pipeline.ParseMismatchPolicy(cfg.Verify.OnMismatch)
	if err != nil {
		return nil, err
	}

	hooks := hook.NewManager()
	if err := hooks.LoadFile(hook.PostFetch, cfg.Hooks.PostFetch); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.New()
	recorder.Register(registry)

	d := &dispatch.Dispatcher{
		HTTP:    httpFetcher,
		Swarm:   torrent.NewFetcher(session, torrentOpts),
		Post:    pipeline.New(pipeline.Options{OnMismatch: policy, SkipIntegrity: settings.SkipIntegrity}),
		Hook:    hooks,
		Metrics: recorder,
		Hooks:   dispatch.Hooks{OnEvent: printEvent(opts.Out)},
		Options: dispatch.Options{
			Decompress:    settings.Decompress,
			PreferTorrent: settings.PreferTorrent,
		},
		ConfirmRetry: confirmRetry(settings.Interactive, opts),
	}

	return &engine{cfg: cfg, dispatcher: d, session: session, registry: registry}, nil
}

// run fetches entries into the configured base directory.
func (e *engine) run(ctx context.Context, entries []catalog.Entry, unknown []string) (dispatch.BatchResult, error) {
	return e.dispatcher.Run(ctx, entries, unknown, e.cfg.Settings.BaseDir, e.cfg.Settings.Workers)
}

// Close tears down the torrent session and writes the metrics textfile.
func (e *engine) Close() {
	if err := e.session.Close(); err != nil {
		logger.Warn("Failed to close torrent session", logger.Fields{"error": err})
	}
	if err := metrics.WriteTextfile(e.cfg.Settings.MetricsFile, e.registry); err != nil {
		logger.Warn("Failed to write metrics", logger.Fields{"error": err})
	}
}

func confirmRetry(interactive bool, opts engineOptions) func([]dispatch.Failure) bool {
	return func(failed []dispatch.Failure) bool {
		if opts.RetryFailed {
			return true
		}
		if !interactive || opts.Prompt == nil {
			return false
		}
		return opts.Prompt.confirm(fmt.Sprintf("%d wordlist(s) failed. Retry them?", len(failed)))
	}
}

func printEvent(out io.Writer) func(dispatch.Event) {
	return func(ev dispatch.Event) {
		switch ev.State {
		case fetch.StateDone:
			_, _ = fmt.Fprintf(out, "[done]     %s (%s in %s)\n",
				ev.Entry, humanize.Bytes(uint64(max(ev.Bytes, 0))), ev.Elapsed.Round(time.Millisecond))
		case fetch.StateFailed:
			_, _ = fmt.Fprintf(out, "[failed]   %s: %v\n", ev.Entry, ev.Err)
		default:
			logger.Debug("Job state changed", logger.Fields{
				"job": ev.JobID, "entry": ev.Entry, "state": ev.State.String(), "msg": ev.Msg,
			})
		}
	}
}

func printSummary(out io.Writer, batch dispatch.BatchResult) {
	_, _ = fmt.Fprintf(out, "\n%d succeeded, %d failed, %d unknown\n",
		len(batch.Succeeded), len(batch.Failed), len(batch.Unknown))
	for _, f := range batch.Failed {
		_, _ = fmt.Fprintf(out, "  %s (%s): %v\n", f.Entry.Name, f.State, f.Err)
	}
	for _, name := range batch.Unknown {
		_, _ = fmt.Fprintf(out, "  %s: unknown wordlist\n", name)
	}
}
