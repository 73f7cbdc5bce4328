// Package warm orchestrates a full warm run: headless editor, extension
// install and patch, browser-driven activation, readiness polling, and
// artifact copy.
package warm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/prewarm/internal/api"
	"github.com/ternarybob/prewarm/internal/artifacts"
	"github.com/ternarybob/prewarm/internal/browser"
	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/internal/editor"
	"github.com/ternarybob/prewarm/internal/logger"
	"github.com/ternarybob/prewarm/internal/logtail"
	"github.com/ternarybob/prewarm/pkg/readiness"
)

// Runner executes the warm sequence. Each step is sequential; the only
// concurrency is the background status server and log follower.
type Runner struct {
	cfg     *config.Config
	version string
}

// NewRunner creates a runner for the given configuration.
func NewRunner(cfg *config.Config, version string) *Runner {
	return &Runner{cfg: cfg, version: version}
}

// Run performs the warm sequence and reports the readiness outcome. A
// returned error means setup failed before polling could decide anything;
// a clean run with a cold index returns Ready=false and no error.
func (r *Runner) Run(ctx context.Context) (readiness.PollOutcome, error) {
	log := logger.GetLogger()
	cfg := r.cfg

	if err := cfg.EnsureDirectories(); err != nil {
		return readiness.PollOutcome{}, err
	}

	source := readiness.NewFileSignalSource(
		cfg.UserDataDir(),
		readiness.DefaultLogPatterns(cfg.Extension.LogChannel),
	)

	var statusServer *api.Server
	if cfg.API.Enabled {
		hub := api.NewHub()
		statusServer = api.NewServer(cfg, hub, r.version)
		statusServer.Start()
		defer statusServer.Stop()

		follower, err := logtail.NewFollower(source, hub)
		if err != nil {
			log.Warn().Err(err).Msg("Cannot start log follower")
		} else {
			follower.Start()
			defer follower.Stop()
		}

		log.Info().Str("addr", cfg.APIAddress()).Msg("Status server listening")
	}

	r.setPhase(statusServer, "editor")
	srv := editor.NewServer(cfg)
	if err := srv.Start(ctx); err != nil {
		return readiness.PollOutcome{}, fmt.Errorf("start editor: %w", err)
	}
	defer srv.Stop()

	r.setPhase(statusServer, "extension")
	if err := editor.InstallExtension(cfg); err != nil {
		return readiness.PollOutcome{}, err
	}
	if _, err := editor.PatchBundle(cfg); err != nil {
		return readiness.PollOutcome{}, err
	}

	r.setPhase(statusServer, "browser")
	session, err := browser.New(cfg)
	if err != nil {
		return readiness.PollOutcome{}, fmt.Errorf("launch browser: %w", err)
	}
	defer session.Close()

	if err := session.Open(); err != nil {
		return readiness.PollOutcome{}, err
	}

	trigger := session.Trigger()
	if cfg.Browser.OpenFile != "" {
		// Initial activation. A failure here is not fatal: the poller's
		// stall recovery gets one more attempt.
		if err := trigger.Fire(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial quick-open failed")
		}
	}

	r.setPhase(statusServer, "polling")
	outcome := r.poll(ctx, source, trigger, statusServer)

	r.setPhase(statusServer, "artifacts")
	if err := artifacts.Copy(cfg); err != nil {
		log.Warn().Err(err).Msg("Artifact copy failed")
	}

	if statusServer != nil {
		statusServer.SetOutcome(outcome)
	}

	log.Info().
		Bool("ready", outcome.Ready).
		Str("elapsed", outcome.Elapsed.Round(time.Second).String()).
		Msg("Warm run finished")

	return outcome, nil
}

func (r *Runner) poll(ctx context.Context, source readiness.SignalSource, trigger readiness.Trigger, statusServer *api.Server) readiness.PollOutcome {
	cfg := r.cfg

	pollCfg := readiness.DefaultConfig()
	pollCfg.Interval = config.Duration(cfg.Poll.Interval, pollCfg.Interval)
	pollCfg.GracePeriod = config.Duration(cfg.Poll.GracePeriod, pollCfg.GracePeriod)
	pollCfg.IndexingExtension = config.Duration(cfg.Poll.IndexingExtension, pollCfg.IndexingExtension)
	pollCfg.OptimisticExtension = config.Duration(cfg.Poll.OptimisticExtension, pollCfg.OptimisticExtension)

	opts := []readiness.Option{readiness.WithConfig(pollCfg)}
	if statusServer != nil {
		opts = append(opts, readiness.WithTransitionFunc(statusServer.SetStatus))
	}

	poller := readiness.New(source, trigger, opts...)
	timeout := config.Duration(cfg.Poll.Timeout, 10*time.Minute)

	return poller.Poll(ctx, timeout)
}

func (r *Runner) setPhase(statusServer *api.Server, phase string) {
	logger.GetLogger().Info().Str("phase", phase).Msg("Warm phase")
	if statusServer != nil {
		statusServer.SetPhase(phase)
	}
}
