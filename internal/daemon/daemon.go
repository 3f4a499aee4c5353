// SPDX-License-Identifier: MIT

// Package daemon wires the platform components into one process and manages
// their lifecycle.
package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mediaflow/internal/api"
	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/config"
	"github.com/ManuGH/mediaflow/internal/discovery"
	"github.com/ManuGH/mediaflow/internal/janitor"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
	"github.com/ManuGH/mediaflow/internal/pipeline/exec"
	"github.com/ManuGH/mediaflow/internal/pipeline/executor"
	"github.com/ManuGH/mediaflow/internal/pipeline/worker"
	"github.com/ManuGH/mediaflow/internal/quota"
	"github.com/ManuGH/mediaflow/internal/scheduler"
	"github.com/ManuGH/mediaflow/internal/service"
	"github.com/ManuGH/mediaflow/internal/store"
	"github.com/ManuGH/mediaflow/internal/templates"
)

// Adapters carries the external service implementations the core is wired
// against. Sources, media tooling, transcription and upload targets all live
// outside the module boundary.
type Adapters struct {
	Sources     []discovery.SourceAdapter
	Fetcher     exec.SourceFetcher
	Media       exec.MediaProcessor
	Transcriber exec.Transcriber
	Topics      exec.TopicExtractor
	Subtitles   exec.SubtitleGenerator
	Uploaders   map[model.Platform]exec.TargetUploader
}

// Daemon is the assembled process.
type Daemon struct {
	cfg    config.Config
	store  *store.Store
	sched  *scheduler.Scheduler
	orch   *worker.Orchestrator
	jan    *janitor.Janitor
	server *api.Server
	logger zerolog.Logger
}

// New opens the store and wires every component. Close releases the store.
func New(cfg config.Config, adapters Adapters) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	clk := clock.Real{}
	st, err := store.Open(cfg.DBPath, clk)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	layout := paths.New(cfg.StorageRoot)
	ledger := quota.New(st, layout, clk, cfg.DefaultQuotas)
	matcher := templates.New(st)

	registry := discovery.NewRegistry()
	for _, src := range adapters.Sources {
		registry.Register(src)
	}
	syncer := discovery.NewSyncer(st, ledger, matcher, registry, clk)

	actions := map[model.StageType]exec.Action{
		model.StageDownload:   &exec.DownloadAction{Fetcher: adapters.Fetcher},
		model.StageTrim:       &exec.TrimAction{Media: adapters.Media},
		model.StageTranscribe: &exec.TranscribeAction{Media: adapters.Media, Transcriber: adapters.Transcriber},
		model.StageTopics:     &exec.TopicsAction{Extractor: adapters.Topics},
		model.StageSubtitles:  &exec.SubtitlesAction{Generator: adapters.Subtitles},
		model.StageUpload:     &exec.UploadAction{Store: st, Uploaders: adapters.Uploaders},
	}
	ex := executor.New(st, ledger, clk, actions)
	orch := worker.New(st, ex, layout, clk, cfg.WorkerCount, cfg.SchedulerTick)

	sched := scheduler.New(st, syncer, ledger, orch, clk, cfg.SchedulerTick)
	jan := janitor.New(st, layout, clk, cfg.JanitorInterval, cfg.InitializedTTL)

	svc := service.New(st, ledger, sched, syncer, orch, clk, cfg.SoftDeleteTTL)
	server := api.New(svc, st)

	return &Daemon{
		cfg:    cfg,
		store:  st,
		sched:  sched,
		orch:   orch,
		jan:    jan,
		server: server,
		logger: log.WithComponent("daemon"),
	}, nil
}

// Run blocks until ctx is canceled or a component fails fatally.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().
		Str("listen_addr", d.cfg.ListenAddr).
		Str("storage_root", d.cfg.StorageRoot).
		Int("workers", d.cfg.WorkerCount).
		Msg("daemon starting")

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.orch.Run(runCtx) })
	g.Go(func() error { return d.sched.Run(runCtx) })
	g.Go(func() error { return d.jan.Run(runCtx) })
	g.Go(func() error { return d.server.Serve(runCtx, d.cfg.ListenAddr) })

	// A requested shutdown is not a failure; only component errors propagate.
	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	d.logger.Info().Msg("daemon stopped")
	return nil
}

// Close releases the store. Call after Run returns.
func (d *Daemon) Close() error {
	return d.store.Close()
}
