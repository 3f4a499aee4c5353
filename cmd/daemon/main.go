// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/mediaflow/internal/adapters/localfs"
	"github.com/ManuGH/mediaflow/internal/adapters/stub"
	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/config"
	"github.com/ManuGH/mediaflow/internal/daemon"
	"github.com/ManuGH/mediaflow/internal/discovery"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/pipeline/exec"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediaflow %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "mediaflow",
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real{}
	d, err := daemon.New(cfg, daemon.Adapters{
		Sources:     []discovery.SourceAdapter{localfs.NewAdapter(clk)},
		Fetcher:     localfs.Fetcher{},
		Media:       stub.Media{},
		Transcriber: stub.Transcriber{},
		Topics:      stub.Topics{},
		Subtitles:   stub.Subtitles{},
		Uploaders:   map[model.Platform]exec.TargetUploader{},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("daemon wiring failed")
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error().Err(err).Msg("closing store")
		}
	}()

	if err := d.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
}
