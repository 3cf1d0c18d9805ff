package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/aladin-mirror/internal/adapter/download"
	"github.com/couchcryptid/aladin-mirror/internal/adapter/filestore"
	kafkaadapter "github.com/couchcryptid/aladin-mirror/internal/adapter/kafka"
	"github.com/couchcryptid/aladin-mirror/internal/adapter/listing"
	"github.com/couchcryptid/aladin-mirror/internal/adapter/objectstore"
	"github.com/couchcryptid/aladin-mirror/internal/adapter/toolexec"
	"github.com/couchcryptid/aladin-mirror/internal/config"
	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/couchcryptid/aladin-mirror/internal/observability"
	"github.com/couchcryptid/aladin-mirror/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	naming   domain.ArtifactNaming
	store    *filestore.Store
	wgrib2   *toolexec.Wgrib2
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, err
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		clock:   clockwork.NewRealClock(),
		naming:  domain.NewArtifactNaming(cfg.OutputPrefix, cfg.OutputExt),
	}
	a.store = filestore.NewStore(cfg.OutputDir, a.naming)

	hooks, err := a.publishHooks()
	if err != nil {
		return nil, err
	}

	httpClient := download.NewHTTPClient(cfg.ConnectTimeout)
	lister := listing.NewClient(cfg.BaseURL, httpClient, cfg.TransferTimeout, logger)
	runner := toolexec.ExecRunner{}
	a.wgrib2 = toolexec.NewWgrib2(cfg.Wgrib2Bin, runner, logger)

	a.pipeline = pipeline.New(pipeline.Options{
		RunDirs:        cfg.RunDirs,
		ArchivePrefix:  cfg.ArchivePrefix,
		Variables:      cfg.Variables,
		WorkDir:        cfg.WorkDir,
		Grid:           cfg.Grid(),
		Artifacts:      a.naming,
		RetentionCount: cfg.RetentionCount,
		Concurrency:    cfg.WorkerConcurrency,
	}, pipeline.Deps{
		Lister:       lister,
		Downloader:   download.NewDownloader(httpClient, cfg.TransferTimeout, a.metrics, logger),
		Decompressor: toolexec.NewBzip2(cfg.Bzip2Bin, runner),
		Tool:         a.wgrib2,
		Publisher:    pipeline.NewFilePublisher(cfg.OutputDir, a.naming, a.clock, logger),
		RunDirFS:     pipeline.OSRunDirFS{},
		Hooks:        hooks,
		Clock:        a.clock,
		Metrics:      a.metrics,
		Logger:       logger,
	})
	return a, nil
}

func (a *app) publishHooks() ([]pipeline.PublishHook, error) {
	var hooks []pipeline.PublishHook

	if a.cfg.KafkaEnabled() {
		n := kafkaadapter.NewNotifier(a.cfg, a.logger)
		a.closers = append(a.closers, n.Close)
		hooks = append(hooks, n)
		a.logger.Info("kafka publish notifications enabled", "topic", a.cfg.KafkaTopic)
	}

	if a.cfg.MinioEnabled() {
		client, err := objectstore.NewMinIOClient(a.cfg)
		if err != nil {
			return nil, fmt.Errorf("create minio client: %w", err)
		}
		hooks = append(hooks, objectstore.NewMirror(client, a.cfg.MinioBucket, a.cfg.MinioRegion, a.naming, a.logger))
		a.logger.Info("object-store mirror enabled", "endpoint", a.cfg.MinioEndpoint, "bucket", a.cfg.MinioBucket)
	}

	return hooks, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
