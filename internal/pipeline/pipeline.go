package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/couchcryptid/aladin-mirror/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// State is a step of one pipeline invocation.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateResolving
	StateFetching
	StateTransforming
	StateMerging
	StatePublishing
	StateSweeping
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateDiscovering:  "discovering",
	StateResolving:    "resolving",
	StateFetching:     "fetching",
	StateTransforming: "transforming",
	StateMerging:      "merging",
	StatePublishing:   "publishing",
	StateSweeping:     "sweeping",
	StateDone:         "done",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Options are the static settings of the pipeline.
type Options struct {
	RunDirs        []string
	ArchivePrefix  string
	Variables      []domain.Variable
	WorkDir        string
	Grid           domain.Grid
	Artifacts      domain.ArtifactNaming
	RetentionCount int
	Concurrency    int
}

// Deps are the capabilities the pipeline drives.
type Deps struct {
	Lister       Lister
	Downloader   Downloader
	Decompressor Decompressor
	Tool         GridTool
	Publisher    Publisher
	RunDirFS     RunDirFS
	Hooks        []PublishHook
	Clock        clockwork.Clock
	// Metrics and Logger default to unregistered collectors and slog.Default.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Result summarizes one invocation.
type Result struct {
	InvocationID string
	Run          domain.Run
	State        State
	// FailedIn is the state that was active when the invocation failed.
	FailedIn    State
	Artifact    domain.PublishedArtifact
	Resolved    int
	Fetched     int
	Transformed int
	Dropped     int
	Removed     []string
}

// Pipeline runs discover, resolve, fetch, transform, merge, publish and
// sweep for the most recent run. Invocations are serialized.
type Pipeline struct {
	opts        Options
	discovery   *Discovery
	fetcher     *Fetcher
	transformer *Transformer
	merger      *Merger
	publisher   Publisher
	sweeper     *Sweeper
	hooks       []PublishHook
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger

	mu sync.Mutex
}

// New wires a Pipeline from opts and deps.
func New(opts Options, deps Deps) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RetentionCount <= 0 {
		opts.RetentionCount = DefaultRetention
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	fs := deps.RunDirFS
	if fs == nil {
		fs = OSRunDirFS{}
	}
	// Unregistered collectors keep stage code free of nil checks.
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetricsForTesting()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Pipeline{
		opts:        opts,
		discovery:   NewDiscovery(deps.Lister, domain.NewArchiveNaming(opts.ArchivePrefix), deps.Logger),
		fetcher:     NewFetcher(deps.Lister, deps.Downloader, deps.Decompressor, deps.Metrics, deps.Logger),
		transformer: NewTransformer(deps.Tool, opts.Grid, deps.Metrics, deps.Logger),
		merger:      NewMerger(deps.Tool, opts.Artifacts, deps.Logger),
		publisher:   deps.Publisher,
		sweeper:     NewSweeper(fs, deps.Metrics, deps.Logger),
		hooks:       deps.Hooks,
		clock:       clock,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// invocation tracks the state machine of a single Run call.
type invocation struct {
	p      *Pipeline
	logger *slog.Logger
	res    *Result
	since  time.Time
}

func (inv *invocation) enter(next State) {
	now := inv.p.clock.Now()
	prev := inv.res.State
	if prev != StateIdle {
		inv.p.metrics.StageDuration.WithLabelValues(prev.String()).Observe(now.Sub(inv.since).Seconds())
	}
	inv.since = now
	inv.res.State = next
	inv.p.metrics.PipelineState.Set(float64(next))
	inv.logger.Info("pipeline state", "from", prev.String(), "to", next.String())
}

// Run executes one invocation. It returns the fatal error, if any; per-file
// failures only reduce the Fetched and Transformed counts.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{InvocationID: uuid.NewString(), State: StateIdle}
	inv := &invocation{
		p:      p,
		logger: p.logger.With("invocation_id", res.InvocationID),
		res:    &res,
		since:  p.clock.Now(),
	}

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if err := p.run(ctx, inv); err != nil {
		res.FailedIn = res.State
		inv.enter(StateFailed)
		p.metrics.RunsTotal.WithLabelValues("failed").Inc()
		inv.logger.Error("pipeline failed", "stage", res.FailedIn.String(), "error", err)
		return res, err
	}

	inv.enter(StateDone)
	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	inv.logger.Info("pipeline finished",
		"artifact", res.Artifact.Name,
		"transformed", res.Transformed,
		"dropped", res.Dropped,
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, inv *invocation) error {
	res := inv.res

	inv.enter(StateDiscovering)
	run, listing, err := p.discovery.FindLatestRun(ctx, p.opts.RunDirs)
	if err != nil {
		return err
	}
	res.Run = run
	inv.logger = inv.logger.With("run_dir", run.Dir, "timestamp", run.Timestamp.String())
	inv.logger.Info("latest run found", "entries", len(listing))

	inv.enter(StateResolving)
	dirs := domain.NewWorkDirs(p.opts.WorkDir, run)
	sources := Resolve(run, listing, p.opts.Variables, dirs.Source, inv.logger)
	res.Resolved = len(sources)
	if len(sources) == 0 {
		return fmt.Errorf("%w: no variable resolved for run %s", domain.ErrNoInputFiles, run)
	}
	if err := p.prepare(dirs); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	inv.enter(StateFetching)
	ready := p.fetchAll(ctx, inv.logger, run, sources)
	res.Fetched = len(ready)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ready) == 0 {
		return fmt.Errorf("%w: no source file could be fetched", domain.ErrNoInputFiles)
	}

	inv.enter(StateTransforming)
	transformed := p.transformAll(ctx, inv.logger, ready, dirs)
	res.Transformed = len(transformed)
	res.Dropped = len(sources) - len(transformed)
	if err := ctx.Err(); err != nil {
		return err
	}

	inv.enter(StateMerging)
	artifact, err := p.merger.Merge(ctx, run, transformed, dirs.Processed)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	inv.enter(StatePublishing)
	published, err := p.publisher.Publish(ctx, artifact)
	if err != nil {
		return err
	}
	res.Artifact = published
	p.metrics.LastSuccessTimestamp.Set(float64(published.PublishedAt.Unix()))
	p.runHooks(ctx, inv.logger, published)

	inv.enter(StateSweeping)
	res.Removed = p.sweeper.Sweep(p.opts.WorkDir, p.opts.RetentionCount)
	return nil
}

// prepare creates the run's stage directories and marks the run as the most
// recently used for retention.
func (p *Pipeline) prepare(dirs domain.WorkDirs) error {
	for _, d := range dirs.All() {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create working dir: %w", err)
		}
	}
	now := p.clock.Now()
	if err := os.Chtimes(dirs.Root, now, now); err != nil {
		return fmt.Errorf("touch working dir: %w", err)
	}
	return nil
}

func (p *Pipeline) fetchAll(ctx context.Context, logger *slog.Logger, run domain.Run, sources []domain.SourceFile) []domain.SourceFile {
	results := make([]domain.SourceFile, len(sources))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			f, err := p.fetcher.Fetch(ctx, run, src)
			if err != nil {
				logger.Warn("fetch failed, dropping file", "file", src.RemoteName, "error", err)
				return nil
			}
			results[i] = f
			return nil
		})
	}
	_ = g.Wait()

	ready := make([]domain.SourceFile, 0, len(results))
	for _, f := range results {
		if f.Ready() {
			ready = append(ready, f)
		}
	}
	return ready
}

func (p *Pipeline) transformAll(ctx context.Context, logger *slog.Logger, sources []domain.SourceFile, dirs domain.WorkDirs) []domain.TransformedFile {
	results := make([]domain.TransformedFile, len(sources))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out, err := p.transformer.Transform(ctx, src, dirs)
			if err != nil {
				logger.Warn("transform failed, dropping file", "file", src.Base(), "error", err)
				return nil
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	done := make([]domain.TransformedFile, 0, len(results))
	for _, f := range results {
		if f.Path != "" {
			done = append(done, f)
		}
	}
	return done
}

func (p *Pipeline) runHooks(ctx context.Context, logger *slog.Logger, artifact domain.PublishedArtifact) {
	for _, h := range p.hooks {
		if err := h.AfterPublish(ctx, artifact); err != nil {
			logger.Warn("publish hook failed", "hook", h.Name(), "error", err)
			continue
		}
		logger.Debug("publish hook done", "hook", h.Name())
	}
}
