// Package enrich sequences gap detection, strategy fan-out, validation and
// the status lifecycle of a facility enrichment job.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/facility-enrich/internal/gaps"
	"github.com/sells-group/facility-enrich/internal/merge"
	"github.com/sells-group/facility-enrich/internal/metrics"
	"github.com/sells-group/facility-enrich/internal/model"
	"github.com/sells-group/facility-enrich/internal/strategy"
	"github.com/sells-group/facility-enrich/internal/validate"
)

// Store is the record store surface the orchestrator uses.
type Store interface {
	GetFacility(ctx context.Context, id int64) (*model.Facility, error)
	UpdateFields(ctx context.Context, id int64, patch model.Patch) error
	SetEnrichmentStatus(ctx context.Context, id int64, status model.EnrichmentStatus, at time.Time) error
	ClaimEnrichment(ctx context.Context, id int64, expected model.EnrichmentStatus, at time.Time) (bool, error)
}

// Config holds the orchestrator's guard thresholds.
type Config struct {
	MaxConcurrent   int
	StaleAfter      time.Duration
	Cooldown        time.Duration
	StrategyTimeout time.Duration
}

// DefaultConfig returns the recommended thresholds.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   3,
		StaleAfter:      10 * time.Minute,
		Cooldown:        7 * 24 * time.Hour,
		StrategyTimeout: 15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}
	if c.StrategyTimeout <= 0 {
		c.StrategyTimeout = def.StrategyTimeout
	}
	return c
}

// Orchestrator is the stateful entry point of the pipeline.
type Orchestrator struct {
	cfg       Config
	store     Store
	runners   map[model.StrategyName]strategy.Runner
	validator *validate.Validator
	applier   *merge.Applier
	sem       *Semaphore
	metrics   *metrics.Metrics
	now       func() time.Time
	wg        sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records job, strategy and verdict metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides time.Now for guards and status timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSemaphore replaces the orchestrator's own semaphore.
func WithSemaphore(s *Semaphore) Option {
	return func(o *Orchestrator) { o.sem = s }
}

// WithValidator overrides the validator used by the merge step.
func WithValidator(v *validate.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// New creates an Orchestrator. Runners are keyed by their Name; a strategy
// selected by the gap detector with no registered runner contributes an
// empty result.
func New(st Store, runners []strategy.Runner, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.withDefaults(),
		store:   st,
		runners: make(map[model.StrategyName]strategy.Runner, len(runners)),
		now:     time.Now,
	}
	for _, r := range runners {
		o.runners[r.Name()] = r
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sem == nil {
		o.sem = NewSemaphore(o.cfg.MaxConcurrent)
	}
	if o.validator == nil {
		o.validator = validate.New(validate.WithClock(o.now))
	}
	o.applier = merge.NewApplier(st, o.validator)
	return o
}

// InFlight is the number of jobs currently running.
func (o *Orchestrator) InFlight() int { return o.sem.InFlight() }

// Wait blocks until every job started by EnrichIfNeeded has finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// EnrichIfNeeded runs Enrich for f in the background and returns
// immediately. The job is detached from ctx cancellation. Outcomes are
// observable only through the record's status and the logs.
func (o *Orchestrator) EnrichIfNeeded(ctx context.Context, f *model.Facility) {
	if f == nil {
		return
	}
	snapshot := f.Clone()
	ctx = context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				zap.L().Error("enrich: job panicked",
					zap.Int64("facility_id", snapshot.ID),
					zap.String("panic", fmt.Sprint(p)),
				)
			}
		}()
		outcome, _, err := o.Enrich(ctx, snapshot)
		if err != nil {
			zap.L().Error("enrich: background job failed",
				zap.Int64("facility_id", snapshot.ID),
				zap.String("outcome", string(outcome)),
				zap.Error(err),
			)
		}
	}()
}

// EnrichByID loads the facility and hands it to EnrichIfNeeded.
func (o *Orchestrator) EnrichByID(ctx context.Context, id int64) error {
	f, err := o.store.GetFacility(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "enrich: load facility %d", id)
	}
	o.EnrichIfNeeded(ctx, f)
	return nil
}

// Enrich runs one job synchronously. Skips return a skipped Outcome with a
// nil report and nil error. A job that fails at the merge write or a status
// write returns OutcomeFailed with the error; the report is returned when
// the merge ran.
func (o *Orchestrator) Enrich(ctx context.Context, f *model.Facility) (Outcome, *model.QuarantineReport, error) {
	outcome, report, err := o.enrich(ctx, f)
	o.metrics.IncOutcome(string(outcome))
	return outcome, report, err
}

func (o *Orchestrator) enrich(ctx context.Context, f *model.Facility) (Outcome, *model.QuarantineReport, error) {
	log := zap.L().With(zap.Int64("facility_id", f.ID))

	if !o.sem.TryAcquire() {
		log.Debug("enrich: skipped, concurrency ceiling reached", zap.Int("max_concurrent", o.sem.Size()))
		return OutcomeSkippedCapacity, nil, nil
	}
	o.metrics.SetInFlight(o.sem.InFlight())
	defer func() {
		o.sem.Release()
		o.metrics.SetInFlight(o.sem.InFlight())
	}()

	now := o.now()
	expected := f.EnrichmentStatus
	if expected == "" {
		expected = model.StatusIdle
	}

	switch expected {
	case model.StatusEnriching:
		if within(f.LastEnrichmentAt, now, o.cfg.StaleAfter) {
			log.Debug("enrich: skipped, job in flight")
			return OutcomeSkippedInFlight, nil, nil
		}
		log.Warn("enrich: recovering stale job", zap.Timep("last_enrichment_at", f.LastEnrichmentAt))
	case model.StatusEnriched:
		if within(f.LastEnrichmentAt, now, o.cfg.Cooldown) {
			log.Debug("enrich: skipped, cooling down")
			return OutcomeSkippedCooldown, nil, nil
		}
	}

	analysis := gaps.Detect(f)
	if analysis.Empty() {
		log.Debug("enrich: skipped, no gaps")
		return OutcomeSkippedNoGaps, nil, nil
	}

	claimed, err := o.store.ClaimEnrichment(ctx, f.ID, expected, now)
	if err != nil {
		log.Error("enrich: claim failed", zap.Error(err))
		return OutcomeFailed, nil, eris.Wrapf(err, "enrich: claim facility %d", f.ID)
	}
	if !claimed {
		log.Debug("enrich: skipped, claimed by another job")
		return OutcomeSkippedClaimed, nil, nil
	}

	jobID := uuid.NewString()
	log = log.With(zap.String("job_id", jobID))
	log.Info("enrich: job started",
		zap.Any("strategies", analysis.Strategies),
		zap.Stringers("missing_fields", analysis.MissingFields),
	)

	results := o.runStrategies(ctx, f, analysis.Strategies)

	// The record may have changed while strategies ran.
	current, err := o.store.GetFacility(ctx, f.ID)
	if err != nil {
		return o.fail(ctx, log, f.ID, nil, eris.Wrapf(err, "enrich: reload facility %d", f.ID))
	}

	report, err := o.applier.Apply(ctx, current, merge.Flatten(results))
	if report != nil {
		report.JobID = jobID
		o.countVerdicts(report)
	}
	if err != nil {
		return o.fail(ctx, log, f.ID, report, err)
	}

	if err := o.store.SetEnrichmentStatus(ctx, f.ID, model.StatusEnriched, o.now()); err != nil {
		return o.fail(ctx, log, f.ID, report, eris.Wrapf(err, "enrich: mark facility %d enriched", f.ID))
	}

	log.Info("enrich: job complete",
		zap.Int("accepted", report.Accepted),
		zap.Int("flagged", report.Flagged),
		zap.Int("rejected", report.Rejected),
		zap.Bool("applied", report.Applied),
	)
	return OutcomeEnriched, report, nil
}

// runStrategies fans out the selected runners and waits for all of them.
// Results keep the order of names.
func (o *Orchestrator) runStrategies(ctx context.Context, f *model.Facility, names []model.StrategyName) []model.StrategyResult {
	results := make([]model.StrategyResult, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		runner, ok := o.runners[name]
		if !ok {
			results[i] = strategy.Empty(name)
			continue
		}
		g.Go(func() error {
			start := time.Now()
			results[i] = strategy.RunWithTimeout(gCtx, runner, f, o.cfg.StrategyTimeout)
			o.metrics.ObserveStrategy(string(name), time.Since(start), len(results[i].Changes))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, id int64, report *model.QuarantineReport, cause error) (Outcome, *model.QuarantineReport, error) {
	log.Error("enrich: job failed", zap.Error(cause))
	if err := o.store.SetEnrichmentStatus(ctx, id, model.StatusFailed, o.now()); err != nil {
		log.Error("enrich: mark failed", zap.Error(err))
	}
	return OutcomeFailed, report, cause
}

func (o *Orchestrator) countVerdicts(report *model.QuarantineReport) {
	for _, d := range report.Details {
		o.metrics.IncVerdict(string(d.Status), d.FieldID().String())
	}
}

// within reports whether t is set and less than d before now.
func within(t *time.Time, now time.Time, d time.Duration) bool {
	return t != nil && now.Sub(*t) < d
}
