// Package seed loads a marketplace snapshot into an empty target store in
// dependency order, remapping snapshot identifiers to store keys.
package seed

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"estatehub/internal/logger"
	"estatehub/pkg/domain"
)

// DefaultConcurrency is the per-type worker count when Options leaves it unset.
const DefaultConcurrency = 4

// BatchSource reads one entity batch. Missing batches are empty.
type BatchSource interface {
	Batch(ctx context.Context, name string) ([]domain.RawRecord, error)
}

// Options tunes a Loader. The zero value is usable.
type Options struct {
	Concurrency int
	FailureCap  int
	// StrictDuplicates turns duplicate source keys into a fatal
	// configuration error instead of a skipped record.
	StrictDuplicates bool
	Rand             *rand.Rand
	Observer         Observer
	Metrics          MetricsRecorder
	Tracer           Tracer
	Logger           *zap.SugaredLogger
	// Progress receives one line per entity type.
	Progress io.Writer
}

// Loader drives one seed run. A Loader is single use.
type Loader struct {
	plan   *Plan
	source BatchSource
	store  domain.Store
	opts   Options

	registry    *Registry
	transformer *Transformer
	reconciler  *Reconciler
	log         *zap.SugaredLogger

	mu    sync.Mutex
	phase Phase
	ran   bool
}

// NewLoader wires a loader. Validation of its inputs happens in Run so that
// configuration problems surface as ConfigurationError before any mutation.
func NewLoader(plan *Plan, source BatchSource, store domain.Store, opts Options) *Loader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.FailureCap <= 0 {
		opts.FailureCap = DefaultFailureCap
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Tracer == nil {
		opts.Tracer = noopTracer{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("seed")
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	reg := NewRegistry()
	return &Loader{
		plan:        plan,
		source:      source,
		store:       store,
		opts:        opts,
		registry:    reg,
		transformer: NewTransformer(reg, opts.Rand),
		reconciler:  NewReconciler(store),
		log:         opts.Logger,
	}
}

// Registry exposes the run's identifier registry.
func (l *Loader) Registry() *Registry { return l.registry }

// Phase returns the current state.
func (l *Loader) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

func (l *Loader) transition(p Phase, entity domain.EntityType) {
	l.mu.Lock()
	l.phase = p
	l.mu.Unlock()
	if l.opts.Observer != nil {
		l.opts.Observer(Transition{Phase: p, Entity: entity, At: time.Now().UTC()})
	}
}

// Run executes the pipeline. The returned report is never nil; err is
// non-nil only for fatal conditions, and then the loader ends in PhaseFailed.
func (l *Loader) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC()}
	err := l.run(ctx, report)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		l.transition(PhaseFailed, "")
		report.Phase = PhaseFailed.String()
		report.Fatal = err.Error()
		l.log.Errorw("seed failed", "kind", Classify(err), "error", err)
		return report, err
	}
	l.transition(PhaseDone, "")
	report.Phase = PhaseDone.String()
	attempted, succeeded, failed := report.Totals()
	l.log.Infow("seed done", "attempted", attempted, "succeeded", succeeded, "failed", failed,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

func (l *Loader) run(ctx context.Context, report *Report) error {
	l.mu.Lock()
	if l.ran {
		l.mu.Unlock()
		return configurationErrorf("loader already ran; construct a new one per run")
	}
	l.ran = true
	l.mu.Unlock()

	if l.plan == nil {
		return configurationErrorf("no entity plan")
	}
	if l.store == nil || l.source == nil {
		return configurationErrorf("loader requires a target store and a snapshot source")
	}
	if err := l.plan.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "seed canceled before start")
	}
	if err := l.store.Ping(ctx); err != nil {
		return connectivityError(err, "ping target store")
	}

	if err := l.timed(ctx, PhaseWiping, "", l.wipe); err != nil {
		return err
	}

	var patchers []*outcomeTracker
	for _, t := range l.plan.Order() {
		tracker, err := l.loadType(ctx, t)
		if t.NeedsPatch() {
			patchers = append(patchers, tracker)
		}
		out := tracker.snapshot()
		report.Entities = append(report.Entities, out)
		fmt.Fprintln(l.opts.Progress, ProgressLine(out))
		if err != nil {
			l.recordRegistry(report)
			l.recordOutcomes(report)
			return err
		}
	}

	if len(patchers) > 0 {
		err := l.timed(ctx, PhasePatching, "", func(ctx context.Context) error {
			return l.patch(ctx, patchers)
		})
		for _, tracker := range patchers {
			out := tracker.snapshot()
			for i := range report.Entities {
				if report.Entities[i].Entity == out.Entity {
					report.Entities[i].Patched = out.Patched
					report.Entities[i].PatchFailed = out.PatchFailed
					report.Entities[i].Failures = out.Failures
					report.Entities[i].ByKind = out.ByKind
				}
			}
		}
		if err != nil {
			l.recordRegistry(report)
			l.recordOutcomes(report)
			return err
		}
	}

	l.recordRegistry(report)
	l.recordOutcomes(report)
	return nil
}

func (l *Loader) recordOutcomes(report *Report) {
	for _, o := range report.Entities {
		l.opts.Metrics.RecordOutcome(o)
	}
}

func (l *Loader) recordRegistry(report *Report) {
	report.Registry = report.Registry[:0]
	for _, t := range l.plan.Order() {
		if len(t.SourceKeys) == 0 {
			continue
		}
		c := RegistryCount{
			Entity:     t.Name,
			SourceKeys: l.registry.Count(t.Name),
			StoreKeys:  l.registry.DistinctKeys(t.Name),
		}
		report.Registry = append(report.Registry, c)
		l.opts.Metrics.RecordRegistry(t.Name, c.SourceKeys)
	}
}

// timed wraps a phase with its transition, a trace span and a duration metric.
func (l *Loader) timed(ctx context.Context, p Phase, entity domain.EntityType, fn func(context.Context) error) error {
	l.transition(p, entity)
	op := "seed." + p.String()
	if entity != "" {
		op += "." + string(entity)
	}
	spanCtx, span := l.opts.Tracer.Start(ctx, op)
	start := time.Now()
	err := fn(spanCtx)
	l.opts.Metrics.ObservePhase(p, entity, time.Since(start))
	span.End(err)
	return err
}

// wipe deletes every table children-first. When plain deletion fails the
// store's constraint enforcement is suspended for a second attempt and
// restored right after.
func (l *Loader) wipe(ctx context.Context) error {
	err := l.deleteAll(ctx)
	if err == nil {
		return nil
	}
	if fatal := l.fatalStoreError(ctx, err, "wipe"); fatal != nil {
		return fatal
	}
	l.log.Warnw("reverse-order wipe failed; suspending constraints", "error", err)
	restore, serr := l.store.SuspendConstraints(ctx)
	if serr != nil {
		if fatal := l.fatalStoreError(ctx, serr, "suspend constraints"); fatal != nil {
			return fatal
		}
		return configurationErrorf("store cannot suspend constraints to finish the wipe: %v (wipe error: %v)", serr, err)
	}
	err = l.deleteAll(ctx)
	rerr := restore(context.WithoutCancel(ctx))
	if err != nil {
		if fatal := l.fatalStoreError(ctx, err, "wipe"); fatal != nil {
			return fatal
		}
		return configurationErrorf("store rejected the wipe with constraints suspended: %v", err)
	}
	if rerr != nil {
		return connectivityError(rerr, "restore constraints")
	}
	return nil
}

func (l *Loader) deleteAll(ctx context.Context) error {
	for _, t := range l.plan.Reverse() {
		if err := l.store.DeleteAll(ctx, t.Table); err != nil {
			return fmt.Errorf("delete %s: %w", t.Table, err)
		}
	}
	return nil
}

// fatalStoreError returns a fatal error when err stems from cancellation or
// the store is no longer reachable, and nil when err is a content problem.
func (l *Loader) fatalStoreError(ctx context.Context, err error, op string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrapf(ctxErr, "%s interrupted", op)
	}
	if pingErr := l.store.Ping(context.WithoutCancel(ctx)); pingErr != nil {
		return connectivityError(errors.CombineErrors(err, pingErr), op)
	}
	return nil
}

// loadType runs Loading and Reconciling for t. The tracker is returned even
// with a fatal error so partial counters reach the report.
func (l *Loader) loadType(ctx context.Context, t EntityType) (*outcomeTracker, error) {
	tracker := newOutcomeTracker(t.Name, l.opts.FailureCap)
	records, err := l.source.Batch(ctx, t.BatchName())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return tracker, errors.Wrapf(ctxErr, "read %s batch", t.Name)
		}
		l.log.Warnw("batch unreadable; skipping type", "entity", t.Name, "error", err)
		tracker.out.BatchError = err.Error()
		return tracker, nil
	}
	if len(records) == 0 {
		l.log.Infow("batch empty; skipping type", "entity", t.Name, "attempted", 0)
		tracker.out.Empty = true
		return tracker, nil
	}

	err = l.timed(ctx, PhaseLoading, t.Name, func(ctx context.Context) error {
		return l.loadRecords(ctx, t, records, tracker)
	})
	out := tracker.snapshot()
	l.log.Infow("entity loaded", "entity", t.Name, "attempted", out.Attempted,
		"succeeded", out.Succeeded, "failed", out.Failed)
	if err != nil {
		return tracker, err
	}
	if t.Keys != domain.KeySequence {
		return tracker, nil
	}
	err = l.timed(ctx, PhaseReconciling, t.Name, func(ctx context.Context) error {
		next, applied, err := l.reconciler.Reconcile(ctx, t.Table)
		if err != nil {
			if fatal := l.fatalStoreError(ctx, err, "reconcile "+t.Table); fatal != nil {
				return fatal
			}
			l.log.Warnw("sequence reconcile failed", "entity", t.Name, "error", err)
			return nil
		}
		if applied {
			tracker.mu.Lock()
			tracker.out.Sequence = next
			tracker.mu.Unlock()
			l.log.Debugw("sequence advanced", "entity", t.Name, "next", next)
		}
		return nil
	})
	return tracker, err
}

// loadRecords fans records out to a bounded worker pool. Scheduling stops on
// cancellation or the first fatal error; in-flight inserts always finish.
func (l *Loader) loadRecords(ctx context.Context, t EntityType, records []domain.RawRecord, tracker *outcomeTracker) error {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	setFatal := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	jobs := make(chan domain.RawRecord)
	var wg sync.WaitGroup
	workers := min(l.opts.Concurrency, len(records))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for raw := range jobs {
				if err := l.loadRecord(workCtx, t, raw, tracker); err != nil {
					setFatal(err)
				}
			}
		}()
	}

feed:
	for _, raw := range records {
		select {
		case <-workCtx.Done():
			break feed
		case jobs <- raw:
		}
	}
	close(jobs)
	wg.Wait()

	if fatalErr != nil {
		return fatalErr
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "loading %s interrupted", t.Name)
	}
	return nil
}

// loadRecord processes one record. Recoverable problems are counted on the
// tracker; only fatal errors are returned.
func (l *Loader) loadRecord(ctx context.Context, t EntityType, raw domain.RawRecord, tracker *outcomeTracker) error {
	tracker.attempt()
	rec, err := l.transformer.Transform(t, raw)
	if err != nil {
		tracker.fail(raw, err)
		return nil
	}
	sourceKeys, err := t.SourceKeyValues(raw)
	if err != nil {
		tracker.fail(raw, err)
		return nil
	}
	if err := l.registry.Reserve(t.Name, sourceKeys...); err != nil {
		tracker.fail(raw, err)
		if l.opts.StrictDuplicates {
			return errors.Mark(errors.WithHint(err, "remove the duplicate snapshot record or run without strict duplicates"), ErrConfiguration)
		}
		return nil
	}

	// Inserts that already started finish even when the run is canceled.
	insertCtx := context.WithoutCancel(ctx)
	key, err := l.store.Insert(insertCtx, rec)
	if err != nil {
		l.registry.Release(t.Name, sourceKeys...)
		if pingErr := l.store.Ping(insertCtx); pingErr != nil {
			tracker.fail(raw, errors.Mark(err, ErrConnectivity))
			return connectivityError(errors.CombineErrors(err, pingErr), "insert "+t.Table)
		}
		tracker.fail(raw, malformed(err, "store rejected "+string(t.Name)))
		return nil
	}
	for _, sk := range sourceKeys {
		if err := l.registry.Remember(t.Name, sk, key); err != nil {
			l.log.Warnw("registry rejected mapping", "entity", t.Name, "sourceKey", sk, "error", err)
		}
	}
	tracker.succeed(key, raw, t.NeedsPatch())
	return nil
}

// patch back-fills deferred references once every type has loaded.
func (l *Loader) patch(ctx context.Context, trackers []*outcomeTracker) error {
	for _, tracker := range trackers {
		t, ok := l.plan.Lookup(tracker.out.Entity)
		if !ok {
			continue
		}
		tracker.mu.Lock()
		targets := append([]patchTarget(nil), tracker.patches...)
		tracker.mu.Unlock()
		for _, target := range targets {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(err, "patching %s interrupted", t.Name)
			}
			cols, err := l.patchColumns(t, target.raw)
			if err != nil {
				tracker.patchResult(target.raw, err)
				continue
			}
			if len(cols) == 0 {
				continue
			}
			if err := l.store.Update(ctx, t.Table, target.key, cols); err != nil {
				if fatal := l.fatalStoreError(ctx, err, "patch "+t.Table); fatal != nil {
					return fatal
				}
				tracker.patchResult(target.raw, malformed(err, "store rejected patch of "+string(t.Name)))
				continue
			}
			tracker.patchResult(target.raw, nil)
		}
	}
	return nil
}

func (l *Loader) patchColumns(t EntityType, raw domain.RawRecord) ([]domain.Column, error) {
	var cols []domain.Column
	for _, ref := range t.References {
		if !ref.Deferred {
			continue
		}
		key, ok, err := l.transformer.resolveReference(t.Name, ref, raw)
		if err != nil {
			return nil, err
		}
		if ok {
			cols = append(cols, domain.Column{Name: ref.Column, Value: key})
		}
	}
	if t.Patch != nil {
		extra, err := t.Patch(raw, l.registry)
		if err != nil {
			return nil, malformed(err, "patch "+string(t.Name))
		}
		cols = append(cols, extra...)
	}
	return cols, nil
}
