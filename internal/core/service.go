// Package core wires configuration, target stores, snapshot sources and
// observability exporters into seed runs. cmd/estatehub-seed is a thin shell
// over Service.
package core

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"estatehub/internal/config"
	"estatehub/internal/infra/persistence/memory"
	"estatehub/internal/logger"
	"estatehub/internal/seed"
	"estatehub/internal/snapshot"
	"estatehub/pkg/domain"
)

// TierScope is the capability scope of the service's tier cache.
const TierScope = "account-tier"

// Service runs seeds against the configured target.
type Service struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	metrics  *PrometheusRecorder
	tracer   seed.Tracer
	observer seed.Observer
	progress io.Writer
	snap     snapshot.Store
	types    []seed.EntityType

	mu       sync.Mutex
	target   TargetStore
	injected bool
	tiers    *TierCache
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger overrides the service logger.
func WithLogger(l *zap.SugaredLogger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the recorder receiving loader measurements.
func WithMetrics(m *PrometheusRecorder) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer wrapping loader phases.
func WithTracer(t seed.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// WithObserver registers a loader phase observer.
func WithObserver(o seed.Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithProgress sets where per-type progress lines are written.
func WithProgress(w io.Writer) ServiceOption {
	return func(s *Service) { s.progress = w }
}

// WithSnapshotStore reads batches from store instead of the configured driver.
func WithSnapshotStore(store snapshot.Store) ServiceOption {
	return func(s *Service) { s.snap = store }
}

// WithEntityTypes replaces the marketplace entity table.
func WithEntityTypes(types []seed.EntityType) ServiceOption {
	return func(s *Service) { s.types = types }
}

// WithTargetStore seeds store instead of opening the configured driver. The
// service does not close an injected store.
func WithTargetStore(store TargetStore) ServiceOption {
	return func(s *Service) {
		s.target = store
		s.injected = store != nil
	}
}

// NewService constructs a service for cfg.
func NewService(cfg config.Config, opts ...ServiceOption) *Service {
	s := &Service{cfg: cfg, log: logger.Named("core"), types: seed.Marketplace()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() config.Config { return s.cfg }

// Seed wipes the target store and loads the snapshot into it. The target
// is opened only after the plan and the snapshot source are settled.
func (s *Service) Seed(ctx context.Context) (*seed.Report, error) {
	if err := s.validate(); err != nil {
		return failedReport(err), err
	}
	report, err := s.run(ctx, func(ctx context.Context) (domain.Store, error) {
		return s.targetStore(ctx)
	})
	s.mu.Lock()
	if s.tiers != nil {
		s.tiers.Purge()
	}
	s.mu.Unlock()
	return report, err
}

// DryRun validates the plan and transforms every batch into a scratch
// in-memory store. The configured target is never opened.
func (s *Service) DryRun(ctx context.Context) (*seed.Report, error) {
	if err := s.validate(); err != nil {
		return failedReport(err), err
	}
	report, err := s.run(ctx, func(context.Context) (domain.Store, error) {
		return memory.NewStore(), nil
	})
	if report != nil {
		report.DryRun = true
	}
	return report, err
}

func (s *Service) validate() error {
	if err := s.cfg.Validate(); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid config"), seed.ErrConfiguration)
	}
	return nil
}

func (s *Service) run(ctx context.Context, openTarget func(context.Context) (domain.Store, error)) (*seed.Report, error) {
	plan, err := seed.NewPlan(s.types, domain.Schema())
	if err != nil {
		return failedReport(err), err
	}
	source, err := s.source(ctx)
	if err != nil {
		return failedReport(err), err
	}
	target, err := openTarget(ctx)
	if err != nil {
		return failedReport(err), err
	}
	s.log.Infow("seed starting", "storage", s.cfg.Storage.Driver, "snapshot", source.Store().Driver(),
		"concurrency", s.cfg.Seed.Concurrency)
	return seed.NewLoader(plan, source, target, s.loaderOptions()).Run(ctx)
}

func (s *Service) loaderOptions() seed.Options {
	opts := seed.Options{
		Concurrency:      s.cfg.Seed.Concurrency,
		FailureCap:       s.cfg.Seed.FailureCap,
		StrictDuplicates: s.cfg.Seed.StrictDuplicates,
		Observer:         s.observer,
		Tracer:           s.tracer,
		Logger:           s.log.Named("seed"),
		Progress:         s.progress,
	}
	if s.metrics != nil {
		opts.Metrics = s.metrics
	}
	if s.cfg.Seed.RandSeed != 0 {
		n := uint64(s.cfg.Seed.RandSeed)
		opts.Rand = rand.New(rand.NewPCG(n, n>>1|1))
	}
	return opts
}

func (s *Service) source(ctx context.Context) (*snapshot.Source, error) {
	if s.snap != nil {
		return snapshot.NewSource(s.snap), nil
	}
	store, err := snapshot.Open(ctx, s.cfg.Snapshot)
	if err != nil {
		err = errors.WithHint(errors.Wrap(err, "open snapshot"), "check the snapshot driver settings")
		return nil, errors.Mark(err, seed.ErrConfiguration)
	}
	return snapshot.NewSource(store), nil
}

// targetStore opens the configured store once and keeps it for later calls.
func (s *Service) targetStore(ctx context.Context) (TargetStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target != nil {
		return s.target, nil
	}
	store, err := OpenTargetStore(ctx, s.cfg.Storage, s.cfg.Seed.Concurrency)
	if err != nil {
		err = errors.WithHint(errors.Wrapf(err, "open %s store", s.cfg.Storage.Driver), "check the storage settings and that the database is reachable")
		return nil, errors.Mark(err, seed.ErrConnectivity)
	}
	s.target = store
	return store, nil
}

// Tier returns the current tier of an account in the target store through
// the service's tier cache.
func (s *Service) Tier(ctx context.Context, email string) (string, bool, error) {
	target, err := s.targetStore(ctx)
	if err != nil {
		return "", false, err
	}
	s.mu.Lock()
	if s.tiers == nil {
		s.tiers, err = NewTierCache(TierScope, target, DefaultTierCacheEntries, DefaultTierCacheTTL)
	}
	tiers := s.tiers
	s.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	return tiers.Tier(ctx, email)
}

// Close releases the target store opened by the service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil || s.injected {
		return nil
	}
	err := s.target.Close()
	s.target = nil
	s.tiers = nil
	return err
}

func failedReport(err error) *seed.Report {
	return &seed.Report{Phase: seed.PhaseFailed.String(), Fatal: err.Error()}
}
