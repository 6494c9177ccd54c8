// Package scheduler drives the periodic tick: it evaluates the automation
// policies of the assets selected by running automation sensors, and fires
// job schedules whose next due time has passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/metrics"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/policy"
	"github.com/dukex/assetflow/pkg/state"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTick = time.Minute

	// keyTimeLayout renders tick times in deduplication keys.
	keyTimeLayout = "200601021504"

	evaluationConcurrency = 8
)

// Enqueuer accepts run requests and reports whether the request was new.
type Enqueuer interface {
	Enqueue(ctx context.Context, origin string, request models.RunRequest) (bool, error)
}

type automatedAsset struct {
	sensor    string
	job       string
	key       models.AssetKey
	condition policy.Condition
}

func (a automatedAsset) cursorKey() string {
	return a.sensor + "|" + a.key.String()
}

type Scheduler struct {
	store    state.Store
	enqueuer Enqueuer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tick     time.Duration
	now      func() time.Time

	assets []automatedAsset

	mu        sync.Mutex
	cursors   map[string]time.Time
	schedules []*models.Schedule
}

// New compiles the policies of every asset selected by a running automation
// sensor. Stopped sensors and schedules are kept out of the tick entirely.
func New(defs *graph.Definitions, store state.Store, enqueuer Enqueuer, m *metrics.Metrics, logger *slog.Logger, tick time.Duration) (*Scheduler, error) {
	if tick <= 0 {
		tick = DefaultTick
	}

	s := &Scheduler{
		store:    store,
		enqueuer: enqueuer,
		metrics:  m,
		logger:   logger.With("module", "scheduler"),
		tick:     tick,
		now:      func() time.Time { return time.Now().UTC() },
		cursors:  make(map[string]time.Time),
	}

	for _, sensor := range defs.SensorsOfKind(models.SensorKindAutomationCondition) {
		if !sensor.Running() || sensor.Selection == nil {
			continue
		}

		for _, asset := range defs.AssetsMatching(*sensor.Selection) {
			if asset.Policy == nil {
				continue
			}

			condition, err := policy.Compile(asset.Policy)
			if err != nil {
				return nil, fmt.Errorf("asset %s: %w", asset.Key, err)
			}

			s.assets = append(s.assets, automatedAsset{
				sensor:    sensor.Name,
				job:       sensor.TargetJob,
				key:       asset.Key,
				condition: condition,
			})
		}
	}

	for _, schedule := range defs.Schedules() {
		if schedule.Status == models.SensorStatusRunning {
			s.schedules = append(s.schedules, schedule)
		}
	}

	return s, nil
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("Scheduler started",
		"tick", s.tick,
		"automated_assets", len(s.assets),
		"schedules", len(s.schedules))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")

			return nil
		case <-ticker.C:
			if err := s.Tick(ctx, s.now()); err != nil {
				s.logger.Error("Scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick evaluates every automated asset concurrently and then fires due schedules.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	now = now.UTC()

	return errors.Join(s.evaluatePolicies(ctx, now), s.fireSchedules(ctx, now))
}

func (s *Scheduler) evaluatePolicies(ctx context.Context, now time.Time) error {
	var g errgroup.Group

	g.SetLimit(evaluationConcurrency)

	for _, asset := range s.assets {
		g.Go(func() error {
			return s.evaluate(ctx, asset, now)
		})
	}

	return g.Wait()
}

// evaluate advances the asset cursor only once the decision has been acted
// upon, so a failed state read or enqueue is retried on the next tick.
func (s *Scheduler) evaluate(ctx context.Context, asset automatedAsset, now time.Time) error {
	runState, err := s.store.RunState(ctx, asset.key)
	if err != nil {
		return fmt.Errorf("failed to read run state of %s: %w", asset.key, err)
	}

	s.mu.Lock()
	last := s.cursors[asset.cursorKey()]
	s.mu.Unlock()

	ec := policy.Context{State: runState, LastEvaluatedAt: last, Now: now}
	fired := asset.condition.Evaluate(ec)
	s.metrics.RecordPolicyEvaluation(fired)

	if fired {
		request := models.RunRequest{
			TargetJob:        asset.job,
			DeduplicationKey: automationKey(asset, ec),
			Assets:           []models.AssetKey{asset.key},
		}

		if _, err := s.enqueuer.Enqueue(ctx, metrics.OriginAutomation, request); err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", asset.key, err)
		}

		s.logger.Debug("Automation policy fired", "asset", asset.key.String(), "sensor", asset.sensor)
	}

	s.mu.Lock()
	s.cursors[asset.cursorKey()] = now
	s.mu.Unlock()

	return nil
}

func (s *Scheduler) fireSchedules(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	for _, schedule := range s.schedules {
		if !schedule.IsDue(now) {
			continue
		}

		s.logger.Info("Processing due schedule",
			"schedule", schedule.Name,
			"cron_expression", schedule.CronExpression,
			"due_at", schedule.NextDueAt)

		request := models.RunRequest{
			TargetJob:        schedule.JobName,
			DeduplicationKey: schedule.Name + "_" + schedule.NextDueAt.Format(keyTimeLayout),
		}

		if _, err := s.enqueuer.Enqueue(ctx, metrics.OriginSchedule, request); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", schedule.Name, err))

			continue
		}

		if err := schedule.Advance(now); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", schedule.Name, err))
		}
	}

	return errors.Join(errs...)
}

// Schedules returns copies of the running schedules with their current next due time.
func (s *Scheduler) Schedules() []models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, *schedule)
	}

	return out
}

// automationKey keys a firing on the cron tick it crossed. Only a firing
// caused by the asset being missing alone is keyed "<asset>_missing", so a
// failed first run is retried on the next tick of the schedule.
func automationKey(asset automatedAsset, ec policy.Context) string {
	if tick, ok := policy.CrossedTick(asset.condition, ec); ok {
		return asset.key.String() + "_" + tick.Format(keyTimeLayout)
	}

	if !ec.State.HasMaterialized {
		return asset.key.String() + "_missing"
	}

	return asset.key.String() + "_" + ec.Now.Format(keyTimeLayout)
}
