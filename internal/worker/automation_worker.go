package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// Automation is the department job surface the scheduler drives.
type Automation interface {
	AutomatedDepartments(ctx context.Context) ([]domain.Department, error)
	RunTick(ctx context.Context, departmentID int64) (service.AutomationResult, error)
}

// Locker serializes department ticks across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// AutomationOptions tunes the scheduler.
type AutomationOptions struct {
	Schedule    string
	Concurrency int
	LockTTL     time.Duration
	Location    *time.Location
}

// AutomationWorker runs a tick for every automated department on a cron schedule.
// Departments run in parallel up to Concurrency; one department never runs twice at
// once, neither in this process nor across replicas sharing the locker.
type AutomationWorker struct {
	automation Automation
	locker     Locker
	opts       AutomationOptions
	logger     *zap.Logger
	cron       *cron.Cron

	mu      sync.Mutex
	running map[int64]bool
}

// NewAutomationWorker builds the worker; locker may be nil for single-process setups.
func NewAutomationWorker(automation Automation, locker Locker, opts AutomationOptions, logger *zap.Logger) *AutomationWorker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutomationWorker{
		automation: automation,
		locker:     locker,
		opts:       opts,
		logger:     logger,
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(opts.Location)),
		running:    make(map[int64]bool),
	}
}

// Run schedules ticks and blocks until ctx is cancelled, then waits for the running tick.
func (w *AutomationWorker) Run(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.opts.Schedule, func() { w.Tick(ctx) }); err != nil {
		return fmt.Errorf("invalid automation schedule %q: %w", w.opts.Schedule, err)
	}
	w.cron.Start()
	w.logger.Info("automation scheduler started", zap.String("schedule", w.opts.Schedule))

	<-ctx.Done()
	<-w.cron.Stop().Done()
	w.logger.Info("automation scheduler stopped")
	return nil
}

// Tick runs one pass over all automated departments.
func (w *AutomationWorker) Tick(ctx context.Context) {
	depts, err := w.automation.AutomatedDepartments(ctx)
	if err != nil {
		w.logger.Error("list automated departments", zap.Error(err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, dept := range depts {
		id := dept.ID
		g.Go(func() error {
			w.runDepartment(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *AutomationWorker) runDepartment(ctx context.Context, departmentID int64) {
	if !w.claim(departmentID) {
		w.logger.Debug("department tick still running", zap.Int64("department_id", departmentID))
		return
	}
	defer w.release(departmentID)

	if w.locker != nil {
		key := fmt.Sprintf("ticket:automation:%d", departmentID)
		token, err := w.locker.TryLock(ctx, key, w.opts.LockTTL)
		if err != nil {
			w.logger.Warn("automation lock unavailable", zap.Int64("department_id", departmentID), zap.Error(err))
			return
		}
		if token == "" {
			return
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				w.logger.Warn("automation unlock failed", zap.Int64("department_id", departmentID), zap.Error(err))
			}
		}()
	}

	started := time.Now()
	result, err := w.automation.RunTick(ctx, departmentID)
	fields := []zap.Field{
		zap.Int64("department_id", departmentID),
		zap.Int("closed", result.Closed),
		zap.Int("deleted", result.Deleted),
		zap.Int("reminders", result.Reminders),
		zap.Duration("took", time.Since(started)),
	}
	if err != nil {
		w.logger.Error("department automation failed", append(fields, zap.Error(err))...)
		return
	}
	w.logger.Debug("department automation done", fields...)
}

func (w *AutomationWorker) claim(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running[id] {
		return false
	}
	w.running[id] = true
	return true
}

func (w *AutomationWorker) release(id int64) {
	w.mu.Lock()
	delete(w.running, id)
	w.mu.Unlock()
}
