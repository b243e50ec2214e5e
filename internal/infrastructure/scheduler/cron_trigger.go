package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobSubmitter queues jobs
type JobSubmitter interface {
	Submit(kind JobKind, recreate bool) (*Job, error)
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// DailyHour and DailyMinute set the off-peak run time (24h, local time)
	DailyHour   int
	DailyMinute int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		DailyHour:     3,
		DailyMinute:   0,
		CheckInterval: time.Minute,
	}
}

// CronTrigger submits the daily maintenance jobs: a full sort order
// recompute followed by a full reindex
type CronTrigger struct {
	config    CronTriggerConfig
	submitter JobSubmitter
	logger    *zap.Logger
	now       func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, submitter JobSubmitter, logger *zap.Logger) *CronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCronTriggerConfig().CheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:    config,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cron trigger started",
		zap.Int("daily_hour", c.config.DailyHour),
		zap.Int("daily_minute", c.config.DailyMinute),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger()
		}
	}
}

// checkAndTrigger submits the daily jobs once per day, on the first check
// at or after the configured time. A process started after that time
// waits for the next day.
func (c *CronTrigger) checkAndTrigger() bool {
	now := c.now()
	today := now.Format("2006-01-02")
	due := time.Date(now.Year(), now.Month(), now.Day(), c.config.DailyHour, c.config.DailyMinute, 0, 0, now.Location())

	c.mu.Lock()
	if c.lastRunDate == today || now.Before(due) || now.Sub(due) > c.config.CheckInterval*2 {
		c.mu.Unlock()
		return false
	}
	c.lastRunDate = today
	c.mu.Unlock()

	c.logger.Info("Triggering daily catalog maintenance")
	c.TriggerNow(false)
	return true
}

// TriggerNow submits the maintenance jobs immediately
func (c *CronTrigger) TriggerNow(recreate bool) {
	for _, kind := range []JobKind{JobKindRecomputeSortOrder, JobKindReindex} {
		if _, err := c.submitter.Submit(kind, recreate && kind == JobKindReindex); err != nil {
			c.logger.Error("Failed to submit maintenance job",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}
}
