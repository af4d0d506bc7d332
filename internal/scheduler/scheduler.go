package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rostersync/internal/model"
)

// Scheduler polls districts for requested actions and due daily runs, feeding
// the work queue. One scheduler instance runs per process.
type Scheduler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	db       *gorm.DB
	queue    *Queue
	logger   *logrus.Entry
	interval time.Duration
}

// Config holds the configuration for the scheduler.
type Config struct {
	DB          *gorm.DB
	Queue       *Queue
	Logger      *logrus.Entry
	IntervalSec int
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg *Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		db:       cfg.DB,
		queue:    cfg.Queue,
		logger:   cfg.Logger.WithField("component", "scheduler"),
		interval: time.Duration(cfg.IntervalSec) * time.Second,
	}
}

// Start begins the periodic district polling.
func (s *Scheduler) Start() {
	s.logger.Info("Starting roster scheduler...")
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(time.Now().UTC())
			case <-s.ctx.Done():
				s.logger.Info("Stopping roster scheduler...")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
}

// tick promotes due daily runs to a pending full process, then dispatches
// every pending action to the queue.
func (s *Scheduler) tick(now time.Time) {
	if err := s.promoteDue(now); err != nil {
		s.logger.Errorf("Failed to promote due districts: %v", err)
	}
	if err := s.dispatchPending(); err != nil {
		s.logger.Errorf("Failed to dispatch pending actions: %v", err)
	}
}

// promoteDue sets full_process on every idle district whose scheduled time
// has passed, and advances its next run in the same update so a crash between
// ticks cannot double-fire.
func (s *Scheduler) promoteDue(now time.Time) error {
	var due []model.District
	err := s.db.Where("next_processing_time IS NOT NULL AND next_processing_time <= ? AND processing_action = ?",
		now, model.ProcessingActionNone).Find(&due).Error
	if err != nil {
		return fmt.Errorf("failed to query due districts: %w", err)
	}

	for i := range due {
		district := &due[i]
		district.ProcessingAction = model.ProcessingActionFullProcess
		district.NextProcessingTime = nextRunFor(district, now)
		district.Touch()
		if err := s.db.Save(district).Error; err != nil {
			s.logger.Errorf("Failed to promote district %d: %v", district.ID, err)
			continue
		}
		s.logger.Infof("District %d (%s) due for daily processing", district.ID, district.Name)
	}
	return nil
}

// dispatchPending enqueues every district with a requested action. The action
// is reset before enqueueing; if the queue is full the district keeps its
// action and is retried next tick.
func (s *Scheduler) dispatchPending() error {
	var pending []model.District
	err := s.db.Where("processing_action <> ?", model.ProcessingActionNone).Find(&pending).Error
	if err != nil {
		return fmt.Errorf("failed to query pending districts: %w", err)
	}

	for i := range pending {
		district := &pending[i]
		action := district.ProcessingAction
		if s.queue.Len() == cap(s.queue.items) {
			s.logger.Warnf("Work queue full, district %d (%s) waits for next tick", district.ID, action)
			return nil
		}

		district.ProcessingAction = model.ProcessingActionNone
		district.Touch()
		if err := s.db.Save(district).Error; err != nil {
			s.logger.Errorf("Failed to claim district %d: %v", district.ID, err)
			continue
		}
		if !s.queue.Enqueue(WorkItem{DistrictID: district.ID, Action: action}) {
			// Lost the capacity race; restore the action for the next tick.
			district.ProcessingAction = action
			district.Touch()
			if err := s.db.Save(district).Error; err != nil {
				s.logger.Errorf("Failed to restore action for district %d: %v", district.ID, err)
			}
			return nil
		}
		s.logger.Infof("Enqueued district %d: %s", district.ID, action)
	}
	return nil
}

// nextRunFor computes a district's next scheduled run, nil when daily
// processing is not configured.
func nextRunFor(district *model.District, now time.Time) *time.Time {
	if district.DailyProcessingTime == nil {
		return nil
	}
	next, err := NextDailyRun(now, *district.DailyProcessingTime)
	if err != nil {
		return nil
	}
	return &next
}

// NextDailyRun returns the next occurrence of the daily HH:MM time, in UTC,
// strictly after now.
func NextDailyRun(now time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid daily processing time %q: %w", hhmm, err)
	}
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
