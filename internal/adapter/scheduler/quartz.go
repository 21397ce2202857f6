package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/port"

	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const jobKeyPrefix = "poll/"

var ErrNotStarted = errors.New("scheduler not started")

// QuartzPollScheduler is the host scheduler: one simple trigger per
// integration instance.
type QuartzPollScheduler struct {
	scheduler quartz.Scheduler
	logger    *zap.Logger

	mu   sync.Mutex
	jobs map[string]*quartz.JobKey
}

// ensure interface compliance
var _ port.PollScheduler = (*QuartzPollScheduler)(nil)

func NewQuartzPollScheduler(logger *zap.Logger) (*QuartzPollScheduler, error) {
	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return nil, err
	}
	return &QuartzPollScheduler{
		scheduler: sched,
		logger:    logger,
		jobs:      map[string]*quartz.JobKey{},
	}, nil
}

func (s *QuartzPollScheduler) Start(ctx context.Context) {
	s.scheduler.Start(ctx)
}

// Schedule replaces any job already scheduled for the instance.
func (s *QuartzPollScheduler) Schedule(instanceId string, interval time.Duration, tick func()) error {
	if !s.scheduler.IsStarted() {
		return ErrNotStarted
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.jobs[instanceId]; ok {
		if err := s.scheduler.DeleteJob(key); err != nil {
			s.logger.Debug("scheduler: delete previous job", zap.String("instance", instanceId), zap.Error(err))
		}
		delete(s.jobs, instanceId)
	}

	key := quartz.NewJobKey(jobKeyPrefix + instanceId)
	job := &pollJob{instanceId: instanceId, tick: tick}
	if err := s.scheduler.ScheduleJob(quartz.NewJobDetail(job, key), quartz.NewSimpleTrigger(interval)); err != nil {
		return fmt.Errorf("schedule poll of %s: %w", instanceId, err)
	}
	s.jobs[instanceId] = key
	s.logger.Debug("scheduler: poll scheduled", zap.String("instance", instanceId), zap.Duration("interval", interval))
	return nil
}

// Unschedule is a no-op for instances without a job.
func (s *QuartzPollScheduler) Unschedule(instanceId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.jobs[instanceId]
	if !ok {
		return nil
	}
	delete(s.jobs, instanceId)
	if err := s.scheduler.DeleteJob(key); err != nil {
		return fmt.Errorf("unschedule poll of %s: %w", instanceId, err)
	}
	s.logger.Debug("scheduler: poll unscheduled", zap.String("instance", instanceId))
	return nil
}

func (s *QuartzPollScheduler) Scheduled(instanceId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[instanceId]
	return ok
}

func (s *QuartzPollScheduler) Stop() {
	s.scheduler.Stop()
	s.scheduler.Wait(context.Background())
}

// pollJob only signals the owning actor; the poll itself runs there.
type pollJob struct {
	instanceId string
	tick       func()
}

func (j *pollJob) Execute(_ context.Context) error {
	j.tick()
	return nil
}

func (j *pollJob) Description() string {
	return jobKeyPrefix + j.instanceId
}
