package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler ticks the registered jobs on their normalized intervals.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func New(log *zap.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), log: log}
}

// Add registers a job on the given interval.
func (s *Scheduler) Add(interval Interval, job func()) error {
	if interval.Daily {
		spec := fmt.Sprintf("%d %d * * *", interval.Minute, interval.Hour)
		_, err := s.cron.AddFunc(spec, job)
		return err
	}
	s.cron.Schedule(cron.Every(interval.Every), cron.FuncJob(job))
	return nil
}

// Start runs the schedule loop in its own goroutine.
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler")
	s.cron.Start()
}

// Stop stops scheduling new runs; jobs already running finish on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
