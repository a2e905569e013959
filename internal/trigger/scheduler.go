package trigger

import (
	"fmt"
	"log"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

type Scheduler struct {
	scheduler gocron.Scheduler
}

func NewScheduler() *Scheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal(err)
	}
	return &Scheduler{scheduler: scheduler}
}

// Schedule registers a cron job and returns its job ID.
func (s *Scheduler) Schedule(cron string, task func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(cron, false),
		gocron.NewTask(task),
	)
	if err != nil {
		return "", fmt.Errorf("error scheduling job: %w", err)
	}
	return job.ID().String(), nil
}

func (s *Scheduler) Remove(jobID string) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return err
	}
	return s.scheduler.RemoveJob(id)
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}
