package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"appraisal/internal/platform/config"
)

const JobAppraisalReminders = "appraisal_reminders"

// reminderBatch caps how many stale appraisals one reminder run handles.
const reminderBatch = 500

// Reminder sends reminders for appraisals stuck in one status.
// *appraisal.Service satisfies it.
type Reminder interface {
	RemindStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

// RunRecorder persists job run history. A nil recorder only logs.
type RunRecorder interface {
	StartRun(ctx context.Context, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
}

type Service struct {
	Runs       RunRecorder
	Reminders  Reminder
	Interval   time.Duration
	StaleAfter time.Duration
	queue      chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(runs RunRecorder, reminders Reminder, cfg config.Config) *Service {
	return &Service{
		Runs:       runs,
		Reminders:  reminders,
		Interval:   cfg.ReminderInterval,
		StaleAfter: cfg.ReminderStaleAfter,
		queue:      make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Reminders != nil && s.Interval > 0 {
		go s.scheduleReminders(ctx, s.Interval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// RunReminders performs one reminder sweep synchronously.
func (s *Service) RunReminders(ctx context.Context) (any, error) {
	return s.RunNow(ctx, JobAppraisalReminders, s.remind)
}

func (s *Service) remind(ctx context.Context) (any, error) {
	sent, err := s.Reminders.RemindStale(ctx, s.StaleAfter, reminderBatch)
	return map[string]any{
		"staleAfter": s.StaleAfter.String(),
		"sent":       sent,
	}, err
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.Runs != nil {
		id, err := s.Runs.StartRun(ctx, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
		runID = id
	}

	started := time.Now()
	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	slog.Info("job run finished", "jobType", j.Type, "status", status, "durationMs", time.Since(started).Milliseconds())

	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if updErr := s.Runs.FinishRun(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleReminders(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobAppraisalReminders, s.remind)
		}
	}
}
