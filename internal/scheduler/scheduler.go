// Package scheduler runs the platform's periodic maintenance jobs.
package scheduler

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sharath018/school-management-backend/config"
)

// Job is one scheduled task. Run reports how many records it touched.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron *cron.Cron
	jobs []string
}

func New() *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
	}
}

// Add registers job. An empty schedule leaves the job disabled.
func (s *Scheduler) Add(job Job) error {
	if strings.TrimSpace(job.Schedule) == "" {
		log.Printf("[%s] disabled", tag(job.Name))
		return nil
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { runJob(job) }); err != nil {
		return errors.Wrapf(err, "schedule %s", job.Name)
	}
	s.jobs = append(s.jobs, job.Name)
	log.Printf("[%s] scheduled %q", tag(job.Name), job.Schedule)
	return nil
}

func (s *Scheduler) Jobs() []string { return s.jobs }

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("✅ Scheduler started with %d jobs", len(s.jobs))
}

// Stop stops new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
		log.Println("🛑 Scheduler stopped")
	case <-ctx.Done():
		log.Println("⚠️ Scheduler stop timed out with jobs still running")
	}
}

func tag(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "_", "-"))
}

func runJob(job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		log.Printf("[%s] ❌ failed after %s: %v", tag(job.Name), time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[%s] ✅ %d records in %s", tag(job.Name), n, time.Since(start).Round(time.Millisecond))
}

// ===========================
// 🧹 Maintenance jobs
// ===========================

type SubscriptionExpirer interface {
	ExpireSubscriptions(ctx context.Context) (int64, error)
}

type PhotoReaper interface {
	ReapPhotos(ctx context.Context) (int, error)
}

type EventTypePurger interface {
	PurgeDeleted(ctx context.Context, retention time.Duration) (int64, error)
}

type AuditPurger interface {
	Purge(ctx context.Context, retentionDays int) (int64, error)
}

// Deps are the services the maintenance jobs call. Nil members skip their job.
type Deps struct {
	Subscriptions SubscriptionExpirer
	Photos        PhotoReaper
	EventTypes    EventTypePurger
	Audit         AuditPurger
}

// MaintenanceJobs builds the standard job set from config.
func MaintenanceJobs(cfg *config.Config, d Deps) []Job {
	retentionDays := cfg.PurgeRetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	var jobs []Job
	if d.Subscriptions != nil {
		jobs = append(jobs, Job{
			Name:     "subscription_expiry",
			Schedule: cfg.SubscriptionExpirySchedule,
			Run:      d.Subscriptions.ExpireSubscriptions,
		})
	}
	if d.Photos != nil {
		jobs = append(jobs, Job{
			Name:     "photo_reaper",
			Schedule: cfg.PhotoReaperSchedule,
			Run: func(ctx context.Context) (int64, error) {
				n, err := d.Photos.ReapPhotos(ctx)
				return int64(n), err
			},
		})
	}
	if d.EventTypes != nil {
		jobs = append(jobs, Job{
			Name:     "event_type_purge",
			Schedule: cfg.PurgeSchedule,
			Run: func(ctx context.Context) (int64, error) {
				return d.EventTypes.PurgeDeleted(ctx, time.Duration(retentionDays)*24*time.Hour)
			},
		})
	}
	if d.Audit != nil {
		jobs = append(jobs, Job{
			Name:     "audit_purge",
			Schedule: cfg.PurgeSchedule,
			Run: func(ctx context.Context) (int64, error) {
				// audit history outlives the soft-delete window
				return d.Audit.Purge(ctx, retentionDays*12)
			},
		})
	}
	return jobs
}
