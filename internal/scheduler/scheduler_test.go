package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sharath018/school-management-backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expirer struct{ calls int32 }

func (e *expirer) ExpireSubscriptions(context.Context) (int64, error) {
	atomic.AddInt32(&e.calls, 1)
	return 2, nil
}

type reaper struct{}

func (reaper) ReapPhotos(context.Context) (int, error) { return 0, errors.New("disk gone") }

type purger struct{ retention time.Duration }

func (p *purger) PurgeDeleted(_ context.Context, retention time.Duration) (int64, error) {
	p.retention = retention
	return 1, nil
}

type auditPurger struct{ days int }

func (a *auditPurger) Purge(_ context.Context, days int) (int64, error) {
	a.days = days
	return 0, nil
}

func TestMaintenanceJobs(t *testing.T) {
	cfg := &config.Config{
		SubscriptionExpirySchedule: "0 * * * *",
		PhotoReaperSchedule:        "15 2 * * *",
		PurgeSchedule:              "45 2 * * *",
		PurgeRetentionDays:         10,
	}
	p, a := &purger{}, &auditPurger{}
	jobs := MaintenanceJobs(cfg, Deps{Subscriptions: &expirer{}, Photos: reaper{}, EventTypes: p, Audit: a})
	require.Len(t, jobs, 4)

	for _, j := range jobs {
		runJob(j)
	}
	assert.Equal(t, 10*24*time.Hour, p.retention)
	assert.Equal(t, 120, a.days)

	assert.Len(t, MaintenanceJobs(cfg, Deps{Photos: reaper{}}), 1, "missing services skip their job")
}

func TestAddRejectsBadSchedule(t *testing.T) {
	s := New()
	err := s.Add(Job{Name: "broken", Schedule: "every tuesday", Run: func(context.Context) (int64, error) { return 0, nil }})
	assert.Error(t, err)

	require.NoError(t, s.Add(Job{Name: "off", Schedule: "", Run: func(context.Context) (int64, error) { return 0, nil }}))
	assert.Empty(t, s.Jobs())
}

func TestStartRunsJobs(t *testing.T) {
	e := &expirer{}
	s := New()
	require.NoError(t, s.Add(Job{Name: "subscription_expiry", Schedule: "@every 1s", Run: e.ExpireSubscriptions}))
	s.Start()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&e.calls) > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Equal(t, []string{"subscription_expiry"}, s.Jobs())
}
