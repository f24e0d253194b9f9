package authz

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Aeonia-ai/gaia-sub005/pkg/observability"
)

// Janitor periodically deletes expired role assignments. Expired rows
// are already invisible to the resolver, so the janitor only reclaims
// storage; its schedule has no correctness impact.
type Janitor struct {
	store   *Store
	cron    *cron.Cron
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewJanitor creates a janitor over the store.
func NewJanitor(store *Store, logger *observability.Logger, metrics *observability.Metrics) *Janitor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Janitor{
		store:   store,
		cron:    cron.New(),
		logger:  logger,
		metrics: metrics,
	}
}

// Start schedules purge runs. The schedule uses standard cron syntax,
// plus descriptors like @hourly.
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.runOnce); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.WithField("schedule", schedule).Info("assignment janitor started")
	return nil
}

// Stop halts scheduling and waits for a running purge to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunNow purges immediately, outside the schedule.
func (j *Janitor) RunNow(ctx context.Context) (int64, error) {
	return j.store.PurgeExpiredAssignments(ctx)
}

func (j *Janitor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged, err := j.store.PurgeExpiredAssignments(ctx)
	if err != nil {
		if j.metrics != nil {
			j.metrics.JanitorRunsTotal.WithLabelValues("error").Inc()
		}
		j.logger.WithError(err).Error("expired assignment purge failed")
		return
	}
	if j.metrics != nil {
		j.metrics.JanitorRunsTotal.WithLabelValues("ok").Inc()
		j.metrics.JanitorPurgedTotal.Add(float64(purged))
	}
	if purged > 0 {
		j.logger.WithField("purged", purged).Info("purged expired role assignments")
	}
}
