package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionPurger removes sessions that finished before a cutoff.
type SessionPurger interface {
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob periodically purges completed sessions past their retention window.
type CleanupJob struct {
	sessions  SessionPurger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
}

func NewCleanupJob(sessions SessionPurger, retention, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessions:  sessions,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	count, err := j.sessions.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge completed sessions")
		return
	}
	if count > 0 {
		log.Info().Int64("count", count).Time("cutoff", cutoff).Msg("purged completed sessions")
	}
}
