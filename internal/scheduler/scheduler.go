// SPDX-License-Identifier: MIT

// Package scheduler fires automation jobs at their scheduled times and runs
// their discovery passes.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/discovery"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/quota"
	"github.com/ManuGH/mediaflow/internal/store"
)

// Follower is poked after a job run enqueued new recordings so the pipeline
// picks them up without waiting for its own tick.
type Follower interface {
	Pass(ctx context.Context) error
}

// Scheduler wakes for due jobs, runs their discovery pass and computes the
// next fire time from the schedule.
type Scheduler struct {
	store    *store.Store
	syncer   *discovery.Syncer
	ledger   *quota.Ledger
	follower Follower
	clk      clock.Clock
	maxSleep time.Duration
	logger   zerolog.Logger
}

// New wires a Scheduler. maxSleep bounds how long it sleeps without checking
// the DB, so jobs created by other processes are noticed. follower may be nil.
func New(st *store.Store, syncer *discovery.Syncer, ledger *quota.Ledger, follower Follower,
	clk clock.Clock, maxSleep time.Duration) *Scheduler {

	return &Scheduler{
		store:    st,
		syncer:   syncer,
		ledger:   ledger,
		follower: follower,
		clk:      clk,
		maxSleep: maxSleep,
		logger:   log.WithComponent("scheduler"),
	}
}

// Run loops until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("max_sleep", s.maxSleep).Msg("scheduler started")
	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("scheduler tick failed")
		}
		d, err := s.sleepFor(ctx)
		if err != nil {
			return err
		}
		timer := s.clk.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
}

// Tick runs every due job once.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clk.Now()
	due, err := s.store.ListDueJobs(ctx, now)
	if err != nil {
		return err
	}
	ran := false
	for _, job := range due {
		err := s.RunJob(ctx, job, false)
		switch {
		case model.IsKind(err, model.KindQuotaDenied):
			// Skipped before discovery ran; nothing to poke.
		case err != nil:
			s.logger.Error().Err(err).Int64(log.FieldJobID, job.ID).Msg("job run failed")
			ran = true
		default:
			ran = true
		}
	}
	if ran && s.follower != nil {
		if err := s.follower.Pass(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("post-run pipeline pass failed")
		}
	}
	return nil
}

// RunJob executes one job's discovery pass. Scheduled and manually triggered
// runs share this path; dry runs report without writing and without touching
// the run bookkeeping.
func (s *Scheduler) RunJob(ctx context.Context, job *model.AutomationJob, dryRun bool) error {
	logger := s.logger.With().
		Int64(log.FieldJobID, job.ID).
		Str(log.FieldUserID, job.UserID).
		Logger()

	if !dryRun {
		if err := s.admitInterval(ctx, job, &logger); err != nil {
			return err
		}
	}

	rep, err := s.syncer.Run(ctx, job, dryRun)
	if dryRun {
		return err
	}

	// The run is stamped even when discovery failed, so a broken source
	// cannot pin a job at the front of the due queue forever.
	now := s.clk.Now()
	next, nextErr := s.NextRun(job, now)
	if nextErr != nil {
		logger.Error().Err(nextErr).Msg("schedule no longer computes; job needs attention")
	}
	if markErr := s.store.MarkJobRun(ctx, job.ID, now, next); markErr != nil {
		return markErr
	}
	if err != nil {
		jobRuns.WithLabelValues("error").Inc()
		return err
	}
	jobRuns.WithLabelValues("ok").Inc()
	logger.Info().
		Int("created", len(rep.Created)).
		Int("candidates", rep.Candidates).
		Time("next_run", deref(next)).
		Msg("job run finished")
	return nil
}

// admitInterval re-checks the user's minimum automation interval at fire
// time: a plan change after the job was created must stop the job without an
// explicit update. A violating job is pushed to its next fire time so it
// cannot pin the due queue.
func (s *Scheduler) admitInterval(ctx context.Context, job *model.AutomationJob, logger *zerolog.Logger) error {
	minInterval, err := s.ledger.MinInterval(ctx, job.UserID)
	if err != nil {
		return err
	}
	if err := job.Schedule.Validate(minInterval); err == nil {
		return nil
	}
	logger.Warn().Msg("job skipped: schedule fires below the minimum automation interval")
	next, err := s.NextRun(job, s.clk.Now())
	if err != nil {
		return err
	}
	if err := s.store.SetJobNextRun(ctx, job.ID, next); err != nil {
		return err
	}
	jobRuns.WithLabelValues("skipped").Inc()
	return model.QuotaDenied("schedule fires below the minimum automation interval")
}

// NextRun computes the next fire time after the given instant.
func (s *Scheduler) NextRun(job *model.AutomationJob, after time.Time) (*time.Time, error) {
	expr, tz, err := job.Schedule.Canonical()
	if err != nil {
		return nil, err
	}
	times, err := model.NextFireTimes(expr, tz, after, 1)
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, nil
	}
	return &times[0], nil
}

// sleepFor picks the time until the next due job, capped at maxSleep, with a
// little jitter so replicas sharing a DB do not stampede.
func (s *Scheduler) sleepFor(ctx context.Context) (time.Duration, error) {
	d := s.maxSleep
	next, err := s.store.NextWakeTime(ctx)
	if err != nil {
		return 0, err
	}
	if next != nil {
		if until := next.Sub(s.clk.Now()); until < d {
			d = until
		}
	}
	if d < time.Second {
		d = time.Second
	}
	return d + time.Duration(rand.Int63n(int64(time.Second))), nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
