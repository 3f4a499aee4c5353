// SPDX-License-Identifier: MIT

// Package quota enforces per-user resource limits. Limits are resolved as
// custom overrides over plan defaults over system defaults; any field left
// unset all the way down is unlimited.
package quota

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/fsutil"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
	"github.com/ManuGH/mediaflow/internal/store"
)

// Ledger answers admission questions against the store and the filesystem.
//
// Monthly recording counts are persisted counters; storage use is measured
// live from disk so external deletions are picked up without bookkeeping.
// The concurrent-task gauge lives in the store and is adjusted inside
// BeginStage/FinishStage transactions, not here.
type Ledger struct {
	store    *store.Store
	layout   *paths.Layout
	clk      clock.Clock
	defaults model.QuotaSet
	logger   zerolog.Logger
}

// New builds a Ledger. defaults is the system-wide bottom layer of quota
// resolution.
func New(st *store.Store, layout *paths.Layout, clk clock.Clock, defaults model.QuotaSet) *Ledger {
	return &Ledger{
		store:    st,
		layout:   layout,
		clk:      clk,
		defaults: defaults,
		logger:   log.WithComponent("quota"),
	}
}

// Effective resolves the quota set that applies to one user right now.
// A user without a subscription gets the system defaults.
func (l *Ledger) Effective(ctx context.Context, userID string) (model.EffectiveQuota, error) {
	sub, err := l.store.GetSubscription(ctx, userID)
	if model.IsKind(err, model.KindNotFound) {
		return model.ResolveQuota(model.QuotaSet{}, model.QuotaSet{}, l.defaults), nil
	}
	if err != nil {
		return model.EffectiveQuota{}, err
	}
	plan, err := l.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return model.EffectiveQuota{}, err
	}
	return model.ResolveQuota(sub.Custom, plan.Quotas, l.defaults), nil
}

// CheckRecordings admits one more recording in the current period, or returns
// a quota_denied error.
func (l *Ledger) CheckRecordings(ctx context.Context, userID string) error {
	eff, err := l.Effective(ctx, userID)
	if err != nil {
		return err
	}
	if eff.MaxRecordingsPerMonth.Unlimited {
		return nil
	}
	usage, err := l.store.GetUsage(ctx, userID, clock.Period(l.clk.Now()))
	if err != nil {
		return err
	}
	if !eff.MaxRecordingsPerMonth.Allows(usage.RecordingsCount) {
		l.logger.Warn().
			Str(log.FieldUserID, userID).
			Int("used", usage.RecordingsCount).
			Int("limit", eff.MaxRecordingsPerMonth.N).
			Msg("monthly recording quota reached")
		return model.QuotaDenied("monthly recording limit reached")
	}
	return nil
}

// CheckStorage admits additional bytes under the user's subtree. Usage is
// measured from disk at call time, never cached.
func (l *Ledger) CheckStorage(ctx context.Context, userID string, slug int64, addBytes int64) error {
	eff, err := l.Effective(ctx, userID)
	if err != nil {
		return err
	}
	if eff.MaxStorageGB.Unlimited {
		return nil
	}
	used, err := fsutil.DirSize(l.layout.UserRoot(slug))
	if err != nil {
		return model.RetryableIO("measuring storage use", err)
	}
	limit := int64(eff.MaxStorageGB.N) << 30
	if used+addBytes > limit {
		l.logger.Warn().
			Str(log.FieldUserID, userID).
			Int64("used_bytes", used).
			Int64("add_bytes", addBytes).
			Int64("limit_bytes", limit).
			Msg("storage quota reached")
		return model.QuotaDenied("storage limit reached")
	}
	return nil
}

// ConcurrentLimit returns the user's concurrent-task bound for stage
// admission. The actual gauge check happens inside store.BeginStage so
// admission and the increment commit atomically.
func (l *Ledger) ConcurrentLimit(ctx context.Context, userID string) (model.Limit, error) {
	eff, err := l.Effective(ctx, userID)
	if err != nil {
		return model.Limit{}, err
	}
	return eff.MaxConcurrentTasks, nil
}

// CheckAutomationJobs admits creation of one more automation job.
func (l *Ledger) CheckAutomationJobs(ctx context.Context, userID string) error {
	eff, err := l.Effective(ctx, userID)
	if err != nil {
		return err
	}
	if eff.MaxAutomationJobs.Unlimited {
		return nil
	}
	n, err := l.store.CountActiveJobs(ctx, userID)
	if err != nil {
		return err
	}
	if !eff.MaxAutomationJobs.Allows(n) {
		return model.QuotaDenied("automation job limit reached")
	}
	return nil
}

// MinInterval returns the minimum allowed automation interval for schedule
// validation.
func (l *Ledger) MinInterval(ctx context.Context, userID string) (model.Limit, error) {
	eff, err := l.Effective(ctx, userID)
	if err != nil {
		return model.Limit{}, err
	}
	return eff.MinAutomationIntervalHours, nil
}

// TrackRecordingCreated counts a successful recording creation in the current
// period. The counter is monotonic; deletions do not refund it.
func (l *Ledger) TrackRecordingCreated(ctx context.Context, userID string) error {
	return l.store.TrackRecordingCreated(ctx, userID, clock.Period(l.clk.Now()))
}

// Status reports a user's effective limits together with current usage,
// for the quota status endpoint.
type Status struct {
	Effective       model.EffectiveQuota
	RecordingsUsed  int
	StorageBytes    int64
	ConcurrentTasks int
	ActiveJobs      int
}

// Snapshot assembles the full quota status of a user.
func (l *Ledger) Snapshot(ctx context.Context, userID string, slug int64) (*Status, error) {
	eff, err := l.Effective(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := l.store.GetUsage(ctx, userID, clock.Period(l.clk.Now()))
	if err != nil {
		return nil, err
	}
	used, err := fsutil.DirSize(l.layout.UserRoot(slug))
	if err != nil {
		return nil, model.RetryableIO("measuring storage use", err)
	}
	tasks, err := l.store.ConcurrentTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	jobs, err := l.store.CountActiveJobs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Effective:       eff,
		RecordingsUsed:  usage.RecordingsCount,
		StorageBytes:    used,
		ConcurrentTasks: tasks,
		ActiveJobs:      jobs,
	}, nil
}
