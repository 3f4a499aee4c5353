// SPDX-License-Identifier: MIT

package discovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/quota"
	"github.com/ManuGH/mediaflow/internal/store"
	"github.com/ManuGH/mediaflow/internal/templates"
)

// Syncer runs the discovery pass of an automation job: list candidates from
// each source, deduplicate against existing recordings, match templates and
// create new recording rows.
type Syncer struct {
	store    *store.Store
	ledger   *quota.Ledger
	matcher  *templates.Matcher
	registry *Registry
	clk      clock.Clock
	logger   zerolog.Logger
}

// NewSyncer wires a Syncer.
func NewSyncer(st *store.Store, ledger *quota.Ledger, matcher *templates.Matcher, reg *Registry, clk clock.Clock) *Syncer {
	return &Syncer{
		store:    st,
		ledger:   ledger,
		matcher:  matcher,
		registry: reg,
		clk:      clk,
		logger:   log.WithComponent("discovery"),
	}
}

// Report summarises one sync pass.
type Report struct {
	SourcesSynced  int
	Candidates     int
	Created        []string // recording IDs (empty on dry run)
	WouldCreate    []CandidatePlan
	AlreadyKnown   int
	Finalized      int // PENDING_SOURCE recordings promoted to INITIALIZED
	SkippedDeleted int // candidates whose recording was hard-deleted
	QuotaDenied    int
	SourceErrors   map[int64]string // source ID -> listing error
}

// CandidatePlan describes what a sync would do with one new candidate.
type CandidatePlan struct {
	SourceID     int64
	SourceKey    string
	DisplayName  string
	TemplateID   *int64
	TemplateName string
	Blank        bool
	Finalized    bool
}

// Run executes the discovery pass for one job. When dryRun is set, nothing is
// written; the report carries the plans instead.
//
// Every source gets its sync result recorded, success or failure, so the UI
// can show staleness per source.
func (s *Syncer) Run(ctx context.Context, job *model.AutomationJob, dryRun bool) (*Report, error) {
	now := s.clk.Now()
	since := now.AddDate(0, 0, -job.Sync.SyncDays)

	sources, err := s.store.ListInputSources(ctx, job.UserID)
	if err != nil {
		return nil, err
	}

	rep := &Report{SourceErrors: make(map[int64]string)}
	logger := s.logger.With().
		Int64(log.FieldJobID, job.ID).
		Str(log.FieldUserID, job.UserID).
		Bool("dry_run", dryRun).
		Logger()

	for _, src := range sources {
		candidates, listErr := s.listSource(ctx, src, since, now, job.Filters)
		if listErr != nil {
			rep.SourceErrors[src.ID] = listErr.Error()
			logger.Warn().Err(listErr).Int64(log.FieldSourceID, src.ID).Msg("source listing failed")
		} else {
			rep.SourcesSynced++
			rep.Candidates += len(candidates)
			for _, cand := range candidates {
				if err := s.handleCandidate(ctx, &logger, job, src, cand, dryRun, rep); err != nil {
					return nil, err
				}
			}
		}
		if !dryRun {
			msg := ""
			if listErr != nil {
				msg = listErr.Error()
			}
			if err := s.store.RecordSyncResult(ctx, src.ID, now, msg); err != nil {
				return nil, err
			}
		}
	}

	logger.Info().
		Int("sources", rep.SourcesSynced).
		Int("candidates", rep.Candidates).
		Int("created", len(rep.Created)).
		Int("quota_denied", rep.QuotaDenied).
		Msg("discovery pass finished")
	return rep, nil
}

func (s *Syncer) listSource(ctx context.Context, src *model.InputSource, since, until time.Time, filters model.JSON) ([]model.CandidateRecording, error) {
	adapter, err := s.registry.Lookup(src.SourceType)
	if err != nil {
		return nil, err
	}
	return adapter.List(ctx, src, since, until, filters)
}

func (s *Syncer) handleCandidate(ctx context.Context, logger *zerolog.Logger, job *model.AutomationJob,
	src *model.InputSource, cand model.CandidateRecording, dryRun bool, rep *Report) error {

	existing, err := s.store.FindBySourceKey(ctx, job.UserID, src.SourceType, cand.SourceKey)
	switch {
	case err == nil && existing.DeleteState == model.DeleteHardDeleted:
		// A purged recording is gone for good; never resurrect it.
		rep.SkippedDeleted++
		return nil
	case err == nil:
		if existing.Status == model.StatusPendingSource && cand.Finalized {
			if !dryRun {
				if err := s.finalizePending(ctx, existing.ID, cand); err != nil {
					return err
				}
			}
			rep.Finalized++
			return nil
		}
		rep.AlreadyKnown++
		return nil
	case !model.IsKind(err, model.KindNotFound):
		return err
	}

	// New candidate. Pick the template before the quota gate so dry runs show
	// the full picture even for users at their limit.
	tpl, err := s.pickTemplate(ctx, job, src.ID, cand.DisplayName)
	if err != nil {
		return err
	}

	plan := CandidatePlan{
		SourceID:    src.ID,
		SourceKey:   cand.SourceKey,
		DisplayName: cand.DisplayName,
		Blank:       cand.Blank,
		Finalized:   cand.Finalized,
	}
	if tpl != nil {
		plan.TemplateID = &tpl.ID
		plan.TemplateName = tpl.Name
	}
	if dryRun {
		rep.WouldCreate = append(rep.WouldCreate, plan)
		return nil
	}

	if err := s.ledger.CheckRecordings(ctx, job.UserID); err != nil {
		if model.IsKind(err, model.KindQuotaDenied) {
			rep.QuotaDenied++
			return nil
		}
		return err
	}

	rec, err := s.createRecording(ctx, job, src, cand, tpl)
	if err != nil {
		if model.IsKind(err, model.KindConflict) {
			// Lost a race with a concurrent pass for the same key.
			rep.AlreadyKnown++
			return nil
		}
		return err
	}
	rep.Created = append(rep.Created, rec.ID)
	logger.Info().
		Str(log.FieldRecordingID, rec.ID).
		Int64(log.FieldSourceID, src.ID).
		Bool("mapped", rec.IsMapped).
		Msg("recording discovered")
	return nil
}

// pickTemplate finds the best live template, honoring the job's template
// restriction when it has one.
func (s *Syncer) pickTemplate(ctx context.Context, job *model.AutomationJob, sourceID int64, displayName string) (*model.RecordingTemplate, error) {
	if len(job.TemplateIDs) == 0 {
		return s.matcher.Match(ctx, job.UserID, displayName, &sourceID)
	}
	reports, err := s.matcher.MatchAll(ctx, job.UserID, displayName, &sourceID)
	if err != nil {
		return nil, err
	}
	allowed := make(map[int64]bool, len(job.TemplateIDs))
	for _, id := range job.TemplateIDs {
		allowed[id] = true
	}
	for _, r := range reports {
		if r.Live && allowed[r.Template.ID] {
			return r.Template, nil
		}
	}
	return nil, nil
}

func (s *Syncer) createRecording(ctx context.Context, job *model.AutomationJob, src *model.InputSource,
	cand model.CandidateRecording, tpl *model.RecordingTemplate) (*model.Recording, error) {

	rec := &model.Recording{
		UserID:        job.UserID,
		InputSourceID: &src.ID,
		DisplayName:   cand.DisplayName,
		StartTime:     cand.StartTime,
		DurationSecs:  cand.DurationSecs,
		BlankRecord:   cand.Blank,
	}
	switch {
	case cand.Blank:
		// Unprocessable at the source; kept only so dedup stops re-reporting it.
		rec.Status = model.StatusSkipped
	case !cand.Finalized:
		rec.Status = model.StatusPendingSource
	default:
		rec.Status = model.StatusInitialized
	}

	if tpl != nil && !cand.Blank {
		prefs, output, err := s.matcher.Apply(ctx, tpl, job.ProcessingOverride)
		if err != nil {
			return nil, err
		}
		rec.TemplateID = &tpl.ID
		rec.IsMapped = true
		rec.Preferences = prefs
		rec.Output = output
	}

	meta := &model.SourceMetadata{
		SourceType: src.SourceType,
		SourceKey:  cand.SourceKey,
		Raw:        cand.Raw,
	}
	if err := s.store.CreateRecording(ctx, rec, meta); err != nil {
		return nil, err
	}
	if err := s.ledger.TrackRecordingCreated(ctx, job.UserID); err != nil {
		return nil, err
	}
	return rec, nil
}

// finalizePending promotes a PENDING_SOURCE recording once its source file is
// finalized, refreshing duration and size-bearing metadata.
func (s *Syncer) finalizePending(ctx context.Context, id string, cand model.CandidateRecording) error {
	_, err := s.store.UpdateRecording(ctx, id, func(rec *model.Recording) error {
		rec.Status = model.StatusInitialized
		rec.DurationSecs = cand.DurationSecs
		if cand.DisplayName != "" {
			rec.DisplayName = cand.DisplayName
		}
		return nil
	})
	return err
}
