// SPDX-License-Identifier: MIT

// Package templates matches discovered recordings against user templates and
// derives the processing configuration a match carries.
package templates

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/store"
)

// Matcher ranks a user's templates and picks the first whose rules match.
//
// Ranking is stable: drafts last, inactive templates after active ones, then
// most-used first, then oldest first. Drafts and inactive templates still
// participate so a dry run can report what they would have matched, but the
// caller decides whether such a match may be applied.
type Matcher struct {
	store  *store.Store
	logger zerolog.Logger
}

// New builds a Matcher over the given store.
func New(st *store.Store) *Matcher {
	return &Matcher{store: st, logger: log.WithComponent("templates")}
}

// Match finds the best template for a candidate. inputSourceID is the source
// the candidate was discovered through; templates restricted to other sources
// never match. Returns nil when nothing matches.
//
// Only active, non-draft templates win a live match.
func (m *Matcher) Match(ctx context.Context, userID, displayName string, inputSourceID *int64) (*model.RecordingTemplate, error) {
	ranked, err := m.store.ListTemplatesRanked(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, tpl := range ranked {
		if tpl.IsDraft || !tpl.IsActive {
			continue
		}
		if RulesMatch(tpl.Rules, displayName, inputSourceID) {
			return tpl, nil
		}
	}
	return nil, nil
}

// MatchReport is one dry-run matching result, including templates that would
// match but cannot win a live match.
type MatchReport struct {
	Template *model.RecordingTemplate
	Live     bool // false for draft or inactive templates
}

// MatchAll reports every template whose rules match, in rank order. Used by
// dry runs so users can see why a draft is shadowed by an active template.
func (m *Matcher) MatchAll(ctx context.Context, userID, displayName string, inputSourceID *int64) ([]MatchReport, error) {
	ranked, err := m.store.ListTemplatesRanked(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []MatchReport
	for _, tpl := range ranked {
		if RulesMatch(tpl.Rules, displayName, inputSourceID) {
			out = append(out, MatchReport{Template: tpl, Live: !tpl.IsDraft && tpl.IsActive})
		}
	}
	return out, nil
}

// RulesMatch evaluates one rule set against a candidate. Rule kinds are ORed:
// any exact match, keyword, pattern or source binding is enough. An empty
// rule set matches nothing.
func RulesMatch(rules model.MatchingRules, displayName string, inputSourceID *int64) bool {
	name := strings.ToLower(strings.TrimSpace(displayName))

	for _, exact := range rules.ExactMatches {
		if name == strings.ToLower(strings.TrimSpace(exact)) {
			return true
		}
	}
	for _, kw := range rules.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(name, kw) {
			return true
		}
	}
	for _, pat := range rules.Patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			// Invalid patterns are rejected at write time; a stray one
			// must not veto the remaining rules.
			continue
		}
		if re.MatchString(displayName) {
			return true
		}
	}
	if inputSourceID != nil {
		for _, id := range rules.SourceIDs {
			if id == *inputSourceID {
				return true
			}
		}
	}
	return false
}

// Apply derives the recording configuration a matched template contributes:
// the processing preferences (template config merged under the job override)
// and the frozen output config. The template's usage counters are bumped.
func (m *Matcher) Apply(ctx context.Context, tpl *model.RecordingTemplate, jobOverride model.JSON) (prefs, output model.JSON, err error) {
	prefs = model.DeepMerge(tpl.ProcessingConfig, jobOverride)
	output = model.CloneJSON(tpl.OutputConfig)
	if err := m.store.TouchTemplateUsage(ctx, tpl.ID, m.store.Now()); err != nil {
		return nil, nil, err
	}
	m.logger.Debug().
		Int64(log.FieldTemplateID, tpl.ID).
		Str("template_name", tpl.Name).
		Msg("template applied")
	return prefs, output, nil
}
