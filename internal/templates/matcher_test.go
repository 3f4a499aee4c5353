// SPDX-License-Identifier: MIT

package templates

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/store"
)

func newTestMatcher(t *testing.T) (*Matcher, *store.Store, *clock.Fake, string) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	u := &model.User{Name: "matcher"}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return New(st), st, fake, u.ID
}

func TestRulesMatchKinds(t *testing.T) {
	srcA := int64(7)

	cases := []struct {
		name   string
		rules  model.MatchingRules
		title  string
		source *int64
		want   bool
	}{
		{"exact ci", model.MatchingRules{ExactMatches: []string{"Python Lecture"}}, "python lecture", nil, true},
		{"exact trims", model.MatchingRules{ExactMatches: []string{" Python Lecture "}}, "Python Lecture", nil, true},
		{"exact no substring", model.MatchingRules{ExactMatches: []string{"Python"}}, "Python Lecture", nil, false},
		{"keyword ci substring", model.MatchingRules{Keywords: []string{"LECTURE"}}, "python lecture 3", nil, true},
		{"keyword absent", model.MatchingRules{Keywords: []string{"seminar"}}, "python lecture", nil, false},
		{"pattern", model.MatchingRules{Patterns: []string{`^CS\d{3}`}}, "CS101 Intro", nil, true},
		{"pattern no match", model.MatchingRules{Patterns: []string{`^CS\d{3}`}}, "Intro CS101", nil, false},
		{"source bound", model.MatchingRules{SourceIDs: []int64{7}}, "anything", &srcA, true},
		{"source other", model.MatchingRules{SourceIDs: []int64{9}}, "anything", &srcA, false},
		{"source rule without source", model.MatchingRules{SourceIDs: []int64{7}}, "anything", nil, false},
		{"empty rules never match", model.MatchingRules{}, "anything", &srcA, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RulesMatch(tc.rules, tc.title, tc.source))
		})
	}
}

func TestMatchPrecedence(t *testing.T) {
	m, st, fake, userID := newTestMatcher(t)
	ctx := context.Background()

	mk := func(name string, used int, active, draft bool) *model.RecordingTemplate {
		tpl := &model.RecordingTemplate{
			UserID: userID, Name: name, IsActive: active, IsDraft: draft,
			Rules: model.MatchingRules{Keywords: []string{"lecture"}},
		}
		require.NoError(t, st.CreateTemplate(ctx, tpl))
		for i := 0; i < used; i++ {
			require.NoError(t, st.TouchTemplateUsage(ctx, tpl.ID, fake.Now()))
		}
		fake.Advance(time.Minute)
		return tpl
	}

	mk("draft-heavy", 50, true, true)
	mk("inactive-heavy", 50, false, false)
	low := mk("low", 1, true, false)
	high := mk("high", 10, true, false)

	got, err := m.Match(ctx, userID, "Algorithms Lecture 4", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, high.ID, got.ID, "most-used active template wins")

	// Dry-run view still surfaces the shadowed candidates.
	all, err := m.MatchAll(ctx, userID, "Algorithms Lecture 4", nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, high.ID, all[0].Template.ID)
	assert.True(t, all[0].Live)
	assert.Equal(t, low.ID, all[1].Template.ID)
	assert.False(t, all[2].Live, "inactive reported but not live")
	assert.False(t, all[3].Live, "draft reported but not live")
}

func TestMatchNoWinner(t *testing.T) {
	m, st, _, userID := newTestMatcher(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTemplate(ctx, &model.RecordingTemplate{
		UserID: userID, Name: "narrow", IsActive: true,
		Rules: model.MatchingRules{ExactMatches: []string{"Exact Title"}},
	}))

	got, err := m.Match(ctx, userID, "Something Else", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApplyMergesAndCountsUsage(t *testing.T) {
	m, st, _, userID := newTestMatcher(t)
	ctx := context.Background()

	tpl := &model.RecordingTemplate{
		UserID: userID, Name: "merge", IsActive: true,
		Rules: model.MatchingRules{Keywords: []string{"x"}},
		ProcessingConfig: model.JSON{
			"transcription": model.JSON{"enabled": true, "language": "en"},
			"trim":          model.JSON{"enabled": false},
		},
		OutputConfig: model.JSON{"targets": []any{"youtube"}},
	}
	require.NoError(t, st.CreateTemplate(ctx, tpl))

	override := model.JSON{"transcription": model.JSON{"language": "de"}}
	prefs, output, err := m.Apply(ctx, tpl, override)
	require.NoError(t, err)

	tr := prefs["transcription"].(model.JSON)
	assert.Equal(t, "de", tr["language"], "override wins")
	assert.Equal(t, true, tr["enabled"], "sibling keys survive")
	assert.Equal(t, model.JSON{"targets": []any{"youtube"}}, output)

	// Apply must not mutate the stored template config.
	assert.Equal(t, "en", tpl.ProcessingConfig["transcription"].(model.JSON)["language"])

	reloaded, err := st.GetTemplate(ctx, userID, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsedCount)
	assert.NotNil(t, reloaded.LastUsedAt)
}
