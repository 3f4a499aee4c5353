// SPDX-License-Identifier: MIT

package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfClassifiesWrappedErrors(t *testing.T) {
	base := RetryableIO("fetch chunk", errors.New("connection reset"))
	wrapped := fmt.Errorf("download: %w", base)

	assert.Equal(t, KindRetryableIO, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindRetryableIO))
	assert.False(t, IsKind(wrapped, KindFatalExternal))
}

func TestKindOfUntagged(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestResolveQuotaPrecedence(t *testing.T) {
	ten, fifty, hundred := 10, 50, 100
	eff := ResolveQuota(
		QuotaSet{MaxRecordingsPerMonth: &ten},
		QuotaSet{MaxRecordingsPerMonth: &fifty, MaxStorageGB: &fifty},
		QuotaSet{MaxRecordingsPerMonth: &hundred, MaxStorageGB: &hundred, MaxConcurrentTasks: &hundred},
	)
	assert.Equal(t, Limit{N: 10}, eff.MaxRecordingsPerMonth)          // custom wins
	assert.Equal(t, Limit{N: 50}, eff.MaxStorageGB)                   // plan wins
	assert.Equal(t, Limit{N: 100}, eff.MaxConcurrentTasks)            // system default
	assert.Equal(t, Limit{Unlimited: true}, eff.MaxAutomationJobs)    // absent everywhere
}

func TestLimitAllows(t *testing.T) {
	three := 3
	l := LimitOf(&three)
	assert.True(t, l.Allows(2))
	assert.False(t, l.Allows(3))
	assert.True(t, Limit{Unlimited: true}.Allows(1<<30))
}
