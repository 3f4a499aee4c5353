// SPDX-License-Identifier: MIT

package model

// Limit is an int quota bound where absence means unlimited.
type Limit struct {
	N         int
	Unlimited bool
}

// LimitOf converts an optional int into a Limit.
func LimitOf(n *int) Limit {
	if n == nil {
		return Limit{Unlimited: true}
	}
	return Limit{N: *n}
}

// Allows reports whether adding one more to current stays within the limit.
func (l Limit) Allows(current int) bool {
	return l.Unlimited || current < l.N
}

// Value returns the bound and whether it is finite.
func (l Limit) Value() (int, bool) {
	return l.N, !l.Unlimited
}

// EffectiveQuota is the per-user limit set after applying custom overrides
// over plan defaults: custom_* ?? plan.* ?? system default.
type EffectiveQuota struct {
	MaxRecordingsPerMonth      Limit
	MaxStorageGB               Limit
	MaxConcurrentTasks         Limit
	MaxAutomationJobs          Limit
	MinAutomationIntervalHours Limit
}

// ResolveQuota layers custom overrides over plan defaults over system defaults.
func ResolveQuota(custom, plan, system QuotaSet) EffectiveQuota {
	pick := func(c, p, s *int) Limit {
		switch {
		case c != nil:
			return LimitOf(c)
		case p != nil:
			return LimitOf(p)
		default:
			return LimitOf(s)
		}
	}
	return EffectiveQuota{
		MaxRecordingsPerMonth:      pick(custom.MaxRecordingsPerMonth, plan.MaxRecordingsPerMonth, system.MaxRecordingsPerMonth),
		MaxStorageGB:               pick(custom.MaxStorageGB, plan.MaxStorageGB, system.MaxStorageGB),
		MaxConcurrentTasks:         pick(custom.MaxConcurrentTasks, plan.MaxConcurrentTasks, system.MaxConcurrentTasks),
		MaxAutomationJobs:          pick(custom.MaxAutomationJobs, plan.MaxAutomationJobs, system.MaxAutomationJobs),
		MinAutomationIntervalHours: pick(custom.MinAutomationIntervalHours, plan.MinAutomationIntervalHours, system.MinAutomationIntervalHours),
	}
}
