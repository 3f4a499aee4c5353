// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind tags the schedule variant.
type ScheduleKind string

const (
	ScheduleTimeOfDay ScheduleKind = "time_of_day"
	ScheduleHours     ScheduleKind = "hours"
	ScheduleWeekdays  ScheduleKind = "weekdays"
	ScheduleCron      ScheduleKind = "cron"
)

// Schedule is the tagged schedule variant of an automation job. Every variant
// projects to a canonical 5-field cron expression plus an IANA timezone.
type Schedule struct {
	Kind      ScheduleKind   `json:"kind"`
	TimeOfDay *TimeOfDaySpec `json:"time_of_day,omitempty"`
	Hours     *HoursSpec     `json:"hours,omitempty"`
	Weekdays  *WeekdaysSpec  `json:"weekdays,omitempty"`
	Cron      *CronSpec      `json:"cron,omitempty"`
}

type TimeOfDaySpec struct {
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Timezone string `json:"timezone"`
}

type HoursSpec struct {
	EveryNHours int    `json:"every_n_hours"`
	StartHour   int    `json:"start_hour"`
	StartMinute int    `json:"start_minute"`
	Timezone    string `json:"timezone"`
}

type WeekdaysSpec struct {
	Weekdays []int  `json:"weekdays"` // 0=Sunday .. 6=Saturday
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Timezone string `json:"timezone"`
}

type CronSpec struct {
	Expression string `json:"expression"`
	Timezone   string `json:"timezone"`
}

// Canonical projects the schedule to its (cron expression, timezone) pair.
func (s Schedule) Canonical() (expr string, tz string, err error) {
	switch s.Kind {
	case ScheduleTimeOfDay:
		if s.TimeOfDay == nil {
			return "", "", Validation("time_of_day schedule missing spec")
		}
		if err := checkHourMinute(s.TimeOfDay.Hour, s.TimeOfDay.Minute); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("%d %d * * *", s.TimeOfDay.Minute, s.TimeOfDay.Hour),
			orUTC(s.TimeOfDay.Timezone), nil

	case ScheduleHours:
		if s.Hours == nil {
			return "", "", Validation("hours schedule missing spec")
		}
		h := s.Hours
		if h.EveryNHours < 1 || h.EveryNHours > 24 {
			return "", "", Validation("every_n_hours must be within 1..24")
		}
		if err := checkHourMinute(h.StartHour, h.StartMinute); err != nil {
			return "", "", err
		}
		if h.EveryNHours == 24 {
			return fmt.Sprintf("%d %d * * *", h.StartMinute, h.StartHour), orUTC(h.Timezone), nil
		}
		return fmt.Sprintf("%d %d-23/%d * * *", h.StartMinute, h.StartHour, h.EveryNHours),
			orUTC(h.Timezone), nil

	case ScheduleWeekdays:
		if s.Weekdays == nil {
			return "", "", Validation("weekdays schedule missing spec")
		}
		w := s.Weekdays
		if len(w.Weekdays) == 0 {
			return "", "", Validation("weekdays schedule needs at least one weekday")
		}
		if err := checkHourMinute(w.Hour, w.Minute); err != nil {
			return "", "", err
		}
		days := append([]int(nil), w.Weekdays...)
		sort.Ints(days)
		parts := make([]string, 0, len(days))
		prev := -1
		for _, d := range days {
			if d < 0 || d > 6 {
				return "", "", Validation("weekday out of range 0..6")
			}
			if d == prev {
				continue
			}
			prev = d
			parts = append(parts, strconv.Itoa(d))
		}
		return fmt.Sprintf("%d %d * * %s", w.Minute, w.Hour, strings.Join(parts, ",")),
			orUTC(w.Timezone), nil

	case ScheduleCron:
		if s.Cron == nil {
			return "", "", Validation("cron schedule missing spec")
		}
		tz := orUTC(s.Cron.Timezone)
		if _, err := parseCron(s.Cron.Expression, tz); err != nil {
			return "", "", Validation(fmt.Sprintf("invalid cron expression %q", s.Cron.Expression))
		}
		return s.Cron.Expression, tz, nil
	}
	return "", "", Validation(fmt.Sprintf("unknown schedule kind %q", s.Kind))
}

// Validate checks the schedule and enforces the minimum interval between
// consecutive fire times, in hours. Unlimited intervals always pass.
func (s Schedule) Validate(minInterval Limit) error {
	expr, tz, err := s.Canonical()
	if err != nil {
		return err
	}
	minHours, finite := minInterval.Value()
	if !finite || minHours <= 0 {
		return nil
	}
	gap, err := MinFireGap(expr, tz, time.Now().UTC())
	if err != nil {
		return err
	}
	if gap < time.Duration(minHours)*time.Hour {
		return Validation(fmt.Sprintf(
			"schedule fires every %s, below the minimum automation interval of %dh", gap, minHours))
	}
	return nil
}

// NextFireTimes computes the next n fire times strictly after the given
// instant, evaluated in the schedule's timezone and returned in UTC.
func NextFireTimes(expr, tz string, after time.Time, n int) ([]time.Time, error) {
	sched, err := parseCron(expr, tz)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := after
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t.UTC())
	}
	return out, nil
}

// MinFireGap returns the smallest gap between consecutive fire times over the
// next several fires. Used to enforce min_automation_interval_hours on
// arbitrary cron expressions.
func MinFireGap(expr, tz string, after time.Time) (time.Duration, error) {
	times, err := NextFireTimes(expr, tz, after, 8)
	if err != nil {
		return 0, err
	}
	if len(times) < 2 {
		return 0, Validation("schedule does not fire repeatedly")
	}
	min := times[1].Sub(times[0])
	for i := 2; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < min {
			min = gap
		}
	}
	return min, nil
}

func parseCron(expr, tz string) (cron.Schedule, error) {
	// CRON_TZ makes robfig/cron evaluate the expression in the job timezone;
	// gardener-style NewWithLocation is per-runner, this is per-spec.
	return cron.ParseStandard("CRON_TZ=" + tz + " " + expr)
}

func orUTC(tz string) string {
	if strings.TrimSpace(tz) == "" {
		return "UTC"
	}
	return tz
}

func checkHourMinute(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return Validation("hour must be within 0..23")
	}
	if minute < 0 || minute > 59 {
		return Validation("minute must be within 0..59")
	}
	return nil
}
