package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTick is the engine cadence. Digest matching is minute-exact, so the
// tick must not be slower than a minute.
const DefaultTick = "@every 60s"

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// TickSpec is a parsed tick schedule.
type TickSpec struct {
	Raw      string
	Source   string // "cron" | "duration"
	Every    time.Duration
	schedule cron.Schedule
}

// Next returns the first activation after t.
func (s TickSpec) Next(t time.Time) time.Time { return s.schedule.Next(t) }

// ParseTick parses the scheduler cadence.
//
// Supported forms:
//   - Cron: "* * * * *", "*/30 * * * * *" (seconds optional), "@every 60s"
//   - Go duration: "60s", "1m"
//
// Optional prefixes "cron:" and "every:" force a form. Intervals must be
// between one second and one minute; other cron schedules must fire at least
// once in every wall-clock minute.
func ParseTick(raw string) (TickSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultTick
	}
	low := strings.ToLower(s)

	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(raw, strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseEvery(raw, strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return parseCron(raw, s)
	default:
		return parseEvery(raw, s)
	}
}

func parseCron(raw, expr string) (TickSpec, error) {
	if expr == "" {
		return TickSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return TickSpec{}, fmt.Errorf("invalid tick schedule %q: %w", raw, err)
	}
	spec := TickSpec{Raw: expr, Source: "cron", schedule: sched}
	if c, ok := sched.(cron.ConstantDelaySchedule); ok {
		spec.Every = c.Delay
		if err := checkEvery(raw, c.Delay); err != nil {
			return TickSpec{}, err
		}
		return spec, nil
	}
	if err := checkCoverage(raw, sched); err != nil {
		return TickSpec{}, err
	}
	return spec, nil
}

// coverageSpan is long enough to expose day-of-week and day-of-month gaps.
const coverageSpan = 32 * 24 * time.Hour

var coverageStart = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// checkCoverage rejects calendar schedules that leave a minute without an
// activation: digest times match a single minute. Month fields are probed
// at the first minute of each month.
func checkCoverage(raw string, sched cron.Schedule) error {
	missed := func(m time.Time) bool {
		next := sched.Next(m.Add(-time.Nanosecond))
		return next.IsZero() || !next.Before(m.Add(time.Minute))
	}
	for m := coverageStart; m.Before(coverageStart.Add(coverageSpan)); m = m.Add(time.Minute) {
		if missed(m) {
			return fmt.Errorf("tick %q: no activation in minute %s, must fire every minute", raw, m.Format("Mon 15:04"))
		}
	}
	for mon := time.January; mon <= time.December; mon++ {
		if m := time.Date(coverageStart.Year(), mon, 1, 0, 0, 0, 0, time.UTC); missed(m) {
			return fmt.Errorf("tick %q: no activation in %s, must fire every minute", raw, mon)
		}
	}
	return nil
}

func parseEvery(raw, v string) (TickSpec, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return TickSpec{}, fmt.Errorf("invalid tick schedule %q (use cron like '* * * * *' or a duration like '60s')", raw)
	}
	if err := checkEvery(raw, d); err != nil {
		return TickSpec{}, err
	}
	return TickSpec{Raw: v, Source: "duration", Every: d, schedule: cron.Every(d)}, nil
}

func checkEvery(raw string, d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("tick %q: interval must be at least 1s", raw)
	}
	if d > time.Minute {
		return fmt.Errorf("tick %q: interval must not exceed 1m", raw)
	}
	return nil
}

// parseHHMM parses a wall-clock "HH:MM".
func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
