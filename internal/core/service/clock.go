// Package service implements the learning forecast core, the greedy
// battery optimizer, and the handful of pure helpers the pipeline
// orchestrator drives every tick.
package service

import (
	"fmt"
	"time"
)

// TSLayout is the local-zone "YYYY-MM-DDTHH:MM" string layout every
// key in the data model uses. Parsing is always string-based so that
// the host's time zone or DST transitions never perturb a key; the
// only places a universal instant is ever rendered through a zone
// database are Now() and NowTime().
const TSLayout = "2006-01-02T15:04"
const HourLayout = "2006-01-02T15"
const DateLayout = "2006-01-02"

// Clock renders the current instant into the operator's local zone
// and does all slot/hour rounding on the resulting string, never on a
// re-parsed time.Time in a different zone.
type Clock struct {
	loc *time.Location
}

func NewClock(loc *time.Location) *Clock {
	return &Clock{loc: loc}
}

// Now renders the current instant as a local "YYYY-MM-DDTHH:MM"
// string, truncated to the minute.
func (c *Clock) Now() string {
	return time.Now().In(c.loc).Format(TSLayout)
}

// NowTime returns the current instant in the configured zone, kept
// around only for the few call sites that need day/month/hour
// components rather than a formatted key.
func (c *Clock) NowTime() time.Time {
	return time.Now().In(c.loc)
}

// Today returns today's date key, "YYYY-MM-DD", in the local zone.
func (c *Clock) Today() string {
	return c.NowTime().Format(DateLayout)
}

// SlotStart rounds a "YYYY-MM-DDTHH:MM" timestamp down to the nearest
// 15-minute boundary, by string surgery only.
func SlotStart(ts string) (string, error) {
	t, err := parseTS(ts)
	if err != nil {
		return "", err
	}
	minute := (t.minute / 15) * 15
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d", t.year, t.month, t.day, t.hour, minute), nil
}

// HourStart rounds a "YYYY-MM-DDTHH:MM" timestamp down to :00.
func HourStart(ts string) (string, error) {
	t, err := parseTS(ts)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d-%02d-%02dT%02d:00", t.year, t.month, t.day, t.hour), nil
}

type parsedTS struct {
	year, month, day, hour, minute int
}

// parseTS extracts the year/month/day/hour/minute components directly
// from a "YYYY-MM-DDTHH:MM" string without constructing a time.Time,
// so no system time zone or UTC-offset conversion can perturb a key.
func parseTS(ts string) (parsedTS, error) {
	var p parsedTS
	if len(ts) < 16 {
		return p, fmt.Errorf("clock: malformed timestamp %q", ts)
	}
	_, err := fmt.Sscanf(ts, "%04d-%02d-%02dT%02d:%02d", &p.year, &p.month, &p.day, &p.hour, &p.minute)
	if err != nil {
		return p, fmt.Errorf("clock: malformed timestamp %q: %w", ts, err)
	}
	return p, nil
}

// DateOf returns the "YYYY-MM-DD" prefix of a timestamp key.
func DateOf(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}

// HourOfDay returns the hour component [0,23] of a timestamp key.
func HourOfDay(ts string) (int, error) {
	p, err := parseTS(ts)
	if err != nil {
		return 0, err
	}
	return p.hour, nil
}

// AddQuarter returns the timestamp key 15 minutes after ts.
func AddQuarter(ts string) (string, error) {
	t, err := time.ParseInLocation(TSLayout, ts, time.UTC)
	if err != nil {
		return "", fmt.Errorf("clock: malformed timestamp %q: %w", ts, err)
	}
	return t.Add(15 * time.Minute).Format(TSLayout), nil
}

// AddHours returns the timestamp key n hours after ts.
func AddHours(ts string, n int) (string, error) {
	t, err := time.ParseInLocation(TSLayout, ts, time.UTC)
	if err != nil {
		return "", fmt.Errorf("clock: malformed timestamp %q: %w", ts, err)
	}
	return t.Add(time.Duration(n) * time.Hour).Format(TSLayout), nil
}

// AddDays returns the "YYYY-MM-DD" date key n days after date.
func AddDays(date string, n int) (string, error) {
	t, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return "", fmt.Errorf("clock: malformed date %q: %w", date, err)
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}
