package booking

import (
	"fmt"
	"strings"
	"time"
)

// Rollover decides what happens to the event date when the end clock wraps
// past midnight.
type Rollover int

const (
	// RolloverSameDate keeps the start date for the end timestamp. A 23:50
	// start with 30 minutes ends at 00:20 on the same calendar date.
	RolloverSameDate Rollover = iota

	// RolloverNextDate moves the end timestamp to the following day when the
	// clock wraps.
	RolloverNextDate
)

// String returns the configuration spelling of r.
func (r Rollover) String() string {
	switch r {
	case RolloverSameDate:
		return "same_date"
	case RolloverNextDate:
		return "next_date"
	default:
		return fmt.Sprintf("Rollover(%d)", int(r))
	}
}

// ParseRollover converts a configuration value. Empty means [RolloverSameDate].
func ParseRollover(s string) (Rollover, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "same_date":
		return RolloverSameDate, nil
	case "next_date":
		return RolloverNextDate, nil
	default:
		return 0, fmt.Errorf("booking: unknown rollover policy %q (want same_date or next_date)", s)
	}
}

// EndTime adds duration minutes to hour:minute on a 24-hour clock. The hour
// wraps modulo 24; the number of whole days crossed is returned as days.
func EndTime(hour, minute, duration int) (endHour, endMinute, days int) {
	total := hour*60 + minute + duration
	return (total / 60) % 24, total % 60, total / (24 * 60)
}

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// EventWindow renders the start and end timestamps of a meeting that begins
// on date (YYYY-MM-DD) at start (HH:MM) and lasts duration minutes. Both
// are local wall-clock times without a zone offset, e.g.
// "2024-06-01T10:00:00".
func EventWindow(date, start string, duration int, policy Rollover) (startAt, endAt string, err error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", "", fmt.Errorf("booking: invalid date %q: %w", date, err)
	}
	clock, err := time.Parse(clockLayout, start)
	if err != nil {
		return "", "", fmt.Errorf("booking: invalid start time %q: %w", start, err)
	}
	if duration <= 0 {
		return "", "", fmt.Errorf("booking: duration must be positive, got %d", duration)
	}

	endHour, endMinute, days := EndTime(clock.Hour(), clock.Minute(), duration)
	endDay := day
	if policy == RolloverNextDate {
		endDay = day.AddDate(0, 0, days)
	}

	startAt = fmt.Sprintf("%sT%02d:%02d:00", day.Format(dateLayout), clock.Hour(), clock.Minute())
	endAt = fmt.Sprintf("%sT%02d:%02d:00", endDay.Format(dateLayout), endHour, endMinute)
	return startAt, endAt, nil
}
