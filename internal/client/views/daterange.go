package views

import (
	"errors"
	"fmt"
	"time"
)

// Range is a preset analytics window.
type Range string

const (
	Range24h    Range = "24h"
	Range7d     Range = "7d"
	Range30d    Range = "30d"
	RangeCustom Range = "custom"
)

const dateLayout = "2006-01-02"

// ErrRangeIncomplete is reported for a custom range missing a date.
var ErrRangeIncomplete = errors.New("custom range needs both start and end dates")

// DateRange is the date filter of the analytics view. Start and End are
// YYYY-MM-DD and only used for RangeCustom.
type DateRange struct {
	Range Range
	Start string
	End   string
}

// ParseDateRange accepts "24h", "7d", "30d" or "custom" with optional start
// and end dates.
func ParseDateRange(r string, dates ...string) (DateRange, error) {
	switch Range(r) {
	case Range24h, Range7d, Range30d:
		return DateRange{Range: Range(r)}, nil
	case RangeCustom:
		dr := DateRange{Range: RangeCustom}
		if len(dates) > 0 {
			dr.Start = dates[0]
		}
		if len(dates) > 1 {
			dr.End = dates[1]
		}
		for _, d := range []string{dr.Start, dr.End} {
			if d == "" {
				continue
			}
			if _, err := time.Parse(dateLayout, d); err != nil {
				return DateRange{}, fmt.Errorf("bad date %q, want YYYY-MM-DD", d)
			}
		}
		return dr, nil
	}
	return DateRange{}, fmt.Errorf("unknown range %q", r)
}

// Live reports whether the range follows the clock and is polled.
func (d DateRange) Live() bool {
	return d.Range == Range24h
}

// Complete reports whether Window can be computed.
func (d DateRange) Complete() bool {
	return d.Range != RangeCustom || (d.Start != "" && d.End != "")
}

// Window returns the start and end dates for now, in UTC.
func (d DateRange) Window(now time.Time) (start, end string, err error) {
	now = now.UTC()
	end = now.Format(dateLayout)

	switch d.Range {
	case Range24h:
		return now.AddDate(0, 0, -1).Format(dateLayout), end, nil
	case Range7d:
		return now.AddDate(0, 0, -7).Format(dateLayout), end, nil
	case Range30d:
		return now.AddDate(0, 0, -30).Format(dateLayout), end, nil
	case RangeCustom:
		if !d.Complete() {
			return "", "", ErrRangeIncomplete
		}
		return d.Start, d.End, nil
	}
	return "", "", fmt.Errorf("unknown range %q", d.Range)
}

func (d DateRange) String() string {
	if d.Range == RangeCustom {
		return fmt.Sprintf("custom %s..%s", d.Start, d.End)
	}
	return string(d.Range)
}
