package paperscraper

import (
	"fmt"
	"iter"
	"time"
)

// DateLayout is the calendar date format used by OAI-PMH and the config file.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From  time.Time
	Until time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(from, until string) (DateRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse from date: %w", err)
	}
	u, err := time.Parse(DateLayout, until)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse until date: %w", err)
	}
	r := DateRange{From: f, Until: u}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate reports whether From is on or before Until.
func (r DateRange) Validate() error {
	if truncateDay(r.From).After(truncateDay(r.Until)) {
		return fmt.Errorf("date range: from %s is after until %s",
			r.From.Format(DateLayout), r.Until.Format(DateLayout))
	}
	return nil
}

// Days returns the number of calendar days in the range.
func (r DateRange) Days() int {
	return int(truncateDay(r.Until).Sub(truncateDay(r.From))/day) + 1
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.Until.Format(DateLayout)
}

// DateChunks splits r into contiguous sub-ranges whose end is at most
// intervalDays after their start. Walking forward, the last chunk absorbs the
// remainder; with reverse the chunks are produced from Until backwards and the
// earliest chunk absorbs it. The returned sequence holds no state and can be
// ranged over any number of times.
func DateChunks(r DateRange, intervalDays int, reverse bool) (iter.Seq[DateRange], error) {
	if intervalDays < 1 {
		return nil, fmt.Errorf("date chunks: interval must be at least 1 day, got %d", intervalDays)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	from, until := truncateDay(r.From), truncateDay(r.Until)
	intv := time.Duration(intervalDays) * day

	if reverse {
		return func(yield func(DateRange) bool) {
			e := until
			for e.Add(-intv).After(from) {
				if !yield(DateRange{From: e.Add(-intv), Until: e}) {
					return
				}
				e = e.Add(-intv - day)
			}
			yield(DateRange{From: from, Until: e})
		}, nil
	}

	return func(yield func(DateRange) bool) {
		s := from
		for s.Add(intv).Before(until) {
			if !yield(DateRange{From: s, Until: s.Add(intv)}) {
				return
			}
			s = s.Add(intv + day)
		}
		yield(DateRange{From: s, Until: until})
	}, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
