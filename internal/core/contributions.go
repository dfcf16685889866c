package core

import (
	"time"
)

// MonthLabels are the short month names used for bucket labels, indexed 0-11.
var MonthLabels = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

type (
	// ContributionDay is one day of the upstream contribution calendar.
	ContributionDay struct {
		Date  string `json:"date"`
		Count int    `json:"contributionCount"`
	}

	ContributionWeek struct {
		Days []ContributionDay `json:"contributionDays"`
	}

	// ContributionCalendar is the day-by-day calendar as supplied by the fetcher.
	// TotalContributions is whatever upstream reported and is never used for summaries.
	ContributionCalendar struct {
		TotalContributions int                `json:"totalContributions"`
		Weeks              []ContributionWeek `json:"weeks"`
	}

	// MonthBucket holds the contributions of one calendar month (UTC).
	MonthBucket struct {
		MonthIndex int    `json:"month_index"` // 0-11
		Label      string `json:"label"`
		Count      int    `json:"count"`
	}

	Summary struct {
		Total int `json:"total"`
		Max   int `json:"max"`
	}
)

const (
	dayLayout = "2006-01-02"
)

// parseDayUTC parses a calendar day string as a UTC date. Date-only values are
// interpreted as UTC midnight; full timestamps are normalised to UTC first.
func parseDayUTC(s string) (time.Time, error) {
	if t, err := time.Parse(dayLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// AggregateMonthly buckets the calendar into one count per month from January
// through the UTC month of now, inclusive. Months without contributions are
// present with a zero count. Days later in the year than now's month are not
// counted. Any malformed day fails the whole aggregation.
func AggregateMonthly(cal ContributionCalendar, now time.Time) ([]MonthBucket, error) {
	now = now.UTC()
	year := now.Year()
	current := int(now.Month()) - 1

	var counts [12]int
	for wi, week := range cal.Weeks {
		for di, day := range week.Days {
			if day.Count < 0 {
				return nil, &DataFormatError{Week: wi, Day: di, Date: day.Date, Reason: "negative contribution count"}
			}
			t, err := parseDayUTC(day.Date)
			if err != nil {
				return nil, &DataFormatError{Week: wi, Day: di, Date: day.Date, Reason: "unparseable date"}
			}
			if t.Year() != year {
				return nil, &DataFormatError{Week: wi, Day: di, Date: day.Date, Reason: "date outside current year"}
			}
			idx := int(t.Month()) - 1
			if idx > current {
				continue
			}
			counts[idx] += day.Count
		}
	}

	buckets := make([]MonthBucket, current+1)
	for i := range buckets {
		buckets[i] = MonthBucket{MonthIndex: i, Label: MonthLabels[i], Count: counts[i]}
	}
	return buckets, nil
}

// Summarize returns the total and the largest single bucket. Both are zero for
// an empty sequence.
func Summarize(buckets []MonthBucket) Summary {
	var s Summary
	for _, b := range buckets {
		s.Total += b.Count
		if b.Count > s.Max {
			s.Max = b.Count
		}
	}
	return s
}

// Level is a display intensity step for a bucket relative to the maximum.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelPeak
)

// Intensity maps a count onto the five-step colour ramp using 25/50/75%
// thresholds of peak.
func Intensity(count, peak int) Level {
	if count <= 0 || peak <= 0 {
		return LevelNone
	}
	// Integer comparison of count/peak against quarter thresholds.
	switch {
	case 4*count < peak:
		return LevelLow
	case 2*count < peak:
		return LevelMedium
	case 4*count < 3*peak:
		return LevelHigh
	default:
		return LevelPeak
	}
}

// String returns the CSS modifier used by the contribution partial.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelPeak:
		return "peak"
	default:
		return "none"
	}
}

// BarHeight returns count as a rounded percentage of peak, clamped to 0-100.
func BarHeight(count, peak int) int {
	if peak <= 0 || count <= 0 {
		return 0
	}
	h := (count*100 + peak/2) / peak
	if h > 100 {
		h = 100
	}
	return h
}
