package ingestor

import "time"

// TimeParts is a timestamp broken into calendar parts, all computed in UTC.
// Weekday counts from Monday = 0 and Week is the ISO week.
type TimeParts struct {
	Start   time.Time
	Hour    int
	Day     int
	Week    int
	Month   int
	Year    int
	Weekday int
}

// ExpandMillis expands epoch milliseconds.
func ExpandMillis(ms int64) TimeParts {
	return Expand(time.UnixMilli(ms))
}

// ExpandSeconds expands epoch seconds.
func ExpandSeconds(s int64) TimeParts {
	return Expand(time.Unix(s, 0))
}

// Expand expands t after converting it to UTC.
func Expand(t time.Time) TimeParts {
	t = t.UTC()
	_, week := t.ISOWeek()

	return TimeParts{
		Start:   t,
		Hour:    t.Hour(),
		Day:     t.Day(),
		Week:    week,
		Month:   int(t.Month()),
		Year:    t.Year(),
		Weekday: (int(t.Weekday()) + 6) % 7,
	}
}
