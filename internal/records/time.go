package records

import "time"

// TimeParts is the calendar breakdown of one event timestamp.
type TimeParts struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int // ISO 8601 week number
	Month     int
	Year      int
	Weekday   string // English weekday name, e.g. "Monday"
}

// FromMillis converts epoch milliseconds to a UTC instant.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// BreakDown derives the time-dimension columns from epoch milliseconds.
// All components are taken in UTC. Year is the calendar year, which can
// differ from the ISO week-numbering year around New Year.
func BreakDown(ms int64) TimeParts {
	t := FromMillis(ms)
	_, week := t.ISOWeek()
	return TimeParts{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   t.Weekday().String(),
	}
}
