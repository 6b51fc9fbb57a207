package task

import "time"

// DueHour, DueMinute and DueSecond place a due date at the end of its day.
const (
	DueHour   = 23
	DueMinute = 59
	DueSecond = 59
)

// WeekStart returns midnight of the Monday of the ISO week containing t, in
// t's location.
func WeekStart(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -(ISOWeekday(t) - 1))
}

// WeekLastDay returns midnight of the Sunday of the week starting at weekStart.
func WeekLastDay(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 6)
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// DaysLeftInWeek counts the days remaining in t's week, including t's day.
func DaysLeftInWeek(t time.Time) int {
	return 7 - ISOWeekday(t) + 1
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the due-time instant on day's calendar day.
func EndOfDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, DueHour, DueMinute, DueSecond, 0, day.Location())
}

// InWeek reports whether t falls on a calendar day of the week starting at
// weekStart.
func InWeek(weekStart, t time.Time) bool {
	t = t.In(weekStart.Location())
	return !t.Before(weekStart) && t.Before(weekStart.AddDate(0, 0, 7))
}

// SameWeek reports whether the anchor identifies the week starting at weekStart.
func SameWeek(anchor *time.Time, weekStart time.Time) bool {
	return anchor != nil && anchor.Equal(weekStart)
}
