package models

import "time"

// CalendarDay truncates t to midnight UTC of its own calendar date. All
// schedule arithmetic works on values returned by this function.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves a calendar day by n days.
func AddDays(t time.Time, n int) time.Time {
	return CalendarDay(t).AddDate(0, 0, n)
}

func SameDay(a, b time.Time) bool {
	return CalendarDay(a).Equal(CalendarDay(b))
}
