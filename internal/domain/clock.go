package domain

import (
	"fmt"
	"time"
)

// Layouts shared across the whole system. Dates are stored as locale text
// and ordered through DateKey, never parsed back by the database.
const (
	DateLayout  = "02/01/2006"
	ClockLayout = "15:04"
	LogTSLayout = "02/01 15:04" // audit log timestamps
)

// ValidClock reports whether s is a strict HH:mm clock value.
func ValidClock(s string) bool {
	_, err := time.Parse(ClockLayout, s)
	return err == nil && len(s) == 5
}

// ClockBefore reports whether a precedes b; both must be valid HH:mm values
// (lexicographic order is chronological for zero-padded clocks).
func ClockBefore(a, b string) bool { return a < b }

// DateKey derives the sortable yyyyMMdd key from a dd/MM/yyyy date. Values
// of an unexpected shape are returned unchanged so malformed legacy rows
// sort somewhere stable instead of failing.
func DateKey(date string) string {
	if len(date) != 10 {
		return date
	}
	return date[6:10] + date[3:5] + date[0:2]
}

// PreviousDay returns the dd/MM/yyyy date one day before the given one.
func PreviousDay(date string) (string, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return d.AddDate(0, 0, -1).Format(DateLayout), nil
}

// Meal reference times: a convivência interval covering one of these marks
// the corresponding meal flag.
var mealTimes = []struct {
	clock string
	set   func(*MealFlags)
}{
	{"09:00", func(m *MealFlags) { m.Desjejum = true }},
	{"12:00", func(m *MealFlags) { m.Lunch = true }},
	{"15:00", func(m *MealFlags) { m.Snack = true }},
	{"18:00", func(m *MealFlags) { m.Dinner = true }},
}

// MealsForInterval derives meal flags from a stay interval: each meal whose
// reference time falls inside [start, end] (inclusive) is marked. Invalid
// or missing bounds yield no flags.
func MealsForInterval(start, end string) MealFlags {
	var flags MealFlags
	if !ValidClock(start) || !ValidClock(end) {
		return flags
	}
	for _, m := range mealTimes {
		if start <= m.clock && m.clock <= end {
			m.set(&flags)
		}
	}
	return flags
}
