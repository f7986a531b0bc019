package utils

import (
	"time"
)

// StartOfDay returns midnight UTC of t's calendar date in UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalculateDueDate calculates the due date for a specific week
// Week 1 is due 7 days after start, week 2 is due 14 days after, etc.
func CalculateDueDate(loanStartDate time.Time, weekNumber int) time.Time {
	days := weekNumber * 7
	return loanStartDate.AddDate(0, 0, days)
}

// TotalPages returns ceil(totalCount / pageSize). A non-positive page size yields 0.
func TotalPages(totalCount, pageSize int) int {
	if pageSize <= 0 || totalCount <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}
