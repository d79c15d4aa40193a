package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no entry matches the id.
	ErrNotFound = errors.New("journal entry not found")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid journal entry")
)

// Entry is one practice session.
type Entry struct {
	ID              int64     `json:"id"`
	Date            string    `json:"date"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes"`
	Tags            []string  `json:"tags"`
	Sentiment       string    `json:"sentiment"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks the client-supplied fields. Date is a calendar day in
// YYYY-MM-DD form.
func (e Entry) Validate() error {
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	if e.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration_minutes must not be negative", ErrInvalid)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalid, s)
	}
	return t, nil
}

// DayTotal aggregates the sessions of one day.
type DayTotal struct {
	Date     string `json:"date"`
	Count    int    `json:"count"`
	Duration int    `json:"duration"`
}

// Stats is the practice dashboard.
type Stats struct {
	Heatmap      []DayTotal `json:"heatmap"`
	TotalMinutes int        `json:"total_minutes"`
	WeekMinutes  int        `json:"week_minutes"`
}

// weekStart returns the Monday of the week containing t.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}
