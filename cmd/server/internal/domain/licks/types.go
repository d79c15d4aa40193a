package licks

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no lick matches the id.
	ErrNotFound = errors.New("lick not found")

	// ErrUnknownLesson is returned when a lick names a lesson that does not exist.
	ErrUnknownLesson = errors.New("lesson not found")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid lick")
)

// Lick is a saved region of a lesson recording, usually a phrase worth
// practising on its own.
type Lick struct {
	ID        string    `json:"id"`
	LessonID  string    `json:"lesson_id"`
	Title     string    `json:"title"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Tags      []string  `json:"tags"`
	Memo      string    `json:"memo"`
	ABC       string    `json:"abc,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields a client controls.
func (l Lick) Validate() error {
	switch {
	case strings.TrimSpace(l.LessonID) == "":
		return fmt.Errorf("%w: lesson_id is required", ErrInvalid)
	case strings.TrimSpace(l.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalid)
	case l.Start < 0:
		return fmt.Errorf("%w: start must not be negative", ErrInvalid)
	case l.End <= l.Start:
		return fmt.Errorf("%w: end must be after start", ErrInvalid)
	}
	return nil
}

// Patch carries the editable fields; nil fields are left unchanged.
type Patch struct {
	Title *string   `json:"title,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
	Memo  *string   `json:"memo,omitempty"`
	Start *float64  `json:"start,omitempty"`
	End   *float64  `json:"end,omitempty"`
	ABC   *string   `json:"abc,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Tags == nil && p.Memo == nil &&
		p.Start == nil && p.End == nil && p.ABC == nil
}

func (p Patch) apply(l Lick) Lick {
	if p.Title != nil {
		l.Title = strings.TrimSpace(*p.Title)
	}
	if p.Tags != nil {
		l.Tags = *p.Tags
	}
	if p.Memo != nil {
		l.Memo = *p.Memo
	}
	if p.Start != nil {
		l.Start = *p.Start
	}
	if p.End != nil {
		l.End = *p.End
	}
	if p.ABC != nil {
		l.ABC = *p.ABC
	}
	return l
}
