// Package licks persists saved lesson regions in the lessons database.
package licks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS licks (
	id         TEXT PRIMARY KEY,
	lesson_id  TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	start_sec  REAL NOT NULL,
	end_sec    REAL NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	memo       TEXT NOT NULL DEFAULT '',
	abc        TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_licks_lesson ON licks(lesson_id, start_sec);
`

const selectColumns = `id, lesson_id, title, start_sec, end_sec, tags, memo, abc, created_at, updated_at`

// Store reads and writes licks. Rows go away with their lesson.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() (string, error)
}

// New applies the licks schema to db. The lessons table must exist.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply licks schema: %w", err)
	}
	return &Store{db: db, now: time.Now, newID: newLickID}, nil
}

func newLickID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Create validates and inserts l, assigning its id and timestamps.
func (s *Store) Create(ctx context.Context, l Lick) (Lick, error) {
	l.Title = strings.TrimSpace(l.Title)
	if err := l.Validate(); err != nil {
		return Lick{}, err
	}
	if err := s.requireLesson(ctx, l.LessonID); err != nil {
		return Lick{}, err
	}

	id, err := s.newID()
	if err != nil {
		return Lick{}, fmt.Errorf("generate lick id: %w", err)
	}
	now := s.now().UTC()
	l.ID, l.CreatedAt, l.UpdatedAt = id, now, now
	l.Tags = lessons.NormalizeTags(l.Tags)

	tags, err := encodeTags(l.Tags)
	if err != nil {
		return Lick{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO licks (id, lesson_id, title, start_sec, end_sec, tags, memo, abc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.LessonID, l.Title, l.Start, l.End, tags, l.Memo, l.ABC,
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt))
	if err != nil {
		return Lick{}, fmt.Errorf("insert lick: %w", err)
	}
	return s.Get(ctx, l.ID)
}

// Get returns one lick or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Lick, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM licks WHERE id = ?`, id)
	l, err := scanLick(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Lick{}, ErrNotFound
	}
	return l, err
}

// List returns every lick, newest first. With a lesson id only that
// lesson's licks are returned, in playback order.
func (s *Store) List(ctx context.Context, lessonID string) ([]Lick, error) {
	query := `SELECT ` + selectColumns + ` FROM licks ORDER BY created_at DESC, id DESC`
	var args []any
	if lessonID != "" {
		if err := s.requireLesson(ctx, lessonID); err != nil {
			return nil, err
		}
		query = `SELECT ` + selectColumns + ` FROM licks WHERE lesson_id = ? ORDER BY start_sec, id`
		args = append(args, lessonID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query licks: %w", err)
	}
	defer rows.Close()

	out := []Lick{}
	for rows.Next() {
		l, err := scanLick(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Update applies p and returns the stored lick. The patched lick must
// still be valid.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Lick, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Lick{}, err
	}
	next := p.apply(cur)
	if err := next.Validate(); err != nil {
		return Lick{}, err
	}
	tags, err := encodeTags(lessons.NormalizeTags(next.Tags))
	if err != nil {
		return Lick{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE licks SET title = ?, start_sec = ?, end_sec = ?, tags = ?, memo = ?, abc = ?, updated_at = ?
		WHERE id = ?`,
		next.Title, next.Start, next.End, tags, next.Memo, next.ABC, formatTime(s.now().UTC()), id)
	if err != nil {
		return Lick{}, fmt.Errorf("update lick: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Lick{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a lick.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM licks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete lick: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) requireLesson(ctx context.Context, lessonID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM lessons WHERE id = ?`, lessonID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrUnknownLesson, lessonID)
	}
	if err != nil {
		return fmt.Errorf("query lesson: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLick(row scanner) (Lick, error) {
	var l Lick
	var tags, createdAt, updatedAt string
	if err := row.Scan(&l.ID, &l.LessonID, &l.Title, &l.Start, &l.End, &tags, &l.Memo, &l.ABC,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lick{}, err
		}
		return Lick{}, fmt.Errorf("scan lick: %w", err)
	}

	var err error
	if l.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Lick{}, fmt.Errorf("lick %s created_at: %w", l.ID, err)
	}
	if l.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return Lick{}, fmt.Errorf("lick %s updated_at: %w", l.ID, err)
	}
	l.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
			return Lick{}, fmt.Errorf("lick %s tags: %w", l.ID, err)
		}
	}
	return l, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}
