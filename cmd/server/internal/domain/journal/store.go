// Package journal persists practice sessions and computes practice
// statistics in the lessons database.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS practice_logs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	date             TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	notes            TEXT NOT NULL DEFAULT '',
	tags             TEXT NOT NULL DEFAULT '[]',
	sentiment        TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_practice_logs_date ON practice_logs(date);
`

const selectColumns = `id, date, duration_minutes, notes, tags, sentiment, created_at`

// Store reads and writes practice sessions.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New applies the journal schema to db.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Create validates and inserts e.
func (s *Store) Create(ctx context.Context, e Entry) (Entry, error) {
	e, err := normalize(e)
	if err != nil {
		return Entry{}, err
	}
	tags, err := encodeTags(e.Tags)
	if err != nil {
		return Entry{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO practice_logs (date, duration_minutes, notes, tags, sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Date, e.DurationMinutes, e.Notes, tags, e.Sentiment, s.now().UTC().Format(timeLayout))
	if err != nil {
		return Entry{}, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("journal entry id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get returns one entry or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM practice_logs WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// List returns entries newest day first. start and end are inclusive
// YYYY-MM-DD bounds; empty means unbounded.
func (s *Store) List(ctx context.Context, start, end string) ([]Entry, error) {
	var where []string
	var args []any
	for _, b := range []struct {
		value string
		cond  string
	}{{start, "date >= ?"}, {end, "date <= ?"}} {
		if b.value == "" {
			continue
		}
		day, err := ParseDate(b.value)
		if err != nil {
			return nil, err
		}
		where = append(where, b.cond)
		args = append(args, day.Format(time.DateOnly))
	}

	query := `SELECT ` + selectColumns + ` FROM practice_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Update replaces the fields of an entry.
func (s *Store) Update(ctx context.Context, id int64, e Entry) (Entry, error) {
	e, err := normalize(e)
	if err != nil {
		return Entry{}, err
	}
	tags, err := encodeTags(e.Tags)
	if err != nil {
		return Entry{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE practice_logs SET date = ?, duration_minutes = ?, notes = ?, tags = ?, sentiment = ?
		WHERE id = ?`,
		e.Date, e.DurationMinutes, e.Notes, tags, e.Sentiment, id)
	if err != nil {
		return Entry{}, fmt.Errorf("update journal entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Entry{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM practice_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
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

// Stats returns per-day totals in date order, the overall total and the
// minutes practised since Monday of the current week.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, COUNT(*), COALESCE(SUM(duration_minutes), 0)
		FROM practice_logs GROUP BY date ORDER BY date`)
	if err != nil {
		return Stats{}, fmt.Errorf("query practice heatmap: %w", err)
	}
	defer rows.Close()

	since := weekStart(s.now()).Format(time.DateOnly)
	stats := Stats{Heatmap: []DayTotal{}}
	for rows.Next() {
		var d DayTotal
		if err := rows.Scan(&d.Date, &d.Count, &d.Duration); err != nil {
			return Stats{}, fmt.Errorf("scan practice day: %w", err)
		}
		stats.Heatmap = append(stats.Heatmap, d)
		stats.TotalMinutes += d.Duration
		if d.Date >= since {
			stats.WeekMinutes += d.Duration
		}
	}
	return stats, rows.Err()
}

func normalize(e Entry) (Entry, error) {
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	day, _ := ParseDate(e.Date)
	e.Date = day.Format(time.DateOnly)
	e.Tags = lessons.NormalizeTags(e.Tags)
	e.Sentiment = strings.TrimSpace(e.Sentiment)
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var tags, createdAt string
	if err := row.Scan(&e.ID, &e.Date, &e.DurationMinutes, &e.Notes, &tags, &e.Sentiment, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	var err error
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Entry{}, fmt.Errorf("journal entry %d created_at: %w", e.ID, err)
	}
	e.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			return Entry{}, fmt.Errorf("journal entry %d tags: %w", e.ID, err)
		}
	}
	return e, nil
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
