// Package lessons persists lesson metadata in SQLite.
package lessons

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS lessons (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	tags            TEXT NOT NULL DEFAULT '[]',
	memo            TEXT NOT NULL DEFAULT '',
	transcript_text TEXT NOT NULL DEFAULT '',
	summary_text    TEXT NOT NULL DEFAULT '',
	chords          TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_lessons_created_at ON lessons(created_at);
`

const selectColumns = `id, title, created_at, updated_at, tags, memo, transcript_text, summary_text, chords`

// Store wraps the lessons database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the connection so the other domain stores share the same
// database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new lesson. Tags are normalized.
func (s *Store) Create(ctx context.Context, l Lesson) error {
	if l.ID == "" {
		return errors.New("lesson id is required")
	}
	now := s.now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	tags, err := encodeList(NormalizeTags(l.Tags))
	if err != nil {
		return err
	}
	chords, err := encodeList(l.Chords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lessons (id, title, created_at, updated_at, tags, memo, transcript_text, summary_text, chords)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Title, formatTime(l.CreatedAt), formatTime(now), tags, l.Memo,
		l.TranscriptText, l.SummaryText, chords)
	if err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

// Get returns one lesson or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Lesson, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM lessons WHERE id = ?`, id)
	l, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Lesson{}, ErrNotFound
	}
	return l, err
}

// Exists reports whether a lesson row exists.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM lessons WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query lesson: %w", err)
	}
	return true, nil
}

// List returns all lessons, newest first.
func (s *Store) List(ctx context.Context) ([]Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM lessons ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	out := []Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Update applies a patch and returns the updated lesson.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Lesson, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(s.now().UTC())}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*p.Title))
	}
	if p.Tags != nil {
		tags, err := encodeList(NormalizeTags(*p.Tags))
		if err != nil {
			return Lesson{}, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if p.Memo != nil {
		sets = append(sets, "memo = ?")
		args = append(args, *p.Memo)
	}
	args = append(args, id)

	if err := s.exec(ctx, `UPDATE lessons SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return Lesson{}, err
	}
	return s.Get(ctx, id)
}

// SetTranscript updates the cached transcript text; "" clears it.
func (s *Store) SetTranscript(ctx context.Context, id, text string) error {
	return s.exec(ctx, `UPDATE lessons SET transcript_text = ?, updated_at = ? WHERE id = ?`,
		text, formatTime(s.now().UTC()), id)
}

// SetSummary updates the cached summary fields; "" and nil clear them.
func (s *Store) SetSummary(ctx context.Context, id, summary string, chords []string) error {
	encoded, err := encodeList(chords)
	if err != nil {
		return err
	}
	return s.exec(ctx, `UPDATE lessons SET summary_text = ?, chords = ?, updated_at = ? WHERE id = ?`,
		summary, encoded, formatTime(s.now().UTC()), id)
}

// Delete removes the row.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM lessons WHERE id = ?`, id)
}

// Tags returns the union of all lesson tags, sorted.
func (s *Store) Tags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tags FROM lessons`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var all []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan tags: %w", err)
		}
		tags, err := decodeList(raw)
		if err != nil {
			return nil, err
		}
		all = append(all, tags...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NormalizeTags(all), nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanLesson(row scanner) (Lesson, error) {
	var l Lesson
	var createdAt, updatedAt, tags, chords string
	if err := row.Scan(&l.ID, &l.Title, &createdAt, &updatedAt, &tags, &l.Memo,
		&l.TranscriptText, &l.SummaryText, &chords); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lesson{}, err
		}
		return Lesson{}, fmt.Errorf("scan lesson: %w", err)
	}

	var err error
	if l.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Lesson{}, fmt.Errorf("lesson %s created_at: %w", l.ID, err)
	}
	if l.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return Lesson{}, fmt.Errorf("lesson %s updated_at: %w", l.ID, err)
	}
	if l.Tags, err = decodeList(tags); err != nil {
		return Lesson{}, err
	}
	if l.Chords, err = decodeList(chords); err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return out, nil
}
