package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const (
	keyLLMProvider  = "llm_provider"
	keyLLMModel     = "llm_model"
	keySystemPrompt = "system_prompt"
	keyOpenAIAPIKey = "openai_api_key"
)

// Store persists overrides as key/value rows.
type Store struct {
	db *sql.DB
}

// New applies the settings schema to db.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply settings schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the stored overrides.
func (s *Store) Load(ctx context.Context) (Overlay, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Overlay{}, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var o Overlay
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Overlay{}, fmt.Errorf("scan setting: %w", err)
		}
		if field := o.field(key); field != nil {
			*field = &value
		}
	}
	return o, rows.Err()
}

// Resolve loads the overrides and applies them on top of defaults.
func (s *Store) Resolve(ctx context.Context, defaults Values) (Values, error) {
	o, err := s.Load(ctx)
	if err != nil {
		return Values{}, err
	}
	return o.Resolve(defaults), nil
}

// Apply stores u in one transaction. current is the effective value set
// the client saw, used to recognise an unchanged masked key.
func (s *Store) Apply(ctx context.Context, u Update, current Values) error {
	if u.OpenAIAPIKey != nil && isMasked(strings.TrimSpace(*u.OpenAIAPIKey), current.OpenAIAPIKey) {
		u.OpenAIAPIKey = nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings update: %w", err)
	}
	defer tx.Rollback()

	for _, kv := range []struct {
		key   string
		value *string
	}{
		{keyLLMProvider, u.LLMProvider},
		{keyLLMModel, u.LLMModel},
		{keySystemPrompt, u.SystemPrompt},
		{keyOpenAIAPIKey, u.OpenAIAPIKey},
	} {
		if kv.value == nil {
			continue
		}
		value := *kv.value
		if kv.key != keySystemPrompt {
			value = strings.TrimSpace(value)
		}
		if strings.TrimSpace(value) == "" {
			_, err = tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, kv.key)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO settings (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value`, kv.key, value)
		}
		if err != nil {
			return fmt.Errorf("store setting %s: %w", kv.key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings update: %w", err)
	}
	return nil
}

func (o *Overlay) field(key string) **string {
	switch key {
	case keyLLMProvider:
		return &o.LLMProvider
	case keyLLMModel:
		return &o.LLMModel
	case keySystemPrompt:
		return &o.SystemPrompt
	case keyOpenAIAPIKey:
		return &o.OpenAIAPIKey
	}
	return nil
}
