package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
)

// Resolver returns the Config to use for the next summary.
type Resolver func(ctx context.Context) (Config, error)

// Dynamic resolves its Config before every summary and rebuilds the
// provider client only when the resolved Config changed.
type Dynamic struct {
	resolve Resolver
	build   func(Config) (*Summarizer, error)

	mu  sync.Mutex
	cfg Config
	cur *Summarizer
}

// NewDynamic builds summarizers with New.
func NewDynamic(resolve Resolver) *Dynamic {
	return &Dynamic{resolve: resolve, build: New}
}

// Summarize resolves the settings and summarizes with them. A settings
// lookup or client construction failure is returned as an error.
func (d *Dynamic) Summarize(ctx context.Context, segments []artifact.TranscriptSegment) (artifact.SummaryDocument, error) {
	cfg, err := d.resolve(ctx)
	if err != nil {
		return artifact.SummaryDocument{}, fmt.Errorf("resolve llm settings: %w", err)
	}
	s, err := d.current(cfg.WithDefaults())
	if err != nil {
		return artifact.SummaryDocument{}, err
	}
	return s.Summarize(ctx, segments)
}

func (d *Dynamic) current(cfg Config) (*Summarizer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur != nil && d.cfg == cfg {
		return d.cur, nil
	}
	s, err := d.build(cfg)
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}
	if d.cur != nil {
		slog.Info("llm settings changed", "provider", cfg.Provider, "model", cfg.Model)
	}
	d.cfg, d.cur = cfg, s
	return s, nil
}
