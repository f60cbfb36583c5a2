package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Analysis is one model answer about one table.
type Analysis struct {
	Name     string        `json:"name"`
	Kind     PromptKind    `json:"kind"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
}

// Observer is told about every completion.
type Observer func(backend, operation string, ok bool, d time.Duration)

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithCountry sets the reference country the prompts focus on.
func WithCountry(cc string) Option { return func(s *Summarizer) { s.country = cc } }

// WithPeriod sets a human-readable filing period, e.g. "2020-2021".
func WithPeriod(p string) Option { return func(s *Summarizer) { s.period = p } }

// WithObserver hooks completion metrics.
func WithObserver(o Observer) Option { return func(s *Summarizer) { s.observe = o } }

// Summarizer writes per-table analyses and a combined summary.
type Summarizer struct {
	client  Client
	prompts *Prompts
	logger  logging.Logger
	country string
	period  string
	observe Observer
}

// New creates a Summarizer on top of client.
func New(client Client, prompts *Prompts, logger logging.Logger, opts ...Option) *Summarizer {
	s := &Summarizer{client: client, prompts: prompts, logger: logger.Named("summarizer")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// With returns a copy of s with extra options applied.
func (s *Summarizer) With(opts ...Option) *Summarizer {
	c := *s
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Analyze asks the model about one table, rows in order when given.
func (s *Summarizer) Analyze(ctx context.Context, name string, table *attribution.Table, order ...string) (Analysis, error) {
	if table.IsEmpty() {
		return Analysis{}, pkgerrors.New(pkgerrors.ErrCodeEmptyInput, "nothing to analyze").WithDetail(name)
	}
	raw, err := json.Marshal(attribution.ToSplit(table, order))
	if err != nil {
		return Analysis{}, pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "marshal table").WithDetail(name)
	}
	kind := KindFor(name)
	p, err := s.prompts.Render(kind, TableData{Name: name, Country: s.country, Period: s.period, TableJSON: string(raw)})
	if err != nil {
		return Analysis{}, err
	}
	text, d, err := s.complete(ctx, "analyze", p)
	if err != nil {
		return Analysis{}, pkgerrors.Wrap(err, pkgerrors.CodeUnknown, "analyze "+name)
	}
	return Analysis{Name: name, Kind: kind, Text: text, Duration: d}, nil
}

// Summarize folds analyses into one overview.
func (s *Summarizer) Summarize(ctx context.Context, analyses []Analysis) (string, error) {
	if len(analyses) == 0 {
		return "", pkgerrors.New(pkgerrors.ErrCodeEmptyInput, "no analyses to summarize")
	}
	p, err := s.prompts.Render(PromptSummary, SummaryData{Country: s.country, Period: s.period, Analyses: analyses})
	if err != nil {
		return "", err
	}
	text, _, err := s.complete(ctx, "summarize", p)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.CodeUnknown, "summarize")
	}
	return text, nil
}

func (s *Summarizer) complete(ctx context.Context, op string, p Prompt) (string, time.Duration, error) {
	start := time.Now()
	text, err := s.client.Complete(ctx, p)
	d := time.Since(start)
	if s.observe != nil {
		s.observe(s.client.Name(), op, err == nil, d)
	}
	if err != nil {
		s.logger.Warn("completion failed",
			logging.String("backend", s.client.Name()),
			logging.String("operation", op),
			logging.Err(err))
		return "", d, err
	}
	s.logger.Debug("completion done",
		logging.String("backend", s.client.Name()),
		logging.String("operation", op),
		logging.Int("prompt_tokens", EstimateTokenCount(p.User)),
		logging.Duration("duration", d))
	return text, d, nil
}

// Combined renders analyses as "name:\ntext" blocks, the text stored next to
// the summary.
func Combined(analyses []Analysis) string {
	parts := make([]string, 0, len(analyses))
	for _, a := range analyses {
		parts = append(parts, fmt.Sprintf("%s:\n%s", a.Name, a.Text))
	}
	return strings.Join(parts, "\n\n")
}
