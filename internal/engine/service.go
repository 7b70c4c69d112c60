package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/valpere/docpipe/internal/chunker"
	"github.com/valpere/docpipe/internal/orchestrator"
	"github.com/valpere/docpipe/internal/placeholder"
	"github.com/valpere/docpipe/internal/postprocess"
	"github.com/valpere/docpipe/internal/translator"
)

// Memory is the translation memory and glossary consulted by Service.
// *store.Store implements it.
type Memory interface {
	Lookup(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error)
	FuzzyLookup(ctx context.Context, sourceText, sourceLang, targetLang string, threshold float64) (string, bool, error)
	Remember(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error
	GlossaryTerms(ctx context.Context, sourceLang, targetLang string) (map[string]string, error)
}

// ServiceOption configures a Service engine.
type ServiceOption func(*Service)

// WithMemory consults m before calling a backend and records new
// translations in it. threshold enables fuzzy matches when positive.
func WithMemory(m Memory, threshold float64) ServiceOption {
	return func(s *Service) {
		s.memory = m
		s.fuzzy = threshold
	}
}

// WithMaxUnitChars splits units longer than n runes before translation.
func WithMaxUnitChars(n int) ServiceOption {
	return func(s *Service) { s.maxUnitChars = n }
}

// WithContextWords sends the last n words of the previous unit as context.
// Zero disables it.
func WithContextWords(n int) ServiceOption {
	return func(s *Service) { s.contextWords = n }
}

func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// Service translates units one at a time through a fallback chain of
// translation backends.
type Service struct {
	orch         *orchestrator.Orchestrator
	memory       Memory
	fuzzy        float64
	maxUnitChars int
	contextWords int
	logger       *slog.Logger
}

func NewService(orch *orchestrator.Orchestrator, opts ...ServiceOption) *Service {
	s := &Service{
		orch:   orch,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Name() string {
	return "service:" + strings.Join(s.orch.Services(), ",")
}

// Translate sends each non-blank unit through memory, markup protection,
// chunking and the backend chain. Blank units are returned unchanged.
func (s *Service) Translate(ctx context.Context, req Request) ([]string, error) {
	var glossary map[string]string
	if s.memory != nil {
		terms, err := s.memory.GlossaryTerms(ctx, req.SourceLang, req.TargetLang)
		if err != nil {
			return nil, fmt.Errorf("load glossary: %w", err)
		}
		glossary = terms
	}

	cleaner := postprocess.New(
		postprocess.StripReasoning,
		postprocess.StripPrefix(req.Prefix),
		postprocess.StripPreamble,
		postprocess.Unquote,
		postprocess.SingleLine,
	)
	out := make([]string, len(req.Units))
	previous := ""
	for i, unit := range req.Units {
		if strings.TrimSpace(unit) == "" {
			out[i] = unit
			continue
		}

		text, err := s.translateUnit(ctx, req, unit, previous, glossary, cleaner)
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i+1, err)
		}
		out[i] = text
		previous = unit
	}
	return out, nil
}

func (s *Service) translateUnit(ctx context.Context, req Request, unit, previous string, glossary map[string]string, cleaner *postprocess.Cleaner) (string, error) {
	if text, ok := s.recall(ctx, req, unit); ok {
		return text, nil
	}

	protected, markers := placeholder.Protect(unit)
	instructions := strings.TrimSpace(req.Prefix)
	if !markers.Empty() {
		instructions = strings.TrimSpace(instructions + " " + placeholder.Hint)
	}
	prior := s.tail(previous)

	var (
		pieces  []string
		service string
	)
	for _, piece := range chunker.Chunk(protected, s.maxUnitChars) {
		res, err := s.orch.Execute(ctx, translator.TranslateRequest{
			Text:         piece,
			SourceLang:   req.SourceLang,
			TargetLang:   req.TargetLang,
			Instructions: instructions,
			Context:      prior,
			Glossary:     glossary,
		})
		if err != nil {
			return "", err
		}
		pieces = append(pieces, cleaner.Clean(res.TranslatedText))
		service = res.ServiceName
		prior = s.tail(piece)
	}

	text, err := markers.Restore(strings.Join(pieces, " "))
	if err != nil {
		return "", err
	}

	if s.memory != nil {
		if err := s.memory.Remember(ctx, unit, req.SourceLang, req.TargetLang, text, service); err != nil {
			s.logger.Warn("failed to save translation memory", "error", err)
		}
	}
	return text, nil
}

func (s *Service) tail(text string) string {
	if s.contextWords <= 0 {
		return ""
	}
	return chunker.Tail(text, s.contextWords)
}

func (s *Service) recall(ctx context.Context, req Request, unit string) (string, bool) {
	if s.memory == nil {
		return "", false
	}
	text, ok, err := s.memory.Lookup(ctx, unit, req.SourceLang, req.TargetLang)
	if err == nil && !ok {
		text, ok, err = s.memory.FuzzyLookup(ctx, unit, req.SourceLang, req.TargetLang, s.fuzzy)
	}
	if err != nil {
		s.logger.Warn("translation memory lookup failed", "error", err)
		return "", false
	}
	if ok {
		s.logger.Debug("translation memory hit", "unit", unit)
	}
	return text, ok
}
