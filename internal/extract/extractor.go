package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SignalPipeline/internal/domain"
	"SignalPipeline/internal/logging"
)

// Options selects and bounds the methods for one team's run.
type Options struct {
	Methods         []string
	MaxPhraseLength int
}

// Extractor runs the enabled extraction methods over one document's text.
// Methods are independently failable: a method that errors or exceeds the
// timeout is logged and skipped, never failing the document.
type Extractor struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// New wires the method registry with a per-method timeout.
func New(registry *Registry, timeout time.Duration, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Extractor{registry: registry, timeout: timeout, logger: logger}
}

// Extract produces the document's candidate set across all enabled methods.
// Candidate text leaves here case-folded and whitespace-normalized, with
// single-word stopwords removed.
func (e *Extractor) Extract(ctx context.Context, doc domain.Document, opts Options) ([]domain.Candidate, error) {
	cleaned := CleanBody(doc.BodyText)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: document %s has no usable text", domain.ErrDocumentProcessing, doc.ID)
	}

	cfg := MethodConfig{
		MaxPhraseLength: opts.MaxPhraseLength,
		Stopwords:       DefaultStopwords(),
	}

	var all []domain.Candidate
	for _, name := range opts.Methods {
		method, err := e.registry.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}

		candidates, err := e.runMethod(ctx, method, cleaned, cfg)
		if err != nil {
			e.logger.Warn("extraction method failed, continuing",
				"method", name, "document", doc.ID, "error", err)
			continue
		}
		all = append(all, candidates...)
	}

	return e.finalize(all, cfg), nil
}

// runMethod executes one method under the configured timeout. Methods are
// pure CPU and carry no context, so the deadline is enforced from outside.
func (e *Extractor) runMethod(ctx context.Context, method Method, text string, cfg MethodConfig) ([]domain.Candidate, error) {
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type result struct {
		candidates []domain.Candidate
		err        error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %s panicked: %v", domain.ErrExtractionMethod, method.Name(), r)}
			}
		}()
		candidates, err := method.Extract(text, cfg)
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", domain.ErrExtractionMethod, method.Name(), err)
		}
		done <- result{candidates: candidates, err: err}
	}()

	select {
	case res := <-done:
		return res.candidates, res.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtractionMethod, method.Name(), runCtx.Err())
	}
}

// finalize normalizes candidate text and applies the stopword safety net.
func (e *Extractor) finalize(candidates []domain.Candidate, cfg MethodConfig) []domain.Candidate {
	out := candidates[:0]
	for _, cand := range candidates {
		cand.Text = NormalizeTerm(cand.Text)
		if cand.Text == "" {
			continue
		}
		if !strings.Contains(cand.Text, " ") {
			if _, stop := cfg.Stopwords[cand.Text]; stop {
				continue
			}
		}
		if cand.Occurrences < 1 {
			cand.Occurrences = 1
		}
		if cand.MethodScore < 0 {
			cand.MethodScore = 0
		}
		if cand.MethodScore > 1 {
			cand.MethodScore = 1
		}
		out = append(out, cand)
	}
	return out
}
