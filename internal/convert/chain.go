// Package convert rasterizes page 1 of a PDF into a JPEG through an
// ordered chain of fallback strategies.
package convert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/common/metrics"
)

// Strategy is one way of producing jpgPath from pdfPath. A strategy must
// not leave a partial file at jpgPath when it fails.
type Strategy interface {
	Name() string
	Convert(ctx context.Context, pdfPath, jpgPath string) error
}

// Attempt records one strategy invocation.
type Attempt struct {
	Strategy string
	Err      error
	Duration time.Duration
}

// ChainError is returned when every strategy failed. It reports the last
// failure and keeps every attempt for diagnostics.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) last() *Attempt {
	if len(e.Attempts) == 0 {
		return nil
	}
	return &e.Attempts[len(e.Attempts)-1]
}

func (e *ChainError) Error() string {
	last := e.last()
	if last == nil {
		return "no conversion strategies configured"
	}
	tried := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		tried = append(tried, a.Strategy)
	}
	return fmt.Sprintf("conversion failed after %s; last error (%s): %v",
		strings.Join(tried, ", "), last.Strategy, last.Err)
}

func (e *ChainError) Unwrap() error {
	if last := e.last(); last != nil {
		return last.Err
	}
	return nil
}

type Chain struct {
	strategies []Strategy
	logger     logger.Logger
}

func NewChain(log logger.Logger, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		logger:     logger.ForComponent(log, "convert"),
	}
}

// Strategies lists strategy names in the order they are tried.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Convert tries each strategy in order and stops at the first success.
func (c *Chain) Convert(ctx context.Context, pdfPath, jpgPath string) error {
	chainErr := &ChainError{}

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			chainErr.Attempts = append(chainErr.Attempts, Attempt{Strategy: s.Name(), Err: err})
			break
		}

		start := time.Now()
		err := s.Convert(ctx, pdfPath, jpgPath)
		attempt := Attempt{Strategy: s.Name(), Err: err, Duration: time.Since(start)}

		fields := map[string]interface{}{
			"strategy":   s.Name(),
			"pdf":        pdfPath,
			"durationMs": attempt.Duration.Milliseconds(),
		}
		if err == nil {
			metrics.ConversionAttempts.WithLabelValues(s.Name(), "success").Inc()
			c.logger.Debug("conversion succeeded", fields)
			return nil
		}

		metrics.ConversionAttempts.WithLabelValues(s.Name(), "failure").Inc()
		fields["error"] = err
		c.logger.Warn("conversion strategy failed, trying next", fields)
		chainErr.Attempts = append(chainErr.Attempts, attempt)
	}

	return chainErr
}
