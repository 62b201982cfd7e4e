// Package fallback tries an ordered list of (credential, model) backends
// until one answers.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ports"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm"
	"github.com/kirillkom/dermafusion/internal/infrastructure/resilience"
)

// Backend is one configured (provider, credential, model) pair.
type Backend struct {
	Provider   string
	Credential string
	Model      string
	Generator  ports.Generator
}

type FailureObserver func(provider, model string)

type Option func(*Generator)

// WithFailureObserver is called once per failed backend attempt.
func WithFailureObserver(fn FailureObserver) Option {
	return func(g *Generator) {
		g.onFailure = fn
	}
}

type Generator struct {
	backends  []Backend
	executor  *resilience.Executor
	onFailure FailureObserver
}

func New(backends []Backend, executor *resilience.Executor, opts ...Option) (*Generator, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("fallback generator: no backends configured")
	}
	for i, b := range backends {
		if b.Generator == nil {
			return nil, fmt.Errorf("fallback generator: backend %d (%s/%s) has no client", i, b.Provider, b.Model)
		}
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.GenerativeConfig())
	}
	g := &Generator{backends: backends, executor: executor}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	return g.run(ctx, "generate", func(ctx context.Context, backend ports.Generator) (string, error) {
		return backend.Generate(ctx, req)
	})
}

func (g *Generator) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	return g.run(ctx, "chat", func(ctx context.Context, backend ports.Generator) (string, error) {
		return backend.Chat(ctx, req)
	})
}

func (g *Generator) run(ctx context.Context, operation string, call func(context.Context, ports.Generator) (string, error)) (string, error) {
	failures := make([]domain.BackendFailure, 0, len(g.backends))
	for _, b := range g.backends {
		masked := domain.MaskCredential(b.Credential)
		out, err := resilience.Call(ctx, g.executor, breakerName(b, masked), func(ctx context.Context) (string, error) {
			return call(ctx, b.Generator)
		}, llm.Classify)
		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", operation, ctxErr)
		}

		slog.Warn("generative_backend_failed",
			"operation", operation,
			"provider", b.Provider,
			"credential", masked,
			"model", b.Model,
			"error", err,
		)
		if g.onFailure != nil {
			g.onFailure(b.Provider, b.Model)
		}
		failures = append(failures, domain.BackendFailure{
			Provider:   b.Provider,
			Credential: masked,
			Model:      b.Model,
			Message:    err.Error(),
		})
	}
	return "", &domain.AllBackendsFailedError{Operation: operation, Failures: failures}
}

// Close releases backends that hold connections.
func (g *Generator) Close() error {
	var errs []error
	for _, b := range g.backends {
		if closer, ok := b.Generator.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func breakerName(b Backend, masked string) string {
	return strings.Join([]string{"llm", b.Provider, b.Model, masked}, ".")
}
