package fallback

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm"
	"github.com/kirillkom/dermafusion/internal/infrastructure/resilience"
)

type backendFake struct {
	name   string
	errs   []error
	reply  string
	calls  int
	order  *[]string
	closed bool
}

func (b *backendFake) next() (string, error) {
	b.calls++
	if b.order != nil {
		*b.order = append(*b.order, b.name)
	}
	if len(b.errs) == 0 {
		return b.reply, nil
	}
	err := b.errs[0]
	if len(b.errs) > 1 {
		b.errs = b.errs[1:]
	}
	if err == nil {
		return b.reply, nil
	}
	return "", err
}

func (b *backendFake) Generate(context.Context, domain.GenerationRequest) (string, error) {
	return b.next()
}

func (b *backendFake) Chat(context.Context, domain.ChatRequest) (string, error) {
	return b.next()
}

func (b *backendFake) Close() error {
	b.closed = true
	return nil
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
		BreakerEnabled:      false,
	})
}

func TestGenerateFallsThroughInOrder(t *testing.T) {
	var order []string
	first := &backendFake{name: "k1/flash", errs: []error{errors.New("invalid key")}, order: &order}
	second := &backendFake{name: "k1/pro", errs: []error{&llm.StatusError{Provider: "gemini", StatusCode: http.StatusTooManyRequests}}, order: &order}
	third := &backendFake{name: "k2/flash", reply: "answer", order: &order}

	var observed []string
	gen, err := New([]Backend{
		{Provider: "gemini", Credential: "AIzaSyAB-first-key", Model: "flash", Generator: first},
		{Provider: "gemini", Credential: "AIzaSyAB-first-key", Model: "pro", Generator: second},
		{Provider: "gemini", Credential: "AIzaSyCD-second-key", Model: "flash", Generator: third},
	}, testExecutor(), WithFailureObserver(func(provider, model string) {
		observed = append(observed, provider+"/"+model)
	}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := gen.Generate(context.Background(), domain.GenerationRequest{UserInstruction: "hi"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "answer" {
		t.Fatalf("unexpected output %q", out)
	}
	if got := strings.Join(order, ","); got != "k1/flash,k1/pro,k1/pro,k2/flash" {
		t.Fatalf("unexpected attempt order %s", got)
	}
	if strings.Join(observed, ",") != "gemini/flash,gemini/pro" {
		t.Fatalf("unexpected observed failures %v", observed)
	}
}

func TestGenerateAggregatesFailuresWithMaskedCredentials(t *testing.T) {
	gen, err := New([]Backend{
		{Provider: "gemini", Credential: "AIzaSyAB-secret-1", Model: "flash", Generator: &backendFake{errs: []error{errors.New("quota exceeded")}}},
		{Provider: "gemini", Credential: "AIzaSyAB-secret-1", Model: "pro", Generator: &backendFake{errs: []error{errors.New("model not found")}}},
		{Provider: "openai", Credential: "sk-abcdefghijk", Model: "gpt-4o", Generator: &backendFake{errs: []error{errors.New("unauthorized")}}},
	}, testExecutor())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = gen.Chat(context.Background(), domain.ChatRequest{})
	var exhausted *domain.AllBackendsFailedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected AllBackendsFailedError, got %v", err)
	}
	if !errors.Is(err, domain.ErrAllBackendsFailed) {
		t.Fatalf("expected ErrAllBackendsFailed kind")
	}
	if exhausted.Operation != "chat" || len(exhausted.Failures) != 3 {
		t.Fatalf("unexpected failures %+v", exhausted)
	}

	grouped := exhausted.ByCredential()
	if len(grouped) != 2 {
		t.Fatalf("expected 2 credentials, got %v", grouped)
	}
	if grouped["AIzaSyAB***"]["pro"] != "model not found" || grouped["sk-abcde***"]["gpt-4o"] != "unauthorized" {
		t.Fatalf("unexpected grouping %v", grouped)
	}
	if strings.Contains(err.Error(), "secret") || strings.Contains(err.Error(), "fghijk") {
		t.Fatalf("raw credential leaked: %v", err)
	}
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &backendFake{errs: []error{context.Canceled}}
	second := &backendFake{reply: "never"}
	gen, _ := New([]Backend{
		{Provider: "gemini", Credential: "k", Model: "a", Generator: first},
		{Provider: "gemini", Credential: "k", Model: "b", Generator: second},
	}, testExecutor())

	cancel()
	_, err := gen.Generate(ctx, domain.GenerationRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if second.calls != 0 {
		t.Fatalf("no backend may run after cancellation")
	}
}

func TestNewRejectsEmptyCatalogAndClosesBackends(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
	backend := &backendFake{reply: "ok"}
	gen, err := New([]Backend{{Provider: "gemini", Credential: "k", Model: "m", Generator: backend}}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := gen.Close(); err != nil || !backend.closed {
		t.Fatalf("expected backend to be closed, err=%v", err)
	}
}
