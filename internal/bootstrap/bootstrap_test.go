package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/dermafusion/internal/config"
	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/infrastructure/resilience"
)

func TestBuildBackendsKeepsCatalogOrder(t *testing.T) {
	cfg := config.Config{OllamaURL: "http://ollama:11434", OllamaEmbedModel: "bge-m3"}
	specs := []config.BackendSpec{
		{Provider: config.ProviderOpenAI, APIKey: "sk-test-1234567890", Model: "gpt-4o-mini"},
		{Provider: config.ProviderAnthropic, APIKey: "sk-ant-1234567890", Model: "claude-3-5-haiku-latest"},
		{Provider: config.ProviderOllama, Model: "llama3.1:8b"},
	}

	backends, err := buildBackends(t.Context(), cfg, specs)
	if err != nil {
		t.Fatalf("buildBackends() error = %v", err)
	}
	if len(backends) != 3 {
		t.Fatalf("expected 3 backends, got %d", len(backends))
	}
	for i, b := range backends {
		if b.Provider != specs[i].Provider || b.Model != specs[i].Model || b.Generator == nil {
			t.Fatalf("backend %d mismatch: %+v", i, b)
		}
	}
}

func TestBuildBackendsRejectsUnknownProvider(t *testing.T) {
	_, err := buildBackends(t.Context(), config.Config{}, []config.BackendSpec{{Provider: "mistral", Model: "m"}})
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestDiagnosisOptionsFromConfig(t *testing.T) {
	opts := diagnosisOptions(config.Config{
		ScoringStrategy: "frequency",
		TopLabels:       3,
		ShortlistBonus:  0.1,
		MatchMinScore:   75,
	})
	if opts.Strategy != domain.ScoringFrequency || opts.TopLabels != 3 || opts.ShortlistBonus != 0.1 || opts.MatchMinScore != 75 {
		t.Fatalf("unexpected options %+v", opts)
	}

	fallbackOpts := diagnosisOptions(config.Config{ScoringStrategy: "median"})
	if fallbackOpts.Strategy != domain.ScoringWeighted {
		t.Fatalf("unknown strategy must fall back to weighted, got %s", fallbackOpts.Strategy)
	}
}

func TestCloserStackRunsInReverse(t *testing.T) {
	var order []int
	var s closerStack
	s.push(func() { order = append(order, 1) })
	s.push(func() { order = append(order, 2) })
	s.run()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order %v", order)
	}
}

func TestResilienceConfigConvertsUnits(t *testing.T) {
	rc := resilienceConfig(config.Config{RetryInitialBackoffMS: 200, BreakerOpenTimeoutSec: 30, BreakerMinRequests: -1})
	if rc.RetryInitialBackoff.Milliseconds() != 200 || rc.BreakerOpenTimeout.Seconds() != 30 || rc.BreakerMinRequests != 0 {
		t.Fatalf("unexpected resilience config %+v", rc)
	}
}

func TestGenerativeResilienceConfigOverlaysProfile(t *testing.T) {
	rc := generativeResilienceConfig(config.Config{
		BreakerEnabled:                  true,
		GenerativeRetryMaxAttempts:      3,
		GenerativeBreakerOpenTimeoutSec: 0,
		GenerativeBreakerMinRequests:    -2,
	})
	if rc.RetryMaxAttempts != 3 {
		t.Fatalf("expected override of retry attempts, got %d", rc.RetryMaxAttempts)
	}
	if rc.RetryInitialBackoff != time.Second || rc.BreakerOpenTimeout != time.Minute || rc.BreakerMinRequests != 3 {
		t.Fatalf("unset values must come from the generative profile, got %+v", rc)
	}
	if !rc.BreakerEnabled {
		t.Fatalf("breaker switch must follow BREAKER_ENABLED")
	}
}

func TestBreakerStatesMergesExecutors(t *testing.T) {
	infra := resilience.NewExecutor(resilience.DefaultConfig())
	gen := resilience.NewExecutor(resilience.GenerativeConfig())
	ctx := context.Background()
	classify := func(error) resilience.ErrorClassification { return resilience.ErrorClassification{} }
	_ = infra.Execute(ctx, "nats.publish", func(context.Context) error { return nil }, classify)
	_ = gen.Execute(ctx, "gemini/AIza***/flash", func(context.Context) error { return nil }, classify)

	app := &App{executors: []*resilience.Executor{infra, gen}}
	states := app.BreakerStates()
	if len(states) != 2 || states["nats.publish"] != "closed" || states["gemini/AIza***/flash"] != "closed" {
		t.Fatalf("unexpected breaker states %v", states)
	}
}
