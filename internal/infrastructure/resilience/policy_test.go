package resilience

import (
	"testing"
	"time"
)

func TestGenerativeConfigOpensSoonerThanDefault(t *testing.T) {
	def := DefaultConfig()
	gen := GenerativeConfig()

	if gen.BreakerMinRequests >= def.BreakerMinRequests {
		t.Fatalf("generative breaker must trip on fewer calls: %d vs %d", gen.BreakerMinRequests, def.BreakerMinRequests)
	}
	if gen.RetryInitialBackoff <= def.RetryInitialBackoff || gen.BreakerOpenTimeout <= def.BreakerOpenTimeout {
		t.Fatalf("generative profile must back off longer, got %+v", gen)
	}
	if gen.RetryMaxAttempts != 2 || gen.BreakerHalfOpenMaxCalls != 1 {
		t.Fatalf("unexpected generative profile %+v", gen)
	}
}

func TestWithDefaultsKeepsOverridesAndFillsGaps(t *testing.T) {
	cfg := Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 5 * time.Second,
		BreakerEnabled:      false,
		BreakerFailureRatio: 1.5,
	}.WithDefaults(GenerativeConfig())

	if cfg.RetryMaxAttempts != 4 || cfg.RetryInitialBackoff != 5*time.Second {
		t.Fatalf("overrides must be kept, got %+v", cfg)
	}
	if cfg.RetryMaxBackoff != 5*time.Second {
		t.Fatalf("max backoff must not fall below the initial backoff, got %v", cfg.RetryMaxBackoff)
	}
	if cfg.BreakerFailureRatio != 0.6 || cfg.BreakerMinRequests != 3 || cfg.BreakerOpenTimeout != time.Minute {
		t.Fatalf("gaps must come from the generative profile, got %+v", cfg)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("BreakerEnabled must not be overridden")
	}
}

func TestNormalizeUsesInfrastructureDefaults(t *testing.T) {
	cfg := Config{}.normalize()
	if cfg.RetryMaxAttempts != 3 || cfg.BreakerMinRequests != 10 || cfg.RetryInitialBackoff != 100*time.Millisecond {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
}
