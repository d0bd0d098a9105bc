package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 1.5 }},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddress = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config rejected: %v", err)
	}
	if err := ProductionConfig().Validate(); err != nil {
		t.Errorf("production config rejected: %v", err)
	}
}

func TestLoggerContextRoundTrip(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("logger did not round-trip through the context")
	}
	// A bare context still yields a usable logger.
	FromContext(context.Background()).Debug("fallback logger works")
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordSolveStarted("gensys")
	m.RecordSolveCompleted("gensys", "ok", time.Second)
	m.RecordRegimeSolve("ok", time.Millisecond)
	m.RecordFailure("solve_failure")
	m.RecordBlend()
	m.RecordSplice("ok", time.Millisecond)
	m.RecordConditionCopy()
	m.RecordTransitionCopy()
	m.RecordStoreLookup("hit")
}

func TestEventDeliveryAndFiltering(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 16, EnableAsync: false})
	if err != nil {
		t.Fatalf("NewEventPublisher: %v", err)
	}

	var mu sync.Mutex
	var got []Event
	ep.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}, FilterByType(EventTypeSolveFailed))

	if err := ep.PublishSolveStarted("run-1", "ar1", "gensys"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := ep.PublishSolveFailed("run-1", "solve_failure", "no unique bounded solution", 2); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d events through the filter, want 1", len(got))
	}
	if got[0].Regime != 2 || got[0].Level != EventLevelError {
		t.Errorf("unexpected event: %+v", got[0])
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Error("publisher should stamp id and timestamp")
	}
}

func TestTelemetryBundle(t *testing.T) {
	cfg := DefaultConfig()
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Error("bundle did not round-trip through the context")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
