package telemetry

import (
	"context"
	"testing"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := LogFetches
	Init()
	if LogFetches != first {
		t.Error("Init re-registered metrics")
	}
	if LogFetches == nil || SegmentWarnings == nil || CachedDaysGauge == nil {
		t.Error("metrics not initialized")
	}
}

func TestCountNilSafe(t *testing.T) {
	// Helpers must not panic before Init.
	Count(nil)
	Add(nil, 3)
	SetCachedDays(0)
	SegmentationWarning()
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
