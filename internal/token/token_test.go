package token

import (
	"strings"
	"testing"
)

func TestTrackerStatus(t *testing.T) {
	tr := NewTracker("test-model", 1000, 0.80, 0.95)

	if tr.Status() != StatusNormal {
		t.Errorf("fresh tracker should be normal, got %v", tr.Status())
	}

	tr.Add(800, 0.01)
	if tr.Status() != StatusWarning {
		t.Errorf("expected warning at 80%%, got %v", tr.Status())
	}
	if msg := tr.CheckThresholds(); !strings.Contains(msg, "Approaching limit") {
		t.Errorf("unexpected warning message: %q", msg)
	}

	tr.Add(150, 0.01)
	if tr.Status() != StatusCritical {
		t.Errorf("expected critical at 95%%, got %v", tr.Status())
	}
}

func TestTrackerSubtractClampsAtZero(t *testing.T) {
	tr := NewTracker("m", 1000, 0.8, 0.95)
	tr.Add(100, 0.5)
	tr.Subtract(500, 1.0)
	if tr.Consumed() != 0 {
		t.Errorf("consumed should clamp at zero, got %d", tr.Consumed())
	}
}

func TestTrackerSnapshotRoundTrip(t *testing.T) {
	tr := NewTracker("m1", 1000, 0.8, 0.95)
	tr.Add(123, 0.25)

	restored := NewTracker("m2", 2000, 0.8, 0.95)
	restored.Restore(tr.Snapshot())

	if restored.Consumed() != 123 {
		t.Errorf("expected 123 consumed, got %d", restored.Consumed())
	}
	if restored.ContextWindow() != 1000 {
		t.Errorf("expected restored window 1000, got %d", restored.ContextWindow())
	}
	if restored.Snapshot().ModelName != "m1" {
		t.Errorf("expected restored model name m1, got %q", restored.Snapshot().ModelName)
	}
}

func TestEstimateNeverNegative(t *testing.T) {
	if Estimate("") != 0 {
		t.Errorf("empty text should estimate 0 tokens")
	}
	if Estimate("hello world, this is a sentence") <= 0 {
		t.Errorf("non-empty text should estimate > 0 tokens")
	}
}
