// Package token tracks consumption against a model's context window and
// estimates token counts for outgoing content.
package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Status buckets usage against the configured thresholds.
type Status int

const (
	StatusNormal Status = iota
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Usage is a point-in-time snapshot of the tracker, used for display and
// session persistence.
type Usage struct {
	Consumed      int     `json:"consumed" yaml:"consumed"`
	ContextWindow int     `json:"context_window" yaml:"context_window"`
	EstimatedCost float64 `json:"estimated_cost" yaml:"estimated_cost"`
	ModelName     string  `json:"model_name" yaml:"model_name"`
}

// Ratio returns consumed/window, 0 for an unknown window.
func (u Usage) Ratio() float64 {
	if u.ContextWindow == 0 {
		return 0
	}
	return float64(u.Consumed) / float64(u.ContextWindow)
}

// Tracker accumulates token consumption for one session.
type Tracker struct {
	consumed      int
	estimatedCost float64
	modelName     string
	contextWindow int

	warningThreshold  float64
	criticalThreshold float64
}

// NewTracker creates a tracker for the given model. Thresholds are ratios
// in (0,1]; typical values are 0.80 and 0.95.
func NewTracker(modelName string, contextWindow int, warnAt, criticalAt float64) *Tracker {
	if contextWindow <= 0 {
		contextWindow = 128000
	}
	return &Tracker{
		modelName:         modelName,
		contextWindow:     contextWindow,
		warningThreshold:  warnAt,
		criticalThreshold: criticalAt,
	}
}

// Add records consumed tokens and their cost.
func (t *Tracker) Add(tokens int, cost float64) {
	t.consumed += tokens
	t.estimatedCost += cost
}

// Subtract removes consumed tokens, e.g. when rewinding a conversation.
func (t *Tracker) Subtract(tokens int, cost float64) {
	t.consumed -= tokens
	if t.consumed < 0 {
		t.consumed = 0
	}
	t.estimatedCost -= cost
	if t.estimatedCost < 0 {
		t.estimatedCost = 0
	}
}

// Reset zeroes the tracker.
func (t *Tracker) Reset() {
	t.consumed = 0
	t.estimatedCost = 0
}

// SwitchModel changes the model and its context window, keeping consumption.
func (t *Tracker) SwitchModel(modelName string, contextWindow int) {
	t.modelName = modelName
	if contextWindow > 0 {
		t.contextWindow = contextWindow
	}
}

func (t *Tracker) Consumed() int      { return t.consumed }
func (t *Tracker) ContextWindow() int { return t.contextWindow }

// Ratio returns the fraction of the context window consumed.
func (t *Tracker) Ratio() float64 {
	if t.contextWindow == 0 {
		return 0
	}
	return float64(t.consumed) / float64(t.contextWindow)
}

// Status reports normal, warning or critical against the thresholds.
func (t *Tracker) Status() Status {
	ratio := t.Ratio()
	switch {
	case ratio >= t.criticalThreshold:
		return StatusCritical
	case ratio >= t.warningThreshold:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// CheckThresholds returns a user-facing warning when a threshold is crossed,
// or the empty string.
func (t *Tracker) CheckThresholds() string {
	switch t.Status() {
	case StatusCritical:
		return fmt.Sprintf("Context usage at %.0f%%. Consider /clear or /compact to free context.", t.Ratio()*100)
	case StatusWarning:
		return fmt.Sprintf("Context usage at %.0f%%. Approaching limit.", t.Ratio()*100)
	}
	return ""
}

// Snapshot returns the current usage for display or persistence.
func (t *Tracker) Snapshot() Usage {
	return Usage{
		Consumed:      t.consumed,
		ContextWindow: t.contextWindow,
		EstimatedCost: t.estimatedCost,
		ModelName:     t.modelName,
	}
}

// Restore loads a persisted usage snapshot into the tracker.
func (t *Tracker) Restore(u Usage) {
	t.consumed = u.Consumed
	t.estimatedCost = u.EstimatedCost
	if u.ModelName != "" {
		t.modelName = u.ModelName
	}
	if u.ContextWindow > 0 {
		t.contextWindow = u.ContextWindow
	}
}

const estimateEncoding = "cl100k_base"

// Estimate counts tokens in text with the cl100k_base encoding, falling
// back to a bytes/4 heuristic when the encoder is unavailable (e.g. no
// network to fetch the BPE ranks).
func Estimate(text string) int {
	enc, err := tiktoken.GetEncoding(estimateEncoding)
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
