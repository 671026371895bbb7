package inference

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PerformanceMetrics records timing and throughput for one operation, a page
// or a standalone image.
type PerformanceMetrics struct {
	TotalTime            float64 `json:"total_time"` // seconds
	TokensGenerated      int     `json:"tokens_generated"`
	TokensPerSecond      float64 `json:"tokens_per_second"`
	InputTokens          int     `json:"input_tokens"`
	TotalTokensProcessed int     `json:"total_tokens_processed"`
}

func (m PerformanceMetrics) String() string {
	return fmt.Sprintf("Total Time: %.2fs\nTokens Generated: %d\nThroughput: %.2f tokens/sec",
		m.TotalTime, m.TokensGenerated, m.TokensPerSecond)
}

// AggregateMetrics summarizes performance across multiple operations.
type AggregateMetrics struct {
	NumOperations        int     `json:"num_operations"`
	TotalTime            float64 `json:"total_time"`
	TotalTokensGenerated int     `json:"total_tokens_generated"`
	MinTime              float64 `json:"min_time"`
	MaxTime              float64 `json:"max_time"`
	AvgTime              float64 `json:"avg_time"`
	MinTokensPerSec      float64 `json:"min_tokens_per_sec"`
	MaxTokensPerSec      float64 `json:"max_tokens_per_sec"`
	AvgTokensPerSec      float64 `json:"avg_tokens_per_sec"`
	TotalInputTokens     int     `json:"total_input_tokens"`
	TotalTokensProcessed int     `json:"total_tokens_processed"`
}

func (a AggregateMetrics) String() string {
	var b strings.Builder
	sep := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "%s\nPERFORMANCE SUMMARY\n%s\n", sep, sep)
	fmt.Fprintf(&b, "Operations: %d\n", a.NumOperations)
	fmt.Fprintf(&b, "Total Time: %.2fs\n", a.TotalTime)
	fmt.Fprintf(&b, "Avg Time per Operation: %.2fs\n", a.AvgTime)
	fmt.Fprintf(&b, "Min Time: %.2fs\nMax Time: %.2fs\n\n", a.MinTime, a.MaxTime)
	fmt.Fprintf(&b, "Total Tokens Generated: %d\n", a.TotalTokensGenerated)
	fmt.Fprintf(&b, "Avg Tokens/sec: %.2f\n", a.AvgTokensPerSec)
	fmt.Fprintf(&b, "Min Tokens/sec: %.2f\nMax Tokens/sec: %.2f\n", a.MinTokensPerSec, a.MaxTokensPerSec)
	b.WriteString(sep)
	return b.String()
}

// trackerState is the timer state of a PerformanceTracker.
type trackerState int

const (
	trackerIdle trackerState = iota
	trackerRunning
)

// PerformanceTracker accumulates per-operation metrics. The embedded timer is
// a single slot: Start/End pairs must not interleave and the tracker is not
// safe for concurrent use.
type PerformanceTracker struct {
	metrics   []PerformanceMetrics
	state     trackerState
	startedAt time.Time
}

// NewPerformanceTracker returns an idle tracker with no recorded metrics.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{}
}

// Start begins timing an operation.
func (t *PerformanceTracker) Start() {
	t.state = trackerRunning
	t.startedAt = time.Now()
}

// End stops the running timer and records metrics for the operation. It fails
// when no operation is running.
func (t *PerformanceTracker) End(tokensGenerated, inputTokens int) (PerformanceMetrics, error) {
	if t.state != trackerRunning {
		return PerformanceMetrics{}, errors.New("performance tracker: End called without Start")
	}

	elapsed := time.Since(t.startedAt).Seconds()
	tokensPerSec := 0.0
	if elapsed > 0 {
		tokensPerSec = float64(tokensGenerated) / elapsed
	}

	m := PerformanceMetrics{
		TotalTime:            elapsed,
		TokensGenerated:      tokensGenerated,
		TokensPerSecond:      tokensPerSec,
		InputTokens:          inputTokens,
		TotalTokensProcessed: inputTokens + tokensGenerated,
	}

	t.metrics = append(t.metrics, m)
	t.state = trackerIdle
	return m, nil
}

// Record appends an externally measured sample.
func (t *PerformanceTracker) Record(m PerformanceMetrics) {
	t.metrics = append(t.metrics, m)
}

// Metrics returns the recorded samples in recording order.
func (t *PerformanceTracker) Metrics() []PerformanceMetrics {
	return t.metrics
}

// Aggregate computes summary statistics over all recorded operations. It
// fails when nothing has been recorded, since no meaningful average exists.
func (t *PerformanceTracker) Aggregate() (AggregateMetrics, error) {
	if len(t.metrics) == 0 {
		return AggregateMetrics{}, errors.New("performance tracker: no metrics recorded")
	}

	agg := AggregateMetrics{
		NumOperations:   len(t.metrics),
		MinTime:         t.metrics[0].TotalTime,
		MaxTime:         t.metrics[0].TotalTime,
		MinTokensPerSec: t.metrics[0].TokensPerSecond,
		MaxTokensPerSec: t.metrics[0].TokensPerSecond,
	}

	for _, m := range t.metrics {
		agg.TotalTime += m.TotalTime
		agg.TotalTokensGenerated += m.TokensGenerated
		agg.TotalInputTokens += m.InputTokens
		agg.TotalTokensProcessed += m.TotalTokensProcessed
		agg.AvgTokensPerSec += m.TokensPerSecond

		agg.MinTime = min(agg.MinTime, m.TotalTime)
		agg.MaxTime = max(agg.MaxTime, m.TotalTime)
		agg.MinTokensPerSec = min(agg.MinTokensPerSec, m.TokensPerSecond)
		agg.MaxTokensPerSec = max(agg.MaxTokensPerSec, m.TokensPerSecond)
	}

	agg.AvgTime = agg.TotalTime / float64(agg.NumOperations)
	agg.AvgTokensPerSec /= float64(agg.NumOperations)

	return agg, nil
}
