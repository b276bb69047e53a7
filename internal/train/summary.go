package train

import (
	"log/slog"
	"sync"
)

// Summary tags emitted by the training graph.
const (
	TagEntropyLoss     = "losses/entropy_loss"
	TagWeightDecayLoss = "losses/weight_decay_loss"
	TagTotalLoss       = "losses/total_loss"
	TagAccuracy        = "accuracy"
	TagEvalEntropyLoss = "eval/entropy_loss"
	TagEvalAccuracy    = "eval/accuracy"
)

// Summary receives named scalar values as training progresses.
type Summary interface {
	Scalar(tag string, step int64, value float64)
}

// LogSummary writes every scalar as a debug-level structured log line.
type LogSummary struct {
	logger *slog.Logger
}

// NewLogSummary creates a Summary backed by logger.
func NewLogSummary(logger *slog.Logger) *LogSummary {
	return &LogSummary{logger: logger}
}

// Scalar implements Summary.
func (s *LogSummary) Scalar(tag string, step int64, value float64) {
	s.logger.Debug("summary", "tag", tag, "step", step, "value", value)
}

// MemorySummary keeps the full history of every tag. It is safe for
// concurrent use.
type MemorySummary struct {
	mu     sync.Mutex
	series map[string][]Point
}

// Point is one recorded scalar.
type Point struct {
	Step  int64
	Value float64
}

// NewMemorySummary creates an empty MemorySummary.
func NewMemorySummary() *MemorySummary {
	return &MemorySummary{series: make(map[string][]Point)}
}

// Scalar implements Summary.
func (s *MemorySummary) Scalar(tag string, step int64, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[tag] = append(s.series[tag], Point{Step: step, Value: value})
}

// Series returns a copy of the points recorded under tag.
func (s *MemorySummary) Series(tag string) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Point(nil), s.series[tag]...)
}

// Tee fans scalars out to several sinks.
type Tee []Summary

// Scalar implements Summary.
func (t Tee) Scalar(tag string, step int64, value float64) {
	for _, s := range t {
		s.Scalar(tag, step, value)
	}
}
