package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/poiesic/colloquy/agent"
	"github.com/poiesic/colloquy/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMonitor records turns, retrievals, tool calls and ingestions.
// It implements agent.TurnMonitor.
type PrometheusMonitor struct {
	turns          *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	condensed      prometheus.Counter
	chunksReturned prometheus.Histogram
	toolCalls      *prometheus.CounterVec
	ingestions     *prometheus.CounterVec
	chunksIndexed  prometheus.Counter
}

var _ agent.TurnMonitor = (*PrometheusMonitor)(nil)

// NewPrometheusMonitor registers the collectors with reg.
func NewPrometheusMonitor(reg prometheus.Registerer) *PrometheusMonitor {
	f := promauto.With(reg)
	return &PrometheusMonitor{
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "colloquy_turns_total",
			Help: "Conversation turns by mode and outcome",
		}, []string{"mode", "outcome"}),
		turnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "colloquy_turn_duration_seconds",
			Help:    "Turn latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"mode"}),
		condensed: f.NewCounter(prometheus.CounterOpts{
			Name: "colloquy_condensed_questions_total",
			Help: "Questions rewritten or passed through before retrieval",
		}),
		chunksReturned: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "colloquy_retrieved_chunks",
			Help:    "Chunks retrieved per RAG turn",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "colloquy_tool_calls_total",
			Help: "Tool invocations by tool and outcome",
		}, []string{"tool", "outcome"}),
		ingestions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "colloquy_ingestions_total",
			Help: "File ingestions by kind and outcome",
		}, []string{"kind", "outcome"}),
		chunksIndexed: f.NewCounter(prometheus.CounterOpts{
			Name: "colloquy_chunks_indexed_total",
			Help: "Chunks merged into session indexes",
		}),
	}
}

func (m *PrometheusMonitor) Start(_ string, _ agent.Mode) {}

func (m *PrometheusMonitor) AfterCondense(_ string, _ string) {
	m.condensed.Inc()
}

func (m *PrometheusMonitor) AfterRetrieval(_ string, results []*core.SearchResult) {
	m.chunksReturned.Observe(float64(len(results)))
}

func (m *PrometheusMonitor) ToolInvoked(_ string, call core.ToolCall, result string) {
	outcome := "ok"
	if strings.HasPrefix(result, "error:") {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(call.Name, outcome).Inc()
}

func (m *PrometheusMonitor) Finish(_ string, mode agent.Mode, elapsed time.Duration, err error) {
	m.turns.WithLabelValues(mode.String(), outcome(err)).Inc()
	m.turnDuration.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
}

// Ingested records one file ingestion. chunks is the number of chunks merged
// into the index, zero for datasets.
func (m *PrometheusMonitor) Ingested(_ string, _ string, kind string, chunks int, err error) {
	m.ingestions.WithLabelValues(kind, outcome(err)).Inc()
	if err == nil && chunks > 0 {
		m.chunksIndexed.Add(float64(chunks))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, core.ErrGeneration):
		return "generation_error"
	case errors.Is(err, core.ErrEmbedding):
		return "embedding_error"
	case errors.Is(err, core.ErrToolExecution):
		return "tool_error"
	case errors.Is(err, core.ErrUnsupportedFormat), errors.Is(err, core.ErrParse):
		return "rejected"
	default:
		return "error"
	}
}
