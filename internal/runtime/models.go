package runtime

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	errspkg "github.com/drblury/callflow/internal/runtime/errors"
)

const latencySampleSize = 256

// HandlerInfo describes a registered handler for introspection.
type HandlerInfo struct {
	Name          string        `json:"name"`
	Topic         string        `json:"topic"`
	ConsumerGroup string        `json:"consumer_group"`
	ReplyTopic    string        `json:"reply_topic,omitempty"`
	State         HandlerState  `json:"state"`
	Stats         StatsSnapshot `json:"stats"`
}

// ResponseSubscriptionInfo describes a live response-topic listener.
type ResponseSubscriptionInfo struct {
	Topic         string `json:"topic"`
	ConsumerGroup string `json:"consumer_group"`
	Pending       int    `json:"pending"`
}

func sortResponseInfos(infos []ResponseSubscriptionInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Topic < infos[j].Topic })
}

type ErrorCategory string

const (
	ErrorCategoryNone      ErrorCategory = "none"
	ErrorCategoryDecode    ErrorCategory = "decode"
	ErrorCategoryTransport ErrorCategory = "transport"
	ErrorCategoryPanic     ErrorCategory = "panic"
	ErrorCategoryTimeout   ErrorCategory = "timeout"
	ErrorCategoryHandler   ErrorCategory = "handler"
)

// ErrorClassifier buckets handler failures for stats.
type ErrorClassifier func(error) ErrorCategory

func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var (
		decodeErr *errspkg.DecodeError
		panicErr  middleware.RecoveredPanicError
	)
	switch {
	case errors.As(err, &decodeErr):
		return ErrorCategoryDecode
	case errors.As(err, &panicErr):
		return ErrorCategoryPanic
	case errspkg.IsTransport(err):
		return ErrorCategoryTransport
	case errspkg.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	}
	return ErrorCategoryHandler
}

// StatsSnapshot is a copy of HandlerStats safe to serialise.
type StatsSnapshot struct {
	MessagesProcessed uint64                   `json:"messages_processed"`
	MessagesFailed    uint64                   `json:"messages_failed"`
	RepliesPublished  uint64                   `json:"replies_published"`
	LastProcessedAt   time.Time                `json:"last_processed_at"`
	Latency           LatencyMetrics           `json:"latency"`
	Errors            map[ErrorCategory]uint64 `json:"errors,omitempty"`
	LastError         string                   `json:"last_error,omitempty"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

// HandlerStats accumulates per-handler counters. Safe for concurrent use.
type HandlerStats struct {
	mu sync.Mutex

	processed uint64
	failed    uint64
	replies   uint64
	totalNs   int64
	lastAt    time.Time
	errors    map[ErrorCategory]uint64
	lastError string
	latency   *latencyWindow
}

func newHandlerStats() *HandlerStats {
	return &HandlerStats{
		errors:  make(map[ErrorCategory]uint64),
		latency: newLatencyWindow(latencySampleSize),
	}
}

func (h *HandlerStats) record(duration time.Duration, err error, classifier ErrorClassifier) {
	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	category := classifier(err)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.processed++
	h.totalNs += int64(duration)
	h.lastAt = time.Now().UTC()
	h.latency.Add(duration)
	if err != nil {
		h.failed++
		h.errors[category]++
		h.lastError = err.Error()
	}
}

func (h *HandlerStats) replied() {
	h.mu.Lock()
	h.replies++
	h.mu.Unlock()
}

// Snapshot copies the current counters.
func (h *HandlerStats) Snapshot() StatsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := StatsSnapshot{
		MessagesProcessed: h.processed,
		MessagesFailed:    h.failed,
		RepliesPublished:  h.replies,
		LastProcessedAt:   h.lastAt,
		Latency:           h.latency.Snapshot(),
		LastError:         h.lastError,
	}
	if h.processed > 0 {
		snap.Latency.AverageNs = h.totalNs / int64(h.processed)
	}
	if len(h.errors) > 0 {
		snap.Errors = make(map[ErrorCategory]uint64, len(h.errors))
		for k, v := range h.errors {
			snap.Errors[k] = v
		}
	}
	return snap
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.SampleSize = lw.filled
	metrics.AverageNs = sum / int64(len(samples))
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	return metrics
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, quantile float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if quantile <= 0 {
		return sorted[0]
	}
	if quantile >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := quantile * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}
