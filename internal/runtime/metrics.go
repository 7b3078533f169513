package runtime

import (
	"net/http"
	"time"

	wmmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "callflow"

// serviceMetrics holds the Prometheus collectors of one service. A nil
// *serviceMetrics records nothing, which is how disabled metrics behave.
type serviceMetrics struct {
	gatherer prometheus.Gatherer
	pubsub   wmmetrics.PrometheusMetricsBuilder

	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	dropped      *prometheus.CounterVec
	handled      *prometheus.CounterVec
}

func newServiceMetrics(registerer prometheus.Registerer, pendingCalls func() int) (*serviceMetrics, error) {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if registerer == nil {
		registry := prometheus.NewRegistry()
		registerer, gatherer = registry, registry
	} else if g, ok := registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &serviceMetrics{
		gatherer: gatherer,
		pubsub:   wmmetrics.NewPrometheusMetricsBuilder(registerer, metricsNamespace, "pubsub"),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "calls_total",
			Help:      "Calls by request topic and outcome.",
		}, []string{"request_topic", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "call_duration_seconds",
			Help:      "Time from publishing a request until the call returned.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"request_topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replies_dropped_total",
			Help:      "Replies discarded by the response router.",
		}, []string{"topic", "reason"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_messages_total",
			Help:      "Messages processed by registered handlers.",
		}, []string{"handler", "topic", "result"}),
	}

	pending := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "pending_calls",
		Help:      "Calls waiting for a reply.",
	}, func() float64 { return float64(pendingCalls()) })

	for _, c := range []prometheus.Collector{m.calls, m.callDuration, m.dropped, m.handled, pending} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *serviceMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *serviceMetrics) decoratePublisher(pub message.Publisher) (message.Publisher, error) {
	if m == nil {
		return pub, nil
	}
	return m.pubsub.DecoratePublisher(pub)
}

func (m *serviceMetrics) decorateSubscriber(sub message.Subscriber) (message.Subscriber, error) {
	if m == nil {
		return sub, nil
	}
	return m.pubsub.DecorateSubscriber(sub)
}

func (m *serviceMetrics) callFinished(requestTopic, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(requestTopic, outcome).Inc()
	m.callDuration.WithLabelValues(requestTopic).Observe(duration.Seconds())
}

func (m *serviceMetrics) replyDropped(topic, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(topic, reason).Inc()
}

func (m *serviceMetrics) handlerFinished(handler, topic string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.handled.WithLabelValues(handler, topic, result).Inc()
}
