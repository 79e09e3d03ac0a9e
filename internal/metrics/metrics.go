package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pairwallet"

// Service records negotiation and dispatch metrics. A nil *Service is a no-op.
type Service struct {
	negotiations *prometheus.CounterVec
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	inFlight     prometheus.Gauge
	duplicates   prometheus.Counter
	dropped      *prometheus.CounterVec
}

// New registers the wallet metrics on reg, or on the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Service {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Service{
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiations_total",
			Help:      "Session negotiations by outcome",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Inbound request frames by method and outcome",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request arrival to response",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Request frames currently being handled",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_requests_total",
			Help:      "Request frames dropped because their id was already seen",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_responses_total",
			Help:      "Responses not sent because the session closed first",
		}, []string{"method"}),
	}

	reg.MustRegister(s.negotiations, s.requests, s.duration, s.inFlight, s.duplicates, s.dropped)

	return s
}

func (s *Service) ObserveNegotiation(outcome string) {
	if s == nil {
		return
	}
	s.negotiations.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

func (s *Service) RequestStarted() {
	if s == nil {
		return
	}
	s.inFlight.Inc()
}

// RequestFinished records the outcome of one request frame.
func (s *Service) RequestFinished(method string, outcome string, took time.Duration) {
	if s == nil {
		return
	}
	s.inFlight.Dec()
	s.requests.WithLabelValues(labelOrUnknown(method), labelOrUnknown(outcome)).Inc()
	s.duration.WithLabelValues(labelOrUnknown(method)).Observe(took.Seconds())
}

func (s *Service) DuplicateRequest() {
	if s == nil {
		return
	}
	s.duplicates.Inc()
}

func (s *Service) ResponseDropped(method string) {
	if s == nil {
		return
	}
	s.dropped.WithLabelValues(labelOrUnknown(method)).Inc()
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
