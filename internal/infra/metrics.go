package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: сколько операций над заявками и с каким исходом
	// (success / declined / error)
	Transitions *prometheus.CounterVec

	// Latency: длительность операций сервиса, включая БД
	OperationDuration *prometheus.HistogramVec

	// Saturation: заполненность буфера аудита (backpressure)
	AuditBufferFill prometheus.Gauge

	// Errors: недоставленные уведомления (Redis недоступен или breaker открыт)
	NotifyFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — если регистр не передан, используем локальный,
	// который никуда не подключен (удобно в тестах)
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Transitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "getmoney_request_operations_total",
			Help: "Count of request operations by outcome.",
		}, []string{"operation", "outcome"}),

		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "getmoney_operation_duration_seconds",
			Help:    "Histogram of service operation latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "getmoney_audit_buffer_fill",
			Help: "Number of transition events waiting in the audit buffer.",
		}),

		NotifyFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "getmoney_notify_failures_total",
			Help: "Notifications that could not be delivered to Redis.",
		}),
	}
}
