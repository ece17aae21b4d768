package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "klimatik",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	ordersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "klimatik",
			Name:      "orders_created_total",
			Help:      "Orders created by kind.",
		},
		[]string{"kind"},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "klimatik",
			Name:      "order_status_transitions_total",
			Help:      "Order status transitions.",
		},
		[]string{"from", "to"},
	)

	sheetsSyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klimatik",
			Name:      "sheets_sync_failures_total",
			Help:      "Google Sheets sync tasks moved to dead letter.",
		},
	)
)

// Register регистрирует метрики. Повторные вызовы безопасны.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, ordersCreated, statusTransitions, sheetsSyncFailures)
	})
}

func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncOrderCreated(kind string) {
	ordersCreated.WithLabelValues(kind).Inc()
}

func IncStatusTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

func IncSheetsSyncFailure() {
	sheetsSyncFailures.Inc()
}
