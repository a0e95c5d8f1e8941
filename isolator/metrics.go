package isolator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "resilience_isolator_errors_total",
		Help: "The total number of recorded server errors, by category",
	}, []string{"server", "category"})

	quarantinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "resilience_isolator_quarantines_total",
		Help: "The total number of times a server was quarantined",
	}, []string{"server"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "resilience_isolator_rejected_total",
		Help: "The total number of calls refused because the server was quarantined",
	}, []string{"server"})

	quarantined = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "resilience_isolator_quarantined",
		Help: "1 if the server is quarantined",
	}, []string{"server"})
)
