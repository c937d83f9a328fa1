package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolAlive = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "dispatch_pool_alive",
		Help: "1 if the dispatch pool is alive and accepting tasks",
	}, []string{"pool"})

	tasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "dispatch_tasks_submitted_total",
		Help: "The total number of tasks accepted by the pool",
	}, []string{"pool"})

	tasksDropped = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "dispatch_tasks_dropped_total",
		Help: "The total number of tasks dropped because the pool was closed or rejected them",
	}, []string{"pool"})
)
