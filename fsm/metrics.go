package fsm

import (
	"crypto/sha1" //nolint:gosec // SHA1 used for non-cryptographic metric label hashing, not security
	"encoding/hex"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions with appropriate labels.
var (
	// transitionsTotal tracks executed transitions by machine and endpoint
	// states.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_transitions_total",
		Help: "Total number of executed transitions by machine, from state, and to state",
	}, []string{"machine", "from", "to"})

	// eventsTotal tracks fired events by outcome.
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_events_total",
		Help: "Total number of fired events by machine and outcome " +
			"(transitioned, consumed, defaulted, rejected, or failed)",
	}, []string{"machine", "outcome"})

	// timerFiresTotal tracks timer callback deliveries.
	timerFiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_timer_fires_total",
		Help: "Total number of timer callbacks by machine, timer kind, and outcome (fired or stale)",
	}, []string{"machine", "kind", "outcome"})

	// transitionDuration tracks the execution protocol end to end, including
	// handler, action, and listener callbacks.
	transitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsm_transition_duration_seconds",
		Help:    "Duration of transition execution by machine, callbacks included",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"machine"})
)

// Event outcome label values.
const (
	outcomeTransitioned = "transitioned"
	outcomeConsumed     = "consumed"
	outcomeDefaulted    = "defaulted"
	outcomeRejected     = "rejected"
	outcomeFailed       = "failed"

	outcomeFired = "fired"
	outcomeStale = "stale"
)

const maxLabelLen = 64

// sanitizeMachine keeps machine-name labels bounded.
func sanitizeMachine(name string) string {
	if name == "" {
		return "unknown"
	}

	return shortenLabel(name)
}

// stateLabel renders an opaque state or event value as a bounded label.
func stateLabel(v any) string {
	return shortenLabel(fmt.Sprint(v))
}

func shortenLabel(s string) string {
	if len(s) <= maxLabelLen {
		return s
	}

	hash := sha1.Sum([]byte(s)) //nolint:gosec // SHA1 used for non-cryptographic metric label hashing

	return hex.EncodeToString(hash[:])[:8]
}
