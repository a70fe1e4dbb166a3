package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	noteOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notetree_note_operations_total",
		Help: "Note operations by operation and result",
	}, []string{"operation", "result"})

	// cascadeStepsTotal counts committed units inside protect and delete cascades.
	cascadeStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notetree_cascade_steps_total",
		Help: "Committed cascade steps by cascade type",
	}, []string{"cascade"})
)

func observe(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	noteOperationsTotal.WithLabelValues(operation, result).Inc()
}
