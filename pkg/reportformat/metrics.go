package reportformat

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts lifecycle operations by result code
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportformat_operations_total",
		Help: "Report format lifecycle operations by operation and result code",
	}, []string{"operation", "result"})

	// generateDuration tracks generator run time
	generateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reportformat_generate_duration_seconds",
		Help:    "Report format generator duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"result"})

	feedSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportformat_feed_sync_total",
		Help: "Feed reconciliation runs by result",
	}, []string{"result"})

	trustTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportformat_trust_total",
		Help: "Signature verification outcomes by trust state",
	}, []string{"state"})
)

func observeOperation(op Operation, err error) {
	operationsTotal.WithLabelValues(string(op), strconv.Itoa(CodeOf(op, err))).Inc()
}

func observeGenerate(start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	generateDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
