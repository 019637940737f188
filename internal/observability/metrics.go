package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesMatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wireframe",
			Subsystem: "rx",
			Name:      "frames_matched_total",
			Help:      "Frames fully matched and emitted by the RX engine.",
		},
		[]string{"layout"},
	)
	resyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wireframe",
			Subsystem: "rx",
			Name:      "resync_total",
			Help:      "Times the RX engine reset its field cursor after a mismatch.",
		},
		[]string{"layout", "reason"},
	)
	crcMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wireframe",
			Subsystem: "rx",
			Name:      "crc_mismatch_total",
			Help:      "Frames dropped for a CRC field mismatch.",
		},
		[]string{"layout"},
	)
	snapshotDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wireframe",
			Subsystem: "endpoint",
			Name:      "snapshot_drops_total",
			Help:      "FrameSnapshots dropped from the bounded dispatch queue.",
		},
	)
	framesDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wireframe",
			Subsystem: "endpoint",
			Name:      "frames_dispatched_total",
			Help:      "FrameSnapshots handed to the receive callback or a pending Request.",
		},
	)
	txDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wireframe",
			Subsystem: "tx",
			Name:      "send_duration_seconds",
			Help:      "Time spent assembling and writing a TX frame.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"layout"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesMatched,
			resyncTotal,
			crcMismatches,
			snapshotDrops,
			framesDispatched,
			txDuration,
		)
	})
}

func RecordFrameMatched(layout string) {
	RegisterMetrics()
	framesMatched.WithLabelValues(layout).Inc()
}

func RecordResync(layout, reason string) {
	RegisterMetrics()
	resyncTotal.WithLabelValues(layout, reason).Inc()
}

func RecordCrcMismatch(layout string) {
	RegisterMetrics()
	crcMismatches.WithLabelValues(layout).Inc()
}

// RecordSnapshotDrop is called when the Endpoint's bounded dispatch
// queue overflows and the oldest pending FrameSnapshot is discarded.
func RecordSnapshotDrop() {
	RegisterMetrics()
	snapshotDrops.Inc()
}

// RecordFrameDispatched is called once per FrameSnapshot handed off to
// a receive callback or a pending Request.
func RecordFrameDispatched() {
	RegisterMetrics()
	framesDispatched.Inc()
}

func RecordTxDuration(layout string, d time.Duration) {
	RegisterMetrics()
	txDuration.WithLabelValues(layout).Observe(d.Seconds())
}
