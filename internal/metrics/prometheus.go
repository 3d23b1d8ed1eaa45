package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus records metrics into a prometheus.Registerer.
type Prometheus struct {
	events        *prometheus.CounterVec
	storageWrites *prometheus.CounterVec
	saves         *prometheus.CounterVec
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	dirty         prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videoplayer_events_total",
			Help: "Player events dispatched on the plugin bus",
		}, []string{"event"}),
		storageWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videoplayer_storage_writes_total",
			Help: "Cookie namespace persists by outcome",
		}, []string{"namespace", "ok"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videoplayer_save_requests_total",
			Help: "Save-state requests by transport policy and outcome",
		}, []string{"policy", "ok"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videostate_cache_hits_total",
			Help: "User-state reads served by a tier",
		}, []string{"tier"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videostate_cache_misses_total",
			Help: "User-state reads that fell through a tier",
		}, []string{"tier"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "videostate_op_duration_seconds",
			Help:    "User-state operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"tier", "op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videostate_errors_total",
			Help: "User-state operation errors",
		}, []string{"tier", "op"}),
		dirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "videostate_dirty_records",
			Help: "Playhead records waiting for write-behind flush",
		}),
	}
	reg.MustRegister(p.events, p.storageWrites, p.saves, p.hits, p.misses, p.latency, p.errors, p.dirty)
	return p
}

func (p *Prometheus) RecordEvent(event string) {
	p.events.WithLabelValues(event).Inc()
}

func (p *Prometheus) RecordStorageWrite(namespace string, ok bool) {
	p.storageWrites.WithLabelValues(namespace, strconv.FormatBool(ok)).Inc()
}

func (p *Prometheus) RecordSave(policy string, ok bool) {
	p.saves.WithLabelValues(policy, strconv.FormatBool(ok)).Inc()
}

func (p *Prometheus) RecordHit(tier string)  { p.hits.WithLabelValues(tier).Inc() }
func (p *Prometheus) RecordMiss(tier string) { p.misses.WithLabelValues(tier).Inc() }

func (p *Prometheus) RecordLatency(tier, op string, d time.Duration) {
	p.latency.WithLabelValues(tier, op).Observe(d.Seconds())
}

func (p *Prometheus) RecordError(tier, op string) {
	p.errors.WithLabelValues(tier, op).Inc()
}

func (p *Prometheus) RecordDirtyCount(count int64) {
	p.dirty.Set(float64(count))
}

var _ MetricsRecorder = (*Prometheus)(nil)
