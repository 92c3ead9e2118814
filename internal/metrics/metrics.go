// Package metrics 导入与聚合同步的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 入住记录同步结果
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// 聚合同步结果
const (
	AggregateWritten   = "written"
	AggregateUnchanged = "unchanged"
	AggregateCleared   = "cleared"
	AggregateFailed    = "failed"
)

// Metrics nil 时所有方法为空操作
type Metrics struct {
	IntakeRecords  *prometheus.CounterVec
	AggregateSyncs *prometheus.CounterVec
	StoreFailures  *prometheus.CounterVec
	ImportDuration prometheus.Histogram
}

// New 在给定 registerer 上注册指标；reg 为 nil 时使用默认 registry
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		IntakeRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wisefido_intake_records_total",
			Help: "Intake records produced from imported rows, by outcome",
		}, []string{"outcome"}),
		AggregateSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wisefido_aggregate_sync_total",
			Help: "Resident aggregate synchronizations, by outcome",
		}, []string{"outcome"}),
		StoreFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wisefido_store_failures_total",
			Help: "Best-effort store operations that failed and were skipped",
		}, []string{"op"}),
		ImportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wisefido_import_duration_seconds",
			Help:    "Duration of workbook imports",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) IntakeRecord(outcome string) {
	if m == nil {
		return
	}
	m.IntakeRecords.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AggregateSync(outcome string) {
	if m == nil {
		return
	}
	m.AggregateSyncs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StoreFailure(op string) {
	if m == nil {
		return
	}
	m.StoreFailures.WithLabelValues(op).Inc()
}

// ObserveImport 以开始时间记录导入耗时
func (m *Metrics) ObserveImport(start time.Time) {
	if m == nil {
		return
	}
	m.ImportDuration.Observe(time.Since(start).Seconds())
}
