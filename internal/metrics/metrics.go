package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StockWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stock",
		Name:      "writes_total",
		Help:      "Absolute stock writes by store-of-record outcome.",
	}, []string{"outcome"})

	CacheAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stock",
		Name:      "cache_adjustments_total",
		Help:      "Per-product cache quantity adjustments applied.",
	}, []string{"operation"})

	Rehydrations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stock",
		Name:      "cache_rehydrations_total",
		Help:      "Full cache rehydrations from the store of record.",
	})

	RehydratedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stock",
		Name:      "cache_rehydrated_entries_total",
		Help:      "Cache entries written by rehydration.",
	})

	CacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stock",
		Name:      "cache_reads_total",
		Help:      "Stock reads by cache result.",
	}, []string{"result"})

	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stock",
		Name:      "failures_total",
		Help:      "Failed stock operations by target.",
	}, []string{"target"})
)
