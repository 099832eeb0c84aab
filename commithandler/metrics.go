// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commithandler

import "github.com/prometheus/client_golang/prometheus"

// metrics instruments one epoch's worth of HandleCommit calls, following
// the registration-at-construction pattern of congestion.NewEstimator.
type metrics struct {
	commitLatency   prometheus.Histogram
	txsScheduled    prometheus.Counter
	txsDeferred     prometheus.Counter
	txsCancelled    prometheus.Counter
	txsDropped      prometheus.Counter
	pendingDeferred prometheus.Gauge
	congestionDebt  prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commit_handler_commit_latency_seconds",
			Help:    "Wall-clock time to process one consensus commit end to end.",
			Buckets: prometheus.DefBuckets,
		}),
		txsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commit_handler_transactions_scheduled_total",
			Help: "Total transactions admitted for execution.",
		}),
		txsDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commit_handler_transactions_deferred_total",
			Help: "Total transactions postponed to a later commit.",
		}),
		txsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commit_handler_transactions_cancelled_total",
			Help: "Total transactions routed to execution with sentinel inputs.",
		}),
		txsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commit_handler_transactions_dropped_total",
			Help: "Total messages dropped as byzantine or no longer admissible.",
		}),
		pendingDeferred: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commit_handler_deferral_store_backlog",
			Help: "Number of transactions currently held in the deferral store.",
		}),
		congestionDebt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commit_handler_congestion_objects_over_budget",
			Help: "Number of distinct objects carrying nonzero congestion debt after the last commit.",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	collectors := []prometheus.Collector{
		m.commitLatency, m.txsScheduled, m.txsDeferred, m.txsCancelled,
		m.txsDropped, m.pendingDeferred, m.congestionDebt,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
