// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package congestion

import (
	"sort"
	"sync"

	"github.com/luxfi/consensus-core/consensustx"
	"github.com/prometheus/client_golang/prometheus"
)

// Estimator is the per-authority rolling execution-cost estimator (spec
// §4.11): each authority periodically votes its own measured cost for a
// Move call target, and Estimate returns the median of the latest votes
// across authorities.
type Estimator struct {
	mu            sync.Mutex
	defaultMicros uint64
	perTarget     map[consensustx.MoveCallTarget]map[uint32]authorityEstimate

	selfObservations chan selfObservation
	droppedSelfObservations prometheus.Counter
}

type authorityEstimate struct {
	generation uint64
	micros     uint64
}

type selfObservation struct {
	target consensustx.MoveCallTarget
	micros uint64
}

// NewEstimator returns an estimator that falls back to defaultMicros for
// unknown targets and buffers up to selfChannelSize local measurements
// before dropping (spec §4.11: "overflow drops observations and
// increments a metric (never blocks execution)").
func NewEstimator(registerer prometheus.Registerer, defaultMicros uint64, selfChannelSize int) (*Estimator, error) {
	e := &Estimator{
		defaultMicros:    defaultMicros,
		perTarget:        make(map[consensustx.MoveCallTarget]map[uint32]authorityEstimate),
		selfObservations: make(chan selfObservation, selfChannelSize),
		droppedSelfObservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_time_estimator_dropped_self_observations",
			Help: "Number of local execution-time observations dropped because the self-observation channel was full",
		}),
	}
	if registerer != nil {
		if err := registerer.Register(e.droppedSelfObservations); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ProcessObservation incorporates one authority's vote, rejecting a
// generation older than or equal to one already on file for that
// (authority, target) pair (spec §4.11 "rejects stale generations").
func (e *Estimator) ProcessObservation(authorityIndex uint32, generation uint64, entries []consensustx.ExecutionTimeObservationEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ent := range entries {
		m, ok := e.perTarget[ent.Target]
		if !ok {
			m = make(map[uint32]authorityEstimate)
			e.perTarget[ent.Target] = m
		}
		if existing, ok := m[authorityIndex]; ok && generation <= existing.generation {
			continue
		}
		m[authorityIndex] = authorityEstimate{generation: generation, micros: ent.DurationMicros}
	}
}

// Estimate returns the median of the latest per-authority estimates for
// target, or the configured default if no authority has voted on it yet.
func (e *Estimator) Estimate(target consensustx.MoveCallTarget) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.perTarget[target]
	if !ok || len(m) == 0 {
		return e.defaultMicros
	}

	vals := make([]uint64, 0, len(m))
	for _, v := range m {
		vals = append(vals, v.micros)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	return vals[len(vals)/2]
}

// EstimateTx sums the per-target estimate across every Move call target
// tx invokes, the cost figure consumed by the ExecutionTimeEstimate
// congestion mode.
func (e *Estimator) EstimateTx(tx *consensustx.UserCertificate) uint64 {
	var total uint64
	for _, target := range tx.Targets {
		total += e.Estimate(target)
	}
	return total
}

// ObserveSelf feeds a local measurement into the bounded channel,
// dropping it and incrementing a metric on overflow rather than
// blocking the caller (spec §4.11).
func (e *Estimator) ObserveSelf(target consensustx.MoveCallTarget, micros uint64) {
	select {
	case e.selfObservations <- selfObservation{target: target, micros: micros}:
	default:
		e.droppedSelfObservations.Inc()
	}
}

// DrainSelf removes and returns every buffered local observation, for
// the caller to fold into the next ExecutionTimeObservation broadcast.
func (e *Estimator) DrainSelf() []consensustx.ExecutionTimeObservationEntry {
	var out []consensustx.ExecutionTimeObservationEntry
	for {
		select {
		case obs := <-e.selfObservations:
			out = append(out, consensustx.ExecutionTimeObservationEntry{Target: obs.target, DurationMicros: obs.micros})
		default:
			return out
		}
	}
}
