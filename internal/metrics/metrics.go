// Package metrics holds the Prometheus collectors for batch execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"batchd/internal/engine"
	"batchd/internal/structured"
)

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "batchd",
			Subsystem: "batch",
			Name:      "ticks_total",
			Help:      "Total number of shared evaluation steps by decode result",
		},
		[]string{"result"},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "batchd",
			Subsystem: "batch",
			Name:      "tick_duration_seconds",
			Help:      "Duration of shared evaluation steps in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	tokensEvaluated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "batchd",
			Subsystem: "batch",
			Name:      "tokens_evaluated_total",
			Help:      "Tokens submitted to the engine in successful ticks",
		},
	)

	tokensSampled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "batchd",
			Subsystem: "pipeline",
			Name:      "tokens_sampled_total",
			Help:      "Tokens sampled for pipeline records",
		},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "batchd",
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "Record state transitions",
		},
		[]string{"from", "to"},
	)

	roundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "batchd",
			Subsystem: "pipeline",
			Name:      "rounds_total",
			Help:      "Completed pipeline rounds",
		},
	)

	structuredAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "batchd",
			Subsystem: "structured",
			Name:      "attempts_total",
			Help:      "Structured generation attempts by ask and outcome",
		},
		[]string{"ask", "outcome"},
	)

	kvCells = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "batchd",
			Subsystem: "cache",
			Name:      "cells_in_use",
			Help:      "KV cache cells in use after the last round",
		},
	)
)

func init() {
	prometheus.MustRegister(ticksTotal, tickDuration, tokensEvaluated, tokensSampled,
		transitionsTotal, roundsTotal, structuredAttempts, kvCells)
}

// ObserveTick matches batch.Options.OnTick.
func ObserveTick(res engine.DecodeResult, tokens int, d time.Duration) {
	ticksTotal.WithLabelValues(res.String()).Inc()
	tickDuration.Observe(d.Seconds())
	if res == engine.DecodeOK {
		tokensEvaluated.Add(float64(tokens))
	}
}

// ObserveAttempt matches structured.Options.OnAttempt.
func ObserveAttempt(a structured.Attempt) {
	outcome := "ok"
	if a.Err != nil {
		outcome = "rejected"
	}
	structuredAttempts.WithLabelValues(a.Name, outcome).Inc()
}

func ObserveTransition(from, to string) { transitionsTotal.WithLabelValues(from, to).Inc() }

func AddTokensSampled(n int) { tokensSampled.Add(float64(n)) }

func IncRounds() { roundsTotal.Inc() }

func SetKVCells(n int) { kvCells.Set(float64(n)) }
