package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CIMISAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frostrisk_cimis_api_calls_total",
			Help: "Total CIMIS API calls",
		},
		[]string{"station", "status"},
	)

	CIMISAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "frostrisk_cimis_api_latency_seconds",
			Help:    "CIMIS API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"station"},
	)

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frostrisk_observations_ingested_total",
			Help: "Total hourly observations successfully ingested",
		},
		[]string{"station"},
	)

	AssessmentsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frostrisk_assessments_computed_total",
			Help: "Total frost-risk assessments computed, by headline risk level",
		},
		[]string{"risk_level"},
	)

	AssessmentErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frostrisk_assessment_errors_total",
			Help: "Total failed frost-risk assessments, by reason",
		},
		[]string{"reason"},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frostrisk_cache_hits_total",
			Help: "Assessment cache hits, including joins on in-flight computes",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frostrisk_cache_misses_total",
			Help: "Assessment cache misses that started a compute",
		},
	)
)
