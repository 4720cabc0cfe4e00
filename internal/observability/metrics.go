package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are defined globally here, so every command initializes
// the full set with zero values even when it only exercises part of it.

// namespace defines the global prefix for all metrics (e.g., tally_...).
const namespace = "tally"

// lowLatencyBuckets covers cached evaluations, which are expected to resolve
// well below the standard 5ms first bucket. Range: 1ms to 500ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// CONTROL PLANE (HTTP)
	// -------------------------------------------------------------------------

	// ControlPlaneReqDuration measures the latency of HTTP requests.
	// Metric: tally_control_plane_http_handling_seconds
	ControlPlaneReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "control_plane",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in Control Plane",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// ControlPlaneReqTotal counts the total number of HTTP requests.
	// Metric: tally_control_plane_http_requests_total
	ControlPlaneReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control_plane",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in Control Plane",
	}, []string{"method", "route", "code"})

	// -------------------------------------------------------------------------
	// DATA PLANE (gRPC)
	// -------------------------------------------------------------------------

	// DataPlaneGrpcDuration measures the latency of gRPC evaluate requests.
	// Metric: tally_data_plane_grpc_handling_seconds
	DataPlaneGrpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "grpc_handling_seconds",
		Help:      "Time taken to handle gRPC evaluate requests",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	// DataPlaneGrpcTotal counts the total number of gRPC requests.
	// Metric: tally_data_plane_grpc_requests_total
	DataPlaneGrpcTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "grpc_requests_total",
		Help:      "Total gRPC evaluate requests",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// GRAPH (evaluation + incremental indices)
	// -------------------------------------------------------------------------

	// GraphEvaluationDuration measures root evaluations, cached or not.
	// Metric: tally_graph_evaluation_seconds
	GraphEvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "evaluation_seconds",
		Help:      "Time taken to evaluate a variable from the graph root",
		Buckets:   lowLatencyBuckets,
	}, []string{"kind"})

	// GraphIndexHits counts evaluations answered from a stored index.
	GraphIndexHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "index_hits_total",
		Help:      "Total variable evaluations served from a cached index",
	})

	GraphIndexMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "index_misses_total",
		Help:      "Total variable evaluations computed from records",
	})

	// GraphIncrementalActions counts index patches emitted by record mutations.
	GraphIncrementalActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "incremental_actions_total",
		Help:      "Total index patches applied in response to record mutations",
	}, []string{"action"}) // update, delete

	// GraphInvalidations counts dependent variables whose indices were dropped.
	GraphInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "invalidations_total",
		Help:      "Total dependent variables whose indices were invalidated",
	})

	// -------------------------------------------------------------------------
	// INDEX CACHE (L1 otter)
	// -------------------------------------------------------------------------

	IndexCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index_cache",
		Name:      "l1_hits_total",
		Help:      "Total L1 index cache hits (in-memory)",
	})

	IndexCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index_cache",
		Name:      "l1_misses_total",
		Help:      "Total L1 index cache misses",
	})

	// IndexCacheEvictions tracks items removed due to capacity pressure.
	IndexCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index_cache",
		Name:      "l1_evictions_total",
		Help:      "Total items evicted due to capacity or TTL",
	})

	// IndexCacheItems reports the current number of entries held by the L1.
	// Metric: tally_index_cache_l1_items_count
	IndexCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index_cache",
		Name:      "l1_items_count",
		Help:      "Current number of indices held in the L1 cache",
	})

	// IndexCacheDropped tracks writes the L1 rejected (e.g. buffer contention).
	IndexCacheDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index_cache",
		Name:      "l1_dropped_total",
		Help:      "Total L1 writes rejected by the cache",
	})

	// -------------------------------------------------------------------------
	// DATABASE CONNECTION POOL (pgx)
	// -------------------------------------------------------------------------

	// DatabasePoolConnections reports pool occupancy by state
	// (total, idle, in_use, max).
	// Metric: tally_database_pool_connections
	DatabasePoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Current number of database pool connections by state",
	}, []string{"state"})

	DatabasePoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Total successful connection acquisitions from the pool",
	})

	DatabasePoolAcquireDuration = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Total time spent acquiring connections from the pool",
	})

	// DatabasePoolWaitCount counts acquisitions that had to wait for a free connection.
	DatabasePoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Total acquisitions that waited for a connection",
	})

	// -------------------------------------------------------------------------
	// REDIS CONNECTION POOL
	// -------------------------------------------------------------------------

	// RedisPoolConnections reports pool occupancy by state (total, idle, stale).
	// Metric: tally_redis_pool_connections
	RedisPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_connections",
		Help:      "Current number of Redis pool connections by state",
	}, []string{"state"})

	RedisPoolHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_hits_total",
		Help:      "Total times a free connection was found in the pool",
	})

	RedisPoolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_misses_total",
		Help:      "Total times a new connection had to be dialed",
	})

	RedisPoolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_timeouts_total",
		Help:      "Total times waiting for a pool connection timed out",
	})

	// -------------------------------------------------------------------------
	// SYNCER (record event consumer)
	// -------------------------------------------------------------------------

	// SyncerJobDuration measures freshness (latency from publish to processed).
	// Metric: tally_syncer_job_processing_duration_seconds
	SyncerJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "job_processing_duration_seconds",
		Help:      "End-to-end latency from publish to processing finish",
		Buckets:   prometheus.DefBuckets,
	})

	SyncerJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "jobs_total",
		Help:      "Total record events processed",
	}, []string{"status"}) // success, fail, invalid

	RedisQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "redis_queue_depth",
		Help:      "Current number of items in the record event queue",
	})
)
