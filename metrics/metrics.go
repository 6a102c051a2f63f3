package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger metrics
var (
	LedgerAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_ledger_appends_total",
			Help: "Ledger append attempts by category and outcome (accepted, duplicate, error)",
		},
		[]string{"category", "outcome"},
	)

	PointsCredited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_credited_total",
			Help: "Sum of points accepted into the ledger by category",
		},
		[]string{"category"},
	)
)

// Daily staking distribution metrics
var (
	DistributionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_staking_distribution_runs_total",
			Help: "Daily staking distribution runs by result",
		},
		[]string{"result"},
	)

	DistributionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "points_staking_distribution_duration_seconds",
		Help:    "Wall time of one daily staking distribution run",
		Buckets: prometheus.DefBuckets,
	})

	DistributionFailedWallets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_staking_distribution_failed_wallets_total",
		Help: "Wallets skipped by a distribution run because of an error",
	})
)

// External collaborator metrics
var (
	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_oracle_calls_total",
			Help: "Transaction status oracle calls by outcome",
		},
		[]string{"outcome"},
	)

	IndexerPositionsSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_indexer_positions_synced_total",
		Help: "Stake positions upserted from the balance indexer",
	})
)

// Read side metrics
var (
	LeaderboardCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_leaderboard_cache_total",
			Help: "Leaderboard ranking cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
)
