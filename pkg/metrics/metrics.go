package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lock request counter - one increment per requestLock call
	// labels: outcome (acquired/refreshed/takeover/conflict)
	// conflict = WORKFLOW_LOCKED returned without force
	LockRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowlock_lock_request_total",
			Help: "total number of lock requests by outcome",
		},
		[]string{"outcome"},
	)

	// lock release counter - explicit releases only
	// labels: outcome (released/denied)
	// expiry and disconnect releases are counted separately below
	LockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowlock_lock_release_total",
			Help: "total number of explicit lock releases by outcome",
		},
		[]string{"outcome"},
	)

	// locks dropped by the periodic expiry sweep
	// spikes indicate holders that stop refreshing (crashed tabs, lost
	// connections that never fired a disconnect)
	LockExpireTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowlock_lock_expire_total",
			Help: "total number of locks removed by the expiry sweep",
		},
	)

	// currently held locks - gauge, refreshed after every mutation
	LocksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowlock_locks_active",
			Help: "current number of live workflow locks",
		},
	)

	// currently active sessions - gauge, refreshed on maintenance
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowlock_sessions_active",
			Help: "current number of active user sessions",
		},
	)

	// sessions evicted by the inactivity sweep
	SessionEvictTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowlock_session_evict_total",
			Help: "total number of sessions evicted for inactivity",
		},
	)

	// edit request creation counter
	RequestCreateTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowlock_request_create_total",
			Help: "total number of edit requests created",
		},
	)

	// edit request settlement counter
	// labels: status (approved/denied/expired/cancelled)
	RequestSettleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowlock_request_settle_total",
			Help: "total number of edit requests settled by final status",
		},
		[]string{"status"},
	)

	// pending edit requests - gauge, refreshed on maintenance
	RequestsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowlock_requests_pending",
			Help: "current number of pending edit requests",
		},
	)

	// settled requests deleted by the retention sweep
	RequestPruneTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowlock_request_prune_total",
			Help: "total number of settled edit requests pruned by retention",
		},
	)

	// service uptime - always 1 when running
	// a scrape failure shows up as absence, which prometheus treats as down
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowlock_up",
			Help: "whether the service is up (always 1 when running)",
		},
	)
)

func init() {
	Up.Set(1)
}
