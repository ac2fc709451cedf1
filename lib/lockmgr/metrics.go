package lockmgr

import (
	"github.com/VictoriaMetrics/metrics"
)

// lockMetrics bundles the metrics of one lock table. Every table gets its own
// metrics.Set, so several managers can live in one process.
type lockMetrics struct {
	set *metrics.Set

	acquired  *metrics.Counter
	conflicts *metrics.Counter
	released  *metrics.Counter
	expired   *metrics.Counter

	acquireHookErrors *metrics.Counter
	releaseHookErrors *metrics.Counter
	expireHookErrors  *metrics.Counter

	acquireHookDuration *metrics.Histogram
	releaseHookDuration *metrics.Histogram
}

func newLockMetrics(t *lockTable) *lockMetrics {
	set := metrics.NewSet()
	m := &lockMetrics{
		set:       set,
		acquired:  set.NewCounter("hlock_acquired_total"),
		conflicts: set.NewCounter("hlock_conflicts_total"),
		released:  set.NewCounter("hlock_released_total"),
		expired:   set.NewCounter("hlock_expired_total"),

		acquireHookErrors: set.NewCounter(`hlock_hook_errors_total{hook="acquire"}`),
		releaseHookErrors: set.NewCounter(`hlock_hook_errors_total{hook="release"}`),
		expireHookErrors:  set.NewCounter(`hlock_hook_errors_total{hook="expire"}`),

		acquireHookDuration: set.NewHistogram(`hlock_hook_duration_seconds{hook="acquire"}`),
		releaseHookDuration: set.NewHistogram(`hlock_hook_duration_seconds{hook="release"}`),
	}

	// gauges are evaluated lazily when the set is written
	set.NewGauge("hlock_locks", func() float64 {
		locks, _ := t.count()
		return float64(locks)
	})
	set.NewGauge("hlock_keys", func() float64 {
		_, keys := t.count()
		return float64(keys)
	})
	return m
}
