package state

// AutomationPolicy is the global configuration and counters for the
// trigger automation scheduler.
type AutomationPolicy struct {
	Enabled         bool  `json:"enabled"`
	Paused          bool  `json:"paused"`
	GasLimit        int64 `json:"gas_limit"`         // per-run budget
	MaxBatchSize    int   `json:"max_batch_size"`    // hard ceiling on contracts checked per run
	CheckInterval   int64 `json:"check_interval"`    // seconds between runs, 0 disables rate limiting
	LastGlobalCheck int64 `json:"last_global_check"` // Unix seconds of last completed run
	TotalTriggered  int64 `json:"total_triggered"`
	TotalRuns       int64 `json:"total_runs"`
}

// DefaultAutomationPolicy mirrors the deploy-time defaults.
func DefaultAutomationPolicy() AutomationPolicy {
	return AutomationPolicy{
		Enabled:       true,
		GasLimit:      2_000_000,
		MaxBatchSize:  50,
		CheckInterval: 60,
	}
}

// RateLimited reports whether a run at now (Unix seconds) falls inside the
// cool-down since the last completed run. Interval zero disables the limit.
func (p *AutomationPolicy) RateLimited(nowSec int64) bool {
	if p.CheckInterval == 0 {
		return false
	}
	return nowSec-p.LastGlobalCheck < p.CheckInterval
}

// Runnable reports whether automation should do anything at all.
func (p *AutomationPolicy) Runnable() bool {
	return p.Enabled && !p.Paused
}
