// internal/event/automation.go
package event

import "github.com/ethereum/go-ethereum/common"

// AutomationExecuted is emitted for every automation run that reached the
// scan, including runs that triggered nothing. Rate-limited ticks set
// RateLimited and carry zero counters.
type AutomationExecuted struct {
	Checked        int   `json:"checked"`
	Eligible       int   `json:"eligible"`
	Triggered      int   `json:"triggered"`
	GasUsed        int64 `json:"gas_used"`
	RateLimited    bool  `json:"rate_limited"`
	TotalTriggered int64 `json:"total_triggered"`
	TotalRuns      int64 `json:"total_runs"`
}

func (e *AutomationExecuted) EventType() EventType { return EventTypeAutomationExecuted }
func (e *AutomationExecuted) ContractRef() *uint64 { return nil }

type AutomationConfigured struct {
	Admin         common.Address `json:"admin"`
	Enabled       bool           `json:"enabled"`
	Paused        bool           `json:"paused"`
	GasLimit      int64          `json:"gas_limit"`
	MaxBatchSize  int            `json:"max_batch_size"`
	CheckInterval int64          `json:"check_interval"` // seconds, 0 disables rate limiting
}

func (e *AutomationConfigured) EventType() EventType { return EventTypeAutomationConfigured }
func (e *AutomationConfigured) ContractRef() *uint64 { return nil }

// AssetRecovered records an admin sweep of stray surplus to a destination.
type AssetRecovered struct {
	Admin  common.Address `json:"admin"`
	To     common.Address `json:"to"`
	Symbol string         `json:"symbol"`
	Amount int64          `json:"amount"`
}

func (e *AssetRecovered) EventType() EventType { return EventTypeAssetRecovered }
func (e *AssetRecovered) ContractRef() *uint64 { return nil }
