package automation

import (
	"CoverLedger/internal/oracle"
	"CoverLedger/internal/state"
)

// Gas cost model for one automation run. A check is a price comparison, a
// trigger is a full settlement, so the budget bounds both work and risk.
const (
	GasPerCheck   int64 = 30_000
	GasPerTrigger int64 = 240_000
)

// View is the read surface the scheduler scans. The core engine implements
// it; tests implement it with fixtures.
type View interface {
	// ActiveContracts returns purchased, untriggered contracts in ascending
	// id order.
	ActiveContracts() []*state.Contract

	// LatestPrice returns the last accepted price for a symbol.
	LatestPrice(symbol string) (oracle.PricePoint, bool)
}

// Result is the outcome of one pure scan. Probe never mutates anything;
// execution of the eligible set happens in the core afterwards.
type Result struct {
	Checked   int      // contracts examined this run
	Eligible  []uint64 // ids whose trigger condition held, ascending
	GasUsed   int64    // modeled cost of checks plus triggers
	Truncated bool     // scan stopped at batch or gas ceiling
}

// Probe scans active contracts in ascending id order, manual and auto-execute
// alike, and collects those whose payout condition currently holds. The scan
// stops at the batch ceiling, or as soon as the remaining gas budget could
// not cover one more check plus a worst-case trigger.
func Probe(view View, policy state.AutomationPolicy, nowSec int64) Result {
	var res Result

	for _, c := range view.ActiveContracts() {
		if res.Checked >= policy.MaxBatchSize {
			res.Truncated = true
			break
		}
		if res.GasUsed+GasPerCheck+GasPerTrigger > policy.GasLimit {
			res.Truncated = true
			break
		}

		if !c.Triggerable(nowSec) {
			continue
		}

		res.Checked++
		res.GasUsed += GasPerCheck

		price, ok := view.LatestPrice(c.TriggerSymbol)
		if !ok {
			continue
		}
		if price.Price <= c.TriggerPrice {
			res.Eligible = append(res.Eligible, c.ID)
			res.GasUsed += GasPerTrigger
		}
	}

	return res
}
