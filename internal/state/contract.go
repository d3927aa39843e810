package state

import (
	"CoverLedger/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the contract lifecycle state
type Status int32

const (
	StatusCreated Status = iota
	StatusActive
	StatusTriggered
	StatusClaimed
	StatusWithdrawn
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusActive:
		return "active"
	case StatusTriggered:
		return "triggered"
	case StatusClaimed:
		return "claimed"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

var validTransitions = map[Status][]Status{
	StatusCreated:   {StatusActive, StatusWithdrawn},
	StatusActive:    {StatusTriggered, StatusWithdrawn},
	StatusTriggered: {StatusClaimed},
	StatusClaimed:   {},
	StatusWithdrawn: {},
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
// Triggered contracts can only ever be claimed; the reserve is forfeited to
// the beneficiary and never becomes withdrawable again.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Contract is one parametric insurance agreement.
type Contract struct {
	ID uint64 `json:"id"`

	Seller      common.Address `json:"seller"`
	Buyer       common.Address `json:"buyer"` // zero until purchased
	Beneficiary common.Address `json:"beneficiary"`
	FeeReceiver common.Address `json:"fee_receiver"`

	TriggerSymbol string `json:"trigger_symbol"`
	TriggerPrice  int64  `json:"trigger_price"` // 1e8 scale

	StartDate int64 `json:"start_date"` // Unix seconds, inclusive
	EndDate   int64 `json:"end_date"`   // Unix seconds, inclusive

	ReserveIsToken bool   `json:"reserve_is_token"`
	ReserveSymbol  string `json:"reserve_symbol"`
	ReserveAmount  int64  `json:"reserve_amount"`
	InsuranceFee   int64  `json:"insurance_fee"`

	AutoExecute      bool `json:"auto_execute"`
	WhitelistEnabled bool `json:"whitelist_enabled"`

	Status Status `json:"status"`

	CreatedAt   int64 `json:"created_at"` // epoch micros
	PurchasedAt int64 `json:"purchased_at,omitempty"`
	TriggeredAt int64 `json:"triggered_at,omitempty"`
	ClaimedAt   int64 `json:"claimed_at,omitempty"`
	WithdrawnAt int64 `json:"withdrawn_at,omitempty"`

	// Price observed at the moment the trigger fired
	TriggerObservedPrice int64 `json:"trigger_observed_price,omitempty"`
}

// ReserveAsset resolves the reserve symbol to its asset ID.
func (c *Contract) ReserveAsset() (ledger.AssetID, bool) {
	return ledger.GetAssetID(c.ReserveSymbol)
}

// IsPurchased reports whether a buyer holds the coverage.
func (c *Contract) IsPurchased() bool {
	return c.Status == StatusActive || c.Status == StatusTriggered || c.Status == StatusClaimed
}

// InCoverageWindow reports whether now (Unix seconds) falls inside the
// coverage window, both bounds inclusive.
func (c *Contract) InCoverageWindow(nowSec int64) bool {
	return nowSec >= c.StartDate && nowSec <= c.EndDate
}

// IsExpired reports whether the coverage window has closed.
func (c *Contract) IsExpired(nowSec int64) bool {
	return nowSec > c.EndDate
}

// Purchasable reports whether a buyer may still purchase: only inside the
// coverage window, never twice.
func (c *Contract) Purchasable(nowSec int64) bool {
	return c.Status == StatusCreated && c.InCoverageWindow(nowSec)
}

// Triggerable reports whether the payout condition may be evaluated:
// purchased coverage inside the window.
func (c *Contract) Triggerable(nowSec int64) bool {
	return c.Status == StatusActive && c.InCoverageWindow(nowSec)
}

// Withdrawable reports whether the seller may reclaim the reserve. Only
// untriggered contracts past expiry qualify.
func (c *Contract) Withdrawable(nowSec int64) bool {
	return (c.Status == StatusCreated || c.Status == StatusActive) && c.IsExpired(nowSec)
}
