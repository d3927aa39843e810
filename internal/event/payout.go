// internal/event/payout.go
package event

import "github.com/ethereum/go-ethereum/common"

// PayoutTriggered records the oracle reading that satisfied the trigger
// condition, so the transition is auditable without re-querying the feed.
type PayoutTriggered struct {
	ID           uint64         `json:"contract_id"`
	Caller       common.Address `json:"caller"`
	TriggerPrice int64          `json:"trigger_price"` // 1e8 scale
	CurrentPrice int64          `json:"current_price"` // 1e8 scale
	AutoExecute  bool           `json:"auto_execute"`
}

func (e *PayoutTriggered) EventType() EventType { return EventTypePayoutTriggered }
func (e *PayoutTriggered) ContractRef() *uint64 { return &e.ID }

type PayoutClaimed struct {
	ID            uint64         `json:"contract_id"`
	Caller        common.Address `json:"caller"`
	Beneficiary   common.Address `json:"beneficiary"`
	ReserveSymbol string         `json:"reserve_symbol"`
	Amount        int64          `json:"amount"`
}

func (e *PayoutClaimed) EventType() EventType { return EventTypePayoutClaimed }
func (e *PayoutClaimed) ContractRef() *uint64 { return &e.ID }

type ReserveWithdrawn struct {
	ID            uint64         `json:"contract_id"`
	Seller        common.Address `json:"seller"`
	ReserveSymbol string         `json:"reserve_symbol"`
	Amount        int64          `json:"amount"`
}

func (e *ReserveWithdrawn) EventType() EventType { return EventTypeReserveWithdrawn }
func (e *ReserveWithdrawn) ContractRef() *uint64 { return &e.ID }
