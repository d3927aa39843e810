// internal/event/whitelist.go
package event

import "github.com/ethereum/go-ethereum/common"

type BuyerWhitelisted struct {
	ID     uint64         `json:"contract_id"`
	Seller common.Address `json:"seller"`
	Buyer  common.Address `json:"buyer"`
}

func (e *BuyerWhitelisted) EventType() EventType { return EventTypeBuyerWhitelisted }
func (e *BuyerWhitelisted) ContractRef() *uint64 { return &e.ID }

type BuyerRemovedFromWhitelist struct {
	ID     uint64         `json:"contract_id"`
	Seller common.Address `json:"seller"`
	Buyer  common.Address `json:"buyer"`
}

func (e *BuyerRemovedFromWhitelist) EventType() EventType {
	return EventTypeBuyerRemovedFromWhitelist
}
func (e *BuyerRemovedFromWhitelist) ContractRef() *uint64 { return &e.ID }

// BatchWhitelistUpdate summarizes one bulk operation. Applied lists the
// addresses that changed membership; Skipped lists no-op entries.
type BatchWhitelistUpdate struct {
	ID      uint64           `json:"contract_id"`
	Seller  common.Address   `json:"seller"`
	Action  string           `json:"action"` // "add" or "remove"
	Applied []common.Address `json:"applied"`
	Skipped []common.Address `json:"skipped"`
}

func (e *BatchWhitelistUpdate) EventType() EventType { return EventTypeBatchWhitelistUpdate }
func (e *BatchWhitelistUpdate) ContractRef() *uint64 { return &e.ID }

type WhitelistModeChanged struct {
	ID      uint64         `json:"contract_id"`
	Seller  common.Address `json:"seller"`
	Enabled bool           `json:"enabled"`
}

func (e *WhitelistModeChanged) EventType() EventType { return EventTypeWhitelistModeChanged }
func (e *WhitelistModeChanged) ContractRef() *uint64 { return &e.ID }
