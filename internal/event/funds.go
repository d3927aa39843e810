// internal/event/funds.go
package event

import "github.com/ethereum/go-ethereum/common"

// WalletFunded records an external deposit credited to a user wallet.
type WalletFunded struct {
	User   common.Address `json:"user"`
	Symbol string         `json:"symbol"`
	Amount int64          `json:"amount"`
}

func (e *WalletFunded) EventType() EventType { return EventTypeWalletFunded }
func (e *WalletFunded) ContractRef() *uint64 { return nil }

// StrayReceived records value sent to the system outside any operation,
// for example a bare native transfer. It accrues to the stray account and
// is only reachable through admin recovery.
type StrayReceived struct {
	From   common.Address `json:"from"`
	Symbol string         `json:"symbol"`
	Amount int64          `json:"amount"`
}

func (e *StrayReceived) EventType() EventType { return EventTypeStrayReceived }
func (e *StrayReceived) ContractRef() *uint64 { return nil }
