// internal/event/contract.go
package event

import "github.com/ethereum/go-ethereum/common"

// ContractCreated carries the full initial record so indexers and replay can
// reconstruct the contract without re-querying state.
type ContractCreated struct {
	ID               uint64         `json:"contract_id"`
	Seller           common.Address `json:"seller"`
	FeeReceiver      common.Address `json:"fee_receiver"`
	TriggerSymbol    string         `json:"trigger_symbol"`
	TriggerPrice     int64          `json:"trigger_price"` // 1e8 scale
	StartDate        int64          `json:"start_date"`    // Unix seconds
	EndDate          int64          `json:"end_date"`
	ReserveToken     bool           `json:"reserve_is_token"`
	ReserveSymbol    string         `json:"reserve_symbol"`
	ReserveAmount    int64          `json:"reserve_amount"`
	InsuranceFee     int64          `json:"insurance_fee"`
	AutoExecute      bool           `json:"auto_execute"`
	WhitelistEnabled bool           `json:"whitelist_enabled"`
}

func (e *ContractCreated) EventType() EventType { return EventTypeContractCreated }
func (e *ContractCreated) ContractRef() *uint64 { return &e.ID }

type ContractPurchased struct {
	ID          uint64         `json:"contract_id"`
	Buyer       common.Address `json:"buyer"`
	Beneficiary common.Address `json:"beneficiary"`
	FeePaid     int64          `json:"fee_paid"`
	FeeReceiver common.Address `json:"fee_receiver"`
}

func (e *ContractPurchased) EventType() EventType { return EventTypeContractPurchased }
func (e *ContractPurchased) ContractRef() *uint64 { return &e.ID }

type BeneficiaryChanged struct {
	ID             uint64         `json:"contract_id"`
	Buyer          common.Address `json:"buyer"`
	OldBeneficiary common.Address `json:"old_beneficiary"`
	NewBeneficiary common.Address `json:"new_beneficiary"`
}

func (e *BeneficiaryChanged) EventType() EventType { return EventTypeBeneficiaryChanged }
func (e *BeneficiaryChanged) ContractRef() *uint64 { return &e.ID }

type FeeReceiverChanged struct {
	ID          uint64         `json:"contract_id"`
	Seller      common.Address `json:"seller"`
	OldReceiver common.Address `json:"old_receiver"`
	NewReceiver common.Address `json:"new_receiver"`
}

func (e *FeeReceiverChanged) EventType() EventType { return EventTypeFeeReceiverChanged }
func (e *FeeReceiverChanged) ContractRef() *uint64 { return &e.ID }
