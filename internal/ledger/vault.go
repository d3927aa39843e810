package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransferFailed    = errors.New("external transfer failed")
	ErrReentrantCall     = errors.New("reentrant vault call")
)

// Vault is the custody layer. Every value movement goes through it: journals
// are applied first, then any external delivery runs, and a failed delivery
// reverses the journals so the operation is all-or-nothing.
type Vault struct {
	tracker    *BalanceTracker
	generator  *JournalGenerator
	validator  *InvariantValidator
	transferer Transferer

	// per-contract guard against nested releases
	busy map[uint64]bool
}

func NewVault(tracker *BalanceTracker, generator *JournalGenerator, transferer Transferer) *Vault {
	return &Vault{
		tracker:    tracker,
		generator:  generator,
		validator:  NewInvariantValidator(tracker),
		transferer: transferer,
		busy:       make(map[uint64]bool),
	}
}

func (v *Vault) Tracker() *BalanceTracker { return v.tracker }

func (v *Vault) Validator() *InvariantValidator { return v.validator }

// TopUp credits a user wallet from an external deposit.
func (v *Vault) TopUp(user common.Address, assetID AssetID, amount int64, eventRef string, timestamp int64) (*Batch, error) {
	batch, err := v.generator.GenerateTopUp(user, assetID, amount, eventRef, timestamp)
	if err != nil {
		return nil, err
	}
	if err := v.tracker.ApplyBatch(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// LockReserve moves collateral from the seller wallet into a contract reserve.
func (v *Vault) LockReserve(seller common.Address, contractID uint64, assetID AssetID, amount int64, eventRef string, timestamp int64) (*Batch, error) {
	batch, err := v.generator.GenerateReserveDeposit(seller, contractID, assetID, amount, eventRef, timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, err)
	}
	if err := v.tracker.ApplyBatch(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// PayFee moves the insurance fee from buyer to fee receiver. Internal
// wallet-to-wallet transfer, no external delivery.
func (v *Vault) PayFee(buyer, feeReceiver common.Address, assetID AssetID, fee int64, eventRef string, timestamp int64) (*Batch, error) {
	batch, err := v.generator.GenerateFeePayment(buyer, feeReceiver, assetID, fee, eventRef, timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, err)
	}
	if err := v.tracker.ApplyBatch(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// ReleaseReserve empties a contract reserve and delivers it to an external
// destination. The journals are applied before the delivery hook runs; if the
// hook fails the journals are reversed and ErrTransferFailed is returned.
func (v *Vault) ReleaseReserve(contractID uint64, to common.Address, assetID AssetID, amount int64, refund bool, eventRef string, timestamp int64) (*Batch, error) {
	if v.busy[contractID] {
		return nil, ErrReentrantCall
	}
	v.busy[contractID] = true
	defer delete(v.busy, contractID)

	var batch *Batch
	var err error
	if refund {
		batch, err = v.generator.GenerateReserveRefund(contractID, assetID, amount, eventRef, timestamp)
	} else {
		batch, err = v.generator.GeneratePayoutRelease(contractID, assetID, amount, eventRef, timestamp)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, err)
	}
	if err := v.tracker.ApplyBatch(batch); err != nil {
		return nil, err
	}

	if err := v.transferer.TransferOut(to, assetID, amount); err != nil {
		v.tracker.ReverseBatch(batch)
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}

	return batch, nil
}

// ReceiveStray books value received outside any operation.
func (v *Vault) ReceiveStray(assetID AssetID, amount int64, eventRef string, timestamp int64) (*Batch, error) {
	batch, err := v.generator.GenerateStrayIn(assetID, amount, eventRef, timestamp)
	if err != nil {
		return nil, err
	}
	if err := v.tracker.ApplyBatch(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// RecoverStray sweeps stray surplus to a destination. Contract reserves are
// never reachable through this path.
func (v *Vault) RecoverStray(to common.Address, assetID AssetID, amount int64, eventRef string, timestamp int64) (*Batch, error) {
	batch, err := v.generator.GenerateStrayRecovery(assetID, amount, eventRef, timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, err)
	}
	if err := v.tracker.ApplyBatch(batch); err != nil {
		return nil, err
	}

	if err := v.transferer.TransferOut(to, assetID, amount); err != nil {
		v.tracker.ReverseBatch(batch)
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}

	return batch, nil
}
