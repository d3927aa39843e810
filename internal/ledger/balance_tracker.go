package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// ReverseBatch undoes a previously applied batch. Used when an external
// transfer fails after the journals were applied, so the operation stays
// all-or-nothing.
func (bt *BalanceTracker) ReverseBatch(batch *Batch) {
	for _, j := range batch.Journals {
		bt.balances[j.DebitAccount] -= j.Amount
		bt.balances[j.CreditAccount] += j.Amount
	}
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetWalletBalance returns a user wallet balance for an asset
func (bt *BalanceTracker) GetWalletBalance(user common.Address, assetID AssetID) int64 {
	return bt.GetBalance(NewWalletKey(user, assetID))
}

// GetReserveBalance returns the locked reserve for a contract
func (bt *BalanceTracker) GetReserveBalance(contractID uint64, assetID AssetID) int64 {
	return bt.GetBalance(NewReserveKey(contractID, assetID))
}

// StrayBalance returns the accumulated stray funds for an asset
func (bt *BalanceTracker) StrayBalance(assetID AssetID) int64 {
	return bt.GetBalance(NewStrayKey(assetID))
}

// AccountedReserves sums all contract reserve accounts per asset
func (bt *BalanceTracker) AccountedReserves() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		if key.Scope == AccountScopeContract && key.SubType == SubTypeReserve {
			totals[key.AssetID] += balance
		}
	}

	return totals
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateSufficientWallet checks if a user wallet covers the required amount
func (bt *BalanceTracker) ValidateSufficientWallet(user common.Address, assetID AssetID, required int64) error {
	available := bt.GetWalletBalance(user, assetID)
	if available < required {
		return fmt.Errorf("insufficient wallet balance: have=%d, need=%d", available, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances keyed by account path
func (bt *BalanceTracker) Snapshot() map[string]int64 {
	snapshot := make(map[string]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k.AccountPath()] = v
	}
	return snapshot
}

// Restore replaces all balances from a path-keyed snapshot
func (bt *BalanceTracker) Restore(snapshot map[string]int64) error {
	balances := make(map[AccountKey]int64, len(snapshot))
	for path, v := range snapshot {
		key, err := ParseAccountPath(path)
		if err != nil {
			return err
		}
		balances[key] = v
	}
	bt.balances = balances
	return nil
}
