package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the ledger is zero-sum per asset
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}

// ValidateReserveBacking verifies a contract reserve holds exactly the
// expected locked amount.
func (v *InvariantValidator) ValidateReserveBacking(contractID uint64, assetID AssetID, expected int64) error {
	reserve := v.tracker.GetReserveBalance(contractID, assetID)
	if reserve != expected {
		return fmt.Errorf("contract %d reserve mismatch: have=%d, want=%d", contractID, reserve, expected)
	}
	return nil
}

// ValidateWalletNonNegative checks a user wallet never goes negative
func (v *InvariantValidator) ValidateWalletNonNegative(user common.Address, assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewWalletKey(user, assetID))
}

// ValidateStrayNonNegative checks the stray account never goes negative
func (v *InvariantValidator) ValidateStrayNonNegative(assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewStrayKey(assetID))
}
