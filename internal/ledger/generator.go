package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for state transitions
type JournalGenerator struct {
	sequence int64
	tracker  *BalanceTracker // for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence: startSequence,
		tracker:  tracker,
	}
}

// SetSequence resets the generator sequence, used after snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}
}

func (jg *JournalGenerator) addJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateTopUp credits a user wallet from the external boundary.
// Moves funds: external:world -> user:wallet
func (jg *JournalGenerator) GenerateTopUp(
	user common.Address,
	assetID AssetID,
	amount int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewWalletKey(user, assetID),
		NewExternalKey(assetID),
		assetID, amount, JournalTypeTopUp)
	jg.sequence++
	return batch, nil
}

// GenerateReserveDeposit locks reserve collateral at contract creation.
// Pre-check: seller wallet must cover the amount.
// Moves funds: user:wallet -> contract:reserve
func (jg *JournalGenerator) GenerateReserveDeposit(
	seller common.Address,
	contractID uint64,
	assetID AssetID,
	amount int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	if err := jg.tracker.ValidateSufficientWallet(seller, assetID, amount); err != nil {
		return nil, fmt.Errorf("reserve deposit pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewReserveKey(contractID, assetID),
		NewWalletKey(seller, assetID),
		assetID, amount, JournalTypeReserveDeposit)
	jg.sequence++
	return batch, nil
}

// GenerateFeePayment pays the insurance fee from buyer to fee receiver.
// Pre-check: buyer wallet must cover the fee.
// Moves funds: buyer:wallet -> fee_receiver:wallet
func (jg *JournalGenerator) GenerateFeePayment(
	buyer common.Address,
	feeReceiver common.Address,
	assetID AssetID,
	fee int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	if err := jg.tracker.ValidateSufficientWallet(buyer, assetID, fee); err != nil {
		return nil, fmt.Errorf("fee payment pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewWalletKey(feeReceiver, assetID),
		NewWalletKey(buyer, assetID),
		assetID, fee, JournalTypeFeePayment)
	jg.sequence++
	return batch, nil
}

// GeneratePayoutRelease releases a triggered reserve to the external boundary
// for delivery to the beneficiary.
// Moves funds: contract:reserve -> external:world
func (jg *JournalGenerator) GeneratePayoutRelease(
	contractID uint64,
	assetID AssetID,
	amount int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	if jg.tracker.GetReserveBalance(contractID, assetID) < amount {
		return nil, fmt.Errorf("payout release pre-check failed: reserve below %d", amount)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewExternalKey(assetID),
		NewReserveKey(contractID, assetID),
		assetID, amount, JournalTypePayoutRelease)
	jg.sequence++
	return batch, nil
}

// GenerateReserveRefund returns an unsold or expired reserve to the external
// boundary for delivery back to the seller.
// Moves funds: contract:reserve -> external:world
func (jg *JournalGenerator) GenerateReserveRefund(
	contractID uint64,
	assetID AssetID,
	amount int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	if jg.tracker.GetReserveBalance(contractID, assetID) < amount {
		return nil, fmt.Errorf("reserve refund pre-check failed: reserve below %d", amount)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewExternalKey(assetID),
		NewReserveKey(contractID, assetID),
		assetID, amount, JournalTypeReserveRefund)
	jg.sequence++
	return batch, nil
}

// GenerateStrayIn books value received outside any operation.
// Moves funds: external:world -> system:stray
func (jg *JournalGenerator) GenerateStrayIn(
	assetID AssetID,
	amount int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewStrayKey(assetID),
		NewExternalKey(assetID),
		assetID, amount, JournalTypeStrayIn)
	jg.sequence++
	return batch, nil
}

// GenerateStrayRecovery sweeps stray surplus out to a destination.
// Pre-check: only the stray balance is recoverable, never contract reserves.
// Moves funds: system:stray -> external:world
func (jg *JournalGenerator) GenerateStrayRecovery(
	assetID AssetID,
	amount int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	if jg.tracker.StrayBalance(assetID) < amount {
		return nil, fmt.Errorf("stray recovery pre-check failed: stray balance below %d", amount)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewExternalKey(assetID),
		NewStrayKey(assetID),
		assetID, amount, JournalTypeStrayRecovery)
	jg.sequence++
	return batch, nil
}
