package ledger_test

import (
	"CoverLedger/internal/ledger"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	seller = common.HexToAddress("0x1111111111111111111111111111111111111111")
	buyer  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	bene   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_WalletPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("AVAX")
	key := ledger.NewWalletKey(seller, assetID)

	path := key.AccountPath()
	expected := "user:0x1111111111111111111111111111111111111111:wallet:AVAX"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_ReservePath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("USDC")
	key := ledger.NewReserveKey(42, assetID)

	path := key.AccountPath()
	if path != "contract:42:reserve:USDC" {
		t.Errorf("got %q, want %q", path, "contract:42:reserve:USDC")
	}
}

func TestAccountKey_StrayPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("AVAX")
	key := ledger.NewStrayKey(assetID)

	if key.AccountPath() != "system:stray:AVAX" {
		t.Errorf("got %q", key.AccountPath())
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	assetID, _ := ledger.GetAssetID("USDC")
	keys := []ledger.AccountKey{
		ledger.NewWalletKey(buyer, assetID),
		ledger.NewReserveKey(7, assetID),
		ledger.NewStrayKey(assetID),
		ledger.NewExternalKey(assetID),
	}

	for _, key := range keys {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("ParseAccountPath(%q): %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Errorf("round trip mismatch for %q", key.AccountPath())
		}
	}
}

func TestParseAccountPath_Invalid(t *testing.T) {
	for _, path := range []string{"", "user:xyz", "contract:abc:reserve:USDC", "user:0x11:wallet:DOGE"} {
		if _, err := ledger.ParseAccountPath(path); err == nil {
			t.Errorf("ParseAccountPath(%q) should fail", path)
		}
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	assetID, _ := ledger.GetAssetID("AVAX")

	j := ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewWalletKey(seller, assetID),
		CreditAccount: ledger.NewExternalKey(assetID),
		AssetID:       assetID,
		Amount:        1_000_000,
	}

	bt.ApplyJournal(j)

	if got := bt.GetWalletBalance(seller, assetID); got != 1_000_000 {
		t.Errorf("wallet: got %d, want 1_000_000", got)
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("AVAX")

	topUp, _ := gen.GenerateTopUp(seller, assetID, 5_000_000, "k1", 0)
	if err := bt.ApplyBatch(topUp); err != nil {
		t.Fatalf("apply top-up: %v", err)
	}
	lock, err := gen.GenerateReserveDeposit(seller, 1, assetID, 3_000_000, "k2", 0)
	if err != nil {
		t.Fatalf("generate reserve deposit: %v", err)
	}
	if err := bt.ApplyBatch(lock); err != nil {
		t.Fatalf("apply reserve deposit: %v", err)
	}

	for asset, total := range bt.ComputeGlobalBalance() {
		if total != 0 {
			t.Errorf("asset %d global balance non-zero: %d", asset, total)
		}
	}
	if bt.GetWalletBalance(seller, assetID) != 2_000_000 {
		t.Errorf("seller wallet: got %d", bt.GetWalletBalance(seller, assetID))
	}
	if bt.GetReserveBalance(1, assetID) != 3_000_000 {
		t.Errorf("reserve: got %d", bt.GetReserveBalance(1, assetID))
	}
}

func TestBalanceTracker_ReverseBatch(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("USDC")

	topUp, _ := gen.GenerateTopUp(buyer, assetID, 100, "k1", 0)
	bt.ApplyBatch(topUp)
	bt.ReverseBatch(topUp)

	if got := bt.GetWalletBalance(buyer, assetID); got != 0 {
		t.Errorf("after reverse: got %d, want 0", got)
	}
}

func TestBalanceTracker_SnapshotRestore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("AVAX")

	topUp, _ := gen.GenerateTopUp(seller, assetID, 777, "k1", 0)
	bt.ApplyBatch(topUp)

	restored := ledger.NewBalanceTracker()
	if err := restored.Restore(bt.Snapshot()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.GetWalletBalance(seller, assetID) != 777 {
		t.Errorf("restored wallet: got %d", restored.GetWalletBalance(seller, assetID))
	}
	if restored.GetBalance(ledger.NewExternalKey(assetID)) != -777 {
		t.Errorf("restored external: got %d", restored.GetBalance(ledger.NewExternalKey(assetID)))
	}
}

// ============================================================================
// Test: JournalGenerator pre-checks
// ============================================================================

func TestGenerator_ReserveDepositInsufficientWallet(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("AVAX")

	_, err := gen.GenerateReserveDeposit(seller, 1, assetID, 100, "k1", 0)
	if err == nil {
		t.Fatal("expected pre-check failure on empty wallet")
	}
}

func TestGenerator_StrayRecoveryCapped(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("AVAX")

	stray, _ := gen.GenerateStrayIn(assetID, 50, "k1", 0)
	bt.ApplyBatch(stray)

	if _, err := gen.GenerateStrayRecovery(assetID, 51, "k2", 0); err == nil {
		t.Fatal("recovery above stray balance should fail")
	}
	if _, err := gen.GenerateStrayRecovery(assetID, 50, "k3", 0); err != nil {
		t.Fatalf("recovery at stray balance should pass: %v", err)
	}
}

// ============================================================================
// Test: Batch validation
// ============================================================================

func TestBatch_Validate_RejectsNonPositive(t *testing.T) {
	assetID, _ := ledger.GetAssetID("AVAX")
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.NewWalletKey(seller, assetID),
			CreditAccount: ledger.NewExternalKey(assetID),
			AssetID:       assetID,
			Amount:        0,
		}},
	}

	if err := batch.Validate(); err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatch_Validate_RejectsSelfTransfer(t *testing.T) {
	assetID, _ := ledger.GetAssetID("AVAX")
	batchID := uuid.New()
	key := ledger.NewWalletKey(seller, assetID)
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  key,
			CreditAccount: key,
			AssetID:       assetID,
			Amount:        10,
		}},
	}

	if err := batch.Validate(); err == nil {
		t.Error("self transfer should fail validation")
	}
}

// ============================================================================
// Test: Vault
// ============================================================================

func newTestVault(transferer ledger.Transferer) *ledger.Vault {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(1, bt)
	return ledger.NewVault(bt, gen, transferer)
}

func TestVault_ReleaseReserve_TransferFailureReverses(t *testing.T) {
	v := newTestVault(ledger.FailingTransferer{Err: errors.New("rpc down")})
	assetID, _ := ledger.GetAssetID("AVAX")

	v.TopUp(seller, assetID, 1_000, "k1", 0)
	if _, err := v.LockReserve(seller, 1, assetID, 1_000, "k2", 0); err != nil {
		t.Fatalf("LockReserve: %v", err)
	}

	_, err := v.ReleaseReserve(1, bene, assetID, 1_000, false, "k3", 0)
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("want ErrTransferFailed, got %v", err)
	}

	// reserve must be intact after the failed delivery
	if got := v.Tracker().GetReserveBalance(1, assetID); got != 1_000 {
		t.Errorf("reserve after failed release: got %d, want 1_000", got)
	}
	if err := v.Validator().ValidateGlobalBalance(); err != nil {
		t.Errorf("global balance: %v", err)
	}
}

func TestVault_ReleaseReserve_Succeeds(t *testing.T) {
	v := newTestVault(ledger.NoopTransferer{})
	assetID, _ := ledger.GetAssetID("USDC")

	v.TopUp(seller, assetID, 500, "k1", 0)
	v.LockReserve(seller, 2, assetID, 500, "k2", 0)

	if _, err := v.ReleaseReserve(2, bene, assetID, 500, false, "k3", 0); err != nil {
		t.Fatalf("ReleaseReserve: %v", err)
	}
	if got := v.Tracker().GetReserveBalance(2, assetID); got != 0 {
		t.Errorf("reserve after release: got %d, want 0", got)
	}
}

func TestVault_PayFee_InsufficientWallet(t *testing.T) {
	v := newTestVault(ledger.NoopTransferer{})
	assetID, _ := ledger.GetAssetID("AVAX")

	_, err := v.PayFee(buyer, seller, assetID, 10, "k1", 0)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
}

func TestVault_RecoverStray_NeverTouchesReserves(t *testing.T) {
	v := newTestVault(ledger.NoopTransferer{})
	assetID, _ := ledger.GetAssetID("AVAX")

	v.TopUp(seller, assetID, 300, "k1", 0)
	v.LockReserve(seller, 3, assetID, 300, "k2", 0)
	v.ReceiveStray(assetID, 25, "k3", 0)

	if _, err := v.RecoverStray(bene, assetID, 26, "k4", 0); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("over-recovery must fail, got %v", err)
	}
	if _, err := v.RecoverStray(bene, assetID, 25, "k5", 0); err != nil {
		t.Fatalf("RecoverStray: %v", err)
	}
	if got := v.Tracker().GetReserveBalance(3, assetID); got != 300 {
		t.Errorf("reserve touched by recovery: got %d", got)
	}
}
