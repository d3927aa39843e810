package core_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/oracle"
	"CoverLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	seller = common.HexToAddress("0x1111111111111111111111111111111111111111")
	buyer  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	bene   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	rando  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

type testHarness struct {
	engine  *core.Engine
	persist chan core.Output
	publish chan core.Output
	now     time.Time
}

func newTestEngine(t *testing.T, transferer ledger.Transferer) *testHarness {
	t.Helper()

	persist := make(chan core.Output, 256)
	publish := make(chan core.Output, 256)

	policy := state.DefaultAutomationPolicy()
	policy.CheckInterval = 0 // no rate limiting unless a test asks for it

	engine := core.NewEngine(core.Config{
		StartSequence: 1,
		Admin:         admin,
		OracleMode:    oracle.ModeTest,
		Policy:        policy,
		Transferer:    transferer,
		PersistChan:   persist,
		PublishChan:   publish,
	})

	return &testHarness{
		engine:  engine,
		persist: persist,
		publish: publish,
		now:     time.Unix(1_700_000_000, 0),
	}
}

func (h *testHarness) drainOutputs() []core.Output {
	outputs := make([]core.Output, 0)
	for {
		select {
		case out := <-h.persist:
			outputs = append(outputs, out)
		default:
			return outputs
		}
	}
}

func (h *testHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// createFunded stands up a funded seller and one open contract.
func (h *testHarness) createFunded(t *testing.T, autoExecute, whitelist bool) uint64 {
	t.Helper()

	if err := h.engine.FundWallet(seller, "AVAX", 10_000_000, "fund-seller", h.now); err != nil {
		t.Fatalf("FundWallet(seller): %v", err)
	}
	id, err := h.engine.CreateContract(core.CreateParams{
		Seller:        seller,
		TriggerSymbol: "AVAX",
		TriggerPrice:  20_00000000,
		StartDate:     h.now.Unix() - 10,
		EndDate:       h.now.Unix() + 1_000,
		ReserveSymbol: "AVAX",
		ReserveAmount: 1_000_000,
		InsuranceFee:  50_000,
		AutoExecute:   autoExecute,
		Whitelist:     whitelist,
	}, "create-1", h.now)
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	return id
}

func (h *testHarness) purchase(t *testing.T, id uint64) {
	t.Helper()
	if err := h.engine.FundWallet(buyer, "AVAX", 1_000_000, "fund-buyer", h.now); err != nil {
		t.Fatalf("FundWallet(buyer): %v", err)
	}
	if err := h.engine.PurchaseInsurance(buyer, id, bene, 50_000, "purchase-1", h.now); err != nil {
		t.Fatalf("PurchaseInsurance: %v", err)
	}
}

func (h *testHarness) setPrice(t *testing.T, price int64) {
	t.Helper()
	if err := h.engine.SetTestPrice(admin, "AVAX", price, "", h.now); err != nil {
		t.Fatalf("SetTestPrice: %v", err)
	}
}

func (h *testHarness) status(t *testing.T, id uint64) state.Status {
	t.Helper()
	c, err := h.engine.GetContract(id)
	if err != nil {
		t.Fatalf("GetContract(%d): %v", id, err)
	}
	return c.Status
}

// ============================================================================
// Scenario: full manual lifecycle
// ============================================================================

func TestLifecycle_CreatePurchaseTriggerClaim(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, false)
	h.purchase(t, id)

	// fee moved buyer -> seller (seller is default fee receiver)
	buyerBal, _ := h.engine.WalletBalance(buyer, "AVAX")
	if buyerBal != 950_000 {
		t.Errorf("buyer wallet after fee: got %d, want 950_000", buyerBal)
	}
	sellerBal, _ := h.engine.WalletBalance(seller, "AVAX")
	if sellerBal != 9_050_000 {
		t.Errorf("seller wallet after fee: got %d, want 9_050_000", sellerBal)
	}

	// condition not met yet
	h.setPrice(t, 25_00000000)
	err := h.engine.TriggerPayout(rando, id, "trig-early", h.now)
	if !core.IsKind(err, core.KindValidation) {
		t.Fatalf("trigger above price should be a validation rejection, got %v", err)
	}

	// price at the trigger boundary fires (condition is <=)
	h.setPrice(t, 20_00000000)
	if err := h.engine.TriggerPayout(rando, id, "trig-1", h.now); err != nil {
		t.Fatalf("TriggerPayout: %v", err)
	}
	if h.status(t, id) != state.StatusTriggered {
		t.Fatalf("status after trigger: %s", h.status(t, id))
	}

	// claim is permissionless, payout goes to the beneficiary
	if err := h.engine.ClaimPayout(rando, id, "claim-1", h.now); err != nil {
		t.Fatalf("ClaimPayout: %v", err)
	}
	if h.status(t, id) != state.StatusClaimed {
		t.Fatalf("status after claim: %s", h.status(t, id))
	}

	outputs := h.drainOutputs()
	last := outputs[len(outputs)-1]
	if last.Envelope.EventType != event.EventTypePayoutClaimed {
		t.Errorf("last event: got %s", last.Envelope.EventType)
	}

	// double claim is a conflict
	err = h.engine.ClaimPayout(rando, id, "claim-2", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Errorf("double claim: got %v", err)
	}

	h.engine.ValidateInvariants()
}

func TestLifecycle_TokenReserveFeePaidInNativeCoin(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	if err := h.engine.FundWallet(seller, "USDC", 2_000_000, "fund-seller-usdc", h.now); err != nil {
		t.Fatalf("FundWallet(seller): %v", err)
	}
	id, err := h.engine.CreateContract(core.CreateParams{
		Seller:        seller,
		TriggerSymbol: "AVAX",
		TriggerPrice:  20_00000000,
		StartDate:     h.now.Unix() - 10,
		EndDate:       h.now.Unix() + 1_000,
		ReserveSymbol: "USDC",
		ReserveAmount: 1_000_000,
		InsuranceFee:  50_000,
	}, "create-usdc", h.now)
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}

	// the buyer holds only the native coin; the fee never touches USDC
	if err := h.engine.FundWallet(buyer, "AVAX", 100_000, "fund-buyer", h.now); err != nil {
		t.Fatalf("FundWallet(buyer): %v", err)
	}
	if err := h.engine.PurchaseInsurance(buyer, id, bene, 50_000, "p-usdc", h.now); err != nil {
		t.Fatalf("PurchaseInsurance: %v", err)
	}

	buyerAvax, _ := h.engine.WalletBalance(buyer, "AVAX")
	if buyerAvax != 50_000 {
		t.Errorf("buyer native wallet after fee: got %d, want 50_000", buyerAvax)
	}
	sellerAvax, _ := h.engine.WalletBalance(seller, "AVAX")
	if sellerAvax != 50_000 {
		t.Errorf("fee receiver native wallet: got %d, want 50_000", sellerAvax)
	}
	buyerUsdc, _ := h.engine.WalletBalance(buyer, "USDC")
	if buyerUsdc != 0 {
		t.Errorf("buyer USDC wallet must be untouched: got %d", buyerUsdc)
	}

	// the payout itself stays in the reserve asset
	h.setPrice(t, 1_00000000)
	if err := h.engine.TriggerPayout(rando, id, "trig", h.now); err != nil {
		t.Fatalf("TriggerPayout: %v", err)
	}
	if err := h.engine.ClaimPayout(rando, id, "claim", h.now); err != nil {
		t.Fatalf("ClaimPayout: %v", err)
	}
	beneUsdc, _ := h.engine.WalletBalance(bene, "USDC")
	if beneUsdc != 1_000_000 {
		t.Errorf("beneficiary USDC wallet: got %d, want 1_000_000", beneUsdc)
	}

	h.engine.ValidateInvariants()
}

func TestPurchase_ExactFeeOnly(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, false)
	h.engine.FundWallet(buyer, "AVAX", 1_000_000, "fund-buyer", h.now)

	// overpayment is rejected, not refunded
	err := h.engine.PurchaseInsurance(buyer, id, bene, 50_001, "p-over", h.now)
	if !core.IsKind(err, core.KindValidation) {
		t.Fatalf("overpay: got %v", err)
	}
	err = h.engine.PurchaseInsurance(buyer, id, bene, 49_999, "p-under", h.now)
	if !core.IsKind(err, core.KindValidation) {
		t.Fatalf("underpay: got %v", err)
	}

	if err := h.engine.PurchaseInsurance(buyer, id, bene, 50_000, "p-exact", h.now); err != nil {
		t.Fatalf("exact fee purchase: %v", err)
	}

	// second purchase is a conflict
	err = h.engine.PurchaseInsurance(rando, id, rando, 50_000, "p-again", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Errorf("re-purchase: got %v", err)
	}
}

func TestPurchase_SellerCannotBuyOwnContract(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, false)

	err := h.engine.PurchaseInsurance(seller, id, seller, 50_000, "p-self", h.now)
	if !core.IsKind(err, core.KindAuthorization) {
		t.Errorf("self purchase: got %v", err)
	}
}

func TestPurchase_BeforeWindowOpens(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	if err := h.engine.FundWallet(seller, "AVAX", 10_000_000, "fund-seller", h.now); err != nil {
		t.Fatalf("FundWallet(seller): %v", err)
	}
	id, err := h.engine.CreateContract(core.CreateParams{
		Seller:        seller,
		TriggerSymbol: "AVAX",
		TriggerPrice:  20_00000000,
		StartDate:     h.now.Unix() + 100,
		EndDate:       h.now.Unix() + 1_000,
		ReserveSymbol: "AVAX",
		ReserveAmount: 1_000_000,
		InsuranceFee:  50_000,
	}, "create-future", h.now)
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	if err := h.engine.FundWallet(buyer, "AVAX", 1_000_000, "fund-buyer", h.now); err != nil {
		t.Fatalf("FundWallet(buyer): %v", err)
	}

	err = h.engine.PurchaseInsurance(buyer, id, bene, 50_000, "p-early", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Fatalf("purchase before window start: got %v", err)
	}

	// once the window opens the same purchase goes through
	h.advance(100 * time.Second)
	if err := h.engine.PurchaseInsurance(buyer, id, bene, 50_000, "p-open", h.now); err != nil {
		t.Fatalf("purchase at window start: %v", err)
	}
}

// ============================================================================
// Scenario: withdraw
// ============================================================================

func TestWithdraw_OnlyAfterExpiry(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, false)

	err := h.engine.WithdrawReserve(seller, id, "w-early", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Fatalf("withdraw inside window: got %v", err)
	}

	h.advance(2_000 * time.Second)
	if err := h.engine.WithdrawReserve(seller, id, "w-late", h.now); err != nil {
		t.Fatalf("withdraw after expiry: %v", err)
	}
	if h.status(t, id) != state.StatusWithdrawn {
		t.Errorf("status: %s", h.status(t, id))
	}
}

func TestWithdraw_TriggeredReserveForfeitedForever(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, false)
	h.purchase(t, id)
	h.setPrice(t, 1_00000000)
	if err := h.engine.TriggerPayout(rando, id, "trig", h.now); err != nil {
		t.Fatalf("TriggerPayout: %v", err)
	}

	// even long after expiry the seller can never reclaim a triggered reserve
	h.advance(100 * 24 * time.Hour)
	err := h.engine.WithdrawReserve(seller, id, "w", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Errorf("withdraw of triggered reserve: got %v", err)
	}
}

func TestWithdraw_SellerOnly(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, false)
	h.advance(2_000 * time.Second)

	err := h.engine.WithdrawReserve(rando, id, "w", h.now)
	if !core.IsKind(err, core.KindAuthorization) {
		t.Errorf("stranger withdraw: got %v", err)
	}
}

// ============================================================================
// Scenario: whitelist
// ============================================================================

func TestWhitelist_GatesPurchase(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, true)
	h.engine.FundWallet(buyer, "AVAX", 1_000_000, "fund-buyer", h.now)

	err := h.engine.PurchaseInsurance(buyer, id, bene, 50_000, "p-1", h.now)
	if !core.IsKind(err, core.KindAuthorization) {
		t.Fatalf("unlisted buyer: got %v", err)
	}

	if err := h.engine.AddToWhitelist(seller, id, buyer, "wl-1", h.now); err != nil {
		t.Fatalf("AddToWhitelist: %v", err)
	}
	if err := h.engine.PurchaseInsurance(buyer, id, bene, 50_000, "p-2", h.now); err != nil {
		t.Fatalf("whitelisted purchase: %v", err)
	}
}

func TestWhitelist_SellerOnlyMutations(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, true)

	err := h.engine.AddToWhitelist(rando, id, buyer, "wl", h.now)
	if !core.IsKind(err, core.KindAuthorization) {
		t.Errorf("stranger add: got %v", err)
	}
	err = h.engine.SetWhitelistEnabled(rando, id, false, "wm", h.now)
	if !core.IsKind(err, core.KindAuthorization) {
		t.Errorf("stranger mode change: got %v", err)
	}
}

func TestWhitelist_FrozenAfterPurchase(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, true)
	if err := h.engine.AddToWhitelist(seller, id, buyer, "wl-1", h.now); err != nil {
		t.Fatalf("AddToWhitelist: %v", err)
	}
	h.purchase(t, id)

	// neither membership nor enforcement may change once the contract is sold
	err := h.engine.SetWhitelistEnabled(seller, id, false, "wm", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Errorf("mode change after purchase: got %v", err)
	}
	err = h.engine.AddToWhitelist(seller, id, rando, "wl-2", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Errorf("add after purchase: got %v", err)
	}
	err = h.engine.RemoveFromWhitelist(seller, id, buyer, "wl-3", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Errorf("remove after purchase: got %v", err)
	}
	_, _, err = h.engine.BatchUpdateWhitelist(seller, id, "add", []common.Address{rando}, "wl-4", h.now)
	if !core.IsKind(err, core.KindStateConflict) {
		t.Errorf("batch update after purchase: got %v", err)
	}
}

func TestWhitelist_BatchSkipsNoOps(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, true)
	h.engine.AddToWhitelist(seller, id, buyer, "wl-1", h.now)

	applied, skipped, err := h.engine.BatchUpdateWhitelist(seller, id,
		"add", []common.Address{buyer, bene, rando}, "wl-batch", h.now)
	if err != nil {
		t.Fatalf("BatchUpdateWhitelist: %v", err)
	}
	if applied != 2 || skipped != 1 {
		t.Errorf("batch: applied=%d skipped=%d, want 2/1", applied, skipped)
	}

	page, _, err := h.engine.WhitelistPage(id, 0, 10)
	if err != nil {
		t.Fatalf("WhitelistPage: %v", err)
	}
	if len(page) != 3 {
		t.Errorf("whitelist size: got %d, want 3", len(page))
	}
}

// ============================================================================
// Scenario: automation
// ============================================================================

func TestAutomation_TriggersAndSettles(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, true, false)
	h.purchase(t, id)
	h.setPrice(t, 5_00000000)
	h.drainOutputs()

	if err := h.engine.RunAutomation(h.now); err != nil {
		t.Fatalf("RunAutomation: %v", err)
	}

	// auto-execute settles straight through to claimed
	if h.status(t, id) != state.StatusClaimed {
		t.Fatalf("status after automation: %s", h.status(t, id))
	}

	outputs := h.drainOutputs()
	var exec *event.Envelope
	for _, out := range outputs {
		if out.Envelope.EventType == event.EventTypeAutomationExecuted {
			exec = out.Envelope
		}
	}
	if exec == nil {
		t.Fatal("AutomationExecuted not emitted")
	}

	policy := h.engine.AutomationPolicy()
	if policy.TotalTriggered != 1 || policy.TotalRuns != 1 {
		t.Errorf("counters: triggered=%d runs=%d", policy.TotalTriggered, policy.TotalRuns)
	}

	h.engine.ValidateInvariants()
}

func TestAutomation_AdvancesManualContracts(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, false) // manual claim
	h.purchase(t, id)
	h.setPrice(t, 5_00000000)

	if err := h.engine.RunAutomation(h.now); err != nil {
		t.Fatalf("RunAutomation: %v", err)
	}

	// the scheduler advances the contract but leaves settlement to a claim
	if h.status(t, id) != state.StatusTriggered {
		t.Fatalf("status after automation: %s", h.status(t, id))
	}
	if err := h.engine.ClaimPayout(rando, id, "claim", h.now); err != nil {
		t.Fatalf("ClaimPayout: %v", err)
	}
	if h.status(t, id) != state.StatusClaimed {
		t.Errorf("status after claim: %s", h.status(t, id))
	}

	h.engine.ValidateInvariants()
}

func TestAutomation_EmptyRunStillEmits(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	h.drainOutputs()

	if err := h.engine.RunAutomation(h.now); err != nil {
		t.Fatalf("RunAutomation: %v", err)
	}

	outputs := h.drainOutputs()
	if len(outputs) != 1 || outputs[0].Envelope.EventType != event.EventTypeAutomationExecuted {
		t.Fatalf("empty run must emit exactly one AutomationExecuted, got %d outputs", len(outputs))
	}
}

func TestAutomation_RateLimitedTick(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	if err := h.engine.ConfigureAutomation(admin, true, 2_000_000, 50, 60, "cfg", h.now); err != nil {
		t.Fatalf("ConfigureAutomation: %v", err)
	}

	h.engine.RunAutomation(h.now)
	before := h.engine.AutomationPolicy()
	h.drainOutputs()

	// second tick inside the interval
	h.advance(10 * time.Second)
	h.engine.RunAutomation(h.now)

	policy := h.engine.AutomationPolicy()
	if policy.TotalRuns != before.TotalRuns+1 {
		t.Errorf("rate-limited tick must still count a run")
	}
	if policy.LastGlobalCheck != before.LastGlobalCheck {
		t.Errorf("rate-limited tick must not advance the check clock")
	}

	outputs := h.drainOutputs()
	if len(outputs) != 1 {
		t.Fatalf("outputs: got %d, want 1", len(outputs))
	}
	var evt struct {
		RateLimited bool `json:"rate_limited"`
	}
	if err := json.Unmarshal(outputs[0].Envelope.Payload, &evt); err != nil || !evt.RateLimited {
		t.Errorf("rate-limited run must be flagged: %v", err)
	}
}

func TestAutomation_PausedIsSilent(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	if err := h.engine.PauseAutomation(admin, true, h.now); err != nil {
		t.Fatalf("PauseAutomation: %v", err)
	}
	h.drainOutputs()

	h.engine.RunAutomation(h.now)

	if outputs := h.drainOutputs(); len(outputs) != 0 {
		t.Errorf("paused automation must emit nothing, got %d outputs", len(outputs))
	}
}

func TestAutomation_PauseSurvivesReplay(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	if err := h.engine.PauseAutomation(admin, true, h.now); err != nil {
		t.Fatalf("PauseAutomation: %v", err)
	}

	events := make([]core.ReplayEvent, 0)
	for _, out := range h.drainOutputs() {
		events = append(events, core.ReplayEvent{
			Sequence:       out.Envelope.Sequence,
			EventType:      out.Envelope.EventType,
			IdempotencyKey: out.Envelope.IdempotencyKey,
			Payload:        out.Envelope.Payload,
		})
	}

	h2 := newTestEngine(t, ledger.NoopTransferer{})
	if err := h2.engine.Replay(events); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	policy := h2.engine.AutomationPolicy()
	if !policy.Enabled || !policy.Paused {
		t.Fatalf("replayed policy: enabled=%v paused=%v, want true/true", policy.Enabled, policy.Paused)
	}

	// resume on the rebuilt engine re-arms the scheduler
	if err := h2.engine.PauseAutomation(admin, false, h2.now); err != nil {
		t.Fatalf("resume after replay: %v", err)
	}
	policy = h2.engine.AutomationPolicy()
	if !policy.Enabled || policy.Paused {
		t.Errorf("resumed policy: enabled=%v paused=%v, want true/false", policy.Enabled, policy.Paused)
	}
}

func TestAutomation_BatchCeiling(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	h.engine.FundWallet(seller, "AVAX", 100_000_000, "fund-seller", h.now)
	h.engine.FundWallet(buyer, "AVAX", 100_000_000, "fund-buyer", h.now)

	for i := 0; i < 5; i++ {
		id, err := h.engine.CreateContract(core.CreateParams{
			Seller:        seller,
			TriggerSymbol: "AVAX",
			TriggerPrice:  20_00000000,
			StartDate:     h.now.Unix() - 10,
			EndDate:       h.now.Unix() + 1_000,
			ReserveSymbol: "AVAX",
			ReserveAmount: 1_000_000,
			InsuranceFee:  50_000,
			AutoExecute:   true,
		}, "", h.now)
		if err != nil {
			t.Fatalf("CreateContract %d: %v", i, err)
		}
		if err := h.engine.PurchaseInsurance(buyer, id, bene, 50_000, "", h.now); err != nil {
			t.Fatalf("PurchaseInsurance %d: %v", i, err)
		}
	}
	h.setPrice(t, 1_00000000)
	if err := h.engine.ConfigureAutomation(admin, true, 10_000_000, 3, 0, "cfg", h.now); err != nil {
		t.Fatalf("ConfigureAutomation: %v", err)
	}

	h.engine.RunAutomation(h.now)

	claimed := 0
	for _, c := range h.engine.AllContracts() {
		if c.Status == state.StatusClaimed {
			claimed++
		}
	}
	if claimed != 3 {
		t.Errorf("first run should settle exactly the batch ceiling: got %d", claimed)
	}

	// the next run picks up the remainder
	h.engine.RunAutomation(h.now)
	claimed = 0
	for _, c := range h.engine.AllContracts() {
		if c.Status == state.StatusClaimed {
			claimed++
		}
	}
	if claimed != 5 {
		t.Errorf("second run should settle the rest: got %d", claimed)
	}
}

func TestAutomation_ConfigureAdminOnly(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	err := h.engine.ConfigureAutomation(rando, true, 1, 1, 0, "cfg", h.now)
	if !core.IsKind(err, core.KindAuthorization) {
		t.Errorf("stranger configure: got %v", err)
	}
}

// ============================================================================
// Scenario: transfer failure
// ============================================================================

func TestClaim_TransferFailureRollsBack(t *testing.T) {
	h := newTestEngine(t, ledger.FailingTransferer{Err: errors.New("rpc down")})
	id := h.createFunded(t, false, false)
	h.purchase(t, id)
	h.setPrice(t, 1_00000000)
	if err := h.engine.TriggerPayout(rando, id, "trig", h.now); err != nil {
		t.Fatalf("TriggerPayout: %v", err)
	}
	h.drainOutputs()

	err := h.engine.ClaimPayout(rando, id, "claim", h.now)
	if !core.IsKind(err, core.KindFunds) {
		t.Fatalf("claim with broken transfer: got %v", err)
	}
	if h.status(t, id) != state.StatusTriggered {
		t.Errorf("status must roll back to triggered, got %s", h.status(t, id))
	}
	if outputs := h.drainOutputs(); len(outputs) != 0 {
		t.Errorf("failed claim must emit nothing, got %d outputs", len(outputs))
	}

	h.engine.ValidateInvariants()
}

func TestAutoTrigger_TransferFailureRestoresActive(t *testing.T) {
	h := newTestEngine(t, ledger.FailingTransferer{Err: errors.New("rpc down")})
	id := h.createFunded(t, true, false)
	h.purchase(t, id)
	h.setPrice(t, 1_00000000)

	err := h.engine.TriggerPayout(rando, id, "trig", h.now)
	if !core.IsKind(err, core.KindFunds) {
		t.Fatalf("auto trigger with broken transfer: got %v", err)
	}
	if h.status(t, id) != state.StatusActive {
		t.Errorf("status must restore to active, got %s", h.status(t, id))
	}

	h.engine.ValidateInvariants()
}

// ============================================================================
// Scenario: idempotency and recovery
// ============================================================================

func TestIdempotency_DuplicateCommandIsNoOp(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	h.engine.FundWallet(seller, "AVAX", 1_000, "dup-key", h.now)
	h.engine.FundWallet(seller, "AVAX", 1_000, "dup-key", h.now)

	bal, _ := h.engine.WalletBalance(seller, "AVAX")
	if bal != 1_000 {
		t.Errorf("duplicate fund applied twice: got %d", bal)
	}
}

func TestRecoverAsset_StrayOnly(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	h.createFunded(t, false, false)
	h.engine.ReceiveStray(rando, "AVAX", 77, "stray", h.now)

	err := h.engine.RecoverAsset(admin, rando, "AVAX", 78, "rec-over", h.now)
	if !core.IsKind(err, core.KindFunds) {
		t.Fatalf("over-recovery: got %v", err)
	}
	if err := h.engine.RecoverAsset(admin, rando, "AVAX", 77, "rec", h.now); err != nil {
		t.Fatalf("RecoverAsset: %v", err)
	}
	err = h.engine.RecoverAsset(rando, rando, "AVAX", 1, "rec-2", h.now)
	if !core.IsKind(err, core.KindAuthorization) {
		t.Errorf("stranger recovery: got %v", err)
	}
}

func TestOracleMode_SwitchGatesTestPrice(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})

	if err := h.engine.SetOracleMode(admin, oracle.ModeFeed, "mode-feed", h.now); err != nil {
		t.Fatalf("SetOracleMode(feed): %v", err)
	}
	err := h.engine.SetTestPrice(admin, "AVAX", 10_00000000, "tp", h.now)
	if !core.IsKind(err, core.KindValidation) {
		t.Fatalf("test price in feed mode: got %v", err)
	}

	if err := h.engine.SetOracleMode(admin, oracle.ModeTest, "mode-test", h.now); err != nil {
		t.Fatalf("SetOracleMode(test): %v", err)
	}
	if err := h.engine.SetTestPrice(admin, "AVAX", 10_00000000, "tp-2", h.now); err != nil {
		t.Fatalf("test price in test mode: %v", err)
	}

	err = h.engine.SetOracleMode(rando, oracle.ModeFeed, "mode-rando", h.now)
	if !core.IsKind(err, core.KindAuthorization) {
		t.Errorf("stranger mode switch: got %v", err)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, true)
	h.engine.AddToWhitelist(seller, id, buyer, "wl", h.now)
	h.purchase(t, id)
	h.setPrice(t, 30_00000000)

	snap := h.engine.CreateSnapshotState()

	h2 := newTestEngine(t, ledger.NoopTransferer{})
	if err := h2.engine.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("RestoreFromSnapshot: %v", err)
	}

	if h2.engine.Sequence() != h.engine.Sequence() {
		t.Errorf("sequence: got %d, want %d", h2.engine.Sequence(), h.engine.Sequence())
	}
	if h2.status(t, id) != state.StatusActive {
		t.Errorf("restored status: %s", h2.status(t, id))
	}
	bal, _ := h2.engine.WalletBalance(buyer, "AVAX")
	want, _ := h.engine.WalletBalance(buyer, "AVAX")
	if bal != want {
		t.Errorf("restored buyer wallet: got %d, want %d", bal, want)
	}

	h2.engine.ValidateInvariants()
}

func TestReplay_RebuildsFromEventLog(t *testing.T) {
	h := newTestEngine(t, ledger.NoopTransferer{})
	id := h.createFunded(t, false, false)
	h.purchase(t, id)
	h.setPrice(t, 1_00000000)
	h.engine.TriggerPayout(rando, id, "trig", h.now)
	h.engine.ClaimPayout(rando, id, "claim", h.now)

	events := make([]core.ReplayEvent, 0)
	for _, out := range h.drainOutputs() {
		events = append(events, core.ReplayEvent{
			Sequence:       out.Envelope.Sequence,
			EventType:      out.Envelope.EventType,
			IdempotencyKey: out.Envelope.IdempotencyKey,
			Payload:        out.Envelope.Payload,
		})
	}

	h2 := newTestEngine(t, ledger.NoopTransferer{})
	if err := h2.engine.Replay(events); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if h2.engine.Sequence() != h.engine.Sequence() {
		t.Errorf("sequence: got %d, want %d", h2.engine.Sequence(), h.engine.Sequence())
	}
	if h2.status(t, id) != state.StatusClaimed {
		t.Errorf("replayed status: %s", h2.status(t, id))
	}

	h2.engine.ValidateInvariants()
}
