package state_test

import (
	"CoverLedger/internal/state"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func newContract(seller common.Address) *state.Contract {
	return &state.Contract{
		Seller:        seller,
		FeeReceiver:   seller,
		TriggerSymbol: "AVAX",
		TriggerPrice:  20_0000_0000,
		StartDate:     1_000,
		EndDate:       2_000,
		ReserveSymbol: "AVAX",
		ReserveAmount: 1_000_000,
		InsuranceFee:  50_000,
		Status:        state.StatusCreated,
	}
}

// ============================================================================
// Test: Status transitions
// ============================================================================

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to state.Status
		allowed  bool
	}{
		{state.StatusCreated, state.StatusActive, true},
		{state.StatusCreated, state.StatusWithdrawn, true},
		{state.StatusCreated, state.StatusTriggered, false},
		{state.StatusActive, state.StatusTriggered, true},
		{state.StatusActive, state.StatusWithdrawn, true},
		{state.StatusActive, state.StatusClaimed, false},
		{state.StatusTriggered, state.StatusClaimed, true},
		{state.StatusTriggered, state.StatusWithdrawn, false},
		{state.StatusClaimed, state.StatusWithdrawn, false},
		{state.StatusWithdrawn, state.StatusActive, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestContract_Windows(t *testing.T) {
	c := newContract(alice)

	if c.Purchasable(999) {
		t.Error("purchase before the window opens should be rejected")
	}
	if !c.Purchasable(1_000) || !c.Purchasable(2_000) {
		t.Error("created contract inside the window should be purchasable")
	}
	if c.Purchasable(2_001) {
		t.Error("expired contract should not be purchasable")
	}

	c.Status = state.StatusActive
	if c.Triggerable(999) {
		t.Error("trigger before window start should be rejected")
	}
	if !c.Triggerable(1_000) || !c.Triggerable(2_000) {
		t.Error("window bounds are inclusive")
	}
	if c.Triggerable(2_001) {
		t.Error("trigger after window end should be rejected")
	}

	if c.Withdrawable(2_000) {
		t.Error("withdraw inside window should be rejected")
	}
	if !c.Withdrawable(2_001) {
		t.Error("active contract past expiry should be withdrawable")
	}

	c.Status = state.StatusTriggered
	if c.Withdrawable(9_999) {
		t.Error("triggered contract must never be withdrawable")
	}
}

// ============================================================================
// Test: ContractStore
// ============================================================================

func TestContractStore_IDsStartAtOne(t *testing.T) {
	s := state.NewContractStore()
	id := s.Add(newContract(alice))
	if id != 1 {
		t.Errorf("first id: got %d, want 1", id)
	}
	if s.Add(newContract(alice)) != 2 {
		t.Error("ids must be sequential")
	}
}

func TestContractStore_ActiveAscending(t *testing.T) {
	s := state.NewContractStore()
	for i := 0; i < 5; i++ {
		s.Add(newContract(alice))
	}
	for _, id := range []uint64{4, 2, 5} {
		c, _ := s.Get(id)
		c.Status = state.StatusActive
	}

	active := s.Active()
	if len(active) != 3 {
		t.Fatalf("active count: got %d, want 3", len(active))
	}
	for i := 1; i < len(active); i++ {
		if active[i].ID <= active[i-1].ID {
			t.Fatal("active contracts must be in ascending id order")
		}
	}
}

func TestContractStore_ByUser(t *testing.T) {
	s := state.NewContractStore()
	id1 := s.Add(newContract(alice))
	s.Add(newContract(bob))

	c, _ := s.Get(id1)
	c.Buyer = carol
	c.Status = state.StatusActive
	s.IndexBuyer(carol, id1)

	if got := len(s.ByUser(alice)); got != 1 {
		t.Errorf("alice contracts: got %d", got)
	}
	if got := len(s.ByUser(carol)); got != 1 {
		t.Errorf("carol contracts: got %d", got)
	}
	if got := len(s.ByUser(common.Address{})); got != 0 {
		t.Errorf("unknown user contracts: got %d", got)
	}
}

func TestContractStore_SnapshotRestore(t *testing.T) {
	s := state.NewContractStore()
	id := s.Add(newContract(alice))
	c, _ := s.Get(id)
	c.Buyer = bob
	c.Status = state.StatusActive
	s.IndexBuyer(bob, id)

	contracts, nextID := s.Snapshot()
	restored := state.NewContractStore()
	if err := restored.Restore(contracts, nextID); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.NextID() != 2 {
		t.Errorf("restored next id: got %d", restored.NextID())
	}
	if got := len(restored.ByUser(bob)); got != 1 {
		t.Errorf("restored buyer index: got %d", got)
	}
}

// ============================================================================
// Test: WhitelistManager
// ============================================================================

func TestWhitelist_AddRemoveNoOpErrors(t *testing.T) {
	wm := state.NewWhitelistManager()

	if err := wm.Add(1, bob); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := wm.Add(1, bob); err == nil {
		t.Error("double add should error")
	}
	if !wm.Contains(1, bob) {
		t.Error("bob should be whitelisted")
	}
	if err := wm.Remove(1, bob); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := wm.Remove(1, bob); err == nil {
		t.Error("removing a non-member should error")
	}
}

func TestWhitelist_PageStableOrder(t *testing.T) {
	wm := state.NewWhitelistManager()
	wm.Add(1, carol)
	wm.Add(1, alice)
	wm.Add(1, bob)

	page, more := wm.Page(1, 0, 2)
	if len(page) != 2 || !more {
		t.Fatalf("page: len=%d more=%v", len(page), more)
	}
	if page[0] != alice || page[1] != bob {
		t.Errorf("page order: %v", page)
	}

	rest, more := wm.Page(1, 2, 2)
	if len(rest) != 1 || more {
		t.Fatalf("tail page: len=%d more=%v", len(rest), more)
	}
	if _, more := wm.Page(1, 99, 2); more {
		t.Error("offset past end should report no more")
	}
}

// ============================================================================
// Test: AutomationPolicy
// ============================================================================

func TestAutomationPolicy_RateLimit(t *testing.T) {
	p := state.DefaultAutomationPolicy()
	p.CheckInterval = 60
	p.LastGlobalCheck = 1_000

	if !p.RateLimited(1_059) {
		t.Error("inside interval should be rate limited")
	}
	if p.RateLimited(1_060) {
		t.Error("at interval boundary should run")
	}

	p.CheckInterval = 0
	if p.RateLimited(1_000) {
		t.Error("zero interval disables rate limiting")
	}
}
