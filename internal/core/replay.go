package core

import (
	"encoding/json"
	"fmt"

	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/oracle"
	"CoverLedger/internal/state"
)

// ReplayEvent is one persisted event-log row fed back into the engine on
// warm restart. Payloads carry every field the transition touched, so replay
// re-applies them mechanically without re-running validation.
type ReplayEvent struct {
	Sequence       int64
	EventType      event.EventType
	IdempotencyKey string
	Payload        []byte
}

// Replay applies persisted events after a snapshot restore. Events must
// arrive in ascending sequence order starting right after the snapshot.
func (e *Engine) Replay(events []ReplayEvent) error {
	for _, re := range events {
		if re.Sequence != e.sequence {
			return fmt.Errorf("replay gap: expected sequence %d, got %d", e.sequence, re.Sequence)
		}
		if err := e.applyReplayed(re); err != nil {
			return fmt.Errorf("replay sequence %d (%s): %w", re.Sequence, re.EventType, err)
		}
		e.sequence++
		e.journalGen.SetSequence(e.sequence)
		e.idempotency.MarkProcessed(re.EventType.String(), re.IdempotencyKey)
	}
	return nil
}

func (e *Engine) applyReplayed(re ReplayEvent) error {
	switch re.EventType {
	case event.EventTypeWalletFunded:
		var evt event.WalletFunded
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		assetID, _ := ledger.GetAssetID(evt.Symbol)
		batch, err := e.journalGen.GenerateTopUp(evt.User, assetID, evt.Amount, re.IdempotencyKey, 0)
		if err != nil {
			return err
		}
		return e.tracker.ApplyBatch(batch)

	case event.EventTypeStrayReceived:
		var evt event.StrayReceived
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		assetID, _ := ledger.GetAssetID(evt.Symbol)
		batch, err := e.journalGen.GenerateStrayIn(assetID, evt.Amount, re.IdempotencyKey, 0)
		if err != nil {
			return err
		}
		return e.tracker.ApplyBatch(batch)

	case event.EventTypeContractCreated:
		var evt event.ContractCreated
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		assetID, _ := ledger.GetAssetID(evt.ReserveSymbol)
		batch, err := e.journalGen.GenerateReserveDeposit(evt.Seller, evt.ID, assetID, evt.ReserveAmount, re.IdempotencyKey, 0)
		if err != nil {
			return err
		}
		if err := e.tracker.ApplyBatch(batch); err != nil {
			return err
		}
		c := &state.Contract{
			Seller:           evt.Seller,
			FeeReceiver:      evt.FeeReceiver,
			TriggerSymbol:    evt.TriggerSymbol,
			TriggerPrice:     evt.TriggerPrice,
			StartDate:        evt.StartDate,
			EndDate:          evt.EndDate,
			ReserveIsToken:   evt.ReserveToken,
			ReserveSymbol:    evt.ReserveSymbol,
			ReserveAmount:    evt.ReserveAmount,
			InsuranceFee:     evt.InsuranceFee,
			AutoExecute:      evt.AutoExecute,
			WhitelistEnabled: evt.WhitelistEnabled,
			Status:           state.StatusCreated,
		}
		if assigned := e.store.Add(c); assigned != evt.ID {
			return fmt.Errorf("contract id drift: log says %d, store assigned %d", evt.ID, assigned)
		}
		return nil

	case event.EventTypeContractPurchased:
		var evt event.ContractPurchased
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		c, ok := e.store.Get(evt.ID)
		if !ok {
			return fmt.Errorf("contract %d missing", evt.ID)
		}
		batch, err := e.journalGen.GenerateFeePayment(evt.Buyer, evt.FeeReceiver, ledger.NativeAssetID, evt.FeePaid, re.IdempotencyKey, 0)
		if err != nil {
			return err
		}
		if err := e.tracker.ApplyBatch(batch); err != nil {
			return err
		}
		c.Buyer = evt.Buyer
		c.Beneficiary = evt.Beneficiary
		c.Status = state.StatusActive
		e.store.IndexBuyer(evt.Buyer, evt.ID)
		return nil

	case event.EventTypeBeneficiaryChanged:
		var evt event.BeneficiaryChanged
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		c, ok := e.store.Get(evt.ID)
		if !ok {
			return fmt.Errorf("contract %d missing", evt.ID)
		}
		c.Beneficiary = evt.NewBeneficiary
		return nil

	case event.EventTypeFeeReceiverChanged:
		var evt event.FeeReceiverChanged
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		c, ok := e.store.Get(evt.ID)
		if !ok {
			return fmt.Errorf("contract %d missing", evt.ID)
		}
		c.FeeReceiver = evt.NewReceiver
		return nil

	case event.EventTypePayoutTriggered:
		var evt event.PayoutTriggered
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		c, ok := e.store.Get(evt.ID)
		if !ok {
			return fmt.Errorf("contract %d missing", evt.ID)
		}
		c.Status = state.StatusTriggered
		c.TriggerObservedPrice = evt.CurrentPrice
		e.policy.TotalTriggered++
		return nil

	case event.EventTypePayoutClaimed:
		var evt event.PayoutClaimed
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		c, ok := e.store.Get(evt.ID)
		if !ok {
			return fmt.Errorf("contract %d missing", evt.ID)
		}
		assetID, _ := ledger.GetAssetID(evt.ReserveSymbol)
		batch, err := e.journalGen.GeneratePayoutRelease(evt.ID, assetID, evt.Amount, re.IdempotencyKey, 0)
		if err != nil {
			return err
		}
		if err := e.tracker.ApplyBatch(batch); err != nil {
			return err
		}
		c.Status = state.StatusClaimed
		return nil

	case event.EventTypeReserveWithdrawn:
		var evt event.ReserveWithdrawn
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		c, ok := e.store.Get(evt.ID)
		if !ok {
			return fmt.Errorf("contract %d missing", evt.ID)
		}
		assetID, _ := ledger.GetAssetID(evt.ReserveSymbol)
		batch, err := e.journalGen.GenerateReserveRefund(evt.ID, assetID, evt.Amount, re.IdempotencyKey, 0)
		if err != nil {
			return err
		}
		if err := e.tracker.ApplyBatch(batch); err != nil {
			return err
		}
		c.Status = state.StatusWithdrawn
		return nil

	case event.EventTypeBuyerWhitelisted:
		var evt event.BuyerWhitelisted
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		return e.whitelist.Add(evt.ID, evt.Buyer)

	case event.EventTypeBuyerRemovedFromWhitelist:
		var evt event.BuyerRemovedFromWhitelist
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		return e.whitelist.Remove(evt.ID, evt.Buyer)

	case event.EventTypeBatchWhitelistUpdate:
		var evt event.BatchWhitelistUpdate
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		for _, buyer := range evt.Applied {
			var err error
			if evt.Action == "add" {
				err = e.whitelist.Add(evt.ID, buyer)
			} else {
				err = e.whitelist.Remove(evt.ID, buyer)
			}
			if err != nil {
				return err
			}
		}
		return nil

	case event.EventTypeWhitelistModeChanged:
		var evt event.WhitelistModeChanged
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		c, ok := e.store.Get(evt.ID)
		if !ok {
			return fmt.Errorf("contract %d missing", evt.ID)
		}
		c.WhitelistEnabled = evt.Enabled
		return nil

	case event.EventTypePriceUpdated:
		var evt event.PriceUpdated
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		e.prices.Restore(mergePrice(e.prices.Snapshot(), evt))
		return nil

	case event.EventTypeAutomationExecuted:
		var evt event.AutomationExecuted
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		e.policy.TotalRuns = evt.TotalRuns
		e.policy.TotalTriggered = evt.TotalTriggered
		return nil

	case event.EventTypeAutomationConfigured:
		var evt event.AutomationConfigured
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		e.policy.Enabled = evt.Enabled
		e.policy.Paused = evt.Paused
		e.policy.GasLimit = evt.GasLimit
		e.policy.MaxBatchSize = evt.MaxBatchSize
		e.policy.CheckInterval = evt.CheckInterval
		return nil

	case event.EventTypeOracleModeChanged:
		var evt event.OracleModeChanged
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		e.prices.SetMode(oracle.Mode(evt.Mode))
		return nil

	case event.EventTypeAssetRecovered:
		var evt event.AssetRecovered
		if err := json.Unmarshal(re.Payload, &evt); err != nil {
			return err
		}
		assetID, _ := ledger.GetAssetID(evt.Symbol)
		batch, err := e.journalGen.GenerateStrayRecovery(assetID, evt.Amount, re.IdempotencyKey, 0)
		if err != nil {
			return err
		}
		return e.tracker.ApplyBatch(batch)

	default:
		return fmt.Errorf("unknown event type %d", re.EventType)
	}
}

func mergePrice(points map[string]oracle.PricePoint, evt event.PriceUpdated) map[string]oracle.PricePoint {
	points[evt.Symbol] = oracle.PricePoint{Price: evt.Price, Sequence: evt.Sequence}
	return points
}
