package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"CoverLedger/internal/event"
	"CoverLedger/internal/observability"
)

// Output mirrors core.Output in the shape projections consume. The
// orchestrator (cmd/coverledger) bridges between the two.
type Output struct {
	Sequence   int64
	EventType  string
	ContractID *int64
	Payload    []byte
	Timestamp  time.Time
	Journals   []JournalEntry
}

// JournalEntry is a simplified journal row for balance projections.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
}

// Worker updates the read-model tables from processed events. Its input
// channel is fed with non-blocking sends, so under pressure events are
// dropped here and the tables are rebuilt from the event log later.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	metrics   *observability.Metrics
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan Output, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the projection loop. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := w.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent and rebuildable
				// from the event log, so log and move on.
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
			}
			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
			}

			w.lastSeq = output.Sequence
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.Journals {
		if err := w.applyBalance(ctx, tx, output.Sequence, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if err := w.applyEvent(ctx, tx, output); err != nil {
		return fmt.Errorf("%s projection: %w", output.EventType, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// applyBalance mirrors the ledger convention: debit receives, credit gives.
func (w *Worker) applyBalance(ctx context.Context, tx *sql.Tx, seq int64, j JournalEntry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (w *Worker) applyEvent(ctx context.Context, tx *sql.Tx, output Output) error {
	switch output.EventType {
	case "ContractCreated":
		var evt event.ContractCreated
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.contracts
				(contract_id, seller, fee_receiver, trigger_symbol, trigger_price,
				 start_date, end_date, reserve_is_token, reserve_symbol, reserve_amount,
				 insurance_fee, auto_execute, whitelist_enabled, status,
				 updated_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'Created', $14, $15)
			ON CONFLICT (contract_id) DO NOTHING
		`, evt.ID, evt.Seller.Hex(), evt.FeeReceiver.Hex(), evt.TriggerSymbol, evt.TriggerPrice,
			evt.StartDate, evt.EndDate, evt.ReserveToken, evt.ReserveSymbol, evt.ReserveAmount,
			evt.InsuranceFee, evt.AutoExecute, evt.WhitelistEnabled,
			output.Sequence, output.Timestamp)
		return err

	case "ContractPurchased":
		var evt event.ContractPurchased
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.updateContract(ctx, tx, evt.ID, output, `
			buyer = $2, beneficiary = $3, status = 'Active'
		`, evt.Buyer.Hex(), evt.Beneficiary.Hex())

	case "BeneficiaryChanged":
		var evt event.BeneficiaryChanged
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.updateContract(ctx, tx, evt.ID, output, `beneficiary = $2`, evt.NewBeneficiary.Hex())

	case "FeeReceiverChanged":
		var evt event.FeeReceiverChanged
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.updateContract(ctx, tx, evt.ID, output, `fee_receiver = $2`, evt.NewReceiver.Hex())

	case "PayoutTriggered":
		var evt event.PayoutTriggered
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.updateContract(ctx, tx, evt.ID, output, `
			status = 'Triggered', observed_price = $2
		`, evt.CurrentPrice)

	case "PayoutClaimed":
		var evt event.PayoutClaimed
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.updateContract(ctx, tx, evt.ID, output, `status = 'Claimed'`)

	case "ReserveWithdrawn":
		var evt event.ReserveWithdrawn
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.updateContract(ctx, tx, evt.ID, output, `status = 'Withdrawn'`)

	case "WhitelistModeChanged":
		var evt event.WhitelistModeChanged
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.updateContract(ctx, tx, evt.ID, output, `whitelist_enabled = $2`, evt.Enabled)

	case "BuyerWhitelisted":
		var evt event.BuyerWhitelisted
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.whitelistAdd(ctx, tx, evt.ID, evt.Buyer.Hex(), output.Timestamp)

	case "BuyerRemovedFromWhitelist":
		var evt event.BuyerRemovedFromWhitelist
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		return w.whitelistRemove(ctx, tx, evt.ID, evt.Buyer.Hex())

	case "BatchWhitelistUpdate":
		var evt event.BatchWhitelistUpdate
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		for _, buyer := range evt.Applied {
			var err error
			if evt.Action == "add" {
				err = w.whitelistAdd(ctx, tx, evt.ID, buyer.Hex(), output.Timestamp)
			} else {
				err = w.whitelistRemove(ctx, tx, evt.ID, buyer.Hex())
			}
			if err != nil {
				return err
			}
		}
		return nil

	case "AutomationExecuted":
		var evt event.AutomationExecuted
		if err := json.Unmarshal(output.Payload, &evt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.automation_runs
				(sequence, checked, eligible, triggered, gas_used, rate_limited,
				 total_triggered, total_runs, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (sequence) DO NOTHING
		`, output.Sequence, evt.Checked, evt.Eligible, evt.Triggered, evt.GasUsed,
			evt.RateLimited, evt.TotalTriggered, evt.TotalRuns, output.Timestamp)
		return err

	default:
		// WalletFunded, StrayReceived, AssetRecovered, PriceUpdated and
		// AutomationConfigured only move balances or core-local state.
		return nil
	}
}

// updateContract runs a partial UPDATE against projections.contracts.
// setClause uses $2.. for extra args; $1 is always the contract id and the
// watermark columns are appended after the extras.
func (w *Worker) updateContract(ctx context.Context, tx *sql.Tx, id uint64, output Output, setClause string, extra ...interface{}) error {
	seqParam := len(extra) + 2
	query := fmt.Sprintf(`
		UPDATE projections.contracts
		SET %s, updated_sequence = $%d, updated_at = $%d
		WHERE contract_id = $1
	`, setClause, seqParam, seqParam+1)

	args := make([]interface{}, 0, len(extra)+3)
	args = append(args, id)
	args = append(args, extra...)
	args = append(args, output.Sequence, output.Timestamp)

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Worker) whitelistAdd(ctx context.Context, tx *sql.Tx, id uint64, buyer string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.whitelist (contract_id, buyer, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (contract_id, buyer) DO NOTHING
	`, id, buyer, at)
	return err
}

func (w *Worker) whitelistRemove(ctx context.Context, tx *sql.Tx, id uint64, buyer string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM projections.whitelist WHERE contract_id = $1 AND buyer = $2
	`, id, buyer)
	return err
}

// RebuildBalances recomputes the balance projection from the journal.
// Used after projection drops or a schema reset.
func RebuildBalances(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE projections.balances`); err != nil {
		return fmt.Errorf("truncate balances: %w", err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT account_path, asset_id, SUM(delta), MAX(sequence)
		FROM (
			SELECT debit_account AS account_path, asset_id, amount AS delta, sequence
			FROM event_log.journal
			UNION ALL
			SELECT credit_account AS account_path, asset_id, -amount AS delta, sequence
			FROM event_log.journal
		) moves
		GROUP BY account_path, asset_id
	`)
	if err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	log.Println("INFO: balance projection rebuild complete")
	return nil
}
