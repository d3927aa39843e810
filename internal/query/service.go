package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"CoverLedger/internal/ledger"
)

// Service provides read-only access to the projection tables and the event
// log. Responses carry as_of_sequence so callers can reason about freshness
// relative to the core.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetContract returns one contract from the projection.
func (s *Service) GetContract(ctx context.Context, id uint64) (*ContractResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT contract_id, seller, buyer, beneficiary, fee_receiver,
		       trigger_symbol, trigger_price, start_date, end_date,
		       reserve_is_token, reserve_symbol, reserve_amount, insurance_fee,
		       auto_execute, whitelist_enabled, status, observed_price
		FROM projections.contracts
		WHERE contract_id = $1
	`, id)

	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.AsOfSequence = asOfSeq
	return c, nil
}

// ListContracts returns contracts filtered by status and/or participant,
// paginated by contract id.
func (s *Service) ListContracts(
	ctx context.Context,
	status *string,
	participant *common.Address,
	limit int,
	afterID *uint64,
) ([]ContractResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT contract_id, seller, buyer, beneficiary, fee_receiver,
		       trigger_symbol, trigger_price, start_date, end_date,
		       reserve_is_token, reserve_symbol, reserve_amount, insurance_fee,
		       auto_execute, whitelist_enabled, status, observed_price
		FROM projections.contracts
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}
	if participant != nil {
		query += fmt.Sprintf(" AND (seller = $%d OR buyer = $%d)", argIdx, argIdx)
		args = append(args, participant.Hex())
		argIdx++
	}
	if afterID != nil {
		query += fmt.Sprintf(" AND contract_id > $%d", argIdx)
		args = append(args, *afterID)
		argIdx++
	}

	query += " ORDER BY contract_id ASC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []ContractResponse
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		c.AsOfSequence = asOfSeq
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

// GetContractHistory returns the event-log rows for one contract, newest
// first, paginated by sequence.
func (s *Service) GetContractHistory(
	ctx context.Context,
	id uint64,
	limit int,
	afterSequence *int64,
) ([]ContractHistoryEntry, error) {
	query := `
		SELECT sequence, event_type, actor, payload, EXTRACT(EPOCH FROM timestamp)::BIGINT
		FROM event_log.events
		WHERE contract_id = $1
	`
	args := []interface{}{id}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ContractHistoryEntry
	for rows.Next() {
		var h ContractHistoryEntry
		if err := rows.Scan(&h.Sequence, &h.EventType, &h.Actor, &h.Payload, &h.Timestamp); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetWalletBalances returns a user's wallet balance for every known asset.
func (s *Service) GetWalletBalances(ctx context.Context, user common.Address) ([]BalanceResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var balances []BalanceResponse
	for _, asset := range []string{"AVAX", "USDC"} {
		assetID, _ := ledger.GetAssetID(asset)
		path := ledger.NewWalletKey(user, assetID).AccountPath()

		var balance int64
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(balance, 0) FROM projections.balances
			WHERE account_path = $1 AND asset_id = $2
		`, path, assetID).Scan(&balance)
		if err == sql.ErrNoRows {
			balance = 0
		} else if err != nil {
			return nil, err
		}

		balances = append(balances, BalanceResponse{
			AccountPath:  path,
			Asset:        asset,
			Balance:      balance,
			AsOfSequence: asOfSeq,
		})
	}
	return balances, nil
}

// GetJournalHistory returns journal entries touching a user's accounts,
// newest first, paginated by sequence.
func (s *Service) GetJournalHistory(
	ctx context.Context,
	user common.Address,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", user.Hex())

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetAutomationRuns returns recent automation passes, newest first.
func (s *Service) GetAutomationRuns(ctx context.Context, limit int) ([]AutomationRunResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, checked, eligible, triggered, gas_used, rate_limited,
		       total_triggered, total_runs, EXTRACT(EPOCH FROM executed_at)::BIGINT
		FROM projections.automation_runs
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AutomationRunResponse
	for rows.Next() {
		var r AutomationRunResponse
		if err := rows.Scan(
			&r.Sequence, &r.Checked, &r.Eligible, &r.Triggered, &r.GasUsed,
			&r.RateLimited, &r.TotalTriggered, &r.TotalRuns, &r.ExecutedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// VerifyIntegrity checks event-log continuity and the global zero-sum
// invariant over the balance projection.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	gapRows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > (SELECT MIN(sequence) FROM event_log.events)
		  AND e2.sequence IS NULL
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer gapRows.Close()

	for gapRows.Next() {
		var seq int64
		if err := gapRows.Scan(&seq); err != nil {
			return nil, err
		}
		report.SequenceGaps = append(report.SequenceGaps, seq)
	}
	if err := gapRows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.SequenceGaps) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row rowScanner) (*ContractResponse, error) {
	var c ContractResponse
	var buyer, beneficiary sql.NullString
	var observed sql.NullInt64

	if err := row.Scan(
		&c.ContractID, &c.Seller, &buyer, &beneficiary, &c.FeeReceiver,
		&c.TriggerSymbol, &c.TriggerPrice, &c.StartDate, &c.EndDate,
		&c.ReserveIsToken, &c.ReserveSymbol, &c.ReserveAmount, &c.InsuranceFee,
		&c.AutoExecute, &c.WhitelistEnabled, &c.Status, &observed,
	); err != nil {
		return nil, err
	}

	if buyer.Valid {
		c.Buyer = &buyer.String
	}
	if beneficiary.Valid {
		c.Beneficiary = &beneficiary.String
	}
	if observed.Valid {
		c.ObservedPrice = &observed.Int64
	}
	return &c, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
