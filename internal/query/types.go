package query

// ContractResponse is a contract read from the projection tables.
type ContractResponse struct {
	ContractID       uint64  `json:"contract_id"`
	Seller           string  `json:"seller"`
	Buyer            *string `json:"buyer,omitempty"`
	Beneficiary      *string `json:"beneficiary,omitempty"`
	FeeReceiver      string  `json:"fee_receiver"`
	TriggerSymbol    string  `json:"trigger_symbol"`
	TriggerPrice     int64   `json:"trigger_price"`
	StartDate        int64   `json:"start_date"`
	EndDate          int64   `json:"end_date"`
	ReserveIsToken   bool    `json:"reserve_is_token"`
	ReserveSymbol    string  `json:"reserve_symbol"`
	ReserveAmount    int64   `json:"reserve_amount"`
	InsuranceFee     int64   `json:"insurance_fee"`
	AutoExecute      bool    `json:"auto_execute"`
	WhitelistEnabled bool    `json:"whitelist_enabled"`
	Status           string  `json:"status"`
	ObservedPrice    *int64  `json:"observed_price,omitempty"`
	AsOfSequence     int64   `json:"as_of_sequence"`
}

// ContractHistoryEntry is one event-log row scoped to a contract.
type ContractHistoryEntry struct {
	Sequence  int64  `json:"sequence"`
	EventType string `json:"event_type"`
	Actor     string `json:"actor"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"` // Unix seconds
}

// BalanceResponse is one asset balance for an account.
type BalanceResponse struct {
	AccountPath  string `json:"account_path"`
	Asset        string `json:"asset"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// AutomationRunResponse is one recorded automation pass.
type AutomationRunResponse struct {
	Sequence       int64 `json:"sequence"`
	Checked        int   `json:"checked"`
	Eligible       int   `json:"eligible"`
	Triggered      int   `json:"triggered"`
	GasUsed        int64 `json:"gas_used"`
	RateLimited    bool  `json:"rate_limited"`
	TotalTriggered int64 `json:"total_triggered"`
	TotalRuns      int64 `json:"total_runs"`
	ExecutedAt     int64 `json:"executed_at"` // Unix seconds
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	SequenceGaps     []int64           `json:"sequence_gaps,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
