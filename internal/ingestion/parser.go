package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"CoverLedger/internal/oracle"
)

// Inbound is a typed message parsed from a RawEvent, ready for the shell to
// submit into the core loop.
type Inbound interface {
	InboundType() string
}

// PriceQuote is a feed quote from the oracle relay.
type PriceQuote struct {
	Quote       oracle.Quote
	TimestampUs int64
}

func (p *PriceQuote) InboundType() string { return "PriceQuote" }

// WalletFunding is a confirmed on-chain deposit credited to a user wallet.
// TxHash doubles as the idempotency key, so redeliveries are no-ops.
type WalletFunding struct {
	User        common.Address
	Asset       string
	Amount      int64
	TxHash      string
	TimestampUs int64
}

func (w *WalletFunding) InboundType() string { return "WalletFunding" }

// StrayDeposit is value that arrived outside any operation, booked to the
// stray account until an admin recovers it.
type StrayDeposit struct {
	From        common.Address
	Asset       string
	Amount      int64
	TxHash      string
	TimestampUs int64
}

func (s *StrayDeposit) InboundType() string { return "StrayDeposit" }

// ParseRawEvent converts a RawEvent into a typed inbound message.
func ParseRawEvent(raw RawEvent, eventType string) (Inbound, error) {
	switch eventType {
	case "PriceQuote":
		return parsePriceQuote(raw.Data)
	case "WalletFunding":
		return parseWalletFunding(raw.Data)
	case "StrayDeposit":
		return parseStrayDeposit(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type priceQuoteJSON struct {
	Symbol      string `json:"symbol"`
	Value       int64  `json:"value"` // raw feed value, scaled by decimals
	Decimals    uint8  `json:"decimals"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePriceQuote(data []byte) (*PriceQuote, error) {
	var j priceQuoteJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceQuote: %w", err)
	}
	if j.Symbol == "" {
		return nil, fmt.Errorf("parse PriceQuote: empty symbol")
	}
	if j.Value <= 0 {
		return nil, fmt.Errorf("parse PriceQuote: non-positive value %d", j.Value)
	}

	return &PriceQuote{
		Quote: oracle.Quote{
			Symbol:   j.Symbol,
			RawValue: j.Value,
			Decimals: int32(j.Decimals),
			Sequence: j.Sequence,
		},
		TimestampUs: j.TimestampUs,
	}, nil
}

type fundsJSON struct {
	Address     string `json:"address"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	TxHash      string `json:"tx_hash"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWalletFunding(data []byte) (*WalletFunding, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WalletFunding: %w", err)
	}
	if !common.IsHexAddress(j.Address) {
		return nil, fmt.Errorf("parse WalletFunding: invalid address %q", j.Address)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse WalletFunding: non-positive amount %d", j.Amount)
	}
	if j.TxHash == "" {
		return nil, fmt.Errorf("parse WalletFunding: missing tx_hash")
	}

	return &WalletFunding{
		User:        common.HexToAddress(j.Address),
		Asset:       j.Asset,
		Amount:      j.Amount,
		TxHash:      j.TxHash,
		TimestampUs: j.TimestampUs,
	}, nil
}

func parseStrayDeposit(data []byte) (*StrayDeposit, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StrayDeposit: %w", err)
	}
	if !common.IsHexAddress(j.Address) {
		return nil, fmt.Errorf("parse StrayDeposit: invalid address %q", j.Address)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse StrayDeposit: non-positive amount %d", j.Amount)
	}
	if j.TxHash == "" {
		return nil, fmt.Errorf("parse StrayDeposit: missing tx_hash")
	}

	return &StrayDeposit{
		From:        common.HexToAddress(j.Address),
		Asset:       j.Asset,
		Amount:      j.Amount,
		TxHash:      j.TxHash,
		TimestampUs: j.TimestampUs,
	}, nil
}
