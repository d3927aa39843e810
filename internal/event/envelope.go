package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeContractCreated
	EventTypeContractPurchased
	EventTypeBeneficiaryChanged
	EventTypeFeeReceiverChanged
	EventTypePayoutTriggered
	EventTypePayoutClaimed
	EventTypeReserveWithdrawn
	EventTypeBuyerWhitelisted
	EventTypeBuyerRemovedFromWhitelist
	EventTypeBatchWhitelistUpdate
	EventTypeWhitelistModeChanged
	EventTypeAutomationExecuted
	EventTypeAutomationConfigured
	EventTypePriceUpdated
	EventTypeWalletFunded
	EventTypeStrayReceived
	EventTypeAssetRecovered
	EventTypeOracleModeChanged
)

// Envelope wraps every event in the append-only log.
type Envelope struct {
	// Global monotonic sequence assigned by the core
	Sequence int64

	// Event type discriminator
	EventType EventType

	// Contract context (nullable for global events)
	ContractID *uint64

	// Caller that produced the transition (zero address for system events)
	Actor common.Address

	// Client-supplied idempotency key, empty when none was provided
	IdempotencyKey string

	// Command timestamp stamped by the shell
	Timestamp time.Time

	// JSON-encoded event-specific data
	Payload []byte
}

// Event is the interface all event payloads implement.
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// ContractRef returns the contract context (nil for global events)
	ContractRef() *uint64
}

func (et EventType) String() string {
	switch et {
	case EventTypeContractCreated:
		return "ContractCreated"
	case EventTypeContractPurchased:
		return "ContractPurchased"
	case EventTypeBeneficiaryChanged:
		return "BeneficiaryChanged"
	case EventTypeFeeReceiverChanged:
		return "FeeReceiverChanged"
	case EventTypePayoutTriggered:
		return "PayoutTriggered"
	case EventTypePayoutClaimed:
		return "PayoutClaimed"
	case EventTypeReserveWithdrawn:
		return "ReserveWithdrawn"
	case EventTypeBuyerWhitelisted:
		return "BuyerWhitelisted"
	case EventTypeBuyerRemovedFromWhitelist:
		return "BuyerRemovedFromWhitelist"
	case EventTypeBatchWhitelistUpdate:
		return "BatchWhitelistUpdate"
	case EventTypeWhitelistModeChanged:
		return "WhitelistModeChanged"
	case EventTypeAutomationExecuted:
		return "AutomationExecuted"
	case EventTypeAutomationConfigured:
		return "AutomationConfigured"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	case EventTypeWalletFunded:
		return "WalletFunded"
	case EventTypeStrayReceived:
		return "StrayReceived"
	case EventTypeAssetRecovered:
		return "AssetRecovered"
	case EventTypeOracleModeChanged:
		return "OracleModeChanged"
	default:
		return "Unknown"
	}
}

// TypeFromString is the inverse of EventType.String, used by replay.
func TypeFromString(s string) EventType {
	for et := EventTypeContractCreated; et <= EventTypeOracleModeChanged; et++ {
		if et.String() == s {
			return et
		}
	}
	return EventTypeUnknown
}
