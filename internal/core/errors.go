package core

import (
	"errors"
	"fmt"
)

// Kind classifies rejections so the outer surfaces can map them without
// string matching.
type Kind int32

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindStateConflict
	KindFunds
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindStateConflict:
		return "state_conflict"
	case KindFunds:
		return "funds"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Rejection reasons, stable strings for logs and clients.
const (
	ReasonContractNotFound     = "contract not found"
	ReasonNotSeller            = "caller is not the seller"
	ReasonNotBuyer             = "caller is not the buyer"
	ReasonNotAdmin             = "caller is not the admin"
	ReasonAlreadyPurchased     = "contract already purchased"
	ReasonNotPurchased         = "contract has no buyer"
	ReasonExpired              = "coverage window has closed"
	ReasonNotStarted           = "coverage window has not opened"
	ReasonNotTriggered         = "payout has not been triggered"
	ReasonAlreadyTriggered     = "payout already triggered"
	ReasonAlreadySettled       = "contract already settled"
	ReasonNotWithdrawable      = "reserve is not withdrawable"
	ReasonInvalidFeeAmount     = "fee amount must equal the insurance fee exactly"
	ReasonInvalidWindow        = "start date must precede end date"
	ReasonWindowInPast         = "end date must be in the future"
	ReasonInvalidAmount        = "amount must be positive"
	ReasonUnknownAsset         = "unknown asset symbol"
	ReasonNoPrice              = "no price available for symbol"
	ReasonConditionNotMet      = "current price is above the trigger price"
	ReasonNotWhitelisted       = "buyer is not on the whitelist"
	ReasonWhitelistNoOp        = "whitelist entry unchanged"
	ReasonSellerCannotBuy      = "seller cannot purchase own contract"
	ReasonZeroAddress          = "zero address not allowed"
	ReasonInsufficientFunds    = "insufficient funds"
	ReasonTransferFailed       = "external transfer failed"
	ReasonAutomationOff        = "automation is disabled"
	ReasonTestModeOnly         = "operation only allowed in test mode"
	ReasonInvalidOracleMode    = "unknown oracle mode"
	ReasonRecoveryExceedsStray = "recovery exceeds stray balance"
)

// Error is the typed rejection every operation returns on failure.
type Error struct {
	Kind       Kind
	ContractID uint64 // zero for global operations
	Reason     string
}

func (e *Error) Error() string {
	if e.ContractID != 0 {
		return fmt.Sprintf("%s: contract %d: %s", e.Kind, e.ContractID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func newError(kind Kind, contractID uint64, reason string) *Error {
	return &Error{Kind: kind, ContractID: contractID, Reason: reason}
}

// IsKind reports whether err is a core rejection of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

// KindOf extracts the rejection kind, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}
