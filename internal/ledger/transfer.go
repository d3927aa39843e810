package ledger

import (
	"github.com/ethereum/go-ethereum/common"
)

// Transferer delivers value across the external boundary. Implementations
// settle against a chain, a bank rail, or nothing at all in tests. A returned
// error means no value moved and the caller must undo its ledger effects.
type Transferer interface {
	// TransferOut delivers amount of asset to an external address.
	TransferOut(to common.Address, assetID AssetID, amount int64) error
}

// NoopTransferer accepts every transfer. Used in tests and in deployments
// where settlement happens out of band.
type NoopTransferer struct{}

func (NoopTransferer) TransferOut(common.Address, AssetID, int64) error { return nil }

// FailingTransferer rejects every transfer. Test helper for the rollback path.
type FailingTransferer struct {
	Err error
}

func (f FailingTransferer) TransferOut(common.Address, AssetID, int64) error { return f.Err }
