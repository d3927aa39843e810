package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeContract
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota

	// Contract sub-types
	SubTypeReserve

	// System sub-types
	SubTypeSystemStray

	// External sub-types
	SubTypeExternalWorld
)

// AssetID maps asset symbols to numeric IDs for performance
type AssetID uint16

// NativeAssetID is the chain-native asset. Everything else is a token.
const NativeAssetID AssetID = 1

var (
	assetToID = map[string]AssetID{
		"AVAX": 1,
		"USDC": 2,
	}
	idToAsset = map[AssetID]string{
		1: "AVAX",
		2: "USDC",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (comparable, map-friendly)
type AccountKey struct {
	Scope      AccountScope
	EntityID   [20]byte // address for user accounts, zero otherwise
	ContractID uint64   // contract id for reserve accounts, zero otherwise
	SubType    AccountSubType
	AssetID    AssetID
}

// NewWalletKey creates a key for a user wallet account
func NewWalletKey(user common.Address, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: user,
		SubType:  SubTypeWallet,
		AssetID:  assetID,
	}
}

// NewReserveKey creates a key for a contract reserve account
func NewReserveKey(contractID uint64, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:      AccountScopeContract,
		ContractID: contractID,
		SubType:    SubTypeReserve,
		AssetID:    assetID,
	}
}

// NewExternalKey creates a key for the external boundary account
func NewExternalKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: SubTypeExternalWorld,
		AssetID: assetID,
	}
}

// NewStrayKey creates a key for the stray-funds system account
func NewStrayKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: SubTypeSystemStray,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		addr := common.Address(k.EntityID)
		return fmt.Sprintf("user:%s:wallet:%s", addr.Hex(), assetName)
	case AccountScopeContract:
		return fmt.Sprintf("contract:%d:reserve:%s", k.ContractID, assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:stray:%s", assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:world:%s", assetName)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used by snapshot restore.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch {
	case len(parts) == 4 && parts[0] == "user" && parts[2] == "wallet":
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("unknown asset in path %q", path)
		}
		if !common.IsHexAddress(parts[1]) {
			return AccountKey{}, fmt.Errorf("invalid address in path %q", path)
		}
		return NewWalletKey(common.HexToAddress(parts[1]), assetID), nil

	case len(parts) == 4 && parts[0] == "contract" && parts[2] == "reserve":
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("unknown asset in path %q", path)
		}
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return AccountKey{}, fmt.Errorf("invalid contract id in path %q", path)
		}
		return NewReserveKey(id, assetID), nil

	case len(parts) == 3 && parts[0] == "system" && parts[1] == "stray":
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("unknown asset in path %q", path)
		}
		return NewStrayKey(assetID), nil

	case len(parts) == 3 && parts[0] == "external" && parts[1] == "world":
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("unknown asset in path %q", path)
		}
		return NewExternalKey(assetID), nil
	}

	return AccountKey{}, fmt.Errorf("unrecognized account path %q", path)
}
