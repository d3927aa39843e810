package state

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// WhitelistManager tracks per-contract buyer whitelists.
type WhitelistManager struct {
	members map[uint64]map[common.Address]bool
}

func NewWhitelistManager() *WhitelistManager {
	return &WhitelistManager{
		members: make(map[uint64]map[common.Address]bool),
	}
}

// Add puts a buyer on a contract whitelist. Adding an existing member is an
// error so callers can surface the no-op instead of silently re-emitting.
func (wm *WhitelistManager) Add(contractID uint64, buyer common.Address) error {
	set := wm.members[contractID]
	if set == nil {
		set = make(map[common.Address]bool)
		wm.members[contractID] = set
	}
	if set[buyer] {
		return fmt.Errorf("buyer %s already whitelisted on contract %d", buyer.Hex(), contractID)
	}
	set[buyer] = true
	return nil
}

// Remove takes a buyer off a contract whitelist. Removing a non-member is an
// error for the same reason Add is.
func (wm *WhitelistManager) Remove(contractID uint64, buyer common.Address) error {
	set := wm.members[contractID]
	if set == nil || !set[buyer] {
		return fmt.Errorf("buyer %s not whitelisted on contract %d", buyer.Hex(), contractID)
	}
	delete(set, buyer)
	return nil
}

// Contains reports whitelist membership.
func (wm *WhitelistManager) Contains(contractID uint64, buyer common.Address) bool {
	return wm.members[contractID][buyer]
}

// Count returns the whitelist size for a contract.
func (wm *WhitelistManager) Count(contractID uint64) int {
	return len(wm.members[contractID])
}

// Page returns a stable slice of members sorted by address bytes, plus a flag
// for whether more entries follow. Offset past the end yields an empty page.
func (wm *WhitelistManager) Page(contractID uint64, offset, limit int) ([]common.Address, bool) {
	set := wm.members[contractID]
	all := make([]common.Address, 0, len(set))
	for addr := range set {
		all = append(all, addr)
	}
	sort.Slice(all, func(i, j int) bool {
		return bytes.Compare(all[i][:], all[j][:]) < 0
	})

	if offset < 0 || offset >= len(all) {
		return []common.Address{}, false
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], end < len(all)
}

// Snapshot returns all whitelists keyed by contract id.
func (wm *WhitelistManager) Snapshot() map[uint64][]common.Address {
	out := make(map[uint64][]common.Address, len(wm.members))
	for id := range wm.members {
		page, _ := wm.Page(id, 0, 0)
		if len(page) > 0 {
			out[id] = page
		}
	}
	return out
}

// Restore rebuilds all whitelists from a snapshot.
func (wm *WhitelistManager) Restore(snapshot map[uint64][]common.Address) {
	wm.members = make(map[uint64]map[common.Address]bool, len(snapshot))
	for id, addrs := range snapshot {
		set := make(map[common.Address]bool, len(addrs))
		for _, a := range addrs {
			set[a] = true
		}
		wm.members[id] = set
	}
}
