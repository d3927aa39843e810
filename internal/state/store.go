package state

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ContractStore holds every contract in memory, indexed for the access
// patterns the core needs. Single-writer, touched only from the command loop.
type ContractStore struct {
	nextID    uint64
	contracts map[uint64]*Contract

	bySeller map[common.Address][]uint64
	byBuyer  map[common.Address][]uint64
}

func NewContractStore() *ContractStore {
	return &ContractStore{
		nextID:    1,
		contracts: make(map[uint64]*Contract),
		bySeller:  make(map[common.Address][]uint64),
		byBuyer:   make(map[common.Address][]uint64),
	}
}

// NextID returns the id the next created contract will receive.
func (s *ContractStore) NextID() uint64 { return s.nextID }

// Add inserts a new contract, assigning it the next id.
func (s *ContractStore) Add(c *Contract) uint64 {
	c.ID = s.nextID
	s.nextID++
	s.contracts[c.ID] = c
	s.bySeller[c.Seller] = append(s.bySeller[c.Seller], c.ID)
	return c.ID
}

// Get returns a contract by id.
func (s *ContractStore) Get(id uint64) (*Contract, bool) {
	c, ok := s.contracts[id]
	return c, ok
}

// IndexBuyer records the buyer index entry after a purchase.
func (s *ContractStore) IndexBuyer(buyer common.Address, id uint64) {
	s.byBuyer[buyer] = append(s.byBuyer[buyer], id)
}

// All returns every contract in ascending id order.
func (s *ContractStore) All() []*Contract {
	out := make([]*Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns purchased, untriggered contracts in ascending id order.
// The automation scan depends on this ordering being deterministic.
func (s *ContractStore) Active() []*Contract {
	out := make([]*Contract, 0)
	for _, c := range s.contracts {
		if c.Status == StatusActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByUser returns contracts where the address is seller or buyer, ascending id.
func (s *ContractStore) ByUser(user common.Address) []*Contract {
	seen := make(map[uint64]bool)
	out := make([]*Contract, 0)
	for _, id := range s.bySeller[user] {
		if !seen[id] {
			seen[id] = true
			out = append(out, s.contracts[id])
		}
	}
	for _, id := range s.byBuyer[user] {
		if !seen[id] {
			seen[id] = true
			out = append(out, s.contracts[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of stored contracts.
func (s *ContractStore) Count() int { return len(s.contracts) }

// Snapshot returns a deep copy of all contracts plus the id counter.
func (s *ContractStore) Snapshot() ([]Contract, uint64) {
	out := make([]Contract, 0, len(s.contracts))
	for _, c := range s.All() {
		out = append(out, *c)
	}
	return out, s.nextID
}

// Restore rebuilds the store and its indexes from a snapshot.
func (s *ContractStore) Restore(contracts []Contract, nextID uint64) error {
	s.contracts = make(map[uint64]*Contract, len(contracts))
	s.bySeller = make(map[common.Address][]uint64)
	s.byBuyer = make(map[common.Address][]uint64)

	for i := range contracts {
		c := contracts[i]
		if _, dup := s.contracts[c.ID]; dup {
			return fmt.Errorf("duplicate contract id %d in snapshot", c.ID)
		}
		stored := c
		s.contracts[c.ID] = &stored
		s.bySeller[c.Seller] = append(s.bySeller[c.Seller], c.ID)
		if c.IsPurchased() {
			s.byBuyer[c.Buyer] = append(s.byBuyer[c.Buyer], c.ID)
		}
		if c.ID >= nextID {
			return fmt.Errorf("contract id %d not below next id %d", c.ID, nextID)
		}
	}

	s.nextID = nextID
	return nil
}
