package oracle

import (
	"fmt"

	fpmath "CoverLedger/internal/math"
)

// Mode selects where prices come from. Feed mode accepts only ingested
// quotes; test mode additionally allows manual overrides.
type Mode int32

const (
	ModeFeed Mode = iota
	ModeTest
)

// Quote is a raw feed observation before normalization.
type Quote struct {
	Symbol   string
	RawValue int64
	Decimals int32
	Sequence int64 // feed-side sequence, guards against regressions
}

// PricePoint is a normalized, accepted observation.
type PricePoint struct {
	Price    int64 `json:"price"` // 1e8 scale
	Sequence int64 `json:"sequence"`
	UpdateAt int64 `json:"updated_at"` // epoch micros
}

// Registry holds the latest accepted price per symbol. Like all core state it
// is only touched from the command loop, so no locking here.
type Registry struct {
	mode   Mode
	latest map[string]PricePoint
}

func NewRegistry(mode Mode) *Registry {
	return &Registry{
		mode:   mode,
		latest: make(map[string]PricePoint),
	}
}

func (r *Registry) Mode() Mode { return r.mode }

// SetMode switches the price source. Switching out of test mode keeps the
// stored prices; the next feed quote with a higher sequence replaces them.
func (r *Registry) SetMode(mode Mode) { r.mode = mode }

// ApplyQuote normalizes and stores a feed quote. Quotes whose feed sequence
// does not advance past the stored one are rejected, so a replayed or
// reordered message can never roll a price backwards.
func (r *Registry) ApplyQuote(q Quote, now int64) (PricePoint, error) {
	if q.RawValue <= 0 {
		return PricePoint{}, fmt.Errorf("non-positive quote for %s: %d", q.Symbol, q.RawValue)
	}
	if prev, ok := r.latest[q.Symbol]; ok && q.Sequence <= prev.Sequence {
		return PricePoint{}, fmt.Errorf("stale quote for %s: seq %d <= %d", q.Symbol, q.Sequence, prev.Sequence)
	}

	point := PricePoint{
		Price:    fpmath.NormalizePrice(q.RawValue, q.Decimals),
		Sequence: q.Sequence,
		UpdateAt: now,
	}
	r.latest[q.Symbol] = point
	return point, nil
}

// SetTestPrice overrides a symbol price directly. Only available in test mode.
func (r *Registry) SetTestPrice(symbol string, price int64, now int64) (PricePoint, error) {
	if r.mode != ModeTest {
		return PricePoint{}, fmt.Errorf("price override rejected: registry is not in test mode")
	}
	if price <= 0 {
		return PricePoint{}, fmt.Errorf("non-positive override for %s: %d", symbol, price)
	}

	point := PricePoint{
		Price:    price,
		Sequence: r.latest[symbol].Sequence + 1,
		UpdateAt: now,
	}
	r.latest[symbol] = point
	return point, nil
}

// LatestPrice returns the last accepted price for a symbol.
func (r *Registry) LatestPrice(symbol string) (PricePoint, bool) {
	p, ok := r.latest[symbol]
	return p, ok
}

// Snapshot returns a copy of all stored prices.
func (r *Registry) Snapshot() map[string]PricePoint {
	out := make(map[string]PricePoint, len(r.latest))
	for k, v := range r.latest {
		out[k] = v
	}
	return out
}

// Restore replaces stored prices from a snapshot.
func (r *Registry) Restore(points map[string]PricePoint) {
	r.latest = make(map[string]PricePoint, len(points))
	for k, v := range points {
		r.latest[k] = v
	}
}
