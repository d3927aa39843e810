// internal/event/price.go
package event

// PriceUpdated records an accepted oracle quote after normalization.
type PriceUpdated struct {
	Symbol   string `json:"symbol"`
	Price    int64  `json:"price"` // 1e8 scale after normalization
	RawValue int64  `json:"raw_value"`
	Decimals int32  `json:"decimals"`
	Sequence int64  `json:"feed_sequence"`
}

func (e *PriceUpdated) EventType() EventType { return EventTypePriceUpdated }
func (e *PriceUpdated) ContractRef() *uint64 { return nil }

// OracleModeChanged records an admin switch between feed and test price modes.
type OracleModeChanged struct {
	Admin string `json:"admin"`
	Mode  int32  `json:"mode"` // oracle.Mode value
}

func (e *OracleModeChanged) EventType() EventType { return EventTypeOracleModeChanged }
func (e *OracleModeChanged) ContractRef() *uint64 { return nil }
