package model

import "time"

// PositionSnapshot stores one published position for history.
type PositionSnapshot struct {
	ChainID      uint64      `json:"chain_id"`
	Account      string      `json:"account"`
	Source       string      `json:"source"`
	Contract     string      `json:"contract"`
	TokenAddress string      `json:"token_address"`
	Symbol       string      `json:"symbol"`
	Balance      string      `json:"balance"`
	FiatBalance  *string     `json:"fiat_balance,omitempty"`
	PriceStatus  PriceStatus `json:"price_status"`
	CapturedAt   time.Time   `json:"captured_at"`
}
