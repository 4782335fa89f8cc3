package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Position sources.
const (
	SourceStakingPool = "staking_pool"
	SourceVault       = "vault"
)

// MissingPriceNote is shown next to balances whose fiat value could not be priced.
const MissingPriceNote = "Value may be zero due to missing token price information"

// PoolPosition is an account's stake in one staking pool.
type PoolPosition struct {
	PoolIndex uint64
	Token     common.Address
	Amount    *big.Int
}

// PriceStatus tags whether a fiat value is known.
type PriceStatus string

const (
	PriceStatusPriced      PriceStatus = "priced"
	PriceStatusUnavailable PriceStatus = "unavailable"
)

// Fiat is a fiat valuation that is either priced or explicitly unavailable.
type Fiat struct {
	Status     PriceStatus
	Balance    decimal.Decimal
	Conversion decimal.Decimal
}

// Priced builds a known fiat valuation.
func Priced(balance, conversion decimal.Decimal) Fiat {
	return Fiat{Status: PriceStatusPriced, Balance: balance, Conversion: conversion}
}

// PriceUnavailable builds a valuation with no known price.
func PriceUnavailable() Fiat {
	return Fiat{Status: PriceStatusUnavailable}
}

// IsPriced reports whether the valuation carries a price.
func (f Fiat) IsPriced() bool {
	return f.Status == PriceStatusPriced
}

// Value returns the fiat balance, zero when unavailable.
func (f Fiat) Value() decimal.Decimal {
	if !f.IsPriced() {
		return decimal.Zero
	}
	return f.Balance
}

// LpComposition is an LP position's constituent tokens and the account's pro-rata reserves.
type LpComposition struct {
	Token0   TokenMeta
	Token1   TokenMeta
	Reserves [2]*big.Int
}

// PricedBalance is a position joined with token metadata and a fiat valuation.
type PricedBalance struct {
	Source    string
	PoolIndex uint64
	Contract  common.Address
	Balance   *big.Int
	Token     TokenMeta
	Lp        *LpComposition
	Fiat      Fiat
}

// Balances is the result of one aggregation pass.
type Balances struct {
	Items     []PricedBalance
	FiatTotal decimal.Decimal
}

// TokenBalance is the display balance of a staked token.
type TokenBalance struct {
	TokenBalance string `json:"token_balance"`
	FiatBalance  string `json:"fiat_balance"`
}

// StakedToken is the display-ready position record published to consumers.
type StakedToken struct {
	TokenMeta
	Source         string       `json:"source"`
	Contract       string       `json:"contract"`
	IsLpToken      bool         `json:"is_lp_token"`
	Token0         *TokenMeta   `json:"token0,omitempty"`
	Token1         *TokenMeta   `json:"token1,omitempty"`
	Reserves       []string     `json:"reserves,omitempty"`
	Balance        TokenBalance `json:"balance"`
	FiatConversion string       `json:"fiat_conversion"`
	PriceStatus    PriceStatus  `json:"price_status"`
	PriceNote      string       `json:"price_note,omitempty"`
}
