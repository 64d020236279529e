package domain

import (
	"errors"
	"math/big"
	"strings"
)

// Token or pool contract address, always stored lower-case.
// Two addresses are the same iff their normalized strings are equal.
type Address string

func (a Address) String() string { return string(a) }

// NormalizeAddress lower-cases an address so it can be used as a cache or
// graph key. All addresses entering the engine go through this once.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(s))
}

// ValidAddress reports whether s looks like a 0x-prefixed 20-byte hex address.
func ValidAddress(s string) bool {
	if len(s) != 42 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

var ErrZeroFromAmount = errors.New("swap record has zero from-amount")

// One parsed swap event. Built once at ingestion and never mutated;
// amounts are raw token units with the sign of the on-chain value dropped.
type SwapRecord struct {
	BlockNumber uint64  `json:"block_number"`
	TxHash      string  `json:"tx_hash"` // 0x-prefixed 66 chars
	LogIndex    uint32  `json:"log_index"`
	Pool        Address `json:"pool_address"`

	FromToken Address `json:"from_token"`
	ToToken   Address `json:"to_token"`

	FromAmount *big.Int `json:"from_amount"`
	ToAmount   *big.Int `json:"to_amount"`
}

// Ratio returns toAmount/fromAmount for this single swap.
func (r *SwapRecord) Ratio() (float64, error) {
	if r.FromAmount == nil || r.FromAmount.Sign() == 0 {
		return 0, ErrZeroFromAmount
	}

	q := new(big.Float).Quo(
		new(big.Float).SetInt(r.ToAmount),
		new(big.Float).SetInt(r.FromAmount),
	)
	f, _ := q.Float64()
	return f, nil
}

// ID = "<block>:<tx_hash>:<log_index>", unique within a chain.
func (r *SwapRecord) ID() string {
	return formatRecordID(r.BlockNumber, r.TxHash, r.LogIndex)
}

// The two token slots of a pool contract, in the pool's own order.
type PoolMetadata struct {
	Token0 Address `json:"token0"`
	Token1 Address `json:"token1"`
}

// Static ERC20 display fields.
type TokenMetadata struct {
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// Result of one conversion request. Field names follow the public API
// payload, so this marshals straight into the HTTP response.
type ConversionResult struct {
	ConversionRate float64   `json:"conversion_rate"`
	Token0Decimals uint8     `json:"token0_decimals"`
	Token1Decimals uint8     `json:"token1_decimals"`
	Token0Symbol   string    `json:"token0_symbol"`
	Token1Symbol   string    `json:"token1_symbol"`
	Path           []Address `json:"token_pair_path"`
}

// Hops is the number of pool hops along the chosen path.
func (c *ConversionResult) Hops() int {
	if len(c.Path) == 0 {
		return 0
	}
	return len(c.Path) - 1
}
