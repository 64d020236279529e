// Package metacache persists resolved pool and token metadata between
// conversion requests. Entries are written once on first resolution and read
// on every later request touching the same address; the engine never
// invalidates them.
package metacache

import (
	"context"
	"fmt"
	"strings"

	"ratepath/internal/domain"
)

// One canonical key namespace per metadata kind.
const (
	poolPairPrefix      = "pool:pair:"
	tokenDecimalsPrefix = "token:decimals:"
	tokenSymbolPrefix   = "token:symbol:"
)

// Store is the metadata cache contract. Implementations must be safe for
// concurrent use; concurrent writers of the same key may race, last write
// wins.
type Store interface {
	GetPoolPair(ctx context.Context, pool domain.Address) (domain.PoolMetadata, bool, error)
	SetPoolPair(ctx context.Context, pool domain.Address, meta domain.PoolMetadata) error

	GetDecimals(ctx context.Context, token domain.Address) (uint8, bool, error)
	SetDecimals(ctx context.Context, token domain.Address, decimals uint8) error

	GetSymbol(ctx context.Context, token domain.Address) (string, bool, error)
	SetSymbol(ctx context.Context, token domain.Address, symbol string) error

	Health(ctx context.Context) error
}

func poolPairKey(pool domain.Address) string {
	return poolPairPrefix + pool.String()
}

func decimalsKey(token domain.Address) string {
	return tokenDecimalsPrefix + token.String()
}

func symbolKey(token domain.Address) string {
	return tokenSymbolPrefix + token.String()
}

// encodePair serializes a pool pair as comma-joined plain text.
func encodePair(meta domain.PoolMetadata) string {
	return meta.Token0.String() + "," + meta.Token1.String()
}

func decodePair(raw string) (domain.PoolMetadata, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return domain.PoolMetadata{}, fmt.Errorf("malformed pool pair entry %q", raw)
	}
	return domain.PoolMetadata{
		Token0: domain.NormalizeAddress(parts[0]),
		Token1: domain.NormalizeAddress(parts[1]),
	}, nil
}
