// Package metadata turns pool and token addresses into their on-chain
// metadata, backed by the metacache so each address hits the node once.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/nevasik7/alerting/logger"
	"golang.org/x/sync/errgroup"

	"ratepath/internal/chain"
	"ratepath/internal/domain"
	"ratepath/internal/metacache"
	"ratepath/internal/metrics"
)

// ErrContractResolution marks an address that does not answer the expected
// contract interface. Transient network failures never surface as this error,
// they are retried inside the chain client and, once the retry budget is
// spent, pass through unwrapped.
var ErrContractResolution = errors.New("contract resolution failed")

// ChainReader is the slice of the chain client the resolver needs.
type ChainReader interface {
	PoolToken(ctx context.Context, pool domain.Address, slot int) (domain.Address, error)
	TokenDecimals(ctx context.Context, token domain.Address) (uint8, error)
	TokenSymbol(ctx context.Context, token domain.Address) (string, error)
}

type Resolver struct {
	lg    logger.Logger
	chain ChainReader
	store metacache.Store
}

func NewResolver(lg logger.Logger, chain ChainReader, store metacache.Store) *Resolver {
	return &Resolver{lg: lg, chain: chain, store: store}
}

// PoolTokens returns the token pair held by a pool contract. Both slots are
// fetched concurrently on a cache miss.
func (r *Resolver) PoolTokens(ctx context.Context, pool domain.Address) (domain.PoolMetadata, error) {
	pool = domain.NormalizeAddress(pool.String())

	meta, ok, err := r.store.GetPoolPair(ctx, pool)
	if err != nil {
		r.lg.Warnf("Pool pair cache read failed for %s, error=%v", pool, err)
	}
	if ok {
		metrics.CacheHits.WithLabelValues("pool_pair").Inc()
		return meta, nil
	}
	metrics.CacheMisses.WithLabelValues("pool_pair").Inc()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		token0, err := r.chain.PoolToken(gctx, pool, 0)
		if err != nil {
			return err
		}
		meta.Token0 = token0
		return nil
	})
	g.Go(func() error {
		token1, err := r.chain.PoolToken(gctx, pool, 1)
		if err != nil {
			return err
		}
		meta.Token1 = token1
		return nil
	})
	if err = g.Wait(); err != nil {
		return domain.PoolMetadata{}, r.classify("pool", pool, err)
	}

	if err = r.store.SetPoolPair(ctx, pool, meta); err != nil {
		r.lg.Warnf("Pool pair cache write failed for %s, error=%v", pool, err)
	}
	return meta, nil
}

func (r *Resolver) TokenDecimals(ctx context.Context, token domain.Address) (uint8, error) {
	token = domain.NormalizeAddress(token.String())

	decimals, ok, err := r.store.GetDecimals(ctx, token)
	if err != nil {
		r.lg.Warnf("Decimals cache read failed for %s, error=%v", token, err)
	}
	if ok {
		metrics.CacheHits.WithLabelValues("decimals").Inc()
		return decimals, nil
	}
	metrics.CacheMisses.WithLabelValues("decimals").Inc()

	decimals, err = r.chain.TokenDecimals(ctx, token)
	if err != nil {
		return 0, r.classify("token", token, err)
	}

	if err = r.store.SetDecimals(ctx, token, decimals); err != nil {
		r.lg.Warnf("Decimals cache write failed for %s, error=%v", token, err)
	}
	return decimals, nil
}

func (r *Resolver) TokenSymbol(ctx context.Context, token domain.Address) (string, error) {
	token = domain.NormalizeAddress(token.String())

	symbol, ok, err := r.store.GetSymbol(ctx, token)
	if err != nil {
		r.lg.Warnf("Symbol cache read failed for %s, error=%v", token, err)
	}
	if ok {
		metrics.CacheHits.WithLabelValues("symbol").Inc()
		return symbol, nil
	}
	metrics.CacheMisses.WithLabelValues("symbol").Inc()

	symbol, err = r.chain.TokenSymbol(ctx, token)
	if err != nil {
		return "", r.classify("token", token, err)
	}

	if err = r.store.SetSymbol(ctx, token, symbol); err != nil {
		r.lg.Warnf("Symbol cache write failed for %s, error=%v", token, err)
	}
	return symbol, nil
}

// classify separates broken contracts from exhausted retries and cancellation.
func (r *Resolver) classify(kind string, addr domain.Address, err error) error {
	if errors.Is(err, chain.ErrRetriesExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", ErrContractResolution, kind, addr, err)
}
