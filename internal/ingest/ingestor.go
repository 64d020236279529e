// Package ingest turns raw swap logs for a block range into typed swap
// records, resolving each log's pool to its token pair on the way.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
	"golang.org/x/sync/errgroup"

	"ratepath/internal/chain"
	"ratepath/internal/domain"
)

// ErrMalformedLog marks a log entry with unparsable fields. Fatal for the
// whole ingestion call, there is no skip-and-continue mode.
var ErrMalformedLog = errors.New("malformed swap log")

// LogSource fetches raw swap logs for an inclusive block range.
type LogSource interface {
	SwapLogs(ctx context.Context, fromBlock, toBlock uint64) ([]chain.RawLog, error)
}

// PoolResolver maps a pool address to its token pair.
type PoolResolver interface {
	PoolTokens(ctx context.Context, pool domain.Address) (domain.PoolMetadata, error)
}

type Ingestor struct {
	lg     logger.Logger
	source LogSource
	pools  PoolResolver
}

func NewIngestor(lg logger.Logger, source LogSource, pools PoolResolver) *Ingestor {
	return &Ingestor{lg: lg, source: source, pools: pools}
}

// Ingest fetches every swap log in [fromBlock, toBlock], resolves the distinct
// pools concurrently (one goroutine per pool, no cap) and parses each log into
// a SwapRecord. Any unresolvable pool or unparsable log fails the whole range.
func (ing *Ingestor) Ingest(ctx context.Context, fromBlock, toBlock uint64) ([]domain.SwapRecord, error) {
	logs, err := ing.source.SwapLogs(ctx, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("fetch swap logs: %w", err)
	}

	seen := make(map[domain.Address]struct{})
	var pools []domain.Address
	for _, l := range logs {
		addr := domain.NormalizeAddress(l.Address)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		pools = append(pools, addr)
	}

	resolved := make(map[domain.Address]domain.PoolMetadata, len(pools))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, pool := range pools {
		g.Go(func() error {
			meta, err := ing.pools.PoolTokens(gctx, pool)
			if err != nil {
				return fmt.Errorf("resolve pool %s: %w", pool, err)
			}
			mu.Lock()
			resolved[pool] = meta
			mu.Unlock()
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	records := make([]domain.SwapRecord, 0, len(logs))
	for _, l := range logs {
		rec, err := parseLog(l, resolved)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	ing.lg.Debugf("Ingested %d swap records across %d pools, blocks=%d..%d", len(records), len(pools), fromBlock, toBlock)
	return records, nil
}

func parseLog(l chain.RawLog, pools map[domain.Address]domain.PoolMetadata) (domain.SwapRecord, error) {
	pool := domain.NormalizeAddress(l.Address)
	meta := pools[pool]

	block, err := parseHexUint(l.BlockNumber)
	if err != nil {
		return domain.SwapRecord{}, fmt.Errorf("%w: block number %q: %v", ErrMalformedLog, l.BlockNumber, err)
	}
	logIndex, err := parseHexUint(l.LogIndex)
	if err != nil {
		return domain.SwapRecord{}, fmt.Errorf("%w: log index %q in tx %s: %v", ErrMalformedLog, l.LogIndex, l.TxHash, err)
	}
	amount0, amount1, err := chain.DecodeSwapAmounts(l.Data)
	if err != nil {
		return domain.SwapRecord{}, fmt.Errorf("%w: tx %s: %v", ErrMalformedLog, l.TxHash, err)
	}

	return domain.SwapRecord{
		BlockNumber: block,
		TxHash:      strings.ToLower(l.TxHash),
		LogIndex:    uint32(logIndex),
		Pool:        pool,
		FromToken:   meta.Token0,
		ToToken:     meta.Token1,
		FromAmount:  amount0,
		ToAmount:    amount1,
	}, nil
}

func parseHexUint(s string) (uint64, error) {
	h := strings.TrimPrefix(s, "0x")
	if h == "" {
		return 0, fmt.Errorf("empty hex number")
	}
	return strconv.ParseUint(h, 16, 64)
}
