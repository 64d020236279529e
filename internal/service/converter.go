package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
	"golang.org/x/sync/errgroup"

	"ratepath/internal/config"
	"ratepath/internal/domain"
	"ratepath/internal/graph"
	"ratepath/internal/metrics"
	"ratepath/internal/pubsub"
	"ratepath/internal/stores/clickhouse"
)

// MetadataSource resolves display metadata for the two query tokens.
type MetadataSource interface {
	TokenDecimals(ctx context.Context, token domain.Address) (uint8, error)
	TokenSymbol(ctx context.Context, token domain.Address) (string, error)
}

// SwapSource loads parsed swap records for an inclusive block range.
type SwapSource interface {
	Ingest(ctx context.Context, fromBlock, toBlock uint64) ([]domain.SwapRecord, error)
}

// HistoryWriter archives finished conversions for later analytics.
type HistoryWriter interface {
	Enqueue(row clickhouse.ConversionRow) error
	Health(ctx context.Context) error
}

// HealthChecker is the probe slice of a backing store.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RateUpdate is the payload broadcast to subscribers after every successful
// conversion.
type RateUpdate struct {
	Token0      domain.Address           `json:"token0"`
	Token1      domain.Address           `json:"token1"`
	BlockNumber uint64                   `json:"block_number"`
	Result      *domain.ConversionResult `json:"result"`
}

// Encapsulates the logic-business for one conversion request;
// It the only point orchestration: metadata + swaps → graph walk → scale →
// archive/broadcast; Implements from HTTP, gRPC, CLI and etc...
type ConverterService struct {
	log         logger.Logger
	blockWindow uint64

	meta        MetadataSource
	swaps       SwapSource
	broadcaster pubsub.Broadcaster
	history     HistoryWriter
	cache       HealthChecker
}

func NewConverterService(
	log logger.Logger,
	cfg config.EngineConfig,
	meta MetadataSource,
	swaps SwapSource,
	broadcaster pubsub.Broadcaster,
	history HistoryWriter,
	cache HealthChecker,
) *ConverterService {
	if cfg.BlockWindow == 0 {
		cfg.BlockWindow = 200
	}

	return &ConverterService{
		log:         log,
		blockWindow: cfg.BlockWindow,
		meta:        meta,
		swaps:       swaps,
		broadcaster: broadcaster,
		history:     history,
		cache:       cache,
	}
}

// Convert computes how much token1 one whole token0 buys around the given
// block. Metadata for both tokens and the swap scan run concurrently; the
// first hard failure cancels the rest.
func (s *ConverterService) Convert(ctx context.Context, token0, token1 domain.Address, blockNumber uint64) (*domain.ConversionResult, error) {
	started := time.Now()

	token0 = domain.NormalizeAddress(token0.String())
	token1 = domain.NormalizeAddress(token1.String())
	fromBlock, toBlock := s.blockRange(blockNumber)

	var (
		dec0, dec1 uint8
		sym0, sym1 string
		records    []domain.SwapRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dec0, err = s.meta.TokenDecimals(gctx, token0)
		return err
	})
	g.Go(func() error {
		var err error
		dec1, err = s.meta.TokenDecimals(gctx, token1)
		return err
	})
	g.Go(func() error {
		var err error
		sym0, err = s.meta.TokenSymbol(gctx, token0)
		return err
	})
	g.Go(func() error {
		var err error
		sym1, err = s.meta.TokenSymbol(gctx, token1)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.swaps.Ingest(gctx, fromBlock, toBlock)
		return err
	})
	if err := g.Wait(); err != nil {
		s.observe(started, err)
		return nil, err
	}

	ratio, path, err := graph.Build(records).Rate(token0, token1)
	if err != nil {
		s.observe(started, err)
		return nil, err
	}

	res := &domain.ConversionResult{
		ConversionRate: ratio * math.Pow10(int(dec0)) / math.Pow10(int(dec1)),
		Token0Decimals: dec0,
		Token1Decimals: dec1,
		Token0Symbol:   sym0,
		Token1Symbol:   sym1,
		Path:           path,
	}

	s.observe(started, nil)
	s.archive(token0, token1, blockNumber, res, time.Since(started))
	s.broadcast(ctx, token0, token1, blockNumber, res)

	s.log.Debugf("Conversion %s -> %s at block %d: rate=%g, hops=%d, swaps=%d",
		token0, token1, blockNumber, res.ConversionRate, res.Hops(), len(records))

	return res, nil
}

// blockRange centers the scan window on the requested block, clamping the
// lower edge at genesis.
func (s *ConverterService) blockRange(block uint64) (uint64, uint64) {
	half := s.blockWindow / 2
	from := uint64(0)
	if block > half {
		from = block - half
	}
	return from, block + half
}

func (s *ConverterService) observe(started time.Time, err error) {
	metrics.ConversionDuration.Observe(time.Since(started).Seconds())
	metrics.Conversions.WithLabelValues(statusFor(err)).Inc()
}

func statusFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, graph.ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, graph.ErrNoPath):
		return "no_path"
	default:
		return "error"
	}
}

// Errors here are not critical, history is an archive and clients already
// hold the result.
func (s *ConverterService) archive(token0, token1 domain.Address, block uint64, res *domain.ConversionResult, took time.Duration) {
	if s.history == nil {
		return
	}

	hops := make([]string, len(res.Path))
	for i, a := range res.Path {
		hops[i] = a.String()
	}

	row := clickhouse.ConversionRow{
		RequestedAt:    time.Now().UTC(),
		Token0:         token0.String(),
		Token1:         token1.String(),
		BlockNumber:    block,
		ConversionRate: res.ConversionRate,
		Token0Decimals: res.Token0Decimals,
		Token1Decimals: res.Token1Decimals,
		Token0Symbol:   res.Token0Symbol,
		Token1Symbol:   res.Token1Symbol,
		Path:           strings.Join(hops, ","),
		Hops:           uint8(res.Hops()),
		DurationMs:     uint64(took.Milliseconds()),
		SchemaVersion:  1,
	}
	if err := s.history.Enqueue(row); err != nil {
		s.log.Errorf("Failed to archive conversion %s -> %s: %v", token0, token1, err)
	}
}

// Broadcast errors are not critical, subscribers get the next update.
func (s *ConverterService) broadcast(ctx context.Context, token0, token1 domain.Address, block uint64, res *domain.ConversionResult) {
	if s.broadcaster == nil {
		return
	}

	subject := fmt.Sprintf("%s.%s", token0, token1)
	update := RateUpdate{Token0: token0, Token1: token1, BlockNumber: block, Result: res}
	if err := s.broadcaster.Publish(ctx, subject, update); err != nil {
		s.log.Errorf("Failed to broadcast rate update for %s: %v", subject, err)
	}
}

func (s *ConverterService) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, 3)

	if s.cache != nil {
		if err := s.cache.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("Redis connection error: %v", err))
		}
	}

	if s.history != nil {
		if err := s.history.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("ClickHouse connection error: %v", err))
		}
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.Health(ctx); err != nil {
			errDependency = append(errDependency, "NATS: connection not ready")
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %v", strings.Join(errDependency, "; "))
	}

	s.log.Debugf("All dependency check passed")
	return nil
}
