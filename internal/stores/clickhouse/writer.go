package clickhouse

import (
	"context"
	"errors"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"gitlab.com/nevasik7/alerting/logger"

	"ratepath/internal/config"
)

// One archived conversion request. Path is the comma-joined hop list so the
// whole row stays flat.
type ConversionRow struct {
	RequestedAt    time.Time
	Token0         string
	Token1         string
	BlockNumber    uint64
	ConversionRate float64
	Token0Decimals uint8
	Token1Decimals uint8
	Token0Symbol   string
	Token1Symbol   string
	Path           string
	Hops           uint8
	DurationMs     uint64
	SchemaVersion  uint16
}

// Writer batches conversion rows and flushes them to ClickHouse in the
// background. Enqueue never blocks on the network, a full buffer drops
// into the channel send until the loop drains it.
type Writer struct {
	lg logger.Logger

	conn ch.Conn
	cfg  config.ClickHouseConfig

	inCh      chan ConversionRow
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWriter(lg logger.Logger, conn ch.Conn, cfg config.ClickHouseConfig) *Writer {
	// sane defaults
	if cfg.Writer.BatchMaxRows <= 0 {
		cfg.Writer.BatchMaxRows = 1000
	}
	if cfg.Writer.BatchMaxInterval <= 0 {
		cfg.Writer.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.Writer.MaxRetries < 0 {
		cfg.Writer.MaxRetries = 0
	}
	if cfg.Writer.RetryBackoff <= 0 {
		cfg.Writer.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		lg:       lg,
		conn:     conn,
		cfg:      cfg,
		inCh:     make(chan ConversionRow, 1024), // conversions are request-rate, not event-rate
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w
}

func (w *Writer) Enqueue(row ConversionRow) error {
	select {
	case <-w.closedCh:
		return errors.New("clickhouse writer closed")
	default:
	}

	select {
	case w.inCh <- row:
		return nil
	case <-w.closedCh:
		return errors.New("clickhouse writer closed")
	}
}

func (w *Writer) Health(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
	})
	close(w.inCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]ConversionRow, 0, w.cfg.Writer.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.Writer.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			w.lg.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row, ok := <-w.inCh:
			if !ok {
				flush()
				return
			}

			batch = append(batch, row)
			if len(batch) >= w.cfg.Writer.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.closedCh:
		}
	}
}

func (w *Writer) insertBatch(ctx context.Context, rows []ConversionRow) error {
	if len(rows) == 0 {
		return nil
	}

	// repeat with exponential delay
	backoff := w.cfg.Writer.RetryBackoff

	var lastErr error

	for attempt := 0; attempt <= w.cfg.Writer.MaxRetries; attempt++ {
		batch, err := w.conn.PrepareBatch(ctx, `
			INSERT INTO conversion_history (
				requested_at,
				token0,
				token1,
				block_number,
				conversion_rate,
				token0_decimals,
				token1_decimals,
				token0_symbol,
				token1_symbol,
				path,
				hops,
				duration_ms,
				schema_version
			)
		`)
		if err != nil {
			lastErr = err
			goto retry
		}

		for i := range rows {
			r := &rows[i]

			if err = batch.Append(
				r.RequestedAt,
				r.Token0,
				r.Token1,
				r.BlockNumber,
				r.ConversionRate,
				r.Token0Decimals,
				r.Token1Decimals,
				r.Token0Symbol,
				r.Token1Symbol,
				r.Path,
				r.Hops,
				r.DurationMs,
				r.SchemaVersion,
			); err != nil {
				lastErr = err
				_ = batch.Abort()
				goto retry
			}
		}

		if err = batch.Send(); err != nil {
			lastErr = err
			goto retry
		}
		// success
		return nil

	retry:
		if attempt == w.cfg.Writer.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}
