package app

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/grafana/pyroscope-go"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"ratepath/internal/api/http"
	"ratepath/internal/api/http/handlers"
	"ratepath/internal/api/http/mw"
	"ratepath/internal/chain"
	"ratepath/internal/config"
	"ratepath/internal/ingest"
	"ratepath/internal/metacache"
	"ratepath/internal/metadata"
	"ratepath/internal/metrics"
	"ratepath/internal/pubsub"
	natspub "ratepath/internal/pubsub/nats"
	"ratepath/internal/security"
	"ratepath/internal/service"
	"ratepath/internal/stores/clickhouse"
	"ratepath/internal/stores/redis"
)

type Container struct {
	app *App

	// infra
	redis *redis.Client
	ch    *clickhouse.Conn
	nc    *natspub.Client

	// servers
	httpSrv    *http.Server
	metricsSrv *nethttp.Server

	// metrics
	profiler *pyroscope.Profiler

	lg       logger.Logger
	cleanupF func()
}

func (c *Container) Start() error {
	if c.metricsSrv != nil {
		go func() {
			if err := c.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				c.lg.Errorf("Metrics listener failed: %v", err)
			}
		}()
		c.lg.Infof("Metrics listener on %s", c.metricsSrv.Addr)
	}

	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}

	if c.metricsSrv != nil {
		if err := c.metricsSrv.Shutdown(ctx); err != nil {
			c.lg.Errorf("Failed to shutdown metrics listener: %v", err)
		}
	}

	if c.cleanupF != nil {
		c.cleanupF()
	}
	return nil
}

// Construct image app
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	appName := cfg.Alerting.AppName
	if appName == "" {
		appName = "ratepath"
	}
	profiler, err := metrics.InitPProf(&metrics.PProfConfig{
		Enabled:       cfg.Metrics.Pyroscope.Enabled,
		AppInstanceID: cfg.App.InstanceID,
		AppName:       appName,
		ServerAddr:    cfg.Metrics.Pyroscope.ServerAddr,
		AuthToken:     cfg.Metrics.Pyroscope.AuthToken,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize pyroscope: %w", err)
	}
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, appName)
	}

	// Redis client
	rdb, err := redis.New(ctx, cfg.Stores.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}
	lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)

	// Metadata cache
	cache := metacache.NewRedis(rdb, cfg.Stores.Redis.Prefix, cfg.Engine.CacheTTL)
	lg.Infof("Successfully initialize metadata cache, ttl=%s", cfg.Engine.CacheTTL)

	// Chain JSON-RPC client
	chainCl := chain.New(lg, cfg.Chain)
	lg.Infof("Successfully initialize chain client, node=%s", cfg.Chain.NodeURL)

	resolver := metadata.NewResolver(lg, chainCl, cache)
	ingestor := ingest.NewIngestor(lg, chainCl, resolver)

	// ClickHouse archive, optional
	var (
		ch       *clickhouse.Conn
		chWriter *clickhouse.Writer
		history  service.HistoryWriter
	)
	if cfg.Stores.ClickHouse.Enabled {
		if ch, err = clickhouse.New(ctx, &cfg.Stores.ClickHouse); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		chWriter = clickhouse.NewWriter(lg, ch.Native, cfg.Stores.ClickHouse)
		history = chWriter
		lg.Info("Successfully initialize clickhouse writer")
	}

	// NATS broadcaster, optional
	var (
		nc          *natspub.Client
		broadcaster pubsub.Broadcaster
	)
	if cfg.PubSub.NATS.Enabled {
		if nc, err = natspub.New(lg, &cfg.PubSub.NATS); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize nats client: %w", err)
		}
		broadcaster = nc
		lg.Infof("Successfully initialize nats client, url=%s", cfg.PubSub.NATS.URL)
	}

	// Service Layer
	converter := service.NewConverterService(lg, cfg.Engine, resolver, ingestor, broadcaster, history, cache)

	// JWT, optional
	var (
		verifier *security.RS256Verifier
		jwtMW    *mw.JWTMiddleware
	)
	if cfg.Security.JWT.Enabled {
		if verifier, err = security.NewRS256Verifier(&cfg.Security.JWT); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize jwt verifier: %w", err)
		}
		if jwtMW, err = mw.NewJWTMiddleware(verifier); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize jwt middleware: %w", err)
		}
		lg.Info("Successfully initialize JWT verifier")
	}

	// HTTP surface
	h := handlers.NewHandler(lg, converter)

	var corsMW *mw.CORSMiddleware
	if cfg.API.HTTP.CORS.Enabled {
		corsMW = mw.NewCORSConfig(&cfg.API.HTTP.CORS)
	}

	router := http.BuildRouter(
		h,
		mw.NewLogging(lg),
		mw.NewGzip(0, lg),
		mw.NewRateLimit(&cfg.RateLimit, rdb, verifier),
		jwtMW,
		corsMW,
	)

	httpSrv := http.NewServer(lg, &cfg.API.HTTP, router)
	lg.Info("Successfully initialize HTTP server")

	// Dedicated scrape listener, "" keeps metrics on the public router only
	var metricsSrv *nethttp.Server
	if cfg.Metrics.Prometheus != "" {
		metricsSrv = &nethttp.Server{
			Addr:              cfg.Metrics.Prometheus,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	c := &Container{
		app:        New(lg, httpSrv),
		redis:      rdb,
		ch:         ch,
		nc:         nc,
		httpSrv:    httpSrv,
		metricsSrv: metricsSrv,
		profiler:   profiler,
		lg:         lg,
	}

	var cleanupOnce sync.Once
	cleanupF := func() {
		cleanupOnce.Do(func() {
			ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if c.profiler != nil {
				if err := c.profiler.Stop(); err != nil {
					lg.Errorf("Failed to stop profiler: %v", err)
				}
			}

			if chWriter != nil {
				if err := chWriter.Close(ctxClean); err != nil {
					lg.Errorf("Failed to close by cleanupF clickhouse writer: %v", err)
				}
			}

			if ch != nil {
				if err := ch.Close(); err != nil {
					lg.Errorf("Failed to close by cleanupF clickhouse client: %v", err)
				}
			}

			if nc != nil {
				if err := nc.Close(); err != nil {
					lg.Errorf("Failed to close by cleanupF nats client: %v", err)
				}
			}

			if err := rdb.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF redis client: %v", err)
			}

			lg.Info("Successfully cleaned up dependency")
		})
	}
	c.cleanupF = cleanupF

	lg.Info("Successfully initialize Wiring")
	return c, cleanupF, nil
}
