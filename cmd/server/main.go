package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/leon-biju/trading-simulator/internal/auth"
	"github.com/leon-biju/trading-simulator/internal/config"
	"github.com/leon-biju/trading-simulator/internal/database"
	"github.com/leon-biju/trading-simulator/internal/lock"
	"github.com/leon-biju/trading-simulator/internal/market"
	"github.com/leon-biju/trading-simulator/internal/portfolio"
	"github.com/leon-biju/trading-simulator/internal/settlement"
	"github.com/leon-biju/trading-simulator/internal/trading"
	"github.com/leon-biju/trading-simulator/internal/trigger"
	"github.com/leon-biju/trading-simulator/internal/wallet"
	"github.com/leon-biju/trading-simulator/pkg/middleware"
)

// priceStore is the pricing service: the local price book, or redis in
// front of it.
type priceStore interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error
}

// setupLogging configures zerolog. Outside production logs are pretty
// printed with timestamps.
func setupLogging(cfg config.LoggingConfig, production bool) {
	if !production && cfg.Pretty {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if os.Getenv("DEBUG") == "true" {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	cfg := config.MustLoad()
	setupLogging(cfg.Logging, cfg.IsProduction())

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags:            map[string]string{"env": cfg.Env},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			zlog.Fatal().Err(err).Msg("Failed to start profiler")
		}
		defer func() { _ = profiler.Stop() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Pricing
	book := market.NewPriceBook()
	var prices priceStore = book
	if cfg.Redis.Enabled {
		redisPrices := market.NewRedisPrices(cfg.Redis, book)
		if err := redisPrices.Ping(ctx); err != nil {
			zlog.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer redisPrices.Close()
		prices = redisPrices
	}

	calendar, err := market.NewCalendar(cfg.Market.Exchanges)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load exchange calendar")
	}
	catalog := market.NewCatalog(db)
	if err := catalog.Seed(ctx, cfg.Market.Assets, prices); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to seed assets")
	}

	// Services and handlers
	locks := lock.NewManager()

	authService := auth.NewService(cfg.Auth.JWTSecret)
	authService.RegisterAPICredentials(cfg.Auth.APIKey, cfg.Auth.APISecret)
	authHandlers := auth.NewGinHandlers(authService)

	walletService := wallet.NewService(db, locks)
	walletHandlers := wallet.NewGinHandlers(walletService)
	if err := seedAccount(ctx, walletService, cfg); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to provision default account")
	}

	tradingService := trading.NewService(db, trading.Dependencies{
		Engine: settlement.NewEngine(prices, cfg.FeeRate()),
		Prices: prices,
		Hours:  calendar,
		Assets: catalog,
		Locks:  locks,
	})
	tradingHandlers := trading.NewGinHandlers(tradingService)

	portfolioService := portfolio.NewService(db, prices, catalog)
	portfolioHandlers := portfolio.NewGinHandlers(portfolioService)

	processor := trigger.NewProcessor(portfolioService, tradingService)
	pipeline := trigger.NewPipeline(prices, processor, calendar)
	triggerHandlers := trigger.NewGinHandlers(processor, pipeline, cfg.Trading.OrderExpiry)

	// Background work
	scheduler := trigger.NewScheduler(processor, calendar, cfg.Trading.SweepInterval, cfg.Trading.ExpiryInterval, cfg.Trading.OrderExpiry).
		WithSnapshots(portfolioService, cfg.Trading.SnapshotInterval)
	go scheduler.Start(ctx)

	var (
		nc         *nats.Conn
		subscriber *trigger.Subscriber
	)
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("trading-simulator"))
		if err != nil {
			zlog.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to nats")
		}
		zlog.Info().Str("url", cfg.NATS.URL).Msg("Connected to nats")

		subscriber = trigger.NewSubscriber(nc, cfg.NATS.Subject, pipeline, runtime.NumCPU())
		if err := subscriber.Start(ctx); err != nil {
			zlog.Fatal().Err(err).Msg("Failed to subscribe to price feed")
		}
	}

	rateLimiter := middleware.NewRateLimiter()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	// Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), rateLimiter.Middleware())

	setupRoutes(router, cfg, authService, routeHandlers{
		auth:      authHandlers,
		trading:   tradingHandlers,
		portfolio: portfolioHandlers,
		wallet:    walletHandlers,
		trigger:   triggerHandlers,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Internal-Key"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Graceful shutdown setup
	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	cancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Server forced to shutdown")
	}
	if subscriber != nil {
		subscriber.Wait()
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			zlog.Error().Err(err).Msg("Failed to drain nats connection")
		}
	}

	zlog.Info().Msg("Server exiting")
}

// seedAccount provisions wallets for the configured API key and funds any
// empty one with the starting balance.
func seedAccount(ctx context.Context, wallets *wallet.Service, cfg *config.Config) error {
	provisioned, err := wallets.ProvisionWallets(ctx, cfg.Auth.APIKey, cfg.Trading.Currencies)
	if err != nil {
		return err
	}

	start := cfg.StartingBalance()
	if !start.IsPositive() {
		return nil
	}
	for _, w := range provisioned {
		if !w.Balance.IsZero() {
			continue
		}
		if _, err := wallets.Deposit(ctx, w.Owner, w.Currency, start); err != nil {
			return err
		}
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		zlog.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("owner", auth.OwnerFromContext(c)).
			Msg("request")
	}
}

type routeHandlers struct {
	auth      *auth.GinHandlers
	trading   *trading.GinHandlers
	portfolio *portfolio.GinHandlers
	wallet    *wallet.GinHandlers
	trigger   *trigger.GinHandlers
}

// setupRoutes configures all API endpoints and their handlers
// - Auth routes: public
// - Owner routes: JWT authentication, scoped to the token's owner
// - Internal routes: shared internal key, used by schedulers and operators
func setupRoutes(router *gin.Engine, cfg *config.Config, authService *auth.Service, h routeHandlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", h.auth.GenerateTokenHandler())
		}

		// Owner routes
		owner := v1.Group("")
		owner.Use(middleware.JWTAuth(authService))
		{
			owner.POST("/orders", h.trading.CreateOrderHandler())
			owner.GET("/orders", h.portfolio.PendingOrdersHandler())
			owner.GET("/orders/summary", h.portfolio.OrderSummaryHandler())
			owner.GET("/orders/:order_id", h.trading.GetOrderStatusHandler())
			owner.POST("/orders/:order_id/cancel", h.trading.CancelOrderHandler())
			owner.GET("/positions", h.portfolio.PositionsHandler())
			owner.GET("/trades", h.portfolio.TradesHandler())
			owner.GET("/portfolio/history", h.portfolio.HistoryHandler())
			owner.GET("/wallets", h.wallet.ListWalletsHandler())
		}

		// Internal routes
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.Auth.InternalKey))
		{
			internal.POST("/execution/:order_id", h.trading.ExecuteOrderHandler())
			internal.GET("/orders/pending", h.portfolio.ScopePendingOrdersHandler())
			internal.POST("/sweeps/scope", h.trigger.SweepScopeHandler())
			internal.POST("/sweeps/expire", h.trigger.ExpireHandler())
			internal.POST("/sweeps/snapshot", h.portfolio.SnapshotAllHandler())
			internal.POST("/prices", h.trigger.PricesHandler())
			internal.POST("/wallets/provision", h.wallet.ProvisionHandler())
			internal.POST("/wallets/deposit", h.wallet.DepositHandler())
		}
	}
}
