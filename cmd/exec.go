package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"ticket-inventory/config"
	"ticket-inventory/internal/handlers"
	"ticket-inventory/internal/ledger"
	"ticket-inventory/internal/services"
	"ticket-inventory/internal/services/bank"
	"ticket-inventory/internal/services/bank/jdb"
	"ticket-inventory/internal/services/bank/ldb"
	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/internal/token"
	_ "ticket-inventory/migrations"
	"ticket-inventory/monitoring"
	"ticket-inventory/security"
	"ticket-inventory/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(utils.RedisOptions{
		URL:      cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	issuer, err := newIssuer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := bank.New(ctx, bankConfig(cfg))
	if err != nil {
		return err
	}

	paymentService := services.NewPaymentService(redisClient, provider)

	// Initialize PubNub
	var notifier services.Notifier
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
		paymentService.SetNotifier(notifier)
	}

	if provider != nil {
		txChannel := make(chan *status.Transaction, 16)
		provider.SetTransactionChannel(txChannel)
		go paymentService.ConsumeTransactions(ctx, txChannel)
	}

	var inventory ledger.Ledger
	switch cfg.LedgerBackend {
	case config.LedgerMemory:
		slog.Warn("Using in-process ledger, counters are rebuilt from issued tickets on restart")
		inventory = ledger.NewMemoryLedger()
	default:
		inventory = ledger.NewRedisLedger(redisClient)
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	if cfg.EnableMetrics {
		go serveMetrics(ctx, cfg.MetricsPort)
		if cfg.LedgerBackend == config.LedgerRedis {
			go monitoring.NewMonitor(redisClient, cfg.MetricsInterval).Start(ctx)
		}
	}

	// Setup graceful shutdown
	bindShutdown(app, cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		ticketStore := store.NewSQLStore(app.NonconcurrentDB(), func(fn func(tx dbx.Builder) error) error {
			return app.RunInTransaction(func(txApp core.App) error {
				return fn(txApp.DB())
			})
		})

		// Initialize services
		catalogService := services.NewCatalogService(services.NewRecordTierSource(app), inventory, ticketStore)
		reservationService := services.NewReservationService(inventory, ticketStore, paymentService, issuer, services.ReservationConfig{
			MaxTicketsPerOrder:  cfg.MaxTicketsPerOrder,
			PaymentTimeout:      cfg.PaymentTimeout,
			PersistRetries:      cfg.PersistRetries,
			PersistRetryBackoff: cfg.PersistRetryBackoff,
		})
		admissionService := services.NewAdmissionService(ticketStore, ticketStore, issuer, cfg.StoreTimeout)
		if notifier != nil {
			admissionService.SetNotifier(notifier)
		}

		// Initialize handlers
		reservationHandler := handlers.NewReservationHandler(reservationService)
		admissionHandler := handlers.NewAdmissionHandler(admissionService)
		paymentHandler := handlers.NewPaymentHandler(paymentService)
		adminHandler := handlers.NewAdminHandler(catalogService)

		rateLimiter := security.NewRateLimiter(redisClient, cfg.GateRateLimit)

		// Reservation endpoints
		e.Router.POST("/api/v1/reservations", reservationHandler.Reserve).
			BindFunc(rateLimiter.AntiBotMiddleware())
		e.Router.GET("/api/v1/reservations/{paymentRef}", reservationHandler.GetReservation)

		// Gate endpoints
		e.Router.POST("/api/v1/gates/{gateID}/admit", admissionHandler.Scan).
			BindFunc(security.RequireGateKey(cfg.GateAPIKey), rateLimiter.GateRateLimit())

		// Payment endpoints
		e.Router.GET("/api/v1/payment/{paymentRef}/status", paymentHandler.CheckPaymentStatus)
		e.Router.POST("/api/v1/payment/ldb/hook", paymentHandler.LDBConfirmationPayment)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/tiers/{tierId}", adminHandler.GetTierStatus)
		e.Router.POST("/api/v1/admin/tiers/{tierId}/publish", adminHandler.PublishTier)
		e.Router.POST("/api/v1/admin/tiers/{tierId}/capacity", adminHandler.IncreaseCapacity)
		e.Router.POST("/api/v1/admin/tickets/{ticketId}/void", reservationHandler.CancelTicket)
		e.Router.GET("/api/v1/admin/tickets/{ticketId}/scans", admissionHandler.GetScanHistory)
		e.Router.POST("/api/v1/admin/tokens/inspect", admissionHandler.InspectToken)

		// Test endpoint for payment simulation
		if cfg.IsDevelopment() {
			e.Router.POST("/api/v1/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		openPublishedTiers(app, catalogService)
		setupCatalogHooks(app, catalogService, ticketStore)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func newIssuer(cfg *config.Config) (*token.Issuer, error) {
	secret := cfg.TokenSecret
	if secret == "" && cfg.IsDevelopment() {
		code, err := utils.GenerateCode(token.MinSecret * 2)
		if err != nil {
			return nil, err
		}
		secret = code
		slog.Warn("TOKEN_SECRET not set, tokens will not survive a restart")
	}
	return token.NewIssuer([]byte(secret))
}

func bankConfig(cfg *config.Config) bank.Config {
	return bank.Config{
		Provider: bank.ProviderName(cfg.PaymentProvider),
		JDB: &jdb.Config{
			BaseURL:     cfg.JDB.BaseURL,
			PartnerID:   cfg.JDB.PartnerID,
			ClientID:    cfg.JDB.ClientID,
			ClientKey:   cfg.JDB.ClientKey,
			HMACKey:     cfg.JDB.HMACKey,
			PNSubKey:    cfg.JDB.PNSubKey,
			PNSubSecret: cfg.JDB.PNSecretKey,
			PNUUID:      cfg.JDB.PNUUID,
			PNChannel:   cfg.JDB.PNChannel,
			PNCipherKey: cfg.JDB.PNCipherKey,
		},
		LDB: &ldb.Config{
			BaseURL:        cfg.LDB.BaseURL,
			AccessTokenURL: cfg.LDB.AccessTokenURL,
			ClientID:       cfg.LDB.ClientID,
			ClientSecret:   cfg.LDB.ClientSecret,
			PartnerID:      cfg.LDB.PartnerID,
		},
	}
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", "error", err)
	}
}

// bindShutdown stops the background tasks when pocketbase terminates.
func bindShutdown(app core.App, cancel context.CancelFunc) {
	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		log.Println("Shutdown signal received, cleaning up...")
		cancel()
		return e.Next()
	})
}
