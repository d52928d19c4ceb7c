package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concert-ticketing/config"
	"concert-ticketing/internal/gateway/midpay"
	"concert-ticketing/internal/handlers"
	"concert-ticketing/internal/services"
	"concert-ticketing/internal/status"
	"concert-ticketing/monitoring"
	"concert-ticketing/security"
	"concert-ticketing/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the payment gateway (access token + provider push stream)
	gateway, err := midpay.New(ctx, &midpay.Config{
		BaseURL:     cfg.Midpay.BaseURL,
		MerchantID:  cfg.Midpay.MerchantID,
		ClientID:    cfg.Midpay.ClientID,
		ClientKey:   cfg.Midpay.ClientKey,
		ServerKey:   cfg.Midpay.ServerKey,
		PNSubKey:    cfg.Midpay.PNSubKey,
		PNUUID:      cfg.Midpay.PNUUID,
		PNChannel:   cfg.Midpay.PNChannel,
		PNCipherKey: cfg.Midpay.PNCipherKey,
	})
	if err != nil {
		return err
	}

	// PubNub for user-facing payment notifications
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	}

	// Initialize services
	catalogService := services.NewCatalogService(app)
	orderService := services.NewOrderService(app, cfg)
	ticketService := services.NewTicketService(app)
	paymentService := services.NewPaymentService(app, cfg, redisClient, gateway, orderService)
	settlementService := services.NewSettlementService(app, cfg, gateway, paymentService, ticketService, pn)

	// Initialize handlers
	catalogHandler := handlers.NewCatalogHandler(app, catalogService)
	orderHandler := handlers.NewOrderHandler(app, orderService)
	paymentHandler := handlers.NewPaymentHandler(app, paymentService, settlementService)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)

	rateLimiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Transaction events from the provider push stream go through the same
	// reconciliation path as the webhook.
	go func() {
		tranChannel := make(chan *status.Transaction, 1)
		gateway.SetTranChannel(tranChannel)
		for {
			select {
			case t := <-tranChannel:
				slog.Info("=> midpay push transaction", "orderRef", t.OrderRef, "status", t.TransactionStatus)

				if err := settlementService.ReconcileByRef(ctx, t.OrderRef); err != nil {
					slog.Error("settlementService.ReconcileByRef()", "orderRef", t.OrderRef, "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start background tasks
	go orderService.RunExpirySweep(ctx)
	go settlementService.RunRecoverySweep(ctx)

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Catalog endpoints (public)
		e.Router.GET("/api/v1/concerts", catalogHandler.ListConcerts)
		e.Router.GET("/api/v1/concerts/{concertId}", catalogHandler.GetConcert)

		// Order endpoints
		e.Router.POST("/api/v1/orders", orderHandler.CreateOrder).
			BindFunc(rateLimiter.Limit("orders", cfg.OrderCreateLimit, time.Minute))
		e.Router.GET("/api/v1/orders/{orderId}", orderHandler.GetOrder)
		e.Router.POST("/api/v1/orders/{orderId}/cancel", orderHandler.CancelOrder)

		// Payment endpoints
		e.Router.POST("/api/v1/orders/{orderId}/pay", paymentHandler.InitiateTransaction)
		e.Router.GET("/api/v1/orders/{orderId}/payment", paymentHandler.GetPayment)

		// Gateway webhook (signature-authenticated, throttled by source IP)
		e.Router.POST("/api/v1/payments/midpay/notify", paymentHandler.MidpayNotification).
			BindFunc(rateLimiter.Limit("webhook", cfg.WebhookBurstLimit, time.Minute))

		// Ticket endpoints
		e.Router.GET("/api/v1/tickets/{code}", ticketHandler.GetTicket)
		e.Router.POST("/api/v1/tickets/{code}/use", ticketHandler.UseTicket)
		e.Router.POST("/api/v1/tickets/{code}/void", ticketHandler.VoidTicket)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	if cfg.EnableMetrics {
		monitoring.NewMonitor(app)
		go serveMetrics(cfg.MetricsPort)
	}

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// serveMetrics exposes the Prometheus registry on its own port so the scrape
// endpoint never shares the public listener.
func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("Metrics listening on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
