/**
 * @description
 * This is the main entry point for the payment service. It is responsible for
 * initializing all components of the service: configuration, the database
 * connection pool, the balance-store client, the event producer, the saga
 * orchestrator, the reconciliation scheduler, and the HTTP server. It wires
 * everything together and serves until shutdown.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: To load .env files for local development.
 * - internal/payment/...: Internal packages for the service.
 * - pkg/ledgerclient: Resilient client for the ledger service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/paystream/wallet-platform/internal/payment/api"
	"github.com/paystream/wallet-platform/internal/payment/app"
	"github.com/paystream/wallet-platform/internal/payment/config"
	"github.com/paystream/wallet-platform/internal/payment/store"
	"github.com/paystream/wallet-platform/pkg/ledgerclient"
	"github.com/paystream/wallet-platform/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment service\" port=%s", cfg.ServerPort)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// The event producer is best-effort: if AMQP is down we degrade to a
	// logging no-op rather than refusing to boot.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.NopProducer{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	ledgerClient := ledgerclient.NewClient(
		cfg.LedgerServiceURL,
		cfg.LedgerInternalAPIKey,
		ledgerclient.WithCallTimeout(time.Duration(cfg.LedgerCallTimeoutSecs)*time.Second),
	)

	repository := store.NewPostgresRepository(dbpool)
	paymentService := app.NewService(repository, ledgerClient, producer)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	reconciler := app.NewReconciler(
		repository,
		producer,
		logger,
		cfg.ReconcileSchedule,
		time.Duration(cfg.ReconcileGraceMinutes)*time.Minute,
	)
	reconciler.Start()
	defer reconciler.Stop()

	handlers := api.NewPaymentHandlers(paymentService, cfg.TransactionListLimit)
	router := api.PaymentRoutes(handlers, cfg.InternalAPIKey)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
