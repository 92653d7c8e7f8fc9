package chatgateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/sonyflake"

	gateway "delivery-chat/internal/app/chatgateway"
	"delivery-chat/internal/shared/auth"
	"delivery-chat/internal/shared/config"
	"delivery-chat/internal/shared/logger"
	"delivery-chat/internal/shared/metrics"
	"delivery-chat/internal/shared/postgres"
	"delivery-chat/internal/shared/rabbitmq"
)

// Run starts the chat gateway: the WebSocket live channel, the REST fallback
// surface, and the status update consumer feeding the notification dispatcher.
func Run(ctx context.Context, port int) error {
	// set up a new logger with a static request ID for startup logs
	logger := logger.NewLogger("chat-gateway")
	defer logger.Sync()
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	addr := cfg.Gateway.Addr
	if port > 0 {
		addr = fmt.Sprintf(":%d", port)
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err)
		return err
	}
	defer pool.Close()

	// set up RabbitMQ for consuming status updates
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	metrics.Register()

	flake := sonyflake.NewSonyflake(sonyflake.Settings{})
	if flake == nil {
		err := fmt.Errorf("sonyflake init failed")
		logger.Error(ctx, "id_generator_failed", "Failed to initialize message id generator", err)
		return err
	}

	// set up the gateway services with their dependencies
	ordersRepo := postgres.NewOrdersRepo(pool)
	messagesRepo := postgres.NewMessagesRepo(pool)
	authn := auth.NewTokenAuthenticator(cfg.Auth.Secret)

	hub := gateway.NewHub()
	exchange := gateway.NewExchange(messagesRepo, hub, flake, logger)
	typing := gateway.NewTypingController(time.Duration(cfg.Gateway.TypingTimeoutSeconds)*time.Second, hub)
	defer typing.Shutdown()
	receipts := gateway.NewReceiptTracker(messagesRepo, hub, logger)
	estimator := gateway.NewQueueEstimator(ordersRepo)
	notifier := gateway.NewNotifier(hub, estimator, ordersRepo, logger)

	// consume status updates from the fanout exchange in the background
	go gateway.ConsumeStatusUpdates(ctx, rmq, notifier, logger)

	// routes
	mux := http.NewServeMux()
	gateway.NewRESTHandler(logger, authn, ordersRepo, exchange, estimator).Register(mux)
	gateway.NewWSHandler(logger, authn, ordersRepo, hub, exchange, typing, receipts, cfg.Gateway.SendQueueSize).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// set up the server configurations
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,                                   // time to read headers
		IdleTimeout:       60 * time.Second,                                  // keep-alive window
		BaseContext:       func(net.Listener) context.Context { return ctx }, // pass base ctx to all handlers
	}

	// log service start
	logger.Info(ctx, "service_started", "Chat Gateway started", map[string]any{"addr": addr})

	// run server and wait for ctx cancellation
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	return nil
}
