package statusservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	service "delivery-chat/internal/app/statusservice"
	"delivery-chat/internal/shared/auth"
	"delivery-chat/internal/shared/config"
	"delivery-chat/internal/shared/logger"
	"delivery-chat/internal/shared/postgres"
	"delivery-chat/internal/shared/rabbitmq"
)

// Run starts the status service: the HTTP API that drives the order status
// state machine and publishes committed transitions to the fanout exchange.
func Run(ctx context.Context, port int) error {
	// set up a new logger with a static request ID for startup logs
	logger := logger.NewLogger("status-service")
	defer logger.Sync()
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	addr := cfg.Status.Addr
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

	// set up RabbitMQ for publishing status updates
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	// set up the service with its dependencies
	uow := postgres.NewUnitOfWork(pool)
	ordersRepo := postgres.NewOrdersRepo(pool)
	publisher := rabbitmq.NewStatusPublisher(rmq)
	authn := auth.NewTokenAuthenticator(cfg.Auth.Secret)
	svc := service.NewService(uow, ordersRepo, publisher, logger)

	// routes
	mux := http.NewServeMux()
	service.NewHandler(logger, authn, svc).Register(mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,                                   // time to read headers
		WriteTimeout:      15 * time.Second,                                  // full response write timeout
		IdleTimeout:       60 * time.Second,                                  // keep-alive window
		BaseContext:       func(net.Listener) context.Context { return ctx }, // pass base ctx to all handlers
	}

	// log service start
	logger.Info(ctx, "service_started", "Status Service started", map[string]any{"addr": addr})

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
