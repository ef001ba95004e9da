package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/purrpawboutique/purr-paw-boutique/internal/cart"
	"github.com/purrpawboutique/purr-paw-boutique/internal/config"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway/stripe"
	opsgrpc "github.com/purrpawboutique/purr-paw-boutique/internal/grpc"
	h "github.com/purrpawboutique/purr-paw-boutique/internal/http"
	"github.com/purrpawboutique/purr-paw-boutique/internal/logger"
	"github.com/purrpawboutique/purr-paw-boutique/internal/metrics"
	"github.com/purrpawboutique/purr-paw-boutique/internal/publisher"
	"github.com/purrpawboutique/purr-paw-boutique/internal/service"
	"github.com/purrpawboutique/purr-paw-boutique/internal/session"
	"github.com/purrpawboutique/purr-paw-boutique/internal/webhook"
)

const devTokenSecret = "storefront-dev-only-token-secret"

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the ops gRPC endpoint and the webhook retry poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serve(cfg)
		},
	}
}

type orderEvents interface {
	service.OrderEvents
	Close() error
}

func serve(cfg *config.Config) error {
	log := logger.New(os.Stdout, "storefront", cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	log.Info("storefront starting", "version", version, "env", cfg.Env, "store", cfg.Store.Driver)

	if cfg.Stripe.WebhookSecret == "" {
		log.Error("STRIPE_WEBHOOK_SECRET is not set; every webhook delivery will be refused", "alert", true)
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open order store: %w", err)
	}
	defer store.Close()
	if err := migrate(store); err != nil {
		return err
	}
	log.Info("order store ready")

	m := metrics.New(prometheus.DefaultRegisterer)

	gw := gateway.NewBreaker(stripe.New(stripe.Config{
		SecretKey:        cfg.Stripe.SecretKey,
		APIURL:           cfg.Stripe.APIURL,
		SiteURL:          cfg.Checkout.SiteURL,
		Timeout:          cfg.Stripe.Timeout,
		WebhookTolerance: cfg.Stripe.WebhookTolerance,
	}, log), gateway.DefaultBreakerSettings(), log)

	var events orderEvents = publisher.NoopPublisher{Logger: log}
	if brokers := publisher.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		events = publisher.NewKafkaPublisher(brokers, cfg.Kafka.Topic, log)
		log.Info("publishing order events to kafka", "brokers", brokers, "topic", cfg.Kafka.Topic)
	}
	defer events.Close()

	svc := service.NewCheckoutService(gw, store, events, m, log, service.Config{
		SuccessURL:               cfg.Checkout.SuccessURL,
		CancelURL:                cfg.Checkout.CancelURL,
		Currency:                 cfg.Checkout.Currency,
		AllowedShippingCountries: cfg.Checkout.ShippingCountries,
		RequireBillingAddress:    true,
		GatewayTimeout:           cfg.Stripe.Timeout,
		RetryBackoff:             cfg.Checkout.RetryBackoff,
		IdempotencyWindow:        cfg.Checkout.IdempotencyWindow,
	})

	inbox, err := webhook.NewBoltInbox(cfg.Webhook.InboxPath)
	if err != nil {
		return fmt.Errorf("open webhook inbox: %w", err)
	}
	defer inbox.Close()
	receiver := webhook.NewReceiver(gw, cfg.Stripe.WebhookSecret, inbox, svc, m, log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	carts, closeCarts, err := buildCarts(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCarts()

	tokenSecret := cfg.Cart.TokenSecret
	if tokenSecret == "" {
		log.Warn("cart token secret not set, using the development secret")
		tokenSecret = devTokenSecret
	}
	tokens, err := session.NewIssuer(tokenSecret, cfg.Cart.TokenTTL)
	if err != nil {
		return err
	}

	router := h.NewRouter(h.RouterConfig{
		Checkout:          svc,
		Webhooks:          receiver,
		Carts:             carts,
		Tokens:            tokens,
		Store:             store,
		Metrics:           m,
		Logger:            log,
		PublishableKey:    cfg.Stripe.PublishableKey,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		CheckoutPerMinute: 30,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ops := opsgrpc.NewServer(store, log)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		webhook.NewRetryPoller(receiver, cfg.Webhook.RetryInterval).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		ops.Watch(ctx)
	}()

	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := ops.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case runErr = <-errCh:
		log.Error("server failed, shutting down", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", "error", err)
	}
	ops.GracefulStop()
	stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("background workers did not stop in time")
	}

	log.Info("storefront stopped")
	return runErr
}

// buildCarts uses MongoDB and Redis when configured and in-process storage
// otherwise.
func buildCarts(ctx context.Context, cfg *config.Config, log *slog.Logger) (*cart.Service, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var repo cart.Repository = cart.NewMemoryRepository()
	if cfg.Cart.MongoURI != "" {
		db, err := cart.ConnectMongoDB(ctx, cfg.Cart.MongoURI, cfg.Cart.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongodb: %w", err)
		}
		closers = append(closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(dctx)
		})
		mongoRepo := cart.NewMongoRepository(db)
		if err := mongoRepo.CreateIndexes(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create cart indexes: %w", err)
		}
		repo = mongoRepo
		log.Info("cart store: mongodb", "database", cfg.Cart.MongoDatabase)
	} else {
		log.Warn("cart store: in-memory, carts are lost on restart")
	}

	var cache cart.Cache = cart.NoopCache{}
	if cfg.Cart.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cart.RedisAddr})
		closers = append(closers, func() { _ = client.Close() })
		cache = cart.NewRedisCache(client)
		log.Info("cart cache: redis", "addr", cfg.Cart.RedisAddr)
	}

	return cart.NewService(repo, cache, log), closeAll, nil
}
