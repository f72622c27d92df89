package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/consumer"
	"github.com/fjod/go_cart/storefront/internal/domain"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/order"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/stock"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log := logger.Setup(cfg.Env, cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"env":          cfg.Env,
		"store_driver": cfg.Store.Driver,
		"cart_driver":  cfg.Cart.Driver,
	}).Info("storefront starting")

	var wg sync.WaitGroup
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Products, orders and outbox
	repo, catalog, err := openStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer repo.Close()

	// Carts
	cartRepo, err := openCartRepository(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open cart store")
	}

	var cartCache cache.CartCache = cache.NopCache{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unavailable, cart cache will fail open")
		}
		cartCache = cache.NewBreakerCache(cache.NewRedisCache(client, cfg.Redis.TTL), cache.BreakerSettings{}, log)
	}

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collector,
	)

	cancelPolicy, err := order.ParseCancelPolicy(cfg.Orders.CancelPolicy)
	if err != nil {
		log.WithError(err).Fatal("invalid orders.cancel_policy")
	}

	carts := cart.NewService(cartRepo, cartCache, catalog, log)
	orders := order.NewService(repo, carts, order.Options{
		CancelPolicy:      cancelPolicy,
		StrictTransitions: cfg.Orders.StrictTransitions,
	}, collector, log)

	// Outbox relay and cart clear consumer
	if len(cfg.Kafka.Brokers) > 0 {
		poller := publisher.NewOutboxPoller(repo,
			publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...),
			cfg.Kafka.PollInterval, collector, log)
		defer poller.Close()

		clearer := consumer.NewCartClearConsumer(carts,
			consumer.NewKafkaReader(cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Brokers...), log)
		defer clearer.Close()

		wg.Add(2)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			clearer.Run(ctx)
		}()
	} else {
		log.Info("no kafka brokers configured, outbox relay disabled")
	}
	if cfg.HTTP.AdminJWTSecret == "" {
		log.Warn("http.admin_jwt_secret not set, order status routes are locked")
	}

	router := h.NewRouter(
		h.NewCartHandler(carts, cfg.HTTP.RequestTimeout, log),
		h.NewOrdersHandler(orders, cfg.HTTP.RequestTimeout, log),
		h.RouterConfig{
			RequestTimeout: cfg.HTTP.RequestTimeout,
			Gatherer:       registry,
			Log:            log,
			AdminSecret:    cfg.HTTP.AdminJWTSecret,
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("storefront listening on :%d", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down storefront...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	stop()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("background workers didn't stop in time")
	}

	log.Info("storefront stopped")
}

// openStore returns the order repository together with the catalog the cart
// validates against.
func openStore(cfg *config.Config) (repository.OrderRepository, cart.ProductCatalog, error) {
	switch cfg.Store.Driver {
	case "postgres":
		repo, err := repository.NewRepository(&repository.Credentials{
			Host:              cfg.Postgres.Host,
			Port:              cfg.Postgres.Port,
			User:              cfg.Postgres.User,
			Password:          cfg.Postgres.Password,
			DBName:            cfg.Postgres.DBName,
			SSLMode:           cfg.Postgres.SSLMode,
			MigrationsDirPath: cfg.Store.MigrationsPath,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := repo.RunMigrations(cfg.Store.MigrationsPath); err != nil {
			repo.Close()
			return nil, nil, err
		}
		return repo, repo, nil
	case "sqlite":
		repo, err := repository.NewSQLiteRepository(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.RunMigrations(cfg.Store.MigrationsPath); err != nil {
			repo.Close()
			return nil, nil, err
		}
		return repo, repo, nil
	default:
		ledger := stock.NewMemoryLedger()
		seedProducts(ledger)
		return repository.NewMemoryRepository(ledger), ledger, nil
	}
}

func openCartRepository(ctx context.Context, cfg *config.Config) (cart.Repository, error) {
	if cfg.Cart.Driver == "memory" {
		return cart.NewMemoryRepository(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db, err := cart.ConnectMongoDB(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, err
	}
	repo := cart.NewMongoRepository(db)
	if err := repo.CreateIndexes(connectCtx); err != nil {
		return nil, err
	}
	return repo, nil
}

// seedProducts mirrors the SQL seed migration so the in-memory store starts
// with the same catalog.
func seedProducts(ledger *stock.MemoryLedger) {
	seed := []struct {
		id    int64
		name  string
		price string
		stock int
	}{
		{1, "Laptop", "999.99", 100},
		{2, "Mouse", "29.99", 500},
		{3, "Keyboard", "79.99", 300},
		{4, "Monitor", "299.99", 150},
		{5, "Headphones", "149.99", 200},
	}
	now := time.Now()
	for _, p := range seed {
		ledger.AddProduct(domain.Product{
			ID:        p.id,
			Name:      p.name,
			Price:     decimal.RequireFromString(p.price),
			Stock:     p.stock,
			Active:    true,
			UpdatedAt: now,
		})
	}
}
