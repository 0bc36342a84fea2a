package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abgdnv/shopstate/internal/cart"
	"github.com/abgdnv/shopstate/internal/catalog"
	"github.com/abgdnv/shopstate/internal/config"
	"github.com/abgdnv/shopstate/pkg/bootstrap"
	"github.com/abgdnv/shopstate/pkg/kvstore"
	"golang.org/x/sync/errgroup"
)

const appName = "shopstate"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run wires the durable medium, typed store, cart aggregate and catalog
// controller, then keeps the state engine alive until the process is signalled.
func run(ctx context.Context) error {
	cfg, cfgErr := config.Load[*config.Config](appName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	medium, cleanup, err := newMedium(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store := kvstore.New(medium, logger)
	cartSvc := cart.NewService(store, logger)
	controller := catalog.NewController(newFixtureClient(), store, cfg.Catalog.PageSize, logger)

	unsubscribeCart := cartSvc.Subscribe(func(c cart.Cart) {
		logger.Info("Cart updated",
			slog.Int("total_items", c.TotalItems),
			slog.String("subtotal", c.Subtotal.String()),
			slog.String("total", c.Total.String()))
	})
	defer unsubscribeCart()
	unsubscribeCatalog := controller.Subscribe(func(s catalog.Snapshot) {
		logger.Info("Catalog state changed",
			slog.String("phase", string(s.Phase)),
			slog.String("category", s.Query.Category),
			slog.Int("results", len(s.Results)),
			slog.Bool("has_more", s.HasMore))
	})
	defer unsubscribeCatalog()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := controller.Load(gCtx, "", ""); err != nil {
			// Stale data may still be serving; keep the engine alive.
			logger.Warn("Initial catalog load failed", slog.String("error", err.Error()))
		}
		current, err := cartSvc.Current(gCtx)
		if err != nil {
			return fmt.Errorf("failed to read persisted cart: %w", err)
		}
		logger.Info("Persisted cart restored",
			slog.Int("items", len(current.Items)),
			slog.String("total", current.Total.String()))
		<-gCtx.Done()
		return nil
	})
	return g.Wait()
}

// newMedium builds the configured durable medium and its cleanup function.
func newMedium(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kvstore.Medium, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("Using the in-memory medium: state will not survive restart")
		return kvstore.NewMemoryMedium(), func() {}, nil
	case config.BackendNATS:
		nc, js, err := bootstrap.NewJetStream(cfg.Store.Nats.Url, cfg.Store.Nats.Timeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to NATS", slog.String("url", cfg.Store.Nats.Url))
		return kvstore.NewNATSKVMedium(js, cfg.Store.Nats.BucketPrefix), nc.Close, nil
	case config.BackendPostgres:
		pool, err := bootstrap.NewDbPool(ctx, cfg.Store.Database.URL, cfg.Store.Database.Timeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to the database")
		return kvstore.NewPgMedium(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
