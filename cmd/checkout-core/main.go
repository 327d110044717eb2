// Package main boots the storefront checkout core HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefrontd/checkout-core/internal/cart"
	"github.com/storefrontd/checkout-core/internal/config"
	"github.com/storefrontd/checkout-core/internal/events"
	httpapi "github.com/storefrontd/checkout-core/internal/http"
	"github.com/storefrontd/checkout-core/internal/inventory"
	"github.com/storefrontd/checkout-core/internal/obs"
	"github.com/storefrontd/checkout-core/internal/order"
	"github.com/storefrontd/checkout-core/internal/store"
	"github.com/storefrontd/checkout-core/internal/tasks"
)

func main() {
	cfg := config.Load()
	obs.InitLogger()
	obs.Logger.Info("service_starting")

	st := store.New()
	inv := inventory.New(st, cfg.LockTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sessions cart.SessionStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		sessions = cart.NewRedisStore(client, cfg.CartTTL)
		obs.Logger.Info("cart_store_redis", "addr", cfg.RedisAddr)
	} else {
		mem := cart.NewMemoryStore(cfg.CartTTL, cfg.CartSweepInterval)
		mem.Start(ctx)
		sessions = mem
	}
	carts := cart.NewService(sessions, st)

	q := tasks.NewQueue(128)
	mgr := tasks.NewManager(cfg, q, tasks.NewStockExecutor(inv))
	mgr.Start(ctx)

	var pub events.Publisher = events.NopPublisher{}
	if cfg.RabbitURL != "" {
		conn, ch, err := events.SetupConn(cfg.RabbitURL)
		if err != nil {
			obs.Logger.Error("rabbitmq_setup_error", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		pub = events.NewRabbitPublisher(ch)
		obs.Logger.Info("order_events_rabbitmq", "exchange", events.ExchangeName)
	}

	orders := order.New(st, inv, carts, mgr, pub)

	app := httpapi.NewApp(cfg, st, inv, carts, orders, mgr)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	app.StartShutdown()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "worker_count", mgr.WorkerCount())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	mgr.Stop()
	obs.Logger.Info("service_stopped")
}
