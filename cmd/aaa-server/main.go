package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohit83k/radius-aaa/internal/acct"
	"github.com/mohit83k/radius-aaa/internal/auth"
	"github.com/mohit83k/radius-aaa/internal/cache"
	"github.com/mohit83k/radius-aaa/internal/config"
	"github.com/mohit83k/radius-aaa/internal/disconnect"
	"github.com/mohit83k/radius-aaa/internal/events"
	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/lookup"
	"github.com/mohit83k/radius-aaa/internal/radiusx"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
	"github.com/mohit83k/radius-aaa/internal/registry"
	"github.com/mohit83k/radius-aaa/internal/server"
	"github.com/mohit83k/radius-aaa/internal/stats"
	"github.com/mohit83k/radius-aaa/internal/worker"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "aaa-server",
	Short:   "Subscriber AAA RADIUS server",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve RADIUS authentication and accounting",
	RunE:  runServe,
}

var (
	authPort    string
	acctPort    string
	metricsAddr string
)

func init() {
	serveCmd.Flags().StringVar(&authPort, "auth-port", "", "Authentication UDP port (overrides RADIUS_AUTH_PORT)")
	serveCmd.Flags().StringVar(&acctPort, "acct-port", "", "Accounting UDP port (overrides RADIUS_ACCT_PORT)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Metrics listen address (overrides METRICS_ADDR)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(historyCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func loadConfig() (config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.NewLogrusLogger(cfg.LogFilePath, cfg.LogLevel)
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if authPort != "" {
		cfg.AuthPort = authPort
	}
	if acctPort != "" {
		cfg.AcctPort = acctPort
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := redisclient.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer client.Close()
	store := redisclient.NewRedisStore(client)
	st := stats.New()

	c, err := cache.New(cfg.CacheSize)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	pub := events.NewRedisPublisher(client, cfg.QueueSize, log)
	catalog := lookup.New(store, c, cfg.CacheTTL, pub)
	sessions := registry.New(store)
	disc := disconnect.NewClient(catalog, cfg.RadiusSecret, cfg.DisconnectTimeout, log, st)

	engine := auth.NewEngine(catalog, sessions, disc, pub, log, auth.Options{
		MaxSessionTimeout: cfg.MaxSessionTimeout,
		InterimInterval:   cfg.InterimInterval,
		AutoUnlock:        cfg.AutoUnlock,
	})
	machine := acct.NewMachine(catalog, store, sessions, store, disc, log, cfg.StopMarkerTTL)

	clients := &server.Clients{
		NAS:           catalog,
		Vendors:       radiusx.NewVendors(),
		DefaultSecret: cfg.RadiusSecret,
	}
	poolOpts := worker.Options{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		JobTimeout: cfg.JobTimeout,
		DropReason: server.DropReason,
	}
	authPool := worker.New(&server.AuthHandler{
		Clients:        clients,
		Engine:         engine,
		Logger:         log,
		Stats:          st,
		BypassPassword: cfg.BypassPassword,
	}, poolOpts, log, st)
	acctPool := worker.New(&server.AcctHandler{
		Clients: clients,
		Machine: machine,
		Logger:  log,
		Stats:   st,
	}, poolOpts, log, st)

	authDoor := server.NewFrontDoor(server.ServiceAuth, cfg.AuthAddr(), authPool, log, st)
	acctDoor := server.NewFrontDoor(server.ServiceAcct, cfg.AcctAddr(), acctPool, log, st)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		if err := events.Subscribe(ctx, client, log, catalog.OnEvent); err != nil {
			log.Error(fmt.Errorf("cache invalidation subscriber stopped: %w", err))
		}
		return nil
	})
	g.Go(func() error { return authPool.Run(ctx) })
	g.Go(func() error { return acctPool.Run(ctx) })
	g.Go(func() error { return authDoor.ListenAndServe(ctx) })
	g.Go(func() error { return acctDoor.ListenAndServe(ctx) })
	g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, st, log) })

	err = g.Wait()
	disc.Wait()
	return err
}

func serveMetrics(ctx context.Context, addr string, st *stats.Stats, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", st.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Metrics listening on " + addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
