// ====================================
// File: cmd/balance/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenbalance/internal/balance"
	"github.com/rovshanmuradov/tokenbalance/internal/config"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to configuration file")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics_addr)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <wallet>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	wallets := flag.Args()
	if len(wallets) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}
	appLogger, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger, wallets, os.Stdout); err != nil {
		appLogger.LogError("Balance report failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger *logger.Logger, wallets []string, out io.Writer) error {
	log := appLogger.WithComponent("balance-cli")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	stack, err := balance.NewFromConfig(cfg, appLogger.Logger, registry)
	if err != nil {
		return fmt.Errorf("initialize balance service: %w", err)
	}
	defer stack.Close()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, registry, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	go func() {
		_ = stack.Service.Run(ctx)
	}()

	done := appLogger.TrackPerformance("balance_report")
	defer done()

	return report(ctx, stack.Service, cfg, wallets, out)
}

// report looks wallets up one by one, as an admin bulk report does.
func report(ctx context.Context, svc *balance.Service, cfg *config.Config, wallets []string, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WALLET\tBALANCE\tSOURCE\tAS OF")

	for _, wallet := range wallets {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := svc.Lookup(ctx, wallet)
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n",
			wallet,
			res.Balance.StringFixed(int32(cfg.TokenDecimals)),
			cfg.TokenSymbol,
			source(wallet, res),
			res.AsOf.Format(time.RFC3339))
	}
	return w.Flush()
}

func source(wallet string, res balance.Result) string {
	switch {
	case balance.ValidateAddress(wallet) != nil:
		return "invalid address"
	case res.Fallback:
		return "unavailable"
	case res.Stale:
		return "stale cache"
	case res.FromCache:
		return "cache"
	default:
		return "rpc"
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}
