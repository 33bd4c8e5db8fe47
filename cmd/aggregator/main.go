package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/app/provider"
	"networth_aggregator/internal/app/refresh"
	"networth_aggregator/internal/app/resolver"
	"networth_aggregator/internal/app/service"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/configloader"
	"networth_aggregator/internal/infrastructure/httpclient"
	"networth_aggregator/internal/infrastructure/manifestloader"
	clientprovider "networth_aggregator/internal/infrastructure/network/client"
	networkdefinition "networth_aggregator/internal/infrastructure/network/definition"
	"networth_aggregator/internal/infrastructure/restapi"
	"networth_aggregator/internal/pkg/logger"
	"networth_aggregator/internal/pkg/metrics"
	"networth_aggregator/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

const defaultConfigPath = "config/config.yml"

func main() {
	cfgPath := utils.GetEnv("CONFIG_PATH", defaultConfigPath)
	cfg, err := configloader.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger := logger.New(cfg.Logging)
	defer func() { _ = zapLogger.Sync() }()
	logger.InstallSlog(zapLogger)
	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	metrics.MustRegisterMetrics()

	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	// Chain registry: configured networks completed from the predefined table, plus manifests
	chains := make([]entity.ChainDescriptor, 0, len(cfg.Networks))
	for _, d := range cfg.Descriptors() {
		chains = append(chains, networkdefinition.Complete(d))
	}
	manifests, err := manifestloader.NewManifestLoader(cfg.ManifestDir, zapLogger).GetAddressesByChain(chains)
	if err != nil {
		zapLogger.Fatal("Failed to load deployment manifests", zap.Error(err))
	}
	registry := provider.NewChainProvider(chains, manifests, zapLogger)

	clients := clientprovider.NewEVMClientProvider(registry, clientprovider.Options{
		ConnectionTimeout: time.Duration(cfg.RPCClient.ConnectionTimeoutMs) * time.Millisecond,
		CallTimeout:       time.Duration(cfg.RPCClient.CallTimeoutMs) * time.Millisecond,
		RateLimit:         cfg.RPCClient.RateLimit,
		Burst:             cfg.RPCClient.BurstLimit,
		MaxBatchSize:      cfg.RPCClient.MaxBatchSize,
		RedialBackoff:     time.Duration(cfg.RPCClient.RedialBackoffMs) * time.Millisecond,
	}, zapLogger)

	priceIndex := httpclient.NewPriceIndexClient(
		cfg.PriceIndex.BaseURL,
		time.Duration(cfg.PriceIndex.RequestTimeoutMs)*time.Millisecond,
		cfg.PriceIndex.SearchWidth,
		zapLogger,
	)

	pollInterval := time.Duration(cfg.Refresh.PollIntervalMs) * time.Millisecond
	coord := refresh.NewCoordinator(refresh.Options{
		PollInterval: pollInterval,
		MaxStale:     pollInterval * time.Duration(cfg.Refresh.MaxStaleMultiplier),
		FetchTimeout: time.Duration(cfg.Aggregator.CycleTimeoutMs) * time.Millisecond,
	}, zapLogger)

	resolvers, err := resolver.Build(cfg.Resolvers, resolver.Deps{
		Index:    priceIndex,
		Clients:  clients,
		Registry: registry,
		Coord:    coord,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to build price resolvers", zap.Error(err))
	}
	resolvers.CheckBindings(registry.Chains())

	var accounts port.AccountProvider
	if cfg.AccountsFile != "" {
		accounts = provider.NewAccountProvider(cfg.AccountsFile, zapLogger)
	}

	balances := service.NewBalanceService(clients, registry, coord, zapLogger)
	escrows := service.NewEscrowService(clients, coord, zapLogger)
	prices := service.NewPriceService(resolvers, registry)
	portfolio := service.NewPortfolioService(registry, accounts, balances, escrows, prices, cfg.Aggregator, zapLogger)

	var tracker *service.Tracker
	if cfg.Tracker.Enabled {
		tracker = service.NewTracker(portfolio, pollInterval, zapLogger)
		if _, err := tracker.Select(port.Selection{ChainIDs: cfg.Tracker.ChainIDs}); err != nil {
			zapLogger.Fatal("Failed to select tracked accounts", zap.Error(err))
		}
		go func() {
			if err := tracker.Run(ctx); err != nil {
				zapLogger.Error("Tracker exited", zap.Error(err))
			}
		}()
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := restapi.NewHandler(portfolio, balances, escrows, prices, tracker, registry, zapLogger)
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      restapi.SetupRouter(handler, zapLogger),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info("Server starting", zap.String("addr", cfg.Server.Port), zap.Int("chains", len(chains)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")
	cancelRun()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting")
}
