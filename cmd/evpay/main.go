package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"evpay/internal/broker"
	"evpay/internal/config"
	"evpay/internal/cpclient"
	"evpay/internal/db"
	"evpay/internal/filestore"
	"evpay/internal/httpapi"
	"evpay/internal/payments"
	"evpay/internal/repo"
	"evpay/internal/services"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	d, err := db.Connect(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Fatal("database connect", zap.Error(err))
	}
	defer d.Close()

	checkouts := repo.NewCheckoutsRepo(d.Pool)
	tariffs := repo.NewTariffsRepo(d.Pool)
	topology := repo.NewTopologyRepo(d.Pool)
	ocppRepo := repo.NewOcppRepo(d.Pool)
	events := repo.NewEventsRepo(d.Pool)

	authority := cpclient.New(cfg.CpmsMessageAPIURL, cfg.CpmsAPIKey, cfg.ExternalCallTimeout)
	processor := payments.NewStripeProcessor(cfg.StripeAPIKey)
	files, err := filestore.NewDirectus(cfg.FileStoreURL, cfg.FileStoreEmail,
		cfg.FileStorePassword, cfg.FileStoreToken, cfg.QrCodeFolder, cfg.ExternalCallTimeout)
	if err != nil {
		logger.Fatal("filestore login", zap.Error(err))
	}

	svc := services.NewCheckoutService(services.CheckoutServiceParams{
		Log:           logger,
		Checkouts:     checkouts,
		Tariffs:       tariffs,
		Topology:      topology,
		Ocpp:          ocppRepo,
		Authority:     authority,
		Payments:      processor,
		Files:         files,
		Capture:       services.NewCaptureOrchestrator(logger, processor, tariffs, topology),
		ScanAndCharge: cfg.ScanAndCharge,
		IdTokenPrefix: cfg.RemoteStartIdPrefix,
	})

	srv := httpapi.NewServer(cfg, logger, svc, topology, tariffs)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := broker.NewConsumer(logger, cfg.BrokerURL, cfg.BrokerExchange,
		cfg.BrokerQueue, svc, events, cfg.ExternalCallTimeout)
	go func() {
		if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("broker consumer stopped", zap.Error(err))
			stop()
		}
	}()

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-runCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}
