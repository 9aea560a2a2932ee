// Command vtecd consumes raw NWS products from Kafka, decodes their VTEC into
// the record store and publishes change summaries and partner notifications.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-data-vtec/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/storm-data-vtec/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-vtec/internal/config"
	"github.com/couchcryptid/storm-data-vtec/internal/decoder"
	"github.com/couchcryptid/storm-data-vtec/internal/ingest"
	"github.com/couchcryptid/storm-data-vtec/internal/localization"
	"github.com/couchcryptid/storm-data-vtec/internal/observability"
	"github.com/couchcryptid/storm-data-vtec/internal/pipeline"
	"github.com/couchcryptid/storm-data-vtec/internal/store"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	records := store.NewFileStore(cfg.RecordsFile, logger)
	partners := vtec.DefaultPartners()

	var decOpts []decoder.Option
	if cfg.FilterDisabled {
		logger.Info("office filter disabled")
	} else {
		decOpts = append(decOpts, decoder.WithOfficeFilter(decoder.NewOfficeFilter(cfg.SiteID, partners, cfg.OfficeFilter...)))
	}
	dec := decoder.New(logger, decOpts...)

	var ingOpts []ingest.Option
	if cfg.BackupsEnabled {
		ingOpts = append(ingOpts, ingest.WithBackups(records, cfg.BackupRetention))
	}
	if cfg.PartnerNotifications {
		ingOpts = append(ingOpts, ingest.WithPartnerNotifications(partners), ingest.WithLocalZones(cfg.LocalZones))
	}
	ingester := ingest.New(records, logger, ingOpts...)

	loc, err := localization.NewStore(cfg.LocalizationRoot, logger,
		localization.WithCache(cfg.ConfigCacheSize),
		localization.WithCacheObserver(metrics))
	if err != nil {
		logger.Error("failed to open localization store", "root", cfg.LocalizationRoot, "error", err)
		os.Exit(1)
	}

	processor := pipeline.NewProcessor(dec, ingester, metrics, logger,
		pipeline.WithHeadlines(loc.Headlines(localization.Context{Site: cfg.SiteID})))

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(reader, processor, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, records, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Localization edits invalidate cached compositions. Without a watcher
	// the service keeps running on what it has cached.
	if w, err := loc.NewWatcher(); err != nil {
		logger.Warn("localization watcher unavailable", "root", cfg.LocalizationRoot, "error", err)
	} else {
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("localization watcher error", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	logger.Info("vtecd started",
		"site", cfg.SiteID, "records", cfg.RecordsFile,
		"source_topic", cfg.KafkaSourceTopic, "sink_topic", cfg.KafkaSinkTopic)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
