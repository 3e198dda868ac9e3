// Command pdumonitor runs the rack power & environmental monitoring
// service: the periodic NENG evaluation cycle plus the read/write REST
// surface. Flag/env handling and graceful shutdown follow the
// teacher's own cmd binaries (cmd/pulse-docker-agent/main.go's
// signal.NotifyContext + zerolog pattern), with spf13/cobra providing
// the command/flag layer the teacher's go.mod carries but its own
// agent binaries use stdlib `flag` for.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dcops/pdumonitor/internal/api"
	"github.com/dcops/pdumonitor/internal/cache"
	"github.com/dcops/pdumonitor/internal/config"
	"github.com/dcops/pdumonitor/internal/fetch"
	"github.com/dcops/pdumonitor/internal/maintenance"
	"github.com/dcops/pdumonitor/internal/reconcile"
	"github.com/dcops/pdumonitor/internal/snapshot"
	"github.com/dcops/pdumonitor/internal/store"
	"github.com/dcops/pdumonitor/internal/threshold"
	"github.com/dcops/pdumonitor/internal/worker"
	"github.com/dcops/pdumonitor/pkg/nengclient"
)

func main() {
	var envFile string
	var settingsFile string

	root := &cobra.Command{
		Use:   "pdumonitor",
		Short: "Rack power and environmental monitoring service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), envFile, settingsFile)
		},
	}
	root.Flags().StringVar(&envFile, "env-file", ".env", "path to a .env file of credentials/DSNs")
	root.Flags().StringVar(&settingsFile, "settings-file", "", "path to a hot-reloadable JSON settings file (cycle interval, role map)")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	log.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("pdumonitor exited with error")
	}
}

func run(ctx context.Context, envFile, settingsFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if settingsFile != "" {
		watcher, err := config.NewWatcher(cfg, settingsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start settings watcher")
		}
		defer watcher.Close()
	}

	db, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer db.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	redisCache := cache.New(redisClient)

	nengClient := nengclient.New(cfg.NENGBaseURL, cfg.NENGTimeout)
	fetcher := fetch.New(nengClient)

	thresholds := threshold.NewStore(db, redisCache)
	maintenanceRegistry := maintenance.NewRegistry(db, redisCache)
	reconciler := reconcile.New(db)
	snapshots := snapshot.NewStore()

	evaluator := worker.New(fetcher, thresholds, maintenanceRegistry, reconciler, snapshots, cfg.CycleInterval())

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go evaluator.Run(workerCtx)

	router := api.NewRouter(api.Deps{
		Config:      cfg,
		Thresholds:  thresholds,
		Maintenance: maintenanceRegistry,
		Reconciler:  reconciler,
		Snapshots:   snapshots,
		RackCatalog: rackCatalogAdapter(evaluator),
		Importer:    maintenance.CSVImporter{},
		Exporter:    maintenance.CSVExporter{},
		DB:          db,
		StartedAt:   time.Now(),
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Error().Err(err).Msg("http server failed")
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server did not shut down cleanly")
	}
	cancelWorker()
	return nil
}

// rackCatalogAdapter narrows the evaluator's catalog to the shape
// internal/api accepts, keeping the HTTP layer free of a direct
// dependency on the worker package's concrete type.
func rackCatalogAdapter(e *worker.Evaluator) func() map[string]api.RackInfo {
	return func() map[string]api.RackInfo {
		catalog := e.RackCatalog()
		out := make(map[string]api.RackInfo, len(catalog))
		for id, rack := range catalog {
			out[id] = api.RackInfo{RackID: rack.RackID, Country: rack.Country, Site: rack.Site, DC: rack.DC, Chain: rack.Chain}
		}
		return out
	}
}
