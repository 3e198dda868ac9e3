package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/dcops/pdumonitor/internal/config"
	"github.com/dcops/pdumonitor/internal/maintenance"
	"github.com/dcops/pdumonitor/internal/reconcile"
	"github.com/dcops/pdumonitor/internal/snapshot"
	"github.com/dcops/pdumonitor/internal/store"
	"github.com/dcops/pdumonitor/internal/threshold"
)

// Deps bundles everything the router needs to construct handlers. It
// intentionally takes concrete store/registry types (the same
// dependency-injection shape the teacher's NewRouter uses) rather than
// a god-object config.
type Deps struct {
	Config      *config.Config
	Thresholds  *threshold.Store
	Maintenance *maintenance.Registry
	Reconciler  *reconcile.Reconciler
	Snapshots   *snapshot.Store
	RackCatalog func() map[string]RackInfo
	Importer    maintenance.Importer
	Exporter    maintenance.Exporter
	DB          *store.DB
	StartedAt   time.Time
}

// RackInfo is the minimal rack-location shape handlers need from the
// evaluator's catalog without importing the worker package (no import
// cycle exists today; keeping api dependency-free of worker keeps the
// seam explicit).
type RackInfo struct {
	RackID  string
	Country string
	Site    string
	DC      string
	Chain   string
}

type server struct {
	deps     Deps
	validate *validator.Validate
}

// NewRouter builds the full C6 (read) + C7 (mutation) HTTP surface on
// go-chi, with go-chi/cors for the out-of-scope dashboard's
// cross-origin access and the auth-gate middleware from spec.md §9
// applied per mutating route group.
func NewRouter(deps Deps) http.Handler {
	s := &server{deps: deps, validate: validator.New()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(requestTimeout)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", roleHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	mutate := mutationRateLimiter(deps.Config)

	r.Route("/racks", func(r chi.Router) {
		r.Get("/", s.handleListRacks)
		r.Get("/{rackID}/thresholds", s.handleRackThresholds)
		r.With(mutate, requireRole(deps.Config, config.OpThresholdWrite)).
			Put("/{rackID}/thresholds", s.handlePutRackThresholds)
		r.With(mutate, requireRole(deps.Config, config.OpThresholdWrite)).
			Delete("/{rackID}/thresholds", s.handleDeleteRackThresholds)
	})

	r.Get("/sites", s.handleListSites)

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/active", s.handleActiveAlerts)
	})

	r.Route("/thresholds", func(r chi.Router) {
		r.Get("/", s.handleListGlobalThresholds)
		r.With(mutate, requireRole(deps.Config, config.OpThresholdWrite)).Put("/", s.handlePutGlobalThresholds)
	})

	r.Route("/maintenance", func(r chi.Router) {
		r.Get("/", s.handleListMaintenance)
		r.With(mutate, requireRole(deps.Config, config.OpMaintenanceWrite)).Post("/rack", s.handleStartMaintenanceRack)
		r.With(mutate, requireRole(deps.Config, config.OpMaintenanceWrite)).Post("/chain", s.handleStartMaintenanceChain)
		r.With(mutate, requireRole(deps.Config, config.OpMaintenanceWrite)).Post("/import", s.handleImportMaintenance)
		r.With(mutate, requireRole(deps.Config, config.OpMaintenanceWrite)).Delete("/entry/{entryID}", s.handleEndMaintenanceEntry)
		r.With(mutate, requireRole(deps.Config, config.OpMaintenanceWrite)).Delete("/rack/{rackID}", s.handleEndMaintenanceRack)
	})

	r.With(mutate, requireRole(deps.Config, config.OpExport)).Post("/export/alerts", s.handleExportAlerts)

	return r
}
