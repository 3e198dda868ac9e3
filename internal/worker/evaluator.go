// Package worker owns the periodic evaluation cycle: the single
// goroutine that ticks Fetch -> Classify -> Reconcile and publishes a
// fresh snapshot, grounded on the teacher's own poll-ticker loop but
// generalized to the single-flight "drop ticks while busy" discipline
// spec.md §4.3/§5/§9 require explicitly.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dcops/pdumonitor/internal/classify"
	"github.com/dcops/pdumonitor/internal/maintenance"
	"github.com/dcops/pdumonitor/internal/models"
	"github.com/dcops/pdumonitor/internal/reconcile"
	"github.com/dcops/pdumonitor/internal/snapshot"
	"github.com/dcops/pdumonitor/internal/threshold"
)

// Fetcher is the seam the worker pulls PDU readings through; satisfied
// by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.PDUReading, error)
}

var (
	cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pdumonitor_cycles_total",
		Help: "Evaluation cycles run, labeled by outcome.",
	}, []string{"outcome"})
	cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdumonitor_cycle_duration_seconds",
		Help:    "Wall-clock duration of an evaluation cycle.",
		Buckets: prometheus.DefBuckets,
	})
	activeAlertsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pdumonitor_active_alerts",
		Help: "Active critical alerts after the most recent reconcile.",
	})
)

func init() {
	prometheus.MustRegister(cyclesTotal, cycleDuration, activeAlertsGauge)
}

// Evaluator runs the evaluation loop described in spec.md §4.3/§4.5/§5.
type Evaluator struct {
	fetcher      Fetcher
	thresholds   *threshold.Store
	maintenance  *maintenance.Registry
	reconciler   *reconcile.Reconciler
	snapshots    *snapshot.Store
	interval     time.Duration
	running      atomic.Bool
	cycleID      atomic.Uint64
	rackCatalog  atomic.Pointer[map[string]models.RackCatalogEntry]
}

func New(fetcher Fetcher, thresholds *threshold.Store, maint *maintenance.Registry, reconciler *reconcile.Reconciler, snapshots *snapshot.Store, interval time.Duration) *Evaluator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	e := &Evaluator{
		fetcher:     fetcher,
		thresholds:  thresholds,
		maintenance: maint,
		reconciler:  reconciler,
		snapshots:   snapshots,
		interval:    interval,
	}
	empty := map[string]models.RackCatalogEntry{}
	e.rackCatalog.Store(&empty)
	return e
}

// RackCatalog returns the rack locations observed in the most recent
// snapshot, consumed by chain-maintenance starts (spec.md §4.7).
func (e *Evaluator) RackCatalog() map[string]models.RackCatalogEntry {
	return *e.rackCatalog.Load()
}

// Run blocks, ticking evaluation cycles until ctx is cancelled. Ticks
// that arrive while a cycle is in flight are dropped, never queued
// (spec.md §4.3's single-flight cadence).
func (e *Evaluator) Run(ctx context.Context) {
	log.Info().Dur("interval", e.interval).Msg("starting evaluation loop")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	go e.runCycle(ctx)

	for {
		select {
		case <-ticker.C:
			if e.running.Load() {
				log.Debug().Msg("previous evaluation cycle still running, dropping tick")
				continue
			}
			go e.runCycle(ctx)
		case <-ctx.Done():
			log.Info().Msg("evaluation loop stopped")
			return
		}
	}
}

func (e *Evaluator) runCycle(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	defer e.running.Store(false)

	start := time.Now()
	cycleID := e.cycleID.Add(1)
	logger := log.With().Uint64("cycleId", cycleID).Logger()

	readings, err := e.fetcher.Fetch(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("cycle failed to fetch upstream readings, skipping reconciliation")
		cyclesTotal.WithLabelValues("fetch_failed").Inc()
		e.publishStale(cycleID)
		cycleDuration.Observe(time.Since(start).Seconds())
		return
	}

	e.updateRackCatalog(readings)

	suppressed, err := e.maintenance.SuppressedSet(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load suppressed set, skipping reconciliation")
		cyclesTotal.WithLabelValues("maintenance_failed").Inc()
		e.publishStale(cycleID)
		cycleDuration.Observe(time.Since(start).Seconds())
		return
	}

	classified := make(map[string]classify.Result, len(readings))
	readingByID := make(map[string]models.PDUReading, len(readings))
	classifiedPDUs := make([]models.ClassifiedPDU, 0, len(readings))
	incompletePDUIDs := make(map[string]bool)

	for _, reading := range readings {
		readingByID[reading.PDUID] = reading
		effective, err := e.thresholds.EffectiveFor(ctx, reading.RackID)
		if err != nil {
			logger.Error().Err(err).Str("rackId", reading.RackID).Msg("failed to resolve effective thresholds, skipping PDU this cycle")
			incompletePDUIDs[reading.PDUID] = true
			continue
		}
		result := classify.Classify(reading, effective)
		classified[reading.PDUID] = result
		classifiedPDUs = append(classifiedPDUs, models.ClassifiedPDU{
			PDUReading: reading,
			Status:     result.Status,
			Reasons:    result.Reasons,
			Suppressed: suppressed[reading.RackID],
		})
	}

	desired := reconcile.BuildDesired(classified, readingByID, suppressed)
	current, err := e.reconciler.Current(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load current active alerts, skipping reconciliation")
		cyclesTotal.WithLabelValues("reconcile_read_failed").Inc()
	} else {
		plan := reconcile.Diff(desired, current, incompletePDUIDs)
		if err := e.reconciler.Apply(ctx, plan); err != nil {
			logger.Error().Err(err).Msg("failed to apply reconcile plan")
			cyclesTotal.WithLabelValues("reconcile_write_failed").Inc()
		} else {
			activeAlertsGauge.Set(float64(len(desired)))
			cyclesTotal.WithLabelValues("success").Inc()
		}
	}

	e.snapshots.Publish(&models.Snapshot{
		CycleID:    cycleID,
		PDUs:       classifiedPDUs,
		Stale:      false,
		ProducedAt: time.Now(),
	})
	cycleDuration.Observe(time.Since(start).Seconds())
}

func (e *Evaluator) publishStale(cycleID uint64) {
	prior := e.snapshots.Latest()
	e.snapshots.Publish(&models.Snapshot{
		CycleID:    cycleID,
		PDUs:       prior.PDUs,
		Stale:      true,
		ProducedAt: prior.ProducedAt,
	})
}

func (e *Evaluator) updateRackCatalog(readings []models.PDUReading) {
	catalog := make(map[string]models.RackCatalogEntry, len(readings))
	for _, r := range readings {
		catalog[r.RackID] = models.RackCatalogEntry{RackID: r.RackID, Country: r.Country, Site: r.Site, DC: r.DC, Chain: r.Chain}
	}
	e.rackCatalog.Store(&catalog)
}
