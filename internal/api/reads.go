package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dcops/pdumonitor/internal/models"
)

// handleHealth reports process liveness plus DB reachability and the
// age of the last successful cycle, the operational endpoint every
// repo in the pack carries regardless of the spec's Non-goals
// (SPEC_FULL.md §6).
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbOK := true
	if err := s.deps.DB.PingContext(ctx); err != nil {
		dbOK = false
	}

	latest := s.deps.Snapshots.Latest()
	body := map[string]interface{}{
		"status":           "ok",
		"uptimeSeconds":    int(time.Since(s.deps.StartedAt).Seconds()),
		"databaseHealthy":  dbOK,
		"lastCycleID":      latest.CycleID,
		"lastCycleStale":   latest.Stale,
		"lastCycleAgeSecs": int(time.Since(latest.ProducedAt).Seconds()),
	}
	writeData(w, body)
}

// handleListRacks serves the most recently published snapshot
// (spec.md §4.6). A snapshot that never completed a cycle is still
// published (by snapshot.NewStore) with Stale=true and an empty PDU
// slice, satisfying "If no cycle has completed, returns empty array
// with a stale: true marker."
func (s *server) handleListRacks(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Snapshots.Latest()
	w.Header().Set("ETag", fmt.Sprintf(`"%d"`, snap.CycleID))
	pdus := snap.PDUs
	if pdus == nil {
		pdus = []models.ClassifiedPDU{}
	}
	count := len(pdus)
	writeJSON(w, http.StatusOK, struct {
		envelope
		Stale bool `json:"stale"`
	}{envelope{Success: true, Data: pdus, Count: &count}, snap.Stale})
}

func (s *server) handleListSites(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Snapshots.Latest()
	seen := map[string]bool{}
	var sites []string
	for _, pdu := range snap.PDUs {
		if pdu.Site == "" || seen[pdu.Site] {
			continue
		}
		seen[pdu.Site] = true
		sites = append(sites, pdu.Site)
	}
	sort.Strings(sites)
	writeDataCount(w, sites, len(sites))
}

// handleActiveAlerts serves the Active-Alert table, filterable by
// metric_type, site, dc query params (spec.md §4.6).
func (s *server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.Reconciler.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	metricType := r.URL.Query().Get("metric_type")
	site := r.URL.Query().Get("site")
	dc := r.URL.Query().Get("dc")

	filtered := make([]models.ActiveCriticalAlert, 0, len(alerts))
	for _, a := range alerts {
		if metricType != "" && a.MetricType != metricType {
			continue
		}
		if site != "" && a.Site != site {
			continue
		}
		if dc != "" && a.DC != dc {
			continue
		}
		filtered = append(filtered, a)
	}
	writeDataCount(w, filtered, len(filtered))
}

func (s *server) handleListGlobalThresholds(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Thresholds.ListGlobal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeDataCount(w, entries, len(entries))
}

// handleRackThresholds serves {global[], rack_specific[]} for a rack
// (spec.md §4.6's GET /racks/{rack_id}/thresholds).
func (s *server) handleRackThresholds(w http.ResponseWriter, r *http.Request) {
	rackID := chi.URLParam(r, "rackID")

	global, err := s.deps.Thresholds.ListGlobal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	rackSpecific, err := s.deps.Thresholds.ListRack(r.Context(), rackID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, map[string]interface{}{
		"global":       global,
		"rackSpecific": rackSpecific,
	})
}

func (s *server) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Maintenance.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeDataCount(w, entries, len(entries))
}
