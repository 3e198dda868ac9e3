package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dcops/pdumonitor/internal/apierr"
	"github.com/dcops/pdumonitor/internal/models"
)

const maxImportUploadBytes = 5 << 20 // 5 MiB

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return apierr.InvalidInput("malformed request body: " + err.Error())
	}
	return nil
}

// handlePutGlobalThresholds bulk-upserts global entries; body is
// `{key -> value}` with permitted keys only (spec.md §4.7).
func (s *server) handlePutGlobalThresholds(w http.ResponseWriter, r *http.Request) {
	var body map[string]float64
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	for key, value := range body {
		if err := s.deps.Thresholds.PutGlobal(r.Context(), key, value, "", ""); err != nil {
			writeError(w, err)
			return
		}
	}
	writeMessage(w, http.StatusOK, "global thresholds updated")
}

func (s *server) handlePutRackThresholds(w http.ResponseWriter, r *http.Request) {
	rackID := chi.URLParam(r, "rackID")
	var body map[string]float64
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	for key, value := range body {
		if err := s.deps.Thresholds.PutRack(r.Context(), rackID, key, value, "", ""); err != nil {
			writeError(w, err)
			return
		}
	}
	writeMessage(w, http.StatusOK, "rack thresholds updated")
}

func (s *server) handleDeleteRackThresholds(w http.ResponseWriter, r *http.Request) {
	rackID := chi.URLParam(r, "rackID")
	if err := s.deps.Thresholds.DeleteRack(r.Context(), rackID); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "rack thresholds reset to global")
}

// maintenanceRackRequest is the body POST /maintenance/rack carries:
// rack context plus the reason/initiator (spec.md §4.7).
type maintenanceRackRequest struct {
	RackID    string `json:"rackId" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
	StartedBy string `json:"startedBy" validate:"required"`
	Country   string `json:"country"`
	Site      string `json:"site"`
	DC        string `json:"dc"`
	Chain     string `json:"chain"`
}

func (s *server) handleStartMaintenanceRack(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apierr.InvalidInput(err.Error()))
		return
	}

	rack := models.RackCatalogEntry{RackID: req.RackID, Country: req.Country, Site: req.Site, DC: req.DC, Chain: req.Chain}
	if known, ok := s.deps.RackCatalog()[req.RackID]; ok {
		rack = models.RackCatalogEntry{RackID: known.RackID, Country: known.Country, Site: known.Site, DC: known.DC, Chain: known.Chain}
	}

	entryID, err := s.deps.Maintenance.StartIndividual(r.Context(), rack, req.Reason, req.StartedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, map[string]interface{}{"entryId": entryID})
}

// maintenanceChainRequest is the body POST /maintenance/chain carries;
// the server resolves matching racks from the current snapshot rather
// than trusting a client-supplied rack list (spec.md §4.7).
type maintenanceChainRequest struct {
	Chain     string `json:"chain" validate:"required"`
	Site      string `json:"site" validate:"required"`
	DC        string `json:"dc" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
	StartedBy string `json:"startedBy" validate:"required"`
}

func (s *server) handleStartMaintenanceChain(w http.ResponseWriter, r *http.Request) {
	var req maintenanceChainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apierr.InvalidInput(err.Error()))
		return
	}

	catalog := s.deps.RackCatalog()
	entries := make([]models.RackCatalogEntry, 0, len(catalog))
	for _, rack := range catalog {
		entries = append(entries, models.RackCatalogEntry{RackID: rack.RackID, Country: rack.Country, Site: rack.Site, DC: rack.DC, Chain: rack.Chain})
	}

	result, err := s.deps.Maintenance.StartChain(r.Context(), req.Chain, req.Site, req.DC, req.Reason, req.StartedBy, entries)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, result)
}

func (s *server) handleImportMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportUploadBytes); err != nil {
		writeError(w, apierr.InvalidInput("could not parse upload: "+err.Error()))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierr.InvalidInput("missing 'file' field in upload"))
		return
	}
	defer file.Close()

	startedBy := r.FormValue("startedBy")

	rows, err := s.deps.Importer.Parse(file)
	if err != nil {
		writeError(w, err)
		return
	}

	catalog := s.deps.RackCatalog()
	resolved := make(map[string]models.RackCatalogEntry, len(catalog))
	for id, rack := range catalog {
		resolved[id] = models.RackCatalogEntry{RackID: rack.RackID, Country: rack.Country, Site: rack.Site, DC: rack.DC, Chain: rack.Chain}
	}

	summary := s.deps.Maintenance.BulkImport(r.Context(), rows, resolved, startedBy)
	writeData(w, summary)
}

func (s *server) handleEndMaintenanceEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := parseInt64(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, apierr.InvalidInput("invalid entry id"))
		return
	}
	if err := s.deps.Maintenance.EndEntry(r.Context(), entryID); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "maintenance entry ended")
}

func (s *server) handleEndMaintenanceRack(w http.ResponseWriter, r *http.Request) {
	rackID := chi.URLParam(r, "rackID")
	if err := s.deps.Maintenance.EndRack(r.Context(), rackID); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "rack removed from maintenance")
}

// handleExportAlerts produces a downloadable file of the Active-Alert
// table; the file format is delegated to the Exporter collaborator
// (spec.md §4.7).
func (s *server) handleExportAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.Reconciler.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="active_alerts.csv"`)
	if err := s.deps.Exporter.Export(w, alerts); err != nil {
		// headers are already sent, so the error cannot be reported to
		// the caller; the download is left truncated and the error dropped.
		return
	}
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
