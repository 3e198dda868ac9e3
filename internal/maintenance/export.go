package maintenance

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/dcops/pdumonitor/internal/models"
)

// Exporter writes the Active-Alert table as a downloadable file. Like
// Importer, the file format is an external collaborator's concern
// (spec.md §4.7); CSVExporter is the shipped default.
type Exporter interface {
	Export(w io.Writer, alerts []models.ActiveCriticalAlert) error
}

type CSVExporter struct{}

func (CSVExporter) Export(w io.Writer, alerts []models.ActiveCriticalAlert) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"pdu_id", "rack_id", "site", "dc", "metric_type", "alert_reason", "alert_value", "threshold_exceeded", "alert_started_at", "last_updated_at"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, a := range alerts {
		record := []string{
			a.PDUID, a.RackID, a.Site, a.DC, a.MetricType, a.AlertReason,
			strconv.FormatFloat(a.AlertValue, 'f', -1, 64),
			strconv.FormatFloat(a.ThresholdExceeded, 'f', -1, 64),
			a.AlertStartedAt.UTC().Format("2006-01-02T15:04:05Z"),
			a.LastUpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}
