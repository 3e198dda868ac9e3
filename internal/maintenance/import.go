package maintenance

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/dcops/pdumonitor/internal/apierr"
	"github.com/dcops/pdumonitor/internal/models"
)

// ImportRow is one parsed row of a bulk maintenance import file.
type ImportRow struct {
	RackID string
	Reason string
}

// Importer turns an uploaded tabular file into import rows. The core
// never inspects the file format itself — Excel handling is an
// explicit out-of-scope collaborator (spec.md §1); CSVImporter is the
// shipped default (see DESIGN.md for why no spreadsheet library is
// wired here).
type Importer interface {
	Parse(r io.Reader) ([]ImportRow, error)
}

// CSVImporter parses `rack_id,reason` CSV files.
type CSVImporter struct{}

func (CSVImporter) Parse(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apierr.InvalidInput("malformed import file: " + err.Error())
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rackCol, reasonCol := -1, -1
	for i, col := range header {
		switch col {
		case "rack_id":
			rackCol = i
		case "reason":
			reasonCol = i
		}
	}
	if rackCol == -1 {
		return nil, apierr.InvalidInput("import file is missing a rack_id column")
	}

	rows := make([]ImportRow, 0, len(records)-1)
	for _, record := range records[1:] {
		if rackCol >= len(record) || record[rackCol] == "" {
			continue
		}
		row := ImportRow{RackID: record[rackCol]}
		if reasonCol != -1 && reasonCol < len(record) {
			row.Reason = record[reasonCol]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BulkImport feeds each parsed row through StartIndividual, collecting
// a per-row summary without aborting on individual failures (spec.md
// §4.2's bulk-import contract).
func (r *Registry) BulkImport(ctx context.Context, rows []ImportRow, catalog map[string]models.RackCatalogEntry, startedBy string) models.ImportSummary {
	summary := models.ImportSummary{Total: len(rows)}

	for _, row := range rows {
		rack, known := catalog[row.RackID]
		if !known {
			rack = models.RackCatalogEntry{RackID: row.RackID}
		}

		_, err := r.StartIndividual(ctx, rack, row.Reason, startedBy)
		switch {
		case err == nil:
			summary.Successful++
		case err == apierr.ErrAlreadyInMaintenance:
			summary.AlreadyInMaintenance++
		default:
			summary.Failed = append(summary.Failed, models.ImportRowResult{
				RackID: row.RackID,
				Status: "failed",
				Error:  err.Error(),
			})
		}
	}
	return summary
}
