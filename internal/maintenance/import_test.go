package maintenance

import (
	"strings"
	"testing"
)

func TestCSVImporter_ParsesRackIDAndReason(t *testing.T) {
	csvBody := "rack_id,reason\nrack-1,annual inspection\nrack-2,PDU swap\n"
	rows, err := CSVImporter{}.Parse(strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].RackID != "rack-1" || rows[0].Reason != "annual inspection" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestCSVImporter_SkipsBlankRackID(t *testing.T) {
	csvBody := "rack_id,reason\n,missing rack\nrack-3,ok\n"
	rows, err := CSVImporter{}.Parse(strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 1 || rows[0].RackID != "rack-3" {
		t.Fatalf("expected only rack-3 to survive, got %+v", rows)
	}
}

func TestCSVImporter_RejectsMissingRackIDColumn(t *testing.T) {
	csvBody := "reason\nsomething\n"
	_, err := CSVImporter{}.Parse(strings.NewReader(csvBody))
	if err == nil {
		t.Fatal("expected an error for missing rack_id column")
	}
}
