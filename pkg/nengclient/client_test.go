package nengclient

import (
	"encoding/json"
	"testing"
)

func decodePowerRecord(t *testing.T, raw string) PowerRecord {
	t.Helper()
	var rec PowerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return rec
}

func TestPowerRecord_TotalAmpsNumeric(t *testing.T) {
	rec := decodePowerRecord(t, `{"id":"pdu-1","totalAmps":12.5}`)
	if rec.TotalAmps == nil || *rec.TotalAmps != 12.5 {
		t.Fatalf("got %v, want 12.5", rec.TotalAmps)
	}
}

func TestPowerRecord_TotalAmpsNumericString(t *testing.T) {
	rec := decodePowerRecord(t, `{"id":"pdu-1","totalAmps":"7.25"}`)
	if rec.TotalAmps == nil || *rec.TotalAmps != 7.25 {
		t.Fatalf("got %v, want 7.25", rec.TotalAmps)
	}
}

// TestPowerRecord_TotalAmpsNonNumeric guards the batch-decode failure
// this type was fixed to avoid: a single PDU reporting a non-numeric
// current value must decode as an unreadable (nil) reading, not fail
// the whole record's unmarshal.
func TestPowerRecord_TotalAmpsNonNumeric(t *testing.T) {
	rec := decodePowerRecord(t, `{"id":"pdu-1","totalAmps":"unavailable"}`)
	if rec.TotalAmps != nil {
		t.Fatalf("got %v, want nil", rec.TotalAmps)
	}
}

func TestPowerRecord_TotalAmpsNull(t *testing.T) {
	rec := decodePowerRecord(t, `{"id":"pdu-1","totalAmps":null}`)
	if rec.TotalAmps != nil {
		t.Fatalf("got %v, want nil", rec.TotalAmps)
	}
}

func TestPowerRecord_TotalAmpsMissing(t *testing.T) {
	rec := decodePowerRecord(t, `{"id":"pdu-1"}`)
	if rec.TotalAmps != nil {
		t.Fatalf("got %v, want nil", rec.TotalAmps)
	}
}

// TestEnvelope_OneBadRecordDoesNotFailBatch is the regression this
// fix targets directly: decoding a /power array where one entry has a
// non-numeric totalAmps must not error the whole array.
func TestEnvelope_OneBadRecordDoesNotFailBatch(t *testing.T) {
	raw := `{"code":0,"data":[
		{"id":"pdu-1","totalAmps":12.5,"totalVolts":230},
		{"id":"pdu-2","totalAmps":"unreadable","totalVolts":230}
	]}`
	var env envelope[PowerRecord]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(env.Data) != 2 {
		t.Fatalf("got %d records, want 2", len(env.Data))
	}
	if env.Data[0].TotalAmps == nil || *env.Data[0].TotalAmps != 12.5 {
		t.Fatalf("pdu-1 totalAmps = %v, want 12.5", env.Data[0].TotalAmps)
	}
	if env.Data[1].TotalAmps != nil {
		t.Fatalf("pdu-2 totalAmps = %v, want nil", env.Data[1].TotalAmps)
	}
}
