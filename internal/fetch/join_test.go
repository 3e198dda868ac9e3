package fetch

import (
	"testing"

	"github.com/dcops/pdumonitor/internal/models"
	"github.com/dcops/pdumonitor/pkg/nengclient"
)

func f64(v float64) *float64 { return &v }

func TestJoin_DropsUnmatchedRecords(t *testing.T) {
	devices := []nengclient.DeviceRecord{{ID: "pdu-A", RackID: "rack-1", Phase: "single-phase"}, {ID: "pdu-orphan"}}
	power := []nengclient.PowerRecord{{ID: "pdu-A", TotalAmps: f64(10)}}

	readings := join(devices, power)
	if len(readings) != 1 {
		t.Fatalf("expected 1 joined reading, got %d", len(readings))
	}
	if readings[0].PDUID != "pdu-A" {
		t.Fatalf("unexpected pdu id: %s", readings[0].PDUID)
	}
}

func TestJoin_PrefersSensorTemperature(t *testing.T) {
	devices := []nengclient.DeviceRecord{{ID: "pdu-A"}}
	power := []nengclient.PowerRecord{{ID: "pdu-A", Temperature: f64(20), SensorTemperature: f64(25)}}

	readings := join(devices, power)
	if *readings[0].Temperature != 25 {
		t.Fatalf("expected sensorTemperature to win, got %v", *readings[0].Temperature)
	}
}

func TestJoin_DerivesSinglePhasePower(t *testing.T) {
	devices := []nengclient.DeviceRecord{{ID: "pdu-A", Phase: "single-phase"}}
	power := []nengclient.PowerRecord{{ID: "pdu-A", TotalAmps: f64(10), TotalVolts: f64(230)}}

	readings := join(devices, power)
	if readings[0].Power == nil || *readings[0].Power != 2300 {
		t.Fatalf("expected derived power 2300, got %v", readings[0].Power)
	}
}

func TestJoin_DoesNotDeriveThreePhasePower(t *testing.T) {
	devices := []nengclient.DeviceRecord{{ID: "pdu-A", Phase: "three-phase"}}
	power := []nengclient.PowerRecord{{ID: "pdu-A", TotalAmps: f64(10), TotalVolts: f64(230)}}

	readings := join(devices, power)
	if readings[0].Power != nil {
		t.Fatalf("expected no derived power for three-phase, got %v", *readings[0].Power)
	}
}

func TestJoin_UnknownPhaseNormalized(t *testing.T) {
	devices := []nengclient.DeviceRecord{{ID: "pdu-A", Phase: "weird"}}
	power := []nengclient.PowerRecord{{ID: "pdu-A"}}

	readings := join(devices, power)
	if readings[0].Phase != models.PhaseUnknown {
		t.Fatalf("expected unknown phase normalization, got %s", readings[0].Phase)
	}
}
