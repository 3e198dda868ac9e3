package reconcile

import (
	"testing"

	"github.com/dcops/pdumonitor/internal/classify"
	"github.com/dcops/pdumonitor/internal/models"
)

func TestDiff_OpenRefreshClose(t *testing.T) {
	desired := []DesiredAlert{
		{Key: models.AlertKey{PDUID: "pdu-A", MetricType: "amperage", AlertReason: "critical_amperage_high_single_phase"}, Detail: classify.ReasonDetail{Value: 26, ThresholdExceeded: 25}},
		{Key: models.AlertKey{PDUID: "pdu-B", MetricType: "voltage", AlertReason: "critical_voltage_low"}, Detail: classify.ReasonDetail{Value: 0, ThresholdExceeded: 100}},
	}
	current := []models.ActiveCriticalAlert{
		{PDUID: "pdu-A", MetricType: "amperage", AlertReason: "critical_amperage_high_single_phase"},
		{PDUID: "pdu-C", MetricType: "temperature", AlertReason: "critical_temperature_high"},
	}

	plan := Diff(desired, current, nil)

	if len(plan.ToOpen) != 1 || plan.ToOpen[0].Key.PDUID != "pdu-B" {
		t.Fatalf("expected pdu-B to open, got %+v", plan.ToOpen)
	}
	if len(plan.ToRefresh) != 1 || plan.ToRefresh[0].Key.PDUID != "pdu-A" {
		t.Fatalf("expected pdu-A to refresh, got %+v", plan.ToRefresh)
	}
	if len(plan.ToClose) != 1 || plan.ToClose[0].PDUID != "pdu-C" {
		t.Fatalf("expected pdu-C to close, got %+v", plan.ToClose)
	}
}

func TestDiff_IdempotentOnIdenticalInputs(t *testing.T) {
	desired := []DesiredAlert{
		{Key: models.AlertKey{PDUID: "pdu-A", MetricType: "amperage", AlertReason: "critical_amperage_high_single_phase"}},
	}
	current := []models.ActiveCriticalAlert{
		{PDUID: "pdu-A", MetricType: "amperage", AlertReason: "critical_amperage_high_single_phase"},
	}

	plan := Diff(desired, current, nil)
	if len(plan.ToOpen) != 0 || len(plan.ToClose) != 0 || len(plan.ToRefresh) != 1 {
		t.Fatalf("expected only a refresh on identical inputs, got %+v", plan)
	}
}

func TestBuildDesired_ExcludesSuppressedRacks(t *testing.T) {
	classified := map[string]classify.Result{
		"pdu-A": {Status: models.StatusCritical, Reasons: []string{"critical_amperage_high_single_phase"}, ReasonDetail: map[string]classify.ReasonDetail{
			"critical_amperage_high_single_phase": {Value: 26, ThresholdExceeded: 25, MetricType: "amperage"},
		}},
	}
	readings := map[string]models.PDUReading{"pdu-A": {PDUID: "pdu-A", RackID: "rack-1"}}
	suppressed := map[string]bool{"rack-1": true}

	desired := BuildDesired(classified, readings, suppressed)
	if len(desired) != 0 {
		t.Fatalf("expected suppressed rack to produce no desired alerts, got %+v", desired)
	}
}

func TestBuildDesired_IgnoresWarningReasons(t *testing.T) {
	classified := map[string]classify.Result{
		"pdu-A": {Status: models.StatusWarning, Reasons: []string{"warning_amperage_high_single_phase"}, ReasonDetail: map[string]classify.ReasonDetail{
			"warning_amperage_high_single_phase": {Value: 21, ThresholdExceeded: 20, MetricType: "amperage"},
		}},
	}
	readings := map[string]models.PDUReading{"pdu-A": {PDUID: "pdu-A", RackID: "rack-1"}}

	desired := BuildDesired(classified, readings, map[string]bool{})
	if len(desired) != 0 {
		t.Fatalf("expected warning-only reasons to produce no desired alerts, got %+v", desired)
	}
}

func TestDiff_EmptyDesiredClosesEverything(t *testing.T) {
	current := []models.ActiveCriticalAlert{
		{PDUID: "pdu-A", MetricType: "amperage", AlertReason: "critical_amperage_high_single_phase"},
		{PDUID: "pdu-B", MetricType: "voltage", AlertReason: "critical_voltage_low"},
	}
	plan := Diff(nil, current, nil)
	if len(plan.ToClose) != 2 || len(plan.ToOpen) != 0 || len(plan.ToRefresh) != 0 {
		t.Fatalf("expected empty desired set to close everything, got %+v", plan)
	}
}

// TestDiff_IncompletePDULeavesExistingAlertUntouched guards the
// failure-handling principle that a PDU dropped from this cycle's
// classification (e.g. its rack's effective thresholds failed to
// resolve) must not have its pre-existing alerts silently closed just
// because it produced no desired entries this round.
func TestDiff_IncompletePDULeavesExistingAlertUntouched(t *testing.T) {
	current := []models.ActiveCriticalAlert{
		{PDUID: "pdu-A", MetricType: "amperage", AlertReason: "critical_amperage_high_single_phase"},
		{PDUID: "pdu-B", MetricType: "voltage", AlertReason: "critical_voltage_low"},
	}
	incomplete := map[string]bool{"pdu-A": true}

	plan := Diff(nil, current, incomplete)

	if len(plan.ToOpen) != 0 || len(plan.ToRefresh) != 0 {
		t.Fatalf("expected no opens/refreshes, got %+v", plan)
	}
	if len(plan.ToClose) != 1 || plan.ToClose[0].PDUID != "pdu-B" {
		t.Fatalf("expected only pdu-B to close, got %+v", plan.ToClose)
	}
}
