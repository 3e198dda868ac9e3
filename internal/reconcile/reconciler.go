// Package reconcile implements the Alert Reconciler (C5): diffs the
// classifier's critical reasons for a cycle against the persisted
// active-alert set and applies open/refresh/close writes in a single
// transaction (spec.md §4.5).
package reconcile

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dcops/pdumonitor/internal/apierr"
	"github.com/dcops/pdumonitor/internal/classify"
	"github.com/dcops/pdumonitor/internal/models"
	"github.com/dcops/pdumonitor/internal/store"
)

// DesiredAlert is one triple the current cycle says should be active.
type DesiredAlert struct {
	Key    models.AlertKey
	Detail classify.ReasonDetail
	PDU    models.PDUReading
}

// Plan is the three-way diff between desired and currently-persisted
// alerts, computed in memory before any write happens.
type Plan struct {
	ToOpen    []DesiredAlert
	ToRefresh []DesiredAlert
	ToClose   []models.AlertKey
}

// BuildDesired derives the desired alert set for a cycle: every
// critical reason from a PDU whose rack is not suppressed (spec.md
// §4.5 step 1).
func BuildDesired(classified map[string]classify.Result, readings map[string]models.PDUReading, suppressed map[string]bool) []DesiredAlert {
	var desired []DesiredAlert
	for pduID, result := range classified {
		reading, ok := readings[pduID]
		if !ok || suppressed[reading.RackID] {
			continue
		}
		for _, reason := range result.Reasons {
			if !hasCriticalPrefix(reason) {
				continue
			}
			detail := result.ReasonDetail[reason]
			desired = append(desired, DesiredAlert{
				Key:    models.AlertKey{PDUID: pduID, MetricType: detail.MetricType, AlertReason: reason},
				Detail: detail,
				PDU:    reading,
			})
		}
	}
	return desired
}

func hasCriticalPrefix(reason string) bool {
	return len(reason) >= 9 && reason[:9] == "critical_"
}

// Diff computes Plan.ToOpen / ToRefresh / ToClose from desired vs. the
// currently persisted rows. incompletePDUIDs names PDUs this cycle
// could not fully classify (e.g. their rack's effective thresholds
// failed to resolve) — their existing alerts are left untouched rather
// than closed, since an incomplete cycle must never be read as "no
// longer critical" (spec.md §4.5's failure-handling principle).
func Diff(desired []DesiredAlert, current []models.ActiveCriticalAlert, incompletePDUIDs map[string]bool) Plan {
	currentByKey := make(map[models.AlertKey]models.ActiveCriticalAlert, len(current))
	for _, row := range current {
		currentByKey[models.AlertKey{PDUID: row.PDUID, MetricType: row.MetricType, AlertReason: row.AlertReason}] = row
	}

	desiredKeys := make(map[models.AlertKey]bool, len(desired))
	var plan Plan
	for _, d := range desired {
		desiredKeys[d.Key] = true
		if _, exists := currentByKey[d.Key]; exists {
			plan.ToRefresh = append(plan.ToRefresh, d)
		} else {
			plan.ToOpen = append(plan.ToOpen, d)
		}
	}
	for key := range currentByKey {
		if desiredKeys[key] || incompletePDUIDs[key.PDUID] {
			continue
		}
		plan.ToClose = append(plan.ToClose, key)
	}
	return plan
}

// Reconciler applies a Plan to Postgres inside a single transaction,
// per spec.md §4.5 step 4 and §9's unique-key-driven upsert guidance.
type Reconciler struct {
	db *store.DB
}

func New(db *store.DB) *Reconciler {
	return &Reconciler{db: db}
}

// Current loads every row currently in the active-alert table.
func (r *Reconciler) Current(ctx context.Context) ([]models.ActiveCriticalAlert, error) {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	var rows []models.ActiveCriticalAlert
	err := r.db.SelectContext(ctx, &rows, `SELECT id, pdu_id, rack_id, name, country, site, dc, phase, chain, node, serial, alert_type, metric_type, alert_reason, alert_value, alert_field, threshold_exceeded, alert_started_at, last_updated_at FROM active_critical_alerts`)
	if err != nil {
		return nil, apierr.Storage("load active alerts", err)
	}
	return rows, nil
}

// Apply writes the plan's three sub-sets inside one transaction: open,
// then refresh, then close, so a continuously-critical alert is never
// momentarily absent (spec.md §4.5/§5 ordering guarantee). On a
// mid-plan write failure it logs and aborts, leaving convergence to the
// next cycle (spec.md §4.5's failure handling).
func (r *Reconciler) Apply(ctx context.Context, plan Plan) error {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apierr.Storage("begin reconcile transaction", err)
	}
	defer tx.Rollback()

	for _, open := range plan.ToOpen {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO active_critical_alerts
				(pdu_id, rack_id, name, country, site, dc, phase, chain, node, serial, alert_type, metric_type, alert_reason, alert_value, alert_field, threshold_exceeded, alert_started_at, last_updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'critical', $11, $12, $13, $14, $15, now(), now())
		`, open.Key.PDUID, open.PDU.RackID, open.PDU.Name, open.PDU.Country, open.PDU.Site, open.PDU.DC,
			string(open.PDU.Phase), open.PDU.Chain, open.PDU.Node, open.PDU.Serial,
			open.Key.MetricType, open.Key.AlertReason, open.Detail.Value, open.Detail.Field, open.Detail.ThresholdExceeded); err != nil {
			log.Error().Err(err).Str("pduId", open.Key.PDUID).Str("reason", open.Key.AlertReason).Msg("failed to open alert, aborting reconcile plan")
			return apierr.Storage("open alert", err)
		}
	}

	for _, refresh := range plan.ToRefresh {
		if _, err := tx.ExecContext(ctx, `
			UPDATE active_critical_alerts
			SET alert_value = $1, threshold_exceeded = $2, name = $3, country = $4, site = $5, dc = $6, phase = $7, chain = $8, node = $9, serial = $10, last_updated_at = now()
			WHERE pdu_id = $11 AND metric_type = $12 AND alert_reason = $13
		`, refresh.Detail.Value, refresh.Detail.ThresholdExceeded, refresh.PDU.Name, refresh.PDU.Country, refresh.PDU.Site, refresh.PDU.DC,
			string(refresh.PDU.Phase), refresh.PDU.Chain, refresh.PDU.Node, refresh.PDU.Serial,
			refresh.Key.PDUID, refresh.Key.MetricType, refresh.Key.AlertReason); err != nil {
			log.Error().Err(err).Str("pduId", refresh.Key.PDUID).Str("reason", refresh.Key.AlertReason).Msg("failed to refresh alert, aborting reconcile plan")
			return apierr.Storage("refresh alert", err)
		}
	}

	for _, key := range plan.ToClose {
		if _, err := tx.ExecContext(ctx, `DELETE FROM active_critical_alerts WHERE pdu_id = $1 AND metric_type = $2 AND alert_reason = $3`,
			key.PDUID, key.MetricType, key.AlertReason); err != nil {
			log.Error().Err(err).Str("pduId", key.PDUID).Str("reason", key.AlertReason).Msg("failed to close alert, aborting reconcile plan")
			return apierr.Storage("close alert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Storage("commit reconcile plan", err)
	}
	return nil
}
