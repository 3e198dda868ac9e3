// Package maintenance implements the Maintenance Registry (C2): the
// suppression set operators place racks and chains into, consulted by
// the classifier/reconciler every evaluation cycle.
package maintenance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/dcops/pdumonitor/internal/apierr"
	"github.com/dcops/pdumonitor/internal/cache"
	"github.com/dcops/pdumonitor/internal/models"
	"github.com/dcops/pdumonitor/internal/store"
)

type Registry struct {
	db    *store.DB
	cache *cache.Cache
}

func NewRegistry(db *store.DB, c *cache.Cache) *Registry {
	return &Registry{db: db, cache: c}
}

// StartIndividual suppresses a single rack. Fails with
// ErrAlreadyInMaintenance if the rack is already covered by any detail
// row (spec.md §4.2 invariant 1).
func (r *Registry) StartIndividual(ctx context.Context, rack models.RackCatalogEntry, reason, startedBy string) (int64, error) {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apierr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	if inMaintenance, err := rackInMaintenanceTx(ctx, tx, rack.RackID); err != nil {
		return 0, apierr.Storage("check existing maintenance", err)
	} else if inMaintenance {
		return 0, apierr.ErrAlreadyInMaintenance
	}

	entryID, err := insertEntryTx(ctx, tx, models.MaintenanceIndividualRack, &rack.RackID, nil, nil, rack.DC, reason, startedBy)
	if err != nil {
		return 0, apierr.Storage("insert maintenance entry", err)
	}
	if err := insertDetailTx(ctx, tx, entryID, rack); err != nil {
		return 0, apierr.Storage("insert maintenance detail", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apierr.Storage("commit maintenance start", err)
	}
	r.invalidateSuppressedSet(ctx)
	return entryID, nil
}

// StartChain suppresses every rack in catalog matching (chain, site,
// dc), skipping racks already suppressed. Snapshot semantics: matching
// racks are enumerated once at call time and persisted as detail rows
// (spec.md §9); a rack later joining the chain is not retroactively
// suppressed.
func (r *Registry) StartChain(ctx context.Context, chain, site, dc, reason, startedBy string, catalog []models.RackCatalogEntry) (models.ChainStartResult, error) {
	var matches []models.RackCatalogEntry
	for _, rack := range catalog {
		if rack.Chain == chain && rack.Site == site && rack.DC == dc {
			matches = append(matches, rack)
		}
	}
	if len(matches) == 0 {
		return models.ChainStartResult{}, apierr.ErrNoRacksFound
	}

	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChainStartResult{}, apierr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	entryID, err := insertEntryTx(ctx, tx, models.MaintenanceChain, nil, &chain, &site, dc, reason, startedBy)
	if err != nil {
		return models.ChainStartResult{}, apierr.Storage("insert chain entry", err)
	}

	result := models.ChainStartResult{EntryID: entryID, Total: len(matches)}
	for _, rack := range matches {
		inMaintenance, err := rackInMaintenanceTx(ctx, tx, rack.RackID)
		if err != nil {
			return models.ChainStartResult{}, apierr.Storage("check existing maintenance", err)
		}
		if inMaintenance {
			result.Skipped++
			continue
		}
		if err := insertDetailTx(ctx, tx, entryID, rack); err != nil {
			return models.ChainStartResult{}, apierr.Storage("insert chain detail", err)
		}
		result.Added++
	}

	if result.Added == 0 {
		// every match was already suppressed elsewhere; no point keeping
		// an empty chain entry around.
		if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_entries WHERE id = $1`, entryID); err != nil {
			return models.ChainStartResult{}, apierr.Storage("cleanup empty chain entry", err)
		}
		result.EntryID = 0
	}

	if err := tx.Commit(); err != nil {
		return models.ChainStartResult{}, apierr.Storage("commit chain start", err)
	}
	r.invalidateSuppressedSet(ctx)
	return result, nil
}

// EndEntry deletes entryID and, via FK cascade, all of its details.
func (r *Registry) EndEntry(ctx context.Context, entryID int64) error {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM maintenance_entries WHERE id = $1`, entryID)
	if err != nil {
		return apierr.Storage("delete maintenance entry", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apierr.NotFound("maintenance entry not found")
	}
	r.invalidateSuppressedSet(ctx)
	return nil
}

// EndRack removes rackID's detail row; if its parent entry has no
// remaining details, the parent is removed too.
func (r *Registry) EndRack(ctx context.Context, rackID string) error {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apierr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	var entryID int64
	err = tx.GetContext(ctx, &entryID, `DELETE FROM maintenance_rack_details WHERE rack_id = $1 RETURNING entry_id`, rackID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.NotFound("rack is not in maintenance: " + rackID)
		}
		return apierr.Storage("delete maintenance detail", err)
	}

	var remaining int
	if err := tx.GetContext(ctx, &remaining, `SELECT count(*) FROM maintenance_rack_details WHERE entry_id = $1`, entryID); err != nil {
		return apierr.Storage("count remaining details", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_entries WHERE id = $1`, entryID); err != nil {
			return apierr.Storage("delete orphaned maintenance entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Storage("commit end rack", err)
	}
	r.invalidateSuppressedSet(ctx)
	return nil
}

// List returns every maintenance entry with its details.
func (r *Registry) List(ctx context.Context) ([]models.MaintenanceEntry, error) {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	var entries []models.MaintenanceEntry
	if err := r.db.SelectContext(ctx, &entries, `SELECT id, entry_type, rack_id, chain, site, dc, reason, started_at, started_by FROM maintenance_entries ORDER BY started_at DESC`); err != nil {
		return nil, apierr.Storage("list maintenance entries", err)
	}

	for i := range entries {
		var details []models.MaintenanceRackDetail
		if err := r.db.SelectContext(ctx, &details, `SELECT id, entry_id, rack_id, country, site, dc, chain FROM maintenance_rack_details WHERE entry_id = $1 ORDER BY rack_id`, entries[i].ID); err != nil {
			return nil, apierr.Storage("list maintenance details", err)
		}
		entries[i].Details = details
	}
	return entries, nil
}

// SuppressedSet returns every rack_id currently covered by a detail
// row. Backed by the cache; on a cache miss, rebuilds from storage and
// repopulates it.
func (r *Registry) SuppressedSet(ctx context.Context) (map[string]bool, error) {
	if r.cache != nil {
		if cached, ok := r.cache.SuppressedSet(ctx); ok {
			return cached, nil
		}
	}

	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	var rackIDs []string
	if err := r.db.SelectContext(ctx, &rackIDs, `SELECT rack_id FROM maintenance_rack_details`); err != nil {
		return nil, apierr.Storage("load suppressed set", err)
	}

	if r.cache != nil {
		if err := r.cache.PutSuppressedSet(ctx, rackIDs); err != nil {
			log.Warn().Err(err).Msg("failed to populate suppressed-set cache")
		}
	}

	out := make(map[string]bool, len(rackIDs))
	for _, id := range rackIDs {
		out[id] = true
	}
	return out, nil
}

func (r *Registry) invalidateSuppressedSet(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateSuppressedSet(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate suppressed-set cache")
	}
}

func rackInMaintenanceTx(ctx context.Context, tx *sqlx.Tx, rackID string) (bool, error) {
	var count int
	if err := tx.GetContext(ctx, &count, `SELECT count(*) FROM maintenance_rack_details WHERE rack_id = $1`, rackID); err != nil {
		return false, err
	}
	return count > 0, nil
}

func insertEntryTx(ctx context.Context, tx *sqlx.Tx, entryType models.MaintenanceEntryType, rackID, chain, site *string, dc, reason, startedBy string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO maintenance_entries (entry_type, rack_id, chain, site, dc, reason, started_at, started_by)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7)
		RETURNING id
	`, entryType, rackID, chain, site, dc, reason, startedBy)
	return id, err
}

func insertDetailTx(ctx context.Context, tx *sqlx.Tx, entryID int64, rack models.RackCatalogEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO maintenance_rack_details (entry_id, rack_id, country, site, dc, chain)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entryID, rack.RackID, rack.Country, rack.Site, rack.DC, rack.Chain)
	return err
}
