// Package threshold implements the Threshold Store (C1): the
// authoritative source of global and per-rack threshold values, and
// the override-over-global resolution the classifier relies on.
package threshold

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/dcops/pdumonitor/internal/apierr"
	"github.com/dcops/pdumonitor/internal/cache"
	"github.com/dcops/pdumonitor/internal/models"
	"github.com/dcops/pdumonitor/internal/store"
)

// Store is the Postgres-backed Threshold Store, fronted by a Redis
// cache for effective_for lookups (spec.md §4.1's <=60s TTL).
type Store struct {
	db    *store.DB
	cache *cache.Cache
}

func NewStore(db *store.DB, c *cache.Cache) *Store {
	return &Store{db: db, cache: c}
}

func validateValue(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return apierr.InvalidInput("threshold value must be a finite number >= 0")
	}
	return nil
}

// ListGlobal returns every global threshold entry.
func (s *Store) ListGlobal(ctx context.Context) ([]models.ThresholdEntry, error) {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	var rows []models.ThresholdEntry
	err := s.db.SelectContext(ctx, &rows, `SELECT key, value, unit, description, created_at, updated_at FROM threshold_configs ORDER BY key`)
	if err != nil {
		return nil, apierr.Storage("list global thresholds", err)
	}
	return rows, nil
}

// ListRack returns every override for rackID.
func (s *Store) ListRack(ctx context.Context, rackID string) ([]models.RackThresholdEntry, error) {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	var rows []models.RackThresholdEntry
	err := s.db.SelectContext(ctx, &rows, `SELECT rack_id, key, value, unit, description, created_at, updated_at FROM rack_threshold_overrides WHERE rack_id = $1 ORDER BY key`, rackID)
	if err != nil {
		return nil, apierr.Storage("list rack thresholds", err)
	}
	return rows, nil
}

// PutGlobal upserts a global threshold entry.
func (s *Store) PutGlobal(ctx context.Context, key string, value float64, unit, description string) error {
	if !IsValidKey(key) {
		return apierr.InvalidInput("unknown threshold key: " + key)
	}
	if err := validateValue(value); err != nil {
		return err
	}

	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threshold_configs (key, value, unit, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, unit = EXCLUDED.unit, description = EXCLUDED.description, updated_at = now()
	`, key, value, unit, description)
	if err != nil {
		return apierr.Storage("put global threshold", err)
	}

	if s.cache != nil {
		if invErr := s.cache.InvalidateEffective(ctx, ""); invErr != nil {
			log.Warn().Err(invErr).Msg("failed to invalidate effective-threshold cache after global put")
		}
	}
	return nil
}

// PutRack upserts a per-rack override entry.
func (s *Store) PutRack(ctx context.Context, rackID, key string, value float64, unit, description string) error {
	if !IsValidKey(key) {
		return apierr.InvalidInput("unknown threshold key: " + key)
	}
	if err := validateValue(value); err != nil {
		return err
	}

	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rack_threshold_overrides (rack_id, key, value, unit, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (rack_id, key) DO UPDATE SET value = EXCLUDED.value, unit = EXCLUDED.unit, description = EXCLUDED.description, updated_at = now()
	`, rackID, key, value, unit, description)
	if err != nil {
		return apierr.Storage("put rack threshold", err)
	}

	if s.cache != nil {
		if invErr := s.cache.InvalidateEffective(ctx, rackID); invErr != nil {
			log.Warn().Err(invErr).Msg("failed to invalidate effective-threshold cache after rack put")
		}
	}
	return nil
}

// DeleteRack removes all overrides for rackID, resetting it to global.
func (s *Store) DeleteRack(ctx context.Context, rackID string) error {
	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM rack_threshold_overrides WHERE rack_id = $1`, rackID)
	if err != nil {
		return apierr.Storage("delete rack thresholds", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apierr.NotFound("rack has no threshold overrides: " + rackID)
	}

	if s.cache != nil {
		if invErr := s.cache.InvalidateEffective(ctx, rackID); invErr != nil {
			log.Warn().Err(invErr).Msg("failed to invalidate effective-threshold cache after rack delete")
		}
	}
	return nil
}

// EffectiveFor returns the override-over-global merge for rackID. A
// cache hit skips the two-table read entirely; a cache read failure is
// treated as a miss and a cache write failure is logged, neither
// becoming an error, since staleness
// here is bounded and correctness never depends on the cache.
func (s *Store) EffectiveFor(ctx context.Context, rackID string) (map[string]float64, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetEffective(ctx, rackID); ok {
			return cached, nil
		}
	}

	ctx, cancel := store.StatementContext(ctx)
	defer cancel()

	effective := make(map[string]float64)

	var globals []models.ThresholdEntry
	if err := s.db.SelectContext(ctx, &globals, `SELECT key, value FROM threshold_configs`); err != nil {
		return nil, apierr.Storage("load global thresholds", err)
	}
	for _, g := range globals {
		effective[g.Key] = g.Value
	}

	var overrides []models.RackThresholdEntry
	if err := s.db.SelectContext(ctx, &overrides, `SELECT key, value FROM rack_threshold_overrides WHERE rack_id = $1`, rackID); err != nil {
		return nil, apierr.Storage("load rack overrides", err)
	}
	for _, o := range overrides {
		effective[o.Key] = o.Value
	}

	if s.cache != nil {
		if err := s.cache.PutEffective(ctx, rackID, effective); err != nil {
			log.Warn().Err(err).Str("rackId", rackID).Msg("failed to populate effective-threshold cache")
		}
	}

	return effective, nil
}
