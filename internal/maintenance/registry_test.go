package maintenance

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/dcops/pdumonitor/internal/apierr"
	"github.com/dcops/pdumonitor/internal/models"
	"github.com/dcops/pdumonitor/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	sqlxDB := sqlx.NewDb(mockDB, "pgx")
	reg := NewRegistry(&store.DB{DB: sqlxDB}, nil)
	return reg, mock, func() { mockDB.Close() }
}

func TestStartIndividual_FailsWhenAlreadyInMaintenance(t *testing.T) {
	reg, mock, done := newTestRegistry(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM maintenance_rack_details WHERE rack_id = \$1`).
		WithArgs("rack-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := reg.StartIndividual(context.Background(), models.RackCatalogEntry{RackID: "rack-1"}, "inspection", "operator-a")
	if err != apierr.ErrAlreadyInMaintenance {
		t.Fatalf("expected ErrAlreadyInMaintenance, got %v", err)
	}
}

func TestStartIndividual_CreatesEntryAndDetail(t *testing.T) {
	reg, mock, done := newTestRegistry(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM maintenance_rack_details WHERE rack_id = \$1`).
		WithArgs("rack-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO maintenance_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec(`INSERT INTO maintenance_rack_details`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entryID, err := reg.StartIndividual(context.Background(), models.RackCatalogEntry{RackID: "rack-1", DC: "D1"}, "inspection", "operator-a")
	if err != nil {
		t.Fatalf("StartIndividual: %v", err)
	}
	if entryID != 42 {
		t.Fatalf("expected entry id 42, got %d", entryID)
	}
}

func TestStartChain_NoMatchesFails(t *testing.T) {
	reg, _, done := newTestRegistry(t)
	defer done()

	catalog := []models.RackCatalogEntry{{RackID: "rack-9", Chain: "other", Site: "S1", DC: "D1"}}
	_, err := reg.StartChain(context.Background(), "C1", "S1", "D1", "maintenance window", "operator-a", catalog)
	if err != apierr.ErrNoRacksFound {
		t.Fatalf("expected ErrNoRacksFound, got %v", err)
	}
}
