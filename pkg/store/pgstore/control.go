// pkg/store/pgstore/control.go
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

var controlColumns = []string{"id", "status", "run_id", "updated_at", "error_detail", "version"}

// ControlStore keeps the singleton control record in a table
type ControlStore struct {
	db    *sqlx.DB
	table string
}

var _ store.ControlStore = (*ControlStore)(nil)

// NewControlStore creates a control store over table
func NewControlStore(db *sqlx.DB, table string) *ControlStore {
	return &ControlStore{db: db, table: table}
}

// Get returns the control record
func (s *ControlStore) Get(ctx context.Context) (*model.ControlRecord, error) {
	query, args, err := psql.Select(controlColumns...).
		From(s.table).
		Where(sq.Eq{"id": model.ControlRecordID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build control query: %w", err)
	}

	var rec model.ControlRecord
	if err := s.db.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read control record: %w", err)
	}
	return &rec, nil
}

// Create inserts the control record. A row with the same id makes it a conflict.
func (s *ControlStore) Create(ctx context.Context, rec *model.ControlRecord) error {
	query, args, err := psql.Insert(s.table).
		Columns(controlColumns...).
		Values(rec.ID, rec.Status, rec.RunID, rec.UpdatedAt, rec.ErrorDetail, rec.Version).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build control insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create control record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

// CompareAndSwap updates the row only while its version is still rec.Version
func (s *ControlStore) CompareAndSwap(ctx context.Context, rec *model.ControlRecord) error {
	expected := rec.Version
	query, args, err := psql.Update(s.table).
		Set("status", rec.Status).
		Set("run_id", rec.RunID).
		Set("updated_at", rec.UpdatedAt).
		Set("error_detail", rec.ErrorDetail).
		Set("version", expected+1).
		Where(sq.Eq{"id": rec.ID, "version": expected}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build control update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update control record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return store.ErrConflict
	}

	rec.Version = expected + 1
	return nil
}
