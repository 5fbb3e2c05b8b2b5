package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"go.uber.org/zap"
)

type materialRepository struct {
	db      *pgxpool.Pool
	builder sq.StatementBuilderType
	log     *zap.Logger
}

// NewMaterialRepository creates the postgres-backed material store
func NewMaterialRepository(db *pgxpool.Pool, log *zap.Logger) port.MaterialStore {
	return &materialRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		log:     log,
	}
}

const materialColumns = "scan_key, code, name, family, stock, unit, supplier, notes"

func (r *materialRepository) LoadAll(ctx context.Context) ([]*domain.MaterialRecord, error) {
	query, args, err := r.builder.
		Select(materialColumns).
		From("materials").
		OrderBy("code").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to load materials", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var records []*domain.MaterialRecord
	for rows.Next() {
		var m domain.MaterialRecord
		if err := rows.Scan(&m.ScanKey, &m.Code, &m.Name, &m.Family, &m.Stock, &m.Unit, &m.Supplier, &m.Notes); err != nil {
			return nil, err
		}
		records = append(records, &m)
	}
	return records, rows.Err()
}

func (r *materialRepository) LookupByCode(ctx context.Context, code string) (*domain.MaterialRecord, error) {
	return r.lookup(ctx, sq.Eq{"code": code})
}

func (r *materialRepository) LookupByName(ctx context.Context, name string) (*domain.MaterialRecord, error) {
	return r.lookup(ctx, sq.Eq{"name": name})
}

func (r *materialRepository) lookup(ctx context.Context, where sq.Eq) (*domain.MaterialRecord, error) {
	query, args, err := r.builder.
		Select(materialColumns).
		From("materials").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var m domain.MaterialRecord
	row := r.db.QueryRow(ctx, query, args...)
	if err := row.Scan(&m.ScanKey, &m.Code, &m.Name, &m.Family, &m.Stock, &m.Unit, &m.Supplier, &m.Notes); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *materialRepository) MutateStock(ctx context.Context, code string, newStock int) error {
	if newStock < 0 {
		newStock = 0
	}
	query, args, err := r.builder.
		Update("materials").
		Set("stock", newStock).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"code": code}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to mutate stock", zap.String("code", code), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.MaterialNotFoundError{Code: code}
	}
	return nil
}
