package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction

	"github.com/iliyamo/checkout-credits/internal/model"
)

// FloorRepo reads the price floor table:
//
//	CREATE TABLE price_floors (
//	    modality        VARCHAR(32) NOT NULL PRIMARY KEY, -- '' is the default rule
//	    min_price_minor BIGINT      NOT NULL
//	);
type FloorRepo struct {
	db *sql.DB
}

// NewFloorRepo constructs a FloorRepo with the provided DB handle.
func NewFloorRepo(db *sql.DB) *FloorRepo { return &FloorRepo{db: db} }

// List returns every floor rule ordered by modality.  ErrNoFloorRules is
// returned when the table is empty.
func (r *FloorRepo) List(ctx context.Context) ([]model.FloorRule, error) {
	const q = `SELECT modality, min_price_minor FROM price_floors ORDER BY modality`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FloorRule
	for rows.Next() {
		var f model.FloorRule
		if err := rows.Scan(&f.Modality, &f.MinPriceMinor); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoFloorRules
	}
	return out, nil
}
