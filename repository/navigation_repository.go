package repository

import (
	"context"
	"errors"
	"time"

	"shopData/models"
	"shopData/query"
)

const navigationProductsTable = "navigation_products"

// NavigationRepository manages which products appear under a navigation node.
type NavigationRepository struct {
	q *query.Wrapper
}

// NewNavigationRepository creates a new NavigationRepository.
func NewNavigationRepository(q *query.Wrapper) *NavigationRepository {
	return &NavigationRepository{q: q}
}

// AddProduct places sku under a navigation node. Adding the same sku twice
// creates two rows.
func (r *NavigationRepository) AddProduct(ctx context.Context, np *models.NavigationProduct) error {
	if np == nil {
		return errors.New("navigation product is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.q.Insert(ctx, query.Insert{Table: navigationProductsTable, Values: map[string]any{
		"navigation_id": np.NavigationID,
		"sku":           np.SKU,
		"priority":      np.Priority,
	}})
	return err
}

// DistinctSKUs returns each sku under the navigation node once, ordered by sku.
func (r *NavigationRepository) DistinctSKUs(ctx context.Context, navigationID int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	vals, err := r.q.SelectListField(ctx, query.Select{
		Table:    navigationProductsTable,
		Where:    query.Eq{"navigation_id": navigationID},
		OrderBy:  []string{"sku"},
		Distinct: true,
	}, "sku")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, query.AsString(v))
	}
	return out, nil
}

// Products returns the active products under a navigation node, highest
// priority first. A product listed twice is returned twice.
func (r *NavigationRepository) Products(ctx context.Context, navigationID int64, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.q.Select(ctx, query.Select{
		Table:  navigationProductsTable + " np",
		Fields: []string{"p.sku AS sku", "p.name AS name", "p.price AS price", "p.active AS active"},
		Joins:  []query.Join{{Table: productsTable + " p", On: "p.sku = np.sku"}},
		Where: query.And{
			query.Eq{"np.navigation_id": navigationID},
			query.Cmp{Column: "p.active", Op: "!=", Value: 0},
		},
		OrderBy: []string{"np.priority DESC", "p.sku"},
		Limit:   uint64(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, productFromRow(row))
	}
	return out, nil
}

// Remove takes sku out of a navigation node and reports how many rows went.
func (r *NavigationRepository) Remove(ctx context.Context, navigationID int64, sku string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.q.Delete(ctx, query.Delete{
		Table: navigationProductsTable,
		Where: query.Eq{"navigation_id": navigationID, "sku": sku},
	})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}
