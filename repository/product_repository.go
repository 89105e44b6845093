package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopData/internal/db"
	"shopData/models"
	"shopData/query"
)

const productsTable = "products"

// ErrDuplicateSKU is returned by Create when the sku is already taken.
var ErrDuplicateSKU = errors.New("duplicate sku")

var productFields = []string{"sku", "name", "price", "active"}

// ProductRepository is the repository for catalog products.
type ProductRepository struct {
	q *query.Wrapper
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(q *query.Wrapper) *ProductRepository {
	return &ProductRepository{q: q}
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *models.Product) (*models.Product, error) {
	if p == nil {
		return nil, errors.New("product is nil")
	}
	if p.SKU == "" {
		return nil, errors.New("product sku is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.q.Insert(ctx, query.Insert{Table: productsTable, Values: map[string]any{
		"sku":    p.SKU,
		"name":   p.Name,
		"price":  p.Price,
		"active": p.Active,
	}})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSKU, p.SKU)
		}
		return nil, err
	}
	return p, nil
}

// GetBySKU fetches a product by its sku.
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.q.Select(ctx, query.Select{
		Table:  productsTable,
		Fields: productFields,
		Where:  query.Eq{"sku": sku},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	p := productFromRow(rows[0])
	return &p, nil
}

// Name returns the product name for sku, or "" with false when there is no such product.
func (r *ProductRepository) Name(ctx context.Context, sku string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	v, found, err := r.q.SelectField(ctx, query.Select{
		Table: productsTable,
		Where: query.Eq{"sku": sku},
	}, "name")
	if err != nil || !found {
		return "", false, err
	}
	return query.AsString(v), true, nil
}

// ListActive returns a page of active products ordered by sku.
func (r *ProductRepository) ListActive(ctx context.Context, limit, offset int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.q.Select(ctx, query.Select{
		Table:   productsTable,
		Fields:  productFields,
		Where:   query.Cmp{Column: "active", Op: "!=", Value: 0},
		OrderBy: []string{"sku"},
		Limit:   uint64(limit),
		Offset:  uint64(offset),
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

// CountActive returns the number of active products.
func (r *ProductRepository) CountActive(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.q.Count(ctx, query.Select{
		Table: productsTable,
		Where: query.Cmp{Column: "active", Op: "!=", Value: 0},
	})
}

// UpdatePrice sets the price of a product. It returns false when no product has that sku.
func (r *ProductRepository) UpdatePrice(ctx context.Context, sku string, price float64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.q.Update(ctx, query.Update{
		Table: productsTable,
		Set:   map[string]any{"price": price},
		Where: query.Eq{"sku": sku},
	})
	if err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

// SetActive enables or disables a product.
func (r *ProductRepository) SetActive(ctx context.Context, sku string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.q.Update(ctx, query.Update{
		Table: productsTable,
		Set:   map[string]any{"active": active},
		Where: query.Eq{"sku": sku},
	})
	return err
}

// Delete removes a product by sku.
func (r *ProductRepository) Delete(ctx context.Context, sku string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.q.Delete(ctx, query.Delete{Table: productsTable, Where: query.Eq{"sku": sku}})
	return err
}

func productFromRow(row query.Row) models.Product {
	price, _ := query.AsFloat64(row["price"])
	return models.Product{
		SKU:    query.AsString(row["sku"]),
		Name:   query.AsString(row["name"]),
		Price:  price,
		Active: query.Truthy(row["active"]),
	}
}
