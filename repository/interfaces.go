package repository

import (
	"context"

	"shopData/models"
)

// AccountProviderI defines authentication and authorization lookups.
type AccountProviderI interface {
	Login(ctx context.Context, username, password string) (*models.Account, error)
	RoleMap(ctx context.Context, uid int64) (map[string]int64, error)
	RoleIDs(ctx context.Context, uid int64) ([]int64, error)
	RoleNames(ctx context.Context, uid int64) ([]string, error)
	Permissions(ctx context.Context, uid int64, roleIDs []int64) ([]string, error)
	Exists(ctx context.Context, username string) (int64, bool, error)
	Value(ctx context.Context, username, field string) (any, bool, error)
	SetValue(ctx context.Context, username, field string, value any) error
	Password(ctx context.Context, username, newPassword string) error
}

// ProductRepositoryI defines operations on Product entities.
type ProductRepositoryI interface {
	Create(ctx context.Context, p *models.Product) (*models.Product, error)
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	Name(ctx context.Context, sku string) (string, bool, error)
	ListActive(ctx context.Context, limit, offset int) ([]models.Product, error)
	UpdatePrice(ctx context.Context, sku string, price float64) (bool, error)
	Delete(ctx context.Context, sku string) error
}

// NavigationRepositoryI defines operations on navigation membership.
type NavigationRepositoryI interface {
	AddProduct(ctx context.Context, np *models.NavigationProduct) error
	DistinctSKUs(ctx context.Context, navigationID int64) ([]string, error)
	Products(ctx context.Context, navigationID int64, limit int) ([]models.Product, error)
	Remove(ctx context.Context, navigationID int64, sku string) (int64, error)
}

var (
	_ AccountProviderI      = (*AccountProvider)(nil)
	_ ProductRepositoryI    = (*ProductRepository)(nil)
	_ NavigationRepositoryI = (*NavigationRepository)(nil)
)
