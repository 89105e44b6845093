package models

// Product represents a catalog entry.
// It maps to the `products` table.
type Product struct {
	SKU    string  `db:"sku" json:"sku"`
	Name   string  `db:"name" json:"name"`
	Price  float64 `db:"price" json:"price"`
	Active bool    `db:"active" json:"active"`
}

// NavigationProduct places a product under a navigation node (category,
// menu entry). The same sku may appear more than once for a node.
type NavigationProduct struct {
	NavigationID int64  `db:"navigation_id" json:"navigation_id"`
	SKU          string `db:"sku" json:"sku"`
	Priority     int64  `db:"priority" json:"priority"`
}
