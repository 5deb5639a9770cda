package repository

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by cart repositories
var (
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotFound    = errors.New("cart item not found")
)

// Product is a catalog entry with its denormalized seller summary.
type Product struct {
	ID             string
	Title          string
	Price          float64
	SellerID       string
	SellerName     string
	SellerBusiness bool
	SellerVerified bool
}

// Item is one cart row: a (user, product) pairing with its quantity and the
// product snapshot embedded for reads.
type Item struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	Product   Product
	AddedAt   time.Time
}

// CartRepository defines the interface for cart row storage.
// Consumers define this interface, not the storage implementations.
type CartRepository interface {
	// GetCart returns all cart rows for userID.
	GetCart(ctx context.Context, userID string) ([]Item, error)

	// AddItem upserts on (user, product): an existing row gets the quantity
	// added to it, otherwise a new row with a fresh id is created. Returns
	// ErrProductNotFound for an unknown product.
	AddItem(ctx context.Context, userID, productID string, quantity int) (Item, error)

	// UpdateQuantity sets the quantity of the row with itemID.
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error

	// RemoveItem deletes the row with itemID.
	RemoveItem(ctx context.Context, userID, itemID string) error

	// ClearCart deletes every row for userID.
	ClearCart(ctx context.Context, userID string) error

	// UpsertProduct creates or replaces a catalog entry.
	UpsertProduct(ctx context.Context, p Product) error

	Close(ctx context.Context) error
}
