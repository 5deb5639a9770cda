package domain

import "time"

// Seller is the denormalized seller summary carried on a cart line. It is
// used for display grouping only and is never treated as authoritative.
type Seller struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsBusiness bool   `json:"is_business"`
	IsVerified bool   `json:"is_verified"`
}

// Product is the catalog snapshot taken at add-time. Price is not
// re-validated against live catalog data after the line is created.
type Product struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Seller Seller  `json:"seller"`
}

// CartLine is one product entry in a user's cart. RemoteLineID is the
// identifier the remote store assigned to this (user, product) row; it is
// empty until the first successful sync.
type CartLine struct {
	ProductID    string    `json:"product_id"`
	RemoteLineID string    `json:"remote_line_id,omitempty"`
	Quantity     int       `json:"quantity"`
	UnitPrice    float64   `json:"unit_price"`
	Title        string    `json:"title"`
	Seller       Seller    `json:"seller"`
	AddedAt      time.Time `json:"added_at"`
}

// NewLine builds a cart line from a product snapshot.
func NewLine(p Product, quantity int) CartLine {
	return CartLine{
		ProductID: p.ID,
		Quantity:  ClampQuantity(quantity),
		UnitPrice: p.Price,
		Title:     p.Title,
		Seller:    p.Seller,
		AddedAt:   time.Now(),
	}
}

// ClampQuantity enforces the quantity floor. Zero or negative quantities are
// invalid; removal goes through RemoveItem, never through a zero quantity.
func ClampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

// Total returns the sum of unit price times quantity over all lines.
func Total(lines []CartLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.UnitPrice * float64(l.Quantity)
	}
	return total
}

// ItemCount returns the sum of quantities over all lines.
func ItemCount(lines []CartLine) int {
	var count int
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}
