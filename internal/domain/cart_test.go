package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalAndItemCount(t *testing.T) {
	lines := []CartLine{
		{ProductID: "p1", UnitPrice: 10, Quantity: 2},
		{ProductID: "p2", UnitPrice: 5, Quantity: 3},
	}

	assert.Equal(t, 35.0, Total(lines))
	assert.Equal(t, 5, ItemCount(lines))
}

func TestTotalEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Total(nil))
	assert.Equal(t, 0, ItemCount(nil))
}

func TestClampQuantity(t *testing.T) {
	assert.Equal(t, 1, ClampQuantity(0))
	assert.Equal(t, 1, ClampQuantity(-5))
	assert.Equal(t, 1, ClampQuantity(1))
	assert.Equal(t, 7, ClampQuantity(7))
}

func TestNewLineSnapshotsProduct(t *testing.T) {
	p := Product{
		ID:    "p1",
		Title: "vintage lamp",
		Price: 24.5,
		Seller: Seller{
			ID:         "s1",
			Name:       "Ann's Attic",
			IsBusiness: true,
		},
	}

	line := NewLine(p, 0)

	assert.Equal(t, "p1", line.ProductID)
	assert.Equal(t, 1, line.Quantity) // clamped
	assert.Equal(t, 24.5, line.UnitPrice)
	assert.Equal(t, "vintage lamp", line.Title)
	assert.Equal(t, "s1", line.Seller.ID)
	assert.Empty(t, line.RemoteLineID)
	assert.False(t, line.AddedAt.IsZero())
}
