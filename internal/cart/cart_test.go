package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mug(qty int) Item {
	return Item{ProductID: "p1", Name: "Mug", UnitPrice: 19.99, Quantity: qty, Stock: 5}
}

func assertLinesPositive(t *testing.T, c *Cart) {
	t.Helper()
	for _, it := range c.Items {
		assert.GreaterOrEqual(t, it.Quantity, 1, it.ProductID)
	}
}

func TestAddItem_IncrementsAndClampsAtStock(t *testing.T) {
	c := New("c1")
	require.NoError(t, c.AddItem(mug(2)))
	require.NoError(t, c.AddItem(mug(2)))
	require.Len(t, c.Items, 1)
	assert.Equal(t, 4, c.Items[0].Quantity)

	require.NoError(t, c.AddItem(mug(10)))
	assert.Equal(t, 5, c.Items[0].Quantity)
	assertLinesPositive(t, c)
}

func TestAddItem_ZeroQuantityCountsAsOne(t *testing.T) {
	c := New("c1")
	require.NoError(t, c.AddItem(mug(0)))
	assert.Equal(t, 1, c.TotalItems())
}

func TestAddItem_OutOfStock(t *testing.T) {
	c := New("c1")
	item := mug(1)
	item.Stock = 0
	assert.ErrorIs(t, c.AddItem(item), ErrOutOfStock)
	assert.Empty(t, c.Items)
}

func TestUpdateQuantity(t *testing.T) {
	c := New("c1")
	require.NoError(t, c.AddItem(mug(1)))
	require.NoError(t, c.AddItem(Item{ProductID: "p2", Name: "Plate", UnitPrice: 5, Quantity: 1, Stock: 10}))

	require.NoError(t, c.UpdateQuantity("p1", 9))
	assert.Equal(t, 5, c.Items[0].Quantity)

	require.NoError(t, c.UpdateQuantity("p1", 0))
	require.Len(t, c.Items, 1)
	assert.Equal(t, "p2", c.Items[0].ProductID)

	require.NoError(t, c.UpdateQuantity("p2", -3))
	assert.Empty(t, c.Items)

	assert.ErrorIs(t, c.UpdateQuantity("ghost", 2), ErrItemNotFound)
	assertLinesPositive(t, c)
}

func TestTotals(t *testing.T) {
	c := New("c1")
	require.NoError(t, c.AddItem(mug(3)))
	require.NoError(t, c.AddItem(Item{ProductID: "p2", Name: "Spoon", UnitPrice: 0.1, Quantity: 1, Stock: 10}))

	assert.Equal(t, 4, c.TotalItems())
	assert.Equal(t, 60.07, c.TotalPrice())

	c.Clear()
	assert.Equal(t, 0, c.TotalItems())
	assert.Equal(t, 0.0, c.TotalPrice())
}
