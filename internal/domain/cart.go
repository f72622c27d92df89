package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string     `bson:"_id" json:"id"`
	OwnerID   string     `bson:"owner_id" json:"owner_id"`
	Lines     []CartLine `bson:"lines" json:"lines"`
	Version   int64      `bson:"version" json:"version"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// CartLine holds one product in a cart. UnitPriceSnapshot is informational;
// orders re-read the price at checkout.
type CartLine struct {
	ID                string          `bson:"id" json:"id"`
	ProductID         int64           `bson:"product_id" json:"product_id"`
	Quantity          int             `bson:"quantity" json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `bson:"unit_price_snapshot" json:"unit_price_snapshot"`
	AddedAt           time.Time       `bson:"added_at" json:"added_at"`
	UpdatedAt         time.Time       `bson:"updated_at" json:"updated_at"`
}

func NewCart(id, ownerID string, now time.Time) *Cart {
	return &Cart{
		ID:        id,
		OwnerID:   ownerID,
		Lines:     []CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LineForProduct returns the line holding productID, or nil.
func (c *Cart) LineForProduct(productID int64) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

func (c *Cart) Line(lineID string) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return &c.Lines[i]
		}
	}
	return nil
}

func (c *Cart) RemoveLine(lineID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.UnitPriceSnapshot.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// Clone returns a deep copy so callers can mutate lines without sharing.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Lines = make([]CartLine, len(c.Lines))
	copy(cp.Lines, c.Lines)
	return &cp
}
