package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/models"
)

var ErrOutOfStock = errors.New("product is out of stock")

func CartKey(session string) string     { return "cart-storage:" + session }
func WishlistKey(session string) string { return "wishlist-storage:" + session }

type CartItem struct {
	models.Product
	Quantity int `json:"quantity"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type CartSnapshot struct {
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

func (s CartSnapshot) Empty() bool { return len(s.Items) == 0 }

// newCartSnapshot derives the aggregates from items; the aggregates are
// never updated any other way.
func newCartSnapshot(items []CartItem) CartSnapshot {
	s := CartSnapshot{Items: items, Total: decimal.Zero}
	if s.Items == nil {
		s.Items = []CartItem{}
	}
	for _, it := range items {
		s.Total = s.Total.Add(it.LineTotal())
		s.ItemCount += it.Quantity
	}
	return s
}

// Cart is the persisted cart of one session. Each mutation writes the full
// snapshot through the persister before it becomes visible; a failed write
// leaves the previous state in place.
type Cart struct {
	mu    sync.Mutex
	key   string
	p     Persister
	state CartSnapshot
}

func OpenCart(ctx context.Context, p Persister, session string) (*Cart, error) {
	c := &Cart{key: CartKey(session), p: p, state: newCartSnapshot(nil)}

	data, err := p.Load(ctx, c.key)
	if errors.Is(err, ErrSnapshotNotFound) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var saved CartSnapshot
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	c.state = newCartSnapshot(saved.Items)
	return c, nil
}

func (c *Cart) Snapshot() CartSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]CartItem, len(c.state.Items))
	copy(items, c.state.Items)
	return CartSnapshot{Items: items, Total: c.state.Total, ItemCount: c.state.ItemCount}
}

func (c *Cart) Add(ctx context.Context, product models.Product) error {
	if !product.InStock {
		return fmt.Errorf("%s: %w", product.Name, ErrOutOfStock)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]CartItem, 0, len(c.state.Items)+1)
	found := false
	for _, it := range c.state.Items {
		if it.ID == product.ID {
			it.Quantity++
			found = true
		}
		items = append(items, it)
	}
	if !found {
		items = append(items, CartItem{Product: product, Quantity: 1})
	}
	return c.commit(ctx, items)
}

func (c *Cart) Remove(ctx context.Context, productID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(ctx, productID)
}

func (c *Cart) remove(ctx context.Context, productID uuid.UUID) error {
	items := make([]CartItem, 0, len(c.state.Items))
	for _, it := range c.state.Items {
		if it.ID != productID {
			items = append(items, it)
		}
	}
	return c.commit(ctx, items)
}

// UpdateQuantity overwrites the quantity of an entry. A quantity of zero or
// less removes the entry; unknown products are ignored.
func (c *Cart) UpdateQuantity(ctx context.Context, productID uuid.UUID, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if quantity <= 0 {
		return c.remove(ctx, productID)
	}

	items := make([]CartItem, len(c.state.Items))
	copy(items, c.state.Items)
	for i := range items {
		if items[i].ID == productID {
			items[i].Quantity = quantity
		}
	}
	return c.commit(ctx, items)
}

// Merge adds lines from another cart. Quantities of products already present
// are summed.
func (c *Cart) Merge(ctx context.Context, lines []CartItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]CartItem, len(c.state.Items), len(c.state.Items)+len(lines))
	copy(items, c.state.Items)
	at := make(map[uuid.UUID]int, len(items))
	for i, it := range items {
		at[it.ID] = i
	}
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			continue
		}
		if i, ok := at[ln.ID]; ok {
			items[i].Quantity += ln.Quantity
			continue
		}
		at[ln.ID] = len(items)
		items = append(items, ln)
	}
	return c.commit(ctx, items)
}

func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit(ctx, nil)
}

func (c *Cart) commit(ctx context.Context, items []CartItem) error {
	next := newCartSnapshot(items)
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := c.p.Save(ctx, c.key, data); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	c.state = next
	return nil
}
