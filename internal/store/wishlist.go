package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/models"
)

type WishlistSnapshot struct {
	Items []models.Product `json:"items"`
}

// Wishlist is a persisted set of products keyed by product id.
type Wishlist struct {
	mu    sync.Mutex
	key   string
	p     Persister
	items []models.Product
}

func OpenWishlist(ctx context.Context, p Persister, session string) (*Wishlist, error) {
	w := &Wishlist{key: WishlistKey(session), p: p, items: []models.Product{}}

	data, err := p.Load(ctx, w.key)
	if errors.Is(err, ErrSnapshotNotFound) {
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load wishlist: %w", err)
	}

	var saved WishlistSnapshot
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("decode wishlist: %w", err)
	}
	if saved.Items != nil {
		w.items = saved.Items
	}
	return w, nil
}

func (w *Wishlist) Snapshot() WishlistSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	items := make([]models.Product, len(w.items))
	copy(items, w.items)
	return WishlistSnapshot{Items: items}
}

func (w *Wishlist) Contains(productID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.indexOf(productID) >= 0
}

func (w *Wishlist) indexOf(productID uuid.UUID) int {
	for i, p := range w.items {
		if p.ID == productID {
			return i
		}
	}
	return -1
}

// Add is a no-op for a product that is already saved.
func (w *Wishlist) Add(ctx context.Context, product models.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.indexOf(product.ID) >= 0 {
		return nil
	}
	items := make([]models.Product, 0, len(w.items)+1)
	items = append(items, w.items...)
	items = append(items, product)
	return w.commit(ctx, items)
}

// Merge adds the products not yet saved, keeping the existing order.
func (w *Wishlist) Merge(ctx context.Context, products []models.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	items := make([]models.Product, 0, len(w.items)+len(products))
	items = append(items, w.items...)
	for _, p := range products {
		if !containsProduct(items, p.ID) {
			items = append(items, p)
		}
	}
	if len(items) == len(w.items) {
		return nil
	}
	return w.commit(ctx, items)
}

func containsProduct(items []models.Product, id uuid.UUID) bool {
	for _, p := range items {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (w *Wishlist) Remove(ctx context.Context, productID uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexOf(productID)
	if i < 0 {
		return nil
	}
	items := make([]models.Product, 0, len(w.items)-1)
	items = append(items, w.items[:i]...)
	items = append(items, w.items[i+1:]...)
	return w.commit(ctx, items)
}

func (w *Wishlist) commit(ctx context.Context, items []models.Product) error {
	data, err := json.Marshal(WishlistSnapshot{Items: items})
	if err != nil {
		return fmt.Errorf("encode wishlist: %w", err)
	}
	if err := w.p.Save(ctx, w.key, data); err != nil {
		return fmt.Errorf("persist wishlist: %w", err)
	}
	w.items = items
	return nil
}
