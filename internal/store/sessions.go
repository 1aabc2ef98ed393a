package store

import (
	"context"
	"fmt"
	"sync"
)

// Sessions serialises access to the cart and wishlist of each session. Two
// requests for the same session never interleave their mutations; different
// sessions proceed in parallel.
type Sessions struct {
	p Persister

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessions(p Persister) *Sessions {
	return &Sessions{p: p, locks: make(map[string]*sessionLock)}
}

func (s *Sessions) Persister() Persister { return s.p }

func (s *Sessions) acquire(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sessionLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *Sessions) WithCart(ctx context.Context, session string, fn func(*Cart) error) error {
	release := s.acquire(CartKey(session))
	defer release()

	cart, err := OpenCart(ctx, s.p, session)
	if err != nil {
		return err
	}
	return fn(cart)
}

func (s *Sessions) WithWishlist(ctx context.Context, session string, fn func(*Wishlist) error) error {
	release := s.acquire(WishlistKey(session))
	defer release()

	wl, err := OpenWishlist(ctx, s.p, session)
	if err != nil {
		return err
	}
	return fn(wl)
}

// acquirePair locks two keys in a fixed order so concurrent adoptions of the
// same pair cannot deadlock.
func (s *Sessions) acquirePair(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	first := s.acquire(a)
	second := s.acquire(b)
	return func() {
		second()
		first()
	}
}

// Adopt moves the cart and wishlist of session from into session into, as
// happens when an anonymous visitor signs in. Cart quantities are summed per
// product. The source is deleted only after the target is saved, so a failed
// save leaves both sessions as they were.
func (s *Sessions) Adopt(ctx context.Context, from, into string) error {
	if from == into {
		return nil
	}
	if err := s.adoptCart(ctx, from, into); err != nil {
		return err
	}
	return s.adoptWishlist(ctx, from, into)
}

func (s *Sessions) adoptCart(ctx context.Context, from, into string) error {
	release := s.acquirePair(CartKey(from), CartKey(into))
	defer release()

	src, err := OpenCart(ctx, s.p, from)
	if err != nil {
		return err
	}
	lines := src.Snapshot().Items
	if len(lines) > 0 {
		dst, err := OpenCart(ctx, s.p, into)
		if err != nil {
			return err
		}
		if err := dst.Merge(ctx, lines); err != nil {
			return err
		}
	}
	if err := s.p.Delete(ctx, CartKey(from)); err != nil {
		return fmt.Errorf("delete adopted cart: %w", err)
	}
	return nil
}

func (s *Sessions) adoptWishlist(ctx context.Context, from, into string) error {
	release := s.acquirePair(WishlistKey(from), WishlistKey(into))
	defer release()

	src, err := OpenWishlist(ctx, s.p, from)
	if err != nil {
		return err
	}
	products := src.Snapshot().Items
	if len(products) > 0 {
		dst, err := OpenWishlist(ctx, s.p, into)
		if err != nil {
			return err
		}
		if err := dst.Merge(ctx, products); err != nil {
			return err
		}
	}
	if err := s.p.Delete(ctx, WishlistKey(from)); err != nil {
		return fmt.Errorf("delete adopted wishlist: %w", err)
	}
	return nil
}
