package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/realtime"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/store"
	"github.com/Skotchmaster/storefront/internal/util"
)

const maxCheckoutKey = 64

// OrderService turns carts into orders and drives the order status machine.
type OrderService struct {
	Repo   *repo.GormRepo
	Events realtime.Publisher
	Hub    *realtime.Hub

	inflight sync.Map
}

type CheckoutRequest struct {
	TermsAccepted  bool   `json:"terms_accepted"`
	IdempotencyKey string `json:"idempotency_key"`
}

type CheckoutResult struct {
	Orders []models.Order  `json:"orders"`
	Total  decimal.Decimal `json:"total"`
	// Replayed is set when the key had already produced these orders.
	Replayed    bool `json:"replayed"`
	CartCleared bool `json:"cart_cleared"`
}

// Checkout places one pending order per cart line. The orders are written in
// a single transaction and the cart is cleared only after it commits; on any
// failure the cart is left as it was. The caller already holds cart.
func (s *OrderService) Checkout(ctx context.Context, p auth.Principal, cart *store.Cart, req CheckoutRequest) (*CheckoutResult, error) {
	if err := checkoutAllowed(p, req); err != nil {
		return nil, err
	}
	release, err := s.begin(p.UserID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.checkout(ctx, p, cart, req)
}

// CheckoutSession checks out the caller's own cart. The checkout slot is
// taken before waiting on the session lock, so a second concurrent checkout
// fails with ErrCheckoutInProgress instead of queuing behind the first.
func (s *OrderService) CheckoutSession(ctx context.Context, p auth.Principal, sessions *store.Sessions, req CheckoutRequest) (*CheckoutResult, error) {
	if err := checkoutAllowed(p, req); err != nil {
		return nil, err
	}
	release, err := s.begin(p.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var res *CheckoutResult
	err = sessions.WithCart(ctx, p.UserID.String(), func(cart *store.Cart) error {
		var err error
		res, err = s.checkout(ctx, p, cart, req)
		return err
	})
	return res, err
}

func checkoutAllowed(p auth.Principal, req CheckoutRequest) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if !p.Can(auth.CapPlaceOrder) {
		return ErrForbidden
	}
	if !req.TermsAccepted {
		return ErrTermsNotAccepted
	}
	if len(strings.TrimSpace(req.IdempotencyKey)) > maxCheckoutKey {
		return fmt.Errorf("%w: idempotency key too long", ErrValidation)
	}
	return nil
}

func (s *OrderService) begin(userID uuid.UUID) (func(), error) {
	if _, busy := s.inflight.LoadOrStore(userID, struct{}{}); busy {
		return nil, ErrCheckoutInProgress
	}
	return func() { s.inflight.Delete(userID) }, nil
}

func (s *OrderService) checkout(ctx context.Context, p auth.Principal, cart *store.Cart, req CheckoutRequest) (*CheckoutResult, error) {
	l := logging.FromContext(ctx).With("svc", "order.checkout", "user_id", p.UserID)

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.Repo.OrdersByCheckoutKey(ctx, p.UserID, key)
		if err != nil {
			l.Error("checkout_error", "status", 500, "reason", "idempotency lookup", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
		}
		if len(existing) > 0 {
			return s.replay(ctx, cart, existing)
		}
	} else {
		key = uuid.NewString()
	}

	snap := cart.Snapshot()
	if snap.Empty() {
		return nil, ErrEmptyCart
	}

	ids := make([]uuid.UUID, 0, len(snap.Items))
	for _, it := range snap.Items {
		ids = append(ids, it.ID)
	}
	catalog, err := s.Repo.ProductsByID(ctx, ids)
	if err != nil {
		l.Error("checkout_error", "status", 500, "reason", "catalog lookup", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
	}

	now := time.Now().UTC()
	orders := make([]models.Order, 0, len(snap.Items))
	for _, it := range snap.Items {
		current, ok := catalog[it.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s is no longer available", ErrValidation, it.Name)
		}
		if !current.InStock {
			return nil, fmt.Errorf("%s: %w", it.Name, store.ErrOutOfStock)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: invalid quantity for %s", ErrValidation, it.Name)
		}
		orders = append(orders, models.Order{
			UserID:       p.UserID,
			ProductID:    it.ID,
			ProductName:  it.Name,
			ProductPrice: it.Price,
			Quantity:     it.Quantity,
			TotalPrice:   it.LineTotal(),
			Status:       models.OrderStatusPending,
			CheckoutKey:  key,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		return tx.CreateOrders(ctx, orders)
	})
	if err != nil {
		l.Error("checkout_error", "status", 500, "reason", "insert orders", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
	}

	for _, o := range orders {
		s.publishOrder(ctx, realtime.KindInsert, o)
	}

	l.Info("checkout_success", "orders", len(orders))
	return &CheckoutResult{
		Orders:      orders,
		Total:       sumOrders(orders),
		CartCleared: s.clearCart(ctx, cart),
	}, nil
}

// replay answers a retried checkout with the orders its key already placed.
// The cart is only cleared when it still holds exactly those lines, which
// happens when the first attempt committed but could not clear it. Any other
// non-empty cart was never ordered and is left alone.
func (s *OrderService) replay(ctx context.Context, cart *store.Cart, existing []models.Order) (*CheckoutResult, error) {
	l := logging.FromContext(ctx).With("svc", "order.checkout")

	snap := cart.Snapshot()
	cleared := snap.Empty()
	if !cleared {
		if !sameLines(snap, existing) {
			l.Warn("checkout_error", "status", 409, "reason", "idempotency key reused for a different cart")
			return nil, ErrKeyReused
		}
		cleared = s.clearCart(ctx, cart)
	}

	l.Info("checkout_replayed", "orders", len(existing))
	return &CheckoutResult{
		Orders:      existing,
		Total:       sumOrders(existing),
		Replayed:    true,
		CartCleared: cleared,
	}, nil
}

func sameLines(snap store.CartSnapshot, orders []models.Order) bool {
	if len(snap.Items) != len(orders) {
		return false
	}
	want := make(map[uuid.UUID]int, len(orders))
	for _, o := range orders {
		want[o.ProductID] = o.Quantity
	}
	for _, it := range snap.Items {
		if q, ok := want[it.ID]; !ok || q != it.Quantity {
			return false
		}
	}
	return true
}

// clearCart runs after the orders are durable. A failure leaves the lines in
// the cart; a retry with the same key will not duplicate the orders.
func (s *OrderService) clearCart(ctx context.Context, cart *store.Cart) bool {
	if err := cart.Clear(ctx); err != nil {
		logging.FromContext(ctx).Error("checkout_clear_cart_error", "error", err)
		return false
	}
	return true
}

func sumOrders(orders []models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalPrice)
	}
	return total
}

// UpdateStatus applies one edge of the status machine. The write only lands
// if the order is still in the status that was read, so two moderators cannot
// both move an order out of the same state.
func (s *OrderService) UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, target models.OrderStatus, ticket *string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.update_status", "order_id", id)

	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !p.Can(auth.CapModerateOrders) {
		return nil, ErrForbidden
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}

	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
	}

	var deliveredAt *time.Time
	if target == models.OrderStatusDelivered {
		now := time.Now().UTC()
		deliveredAt = &now
	}
	if ticket != nil {
		t := strings.TrimSpace(*ticket)
		if t == "" {
			ticket = nil
		} else {
			ticket = &t
		}
	}

	ok, err := s.Repo.TransitionOrder(ctx, id, order.Status, target, ticket, deliveredAt)
	if err != nil {
		l.Error("update_status_error", "status", 500, "error", err)
		return nil, err
	}
	if !ok {
		l.Warn("update_status_error", "status", 409, "reason", "order changed concurrently")
		return nil, fmt.Errorf("%w: order %s changed concurrently", ErrConflict, id)
	}

	updated, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishOrder(ctx, realtime.KindUpdate, *updated)
	l.Info("update_status_success", "from", order.Status, "to", target)
	return updated, nil
}

func (s *OrderService) publishOrder(ctx context.Context, kind realtime.Kind, o models.Order) {
	ev, err := realtime.NewEvent(realtime.TopicOrders, kind, o.ID.String(), o)
	if err == nil {
		err = s.Events.Publish(ctx, ev.WithOwner(o.UserID.String()))
	}
	if err != nil {
		logging.FromContext(ctx).Warn("order_publish_error", "order_id", o.ID, "error", err)
	}
}

// Get hides orders the caller may not see behind ErrNotFound.
func (s *OrderService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Order, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if !p.CanSee(order.UserID) {
		return nil, fmt.Errorf("order: %w", ErrNotFound)
	}
	return order, nil
}

type ListOrdersRequest struct {
	Status models.OrderStatus
	// All lists every user's orders; moderators only.
	All  bool
	Page int
	Size int
}

type OrderPage struct {
	Data []models.Order `json:"data"`
	Meta util.PageMeta  `json:"meta"`
}

func (s *OrderService) List(ctx context.Context, p auth.Principal, req ListOrdersRequest) (*OrderPage, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}
	if req.All && !p.Can(auth.CapModerateOrders) {
		return nil, ErrForbidden
	}

	offset, limit := util.Calculate(req.Page, req.Size)
	f := repo.OrderFilter{Status: req.Status, Offset: offset, Limit: limit}
	if !req.All {
		f.UserID = &p.UserID
	}
	total, orders, err := s.Repo.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	return &OrderPage{Data: orders, Meta: util.Meta(req.Page, offset, limit, total)}, nil
}

// Subscribe streams order changes visible to the caller.
func (s *OrderService) Subscribe(p auth.Principal) (*realtime.Subscription, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	owner := p.UserID.String()
	moderator := p.Can(auth.CapModerateOrders)
	return s.Hub.Subscribe(realtime.TopicOrders, func(e realtime.Event) bool {
		return moderator || e.Owner == owner
	}), nil
}

type Stats struct {
	repo.OrderStats
	TotalProducts         int64          `json:"total_products"`
	AffiliateApplications int64          `json:"pending_affiliate_applications"`
	RecentOrders          []models.Order `json:"recent_orders"`
}

func (s *OrderService) Stats(ctx context.Context, p auth.Principal) (*Stats, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !p.Can(auth.CapModerateOrders) {
		return nil, ErrForbidden
	}

	orderStats, err := s.Repo.OrderStats(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.Repo.CountProducts(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.Repo.CountApplications(ctx, models.ApplicationPending)
	if err != nil {
		return nil, err
	}
	_, recent, err := s.Repo.ListOrders(ctx, repo.OrderFilter{Limit: 5})
	if err != nil {
		return nil, err
	}
	return &Stats{
		OrderStats:            orderStats,
		TotalProducts:         products,
		AffiliateApplications: pending,
		RecentOrders:          recent,
	}, nil
}
