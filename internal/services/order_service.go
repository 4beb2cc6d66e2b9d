package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/observability"
	"github.com/marketline/api/internal/platform/textutil"
	"github.com/marketline/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix    = "ord_"
	trackingIDPrefix = "trk_"
	orderCounterID   = "orders"

	verificationCodeDigits = 6
	maxInstructionsLength  = 500
	maxTrackingMessage     = 500
	maxReplayOrders        = 100
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Counters      repositories.CounterRepository
	Carts         CartManager
	Pricing       domain.PricingPolicy
	Notifications NotificationDispatcher
	Events        OrderEventPublisher
	Metrics       *observability.OrderMetrics
	Clock         func() time.Time
	IDGenerator   func() string
	CodeGenerator func() (string, error)
	Logger        Logger
}

type orderService struct {
	orders        repositories.OrderRepository
	counters      repositories.CounterRepository
	carts         CartManager
	pricing       domain.PricingPolicy
	notifications NotificationDispatcher
	events        OrderEventPublisher
	metrics       *observability.OrderMetrics
	clock         func() time.Time
	newID         func() string
	newCode       func() (string, error)
	logger        Logger
}

// NewOrderService wires dependencies into an OrderLifecycle implementation.
func NewOrderService(deps OrderServiceDeps) (OrderLifecycle, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart manager is required")
	}

	pricing := deps.Pricing
	if pricing == (domain.PricingPolicy{}) {
		pricing = domain.DefaultPricingPolicy()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	codeGen := deps.CodeGenerator
	if codeGen == nil {
		codeGen = randomVerificationCode
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		counters:      deps.Counters,
		carts:         deps.Carts,
		pricing:       pricing,
		notifications: deps.Notifications,
		events:        deps.Events,
		metrics:       deps.Metrics,
		clock:         func() time.Time { return clock().UTC() },
		newID:         idGen,
		newCode:       codeGen,
		logger:        logger,
	}, nil
}

type sellerPartition struct {
	sellerID string
	items    []CartItem
}

// CreateFromCart revalidates the cart, then commits one order per seller. Each seller's order,
// stock decrements and first tracking entry are written in one repository transaction. Sellers
// are independent: committed orders stay committed when a later seller fails, and the caller
// receives a PartialCheckoutError naming both.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrdersCommand) (result CheckoutResult, err error) {
	ctx, end := observability.StartSpan(ctx, "orders.CreateFromCart")
	defer func() { end(err) }()

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	delivery := normaliseDelivery(cmd.DeliveryInfo)
	if delivery.RecipientName == "" || delivery.AddressLine1 == "" {
		return CheckoutResult{}, fmt.Errorf("%w: recipient name and address are required", ErrInvalidInput)
	}

	previous, err := s.previousOrders(ctx, userID, cmd.IdempotencyKey)
	if err != nil {
		return CheckoutResult{}, err
	}
	if len(previous) > 0 {
		cart, err := s.carts.GetOrCreateCart(ctx, userID)
		if err != nil {
			return CheckoutResult{}, err
		}
		// Lines left in the cart belong to sellers the earlier attempt failed; retry those.
		if len(cart.Items) == 0 {
			s.logger(ctx, "checkout.replayed", map[string]any{"userId": userID, "orders": len(previous)})
			return CheckoutResult{Orders: previous}, nil
		}
	}

	validation, err := s.carts.ValidateForCheckout(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !validation.IsValid {
		return CheckoutResult{}, &CheckoutValidationError{
			Reasons:               validation.Errors,
			UnavailableProductIDs: validation.UnavailableProductIDs,
		}
	}
	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, &CheckoutValidationError{Reasons: []string{"cart is empty"}}
	}

	var (
		created   []Order
		fresh     []Order
		failures  []SellerFailure
		committed []string
	)
	for _, part := range partitionBySeller(cart.Items) {
		order, replayed, err := s.placePartition(ctx, cmd, userID, delivery, cart.Currency, part)
		if err != nil {
			failures = append(failures, SellerFailure{
				SellerID:   part.sellerID,
				ProductIDs: itemProductIDs(part.items),
				Err:        err,
			})
			s.logger(ctx, "checkout.partition.failed", map[string]any{
				"userId":   userID,
				"sellerId": part.sellerID,
				"error":    err,
			})
			continue
		}
		created = append(created, order)
		committed = append(committed, itemProductIDs(part.items)...)
		if !replayed {
			fresh = append(fresh, order)
		}
	}

	s.settleCart(ctx, userID, len(failures) == 0, committed)
	created = mergeOrders(previous, created)

	for _, order := range fresh {
		s.metrics.OrderCreated(ctx, order.SellerID)
		s.logger(ctx, orderEventCreated, map[string]any{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"sellerId":    order.SellerID,
			"total":       order.TotalAmount,
		})
		if s.notifications != nil {
			s.notifications.OrderCreated(ctx, order)
		}
		s.publishEvent(ctx, OrderEvent{
			Type:          orderEventCreated,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			BuyerID:       order.BuyerID,
			SellerID:      order.SellerID,
			CurrentStatus: string(order.Status),
			ActorID:       userID,
			TotalAmount:   order.TotalAmount,
			Currency:      order.Currency,
			OccurredAt:    order.CreatedAt,
		})
	}

	switch {
	case len(failures) == 0:
		return CheckoutResult{Orders: created}, nil
	case len(created) == 0:
		return CheckoutResult{}, fmt.Errorf("checkout for seller %s failed: %w", failures[0].SellerID, failures[0].Err)
	default:
		return CheckoutResult{Orders: created}, &PartialCheckoutError{Created: created, Failures: failures}
	}
}

// previousOrders lists the orders an earlier checkout with the same idempotency key committed.
func (s *orderService) previousOrders(ctx context.Context, userID, key string) ([]Order, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	page, err := s.orders.List(ctx, OrderListFilter{
		BuyerID:        userID,
		IdempotencyKey: key,
		Pagination:     Pagination{PageSize: maxReplayOrders},
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return page.Items, nil
}

// mergeOrders appends the orders of this attempt to those committed earlier, once per order id.
func mergeOrders(previous, current []Order) []Order {
	if len(previous) == 0 {
		return current
	}
	out := slices.Clone(previous)
	for _, order := range current {
		if !slices.ContainsFunc(out, func(o Order) bool { return o.ID == order.ID }) {
			out = append(out, order)
		}
	}
	return out
}

func (s *orderService) placePartition(ctx context.Context, cmd CreateOrdersCommand, userID string, delivery DeliveryInfo, currency string, part sellerPartition) (Order, bool, error) {
	key := strings.TrimSpace(cmd.IdempotencyKey)
	orderID := orderIDPrefix + strings.ToLower(s.newID())
	if key != "" {
		orderID = idempotentOrderID(userID, key, part.sellerID)
		existing, err := s.orders.FindByID(ctx, orderID)
		if err == nil {
			return existing, true, nil
		}
		if !isNotFound(err) {
			return Order{}, false, mapRepositoryError(err)
		}
	}

	now := s.clock()
	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, false, err
	}
	code, err := s.newCode()
	if err != nil {
		return Order{}, false, fmt.Errorf("generate verification code: %w", err)
	}

	items := make([]OrderItem, 0, len(part.items))
	var subtotal int64
	for _, line := range part.items {
		items = append(items, OrderItem{
			ProductID: line.ProductID,
			Product:   line.Product,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
		})
		subtotal += line.LineTotal()
	}
	totals := s.pricing.ComputeTotals(subtotal)

	order := Order{
		ID:               orderID,
		OrderNumber:      number,
		BuyerID:          userID,
		SellerID:         part.sellerID,
		Items:            items,
		Currency:         currency,
		Subtotal:         totals.Subtotal,
		Tax:              totals.Tax,
		DeliveryFee:      totals.DeliveryFee,
		TotalAmount:      totals.Total,
		Status:           domain.OrderStatusPending,
		DeliveryInfo:     delivery,
		Instructions:     textutil.PlainText(cmd.Instructions, maxInstructionsLength),
		VerificationCode: code,
		PaymentMethod:    strings.TrimSpace(cmd.PaymentMethod),
		PaymentReference: strings.TrimSpace(cmd.PaymentReference),
		IdempotencyKey:   key,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	placed, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		Order: order,
		Tracking: TrackingEntry{
			ID:        s.nextTrackingID(),
			OrderID:   orderID,
			Status:    domain.OrderStatusPending,
			Message:   "Order placed",
			UpdatedBy: userID,
			Timestamp: now,
		},
	})
	if err != nil {
		mapped := mapRepositoryError(err)
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient {
			s.metrics.StockConflict(ctx, stockErr.ProductID)
		}
		return Order{}, false, mapped
	}
	return placed.Order, placed.Replayed, nil
}

// settleCart clears the cart after a full checkout, or removes only the committed lines after a
// partial one. Failures are logged: the orders are already committed.
func (s *orderService) settleCart(ctx context.Context, userID string, complete bool, committed []string) {
	if complete {
		if _, err := s.carts.Clear(ctx, userID); err != nil {
			s.logger(ctx, "checkout.cart_clear.failed", map[string]any{"userId": userID, "error": err})
		}
		return
	}
	for _, productID := range committed {
		if _, err := s.carts.RemoveItem(ctx, userID, productID); err != nil {
			s.logger(ctx, "checkout.cart_remove.failed", map[string]any{
				"userId":    userID,
				"productId": productID,
				"error":     err,
			})
		}
	}
}

// Transition applies a status change from the table. Cancellation is routed through Cancel so
// stock is always returned.
func (s *orderService) Transition(ctx context.Context, cmd TransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if !cmd.ToStatus.IsValid() {
		return Order{}, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, cmd.ToStatus)
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	}
	if cmd.ToStatus == domain.OrderStatusCancelled {
		return s.Cancel(ctx, CancelCommand{OrderID: orderID, CancelledBy: actorID, Reason: cmd.Message})
	}

	riderID := strings.TrimSpace(cmd.RiderID)
	if cmd.ToStatus == domain.OrderStatusRiderAssigned && riderID == "" {
		riderID = actorID
	}
	message := textutil.PlainText(cmd.Message, maxTrackingMessage)

	return s.apply(ctx, orderID, false, func(current Order, now time.Time) (Order, TrackingEntry, error) {
		if !domain.CanTransition(current.Status, cmd.ToStatus) {
			return Order{}, TrackingEntry{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Status, cmd.ToStatus)
		}
		updated := advance(current, cmd.ToStatus, now)
		if cmd.ToStatus == domain.OrderStatusRiderAssigned {
			updated.RiderID = riderID
			if cmd.RiderInfo != nil {
				info := *cmd.RiderInfo
				updated.RiderInfo = &info
			}
		}
		return updated, s.trackingEntry(updated, actorID, message, cmd.Location, now), nil
	})
}

// VerifyDelivery completes an in-transit order when the code matches. The status check and the
// code comparison run against the order read inside the transaction.
func (s *orderService) VerifyDelivery(ctx context.Context, cmd VerifyDeliveryCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	verifiedBy := strings.TrimSpace(cmd.VerifiedBy)
	if verifiedBy == "" {
		return Order{}, fmt.Errorf("%w: verifier id is required", ErrInvalidInput)
	}
	code := strings.TrimSpace(cmd.Code)

	return s.apply(ctx, orderID, false, func(current Order, now time.Time) (Order, TrackingEntry, error) {
		if current.Status != domain.OrderStatusInTransit {
			return Order{}, TrackingEntry{}, fmt.Errorf("%w: delivery can only be verified in transit, order is %s", ErrIllegalTransition, current.Status)
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(current.VerificationCode)) != 1 {
			return Order{}, TrackingEntry{}, ErrInvalidVerificationCode
		}
		updated := advance(current, domain.OrderStatusDelivered, now)
		return updated, s.trackingEntry(updated, verifiedBy, "Delivery verified", cmd.Location, now), nil
	})
}

// Cancel moves the order to cancelled and adds every item quantity back to stock in the same
// transaction. A product missing at reversal time aborts the cancellation.
func (s *orderService) Cancel(ctx context.Context, cmd CancelCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	cancelledBy := strings.TrimSpace(cmd.CancelledBy)
	if cancelledBy == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	}
	reason := textutil.PlainText(cmd.Reason, maxTrackingMessage)

	return s.apply(ctx, orderID, true, func(current Order, now time.Time) (Order, TrackingEntry, error) {
		if !current.Status.Cancellable() {
			return Order{}, TrackingEntry{}, fmt.Errorf("%w: order in status %s cannot be cancelled", ErrIllegalTransition, current.Status)
		}
		updated := advance(current, domain.OrderStatusCancelled, now)
		updated.CancelReason = reason
		updated.CancelledBy = cancelledBy
		message := "Order cancelled"
		if reason != "" {
			message = "Order cancelled: " + reason
		}
		return updated, s.trackingEntry(updated, cancelledBy, message, nil, now), nil
	})
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, status)
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err)
	}
	return page, nil
}

type orderMutation func(current Order, now time.Time) (Order, TrackingEntry, error)

// apply runs mutate inside the repository transaction and performs the post-commit side effects.
func (s *orderService) apply(ctx context.Context, orderID string, restoreStock bool, mutate orderMutation) (order Order, err error) {
	ctx, end := observability.StartSpan(ctx, "orders.Transition",
		attribute.String("order.id", orderID),
		attribute.Bool("order.restore_stock", restoreStock),
	)
	defer func() { end(err) }()

	now := s.clock()
	var previous OrderStatus
	res, err := s.orders.Transition(ctx, repositories.TransitionRequest{
		OrderID:      orderID,
		RestoreStock: restoreStock,
		At:           now,
		Mutate: func(current Order) (Order, TrackingEntry, error) {
			previous = current.Status
			return mutate(current, now)
		},
	})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}

	s.metrics.Transition(ctx, string(previous), string(res.Order.Status))
	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderId": res.Order.ID,
		"from":    string(previous),
		"to":      string(res.Order.Status),
		"actorId": res.Tracking.UpdatedBy,
	})
	if s.notifications != nil {
		s.notifications.OrderStatusChanged(ctx, res.Order, res.Tracking)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        res.Order.ID,
		OrderNumber:    res.Order.OrderNumber,
		BuyerID:        res.Order.BuyerID,
		SellerID:       res.Order.SellerID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(res.Order.Status),
		ActorID:        res.Tracking.UpdatedBy,
		OccurredAt:     now,
	})
	return res.Order, nil
}

func (s *orderService) trackingEntry(order Order, actorID, message string, location *GeoPoint, now time.Time) TrackingEntry {
	if message == "" {
		message = defaultTrackingMessage(order.Status)
	}
	entry := TrackingEntry{
		ID:        s.nextTrackingID(),
		OrderID:   order.ID,
		Status:    order.Status,
		Message:   message,
		UpdatedBy: actorID,
		Timestamp: now,
	}
	if location != nil {
		loc := *location
		entry.Location = &loc
	}
	return entry
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		return "", fmt.Errorf("allocate order number: %w", mapRepositoryError(err))
	}
	return fmt.Sprintf("MK-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) nextTrackingID() string {
	return trackingIDPrefix + strings.ToLower(s.newID())
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"status":  event.CurrentStatus,
			"error":   err,
		})
	}
}

// advance sets the status and its timestamp.
func advance(order Order, to OrderStatus, now time.Time) Order {
	order.Status = to
	order.UpdatedAt = now
	stamp := now
	switch to {
	case domain.OrderStatusPaymentVerified:
		order.PaymentVerifiedAt = &stamp
	case domain.OrderStatusRiderAssigned:
		order.RiderAssignedAt = &stamp
	case domain.OrderStatusPickedUp:
		order.PickedUpAt = &stamp
	case domain.OrderStatusInTransit:
		order.InTransitAt = &stamp
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &stamp
	case domain.OrderStatusCancelled:
		order.CancelledAt = &stamp
	case domain.OrderStatusRefunded:
		order.RefundedAt = &stamp
	}
	return order
}

func defaultTrackingMessage(status OrderStatus) string {
	switch status {
	case domain.OrderStatusPaymentVerified:
		return "Payment confirmed"
	case domain.OrderStatusRiderAssigned:
		return "Rider assigned"
	case domain.OrderStatusPickedUp:
		return "Picked up from seller"
	case domain.OrderStatusInTransit:
		return "On the way"
	case domain.OrderStatusDelivered:
		return "Delivered"
	default:
		return strings.ReplaceAll(string(status), "_", " ")
	}
}

// partitionBySeller groups cart lines by the seller on their snapshot, in first-seen order.
func partitionBySeller(items []CartItem) []sellerPartition {
	var parts []sellerPartition
	index := make(map[string]int)
	for _, item := range items {
		sellerID := item.Product.SellerID
		i, ok := index[sellerID]
		if !ok {
			i = len(parts)
			index[sellerID] = i
			parts = append(parts, sellerPartition{sellerID: sellerID})
		}
		parts[i].items = append(parts[i].items, item)
	}
	return parts
}

// idempotentOrderID derives a stable order id so a retried checkout finds the order it already wrote.
func idempotentOrderID(userID, key, sellerID string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + key + "\x00" + sellerID))
	return orderIDPrefix + hex.EncodeToString(sum[:13])
}

func randomVerificationCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < verificationCodeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", verificationCodeDigits, n.Int64()), nil
}

func normaliseDelivery(info DeliveryInfo) DeliveryInfo {
	clean := func(v string) string { return textutil.PlainText(v, 200) }
	out := DeliveryInfo{
		RecipientName: clean(info.RecipientName),
		Phone:         clean(info.Phone),
		AddressLine1:  clean(info.AddressLine1),
		AddressLine2:  clean(info.AddressLine2),
		City:          clean(info.City),
		Region:        clean(info.Region),
		PostalCode:    clean(info.PostalCode),
		Country:       strings.ToUpper(clean(info.Country)),
	}
	if info.Location != nil {
		loc := *info.Location
		out.Location = &loc
	}
	return out
}
