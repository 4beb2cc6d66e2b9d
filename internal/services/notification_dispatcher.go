package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/textutil"
)

// Notification types delivered to devices.
const (
	NotificationTypeOrderPlaced   = "order_placed"
	NotificationTypeNewOrder      = "new_order"
	NotificationTypeOrderUpdate   = "order_update"
	NotificationTypeRiderAssigned = "rider_assignment"

	pushDataLimit = 128
)

// NotificationDispatcherDeps bundles collaborators required to construct the dispatcher.
type NotificationDispatcherDeps struct {
	Sender  PushSender
	Enabled bool
	Logger  Logger
}

type notificationDispatcher struct {
	sender  PushSender
	enabled bool
	logger  Logger
}

// NewNotificationDispatcher wraps a PushSender with the order notification rules.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatcher, error) {
	if deps.Sender == nil {
		return nil, errors.New("notification dispatcher: push sender is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notificationDispatcher{sender: deps.Sender, enabled: deps.Enabled, logger: logger}, nil
}

// OrderCreated tells the buyer the order was placed and the seller that a new order arrived.
func (d *notificationDispatcher) OrderCreated(ctx context.Context, order Order) {
	data := orderData(order)
	d.send(ctx, order.BuyerID, Notification{
		Title:   "Order placed",
		Message: fmt.Sprintf("Your order %s has been placed.", order.OrderNumber),
		Type:    NotificationTypeOrderPlaced,
		Data:    data,
	})
	d.send(ctx, order.SellerID, Notification{
		Title:   "New order",
		Message: fmt.Sprintf("You received order %s with %d item(s).", order.OrderNumber, itemCount(order)),
		Type:    NotificationTypeNewOrder,
		Data:    data,
	})
}

// OrderStatusChanged always informs the buyer. Riders hear about assignment and sellers about cancellation.
func (d *notificationDispatcher) OrderStatusChanged(ctx context.Context, order Order, entry TrackingEntry) {
	data := orderData(order)
	message := entry.Message
	if message == "" {
		message = defaultTrackingMessage(order.Status)
	}
	d.send(ctx, order.BuyerID, Notification{
		Title:   fmt.Sprintf("Order %s update", order.OrderNumber),
		Message: message,
		Type:    NotificationTypeOrderUpdate,
		Data:    data,
	})
	switch order.Status {
	case domain.OrderStatusRiderAssigned:
		d.send(ctx, order.RiderID, Notification{
			Title:   "New delivery",
			Message: fmt.Sprintf("You were assigned to deliver order %s.", order.OrderNumber),
			Type:    NotificationTypeRiderAssigned,
			Data:    data,
		})
	case domain.OrderStatusCancelled:
		d.send(ctx, order.SellerID, Notification{
			Title:   fmt.Sprintf("Order %s cancelled", order.OrderNumber),
			Message: message,
			Type:    NotificationTypeOrderUpdate,
			Data:    data,
		})
	}
}

func (d *notificationDispatcher) send(ctx context.Context, userID string, n Notification) {
	if !d.enabled || userID == "" {
		return
	}
	if err := d.sender.Send(ctx, userID, n); err != nil {
		d.logger(ctx, "notification.send.failed", map[string]any{
			"userId": userID,
			"type":   n.Type,
			"error":  err,
		})
	}
}

func orderData(order Order) map[string]string {
	return textutil.PlainTextMap(map[string]string{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"status":      string(order.Status),
	}, pushDataLimit)
}

func itemCount(order Order) int {
	total := 0
	for _, item := range order.Items {
		total += item.Quantity
	}
	return total
}
