package domain

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaymentVerified indicates the payment confirmation signal was received.
	OrderStatusPaymentVerified OrderStatus = "payment_verified"
	// OrderStatusRiderAssigned indicates a rider accepted the delivery.
	OrderStatusRiderAssigned OrderStatus = "rider_assigned"
	// OrderStatusPickedUp indicates the rider collected the goods from the seller.
	OrderStatusPickedUp OrderStatus = "picked_up"
	// OrderStatusInTransit indicates the goods are on the way to the buyer.
	OrderStatusInTransit OrderStatus = "in_transit"
	// OrderStatusDelivered indicates the handoff was verified with the delivery code.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled and its stock returned.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates the order was refunded.
	OrderStatusRefunded OrderStatus = "refunded"
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusPaymentVerified, OrderStatusCancelled},
	OrderStatusPaymentVerified: {OrderStatusRiderAssigned, OrderStatusCancelled},
	OrderStatusRiderAssigned:   {OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusPickedUp:        {OrderStatusInTransit},
	OrderStatusInTransit:       {OrderStatusDelivered},
	OrderStatusDelivered:       nil,
	OrderStatusCancelled:       nil,
	OrderStatusRefunded:        nil,
}

// IsValid reports whether the status is a known lifecycle state.
func (s OrderStatus) IsValid() bool {
	_, ok := orderStateTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	next, ok := orderStateTransitions[s]
	return ok && len(next) == 0
}

// Cancellable reports whether the order can still be cancelled (before pickup).
func (s OrderStatus) Cancellable() bool {
	return CanTransition(s, OrderStatusCancelled)
}

// CanTransition reports whether the lifecycle permits moving from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, candidate := range orderStateTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// NextStatuses returns a copy of the statuses reachable from the given status.
func NextStatuses(from OrderStatus) []OrderStatus {
	next := orderStateTransitions[from]
	if len(next) == 0 {
		return nil
	}
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// AllOrderStatuses lists every lifecycle state in declaration order.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusPaymentVerified,
		OrderStatusRiderAssigned,
		OrderStatusPickedUp,
		OrderStatusInTransit,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusRefunded,
	}
}
