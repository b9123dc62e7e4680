package domain

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

// Terminal orders release their watch reservation and cannot move again.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusCompleted
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled, OrderStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move forward to next.
// Writing the same status back is always allowed (no-op update).
func CanTransitionTo(current, next OrderStatus) bool {
	if current == next {
		return true
	}
	if current.IsTerminal() {
		return false
	}
	switch current {
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled || next == OrderStatusCompleted
	case OrderStatusConfirmed:
		return next == OrderStatusCompleted || next == OrderStatusCancelled
	}
	return false
}

// NonTerminalStatuses is the set counted by the active-order-per-watch invariant.
func NonTerminalStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPending, OrderStatusConfirmed}
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
