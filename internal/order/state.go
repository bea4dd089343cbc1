package order

import "errors"

var ErrInvalidStatusTransition = errors.New("invalid order status transition")

// Lifecycle holds the configured names of the order statuses. Statuses live in
// a lookup table, so they are compared by name rather than by id.
type Lifecycle struct {
	Created string
	Paid    string
}

func (l Lifecycle) allowedTransitions() map[string]map[string]bool {
	return map[string]map[string]bool{
		l.Created: {l.Paid: true},
		l.Paid:    {},
	}
}

// CanTransition reports whether an order may move from one status to another.
// Paid is terminal.
func (l Lifecycle) CanTransition(from, to string) bool {
	next, ok := l.allowedTransitions()[from]
	return ok && next[to]
}

// AwaitingPayment reports whether an order in this status may still be paid for.
func (l Lifecycle) AwaitingPayment(status string) bool {
	return status == l.Created
}
