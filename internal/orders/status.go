package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
	StatusProcessing: {StatusPending: true, StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
	StatusShipped:    {StatusProcessing: true, StatusDelivered: true, StatusCancelled: true, StatusReturned: true},
	StatusDelivered:  {StatusReturned: true},
	StatusCancelled:  {},
	StatusReturned:   {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// CanTransition reports whether staff may move an order from -> to. Re-setting the
// current status is always allowed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return validNext[from][to]
}

// TriggersFulfillment is true only for transitions into shipped or delivered.
func TriggersFulfillment(to Status) bool {
	return to == StatusShipped || to == StatusDelivered
}

// Entitling reports whether an order in this status still counts towards a user's
// library during reconciliation.
func (s Status) Entitling() bool {
	return s != StatusCancelled && s != StatusReturned
}
