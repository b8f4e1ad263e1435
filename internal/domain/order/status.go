package order

// Status is a stage of the order lifecycle. Stages only move forward.
type Status string

const (
	StatusPlaced         Status = "placed"
	StatusPreparing      Status = "preparing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
)

var statusRank = map[Status]int{
	StatusPlaced:         1,
	StatusPreparing:      2,
	StatusReadyForPickup: 3,
	StatusOutForDelivery: 4,
	StatusDelivered:      5,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Before reports whether s comes strictly earlier in the lifecycle than other.
func (s Status) Before(other Status) bool {
	return statusRank[s] < statusRank[other]
}

// SellerCanMove reports whether a seller may move an order from one status
// to another: placed or preparing forward to preparing or ready_for_pickup.
func SellerCanMove(from, to Status) bool {
	if from != StatusPlaced && from != StatusPreparing {
		return false
	}
	if to != StatusPreparing && to != StatusReadyForPickup {
		return false
	}
	return from.Before(to)
}

// DriverCanAccept reports whether a driver may pick up an order in status s.
func DriverCanAccept(s Status) bool {
	switch s {
	case StatusPlaced, StatusPreparing, StatusReadyForPickup:
		return true
	}
	return false
}

// DriverCanDeliver reports whether an order in status s can be marked delivered.
func DriverCanDeliver(s Status) bool {
	return s == StatusOutForDelivery
}
