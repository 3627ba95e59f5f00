package domain

import "time"

// OrderStatus is the lifecycle state of a single broker order.
type OrderStatus string

const (
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderExpired   OrderStatus = "EXPIRED"
)

// OrderLeg names which member of the bracket an order is.
type OrderLeg string

const (
	LegEntry OrderLeg = "ENTRY"
	LegSL    OrderLeg = "SL"
	LegTP    OrderLeg = "TP"
)

// BracketRequest is everything OrderExecutor needs to construct the
// three-leg atomic bracket for a setup: entry, stop-loss, take-profit,
// all sharing one order-reference prefix and one-cancels-all group.
type BracketRequest struct {
	SetupID   string
	Direction Direction
	Entry     float64
	SL        float64
	TP        float64
	Contracts int
	Timestamp time.Time
}

// RefPrefix returns the order-reference prefix this bracket's three legs
// share: "SLOB_<first8 of SetupID>_<YYYYMMDD>_<HHMMSS>". Bit-exact per
// spec §6; the first 8 characters of SetupID are the duplicate-detection
// key.
func (r BracketRequest) RefPrefix() string {
	id := r.SetupID
	if len(id) > 8 {
		id = id[:8]
	}
	return "SLOB_" + id + "_" + r.Timestamp.Format("20060102_150405")
}

// LegRef returns the full order-reference tag for one leg of the bracket.
func (r BracketRequest) LegRef(leg OrderLeg) string {
	return r.RefPrefix() + "_" + string(leg)
}

// OrderResult is what OrderExecutor returns for one submitted order —
// entry, SL, or TP — carrying its status and a free-text reason on
// refusal, per spec §7's user-visible failure contract.
type OrderResult struct {
	SetupID    string
	Leg        OrderLeg
	BrokerID   string
	Status     OrderStatus
	Message    string
	FilledAt   time.Time
	FilledPx   float64
}

// BracketResult is the outcome of submitting a full bracket: one
// OrderResult per leg, or a single refusal reason when the bracket never
// reached the broker.
type BracketResult struct {
	SetupID  string
	Accepted bool
	Reason   string
	Legs     []OrderResult
}
