package domain

import "time"

// Status is the lifecycle state of a policy. Transitions only run forward:
// purchased → paid or purchased → verified_no_payout, both terminal.
type Status string

const (
	StatusPurchased        Status = "purchased"
	StatusVerifiedNoPayout Status = "verified_no_payout"
	StatusPaid             Status = "paid"
)

// Role identifies the capability a caller acts under. Access checks take the
// role as an explicit parameter rather than inferring it from ambient state.
type Role string

const (
	RoleInsurer Role = "insurer"
	RoleHolder  Role = "holder"
)

// Policy binds a holder to a flight, route, and date at a fixed premium.
type Policy struct {
	ID              string    `json:"id"`
	Holder          string    `json:"holder"`
	PassengerName   string    `json:"passenger_name"`
	FlightNumber    string    `json:"flight_number"`
	FlightDate      time.Time `json:"flight_date"`
	DepartureCity   string    `json:"departure_city"`
	DestinationCity string    `json:"destination_city"`
	PremiumPaid     Money     `json:"premium_paid"`
	Status          Status    `json:"status"`

	// VerifiedCondition is the lowercased weather condition recorded by
	// verification, empty until a policy has been verified. Eligible reports
	// whether that condition qualified for indemnity.
	VerifiedCondition string `json:"verified_condition,omitempty"`
	Eligible          bool   `json:"eligible"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the policy has reached a terminal status.
func (p *Policy) Resolved() bool {
	return p.Status == StatusPaid || p.Status == StatusVerifiedNoPayout
}

// Terms are the static, publicly viewable conditions of the product: what a
// policy costs and what it pays out.
type Terms struct {
	Premium   Money `json:"premium"`
	Indemnity Money `json:"indemnity"`
}
