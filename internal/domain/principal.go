package domain

// PrincipalKind tags the three actor kinds in the tracking system.
type PrincipalKind string

const (
	PrincipalVendor   PrincipalKind = "vendor"
	PrincipalDriver   PrincipalKind = "driver"
	PrincipalCustomer PrincipalKind = "customer"
)

// Principal identifies an authenticated actor. Each kind carries only the
// fields relevant to its role; the authorization service decides what a
// principal may do for a given delivery.
type Principal struct {
	Kind PrincipalKind `json:"kind"`
	ID   string        `json:"id"`

	// VendorID is set for driver principals employed by a vendor and for
	// vendor principals themselves.
	VendorID string `json:"vendor_id,omitempty"`

	// Phone is set for customer principals; it is the number the delivery
	// was registered against.
	Phone string `json:"phone,omitempty"`
}

// Valid reports whether the principal carries a known kind and an ID.
func (p Principal) Valid() bool {
	if p.ID == "" {
		return false
	}
	switch p.Kind {
	case PrincipalVendor, PrincipalDriver, PrincipalCustomer:
		return true
	}
	return false
}

// CanPublish reports whether this principal kind may publish positions.
// Only drivers publish; vendors and customers subscribe.
func (p Principal) CanPublish() bool {
	return p.Kind == PrincipalDriver
}
