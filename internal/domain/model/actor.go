package model

// Role separates privileged operators from restricted issuers.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleIssuer Role = "issuer"
)

// Actor is the identity performing an operation, supplied by the transport
// layer. The core never looks anything up about the actor beyond this pair.
type Actor struct {
	ID   string
	Role Role
}

// Privileged reports whether the actor bypasses ownership scoping.
func (a Actor) Privileged() bool { return a.Role == RoleAdmin }

// CanSee reports whether the record is visible to the actor.
func (a Actor) CanSee(c *RedemptionCode) bool {
	return a.Privileged() || c.GeneratedBy == a.ID
}

// CanMutate reports whether the actor may delete the record. Visibility and
// mutability follow the same ownership rule, applied uniformly to every
// entry point that touches a code record.
func (a Actor) CanMutate(c *RedemptionCode) bool {
	return a.CanSee(c)
}
