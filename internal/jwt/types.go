package jwt

// Capability is the access level a token grants within its tenant.
type Capability string

const (
	CapabilityViewer Capability = "viewer"
	CapabilityEditor Capability = "editor"
	CapabilityOwner  Capability = "owner"
	// CapabilityAdmin is the platform operator. It is not bound to a tenant.
	CapabilityAdmin Capability = "admin"
)

var capabilityRank = map[Capability]int{
	CapabilityViewer: 1,
	CapabilityEditor: 2,
	CapabilityOwner:  3,
	CapabilityAdmin:  4,
}

func (c Capability) Valid() bool {
	_, ok := capabilityRank[c]
	return ok
}

// Allows reports whether c is at least required.
func (c Capability) Allows(required Capability) bool {
	return capabilityRank[c] >= capabilityRank[required] && c.Valid()
}

type Identity struct {
	Subject    string
	TenantID   string
	Capability Capability
}

func (i Identity) IsAdmin() bool {
	return i.Capability == CapabilityAdmin
}
