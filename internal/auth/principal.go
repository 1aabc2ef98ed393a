package auth

import (
	"slices"

	"github.com/google/uuid"
)

type Capability string

const (
	CapPlaceOrder       Capability = "place-order"
	CapModerateOrders   Capability = "moderate-orders"
	CapManageCatalog    Capability = "manage-catalog"
	CapManageSettings   Capability = "manage-settings"
	CapReviewAffiliates Capability = "review-affiliates"
	CapAffiliate        Capability = "affiliate"
)

const (
	RoleUser      = "user"
	RoleAffiliate = "affiliate"
	RoleAdmin     = "admin"
)

var roleCapabilities = map[string][]Capability{
	RoleUser:      {CapPlaceOrder},
	RoleAffiliate: {CapPlaceOrder, CapAffiliate},
	RoleAdmin: {
		CapPlaceOrder,
		CapModerateOrders,
		CapManageCatalog,
		CapManageSettings,
		CapReviewAffiliates,
	},
}

// Principal is the authenticated caller, resolved once per request and
// passed explicitly to every service call. The zero value is anonymous.
type Principal struct {
	UserID uuid.UUID
	Roles  []string
	caps   map[Capability]struct{}
}

func NewPrincipal(userID uuid.UUID, roles ...string) Principal {
	p := Principal{UserID: userID, caps: make(map[Capability]struct{})}
	for _, r := range roles {
		if r == "" || slices.Contains(p.Roles, r) {
			continue
		}
		p.Roles = append(p.Roles, r)
		for _, c := range roleCapabilities[r] {
			p.caps[c] = struct{}{}
		}
	}
	return p
}

func (p Principal) Authenticated() bool { return p.UserID != uuid.Nil }

func (p Principal) Can(c Capability) bool {
	_, ok := p.caps[c]
	return ok
}

// CanSee reports whether the principal may read a row owned by owner.
func (p Principal) CanSee(owner uuid.UUID) bool {
	if !p.Authenticated() {
		return false
	}
	return p.UserID == owner || p.Can(CapModerateOrders)
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}
