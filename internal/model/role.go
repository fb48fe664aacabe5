package model

// Role is the relationship of a contact to the agent.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleLender   Role = "lender"
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
	RoleOther    Role = "other"
)

// Roles lists the valid roles.
var Roles = []Role{RoleBuyer, RoleSeller, RoleLender, RoleTenant, RoleLandlord, RoleOther}

// Valid reports whether r is a member of the role enum.
func (r Role) Valid() bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// Category is the pipeline stage of a contact.
type Category string

const (
	CategoryPotentialBuyer  Category = "potential_buyer"
	CategoryPotentialSeller Category = "potential_seller"
	CategorySignedBuyer     Category = "signed_buyer"
	CategorySignedSeller    Category = "signed_seller"
	CategoryPotentialLender Category = "potential_lender"
	CategoryPotentialTenant Category = "potential_tenant"
)

// Categories lists the valid categories.
var Categories = []Category{
	CategoryPotentialBuyer, CategoryPotentialSeller, CategorySignedBuyer,
	CategorySignedSeller, CategoryPotentialLender, CategoryPotentialTenant,
}

// Valid reports whether c is a member of the category enum.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}
