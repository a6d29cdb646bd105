package domain

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSeller
}

type Capability int

const (
	CapViewCatalog Capability = iota
	CapManageCatalog
	CapManageSuppliers
	CapCheckout
	CapViewSales
	CapViewStatistics
	CapManageUsers
)

func (c Capability) String() string {
	switch c {
	case CapViewCatalog:
		return "view_catalog"
	case CapManageCatalog:
		return "manage_catalog"
	case CapManageSuppliers:
		return "manage_suppliers"
	case CapCheckout:
		return "checkout"
	case CapViewSales:
		return "view_sales"
	case CapViewStatistics:
		return "view_statistics"
	case CapManageUsers:
		return "manage_users"
	default:
		return "unknown"
	}
}

// Can reports whether the role grants the capability. Unknown roles get nothing.
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleSeller:
		switch c {
		case CapViewCatalog, CapCheckout, CapViewSales:
			return true
		case CapManageCatalog, CapManageSuppliers, CapViewStatistics, CapManageUsers:
			return false
		}
	}
	return false
}
