package rbac

import (
	"sort"
	"strings"
)

// Role names a fixed permission grouping.
type Role string

// Supported roles.
const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleStaff   Role = "Staff"
)

// Permission names.
const (
	PermProductsView   = "products.view"
	PermProductsEdit   = "products.edit"
	PermProductsDelete = "products.delete"
	PermSalesCheckout  = "sales.checkout"
	PermSalesView      = "sales.view"
	PermLayawayView    = "layaway.view"
	PermLayawayManage  = "layaway.manage"
	PermReportsView    = "reports.view"
	PermReportsSend    = "reports.send"
	PermAuditView      = "audit.view"
	PermSettingsEdit   = "settings.edit"
)

var staffPermissions = []string{
	PermProductsView,
	PermSalesCheckout,
	PermSalesView,
	PermLayawayView,
	PermLayawayManage,
}

var managerPermissions = append(append([]string{}, staffPermissions...),
	PermProductsEdit,
	PermReportsView,
	PermReportsSend,
	PermAuditView,
)

var adminPermissions = append(append([]string{}, managerPermissions...),
	PermSettingsEdit,
	PermProductsDelete,
)

var rolePermissions = map[Role][]string{
	RoleStaff:   staffPermissions,
	RoleManager: managerPermissions,
	RoleAdmin:   adminPermissions,
}

// ParseRole normalises a stored role name.
func ParseRole(raw string) (Role, bool) {
	for role := range rolePermissions {
		if strings.EqualFold(string(role), strings.TrimSpace(raw)) {
			return role, true
		}
	}
	return "", false
}

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// CanApproveOverride reports whether the role may authorise below-floor prices.
func (r Role) CanApproveOverride() bool {
	return r == RoleAdmin || r == RoleManager
}

// EffectivePermissions returns the sorted permissions granted to a role.
func EffectivePermissions(role Role) []string {
	perms := append([]string{}, rolePermissions[role]...)
	sort.Strings(perms)
	return perms
}
