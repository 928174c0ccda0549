package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Role is the closed set of staff roles. The numeric value is the rank stored
// with each user and carried in access tokens.
type Role int

const (
	RoleSuperAdmin        Role = 1
	RoleAdmin             Role = 2
	RoleTechnician        Role = 3
	RoleCashier           Role = 4
	RoleTechnicianCashier Role = 5
)

type Permission string

const (
	PermSell             Permission = "sell"
	PermVoidSale         Permission = "void_sale"
	PermManageTickets    Permission = "manage_tickets"
	PermAssignTechnician Permission = "assign_technician"
	PermManageCatalog    Permission = "manage_catalog"
	PermManageInventory  Permission = "manage_inventory"
	PermViewInventory    Permission = "view_inventory"
	PermManageClients    Permission = "manage_clients"
	PermManageUsers      Permission = "manage_users"
	PermManageBranches   Permission = "manage_branches"
	PermViewReports      Permission = "view_reports"
)

var allPermissions = []Permission{
	PermSell, PermVoidSale, PermManageTickets, PermAssignTechnician, PermManageCatalog,
	PermManageInventory, PermViewInventory, PermManageClients, PermManageUsers,
	PermManageBranches, PermViewReports,
}

var rolePermissions = map[Role][]Permission{
	RoleSuperAdmin: allPermissions,
	RoleAdmin: {
		PermSell, PermVoidSale, PermManageTickets, PermAssignTechnician, PermManageCatalog,
		PermManageInventory, PermViewInventory, PermManageClients, PermManageUsers, PermViewReports,
	},
	RoleTechnician: {PermManageTickets, PermManageClients, PermViewInventory},
	RoleCashier:    {PermSell, PermVoidSale, PermManageClients, PermViewInventory},
	RoleTechnicianCashier: {
		PermSell, PermVoidSale, PermManageTickets, PermAssignTechnician, PermManageClients, PermViewInventory,
	},
}

var roleNames = map[Role]string{
	RoleSuperAdmin:        "Super Administrator",
	RoleAdmin:             "Administrator",
	RoleTechnician:        "Technician",
	RoleCashier:           "Cashier",
	RoleTechnicianCashier: "Technician and Cashier",
}

func ParseRole(rank int) (Role, error) {
	role := Role(rank)
	if !role.Valid() {
		return 0, fmt.Errorf("unknown role rank %d", rank)
	}
	return role, nil
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) Name() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

func (r Role) String() string {
	return r.Name()
}

// Unrestricted reports whether the role sees every branch.
func (r Role) Unrestricted() bool {
	return r == RoleSuperAdmin
}

func (r Role) Can(p Permission) bool {
	return slices.Contains(rolePermissions[r], p)
}

// Repairs reports whether users with this role can be assigned to tickets.
func (r Role) Repairs() bool {
	return r == RoleTechnician || r == RoleTechnicianCashier
}

func (r Role) Permissions() []Permission {
	return slices.Clone(rolePermissions[r])
}

type RoleInfo struct {
	Rank        Role         `json:"rank"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

func AllRoles() []RoleInfo {
	roles := []Role{RoleSuperAdmin, RoleAdmin, RoleTechnician, RoleCashier, RoleTechnicianCashier}
	out := make([]RoleInfo, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleInfo{Rank: r, Name: r.Name(), Permissions: r.Permissions()})
	}
	return out
}

// RoleSet is an allow-list of roles, used for configurable policies.
type RoleSet []Role

func (s RoleSet) Contains(r Role) bool {
	return slices.Contains(s, r)
}

// ParseRoleSet parses a comma separated list of role ranks such as "1,2".
func ParseRoleSet(raw string) (RoleSet, error) {
	set := RoleSet{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rank, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid role rank %q", part)
		}
		role, err := ParseRole(rank)
		if err != nil {
			return nil, err
		}
		if !set.Contains(role) {
			set = append(set, role)
		}
	}
	return set, nil
}
