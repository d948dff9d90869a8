package rbac

import "github.com/ethereum/go-ethereum/common"

// Role constants
const (
	RoleOwner       = "owner"
	RoleAdmin       = "admin"
	RoleContributor = "contributor"
)

// Permission constants
const (
	PermContribute           = "contribute"
	PermWithdrawContribution = "withdraw_contribution"
	PermWithdrawOwnerFunds   = "withdraw_owner_funds"
	PermDepositCustody       = "deposit_custody"
	PermManageCustody        = "manage_custody"
)

// RolePermissions defines what each role can do. Every authenticated
// address is a contributor; owner and admin are added on top.
var RolePermissions = map[string][]string{
	RoleOwner: {
		PermWithdrawOwnerFunds,
	},
	RoleAdmin: {
		PermDepositCustody, PermManageCustody,
	},
	RoleContributor: {
		PermContribute, PermWithdrawContribution,
	},
}

// RolesFor returns the roles of address given the ledger owner and the
// configured admins.
func RolesFor(address, owner common.Address, admins []common.Address) []string {
	roles := []string{RoleContributor}
	if address == owner {
		roles = append(roles, RoleOwner)
	}
	for _, a := range admins {
		if a == address {
			roles = append(roles, RoleAdmin)
			break
		}
	}
	return roles
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// Can reports whether any of roles grants permission.
func Can(roles []string, permission string) bool {
	for _, r := range roles {
		if HasPermission(r, permission) {
			return true
		}
	}
	return false
}
