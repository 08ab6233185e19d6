package domain

// UserRoleType represents a role a user holds within a tenant
type UserRoleType string

const (
	RoleSuperAdmin        UserRoleType = "super_admin"
	RoleTenantAdmin       UserRoleType = "tenant_admin"
	RoleComplianceOfficer UserRoleType = "compliance_officer"
	RoleCultivator        UserRoleType = "cultivator"
	RoleViewer            UserRoleType = "viewer"
	// RoleSystem is used by the CLI and scheduled jobs
	RoleSystem UserRoleType = "system"
)

// IsValid checks if the role is known
func (r UserRoleType) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleComplianceOfficer, RoleCultivator, RoleViewer, RoleSystem:
		return true
	}
	return false
}

// PermissionType represents a specific capability
type PermissionType string

const (
	PermissionBatchesRead  PermissionType = "batches:read"
	PermissionBatchesWrite PermissionType = "batches:write"
	// PermissionBatchesMutate covers split, process, adjust and event registration
	PermissionBatchesMutate PermissionType = "batches:mutate"

	PermissionEventsRead  PermissionType = "events:read"
	PermissionEventsWrite PermissionType = "events:write"

	PermissionFacilitiesRead  PermissionType = "facilities:read"
	PermissionFacilitiesWrite PermissionType = "facilities:write"

	PermissionCountsRead  PermissionType = "counts:read"
	PermissionCountsWrite PermissionType = "counts:write"

	PermissionLossReportsRead  PermissionType = "loss_reports:read"
	PermissionLossReportsWrite PermissionType = "loss_reports:write"

	PermissionAlertsRead PermissionType = "alerts:read"

	PermissionRetentionManage PermissionType = "retention:manage"
	PermissionArchivalRun     PermissionType = "archival:run"
	PermissionExportsRun      PermissionType = "exports:run"

	PermissionTenantsManage PermissionType = "tenants:manage"
)

var readPermissions = []PermissionType{
	PermissionBatchesRead,
	PermissionEventsRead,
	PermissionFacilitiesRead,
	PermissionCountsRead,
	PermissionLossReportsRead,
	PermissionAlertsRead,
}

// RolePermissions is the default capability table per role. Super admins hold
// every permission and are not listed.
var RolePermissions = map[UserRoleType][]PermissionType{
	RoleTenantAdmin: append([]PermissionType{
		PermissionBatchesWrite, PermissionBatchesMutate,
		PermissionEventsWrite,
		PermissionFacilitiesWrite,
		PermissionCountsWrite,
		PermissionLossReportsWrite,
		PermissionRetentionManage, PermissionArchivalRun, PermissionExportsRun,
	}, readPermissions...),
	RoleComplianceOfficer: append([]PermissionType{
		PermissionCountsWrite,
		PermissionLossReportsWrite,
		PermissionRetentionManage, PermissionArchivalRun, PermissionExportsRun,
	}, readPermissions...),
	RoleCultivator: append([]PermissionType{
		PermissionBatchesWrite, PermissionBatchesMutate,
		PermissionEventsWrite,
		PermissionCountsWrite,
	}, readPermissions...),
	RoleViewer: readPermissions,
	RoleSystem: append([]PermissionType{
		PermissionBatchesMutate,
		PermissionEventsWrite,
		PermissionCountsWrite,
		PermissionLossReportsWrite,
		PermissionArchivalRun, PermissionExportsRun,
	}, readPermissions...),
}

// AllPermissions lists every permission in a stable order
var AllPermissions = []PermissionType{
	PermissionBatchesRead, PermissionBatchesWrite, PermissionBatchesMutate,
	PermissionEventsRead, PermissionEventsWrite,
	PermissionFacilitiesRead, PermissionFacilitiesWrite,
	PermissionCountsRead, PermissionCountsWrite,
	PermissionLossReportsRead, PermissionLossReportsWrite,
	PermissionAlertsRead,
	PermissionRetentionManage, PermissionArchivalRun, PermissionExportsRun,
	PermissionTenantsManage,
}

// RoleHasPermission checks the default capability table
func RoleHasPermission(role UserRoleType, permission PermissionType) bool {
	if role == RoleSuperAdmin {
		return true
	}
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
