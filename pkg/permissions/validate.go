package permissions

// ResourceType names a kind of directory resource
type ResourceType string

const (
	ResourceUser        ResourceType = "user"
	ResourceCompany     ResourceType = "company"
	ResourceProject     ResourceType = "project"
	ResourceApplication ResourceType = "application"
)

// Action is an operation on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var requiredPermissions = map[ResourceType]map[Action]Permission{
	ResourceUser: {
		ActionCreate: CreateUsers,
		ActionRead:   ViewUsers,
		ActionUpdate: EditUsers,
		ActionDelete: DeleteUsers,
	},
	ResourceCompany: {
		ActionCreate: CreateCompanies,
		ActionRead:   ViewCompanies,
		ActionUpdate: EditCompanies,
		ActionDelete: DeleteCompanies,
	},
	ResourceProject: {
		ActionCreate: CreateProjects,
		ActionRead:   ViewProjects,
		ActionUpdate: EditProjects,
		ActionDelete: DeleteProjects,
	},
	ResourceApplication: {
		ActionCreate: CreateApplications,
		ActionRead:   ViewApplications,
		ActionUpdate: EditApplications,
		ActionDelete: DeleteApplications,
	},
}

// RequiredPermission maps a resource/action pair to the permission it needs
func RequiredPermission(resource ResourceType, action Action) (Permission, bool) {
	actions, ok := requiredPermissions[resource]
	if !ok {
		return "", false
	}
	p, ok := actions[action]
	return p, ok
}

// ValidateAccess decides whether subject may perform action on a resource.
//
// system_admin allows everything. Otherwise the pair must map to a permission, which is
// satisfied either directly or by a grant whose company ID equals resourceID.
func ValidateAccess(subject Subject, resource ResourceType, resourceID string, action Action) bool {
	if subject == nil {
		return false
	}
	held := subject.GrantedPermissions()
	if HasPermission(held, SystemAdmin) {
		return true
	}

	required, ok := RequiredPermission(resource, action)
	if !ok {
		return false
	}
	if HasPermission(held, required) {
		return true
	}

	for _, g := range subject.CompanyGrants() {
		if g.CompanyID == resourceID && g.Allows(required) {
			return true
		}
	}
	return false
}
