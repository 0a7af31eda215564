package permissions

// Category groups permissions for display. Categories carry no authorization meaning.
type Category string

const (
	CategoryUserManagement        Category = "USER_MANAGEMENT"
	CategoryCompanyManagement     Category = "COMPANY_MANAGEMENT"
	CategoryProjectManagement     Category = "PROJECT_MANAGEMENT"
	CategoryApplicationManagement Category = "APPLICATION_MANAGEMENT"
	CategorySystemAdministration  Category = "SYSTEM_ADMINISTRATION"
)

// CategoryInfo is the display entry for a category
type CategoryInfo struct {
	Key         Category     `json:"key"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

const unknownDescription = "No description available"

var categories = []CategoryInfo{
	{
		Key:         CategoryUserManagement,
		Name:        "User Management",
		Permissions: []Permission{ManageUsers, ViewUsers, CreateUsers, EditUsers, DeleteUsers},
	},
	{
		Key:         CategoryCompanyManagement,
		Name:        "Company Management",
		Permissions: []Permission{ManageCompanies, ViewCompanies, CreateCompanies, EditCompanies, DeleteCompanies},
	},
	{
		Key:         CategoryProjectManagement,
		Name:        "Project Management",
		Permissions: []Permission{ManageProjects, ViewProjects, CreateProjects, EditProjects, DeleteProjects},
	},
	{
		Key:         CategoryApplicationManagement,
		Name:        "Application Management",
		Permissions: []Permission{ManageApplications, ViewApplications, CreateApplications, EditApplications, DeleteApplications},
	},
	{
		Key:         CategorySystemAdministration,
		Name:        "System Administration",
		Permissions: []Permission{SystemAdmin, ViewAuditLogs, ManageSystemSettings},
	},
}

var descriptions = map[Permission]string{
	ManageUsers: "Full user management access",
	ViewUsers:   "View user information",
	CreateUsers: "Create new users",
	EditUsers:   "Edit existing users",
	DeleteUsers: "Delete users",

	ManageCompanies: "Full company management access",
	ViewCompanies:   "View company information",
	CreateCompanies: "Create new companies",
	EditCompanies:   "Edit existing companies",
	DeleteCompanies: "Delete companies",

	ManageProjects: "Full project management access",
	ViewProjects:   "View project information",
	CreateProjects: "Create new projects",
	EditProjects:   "Edit existing projects",
	DeleteProjects: "Delete projects",

	ManageApplications: "Full application management access",
	ViewApplications:   "View application information",
	CreateApplications: "Create new applications",
	EditApplications:   "Edit existing applications",
	DeleteApplications: "Delete applications",

	SystemAdmin:          "Full system administration access",
	ViewAuditLogs:        "View system audit logs",
	ManageSystemSettings: "Manage system settings",
}

// AllPermissions returns every catalogued permission in category order
func AllPermissions() []Permission {
	all := make([]Permission, 0, len(descriptions))
	for _, c := range categories {
		all = append(all, c.Permissions...)
	}
	return all
}

// Categories returns a copy of the display categories
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, len(categories))
	for i, c := range categories {
		out[i] = CategoryInfo{
			Key:         c.Key,
			Name:        c.Name,
			Permissions: append([]Permission(nil), c.Permissions...),
		}
	}
	return out
}

// PermissionsByCategory returns the permissions of a category, or nil for an unknown one
func PermissionsByCategory(key Category) []Permission {
	for _, c := range categories {
		if c.Key == key {
			return append([]Permission(nil), c.Permissions...)
		}
	}
	return nil
}

// Description returns the human description of a permission
func Description(p Permission) string {
	if d, ok := descriptions[p]; ok {
		return d
	}
	return unknownDescription
}

// IsKnown reports whether p is in the catalog
func IsKnown(p Permission) bool {
	_, ok := descriptions[p]
	return ok
}

// IsPrivileged reports whether p is a system administration permission. These reach
// across tenants and are only handed out by holders of the same permission.
func IsPrivileged(p Permission) bool {
	switch p {
	case SystemAdmin, ViewAuditLogs, ManageSystemSettings:
		return true
	}
	return false
}
