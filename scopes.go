package accounts

// System role names. Both are seeded at startup and cannot be deleted.
const (
	// RoleAdmin holds the union of every scope group
	RoleAdmin = "ADMIN"
	// RoleUser holds no scopes and is the configurable default
	RoleUser = "USER"
)

// Scope strings, grouped by the admin surface they gate. Write does not
// imply read in the check itself; that policy is applied at role-edit time.
const (
	ScopeScopesRead = "SCOPES_READ"

	ScopeUserRead  = "USER_READ"
	ScopeUserWrite = "USER_WRITE"

	ScopeRoleRead  = "ROLE_READ"
	ScopeRoleWrite = "ROLE_WRITE"

	ScopeBlacklistRead  = "BLACKLIST_READ"
	ScopeBlacklistWrite = "BLACKLIST_WRITE"

	ScopeSettingsRead  = "SETTINGS_READ"
	ScopeSettingsWrite = "SETTINGS_WRITE"

	ScopeStatisticsRead = "STATISTICS_READ"

	ScopeAPIRead  = "API_READ"
	ScopeAPIWrite = "API_WRITE"
)

// ScopeGroups lists every defined scope keyed by group name
var ScopeGroups = map[string][]string{
	"scopes":     {ScopeScopesRead},
	"user":       {ScopeUserRead, ScopeUserWrite},
	"role":       {ScopeRoleRead, ScopeRoleWrite},
	"blacklist":  {ScopeBlacklistRead, ScopeBlacklistWrite},
	"settings":   {ScopeSettingsRead, ScopeSettingsWrite},
	"statistics": {ScopeStatisticsRead},
	"api":        {ScopeAPIRead, ScopeAPIWrite},
}

// AdminScopes returns the union of all defined scope groups
func AdminScopes() []string {
	out := make([]string, 0, 16)
	for _, group := range [][]string{
		ScopeGroups["scopes"],
		ScopeGroups["user"],
		ScopeGroups["role"],
		ScopeGroups["blacklist"],
		ScopeGroups["settings"],
		ScopeGroups["statistics"],
		ScopeGroups["api"],
	} {
		out = append(out, group...)
	}
	return out
}

// IsValidScope reports whether the string names a defined scope
func IsValidScope(scope string) bool {
	for _, group := range ScopeGroups {
		for _, s := range group {
			if s == scope {
				return true
			}
		}
	}
	return false
}

// ContainsScopes is the authorization contract: true when the held set
// intersects the required set (any-of, not all-of). Every middleware
// performing scope checks must use these semantics.
func ContainsScopes(held, required []string) bool {
	for _, want := range required {
		for _, have := range held {
			if have == want {
				return true
			}
		}
	}
	return false
}

// SystemRoles returns the two seeded roles
func SystemRoles() []*Role {
	return []*Role{
		{
			Name:        RoleAdmin,
			Description: "Superset of all scopes",
			Scopes:      AdminScopes(),
		},
		{
			Name:        RoleUser,
			Description: "Default role without scopes",
			Scopes:      []string{},
		},
	}
}
