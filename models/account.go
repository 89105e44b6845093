package models

// Account is the identity produced by a successful login. It is built per
// call and never written back to the database.
type Account struct {
	UID         int64          `db:"uid" json:"uid"`
	Username    string         `db:"username" json:"username"`
	Fields      map[string]any `json:"fields,omitempty"`
	Roles       []string       `json:"roles"`
	RoleIDs     []int64        `json:"role_ids"`
	Permissions []string       `json:"permissions"`
}

// HasRole reports whether the account holds the named role.
func (a *Account) HasRole(name string) bool {
	for _, r := range a.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether perm was granted directly or through a role.
func (a *Account) HasPermission(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Role maps to a row of the `roles` table.
type Role struct {
	ID   int64  `db:"rid" json:"rid"`
	Name string `db:"name" json:"name"`
}

// NewUser carries the columns needed to create a `users` row. Fields holds
// any additional columns such as first_name.
type NewUser struct {
	Username string
	Email    string
	Password string
	Fields   map[string]any
}
