package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"shopData/models"
	"shopData/query"
)

const (
	usersTable       = "users"
	userRolesTable   = "user_roles"
	rolesTable       = "roles"
	permissionsTable = "permissions"

	// DefaultLoginField is the users column matched against the login name.
	DefaultLoginField = "email"
)

var (
	// ErrNoChecker is returned when an AccountProvider is built without a
	// password checker. There is no plaintext fallback.
	ErrNoChecker = errors.New("account provider requires a password checker")
	// ErrInvalidField is returned for a column name that is not a plain identifier.
	ErrInvalidField = errors.New("invalid field name")
	// ErrNoInactiveField is returned by Deactivate when no inactive field is configured.
	ErrNoInactiveField = errors.New("no inactive field configured")
	// ErrSecretField is returned when the password column is configured as an
	// extra login field.
	ErrSecretField = errors.New("password cannot be an extra field")
)

// AccountConfig is the fixed configuration of an AccountProvider.
type AccountConfig struct {
	// Fields are extra users columns copied into Account.Fields on login.
	Fields []string
	// InactiveField names a users column that disables login when truthy.
	InactiveField string
	// LoginField is the users column matched against the username given to
	// Login, Exists, Value, SetValue and Password. Defaults to "email".
	LoginField string
	// Checker verifies passwords on login. Required.
	Checker PasswordChecker
	// Hasher hashes passwords written by Password and Create. When nil the
	// given value is stored as is and must already be a credential Checker
	// understands.
	Hasher PasswordHasher
}

// AccountProvider authenticates users and reports their roles and
// permissions from the users, user_roles, roles and permissions tables.
// It keeps no state between calls.
type AccountProvider struct {
	q   *query.Wrapper
	cfg AccountConfig
}

// NewAccountProvider validates cfg and returns a provider that runs its
// statements through q.
func NewAccountProvider(q *query.Wrapper, cfg AccountConfig) (*AccountProvider, error) {
	if q == nil {
		return nil, errors.New("query wrapper is nil")
	}
	if cfg.Checker == nil {
		return nil, ErrNoChecker
	}
	if cfg.LoginField == "" {
		cfg.LoginField = DefaultLoginField
	}
	for _, f := range append([]string{cfg.LoginField, cfg.InactiveField}, cfg.Fields...) {
		if f != "" && !query.ValidIdentifier(f) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, f)
		}
	}
	for _, f := range cfg.Fields {
		if strings.EqualFold(f, "password") {
			return nil, ErrSecretField
		}
	}
	cfg.Fields = append([]string(nil), cfg.Fields...)
	return &AccountProvider{q: q, cfg: cfg}, nil
}

// loginFields is uid, username and password followed by the configured
// extra fields and the inactive field, without repeats.
func (p *AccountProvider) loginFields() []string {
	seen := map[string]bool{}
	var out []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range []string{"uid", "username", "password"} {
		add(f)
	}
	for _, f := range p.cfg.Fields {
		add(f)
	}
	add(p.cfg.InactiveField)
	return out
}

// Login checks username and password. Unknown users, disabled accounts and
// wrong passwords all return a nil account and a nil error; an error means
// the lookup itself failed.
func (p *AccountProvider) Login(ctx context.Context, username, password string) (*models.Account, error) {
	rows, err := p.q.Select(ctx, query.Select{
		Table:  usersTable,
		Fields: p.loginFields(),
		Where:  query.Eq{p.cfg.LoginField: username},
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if len(rows) == 0 {
		log.Debug().Str("username", username).Msg("Login rejected: unknown user")
		return nil, nil
	}
	row := rows[0]
	if p.cfg.InactiveField != "" && query.Truthy(row[p.cfg.InactiveField]) {
		log.Debug().Str("username", username).Msg("Login rejected: account disabled")
		return nil, nil
	}
	if !p.cfg.Checker.Check(query.AsString(row["password"]), password) {
		log.Debug().Str("username", username).Msg("Login rejected: wrong password")
		return nil, nil
	}

	uid, ok := query.AsInt64(row["uid"])
	if !ok {
		return nil, fmt.Errorf("user %q has non-numeric uid %v", username, row["uid"])
	}
	roles, err := p.roleRows(ctx, uid)
	if err != nil {
		return nil, err
	}
	acct := &models.Account{
		UID:      uid,
		Username: query.AsString(row["username"]),
		Roles:    make([]string, 0, len(roles)),
		RoleIDs:  make([]int64, 0, len(roles)),
	}
	for _, r := range roles {
		acct.Roles = append(acct.Roles, r.Name)
		acct.RoleIDs = append(acct.RoleIDs, r.ID)
	}
	// Permissions use every role id, including ids whose name repeats.
	acct.Permissions, err = p.Permissions(ctx, uid, acct.RoleIDs)
	if err != nil {
		return nil, err
	}
	if len(p.cfg.Fields) > 0 {
		acct.Fields = make(map[string]any, len(p.cfg.Fields))
		for _, f := range p.cfg.Fields {
			acct.Fields[f] = row[f]
		}
	}
	log.Debug().Int64("uid", uid).Int("roles", len(acct.Roles)).Msg("Login accepted")
	return acct, nil
}

func (p *AccountProvider) roleRows(ctx context.Context, uid int64) ([]models.Role, error) {
	rows, err := p.q.Select(ctx, query.Select{
		Table:   userRolesTable + " ur",
		Fields:  []string{"r.rid AS rid", "r.name AS name"},
		Joins:   []query.Join{{Table: rolesTable + " r", On: "r.rid = ur.rid"}},
		Where:   query.Eq{"ur.uid": uid},
		OrderBy: []string{"r.rid"},
	})
	if err != nil {
		return nil, fmt.Errorf("lookup roles: %w", err)
	}
	out := make([]models.Role, 0, len(rows))
	for _, r := range rows {
		id, _ := query.AsInt64(r["rid"])
		out = append(out, models.Role{ID: id, Name: query.AsString(r["name"])})
	}
	return out, nil
}

// RoleMap returns the user's roles keyed by name. Two roles sharing a name
// collapse into one entry holding the highest rid; use RoleIDs when every id
// matters.
func (p *AccountProvider) RoleMap(ctx context.Context, uid int64) (map[string]int64, error) {
	roles, err := p.roleRows(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(roles))
	for _, r := range roles {
		out[r.Name] = r.ID
	}
	return out, nil
}

// RoleIDs returns the rid of every role assigned to uid, ascending.
func (p *AccountProvider) RoleIDs(ctx context.Context, uid int64) ([]int64, error) {
	vals, err := p.q.SelectListField(ctx, query.Select{
		Table:   userRolesTable,
		Where:   query.Eq{"uid": uid},
		OrderBy: []string{"rid"},
	}, "rid")
	if err != nil {
		return nil, fmt.Errorf("lookup role ids: %w", err)
	}
	out := make([]int64, 0, len(vals))
	for _, v := range vals {
		if id, ok := query.AsInt64(v); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// RoleNames returns the name of every role assigned to uid, ordered by rid.
func (p *AccountProvider) RoleNames(ctx context.Context, uid int64) ([]string, error) {
	roles, err := p.roleRows(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Name)
	}
	return out, nil
}

// Permissions returns every perm granted to uid directly or to any of
// roleIDs: (uid = ?) OR (rid IN (...)). Duplicates are kept.
func (p *AccountProvider) Permissions(ctx context.Context, uid int64, roleIDs []int64) ([]string, error) {
	where := query.Or{query.Eq{"uid": uid}}
	if len(roleIDs) > 0 {
		where = append(where, query.Eq{"rid": roleIDs})
	}
	vals, err := p.q.SelectListField(ctx, query.Select{
		Table: permissionsTable,
		Where: where,
	}, "perm")
	if err != nil {
		return nil, fmt.Errorf("lookup permissions: %w", err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, query.AsString(v))
	}
	return out, nil
}

// Exists returns the uid of the user with the given login name.
func (p *AccountProvider) Exists(ctx context.Context, username string) (int64, bool, error) {
	v, found, err := p.q.SelectField(ctx, query.Select{
		Table: usersTable,
		Where: query.Eq{p.cfg.LoginField: username},
	}, "uid")
	if err != nil || !found {
		return 0, false, err
	}
	uid, ok := query.AsInt64(v)
	return uid, ok, nil
}

// Value reads one column of the user's row.
func (p *AccountProvider) Value(ctx context.Context, username, field string) (any, bool, error) {
	if !query.ValidIdentifier(field) {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return p.q.SelectField(ctx, query.Select{
		Table: usersTable,
		Where: query.Eq{p.cfg.LoginField: username},
	}, field)
}

// SetValue writes one column of the user's row. It returns sql.ErrNoRows
// when no user matched.
func (p *AccountProvider) SetValue(ctx context.Context, username, field string, value any) error {
	if !query.ValidIdentifier(field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	res, err := p.q.Update(ctx, query.Update{
		Table: usersTable,
		Set:   map[string]any{field: value},
		Where: query.Eq{p.cfg.LoginField: username},
	})
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Password stores a new password for the user, hashed when a Hasher is configured.
func (p *AccountProvider) Password(ctx context.Context, username, newPassword string) error {
	stored, err := p.credential(newPassword)
	if err != nil {
		return err
	}
	return p.SetValue(ctx, username, "password", stored)
}

// Deactivate sets the inactive field so that Login refuses the account.
func (p *AccountProvider) Deactivate(ctx context.Context, username string) error {
	if p.cfg.InactiveField == "" {
		return ErrNoInactiveField
	}
	return p.SetValue(ctx, username, p.cfg.InactiveField, 1)
}

// Create inserts a user and returns its uid.
func (p *AccountProvider) Create(ctx context.Context, u models.NewUser) (int64, error) {
	stored, err := p.credential(u.Password)
	if err != nil {
		return 0, err
	}
	values := make(map[string]any, len(u.Fields)+3)
	for k, v := range u.Fields {
		values[k] = v
	}
	values["username"] = u.Username
	values["email"] = u.Email
	values["password"] = stored
	res, err := p.q.Insert(ctx, query.Insert{Table: usersTable, Values: values})
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	if res.LastInsertID != 0 {
		return res.LastInsertID, nil
	}
	// Drivers without LastInsertId support (postgres) fall back to a lookup
	// on the unique username.
	v, found, err := p.q.SelectField(ctx, query.Select{
		Table: usersTable,
		Where: query.Eq{"username": u.Username},
	}, "uid")
	if err != nil {
		return 0, fmt.Errorf("lookup created user: %w", err)
	}
	uid, ok := query.AsInt64(v)
	if !found || !ok || uid == 0 {
		return 0, fmt.Errorf("created user %q not found", u.Username)
	}
	return uid, nil
}

// CreateRole inserts a role and returns its rid. Role names are not unique;
// use EnsureRole to reuse an existing one.
func (p *AccountProvider) CreateRole(ctx context.Context, name string) (int64, error) {
	res, err := p.q.Insert(ctx, query.Insert{Table: rolesTable, Values: map[string]any{"name": name}})
	if err != nil {
		return 0, fmt.Errorf("create role: %w", err)
	}
	if res.LastInsertID != 0 {
		return res.LastInsertID, nil
	}
	// Without LastInsertId the newest role of that name is the one just inserted.
	rid, found, err := p.roleID(ctx, name, "rid DESC")
	if err != nil {
		return 0, fmt.Errorf("lookup created role: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("created role %q not found", name)
	}
	return rid, nil
}

// RoleID returns the lowest rid of the role called name.
func (p *AccountProvider) RoleID(ctx context.Context, name string) (int64, bool, error) {
	return p.roleID(ctx, name, "rid")
}

// EnsureRole returns the rid of the role called name, creating it when
// no such role exists.
func (p *AccountProvider) EnsureRole(ctx context.Context, name string) (int64, error) {
	rid, found, err := p.RoleID(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("lookup role: %w", err)
	}
	if found {
		return rid, nil
	}
	return p.CreateRole(ctx, name)
}

func (p *AccountProvider) roleID(ctx context.Context, name, order string) (int64, bool, error) {
	v, found, err := p.q.SelectField(ctx, query.Select{
		Table:   rolesTable,
		Where:   query.Eq{"name": name},
		OrderBy: []string{order},
		Limit:   1,
	}, "rid")
	if err != nil || !found {
		return 0, false, err
	}
	rid, ok := query.AsInt64(v)
	return rid, ok, nil
}

// AssignRole links a user to a role.
func (p *AccountProvider) AssignRole(ctx context.Context, uid, rid int64) error {
	if uid <= 0 || rid <= 0 {
		return fmt.Errorf("assign role: invalid uid %d or rid %d", uid, rid)
	}
	_, err := p.q.Insert(ctx, query.Insert{Table: userRolesTable, Values: map[string]any{"uid": uid, "rid": rid}})
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// GrantUser grants perm directly to a user.
func (p *AccountProvider) GrantUser(ctx context.Context, uid int64, perm string) error {
	_, err := p.q.Insert(ctx, query.Insert{Table: permissionsTable, Values: map[string]any{"uid": uid, "perm": perm}})
	if err != nil {
		return fmt.Errorf("grant user permission: %w", err)
	}
	return nil
}

// GrantRole grants perm to every holder of a role.
func (p *AccountProvider) GrantRole(ctx context.Context, rid int64, perm string) error {
	_, err := p.q.Insert(ctx, query.Insert{Table: permissionsTable, Values: map[string]any{"rid": rid, "perm": perm}})
	if err != nil {
		return fmt.Errorf("grant role permission: %w", err)
	}
	return nil
}

func (p *AccountProvider) credential(plain string) (string, error) {
	if p.cfg.Hasher == nil {
		return plain, nil
	}
	return p.cfg.Hasher.Hash(plain)
}
