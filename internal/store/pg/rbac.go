package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ auth.RBACStore = (*Store)(nil)

const userColumns = `id, name, username, email, status, coalesce(password_hash, ''), created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, in auth.NewUser) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	id := ids.New()
	if _, err := tx.ExecContext(ctx, `
		insert into users (id, name, username, email, status, password_hash)
		values ($1, $2, $3, $4, $5, $6)
	`, id, in.Name, in.Username, in.Email, in.Status, nullIfEmpty(in.PasswordHash)); err != nil {
		return auth.User{}, mapWriteError(err)
	}
	for _, roleID := range in.RoleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id)
			values ($1, $2)
		`, id, roleID); err != nil {
			return auth.User{}, mapWriteError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return s.GetUser(ctx, id)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListUsers returns one page of users with their roles. Search matches name,
// username or email as a literal, case-insensitive substring.
func (s *Store) ListUsers(ctx context.Context, filter auth.ListFilter) ([]auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		where string
		args  []any
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = `where name ilike $1 or username ilike $1 or email ilike $1`
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
	}
	paging := ""
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		paging = fmt.Sprintf(` limit $%d offset $%d`, len(args)-1, len(args))
	}
	page := func(cols string) string {
		return fmt.Sprintf(`select %s from users %s order by username%s`, cols, where, paging)
	}

	rows, err := s.db.QueryContext(ctx, page(userColumns), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return users, nil
	}

	roleRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select ur.user_id, r.id, r.name, r.description, r.created_at, r.updated_at, rp.permission_key
		from user_roles ur
		join roles r on r.id = ur.role_id
		left join role_permissions rp on rp.role_id = r.id
		where ur.user_id in (%s)
		order by ur.user_id, ur.created_at, r.id, rp.permission_key
	`, page("id")), args...)
	if err != nil {
		return nil, err
	}
	byUser, err := collectUserRoles(roleRows)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if roles, ok := byUser[users[i].ID]; ok {
			users[i].Roles = roles
		}
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (auth.User, error) {
	return s.findUser(ctx, `where id = $1`, userID)
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (auth.User, error) {
	return s.findUser(ctx, `where username = $1 or email = $1`, login)
}

func (s *Store) findUser(ctx context.Context, where string, arg string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`select %s from users %s`, userColumns, where), arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	if user.Roles, err = s.userRoles(ctx, user.ID); err != nil {
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, upd auth.UserUpdate) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, *v)
		idx++
	}
	add("name", upd.Name)
	add("username", upd.Username)
	add("email", upd.Email)
	add("status", upd.Status)
	add("password_hash", upd.Password)
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, userID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return auth.User{}, mapWriteError(err)
		}
		if err := expectAffected(res); err != nil {
			return auth.User{}, err
		}
	}
	return s.GetUser(ctx, userID)
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, userID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) CreateRole(ctx context.Context, name, description string, permissionKeys []string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Role{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		role auth.Role
		desc sql.NullString
	)
	row := tx.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning id, name, description, created_at, updated_at
	`, ids.New(), name, nullIfEmpty(description))
	if err := row.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return auth.Role{}, mapWriteError(err)
	}
	role.Description = desc.String
	if err := insertRolePermissions(ctx, tx, role.ID, permissionKeys); err != nil {
		return auth.Role{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.Role{}, err
	}
	role.Permissions = append([]string{}, permissionKeys...)
	return role, nil
}

const roleQuery = `
	select r.id, r.name, r.description, r.created_at, r.updated_at, rp.permission_key
	from roles r
	left join role_permissions rp on rp.role_id = r.id`

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, roleQuery+` order by r.name, rp.permission_key`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func (s *Store) GetRole(ctx context.Context, roleID string) (auth.Role, error) {
	return s.findRole(ctx, `r.id = $1`, roleID)
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (auth.Role, error) {
	return s.findRole(ctx, `r.name = $1`, name)
}

func (s *Store) findRole(ctx context.Context, cond, arg string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, roleQuery+` where `+cond+` order by rp.permission_key`, arg)
	if err != nil {
		return auth.Role{}, err
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return auth.Role{}, err
	}
	if len(roles) == 0 {
		return auth.Role{}, auth.ErrNotFound
	}
	return roles[0], nil
}

func (s *Store) UpdateRole(ctx context.Context, roleID string, upd auth.RoleUpdate) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return auth.Role{}, mapWriteError(err)
		}
		if err := expectAffected(res); err != nil {
			return auth.Role{}, err
		}
	}
	return s.GetRole(ctx, roleID)
}

// DeleteRole relies on cascading foreign keys to drop assignments.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	if s.db == nil {
		return errNoDB
	}
	for _, p := range perms {
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (key, description)
			values ($1, $2)
			on conflict (key) do nothing
		`, p.Key, p.Description); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select key, coalesce(description, '') from permissions order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.Key, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error {
	if s.db == nil {
		return errNoDB
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if err := insertRolePermissions(ctx, tx, roleID, permissionKeys); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `update roles set updated_at = now() where id = $1`, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AssignRoleToUser(ctx context.Context, userID, roleID string) (auth.UserRoleAssignment, error) {
	if s.db == nil {
		return auth.UserRoleAssignment{}, errNoDB
	}
	var a auth.UserRoleAssignment
	err := s.db.QueryRowContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		returning user_id, role_id, created_at
	`, userID, roleID).Scan(&a.UserID, &a.RoleID, &a.CreatedAt)
	if err != nil {
		return auth.UserRoleAssignment{}, mapWriteError(err)
	}
	return a, nil
}

func (s *Store) RemoveRoleAssignment(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// userRoles loads the user's roles in assignment order, each with its
// permission keys.
func (s *Store) userRoles(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.created_at, r.updated_at, rp.permission_key
		from user_roles ur
		join roles r on r.id = ur.role_id
		left join role_permissions rp on rp.role_id = r.id
		where ur.user_id = $1
		order by ur.created_at, r.id, rp.permission_key
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// roleFolder folds one row per (role, permission) into roles, keeping the
// row order of the first occurrence.
type roleFolder struct {
	roles []auth.Role
	index map[string]int
}

func (f *roleFolder) add(r auth.Role, desc, permKey sql.NullString) {
	if f.index == nil {
		f.index = map[string]int{}
	}
	i, ok := f.index[r.ID]
	if !ok {
		r.Description = desc.String
		r.Permissions = []string{}
		f.roles = append(f.roles, r)
		i = len(f.roles) - 1
		f.index[r.ID] = i
	}
	if permKey.Valid {
		f.roles[i].Permissions = append(f.roles[i].Permissions, permKey.String)
	}
}

func collectRoles(rows *sql.Rows) ([]auth.Role, error) {
	defer rows.Close()
	var f roleFolder
	for rows.Next() {
		var (
			r             auth.Role
			desc, permKey sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &r.CreatedAt, &r.UpdatedAt, &permKey); err != nil {
			return nil, err
		}
		f.add(r, desc, permKey)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return f.roles, nil
}

// collectUserRoles is collectRoles for rows led by the owning user id.
func collectUserRoles(rows *sql.Rows) (map[string][]auth.Role, error) {
	defer rows.Close()
	folders := map[string]*roleFolder{}
	for rows.Next() {
		var (
			userID        string
			r             auth.Role
			desc, permKey sql.NullString
		)
		if err := rows.Scan(&userID, &r.ID, &r.Name, &desc, &r.CreatedAt, &r.UpdatedAt, &permKey); err != nil {
			return nil, err
		}
		f, ok := folders[userID]
		if !ok {
			f = &roleFolder{}
			folders[userID] = f
		}
		f.add(r, desc, permKey)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]auth.Role, len(folders))
	for id, f := range folders {
		out[id] = f.roles
	}
	return out, nil
}

func insertRolePermissions(ctx context.Context, tx *sql.Tx, roleID string, keys []string) error {
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_key)
			values ($1, $2)
		`, roleID, key); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: permission %s not found", auth.ErrNotFound, key)
			}
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Status, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.Roles = []auth.Role{}
	return u, nil
}

func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

func expectAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
