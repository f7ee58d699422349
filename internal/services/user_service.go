package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"issuetracker/internal/config"
	"issuetracker/internal/database"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/visibility"
	contextutils "issuetracker/internal/utils"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted anywhere
const MinPasswordLength = 8

// UserServiceInterface defines the interface for user-related operations.
// This allows for easier mocking in tests.
type UserServiceInterface interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context, filter UserFilter, page PageRequest) ([]models.User, int, error)
	UpdateUser(ctx context.Context, actor visibility.Actor, id int64, patch UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword, confirm string) error
	SetPassword(ctx context.Context, userID int64, newPassword string) error
	EnsureAdminUserExists(ctx context.Context, username, password, email string) error
}

// CreateUserInput is an account registration
type CreateUserInput struct {
	Username        string      `json:"username" validate:"required,max=150"`
	Email           string      `json:"email" validate:"omitempty,email"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"password_confirm" validate:"required"`
	FirstName       string      `json:"first_name" validate:"max=150"`
	LastName        string      `json:"last_name" validate:"max=150"`
	Role            models.Role `json:"role" validate:"required,oneof=student mentor admin"`
	Cohort          string      `json:"cohort" validate:"max=50"`
}

// UserFilter narrows ListUsers
type UserFilter struct {
	Role   string
	Cohort string
	Search string
}

// UserPatch holds the writable user fields; nil leaves a field alone
type UserPatch struct {
	Email     *string      `json:"email"`
	FirstName *string      `json:"first_name"`
	LastName  *string      `json:"last_name"`
	Role      *models.Role `json:"role"`
	Cohort    *string      `json:"cohort"`
	IsActive  *bool        `json:"is_active"`
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// userColumns is every users column a models.User is scanned from
var userColumns = []string{
	"id", "username", "email", "first_name", "last_name", "role", "cohort",
	"password_hash", "is_active", "date_joined", "last_login",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.Cohort,
		&u.PasswordHash, &u.IsActive, &u.DateJoined, &u.LastLogin)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

func validatePassword(field, password, confirm string) error {
	if password != confirm {
		return contextutils.Validationf(field+"_confirm", "Passwords do not match.")
	}
	if len(password) < MinPasswordLength {
		return contextutils.Validationf(field, "This password is too short. It must contain at least %d characters.", MinPasswordLength)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateUser registers a new account with a bcrypt password hash
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user",
		attribute.String("user.username", in.Username), observability.AttributeRole(string(in.Role)))
	defer observability.FinishSpan(span, &err)

	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, contextutils.Validationf("username", "This field is required.")
	}
	if !in.Role.Valid() {
		return nil, contextutils.Validationf("role", "\"%s\" is not a valid choice.", in.Role)
	}
	if in.Email != "" && !contextutils.IsValidEmail(in.Email) {
		return nil, contextutils.Validationf("email", "Enter a valid email address.")
	}
	if err = validatePassword("password", in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to hash password")
	}

	query, args, err := psql.Insert("users").
		Columns("username", "email", "first_name", "last_name", "role", "cohort", "password_hash", "is_active", "date_joined").
		Values(in.Username, nullableString(in.Email), in.FirstName, in.LastName, string(in.Role), strings.TrimSpace(in.Cohort), string(hash), true, time.Now()).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build user insert")
	}

	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, contextutils.NewAppError(contextutils.ErrorCodeConflict, contextutils.SeverityWarn,
				"A user with that username already exists.", "username")
		}
		return nil, contextutils.WrapError(err, "failed to create user")
	}

	s.logger.Info(ctx, "Created user", map[string]interface{}{"user_id": user.ID, "role": string(user.Role)})
	return user, nil
}

// AuthenticateUser verifies user credentials and returns the user if valid
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	invalid := contextutils.NewAppError(contextutils.ErrorCodeInvalidCredentials, contextutils.SeverityWarn,
		"No active account found with the given credentials", "")

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if !user.IsActive || !user.PasswordHash.Valid {
		return nil, invalid
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)) != nil {
		return nil, invalid
	}

	if _, execErr := s.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, time.Now(), user.ID); execErr != nil {
		s.logger.Warn(ctx, "Failed to record last login", map[string]interface{}{"user_id": user.ID, "error": execErr.Error()})
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id int64) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", observability.AttributeUserID(id))
	defer observability.FinishSpan(span, &err)
	return s.getUserBy(ctx, sq.Eq{"id": id})
}

// GetUserByUsername retrieves a user by their username
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)
	return s.getUserBy(ctx, sq.Eq{"username": username})
}

func (s *UserService) getUserBy(ctx context.Context, where sq.Sqlizer) (*models.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build user query")
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.NotFoundf("User not found.")
		}
		return nil, contextutils.WrapError(err, "failed to get user")
	}
	return user, nil
}

// ListUsers returns one page of users ordered by username
func (s *UserService) ListUsers(ctx context.Context, filter UserFilter, page PageRequest) (result0 []models.User, result1 int, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_users",
		observability.AttributePage(page.Page), observability.AttributeSearch(filter.Search))
	defer observability.FinishSpan(span, &err)

	where := sq.And{}
	if filter.Role != "" {
		where = append(where, sq.Eq{"role": filter.Role})
	}
	if filter.Cohort != "" {
		where = append(where, sq.Eq{"cohort": filter.Cohort})
	}
	if search := ilikeAny(filter.Search, "username", "email", "first_name", "last_name"); search != nil {
		where = append(where, search)
	}

	total, err := count(ctx, s.db, "users", where)
	if err != nil {
		return nil, 0, err
	}

	query, args, err := page.apply(psql.Select(userColumns...).From("users").Where(where).OrderBy("username ASC")).ToSql()
	if err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to build user list query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to list users")
	}
	defer func() { _ = rows.Close() }()

	users := []models.User{}
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, 0, contextutils.WrapError(scanErr, "failed to scan user")
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to list users")
	}
	return users, total, nil
}

// UpdateUser applies patch to user id. Users may edit themselves, staff may
// edit anyone, and only admins may change role, cohort or the active flag.
func (s *UserService) UpdateUser(ctx context.Context, actor visibility.Actor, id int64, patch UserPatch) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user",
		observability.AttributeUserID(id), observability.AttributeRole(string(actor.Role)))
	defer observability.FinishSpan(span, &err)

	if actor.ID != id && !actor.Role.IsStaff() {
		return nil, contextutils.Forbiddenf("You do not have permission to perform this action.")
	}
	if (patch.Role != nil || patch.Cohort != nil || patch.IsActive != nil) && actor.Role != models.RoleAdmin {
		return nil, contextutils.Forbiddenf("Only admins can change role, cohort or active status.")
	}

	set := map[string]interface{}{}
	if patch.Email != nil {
		if *patch.Email != "" && !contextutils.IsValidEmail(*patch.Email) {
			return nil, contextutils.Validationf("email", "Enter a valid email address.")
		}
		set["email"] = nullableString(*patch.Email)
	}
	if patch.FirstName != nil {
		set["first_name"] = *patch.FirstName
	}
	if patch.LastName != nil {
		set["last_name"] = *patch.LastName
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return nil, contextutils.Validationf("role", "\"%s\" is not a valid choice.", *patch.Role)
		}
		set["role"] = string(*patch.Role)
	}
	if patch.Cohort != nil {
		set["cohort"] = strings.TrimSpace(*patch.Cohort)
	}
	if patch.IsActive != nil {
		set["is_active"] = *patch.IsActive
	}
	if len(set) == 0 {
		return s.GetUserByID(ctx, id)
	}

	query, args, err := psql.Update("users").SetMap(set).Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).ToSql()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build user update")
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFoundOnNoRows(err, "User not found.")
	}
	return user, nil
}

// DeleteUser removes a user; their issues and comments cascade
func (s *UserService) DeleteUser(ctx context.Context, id int64) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "delete_user", observability.AttributeUserID(id))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.NotFoundf("User not found.")
	}
	s.logger.Info(ctx, "Deleted user", map[string]interface{}{"user_id": id})
	return nil
}

// ChangePassword replaces the password after checking the old one
func (s *UserService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword, confirm string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "change_password", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.PasswordHash.Valid || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(oldPassword)) != nil {
		return contextutils.Validationf("old_password", "Old password is not correct.")
	}
	if err = validatePassword("new_password", newPassword, confirm); err != nil {
		return err
	}
	return s.SetPassword(ctx, userID, newPassword)
}

// SetPassword stores a new password without checking the old one
func (s *UserService) SetPassword(ctx context.Context, userID int64, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "set_password", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if len(newPassword) < MinPasswordLength {
		return contextutils.Validationf("new_password", "This password is too short. It must contain at least %d characters.", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return contextutils.WrapError(err, "failed to hash password")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, string(hash), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.NotFoundf("User not found.")
	}
	return nil
}

// EnsureAdminUserExists creates the configured admin account, or resets its
// password and role if it drifted
func (s *UserService) EnsureAdminUserExists(ctx context.Context, username, password, email string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user_exists", attribute.String("admin.username", username))
	defer observability.FinishSpan(span, &err)

	if username == "" {
		return contextutils.ErrorWithContextf("admin username cannot be empty")
	}
	if password == "" {
		return contextutils.ErrorWithContextf("admin password cannot be empty")
	}

	existing, err := s.GetUserByUsername(ctx, username)
	if err != nil && !contextutils.IsError(err, contextutils.ErrRecordNotFound) {
		return contextutils.WrapError(err, "failed to check if admin user exists")
	}

	if existing == nil {
		_, err = s.CreateUser(ctx, CreateUserInput{
			Username:        username,
			Email:           email,
			Password:        password,
			PasswordConfirm: password,
			Role:            models.RoleAdmin,
		})
		if err != nil {
			return contextutils.WrapError(err, "failed to create admin user")
		}
		s.logger.Info(ctx, "Created admin user", map[string]interface{}{"username": username})
		return nil
	}

	if existing.Role != models.RoleAdmin {
		if _, err = s.db.ExecContext(ctx, `UPDATE users SET role = 'admin' WHERE id = $1`, existing.ID); err != nil {
			return contextutils.WrapError(err, "failed to promote admin user")
		}
	}
	if existing.PasswordHash.Valid && bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash.String), []byte(password)) == nil {
		s.logger.Info(ctx, "Admin user already exists with correct password", map[string]interface{}{"username": username})
		return nil
	}
	if err = s.SetPassword(ctx, existing.ID, password); err != nil {
		return contextutils.WrapError(err, "failed to update admin user password")
	}
	s.logger.Info(ctx, "Updated password for admin user", map[string]interface{}{"username": username})
	return nil
}
