package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aksara/internal/config"
	"aksara/internal/models"
)

var (
	ErrSelfDelete  = errors.New("cannot delete your own account")
	ErrInvalidRole = errors.New("role must be ADMIN or USER")
)

// Statistics counts non-deleted users by role and activity.
func (s *Service) Statistics(ctx context.Context) (*models.Statistics, error) {
	var stats models.Statistics
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN role = 'ADMIN' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN role = 'USER' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0)
		 FROM users WHERE is_deleted = 0`,
	).Scan(&stats.TotalUsers, &stats.AdminUsers, &stats.RegularUsers, &stats.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("user statistics: %w", err)
	}
	return &stats, nil
}

// ListUsers returns every non-deleted user, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_deleted = 0 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CreateUser creates an account with an explicit role and activity flag.
func (s *Service) CreateUser(ctx context.Context, req models.AdminUserRequest) (*models.User, error) {
	role := models.RoleUser
	if req.Role != "" {
		if !req.Role.Valid() {
			return nil, ErrInvalidRole
		}
		role = req.Role
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return s.createUser(ctx, RegisterInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		Role:        role,
		Active:      active,
	})
}

// UpdateUser applies the non-empty fields of req to the account.
func (s *Service) UpdateUser(ctx context.Context, id string, req models.AdminUserRequest) (*models.User, error) {
	if req.Role != "" && !req.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if _, err := s.UpdateProfile(ctx, id, ProfileInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	}); err != nil {
		return nil, err
	}
	if req.Password != "" {
		if err := s.setPassword(ctx, id, req.Password); err != nil {
			return nil, err
		}
	}
	if req.Role != "" {
		if _, err := s.SetRole(ctx, id, req.Role); err != nil {
			return nil, err
		}
	}
	if req.IsActive != nil {
		if _, err := s.SetActive(ctx, id, *req.IsActive); err != nil {
			return nil, err
		}
	}
	return s.GetUser(ctx, id)
}

// SetActive enables or disables an account.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	return s.updateColumn(ctx, id, "is_active", active)
}

// SetRole changes the role of an account.
func (s *Service) SetRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.updateColumn(ctx, id, "role", string(role))
}

// DeleteUser soft-deletes an account. Admins cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfDelete
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_deleted = 1, is_active = 0, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// EnsureAdmin creates the seed administrator unless an admin already exists.
func (s *Service) EnsureAdmin(ctx context.Context, seed config.AdminSeed) (*models.User, bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = 'ADMIN' AND is_deleted = 0`,
	).Scan(&count); err != nil {
		return nil, false, fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return nil, false, nil
	}
	if strings.TrimSpace(seed.Username) == "" {
		seed.Username = "admin"
	}
	if seed.Password == "" {
		seed.Password = "admin123"
	}
	if seed.Email == "" {
		seed.Email = "admin@aksara.ai"
	}
	if seed.DisplayName == "" {
		seed.DisplayName = "Administrator"
	}
	user, err := s.createUser(ctx, RegisterInput{
		Username:    seed.Username,
		DisplayName: seed.DisplayName,
		Email:       seed.Email,
		Password:    seed.Password,
		Role:        models.RoleAdmin,
		Active:      true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("seed admin: %w", err)
	}
	return user, true, nil
}

// updateColumn sets one whitelisted column on a non-deleted user and returns the fresh row.
func (s *Service) updateColumn(ctx context.Context, id, column string, value any) (*models.User, error) {
	switch column {
	case "is_active", "role":
	default:
		return nil, fmt.Errorf("column %s is not updatable", column)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}
