package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"aksara/internal/auth"
	"aksara/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveUser       = errors.New("account is inactive")
	ErrUsernameRequired   = errors.New("username is required")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
)

var validate = validator.New()

// Service handles users, conversations and admin operations on top of SQL.
type Service struct {
	db *sql.DB
}

// NewService builds a new assistant service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
	Role        models.Role
	Active      bool
}

const userColumns = `id, username, display_name, email, password_hash, role, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// RegisterUser creates an active USER account.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Role = models.RoleUser
	in.Active = true
	return s.createUser(ctx, in)
}

func (s *Service) createUser(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		in.Role = models.RoleUser
	}
	if err := s.checkUnique(ctx, "", username, email); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		Email:        email,
		Role:         in.Role,
		IsActive:     in.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
		PasswordHash: hash,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, display_name, email, password_hash, role, is_active, is_deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		user.ID, user.Username, user.DisplayName, user.Email, user.PasswordHash, string(user.Role), user.IsActive, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login validates credentials and returns the user profile.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND is_deleted = 0`, username,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	if auth.NeedsRehash(user.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, user.ID); err == nil {
				user.PasswordHash = hash
			}
		}
	}
	return user, nil
}

// GetUser returns a non-deleted user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND is_deleted = 0`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ProfileInput carries editable profile fields. Empty fields are left unchanged.
type ProfileInput struct {
	Username    string
	DisplayName string
	Email       string
}

// UpdateProfile changes username, display name and email of a user.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" {
		username = user.Username
	}
	if email == "" {
		email = user.Email
	} else if err := validate.Var(email, "email"); err != nil {
		return nil, ErrInvalidEmail
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = user.DisplayName
	}
	if err := s.checkUnique(ctx, id, username, email); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, display_name = ?, email = ?, updated_at = ? WHERE id = ?`,
		username, displayName, email, now, id,
	); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	user.Username, user.DisplayName, user.Email, user.UpdatedAt = username, displayName, email, now
	return user, nil
}

// ChangePassword replaces the password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	return s.setPassword(ctx, id, newPassword)
}

func (s *Service) setPassword(ctx context.Context, id, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// checkUnique reports whether username or email already belong to an account other than id.
func (s *Service) checkUnique(ctx context.Context, id, username, email string) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? AND id <> ?`, username, id,
	).Scan(&count); err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return ErrUsernameTaken
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?`, email, id,
	).Scan(&count); err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return ErrEmailTaken
	}
	return nil
}
