// Package profile edits the signed-in user's account details.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aksara/internal/client"
	"aksara/internal/logging"
	"aksara/internal/models"
	"aksara/internal/ui/authstate"
	"aksara/internal/ui/forms"
)

// MinPasswordLength matches the server's password rule.
const MinPasswordLength = 8

var (
	ErrPasswordMismatch = errors.New("new password and confirmation do not match")
	ErrPasswordTooShort = fmt.Errorf("new password must be at least %d characters", MinPasswordLength)
)

type Editor struct {
	backend client.Backend
	auth    *authstate.Holder
	logger  *zap.Logger
}

func New(backend client.Backend, auth *authstate.Holder, logger *zap.Logger) *Editor {
	return &Editor{backend: backend, auth: auth, logger: logging.OrNop(logger)}
}

// Form returns the profile form filled with the current user.
func (e *Editor) Form() forms.ProfileForm {
	user := e.auth.User()
	if user == nil {
		return forms.ProfileForm{}
	}
	return forms.ProfileForm{Username: user.Username, DisplayName: user.DisplayName, Email: user.Email}
}

func (e *Editor) SaveProfile(ctx context.Context, form forms.ProfileForm) (*models.User, error) {
	form.Username = strings.TrimSpace(form.Username)
	form.DisplayName = strings.TrimSpace(form.DisplayName)
	form.Email = strings.TrimSpace(form.Email)
	if err := forms.Validate(form); err != nil {
		return nil, err
	}
	user := e.auth.User()
	if user == nil {
		return nil, authstate.ErrNotAuthenticated
	}
	updated, err := e.backend.UpdateProfile(ctx, user.ID, models.ProfileUpdate{
		Username:    form.Username,
		DisplayName: form.DisplayName,
		Email:       form.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := e.auth.UpdateUser(updated); err != nil {
		return nil, err
	}
	e.logger.Info("profile updated", zap.String("user_id", updated.ID))
	return e.auth.User(), nil
}

func (e *Editor) ChangePassword(ctx context.Context, form forms.PasswordForm) error {
	if err := forms.Validate(form); err != nil {
		return err
	}
	if form.NewPassword != form.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if len(form.NewPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	user := e.auth.User()
	if user == nil {
		return authstate.ErrNotAuthenticated
	}
	err := e.backend.ChangePassword(ctx, user.ID, models.PasswordUpdate{
		OldPassword: form.OldPassword,
		NewPassword: form.NewPassword,
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}
