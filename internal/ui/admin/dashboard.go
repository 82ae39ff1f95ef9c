// Package admin holds the state of the user management dashboard.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aksara/internal/client"
	"aksara/internal/logging"
	"aksara/internal/models"
)

var ErrUnknownUser = errors.New("user is not in the list")

// Dashboard keeps the statistics and user list. Mutations patch the local
// list with the backend's answer instead of reloading everything.
type Dashboard struct {
	backend client.Backend
	logger  *zap.Logger

	mu    sync.RWMutex
	stats models.Statistics
	users []models.User
}

func New(backend client.Backend, logger *zap.Logger) *Dashboard {
	return &Dashboard{backend: backend, logger: logging.OrNop(logger)}
}

// Load fetches statistics, then the user list.
func (d *Dashboard) Load(ctx context.Context) error {
	stats, err := d.backend.Statistics(ctx)
	if err != nil {
		return fmt.Errorf("load statistics: %w", err)
	}
	users, err := d.backend.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	d.mu.Lock()
	d.stats = *stats
	d.users = users
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) Statistics() models.Statistics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

func (d *Dashboard) Users() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.User(nil), d.users...)
}

func (d *Dashboard) find(id string) (models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, id)
}

// ToggleActive flips the active flag of user id.
func (d *Dashboard) ToggleActive(ctx context.Context, id string) (*models.User, error) {
	current, err := d.find(id)
	if err != nil {
		return nil, err
	}
	updated, err := d.backend.SetUserActive(ctx, id, !current.IsActive)
	if err != nil {
		return nil, fmt.Errorf("toggle active: %w", err)
	}
	d.patch(*updated)
	return updated, nil
}

func (d *Dashboard) ChangeRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if _, err := d.find(id); err != nil {
		return nil, err
	}
	updated, err := d.backend.SetUserRole(ctx, id, role)
	if err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}
	d.patch(*updated)
	return updated, nil
}

// PromoteToggle switches user id between ADMIN and USER.
func (d *Dashboard) PromoteToggle(ctx context.Context, id string) (*models.User, error) {
	current, err := d.find(id)
	if err != nil {
		return nil, err
	}
	role := models.RoleAdmin
	if current.Role == models.RoleAdmin {
		role = models.RoleUser
	}
	return d.ChangeRole(ctx, id, role)
}

func (d *Dashboard) Delete(ctx context.Context, id string) error {
	removed, err := d.find(id)
	if err != nil {
		return err
	}
	if err := d.backend.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	d.mu.Lock()
	for i, u := range d.users {
		if u.ID == id {
			d.users = append(d.users[:i:i], d.users[i+1:]...)
			break
		}
	}
	d.stats.TotalUsers--
	if removed.Role == models.RoleAdmin {
		d.stats.AdminUsers--
	} else {
		d.stats.RegularUsers--
	}
	if removed.IsActive {
		d.stats.ActiveUsers--
	}
	d.mu.Unlock()
	d.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

// patch replaces the user in the list and keeps the counters in step.
func (d *Dashboard) patch(updated models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, u := range d.users {
		if u.ID != updated.ID {
			continue
		}
		if u.IsActive != updated.IsActive {
			if updated.IsActive {
				d.stats.ActiveUsers++
			} else {
				d.stats.ActiveUsers--
			}
		}
		if u.Role != updated.Role {
			if updated.Role == models.RoleAdmin {
				d.stats.AdminUsers++
				d.stats.RegularUsers--
			} else {
				d.stats.AdminUsers--
				d.stats.RegularUsers++
			}
		}
		d.users[i] = updated
		return
	}
}
