package assistant

import (
	"context"
	"errors"
	"testing"

	"aksara/internal/config"
	"aksara/internal/models"
)

func TestEnsureAdminIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	admin, created, err := svc.EnsureAdmin(ctx, config.AdminSeed{})
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if !created || admin.Username != "admin" || admin.Role != models.RoleAdmin {
		t.Fatalf("unexpected seed result: created=%v admin=%+v", created, admin)
	}
	if _, err := svc.Login(ctx, "admin", "admin123"); err != nil {
		t.Fatalf("seeded admin cannot log in: %v", err)
	}
	if _, created, err := svc.EnsureAdmin(ctx, config.AdminSeed{}); err != nil || created {
		t.Fatalf("second seed should be a no-op: created=%v err=%v", created, err)
	}
}

func TestAdminOperations(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	admin, _, err := svc.EnsureAdmin(ctx, config.AdminSeed{})
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	inactive := false
	user, err := svc.CreateUser(ctx, models.AdminUserRequest{
		Username: "gina",
		Email:    "gina@example.com",
		Password: "password1",
		IsActive: &inactive,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.IsActive || user.Role != models.RoleUser {
		t.Fatalf("unexpected created user: %+v", user)
	}

	stats, err := svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalUsers != 2 || stats.AdminUsers != 1 || stats.RegularUsers != 1 || stats.ActiveUsers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if user, err = svc.SetActive(ctx, user.ID, true); err != nil || !user.IsActive {
		t.Fatalf("set active: %+v err=%v", user, err)
	}
	if user, err = svc.SetRole(ctx, user.ID, models.RoleAdmin); err != nil || user.Role != models.RoleAdmin {
		t.Fatalf("set role: %+v err=%v", user, err)
	}
	if _, err := svc.SetRole(ctx, user.ID, "ROOT"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}

	updated, err := svc.UpdateUser(ctx, user.ID, models.AdminUserRequest{DisplayName: "Gina G", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if updated.DisplayName != "Gina G" || updated.Role != models.RoleUser || updated.Username != "gina" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	if err := svc.DeleteUser(ctx, admin.ID, admin.ID); !errors.Is(err, ErrSelfDelete) {
		t.Fatalf("expected self delete error, got %v", err)
	}
	if err := svc.DeleteUser(ctx, admin.ID, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := svc.DeleteUser(ctx, admin.ID, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].ID != admin.ID {
		t.Fatalf("deleted user still listed: %+v", users)
	}
	if _, err := svc.Login(ctx, "gina", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("deleted user should not log in, got %v", err)
	}
}
