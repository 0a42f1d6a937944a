package models_test

import (
	"testing"

	"bitbucket.org/backstitch/garments_backend/models"
)

func TestUserSignupAndLogin(t *testing.T) {
	ctx, actor := setupIntegration(t)

	active := true
	user, err := models.CreateUser(ctx, actor, &models.NewUser{
		Username: "ops",
		Name:     "Ops User",
		Password: "sup3r-secret",
		IsActive: &active,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Password != "" {
		t.Fatalf("returned user must not carry the password")
	}

	stored, err := models.GetUserByUsername(ctx, "ops")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Password == "" || stored.Password == "sup3r-secret" {
		t.Fatalf("password must be stored as a bcrypt hash")
	}

	if _, err := models.Login(ctx, "ops", "wrong-password"); err == nil {
		t.Fatalf("wrong password must not log in")
	}

	info, err := models.Login(ctx, "ops", "sup3r-secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if info.Token == "" {
		t.Fatalf("login must issue a token")
	}
	if info.Role != models.UserRoleStaff {
		t.Fatalf("role defaults to Staff, got %s", info.Role)
	}

	// Duplicate usernames are rejected up front.
	if _, err := models.CreateUser(ctx, actor, &models.NewUser{
		Username: "ops",
		Name:     "Someone Else",
		Password: "another-secret",
		IsActive: &active,
	}); err == nil {
		t.Fatalf("duplicate username must be rejected")
	}
}
