package store

import (
	"errors"
	"testing"

	"github.com/gomapp/trialfield/internal/schema"
)

func TestCreateAndActivateUser(t *testing.T) {
	db := setupTestDB(t)

	profile, err := db.CreateAndActivateUser("Alice Fieldworker", "alice@example.com", "field_42")
	if err != nil {
		t.Fatalf("CreateAndActivateUser failed: %v", err)
	}
	if profile.UserUUID == "" {
		t.Fatal("profile has no uuid")
	}

	active, err := db.ActiveUser()
	if err != nil {
		t.Fatalf("ActiveUser failed: %v", err)
	}
	if active.UserUUID != profile.UserUUID {
		t.Errorf("active user = %s, want %s", active.UserUUID, profile.UserUUID)
	}
	if active.Username != "field_42" {
		t.Errorf("username = %q, want %q", active.Username, "field_42")
	}
}

func TestCreateAndActivateUser_Validation(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		name     string
		userName string
		email    string
		username string
	}{
		{"username too short", "Alice", "", "ab"},
		{"username too long", "Alice", "", "this_is_way_too_long_for_the_limit_xx"},
		{"username with space", "Alice", "", "bad name"},
		{"empty name", "", "", "field_42"},
		{"bad email", "Alice", "nope", "field_42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.CreateAndActivateUser(tt.userName, tt.email, tt.username)
			if !errors.Is(err, schema.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestActiveUser_NoneSet(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.ActiveUser()
	if !errors.Is(err, ErrNoActiveUser) {
		t.Errorf("error = %v, want ErrNoActiveUser", err)
	}

	_, err = db.ActiveUserUUID()
	if !errors.Is(err, ErrNoActiveUser) {
		t.Errorf("error = %v, want ErrNoActiveUser", err)
	}
}

func TestSetActiveUser_Switch(t *testing.T) {
	db := setupTestDB(t)

	first, err := db.CreateAndActivateUser("Alice Fieldworker", "", "field_42")
	if err != nil {
		t.Fatalf("onboarding failed: %v", err)
	}
	second, err := db.CreateAndActivateUser("Bob Surveyor", "", "survey_7")
	if err != nil {
		t.Fatalf("onboarding failed: %v", err)
	}

	// Most recent onboarding is active; switch back explicitly.
	active, _ := db.ActiveUser()
	if active.UserUUID != second.UserUUID {
		t.Fatalf("active = %s, want %s", active.UserUUID, second.UserUUID)
	}

	if err := db.SetActiveUser(first.UserUUID); err != nil {
		t.Fatalf("SetActiveUser failed: %v", err)
	}
	active, _ = db.ActiveUser()
	if active.UserUUID != first.UserUUID {
		t.Errorf("active = %s, want %s", active.UserUUID, first.UserUUID)
	}

	// Activating the same profile twice is idempotent.
	if err := db.SetActiveUser(first.UserUUID); err != nil {
		t.Errorf("repeated SetActiveUser failed: %v", err)
	}
}

func TestSetActiveUser_Unknown(t *testing.T) {
	db := setupTestDB(t)

	err := db.SetActiveUser("no-such-user")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListUsers_NewestFirst(t *testing.T) {
	db := setupTestDB(t)

	users, err := db.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("fresh store has %d users, want 0", len(users))
	}

	if _, err := db.CreateAndActivateUser("Alice Fieldworker", "", "field_42"); err != nil {
		t.Fatalf("onboarding failed: %v", err)
	}
	if _, err := db.CreateAndActivateUser("Bob Surveyor", "", "survey_7"); err != nil {
		t.Fatalf("onboarding failed: %v", err)
	}

	users, err = db.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
}
