package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gomapp/trialfield/internal/schema"
)

// stateActiveUser is the app_state key holding the active profile uuid.
const stateActiveUser = "current_user_uuid"

// CreateUser persists a new operator profile. The profile's uuid and
// creation time are assigned here.
func (db *DB) CreateUser(profile *schema.UserProfile) error {
	return db.CreateUserContext(context.Background(), profile)
}

// CreateUserContext persists a new profile with context support.
func (db *DB) CreateUserContext(ctx context.Context, profile *schema.UserProfile) error {
	profile.UserUUID = uuid.NewString()
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Email = strings.TrimSpace(profile.Email)
	profile.Username = strings.TrimSpace(profile.Username)
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid user profile: %w", err)
	}

	query := `INSERT INTO users (user_uuid, name, email, username, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query,
		profile.UserUUID,
		profile.Name,
		profile.Email,
		profile.Username,
		fmtTime(profile.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetUser retrieves a profile by uuid.
func (db *DB) GetUser(userUUID string) (*schema.UserProfile, error) {
	return db.GetUserContext(context.Background(), userUUID)
}

// GetUserContext retrieves a profile with context support.
func (db *DB) GetUserContext(ctx context.Context, userUUID string) (*schema.UserProfile, error) {
	query := `SELECT user_uuid, name, email, username, created_at FROM users WHERE user_uuid = ?`

	var profile schema.UserProfile
	var createdAt string
	err := db.conn.QueryRowContext(ctx, query, userUUID).Scan(
		&profile.UserUUID,
		&profile.Name,
		&profile.Email,
		&profile.Username,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userUUID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userUUID, err)
	}

	profile.CreatedAt = parseTime(createdAt)
	return &profile, nil
}

// ListUsers returns all profiles, newest first.
func (db *DB) ListUsers() ([]*schema.UserProfile, error) {
	return db.ListUsersContext(context.Background())
}

// ListUsersContext returns all profiles with context support.
func (db *DB) ListUsersContext(ctx context.Context) ([]*schema.UserProfile, error) {
	query := `SELECT user_uuid, name, email, username, created_at FROM users ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*schema.UserProfile
	for rows.Next() {
		var profile schema.UserProfile
		var createdAt string
		if err := rows.Scan(&profile.UserUUID, &profile.Name, &profile.Email, &profile.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		profile.CreatedAt = parseTime(createdAt)
		users = append(users, &profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// SetActiveUser marks the given profile as the one attributed to new
// writes. Idempotent upsert of the singleton app-state row. The profile
// must exist.
func (db *DB) SetActiveUser(userUUID string) error {
	return db.SetActiveUserContext(context.Background(), userUUID)
}

// SetActiveUserContext activates a profile with context support.
func (db *DB) SetActiveUserContext(ctx context.Context, userUUID string) error {
	if _, err := db.GetUserContext(ctx, userUUID); err != nil {
		return err
	}
	return db.setStateContext(ctx, stateActiveUser, userUUID)
}

// ActiveUserUUID returns the uuid of the active profile.
func (db *DB) ActiveUserUUID() (string, error) {
	return db.ActiveUserUUIDContext(context.Background())
}

// ActiveUserUUIDContext returns the active profile uuid with context support.
func (db *DB) ActiveUserUUIDContext(ctx context.Context) (string, error) {
	value, err := db.getStateContext(ctx, stateActiveUser)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", ErrNoActiveUser
	}
	return value, nil
}

// ActiveUser returns the full active profile.
//
// Returns ErrNoActiveUser both when no profile was ever activated and
// when the app-state row points at a profile that no longer resolves.
func (db *DB) ActiveUser() (*schema.UserProfile, error) {
	return db.ActiveUserContext(context.Background())
}

// ActiveUserContext returns the active profile with context support.
func (db *DB) ActiveUserContext(ctx context.Context) (*schema.UserProfile, error) {
	userUUID, err := db.ActiveUserUUIDContext(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := db.GetUserContext(ctx, userUUID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("active profile %s is gone: %w", userUUID, ErrNoActiveUser)
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateAndActivateUser is the onboarding path: validate, persist, and
// activate a new profile in one call.
func (db *DB) CreateAndActivateUser(name, email, username string) (*schema.UserProfile, error) {
	return db.CreateAndActivateUserContext(context.Background(), name, email, username)
}

// CreateAndActivateUserContext onboards a profile with context support.
func (db *DB) CreateAndActivateUserContext(ctx context.Context, name, email, username string) (*schema.UserProfile, error) {
	profile := &schema.UserProfile{
		Name:     name,
		Email:    email,
		Username: username,
	}

	if err := db.CreateUserContext(ctx, profile); err != nil {
		return nil, err
	}

	if err := db.SetActiveUserContext(ctx, profile.UserUUID); err != nil {
		return nil, err
	}

	return profile, nil
}

// getStateContext reads a value from the singleton app_state table.
// Missing keys read as "".
func (db *DB) getStateContext(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ? LIMIT 1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read app state %q: %w", key, err)
	}
	return value.String, nil
}

// setStateContext upserts a value into the singleton app_state table.
func (db *DB) setStateContext(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO app_state(key, value) VALUES(?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := db.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write app state %q: %w", key, err)
	}
	return nil
}
