package schema

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// usernameRE is the fixed username pattern: 3-32 characters of
	// letters, digits, and underscore.
	usernameRE = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

	// emailRE is a permissive email shape check, not an RFC parser.
	emailRE = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// UserProfile represents one local operator identity.
//
// A profile is created once via onboarding and never deleted. Exactly
// one profile is active at a time; the store tracks which.
type UserProfile struct {
	UserUUID  string    `json:"user_uuid"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the profile for valid field values.
// Email is optional but must look like an email when supplied.
func (u *UserProfile) Validate() error {
	if u.UserUUID == "" {
		return fmt.Errorf("%w: user_uuid is required", ErrValidation)
	}
	if len(strings.TrimSpace(u.Name)) < 2 {
		return fmt.Errorf("%w: name must be at least 2 characters", ErrValidation)
	}
	if !ValidUsername(u.Username) {
		return fmt.Errorf("%w: username must be 3-32 letters, digits, or underscores (got %q)", ErrValidation, u.Username)
	}
	if u.Email != "" && !emailRE.MatchString(u.Email) {
		return fmt.Errorf("%w: malformed email %q", ErrValidation, u.Email)
	}
	return nil
}

// ValidUsername reports whether s matches the fixed username pattern.
func ValidUsername(s string) bool {
	return usernameRE.MatchString(s)
}
