package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Identity is the read-only view of a user that the session manager consumes.
// It carries just enough state to decide whether sessions may be issued.
type Identity struct {
	ID          string     `json:"id"`
	Active      bool       `json:"active"`
	Locked      bool       `json:"locked"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// LockedAt reports whether the identity is locked out at the given instant.
// A lockout with an expiry in the past no longer counts.
func (i Identity) LockedAt(now time.Time) bool {
	if !i.Locked {
		return false
	}
	if i.LockedUntil != nil && now.After(*i.LockedUntil) {
		return false
	}
	return true
}

type User struct {
	ID           string     `json:"id,omitempty"`
	Email        string     `json:"email,omitempty"`
	Username     string     `json:"username,omitempty"`
	PasswordHash string     `json:"-"` // Hashed version of the user's password - never serialize
	Active       bool       `json:"active,omitempty"`
	Locked       bool       `json:"locked,omitempty"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
	DateJoined   time.Time  `json:"date_joined,omitempty"`
	LastLogin    time.Time  `json:"last_login,omitempty"`
}

// Identity returns the session-facing view of the user.
func (u *User) Identity() Identity {
	return Identity{
		ID:          u.ID,
		Active:      u.Active,
		Locked:      u.Locked,
		LockedUntil: u.LockedUntil,
	}
}

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a plaintext password with the stored hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
