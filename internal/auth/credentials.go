// Package auth handles the client's credential: obtaining it from the
// backend's passwordless login flow and persisting it across runs.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotLoggedIn means no stored credentials exist.
var ErrNotLoggedIn = errors.New("not logged in")

const credentialsFile = "credentials.json"

// User is the identity record returned by the backend.
type User struct {
	UserID              string `json:"user_id"`
	UserEmail           string `json:"user_email"`
	IsVerified          bool   `json:"is_verified"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

// Credentials couples the bearer token with its identity record. Both are
// persisted together and cleared together.
type Credentials struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Load reads stored credentials from dir. Returns ErrNotLoggedIn when none
// exist.
func Load(dir string) (Credentials, error) {
	data, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, ErrNotLoggedIn
		}
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	if c.Token == "" || c.User.UserID == "" {
		return Credentials{}, ErrNotLoggedIn
	}
	return c, nil
}

// Save persists credentials under dir with owner-only permissions.
func Save(dir string, c Credentials) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, credentialsFile), data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Clear removes stored credentials. Clearing when none exist is not an error.
func Clear(dir string) error {
	err := os.Remove(filepath.Join(dir, credentialsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
