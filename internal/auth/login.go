package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrUnauthorized means the backend rejected the login or verification.
var ErrUnauthorized = errors.New("unauthorized")

const maxAuthBodyBytes = 1 << 20

// Client talks to the backend's passwordless auth endpoints.
type Client struct {
	log  *slog.Logger
	base string
	http *http.Client
}

// NewClient constructs an auth client against the given base URL.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		log:  log,
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

// authResponse is the backend's AuthResponse shape.
type authResponse struct {
	AccessToken         string `json:"access_token"`
	UserID              string `json:"user_id"`
	UserEmail           string `json:"user_email"`
	IsVerified          bool   `json:"is_verified"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

// Login requests a login for the given email and returns the issued
// credentials.
func (c *Client) Login(ctx context.Context, email string) (Credentials, error) {
	return c.post(ctx, "/auth/login", map[string]string{"email": email})
}

// Verify exchanges an email + one-time code for credentials.
func (c *Client) Verify(ctx context.Context, email, otp string) (Credentials, error) {
	return c.post(ctx, "/auth/verify", map[string]string{"email": email, "otp": otp})
}

func (c *Client) post(ctx context.Context, path string, body map[string]string) (Credentials, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return Credentials{}, fmt.Errorf("auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Credentials{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("auth request: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBodyBytes))
	if err != nil {
		return Credentials{}, fmt.Errorf("auth response: %w", err)
	}

	ar, err := decodeAuthResponse(data)
	if err != nil {
		return Credentials{}, err
	}
	if ar.AccessToken == "" || ar.UserID == "" {
		return Credentials{}, errors.New("auth response: missing token or user id")
	}

	c.log.Info("auth.login.ok", "user_id", ar.UserID)

	return Credentials{
		Token: ar.AccessToken,
		User: User{
			UserID:              ar.UserID,
			UserEmail:           ar.UserEmail,
			IsVerified:          ar.IsVerified,
			OnboardingCompleted: ar.OnboardingCompleted,
		},
	}, nil
}

// decodeAuthResponse accepts both the bare AuthResponse body and the
// {"data": {...}} envelope the backend wraps responses in.
func decodeAuthResponse(data []byte) (authResponse, error) {
	var envelope struct {
		Data *authResponse `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Data != nil && envelope.Data.AccessToken != "" {
		return *envelope.Data, nil
	}

	var ar authResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return authResponse{}, fmt.Errorf("auth response decode: %w", err)
	}
	return ar, nil
}
