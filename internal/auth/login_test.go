package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		if err := json.Unmarshal(body, &req); err != nil || req["email"] != "a@example.com" {
			t.Errorf("unexpected request body: %s", body)
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","user_id":"u1","user_email":"a@example.com","is_verified":true,"onboarding_completed":false}`))
	}))
	defer srv.Close()

	c := NewClient(testLogger(), srv.URL, time.Second)

	creds, err := c.Login(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if creds.Token != "tok-1" || creds.User.UserID != "u1" || !creds.User.IsVerified {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestVerifyEnvelopeResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/verify" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"access_token":"tok-2","user_id":"u2","user_email":"b@example.com"}}`))
	}))
	defer srv.Close()

	c := NewClient(testLogger(), srv.URL, time.Second)

	creds, err := c.Verify(context.Background(), "b@example.com", "123456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if creds.Token != "tok-2" || creds.User.UserEmail != "b@example.com" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestLoginErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req["email"] {
		case "rejected@example.com":
			w.WriteHeader(http.StatusUnauthorized)
		case "broken@example.com":
			w.WriteHeader(http.StatusInternalServerError)
		case "empty@example.com":
			_, _ = w.Write([]byte(`{"access_token":"","user_id":""}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	c := NewClient(testLogger(), srv.URL, time.Second)

	if _, err := c.Login(context.Background(), "rejected@example.com"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("rejected: err=%v want ErrUnauthorized", err)
	}
	if _, err := c.Login(context.Background(), "broken@example.com"); err == nil {
		t.Fatal("500: expected error")
	}
	if _, err := c.Login(context.Background(), "empty@example.com"); err == nil {
		t.Fatal("empty token: expected error")
	}
	if _, err := c.Login(context.Background(), "garbage@example.com"); err == nil {
		t.Fatal("bad body: expected error")
	}
}
