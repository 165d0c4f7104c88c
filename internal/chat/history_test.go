package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newestFirstBody builds the archive's newest-first JSON for ids
// [firstID, firstID+n) where higher ids are newer.
func newestFirstBody(firstID, n int) []byte {
	records := make([]map[string]any, 0, n)
	for id := firstID + n - 1; id >= firstID; id-- {
		records = append(records, map[string]any{
			"id":         id,
			"role":       "user",
			"message":    fmt.Sprintf("m%d", id),
			"created_at": fmt.Sprintf("2025-06-01T12:%02d:00", id%60),
		})
	}
	body, _ := json.Marshal(records)
	return body
}

func TestHistoryFetchPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/history" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization=%q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit=%q want=20", got)
		}

		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = w.Write(newestFirstBody(21, 20))
		case "20":
			// Envelope form with the legacy "content" field name.
			_, _ = w.Write([]byte(`{"data":[
				{"id":20,"role":"assistant","content":"m20","created_at":"2025-06-01T11:20:00Z"},
				{"id":19,"role":"user","content":"m19","created_at":"2025-06-01T11:19:00Z"}
			]}`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	f := NewHistoryFetcher(testLogger(), srv.URL, "tok-1", 20, time.Second)

	page, err := f.FetchPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("fetch page 0: %v", err)
	}
	if len(page.Records) != 20 || !page.HasMoreHint {
		t.Fatalf("page 0: records=%d hint=%v", len(page.Records), page.HasMoreHint)
	}
	// Archive was newest-first; records must come back oldest-first.
	if page.Records[0].ID != "21" || page.Records[19].ID != "40" {
		t.Fatalf("page 0 order: first=%q last=%q", page.Records[0].ID, page.Records[19].ID)
	}

	page, err = f.FetchPage(context.Background(), 20)
	if err != nil {
		t.Fatalf("fetch page 1: %v", err)
	}
	if len(page.Records) != 2 || page.HasMoreHint {
		t.Fatalf("page 1: records=%d hint=%v", len(page.Records), page.HasMoreHint)
	}
	if page.Records[0].ID != "19" || page.Records[0].Content != "m19" {
		t.Fatalf("page 1 decode: %+v", page.Records[0])
	}
}

func TestHistoryFetchSingleFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := NewHistoryFetcher(testLogger(), srv.URL, "tok", 20, 5*time.Second)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.FetchPage(context.Background(), 0)
		firstDone <- err
	}()

	// Wait for the first fetch to claim the in-flight flag.
	deadline := time.Now().Add(2 * time.Second)
	for !f.inFlight.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := f.FetchPage(context.Background(), 20); !errors.Is(err, ErrFetchInFlight) {
		t.Fatalf("second fetch: err=%v want ErrFetchInFlight", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first fetch: %v", err)
	}
}

func TestHistoryFetchErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "401":
			w.WriteHeader(http.StatusUnauthorized)
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	f := NewHistoryFetcher(testLogger(), srv.URL, "tok", 20, time.Second)

	if _, err := f.FetchPage(context.Background(), 401); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("401: err=%v want ErrUnauthorized", err)
	}
	if _, err := f.FetchPage(context.Background(), 500); err == nil {
		t.Fatal("500: expected error")
	}
	if _, err := f.FetchPage(context.Background(), 0); err == nil {
		t.Fatal("bad body: expected error")
	}
}

func TestParseHistoryTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		wantZero bool
	}{
		{in: "2025-06-01T12:00:00Z", wantZero: false},
		{in: "2025-06-01T12:00:00.123456", wantZero: false},
		{in: "2025-06-01T12:00:00", wantZero: false},
		{in: "yesterday", wantZero: true},
		{in: "", wantZero: true},
	}

	for _, tc := range cases {
		got := parseHistoryTime(tc.in)
		if got.IsZero() != tc.wantZero {
			t.Fatalf("parseHistoryTime(%q)=%v wantZero=%v", tc.in, got, tc.wantZero)
		}
	}
}
