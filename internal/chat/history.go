package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors callers branch on.
var (
	// ErrFetchInFlight means a page request was dropped because one is
	// already pending. The triggering scroll gesture will naturally repeat.
	ErrFetchInFlight = errors.New("history fetch already in flight")

	// ErrUnauthorized means the credential was rejected; the owner should
	// clear stored credentials and re-authenticate.
	ErrUnauthorized = errors.New("unauthorized")
)

// HistoryPage is one page of archival messages, already reversed to
// oldest-first display order.
type HistoryPage struct {
	Records []Message

	// HasMoreHint is true when the page came back full. The caller ANDs it
	// into the monotonic cursor flag.
	HasMoreHint bool
}

// HistoryFetcher retrieves pages of past messages from the archive.
// It is stateless beyond its own in-flight flag: at most one fetch runs at a
// time and a second request while one is pending is dropped.
type HistoryFetcher struct {
	log    *slog.Logger
	base   string
	token  string
	limit  int
	client *http.Client

	inFlight atomic.Bool
}

// NewHistoryFetcher constructs a fetcher against the given base URL
// (e.g. "http://localhost:8000") using a bearer credential.
func NewHistoryFetcher(log *slog.Logger, baseURL, token string, limit int, timeout time.Duration) *HistoryFetcher {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if timeout <= 0 {
		timeout = defaultHistoryTimeout
	}
	return &HistoryFetcher{
		log:    log,
		base:   baseURL,
		token:  token,
		limit:  limit,
		client: &http.Client{Timeout: timeout},
	}
}

// Limit returns the fixed page size.
func (f *HistoryFetcher) Limit() int { return f.limit }

// FetchPage retrieves one page at the given offset.
//
// The archive serves newest-first; records are reversed before being
// returned so callers always see oldest-first display order. Returns
// ErrFetchInFlight when a fetch is already pending.
func (f *HistoryFetcher) FetchPage(ctx context.Context, offset int) (HistoryPage, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		historyFetches.WithLabelValues("dropped").Inc()
		return HistoryPage{}, ErrFetchInFlight
	}
	defer f.inFlight.Store(false)

	reqID := uuid.NewString()

	u, err := url.Parse(f.base)
	if err != nil {
		historyFetches.WithLabelValues("error").Inc()
		return HistoryPage{}, fmt.Errorf("history base url: %w", err)
	}
	u.Path = "/chat/history"
	q := url.Values{}
	q.Set("limit", strconv.Itoa(f.limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		historyFetches.WithLabelValues("error").Inc()
		return HistoryPage{}, fmt.Errorf("history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("X-Request-ID", reqID)

	resp, err := f.client.Do(req)
	if err != nil {
		historyFetches.WithLabelValues("error").Inc()
		f.log.Info("history.fetch.fail", "request_id", reqID, "offset", offset, "err", err)
		return HistoryPage{}, fmt.Errorf("history fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		historyFetches.WithLabelValues("error").Inc()
		f.log.Info("history.fetch.unauthorized", "request_id", reqID)
		return HistoryPage{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		historyFetches.WithLabelValues("error").Inc()
		f.log.Info("history.fetch.fail", "request_id", reqID, "offset", offset, "status", resp.StatusCode)
		return HistoryPage{}, fmt.Errorf("history fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHistoryBodyBytes))
	if err != nil {
		historyFetches.WithLabelValues("error").Inc()
		return HistoryPage{}, fmt.Errorf("history body: %w", err)
	}

	records, err := decodeHistoryBody(body)
	if err != nil {
		historyFetches.WithLabelValues("error").Inc()
		f.log.Info("history.decode.fail", "request_id", reqID, "err", err)
		return HistoryPage{}, err
	}

	page := HistoryPage{
		Records:     make([]Message, 0, len(records)),
		HasMoreHint: len(records) == f.limit,
	}

	// Archive order is newest-first; display order is oldest-first.
	for i := len(records) - 1; i >= 0; i-- {
		msg, err := records[i].toMessage()
		if err != nil {
			historyFetches.WithLabelValues("error").Inc()
			return HistoryPage{}, err
		}
		page.Records = append(page.Records, msg)
	}

	f.log.Debug("history.fetch.ok", "request_id", reqID, "offset", offset, "records", len(page.Records), "has_more_hint", page.HasMoreHint)
	historyFetches.WithLabelValues("ok").Inc()
	return page, nil
}

const maxHistoryBodyBytes = 4 << 20 // 4 MiB

// historyRecord is the archive's wire shape. Older backend revisions used
// "message" where newer ones use "content"; both are accepted.
type historyRecord struct {
	ID        json.Number `json:"id"`
	Role      Role        `json:"role"`
	Message   string      `json:"message"`
	Content   string      `json:"content"`
	CreatedAt string      `json:"created_at"`
}

func (r historyRecord) toMessage() (Message, error) {
	if !r.Role.Valid() {
		return Message{}, fmt.Errorf("history record: unknown role: %q", r.Role)
	}

	content := r.Message
	if content == "" {
		content = r.Content
	}

	return Message{
		ID:        r.ID.String(),
		Role:      r.Role,
		Content:   content,
		CreatedAt: parseHistoryTime(r.CreatedAt),
	}, nil
}

// decodeHistoryBody accepts both the bare-array body and the
// {"data": [...]} envelope the backend wraps responses in.
func decodeHistoryBody(body []byte) ([]historyRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []historyRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("history decode: %w", err)
		}
		return records, nil
	}

	var envelope struct {
		Data []historyRecord `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("history decode: %w", err)
	}
	return envelope.Data, nil
}

// parseHistoryTime tolerates RFC3339 and the backend's naive ISO timestamps.
// A zero time is acceptable: the store never reorders by timestamp.
func parseHistoryTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
