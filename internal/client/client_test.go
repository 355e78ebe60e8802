package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ivoronin/attachmentscan/internal/ratelimit"
	"github.com/ivoronin/attachmentscan/internal/scanerr"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:     srv.URL,
		Credentials: Credentials{Token: "test-token"},
		VerifySSL:   true,
		WorkerCount: 4,
	}, ratelimit.New(0), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCountUsesPageSizeZero(t *testing.T) {
	var gotMaxResults string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMaxResults = r.URL.Query().Get("maxResults")
		fmt.Fprint(w, `{"issues":[],"total":42}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	n, err := c.Count(context.Background(), "project = X")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Errorf("Count = %d, want 42", n)
	}
	if gotMaxResults != "0" {
		t.Errorf("maxResults = %q, want 0", gotMaxResults)
	}
}

func TestSearchRequestsDefaultFields(t *testing.T) {
	var gotFields string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFields = r.URL.Query().Get("fields")
		fmt.Fprint(w, `{"issues":[{"key":"P-1","fields":{}}],"total":1}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	page, err := c.Search(context.Background(), "", 0, 100, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Issues) != 1 || page.Issues[0].Key != "P-1" {
		t.Errorf("unexpected page: %+v", page)
	}
	for _, f := range DefaultFields {
		if !strings.Contains(gotFields, f) {
			t.Errorf("fields %q missing %q", gotFields, f)
		}
	}
}

func Test401FailsFastAsAuthentication(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Count(context.Background(), "")
	if !scanerr.Is(err, scanerr.KindAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no retries on 401, got %d calls", calls.Load())
	}
}

func Test403IsPermission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Count(context.Background(), "")
	if !scanerr.Is(err, scanerr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func Test429IsRateLimitedWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Count(context.Background(), "")
	if !scanerr.Is(err, scanerr.KindRateLimited) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no silent retry on 429, got %d calls", calls.Load())
	}
}

func Test5xxRetriedThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(Config{
		BaseURL:     srv.URL,
		Credentials: Credentials{Token: "t"},
		VerifySSL:   true,
		WorkerCount: 2,
	}, ratelimit.New(0), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Count(context.Background(), "")
	if !scanerr.Is(err, scanerr.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if calls.Load() < 2 {
		t.Errorf("expected retries on 5xx, got %d calls", calls.Load())
	}
}

func TestDownloadStreams(t *testing.T) {
	body := strings.Repeat("x", 1<<16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	rc, err := c.Download(context.Background(), srv.URL+"/attachments/1", 5*time.Second)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()

	buf := make([]byte, len(body))
	total := 0
	for total < len(body) {
		n, err := rc.Read(buf[total:])
		total += n
		if err != nil {
			break
		}
	}
	if total != len(body) {
		t.Errorf("read %d bytes, want %d", total, len(body))
	}
}

func TestExactlyOneCredentialForm(t *testing.T) {
	_, err := New(Config{BaseURL: "http://example.com"}, ratelimit.New(0), zap.NewNop().Sugar())
	if err == nil {
		t.Fatal("expected error when no credentials configured")
	}

	_, err = New(Config{
		BaseURL: "http://example.com",
		Credentials: Credentials{
			Token:    "t",
			Username: "u",
		},
	}, ratelimit.New(0), zap.NewNop().Sugar())
	if err == nil {
		t.Fatal("expected error when both credential forms configured")
	}
}
