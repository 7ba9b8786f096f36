package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func allowAll(string) error { return nil }

func testClient(attempts int) *Client {
	return New(Config{
		Timeout:      2 * time.Second,
		RetryDelay:   5 * time.Millisecond,
		Attempts:     attempts,
		URLValidator: allowAll,
	})
}

// WHAT: Tests that transient 5xx responses are retried and a later success
// returns its body.
// WHY: The upstream trackers flap; a single 500 must not surface to users
// when the next attempt would have worked.
func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testClient(3).Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

// WHAT: Tests that a 4xx fails immediately with ErrServiceUnavailable.
// WHY: Client errors are deterministic; retrying them burns the retry budget
// and delays the user for nothing.
func TestDoClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(3).Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

// WHAT: Tests that exhausting all attempts yields ErrUnreachable.
// WHY: Callers map this sentinel to the fixed user-facing outage message.
func TestDoExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(3).Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

// WHAT: Tests that connection failures are retried then reported unreachable.
// WHY: A dead host is the primary outage mode the retry loop exists for.
func TestDoConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := srv.URL
	srv.Close()

	_, err := testClient(2).Do(context.Background(), http.MethodGet, dead, nil, nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

// WHAT: Tests form body, query parameters, and User-Agent propagation.
// WHY: The tracker search endpoint keys on exact form fields; silently
// dropping them would return empty result pages, not errors.
func TestDoSendsFormAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.URL.Query().Get("plate"); got != "ABC123" {
			t.Errorf("query plate = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostFormValue("search"); got != "1" {
			t.Errorf("form search = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got == "" {
			t.Error("missing User-Agent")
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	form := url.Values{"search": {"1"}}
	query := url.Values{"plate": {"ABC123"}}
	if _, err := testClient(1).Do(context.Background(), http.MethodPost, srv.URL, form, query); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

// WHAT: Tests that a rejected URL is ErrUnexpected without any request.
// WHY: SSRF blocking must act before the transport, and its failure mode is
// a local fault, not an upstream outage.
func TestDoBlockedURL(t *testing.T) {
	c := New(Config{URLValidator: func(string) error { return errors.New("blocked") }})
	_, err := c.Do(context.Background(), http.MethodGet, "http://169.254.169.254/", nil, nil)
	if !errors.Is(err, ErrUnexpected) {
		t.Fatalf("err = %v, want ErrUnexpected", err)
	}
}

// WHAT: Tests that a cancelled context stops the retry loop.
// WHY: Callers time-box lookups; cancellation must not sit through the
// remaining retry delays.
func TestDoContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(Config{RetryDelay: time.Hour, Attempts: 3, URLValidator: allowAll})
	start := time.Now()
	_, err := c.Do(ctx, http.MethodGet, srv.URL, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("cancelled Do waited through retry delay")
	}
}
