package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type countingTokens struct {
	tokens []string
	calls  int32
}

func (c *countingTokens) Token(context.Context) (string, error) {
	n := atomic.AddInt32(&c.calls, 1)
	idx := int(n) - 1
	if idx >= len(c.tokens) {
		idx = len(c.tokens) - 1
	}
	return c.tokens[idx], nil
}

type sleepRecorder struct{ delays []time.Duration }

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(tokens TokenSource, retries int, rec *sleepRecorder) *Client {
	return NewClient(tokens, ClientOptions{
		MaxRetries:        retries,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		ValidateResponses: true,
		Sleep:             rec.sleep,
	})
}

func TestExecuteSucceedsOnLastAttempt(t *testing.T) {
	const retries = 3
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer header, got %q", r.Header.Get("Authorization"))
		}
		if atomic.AddInt32(&hits, 1) < retries {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"docs":[]}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	raw, err := newTestClient(StaticTokenSource("tok"), retries, rec).Execute(context.Background(), srv.URL, map[string]int{"limit": 1})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["docs"]; !ok {
		t.Fatalf("expected parsed payload, got %s", raw)
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Fatalf("expected exponential delays [1s 2s], got %v", rec.delays)
	}
}

func TestExecuteFailsWithRequestErrorAfterRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	_, err := newTestClient(StaticTokenSource("tok"), 4, rec).Execute(context.Background(), srv.URL, nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Attempts != 4 || reqErr.Status != http.StatusBadGateway || reqErr.URL != srv.URL {
		t.Fatalf("unexpected request error %+v", reqErr)
	}
	if hits != 4 {
		t.Fatalf("expected 4 requests, got %d", hits)
	}
	if len(rec.delays) != 3 {
		t.Fatalf("expected no delay after final attempt, got %v", rec.delays)
	}
}

func TestExecuteReloadsTokenOnceOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	tokens := &countingTokens{tokens: []string{"stale", "fresh"}}
	rec := &sleepRecorder{}
	if _, err := newTestClient(tokens, 1, rec).Execute(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("expected success after reload, got %v", err)
	}
	if tokens.calls != 2 {
		t.Fatalf("expected token to be loaded twice, got %d", tokens.calls)
	}
	if len(rec.delays) != 0 {
		t.Fatalf("token reload must not back off, got %v", rec.delays)
	}
}

func TestExecuteTreatsSecond401AsTerminal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(StaticTokenSource("tok"), 5, &sleepRecorder{}).Execute(context.Background(), srv.URL, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if hits != 2 {
		t.Fatalf("expected exactly one reload retry, got %d requests", hits)
	}
}

func TestExecuteRetriesInvalidStructure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			_, _ = w.Write([]byte(`"just a string"`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	if _, err := newTestClient(StaticTokenSource("tok"), 3, rec).Execute(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(rec.delays) != 1 {
		t.Fatalf("expected one backoff after invalid body, got %v", rec.delays)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	c := NewClient(StaticTokenSource("tok"), ClientOptions{BaseDelay: time.Second, MaxDelay: 5 * time.Second})
	if got := c.backoff(2); got != 4*time.Second {
		t.Fatalf("expected 4s, got %s", got)
	}
	if got := c.backoff(10); got != 5*time.Second {
		t.Fatalf("expected cap of 5s, got %s", got)
	}
}

func TestExpiringJWTIsReloaded(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sign := func(exp time.Time) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}).SignedString([]byte("k"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cases := []struct {
		name      string
		exp       time.Time
		wantLoads int32
	}{
		{name: "long lived", exp: now.Add(time.Hour), wantLoads: 1},
		{name: "inside skew", exp: now.Add(10 * time.Second), wantLoads: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := &countingTokens{tokens: []string{sign(tc.exp)}}
			c := NewClient(tokens, ClientOptions{MaxRetries: 1, Now: func() time.Time { return now }})
			for i := 0; i < 2; i++ {
				if _, err := c.Execute(context.Background(), srv.URL, nil); err != nil {
					t.Fatalf("execute: %v", err)
				}
			}
			if tokens.calls != tc.wantLoads {
				t.Fatalf("expected %d token loads, got %d", tc.wantLoads, tokens.calls)
			}
		})
	}
}
