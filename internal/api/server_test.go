package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trafficpeek/internal/resolver"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

type stubResolver struct {
	mu    sync.Mutex
	reqs  []resolver.Request
	errs  map[string]error
	panic bool
	block bool
}

func (s *stubResolver) Resolve(ctx context.Context, req resolver.Request) (traffic.Record, error) {
	if s.panic {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return traffic.Record{}, ctx.Err()
	}
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if err, ok := s.errs[req.Domain]; ok {
		return traffic.Record{}, err
	}
	return traffic.Assemble(req.Domain, traffic.Metrics{GlobalRank: traffic.Ptr(10)}, nil, traffic.SourceRankList), nil
}

func (s *stubResolver) ResolveMany(ctx context.Context, reqs []resolver.Request) []resolver.Result {
	out := make([]resolver.Result, len(reqs))
	for i, req := range reqs {
		rec, err := s.Resolve(ctx, req)
		out[i] = resolver.Result{Record: rec, Err: err}
	}
	return out
}

func newTestServer(res Resolver, ready ReadyFunc) *Server {
	return NewServer(res, ready, Options{RequestTimeout: time.Second, BatchMax: 3}, nil)
}

func TestGetTraffic(t *testing.T) {
	t.Parallel()

	res := &stubResolver{}
	srv := newTestServer(res, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/traffic?domain=example.com&date=2024-06-15", nil)
	req.Header.Set(CredentialHeader, "secret")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var rec traffic.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "example.com", rec.Domain)
	require.NotNil(t, rec.GlobalRank)
	assert.Equal(t, 10, *rec.GlobalRank)

	require.Len(t, res.reqs, 1)
	assert.Equal(t, "secret", res.reqs[0].Credential)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), res.reqs[0].ReferenceDate)
}

func TestGetTrafficErrors(t *testing.T) {
	t.Parallel()

	res := &stubResolver{errs: map[string]error{
		"bad":         &traffic.DomainError{Err: traffic.ErrInvalidDomain, Domain: "bad", Message: "not a domain"},
		"ftp://x.com": &traffic.DomainError{Err: traffic.ErrUnsupportedScheme, Domain: "ftp://x.com"},
		"missing.com": &traffic.DomainError{Err: traffic.ErrNotFound, Domain: "missing.com", Message: "supply an API key"},
		"explode.com": errors.New("database on fire"),
	}}
	srv := newTestServer(res, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
	}{
		{name: "invalid domain", query: "domain=bad", wantStatus: http.StatusBadRequest, wantCode: "invalid_domain"},
		{name: "unsupported scheme", query: "domain=ftp://x.com", wantStatus: http.StatusBadRequest, wantCode: "unsupported_scheme"},
		{name: "not found", query: "domain=missing.com", wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "internal", query: "domain=explode.com", wantStatus: http.StatusInternalServerError, wantCode: "internal"},
		{name: "bad date", query: "domain=example.com&date=06/15/2024", wantStatus: http.StatusBadRequest, wantCode: "invalid_date"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/traffic?"+tc.query, nil))

			require.Equal(t, tc.wantStatus, rr.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestErrorBodyAlwaysCarriesDomain(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubResolver{errs: map[string]error{
		"": &traffic.DomainError{Err: traffic.ErrInvalidDomain, Domain: "", Message: "a domain or URL is required"},
	}}, nil)

	tests := []struct {
		name       string
		target     string
		wantCode   string
		wantDomain string
	}{
		{name: "missing domain", target: "/api/traffic", wantCode: "invalid_domain", wantDomain: ""},
		{name: "empty domain", target: "/api/traffic?domain=", wantCode: "invalid_domain", wantDomain: ""},
		{name: "bad date", target: "/api/traffic?domain=x.com&date=bad", wantCode: "invalid_date", wantDomain: "x.com"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.target, nil))

			require.Equal(t, http.StatusBadRequest, rr.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body["error"])
			require.Contains(t, body, "domain")
			assert.Equal(t, tc.wantDomain, body["domain"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestRequestTimeoutReturnsJSONErrorBody(t *testing.T) {
	t.Parallel()

	srv := NewServer(&stubResolver{block: true}, nil, Options{RequestTimeout: 20 * time.Millisecond}, nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/traffic?domain=slow.com", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, errorBody{Error: "timeout", Domain: "slow.com", Message: "request timed out"}, body)
}

func TestGetTrafficInternalErrorHidesDetail(t *testing.T) {
	t.Parallel()

	res := &stubResolver{errs: map[string]error{"explode.com": errors.New("database on fire")}}
	rr := httptest.NewRecorder()
	newTestServer(res, nil).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/traffic?domain=explode.com", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "database on fire")
}

func TestPostBatch(t *testing.T) {
	t.Parallel()

	res := &stubResolver{errs: map[string]error{
		"bad": &traffic.DomainError{Err: traffic.ErrInvalidDomain, Domain: "bad"},
	}}
	srv := newTestServer(res, nil)

	body := `{"domains":["a.com","bad","b.com"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/traffic/batch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CredentialHeader, "key")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "a.com", resp.Results[0]["domain"])
	assert.Equal(t, "invalid_domain", resp.Results[1]["error"])
	assert.Equal(t, "b.com", resp.Results[2]["domain"])

	for _, r := range res.reqs {
		assert.Equal(t, "key", r.Credential)
	}
}

func TestPostBatchValidation(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubResolver{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"domains":`},
		{name: "empty", body: `{"domains":[]}`},
		{name: "too many", body: `{"domains":["a.com","b.com","c.com","d.com"]}`},
		{name: "bad date", body: `{"domains":["a.com"],"date":"yesterday"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/traffic/batch", bytes.NewBufferString(tc.body))
			srv.Handler().ServeHTTP(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	newTestServer(&stubResolver{}, nil).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	ready := func(context.Context) error { return nil }
	newTestServer(&stubResolver{}, ready).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	notReady := func(context.Context) error { return errors.New("redis down") }
	newTestServer(&stubResolver{}, notReady).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "redis down")
}

func TestRequestIDPropagates(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubResolver{}, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubResolver{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/traffic", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", CredentialHeader)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rr.Header().Get("Access-Control-Allow-Headers")), strings.ToLower(CredentialHeader))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubResolver{panic: true}, nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/traffic?domain=example.com", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
