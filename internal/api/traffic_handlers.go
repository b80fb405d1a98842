package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/trafficpeek/internal/resolver"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

const maxBatchBodyBytes = 64 << 10

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Domain  string `json:"domain"`
	Message string `json:"message"`
}

type batchRequest struct {
	Domains []string `json:"domains"`
	Date    string   `json:"date"`
}

type batchResponse struct {
	Results []any `json:"results"`
}

// getTraffic handles GET /api/traffic?domain=&date=.
func (s *Server) getTraffic(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ref, err := parseDate(query.Get("date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_date", Domain: query.Get("domain"), Message: err.Error()})
		return
	}

	rec, err := s.resolver.Resolve(r.Context(), resolver.Request{
		Domain:        query.Get("domain"),
		Credential:    r.Header.Get(CredentialHeader),
		ReferenceDate: ref,
	})
	if err != nil {
		status, body := s.toErrorBody(err, query.Get("domain"))
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// postBatch handles POST /api/traffic/batch. Each entry of the response is
// either a record or an error object, in request order.
func (s *Server) postBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: "invalid JSON"})
		return
	}
	if len(req.Domains) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: "domains required"})
		return
	}
	if len(req.Domains) > s.opts.BatchMax {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "invalid_request",
			Message: fmt.Sprintf("at most %d domains per batch", s.opts.BatchMax),
		})
		return
	}
	ref, err := parseDate(req.Date)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_date", Message: err.Error()})
		return
	}

	credential := r.Header.Get(CredentialHeader)
	reqs := make([]resolver.Request, len(req.Domains))
	for i, domain := range req.Domains {
		reqs[i] = resolver.Request{Domain: domain, Credential: credential, ReferenceDate: ref}
	}

	results := s.resolver.ResolveMany(r.Context(), reqs)
	out := batchResponse{Results: make([]any, len(results))}
	for i, res := range results {
		if res.Err != nil {
			_, body := s.toErrorBody(res.Err, req.Domains[i])
			out.Results[i] = body
			continue
		}
		out.Results[i] = res.Record
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) toErrorBody(err error, raw string) (int, errorBody) {
	body := errorBody{Domain: raw, Message: err.Error()}
	var domainErr *traffic.DomainError
	if errors.As(err, &domainErr) {
		body.Domain = domainErr.Domain
		if domainErr.Message != "" {
			body.Message = domainErr.Message
		}
	}
	switch {
	case errors.Is(err, traffic.ErrUnsupportedScheme):
		body.Error = "unsupported_scheme"
		return http.StatusBadRequest, body
	case errors.Is(err, traffic.ErrInvalidDomain):
		body.Error = "invalid_domain"
		return http.StatusBadRequest, body
	case errors.Is(err, traffic.ErrNotFound):
		body.Error = "not_found"
		return http.StatusNotFound, body
	default:
		s.logger.Error("resolution failed", zap.String("domain", raw), zap.Error(err))
		body.Error = "internal"
		body.Message = "internal server error"
		return http.StatusInternalServerError, body
	}
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD")
	}
	return t, nil
}
