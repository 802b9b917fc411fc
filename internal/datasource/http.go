package datasource

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/service"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiPrefix = "/api/v1"

type (
	// Option configures the HTTP source.
	Option func(*HTTP)

	// HTTP implements Source against the session-tracker API.
	HTTP struct {
		baseURL string
		http    *http.Client
		headers http.Header
	}

	// StatusError is a non-2xx API response.
	StatusError struct {
		Method  string
		Path    string
		Code    int
		Message string
	}

	// LoginResult is what Login returns.
	LoginResult struct {
		Token     string      `json:"token"`
		UserID    string      `json:"-"`
		Role      domain.Role `json:"-"`
		TrainerID string      `json:"-"`
	}

	loginResponse struct {
		Token string `json:"token"`
		User  struct {
			ID        string      `json:"id"`
			Role      domain.Role `json:"role"`
			TrainerID *string     `json:"trainerId"`
		} `json:"user"`
	}

	errorBody struct {
		Error string `json:"error"`
	}
)

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
}

func (e *StatusError) StatusCode() int { return e.Code }

// Unwrap maps the status to the lifecycle errors callers branch on.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusConflict:
		return domain.ErrConflict
	case e.Code == http.StatusPreconditionFailed, e.Code == http.StatusUnprocessableEntity:
		return domain.ErrPrecondition
	case e.Code == http.StatusNotFound:
		return domain.ErrSessionNotFound
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden:
		return ErrUnauthorized
	case recovery.TransientStatus(e.Code):
		return recovery.ErrTransient
	case e.Code >= 400 && e.Code < 500:
		return ErrRejected
	}
	return nil
}

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTP) {
		h.http = c
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		if d > 0 {
			h.http = &http.Client{Timeout: d}
		}
	}
}

// WithHeader adds a static header to all outgoing requests.
func WithHeader(name, value string) Option {
	return func(h *HTTP) {
		h.headers.Add(name, value)
	}
}

// WithBearerToken sends the JWT on every request.
func WithBearerToken(token string) Option {
	if token == "" {
		return nil
	}
	return func(h *HTTP) {
		h.headers.Set("Authorization", "Bearer "+token)
	}
}

// NewHTTP constructs a source for the server at baseURL ("http://host:8080").
func NewHTTP(baseURL string, opts ...Option) *HTTP {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.http == nil {
		h.http = &http.Client{Timeout: 10 * time.Second}
	}
	return h
}

var _ Source = (*HTTP)(nil)

func (h *HTTP) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	target := h.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range h.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return recovery.MarkTransient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Method: method, Path: path, Code: resp.StatusCode}
		var eb errorBody
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb) == nil {
			statusErr.Message = eb.Error
		}
		return statusErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// Login exchanges credentials for a token. The source itself is unchanged;
// build a new one WithBearerToken to use the result.
func (h *HTTP) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var resp loginResponse
	in := map[string]string{"email": email, "password": password}
	if err := h.do(ctx, http.MethodPost, "/auth/login", nil, in, &resp); err != nil {
		return nil, err
	}
	res := &LoginResult{Token: resp.Token, UserID: resp.User.ID, Role: resp.User.Role}
	if resp.User.TrainerID != nil {
		res.TrainerID = *resp.User.TrainerID
	}
	return res, nil
}

func (h *HTTP) CreateSession(ctx context.Context, in service.CreateSessionInput) (*domain.Session, error) {
	var s domain.Session
	if err := h.do(ctx, http.MethodPost, "/sessions", nil, in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (h *HTTP) UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error) {
	var s domain.Session
	if err := h.do(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(id), nil, patch, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (h *HTTP) CurrentSession(ctx context.Context) (*domain.Session, error) {
	var s domain.Session
	if err := h.do(ctx, http.MethodGet, "/sessions/current", nil, nil, &s); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (h *HTTP) ListSessions(ctx context.Context, q service.ListQuery) ([]domain.Session, error) {
	query := url.Values{}
	if q.OwnerID != "" {
		query.Set("ownerId", q.OwnerID)
	}
	if q.Status != "" {
		query.Set("status", string(q.Status))
	}
	if q.Role != "" {
		query.Set("role", string(q.Role))
	}
	if q.Range != "" {
		query.Set("range", string(q.Range))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.FormatInt(q.Limit, 10))
	}
	sessions := []domain.Session{}
	if err := h.do(ctx, http.MethodGet, "/sessions", query, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (h *HTTP) Analytics(ctx context.Context, ownerID string) (*domain.Analytics, error) {
	query := url.Values{}
	if ownerID != "" {
		query.Set("ownerId", ownerID)
	}
	var a domain.Analytics
	if err := h.do(ctx, http.MethodGet, "/sessions/analytics", query, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (h *HTTP) TrainerStats(ctx context.Context) (*domain.TrainerStats, error) {
	var stats domain.TrainerStats
	if err := h.do(ctx, http.MethodGet, "/trainer/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (h *HTTP) AdminStats(ctx context.Context) (*domain.AdminStats, error) {
	var stats domain.AdminStats
	if err := h.do(ctx, http.MethodGet, "/admin/session-stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (h *HTTP) EndSession(ctx context.Context, id string, outcome domain.Action) (*domain.Session, error) {
	var s domain.Session
	in := map[string]domain.Action{"outcome": outcome}
	if err := h.do(ctx, http.MethodPost, "/admin/sessions/"+url.PathEscape(id)+"/end", nil, in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (h *HTTP) ReportIncident(ctx context.Context, incident *domain.Incident) error {
	return h.do(ctx, http.MethodPost, "/incidents", nil, incident, nil)
}
