// Package httpapi exposes the batch registry over JSON/HTTP with the route
// layout of the VaxTrax dashboards.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"vaxtrax/internal/auth"
	"vaxtrax/internal/core"
	"vaxtrax/pkg/domain"
)

const webDevice = "Web Interface"

// Registry is the subset of core.Service the handler drives.
type Registry interface {
	RecordScan(ctx context.Context, id string, temperature float64, location string) (domain.Batch, error)
	Proceed(ctx context.Context, id string) (domain.Batch, error)
	Halt(ctx context.Context, id string) (domain.Batch, error)
	SetStatus(ctx context.Context, id string, status domain.Status) (domain.Batch, error)
	SetStage(ctx context.Context, id string, stage domain.Stage) (domain.Batch, error)
	Register(ctx context.Context, req core.RegisterRequest) (domain.Batch, error)
	Get(ctx context.Context, id string) (domain.Batch, error)
	List(ctx context.Context) ([]domain.Batch, error)
	Drift(ctx context.Context, delta func(domain.Batch) float64) ([]domain.Batch, error)
	Scans(ctx context.Context, batchNo string) ([]domain.HistoryEntry, error)
}

var _ Registry = (*core.Service)(nil)

// Handler routes API requests. Registry, Users and Sessions are required.
type Handler struct {
	Registry Registry
	Users    *auth.Directory
	Sessions *auth.Sessions
	// Drift backs /api/refresh-data; nil disables the route.
	Drift func(domain.Batch) float64
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Logger  core.Logger
}

// NewHandler constructs an API handler.
func NewHandler(reg Registry, users *auth.Directory, sessions *auth.Sessions) *Handler {
	return &Handler{Registry: reg, Users: users, Sessions: sessions}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil || h.Sessions == nil {
		writeError(w, http.StatusInternalServerError, "api not configured")
		return
	}
	h.Sessions.Middleware(http.HandlerFunc(h.route)).ServeHTTP(w, r)
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/healthz":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "OK")
	case path == "/metrics":
		if h.Metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.Metrics.ServeHTTP(w, r)
	case path == "/login":
		h.handleLogin(w, r)
	case path == "/logout":
		h.handleLogout(w, r)
	case path == "/api/batches":
		h.handleListBatches(w, r)
	case strings.HasPrefix(path, "/api/batches/"):
		h.handleGetBatch(w, r, strings.TrimPrefix(path, "/api/batches/"))
	case path == "/api/refresh-data":
		h.handleRefresh(w, r)
	case strings.HasPrefix(path, "/api/company/"):
		h.handleCompany(w, r, strings.TrimPrefix(path, "/api/company/"))
	case path == "/add_scan":
		h.handleAddScan(w, r)
	case strings.HasPrefix(path, "/get_scans/"):
		h.handleGetScans(w, r, strings.TrimPrefix(path, "/get_scans/"))
	default:
		http.NotFound(w, r)
	}
}

// authorize writes the error response and reports false when the request
// lacks a session with one of roles. The actor is attached for mutations.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, roles ...auth.Role) (*http.Request, bool) {
	sess, err := auth.Authorize(r.Context(), roles...)
	if err != nil {
		h.writeErr(w, err)
		return r, false
	}
	ctx := core.WithActor(r.Context(), core.Actor{Name: sess.Name, Device: webDevice})
	return r.WithContext(ctx), true
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if h.Users == nil {
		writeError(w, http.StatusInternalServerError, "user directory not configured")
		return
	}
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid login payload")
			return
		}
	} else {
		req.Email, req.Password = r.FormValue("email"), r.FormValue("password")
	}
	user, err := h.Users.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials. Please try again.")
		return
	}
	token, sess, err := h.Sessions.Issue(user)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.Sessions.SetCookie(w, token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"name":    sess.Name,
		"role":    sess.Role,
		"token":   token,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost, http.MethodGet) {
		return
	}
	h.Sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	r, ok := h.authorize(w, r)
	if !ok {
		return
	}
	sess, _ := auth.FromContext(r.Context())
	if !sess.HasRole(auth.RoleAdmin) {
		writeJSON(w, http.StatusOK, []domain.Batch{})
		return
	}
	h.writeList(w, r)
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Registry.List(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if batches == nil {
		batches = []domain.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request, id string) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	r, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	b, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	r, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if h.Drift == nil {
		writeError(w, http.StatusNotFound, "refresh disabled")
		return
	}
	if _, err := h.Registry.Drift(r.Context(), h.Drift); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleGetScans(w http.ResponseWriter, r *http.Request, batchNo string) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	r, ok := h.authorize(w, r)
	if !ok {
		return
	}
	scans, err := h.Registry.Scans(r.Context(), batchNo)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

type addScanRequest struct {
	BatchNo     string   `json:"batch_no"`
	Temperature *float64 `json:"temperature"`
	Location    string   `json:"location"`
	Device      string   `json:"device"`
}

func (h *Handler) handleAddScan(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	r, ok := h.authorize(w, r, auth.RoleCompany)
	if !ok {
		return
	}
	var req addScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid scan payload")
		return
	}
	if req.BatchNo == "" || req.Temperature == nil {
		writeError(w, http.StatusBadRequest, "batch_no and temperature are required")
		return
	}
	ctx := r.Context()
	if req.Device != "" {
		actor, _ := core.ActorFromContext(ctx)
		actor.Device = req.Device
		ctx = core.WithActor(ctx, actor)
	}
	if _, err := h.Registry.RecordScan(ctx, req.BatchNo, *req.Temperature, req.Location); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Scan added successfully!"})
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError && h.Logger != nil {
		h.Logger.Error("api request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var violation domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.As(err, &violation):
		return http.StatusConflict
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAuditSinkUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

const maxBody = 1 << 20

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
