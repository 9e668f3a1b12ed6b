package httpapi

import (
	"net/http"
	"strings"

	"vaxtrax/internal/auth"
	"vaxtrax/internal/core"
	"vaxtrax/pkg/domain"
)

func (h *Handler) handleCompany(w http.ResponseWriter, r *http.Request, remainder string) {
	if remainder == "batches" {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		r, ok := h.authorize(w, r, auth.RoleCompany)
		if !ok {
			return
		}
		h.writeList(w, r)
		return
	}
	if remainder == "add-vaccine" {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		r, ok := h.authorize(w, r, auth.RoleCompany)
		if !ok {
			return
		}
		h.handleAddVaccine(w, r)
		return
	}
	action, id, found := strings.Cut(remainder, "/")
	if !found || id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	var handle func(http.ResponseWriter, *http.Request, string)
	switch action {
	case "update-status":
		handle = h.handleUpdateStatus
	case "update-stage":
		handle = h.handleUpdateStage
	case "scan":
		handle = h.handleScan
	case "proceed":
		handle = h.handleProceed
	case "halt":
		handle = h.handleHalt
	default:
		http.NotFound(w, r)
		return
	}
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	r, ok := h.authorize(w, r, auth.RoleCompany)
	if !ok {
		return
	}
	handle(w, r, id)
}

func (h *Handler) writeBatch(w http.ResponseWriter, b domain.Batch, err error) {
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "batch": b})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid status payload")
		return
	}
	b, err := h.Registry.SetStatus(r.Context(), id, domain.Status(req.Status))
	h.writeBatch(w, b, err)
}

type stageRequest struct {
	Stage string `json:"stage"`
}

func (h *Handler) handleUpdateStage(w http.ResponseWriter, r *http.Request, id string) {
	var req stageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid stage payload")
		return
	}
	b, err := h.Registry.SetStage(r.Context(), id, domain.Stage(req.Stage))
	h.writeBatch(w, b, err)
}

type scanRequest struct {
	Temperature *float64 `json:"temperature"`
	Location    string   `json:"location"`
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request, id string) {
	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid scan payload")
		return
	}
	if req.Temperature == nil {
		writeError(w, http.StatusBadRequest, "Missing required field: temperature")
		return
	}
	b, err := h.Registry.RecordScan(r.Context(), id, *req.Temperature, req.Location)
	h.writeBatch(w, b, err)
}

func (h *Handler) handleProceed(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.Registry.Proceed(r.Context(), id)
	h.writeBatch(w, b, err)
}

func (h *Handler) handleHalt(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.Registry.Halt(r.Context(), id)
	h.writeBatch(w, b, err)
}

type addVaccineRequest struct {
	ID          string   `json:"id"`
	Location    *string  `json:"location"`
	Stage       *string  `json:"stage"`
	TempMin     *float64 `json:"temp_min"`
	TempMax     *float64 `json:"temp_max"`
	Temperature *float64 `json:"temperature"`
}

func (h *Handler) handleAddVaccine(w http.ResponseWriter, r *http.Request) {
	var req addVaccineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid vaccine payload")
		return
	}
	if req.Location == nil {
		writeError(w, http.StatusBadRequest, "Missing required field: location")
		return
	}
	if req.Stage == nil {
		writeError(w, http.StatusBadRequest, "Missing required field: stage")
		return
	}
	reg := core.RegisterRequest{
		ID:          req.ID,
		Location:    *req.Location,
		Stage:       domain.Stage(*req.Stage),
		Temperature: req.Temperature,
	}
	if req.TempMin != nil || req.TempMax != nil {
		limits := domain.DefaultTempLimits
		if req.TempMin != nil {
			limits.Min = *req.TempMin
		}
		if req.TempMax != nil {
			limits.Max = *req.TempMax
		}
		reg.Limits = &limits
	}
	b, err := h.Registry.Register(r.Context(), reg)
	h.writeBatch(w, b, err)
}
