package analytics_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"eco-tiket/internal/analytics"
	"eco-tiket/internal/logger"
	"eco-tiket/internal/utils"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger,
	}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger/analytics", func(r chi.Router) {
		r.Get("/summary", h.GetSummary)
		r.Get("/daily", h.GetDailyActivity)
		r.Get("/bottle-types", h.GetBottleTypeBreakdown)
		r.Get("/locations", h.GetLocationBreakdown)
	})
}

// sendJSONResponse is a helper function to send JSON responses
func sendJSONResponse(w http.ResponseWriter, status int, response utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.GetSummary(r.Context())
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetSummary: %v", err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to compute summary", err.Error()))
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Ledger summary", summary))
}

// GetDailyActivity accepts optional from/to query params in YYYY-MM-DD form.
func (h *Handler) GetDailyActivity(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	var err error

	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse("2006-01-02", v)
		if err != nil {
			sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid 'from' date", "expected YYYY-MM-DD"))
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse("2006-01-02", v)
		if err != nil {
			sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid 'to' date", "expected YYYY-MM-DD"))
			return
		}
		// Make the 'to' date inclusive.
		to = to.AddDate(0, 0, 1)
	}

	daily, err := h.Service.GetDailyActivity(r.Context(), from, to)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetDailyActivity: %v", err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to compute daily activity", err.Error()))
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Daily ledger activity", daily))
}

func (h *Handler) GetBottleTypeBreakdown(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.Service.GetBottleTypeBreakdown(r.Context())
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetBottleTypeBreakdown: %v", err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to compute bottle type breakdown", err.Error()))
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Bottle type breakdown", breakdown))
}

func (h *Handler) GetLocationBreakdown(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	breakdown, err := h.Service.GetLocationBreakdown(r.Context(), limit)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetLocationBreakdown: %v", err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to compute location breakdown", err.Error()))
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Location breakdown", breakdown))
}
