package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	deliveryapp "warehouse-sentinel/internal/delivery/application"
	delivery "warehouse-sentinel/internal/delivery/domain"
	"warehouse-sentinel/internal/delivery/interfaces"
	"warehouse-sentinel/internal/observability/metrics"
)

const timeLayout = time.RFC3339

// Handler provides delivery log query and export endpoints.
type Handler struct {
	service *deliveryapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *deliveryapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("delivery handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles /api/v1/deliveries and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case r.URL.Path == "/api/v1/deliveries":
		h.handleList(w, r)
	case r.URL.Path == "/api/v1/deliveries/stats":
		h.handleStats(w, r)
	case r.URL.Path == "/api/v1/deliveries/export":
		h.handleExport(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/deliveries/alert/"):
		alertID := strings.TrimPrefix(r.URL.Path, "/api/v1/deliveries/alert/")
		h.handleListByAlert(w, r, alertID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []delivery.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleListByAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	if alertID == "" || strings.Contains(alertID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	list, err := h.service.ListByAlert(r.Context(), alertID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []delivery.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := h.service.Stats(r.Context(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	failures, err := h.service.FailuresByDay(r.Context(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats":           stats,
		"failures_by_day": failures,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "pdf" {
		http.Error(w, "format must be xlsx or pdf", http.StatusBadRequest)
		return
	}

	from, to, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := h.service.Stats(r.Context(), from, to)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	failures, err := h.service.FailuresByDay(r.Context(), from, to)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-7 * 24 * time.Hour)
	}

	var payload []byte
	switch format {
	case "pdf":
		payload, err = interfaces.BuildDeliveryReportPDF(stats, failures, entries, from, to)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="delivery-report.pdf"`)
	default:
		payload, err = interfaces.BuildDeliveryReportXLSX(stats, failures, entries, from, to)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="delivery-report.xlsx"`)
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))
	_, _ = w.Write(payload)
}

func parseFilter(r *http.Request) (delivery.Filter, error) {
	var filter delivery.Filter
	query := r.URL.Query()
	filter.Status = query.Get("status")
	if filter.Status != "" && !delivery.ValidStatus(filter.Status) {
		return filter, errors.New("unknown status " + filter.Status)
	}
	from, to, err := parseWindow(r)
	if err != nil {
		return filter, err
	}
	filter.From = from
	filter.To = to
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(timeLayout, raw)
		if err != nil {
			return from, to, errors.New("from must be RFC3339")
		}
		from = parsed.UTC()
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(timeLayout, raw)
		if err != nil {
			return from, to, errors.New("to must be RFC3339")
		}
		to = parsed.UTC()
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return from, to, errors.New("to must be after from")
	}
	return from, to, nil
}
