package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sensorapp "warehouse-sentinel/internal/sensors/application"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

// ConfigHandler provides threshold configuration endpoints.
type ConfigHandler struct {
	service *sensorapp.ConfigService
}

// NewConfigHandler constructs a handler.
func NewConfigHandler(service *sensorapp.ConfigService) (*ConfigHandler, error) {
	if service == nil {
		return nil, errors.New("config handler: nil service")
	}
	return &ConfigHandler{service: service}, nil
}

// ServeHTTP handles /api/v1/thresholds and subroutes.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/thresholds":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(r.URL.Path, "/api/v1/thresholds/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/thresholds/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodPut:
			h.handleUpdate(w, r, id)
		case http.MethodDelete:
			h.handleDeactivate(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ConfigHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []sensors.ThresholdConfig{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *ConfigHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var cfg sensors.ThresholdConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.service.Create(r.Context(), &cfg); err != nil {
		respondConfigError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(cfg)
}

func (h *ConfigHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	cfg, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondConfigError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

func (h *ConfigHandler) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var cfg sensors.ThresholdConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cfg.ID = id
	if err := h.service.Update(r.Context(), &cfg); err != nil {
		respondConfigError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

func (h *ConfigHandler) handleDeactivate(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		respondConfigError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondConfigError(w http.ResponseWriter, err error) {
	var validation *sensors.ValidationError
	switch {
	case errors.Is(err, sensors.ErrConfigNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.As(err, &validation):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(validation)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
