package http

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"warehouse-sentinel/internal/auth"
	"warehouse-sentinel/internal/eventing"
	"warehouse-sentinel/internal/observability/metrics"
	"warehouse-sentinel/internal/sensors/application/events"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

// IngestHandler accepts sensor readings from gateways and publishes them
// for evaluation. Gateways authenticate with a static bearer token rather
// than operator JWTs.
type IngestHandler struct {
	bus      eventing.EventBus
	checker  auth.SensorTenantChecker
	token    string
	tenantID string
	logger   zerolog.Logger
}

// NewIngestHandler constructs an ingest handler. The checker may be nil,
// in which case claimed tenant ids are trusted as-is.
func NewIngestHandler(bus eventing.EventBus, checker auth.SensorTenantChecker, token, tenantID string, logger zerolog.Logger) (*IngestHandler, error) {
	if bus == nil {
		return nil, errors.New("ingest handler: nil bus")
	}
	return &IngestHandler{bus: bus, checker: checker, token: token, tenantID: tenantID, logger: logger}, nil
}

type readingPayload struct {
	SensorID   string  `json:"sensor_id"`
	TenantID   string  `json:"tenant_id,omitempty"`
	Kind       string  `json:"kind"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	LocationID string  `json:"location_id,omitempty"`
	ProductID  string  `json:"product_id,omitempty"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// ServeHTTP handles POST /ingest/readings. The body is either a single
// reading object or an array of them.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	started := time.Now()

	if h.token != "" && !h.authorized(r) {
		metrics.IncIngestError("unauthorized")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	payloads, err := decodeReadings(r)
	if err != nil {
		metrics.IncIngestError("bad_payload")
		metrics.ObserveIngest(metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	accepted := 0
	now := time.Now().UTC()
	for _, payload := range payloads {
		reading, err := h.toReading(payload, now)
		if err != nil {
			metrics.IncIngestError("invalid_reading")
			h.logger.Warn().
				Str("sensor_id", payload.SensorID).
				Err(err).
				Msg("reading rejected")
			continue
		}
		if err := h.checkTenant(r.Context(), reading); err != nil {
			metrics.IncIngestError("tenant_mismatch")
			h.logger.Warn().
				Str("sensor_id", reading.SensorID).
				Str("tenant_id", reading.TenantID).
				Msg("reading rejected: sensor owned by another tenant")
			continue
		}
		if err := h.bus.Publish(r.Context(), events.ReadingReceived{Reading: reading, ReceivedAt: now}); err != nil {
			h.logger.Error().
				Str("sensor_id", reading.SensorID).
				Err(err).
				Msg("reading evaluation failed")
			continue
		}
		accepted++
	}

	result := metrics.ResultSuccess
	if accepted == 0 && len(payloads) > 0 {
		result = metrics.ResultError
	}
	metrics.ObserveIngest(result, time.Since(started))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{
		"received": len(payloads),
		"accepted": accepted,
	})
}

// checkTenant rejects readings claiming a tenant that does not own the
// sensor. Sensors without any configuration pass through; they simply
// have no thresholds to evaluate.
func (h *IngestHandler) checkTenant(ctx context.Context, reading sensors.Reading) error {
	if h.checker == nil {
		return nil
	}
	err := h.checker.EnsureSensorTenant(ctx, reading.TenantID, reading.SensorID)
	if errors.Is(err, auth.ErrNotFound) {
		return nil
	}
	return err
}

func (h *IngestHandler) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

func (h *IngestHandler) toReading(payload readingPayload, now time.Time) (sensors.Reading, error) {
	reading := sensors.Reading{
		SensorID:   payload.SensorID,
		TenantID:   payload.TenantID,
		Kind:       sensors.Kind(payload.Kind),
		Value:      payload.Value,
		Unit:       payload.Unit,
		LocationID: payload.LocationID,
		ProductID:  payload.ProductID,
		Timestamp:  now,
	}
	if reading.TenantID == "" {
		reading.TenantID = h.tenantID
	}
	if payload.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, payload.Timestamp)
		if err != nil {
			return sensors.Reading{}, errors.New("timestamp must be RFC3339")
		}
		reading.Timestamp = parsed.UTC()
	}
	if err := reading.Validate(); err != nil {
		return sensors.Reading{}, err
	}
	return reading, nil
}

func decodeReadings(r *http.Request) ([]readingPayload, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, errors.New("unreadable body")
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] == '[' {
		var payloads []readingPayload
		if err := json.Unmarshal(trimmed, &payloads); err != nil {
			return nil, errors.New("invalid json array")
		}
		return payloads, nil
	}
	var payload readingPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, errors.New("invalid json object")
	}
	return []readingPayload{payload}, nil
}
