package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"warehouse-sentinel/internal/auth"
	"warehouse-sentinel/internal/eventing"
	"warehouse-sentinel/internal/sensors/application/events"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

type captureBus struct {
	published []events.ReadingReceived
}

func (b *captureBus) Publish(ctx context.Context, event any) error {
	evt, ok := event.(events.ReadingReceived)
	if !ok {
		return nil
	}
	b.published = append(b.published, evt)
	return nil
}

func (b *captureBus) Subscribe(eventType string, handler eventing.EventHandler) {}

type fakeChecker struct {
	owner map[string]string
}

func (c fakeChecker) EnsureSensorTenant(ctx context.Context, tenantID, sensorID string) error {
	owner, ok := c.owner[sensorID]
	if !ok {
		return auth.ErrNotFound
	}
	if owner != tenantID {
		return auth.ErrTenantMismatch
	}
	return nil
}

func newIngestHandler(t *testing.T, bus *captureBus, checker auth.SensorTenantChecker) *IngestHandler {
	t.Helper()
	handler, err := NewIngestHandler(bus, checker, "gateway-token", "tenant-a", zerolog.Nop())
	if err != nil {
		t.Fatalf("new ingest handler: %v", err)
	}
	return handler
}

func postReadings(handler *IngestHandler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeCounts(t *testing.T, rec *httptest.ResponseRecorder) (received, accepted int) {
	t.Helper()
	var counts map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return counts["received"], counts["accepted"]
}

func TestIngestRequiresToken(t *testing.T) {
	bus := &captureBus{}
	handler := newIngestHandler(t, bus, nil)

	rec := postReadings(handler, "", `{"sensor_id":"sensor-1","kind":"temperature","value":4}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = postReadings(handler, "wrong", `{"sensor_id":"sensor-1","kind":"temperature","value":4}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(bus.published) != 0 {
		t.Fatal("nothing should be published")
	}
}

func TestIngestSingleReading(t *testing.T) {
	bus := &captureBus{}
	handler := newIngestHandler(t, bus, nil)

	rec := postReadings(handler, "gateway-token",
		`{"sensor_id":"sensor-1","kind":"temperature","value":13.5,"unit":"C","timestamp":"2026-03-10T12:00:00Z"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	received, accepted := decodeCounts(t, rec)
	if received != 1 || accepted != 1 {
		t.Fatalf("received/accepted = %d/%d, want 1/1", received, accepted)
	}
	if len(bus.published) != 1 {
		t.Fatalf("published = %d, want 1", len(bus.published))
	}
	reading := bus.published[0].Reading
	if reading.TenantID != "tenant-a" {
		t.Fatalf("tenant = %q, want fallback tenant-a", reading.TenantID)
	}
	if reading.Kind != sensors.KindTemperature || reading.Value != 13.5 {
		t.Fatalf("reading = %+v", reading)
	}
	if reading.Timestamp.UTC().Hour() != 12 {
		t.Fatalf("timestamp = %v, want parsed RFC3339", reading.Timestamp)
	}
}

func TestIngestBatch(t *testing.T) {
	bus := &captureBus{}
	handler := newIngestHandler(t, bus, nil)

	body := `[
		{"sensor_id":"sensor-1","kind":"temperature","value":4},
		{"sensor_id":"sensor-2","kind":"humidity","value":55},
		{"kind":"temperature","value":9}
	]`
	rec := postReadings(handler, "gateway-token", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	// The third entry has no sensor id and is skipped, not fatal.
	received, accepted := decodeCounts(t, rec)
	if received != 3 || accepted != 2 {
		t.Fatalf("received/accepted = %d/%d, want 3/2", received, accepted)
	}
	if len(bus.published) != 2 {
		t.Fatalf("published = %d, want 2", len(bus.published))
	}
}

func TestIngestBadPayload(t *testing.T) {
	bus := &captureBus{}
	handler := newIngestHandler(t, bus, nil)

	for _, body := range []string{"", "{broken", "[{broken]"} {
		rec := postReadings(handler, "gateway-token", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestIngestBadTimestamp(t *testing.T) {
	bus := &captureBus{}
	handler := newIngestHandler(t, bus, nil)

	rec := postReadings(handler, "gateway-token",
		`{"sensor_id":"sensor-1","kind":"temperature","value":4,"timestamp":"yesterday"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	_, accepted := decodeCounts(t, rec)
	if accepted != 0 {
		t.Fatalf("accepted = %d, want 0", accepted)
	}
}

func TestIngestTenantMismatchSkipped(t *testing.T) {
	bus := &captureBus{}
	checker := fakeChecker{owner: map[string]string{
		"sensor-1": "tenant-b",
		"sensor-2": "tenant-a",
	}}
	handler := newIngestHandler(t, bus, checker)

	body := `[
		{"sensor_id":"sensor-1","kind":"temperature","value":4},
		{"sensor_id":"sensor-2","kind":"temperature","value":4},
		{"sensor_id":"sensor-3","kind":"temperature","value":4}
	]`
	rec := postReadings(handler, "gateway-token", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	// sensor-1 belongs to tenant-b and is rejected; sensor-3 is unknown
	// to the checker and passes through.
	_, accepted := decodeCounts(t, rec)
	if accepted != 2 {
		t.Fatalf("accepted = %d, want 2", accepted)
	}
	for _, evt := range bus.published {
		if evt.Reading.SensorID == "sensor-1" {
			t.Fatal("mismatched sensor should not be published")
		}
	}
}

func TestIngestWrongMethod(t *testing.T) {
	bus := &captureBus{}
	handler := newIngestHandler(t, bus, nil)

	req := httptest.NewRequest(http.MethodGet, "/ingest/readings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
