package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	deliveryapp "warehouse-sentinel/internal/delivery/application"
	delivery "warehouse-sentinel/internal/delivery/domain"
)

func newDeliveryFixture(t *testing.T) (*Handler, *memLogStore) {
	t.Helper()
	store := &memLogStore{}
	service, err := deliveryapp.NewService(store, zerolog.Nop(),
		deliveryapp.WithFallbackTenant("tenant-a"))
	if err != nil {
		t.Fatalf("new delivery service: %v", err)
	}
	handler, err := NewHandler(service)
	if err != nil {
		t.Fatalf("new delivery handler: %v", err)
	}
	return handler, store
}

func seedEntries(store *memLogStore) {
	store.entries = []delivery.Entry{
		{ID: "entry-1", TenantID: "tenant-a", AlertID: "alert-1", Channel: "email", Status: delivery.StatusSent},
		{ID: "entry-2", TenantID: "tenant-a", AlertID: "alert-1", Channel: "sms", Status: delivery.StatusFailed, ErrorMessage: "unreachable"},
		{ID: "entry-3", TenantID: "tenant-b", AlertID: "alert-9", Channel: "email", Status: delivery.StatusSent},
	}
}

func TestDeliveryList(t *testing.T) {
	handler, store := newDeliveryFixture(t)
	seedEntries(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliveries", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list []delivery.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list = %d entries, want tenant-a's 2", len(list))
	}
}

func TestDeliveryListStatusFilter(t *testing.T) {
	handler, store := newDeliveryFixture(t)
	seedEntries(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliveries?status=FAILED", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list []delivery.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "entry-2" {
		t.Fatalf("list = %+v, want only the failed entry", list)
	}
}

func TestDeliveryListUnknownStatus(t *testing.T) {
	handler, _ := newDeliveryFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliveries?status=BOUNCED", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeliveryListBadWindow(t *testing.T) {
	handler, _ := newDeliveryFixture(t)

	url := "/api/v1/deliveries?from=2026-03-10T12:00:00Z&to=2026-03-09T12:00:00Z"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeliveryListByAlert(t *testing.T) {
	handler, store := newDeliveryFixture(t)
	seedEntries(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliveries/alert/alert-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list []delivery.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list = %d entries, want 2", len(list))
	}
}

func TestDeliveryStats(t *testing.T) {
	handler, store := newDeliveryFixture(t)
	store.stats = delivery.Stats{Total: 10, Sent: 4, Delivered: 4, Failed: 2, SuccessRate: 0.8}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliveries/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload struct {
		Stats delivery.Stats `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if payload.Stats.Total != 10 || payload.Stats.SuccessRate != 0.8 {
		t.Fatalf("stats = %+v", payload.Stats)
	}
}

func TestDeliveryExportXLSX(t *testing.T) {
	handler, store := newDeliveryFixture(t)
	seedEntries(store)
	store.stats = delivery.Stats{Total: 3, Sent: 2, Failed: 1}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliveries/export", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "delivery-report.xlsx") {
		t.Fatalf("disposition = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty export body")
	}
}

func TestDeliveryExportPDF(t *testing.T) {
	handler, store := newDeliveryFixture(t)
	seedEntries(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliveries/export?format=pdf", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty export body")
	}
}

func TestDeliveryExportBadFormat(t *testing.T) {
	handler, _ := newDeliveryFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliveries/export?format=csv", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeliveryWrongMethod(t *testing.T) {
	handler, _ := newDeliveryFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deliveries", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
