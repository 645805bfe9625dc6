package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	alertapp "warehouse-sentinel/internal/alerts/application"
	"warehouse-sentinel/internal/auth"
)

// SSEBroker fans out alert lifecycle events to connected clients. Each
// subscriber is scoped to one tenant and only sees that tenant's alerts;
// an empty tenant receives everything, which single-tenant deployments
// rely on.
type SSEBroker struct {
	mu          sync.Mutex
	subscribers map[chan []byte]string
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{subscribers: make(map[chan []byte]string)}
}

// Notify implements AlertNotifier.
func (b *SSEBroker) Notify(_ context.Context, event alertapp.AlertEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.broadcast(event.Alert.TenantID, payload)
}

// Subscribe registers a client channel for one tenant's events.
func (b *SSEBroker) Subscribe(tenantID string) chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subscribers[ch] = tenantID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel. The channel is never closed here:
// a concurrent broadcast may still hold a reference, and the subscriber
// exits on its own context instead.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
}

func (b *SSEBroker) broadcast(tenantID string, payload []byte) {
	b.mu.Lock()
	targets := make([]chan []byte, 0, len(b.subscribers))
	for ch, subscribed := range b.subscribers {
		if subscribed != "" && subscribed != tenantID {
			continue
		}
		targets = append(targets, ch)
	}
	b.mu.Unlock()
	// Slow clients are skipped rather than blocking the alert pipeline.
	for _, ch := range targets {
		select {
		case ch <- payload:
		default:
		}
	}
}

// StreamHandler serves the SSE alert stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/alerts/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe(auth.TenantIDFromContext(r.Context()))
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case payload := <-ch:
			_, _ = w.Write([]byte("event: alert\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
