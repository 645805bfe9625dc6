package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// BroadcastDestination is the destination recorded for push sends; push
// has no per-recipient addressing.
const BroadcastDestination = "broadcast"

// Broadcaster fans a payload out to connected real-time clients.
type Broadcaster interface {
	Broadcast(payload []byte)
}

type pushEnvelope struct {
	Type     string    `json:"type"`
	Body     string    `json:"body"`
	Priority string    `json:"priority"`
	SentAt   time.Time `json:"sent_at"`
}

// PushChannel delivers alert bodies to every connected real-time client
// (SSE stream, websocket hub). Delivery is fire-and-forget: a client with
// a full buffer drops the frame rather than blocking dispatch.
type PushChannel struct {
	targets []Broadcaster
}

// NewPushChannel constructs a push channel over one or more broadcasters.
func NewPushChannel(targets ...Broadcaster) (*PushChannel, error) {
	live := make([]Broadcaster, 0, len(targets))
	for _, target := range targets {
		if target != nil {
			live = append(live, target)
		}
	}
	if len(live) == 0 {
		return nil, errors.New("push channel: no broadcasters")
	}
	return &PushChannel{targets: live}, nil
}

// Name implements Channel.
func (c *PushChannel) Name() string { return ChannelPush }

// Send broadcasts the body to all connected clients.
func (c *PushChannel) Send(_ context.Context, _ string, body string, priority Priority) SendResult {
	if c == nil || len(c.targets) == 0 {
		return SendResult{Destination: BroadcastDestination, Err: errors.New("push channel: no broadcasters")}
	}
	payload, err := json.Marshal(pushEnvelope{
		Type:     "alert",
		Body:     body,
		Priority: string(priority),
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return SendResult{Destination: BroadcastDestination, Err: err}
	}
	for _, target := range c.targets {
		target.Broadcast(payload)
	}
	return SendResult{
		Success:           true,
		ProviderMessageID: "push-" + uuid.NewString(),
		Destination:       BroadcastDestination,
	}
}

// SendBulk implements Channel; push treats bulk as repeated broadcasts.
func (c *PushChannel) SendBulk(ctx context.Context, messages []Message) BulkResult {
	var bulk BulkResult
	for _, message := range messages {
		result := c.Send(ctx, message.Destination, message.Body, message.Priority)
		bulk.Results = append(bulk.Results, result)
		if result.Success {
			bulk.SuccessCount++
		} else {
			bulk.FailedCount++
		}
	}
	return bulk
}
