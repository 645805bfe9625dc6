package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type smsPayload struct {
	To       string `json:"to"`
	From     string `json:"from,omitempty"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
}

// SMSChannel sends alert texts through an HTTP SMS gateway.
type SMSChannel struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	retry    RetryPolicy
}

// SMSOption configures the SMS channel.
type SMSOption func(*SMSChannel)

// WithSMSHTTPClient overrides the HTTP client.
func WithSMSHTTPClient(client *http.Client) SMSOption {
	return func(ch *SMSChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithSMSRetry overrides the retry policy.
func WithSMSRetry(policy RetryPolicy) SMSOption {
	return func(ch *SMSChannel) {
		ch.retry = policy
	}
}

// WithSMSFrom sets the gateway sender id.
func WithSMSFrom(from string) SMSOption {
	return func(ch *SMSChannel) {
		ch.from = from
	}
}

// NewSMSChannel constructs an SMS channel adapter.
func NewSMSChannel(endpoint, apiKey string, opts ...SMSOption) (*SMSChannel, error) {
	if endpoint == "" {
		return nil, errors.New("sms channel: empty endpoint")
	}
	channel := &SMSChannel{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		retry:    DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Name implements Channel.
func (c *SMSChannel) Name() string { return ChannelSMS }

// Send posts one text message, retrying transient gateway failures. The
// body is clamped to the SMS limit in case a caller bypassed rendering.
func (c *SMSChannel) Send(ctx context.Context, destination, body string, priority Priority) SendResult {
	if c == nil {
		return SendResult{Destination: destination, Err: errors.New("sms channel: nil channel")}
	}
	if destination == "" {
		return SendResult{Err: errors.New("sms channel: empty destination")}
	}
	body = truncate(body, SMSMaxLength)

	var messageID string
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		id, err := c.post(ctx, destination, body, priority)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		return SendResult{Destination: destination, Err: err}
	}
	return SendResult{Success: true, ProviderMessageID: messageID, Destination: destination}
}

// SendBulk sends to each destination, collecting individual outcomes.
func (c *SMSChannel) SendBulk(ctx context.Context, messages []Message) BulkResult {
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

func (c *SMSChannel) post(ctx context.Context, destination, body string, priority Priority) (string, error) {
	raw, err := json.Marshal(smsPayload{To: destination, From: c.from, Body: body, Priority: string(priority)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", Transient(fmt.Errorf("sms channel: gateway returned %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("sms channel: gateway rejected send with %d", resp.StatusCode)
	}

	var decoded smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", nil
	}
	return decoded.MessageID, nil
}
