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

const defaultEmailSubject = "Warehouse sensor alert"

type emailPayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

type emailResponse struct {
	MessageID string `json:"message_id"`
}

// EmailChannel sends alert emails through an HTTP mail provider.
type EmailChannel struct {
	endpoint string
	apiKey   string
	from     string
	subject  string
	client   *http.Client
	retry    RetryPolicy
}

// EmailOption configures the email channel.
type EmailOption func(*EmailChannel)

// WithEmailHTTPClient overrides the HTTP client.
func WithEmailHTTPClient(client *http.Client) EmailOption {
	return func(ch *EmailChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithEmailRetry overrides the retry policy.
func WithEmailRetry(policy RetryPolicy) EmailOption {
	return func(ch *EmailChannel) {
		ch.retry = policy
	}
}

// WithEmailSubject overrides the default subject line.
func WithEmailSubject(subject string) EmailOption {
	return func(ch *EmailChannel) {
		if subject != "" {
			ch.subject = subject
		}
	}
}

// NewEmailChannel constructs an email channel adapter.
func NewEmailChannel(endpoint, apiKey, from string, opts ...EmailOption) (*EmailChannel, error) {
	if endpoint == "" {
		return nil, errors.New("email channel: empty endpoint")
	}
	if from == "" {
		return nil, errors.New("email channel: empty sender address")
	}
	channel := &EmailChannel{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		subject:  defaultEmailSubject,
		client:   &http.Client{Timeout: 15 * time.Second},
		retry:    DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return ChannelEmail }

// Send posts one email, retrying transient provider failures.
func (c *EmailChannel) Send(ctx context.Context, destination, body string, priority Priority) SendResult {
	if c == nil {
		return SendResult{Destination: destination, Err: errors.New("email channel: nil channel")}
	}
	if destination == "" {
		return SendResult{Err: errors.New("email channel: empty destination")}
	}

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
func (c *EmailChannel) SendBulk(ctx context.Context, messages []Message) BulkResult {
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

func (c *EmailChannel) post(ctx context.Context, destination, body string, priority Priority) (string, error) {
	payload := emailPayload{
		From:     c.from,
		To:       destination,
		Subject:  c.subject,
		Body:     body,
		Priority: string(priority),
	}
	raw, err := json.Marshal(payload)
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
		return "", Transient(fmt.Errorf("email channel: provider returned %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("email channel: provider rejected send with %d", resp.StatusCode)
	}

	var decoded emailResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", nil
	}
	return decoded.MessageID, nil
}
