package interfaces

import (
	"context"
	"errors"

	alertapp "warehouse-sentinel/internal/alerts/application"
	"warehouse-sentinel/internal/sensors/application/events"
)

// ReadingReceivedConsumer feeds ingested sensor readings into threshold
// evaluation.
type ReadingReceivedConsumer struct {
	service *alertapp.Service
}

func NewReadingReceivedConsumer(service *alertapp.Service) (*ReadingReceivedConsumer, error) {
	if service == nil {
		return nil, errors.New("reading consumer: service is required")
	}
	return &ReadingReceivedConsumer{service: service}, nil
}

func (c *ReadingReceivedConsumer) Consume(ctx context.Context, event events.ReadingReceived) error {
	_, err := c.service.ProcessReading(ctx, event.Reading)
	return err
}
