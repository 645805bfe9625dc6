package events

import (
	"time"

	sensors "warehouse-sentinel/internal/sensors/domain"
)

// ReadingReceived is published when a sensor reading is accepted for
// evaluation.
type ReadingReceived struct {
	Reading    sensors.Reading `json:"reading"`
	ReceivedAt time.Time       `json:"received_at"`
}
