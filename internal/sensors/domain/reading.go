package sensors

import (
	"errors"
	"time"
)

// Kind identifies the physical quantity a sensor measures.
type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindWeight      Kind = "weight"
	KindPressure    Kind = "pressure"
)

// Valid returns true when the kind is supported.
func (k Kind) Valid() bool {
	switch k {
	case KindTemperature, KindHumidity, KindWeight, KindPressure:
		return true
	default:
		return false
	}
}

// Reading is an immutable sensor sample.
type Reading struct {
	SensorID   string    `json:"sensor_id"`
	TenantID   string    `json:"tenant_id"`
	Kind       Kind      `json:"kind"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	LocationID string    `json:"location_id,omitempty"`
	ProductID  string    `json:"product_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks reading invariants.
func (r Reading) Validate() error {
	if r.SensorID == "" {
		return errors.New("reading: empty sensor id")
	}
	if r.TenantID == "" {
		return errors.New("reading: empty tenant id")
	}
	if r.Kind == "" {
		return errors.New("reading: empty kind")
	}
	if r.Timestamp.IsZero() {
		return errors.New("reading: zero timestamp")
	}
	return nil
}
