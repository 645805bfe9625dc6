package sensors

import "errors"

// ErrConfigNotFound indicates a missing threshold configuration.
var ErrConfigNotFound = errors.New("sensors: threshold config not found")
