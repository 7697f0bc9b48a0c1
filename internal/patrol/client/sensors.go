package client

import (
	"context"

	dErrors "vigil/pkg/domain-errors"
)

// Fix is a confirmed geolocation reading.
type Fix struct {
	Lat float64
	Lng float64
}

// Locator acquires the device's position. Implementations wrap the
// platform's location service; acquisition may block until ctx expires.
type Locator interface {
	Locate(ctx context.Context) (Fix, error)
}

// BatteryReader samples the device battery level (0-100).
type BatteryReader interface {
	Level() float64
}

// acquireFix runs the locator under the configured timeout and fails
// closed: no mark is ever captured without a fresh, successful fix.
func (c *Client) acquireFix(ctx context.Context) (Fix, error) {
	ctx, cancel := context.WithTimeout(ctx, c.locationTimeout)
	defer cancel()

	fix, err := c.locator.Locate(ctx)
	if err != nil {
		return Fix{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "no location fix")
	}
	return fix, nil
}

// MotionSampler keeps a decaying average of raw motion readings. Alpha
// weighs the newest sample; history decays geometrically.
type MotionSampler struct {
	alpha  float64
	value  float64
	primed bool
}

// NewMotionSampler builds a sampler. Alpha outside (0, 1] falls back to 0.3.
func NewMotionSampler(alpha float64) *MotionSampler {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &MotionSampler{alpha: alpha}
}

// Sample folds one raw reading into the average and returns the new value.
func (m *MotionSampler) Sample(raw float64) float64 {
	if !m.primed {
		m.value = raw
		m.primed = true
		return m.value
	}
	m.value = m.alpha*raw + (1-m.alpha)*m.value
	return m.value
}

// Value returns the current decayed average.
func (m *MotionSampler) Value() float64 {
	return m.value
}
