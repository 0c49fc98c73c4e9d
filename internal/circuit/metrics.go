package circuit

import (
	"encoding/json"
	"time"
)

// HealthMetrics is the single-bucket sliding window of call outcomes
// observed since WindowStart. It is shared between peers through the
// store, one read and one write per guarded call.
type HealthMetrics struct {
	SuccessCount int64
	FailureCount int64
	WindowStart  time.Time
}

// NewWindow returns an empty metrics window starting now.
func NewWindow(now time.Time) HealthMetrics {
	return HealthMetrics{WindowStart: now}
}

// Total is the number of calls recorded in the window.
func (m HealthMetrics) Total() int64 {
	return m.SuccessCount + m.FailureCount
}

// FailureRatio is FailureCount / Total, or 0 for an empty window.
func (m HealthMetrics) FailureRatio() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return float64(m.FailureCount) / float64(total)
}

// Fresh reports whether the window is still current. A stale window must
// be replaced, not read.
func (m HealthMetrics) Fresh(now time.Time, samplingDuration time.Duration) bool {
	return now.Sub(m.WindowStart) <= samplingDuration
}

type metricsWire struct {
	Success     int64 `json:"success"`
	Failure     int64 `json:"failure"`
	WindowStart int64 `json:"window_start"`
}

// MarshalText serializes the window as compact JSON with WindowStart in
// UnixNano, the format peers of the same deployment agree on.
func (m HealthMetrics) MarshalText() ([]byte, error) {
	return json.Marshal(metricsWire{
		Success:     m.SuccessCount,
		Failure:     m.FailureCount,
		WindowStart: m.WindowStart.UnixNano(),
	})
}

// UnmarshalText parses the wire form produced by MarshalText.
func (m *HealthMetrics) UnmarshalText(data []byte) error {
	var w metricsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.SuccessCount = w.Success
	m.FailureCount = w.Failure
	m.WindowStart = time.Unix(0, w.WindowStart).UTC()
	return nil
}
