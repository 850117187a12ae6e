package natsrt

import (
	"encoding/json"
	"fmt"
)

// TaskEnvelope is the JSON wire form of one submitted descriptor.
// The run ID ties results back to the registration that produced them so a
// driver never applies stale results from an earlier run.
type TaskEnvelope struct {
	// RunID identifies the registration this task belongs to
	RunID string `json:"run_id"`

	// Re and Im are the cell input's real and imaginary parts
	Re float64 `json:"re"`
	Im float64 `json:"im"`

	// Index is the destination slot in the driver's result buffer
	Index int `json:"index"`
}

// ResultEnvelope is the JSON wire form of one completed unit.
type ResultEnvelope struct {
	// RunID echoes the task's run ID
	RunID string `json:"run_id"`

	// Index echoes the task's destination slot
	Index int `json:"index"`

	// Stable is the unit's classification; meaningless when Error is set
	Stable bool `json:"stable"`

	// Error carries the unit failure message, empty on success
	Error string `json:"error,omitempty"`
}

// EncodeTask serializes a task envelope.
func EncodeTask(t TaskEnvelope) ([]byte, error) {
	if t.RunID == "" {
		return nil, fmt.Errorf("task envelope requires a run ID")
	}
	if t.Index < 0 {
		return nil, fmt.Errorf("task envelope index must be non-negative, got %d", t.Index)
	}
	return json.Marshal(t)
}

// DecodeTask deserializes a task envelope.
func DecodeTask(data []byte) (TaskEnvelope, error) {
	var t TaskEnvelope
	if err := json.Unmarshal(data, &t); err != nil {
		return TaskEnvelope{}, fmt.Errorf("failed to decode task envelope: %w", err)
	}
	if t.RunID == "" {
		return TaskEnvelope{}, fmt.Errorf("task envelope missing run ID")
	}
	return t, nil
}

// EncodeResult serializes a result envelope.
func EncodeResult(r ResultEnvelope) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResult deserializes a result envelope.
func DecodeResult(data []byte) (ResultEnvelope, error) {
	var r ResultEnvelope
	if err := json.Unmarshal(data, &r); err != nil {
		return ResultEnvelope{}, fmt.Errorf("failed to decode result envelope: %w", err)
	}
	return r, nil
}
