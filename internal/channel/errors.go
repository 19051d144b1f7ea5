package channel

import (
	"encoding/json"
	"errors"
	"fmt"
)

// #region sentinels

var (
	// ErrInit means neither the primary nor the fallback engine
	// endpoint could be reached.
	ErrInit = errors.New("engine initialization failed")

	// ErrTransport means the live connection faulted; every request
	// that was pending at that moment is rejected with it.
	ErrTransport = errors.New("engine connection lost")

	// ErrCancelled marks a deliberate host-initiated rejection, so
	// callers can tell "you asked to stop" from "it broke".
	ErrCancelled = errors.New("request cancelled")
)

// #endregion

// #region engine-error

// EngineError is a structured failure the engine reported for one
// specific request; other in-flight requests are unaffected.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error: %s", e.Message)
}

func decodeEngineError(data json.RawMessage) error {
	var body struct {
		Message string `json:"message"`
	}
	if len(data) > 0 && json.Unmarshal(data, &body) == nil && body.Message != "" {
		return &EngineError{Message: body.Message}
	}
	return &EngineError{Message: "unspecified failure"}
}

// #endregion
