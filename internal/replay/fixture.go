package replay

import (
	"encoding/json"
	"fmt"
	"os"
)

// #region fixture-types

// Transcript is a recorded engine exchange: one outbound request and
// the inbound messages the engine answered with, in emission order.
type Transcript struct {
	Description string      `json:"description"`
	Request     Request     `json:"request"`
	Messages    []Message   `json:"messages"`
	Expect      Expectation `json:"expect"`
}

// Request is the outbound envelope to replay.
type Request struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	UseSink bool            `json:"use_sink"`
}

// Message is one recorded inbound envelope. An empty ID correlates to
// the replayed request; a non-empty ID is kept verbatim, so recorded
// broadcasts and stray ids stay stray.
type Message struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Expectation is what the recorded exchange is supposed to produce.
type Expectation struct {
	Outcome       string   `json:"outcome"` // "result" | "cancelled" | "error"
	ProgressCount int      `json:"progress_count"`
	FinalScore    *float64 `json:"final_score,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadTranscript reads and parses a JSON transcript file.
func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", path, err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	if t.Request.Type == "" {
		return nil, fmt.Errorf("transcript %s: request.type is required", path)
	}
	return &t, nil
}

// #endregion fixture-loader
