package channel

import (
	"encoding/json"
	"log"
)

// #region diagnostic-sink

// DiagnosticSink receives out-of-band engine messages (log lines,
// debug echoes of submitted problems). They bypass the correlation
// table entirely so they can never leak into request resolution.
type DiagnosticSink interface {
	Diagnostic(kind string, data json.RawMessage)
}

// LogSink writes diagnostics through the process logger.
type LogSink struct{}

func (LogSink) Diagnostic(kind string, data json.RawMessage) {
	switch kind {
	case TypeLog:
		var body struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &body) == nil && body.Message != "" {
			log.Printf("[ENGINE] %s: %s", orInfo(body.Level), body.Message)
			return
		}
		log.Printf("[ENGINE] %s", string(data))
	default:
		log.Printf("[ENGINE] %s (%d bytes)", kind, len(data))
	}
}

func orInfo(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// #endregion
