package channel

import "encoding/json"

// #region envelope

// Envelope is the one message shape crossing the engine connection in
// both directions. ID correlates responses to the request that caused
// them; uncorrelated broadcasts (logs, echoes) carry no usable ID.
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// #endregion

// #region message-types

// Outbound request types.
const (
	TypeInit  = "INIT"
	TypeSolve = "SOLVE"
	// Auxiliary queries use their method name as the envelope type.
)

// Inbound response types.
const (
	TypeInitialized = "initialized"
	TypeProgress    = "progress"
	TypeResult      = "result"
	TypeCancelled   = "cancelled"
	TypeError       = "error"
	TypeRPCResult   = "rpc_result"
	TypeRPCError    = "rpc_error"

	// Out-of-band diagnostics, never correlated to a pending request.
	TypeLog         = "log"
	TypeProblemEcho = "problem_echo"
)

// #endregion
