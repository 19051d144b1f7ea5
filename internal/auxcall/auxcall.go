// Package auxcall enumerates the stateless engine queries that ride
// the computation channel without progress semantics. Each supported
// call has a statically known method name and payload shape; Raw is
// the extension point for methods this build does not know yet.
package auxcall

import "github.com/groupmix/go-controller/internal/wire"

// #region call

// Call pairs an envelope type (the method name) with its payload.
type Call struct {
	Method  string
	Payload interface{}
}

const (
	MethodDefaultSettings     = "get_default_settings"
	MethodRecommendedSettings = "get_recommended_settings"
)

// #endregion

// #region constructors

// DefaultSettings asks the engine for its built-in solver defaults.
// Zero-argument calls carry an empty payload.
func DefaultSettings() Call {
	return Call{Method: MethodDefaultSettings}
}

// recommendRequest names the positional arguments of the
// recommended-settings query.
type recommendRequest struct {
	Problem               wire.Input `json:"problem"`
	DesiredRuntimeSeconds float64    `json:"desired_runtime_seconds"`
}

// RecommendedSettings asks the engine to size solver parameters for
// the given problem and time budget.
func RecommendedSettings(problem wire.Input, desiredSeconds float64) Call {
	return Call{
		Method: MethodRecommendedSettings,
		Payload: recommendRequest{
			Problem:               problem,
			DesiredRuntimeSeconds: desiredSeconds,
		},
	}
}

// rawRequest forwards an argument list verbatim.
type rawRequest struct {
	Args []interface{} `json:"args"`
}

// Raw builds a call for a method name this package does not know,
// forwarding the raw argument list. New stateless queries should get a
// typed constructor here instead of living on Raw permanently.
func Raw(method string, args ...interface{}) Call {
	return Call{Method: method, Payload: rawRequest{Args: args}}
}

// #endregion
