package wire

import "github.com/groupmix/go-controller/internal/schedule"

// The engine consumes a flat JSON document; these types pin its shape.
// Schedule maps are keyed "session_<index>" -> group id -> person ids.

// #region input

// Input is the full solve payload handed to the engine.
type Input struct {
	Problem         InputProblem                   `json:"problem"`
	Objectives      []schedule.Objective           `json:"objectives"`
	Constraints     []schedule.Constraint          `json:"constraints"`
	Solver          Solver                         `json:"solver"`
	InitialSchedule map[string]map[string][]string `json:"initial_schedule,omitempty"`
}

// InputProblem carries the entities to schedule.
type InputProblem struct {
	People      []schedule.Person `json:"people"`
	Groups      []schedule.Group  `json:"groups"`
	NumSessions int               `json:"num_sessions"`
}

// Solver is the per-algorithm parameter object flattened to a single
// level and tagged with solver_type. Every numeric field is sanitized
// before transmission; the engine never sees NaN or a missing value.
type Solver struct {
	SolverType               string                   `json:"solver_type"`
	InitialTemperature       float64                  `json:"initial_temperature"`
	FinalTemperature         float64                  `json:"final_temperature"`
	CoolingSchedule          string                   `json:"cooling_schedule"`
	ReheatAfterNoImprovement uint64                   `json:"reheat_after_no_improvement"`
	StopConditions           schedule.StopConditions  `json:"stop_conditions"`
}

// #endregion

// #region output

// Output is the engine's terminal solve result.
type Output struct {
	Schedule                  map[string]map[string][]string `json:"schedule"`
	FinalScore                float64                        `json:"final_score"`
	UniqueContacts            float64                        `json:"unique_contacts"`
	RepetitionPenalty         float64                        `json:"repetition_penalty"`
	AttributeBalancePenalty   float64                        `json:"attribute_balance_penalty"`
	ConstraintPenalty         float64                        `json:"constraint_penalty"`
	WeightedRepetitionPenalty float64                        `json:"weighted_repetition_penalty"`
	WeightedConstraintPenalty float64                        `json:"weighted_constraint_penalty"`

	// Optional final snapshot embedded with the result. When present it
	// wins over the controller's last-seen snapshot.
	Progress *schedule.Progress `json:"progress,omitempty"`
}

// #endregion
