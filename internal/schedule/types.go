package schedule

// #region people-groups

// Person is one schedulable participant. Attributes are free-form
// key/value pairs (e.g. "gender" -> "f") consumed by balance constraints.
type Person struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Group is a container people are assigned to, once per session.
type Group struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

// #endregion

// #region constraints

// ConstraintType tags the constraint variants the engine understands.
type ConstraintType string

const (
	ConstraintStayTogether     ConstraintType = "stay_together"
	ConstraintNotTogether      ConstraintType = "not_together"
	ConstraintRepeatEncounter  ConstraintType = "repeat_encounter"
	ConstraintAttributeBalance ConstraintType = "attribute_balance"
	ConstraintImmovablePerson  ConstraintType = "immovable_person"
	ConstraintImmovablePeople  ConstraintType = "immovable_people"
)

// Constraint is a tagged variant; which fields apply depends on Type.
// A zero PenaltyWeight means "unset" and is replaced by the per-type
// default before transmission (see wire.EncodeProblem).
type Constraint struct {
	Type ConstraintType `json:"type"`

	// stay_together / not_together / immovable_people
	People []string `json:"people,omitempty"`

	// immovable_person
	PersonID string `json:"person_id,omitempty"`

	// immovable_person / immovable_people / attribute_balance
	GroupID string `json:"group_id,omitempty"`

	// immovable_person / immovable_people; empty means every session
	Sessions []int `json:"sessions,omitempty"`

	// repeat_encounter
	MaxAllowedEncounters int `json:"max_allowed_encounters,omitempty"`

	// attribute_balance
	AttributeKey  string         `json:"attribute_key,omitempty"`
	DesiredValues map[string]int `json:"desired_values,omitempty"`

	PenaltyWeight float64 `json:"penalty_weight,omitempty"`
}

// #endregion

// #region objectives

// Objective is a weighted optimization target.
type Objective struct {
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// ObjectiveUniqueContacts is the default objective substituted when a
// problem specifies none.
const ObjectiveUniqueContacts = "maximize_unique_contacts"

// #endregion

// #region problem

// Problem is the host-side description of one scheduling run.
type Problem struct {
	People      []Person       `json:"people"`
	Groups      []Group        `json:"groups"`
	NumSessions int            `json:"num_sessions"`
	Constraints []Constraint   `json:"constraints,omitempty"`
	Objectives  []Objective    `json:"objectives,omitempty"`
	Settings    SolverSettings `json:"settings"`
}

// #endregion

// #region solver-settings

// SolverSettings selects an algorithm family and its parameters.
// Only simulated annealing is currently defined.
type SolverSettings struct {
	SolverType     string          `json:"solver_type"`
	StopConditions StopConditions  `json:"stop_conditions"`
	Annealing      AnnealingParams `json:"simulated_annealing"`
}

// StopConditions terminate a run; zero values mean "use the default".
type StopConditions struct {
	MaxIterations           uint64  `json:"max_iterations"`
	TimeLimitSeconds        float64 `json:"time_limit_seconds"`
	NoImprovementIterations uint64  `json:"no_improvement_iterations"`
}

// AnnealingParams are the simulated-annealing knobs.
type AnnealingParams struct {
	InitialTemperature       float64 `json:"initial_temperature"`
	FinalTemperature         float64 `json:"final_temperature"`
	CoolingSchedule          string  `json:"cooling_schedule"`
	ReheatAfterNoImprovement uint64  `json:"reheat_after_no_improvement"`
}

const SolverSimulatedAnnealing = "simulated_annealing"

// Engine defaults applied whenever a field is missing or not finite.
const (
	DefaultInitialTemperature      = 1.0
	DefaultFinalTemperature        = 0.01
	DefaultCoolingSchedule         = "geometric"
	DefaultMaxIterations           = 10000
	DefaultTimeLimitSeconds        = 30.0
	DefaultNoImprovementIterations = 5000
)

// Per-constraint-type default penalty weights.
const (
	DefaultWeightStayTogether     = 1000.0
	DefaultWeightNotTogether      = 1000.0
	DefaultWeightRepeatEncounter  = 1.0
	DefaultWeightAttributeBalance = 50.0
)

// DefaultSolverSettings returns the documented engine defaults.
func DefaultSolverSettings() SolverSettings {
	return SolverSettings{
		SolverType: SolverSimulatedAnnealing,
		StopConditions: StopConditions{
			MaxIterations:           DefaultMaxIterations,
			TimeLimitSeconds:        DefaultTimeLimitSeconds,
			NoImprovementIterations: DefaultNoImprovementIterations,
		},
		Annealing: AnnealingParams{
			InitialTemperature: DefaultInitialTemperature,
			FinalTemperature:   DefaultFinalTemperature,
			CoolingSchedule:    DefaultCoolingSchedule,
		},
	}
}

// #endregion

// #region solution

// Assignment places one person in one group for one session.
type Assignment struct {
	PersonID  string `json:"person_id"`
	GroupID   string `json:"group_id"`
	SessionID int    `json:"session_id"`
}

// ScoreBreakdown itemizes the final score.
type ScoreBreakdown struct {
	UniqueContacts            float64 `json:"unique_contacts"`
	RepetitionPenalty         float64 `json:"repetition_penalty"`
	AttributeBalancePenalty   float64 `json:"attribute_balance_penalty"`
	ConstraintPenalty         float64 `json:"constraint_penalty"`
	WeightedRepetitionPenalty float64 `json:"weighted_repetition_penalty"`
	WeightedConstraintPenalty float64 `json:"weighted_constraint_penalty"`
}

// Solution is the decoded outcome of one solve. It is constructed whole
// from an engine result and never mutated afterwards.
type Solution struct {
	Assignments    []Assignment   `json:"assignments"`
	FinalScore     float64        `json:"final_score"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	IterationCount uint64         `json:"iteration_count"`
	ElapsedMS      float64        `json:"elapsed_time_ms"`
}

// #endregion

// #region progress

// Progress is a point-in-time readout of optimizer internals. Every
// field beyond Iteration and ElapsedSeconds is optional on the wire;
// absent fields decode to zero.
type Progress struct {
	Iteration      uint64  `json:"iteration"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`

	Temperature           float64 `json:"temperature,omitempty"`
	CoolingProgress       float64 `json:"coolingProgress,omitempty"`
	OverallAcceptanceRate float64 `json:"overallAcceptanceRate,omitempty"`
	RecentAcceptanceRate  float64 `json:"recentAcceptanceRate,omitempty"`

	CliqueSwapsTried    uint64 `json:"cliqueSwapsTried,omitempty"`
	CliqueSwapsAccepted uint64 `json:"cliqueSwapsAccepted,omitempty"`
	TransfersTried      uint64 `json:"transfersTried,omitempty"`
	TransfersAccepted   uint64 `json:"transfersAccepted,omitempty"`
	SwapsTried          uint64 `json:"swapsTried,omitempty"`
	SwapsAccepted       uint64 `json:"swapsAccepted,omitempty"`

	AvgIterationTime    float64 `json:"avgIterationTime,omitempty"`
	IterationsPerSecond float64 `json:"iterationsPerSecond,omitempty"`
	ScoreStdDev         float64 `json:"scoreStdDev,omitempty"`
	ScoreVariance       float64 `json:"scoreVariance,omitempty"`

	CurrentRepetitionPenalty float64 `json:"currentRepetitionPenalty,omitempty"`
	CurrentBalancePenalty    float64 `json:"currentBalancePenalty,omitempty"`
	CurrentConstraintPenalty float64 `json:"currentConstraintPenalty,omitempty"`
}

// #endregion
