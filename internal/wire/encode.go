package wire

import (
	"fmt"
	"math"

	"github.com/groupmix/go-controller/internal/schedule"
)

// #region encode

// EncodeProblem translates a host Problem into the engine's input
// document. The caller's Problem is never mutated: settings are copied
// before sanitization and constraints are rewritten into fresh values.
// initial, when non-nil, becomes the warm-start schedule.
func EncodeProblem(p schedule.Problem, initial []schedule.Assignment) (Input, error) {
	if p.NumSessions <= 0 {
		return Input{}, fmt.Errorf("encode problem: num_sessions must be positive, got %d", p.NumSessions)
	}
	if len(p.People) == 0 {
		return Input{}, fmt.Errorf("encode problem: no people")
	}
	if len(p.Groups) == 0 {
		return Input{}, fmt.Errorf("encode problem: no groups")
	}

	people := make(map[string]bool, len(p.People))
	for _, person := range p.People {
		people[person.ID] = true
	}
	groups := make(map[string]bool, len(p.Groups))
	for _, g := range p.Groups {
		groups[g.ID] = true
	}

	constraints := make([]schedule.Constraint, 0, len(p.Constraints))
	for i, c := range p.Constraints {
		enc, err := encodeConstraint(c, p.NumSessions, people, groups)
		if err != nil {
			return Input{}, fmt.Errorf("encode constraint %d (%s): %w", i, c.Type, err)
		}
		constraints = append(constraints, enc)
	}

	objectives := make([]schedule.Objective, len(p.Objectives))
	copy(objectives, p.Objectives)
	if len(objectives) == 0 {
		objectives = []schedule.Objective{{Type: schedule.ObjectiveUniqueContacts, Weight: 1.0}}
	}

	in := Input{
		Problem: InputProblem{
			People:      p.People,
			Groups:      p.Groups,
			NumSessions: p.NumSessions,
		},
		Objectives:  objectives,
		Constraints: constraints,
		Solver:      flattenSolver(p.Settings),
	}
	if initial != nil {
		in.InitialSchedule = encodeInitialSchedule(initial)
	}
	return in, nil
}

// #endregion

// #region constraints

func encodeConstraint(c schedule.Constraint, numSessions int, people, groups map[string]bool) (schedule.Constraint, error) {
	// Rewritten into a fresh value so default filling and session
	// expansion never touch the caller's slice backing arrays.
	enc := c
	enc.People = append([]string(nil), c.People...)
	enc.Sessions = append([]int(nil), c.Sessions...)
	if c.DesiredValues != nil {
		enc.DesiredValues = make(map[string]int, len(c.DesiredValues))
		for k, v := range c.DesiredValues {
			enc.DesiredValues[k] = v
		}
	}

	for _, id := range enc.People {
		if !people[id] {
			return schedule.Constraint{}, fmt.Errorf("unknown person %q", id)
		}
	}
	if enc.PersonID != "" && !people[enc.PersonID] {
		return schedule.Constraint{}, fmt.Errorf("unknown person %q", enc.PersonID)
	}
	if enc.GroupID != "" && !groups[enc.GroupID] {
		return schedule.Constraint{}, fmt.Errorf("unknown group %q", enc.GroupID)
	}

	switch enc.Type {
	case schedule.ConstraintStayTogether:
		enc.PenaltyWeight = defaultWeight(enc.PenaltyWeight, schedule.DefaultWeightStayTogether)
	case schedule.ConstraintNotTogether:
		enc.PenaltyWeight = defaultWeight(enc.PenaltyWeight, schedule.DefaultWeightNotTogether)
	case schedule.ConstraintRepeatEncounter:
		enc.PenaltyWeight = defaultWeight(enc.PenaltyWeight, schedule.DefaultWeightRepeatEncounter)
	case schedule.ConstraintAttributeBalance:
		enc.PenaltyWeight = defaultWeight(enc.PenaltyWeight, schedule.DefaultWeightAttributeBalance)
	case schedule.ConstraintImmovablePerson, schedule.ConstraintImmovablePeople:
		// Immovable constraints with no explicit session list pin the
		// person(s) for the whole run.
		if len(enc.Sessions) == 0 {
			enc.Sessions = make([]int, numSessions)
			for i := range enc.Sessions {
				enc.Sessions[i] = i
			}
		}
	default:
		return schedule.Constraint{}, fmt.Errorf("unsupported constraint type %q", enc.Type)
	}
	return enc, nil
}

func defaultWeight(w, def float64) float64 {
	if w == 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return def
	}
	return w
}

// #endregion

// #region solver

// flattenSolver copies the nested settings into the engine's single
// flat object, replacing every non-finite or missing numeric field with
// its documented default independently of the others.
func flattenSolver(s schedule.SolverSettings) Solver {
	solverType := s.SolverType
	if solverType == "" {
		solverType = schedule.SolverSimulatedAnnealing
	}
	coolingSchedule := s.Annealing.CoolingSchedule
	if coolingSchedule == "" {
		coolingSchedule = schedule.DefaultCoolingSchedule
	}
	maxIter := s.StopConditions.MaxIterations
	if maxIter == 0 {
		maxIter = schedule.DefaultMaxIterations
	}
	noImprove := s.StopConditions.NoImprovementIterations
	if noImprove == 0 {
		noImprove = schedule.DefaultNoImprovementIterations
	}
	return Solver{
		SolverType:               solverType,
		InitialTemperature:       finiteOr(s.Annealing.InitialTemperature, schedule.DefaultInitialTemperature),
		FinalTemperature:         finiteOr(s.Annealing.FinalTemperature, schedule.DefaultFinalTemperature),
		CoolingSchedule:          coolingSchedule,
		ReheatAfterNoImprovement: s.Annealing.ReheatAfterNoImprovement,
		StopConditions: schedule.StopConditions{
			MaxIterations:           maxIter,
			TimeLimitSeconds:        finiteOr(s.StopConditions.TimeLimitSeconds, schedule.DefaultTimeLimitSeconds),
			NoImprovementIterations: noImprove,
		},
	}
}

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return def
	}
	return v
}

// #endregion

// #region initial-schedule

func encodeInitialSchedule(assignments []schedule.Assignment) map[string]map[string][]string {
	out := make(map[string]map[string][]string)
	for _, a := range assignments {
		key := fmt.Sprintf("%s%d", sessionKeyPrefix, a.SessionID)
		if out[key] == nil {
			out[key] = make(map[string][]string)
		}
		out[key][a.GroupID] = append(out[key][a.GroupID], a.PersonID)
	}
	return out
}

// #endregion
