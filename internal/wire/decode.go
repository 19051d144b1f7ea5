package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/groupmix/go-controller/internal/schedule"
)

// sessionKeyPrefix is the engine's schedule-key convention:
// "session_0", "session_1", ...
const sessionKeyPrefix = "session_"

// ErrDecode marks engine payloads that cannot be turned into a
// Solution. Callers check it with errors.Is.
var ErrDecode = errors.New("malformed engine payload")

// #region decode-solution

// DecodeSolution reconstructs a Solution from a terminal result
// payload. recent is the controller's last-seen progress snapshot; a
// snapshot embedded in the payload itself takes priority, and with
// neither present the iteration/elapsed fields stay zero.
func DecodeSolution(raw json.RawMessage, recent *schedule.Progress) (schedule.Solution, error) {
	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return schedule.Solution{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	assignments, err := decodeSchedule(out.Schedule)
	if err != nil {
		return schedule.Solution{}, err
	}

	sol := schedule.Solution{
		Assignments: assignments,
		FinalScore:  out.FinalScore,
		Breakdown: schedule.ScoreBreakdown{
			UniqueContacts:            out.UniqueContacts,
			RepetitionPenalty:         out.RepetitionPenalty,
			AttributeBalancePenalty:   out.AttributeBalancePenalty,
			ConstraintPenalty:         out.ConstraintPenalty,
			WeightedRepetitionPenalty: out.WeightedRepetitionPenalty,
			WeightedConstraintPenalty: out.WeightedConstraintPenalty,
		},
	}

	snapshot := out.Progress
	if snapshot == nil {
		snapshot = recent
	}
	if snapshot != nil {
		sol.IterationCount = snapshot.Iteration
		sol.ElapsedMS = snapshot.ElapsedSeconds * 1000
	}
	return sol, nil
}

// decodeSchedule flattens the session -> group -> people maps into an
// ordered assignment list. A session key that does not parse to an
// integer is a decode error, never a silent skip.
func decodeSchedule(sched map[string]map[string][]string) ([]schedule.Assignment, error) {
	type sessionEntry struct {
		index  int
		groups map[string][]string
	}
	sessions := make([]sessionEntry, 0, len(sched))
	for key, groups := range sched {
		suffix, ok := strings.CutPrefix(key, sessionKeyPrefix)
		if !ok {
			return nil, fmt.Errorf("%w: schedule key %q lacks %q prefix", ErrDecode, key, sessionKeyPrefix)
		}
		index, err := strconv.Atoi(suffix)
		if err != nil {
			return nil, fmt.Errorf("%w: schedule key %q has non-integer session index", ErrDecode, key)
		}
		sessions = append(sessions, sessionEntry{index: index, groups: groups})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].index < sessions[j].index })

	var assignments []schedule.Assignment
	for _, s := range sessions {
		groupIDs := make([]string, 0, len(s.groups))
		for id := range s.groups {
			groupIDs = append(groupIDs, id)
		}
		sort.Strings(groupIDs)
		for _, gid := range groupIDs {
			for _, pid := range s.groups[gid] {
				assignments = append(assignments, schedule.Assignment{
					PersonID:  pid,
					GroupID:   gid,
					SessionID: s.index,
				})
			}
		}
	}
	return assignments, nil
}

// #endregion

// #region decode-progress

// DecodeProgress parses one progress payload. Optional fields absent
// from the wire decode to zero.
func DecodeProgress(raw json.RawMessage) (schedule.Progress, error) {
	var p schedule.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return schedule.Progress{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return p, nil
}

// #endregion

// #region decode-settings

// DecodeSettings parses a solver configuration returned by an
// auxiliary query (the engine answers in the same flat form it
// accepts) and re-nests it into host settings, filling defaults for
// anything the engine left out.
func DecodeSettings(raw json.RawMessage) (schedule.SolverSettings, error) {
	var s Solver
	if err := json.Unmarshal(raw, &s); err != nil {
		return schedule.SolverSettings{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	nested := schedule.SolverSettings{
		SolverType:     s.SolverType,
		StopConditions: s.StopConditions,
		Annealing: schedule.AnnealingParams{
			InitialTemperature:       s.InitialTemperature,
			FinalTemperature:         s.FinalTemperature,
			CoolingSchedule:          s.CoolingSchedule,
			ReheatAfterNoImprovement: s.ReheatAfterNoImprovement,
		},
	}
	// Round-trip through the sanitizer so host code never holds a
	// half-filled configuration.
	flat := flattenSolver(nested)
	return schedule.SolverSettings{
		SolverType:     flat.SolverType,
		StopConditions: flat.StopConditions,
		Annealing: schedule.AnnealingParams{
			InitialTemperature:       flat.InitialTemperature,
			FinalTemperature:         flat.FinalTemperature,
			CoolingSchedule:          flat.CoolingSchedule,
			ReheatAfterNoImprovement: flat.ReheatAfterNoImprovement,
		},
	}, nil
}

// #endregion
