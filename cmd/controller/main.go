package main

// #region imports
import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/groupmix/go-controller/internal/channel"
	"github.com/groupmix/go-controller/internal/config"
	"github.com/groupmix/go-controller/internal/roster"
	"github.com/groupmix/go-controller/internal/schedule"
	"github.com/groupmix/go-controller/internal/session"
	"github.com/groupmix/go-controller/internal/settings"
)

// #endregion

// #region main
func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := settings.NewStore(cfg.StorePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctrl := session.New(session.Config{
		PrimaryURL:  cfg.EnginePrimaryURL,
		FallbackURL: cfg.EngineFallbackURL,
		Dialer:      channel.WebsocketDialer{HandshakeTimeout: cfg.DialTimeout},
	})
	defer ctrl.Terminate()

	fmt.Println("groupmix controller ready.")
	fmt.Printf("  engine: %s (fallback %s) | store: %s\n", cfg.EnginePrimaryURL, cfg.EngineFallbackURL, cfg.StorePath)
	fmt.Println("Type 'help' for commands.")

	r := &repl{ctrl: ctrl, store: store}
	r.problem.Settings = schedule.DefaultSolverSettings()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		r.handle(line)
	}
}

// #endregion

// #region repl
type repl struct {
	ctrl  *session.Controller
	store *settings.Store

	problem      schedule.Problem
	lastSolution *schedule.Solution
	solving      atomic.Bool
}

func (r *repl) handle(line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp()
	case "people":
		r.loadPeople(args)
	case "groups":
		r.loadGroups(args)
	case "sessions":
		r.setSessions(args)
	case "problem":
		r.loadProblem(args)
	case "status":
		r.status()
	case "solve":
		r.startSolve(false)
	case "warm":
		r.startSolve(true)
	case "cancel":
		r.cancel()
	case "defaults":
		r.defaults()
	case "recommend":
		r.recommend(args)
	case "preset":
		r.preset(args)
	case "export":
		r.export(args)
	case "history":
		r.history()
	default:
		fmt.Printf("unknown command %q (try 'help')\n", cmd)
	}
}

func printHelp() {
	fmt.Println(`commands:
  people <csv>        load people from CSV (id + attribute columns)
  groups <csv>        load groups from CSV (id,size)
  sessions <n>        set session count
  problem <json>      load a full problem (constraints included)
  solve               run the optimizer with live progress
  warm                re-solve warm-started from the last solution
  cancel              abandon the running solve
  defaults            show the engine's default solver settings
  recommend <secs>    ask the engine to size settings for a time budget
  preset save|load|list|delete [name]
  export <csv>        write the last solution's assignments
  history             recent solve outcomes
  status              current problem and session state
  quit`)
}

// #endregion

// #region problem-setup
func (r *repl) loadPeople(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: people <csv>")
		return
	}
	people, err := roster.ReadPeopleFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	r.problem.People = people
	fmt.Printf("loaded %d people\n", len(people))
}

func (r *repl) loadGroups(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: groups <csv>")
		return
	}
	groups, err := roster.ReadGroupsFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	r.problem.Groups = groups
	fmt.Printf("loaded %d groups\n", len(groups))
}

func (r *repl) setSessions(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: sessions <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		fmt.Println("sessions must be a positive integer")
		return
	}
	r.problem.NumSessions = n
	fmt.Printf("sessions = %d\n", n)
}

func (r *repl) loadProblem(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: problem <json>")
		return
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	var p schedule.Problem
	if err := json.Unmarshal(data, &p); err != nil {
		fmt.Printf("error: parse problem: %v\n", err)
		return
	}
	if p.Settings.SolverType == "" {
		p.Settings = r.problem.Settings
	}
	r.problem = p
	fmt.Printf("loaded problem: %d people, %d groups, %d sessions, %d constraints\n",
		len(p.People), len(p.Groups), p.NumSessions, len(p.Constraints))
}

func (r *repl) status() {
	fmt.Printf("session: %s | people=%d groups=%d sessions=%d constraints=%d objectives=%d\n",
		r.ctrl.State(), len(r.problem.People), len(r.problem.Groups),
		r.problem.NumSessions, len(r.problem.Constraints), len(r.problem.Objectives))
	if r.lastSolution != nil {
		fmt.Printf("last solution: score=%.3f assignments=%d\n",
			r.lastSolution.FinalScore, len(r.lastSolution.Assignments))
	}
}

// #endregion

// #region solve
func (r *repl) startSolve(warm bool) {
	if r.solving.Load() {
		fmt.Println("a solve is already running; use 'cancel' first")
		return
	}
	if warm && r.lastSolution == nil {
		fmt.Println("no previous solution to warm-start from")
		return
	}
	prob := r.problem
	var initial []schedule.Assignment
	if warm {
		initial = r.lastSolution.Assignments
	}
	r.solving.Store(true)

	// Runs in the background so the prompt stays responsive and
	// 'cancel' can interrupt it.
	go func() {
		defer r.solving.Store(false)
		sink := func(p schedule.Progress) {
			fmt.Printf("\r[solve] iter=%d elapsed=%.1fs temp=%.4f accept=%.2f",
				p.Iteration, p.ElapsedSeconds, p.Temperature, p.RecentAcceptanceRate)
		}

		var sol *schedule.Solution
		var err error
		if warm {
			sol, _, err = r.ctrl.SolveWithWarmStart(context.Background(), prob, initial, sink)
		} else {
			sol, _, err = r.ctrl.SolveWithProgress(context.Background(), prob, sink)
		}
		fmt.Println()

		rec := settings.SolveRecord{
			PeopleCount:  len(prob.People),
			GroupCount:   len(prob.Groups),
			SessionCount: prob.NumSessions,
		}
		switch {
		case err == nil:
			r.lastSolution = sol
			rec.Outcome = "solved"
			rec.FinalScore = sol.FinalScore
			rec.IterationCount = sol.IterationCount
			rec.ElapsedMS = sol.ElapsedMS
			fmt.Printf("solved: score=%.3f contacts=%.0f iterations=%d elapsed=%.0fms\n> ",
				sol.FinalScore, sol.Breakdown.UniqueContacts, sol.IterationCount, sol.ElapsedMS)
		case errors.Is(err, channel.ErrCancelled):
			rec.Outcome = "cancelled"
			fmt.Print("solve cancelled\n> ")
		default:
			rec.Outcome = "error"
			rec.Detail = err.Error()
			fmt.Printf("solve failed: %v\n> ", err)
		}
		if err := r.store.RecordSolve(rec); err != nil {
			log.Printf("failed to record solve: %v", err)
		}
	}()
}

func (r *repl) cancel() {
	if err := r.ctrl.Cancel(context.Background()); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("cancelled")
}

// #endregion

// #region settings
func (r *repl) defaults() {
	s, err := r.ctrl.DefaultSettings(context.Background())
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	printSettings(s)
}

func (r *repl) recommend(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: recommend <seconds>")
		return
	}
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil || secs <= 0 {
		fmt.Println("seconds must be a positive number")
		return
	}
	s, err := r.ctrl.RecommendedSettings(context.Background(), r.problem, secs)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	r.problem.Settings = s
	fmt.Println("adopted recommended settings:")
	printSettings(s)
}

func (r *repl) preset(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: preset save|load|list|delete [name]")
		return
	}
	switch args[0] {
	case "save":
		if len(args) != 2 {
			fmt.Println("usage: preset save <name>")
			return
		}
		if err := r.store.SavePreset(args[1], r.problem.Settings); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("saved preset %q\n", args[1])
	case "load":
		if len(args) != 2 {
			fmt.Println("usage: preset load <name>")
			return
		}
		s, err := r.store.LoadPreset(args[1])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		r.problem.Settings = s
		printSettings(s)
	case "list":
		presets, err := r.store.ListPresets()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		for _, p := range presets {
			fmt.Printf("  %s (updated %s)\n", p.Name, p.UpdatedAt.Format("2006-01-02 15:04"))
		}
		if len(presets) == 0 {
			fmt.Println("  (none)")
		}
	case "delete":
		if len(args) != 2 {
			fmt.Println("usage: preset delete <name>")
			return
		}
		if err := r.store.DeletePreset(args[1]); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("deleted preset %q\n", args[1])
	default:
		fmt.Println("usage: preset save|load|list|delete [name]")
	}
}

func printSettings(s schedule.SolverSettings) {
	fmt.Printf("  solver=%s temp=%.3f..%.3f cooling=%s reheat=%d\n",
		s.SolverType, s.Annealing.InitialTemperature, s.Annealing.FinalTemperature,
		s.Annealing.CoolingSchedule, s.Annealing.ReheatAfterNoImprovement)
	fmt.Printf("  stop: max_iter=%d time_limit=%.0fs no_improvement=%d\n",
		s.StopConditions.MaxIterations, s.StopConditions.TimeLimitSeconds,
		s.StopConditions.NoImprovementIterations)
}

// #endregion

// #region export-history
func (r *repl) export(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: export <csv>")
		return
	}
	if r.lastSolution == nil {
		fmt.Println("no solution to export")
		return
	}
	if err := roster.WriteAssignmentsFile(args[0], *r.lastSolution); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("wrote %d assignments to %s\n", len(r.lastSolution.Assignments), args[0])
}

func (r *repl) history() {
	records, err := r.store.RecentSolves(10)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, rec := range records {
		fmt.Printf("  %s %-9s people=%d score=%.3f iter=%d\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Outcome,
			rec.PeopleCount, rec.FinalScore, rec.IterationCount)
	}
	if len(records) == 0 {
		fmt.Println("  (none)")
	}
}

// #endregion
