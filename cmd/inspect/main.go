package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/groupmix/go-controller/internal/settings"
)

// #region main

// Dumps the contents of the controller's store: saved presets and
// recent solve history.
func main() {
	dbPath := flag.String("db", envOr("GROUPMIX_STORE_PATH", "groupmix.db"), "store path")
	limit := flag.Int("limit", 20, "history rows to show")
	flag.Parse()

	store, err := settings.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	presets, err := store.ListPresets()
	if err != nil {
		log.Fatalf("failed to list presets: %v", err)
	}
	fmt.Printf("presets (%d):\n", len(presets))
	for _, p := range presets {
		fmt.Printf("  %-20s solver=%s max_iter=%d time_limit=%.0fs (updated %s)\n",
			p.Name, p.Settings.SolverType, p.Settings.StopConditions.MaxIterations,
			p.Settings.StopConditions.TimeLimitSeconds, p.UpdatedAt.Format("2006-01-02 15:04"))
	}

	records, err := store.RecentSolves(*limit)
	if err != nil {
		log.Fatalf("failed to read history: %v", err)
	}
	fmt.Printf("\nsolve history (%d):\n", len(records))
	for _, rec := range records {
		fmt.Printf("  %s %-9s people=%-4d groups=%-3d sessions=%-3d score=%.3f iter=%d elapsed=%.0fms",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Outcome,
			rec.PeopleCount, rec.GroupCount, rec.SessionCount,
			rec.FinalScore, rec.IterationCount, rec.ElapsedMS)
		if rec.Detail != "" {
			fmt.Printf(" (%s)", rec.Detail)
		}
		fmt.Println()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion
