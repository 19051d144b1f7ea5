package main

import (
	"fmt"
	"log"
	"os"

	"github.com/groupmix/go-controller/internal/replay"
)

// #region main

// Replays recorded engine transcripts through the real dispatch path
// and compares the observed outcomes with each fixture's expectations.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: replay <transcript.json> [more...]")
		os.Exit(2)
	}

	failures := 0
	for _, path := range os.Args[1:] {
		t, err := replay.LoadTranscript(path)
		if err != nil {
			log.Printf("[REPLAY] %s: %v", path, err)
			failures++
			continue
		}
		res, err := replay.Run(t)
		if err != nil {
			log.Printf("[REPLAY] %s: run failed: %v", path, err)
			failures++
			continue
		}
		if res.Passed() {
			fmt.Printf("PASS %s (%s, %d progress)\n", path, res.Outcome, res.ProgressCount)
			continue
		}
		failures++
		fmt.Printf("FAIL %s\n", path)
		for _, m := range res.Mismatches {
			fmt.Printf("  - %s\n", m)
		}
	}

	if failures > 0 {
		fmt.Printf("%d transcript(s) failed\n", failures)
		os.Exit(1)
	}
}

// #endregion
