package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/tutor/internal/simulate"
)

// Default configuration constants.
const (
	defaultStudents    = 20
	defaultConcepts    = 5
	defaultRounds      = 10
	defaultPerRound    = 3
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultRecall      = 0.8
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		students = flag.Int("students", defaultStudents, "Number of simulated students")
		concepts = flag.Int("concepts", defaultConcepts, "Number of concepts to register")
		rounds   = flag.Int("rounds", defaultRounds, "Practice rounds per student")
		perRound = flag.Int("per-round", defaultPerRound, "Quizzes requested per round")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent students")
		recall   = flag.Float64("recall", defaultRecall, "Probability of recalling a previously seen answer")
		seed     = flag.Uint64("seed", 1, "Seed for answer choices")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile  = flag.String("log", "", "Log file for run output (default: simulate_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Log every answer")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	config := &simulate.Config{
		BaseURL:  *baseURL,
		Students: *students,
		Concepts: *concepts,
		Rounds:   *rounds,
		PerRound: *perRound,
		Workers:  *workers,
		Recall:   *recall,
		Timeout:  *timeout,
		Seed:     *seed,
		LogFile:  *logFile,
		Verbose:  *verbose,
	}

	if _, err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1) //nolint:gocritic // deferred cleanup is best effort
	}
}
