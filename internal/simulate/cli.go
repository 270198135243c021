package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/tutor/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated. The returned
// function closes the file.
func SetupLogging(logFile string) (func() error, error) {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "simulate_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWith(logger.Options{Output: io.MultiWriter(os.Stdout, file)}); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Tutor Simulator
===============

Drives simulated students against a running tutor service: registers
concepts, tracks students, answers pending quizzes and verifies the
recorded mastery and review schedule.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -students int
        Number of simulated students (default 20)
  -concepts int
        Number of concepts to register (default 5)
  -rounds int
        Practice rounds per student (default 10)
  -per-round int
        Quizzes requested per round (default 3)
  -workers int
        Number of concurrent students (default CPU cores * 2)
  -recall float
        Probability of recalling a previously seen answer (default 0.8)
  -seed uint
        Seed for answer choices (default 1)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file for run output (default: simulate_log_TIMESTAMP.log)
  -verbose
        Log every answer
  -help
        Show this help message

Examples:
  go run ./cmd/simulate -students 100 -rounds 20
  go run ./cmd/simulate -url http://localhost:8080 -recall 0.95 -verbose
`)
}
