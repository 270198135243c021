package model

import "time"

// OutcomeKind classifies how a review job ended.
type OutcomeKind int

const (
	// OutcomeLocked: quiz generated and lockout persisted.
	OutcomeLocked OutcomeKind = iota
	// OutcomeSuperseded: the entry changed underneath (a response won the race).
	OutcomeSuperseded
	// OutcomeFailed: generation or persistence failed; the entry stays due.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLocked:
		return "locked"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReviewOutcome is reported once per ReviewJob.
type ReviewOutcome struct {
	EntryID string
	Kind    OutcomeKind
	Err     error
}

// ReviewJob carries one due entry from the dispatcher to a review worker.
type ReviewJob struct {
	Entry MemoryEntry
	// Now is the tick time the entry was found due at.
	Now time.Time
	// Done, when set, receives the outcome exactly once.
	Done func(ReviewOutcome)
}

// Finish reports o through Done if present.
func (j *ReviewJob) Finish(o ReviewOutcome) {
	if j.Done != nil {
		j.Done(o)
	}
}
