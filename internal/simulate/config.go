package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Students int           // Number of simulated students
	Concepts int           // Number of concepts to register
	Rounds   int           // Practice rounds per student
	PerRound int           // Quizzes requested per round
	Workers  int           // Number of concurrent students
	Recall   float64       // Probability a student recalls an answer it has seen
	Timeout  time.Duration // HTTP request timeout
	Seed     uint64        // Seed for answer choices
	LogFile  string        // Log file for run output
	Verbose  bool          // Log every answer
}

type conceptRequest struct {
	Label      string `json:"label"`
	Definition string `json:"definition"`
}

type concept struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type trackRequest struct {
	ConceptID string `json:"concept_id"`
	CourseID  string `json:"course_id"`
}

type pendingQuiz struct {
	QuestionID   string   `json:"question_id"`
	ConceptID    string   `json:"concept_id"`
	ConceptLabel string   `json:"concept_label"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	Fallback     bool     `json:"fallback"`
}

type pendingResponse struct {
	Quizzes []pendingQuiz `json:"quizzes"`
}

type submitRequest struct {
	StudentID      string `json:"student_id"`
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
	LatencyMs      int64  `json:"latency_ms"`
}

type submitResult struct {
	Correct       bool       `json:"correct"`
	CorrectAnswer string     `json:"correct_answer"`
	NewMastery    *float64   `json:"new_mastery"`
	NextReview    *time.Time `json:"next_review"`
}

type entry struct {
	ID                 string     `json:"id"`
	ConceptID          string     `json:"concept_id"`
	MasteryProbability float64    `json:"mastery_probability"`
	LastReview         *time.Time `json:"last_review"`
	NextReview         time.Time  `json:"next_review"`
	Phase              string     `json:"phase"`
}

type entriesResponse struct {
	Entries []entry `json:"entries"`
}

type studentStats struct {
	ConceptsMastered int    `json:"concepts_mastered"`
	ConceptsTracked  int    `json:"concepts_tracked"`
	Streak           string `json:"streak"`
	TimeSpent        string `json:"time_spent"`
	RetentionRate    string `json:"retention_rate"`
	Responses        int    `json:"responses"`
}

type dispatchReport struct {
	Due        int `json:"due"`
	Locked     int `json:"locked"`
	Failed     int `json:"failed"`
	Superseded int `json:"superseded"`
	Skipped    int `json:"skipped"`
}

// Stats holds run statistics.
type Stats struct {
	ConceptsRegistered int
	AnswersSubmitted   int
	AnswersCorrect     int
	AnswersFailed      int
	FallbackQuizzes    int
	StudentsVerified   int
	MasteredTotal      int
	Dispatch           dispatchReport
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
