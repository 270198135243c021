// Package quiz defines micro-quiz content, its validation and the
// generator boundary.
package quiz

import (
	"context"
	"fmt"
	"strings"
)

// Difficulty levels understood by generators.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// MinOptions is the smallest number of choices a question may offer.
const MinOptions = 2

// Content is a validated-or-not multiple-choice question.
type Content struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// Result is what a generator produced: either usable content or a reason
// why the output could not be used.
type Result struct {
	content Content
	reason  string
	ok      bool
}

// Ok wraps content that passed Validate.
func Ok(c Content) Result { return Result{content: c, ok: true} }

// Malformed records why generator output was rejected.
func Malformed(reason string) Result { return Result{reason: reason} }

// IsOk reports whether r carries content.
func (r Result) IsOk() bool { return r.ok }

// Content returns the content and true for Ok results.
func (r Result) Content() (Content, bool) { return r.content, r.ok }

// Reason is empty for Ok results.
func (r Result) Reason() string { return r.reason }

// Validate checks c has a question, at least MinOptions non-empty options
// and an answer that is one of them.
func Validate(c Content) error {
	if strings.TrimSpace(c.Question) == "" {
		return fmt.Errorf("%w: empty question", ErrMalformed)
	}
	if len(c.Options) < MinOptions {
		return fmt.Errorf("%w: %d options, need at least %d", ErrMalformed, len(c.Options), MinOptions)
	}
	found := false
	for i, o := range c.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrMalformed, i)
		}
		if o == c.Answer {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: answer %q is not an option", ErrMalformed, c.Answer)
	}
	return nil
}

// Check validates c and tags it.
func Check(c Content) Result {
	if err := Validate(c); err != nil {
		return Malformed(err.Error())
	}
	return Ok(c)
}

// FallbackOptions are the fixed choices of the fallback question.
var FallbackOptions = []string{"Concept", "Process", "Tool", "Metric"}

// Fallback returns the deterministic question served when generation fails.
func Fallback(label string) Content {
	opts := make([]string, len(FallbackOptions))
	copy(opts, FallbackOptions)
	return Content{
		Question: fmt.Sprintf("What is %s?", label),
		Options:  opts,
		Answer:   FallbackOptions[0],
	}
}

// Resolve picks the content to serve for a generator call. The second
// return value is true when the fallback was used.
func Resolve(label string, r Result, err error) (Content, bool) {
	if err != nil {
		return Fallback(label), true
	}
	if c, ok := r.Content(); ok {
		return c, false
	}
	return Fallback(label), true
}

// Generator produces quiz content for a concept label.
// A transport failure is an error; unusable output is a Malformed result.
type Generator interface {
	Generate(ctx context.Context, label, difficulty, notes string) (Result, error)
}

// Unavailable is a Generator used when no model endpoint is configured.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string, string, string) (Result, error) {
	return Malformed("quiz generator not configured"), nil
}

// Prompt renders the instruction sent to a language model.
func Prompt(label, difficulty, notes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a %s difficulty micro-quiz for the concept %q.\n", difficulty, label)
	if notes != "" {
		b.WriteString("Use the following context so the question matches the student's notes:\n---\n")
		b.WriteString(notes)
		b.WriteString("\n---\n")
	}
	b.WriteString(`Return a JSON object with:
- "question": the question text.
- "options": an array of 4 options (strings).
- "answer": the correct option, exactly one of the options.
- "explanation": a brief explanation of why the answer is correct.
Return ONLY valid JSON. No markdown formatting.`)
	return b.String()
}
