// Package mastery implements Bayesian Knowledge Tracing over a single
// mastery probability.
package mastery

import "math"

// Default model parameters.
const (
	DefaultSlip    = 0.1
	DefaultGuess   = 0.2
	DefaultTransit = 0.1

	// InitialMastery is the prior assigned to a newly tracked concept.
	InitialMastery = 0.5

	// epsilon keeps the prior inside the open interval where the
	// posterior denominator cannot vanish.
	epsilon = 1e-6
)

// Params holds the BKT probabilities.
type Params struct {
	Slip    float64 // P(incorrect | mastered)
	Guess   float64 // P(correct | not mastered)
	Transit float64 // P(learning on this opportunity)
}

// DefaultParams returns the fixed parameters used by the service.
func DefaultParams() Params {
	return Params{Slip: DefaultSlip, Guess: DefaultGuess, Transit: DefaultTransit}
}

// Model applies BKT updates. The zero value is not usable; use New.
type Model struct {
	p Params
}

// New returns a Model with p. Parameters outside [0,1] are clamped.
func New(p Params) Model {
	return Model{p: Params{
		Slip:    Clamp01(p.Slip),
		Guess:   Clamp01(p.Guess),
		Transit: Clamp01(p.Transit),
	}}
}

// Default returns a Model with DefaultParams.
func Default() Model {
	return New(DefaultParams())
}

// Params returns the parameters in effect.
func (m Model) Params() Params {
	return m.p
}

// Update returns the posterior mastery after observing one answer.
// The prior is clamped to [epsilon, 1-epsilon]; the result is always in [0,1].
func (m Model) Update(prior float64, correct bool) float64 {
	prior = clampPrior(prior)

	var evidence, rest float64
	if correct {
		evidence = prior * (1 - m.p.Slip)
		rest = (1 - prior) * m.p.Guess
	} else {
		evidence = prior * m.p.Slip
		rest = (1 - prior) * (1 - m.p.Guess)
	}

	posterior := prior
	if den := evidence + rest; den > 0 {
		posterior = evidence / den
	}

	return Clamp01(posterior + (1-posterior)*m.p.Transit)
}

// Update applies the default model.
func Update(prior float64, correct bool) float64 {
	return Default().Update(prior, correct)
}

// Clamp01 bounds x to [0,1]; NaN maps to 0.
func Clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

func clampPrior(x float64) float64 {
	if math.IsNaN(x) {
		return InitialMastery
	}
	return math.Min(1-epsilon, math.Max(epsilon, x))
}
