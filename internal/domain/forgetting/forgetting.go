// Package forgetting models recall decay with an exponential forgetting
// curve, R(t) = e^(-t/S), and inverts it to pick review times.
package forgetting

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultTargetRetention is the recall probability at which a review is due.
	DefaultTargetRetention = 0.7

	// MinStability is the floor, in days, applied to derived stability.
	MinStability = 0.5

	// stabilityPerMastery scales mastery in [0,1] to days.
	stabilityPerMastery = 10.0

	// Day is the unit stability is expressed in.
	Day = 24 * time.Hour
)

// Stability derives a stability in days from a mastery probability.
func Stability(mastery float64) float64 {
	if math.IsNaN(mastery) {
		return MinStability
	}
	return math.Max(MinStability, mastery*stabilityPerMastery)
}

// Interval returns how long after a review recall decays to target.
// Non-positive or NaN stability is raised to MinStability.
func Interval(stability, target float64) (time.Duration, error) {
	if !(target > 0 && target < 1) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRetention, target)
	}
	if !(stability > 0) {
		stability = MinStability
	}
	days := -stability * math.Log(target)
	return time.Duration(days * float64(Day)), nil
}

// NextReviewTime returns the instant at which retention reaches target.
func NextReviewTime(lastReview time.Time, stability, target float64) (time.Time, error) {
	d, err := Interval(stability, target)
	if err != nil {
		return time.Time{}, err
	}
	return lastReview.Add(d), nil
}

// Retention returns e^(-elapsed/S) with elapsed measured in days.
func Retention(elapsed time.Duration, stability float64) float64 {
	if !(stability > 0) {
		stability = MinStability
	}
	days := elapsed.Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / stability)
}
