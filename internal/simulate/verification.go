package simulate

import (
	"context"
	"fmt"
	"net/url"
)

// verifyStudent checks the service's view of a student against what the
// simulation did.
func verifyStudent(ctx context.Context, c *httpClient, s *student, concepts int) (studentStats, error) {
	base := "/students/" + url.PathEscape(s.id)

	var entries entriesResponse
	if err := c.get(ctx, base+"/entries", &entries); err != nil {
		return studentStats{}, err
	}
	if len(entries.Entries) != concepts {
		return studentStats{}, fmt.Errorf("%w: %s has %d entries, want %d", ErrVerification, s.id, len(entries.Entries), concepts)
	}
	for _, e := range entries.Entries {
		if e.MasteryProbability < 0 || e.MasteryProbability > 1 {
			return studentStats{}, fmt.Errorf("%w: entry %s mastery %v out of range", ErrVerification, e.ID, e.MasteryProbability)
		}
		if e.LastReview != nil && e.NextReview.Before(*e.LastReview) {
			return studentStats{}, fmt.Errorf("%w: entry %s next review precedes last review", ErrVerification, e.ID)
		}
	}

	var stats studentStats
	if err := c.get(ctx, base+"/stats", &stats); err != nil {
		return studentStats{}, err
	}
	if stats.Responses != s.answered {
		return studentStats{}, fmt.Errorf("%w: %s has %d responses logged, answered %d", ErrVerification, s.id, stats.Responses, s.answered)
	}
	if stats.ConceptsTracked != concepts {
		return studentStats{}, fmt.Errorf("%w: %s tracks %d concepts, want %d", ErrVerification, s.id, stats.ConceptsTracked, concepts)
	}
	return stats, nil
}
