// Package aggregate folds per-test-case results into the submission's final
// verdict and score.
package aggregate

import (
	"math"

	"vjudge/internal/judge/model"
	"vjudge/pkg/utils/textutil"
)

// Aggregator computes a submission's outcome from its case results.
type Aggregator struct{}

func New() *Aggregator {
	return &Aggregator{}
}

// Aggregate folds results into one outcome. The overall status is the
// status of the first non-accepted case in input order, regardless of which
// case used the most resources. Time and memory are maxima, not sums; a
// submission's footprint is its worst case, cases run independently.
func (a *Aggregator) Aggregate(results []model.CaseResult, difficulty int, totalPossible int) *model.SubmissionOutcome {
	outcome := &model.SubmissionOutcome{
		Status: model.StatusAccepted,
		Cases:  results,
	}

	for i := range results {
		c := &results[i]
		if c.TimeMs > outcome.TimeMs {
			outcome.TimeMs = c.TimeMs
		}
		if c.MemoryKB > outcome.MemoryKB {
			outcome.MemoryKB = c.MemoryKB
		}
		outcome.Score += c.Score

		if c.Status != model.StatusAccepted && outcome.Status == model.StatusAccepted {
			outcome.Status = c.Status
			outcome.ErrMsg = textutil.Truncate(c.Output, textutil.DefaultMaxCaptured)
		}
	}

	outcome.RankScore = rankScore(outcome.Score, difficulty, totalPossible, outcome.Status == model.StatusAccepted)
	return outcome
}

// rankScore rewards both raw score and problem difficulty. A full solve
// earns the whole difficulty bonus; a partial solve earns it pro rata. A
// problem whose cases carry no points cannot be ranked and scores zero.
func rankScore(score, difficulty, totalPossible int, allAccepted bool) int {
	if totalPossible == 0 {
		return 0
	}
	base := float64(score) * 0.1
	if allAccepted {
		return int(math.Round(base + 2*float64(difficulty)))
	}
	ratio := float64(score) / float64(totalPossible)
	return int(math.Round(base + 2*float64(difficulty)*ratio))
}
