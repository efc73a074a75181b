package rules

import (
	"github.com/miethe/deal-brain-sub014/internal/domain"
)

// groupStat accumulates one rule group's results during an evaluation.
type groupStat struct {
	group   domain.RuleGroup
	matched int
	amount  float64
}

// computeComposite derives the weighted composite score across rule
// groups: each group contributes weight × total adjustment amount. The
// score is a derived signal for ranking listings and never feeds back
// into the adjusted price.
func computeComposite(stats []groupStat) (*float64, []domain.GroupContribution) {
	var score float64
	contributions := make([]domain.GroupContribution, 0, len(stats))

	for _, s := range stats {
		contribution := s.group.Weight * s.amount
		score += contribution
		contributions = append(contributions, domain.GroupContribution{
			GroupID:      s.group.ID,
			Weight:       s.group.Weight,
			Amount:       round2(s.amount),
			Matched:      s.matched,
			Contribution: round2(contribution),
		})
	}

	score = round2(score)
	return &score, contributions
}
