package resolver

import (
	"fmt"
	"strings"
)

// Stage names one link of the resolution chain.
type Stage string

// Chain stages in their canonical order.
const (
	StageProvider Stage = "provider"
	StageRankList Stage = "rank-list"
	StageEstimate Stage = "estimate"
)

// DefaultStages enables the full chain.
var DefaultStages = []Stage{StageProvider, StageRankList, StageEstimate}

// ParseStages validates stage names from configuration. Order is preserved;
// duplicates are rejected.
func ParseStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("resolver.stages must enable at least one stage")
	}
	seen := make(map[Stage]bool, len(names))
	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		stage := Stage(strings.ToLower(strings.TrimSpace(name)))
		switch stage {
		case StageProvider, StageRankList, StageEstimate:
		default:
			return nil, fmt.Errorf("resolver.stages: unknown stage %q", name)
		}
		if seen[stage] {
			return nil, fmt.Errorf("resolver.stages: duplicate stage %q", name)
		}
		seen[stage] = true
		stages = append(stages, stage)
	}
	return stages, nil
}
