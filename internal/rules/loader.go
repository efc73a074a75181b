package rules

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/miethe/deal-brain-sub014/internal/domain"
)

// LoadRulesetsFile reads ruleset definitions from a JSON file. The file
// holds an array of rulesets and is the read-only entry point for rule
// definitions; authoring and versioning happen upstream.
func LoadRulesetsFile(path string) ([]*domain.Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file %s: %w", path, err)
	}

	var rulesets []*domain.Ruleset
	if err := json.Unmarshal(data, &rulesets); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(rulesets))
	for i, rs := range rulesets {
		if rs == nil || rs.ID == "" {
			return nil, fmt.Errorf("ruleset file %s: entry %d has no id", path, i)
		}
		if seen[rs.ID] {
			return nil, fmt.Errorf("ruleset file %s: duplicate ruleset id %q", path, rs.ID)
		}
		seen[rs.ID] = true
	}

	return rulesets, nil
}
