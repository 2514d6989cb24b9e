package triage

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/cartonhq/carton/pkg/common"
)

// RulePolicy is the offline default: mention counts and name shape decide.
// Rarely mentioned names are noise, frequently mentioned ones deserve a
// researched definition, and the middle gets a placeholder definition.
type RulePolicy struct {
	// BlacklistBelow suppresses names mentioned fewer than this many times.
	BlacklistBelow int
	// ResearchAbove flags names mentioned at least this many times.
	ResearchAbove int
}

func NewRulePolicy() *RulePolicy {
	return &RulePolicy{
		BlacklistBelow: 2,
		ResearchAbove:  5,
	}
}

func (p *RulePolicy) Decide(_ context.Context, _ string, missing common.MissingEntity) (Outcome, error) {
	out := Outcome{Name: missing.Name}

	switch {
	case looksLikeNoise(missing.Name):
		out.Decision = DecisionBlacklist
		out.Reason = "name shape suggests noise"
	case missing.MentionCount < p.BlacklistBelow:
		out.Decision = DecisionBlacklist
		out.Reason = fmt.Sprintf("mentioned only %d time(s)", missing.MentionCount)
	case missing.MentionCount >= p.ResearchAbove:
		out.Decision = DecisionResearchDefine
		out.Reason = fmt.Sprintf("mentioned %d times across %d entities", missing.MentionCount, len(missing.SourceIDs))
	default:
		out.Decision = DecisionSimpleDefine
		out.Description = fmt.Sprintf("%s. Referenced by %d entities; definition pending.", missing.Name, len(missing.SourceIDs))
		out.Reason = "moderate mention volume"
	}
	return out, nil
}

func looksLikeNoise(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return true
	}
	hasLetter := false
	for _, r := range name {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	return !hasLetter
}
