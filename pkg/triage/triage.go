// Package triage decides what to do with missing-entity records: suppress
// the name, promote it with a short definition, or flag it for a researched
// definition. The decision set is closed so dispatch stays exhaustive.
package triage

import (
	"context"

	"github.com/cartonhq/carton/pkg/common"
)

// Decision is the outcome for one missing name.
type Decision string

const (
	// DecisionBlacklist suppresses the name from future tracking.
	DecisionBlacklist Decision = "BLACKLIST"
	// DecisionSimpleDefine promotes the name with the short definition the
	// policy produced.
	DecisionSimpleDefine Decision = "SIMPLE_DEFINE"
	// DecisionResearchDefine promotes the name but marks the definition as
	// a stub that needs proper research.
	DecisionResearchDefine Decision = "RESEARCH_DEFINE"
)

// Valid reports whether d is one of the declared decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionBlacklist, DecisionSimpleDefine, DecisionResearchDefine:
		return true
	}
	return false
}

// Outcome is a policy's verdict for one missing name.
type Outcome struct {
	Name        string   `json:"name"`
	Decision    Decision `json:"decision"`
	Description string   `json:"description,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// Policy decides outcomes for missing names. Implementations must be safe
// for concurrent use.
type Policy interface {
	Decide(ctx context.Context, namespace string, missing common.MissingEntity) (Outcome, error)
}
