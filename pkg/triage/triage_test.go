package triage

import (
	"context"
	"testing"

	"github.com/cartonhq/carton/pkg/common"
)

func TestRulePolicy(t *testing.T) {
	cases := []struct {
		name    string
		missing common.MissingEntity
		want    Decision
	}{
		{
			name:    "single mention is noise",
			missing: common.MissingEntity{Name: "Billing Engine", MentionCount: 1, SourceIDs: []string{"a"}},
			want:    DecisionBlacklist,
		},
		{
			name:    "numeric name is noise regardless of count",
			missing: common.MissingEntity{Name: "42", MentionCount: 9, SourceIDs: []string{"a"}},
			want:    DecisionBlacklist,
		},
		{
			name:    "moderate mentions get a simple definition",
			missing: common.MissingEntity{Name: "Billing Engine", MentionCount: 3, SourceIDs: []string{"a", "b"}},
			want:    DecisionSimpleDefine,
		},
		{
			name:    "heavy mentions get research",
			missing: common.MissingEntity{Name: "Billing Engine", MentionCount: 7, SourceIDs: []string{"a", "b", "c"}},
			want:    DecisionResearchDefine,
		},
	}

	p := NewRulePolicy()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := p.Decide(context.Background(), "test", tc.missing)
			if err != nil {
				t.Fatal(err)
			}
			if out.Decision != tc.want {
				t.Errorf("decision = %s, want %s", out.Decision, tc.want)
			}
			if out.Decision == DecisionSimpleDefine && out.Description == "" {
				t.Error("simple define must carry a description")
			}
		})
	}
}

func TestParseOutcome(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    Decision
		wantErr bool
	}{
		{
			name: "clean json",
			raw:  `{"decision": "BLACKLIST", "reason": "generic phrase"}`,
			want: DecisionBlacklist,
		},
		{
			name: "repairable json",
			raw:  `{decision: "SIMPLE_DEFINE", description: "A nightly billing batch",}`,
			want: DecisionSimpleDefine,
		},
		{
			name:    "undeclared decision",
			raw:     `{"decision": "MERGE"}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := parseOutcome(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if out.Decision != tc.want {
				t.Errorf("decision = %s, want %s", out.Decision, tc.want)
			}
		})
	}
}
