package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/cartonhq/carton/internal/util"
	"github.com/cartonhq/carton/pkg/common"
)

const triagePrompt = `You classify unresolved knowledge-graph names for the namespace %q.

Name: %q
Mentioned %d time(s) by entities: %s

Decide one of:
- "BLACKLIST" if the name is noise (a generic phrase, a person salutation, a sentence fragment).
- "SIMPLE_DEFINE" if the name is a real concept you can define in one or two sentences; include the definition.
- "RESEARCH_DEFINE" if the name is a real concept that needs a researched definition.

Answer as JSON: {"decision": "...", "description": "...", "reason": "..."}`

// OpenAIPolicy asks a chat model to triage missing names. Model output is
// repaired before parsing because generated JSON is frequently malformed.
type OpenAIPolicy struct {
	client *openai.Client
	model  string
}

type NewOpenAIPolicyParams struct {
	BaseURL string
	APIKey  string
	Model   string
}

func NewOpenAIPolicy(params NewOpenAIPolicyParams) *OpenAIPolicy {
	opts := []option.RequestOption{option.WithAPIKey(params.APIKey)}
	if params.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIPolicy{client: &client, model: params.Model}
}

func (p *OpenAIPolicy) Decide(ctx context.Context, namespace string, missing common.MissingEntity) (Outcome, error) {
	prompt := fmt.Sprintf(triagePrompt, namespace, missing.Name, missing.MentionCount, strings.Join(missing.SourceIDs, ", "))

	response, err := util.RetryReadWithBackoff(ctx, util.BackoffOptions{MaxTries: 3}, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(p.model),
			Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
			Temperature: openai.Float(0.2),
		})
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: triage completion failed: %w", common.ErrCollaborator, err)
	}
	if len(response.Choices) == 0 {
		return Outcome{}, fmt.Errorf("%w: triage completion returned no choices", common.ErrCollaborator)
	}

	out, err := parseOutcome(response.Choices[0].Message.Content)
	if err != nil {
		return Outcome{}, err
	}
	out.Name = missing.Name
	return out, nil
}

func parseOutcome(raw string) (Outcome, error) {
	raw = strings.TrimSpace(raw)
	var out Outcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return Outcome{}, fmt.Errorf("triage response unparsable: %w (input: %s)", repairErr, raw)
		}
		if err := json.Unmarshal([]byte(repaired), &out); err != nil {
			return Outcome{}, fmt.Errorf("triage response unparsable after repair: %w", err)
		}
	}
	if !out.Decision.Valid() {
		return Outcome{}, common.NewValidationError(fmt.Sprintf("triage decision %q is not declared", out.Decision), nil)
	}
	return out, nil
}
