package advisor

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/re-ink/intake/internal/model"
)

const systemPrompt = `You are a reinsurance contract intake reviewer. Given extracted
contract and party data as JSON, respond with ONLY a JSON object:
{"missing_fields": [...], "risk_flags": [...], "recommended_actions": [...], "summary": "..."}.
Flag missing required fields (contract_number, contract_name, effective_date,
expiration_date), implausible financial terms, date inconsistencies, and absent
counterparties. Keep the summary to two sentences.`

// Anthropic asks a language model for the annotation and falls back to
// the offline rules when the call fails.
type Anthropic struct {
	client    sdk.Client
	model     string
	maxTokens int64
	fallback  *Offline
}

// NewAnthropic builds the model-backed advisor.
func NewAnthropic(apiKey, modelID string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     modelID,
		maxTokens: maxTokens,
		fallback:  NewOffline(),
	}
}

func (a *Anthropic) Review(ctx context.Context, result *model.ExtractionResult) (*Annotation, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "advisor: marshal result")
	}

	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(string(payload))),
		},
	})
	if err != nil {
		zap.L().Warn("advisor model call failed, using offline rules", zap.Error(err))
		return a.fallback.Review(ctx, result)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	ann, err := parseAnnotation(text.String())
	if err != nil {
		zap.L().Warn("advisor returned unparseable annotation, using offline rules", zap.Error(err))
		return a.fallback.Review(ctx, result)
	}
	return ann, nil
}

// parseAnnotation tolerates responses that wrap the JSON object in
// prose or code fences.
func parseAnnotation(text string) (*Annotation, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("advisor: no JSON object in response")
	}
	var ann Annotation
	if err := json.Unmarshal([]byte(text[start:end+1]), &ann); err != nil {
		return nil, eris.Wrap(err, "advisor: decode annotation")
	}
	return &ann, nil
}
