// Package advisor produces advisory review annotations for extraction
// results. Annotations are guidance for the human reviewer; they never
// gate the approval flow.
package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/re-ink/intake/internal/model"
)

// Annotation is the advisory output for one extraction result.
type Annotation struct {
	MissingFields      []string `json:"missing_fields"`
	RiskFlags          []string `json:"risk_flags"`
	RecommendedActions []string `json:"recommended_actions"`
	Summary            string   `json:"summary"`
	Offline            bool     `json:"offline,omitempty"`
}

// Advisor reviews an extraction result and suggests what the human
// reviewer should look at.
type Advisor interface {
	Review(ctx context.Context, result *model.ExtractionResult) (*Annotation, error)
}

// requiredFields must be present before an approval can succeed;
// recommendedFields are worth chasing but optional.
var requiredFields = []string{"contract_number", "contract_name", "effective_date", "expiration_date"}

var recommendedFields = []string{"premium_amount", "limit_amount", "currency", "line_of_business"}

// Offline is a deterministic rule-based advisor used when no language
// model is configured or reachable.
type Offline struct {
	now func() time.Time
}

func NewOffline() *Offline {
	return &Offline{now: time.Now}
}

func (o *Offline) Review(_ context.Context, result *model.ExtractionResult) (*Annotation, error) {
	ann := &Annotation{Offline: true}
	if result == nil {
		ann.RiskFlags = append(ann.RiskFlags, "no extraction result available")
		ann.Summary = "Nothing to review yet."
		return ann, nil
	}

	for _, f := range requiredFields {
		if !present(result.ContractData, f) {
			ann.MissingFields = append(ann.MissingFields, f)
		}
	}
	for _, f := range recommendedFields {
		if !present(result.ContractData, f) {
			ann.RecommendedActions = append(ann.RecommendedActions,
				fmt.Sprintf("confirm %s with the source document", f))
		}
	}
	sort.Strings(ann.MissingFields)

	if len(result.PartiesData) == 0 {
		ann.RiskFlags = append(ann.RiskFlags, "no parties extracted")
	}
	if result.ConfidenceScore != nil && *result.ConfidenceScore < 0.7 {
		ann.RiskFlags = append(ann.RiskFlags,
			fmt.Sprintf("low extraction confidence (%.2f)", *result.ConfidenceScore))
	}
	if exp, ok := result.ContractData["expiration_date"].(string); ok {
		if t, err := time.Parse("2006-01-02", exp); err == nil && t.Before(o.now()) {
			ann.RiskFlags = append(ann.RiskFlags, "coverage period already expired")
		}
	}

	switch {
	case len(ann.MissingFields) > 0:
		ann.Summary = fmt.Sprintf("Extraction is missing %d required field(s): %s.",
			len(ann.MissingFields), strings.Join(ann.MissingFields, ", "))
	case len(ann.RiskFlags) > 0:
		ann.Summary = "Required fields are present but there are flags worth a second look."
	default:
		ann.Summary = "Extraction looks complete; spot-check financial terms before approving."
	}
	return ann, nil
}

func present(data map[string]any, field string) bool {
	v, ok := data[field]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}
