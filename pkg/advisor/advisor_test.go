package advisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/re-ink/intake/internal/model"
)

func fixedOffline(t *testing.T, now string) *Offline {
	t.Helper()
	ts, err := time.Parse("2006-01-02", now)
	require.NoError(t, err)
	return &Offline{now: func() time.Time { return ts }}
}

func TestOfflineFlagsMissingRequiredFields(t *testing.T) {
	adv := NewOffline()

	conf := 0.9
	ann, err := adv.Review(context.Background(), &model.ExtractionResult{
		ContractData:    map[string]any{"contract_name": "Cat Treaty"},
		PartiesData:     []map[string]any{{"name": "Meridian", "party_type": "cedant"}},
		ConfidenceScore: &conf,
	})
	require.NoError(t, err)

	assert.True(t, ann.Offline)
	assert.Equal(t, []string{"contract_number", "effective_date", "expiration_date"}, ann.MissingFields)
	assert.Contains(t, ann.Summary, "missing 3 required field")
}

func TestOfflineFlagsRisks(t *testing.T) {
	adv := fixedOffline(t, "2026-09-01")

	conf := 0.55
	ann, err := adv.Review(context.Background(), &model.ExtractionResult{
		ContractData: map[string]any{
			"contract_number": "PC-001",
			"contract_name":   "Cat Treaty",
			"effective_date":  "2024-01-01",
			"expiration_date": "2024-12-31",
		},
		ConfidenceScore: &conf,
	})
	require.NoError(t, err)

	assert.Empty(t, ann.MissingFields)
	assert.Contains(t, ann.RiskFlags, "no parties extracted")
	assert.Contains(t, ann.RiskFlags, "low extraction confidence (0.55)")
	assert.Contains(t, ann.RiskFlags, "coverage period already expired")
}

func TestOfflineCleanResult(t *testing.T) {
	adv := fixedOffline(t, "2026-06-01")

	conf := 0.95
	ann, err := adv.Review(context.Background(), &model.ExtractionResult{
		ContractData: map[string]any{
			"contract_number":  "PC-001",
			"contract_name":    "Cat Treaty",
			"effective_date":   "2026-01-01",
			"expiration_date":  "2026-12-31",
			"premium_amount":   1250000.0,
			"limit_amount":     25000000.0,
			"currency":         "USD",
			"line_of_business": "Property",
		},
		PartiesData:     []map[string]any{{"name": "Meridian", "party_type": "cedant"}},
		ConfidenceScore: &conf,
	})
	require.NoError(t, err)

	assert.Empty(t, ann.MissingFields)
	assert.Empty(t, ann.RiskFlags)
	assert.Empty(t, ann.RecommendedActions)
	assert.Contains(t, ann.Summary, "complete")
}

func TestOfflineNilResult(t *testing.T) {
	ann, err := NewOffline().Review(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, ann.RiskFlags, "no extraction result available")
}

func TestParseAnnotationToleratesFences(t *testing.T) {
	text := "Here is the review:\n```json\n{\"missing_fields\": [\"currency\"], \"summary\": \"ok\"}\n```"
	ann, err := parseAnnotation(text)
	require.NoError(t, err)
	assert.Equal(t, []string{"currency"}, ann.MissingFields)
	assert.Equal(t, "ok", ann.Summary)
}

func TestParseAnnotationRejectsProse(t *testing.T) {
	_, err := parseAnnotation("I could not produce a review.")
	assert.Error(t, err)
}
