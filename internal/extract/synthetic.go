package extract

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/re-ink/intake/internal/model"
)

// syntheticTemplates are sample treaty payloads in the shape the
// extraction service returns, used to exercise the review pipeline
// without a real document.
var syntheticTemplates = []map[string]any{
	{
		"contract_name":     "Property Catastrophe Excess of Loss Treaty",
		"contract_type":     "Treaty",
		"contract_nature":   "Non-Proportional",
		"effective_date":    "01/01/2026",
		"expiration_date":   "12/31/2026",
		"cedant_name":       "Meridian Mutual Insurance Company",
		"reinsurer_name":    "Atlas Re Ltd",
		"currency":          "usd",
		"limit_covered":     "$25,000,000",
		"deductible_amount": "$5,000,000",
		"premium_amount":    "$1,250,000",
		"line_of_business":  "Property",
		"coverage_territory": "United States and Canada",
	},
	{
		"contract_name":    "Marine Quota Share Agreement",
		"contract_type":    "Treaty",
		"contract_nature":  "Proportional",
		"effective_date":   "April 1, 2026",
		"expiration_date":  "March 31, 2027",
		"cedant_name":      "Pacifica Marine Underwriters",
		"reinsurer_name":   "Northwind Reinsurance SE",
		"currency":         "EUR",
		"limit_covered":    "40%",
		"commission_rate":  "27.5%",
		"line_of_business": "Marine",
	},
}

// SeedSynthetic creates a completed job carrying a canned extraction
// result. The payload goes through the same normalization as real
// service output. An empty jobID lets the store mint one.
func (o *Orchestrator) SeedSynthetic(ctx context.Context, jobID string) (*model.ExtractionJob, error) {
	template := syntheticTemplates[rand.IntN(len(syntheticTemplates))]

	raw := map[string]any{
		"extract_result": map[string]any{
			"data":       template,
			"confidence": 0.85 + rand.Float64()*0.1,
		},
		"metadata": map[string]any{
			"source": "synthetic",
		},
	}
	result := Normalize(raw)

	name, _ := template["contract_name"].(string)
	return o.jobs.CreateJob(ctx, model.ExtractionJob{
		ID:       jobID,
		Status:   model.JobStatusCompleted,
		Message:  fmt.Sprintf("Synthetic extraction seeded: %s", name),
		Filename: "synthetic.pdf",
		Result:   result,
	})
}
