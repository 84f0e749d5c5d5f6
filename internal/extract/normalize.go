package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/re-ink/intake/internal/model"
)

// dateLayouts are tried in order when normalizing extracted dates.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"01-02-2006",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

var contractNumberSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Normalize shapes a raw extraction payload into the structured result
// the review pipeline consumes. Fields absent from the payload stay
// absent from the output; the approval step decides what is required.
func Normalize(raw map[string]any) *model.ExtractionResult {
	extractResult, _ := raw["extract_result"].(map[string]any)
	metadata, _ := raw["metadata"].(map[string]any)

	data := unwrap(extractResult)

	result := &model.ExtractionResult{
		ContractData: normalizeContract(data),
		PartiesData:  normalizeParties(data),
		Metadata:     metadata,
	}
	if conf, ok := toFloat(extractResult["confidence"]); ok {
		result.ConfidenceScore = &conf
	}
	return result
}

// unwrap peels the nesting some extraction responses add around the
// field payload.
func unwrap(extractResult map[string]any) map[string]any {
	if extractResult == nil {
		return map[string]any{}
	}
	if nested, ok := extractResult["data"].(map[string]any); ok {
		return nested
	}
	if nested, ok := extractResult["extraction"].(map[string]any); ok {
		return nested
	}
	return extractResult
}

func normalizeContract(data map[string]any) map[string]any {
	out := map[string]any{}

	if name, ok := nonEmptyString(data["contract_name"]); ok {
		out["contract_name"] = name
	}

	if number, ok := nonEmptyString(data["contract_number"]); ok {
		out["contract_number"] = number
	} else if name, ok := nonEmptyString(data["contract_name"]); ok {
		number := contractNumberSanitizer.ReplaceAllString(name, "-")
		if len(number) > 50 {
			number = number[:50]
		}
		out["contract_number"] = number
	}

	contractType, hasType := nonEmptyString(data["contract_type"])
	if nature, ok := nonEmptyString(data["contract_nature"]); ok {
		if hasType {
			contractType = contractType + " - " + nature
		} else {
			contractType = nature
		}
		hasType = true
	}
	if hasType {
		out["contract_type"] = contractType
	}

	for _, field := range []string{"effective_date", "expiration_date"} {
		if raw, ok := nonEmptyString(data[field]); ok {
			out[field] = NormalizeDate(raw)
		}
	}

	// Deductible wording in treaty documents maps to retention.
	if v, ok := cleanNumeric(data["deductible_amount"]); ok {
		out["retention_amount"] = v.Value
	}

	if limit, ok := cleanNumeric(data["limit_covered"]); ok {
		out["limit_amount"] = limit
	} else if limit, ok := cleanNumeric(data["upper_limit"]); ok {
		out["limit_amount"] = limit
	}

	if v, ok := cleanNumeric(data["premium_amount"]); ok {
		out["premium_amount"] = v.Value
	}
	if v, ok := cleanNumeric(data["commission_rate"]); ok {
		out["commission_rate"] = v.Value
	}

	if criteria, ok := nonEmptyString(data["attachment_criteria"]); ok {
		out["coverage_description"] = criteria
	}

	for _, field := range []string{"line_of_business", "coverage_territory", "terms_and_conditions", "special_provisions"} {
		if v, ok := nonEmptyString(data[field]); ok {
			out[field] = v
		}
	}

	if code, ok := nonEmptyString(data["currency"]); ok {
		code = strings.ToUpper(strings.TrimSpace(code))
		if _, err := currency.ParseISO(code); err == nil {
			out["currency"] = code
		} else {
			zap.L().Warn("dropping unrecognized currency code", zap.String("currency", code))
		}
	} else {
		out["currency"] = "USD"
	}

	if len(out) <= 1 {
		zap.L().Warn("extraction produced no usable contract fields")
	}
	return out
}

func normalizeParties(data map[string]any) []map[string]any {
	var parties []map[string]any
	if name, ok := nonEmptyString(data["cedant_name"]); ok {
		parties = append(parties, map[string]any{
			"name":       name,
			"party_type": string(model.PartyTypeCedant),
			"is_active":  true,
		})
	}
	if name, ok := nonEmptyString(data["reinsurer_name"]); ok {
		parties = append(parties, map[string]any{
			"name":       name,
			"party_type": string(model.PartyTypeReinsurer),
			"is_active":  true,
		})
	}
	return parties
}

// NormalizeDate converts common date spellings to YYYY-MM-DD. Unparseable
// input passes through unchanged so the reviewer sees what was extracted.
func NormalizeDate(raw string) string {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	zap.L().Warn("unrecognized date format", zap.String("date", raw))
	return raw
}

// cleanNumeric strips currency symbols, separators and percent signs from
// an extracted value. A trailing percent marks the amount as a percentage
// of some base rather than a fixed sum.
func cleanNumeric(value any) (model.Amount, bool) {
	switch v := value.(type) {
	case nil:
		return model.Amount{}, false
	case float64:
		return model.Amount{Basis: model.AmountBasisFixed, Value: v}, true
	case int:
		return model.Amount{Basis: model.AmountBasisFixed, Value: float64(v)}, true
	case int64:
		return model.Amount{Basis: model.AmountBasisFixed, Value: float64(v)}, true
	case string:
		cleaned := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(v)
		cleaned = strings.TrimSpace(cleaned)
		basis := model.AmountBasisFixed
		if strings.Contains(cleaned, "%") {
			cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "%", ""))
			basis = model.AmountBasisPercentage
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			zap.L().Warn("unparseable numeric value", zap.String("value", v))
			return model.Amount{}, false
		}
		return model.Amount{Basis: basis, Value: f}, true
	default:
		return model.Amount{}, false
	}
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
