package store

import "github.com/re-ink/intake/internal/model"

// contractPatchFields flattens a ContractPatch into parallel column and
// value slices. The tagged limit amount expands into its two columns.
func contractPatchFields(p model.ContractPatch) ([]string, []any) {
	var cols []string
	var vals []any
	add := func(col string, val any) {
		cols = append(cols, col)
		vals = append(vals, val)
	}

	if p.ContractNumber != nil {
		add("contract_number", *p.ContractNumber)
	}
	if p.ContractName != nil {
		add("contract_name", *p.ContractName)
	}
	if p.ContractType != nil {
		add("contract_type", *p.ContractType)
	}
	if p.ContractSubType != nil {
		add("contract_sub_type", *p.ContractSubType)
	}
	if p.ContractNature != nil {
		add("contract_nature", *p.ContractNature)
	}
	if p.EffectiveDate != nil {
		add("effective_date", *p.EffectiveDate)
	}
	if p.ExpirationDate != nil {
		add("expiration_date", *p.ExpirationDate)
	}
	if p.InceptionDate != nil {
		add("inception_date", *p.InceptionDate)
	}
	if p.PremiumAmount != nil {
		add("premium_amount", *p.PremiumAmount)
	}
	if p.Currency != nil {
		add("currency", *p.Currency)
	}
	if p.Limit != nil {
		add("limit_amount", p.Limit.Value)
		add("limit_basis", string(p.Limit.Basis))
	}
	if p.RetentionAmount != nil {
		add("retention_amount", *p.RetentionAmount)
	}
	if p.CommissionRate != nil {
		add("commission_rate", *p.CommissionRate)
	}
	if p.LineOfBusiness != nil {
		add("line_of_business", *p.LineOfBusiness)
	}
	if p.CoverageTerritory != nil {
		add("coverage_territory", *p.CoverageTerritory)
	}
	if p.CoverageDescription != nil {
		add("coverage_description", *p.CoverageDescription)
	}
	if p.TermsAndConditions != nil {
		add("terms_and_conditions", *p.TermsAndConditions)
	}
	if p.SpecialProvisions != nil {
		add("special_provisions", *p.SpecialProvisions)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.ReviewStatus != nil {
		add("review_status", string(*p.ReviewStatus))
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.IsActive != nil {
		add("is_active", *p.IsActive)
	}

	return cols, vals
}

// partyPatchFields flattens a PartyPatch the same way.
func partyPatchFields(p model.PartyPatch) ([]string, []any) {
	var cols []string
	var vals []any
	add := func(col string, val any) {
		cols = append(cols, col)
		vals = append(vals, val)
	}

	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.PartyType != nil {
		add("party_type", string(*p.PartyType))
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.AddressLine1 != nil {
		add("address_line1", *p.AddressLine1)
	}
	if p.AddressLine2 != nil {
		add("address_line2", *p.AddressLine2)
	}
	if p.City != nil {
		add("city", *p.City)
	}
	if p.State != nil {
		add("state", *p.State)
	}
	if p.PostalCode != nil {
		add("postal_code", *p.PostalCode)
	}
	if p.Country != nil {
		add("country", *p.Country)
	}
	if p.RegistrationNumber != nil {
		add("registration_number", *p.RegistrationNumber)
	}
	if p.LicenseNumber != nil {
		add("license_number", *p.LicenseNumber)
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.IsActive != nil {
		add("is_active", *p.IsActive)
	}

	return cols, vals
}
