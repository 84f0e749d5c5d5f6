// Package review turns reviewer-edited extraction output into validated,
// persisted contract and party records.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/re-ink/intake/internal/model"
	"github.com/re-ink/intake/internal/store"
)

// ContractDraft is the reviewer-submitted contract, loosely typed the
// way it leaves the editing form. Empty strings mean "not provided".
type ContractDraft struct {
	ContractNumber      string   `json:"contract_number" yaml:"contract_number"`
	ContractName        string   `json:"contract_name" yaml:"contract_name"`
	ContractType        string   `json:"contract_type,omitempty" yaml:"contract_type"`
	ContractSubType     string   `json:"contract_sub_type,omitempty" yaml:"contract_sub_type"`
	ContractNature      string   `json:"contract_nature,omitempty" yaml:"contract_nature"`
	EffectiveDate       string   `json:"effective_date" yaml:"effective_date"`
	ExpirationDate      string   `json:"expiration_date" yaml:"expiration_date"`
	InceptionDate       string   `json:"inception_date,omitempty" yaml:"inception_date"`
	PremiumAmount       *float64 `json:"premium_amount,omitempty" yaml:"premium_amount"`
	Currency            string   `json:"currency,omitempty" yaml:"currency"`
	LimitAmount         *float64 `json:"limit_amount,omitempty" yaml:"limit_amount"`
	LimitBasis          string   `json:"limit_basis,omitempty" yaml:"limit_basis"`
	RetentionAmount     *float64 `json:"retention_amount,omitempty" yaml:"retention_amount"`
	CommissionRate      *float64 `json:"commission_rate,omitempty" yaml:"commission_rate"`
	LineOfBusiness      string   `json:"line_of_business,omitempty" yaml:"line_of_business"`
	CoverageTerritory   string   `json:"coverage_territory,omitempty" yaml:"coverage_territory"`
	CoverageDescription string   `json:"coverage_description,omitempty" yaml:"coverage_description"`
	TermsAndConditions  string   `json:"terms_and_conditions,omitempty" yaml:"terms_and_conditions"`
	SpecialProvisions   string   `json:"special_provisions,omitempty" yaml:"special_provisions"`
	Notes               string   `json:"notes,omitempty" yaml:"notes"`

	SourceDocumentName   string   `json:"source_document_name,omitempty" yaml:"source_document_name"`
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty" yaml:"extraction_confidence"`
	ExtractionJobID      string   `json:"extraction_job_id,omitempty" yaml:"extraction_job_id"`
}

// PartyDraft is one reviewer-submitted party. When the approval reuses
// existing parties, ID must be set and the rest is ignored.
type PartyDraft struct {
	ID                 *int64 `json:"id,omitempty" yaml:"id"`
	Name               string `json:"name" yaml:"name"`
	PartyType          string `json:"party_type" yaml:"party_type"`
	Email              string `json:"email,omitempty" yaml:"email"`
	Phone              string `json:"phone,omitempty" yaml:"phone"`
	AddressLine1       string `json:"address_line1,omitempty" yaml:"address_line1"`
	AddressLine2       string `json:"address_line2,omitempty" yaml:"address_line2"`
	City               string `json:"city,omitempty" yaml:"city"`
	State              string `json:"state,omitempty" yaml:"state"`
	PostalCode         string `json:"postal_code,omitempty" yaml:"postal_code"`
	Country            string `json:"country,omitempty" yaml:"country"`
	RegistrationNumber string `json:"registration_number,omitempty" yaml:"registration_number"`
	LicenseNumber      string `json:"license_number,omitempty" yaml:"license_number"`
	Notes              string `json:"notes,omitempty" yaml:"notes"`
	Role               string `json:"role,omitempty" yaml:"role"`
}

// ApprovalRequest is what the reviewer submits after editing.
type ApprovalRequest struct {
	Contract         ContractDraft `json:"contract"`
	Parties          []PartyDraft  `json:"parties"`
	CreateNewParties bool          `json:"create_new_parties"`
}

// ApprovalResult reports what the approval created.
type ApprovalResult struct {
	ContractID int64   `json:"contract_id"`
	PartyIDs   []int64 `json:"party_ids"`
	Message    string  `json:"message"`
}

// Engine validates approvals and commits them to the record store.
type Engine struct {
	records store.RecordStore
	jobs    store.JobStore
	now     func() time.Time
}

func NewEngine(records store.RecordStore, jobs store.JobStore) *Engine {
	return &Engine{records: records, jobs: jobs, now: time.Now}
}

// Approve runs the full pipeline: sanitize, validate, duplicate check,
// party resolution and the atomic commit. On success the source
// extraction job, when named, is marked approved.
func (e *Engine) Approve(ctx context.Context, req ApprovalRequest) (*ApprovalResult, error) {
	return e.approve(ctx, req, false)
}

func (e *Engine) approve(ctx context.Context, req ApprovalRequest, manual bool) (*ApprovalResult, error) {
	draft := sanitizeContract(req.Contract)
	parties := make([]PartyDraft, len(req.Parties))
	for i, p := range req.Parties {
		parties[i] = sanitizeParty(p)
	}

	if err := validate(draft, parties, req.CreateNewParties); err != nil {
		return nil, err
	}

	// Friendly pre-check; the store repeats it inside the commit
	// transaction, which is the authoritative one.
	if existing, err := e.records.FindActiveContractByNumber(ctx, draft.ContractNumber); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &store.DuplicateError{Kind: "contract", Key: draft.ContractNumber, ExistingID: existing.ID}
	}

	contract := buildContract(draft, e.now().UTC())
	contract.ManuallyCreated = manual

	var newParties []store.NewParty
	var existingRefs []store.PartyRef
	if req.CreateNewParties {
		for _, p := range parties {
			newParties = append(newParties, store.NewParty{Party: buildParty(p), Role: p.Role})
		}
	} else {
		for _, p := range parties {
			existingRefs = append(existingRefs, store.PartyRef{PartyID: *p.ID, Role: p.Role})
		}
	}

	contractID, partyIDs, err := e.records.CreateContractWithParties(ctx, contract, newParties, existingRefs)
	if err != nil {
		return nil, err
	}

	if draft.ExtractionJobID != "" {
		if err := e.jobs.SetJobReview(ctx, draft.ExtractionJobID, model.ReviewOutcomeApproved, ""); err != nil {
			zap.L().Warn("could not record review outcome on job",
				zap.String("job_id", draft.ExtractionJobID), zap.Error(err))
		}
	}

	msg := fmt.Sprintf("Contract %s approved with %d linked parties", draft.ContractNumber, len(partyIDs))
	if len(partyIDs) == 0 {
		msg += "; no parties were attached, review the record before activation"
	}
	return &ApprovalResult{ContractID: contractID, PartyIDs: partyIDs, Message: msg}, nil
}

// Reject records the reviewer's rejection on the extraction job. The
// record store is untouched and an unknown job id is not an error.
func (e *Engine) Reject(ctx context.Context, jobID, reason string) error {
	if _, err := e.jobs.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Info("reject for unknown job ignored", zap.String("job_id", jobID))
			return nil
		}
		return err
	}
	return e.jobs.SetJobReview(ctx, jobID, model.ReviewOutcomeRejected, reason)
}

// buildContract maps the sanitized draft onto a contract record with
// lifecycle status derived from its date pair.
func buildContract(d ContractDraft, now time.Time) model.Contract {
	c := model.Contract{
		ContractNumber:       d.ContractNumber,
		ContractName:         d.ContractName,
		ContractType:         optional(d.ContractType),
		ContractSubType:      optional(d.ContractSubType),
		ContractNature:       optional(d.ContractNature),
		EffectiveDate:        d.EffectiveDate,
		ExpirationDate:       d.ExpirationDate,
		InceptionDate:        optional(d.InceptionDate),
		PremiumAmount:        d.PremiumAmount,
		Currency:             optional(d.Currency),
		RetentionAmount:      d.RetentionAmount,
		CommissionRate:       d.CommissionRate,
		LineOfBusiness:       optional(d.LineOfBusiness),
		CoverageTerritory:    optional(d.CoverageTerritory),
		CoverageDescription:  optional(d.CoverageDescription),
		TermsAndConditions:   optional(d.TermsAndConditions),
		SpecialProvisions:    optional(d.SpecialProvisions),
		Notes:                optional(d.Notes),
		Status:               deriveStatus(d.EffectiveDate, d.ExpirationDate, now),
		ReviewStatus:         model.ReviewStatusApproved,
		SourceDocumentName:   optional(d.SourceDocumentName),
		ExtractionConfidence: d.ExtractionConfidence,
		ExtractionJobID:      optional(d.ExtractionJobID),
		ManuallyCreated:      false,
		IsActive:             true,
	}
	if d.LimitAmount != nil {
		basis := model.AmountBasisFixed
		if d.LimitBasis == string(model.AmountBasisPercentage) {
			basis = model.AmountBasisPercentage
		}
		c.Limit = &model.Amount{Basis: basis, Value: *d.LimitAmount}
	}
	return c
}

func buildParty(d PartyDraft) model.Party {
	return model.Party{
		Name:               d.Name,
		PartyType:          model.PartyType(d.PartyType),
		Email:              optional(d.Email),
		Phone:              optional(d.Phone),
		AddressLine1:       optional(d.AddressLine1),
		AddressLine2:       optional(d.AddressLine2),
		City:               optional(d.City),
		State:              optional(d.State),
		PostalCode:         optional(d.PostalCode),
		Country:            optional(d.Country),
		RegistrationNumber: optional(d.RegistrationNumber),
		LicenseNumber:      optional(d.LicenseNumber),
		Notes:              optional(d.Notes),
		IsActive:           true,
	}
}

// deriveStatus places the contract in its lifecycle based on where
// today falls relative to the coverage period. Unparseable dates leave
// it pending review.
func deriveStatus(effective, expiration string, now time.Time) model.ContractStatus {
	eff, err1 := time.Parse("2006-01-02", effective)
	exp, err2 := time.Parse("2006-01-02", expiration)
	if err1 != nil || err2 != nil {
		return model.ContractStatusPendingReview
	}
	today := now.Truncate(24 * time.Hour)
	switch {
	case exp.Before(today):
		return model.ContractStatusExpired
	case !eff.After(today):
		return model.ContractStatusActive
	default:
		return model.ContractStatusPendingReview
	}
}

func sanitizeContract(d ContractDraft) ContractDraft {
	d.ContractNumber = strings.TrimSpace(d.ContractNumber)
	d.ContractName = strings.TrimSpace(d.ContractName)
	d.ContractType = strings.TrimSpace(d.ContractType)
	d.ContractSubType = strings.TrimSpace(d.ContractSubType)
	d.ContractNature = strings.TrimSpace(d.ContractNature)
	d.EffectiveDate = strings.TrimSpace(d.EffectiveDate)
	d.ExpirationDate = strings.TrimSpace(d.ExpirationDate)
	d.InceptionDate = strings.TrimSpace(d.InceptionDate)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.LimitBasis = strings.TrimSpace(d.LimitBasis)
	d.LineOfBusiness = strings.TrimSpace(d.LineOfBusiness)
	d.CoverageTerritory = strings.TrimSpace(d.CoverageTerritory)
	d.CoverageDescription = strings.TrimSpace(d.CoverageDescription)
	d.TermsAndConditions = strings.TrimSpace(d.TermsAndConditions)
	d.SpecialProvisions = strings.TrimSpace(d.SpecialProvisions)
	d.Notes = strings.TrimSpace(d.Notes)
	d.SourceDocumentName = strings.TrimSpace(d.SourceDocumentName)
	d.ExtractionJobID = strings.TrimSpace(d.ExtractionJobID)
	return d
}

func sanitizeParty(d PartyDraft) PartyDraft {
	d.Name = strings.TrimSpace(d.Name)
	d.PartyType = strings.ToLower(strings.TrimSpace(d.PartyType))
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	d.AddressLine1 = strings.TrimSpace(d.AddressLine1)
	d.AddressLine2 = strings.TrimSpace(d.AddressLine2)
	d.City = strings.TrimSpace(d.City)
	d.State = strings.TrimSpace(d.State)
	d.PostalCode = strings.TrimSpace(d.PostalCode)
	d.Country = strings.TrimSpace(d.Country)
	d.RegistrationNumber = strings.TrimSpace(d.RegistrationNumber)
	d.LicenseNumber = strings.TrimSpace(d.LicenseNumber)
	d.Notes = strings.TrimSpace(d.Notes)
	d.Role = strings.TrimSpace(d.Role)
	return d
}

// optional converts an empty string to a nil pointer so blanks never
// overwrite nullable columns.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func validate(d ContractDraft, parties []PartyDraft, createNew bool) error {
	var v ValidationError

	if d.ContractNumber == "" {
		v.Add("contract.contract_number", "required")
	}
	if d.ContractName == "" {
		v.Add("contract.contract_name", "required")
	}
	if d.EffectiveDate == "" {
		v.Add("contract.effective_date", "required")
	}
	if d.ExpirationDate == "" {
		v.Add("contract.expiration_date", "required")
	}

	var eff, exp time.Time
	var effOK, expOK bool
	if d.EffectiveDate != "" {
		if t, err := time.Parse("2006-01-02", d.EffectiveDate); err != nil {
			v.Add("contract.effective_date", "must be YYYY-MM-DD")
		} else {
			eff, effOK = t, true
		}
	}
	if d.ExpirationDate != "" {
		if t, err := time.Parse("2006-01-02", d.ExpirationDate); err != nil {
			v.Add("contract.expiration_date", "must be YYYY-MM-DD")
		} else {
			exp, expOK = t, true
		}
	}
	if effOK && expOK && eff.After(exp) {
		v.Add("contract.effective_date", "must not be after expiration_date")
	}

	if d.Currency != "" {
		if _, err := currency.ParseISO(d.Currency); err != nil {
			v.Add("contract.currency", fmt.Sprintf("unknown ISO 4217 code %q", d.Currency))
		}
	}
	if d.LimitBasis != "" &&
		d.LimitBasis != string(model.AmountBasisFixed) &&
		d.LimitBasis != string(model.AmountBasisPercentage) {
		v.Add("contract.limit_basis", "must be fixed or percentage")
	}

	for i, p := range parties {
		if !createNew {
			if p.ID == nil {
				v.Add(fmt.Sprintf("parties[%d].id", i), "required when reusing existing parties")
			}
			continue
		}
		if p.Name == "" {
			v.Add(fmt.Sprintf("parties[%d].name", i), "required")
		}
		if p.PartyType == "" {
			v.Add(fmt.Sprintf("parties[%d].party_type", i), "required")
		} else if !model.PartyType(p.PartyType).Valid() {
			v.Add(fmt.Sprintf("parties[%d].party_type", i), "must be cedant, reinsurer, broker or other")
		}
	}

	if len(v.Violations) > 0 {
		return &v
	}
	return nil
}
