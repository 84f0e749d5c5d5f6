package model

import "time"

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	ContractStatusDraft         ContractStatus = "draft"
	ContractStatusPendingReview ContractStatus = "pending_review"
	ContractStatusActive        ContractStatus = "active"
	ContractStatusExpired       ContractStatus = "expired"
	ContractStatusCancelled     ContractStatus = "cancelled"
)

// ReviewStatus is the human review state of a contract.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// AmountBasis distinguishes fixed monetary limits from limits expressed
// as a percentage of some underlying figure.
type AmountBasis string

const (
	AmountBasisFixed      AmountBasis = "fixed"
	AmountBasisPercentage AmountBasis = "percentage"
)

// Amount is a tagged limit value. Upstream documents express limits
// either as plain numbers or as percentage-suffixed strings; the
// normalization step collapses both into this one representation.
type Amount struct {
	Basis AmountBasis `json:"basis"`
	Value float64     `json:"value"`
}

// Contract represents a reinsurance contract.
type Contract struct {
	ID int64 `json:"id"`

	// Identification
	ContractNumber  string  `json:"contract_number"`
	ContractName    string  `json:"contract_name"`
	ContractType    *string `json:"contract_type,omitempty"`
	ContractSubType *string `json:"contract_sub_type,omitempty"`
	ContractNature  *string `json:"contract_nature,omitempty"`

	// Dates
	EffectiveDate  string  `json:"effective_date"`
	ExpirationDate string  `json:"expiration_date"`
	InceptionDate  *string `json:"inception_date,omitempty"`

	// Financial terms
	PremiumAmount   *float64 `json:"premium_amount,omitempty"`
	Currency        *string  `json:"currency,omitempty"`
	Limit           *Amount  `json:"limit,omitempty"`
	RetentionAmount *float64 `json:"retention_amount,omitempty"`
	CommissionRate  *float64 `json:"commission_rate,omitempty"`

	// Coverage
	LineOfBusiness      *string `json:"line_of_business,omitempty"`
	CoverageTerritory   *string `json:"coverage_territory,omitempty"`
	CoverageDescription *string `json:"coverage_description,omitempty"`
	TermsAndConditions  *string `json:"terms_and_conditions,omitempty"`
	SpecialProvisions   *string `json:"special_provisions,omitempty"`

	// Workflow
	Status       ContractStatus `json:"status"`
	ReviewStatus ReviewStatus   `json:"review_status"`

	// Provenance
	SourceDocumentName   *string  `json:"source_document_name,omitempty"`
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`
	ExtractionJobID      *string  `json:"extraction_job_id,omitempty"`
	ManuallyCreated      bool     `json:"is_manually_created"`

	Notes    *string `json:"notes,omitempty"`
	IsActive bool    `json:"is_active"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Parties are populated only on reads that ask for them.
	Parties []ContractParty `json:"parties,omitempty"`
}

// ContractParty is a party together with its role on one contract.
type ContractParty struct {
	Party
	Role string `json:"role"`
}

// ContractPartyLink is the join row between a contract and a party.
// A (contract, party) pair carries at most one active link; re-linking
// the same pair updates the role in place.
type ContractPartyLink struct {
	ContractID int64     `json:"contract_id"`
	PartyID    int64     `json:"party_id"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// ContractPatch is a partial update; nil fields are left unchanged.
type ContractPatch struct {
	ContractNumber      *string         `json:"contract_number,omitempty"`
	ContractName        *string         `json:"contract_name,omitempty"`
	ContractType        *string         `json:"contract_type,omitempty"`
	ContractSubType     *string         `json:"contract_sub_type,omitempty"`
	ContractNature      *string         `json:"contract_nature,omitempty"`
	EffectiveDate       *string         `json:"effective_date,omitempty"`
	ExpirationDate      *string         `json:"expiration_date,omitempty"`
	InceptionDate       *string         `json:"inception_date,omitempty"`
	PremiumAmount       *float64        `json:"premium_amount,omitempty"`
	Currency            *string         `json:"currency,omitempty"`
	Limit               *Amount         `json:"limit,omitempty"`
	RetentionAmount     *float64        `json:"retention_amount,omitempty"`
	CommissionRate      *float64        `json:"commission_rate,omitempty"`
	LineOfBusiness      *string         `json:"line_of_business,omitempty"`
	CoverageTerritory   *string         `json:"coverage_territory,omitempty"`
	CoverageDescription *string         `json:"coverage_description,omitempty"`
	TermsAndConditions  *string         `json:"terms_and_conditions,omitempty"`
	SpecialProvisions   *string         `json:"special_provisions,omitempty"`
	Status              *ContractStatus `json:"status,omitempty"`
	ReviewStatus        *ReviewStatus   `json:"review_status,omitempty"`
	Notes               *string         `json:"notes,omitempty"`
	IsActive            *bool           `json:"is_active,omitempty"`
}
