package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/re-ink/intake/internal/model"
)

// ErrNotFound is returned when a job, contract or party id is unknown.
var ErrNotFound = eris.New("not found")

// ErrJobTerminal is returned when a status write conflicts with a job
// that already reached completed or failed. Duplicate delivery of the
// same terminal transition is a no-op, not an error.
var ErrJobTerminal = eris.New("job already in terminal state")

// DuplicateError reports a unique business key collision against an
// active record.
type DuplicateError struct {
	Kind       string // "contract" or "party"
	Key        string // the conflicting business key value
	ExistingID int64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s: %q already used by active record %d", e.Kind, e.Key, e.ExistingID)
}

// ContractFilter specifies criteria for listing contracts.
type ContractFilter struct {
	Status       model.ContractStatus `json:"status,omitempty"`
	ContractType string               `json:"contract_type,omitempty"`
	IsActive     *bool                `json:"is_active,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	Offset       int                  `json:"offset,omitempty"`
}

// PartyFilter specifies criteria for listing parties.
type PartyFilter struct {
	PartyType model.PartyType `json:"party_type,omitempty"`
	IsActive  *bool           `json:"is_active,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// NewParty is a party to be created during an approval, with the role
// it will hold on the new contract.
type NewParty struct {
	Party model.Party
	Role  string
}

// PartyRef points at an existing party to link to the new contract.
type PartyRef struct {
	PartyID int64
	Role    string
}

// JobStore is the durable source of truth for extraction job state.
type JobStore interface {
	CreateJob(ctx context.Context, job model.ExtractionJob) (*model.ExtractionJob, error)
	GetJob(ctx context.Context, id string) (*model.ExtractionJob, error)
	ListRecentJobs(ctx context.Context, n int) ([]model.ExtractionJob, error)

	// Status transitions. Terminal states are enforced here: once a job
	// is completed or failed, further transitions return ErrJobTerminal
	// except for an exact duplicate delivery, which is a no-op.
	MarkJobProcessing(ctx context.Context, id string, message string) error
	CompleteJob(ctx context.Context, id string, result *model.ExtractionResult, message string) error
	FailJob(ctx context.Context, id string, message string) error

	// SetJobReview marks the review outcome without touching records.
	// An unknown id is not an error; rejecting is always safe.
	SetJobReview(ctx context.Context, id string, outcome model.ReviewOutcome, reason string) error
}

// RecordStore persists contracts, parties and their links.
type RecordStore interface {
	// CreateContractWithParties writes the contract, any new parties and
	// all link rows as a single atomic unit. The duplicate checks on
	// contract_number and registration_number are re-validated inside
	// the same transaction that performs the inserts.
	CreateContractWithParties(ctx context.Context, contract model.Contract, newParties []NewParty, existing []PartyRef) (int64, []int64, error)

	GetContract(ctx context.Context, id int64) (*model.Contract, error)
	ListContracts(ctx context.Context, filter ContractFilter) ([]model.Contract, error)
	UpdateContract(ctx context.Context, id int64, patch model.ContractPatch) (*model.Contract, error)
	FindActiveContractByNumber(ctx context.Context, number string) (*model.Contract, error)

	CreateParty(ctx context.Context, party model.Party) (*model.Party, error)
	GetParty(ctx context.Context, id int64) (*model.Party, error)
	ListParties(ctx context.Context, filter PartyFilter) ([]model.Party, error)
	SearchPartiesByName(ctx context.Context, name string) ([]model.Party, error)
	UpdateParty(ctx context.Context, id int64, patch model.PartyPatch) (*model.Party, error)
	FindActivePartyByRegistration(ctx context.Context, registration string) (*model.Party, error)

	LinkParty(ctx context.Context, contractID, partyID int64, role string) error
	UnlinkParty(ctx context.Context, contractID, partyID int64) error
}

// Store is the full persistence interface.
type Store interface {
	JobStore
	RecordStore

	Migrate(ctx context.Context) error
	Close() error
}
