package review

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/currency"

	"github.com/re-ink/intake/internal/model"
)

// Record management outside the approval flow: manual creation, partial
// updates, soft delete and party linking.

// CreateManualContract persists a contract entered by hand rather than
// approved from an extraction.
func (e *Engine) CreateManualContract(ctx context.Context, draft ContractDraft, parties []PartyDraft, createNew bool) (*ApprovalResult, error) {
	return e.approve(ctx, ApprovalRequest{Contract: draft, Parties: parties, CreateNewParties: createNew}, true)
}

// UpdateContract applies a partial update after validating the fields
// it touches.
func (e *Engine) UpdateContract(ctx context.Context, id int64, patch model.ContractPatch) (*model.Contract, error) {
	var v ValidationError
	if patch.EffectiveDate != nil && !validDate(*patch.EffectiveDate) {
		v.Add("effective_date", "must be YYYY-MM-DD")
	}
	if patch.ExpirationDate != nil && !validDate(*patch.ExpirationDate) {
		v.Add("expiration_date", "must be YYYY-MM-DD")
	}
	if patch.EffectiveDate != nil && patch.ExpirationDate != nil &&
		validDate(*patch.EffectiveDate) && validDate(*patch.ExpirationDate) &&
		*patch.EffectiveDate > *patch.ExpirationDate {
		v.Add("effective_date", "must not be after expiration_date")
	}
	if patch.Currency != nil {
		if _, err := currency.ParseISO(*patch.Currency); err != nil {
			v.Add("currency", fmt.Sprintf("unknown ISO 4217 code %q", *patch.Currency))
		}
	}
	if len(v.Violations) > 0 {
		return nil, &v
	}
	return e.records.UpdateContract(ctx, id, patch)
}

// DeleteContract soft-deletes; a later update setting is_active back to
// true reverses it.
func (e *Engine) DeleteContract(ctx context.Context, id int64) error {
	inactive := false
	_, err := e.records.UpdateContract(ctx, id, model.ContractPatch{IsActive: &inactive})
	return err
}

// CreateParty validates and persists a standalone party.
func (e *Engine) CreateParty(ctx context.Context, draft PartyDraft) (*model.Party, error) {
	draft = sanitizeParty(draft)
	var v ValidationError
	if draft.Name == "" {
		v.Add("name", "required")
	}
	if draft.PartyType == "" {
		v.Add("party_type", "required")
	} else if !model.PartyType(draft.PartyType).Valid() {
		v.Add("party_type", "must be cedant, reinsurer, broker or other")
	}
	if len(v.Violations) > 0 {
		return nil, &v
	}
	return e.records.CreateParty(ctx, buildParty(draft))
}

// UpdateParty applies a partial update to a party.
func (e *Engine) UpdateParty(ctx context.Context, id int64, patch model.PartyPatch) (*model.Party, error) {
	if patch.PartyType != nil && !patch.PartyType.Valid() {
		v := ValidationError{}
		v.Add("party_type", "must be cedant, reinsurer, broker or other")
		return nil, &v
	}
	return e.records.UpdateParty(ctx, id, patch)
}

// DeleteParty soft-deletes a party.
func (e *Engine) DeleteParty(ctx context.Context, id int64) error {
	inactive := false
	_, err := e.records.UpdateParty(ctx, id, model.PartyPatch{IsActive: &inactive})
	return err
}

// LinkParty attaches a party to a contract, updating the role when the
// pair is already linked.
func (e *Engine) LinkParty(ctx context.Context, contractID, partyID int64, role string) error {
	return e.records.LinkParty(ctx, contractID, partyID, role)
}

// UnlinkParty removes the association row.
func (e *Engine) UnlinkParty(ctx context.Context, contractID, partyID int64) error {
	return e.records.UnlinkParty(ctx, contractID, partyID)
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
