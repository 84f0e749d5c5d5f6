package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/re-ink/intake/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleContract(number string) model.Contract {
	return model.Contract{
		ContractNumber: number,
		ContractName:   "Property Cat XoL",
		EffectiveDate:  "2026-01-01",
		ExpirationDate: "2026-12-31",
		Status:         model.ContractStatusActive,
		ReviewStatus:   model.ReviewStatusApproved,
		IsActive:       true,
	}
}

func sampleParty(name string) model.Party {
	return model.Party{
		Name:      name,
		PartyType: model.PartyTypeCedant,
		IsActive:  true,
	}
}

func TestJobLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, model.ExtractionJob{Filename: "treaty.pdf"})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusSubmitted, job.Status)

	require.NoError(t, st.MarkJobProcessing(ctx, job.ID, "working"))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, "working", got.Message)

	conf := 0.91
	result := &model.ExtractionResult{
		ContractData:    map[string]any{"contract_number": "PC-2026-001"},
		PartiesData:     []map[string]any{{"name": "Meridian Mutual", "party_type": "cedant"}},
		ConfidenceScore: &conf,
	}
	require.NoError(t, st.CompleteJob(ctx, job.ID, result, "done"))

	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "PC-2026-001", got.Result.ContractData["contract_number"])
	require.NotNil(t, got.Result.ConfidenceScore)
	assert.InDelta(t, 0.91, *got.Result.ConfidenceScore, 1e-9)
}

func TestJobTerminalProtection(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, model.ExtractionJob{Filename: "treaty.pdf"})
	require.NoError(t, err)
	require.NoError(t, st.MarkJobProcessing(ctx, job.ID, "working"))
	require.NoError(t, st.FailJob(ctx, job.ID, "upstream exploded"))

	// Duplicate delivery of the same terminal transition is a no-op.
	require.NoError(t, st.FailJob(ctx, job.ID, "upstream exploded again"))

	// A conflicting terminal transition is rejected.
	err = st.CompleteJob(ctx, job.ID, &model.ExtractionResult{}, "done")
	assert.ErrorIs(t, err, ErrJobTerminal)

	err = st.MarkJobProcessing(ctx, job.ID, "again")
	assert.ErrorIs(t, err, ErrJobTerminal)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, "upstream exploded", got.Message)
}

func TestJobReviewOutcome(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, model.ExtractionJob{Status: model.JobStatusCompleted})
	require.NoError(t, err)

	require.NoError(t, st.SetJobReview(ctx, job.ID, model.ReviewOutcomeRejected, "numbers look wrong"))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewOutcomeRejected, got.ReviewOutcome)
	assert.Equal(t, "numbers look wrong", got.ReviewReason)

	// Unknown ids do not error.
	assert.NoError(t, st.SetJobReview(ctx, "no-such-job", model.ReviewOutcomeRejected, ""))
}

func TestListRecentJobs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for range 5 {
		_, err := st.CreateJob(ctx, model.ExtractionJob{Filename: "doc.pdf"})
		require.NoError(t, err)
	}

	jobs, err := st.ListRecentJobs(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestGetJobNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateContractWithParties(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	reg := "LEI-12345"
	newParties := []NewParty{
		{Party: sampleParty("Meridian Mutual"), Role: "cedant"},
		{Party: model.Party{Name: "Atlas Re", PartyType: model.PartyTypeReinsurer, RegistrationNumber: &reg, IsActive: true}, Role: "reinsurer"},
	}

	contractID, partyIDs, err := st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"), newParties, nil)
	require.NoError(t, err)
	assert.Positive(t, contractID)
	require.Len(t, partyIDs, 2)

	got, err := st.GetContract(ctx, contractID)
	require.NoError(t, err)
	assert.Equal(t, "PC-2026-001", got.ContractNumber)
	require.Len(t, got.Parties, 2)

	roles := map[string]string{}
	for _, p := range got.Parties {
		roles[p.Name] = p.Role
	}
	assert.Equal(t, "cedant", roles["Meridian Mutual"])
	assert.Equal(t, "reinsurer", roles["Atlas Re"])
}

func TestDuplicateContractRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	firstID, _, err := st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"), nil, nil)
	require.NoError(t, err)

	_, _, err = st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"), nil, nil)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "contract", dup.Kind)
	assert.Equal(t, "PC-2026-001", dup.Key)
	assert.Equal(t, firstID, dup.ExistingID)

	// Only the first row exists.
	contracts, err := st.ListContracts(ctx, ContractFilter{})
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
}

func TestDuplicateLeavesNoOrphans(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"), nil, nil)
	require.NoError(t, err)

	// The failed approval carried a new party; the rollback must drop it.
	_, _, err = st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"),
		[]NewParty{{Party: sampleParty("Orphan Candidate"), Role: "cedant"}}, nil)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)

	parties, err := st.ListParties(ctx, PartyFilter{})
	require.NoError(t, err)
	assert.Empty(t, parties)
}

func TestConcurrentApprovalsOneWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errCh := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := st.CreateContractWithParties(ctx, sampleContract("RACE-001"), nil, nil)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	var successes, duplicates int
	for err := range errCh {
		if err == nil {
			successes++
			continue
		}
		var dup *DuplicateError
		if errors.As(err, &dup) {
			duplicates++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, duplicates)
}

func TestDuplicatePartyRegistration(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	reg := "LEI-777"
	first := model.Party{Name: "Atlas Re", PartyType: model.PartyTypeReinsurer, RegistrationNumber: &reg, IsActive: true}
	created, err := st.CreateParty(ctx, first)
	require.NoError(t, err)

	second := model.Party{Name: "Atlas Re Clone", PartyType: model.PartyTypeReinsurer, RegistrationNumber: &reg, IsActive: true}
	_, err = st.CreateParty(ctx, second)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "party", dup.Kind)
	assert.Equal(t, created.ID, dup.ExistingID)
}

func TestSoftDeleteAndReactivate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, _, err := st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"), nil, nil)
	require.NoError(t, err)

	inactive := false
	got, err := st.UpdateContract(ctx, id, model.ContractPatch{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// The number is free for reuse while the old row is inactive.
	found, err := st.FindActiveContractByNumber(ctx, "PC-2026-001")
	require.NoError(t, err)
	assert.Nil(t, found)

	secondID, _, err := st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"), nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id, secondID)

	// Reactivating the original would now collide with the active row.
	active := true
	_, err = st.UpdateContract(ctx, id, model.ContractPatch{IsActive: &active})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
}

func TestUpdateContractPartialPatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	contract := sampleContract("PC-2026-001")
	premium := 1250000.0
	contract.PremiumAmount = &premium
	id, _, err := st.CreateContractWithParties(ctx, contract, nil, nil)
	require.NoError(t, err)

	newName := "Renamed Treaty"
	got, err := st.UpdateContract(ctx, id, model.ContractPatch{ContractName: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Treaty", got.ContractName)
	// Unspecified fields are preserved.
	require.NotNil(t, got.PremiumAmount)
	assert.InDelta(t, 1250000.0, *got.PremiumAmount, 1e-9)
	assert.Equal(t, "2026-01-01", got.EffectiveDate)
	require.NotNil(t, got.UpdatedAt)
}

func TestLimitAmountRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	contract := sampleContract("QS-2026-001")
	contract.Limit = &model.Amount{Basis: model.AmountBasisPercentage, Value: 40}
	id, _, err := st.CreateContractWithParties(ctx, contract, nil, nil)
	require.NoError(t, err)

	got, err := st.GetContract(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Limit)
	assert.Equal(t, model.AmountBasisPercentage, got.Limit.Basis)
	assert.InDelta(t, 40.0, got.Limit.Value, 1e-9)
}

func TestListContractsFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	active := sampleContract("A-001")
	_, _, err := st.CreateContractWithParties(ctx, active, nil, nil)
	require.NoError(t, err)

	expired := sampleContract("B-001")
	expired.Status = model.ContractStatusExpired
	_, _, err = st.CreateContractWithParties(ctx, expired, nil, nil)
	require.NoError(t, err)

	got, err := st.ListContracts(ctx, ContractFilter{Status: model.ContractStatusExpired})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B-001", got[0].ContractNumber)

	got, err = st.ListContracts(ctx, ContractFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPartySearchCaseInsensitive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateParty(ctx, sampleParty("Meridian Mutual Insurance"))
	require.NoError(t, err)
	_, err = st.CreateParty(ctx, model.Party{Name: "Atlas Re", PartyType: model.PartyTypeReinsurer, IsActive: true})
	require.NoError(t, err)

	got, err := st.SearchPartiesByName(ctx, "meridian")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Meridian Mutual Insurance", got[0].Name)
}

func TestLinkPartyUpsertsRole(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	contractID, _, err := st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"), nil, nil)
	require.NoError(t, err)
	party, err := st.CreateParty(ctx, sampleParty("Meridian Mutual"))
	require.NoError(t, err)

	require.NoError(t, st.LinkParty(ctx, contractID, party.ID, "cedant"))
	require.NoError(t, st.LinkParty(ctx, contractID, party.ID, "broker"))

	got, err := st.GetContract(ctx, contractID)
	require.NoError(t, err)
	require.Len(t, got.Parties, 1)
	assert.Equal(t, "broker", got.Parties[0].Role)

	require.NoError(t, st.UnlinkParty(ctx, contractID, party.ID))
	got, err = st.GetContract(ctx, contractID)
	require.NoError(t, err)
	assert.Empty(t, got.Parties)

	// Unlinking a missing association reports not found.
	assert.ErrorIs(t, st.UnlinkParty(ctx, contractID, party.ID), ErrNotFound)
}

func TestLinkPartyUnknownIDs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, st.LinkParty(ctx, 999, 1, "cedant"), ErrNotFound)

	contractID, _, err := st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"), nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, st.LinkParty(ctx, contractID, 999, "cedant"), ErrNotFound)
}

func TestApprovalReusesExistingParties(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	party, err := st.CreateParty(ctx, sampleParty("Meridian Mutual"))
	require.NoError(t, err)

	contractID, partyIDs, err := st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"),
		nil, []PartyRef{{PartyID: party.ID, Role: "cedant"}})
	require.NoError(t, err)
	require.Equal(t, []int64{party.ID}, partyIDs)

	got, err := st.GetContract(ctx, contractID)
	require.NoError(t, err)
	require.Len(t, got.Parties, 1)
	assert.Equal(t, party.ID, got.Parties[0].ID)
}

func TestApprovalRejectsInactiveExistingParty(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	party, err := st.CreateParty(ctx, sampleParty("Meridian Mutual"))
	require.NoError(t, err)
	inactive := false
	_, err = st.UpdateParty(ctx, party.ID, model.PartyPatch{IsActive: &inactive})
	require.NoError(t, err)

	_, _, err = st.CreateContractWithParties(ctx, sampleContract("PC-2026-001"),
		nil, []PartyRef{{PartyID: party.ID, Role: "cedant"}})
	assert.ErrorIs(t, err, ErrNotFound)

	// The rollback must also drop the contract.
	contracts, err := st.ListContracts(ctx, ContractFilter{})
	require.NoError(t, err)
	assert.Empty(t, contracts)
}
