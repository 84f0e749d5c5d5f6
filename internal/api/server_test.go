package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/re-ink/intake/internal/extract"
	"github.com/re-ink/intake/internal/model"
	"github.com/re-ink/intake/internal/review"
	"github.com/re-ink/intake/internal/store"
	"github.com/re-ink/intake/internal/upload"
	"github.com/re-ink/intake/pkg/ade"
	"github.com/re-ink/intake/pkg/advisor"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubClient struct {
	result map[string]any
}

func (s *stubClient) Submit(context.Context, io.Reader, string) (string, error) {
	return "task-1", nil
}

func (s *stubClient) PollStatus(context.Context, string) (ade.TaskStatus, error) {
	return ade.TaskStatus{State: ade.TaskCompleted}, nil
}

func (s *stubClient) FetchResult(context.Context, string) (map[string]any, error) {
	return s.result, nil
}

type testEnv struct {
	server *httptest.Server
	store  *store.SQLiteStore
	orch   *extract.Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	uploads, err := upload.NewLocal(t.TempDir(), 1, []string{".pdf"})
	require.NoError(t, err)

	client := &stubClient{result: map[string]any{
		"extract_result": map[string]any{
			"data": map[string]any{
				"contract_name":   "Cat Treaty",
				"contract_number": "PC-001",
				"effective_date":  "2026-01-01",
				"expiration_date": "2026-12-31",
				"cedant_name":     "Meridian Mutual",
			},
		},
	}}

	orch := extract.New(context.Background(), st, client, uploads, extract.Options{
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  2 * time.Second,
	})
	engine := review.NewEngine(st, st)

	srv := httptest.NewServer(
		NewServer(orch, engine, st, uploads, advisor.NewOffline()).Router([]string{"*"}))
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: st, orch: orch}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadFlow(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "treaty.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.server.URL+"/api/documents/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)

	require.NoError(t, env.orch.Wait())

	resp, err = http.Get(env.server.URL + "/api/documents/status/" + jobID)
	require.NoError(t, err)
	status := decode[map[string]any](t, resp)
	assert.Equal(t, "completed", status["status"])

	resp, err = http.Get(env.server.URL + "/api/documents/results/" + jobID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decode[map[string]any](t, resp)
	result, _ := results["result"].(map[string]any)
	require.NotNil(t, result)
	cd, _ := result["contract_data"].(map[string]any)
	assert.Equal(t, "PC-001", cd["contract_number"])
}

func TestUploadRejectsBadExtension(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "virus.exe")
	require.NoError(t, err)
	_, err = part.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.server.URL+"/api/documents/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyntheticAndRecent(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/documents/synthetic", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	job := decode[model.ExtractionJob](t, resp)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)

	resp2 := env.postJSON(t, "/api/documents/synthetic?job_id=syn-1", nil)
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
	job2 := decode[model.ExtractionJob](t, resp2)
	assert.Equal(t, "syn-1", job2.ID)

	resp3, err := http.Get(env.server.URL + "/api/documents/recent?limit=5")
	require.NoError(t, err)
	recent := decode[map[string][]model.ExtractionJob](t, resp3)
	assert.Len(t, recent["jobs"], 2)
}

func TestStatusUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/api/documents/status/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResultsBeforeCompletionConflicts(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.store.CreateJob(context.Background(), model.ExtractionJob{})
	require.NoError(t, err)

	resp, err := http.Get(env.server.URL + "/api/documents/results/" + job.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func approvalBody() map[string]any {
	return map[string]any{
		"contract": map[string]any{
			"contract_number": "PC-2026-001",
			"contract_name":   "Property Cat XoL",
			"effective_date":  "2026-01-01",
			"expiration_date": "2026-12-31",
		},
		"parties": []map[string]any{
			{"name": "Meridian Mutual", "party_type": "cedant", "role": "cedant"},
		},
		"create_new_parties": true,
	}
}

func TestApproveEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/review/approve", approvalBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[review.ApprovalResult](t, resp)
	assert.Positive(t, res.ContractID)
	assert.Len(t, res.PartyIDs, 1)
}

func TestApproveValidationReturns422(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/review/approve", map[string]any{
		"contract": map[string]any{"contract_number": ""},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "validation_failed", body["error"])
	violations, _ := body["violations"].([]any)
	assert.GreaterOrEqual(t, len(violations), 4)
}

func TestApproveDuplicateReturns409(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/review/approve", approvalBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[review.ApprovalResult](t, resp)

	body := approvalBody()
	body["create_new_parties"] = false
	body["parties"] = []map[string]any{}
	resp = env.postJSON(t, "/api/review/approve", body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	conflict := decode[map[string]any](t, resp)
	assert.Equal(t, "duplicate_contract", conflict["error"])
	assert.Equal(t, "PC-2026-001", conflict["contract_number"])
	assert.Equal(t, float64(first.ContractID), conflict["existing_contract_id"])
}

func TestRejectEndpoint(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.store.CreateJob(context.Background(), model.ExtractionJob{Status: model.JobStatusCompleted})
	require.NoError(t, err)

	resp := env.postJSON(t, "/api/review/reject/"+job.ID, map[string]string{"reason": "bad numbers"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	got, err := env.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewOutcomeRejected, got.ReviewOutcome)

	// Unknown job ids are accepted quietly.
	resp = env.postJSON(t, "/api/review/reject/unknown", map[string]string{"reason": "x"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestContractCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/contracts/", approvalBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[review.ApprovalResult](t, resp)

	resp2, err := http.Get(fmt.Sprintf("%s/api/contracts/%d", env.server.URL, created.ContractID))
	require.NoError(t, err)
	contract := decode[model.Contract](t, resp2)
	assert.Equal(t, "PC-2026-001", contract.ContractNumber)
	assert.True(t, contract.ManuallyCreated)
	assert.Len(t, contract.Parties, 1)

	// Partial update.
	patch, err := json.Marshal(map[string]any{"contract_name": "Renamed"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/contracts/%d", env.server.URL, created.ContractID), bytes.NewReader(patch))
	require.NoError(t, err)
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	updated := decode[model.Contract](t, resp3)
	assert.Equal(t, "Renamed", updated.ContractName)
	assert.Equal(t, "2026-01-01", updated.EffectiveDate)

	// Soft delete.
	req, err = http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/contracts/%d", env.server.URL, created.ContractID), nil)
	require.NoError(t, err)
	resp4, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp4.Body.Close()
	assert.Equal(t, http.StatusOK, resp4.StatusCode)

	got, err := env.store.GetContract(context.Background(), created.ContractID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestListContractsFilter(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/contracts/", approvalBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp2, err := http.Get(env.server.URL + "/api/contracts/?is_active=true&limit=10")
	require.NoError(t, err)
	body := decode[map[string][]model.Contract](t, resp2)
	assert.Len(t, body["contracts"], 1)
}

func TestPartyEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/parties/", map[string]any{
		"name":       "Meridian Mutual Insurance",
		"party_type": "cedant",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	party := decode[model.Party](t, resp)
	assert.Positive(t, party.ID)

	resp2, err := http.Get(env.server.URL + "/api/parties/search?name=meridian")
	require.NoError(t, err)
	found := decode[map[string][]model.Party](t, resp2)
	require.Len(t, found["parties"], 1)
	assert.Equal(t, party.ID, found["parties"][0].ID)

	// Invalid party type enumerated by validation.
	resp3 := env.postJSON(t, "/api/parties/", map[string]any{
		"name":       "Bad Actor",
		"party_type": "villain",
	})
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp3.StatusCode)
}

func TestLinkUnlinkEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/contracts/", approvalBody())
	created := decode[review.ApprovalResult](t, resp)

	presp := env.postJSON(t, "/api/parties/", map[string]any{
		"name": "Atlas Re", "party_type": "reinsurer",
	})
	party := decode[model.Party](t, presp)

	url := fmt.Sprintf("%s/api/contracts/%d/parties/%d?role=reinsurer", env.server.URL, created.ContractID, party.ID)
	resp2, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/contracts/%d/parties/%d", env.server.URL, created.ContractID, party.ID), nil)
	require.NoError(t, err)
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)

	// Second unlink: association gone.
	resp4, err := http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	resp4.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)
}

func TestAdvisorEndpointOffline(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/documents/synthetic", nil)
	job := decode[model.ExtractionJob](t, resp)

	resp2 := env.postJSON(t, "/api/advisor/review", map[string]string{"job_id": job.ID})
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	ann := decode[advisor.Annotation](t, resp2)
	assert.True(t, ann.Offline)
	assert.NotEmpty(t, ann.Summary)
}
