package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/re-ink/intake/internal/db"
	"github.com/re-ink/intake/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_jobs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'submitted',
	message        TEXT NOT NULL DEFAULT '',
	filename       TEXT NOT NULL DEFAULT '',
	file_ref       TEXT NOT NULL DEFAULT '',
	result         JSONB,
	review_outcome TEXT NOT NULL DEFAULT '',
	review_reason  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contracts (
	id                   BIGSERIAL PRIMARY KEY,
	contract_number      TEXT NOT NULL,
	contract_name        TEXT NOT NULL,
	contract_type        TEXT,
	contract_sub_type    TEXT,
	contract_nature      TEXT,
	effective_date       TEXT NOT NULL,
	expiration_date      TEXT NOT NULL,
	inception_date       TEXT,
	premium_amount       NUMERIC,
	currency             TEXT,
	limit_amount         NUMERIC,
	limit_basis          TEXT,
	retention_amount     NUMERIC,
	commission_rate      NUMERIC,
	line_of_business     TEXT,
	coverage_territory   TEXT,
	coverage_description TEXT,
	terms_and_conditions TEXT,
	special_provisions   TEXT,
	status               TEXT NOT NULL DEFAULT 'draft',
	review_status        TEXT NOT NULL DEFAULT 'pending',
	source_document_name TEXT,
	extraction_confidence NUMERIC,
	extraction_job_id    TEXT,
	is_manually_created  BOOLEAN NOT NULL DEFAULT false,
	notes                TEXT,
	is_active            BOOLEAN NOT NULL DEFAULT true,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS parties (
	id                  BIGSERIAL PRIMARY KEY,
	name                TEXT NOT NULL,
	party_type          TEXT NOT NULL,
	email               TEXT,
	phone               TEXT,
	address_line1       TEXT,
	address_line2       TEXT,
	city                TEXT,
	state               TEXT,
	postal_code         TEXT,
	country             TEXT,
	registration_number TEXT,
	license_number      TEXT,
	notes               TEXT,
	is_active           BOOLEAN NOT NULL DEFAULT true,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS contract_parties (
	contract_id BIGINT NOT NULL REFERENCES contracts(id),
	party_id    BIGINT NOT NULL REFERENCES parties(id),
	role        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (contract_id, party_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_contracts_number_active
	ON contracts(contract_number) WHERE is_active;
CREATE UNIQUE INDEX IF NOT EXISTS uq_parties_registration_active
	ON parties(registration_number) WHERE is_active AND registration_number IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON extraction_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);
CREATE INDEX IF NOT EXISTS idx_parties_name ON parties(name);
CREATE INDEX IF NOT EXISTS idx_contract_parties_party ON contract_parties(party_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Jobs

func (s *PostgresStore) CreateJob(ctx context.Context, job model.ExtractionJob) (*model.ExtractionJob, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = model.JobStatusSubmitted
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	var resultJSON []byte
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal job result")
		}
		resultJSON = b
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_jobs (id, status, message, filename, file_ref, result, review_outcome, review_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, string(job.Status), job.Message, job.Filename, job.FileRef,
		resultJSON, string(job.ReviewOutcome), job.ReviewReason, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ExtractionJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, message, filename, file_ref, result, review_outcome, review_reason, created_at, updated_at
		 FROM extraction_jobs WHERE id = $1`, id)
	return scanPgJob(row)
}

func (s *PostgresStore) ListRecentJobs(ctx context.Context, n int) ([]model.ExtractionJob, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, message, filename, file_ref, result, review_outcome, review_reason, created_at, updated_at
		 FROM extraction_jobs ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ExtractionJob
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) MarkJobProcessing(ctx context.Context, id string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs SET status = $1, message = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(model.JobStatusProcessing), message, time.Now().UTC(), id, string(model.JobStatusSubmitted),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark job processing %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.resolveJobConflict(ctx, id, model.JobStatusProcessing)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string, result *model.ExtractionResult, message string) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs SET status = $1, result = $2, message = $3, updated_at = $4
		 WHERE id = $5 AND status NOT IN ($6, $7)`,
		string(model.JobStatusCompleted), resultJSON, message, time.Now().UTC(),
		id, string(model.JobStatusCompleted), string(model.JobStatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.resolveJobConflict(ctx, id, model.JobStatusCompleted)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs SET status = $1, message = $2, updated_at = $3
		 WHERE id = $4 AND status NOT IN ($5, $6)`,
		string(model.JobStatusFailed), message, time.Now().UTC(),
		id, string(model.JobStatusCompleted), string(model.JobStatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.resolveJobConflict(ctx, id, model.JobStatusFailed)
	}
	return nil
}

func (s *PostgresStore) resolveJobConflict(ctx context.Context, id string, wanted model.JobStatus) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == wanted {
		return nil
	}
	if job.Status.Terminal() {
		return eris.Wrapf(ErrJobTerminal, "job %s is %s", id, job.Status)
	}
	return eris.Errorf("postgres: job %s in unexpected state %s", id, job.Status)
}

func (s *PostgresStore) SetJobReview(ctx context.Context, id string, outcome model.ReviewOutcome, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE extraction_jobs SET review_outcome = $1, review_reason = $2, updated_at = $3 WHERE id = $4`,
		string(outcome), reason, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: set job review %s", id)
}

func scanPgJob(row pgx.Row) (*model.ExtractionJob, error) {
	var j model.ExtractionJob
	var status, outcome string
	var resultNull *[]byte

	err := row.Scan(&j.ID, &status, &j.Message, &j.Filename, &j.FileRef,
		&resultNull, &outcome, &j.ReviewReason, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: scan job")
	}
	j.Status = model.JobStatus(status)
	j.ReviewOutcome = model.ReviewOutcome(outcome)
	if resultNull != nil {
		j.Result = &model.ExtractionResult{}
		if err := json.Unmarshal(*resultNull, j.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job result")
		}
	}
	return &j, nil
}

// Contracts

func (s *PostgresStore) CreateContractWithParties(ctx context.Context, contract model.Contract, newParties []NewParty, existing []PartyRef) (int64, []int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Re-validate the duplicate check under the same transaction that
	// performs the insert; the partial unique index backstops the race.
	var existingID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM contracts WHERE contract_number = $1 AND is_active`,
		contract.ContractNumber,
	).Scan(&existingID)
	if err == nil {
		return 0, nil, &DuplicateError{Kind: "contract", Key: contract.ContractNumber, ExistingID: existingID}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, eris.Wrap(err, "postgres: check duplicate contract")
	}

	contractID, err := pgInsertContract(ctx, tx, contract)
	if err != nil {
		return 0, nil, s.mapPgUnique(ctx, err, contract.ContractNumber, "")
	}

	now := time.Now().UTC()
	var partyIDs []int64
	for _, np := range newParties {
		if np.Party.RegistrationNumber != nil {
			var dupID int64
			err = tx.QueryRow(ctx,
				`SELECT id FROM parties WHERE registration_number = $1 AND is_active`,
				*np.Party.RegistrationNumber,
			).Scan(&dupID)
			if err == nil {
				return 0, nil, &DuplicateError{Kind: "party", Key: *np.Party.RegistrationNumber, ExistingID: dupID}
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return 0, nil, eris.Wrap(err, "postgres: check duplicate party")
			}
		}
		partyID, err := pgInsertParty(ctx, tx, np.Party)
		if err != nil {
			reg := ""
			if np.Party.RegistrationNumber != nil {
				reg = *np.Party.RegistrationNumber
			}
			return 0, nil, s.mapPgUnique(ctx, err, "", reg)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO contract_parties (contract_id, party_id, role, created_at) VALUES ($1, $2, $3, $4)`,
			contractID, partyID, np.Role, now,
		); err != nil {
			return 0, nil, eris.Wrap(err, "postgres: insert link")
		}
		partyIDs = append(partyIDs, partyID)
	}

	for _, ref := range existing {
		var pid int64
		err = tx.QueryRow(ctx,
			`SELECT id FROM parties WHERE id = $1 AND is_active`, ref.PartyID,
		).Scan(&pid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, nil, eris.Wrapf(ErrNotFound, "party %d", ref.PartyID)
			}
			return 0, nil, eris.Wrap(err, "postgres: check existing party")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO contract_parties (contract_id, party_id, role, created_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (contract_id, party_id) DO UPDATE SET role = EXCLUDED.role`,
			contractID, ref.PartyID, ref.Role, now,
		); err != nil {
			return 0, nil, eris.Wrap(err, "postgres: insert link")
		}
		partyIDs = append(partyIDs, ref.PartyID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, s.mapPgUnique(ctx, err, contract.ContractNumber, "")
	}
	return contractID, partyIDs, nil
}

// mapPgUnique converts a unique-violation (23505) on one of the partial
// indexes into the structured duplicate error.
func (s *PostgresStore) mapPgUnique(ctx context.Context, err error, contractNumber, registration string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "uq_contracts_number_active":
			dup := &DuplicateError{Kind: "contract", Key: contractNumber}
			if c, ferr := s.FindActiveContractByNumber(ctx, contractNumber); ferr == nil && c != nil {
				dup.ExistingID = c.ID
			}
			return dup
		case "uq_parties_registration_active":
			dup := &DuplicateError{Kind: "party", Key: registration}
			if p, ferr := s.FindActivePartyByRegistration(ctx, registration); ferr == nil && p != nil {
				dup.ExistingID = p.ID
			}
			return dup
		}
	}
	return eris.Wrap(err, "postgres: write")
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgInsertContract(ctx context.Context, q pgQuerier, c model.Contract) (int64, error) {
	var limitAmount *float64
	var limitBasis *string
	if c.Limit != nil {
		limitAmount = &c.Limit.Value
		basis := string(c.Limit.Basis)
		limitBasis = &basis
	}
	if c.Status == "" {
		c.Status = model.ContractStatusDraft
	}
	if c.ReviewStatus == "" {
		c.ReviewStatus = model.ReviewStatusPending
	}

	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO contracts (
			contract_number, contract_name, contract_type, contract_sub_type, contract_nature,
			effective_date, expiration_date, inception_date,
			premium_amount, currency, limit_amount, limit_basis, retention_amount, commission_rate,
			line_of_business, coverage_territory, coverage_description, terms_and_conditions, special_provisions,
			status, review_status, source_document_name, extraction_confidence, extraction_job_id,
			is_manually_created, notes, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		RETURNING id`,
		c.ContractNumber, c.ContractName, c.ContractType, c.ContractSubType, c.ContractNature,
		c.EffectiveDate, c.ExpirationDate, c.InceptionDate,
		c.PremiumAmount, c.Currency, limitAmount, limitBasis, c.RetentionAmount, c.CommissionRate,
		c.LineOfBusiness, c.CoverageTerritory, c.CoverageDescription, c.TermsAndConditions, c.SpecialProvisions,
		string(c.Status), string(c.ReviewStatus), c.SourceDocumentName, c.ExtractionConfidence, c.ExtractionJobID,
		c.ManuallyCreated, c.Notes, true, time.Now().UTC(),
	).Scan(&id)
	return id, err
}

func pgInsertParty(ctx context.Context, q pgQuerier, p model.Party) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO parties (
			name, party_type, email, phone, address_line1, address_line2, city, state, postal_code, country,
			registration_number, license_number, notes, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		p.Name, string(p.PartyType), p.Email, p.Phone, p.AddressLine1, p.AddressLine2,
		p.City, p.State, p.PostalCode, p.Country,
		p.RegistrationNumber, p.LicenseNumber, p.Notes, true, time.Now().UTC(),
	).Scan(&id)
	return id, err
}

func (s *PostgresStore) GetContract(ctx context.Context, id int64) (*model.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
	c, err := scanPgContract(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.party_type, p.email, p.phone, p.address_line1, p.address_line2,
		        p.city, p.state, p.postal_code, p.country, p.registration_number, p.license_number,
		        p.notes, p.is_active, p.created_at, p.updated_at, cp.role
		 FROM parties p
		 JOIN contract_parties cp ON cp.party_id = p.id
		 WHERE cp.contract_id = $1`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get contract parties")
	}
	defer rows.Close()

	for rows.Next() {
		var cp model.ContractParty
		var partyType string
		if err := rows.Scan(&cp.ID, &cp.Name, &partyType, &cp.Email, &cp.Phone,
			&cp.AddressLine1, &cp.AddressLine2, &cp.City, &cp.State, &cp.PostalCode, &cp.Country,
			&cp.RegistrationNumber, &cp.LicenseNumber, &cp.Notes, &cp.IsActive,
			&cp.CreatedAt, &cp.UpdatedAt, &cp.Role); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract party")
		}
		cp.PartyType = model.PartyType(partyType)
		c.Parties = append(c.Parties, cp)
	}
	return c, eris.Wrap(rows.Err(), "postgres: get contract parties iterate")
}

func (s *PostgresStore) ListContracts(ctx context.Context, filter ContractFilter) ([]model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ContractType != "" {
		query += fmt.Sprintf(` AND contract_type = $%d`, argIdx)
		args = append(args, filter.ContractType)
		argIdx++
	}
	if filter.IsActive != nil {
		query += fmt.Sprintf(` AND is_active = $%d`, argIdx)
		args = append(args, *filter.IsActive)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contracts")
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		c, err := scanPgContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, eris.Wrap(rows.Err(), "postgres: list contracts iterate")
}

func (s *PostgresStore) UpdateContract(ctx context.Context, id int64, patch model.ContractPatch) (*model.Contract, error) {
	cols, vals := contractPatchFields(patch)
	if len(cols) == 0 {
		return s.GetContract(ctx, id)
	}
	query := `UPDATE contracts SET `
	for i, col := range cols {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("%s = $%d", col, i+1)
	}
	query += fmt.Sprintf(", updated_at = $%d WHERE id = $%d", len(cols)+1, len(cols)+2)
	vals = append(vals, time.Now().UTC(), id)

	tag, err := s.pool.Exec(ctx, query, vals...)
	if err != nil {
		// A reactivation can collide on the row's own number even when
		// the patch does not touch it.
		number := ""
		if patch.ContractNumber != nil {
			number = *patch.ContractNumber
		} else if cur, gerr := s.GetContract(ctx, id); gerr == nil {
			number = cur.ContractNumber
		}
		return nil, s.mapPgUnique(ctx, err, number, "")
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "contract %d", id)
	}
	return s.GetContract(ctx, id)
}

func (s *PostgresStore) FindActiveContractByNumber(ctx context.Context, number string) (*model.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE contract_number = $1 AND is_active`, number)
	c, err := scanPgContract(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func scanPgContract(row pgx.Row) (*model.Contract, error) {
	var c model.Contract
	var status, reviewStatus string
	var limitAmount *float64
	var limitBasis *string

	err := row.Scan(&c.ID, &c.ContractNumber, &c.ContractName, &c.ContractType, &c.ContractSubType, &c.ContractNature,
		&c.EffectiveDate, &c.ExpirationDate, &c.InceptionDate,
		&c.PremiumAmount, &c.Currency, &limitAmount, &limitBasis, &c.RetentionAmount, &c.CommissionRate,
		&c.LineOfBusiness, &c.CoverageTerritory, &c.CoverageDescription, &c.TermsAndConditions, &c.SpecialProvisions,
		&status, &reviewStatus, &c.SourceDocumentName, &c.ExtractionConfidence, &c.ExtractionJobID,
		&c.ManuallyCreated, &c.Notes, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: scan contract")
	}
	c.Status = model.ContractStatus(status)
	c.ReviewStatus = model.ReviewStatus(reviewStatus)
	if limitAmount != nil {
		basis := model.AmountBasisFixed
		if limitBasis != nil {
			basis = model.AmountBasis(*limitBasis)
		}
		c.Limit = &model.Amount{Basis: basis, Value: *limitAmount}
	}
	return &c, nil
}

// Parties

func (s *PostgresStore) CreateParty(ctx context.Context, party model.Party) (*model.Party, error) {
	if party.RegistrationNumber != nil {
		existing, err := s.FindActivePartyByRegistration(ctx, *party.RegistrationNumber)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, &DuplicateError{Kind: "party", Key: *party.RegistrationNumber, ExistingID: existing.ID}
		}
	}
	id, err := pgInsertParty(ctx, s.pool, party)
	if err != nil {
		reg := ""
		if party.RegistrationNumber != nil {
			reg = *party.RegistrationNumber
		}
		return nil, s.mapPgUnique(ctx, err, "", reg)
	}
	return s.GetParty(ctx, id)
}

func (s *PostgresStore) GetParty(ctx context.Context, id int64) (*model.Party, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE id = $1`, id)
	return scanPgParty(row)
}

func (s *PostgresStore) ListParties(ctx context.Context, filter PartyFilter) ([]model.Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE true`
	args := []any{}
	argIdx := 1

	if filter.PartyType != "" {
		query += fmt.Sprintf(` AND party_type = $%d`, argIdx)
		args = append(args, string(filter.PartyType))
		argIdx++
	}
	if filter.IsActive != nil {
		query += fmt.Sprintf(` AND is_active = $%d`, argIdx)
		args = append(args, *filter.IsActive)
		argIdx++
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parties")
	}
	defer rows.Close()
	return collectPgParties(rows)
}

func (s *PostgresStore) SearchPartiesByName(ctx context.Context, name string) ([]model.Party, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE name ILIKE $1 ORDER BY name`,
		"%"+name+"%")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search parties")
	}
	defer rows.Close()
	return collectPgParties(rows)
}

func collectPgParties(rows pgx.Rows) ([]model.Party, error) {
	var parties []model.Party
	for rows.Next() {
		p, err := scanPgParty(rows)
		if err != nil {
			return nil, err
		}
		parties = append(parties, *p)
	}
	return parties, eris.Wrap(rows.Err(), "postgres: parties iterate")
}

func (s *PostgresStore) UpdateParty(ctx context.Context, id int64, patch model.PartyPatch) (*model.Party, error) {
	cols, vals := partyPatchFields(patch)
	if len(cols) == 0 {
		return s.GetParty(ctx, id)
	}
	query := `UPDATE parties SET `
	for i, col := range cols {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("%s = $%d", col, i+1)
	}
	query += fmt.Sprintf(", updated_at = $%d WHERE id = $%d", len(cols)+1, len(cols)+2)
	vals = append(vals, time.Now().UTC(), id)

	tag, err := s.pool.Exec(ctx, query, vals...)
	if err != nil {
		reg := ""
		if patch.RegistrationNumber != nil {
			reg = *patch.RegistrationNumber
		} else if cur, gerr := s.GetParty(ctx, id); gerr == nil && cur.RegistrationNumber != nil {
			reg = *cur.RegistrationNumber
		}
		return nil, s.mapPgUnique(ctx, err, "", reg)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "party %d", id)
	}
	return s.GetParty(ctx, id)
}

func (s *PostgresStore) FindActivePartyByRegistration(ctx context.Context, registration string) (*model.Party, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE registration_number = $1 AND is_active`, registration)
	p, err := scanPgParty(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func scanPgParty(row pgx.Row) (*model.Party, error) {
	var p model.Party
	var partyType string

	err := row.Scan(&p.ID, &p.Name, &partyType, &p.Email, &p.Phone,
		&p.AddressLine1, &p.AddressLine2, &p.City, &p.State, &p.PostalCode, &p.Country,
		&p.RegistrationNumber, &p.LicenseNumber, &p.Notes, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: scan party")
	}
	p.PartyType = model.PartyType(partyType)
	return &p, nil
}

// Links

func (s *PostgresStore) LinkParty(ctx context.Context, contractID, partyID int64, role string) error {
	var exists int64
	if err := s.pool.QueryRow(ctx, `SELECT id FROM contracts WHERE id = $1`, contractID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "contract %d", contractID)
		}
		return eris.Wrap(err, "postgres: link party")
	}
	if err := s.pool.QueryRow(ctx, `SELECT id FROM parties WHERE id = $1`, partyID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "party %d", partyID)
		}
		return eris.Wrap(err, "postgres: link party")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contract_parties (contract_id, party_id, role, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (contract_id, party_id) DO UPDATE SET role = EXCLUDED.role`,
		contractID, partyID, role, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: link party")
}

func (s *PostgresStore) UnlinkParty(ctx context.Context, contractID, partyID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM contract_parties WHERE contract_id = $1 AND party_id = $2`,
		contractID, partyID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: unlink party")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "link %d/%d", contractID, partyID)
	}
	return nil
}
