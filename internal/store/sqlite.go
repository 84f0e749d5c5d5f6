package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/re-ink/intake/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs tests
// and single-node deployments; postgres is the production backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Single connection so the pragmas apply everywhere and writers
	// serialize instead of tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_jobs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'submitted',
	message        TEXT NOT NULL DEFAULT '',
	filename       TEXT NOT NULL DEFAULT '',
	file_ref       TEXT NOT NULL DEFAULT '',
	result         TEXT,
	review_outcome TEXT NOT NULL DEFAULT '',
	review_reason  TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contracts (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	contract_number      TEXT NOT NULL,
	contract_name        TEXT NOT NULL,
	contract_type        TEXT,
	contract_sub_type    TEXT,
	contract_nature      TEXT,
	effective_date       TEXT NOT NULL,
	expiration_date      TEXT NOT NULL,
	inception_date       TEXT,
	premium_amount       REAL,
	currency             TEXT,
	limit_amount         REAL,
	limit_basis          TEXT,
	retention_amount     REAL,
	commission_rate      REAL,
	line_of_business     TEXT,
	coverage_territory   TEXT,
	coverage_description TEXT,
	terms_and_conditions TEXT,
	special_provisions   TEXT,
	status               TEXT NOT NULL DEFAULT 'draft',
	review_status        TEXT NOT NULL DEFAULT 'pending',
	source_document_name TEXT,
	extraction_confidence REAL,
	extraction_job_id    TEXT,
	is_manually_created  INTEGER NOT NULL DEFAULT 0,
	notes                TEXT,
	is_active            INTEGER NOT NULL DEFAULT 1,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME
);

CREATE TABLE IF NOT EXISTS parties (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
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
	is_active           INTEGER NOT NULL DEFAULT 1,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME
);

CREATE TABLE IF NOT EXISTS contract_parties (
	contract_id INTEGER NOT NULL REFERENCES contracts(id),
	party_id    INTEGER NOT NULL REFERENCES parties(id),
	role        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (contract_id, party_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_contracts_number_active
	ON contracts(contract_number) WHERE is_active = 1;
CREATE UNIQUE INDEX IF NOT EXISTS uq_parties_registration_active
	ON parties(registration_number) WHERE is_active = 1 AND registration_number IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON extraction_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);
CREATE INDEX IF NOT EXISTS idx_parties_name ON parties(name);
CREATE INDEX IF NOT EXISTS idx_contract_parties_party ON contract_parties(party_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, job model.ExtractionJob) (*model.ExtractionJob, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = model.JobStatusSubmitted
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	var resultJSON *string
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal job result")
		}
		str := string(b)
		resultJSON = &str
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_jobs (id, status, message, filename, file_ref, result, review_outcome, review_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.Message, job.Filename, job.FileRef,
		resultJSON, string(job.ReviewOutcome), job.ReviewReason, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, message, filename, file_ref, result, review_outcome, review_reason, created_at, updated_at
		 FROM extraction_jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) ListRecentJobs(ctx context.Context, n int) ([]model.ExtractionJob, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, message, filename, file_ref, result, review_outcome, review_reason, created_at, updated_at
		 FROM extraction_jobs ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ExtractionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) MarkJobProcessing(ctx context.Context, id string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = ?, message = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusProcessing), message, time.Now().UTC(), id, string(model.JobStatusSubmitted),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark job processing %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return s.resolveJobConflict(ctx, id, model.JobStatusProcessing)
	}
	return nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, result *model.ExtractionResult, message string) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = ?, result = ?, message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.JobStatusCompleted), string(resultJSON), message, time.Now().UTC(),
		id, string(model.JobStatusCompleted), string(model.JobStatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return s.resolveJobConflict(ctx, id, model.JobStatusCompleted)
	}
	return nil
}

func (s *SQLiteStore) FailJob(ctx context.Context, id string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = ?, message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.JobStatusFailed), message, time.Now().UTC(),
		id, string(model.JobStatusCompleted), string(model.JobStatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return s.resolveJobConflict(ctx, id, model.JobStatusFailed)
	}
	return nil
}

// resolveJobConflict distinguishes an unknown job from a terminal-state
// conflict after a guarded update matched no rows. A duplicate delivery
// of the transition the job already took is a no-op.
func (s *SQLiteStore) resolveJobConflict(ctx context.Context, id string, wanted model.JobStatus) error {
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
	return eris.Errorf("sqlite: job %s in unexpected state %s", id, job.Status)
}

func (s *SQLiteStore) SetJobReview(ctx context.Context, id string, outcome model.ReviewOutcome, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET review_outcome = ?, review_reason = ?, updated_at = ? WHERE id = ?`,
		string(outcome), reason, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: set job review %s", id)
}

func scanJob(row interface{ Scan(...any) error }) (*model.ExtractionJob, error) {
	var j model.ExtractionJob
	var status, outcome string
	var resultJSON *string

	err := row.Scan(&j.ID, &status, &j.Message, &j.Filename, &j.FileRef,
		&resultJSON, &outcome, &j.ReviewReason, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	j.Status = model.JobStatus(status)
	j.ReviewOutcome = model.ReviewOutcome(outcome)
	if resultJSON != nil {
		j.Result = &model.ExtractionResult{}
		if err := json.Unmarshal([]byte(*resultJSON), j.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job result")
		}
	}
	return &j, nil
}

// Contracts

const contractColumns = `id, contract_number, contract_name, contract_type, contract_sub_type, contract_nature,
	effective_date, expiration_date, inception_date,
	premium_amount, currency, limit_amount, limit_basis, retention_amount, commission_rate,
	line_of_business, coverage_territory, coverage_description, terms_and_conditions, special_provisions,
	status, review_status, source_document_name, extraction_confidence, extraction_job_id,
	is_manually_created, notes, is_active, created_at, updated_at`

func (s *SQLiteStore) CreateContractWithParties(ctx context.Context, contract model.Contract, newParties []NewParty, existing []PartyRef) (int64, []int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	// Re-validate the duplicate check under the same transaction that
	// performs the insert.
	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM contracts WHERE contract_number = ? AND is_active = 1`,
		contract.ContractNumber,
	).Scan(&existingID)
	if err == nil {
		return 0, nil, &DuplicateError{Kind: "contract", Key: contract.ContractNumber, ExistingID: existingID}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, nil, eris.Wrap(err, "sqlite: check duplicate contract")
	}

	contractID, err := sqliteInsertContract(ctx, tx, contract)
	if err != nil {
		return 0, nil, s.mapUniqueViolation(ctx, err, contract.ContractNumber, "")
	}

	now := time.Now().UTC()
	var partyIDs []int64
	for _, np := range newParties {
		if np.Party.RegistrationNumber != nil {
			var dupID int64
			err = tx.QueryRowContext(ctx,
				`SELECT id FROM parties WHERE registration_number = ? AND is_active = 1`,
				*np.Party.RegistrationNumber,
			).Scan(&dupID)
			if err == nil {
				return 0, nil, &DuplicateError{Kind: "party", Key: *np.Party.RegistrationNumber, ExistingID: dupID}
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return 0, nil, eris.Wrap(err, "sqlite: check duplicate party")
			}
		}
		partyID, err := sqliteInsertParty(ctx, tx, np.Party)
		if err != nil {
			reg := ""
			if np.Party.RegistrationNumber != nil {
				reg = *np.Party.RegistrationNumber
			}
			return 0, nil, s.mapUniqueViolation(ctx, err, "", reg)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contract_parties (contract_id, party_id, role, created_at) VALUES (?, ?, ?, ?)`,
			contractID, partyID, np.Role, now,
		); err != nil {
			return 0, nil, eris.Wrap(err, "sqlite: insert link")
		}
		partyIDs = append(partyIDs, partyID)
	}

	for _, ref := range existing {
		var pid int64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM parties WHERE id = ? AND is_active = 1`, ref.PartyID,
		).Scan(&pid)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, nil, eris.Wrapf(ErrNotFound, "party %d", ref.PartyID)
			}
			return 0, nil, eris.Wrap(err, "sqlite: check existing party")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contract_parties (contract_id, party_id, role, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(contract_id, party_id) DO UPDATE SET role = excluded.role`,
			contractID, ref.PartyID, ref.Role, now,
		); err != nil {
			return 0, nil, eris.Wrap(err, "sqlite: insert link")
		}
		partyIDs = append(partyIDs, ref.PartyID)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, s.mapUniqueViolation(ctx, err, contract.ContractNumber, "")
	}
	return contractID, partyIDs, nil
}

// mapUniqueViolation converts a partial unique index violation into the
// structured duplicate error, looking up the surviving row's id. The
// index backstops the in-transaction check when two commits race.
func (s *SQLiteStore) mapUniqueViolation(ctx context.Context, err error, contractNumber, registration string) error {
	msg := err.Error()
	if strings.Contains(msg, "contracts.contract_number") && contractNumber != "" {
		dup := &DuplicateError{Kind: "contract", Key: contractNumber}
		if c, ferr := s.FindActiveContractByNumber(ctx, contractNumber); ferr == nil && c != nil {
			dup.ExistingID = c.ID
		}
		return dup
	}
	if strings.Contains(msg, "parties.registration_number") && registration != "" {
		dup := &DuplicateError{Kind: "party", Key: registration}
		if p, ferr := s.FindActivePartyByRegistration(ctx, registration); ferr == nil && p != nil {
			dup.ExistingID = p.ID
		}
		return dup
	}
	return eris.Wrap(err, "sqlite: write")
}

type sqliteExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqliteInsertContract(ctx context.Context, q sqliteExecer, c model.Contract) (int64, error) {
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

	res, err := q.ExecContext(ctx,
		`INSERT INTO contracts (
			contract_number, contract_name, contract_type, contract_sub_type, contract_nature,
			effective_date, expiration_date, inception_date,
			premium_amount, currency, limit_amount, limit_basis, retention_amount, commission_rate,
			line_of_business, coverage_territory, coverage_description, terms_and_conditions, special_provisions,
			status, review_status, source_document_name, extraction_confidence, extraction_job_id,
			is_manually_created, notes, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ContractNumber, c.ContractName, c.ContractType, c.ContractSubType, c.ContractNature,
		c.EffectiveDate, c.ExpirationDate, c.InceptionDate,
		c.PremiumAmount, c.Currency, limitAmount, limitBasis, c.RetentionAmount, c.CommissionRate,
		c.LineOfBusiness, c.CoverageTerritory, c.CoverageDescription, c.TermsAndConditions, c.SpecialProvisions,
		string(c.Status), string(c.ReviewStatus), c.SourceDocumentName, c.ExtractionConfidence, c.ExtractionJobID,
		c.ManuallyCreated, c.Notes, true, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func sqliteInsertParty(ctx context.Context, q sqliteExecer, p model.Party) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO parties (
			name, party_type, email, phone, address_line1, address_line2, city, state, postal_code, country,
			registration_number, license_number, notes, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, string(p.PartyType), p.Email, p.Phone, p.AddressLine1, p.AddressLine2,
		p.City, p.State, p.PostalCode, p.Country,
		p.RegistrationNumber, p.LicenseNumber, p.Notes, true, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetContract(ctx context.Context, id int64) (*model.Contract, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanSQLiteContract(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.party_type, p.email, p.phone, p.address_line1, p.address_line2,
		        p.city, p.state, p.postal_code, p.country, p.registration_number, p.license_number,
		        p.notes, p.is_active, p.created_at, p.updated_at, cp.role
		 FROM parties p
		 JOIN contract_parties cp ON cp.party_id = p.id
		 WHERE cp.contract_id = ?`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get contract parties")
	}
	defer rows.Close()

	for rows.Next() {
		var cp model.ContractParty
		var partyType string
		var active int64
		if err := rows.Scan(&cp.ID, &cp.Name, &partyType, &cp.Email, &cp.Phone,
			&cp.AddressLine1, &cp.AddressLine2, &cp.City, &cp.State, &cp.PostalCode, &cp.Country,
			&cp.RegistrationNumber, &cp.LicenseNumber, &cp.Notes, &active,
			&cp.CreatedAt, &cp.UpdatedAt, &cp.Role); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract party")
		}
		cp.PartyType = model.PartyType(partyType)
		cp.IsActive = active != 0
		c.Parties = append(c.Parties, cp)
	}
	return c, eris.Wrap(rows.Err(), "sqlite: get contract parties iterate")
}

func (s *SQLiteStore) ListContracts(ctx context.Context, filter ContractFilter) ([]model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ContractType != "" {
		query += ` AND contract_type = ?`
		args = append(args, filter.ContractType)
	}
	if filter.IsActive != nil {
		query += ` AND is_active = ?`
		args = append(args, *filter.IsActive)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contracts")
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		c, err := scanSQLiteContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, eris.Wrap(rows.Err(), "sqlite: list contracts iterate")
}

func (s *SQLiteStore) UpdateContract(ctx context.Context, id int64, patch model.ContractPatch) (*model.Contract, error) {
	cols, vals := contractPatchFields(patch)
	if len(cols) == 0 {
		return s.GetContract(ctx, id)
	}
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	sets = append(sets, "updated_at = ?")
	vals = append(vals, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, vals...)
	if err != nil {
		// A reactivation can collide on the row's own number even when
		// the patch does not touch it.
		number := ""
		if patch.ContractNumber != nil {
			number = *patch.ContractNumber
		} else if cur, gerr := s.GetContract(ctx, id); gerr == nil {
			number = cur.ContractNumber
		}
		return nil, s.mapUniqueViolation(ctx, err, number, "")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "contract %d", id)
	}
	return s.GetContract(ctx, id)
}

func (s *SQLiteStore) FindActiveContractByNumber(ctx context.Context, number string) (*model.Contract, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE contract_number = ? AND is_active = 1`, number)
	c, err := scanSQLiteContract(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func scanSQLiteContract(row interface{ Scan(...any) error }) (*model.Contract, error) {
	var c model.Contract
	var status, reviewStatus string
	var limitAmount *float64
	var limitBasis *string
	var manual, active int64

	err := row.Scan(&c.ID, &c.ContractNumber, &c.ContractName, &c.ContractType, &c.ContractSubType, &c.ContractNature,
		&c.EffectiveDate, &c.ExpirationDate, &c.InceptionDate,
		&c.PremiumAmount, &c.Currency, &limitAmount, &limitBasis, &c.RetentionAmount, &c.CommissionRate,
		&c.LineOfBusiness, &c.CoverageTerritory, &c.CoverageDescription, &c.TermsAndConditions, &c.SpecialProvisions,
		&status, &reviewStatus, &c.SourceDocumentName, &c.ExtractionConfidence, &c.ExtractionJobID,
		&manual, &c.Notes, &active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan contract")
	}
	c.Status = model.ContractStatus(status)
	c.ReviewStatus = model.ReviewStatus(reviewStatus)
	c.ManuallyCreated = manual != 0
	c.IsActive = active != 0
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

const partyColumns = `id, name, party_type, email, phone, address_line1, address_line2, city, state, postal_code, country,
	registration_number, license_number, notes, is_active, created_at, updated_at`

func (s *SQLiteStore) CreateParty(ctx context.Context, party model.Party) (*model.Party, error) {
	if party.RegistrationNumber != nil {
		existing, err := s.FindActivePartyByRegistration(ctx, *party.RegistrationNumber)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, &DuplicateError{Kind: "party", Key: *party.RegistrationNumber, ExistingID: existing.ID}
		}
	}
	id, err := sqliteInsertParty(ctx, s.db, party)
	if err != nil {
		reg := ""
		if party.RegistrationNumber != nil {
			reg = *party.RegistrationNumber
		}
		return nil, s.mapUniqueViolation(ctx, err, "", reg)
	}
	return s.GetParty(ctx, id)
}

func (s *SQLiteStore) GetParty(ctx context.Context, id int64) (*model.Party, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE id = ?`, id)
	return scanSQLiteParty(row)
}

func (s *SQLiteStore) ListParties(ctx context.Context, filter PartyFilter) ([]model.Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE 1=1`
	var args []any

	if filter.PartyType != "" {
		query += ` AND party_type = ?`
		args = append(args, string(filter.PartyType))
	}
	if filter.IsActive != nil {
		query += ` AND is_active = ?`
		args = append(args, *filter.IsActive)
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parties")
	}
	defer rows.Close()
	return collectParties(rows, "sqlite")
}

func (s *SQLiteStore) SearchPartiesByName(ctx context.Context, name string) ([]model.Party, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE name LIKE ? COLLATE NOCASE ORDER BY name`,
		"%"+name+"%")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search parties")
	}
	defer rows.Close()
	return collectParties(rows, "sqlite")
}

func collectParties(rows *sql.Rows, backend string) ([]model.Party, error) {
	var parties []model.Party
	for rows.Next() {
		p, err := scanSQLiteParty(rows)
		if err != nil {
			return nil, err
		}
		parties = append(parties, *p)
	}
	return parties, eris.Wrapf(rows.Err(), "%s: parties iterate", backend)
}

func (s *SQLiteStore) UpdateParty(ctx context.Context, id int64, patch model.PartyPatch) (*model.Party, error) {
	cols, vals := partyPatchFields(patch)
	if len(cols) == 0 {
		return s.GetParty(ctx, id)
	}
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	sets = append(sets, "updated_at = ?")
	vals = append(vals, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE parties SET `+strings.Join(sets, ", ")+` WHERE id = ?`, vals...)
	if err != nil {
		reg := ""
		if patch.RegistrationNumber != nil {
			reg = *patch.RegistrationNumber
		} else if cur, gerr := s.GetParty(ctx, id); gerr == nil && cur.RegistrationNumber != nil {
			reg = *cur.RegistrationNumber
		}
		return nil, s.mapUniqueViolation(ctx, err, "", reg)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "party %d", id)
	}
	return s.GetParty(ctx, id)
}

func (s *SQLiteStore) FindActivePartyByRegistration(ctx context.Context, registration string) (*model.Party, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE registration_number = ? AND is_active = 1`, registration)
	p, err := scanSQLiteParty(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func scanSQLiteParty(row interface{ Scan(...any) error }) (*model.Party, error) {
	var p model.Party
	var partyType string
	var active int64

	err := row.Scan(&p.ID, &p.Name, &partyType, &p.Email, &p.Phone,
		&p.AddressLine1, &p.AddressLine2, &p.City, &p.State, &p.PostalCode, &p.Country,
		&p.RegistrationNumber, &p.LicenseNumber, &p.Notes, &active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan party")
	}
	p.PartyType = model.PartyType(partyType)
	p.IsActive = active != 0
	return &p, nil
}

// Links

func (s *SQLiteStore) LinkParty(ctx context.Context, contractID, partyID int64, role string) error {
	if _, err := s.GetContract(ctx, contractID); err != nil {
		return err
	}
	if _, err := s.GetParty(ctx, partyID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contract_parties (contract_id, party_id, role, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(contract_id, party_id) DO UPDATE SET role = excluded.role`,
		contractID, partyID, role, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: link party")
}

func (s *SQLiteStore) UnlinkParty(ctx context.Context, contractID, partyID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM contract_parties WHERE contract_id = ? AND party_id = ?`,
		contractID, partyID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: unlink party")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "link %d/%d", contractID, partyID)
	}
	return nil
}
