package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contentops/backend/internal/database"
)

// ErrStaleState is returned by conditional writes when the stored status no longer matches.
var ErrStaleState = errors.New("job state changed concurrently")

// ErrDuplicateJob is returned by Create when the id is already taken.
var ErrDuplicateJob = errors.New("job id already exists")

// Repository persists jobs. Every method takes the querier to run on; nil means the
// repository's own pool.
type Repository interface {
	GetByID(ctx context.Context, q database.Querier, id string) (Job, bool, error)
	Create(ctx context.Context, q database.Querier, j Job) error
	Save(ctx context.Context, q database.Querier, j Job) error
	UpdateIfStatus(ctx context.Context, q database.Querier, j Job, expected Status) error
	ListPending(ctx context.Context, q database.Querier, limit int) ([]Job, error)
	ListByDomain(ctx context.Context, q database.Querier, domainID string, limit int) ([]Job, error)
	ListStale(ctx context.Context, q database.Querier, startedBefore time.Time, limit int) ([]Job, error)
	CountByStatus(ctx context.Context, q database.Querier, domainID string) (map[Status]int, error)
	Delete(ctx context.Context, q database.Querier, id string) error
	DeleteIfStatus(ctx context.Context, q database.Querier, id string, expected Status) error
}

const selectColumns = `SELECT id, domain_id, content_id, target_id, status, error_message, started_at, completed_at, attempt_count, created_at FROM publishing_jobs`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetByID(ctx context.Context, q database.Querier, id string) (Job, bool, error) {
	row := database.Or(q, r.db).QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, true, nil
}

// Create inserts a new job and never touches an existing row.
func (r *PostgresRepo) Create(ctx context.Context, q database.Querier, j Job) error {
	if err := j.validate(); err != nil {
		return err
	}
	s := j.Snapshot()
	query := `INSERT INTO publishing_jobs (id, domain_id, content_id, target_id, status, error_message, started_at, completed_at, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO NOTHING`
	res, err := database.Or(q, r.db).ExecContext(ctx, query,
		s.ID, s.DomainID, s.ContentID, s.TargetID, string(s.Status),
		nullString(s.ErrorMessage), nullTime(s.StartedAt), nullTime(s.CompletedAt), s.AttemptCount, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create job %s: %w", s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("create job %s: %w", s.ID, ErrDuplicateJob)
	}
	return nil
}

func (r *PostgresRepo) Save(ctx context.Context, q database.Querier, j Job) error {
	if err := j.validate(); err != nil {
		return err
	}
	s := j.Snapshot()
	query := `INSERT INTO publishing_jobs (id, domain_id, content_id, target_id, status, error_message, started_at, completed_at, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, error_message = EXCLUDED.error_message, started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at, attempt_count = EXCLUDED.attempt_count, updated_at = NOW()`
	_, err := database.Or(q, r.db).ExecContext(ctx, query,
		s.ID, s.DomainID, s.ContentID, s.TargetID, string(s.Status),
		nullString(s.ErrorMessage), nullTime(s.StartedAt), nullTime(s.CompletedAt), s.AttemptCount, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save job %s: %w", s.ID, err)
	}
	return nil
}

// UpdateIfStatus writes the mutable columns of j only while the stored status equals expected.
func (r *PostgresRepo) UpdateIfStatus(ctx context.Context, q database.Querier, j Job, expected Status) error {
	s := j.Snapshot()
	query := `UPDATE publishing_jobs SET status = $1, error_message = $2, started_at = $3, completed_at = $4, attempt_count = $5, updated_at = NOW() WHERE id = $6 AND status = $7`
	res, err := database.Or(q, r.db).ExecContext(ctx, query,
		string(s.Status), nullString(s.ErrorMessage), nullTime(s.StartedAt), nullTime(s.CompletedAt), s.AttemptCount,
		s.ID, string(expected))
	if err != nil {
		return fmt.Errorf("update job %s: %w", s.ID, err)
	}
	return requireAffected(res, s.ID)
}

func (r *PostgresRepo) ListPending(ctx context.Context, q database.Querier, limit int) ([]Job, error) {
	query := selectColumns + ` WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	return r.list(ctx, q, "list pending jobs", query, string(StatusPending), database.ClampLimit(limit))
}

func (r *PostgresRepo) ListByDomain(ctx context.Context, q database.Querier, domainID string, limit int) ([]Job, error) {
	query := selectColumns + ` WHERE domain_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, q, "list domain jobs", query, domainID, database.ClampLimit(limit))
}

// ListStale returns publishing jobs started before the given instant, oldest first.
func (r *PostgresRepo) ListStale(ctx context.Context, q database.Querier, startedBefore time.Time, limit int) ([]Job, error) {
	query := selectColumns + ` WHERE status = $1 AND started_at < $2 ORDER BY started_at ASC LIMIT $3`
	return r.list(ctx, q, "list stale jobs", query, string(StatusPublishing), startedBefore, database.ClampLimit(limit))
}

func (r *PostgresRepo) CountByStatus(ctx context.Context, q database.Querier, domainID string) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM publishing_jobs WHERE domain_id = $1 GROUP BY status`
	rows, err := database.Or(q, r.db).QueryContext(ctx, query, domainID)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count jobs: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	return counts, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, q database.Querier, id string) error {
	if _, err := database.Or(q, r.db).ExecContext(ctx, `DELETE FROM publishing_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (r *PostgresRepo) DeleteIfStatus(ctx context.Context, q database.Querier, id string, expected Status) error {
	res, err := database.Or(q, r.db).ExecContext(ctx, `DELETE FROM publishing_jobs WHERE id = $1 AND status = $2`, id, string(expected))
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return requireAffected(res, id)
}

func (r *PostgresRepo) list(ctx context.Context, q database.Querier, op, query string, args ...any) ([]Job, error) {
	rows, err := database.Or(q, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var (
		s           Snapshot
		status      string
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.DomainID, &s.ContentID, &s.TargetID, &status, &errMsg, &startedAt, &completedAt, &s.AttemptCount, &s.CreatedAt)
	if err != nil {
		return Job{}, err
	}
	s.Status = Status(status)
	s.ErrorMessage = errMsg.String
	if startedAt.Valid {
		s.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return Reconstitute(s)
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("job %s rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
