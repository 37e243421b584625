package target

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"contentops/backend/internal/database"
)

// Repository persists targets. Implementations validate on every read and write.
type Repository interface {
	GetByID(ctx context.Context, q database.Querier, id string) (Target, bool, error)
	ListEnabled(ctx context.Context, q database.Querier, domainID string, limit int) ([]Target, error)
	ListByDomain(ctx context.Context, q database.Querier, domainID string, limit int) ([]Target, error)
	CountEnabled(ctx context.Context, q database.Querier, domainID string) (int, error)
	Save(ctx context.Context, q database.Querier, t Target) error
	Delete(ctx context.Context, q database.Querier, id string) error
}

const selectColumns = `SELECT id, domain_id, type, config, enabled, created_at FROM publish_targets`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// GetByID loads a target. With a caller supplied querier the row is locked FOR SHARE so
// its owner cannot change before the surrounding transaction ends.
func (r *PostgresRepo) GetByID(ctx context.Context, q database.Querier, id string) (Target, bool, error) {
	query := selectColumns + ` WHERE id = $1`
	if q != nil {
		query += ` FOR SHARE`
	}
	t, err := scanTarget(database.Or(q, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Target{}, false, nil
	}
	if err != nil {
		return Target{}, false, fmt.Errorf("get target %s: %w", id, err)
	}
	return t, true, nil
}

func (r *PostgresRepo) ListEnabled(ctx context.Context, q database.Querier, domainID string, limit int) ([]Target, error) {
	query := selectColumns + ` WHERE domain_id = $1 AND enabled = TRUE ORDER BY created_at ASC LIMIT $2`
	return r.list(ctx, q, "list enabled targets", query, domainID, database.ClampLimit(limit))
}

func (r *PostgresRepo) ListByDomain(ctx context.Context, q database.Querier, domainID string, limit int) ([]Target, error) {
	query := selectColumns + ` WHERE domain_id = $1 ORDER BY created_at ASC LIMIT $2`
	return r.list(ctx, q, "list targets", query, domainID, database.ClampLimit(limit))
}

func (r *PostgresRepo) CountEnabled(ctx context.Context, q database.Querier, domainID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM publish_targets WHERE domain_id = $1 AND enabled = TRUE`
	if err := database.Or(q, r.db).QueryRowContext(ctx, query, domainID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count targets: %w", err)
	}
	return count, nil
}

func (r *PostgresRepo) Save(ctx context.Context, q database.Querier, t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s := t.Snapshot()
	config, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("%w: config: %v", ErrInvalidTarget, err)
	}
	query := `INSERT INTO publish_targets (id, domain_id, type, config, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, config = EXCLUDED.config, enabled = EXCLUDED.enabled, updated_at = NOW()
		WHERE publish_targets.domain_id = EXCLUDED.domain_id`
	res, err := database.Or(q, r.db).ExecContext(ctx, query, s.ID, s.DomainID, string(s.Type), config, s.Enabled, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save target %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save target %s: %w", s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("save target %s: id is owned by another domain", s.ID)
	}
	return nil
}

func (r *PostgresRepo) Delete(ctx context.Context, q database.Querier, id string) error {
	if _, err := database.Or(q, r.db).ExecContext(ctx, `DELETE FROM publish_targets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete target %s: %w", id, err)
	}
	return nil
}

func (r *PostgresRepo) list(ctx context.Context, q database.Querier, op, query string, args ...any) ([]Target, error) {
	rows, err := database.Or(q, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return targets, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(row scanner) (Target, error) {
	var (
		s      Snapshot
		typ    string
		config []byte
	)
	if err := row.Scan(&s.ID, &s.DomainID, &typ, &config, &s.Enabled, &s.CreatedAt); err != nil {
		return Target{}, err
	}
	s.Type = Type(typ)
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.Config); err != nil {
			err = fmt.Errorf("%w: config is not a json object: %v", ErrInvalidTarget, err)
			return Target{}, &CorruptError{ID: s.ID, DomainID: s.DomainID, Err: err}
		}
	}
	t, err := Reconstitute(s)
	if err != nil {
		return Target{}, &CorruptError{ID: s.ID, DomainID: s.DomainID, Err: err}
	}
	return t, nil
}
