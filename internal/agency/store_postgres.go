package agency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleetledger/internal/cqrs/paging"
)

// PostgresStore persists agency snapshots in the agencies table. Contacts are
// embedded as jsonb; the snapshot is a read model, not a relational source of
// truth, so there is no child table to join.
type PostgresStore struct {
	pool    *pgxpool.Pool
	builder sq.StatementBuilderType
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// sortColumns whitelists what List may order by; anything else falls back to
// name so caller input never reaches the SQL text.
var sortColumns = map[string]string{
	"name":   "name",
	"region": "region",
	"status": "status",
}

func (s *PostgresStore) Get(ctx context.Context, streamID uuid.UUID) (*Agency, bool, error) {
	query, args, err := s.builder.
		Select("stream_id", "name", "region", "status", "contacts", "event_version").
		From("agencies").
		Where(sq.Eq{"stream_id": streamID}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build agency select: %w", err)
	}

	a, err := scanAgency(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get agency %s: %w", streamID, err)
	}
	return a, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, a *Agency, created bool) error {
	contacts, err := json.Marshal(a.Contacts)
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}

	var query string
	var args []any
	if created {
		query, args, err = s.builder.
			Insert("agencies").
			Columns("stream_id", "name", "region", "status", "contacts", "event_version").
			Values(a.ID, a.Name, a.Region, a.Status, contacts, a.Version).
			ToSql()
	} else {
		query, args, err = s.builder.
			Update("agencies").
			Set("name", a.Name).
			Set("region", a.Region).
			Set("status", a.Status).
			Set("contacts", contacts).
			Set("event_version", a.Version).
			Where(sq.Eq{"stream_id": a.ID}).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build agency save: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save agency %s: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM agencies").Scan(&count); err != nil {
		return 0, fmt.Errorf("count agencies: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) List(ctx context.Context, p paging.Parameters) ([]*Agency, error) {
	column, ok := sortColumns[p.SortColumn]
	if !ok {
		column = "name"
	}
	direction := "DESC"
	if p.Ascending {
		direction = "ASC"
	}

	q := s.builder.
		Select("stream_id", "name", "region", "status", "contacts", "event_version").
		From("agencies").
		OrderBy(column + " " + direction)
	if p.Filter != "" {
		pattern := "%" + p.Filter + "%"
		q = q.Where(sq.Or{sq.ILike{"name": pattern}, sq.ILike{"region": pattern}})
	}
	if p.PageSize > 0 {
		q = q.Limit(uint64(p.PageSize)).Offset(uint64(p.Offset()))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build agency list: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	defer rows.Close()

	var out []*Agency
	for rows.Next() {
		a, err := scanAgency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agency: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAgency(row pgx.Row) (*Agency, error) {
	var a Agency
	var contacts []byte
	if err := row.Scan(&a.ID, &a.Name, &a.Region, &a.Status, &contacts, &a.Version); err != nil {
		return nil, err
	}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &a.Contacts); err != nil {
			return nil, fmt.Errorf("decode contacts: %w", err)
		}
	}
	return &a, nil
}
