package operator

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

// PostgresStore persists operator snapshots in the operators table, with the
// driver and vehicle collections embedded as jsonb.
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

var sortColumns = map[string]string{
	"name":          "name",
	"licenceNumber": "licence_number",
	"region":        "region",
	"status":        "status",
}

func (s *PostgresStore) Get(ctx context.Context, streamID uuid.UUID) (*Operator, bool, error) {
	query, args, err := s.builder.
		Select("stream_id", "name", "licence_number", "region", "status", "drivers", "vehicles", "event_version").
		From("operators").
		Where(sq.Eq{"stream_id": streamID}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build operator select: %w", err)
	}

	o, err := scanOperator(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get operator %s: %w", streamID, err)
	}
	return o, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, o *Operator, created bool) error {
	drivers, err := json.Marshal(o.Drivers)
	if err != nil {
		return fmt.Errorf("encode drivers: %w", err)
	}
	vehicles, err := json.Marshal(o.Vehicles)
	if err != nil {
		return fmt.Errorf("encode vehicles: %w", err)
	}

	var query string
	var args []any
	if created {
		query, args, err = s.builder.
			Insert("operators").
			Columns("stream_id", "name", "licence_number", "region", "status", "drivers", "vehicles", "event_version").
			Values(o.ID, o.Name, o.Licence, o.Region, o.Status, drivers, vehicles, o.Version).
			ToSql()
	} else {
		query, args, err = s.builder.
			Update("operators").
			Set("name", o.Name).
			Set("licence_number", o.Licence).
			Set("region", o.Region).
			Set("status", o.Status).
			Set("drivers", drivers).
			Set("vehicles", vehicles).
			Set("event_version", o.Version).
			Where(sq.Eq{"stream_id": o.ID}).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build operator save: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save operator %s: %w", o.ID, err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM operators").Scan(&count); err != nil {
		return 0, fmt.Errorf("count operators: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) List(ctx context.Context, p paging.Parameters) ([]*Operator, error) {
	column, ok := sortColumns[p.SortColumn]
	if !ok {
		column = "name"
	}
	direction := "DESC"
	if p.Ascending {
		direction = "ASC"
	}

	q := s.builder.
		Select("stream_id", "name", "licence_number", "region", "status", "drivers", "vehicles", "event_version").
		From("operators").
		OrderBy(column + " " + direction)
	if p.Filter != "" {
		pattern := "%" + p.Filter + "%"
		q = q.Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"licence_number": pattern},
			sq.ILike{"region": pattern},
		})
	}
	if p.PageSize > 0 {
		q = q.Limit(uint64(p.PageSize)).Offset(uint64(p.Offset()))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build operator list: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	var out []*Operator
	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOperator(row pgx.Row) (*Operator, error) {
	var o Operator
	var drivers, vehicles []byte
	if err := row.Scan(&o.ID, &o.Name, &o.Licence, &o.Region, &o.Status, &drivers, &vehicles, &o.Version); err != nil {
		return nil, err
	}
	if len(drivers) > 0 {
		if err := json.Unmarshal(drivers, &o.Drivers); err != nil {
			return nil, fmt.Errorf("decode drivers: %w", err)
		}
	}
	if len(vehicles) > 0 {
		if err := json.Unmarshal(vehicles, &o.Vehicles); err != nil {
			return nil, fmt.Errorf("decode vehicles: %w", err)
		}
	}
	return &o, nil
}
