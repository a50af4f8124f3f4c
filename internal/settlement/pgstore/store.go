// Package pgstore answers settlement queries from the seller_settlement_daily
// rollup table.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/settlement/internal/platform/db"
	"github.com/odyssey-erp/settlement/internal/settlement"
)

//go:embed schema.sql
var schemaSQL string

// ErrRollupMissing indicates the rollup table has not been created yet.
var ErrRollupMissing = errors.New("pgstore: settlement rollup table missing")

const undefinedTable = "42P01"

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements settlement.Backend on PostgreSQL.
type Store struct {
	db   dbtx
	pool db.Beginner
}

// NewStore constructs a store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// EnsureSchema creates the rollup table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range strings.Split(schemaSQL, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("pgstore: ensure schema: %w", err)
			}
		}
		return nil
	})
}

// QuerySettlements implements settlement.Backend.
func (s *Store) QuerySettlements(ctx context.Context, q settlement.Query) (settlement.Response, error) {
	size := q.Size
	if size < 1 {
		size = settlement.DefaultPageSize
	}
	page := q.Page
	if page < 0 {
		page = 0
	}
	from := dayOnly(q.From)
	to := dayOnly(q.To)

	rows, err := s.db.Query(ctx, selectSQL(q.Granularity), q.SellerID, from, to, string(q.Status), size, page*size)
	if err != nil {
		return settlement.Response{}, mapError(err)
	}
	raws, total, err := scanRows(rows, q.Granularity)
	if err != nil {
		return settlement.Response{}, mapError(err)
	}

	if isDayQuery(q) {
		if len(raws) == 0 {
			return settlement.EmptyResponse(), nil
		}
		return settlement.SingleResponse(raws[0]), nil
	}

	if len(raws) == 0 && page > 0 {
		// past the last page the window count is unavailable
		if err := s.db.QueryRow(ctx, countSQL(q.Granularity), q.SellerID, from, to, string(q.Status)).Scan(&total); err != nil {
			return settlement.Response{}, mapError(err)
		}
	}
	return settlement.PagedResponse(raws, settlement.PageMeta{
		Page:          page,
		TotalPages:    totalPages(total, size),
		TotalElements: total,
	}), nil
}

// ActiveSellers lists sellers with settlement activity on or after since.
func (s *Store) ActiveSellers(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT seller_id FROM seller_settlement_daily WHERE settlement_day >= $1 ORDER BY seller_id`, dayOnly(since))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	sellers := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sellers = append(sellers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return sellers, nil
}

func isDayQuery(q settlement.Query) bool {
	return q.Granularity == settlement.GranularityDaily && settlement.SameDay(q.From, q.To)
}

func dayOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func totalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", ErrRollupMissing, pgErr.Message)
	}
	return fmt.Errorf("pgstore: %w", err)
}
