package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBStaleProvider selects processing evaluations stuck for too long
type DBStaleProvider struct {
	pool         *pgxpool.Pool
	expiresAfter time.Duration
}

// NewDBStaleProvider creates provider instance
func NewDBStaleProvider(pool *pgxpool.Pool, expiresAfter time.Duration) (*DBStaleProvider, error) {
	if expiresAfter <= 0 {
		return nil, fmt.Errorf("wrong expiresAfter %v", expiresAfter)
	}
	res := &DBStaleProvider{pool: pool, expiresAfter: expiresAfter}
	return res, nil
}

// GetStale returns request IDs still processing but not updated since the deadline
func (db *DBStaleProvider) GetStale(ctx context.Context) ([]string, error) {
	exp := time.Now().Add(-db.expiresAfter)
	goapp.Log.Info().Time("older than", exp).Msg("selecting stale records...")
	rows, err := db.pool.Query(ctx, `SELECT request_id FROM evaluations
		WHERE status = 'processing' and updated < $1`, exp)
	if err != nil {
		return nil, fmt.Errorf("can't select IDs: %w", err)
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var id string
		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("can't retrieve IDs: %w", err)
		}
		res = append(res, id)
	}

	return res, nil
}
