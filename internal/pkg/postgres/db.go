package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/evaly/scorepipe/internal/pkg/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

// InsertSession inserts session into DB
func (db *DB) InsertSession(ctx context.Context, item *persistence.Session) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO sessions(id, user_id, user_email, profile, scenario, objectives,
		difficulty, status, test_mode, created)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, item.ID, item.UserID, item.UserEmail, item.Profile,
		item.Scenario, item.Objectives, item.Difficulty, item.Status, item.TestMode, item.Created)
	if err != nil {
		return fmt.Errorf("can't insert session: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadSession loads session from DB, returns nil if no record
func (db *DB) LoadSession(ctx context.Context, id string) (*persistence.Session, error) {
	var res persistence.Session
	err := db.pool.QueryRow(ctx, `SELECT id, user_id, user_email, profile, scenario, objectives, difficulty,
		raw_transcript, duration_secs, status, score, passed, eval_payload, test_mode, created, updated, version
		FROM sessions WHERE id = $1`, id).Scan(&res.ID, &res.UserID, &res.UserEmail, &res.Profile,
		&res.Scenario, &res.Objectives, &res.Difficulty, &res.Transcript, &res.DurationSecs, &res.Status,
		&res.Score, &res.Passed, &res.EvalPayload, &res.TestMode, &res.Created, &res.Updated, &res.Version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load session: %w", err)
	}
	return &res, nil
}

// UpdateSessionEnd persists transcript and duration of a finished conversation
func (db *DB) UpdateSessionEnd(ctx context.Context, id, transcript string, durationSecs int) error {
	rows, err := db.pool.Exec(ctx, `UPDATE sessions SET
	raw_transcript = $2,
	duration_secs = $3,
	updated = $4
	WHERE id = $1`, id, transcript, durationSecs, time.Now())
	if err != nil {
		return fmt.Errorf("can't update session: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update session, no records found")
	}
	return nil
}

// UpdateSessionStatus moves session to a new status, fails if item.Version is stale
func (db *DB) UpdateSessionStatus(ctx context.Context, item *persistence.Session, newStatus string) error {
	rows, err := db.pool.Exec(ctx, `UPDATE sessions SET
	status = $3,
	updated = $4,
	version = $2 + 1
	WHERE id = $1 and version = $2`, item.ID, item.Version, newStatus, time.Now())
	if err != nil {
		return fmt.Errorf("can't update session status: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update session status, no records found")
	}
	item.Status = newStatus
	item.Version++
	return nil
}

// UpdateSessionResult writes the evaluation outcome, fails if item.Version is stale
func (db *DB) UpdateSessionResult(ctx context.Context, item *persistence.Session) error {
	rows, err := db.pool.Exec(ctx, `UPDATE sessions SET
	status = $3,
	score = $4,
	passed = $5,
	eval_payload = $6,
	updated = $7,
	version = $2 + 1
	WHERE id = $1 and version = $2`, item.ID, item.Version, item.Status, item.Score,
		item.Passed, item.EvalPayload, time.Now())
	if err != nil {
		return fmt.Errorf("can't update session result: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update session result, no records found")
	}
	item.Version++
	return nil
}

// InsertEvalRequest inserts evaluation request into DB
func (db *DB) InsertEvalRequest(ctx context.Context, item *persistence.EvalRequest) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO evaluations(request_id, session_id, user_id, status, test_mode, created)
	VALUES($1, $2, $3, $4, $5, $6)`, item.RequestID, item.SessionID, item.UserID, item.Status, item.TestMode, item.Created)
	if err != nil {
		return fmt.Errorf("can't insert evaluation: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadEvalRequest loads evaluation request from DB, returns nil if no record
func (db *DB) LoadEvalRequest(ctx context.Context, id string) (*persistence.EvalRequest, error) {
	var res persistence.EvalRequest
	err := db.pool.QueryRow(ctx, `SELECT request_id, session_id, user_id, status, result, error_message,
		test_mode, created, updated, version FROM evaluations
		WHERE request_id = $1`, id).Scan(&res.RequestID, &res.SessionID, &res.UserID, &res.Status,
		&res.Result, &res.ErrorMessage, &res.TestMode, &res.Created, &res.Updated, &res.Version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load evaluation: %w", err)
	}
	return &res, nil
}

// UpdateEvalRequest updates request status, result and error, fails if item.Version is stale
func (db *DB) UpdateEvalRequest(ctx context.Context, item *persistence.EvalRequest) error {
	rows, err := db.pool.Exec(ctx, `UPDATE evaluations SET
	status = $3,
	result = $4,
	error_message = $5,
	updated = $6,
	version = $2 + 1
	WHERE request_id = $1 and version = $2`, item.RequestID, item.Version, item.Status,
		item.Result, item.ErrorMessage, time.Now())
	if err != nil {
		return fmt.Errorf("can't update evaluation: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update evaluation, no records found")
	}
	item.Version++
	return nil
}

// LoadEmail returns the owner email of a request's linked session
func (db *DB) LoadEmail(ctx context.Context, requestID string) (string, error) {
	var res string
	err := db.pool.QueryRow(ctx, `SELECT COALESCE(s.user_email, '') FROM evaluations e
		JOIN sessions s ON s.id = e.session_id
		WHERE e.request_id = $1`, requestID).Scan(&res)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("can't load email: %w", err)
	}
	return res, nil
}

// LockEmailTable marks email as being sent, fails if already taken
func (db *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	rows, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, msg_type, status) VALUES($1, $2, 1)
		ON CONFLICT DO NOTHING`, id, msgType)
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("email already sent for %s/%s", id, msgType)
	}
	return nil
}

// UnLockEmailTable marks email as sent (value = 2) or frees the lock for retry (value = 0)
func (db *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	if value == nil || *value == 0 {
		_, err := db.pool.Exec(ctx, `DELETE FROM email_lock WHERE id = $1 and msg_type = $2`, id, msgType)
		if err != nil {
			return fmt.Errorf("can't unlock email table: %w", err)
		}
		return nil
	}
	_, err := db.pool.Exec(ctx, `UPDATE email_lock SET status = $3 WHERE id = $1 and msg_type = $2`, id, msgType, *value)
	if err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
