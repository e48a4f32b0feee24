// Package postgres implements store.TokenStore on PostgreSQL. The rotation
// claim is a single conditional UPDATE, so the database serializes racing
// callers; everything else follows from row-level guarantees.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/axisboard/authority/store"
	"github.com/axisboard/authority/store/postgres/migrations"
)

// Store is a PostgreSQL-backed store.TokenStore.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn, runs pending migrations, and returns a ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := RunMigrations(ctx, dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return New(pool), nil
}

// RunMigrations applies the embedded goose migrations. Goose needs a
// database/sql handle, so it opens a short-lived stdlib connection.
func RunMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open for migration: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
}

// SaveRefreshToken inserts a new generation record. The family tombstone is
// checked inside the same transaction as the insert, so a revocation that
// lands first wins.
func (s *Store) SaveRefreshToken(ctx context.Context, rec *store.RefreshTokenRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx)

	var revoked bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_families WHERE family_id = $1)`,
		rec.FamilyID,
	).Scan(&revoked)
	if err != nil {
		return unavailable(err)
	}
	if revoked {
		return store.ErrFamilyRevoked
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (token_id, subject_id, family_id, generation, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.TokenID, rec.SubjectID, rec.FamilyID, rec.Generation, rec.ExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("refresh token %s already exists", rec.TokenID)
		}
		return unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// ClaimAndAdvance consumes the record with one conditional UPDATE. The
// WHERE clause admits only the unused, unexpired row, so concurrent callers
// racing on the same token ID see exactly one RETURNING row; the losers
// then read the row back to learn whether it was consumed or never existed.
func (s *Store) ClaimAndAdvance(ctx context.Context, tokenID string) (*store.RefreshTokenRecord, error) {
	now := time.Now()
	rec := &store.RefreshTokenRecord{TokenID: tokenID}
	err := s.pool.QueryRow(ctx,
		`UPDATE refresh_tokens
		    SET used_at = $2
		  WHERE token_id = $1 AND used_at IS NULL AND expires_at > $2
		 RETURNING subject_id, family_id, generation, expires_at, created_at`,
		tokenID, now,
	).Scan(&rec.SubjectID, &rec.FamilyID, &rec.Generation, &rec.ExpiresAt, &rec.CreatedAt)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, unavailable(err)
	}

	var usedAt sql.NullTime
	var expiresAt time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT used_at, expires_at FROM refresh_tokens WHERE token_id = $1`,
		tokenID,
	).Scan(&usedAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrTokenNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if usedAt.Valid {
		return nil, store.ErrTokenAlreadyUsed
	}
	// Unused but expired.
	return nil, store.ErrTokenNotFound
}

// RevokeFamily tombstones the family and deletes its records in one
// transaction.
func (s *Store) RevokeFamily(ctx context.Context, familyID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO revoked_families (family_id, revoked_at) VALUES ($1, $2)
		 ON CONFLICT (family_id) DO NOTHING`,
		familyID, time.Now(),
	)
	if err != nil {
		return unavailable(err)
	}
	_, err = tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE family_id = $1`, familyID)
	if err != nil {
		return unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// FamilyRevoked reports whether the family has a tombstone.
func (s *Store) FamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_families WHERE family_id = $1)`,
		familyID,
	).Scan(&revoked)
	if err != nil {
		return false, unavailable(err)
	}
	return revoked, nil
}

// RevokeFamiliesForSubject tombstones every family with records for the
// subject and deletes the records, all in one transaction.
func (s *Store) RevokeFamiliesForSubject(ctx context.Context, subjectID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO revoked_families (family_id, revoked_at)
		 SELECT DISTINCT family_id, $2 FROM refresh_tokens WHERE subject_id = $1
		 ON CONFLICT (family_id) DO NOTHING`,
		subjectID, time.Now(),
	)
	if err != nil {
		return unavailable(err)
	}
	_, err = tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE subject_id = $1`, subjectID)
	if err != nil {
		return unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// RevokeAccessToken records the token ID until its natural expiry.
func (s *Store) RevokeAccessToken(ctx context.Context, tokenID string, until time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO revoked_access_tokens (token_id, expires_at) VALUES ($1, $2)
		 ON CONFLICT (token_id) DO NOTHING`,
		tokenID, until,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// IsAccessTokenRevoked is a point lookup; lapsed entries do not count.
func (s *Store) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_access_tokens WHERE token_id = $1 AND expires_at > $2)`,
		tokenID, time.Now(),
	).Scan(&revoked)
	if err != nil {
		return false, unavailable(err)
	}
	return revoked, nil
}

func (s *Store) SaveSession(ctx context.Context, sess *store.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (session_id, subject_id, ip_address, user_agent, created_at, last_activity_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.SessionID, sess.SubjectID, sess.IPAddress, sess.UserAgent,
		sess.CreatedAt, sess.LastActivityAt, sess.ExpiresAt,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	sess := &store.Session{SessionID: sessionID}
	err := s.pool.QueryRow(ctx,
		`SELECT subject_id, ip_address, user_agent, created_at, last_activity_at, expires_at
		   FROM sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&sess.SubjectID, &sess.IPAddress, &sess.UserAgent,
		&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return sess, nil
}

func (s *Store) UpdateSessionActivity(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_activity_at = $2 WHERE session_id = $1`,
		sessionID, at,
	)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// SessionsForSubject returns unexpired sessions oldest first.
func (s *Store) SessionsForSubject(ctx context.Context, subjectID string) ([]*store.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, ip_address, user_agent, created_at, last_activity_at, expires_at
		   FROM sessions
		  WHERE subject_id = $1 AND expires_at > $2
		  ORDER BY created_at ASC`,
		subjectID, time.Now(),
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		sess := &store.Session{SubjectID: subjectID}
		if err := rows.Scan(&sess.SessionID, &sess.IPAddress, &sess.UserAgent,
			&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt); err != nil {
			return nil, unavailable(err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return sessions, nil
}

// AppendAuditRecord appends one row to the admin audit log.
func (s *Store) AppendAuditRecord(ctx context.Context, rec *store.AuditRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admin_audit_log (subject_id, action, resource, granted, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.SubjectID, rec.Action, rec.Resource, rec.Granted, rec.Timestamp,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Ping reports database availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}

// PurgeExpired removes lapsed rows from every table that accrues them.
// Intended for a periodic maintenance job.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now()
	var total int64
	for _, q := range []string{
		`DELETE FROM refresh_tokens WHERE expires_at < $1`,
		`DELETE FROM revoked_access_tokens WHERE expires_at < $1`,
		`DELETE FROM sessions WHERE expires_at < $1`,
	} {
		tag, err := s.pool.Exec(ctx, q, now)
		if err != nil {
			return total, unavailable(err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

var _ store.TokenStore = (*Store)(nil)
