package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/secretbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrDuplicateKey is returned by InsertKey on a unique violation.
	ErrDuplicateKey = errors.New("duplicate client key")
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a PostgreSQL-backed MFA and client-key store.
type Store struct {
	db     DB
	sealer secretbox.Sealer
	now    func() time.Time
}

// New creates a store. Call Migrate once before use.
func New(db DB, sealer secretbox.Sealer) (*Store, error) {
	if db == nil {
		return nil, errors.New("pgstore: nil db")
	}
	if sealer == nil {
		return nil, errors.New("pgstore: nil sealer")
	}
	return &Store{db: db, sealer: sealer, now: time.Now}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pgstore migrate: %w", err)
	}
	return nil
}

// SealsSecrets reports whether MFA secrets are encrypted at rest.
func (s *Store) SealsSecrets() bool {
	_, plain := s.sealer.(secretbox.Plaintext)
	return !plain
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromNull(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// ---- MFA ----

func (s *Store) GetMFA(ctx context.Context, userID string) (*goGuard.MFARecord, error) {
	const q = `
		SELECT tenant_id, secret, enabled, enrolled_at, disabled_at, last_counter
		FROM goguard_mfa
		WHERE user_id = $1`

	var (
		rec                 = goGuard.MFARecord{UserID: userID}
		sealed              string
		enrolled, disabled *time.Time
	)
	err := s.db.QueryRow(ctx, q, userID).Scan(
		&rec.TenantID, &sealed, &rec.Enabled, &enrolled, &disabled, &rec.LastUsedCounter,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get mfa: %w", err)
	}
	rec.EnrolledAt = fromNull(enrolled)
	rec.DisabledAt = fromNull(disabled)

	secret, err := s.sealer.Open(sealed, userID)
	if err != nil {
		return nil, fmt.Errorf("open secret for %s: %w", userID, err)
	}
	rec.Secret = string(secret)

	rows, err := s.db.Query(ctx, `SELECT digest FROM goguard_mfa_backup_codes WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("get backup codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan backup codes: %w", err)
	}
	rec.BackupCodes = codes
	return &rec, nil
}

func (s *Store) SaveMFA(ctx context.Context, record goGuard.MFARecord) error {
	sealed, err := s.sealer.Seal([]byte(record.Secret), record.UserID)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}

	const upsert = `
		INSERT INTO goguard_mfa (user_id, tenant_id, secret, enabled, enrolled_at, disabled_at, last_counter)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			tenant_id    = EXCLUDED.tenant_id,
			secret       = EXCLUDED.secret,
			enabled      = EXCLUDED.enabled,
			enrolled_at  = EXCLUDED.enrolled_at,
			disabled_at  = EXCLUDED.disabled_at,
			last_counter = EXCLUDED.last_counter`

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsert,
			record.UserID, record.TenantID, sealed, record.Enabled,
			nullTime(record.EnrolledAt), nullTime(record.DisabledAt), record.LastUsedCounter,
		); err != nil {
			return fmt.Errorf("save mfa: %w", err)
		}
		return replaceCodes(ctx, tx, record.UserID, record.BackupCodes)
	})
}

func replaceCodes(ctx context.Context, tx pgx.Tx, userID string, digests []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM goguard_mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}
	if len(digests) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range digests {
		batch.Queue(`INSERT INTO goguard_mfa_backup_codes (user_id, digest) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, d)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}
	return nil
}

// ReplaceBackupCodes is a no-op for users without an MFA row.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, digests []string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM goguard_mfa WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock mfa row: %w", err)
		}
		return replaceCodes(ctx, tx, userID, digests)
	})
}

func (s *Store) ConsumeBackupCode(ctx context.Context, userID, digest string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM goguard_mfa_backup_codes WHERE user_id = $1 AND digest = $2`, userID, digest)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE goguard_mfa SET last_counter = $2 WHERE user_id = $1 AND last_counter < $2`, userID, counter)
	if err != nil {
		return false, fmt.Errorf("update last counter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DisableMFA(ctx context.Context, userID string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE goguard_mfa SET enabled = FALSE, disabled_at = $2 WHERE user_id = $1`,
			userID, s.now().UTC(),
		); err != nil {
			return fmt.Errorf("disable mfa: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM goguard_mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("clear backup codes: %w", err)
		}
		return nil
	})
}

// ---- client keys ----

const keyColumns = `id, tenant_id, name, prefix, hash, domains, allowed_routes,
	rate_limit_per_minute, active, expires_at, usage_count, last_used_at, created_at`

func scanKey(row pgx.Row) (*goGuard.KeyRecord, error) {
	var (
		rec               goGuard.KeyRecord
		expires, lastUsed *time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Name, &rec.Prefix, &rec.Hash, &rec.Domains, &rec.AllowedRoutes,
		&rec.RateLimitPerMinute, &rec.Active, &expires, &rec.UsageCount, &lastUsed, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ExpiresAt = fromNull(expires)
	rec.LastUsedAt = fromNull(lastUsed)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if len(rec.Domains) == 0 {
		rec.Domains = nil
	}
	if len(rec.AllowedRoutes) == 0 {
		rec.AllowedRoutes = nil
	}
	return &rec, nil
}

func (s *Store) InsertKey(ctx context.Context, record goGuard.KeyRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO goguard_client_keys (`+keyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		record.ID, record.TenantID, record.Name, record.Prefix, record.Hash,
		nonNil(record.Domains), nonNil(record.AllowedRoutes),
		record.RateLimitPerMinute, record.Active, nullTime(record.ExpiresAt),
		record.UsageCount, nullTime(record.LastUsedAt), record.CreatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
		}
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*goGuard.KeyRecord, error) {
	rec, err := scanKey(s.db.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM goguard_client_keys WHERE hash = $1`, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get key by hash: %w", err)
	}
	return rec, nil
}

func (s *Store) RecordKeyUsage(ctx context.Context, keyID string, at time.Time) (*goGuard.KeyRecord, error) {
	rec, err := scanKey(s.db.QueryRow(ctx, `
		UPDATE goguard_client_keys
		SET usage_count = usage_count + 1, last_used_at = $2
		WHERE id = $1 AND active
		RETURNING `+keyColumns, keyID, at.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("record key usage: %w", err)
	}
	return rec, nil
}

func (s *Store) DeactivateKey(ctx context.Context, keyID, tenantID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE goguard_client_keys SET active = FALSE WHERE id = $1 AND tenant_id = $2 AND active`,
		keyID, tenantID)
	if err != nil {
		return false, fmt.Errorf("deactivate key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListKeys(ctx context.Context, tenantID string) ([]goGuard.KeyRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+keyColumns+` FROM goguard_client_keys WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	out := make([]goGuard.KeyRecord, 0)
	for rows.Next() {
		rec, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return out, nil
}
