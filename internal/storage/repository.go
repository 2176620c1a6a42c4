package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wallet-x-search/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNoCheckpoint is returned when no checkpoint exists for a key.
	ErrNoCheckpoint = errors.New("storage: no checkpoint")
)

const (
	upsertVerdictSQL = `INSERT INTO verdicts (
        wallet,
        post_exists,
        twitter_handle,
        confidence,
        raw_text,
        error,
        run_id,
        completed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (wallet) DO UPDATE
    SET
        post_exists    = EXCLUDED.post_exists,
        twitter_handle = EXCLUDED.twitter_handle,
        confidence     = EXCLUDED.confidence,
        raw_text       = EXCLUDED.raw_text,
        error          = EXCLUDED.error,
        run_id         = EXCLUDED.run_id,
        completed_at   = EXCLUDED.completed_at,
        updated_at     = now();`

	selectVerdictColumns = `SELECT
        wallet,
        post_exists,
        twitter_handle,
        confidence,
        raw_text,
        error,
        run_id,
        completed_at,
        updated_at
    FROM verdicts`

	listRecentVerdictsSQL = selectVerdictColumns + `
    ORDER BY updated_at DESC
    LIMIT $1;`

	listVerdictsSQL = selectVerdictColumns + `
    ORDER BY wallet
    LIMIT $1;`

	listErroredWalletsSQL = `SELECT wallet
    FROM verdicts
    WHERE error IS NOT NULL
    ORDER BY completed_at
    LIMIT $1;`

	countVerdictsSQL = `SELECT COUNT(*) FROM verdicts;`

	loadCheckpointSQL = `SELECT key, input_hash, processed_wallets, stats, updated_at
    FROM checkpoints
    WHERE key = $1;`

	saveCheckpointSQL = `INSERT INTO checkpoints (
        key,
        input_hash,
        processed_wallets,
        stats,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (key) DO UPDATE
    SET input_hash        = EXCLUDED.input_hash,
        processed_wallets = EXCLUDED.processed_wallets,
        stats             = EXCLUDED.stats,
        updated_at        = EXCLUDED.updated_at;`

	clearCheckpointSQL = `DELETE FROM checkpoints WHERE key = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// VerdictStore defines operations for verdict persistence.
type VerdictStore interface {
	UpsertVerdict(ctx context.Context, runID string, v model.Verdict) error
	ListRecentVerdicts(ctx context.Context, limit int) ([]VerdictRecord, error)
	ListVerdicts(ctx context.Context, limit int) ([]VerdictRecord, error)
	ListErroredWallets(ctx context.Context, limit int) ([]string, error)
	CountVerdicts(ctx context.Context) (int64, error)
}

// CheckpointStore persists run progress keyed by checkpoint name.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, key string) (Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	ClearCheckpoint(ctx context.Context, key string) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

var (
	_ VerdictStore    = (*Store)(nil)
	_ CheckpointStore = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)

// Store aggregates access to verdicts and checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate applies every .sql file in dir in lexical order. Statements are
// expected to be idempotent.
func (s *Store) Migrate(ctx context.Context, dir string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		script, readErr := os.ReadFile(file)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", filepath.Base(file), readErr)
		}
		if _, execErr := pool.Exec(ctx, string(script)); execErr != nil {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(file), execErr)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the lock dies with the session if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertVerdict persists or replaces the verdict for a wallet.
func (s *Store) UpsertVerdict(ctx context.Context, runID string, v model.Verdict) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertVerdictSQL,
		v.Wallet,
		v.PostExists,
		nullable(v.Handle),
		v.Confidence.String(),
		v.RawText,
		nullable(v.Error),
		runID,
		v.CompletedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert verdict: %w", execErr)
	}
	return nil
}

// ListRecentVerdicts lists the most recently written verdicts.
func (s *Store) ListRecentVerdicts(ctx context.Context, limit int) ([]VerdictRecord, error) {
	return s.queryVerdicts(ctx, listRecentVerdictsSQL, "list recent verdicts", limit)
}

// ListVerdicts lists verdicts ordered by wallet, for export.
func (s *Store) ListVerdicts(ctx context.Context, limit int) ([]VerdictRecord, error) {
	return s.queryVerdicts(ctx, listVerdictsSQL, "list verdicts", limit)
}

func (s *Store) queryVerdicts(ctx context.Context, query, op string, limit int) ([]VerdictRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}
	defer rows.Close()

	records := make([]VerdictRecord, 0)
	for rows.Next() {
		rec, scanErr := scanVerdict(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListErroredWallets returns wallets whose stored verdict carries an error.
func (s *Store) ListErroredWallets(ctx context.Context, limit int) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listErroredWalletsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list errored wallets: %w", queryErr)
	}
	wallets, collectErr := pgx.CollectRows(rows, pgx.RowTo[string])
	if collectErr != nil {
		return nil, fmt.Errorf("list errored wallets: %w", collectErr)
	}
	return wallets, nil
}

// CountVerdicts counts stored verdicts.
func (s *Store) CountVerdicts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countVerdictsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count verdicts: %w", scanErr)
	}
	return count, nil
}

// LoadCheckpoint reads the checkpoint stored under key.
func (s *Store) LoadCheckpoint(ctx context.Context, key string) (Checkpoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return Checkpoint{}, err
	}

	var (
		cp        Checkpoint
		processed []byte
		stats     []byte
	)
	scanErr := pool.QueryRow(ctx, loadCheckpointSQL, key).Scan(&cp.Key, &cp.InputHash, &processed, &stats, &cp.UpdatedAt)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if scanErr != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", scanErr)
	}

	if err := json.Unmarshal(processed, &cp.Processed); err != nil {
		return Checkpoint{}, fmt.Errorf("decode processed wallets: %w", err)
	}
	if err := json.Unmarshal(stats, &cp.Stats); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint stats: %w", err)
	}
	return cp, nil
}

// SaveCheckpoint upserts the checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	processed := cp.Processed
	if processed == nil {
		processed = []string{}
	}
	processedJSON, err := json.Marshal(processed)
	if err != nil {
		return fmt.Errorf("encode processed wallets: %w", err)
	}
	statsJSON, err := json.Marshal(cp.Stats)
	if err != nil {
		return fmt.Errorf("encode checkpoint stats: %w", err)
	}

	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	if _, execErr := pool.Exec(ctx, saveCheckpointSQL, cp.Key, cp.InputHash, processedJSON, statsJSON, updated); execErr != nil {
		return fmt.Errorf("save checkpoint: %w", execErr)
	}
	return nil
}

// ClearCheckpoint deletes the checkpoint stored under key.
func (s *Store) ClearCheckpoint(ctx context.Context, key string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, clearCheckpointSQL, key); execErr != nil {
		return fmt.Errorf("clear checkpoint: %w", execErr)
	}
	return nil
}

func scanVerdict(rows pgx.Rows) (VerdictRecord, error) {
	var (
		rec        VerdictRecord
		handle     sql.NullString
		confidence string
		errMsg     sql.NullString
	)

	if err := rows.Scan(
		&rec.Wallet,
		&rec.PostExists,
		&handle,
		&confidence,
		&rec.RawText,
		&errMsg,
		&rec.RunID,
		&rec.CompletedAt,
		&rec.UpdatedAt,
	); err != nil {
		return VerdictRecord{}, err
	}

	conf, err := model.ParseConfidence(confidence)
	if err != nil {
		return VerdictRecord{}, fmt.Errorf("parse confidence: %w", err)
	}
	rec.Confidence = conf
	rec.Handle = handle.String
	rec.Error = errMsg.String
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
