// Package persistence keeps the ledger in Postgres.
package persistence

import (
	"LendingAggregator/internal/ledger"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const reserveColumns = `asset, symbol, total_liquidity, available_liquidity,
	loan_to_value, liquidation_threshold, liquidation_bonus, token_id, active, updated_at`

const entryColumns = `sequence, entry_id, request_key, kind, asset, user_id, provider_id, amount, created_at`

// PostgresStore is a ledger.Store backed by the ledger schema. Every
// mutation runs in one transaction that locks the reserve row, so
// mutations of one reserve are serialized by the database.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Open connects to Postgres with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReserve(row rowScanner) (ledger.Reserve, error) {
	var r ledger.Reserve
	err := row.Scan(&r.Asset, &r.Symbol, &r.TotalLiquidity, &r.AvailableLiquidity,
		&r.LoanToValue, &r.LiquidationThreshold, &r.LiquidationBonus, &r.TokenID, &r.Active, &r.UpdatedAt)
	return r, err
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var (
		e    ledger.Entry
		kind string
	)
	if err := row.Scan(&e.Sequence, &e.EntryID, &e.RequestKey, &kind, &e.Asset,
		&e.UserID, &e.ProviderID, &e.Amount, &e.Timestamp); err != nil {
		return ledger.Entry{}, err
	}
	k, ok := ledger.ParseEntryKind(kind)
	if !ok {
		return ledger.Entry{}, fmt.Errorf("entry %d: unknown kind %q", e.Sequence, kind)
	}
	e.Kind = k
	return e, nil
}

func (s *PostgresStore) CreateReserve(ctx context.Context, r ledger.Reserve) error {
	if err := ledger.ValidateNewReserve(r); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger.reserves (`+reserveColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.Asset, r.Symbol, r.TotalLiquidity, r.AvailableLiquidity,
		r.LoanToValue, r.LiquidationThreshold, r.LiquidationBonus, r.TokenID, r.Active, s.now(),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("reserve %s already exists", r.Asset)
	}
	if err != nil {
		return fmt.Errorf("insert reserve %s: %w", r.Asset, err)
	}
	return nil
}

func (s *PostgresStore) SetReserveActive(ctx context.Context, asset string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger.reserves SET active = $2, updated_at = $3 WHERE asset = $1`,
		asset, active, s.now(),
	)
	if err != nil {
		return fmt.Errorf("update reserve %s: %w", asset, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ReserveNotFound(asset)
	}
	return nil
}

func (s *PostgresStore) ListReserves(ctx context.Context) ([]ledger.Reserve, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reserveColumns+` FROM ledger.reserves ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("list reserves: %w", err)
	}
	defer rows.Close()

	var out []ledger.Reserve
	for rows.Next() {
		r, err := scanReserve(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) QueryReserve(ctx context.Context, asset string) (ledger.Reserve, error) {
	r, err := scanReserve(s.db.QueryRowContext(ctx,
		`SELECT `+reserveColumns+` FROM ledger.reserves WHERE asset = $1`, asset))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Reserve{}, ledger.ReserveNotFound(asset)
	}
	if err != nil {
		return ledger.Reserve{}, fmt.Errorf("query reserve %s: %w", asset, err)
	}
	return r, nil
}

func (s *PostgresStore) QueryUserBalance(ctx context.Context, asset string, userID uuid.UUID) (ledger.UserBalance, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger.reserves WHERE asset = $1)`, asset,
	).Scan(&exists); err != nil {
		return ledger.UserBalance{}, fmt.Errorf("query reserve %s: %w", asset, err)
	}
	if !exists {
		return ledger.UserBalance{}, ledger.ReserveNotFound(asset)
	}
	return queryBalance(ctx, s.db, asset, userID, false)
}

func (s *PostgresStore) ListUserBalances(ctx context.Context, userID uuid.UUID) ([]ledger.UserBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, deposited, borrowed FROM ledger.user_balances
		WHERE user_id = $1 ORDER BY asset`, userID)
	if err != nil {
		return nil, fmt.Errorf("list balances of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []ledger.UserBalance
	for rows.Next() {
		b := ledger.UserBalance{UserID: userID}
		if err := rows.Scan(&b.Asset, &b.Deposited, &b.Borrowed); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreditDeposit(ctx context.Context, m ledger.Mutation) (ledger.Entry, error) {
	return s.apply(ctx, ledger.EntryKindDeposit, m)
}

func (s *PostgresStore) DebitWithdrawal(ctx context.Context, m ledger.Mutation) (ledger.Entry, error) {
	return s.apply(ctx, ledger.EntryKindWithdrawal, m)
}

func (s *PostgresStore) CreditBorrow(ctx context.Context, m ledger.Mutation) (ledger.Entry, error) {
	return s.apply(ctx, ledger.EntryKindBorrow, m)
}

func (s *PostgresStore) DebitBorrow(ctx context.Context, m ledger.Mutation) (ledger.Entry, error) {
	return s.apply(ctx, ledger.EntryKindRepay, m)
}

func (s *PostgresStore) Entries(ctx context.Context, asset string, afterSequence int64, limit int) ([]ledger.Entry, error) {
	var (
		query strings.Builder
		args  = []any{afterSequence}
	)
	query.WriteString(`SELECT ` + entryColumns + ` FROM ledger.entries WHERE sequence > $1`)
	if asset != "" {
		args = append(args, asset)
		fmt.Fprintf(&query, " AND asset = $%d", len(args))
	}
	query.WriteString(" ORDER BY sequence")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&query, " LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HasRequest reports whether any entry was committed under requestKey.
func (s *PostgresStore) HasRequest(ctx context.Context, requestKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger.entries WHERE request_key = $1)`, requestKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup request %s: %w", requestKey, err)
	}
	return exists, nil
}

// apply locks the reserve and balance rows, computes the mutation with
// ledger.Apply and writes both rows plus the entry in one transaction.
func (s *PostgresStore) apply(ctx context.Context, kind ledger.EntryKind, m ledger.Mutation) (ledger.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanReserve(tx.QueryRowContext(ctx,
		`SELECT `+reserveColumns+` FROM ledger.reserves WHERE asset = $1 FOR UPDATE`, m.Asset))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, ledger.ReserveNotFound(m.Asset)
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("lock reserve %s: %w", m.Asset, err)
	}
	b, err := queryBalance(ctx, tx, m.Asset, m.UserID, true)
	if err != nil {
		return ledger.Entry{}, err
	}

	r, b, err = ledger.Apply(kind, r, b, m.Amount)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("%s %s: %w", kind, m.Asset, err)
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE ledger.reserves
		SET total_liquidity = $2, available_liquidity = $3, updated_at = $4
		WHERE asset = $1`,
		r.Asset, r.TotalLiquidity, r.AvailableLiquidity, now,
	); err != nil {
		return ledger.Entry{}, fmt.Errorf("update reserve %s: %w", m.Asset, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger.user_balances (asset, user_id, deposited, borrowed, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset, user_id) DO UPDATE
		SET deposited = EXCLUDED.deposited, borrowed = EXCLUDED.borrowed, updated_at = EXCLUDED.updated_at`,
		b.Asset, b.UserID, b.Deposited, b.Borrowed, now,
	); err != nil {
		return ledger.Entry{}, fmt.Errorf("upsert balance %s/%s: %w", m.Asset, m.UserID, err)
	}

	entry := ledger.NewEntry(0, kind, m, now)
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO ledger.entries (entry_id, request_key, kind, asset, user_id, provider_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING sequence`,
		entry.EntryID, entry.RequestKey, entry.Kind.String(), entry.Asset,
		entry.UserID, entry.ProviderID, entry.Amount, entry.Timestamp,
	).Scan(&entry.Sequence); err != nil {
		return ledger.Entry{}, fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, fmt.Errorf("commit %s: %w", kind, err)
	}
	return entry, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryBalance(ctx context.Context, q queryRower, asset string, userID uuid.UUID, forUpdate bool) (ledger.UserBalance, error) {
	query := `SELECT deposited, borrowed FROM ledger.user_balances WHERE asset = $1 AND user_id = $2`
	if forUpdate {
		query += " FOR UPDATE"
	}

	b := ledger.UserBalance{Asset: asset, UserID: userID}
	err := q.QueryRowContext(ctx, query, asset, userID).Scan(&b.Deposited, &b.Borrowed)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return ledger.UserBalance{}, fmt.Errorf("query balance %s/%s: %w", asset, userID, err)
	}
	return b, nil
}

var _ ledger.Store = (*PostgresStore)(nil)
