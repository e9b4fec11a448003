package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianledger/core/internal/domain"
	"github.com/shopspring/decimal"
)

// isPgUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// TransactionRepository implements domain.TransactionRepository directly
// against pgx.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `id, account_id, transaction_code, direction, amount, currency, description,
	channel_id, terminal_id, agent_person_id, transaction_date, value_date, status, reference_number,
	external_reference, gl_code, requires_approval, approval_status, risk_score, created_at,
	reversal_of, reversed_by, version, content_hash`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var approval *domain.ApprovalStatus
	err := row.Scan(
		&t.ID, &t.AccountID, &t.TransactionCode, &t.Direction, &t.Amount, &t.Currency, &t.Description,
		&t.ChannelID, &t.TerminalID, &t.AgentPersonID, &t.TransactionDate, &t.ValueDate, &t.Status, &t.ReferenceNumber,
		&t.ExternalReference, &t.GLCode, &t.RequiresApproval, &approval, &t.RiskScore, &t.CreatedAt,
		&t.ReversalOf, &t.ReversedBy, &t.Version, &t.ContentHash,
	)
	if err != nil {
		return nil, err
	}
	t.ApprovalStatus = approval
	return &t, nil
}

// Create inserts a new transaction row with version 1.
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, transaction_code, direction, amount, currency, description,
			channel_id, terminal_id, agent_person_id, transaction_date, value_date, status, reference_number,
			external_reference, gl_code, requires_approval, approval_status, risk_score, created_at, version, content_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,1,$21)
		RETURNING `+transactionColumns,
		tx.ID, tx.AccountID, tx.TransactionCode, tx.Direction, tx.Amount, tx.Currency, tx.Description,
		tx.ChannelID, tx.TerminalID, tx.AgentPersonID, tx.TransactionDate, tx.ValueDate, tx.Status, tx.ReferenceNumber,
		tx.ExternalReference, tx.GLCode, tx.RequiresApproval, tx.ApprovalStatus, tx.RiskScore, tx.CreatedAt, tx.ContentHash,
	)
	created, err := scanTransaction(row)
	if isPgUniqueViolation(err) {
		return nil, &domain.DuplicateReferenceError{ReferenceNumber: tx.ReferenceNumber}
	}
	return created, err
}

// GetByID returns the transaction for id.
func (r *TransactionRepository) GetByID(ctx context.Context, id domain.EntityID) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("Transaction", id)
	}
	return t, err
}

// GetByReferenceNumber returns the transaction with the given
// caller-supplied reference number, or nil if none exists.
func (r *TransactionRepository) GetByReferenceNumber(ctx context.Context, referenceNumber string) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference_number = $1`, referenceNumber)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetByExternalReference implements the duplicate-submission lookup a
// channel uses to detect a resubmitted transaction.
func (r *TransactionRepository) GetByExternalReference(ctx context.Context, channel domain.ChannelID, valueDate time.Time, externalReference string) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE channel_id = $1 AND value_date = $2 AND external_reference = $3`,
		channel, valueDate, externalReference)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// Find returns transactions matching the given filters.
func (r *TransactionRepository) Find(ctx context.Context, filters domain.TransactionFilters) ([]*domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE ($1::uuid IS NULL OR account_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::uuid IS NULL OR terminal_id = $3)
		  AND ($4::uuid IS NULL OR agent_person_id = $4)
		  AND ($5::text IS NULL OR channel_id = $5)
		  AND ($6::timestamptz IS NULL OR value_date >= $6)
		  AND ($7::timestamptz IS NULL OR value_date <= $7)
		ORDER BY transaction_date DESC`,
		filters.AccountID, filters.Status, filters.TerminalID, filters.AgentPersonID,
		filters.ChannelID, filters.ValueDateFrom, filters.ValueDateTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindLastCustomerTransaction returns the most recent posted,
// non-system-channel transaction against accountID, used to drive
// last-activity-date bookkeeping.
func (r *TransactionRepository) FindLastCustomerTransaction(ctx context.Context, accountID domain.EntityID) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1 AND channel_id NOT IN ('System', 'AutoInterest', 'AutoFee') AND status = 'Posted'
		ORDER BY transaction_date DESC LIMIT 1`, accountID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// UpdateStatus persists a status change and, when non-nil, a new
// approval status, guarded by expectedVersion.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id domain.EntityID, status domain.TransactionStatus, approval *domain.ApprovalStatus, expectedVersion int64) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE transactions
		SET status = $1, approval_status = COALESCE($2, approval_status), version = version + 1
		WHERE id = $3 AND version = $4
		RETURNING `+transactionColumns,
		status, approval, id, expectedVersion)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ConcurrentModificationError{Entity: "Transaction", ID: id}
	}
	return t, err
}

// PostWithBalanceUpdate performs the atomic unit from the posting
// operation: the account balance write and the transaction insert
// commit together or not at all.
func (r *TransactionRepository) PostWithBalanceUpdate(ctx context.Context, account *domain.Account, newCurrent, newAvailable decimal.Decimal, accountExpectedVersion int64, tx *domain.Transaction) (*domain.Transaction, *domain.Account, error) {
	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer dbTx.Rollback(ctx)

	updatedAccount, err := scanAccount(dbTx.QueryRow(ctx, `
		UPDATE accounts SET current_balance = $1, available_balance = $2, version = version + 1, last_updated_at = now()
		WHERE id = $3 AND version = $4
		RETURNING `+accountColumns,
		newCurrent, newAvailable, account.ID, accountExpectedVersion,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, &domain.ConcurrentModificationError{Entity: "Account", ID: account.ID}
	}
	if err != nil {
		return nil, nil, err
	}

	postedRow := dbTx.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, transaction_code, direction, amount, currency, description,
			channel_id, terminal_id, agent_person_id, transaction_date, value_date, status, reference_number,
			external_reference, gl_code, requires_approval, approval_status, risk_score, created_at, version, content_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,1,$21)
		RETURNING `+transactionColumns,
		tx.ID, tx.AccountID, tx.TransactionCode, tx.Direction, tx.Amount, tx.Currency, tx.Description,
		tx.ChannelID, tx.TerminalID, tx.AgentPersonID, tx.TransactionDate, tx.ValueDate, tx.Status, tx.ReferenceNumber,
		tx.ExternalReference, tx.GLCode, tx.RequiresApproval, tx.ApprovalStatus, tx.RiskScore, tx.CreatedAt, tx.ContentHash,
	)
	posted, err := scanTransaction(postedRow)
	if isPgUniqueViolation(err) {
		return nil, nil, &domain.DuplicateReferenceError{ReferenceNumber: tx.ReferenceNumber}
	}
	if err != nil {
		return nil, nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return posted, updatedAccount, nil
}

// ReverseWithBalanceUpdate performs the atomic unit for a reversal: the
// inverse balance write, the original's status flip to Reversed, and the
// counter-transaction insert, all in one commit.
func (r *TransactionRepository) ReverseWithBalanceUpdate(ctx context.Context, account *domain.Account, newCurrent, newAvailable decimal.Decimal, accountExpectedVersion int64, original *domain.Transaction, originalExpectedVersion int64, reversal *domain.Transaction) (*domain.Transaction, *domain.Transaction, *domain.Account, error) {
	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	defer dbTx.Rollback(ctx)

	updatedAccount, err := scanAccount(dbTx.QueryRow(ctx, `
		UPDATE accounts SET current_balance = $1, available_balance = $2, version = version + 1, last_updated_at = now()
		WHERE id = $3 AND version = $4
		RETURNING `+accountColumns,
		newCurrent, newAvailable, account.ID, accountExpectedVersion,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil, &domain.ConcurrentModificationError{Entity: "Account", ID: account.ID}
	}
	if err != nil {
		return nil, nil, nil, err
	}

	originalRow := dbTx.QueryRow(ctx, `
		UPDATE transactions SET status = $1, reversed_by = $2, version = version + 1
		WHERE id = $3 AND version = $4
		RETURNING `+transactionColumns,
		domain.TransactionStatusReversed, reversal.ID, original.ID, originalExpectedVersion)
	updatedOriginal, err := scanTransaction(originalRow)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil, &domain.ConcurrentModificationError{Entity: "Transaction", ID: original.ID}
	}
	if err != nil {
		return nil, nil, nil, err
	}

	reversalRow := dbTx.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, transaction_code, direction, amount, currency, description,
			channel_id, terminal_id, agent_person_id, transaction_date, value_date, status, reference_number,
			external_reference, gl_code, requires_approval, approval_status, risk_score, created_at, reversal_of, version, content_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,1,$22)
		RETURNING `+transactionColumns,
		reversal.ID, reversal.AccountID, reversal.TransactionCode, reversal.Direction, reversal.Amount, reversal.Currency, reversal.Description,
		reversal.ChannelID, reversal.TerminalID, reversal.AgentPersonID, reversal.TransactionDate, reversal.ValueDate, reversal.Status, reversal.ReferenceNumber,
		reversal.ExternalReference, reversal.GLCode, reversal.RequiresApproval, reversal.ApprovalStatus, reversal.RiskScore, reversal.CreatedAt, reversal.ReversalOf, reversal.ContentHash,
	)
	insertedReversal, err := scanTransaction(reversalRow)
	if isPgUniqueViolation(err) {
		return nil, nil, nil, &domain.DuplicateReferenceError{ReferenceNumber: reversal.ReferenceNumber}
	}
	if err != nil {
		return nil, nil, nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, nil, err
	}
	return updatedOriginal, insertedReversal, updatedAccount, nil
}

func (r *TransactionRepository) dailyVolume(ctx context.Context, key, column string, id interface{}, date time.Time) (*domain.DailyVolume, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE direction = 'Credit'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE direction = 'Debit'), 0),
		       COUNT(*)
		FROM transactions
		WHERE `+column+` = $1 AND value_date::date = $2::date AND status = 'Posted'`, id, date)

	var vol domain.DailyVolume
	vol.Key = key
	vol.Date = date
	if err := row.Scan(&vol.CreditTotal, &vol.DebitTotal, &vol.Count); err != nil {
		return nil, err
	}
	return &vol, nil
}

// CalculateDailyVolumeByTerminal aggregates Posted transactions for a
// terminal on one calendar day.
func (r *TransactionRepository) CalculateDailyVolumeByTerminal(ctx context.Context, terminalID domain.EntityID, date time.Time) (*domain.DailyVolume, error) {
	return r.dailyVolume(ctx, terminalID.String(), "terminal_id", terminalID, date)
}

// CalculateDailyVolumeByBranch aggregates Posted transactions for a
// branch on one calendar day.
func (r *TransactionRepository) CalculateDailyVolumeByBranch(ctx context.Context, branchID domain.EntityID, date time.Time) (*domain.DailyVolume, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(t.amount) FILTER (WHERE t.direction = 'Credit'), 0),
		       COALESCE(SUM(t.amount) FILTER (WHERE t.direction = 'Debit'), 0),
		       COUNT(*)
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.domicile_branch_id = $1 AND t.value_date::date = $2::date AND t.status = 'Posted'`, branchID, date)

	var vol domain.DailyVolume
	vol.Key = branchID.String()
	vol.Date = date
	if err := row.Scan(&vol.CreditTotal, &vol.DebitTotal, &vol.Count); err != nil {
		return nil, err
	}
	return &vol, nil
}

// CalculateDailyVolumeByNetwork aggregates Posted transactions for a
// card/payment network on one calendar day.
func (r *TransactionRepository) CalculateDailyVolumeByNetwork(ctx context.Context, networkID string, date time.Time) (*domain.DailyVolume, error) {
	return r.dailyVolume(ctx, networkID, "gl_code", networkID, date)
}
