package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianledger/core/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountRepository implements domain.AccountRepository directly
// against pgx. The teacher generates this layer with sqlc; that
// generator cannot be re-run here (see DESIGN.md), so every query below
// is written by hand against pool.QueryRow/Exec and pgx.CollectRows.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, product_code, variant, status, signing_condition, currency, open_date,
	domicile_branch_id, current_balance, available_balance, accrued_interest, overdraft_limit,
	loan_original_principal, loan_outstanding_principal, loan_interest_rate, loan_term_months,
	loan_disbursement_date, loan_maturity_date, loan_installment_amount, loan_next_due_date,
	loan_penalty_rate, dormancy_threshold_days, last_activity_date,
	status_changed_by, status_reason_id, status_changed_at,
	created_at, last_updated_at, updated_by_person, version, content_hash`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var overdraft, loanOrig, loanOutstanding, loanRate, loanInstallment, loanPenalty nullableDecimal
	var loanTermMonths *int32
	var loanDisbursement, loanMaturity, loanNextDue *time.Time

	err := row.Scan(
		&a.ID, &a.ProductCode, &a.Variant, &a.Status, &a.SigningCondition, &a.Currency, &a.OpenDate,
		&a.DomicileBranchID, &a.CurrentBalance, &a.AvailableBalance, &a.AccruedInterest, &overdraft,
		&loanOrig, &loanOutstanding, &loanRate, &loanTermMonths,
		&loanDisbursement, &loanMaturity, &loanInstallment, &loanNextDue,
		&loanPenalty, &a.DormancyThresholdDays, &a.LastActivityDate,
		&a.StatusChange.ByPerson, &a.StatusChange.ReasonID, &a.StatusChange.Timestamp,
		&a.CreatedAt, &a.LastUpdatedAt, &a.UpdatedByPerson, &a.Version, &a.ContentHash,
	)
	if err != nil {
		return nil, err
	}
	if overdraft.Valid {
		v := overdraft.Decimal
		a.OverdraftLimit = &v
	}
	if loanTermMonths != nil {
		a.Loan = &domain.LoanTerms{
			OriginalPrincipal:    loanOrig.Decimal,
			OutstandingPrincipal: loanOutstanding.Decimal,
			InterestRate:         loanRate.Decimal,
			TermMonths:           *loanTermMonths,
			InstallmentAmount:    loanInstallment.Decimal,
			PenaltyRate:          loanPenalty.Decimal,
		}
		if loanDisbursement != nil {
			a.Loan.DisbursementDate = *loanDisbursement
		}
		if loanMaturity != nil {
			a.Loan.MaturityDate = *loanMaturity
		}
		if loanNextDue != nil {
			a.Loan.NextDueDate = *loanNextDue
		}
	}
	return &a, nil
}

// Create inserts a new account row with version 1.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	var loan domain.LoanTerms
	if account.Loan != nil {
		loan = *account.Loan
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, product_code, variant, status, signing_condition, currency, open_date,
			domicile_branch_id, current_balance, available_balance, accrued_interest, overdraft_limit,
			loan_original_principal, loan_outstanding_principal, loan_interest_rate, loan_term_months,
			loan_disbursement_date, loan_maturity_date, loan_installment_amount, loan_next_due_date,
			loan_penalty_rate, dormancy_threshold_days, last_activity_date,
			status_changed_by, status_reason_id, status_changed_at,
			created_at, last_updated_at, updated_by_person, version, content_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,1,$30)
		RETURNING `+accountColumns,
		account.ID, account.ProductCode, account.Variant, account.Status, account.SigningCondition,
		account.Currency, account.OpenDate, account.DomicileBranchID, account.CurrentBalance,
		account.AvailableBalance, account.AccruedInterest, account.OverdraftLimit,
		loan.OriginalPrincipal, loan.OutstandingPrincipal, loan.InterestRate, nullIfNoLoan(account, loan.TermMonths),
		loan.DisbursementDate, loan.MaturityDate, loan.InstallmentAmount, loan.NextDueDate,
		loan.PenaltyRate, account.DormancyThresholdDays, account.LastActivityDate,
		account.StatusChange.ByPerson, account.StatusChange.ReasonID, account.StatusChange.Timestamp,
		account.CreatedAt, account.LastUpdatedAt, account.UpdatedByPerson, account.ContentHash,
	)
	return scanAccount(row)
}

func nullIfNoLoan(account *domain.Account, months int32) *int32 {
	if account.Loan == nil {
		return nil
	}
	return &months
}

// FindByID returns the account for id.
func (r *AccountRepository) FindByID(ctx context.Context, id domain.EntityID) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("Account", id)
	}
	return a, err
}

func (r *AccountRepository) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]*domain.Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindByCustomer returns every account owned by customerID, resolved
// through the account_owners join table.
func (r *AccountRepository) FindByCustomer(ctx context.Context, customerID domain.PersonID) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM accounts a
		JOIN account_owners o ON o.account_id = a.id
		WHERE o.person_id = $1`, customerID)
}

// FindByProduct returns every account of the given product code.
func (r *AccountRepository) FindByProduct(ctx context.Context, productCode string) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE product_code = $1`, productCode)
}

// FindByStatus returns every account currently in the given status.
func (r *AccountRepository) FindByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE status = $1`, status)
}

// FindDormancyCandidates returns Active accounts whose last activity
// date is at least thresholdDays before referenceDate.
func (r *AccountRepository) FindDormancyCandidates(ctx context.Context, referenceDate time.Time, thresholdDays int32) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE status = 'Active' AND last_activity_date <= $1 - ($2 * INTERVAL '1 day')`,
		referenceDate, thresholdDays)
}

// FindPendingClosure returns every account in PendingClosure status.
func (r *AccountRepository) FindPendingClosure(ctx context.Context) ([]*domain.Account, error) {
	return r.FindByStatus(ctx, domain.AccountStatusPendingClosure)
}

// FindInterestBearing returns every non-Closed Savings/Current account
// and every Loan account with outstanding principal.
func (r *AccountRepository) FindInterestBearing(ctx context.Context) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE status != 'Closed'
		  AND (variant IN ('Savings', 'Current')
		       OR (variant = 'Loan' AND loan_outstanding_principal > 0))`)
}

// UpdateBalance atomically writes new current/available balances,
// guarded by expectedVersion.
func (r *AccountRepository) UpdateBalance(ctx context.Context, accountID domain.EntityID, newCurrent, newAvailable decimal.Decimal, expectedVersion int64) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET current_balance = $1, available_balance = $2, last_updated_at = now(), version = version + 1
		WHERE id = $3 AND version = $4
		RETURNING `+accountColumns,
		newCurrent, newAvailable, accountID, expectedVersion)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ConcurrentModificationError{Entity: "Account", ID: accountID}
	}
	return a, err
}

// UpdateStatus transitions status, appends a status_change_history row,
// and returns the updated account, guarded by expectedVersion. The
// state-machine legality check has already happened in the service
// layer; this method persists whatever transition it is given.
func (r *AccountRepository) UpdateStatus(ctx context.Context, accountID domain.EntityID, newStatus domain.AccountStatus, reasonID domain.EntityID, additionalContext string, changedBy domain.PersonID, systemTriggered bool, expectedVersion int64) (*domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var oldStatus domain.AccountStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM accounts WHERE id = $1`, accountID).Scan(&oldStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("Account", accountID)
		}
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE accounts
		SET status = $1, status_changed_by = $2, status_reason_id = $3, status_changed_at = now(),
		    last_updated_at = now(), updated_by_person = $2, version = version + 1
		WHERE id = $4 AND version = $5
		RETURNING `+accountColumns,
		newStatus, changedBy, reasonID, accountID, expectedVersion)
	updated, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ConcurrentModificationError{Entity: "Account", ID: accountID}
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO account_status_history
			(id, account_id, old_status, new_status, reason_id, additional_context, changed_by, changed_at, system_triggered)
		VALUES ($1,$2,$3,$4,$5,$6,$7, now(), $8)`,
		domain.NewEntityID(), accountID, oldStatus, newStatus, reasonID, additionalContext, changedBy, systemTriggered,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateLastActivityDate sets the last-activity timestamp.
func (r *AccountRepository) UpdateLastActivityDate(ctx context.Context, accountID domain.EntityID, date time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET last_activity_date = $1 WHERE id = $2`, date, accountID)
	return err
}

// UpdateAccruedInterest overwrites accrued interest.
func (r *AccountRepository) UpdateAccruedInterest(ctx context.Context, accountID domain.EntityID, newAccruedInterest decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET accrued_interest = $1 WHERE id = $2`, newAccruedInterest, accountID)
	return err
}

// ResetAccruedInterest zeroes accrued interest.
func (r *AccountRepository) ResetAccruedInterest(ctx context.Context, accountID domain.EntityID) error {
	return r.UpdateAccruedInterest(ctx, accountID, decimal.Zero)
}

// GetStatusHistory returns the append-only status-change trail.
func (r *AccountRepository) GetStatusHistory(ctx context.Context, accountID domain.EntityID) ([]*domain.StatusChangeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, old_status, new_status, reason_id, additional_context, changed_by, changed_at, system_triggered
		FROM account_status_history WHERE account_id = $1 ORDER BY changed_at ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.StatusChangeRecord, error) {
		var rec domain.StatusChangeRecord
		err := row.Scan(&rec.ID, &rec.AccountID, &rec.OldStatus, &rec.NewStatus, &rec.ReasonID,
			&rec.AdditionalContext, &rec.ChangedBy, &rec.ChangedAt, &rec.SystemTriggered)
		return &rec, err
	})
}
