package repository

import (
	"context"
	"database/sql"
	"device-loan-api/internal/model"
	"errors"
	"fmt"
	"sort"
	"time"
)

// LedgerRepository owns every transition of a device between Available and
// OnLoan. Each transition writes the loan row and the device state in one
// transaction.
type LedgerRepository interface {
	Checkout(ctx context.Context, borrower model.Borrower, deviceIDs []int64, at time.Time) (*model.LoanResult, error)
	ReturnByLoanID(ctx context.Context, loanID int64, at time.Time) (*model.Loan, error)
	ReturnByBorrowerDevices(ctx context.Context, email string, deviceIDs []int64, at time.Time) (*model.ReturnResult, error)
	ListOpenLoans(ctx context.Context, category string) ([]model.LoanView, error)
	ListBorrowerOpenLoans(ctx context.Context, email string) ([]model.LoanView, error)
	ListHistory(ctx context.Context) ([]model.LoanView, error)
	ListOverdue(ctx context.Context, loanedBefore time.Time) ([]model.LoanView, error)
	ReadState(ctx context.Context) (*model.LedgerState, error)
}

type ledgerRepository struct {
	DB *sql.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *sql.DB) LedgerRepository {
	return &ledgerRepository{DB: db}
}

// Checkout upserts the borrower and loans every requested device that is
// available. Devices are locked in ascending id order so concurrent
// multi-device checkouts cannot deadlock. When nothing could be loaned the
// transaction, including the borrower upsert, is rolled back and a
// *CheckoutError is returned.
func (r *ledgerRepository) Checkout(ctx context.Context, borrower model.Borrower, deviceIDs []int64, at time.Time) (*model.LoanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO borrowers (email, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, updated_at = now()
		RETURNING id, created_at, updated_at`
	err = tx.QueryRowContext(ctx, upsert, borrower.Email, borrower.FirstName, borrower.LastName).
		Scan(&borrower.ID, &borrower.CreatedAt, &borrower.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert borrower: %w", err)
	}

	lockOrder := make([]int64, len(deviceIDs))
	copy(lockOrder, deviceIDs)
	sort.Slice(lockOrder, func(i, j int) bool { return lockOrder[i] < lockOrder[j] })

	outcomes := make(map[int64]model.DeviceOutcome, len(deviceIDs))
	loaned := 0
	for _, id := range lockOrder {
		if _, done := outcomes[id]; done {
			continue
		}
		outcome, err := checkoutDevice(ctx, tx, borrower.ID, id, at)
		if err != nil {
			return nil, err
		}
		if outcome.Outcome == model.OutcomeLoaned {
			loaned++
		}
		outcomes[id] = outcome
	}

	result := &model.LoanResult{Borrower: borrower, Loaned: loaned}
	seen := make(map[int64]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result.Outcomes = append(result.Outcomes, outcomes[id])
	}
	result.Partial = loaned < len(result.Outcomes)

	if loaned == 0 {
		return nil, &CheckoutError{Outcomes: result.Outcomes}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}
	return result, nil
}

func checkoutDevice(ctx context.Context, tx *sql.Tx, borrowerID, deviceID int64, at time.Time) (model.DeviceOutcome, error) {
	outcome := model.DeviceOutcome{DeviceID: deviceID}

	var (
		rubricID, suffixID, category string
		current                      sql.NullInt64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT rubric_id, suffix_id, category, current_loan_id FROM devices WHERE id = $1 FOR UPDATE`,
		deviceID).Scan(&rubricID, &suffixID, &category, &current)
	if errors.Is(err, sql.ErrNoRows) {
		outcome.Outcome = model.OutcomeNotFound
		outcome.Message = "device does not exist"
		return outcome, nil
	}
	if err != nil {
		return outcome, fmt.Errorf("failed to lock device %d: %w", deviceID, err)
	}
	outcome.Label = model.DeviceLabel(rubricID, suffixID)

	if current.Valid {
		outcome.Outcome = model.OutcomeUnavailable
		outcome.Message = "device is already on loan"
		return outcome, nil
	}

	var loanID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO loans (borrower_id, device_id, device_rubric_id, device_suffix_id, device_category, loaned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		borrowerID, deviceID, rubricID, suffixID, category, at).Scan(&loanID)
	if err != nil {
		return outcome, fmt.Errorf("failed to insert loan for device %d: %w", deviceID, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE devices SET current_loan_id = $1 WHERE id = $2`, loanID, deviceID); err != nil {
		return outcome, fmt.Errorf("failed to mark device %d on loan: %w", deviceID, err)
	}

	outcome.Outcome = model.OutcomeLoaned
	outcome.LoanID = &loanID
	return outcome, nil
}

// ReturnByLoanID stamps the return time on an open loan and frees its device.
// A loan that is already returned yields ErrNoOpenLoan and is left untouched.
func (r *ledgerRepository) ReturnByLoanID(ctx context.Context, loanID int64, at time.Time) (*model.Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE loans SET returned_at = $1
		WHERE id = $2 AND returned_at IS NULL
		RETURNING borrower_id, device_id, device_rubric_id, device_suffix_id, device_category, loaned_at`

	loan := model.Loan{ID: loanID, ReturnedAt: &at}
	var deviceID sql.NullInt64
	err = tx.QueryRowContext(ctx, query, at, loanID).
		Scan(&loan.BorrowerID, &deviceID, &loan.DeviceRubricID, &loan.DeviceSuffixID, &loan.DeviceCategory, &loan.LoanedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoOpenLoan
		}
		return nil, fmt.Errorf("failed to close loan: %w", err)
	}

	if deviceID.Valid {
		loan.DeviceID = &deviceID.Int64
		if err := releaseDevice(ctx, tx, deviceID.Int64); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit return: %w", err)
	}
	return &loan, nil
}

// ReturnByBorrowerDevices closes the borrower's open loan on each requested
// device in one transaction. Devices are handled in ascending id order, loan
// row before device row as in ReturnByLoanID, so concurrent returns cannot
// deadlock. When nothing was returned the transaction is rolled back and a
// *ReturnError is returned.
func (r *ledgerRepository) ReturnByBorrowerDevices(ctx context.Context, email string, deviceIDs []int64, at time.Time) (*model.ReturnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lockOrder := make([]int64, len(deviceIDs))
	copy(lockOrder, deviceIDs)
	sort.Slice(lockOrder, func(i, j int) bool { return lockOrder[i] < lockOrder[j] })

	outcomes := make(map[int64]model.DeviceOutcome, len(deviceIDs))
	closed := make(map[int64]model.Loan, len(deviceIDs))
	for _, id := range lockOrder {
		if _, done := outcomes[id]; done {
			continue
		}
		outcome, loan, err := returnDevice(ctx, tx, email, id, at)
		if err != nil {
			return nil, err
		}
		outcomes[id] = outcome
		if loan != nil {
			closed[id] = *loan
		}
	}

	result := &model.ReturnResult{Loans: []model.Loan{}}
	seen := make(map[int64]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result.Outcomes = append(result.Outcomes, outcomes[id])
		if loan, ok := closed[id]; ok {
			result.Loans = append(result.Loans, loan)
		}
	}
	result.Partial = len(result.Loans) < len(result.Outcomes)

	if len(result.Loans) == 0 {
		return nil, &ReturnError{Outcomes: result.Outcomes}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit return: %w", err)
	}
	return result, nil
}

func returnDevice(ctx context.Context, tx *sql.Tx, email string, deviceID int64, at time.Time) (model.DeviceOutcome, *model.Loan, error) {
	outcome := model.DeviceOutcome{DeviceID: deviceID}

	query := `
		UPDATE loans l SET returned_at = $1
		FROM borrowers b
		WHERE l.borrower_id = b.id AND b.email = $2 AND l.device_id = $3 AND l.returned_at IS NULL
		RETURNING l.id, l.borrower_id, l.device_rubric_id, l.device_suffix_id, l.device_category, l.loaned_at`

	loan := model.Loan{DeviceID: &deviceID, ReturnedAt: &at}
	err := tx.QueryRowContext(ctx, query, at, email, deviceID).
		Scan(&loan.ID, &loan.BorrowerID, &loan.DeviceRubricID, &loan.DeviceSuffixID, &loan.DeviceCategory, &loan.LoanedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE id = $1)`, deviceID).Scan(&exists); err != nil {
			return outcome, nil, fmt.Errorf("failed to look up device %d: %w", deviceID, err)
		}
		if !exists {
			outcome.Outcome = model.OutcomeNotFound
			outcome.Message = "device does not exist"
			return outcome, nil, nil
		}
		outcome.Outcome = model.OutcomeNotOnLoan
		outcome.Message = "device is not on loan to this borrower"
		return outcome, nil, nil
	}
	if err != nil {
		return outcome, nil, fmt.Errorf("failed to close loan for device %d: %w", deviceID, err)
	}

	if err := releaseDevice(ctx, tx, deviceID); err != nil {
		return outcome, nil, err
	}

	outcome.Label = loan.DeviceLabel()
	outcome.Outcome = model.OutcomeReturned
	outcome.LoanID = &loan.ID
	return outcome, &loan, nil
}

func releaseDevice(ctx context.Context, tx *sql.Tx, deviceID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE devices SET current_loan_id = NULL WHERE id = $1`, deviceID); err != nil {
		return fmt.Errorf("failed to release device %d: %w", deviceID, err)
	}
	return nil
}

const loanViewSelect = `
		SELECT l.id, l.borrower_id, l.device_id, l.device_rubric_id, l.device_suffix_id, l.device_category,
		       l.loaned_at, l.returned_at, b.email, b.first_name, b.last_name
		FROM loans l
		JOIN borrowers b ON b.id = l.borrower_id`

// ListOpenLoans returns loans not yet returned, oldest first.
func (r *ledgerRepository) ListOpenLoans(ctx context.Context, category string) ([]model.LoanView, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := loanViewSelect + `
		WHERE l.returned_at IS NULL AND ($1 = '' OR l.device_category = $1)
		ORDER BY l.loaned_at, l.id`

	return queryLoanViews(ctx, r.DB, query, category)
}

// ListBorrowerOpenLoans returns the open loans held by one borrower.
func (r *ledgerRepository) ListBorrowerOpenLoans(ctx context.Context, email string) ([]model.LoanView, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := loanViewSelect + `
		WHERE l.returned_at IS NULL AND b.email = $1
		ORDER BY l.loaned_at, l.id`

	return queryLoanViews(ctx, r.DB, query, email)
}

// ListHistory returns every loan ever recorded.
func (r *ledgerRepository) ListHistory(ctx context.Context) ([]model.LoanView, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return queryLoanViews(ctx, r.DB, historyQuery)
}

// ListOverdue returns open loans started before the cutoff.
func (r *ledgerRepository) ListOverdue(ctx context.Context, loanedBefore time.Time) ([]model.LoanView, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := loanViewSelect + `
		WHERE l.returned_at IS NULL AND l.loaned_at < $1
		ORDER BY l.loaned_at, l.id`

	return queryLoanViews(ctx, r.DB, query, loanedBefore)
}

const historyQuery = loanViewSelect + `
		ORDER BY l.loaned_at, l.id`

// ReadState reads the inventory and the full loan history in one read-only
// REPEATABLE READ transaction, so both come from the same snapshot.
func (r *ledgerRepository) ReadState(ctx context.Context) (*model.LedgerState, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	devices, err := queryDevices(ctx, tx, listDevicesQuery)
	if err != nil {
		return nil, err
	}
	history, err := queryLoanViews(ctx, tx, historyQuery)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit read: %w", err)
	}
	return &model.LedgerState{Devices: devices, History: history}, nil
}

func queryLoanViews(ctx context.Context, q querier, query string, args ...any) ([]model.LoanView, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	views := []model.LoanView{}
	for rows.Next() {
		var (
			v          model.LoanView
			deviceID   sql.NullInt64
			returnedAt sql.NullTime
		)
		if err := rows.Scan(&v.Loan.ID, &v.Loan.BorrowerID, &deviceID, &v.Loan.DeviceRubricID,
			&v.Loan.DeviceSuffixID, &v.Loan.DeviceCategory, &v.Loan.LoanedAt, &returnedAt,
			&v.Borrower.Email, &v.Borrower.FirstName, &v.Borrower.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		if deviceID.Valid {
			id := deviceID.Int64
			v.Loan.DeviceID = &id
		}
		if returnedAt.Valid {
			t := returnedAt.Time
			v.Loan.ReturnedAt = &t
		}
		v.Borrower.ID = v.Loan.BorrowerID
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return views, nil
}
