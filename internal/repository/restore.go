package repository

import (
	"context"
	"database/sql"
	"device-loan-api/internal/model"
	"fmt"
	"time"
)

// RestoreRepository replaces the whole stored state with an import plan.
type RestoreRepository interface {
	Restore(ctx context.Context, plan model.RestorePlan) error
}

type restoreRepository struct {
	DB *sql.DB
}

// NewRestoreRepository creates a new RestoreRepository.
func NewRestoreRepository(db *sql.DB) RestoreRepository {
	return &restoreRepository{DB: db}
}

// Restore wipes devices, borrowers and loans and inserts the plan in a single
// transaction. Any failure leaves the previous state intact.
func (r *restoreRepository) Restore(ctx context.Context, plan model.RestorePlan) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE loans, devices, borrowers RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}

	deviceIDs := make([]int64, len(plan.Devices))
	for i, d := range plan.Devices {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO devices (rubric_id, suffix_id, category) VALUES ($1, $2, $3) RETURNING id`,
			d.RubricID, d.SuffixID, d.Category).Scan(&deviceIDs[i])
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateDevice, model.DeviceLabel(d.RubricID, d.SuffixID))
			}
			return fmt.Errorf("failed to insert device %s: %w", model.DeviceLabel(d.RubricID, d.SuffixID), err)
		}
	}

	borrowerIDs := make([]int64, len(plan.Borrowers))
	for i, b := range plan.Borrowers {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO borrowers (email, first_name, last_name) VALUES ($1, $2, $3) RETURNING id`,
			b.Email, b.FirstName, b.LastName).Scan(&borrowerIDs[i])
		if err != nil {
			return fmt.Errorf("failed to insert borrower %s: %w", b.Email, err)
		}
	}

	for _, l := range plan.Loans {
		if l.BorrowerIndex < 0 || l.BorrowerIndex >= len(borrowerIDs) {
			return fmt.Errorf("loan references unknown borrower %d", l.BorrowerIndex)
		}
		var deviceID sql.NullInt64
		switch {
		case l.DeviceIndex == model.NoDevice:
			if l.ReturnedAt == nil {
				return fmt.Errorf("open loan for %s has no device", model.DeviceLabel(l.Device.RubricID, l.Device.SuffixID))
			}
		case l.DeviceIndex >= 0 && l.DeviceIndex < len(deviceIDs):
			deviceID = sql.NullInt64{Int64: deviceIDs[l.DeviceIndex], Valid: true}
		default:
			return fmt.Errorf("loan references unknown device %d", l.DeviceIndex)
		}
		d := l.Device

		var returnedAt sql.NullTime
		if l.ReturnedAt != nil {
			returnedAt = sql.NullTime{Time: *l.ReturnedAt, Valid: true}
		}

		var loanID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO loans (borrower_id, device_id, device_rubric_id, device_suffix_id, device_category, loaned_at, returned_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			borrowerIDs[l.BorrowerIndex], deviceID, d.RubricID, d.SuffixID, d.Category, l.LoanedAt, returnedAt).Scan(&loanID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDeviceOnLoan, model.DeviceLabel(d.RubricID, d.SuffixID))
			}
			return fmt.Errorf("failed to insert loan: %w", err)
		}

		if l.ReturnedAt == nil {
			if _, err := tx.ExecContext(ctx, `UPDATE devices SET current_loan_id = $1 WHERE id = $2`, loanID, deviceID.Int64); err != nil {
				return fmt.Errorf("failed to mark device on loan: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}
