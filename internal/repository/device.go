package repository

import (
	"context"
	"database/sql"
	"device-loan-api/internal/model"
	"errors"
	"fmt"
	"time"
)

// DeviceRepository reads and maintains the device registry.
type DeviceRepository interface {
	CreateDevice(ctx context.Context, device model.NewDevice) (*model.Device, error)
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	ListAvailableDevices(ctx context.Context, category string) ([]model.Device, error)
	DeleteDevice(ctx context.Context, id int64) error
}

type deviceRepository struct {
	DB *sql.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *sql.DB) DeviceRepository {
	return &deviceRepository{DB: db}
}

const deviceColumns = `id, rubric_id, suffix_id, category, current_loan_id, created_at`

const listDevicesQuery = `SELECT ` + deviceColumns + ` FROM devices ORDER BY rubric_id, suffix_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (model.Device, error) {
	var (
		d      model.Device
		loanID sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.RubricID, &d.SuffixID, &d.Category, &loanID, &d.CreatedAt); err != nil {
		return model.Device{}, err
	}
	if loanID.Valid {
		d.State = model.OnLoan(loanID.Int64)
	}
	return d, nil
}

// CreateDevice registers a new, available device.
func (r *deviceRepository) CreateDevice(ctx context.Context, device model.NewDevice) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO devices (rubric_id, suffix_id, category)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	d := model.Device{
		RubricID: device.RubricID,
		SuffixID: device.SuffixID,
		Category: device.Category,
		State:    model.Available(),
	}
	err := r.DB.QueryRowContext(ctx, query, device.RubricID, device.SuffixID, device.Category).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, d.Label())
		}
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return &d, nil
}

// GetDevice retrieves a single device by id.
func (r *deviceRepository) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	d, err := scanDevice(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &d, nil
}

// ListDevices returns the full inventory.
func (r *deviceRepository) ListDevices(ctx context.Context) ([]model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return queryDevices(ctx, r.DB, listDevicesQuery)
}

// ListAvailableDevices returns devices with no open loan, optionally limited
// to one category. An empty category means all.
func (r *deviceRepository) ListAvailableDevices(ctx context.Context, category string) ([]model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + deviceColumns + `
		FROM devices
		WHERE current_loan_id IS NULL AND ($1 = '' OR category = $1)
		ORDER BY rubric_id, suffix_id`

	return queryDevices(ctx, r.DB, query, category)
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryDevices(ctx context.Context, q querier, query string, args ...any) ([]model.Device, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []model.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes a device that is not on loan. The row lock keeps a
// concurrent checkout from slipping in between the check and the delete.
func (r *deviceRepository) DeleteDevice(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var loanID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT current_loan_id FROM devices WHERE id = $1 FOR UPDATE`, id).Scan(&loanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("failed to lock device: %w", err)
	}
	if loanID.Valid {
		return ErrDeviceOnLoan
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit device delete: %w", err)
	}
	return nil
}
