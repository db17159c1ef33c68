package repository

import (
	"context"
	"database/sql"
	"device-loan-api/internal/model"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deviceRowColumns = []string{"id", "rubric_id", "suffix_id", "category", "current_loan_id", "created_at"}

func setupTestDB(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewDeviceRepository(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	repo := NewDeviceRepository(db)
	assert.NotNil(t, repo)
}

func TestCreateDevice_Success(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	now := time.Now()
	input := model.NewDevice{RubricID: "SHC-LQ", SuffixID: "001", Category: "Laptop"}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO devices (rubric_id, suffix_id, category) VALUES ($1, $2, $3) RETURNING id, created_at`)).
		WithArgs(input.RubricID, input.SuffixID, input.Category).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	device, err := repo.CreateDevice(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, int64(7), device.ID)
	assert.Equal(t, "SHC-LQ-001", device.Label())
	assert.True(t, device.Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDevice_Duplicate(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO devices`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "devices_rubric_suffix_key"})

	device, err := repo.CreateDevice(context.Background(), model.NewDevice{RubricID: "SHC-LQ", SuffixID: "001", Category: "Laptop"})

	assert.Nil(t, device)
	assert.True(t, errors.Is(err, ErrDuplicateDevice))
	assert.Contains(t, err.Error(), "SHC-LQ-001")
}

func TestCreateDevice_DatabaseError(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO devices`)).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.CreateDevice(context.Background(), model.NewDevice{RubricID: "A", SuffixID: "1", Category: "Other"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateDevice))
	assert.Contains(t, err.Error(), "failed to create device")
}

func TestGetDevice_Success(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, rubric_id, suffix_id, category, current_loan_id, created_at FROM devices WHERE id = $1`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(deviceRowColumns).AddRow(int64(3), "SHC-IQ", "010", "iPad", int64(42), now))

	device, err := repo.GetDevice(context.Background(), 3)

	require.NoError(t, err)
	assert.False(t, device.Available())
	loanID, ok := device.State.LoanID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), loanID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDevice_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM devices WHERE id = $1`)).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	device, err := repo.GetDevice(context.Background(), 99)

	assert.Nil(t, device)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestListDevices_Success(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(deviceRowColumns).
		AddRow(int64(1), "SHC-LQ", "001", "Laptop", nil, now).
		AddRow(int64(2), "SHC-LQ", "002", "Laptop", int64(5), now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, rubric_id, suffix_id, category, current_loan_id, created_at FROM devices ORDER BY rubric_id, suffix_id`)).
		WillReturnRows(rows)

	devices, err := repo.ListDevices(context.Background())

	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.True(t, devices[0].Available())
	assert.False(t, devices[1].Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAvailableDevices_FiltersCategory(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE current_loan_id IS NULL AND ($1 = '' OR category = $1)`)).
		WithArgs("Charger").
		WillReturnRows(sqlmock.NewRows(deviceRowColumns).AddRow(int64(4), "SHC-LP", "001", "Charger", nil, time.Now()))

	devices, err := repo.ListAvailableDevices(context.Background(), "Charger")

	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Charger", devices[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAvailableDevices_Empty(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM devices`)).
		WithArgs("").
		WillReturnRows(sqlmock.NewRows(deviceRowColumns))

	devices, err := repo.ListAvailableDevices(context.Background(), "")

	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestListDevices_QueryError(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM devices`)).
		WillReturnError(errors.New("database error"))

	devices, err := repo.ListDevices(context.Background())

	assert.Nil(t, devices)
	assert.Contains(t, err.Error(), "failed to query devices")
}

func TestDeleteDevice_Success(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT current_loan_id FROM devices WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"current_loan_id"}).AddRow(nil))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM devices WHERE id = $1`)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteDevice(context.Background(), 1)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDevice_OnLoan(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT current_loan_id FROM devices WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"current_loan_id"}).AddRow(int64(12)))
	mock.ExpectRollback()

	err := repo.DeleteDevice(context.Background(), 1)

	assert.True(t, errors.Is(err, ErrDeviceOnLoan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDevice_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()
	repo := NewDeviceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(8)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.DeleteDevice(context.Background(), 8)

	assert.True(t, errors.Is(err, ErrDeviceNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
