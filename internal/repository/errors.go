package repository

import (
	"errors"

	"device-loan-api/internal/model"

	"github.com/lib/pq"
)

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrDeviceOnLoan    = errors.New("device is currently on loan")
	ErrDuplicateDevice = errors.New("device with this rubric and suffix already exists")
	ErrNoOpenLoan      = errors.New("no open loan matches the request")
	ErrNoDevicesLoaned = errors.New("none of the requested devices could be loaned")
)

const uniqueViolation = pq.ErrorCode("23505")

// CheckoutError is returned when a checkout loaned nothing. It carries the
// per-device outcomes and unwraps to ErrNoDevicesLoaned.
type CheckoutError struct {
	Outcomes []model.DeviceOutcome
}

func (e *CheckoutError) Error() string {
	return ErrNoDevicesLoaned.Error()
}

func (e *CheckoutError) Unwrap() error {
	return ErrNoDevicesLoaned
}

// ReturnError is returned when a return by borrower and devices closed
// nothing. It carries the per-device outcomes and unwraps to ErrNoOpenLoan.
type ReturnError struct {
	Outcomes []model.DeviceOutcome
}

func (e *ReturnError) Error() string {
	return ErrNoOpenLoan.Error()
}

func (e *ReturnError) Unwrap() error {
	return ErrNoOpenLoan
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
