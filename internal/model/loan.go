package model

import (
	"strings"
	"time"
)

// Borrower is identified by email. Names are overwritten by the latest loan request.
type Borrower struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (b Borrower) FullName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}

// Loan is one ledger row. ReturnedAt is nil while the loan is open. DeviceID
// becomes nil if the device is later removed; the Device* snapshot fields keep
// the record readable.
type Loan struct {
	ID             int64      `json:"id"`
	BorrowerID     int64      `json:"borrower_id"`
	DeviceID       *int64     `json:"device_id,omitempty"`
	DeviceRubricID string     `json:"device_rubric_id"`
	DeviceSuffixID string     `json:"device_suffix_id"`
	DeviceCategory string     `json:"device_category"`
	LoanedAt       time.Time  `json:"loaned_at"`
	ReturnedAt     *time.Time `json:"returned_at,omitempty"`
}

func (l Loan) Open() bool { return l.ReturnedAt == nil }

func (l Loan) DeviceLabel() string {
	return DeviceLabel(l.DeviceRubricID, l.DeviceSuffixID)
}

// Status is "On Loan" for open loans and "Returned" otherwise.
func (l Loan) Status() string {
	if l.Open() {
		return StatusOnLoan
	}
	return StatusReturned
}

// LoanView joins a loan with its borrower for listings.
type LoanView struct {
	Loan     Loan     `json:"loan"`
	Borrower Borrower `json:"borrower"`
}

// LoanRequest is a checkout of one or more devices for one borrower.
type LoanRequest struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,max=254"`
	DeviceIDs []int64 `json:"device_ids" validate:"required,min=1,max=50,dive,gt=0"`
}

// ReturnRequest identifies the loans to close either by LoanID or by the
// borrower Email with one or more devices. DeviceID and DeviceIDs may be
// combined; duplicates are ignored.
type ReturnRequest struct {
	LoanID    *int64  `json:"loan_id,omitempty" validate:"omitempty,gt=0"`
	Email     string  `json:"email,omitempty" validate:"omitempty,max=254"`
	DeviceID  *int64  `json:"device_id,omitempty" validate:"omitempty,gt=0"`
	DeviceIDs []int64 `json:"device_ids,omitempty" validate:"omitempty,max=50,dive,gt=0"`
}

// Per-device checkout and return outcomes.
const (
	OutcomeLoaned      = "loaned"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
	OutcomeReturned    = "returned"
	OutcomeNotOnLoan   = "not_on_loan"
)

// DeviceOutcome reports what happened to one requested device.
type DeviceOutcome struct {
	DeviceID int64  `json:"device_id"`
	Label    string `json:"label,omitempty"`
	Outcome  string `json:"outcome"`
	LoanID   *int64 `json:"loan_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// LoanResult is the mixed result of a checkout with at least one success.
type LoanResult struct {
	Borrower Borrower        `json:"borrower"`
	Outcomes []DeviceOutcome `json:"outcomes"`
	Loaned   int             `json:"loaned"`
	Partial  bool            `json:"partial"`
}

// ReturnResult lists the loans closed by a return request. Returns by
// borrower and device also carry one outcome per requested device.
type ReturnResult struct {
	Loans    []Loan          `json:"loans"`
	Outcomes []DeviceOutcome `json:"outcomes,omitempty"`
	Partial  bool            `json:"partial,omitempty"`
}

// OverdueLoan is an open loan older than the configured loan period.
type OverdueLoan struct {
	LoanView
	DaysOut int `json:"days_out"`
}
