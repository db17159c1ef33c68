package model

import "time"

// Display formats used by the snapshot document.
const (
	DateLayout  = "02/01/06"
	TimeLayout  = "15:04"
	NotReturned = "N/A"
)

// Snapshot is the exported state of the registry and the ledger. On import a
// nil section means the section was absent from the document.
type Snapshot struct {
	ExportedAt time.Time      `json:"exported_at"`
	OnLoan     []OnLoanRow    `json:"on_loan"`
	Inventory  []InventoryRow `json:"inventory"`
	History    []HistoryRow   `json:"history"`
}

type OnLoanRow struct {
	Label    string `json:"label"`
	RubricID string `json:"rubric_id"`
	SuffixID string `json:"suffix_id"`
	Category string `json:"category"`
	Borrower string `json:"borrower"`
	Email    string `json:"email"`
	LoanDate string `json:"loan_date"`
	LoanTime string `json:"loan_time"`
}

type InventoryRow struct {
	RubricID string `json:"rubric_id"`
	SuffixID string `json:"suffix_id"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

type HistoryRow struct {
	LoanID     int64  `json:"loan_id"`
	Label      string `json:"label"`
	RubricID   string `json:"rubric_id,omitempty"`
	SuffixID   string `json:"suffix_id,omitempty"`
	Category   string `json:"category"`
	Borrower   string `json:"borrower"`
	Email      string `json:"email,omitempty"`
	LoanDate   string `json:"loan_date"`
	LoanTime   string `json:"loan_time"`
	ReturnDate string `json:"return_date"`
	ReturnTime string `json:"return_time"`
	Status     string `json:"status"`
}

// LedgerState is the inventory and the loan history read together.
type LedgerState struct {
	Devices []Device
	History []LoanView
}

// OpenLoans returns the history entries that are still open, in history order.
func (s LedgerState) OpenLoans() []LoanView {
	open := []LoanView{}
	for _, v := range s.History {
		if v.Loan.Open() {
			open = append(open, v)
		}
	}
	return open
}

// RestorePlan is the fully resolved content of an import, ready to replace
// the stored state in one transaction. Loans reference devices and borrowers
// by their index in the plan.
type RestorePlan struct {
	Devices   []NewDevice
	Borrowers []Borrower
	Loans     []RestoreLoan
}

// NoDevice marks a restored loan that is not linked to any device.
const NoDevice = -1

// RestoreLoan is one imported ledger row. DeviceIndex is NoDevice for a
// returned loan whose device was deleted before the export; Device always
// holds the snapshot written to the loan row.
type RestoreLoan struct {
	DeviceIndex   int
	Device        NewDevice
	BorrowerIndex int
	LoanedAt      time.Time
	ReturnedAt    *time.Time
}

// ImportSummary reports the outcome of a best-effort import.
type ImportSummary struct {
	Devices   int      `json:"devices"`
	Borrowers int      `json:"borrowers"`
	Loans     int      `json:"loans"`
	OpenLoans int      `json:"open_loans"`
	Skipped   int      `json:"skipped"`
	Warnings  []string `json:"warnings,omitempty"`
}
