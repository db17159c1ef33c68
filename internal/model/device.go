package model

import (
	"encoding/json"
	"time"
)

// Device status labels used in listings and exports.
const (
	StatusAvailable = "Available"
	StatusOnLoan    = "On Loan"
	StatusReturned  = "Returned"
)

// DeviceState is either Available or OnLoan. The zero value is Available.
type DeviceState struct {
	loanID *int64
}

// Available returns the state of a device with no open loan.
func Available() DeviceState { return DeviceState{} }

// OnLoan returns the state of a device held by the given loan.
func OnLoan(loanID int64) DeviceState { return DeviceState{loanID: &loanID} }

func (s DeviceState) IsAvailable() bool { return s.loanID == nil }

// LoanID returns the open loan holding the device, if any.
func (s DeviceState) LoanID() (int64, bool) {
	if s.loanID == nil {
		return 0, false
	}
	return *s.loanID, true
}

func (s DeviceState) String() string {
	if s.IsAvailable() {
		return StatusAvailable
	}
	return StatusOnLoan
}

// Device is an item in the loanable inventory, keyed by (RubricID, SuffixID).
type Device struct {
	ID        int64
	RubricID  string
	SuffixID  string
	Category  string
	State     DeviceState
	CreatedAt time.Time
}

// Label is the human readable identifier, e.g. SHC-LQ-001. It is for display
// only and never parsed back into its parts.
func (d Device) Label() string {
	return DeviceLabel(d.RubricID, d.SuffixID)
}

func (d Device) Available() bool { return d.State.IsAvailable() }

func DeviceLabel(rubricID, suffixID string) string {
	if suffixID == "" {
		return rubricID
	}
	if rubricID == "" {
		return suffixID
	}
	return rubricID + "-" + suffixID
}

type deviceJSON struct {
	ID            int64     `json:"id"`
	RubricID      string    `json:"rubric_id"`
	SuffixID      string    `json:"suffix_id"`
	Label         string    `json:"label"`
	Category      string    `json:"category"`
	Available     bool      `json:"available"`
	Status        string    `json:"status"`
	CurrentLoanID *int64    `json:"current_loan_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// MarshalJSON renders the derived label and availability alongside the stored fields.
func (d Device) MarshalJSON() ([]byte, error) {
	out := deviceJSON{
		ID:        d.ID,
		RubricID:  d.RubricID,
		SuffixID:  d.SuffixID,
		Label:     d.Label(),
		Category:  d.Category,
		Available: d.Available(),
		Status:    d.State.String(),
		CreatedAt: d.CreatedAt,
	}
	if id, ok := d.State.LoanID(); ok {
		out.CurrentLoanID = &id
	}
	return json.Marshal(out)
}

// NewDevice is the input for registering a device.
type NewDevice struct {
	RubricID string `json:"rubric_id" validate:"required,max=64"`
	SuffixID string `json:"suffix_id" validate:"required,max=64"`
	Category string `json:"category" validate:"required,max=64"`
}

// Category is a known device category and the rubric prefix suggested for it.
type Category struct {
	Name         string `json:"name"`
	RubricPrefix string `json:"rubric_prefix"`
}

// DefaultCategories lists the categories offered when registering devices.
var DefaultCategories = []Category{
	{Name: "Laptop", RubricPrefix: "SHC-LQ"},
	{Name: "Charger", RubricPrefix: "SHC-LP"},
	{Name: "iPad", RubricPrefix: "SHC-IQ"},
	{Name: "Headphones", RubricPrefix: "SHC-HP"},
	{Name: "Other", RubricPrefix: "SHC"},
}
