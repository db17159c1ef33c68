package service

import (
	"context"
	"device-loan-api/internal/model"
	"device-loan-api/internal/repository"
	"device-loan-api/pkg/errors"
	"device-loan-api/pkg/logger"
	"time"
)

// ReportService renders the stored state as snapshot sections
type ReportService struct {
	ledger  repository.LedgerRepository
	loc     *time.Location
	logger  *logger.Logger
	now     func() time.Time
}

// NewReportService creates a report service that formats timestamps in loc
func NewReportService(ledger repository.LedgerRepository, loc *time.Location, log *logger.Logger) *ReportService {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReportService{ledger: ledger, loc: loc, logger: log, now: time.Now}
}

// Export builds the full snapshot document: devices on loan, the inventory
// and the loan history, all from one consistent read.
func (s *ReportService) Export(ctx context.Context) (*model.Snapshot, error) {
	state, err := s.ledger.ReadState(ctx)
	if err != nil {
		return nil, errors.DatabaseError("failed to read ledger state", err)
	}
	open, devices, history := state.OpenLoans(), state.Devices, state.History

	snap := &model.Snapshot{
		ExportedAt: s.now().In(s.loc),
		OnLoan:     make([]model.OnLoanRow, 0, len(open)),
		Inventory:  make([]model.InventoryRow, 0, len(devices)),
		History:    make([]model.HistoryRow, 0, len(history)),
	}
	for _, v := range open {
		snap.OnLoan = append(snap.OnLoan, s.onLoanRow(v))
	}
	for _, d := range devices {
		snap.Inventory = append(snap.Inventory, model.InventoryRow{
			RubricID: d.RubricID,
			SuffixID: d.SuffixID,
			Category: d.Category,
			Status:   d.State.String(),
		})
	}
	for _, v := range history {
		snap.History = append(snap.History, s.historyRow(v))
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"on_loan":   len(snap.OnLoan),
		"inventory": len(snap.Inventory),
		"history":   len(snap.History),
	}), "snapshot.exported")

	return snap, nil
}

// History returns every loan as formatted history rows
func (s *ReportService) History(ctx context.Context) ([]model.HistoryRow, error) {
	history, err := s.ledger.ListHistory(ctx)
	if err != nil {
		return nil, errors.DatabaseError("failed to retrieve loan history", err)
	}
	rows := make([]model.HistoryRow, 0, len(history))
	for _, v := range history {
		rows = append(rows, s.historyRow(v))
	}
	return rows, nil
}

func (s *ReportService) onLoanRow(v model.LoanView) model.OnLoanRow {
	date, clock := formatStamp(v.Loan.LoanedAt, s.loc)
	return model.OnLoanRow{
		Label:    v.Loan.DeviceLabel(),
		RubricID: v.Loan.DeviceRubricID,
		SuffixID: v.Loan.DeviceSuffixID,
		Category: v.Loan.DeviceCategory,
		Borrower: v.Borrower.FullName(),
		Email:    v.Borrower.Email,
		LoanDate: date,
		LoanTime: clock,
	}
}

func (s *ReportService) historyRow(v model.LoanView) model.HistoryRow {
	loanDate, loanTime := formatStamp(v.Loan.LoanedAt, s.loc)
	returnDate, returnTime := model.NotReturned, model.NotReturned
	if v.Loan.ReturnedAt != nil {
		returnDate, returnTime = formatStamp(*v.Loan.ReturnedAt, s.loc)
	}
	return model.HistoryRow{
		LoanID:     v.Loan.ID,
		Label:      v.Loan.DeviceLabel(),
		RubricID:   v.Loan.DeviceRubricID,
		SuffixID:   v.Loan.DeviceSuffixID,
		Category:   v.Loan.DeviceCategory,
		Borrower:   v.Borrower.FullName(),
		Email:      v.Borrower.Email,
		LoanDate:   loanDate,
		LoanTime:   loanTime,
		ReturnDate: returnDate,
		ReturnTime: returnTime,
		Status:     v.Loan.Status(),
	}
}

func formatStamp(t time.Time, loc *time.Location) (string, string) {
	t = t.In(loc)
	return t.Format(model.DateLayout), t.Format(model.TimeLayout)
}

// parseStamp reads a date and time pair written by formatStamp
func parseStamp(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, date+" "+clock, loc)
}
