package service

import (
	"context"
	"device-loan-api/internal/model"
	"device-loan-api/internal/repository"
	"device-loan-api/pkg/errors"
	"device-loan-api/pkg/logger"
	"device-loan-api/pkg/metrics"
	"time"
)

// NotificationService delivers overdue reminders to borrowers
type NotificationService interface {
	SendOverdueReminder(ctx context.Context, reminder OverdueReminder) error
}

// OverdueReminder is one reminder for one overdue loan
type OverdueReminder struct {
	LoanID       int64
	Recipient    string
	BorrowerName string
	DeviceLabel  string
	Category     string
	LoanDate     string
	DaysOut      int
}

// ReminderService finds overdue loans and sends their reminders
type ReminderService struct {
	ledger   repository.LedgerRepository
	notifier NotificationService
	period   time.Duration
	loc      *time.Location
	metrics  *metrics.LedgerMetrics
	logger   *logger.Logger
	now      func() time.Time
}

// NewReminderService creates a reminder service. A loan is overdue once it
// has been open longer than period. notifier may be nil when no webhook is
// configured; listing still works but NotifyOverdue fails.
func NewReminderService(ledger repository.LedgerRepository, notifier NotificationService, period time.Duration, loc *time.Location, m *metrics.LedgerMetrics, log *logger.Logger) *ReminderService {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReminderService{
		ledger:   ledger,
		notifier: notifier,
		period:   period,
		loc:      loc,
		metrics:  m,
		logger:   log,
		now:      time.Now,
	}
}

// SetClock replaces the time source used to compute the overdue cutoff
func (s *ReminderService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Overdue lists open loans older than the loan period, oldest first
func (s *ReminderService) Overdue(ctx context.Context) ([]model.OverdueLoan, error) {
	now := s.now()
	views, err := s.ledger.ListOverdue(ctx, now.Add(-s.period))
	if err != nil {
		return nil, errors.DatabaseError("failed to retrieve overdue loans", err)
	}
	out := make([]model.OverdueLoan, 0, len(views))
	for _, v := range views {
		out = append(out, model.OverdueLoan{
			LoanView: v,
			DaysOut:  int(now.Sub(v.Loan.LoanedAt) / (24 * time.Hour)),
		})
	}
	return out, nil
}

// NotifyOverdue sends one reminder per overdue loan. A failed send is
// counted and logged; the run continues with the next loan.
func (s *ReminderService) NotifyOverdue(ctx context.Context) (*model.ReminderResult, error) {
	if s.notifier == nil {
		return nil, errors.NewAppError(errors.ErrorCodeExternalService, "notification service is not configured")
	}

	overdue, err := s.Overdue(ctx)
	if err != nil {
		return nil, err
	}

	result := &model.ReminderResult{Overdue: len(overdue)}
	for _, o := range overdue {
		if ctx.Err() != nil {
			return result, errors.TimeoutError("overdue reminders")
		}

		date, _ := formatStamp(o.Loan.LoanedAt, s.loc)
		reminder := OverdueReminder{
			LoanID:       o.Loan.ID,
			Recipient:    o.Borrower.Email,
			BorrowerName: o.Borrower.FullName(),
			DeviceLabel:  o.Loan.DeviceLabel(),
			Category:     o.Loan.DeviceCategory,
			LoanDate:     date,
			DaysOut:      o.DaysOut,
		}
		loanCtx := s.logger.WithFields(ctx, map[string]any{"loan_id": o.Loan.ID, "recipient": o.Borrower.Email})

		if err := s.notifier.SendOverdueReminder(loanCtx, reminder); err != nil {
			result.Failed++
			s.metrics.IncReminder("failed")
			s.logger.Error(loanCtx, "reminder.send_failed", err)
			continue
		}
		result.Sent++
		s.metrics.IncReminder("sent")
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"overdue": result.Overdue,
		"sent":    result.Sent,
		"failed":  result.Failed,
	}), "reminder.run_complete")

	return result, nil
}
