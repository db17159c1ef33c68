package service

import (
	"context"
	"device-loan-api/internal/model"
	"device-loan-api/internal/repository"
	"device-loan-api/pkg/errors"
	"device-loan-api/pkg/logger"
	"device-loan-api/pkg/metrics"
	"device-loan-api/pkg/validation"
	stderrors "errors"
	"time"
)

// LedgerService applies the borrowing rules on top of the ledger repository
type LedgerService struct {
	devices        repository.DeviceRepository
	ledger         repository.LedgerRepository
	allowedDomains []string
	metrics        *metrics.LedgerMetrics
	logger         *logger.Logger
	now            func() time.Time
}

// NewLedgerService creates a new ledger service. allowedDomains restricts
// borrower emails when non-empty.
func NewLedgerService(devices repository.DeviceRepository, ledger repository.LedgerRepository, allowedDomains []string, m *metrics.LedgerMetrics, log *logger.Logger) *LedgerService {
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerService{
		devices:        devices,
		ledger:         ledger,
		allowedDomains: allowedDomains,
		metrics:        m,
		logger:         log,
		now:            time.Now,
	}
}

// SetClock replaces the time source used to stamp loans and returns
func (s *LedgerService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListAvailable returns devices that can be borrowed, optionally in one category
func (s *LedgerService) ListAvailable(ctx context.Context, category string) ([]model.Device, error) {
	devices, err := s.devices.ListAvailableDevices(ctx, validation.NormalizeCategory(category))
	if err != nil {
		return nil, errors.DatabaseError("failed to retrieve available devices", err)
	}
	return devices, nil
}

// SubmitLoan validates the request and checks out every available device in
// it. Devices that are missing or already on loan are reported per device.
// When none could be loaned nothing is written and a conflict is returned.
func (s *LedgerService) SubmitLoan(ctx context.Context, req model.LoanRequest) (*model.LoanResult, error) {
	fieldErrs := validation.RequireTrimmed(map[string]*string{
		"first_name": &req.FirstName,
		"last_name":  &req.LastName,
	})
	if fieldErrs == nil {
		fieldErrs = map[string]string{}
	}

	req.Email = validation.NormalizeEmail(req.Email)
	if err := validation.ValidateEmail(req.Email, s.allowedDomains); err != nil {
		fieldErrs["email"] = err.Error()
	}

	ids := validation.UniqueIDs(req.DeviceIDs)
	switch {
	case len(ids) == 0:
		fieldErrs["device_ids"] = "at least one device is required"
	case hasNonPositive(ids):
		fieldErrs["device_ids"] = "device ids must be positive"
	}

	if len(fieldErrs) > 0 {
		return nil, errors.ValidationErrorWithDetails("Validation failed", fieldErrs)
	}

	borrower := model.Borrower{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName}
	ctx = s.logger.WithFields(ctx, map[string]any{"borrower": borrower.Email, "devices": len(ids)})

	result, err := s.ledger.Checkout(ctx, borrower, ids, s.now())
	if err != nil {
		var checkoutErr *repository.CheckoutError
		if stderrors.As(err, &checkoutErr) {
			s.countRejections(checkoutErr.Outcomes)
			s.logger.Info(ctx, "loan.rejected")
			return nil, errors.ConflictError("none of the requested devices could be loaned").
				WithDetail("outcomes", checkoutErr.Outcomes)
		}
		return nil, errors.DatabaseError("failed to record loan", err)
	}

	s.metrics.AddLoans(result.Loaned)
	s.countRejections(result.Outcomes)
	s.logger.Info(s.logger.WithField(ctx, "loaned", result.Loaned), "loan.created")

	return result, nil
}

func (s *LedgerService) countRejections(outcomes []model.DeviceOutcome) {
	for _, o := range outcomes {
		if o.Outcome != model.OutcomeLoaned {
			s.metrics.IncRejection(o.Outcome)
		}
	}
}

func hasNonPositive(ids []int64) bool {
	for _, id := range ids {
		if id <= 0 {
			return true
		}
	}
	return false
}

// ListOpenLoans returns loans that have not been returned
func (s *LedgerService) ListOpenLoans(ctx context.Context, category string) ([]model.LoanView, error) {
	loans, err := s.ledger.ListOpenLoans(ctx, validation.NormalizeCategory(category))
	if err != nil {
		return nil, errors.DatabaseError("failed to retrieve open loans", err)
	}
	return loans, nil
}

// SubmitReturn closes the loan named by id, or the open loans of the devices
// a borrower holds. A request that matches no open loan changes nothing.
func (s *LedgerService) SubmitReturn(ctx context.Context, req model.ReturnRequest) (*model.ReturnResult, error) {
	req.Email = validation.NormalizeEmail(req.Email)
	at := s.now()

	var (
		result *model.ReturnResult
		err    error
	)
	if req.LoanID != nil {
		if req.Email != "" || req.DeviceID != nil || len(req.DeviceIDs) > 0 {
			return nil, errors.ValidationError("provide either loan_id or email and device ids, not both")
		}
		if *req.LoanID <= 0 {
			return nil, errors.InvalidParameterError("loan_id")
		}
		var loan *model.Loan
		loan, err = s.ledger.ReturnByLoanID(ctx, *req.LoanID, at)
		if loan != nil {
			result = &model.ReturnResult{Loans: []model.Loan{*loan}}
		}
	} else {
		ids := req.DeviceIDs
		if req.DeviceID != nil {
			ids = append([]int64{*req.DeviceID}, ids...)
		}
		ids = validation.UniqueIDs(ids)

		fieldErrs := map[string]string{}
		if err := validation.ValidateEmail(req.Email, nil); err != nil {
			fieldErrs["email"] = err.Error()
		}
		switch {
		case len(ids) == 0:
			fieldErrs["device_ids"] = "at least one device is required"
		case hasNonPositive(ids):
			fieldErrs["device_ids"] = "device ids must be positive"
		}
		if len(fieldErrs) > 0 {
			return nil, errors.ValidationErrorWithDetails("Validation failed", fieldErrs)
		}

		ctx = s.logger.WithFields(ctx, map[string]any{"borrower": req.Email, "devices": len(ids)})
		result, err = s.ledger.ReturnByBorrowerDevices(ctx, req.Email, ids, at)
	}

	if err != nil {
		var returnErr *repository.ReturnError
		if stderrors.As(err, &returnErr) {
			s.logger.Info(ctx, "return.rejected")
			return nil, errors.ConflictError("no open loan matches the request").
				WithDetail("outcomes", returnErr.Outcomes)
		}
		if stderrors.Is(err, repository.ErrNoOpenLoan) {
			return nil, errors.ConflictError("no open loan matches the request")
		}
		return nil, errors.DatabaseError("failed to record return", err)
	}

	s.metrics.AddReturns(len(result.Loans))
	for _, l := range result.Loans {
		s.logger.Info(s.logger.WithFields(ctx, map[string]any{"loan_id": l.ID, "device": l.DeviceLabel()}), "loan.returned")
	}

	return result, nil
}

// BorrowerLoans returns the open loans held by the borrower with this email
func (s *LedgerService) BorrowerLoans(ctx context.Context, email string) ([]model.LoanView, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email, nil); err != nil {
		return nil, errors.ValidationErrorWithDetails("Validation failed", map[string]string{"email": err.Error()})
	}
	loans, err := s.ledger.ListBorrowerOpenLoans(ctx, email)
	if err != nil {
		return nil, errors.DatabaseError("failed to retrieve borrower loans", err)
	}
	return loans, nil
}
