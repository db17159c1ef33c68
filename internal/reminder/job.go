package reminder

import (
	"context"
	"device-loan-api/internal/model"
	"fmt"
)

// Job represents a scheduled task that runs inside the reminder worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// OverdueNotifier sends reminders for every overdue loan
type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context) (*model.ReminderResult, error)
}

// OverdueReminderJob mails every borrower holding a device past the loan period.
type OverdueReminderJob struct {
	notifier OverdueNotifier
}

// NewOverdueReminderJob builds the overdue reminder job.
func NewOverdueReminderJob(notifier OverdueNotifier) (*OverdueReminderJob, error) {
	if notifier == nil {
		return nil, fmt.Errorf("overdue notifier required")
	}
	return &OverdueReminderJob{notifier: notifier}, nil
}

func (j *OverdueReminderJob) Name() string { return "overdue-reminders" }

// Run fails when the run itself fails or when every reminder failed. A run
// with some delivered reminders succeeds; the failures are logged per loan.
func (j *OverdueReminderJob) Run(ctx context.Context) error {
	result, err := j.notifier.NotifyOverdue(ctx)
	if err != nil {
		return fmt.Errorf("notify overdue: %w", err)
	}
	if result != nil && result.Failed > 0 && result.Sent == 0 {
		return fmt.Errorf("all %d overdue reminders failed", result.Failed)
	}
	return nil
}
