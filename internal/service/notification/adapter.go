package notification

import (
	"context"
	"device-loan-api/internal/notification"
	"device-loan-api/internal/service"
	"device-loan-api/pkg/errors"
	"fmt"
	"strconv"
)

const notificationTypeLoanOverdue = "loan_overdue"

// ServiceAdapter adapts the notification client to the service layer interface
type ServiceAdapter struct {
	client notification.Notifier
}

// NewServiceAdapter creates a new notification service adapter
func NewServiceAdapter(client notification.Notifier) *ServiceAdapter {
	return &ServiceAdapter{client: client}
}

// SendOverdueReminder turns an overdue reminder into a webhook notification
// addressed to the borrower.
func (a *ServiceAdapter) SendOverdueReminder(ctx context.Context, reminder service.OverdueReminder) error {
	err := a.client.SendNotificationWithContext(ctx, notification.Notification{
		Level:     reminderLevel(reminder.DaysOut),
		Recipient: reminder.Recipient,
		Subject:   fmt.Sprintf("Overdue device loan: %s", reminder.DeviceLabel),
		Message: fmt.Sprintf("Hello %s, the %s %s you borrowed on %s is %d days out. Please return it as soon as possible.",
			reminder.BorrowerName, reminder.Category, reminder.DeviceLabel, reminder.LoanDate, reminder.DaysOut),
		Metadata: map[string]string{
			"notification_type": notificationTypeLoanOverdue,
			"loan_id":           strconv.FormatInt(reminder.LoanID, 10),
			"device":            reminder.DeviceLabel,
			"category":          reminder.Category,
			"days_out":          strconv.Itoa(reminder.DaysOut),
		},
	})
	if err != nil {
		return errors.ExternalServiceError("notifier", err)
	}
	return nil
}

// reminderLevel escalates reminders for loans out more than four weeks
func reminderLevel(daysOut int) notification.NotificationLevel {
	if daysOut > 28 {
		return notification.LevelError
	}
	return notification.LevelWarning
}
