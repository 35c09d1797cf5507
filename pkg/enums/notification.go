package enums

import "slices"

// NotificationType classifies staff-facing notifications.
type NotificationType string

const (
	NotificationTypePaymentAttention NotificationType = "payment_attention"
	NotificationTypePaymentFailed    NotificationType = "payment_failed"
	NotificationTypeRefundIssued     NotificationType = "refund_issued"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePaymentAttention,
	NotificationTypePaymentFailed,
	NotificationTypeRefundIssued,
}

func (n NotificationType) String() string {
	return string(n)
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", value, validNotificationTypes)
}
