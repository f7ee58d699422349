package models

import (
	"database/sql"
	"time"
)

// NotificationType names the event a notification was emitted for
type NotificationType string

const (
	NotificationIssueCreated  NotificationType = "issue_created"
	NotificationIssueAssigned NotificationType = "issue_assigned"
	NotificationIssueUpdated  NotificationType = "issue_updated"
	NotificationIssueResolved NotificationType = "issue_resolved"
	NotificationCommentAdded  NotificationType = "comment_added"
	NotificationFeedbackAdded NotificationType = "feedback_added"
)

var notificationDisplay = map[NotificationType]string{
	NotificationIssueCreated:  "Issue Created",
	NotificationIssueAssigned: "Issue Assigned",
	NotificationIssueUpdated:  "Issue Updated",
	NotificationIssueResolved: "Issue Resolved",
	NotificationCommentAdded:  "Comment Added",
	NotificationFeedbackAdded: "Feedback Added",
}

func (t NotificationType) Valid() bool {
	_, ok := notificationDisplay[t]
	return ok
}

func (t NotificationType) Display() string {
	if d, ok := notificationDisplay[t]; ok {
		return d
	}
	return string(t)
}

// Notification is one message for one recipient. Only IsRead ever changes.
type Notification struct {
	ID               int64            `json:"id"`
	RecipientID      int64            `json:"recipient"`
	IssueID          sql.NullInt64    `json:"issue"`
	NotificationType NotificationType `json:"notification_type"`
	Message          string           `json:"message"`
	IsRead           bool             `json:"is_read"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NotificationWithIssue carries the issue fields shown next to a notification
type NotificationWithIssue struct {
	Notification
	IssueTitle  sql.NullString
	IssueStatus sql.NullString
}
