package tracker

import (
	"database/sql"
	"fmt"

	"issuetracker/internal/models"
)

// HistoryDraft is an IssueHistory row waiting to be inserted
type HistoryDraft struct {
	IssueID     int64
	PerformedBy int64
	Action      string
}

// NotificationDraft is a Notification row waiting to be inserted
type NotificationDraft struct {
	RecipientID int64
	IssueID     sql.NullInt64
	Type        models.NotificationType
	Message     string
}

// Effects is everything a single write must persist besides the entity itself
type Effects struct {
	History       []HistoryDraft
	Notifications []NotificationDraft
}

// IsEmpty reports whether there is nothing to persist
func (e Effects) IsEmpty() bool {
	return len(e.History) == 0 && len(e.Notifications) == 0
}

// Audience is the set of staff who hear about cohort-wide events on an issue
type Audience struct {
	CohortMentors []int64
	Admins        []int64
}

func issueRef(issue *models.Issue) sql.NullInt64 {
	return sql.NullInt64{Int64: issue.ID, Valid: true}
}

// notifier accumulates drafts, skipping a second draft of the same type to
// the same recipient.
type notifier struct {
	issue *models.Issue
	seen  map[string]struct{}
	out   []NotificationDraft
}

func newNotifier(issue *models.Issue) *notifier {
	return &notifier{issue: issue, seen: map[string]struct{}{}}
}

func (n *notifier) add(recipient int64, typ models.NotificationType, message string) {
	key := fmt.Sprintf("%d/%s", recipient, typ)
	if _, dup := n.seen[key]; dup {
		return
	}
	n.seen[key] = struct{}{}
	n.out = append(n.out, NotificationDraft{
		RecipientID: recipient,
		IssueID:     issueRef(n.issue),
		Type:        typ,
		Message:     message,
	})
}

func (n *notifier) addAll(recipients []int64, typ models.NotificationType, message string) {
	for _, r := range recipients {
		n.add(r, typ, message)
	}
}

// PlanCreate notifies every cohort mentor and every admin of a new issue
func PlanCreate(issue *models.Issue, audience Audience) Effects {
	n := newNotifier(issue)
	msg := "New issue reported: " + issue.Title
	n.addAll(audience.CohortMentors, models.NotificationIssueCreated, msg)
	n.addAll(audience.Admins, models.NotificationIssueCreated, msg)
	return Effects{Notifications: n.out}
}

// PlanUpdate turns a changeset into history rows and notifications.
// assigneeName is the username of the new assignee, empty when unassigned.
// An empty changeset plans nothing.
func PlanUpdate(issue *models.Issue, cs Changeset, actorID int64, assigneeName string, audience Audience) Effects {
	var effects Effects
	if cs.IsEmpty() {
		return effects
	}
	n := newNotifier(issue)

	if cs.Status != nil {
		effects.History = append(effects.History, HistoryDraft{
			IssueID:     issue.ID,
			PerformedBy: actorID,
			Action:      fmt.Sprintf("Changed status from '%s' to '%s'", cs.Status.From.Display(), cs.Status.To.Display()),
		})

		n.add(issue.ReportedBy, models.NotificationIssueUpdated, "Issue status changed to: "+cs.Status.To.Display())

		if cs.Status.To == models.StatusResolved {
			msg := "Issue resolved: " + issue.Title
			n.addAll(audience.CohortMentors, models.NotificationIssueResolved, msg)
			n.addAll(audience.Admins, models.NotificationIssueResolved, msg)
		}
	}

	if cs.Assignment != nil {
		name := assigneeName
		if !cs.Assignment.To.Valid || name == "" {
			name = "no one"
		}
		effects.History = append(effects.History, HistoryDraft{
			IssueID:     issue.ID,
			PerformedBy: actorID,
			Action:      "Assigned issue to " + name,
		})
		if cs.Assignment.To.Valid {
			n.add(cs.Assignment.To.Int64, models.NotificationIssueAssigned, "You have been assigned to: "+issue.Title)
		}
	}

	effects.Notifications = n.out
	return effects
}

// PlanComment notifies the reporter and the assignee of a new comment. The
// commenter is never notified and nobody gets two.
func PlanComment(issue *models.Issue, commenterID int64) Effects {
	n := newNotifier(issue)
	if issue.ReportedBy != commenterID {
		n.add(issue.ReportedBy, models.NotificationCommentAdded, "New comment on your issue: "+issue.Title)
	}
	if issue.AssignedTo.Valid {
		assignee := issue.AssignedTo.Int64
		if assignee != commenterID && assignee != issue.ReportedBy {
			n.add(assignee, models.NotificationCommentAdded, "New comment on issue: "+issue.Title)
		}
	}
	return Effects{Notifications: n.out}
}

// PlanFeedback notifies the assignee and every cohort mentor other than
// the assignee.
func PlanFeedback(issue *models.Issue, audience Audience) Effects {
	n := newNotifier(issue)
	msg := "Feedback received on issue: " + issue.Title
	if issue.AssignedTo.Valid {
		n.add(issue.AssignedTo.Int64, models.NotificationFeedbackAdded, msg)
	}
	n.addAll(audience.CohortMentors, models.NotificationFeedbackAdded, msg)
	return Effects{Notifications: n.out}
}
