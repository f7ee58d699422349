// Package tracker holds the issue transition rules: diffing an issue
// before and after a write, stamping the derived timestamps, and planning
// the history rows and notifications a write produces.
//
// Nothing here touches the database. Services load the old snapshot inside
// their transaction, call into this package, and persist what it returns.
package tracker

import (
	"database/sql"
	"time"

	"issuetracker/internal/models"
)

// StatusChange is an observed status value change
type StatusChange struct {
	From models.IssueStatus
	To   models.IssueStatus
}

// AssignmentChange is an observed assignee change. To may be null.
type AssignmentChange struct {
	From sql.NullInt64
	To   sql.NullInt64
}

// Changeset is the diff between two snapshots of one issue. A nil member
// means that field did not change.
type Changeset struct {
	Status     *StatusChange
	Assignment *AssignmentChange
}

// IsEmpty is true when the write changed nothing the engine reacts to
func (c Changeset) IsEmpty() bool {
	return c.Status == nil && c.Assignment == nil
}

// Diff compares two snapshots of the same issue
func Diff(before, after *models.Issue) Changeset {
	var cs Changeset
	if before.Status != after.Status {
		cs.Status = &StatusChange{From: before.Status, To: after.Status}
	}
	if !models.SameNullInt64(before.AssignedTo, after.AssignedTo) {
		cs.Assignment = &AssignmentChange{From: before.AssignedTo, To: after.AssignedTo}
	}
	return cs
}

// Patch is the writable subset of an issue. A nil field is left alone;
// AssignedTo pointing at an invalid NullInt64 unassigns.
type Patch struct {
	Status     *models.IssueStatus
	AssignedTo *sql.NullInt64
}

// Transition applies patch to before and returns the new snapshot with its
// derived timestamps stamped, plus the changeset that produced it.
func Transition(before models.Issue, patch Patch, now time.Time) (models.Issue, Changeset) {
	after := before
	if patch.Status != nil {
		after.Status = *patch.Status
	}
	if patch.AssignedTo != nil {
		after.AssignedTo = *patch.AssignedTo
	}

	cs := Diff(&before, &after)
	Stamp(&after, cs, now)
	return after, cs
}

// Stamp sets updated_at and the status timestamps for cs.
// first_response_at latches on the first move into in_progress and is never
// cleared; resolved_at is overwritten on every move into resolved.
func Stamp(issue *models.Issue, cs Changeset, now time.Time) {
	issue.UpdatedAt = now
	if cs.Status == nil {
		return
	}
	switch cs.Status.To {
	case models.StatusInProgress:
		if !issue.FirstResponseAt.Valid {
			issue.FirstResponseAt = sql.NullTime{Time: now, Valid: true}
		}
	case models.StatusResolved:
		issue.ResolvedAt = sql.NullTime{Time: now, Valid: true}
	}
}

// PrepareCreate forces the server-owned fields of a new issue. Whatever the
// caller put in status, reporter or the timestamps is discarded.
func PrepareCreate(issue *models.Issue, reporterID int64, now time.Time) {
	issue.ID = 0
	issue.Status = models.StatusOpen
	issue.ReportedBy = reporterID
	if issue.Urgency == "" {
		issue.Urgency = models.UrgencyMedium
	}
	issue.CreatedAt = now
	issue.UpdatedAt = now
	issue.FirstResponseAt = sql.NullTime{}
	issue.ResolvedAt = sql.NullTime{}
}
