// Package visibility decides which issues, and which rows hanging off an
// issue, an actor may see or target.
//
// The same role rule is expressed twice: as a squirrel predicate that list
// and detail queries AND into their WHERE clause before any caller filter,
// ordering or paging, and as an in-memory check for rows already loaded.
//
// Queries that use the predicates must alias their tables the way the
// constants below name them.
package visibility

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"issuetracker/internal/models"
	contextutils "issuetracker/internal/utils"
)

// Table aliases the predicates refer to
const (
	IssueAlias        = "i"
	CommentAlias      = "c"
	AttachmentAlias   = "a"
	NotificationAlias = "n"
	FeedbackAlias     = "f"
	HistoryAlias      = "h"
)

// Actor is the authenticated identity a decision is made for
type Actor struct {
	ID     int64
	Role   models.Role
	Cohort string
}

// ActorFromUser builds an Actor from a loaded user
func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role, Cohort: u.Cohort}
}

// Kind is the collection a predicate is built for
type Kind int

const (
	KindIssue Kind = iota
	KindComment
	KindAttachment
	KindNotification
	KindFeedback
	KindHistory
)

func (k Kind) String() string {
	switch k {
	case KindIssue:
		return "issue"
	case KindComment:
		return "comment"
	case KindAttachment:
		return "attachment"
	case KindNotification:
		return "notification"
	case KindFeedback:
		return "feedback"
	case KindHistory:
		return "history"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) alias() string {
	switch k {
	case KindComment:
		return CommentAlias
	case KindAttachment:
		return AttachmentAlias
	case KindNotification:
		return NotificationAlias
	case KindFeedback:
		return FeedbackAlias
	case KindHistory:
		return HistoryAlias
	}
	return IssueAlias
}

// Predicate returns the role restriction for kind. Admins get an always-true
// predicate; an unknown role gets an always-false one.
func Predicate(actor Actor, kind Kind) sq.Sqlizer {
	if actor.Role == models.RoleAdmin {
		return sq.And{}
	}

	var owner sq.Sqlizer
	switch actor.Role {
	case models.RoleStudent:
		if kind == KindIssue {
			return sq.Eq{IssueAlias + ".reported_by": actor.ID}
		}
		owner = sq.Expr(kind.alias()+".issue_id IN (SELECT id FROM issues WHERE reported_by = ?)", actor.ID)
	case models.RoleMentor:
		if kind == KindIssue {
			return sq.Eq{IssueAlias + ".cohort": actor.Cohort}
		}
		owner = sq.Expr(kind.alias()+".issue_id IN (SELECT id FROM issues WHERE cohort = ?)", actor.Cohort)
	default:
		return sq.Expr("FALSE")
	}

	switch kind {
	case KindAttachment:
		if actor.Role == models.RoleStudent {
			return sq.Or{owner, sq.Eq{AttachmentAlias + ".uploaded_by": actor.ID}}
		}
	case KindNotification:
		// notifications without an issue are only scoped by recipient
		return sq.Or{sq.Eq{NotificationAlias + ".issue_id": nil}, owner}
	}
	return owner
}

// Scope ANDs the role restriction with caller supplied filters. The
// restriction is always the first conjunct and cannot be dropped by a filter.
func Scope(actor Actor, kind Kind, filters ...sq.Sqlizer) sq.And {
	scope := sq.And{Predicate(actor, kind)}
	for _, f := range filters {
		if f != nil {
			scope = append(scope, f)
		}
	}
	return scope
}

// CanSee reports whether actor may read issue.
func CanSee(actor Actor, issue *models.Issue) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleMentor:
		return issue.Cohort == actor.Cohort
	case models.RoleStudent:
		return issue.ReportedBy == actor.ID
	}
	return false
}

// CanSeeAttachment extends CanSee with the student's own uploads
func CanSeeAttachment(actor Actor, issue *models.Issue, uploadedBy int64) bool {
	if actor.Role == models.RoleStudent && uploadedBy == actor.ID {
		return true
	}
	return CanSee(actor, issue)
}

// CanTarget is the write-side check for attaching a companion to an existing
// issue. action completes "You can only ..." in the error message, for
// example "attach files to" or "comment on".
func CanTarget(actor Actor, issue *models.Issue, action string) error {
	if CanSee(actor, issue) {
		return nil
	}
	switch actor.Role {
	case models.RoleStudent:
		return contextutils.Forbiddenf("You can only %s your own issues.", action)
	case models.RoleMentor:
		return contextutils.Forbiddenf("You can only %s issues in your cohort.", action)
	}
	return contextutils.Forbiddenf("You do not have permission to %s this issue.", action)
}
