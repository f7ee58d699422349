package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/tracker"
	contextutils "issuetracker/internal/utils"

	sq "github.com/Masterminds/squirrel"
)

// psql builds PostgreSQL statements with $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PageRequest selects one page of a list. Page is 1-based.
type PageRequest struct {
	Page     int
	PageSize int
}

func (p PageRequest) apply(b sq.SelectBuilder) sq.SelectBuilder {
	if p.PageSize <= 0 {
		return b
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return b.Limit(uint64(p.PageSize)).Offset(uint64((page - 1) * p.PageSize))
}

// ordering maps public ordering keys to SQL columns
type ordering map[string]string

// resolve turns "-created_at" style input into an ORDER BY clause, falling
// back to def for unknown keys. The id tiebreak keeps pages stable.
func (o ordering) resolve(requested, def, idColumn string) string {
	if requested == "" {
		requested = def
	}
	key := strings.TrimPrefix(requested, "-")
	column, ok := o[key]
	if !ok {
		return o.resolve(def, def, idColumn)
	}
	dir := "ASC"
	if strings.HasPrefix(requested, "-") {
		dir = "DESC"
	}
	return column + " " + dir + ", " + idColumn + " " + dir
}

// ilikeAny matches term against any of columns, case-insensitively
func ilikeAny(term string, columns ...string) sq.Sqlizer {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	or := sq.Or{}
	for _, c := range columns {
		or = append(or, sq.ILike{c: "%" + term + "%"})
	}
	return or
}

// count runs a COUNT(*) over from with the given conditions
func count(ctx context.Context, q querier, from string, where sq.Sqlizer) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From(from).Where(where).ToSql()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to build count query")
	}
	var total int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, contextutils.WrapError(err, "failed to count rows")
	}
	return total, nil
}

func int64Ptr(v int64) *int64 {
	return &v
}

// loadAudience returns every mentor of cohort and every admin. Deactivated
// accounts still receive rows so reactivation shows what they missed.
func loadAudience(ctx context.Context, q querier, cohort string) (tracker.Audience, error) {
	var audience tracker.Audience
	rows, err := q.QueryContext(ctx,
		`SELECT id, role FROM users WHERE role = 'admin' OR (role = 'mentor' AND cohort = $1) ORDER BY id`,
		cohort)
	if err != nil {
		return audience, contextutils.WrapError(err, "failed to load notification audience")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var role models.Role
		if err := rows.Scan(&id, &role); err != nil {
			return audience, contextutils.WrapError(err, "failed to scan notification audience")
		}
		if role == models.RoleAdmin {
			audience.Admins = append(audience.Admins, id)
		} else {
			audience.CohortMentors = append(audience.CohortMentors, id)
		}
	}
	if err := rows.Err(); err != nil {
		return audience, contextutils.WrapError(err, "failed to load notification audience")
	}
	return audience, nil
}

// applyEffects persists the history rows and notifications planned for a
// write. It runs inside the caller's transaction so the entity and its
// effects commit together.
func applyEffects(ctx context.Context, q querier, effects tracker.Effects) error {
	if len(effects.History) > 0 {
		insert := psql.Insert("issue_history").Columns("issue_id", "action", "performed_by", "timestamp")
		for _, h := range effects.History {
			insert = insert.Values(h.IssueID, h.Action, h.PerformedBy, sq.Expr("NOW()"))
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return contextutils.WrapError(err, "failed to build history insert")
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return contextutils.WrapError(err, "failed to write issue history")
		}
	}

	if len(effects.Notifications) > 0 {
		insert := psql.Insert("notifications").Columns("recipient_id", "issue_id", "notification_type", "message", "is_read", "created_at")
		for _, n := range effects.Notifications {
			insert = insert.Values(n.RecipientID, n.IssueID, string(n.Type), n.Message, false, sq.Expr("NOW()"))
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return contextutils.WrapError(err, "failed to build notification insert")
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return contextutils.WrapError(err, "failed to write notifications")
		}
	}
	return nil
}

// recordEffects reports planned notifications to the metrics pipeline
func recordEffects(ctx context.Context, effects tracker.Effects) {
	byType := map[models.NotificationType]int{}
	for _, n := range effects.Notifications {
		byType[n.Type]++
	}
	for typ, n := range byType {
		observability.RecordNotification(ctx, string(typ), n)
	}
}

// notFoundOnNoRows maps sql.ErrNoRows to a NotFound AppError
func notFoundOnNoRows(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return contextutils.NotFoundf("%s", message)
	}
	return err
}
