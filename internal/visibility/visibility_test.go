package visibility

import (
	"errors"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuetracker/internal/models"
	contextutils "issuetracker/internal/utils"
)

var (
	student = Actor{ID: 10, Role: models.RoleStudent, Cohort: "2024-fall"}
	mentor  = Actor{ID: 20, Role: models.RoleMentor, Cohort: "2024-fall"}
	admin   = Actor{ID: 30, Role: models.RoleAdmin}
)

func toSQL(t *testing.T, s sq.Sqlizer) (string, []interface{}) {
	t.Helper()
	query, args, err := s.ToSql()
	require.NoError(t, err)
	return query, args
}

func TestPredicate_Issue(t *testing.T) {
	tests := []struct {
		name  string
		actor Actor
		sql   string
		args  []interface{}
	}{
		{"student sees own reports", student, "i.reported_by = ?", []interface{}{int64(10)}},
		{"mentor sees cohort", mentor, "i.cohort = ?", []interface{}{"2024-fall"}},
		{"admin unrestricted", admin, "(1=1)", []interface{}{}},
		{"unknown role sees nothing", Actor{ID: 1, Role: "guest"}, "FALSE", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := toSQL(t, Predicate(tt.actor, KindIssue))
			assert.Equal(t, tt.sql, query)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestPredicate_Companions(t *testing.T) {
	query, args := toSQL(t, Predicate(student, KindComment))
	assert.Equal(t, "c.issue_id IN (SELECT id FROM issues WHERE reported_by = ?)", query)
	assert.Equal(t, []interface{}{int64(10)}, args)

	query, args = toSQL(t, Predicate(mentor, KindHistory))
	assert.Equal(t, "h.issue_id IN (SELECT id FROM issues WHERE cohort = ?)", query)
	assert.Equal(t, []interface{}{"2024-fall"}, args)

	query, _ = toSQL(t, Predicate(mentor, KindFeedback))
	assert.Contains(t, query, "f.issue_id IN")
}

func TestPredicate_AttachmentUploaderAsymmetry(t *testing.T) {
	query, args := toSQL(t, Predicate(student, KindAttachment))
	assert.Equal(t, "(a.issue_id IN (SELECT id FROM issues WHERE reported_by = ?) OR a.uploaded_by = ?)", query)
	assert.Equal(t, []interface{}{int64(10), int64(10)}, args)

	// mentors get the cohort rule only
	query, _ = toSQL(t, Predicate(mentor, KindAttachment))
	assert.NotContains(t, query, "uploaded_by")
}

func TestPredicate_NotificationsWithoutIssue(t *testing.T) {
	query, _ := toSQL(t, Predicate(student, KindNotification))
	assert.Equal(t, "(n.issue_id IS NULL OR n.issue_id IN (SELECT id FROM issues WHERE reported_by = ?))", query)
}

func TestScope_FiltersCannotWidenRestriction(t *testing.T) {
	// a caller filter on reported_by for someone else is ANDed, not substituted
	scope := Scope(student, KindIssue, sq.Eq{"i.reported_by": int64(99)}, nil, sq.Eq{"i.status": "open"})
	query, args := toSQL(t, scope)
	assert.Equal(t, "(i.reported_by = ? AND i.reported_by = ? AND i.status = ?)", query)
	assert.Equal(t, []interface{}{int64(10), int64(99), "open"}, args)

	scope = Scope(admin, KindIssue)
	query, _ = toSQL(t, scope)
	assert.Equal(t, "((1=1))", query)
}

func TestCanSee(t *testing.T) {
	own := &models.Issue{ReportedBy: 10, Cohort: "2024-fall"}
	other := &models.Issue{ReportedBy: 11, Cohort: "2024-fall"}
	otherCohort := &models.Issue{ReportedBy: 12, Cohort: "2025-spring"}

	for _, tc := range []struct {
		actor Actor
		issue *models.Issue
		want  bool
	}{
		{student, own, true},
		{student, other, false},
		{mentor, other, true},
		{mentor, otherCohort, false},
		{admin, otherCohort, true},
		{Actor{Role: "guest"}, own, false},
	} {
		assert.Equal(t, tc.want, CanSee(tc.actor, tc.issue), "%v on %+v", tc.actor.Role, tc.issue)
	}
}

func TestCanSeeAttachment(t *testing.T) {
	other := &models.Issue{ReportedBy: 11, Cohort: "2025-spring"}
	assert.True(t, CanSeeAttachment(student, other, student.ID))
	assert.False(t, CanSeeAttachment(student, other, 11))
	assert.False(t, CanSeeAttachment(mentor, other, mentor.ID))
}

func TestCanTarget(t *testing.T) {
	other := &models.Issue{ReportedBy: 11, Cohort: "2025-spring"}

	err := CanTarget(student, other, "attach files to")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextutils.ErrForbidden))
	assert.Contains(t, err.Error(), "You can only attach files to your own issues.")

	err = CanTarget(mentor, other, "comment on")
	assert.Contains(t, err.Error(), "You can only comment on issues in your cohort.")

	assert.NoError(t, CanTarget(admin, other, "comment on"))
}
