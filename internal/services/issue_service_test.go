package services

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"issuetracker/internal/models"
	"issuetracker/internal/tracker"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	student = visibility.Actor{ID: 10, Role: models.RoleStudent, Cohort: "2024-spring"}
	mentor  = visibility.Actor{ID: 20, Role: models.RoleMentor, Cohort: "2024-spring"}
	admin   = visibility.Actor{ID: 1, Role: models.RoleAdmin}
)

func newIssueService(db *sql.DB) *IssueService {
	s := NewIssueService(db, nopLogger())
	s.now = func() time.Time { return testNow }
	return s
}

func TestCreateIssue_ForcesOpenStatusAndReporter(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	mock.ExpectQuery(`SELECT course_id FROM projects WHERE id = \$1`).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO issues`).
		WithArgs("Checker rejects valid answer", "The checker fails on task 3.", models.CategoryCheckerError,
			models.UrgencyMedium, models.StatusOpen, "2024-spring", 2, int64(1), int64(3),
			sql.NullInt64{}, int64(10), sql.NullInt64{}, testNow, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(`SELECT id, role FROM users WHERE role = 'admin' OR \(role = 'mentor' AND cohort = \$1\)`).WithArgs("2024-spring").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}).AddRow(int64(1), "admin").AddRow(int64(20), "mentor"))
	mock.ExpectExec(`INSERT INTO notifications`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	expectDetailLoad(mock, openIssue())

	detail, err := s.CreateIssue(context.Background(), student, IssueInput{
		Title:       "Checker rejects valid answer",
		Description: "The checker fails on task 3.",
		Category:    models.CategoryCheckerError,
		WeekNumber:  2,
		CourseID:    1,
		ProjectID:   3,
		Status:      models.StatusResolved,
		ReportedBy:  99,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, detail.Status)
	assert.Equal(t, int64(10), detail.ReportedBy)
	assert.Equal(t, "student1", detail.Reporter.Username)
	assert.Nil(t, detail.Assignee)
	assert.Nil(t, detail.Feedback)
}

func TestCreateIssue_ProjectFromAnotherCourse(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	mock.ExpectQuery(`SELECT course_id FROM projects`).
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow(int64(2)))

	_, err := s.CreateIssue(context.Background(), student, IssueInput{
		Title: "t", Description: "d", Category: models.CategoryTypo, WeekNumber: 1, CourseID: 1, ProjectID: 3,
	})
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeValidationFailed, contextutils.GetErrorCode(err))
}

func TestCreateIssue_RejectsBadInputWithoutQuerying(t *testing.T) {
	db, _ := newMockDB(t)
	s := newIssueService(db)

	cases := map[string]IssueInput{
		"category":    {Title: "t", Description: "d", Category: "bogus", WeekNumber: 1, CourseID: 1, ProjectID: 1},
		"urgency":     {Title: "t", Description: "d", Category: models.CategoryTypo, Urgency: "urgent", WeekNumber: 1, CourseID: 1, ProjectID: 1},
		"week_number": {Title: "t", Description: "d", Category: models.CategoryTypo, WeekNumber: 0, CourseID: 1, ProjectID: 1},
		"title":       {Title: "   ", Description: "d", Category: models.CategoryTypo, WeekNumber: 1, CourseID: 1, ProjectID: 1},
		"description": {Title: "t", Description: " \n ", Category: models.CategoryTypo, WeekNumber: 1, CourseID: 1, ProjectID: 1},
		"course":      {Title: "t", Description: "d", Category: models.CategoryTypo, WeekNumber: 1, ProjectID: 1},
		"project":     {Title: "t", Description: "d", Category: models.CategoryTypo, WeekNumber: 1, CourseID: 1},
	}
	for field, in := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := s.CreateIssue(context.Background(), student, in)
			var appErr *contextutils.AppError
			require.True(t, contextutils.AsError(err, &appErr))
			assert.Equal(t, field, appErr.Details)
		})
	}
}

func TestCreateIssue_ValidationMessages(t *testing.T) {
	db, _ := newMockDB(t)
	s := newIssueService(db)
	valid := func() IssueInput {
		return IssueInput{Title: "t", Description: "d", Category: models.CategoryTypo, WeekNumber: 1, CourseID: 1, ProjectID: 1}
	}

	tests := []struct {
		name    string
		mutate  func(*IssueInput)
		field   string
		message string
	}{
		{"title too long", func(in *IssueInput) { in.Title = strings.Repeat("x", 201) }, "title",
			"Ensure this field has no more than 200 characters."},
		{"unknown category", func(in *IssueInput) { in.Category = "bogus" }, "category",
			`"bogus" is not a valid choice.`},
		{"missing category", func(in *IssueInput) { in.Category = "" }, "category",
			"This field is required."},
		{"week before the course starts", func(in *IssueInput) { in.WeekNumber = 0 }, "week_number",
			"Ensure this value is greater than or equal to 1."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := s.CreateIssue(context.Background(), student, in)

			var appErr *contextutils.AppError
			require.True(t, contextutils.AsError(err, &appErr))
			assert.Equal(t, contextutils.ErrorCodeValidationFailed, appErr.Code)
			assert.Equal(t, tt.field, appErr.Details)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestUpdateIssue_FirstResponseWritesHistoryAndNotifies(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	status := models.StatusInProgress
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM issues i WHERE i\.id = \$1 FOR UPDATE`).WithArgs(int64(7)).WillReturnRows(issueRows(openIssue()))
	mock.ExpectExec(`UPDATE issues SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO issue_history`).
		WithArgs(int64(7), "Changed status from 'Open' to 'In Progress'", int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(int64(10), sql.NullInt64{Int64: 7, Valid: true}, "issue_updated", "Issue status changed to: In Progress", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated := openIssue()
	updated.Status = models.StatusInProgress
	updated.FirstResponseAt = sql.NullTime{Time: testNow, Valid: true}
	expectDetailLoad(mock, updated)

	detail, err := s.UpdateIssue(context.Background(), mentor, 7, tracker.Patch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, detail.Status)
	assert.True(t, detail.FirstResponseAt.Valid)
}

func TestUpdateIssue_NoChangeProducesNoEffects(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	status := models.StatusOpen
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(issueRows(openIssue()))
	mock.ExpectExec(`UPDATE issues SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectDetailLoad(mock, openIssue())

	_, err := s.UpdateIssue(context.Background(), mentor, 7, tracker.Patch{Status: &status})
	require.NoError(t, err)
}

func TestUpdateIssue_ResolveNotifiesCohortStaff(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	before := openIssue()
	before.Status = models.StatusInProgress
	status := models.StatusResolved

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(issueRows(before))
	mock.ExpectExec(`UPDATE issues SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, role FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}).AddRow(int64(1), "admin").AddRow(int64(20), "mentor"))
	mock.ExpectExec(`INSERT INTO issue_history`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO notifications .* VALUES \(.*\),\(.*\),\(.*\)`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()
	expectDetailLoad(mock, before)

	_, err := s.UpdateIssue(context.Background(), mentor, 7, tracker.Patch{Status: &status})
	require.NoError(t, err)
}

func TestUpdateIssue_OtherCohortReadsAsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	status := models.StatusResolved
	outsider := visibility.Actor{ID: 21, Role: models.RoleMentor, Cohort: "2023-fall"}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(issueRows(openIssue()))
	mock.ExpectRollback()

	_, err := s.UpdateIssue(context.Background(), outsider, 7, tracker.Patch{Status: &status})
	require.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}

func TestUpdateIssue_UnknownAssignee(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	assignee := sql.NullInt64{Int64: 404, Valid: true}
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(issueRows(openIssue()))
	mock.ExpectQuery(`SELECT username FROM users WHERE id = \$1`).WithArgs(int64(404)).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.UpdateIssue(context.Background(), admin, 7, tracker.Patch{AssignedTo: &assignee})
	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeValidationFailed, appErr.Code)
	assert.Equal(t, "assigned_to", appErr.Details)
}

func TestUpdateIssue_InvalidStatus(t *testing.T) {
	db, _ := newMockDB(t)
	s := newIssueService(db)

	status := models.IssueStatus("closed")
	_, err := s.UpdateIssue(context.Background(), admin, 7, tracker.Patch{Status: &status})
	assert.Equal(t, contextutils.ErrorCodeValidationFailed, contextutils.GetErrorCode(err))
}

func TestListIssues_StudentScopeComesFirst(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM issues i WHERE \(i\.reported_by = \$1 AND i\.status = \$2\)`).
		WithArgs(int64(10), models.StatusOpen).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`WHERE \(i\.reported_by = \$1 AND i\.status = \$2\) ORDER BY i\.created_at DESC, i\.id DESC LIMIT 20 OFFSET 0`).
		WillReturnRows(summaryRows(openIssue()))

	issues, total, err := s.ListIssues(context.Background(), student,
		IssueFilter{Status: models.StatusOpen, ReportedBy: nil}, PageRequest{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, issues, 1)
	assert.Equal(t, "Go Basics", issues[0].CourseName)
}

func TestListIssues_MentorCannotWidenCohort(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM issues i WHERE \(i\.cohort = \$1 AND i\.cohort = \$2\)`).
		WithArgs("2024-spring", "2023-fall").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY i\.urgency ASC, i\.id ASC`).WillReturnRows(summaryRows())

	issues, total, err := s.ListIssues(context.Background(), mentor,
		IssueFilter{Cohort: "2023-fall", Ordering: "urgency"}, PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, issues)
}

func TestGetIssue_InvisibleIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	mock.ExpectQuery(`FROM issues i\s+JOIN courses co .* WHERE \(i\.reported_by = \$1 AND i\.id = \$2\)`).
		WithArgs(int64(10), int64(8)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetIssue(context.Background(), student, 8)
	require.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}

func TestDeleteIssue_AdminOnly(t *testing.T) {
	db, mock := newMockDB(t)
	s := newIssueService(db)

	err := s.DeleteIssue(context.Background(), mentor, 7)
	require.ErrorIs(t, err, contextutils.ErrForbidden)

	mock.ExpectExec(`DELETE FROM issues WHERE id = \$1`).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	err = s.DeleteIssue(context.Background(), admin, 7)
	require.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}
