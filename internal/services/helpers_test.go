package services

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func nopLogger() *observability.Logger {
	return observability.NewNopLogger()
}

func issueCols() []string {
	return []string{
		"id", "title", "description", "category", "urgency", "status", "cohort", "week_number",
		"course_id", "project_id", "task_id", "reported_by", "assigned_to",
		"created_at", "updated_at", "first_response_at", "resolved_at",
	}
}

func issueValues(is models.Issue) []driver.Value {
	nullInt := func(v sql.NullInt64) driver.Value {
		if v.Valid {
			return v.Int64
		}
		return nil
	}
	nullTime := func(v sql.NullTime) driver.Value {
		if v.Valid {
			return v.Time
		}
		return nil
	}
	return []driver.Value{
		is.ID, is.Title, is.Description, string(is.Category), string(is.Urgency), string(is.Status), is.Cohort, int64(is.WeekNumber),
		is.CourseID, is.ProjectID, nullInt(is.TaskID), is.ReportedBy, nullInt(is.AssignedTo),
		is.CreatedAt, is.UpdatedAt, nullTime(is.FirstResponseAt), nullTime(is.ResolvedAt),
	}
}

func issueRows(issues ...models.Issue) *sqlmock.Rows {
	rows := sqlmock.NewRows(issueCols())
	for _, is := range issues {
		rows.AddRow(issueValues(is)...)
	}
	return rows
}

func summaryRows(issues ...models.Issue) *sqlmock.Rows {
	cols := append(issueCols(),
		"course_name", "project_name", "task_title",
		"rep_username", "rep_first", "rep_last", "rep_role", "rep_cohort",
		"asg_username", "asg_first", "asg_last", "asg_role", "asg_cohort",
		"comments_count", "attachments_count")
	rows := sqlmock.NewRows(cols)
	for _, is := range issues {
		values := issueValues(is)
		values = append(values, "Go Basics", "Week 1 project", nil,
			"student1", "Stu", "Dent", "student", is.Cohort)
		if is.AssignedTo.Valid {
			values = append(values, "mentor1", "Men", "Tor", "mentor", is.Cohort)
		} else {
			values = append(values, nil, nil, nil, nil, nil)
		}
		values = append(values, int64(0), int64(0))
		rows.AddRow(values...)
	}
	return rows
}

// expectDetailLoad registers the queries that build an IssueDetail
func expectDetailLoad(mock sqlmock.Sqlmock, is models.Issue) {
	mock.ExpectQuery(`SELECT i\.id, .* FROM issues i\s+JOIN courses co`).WillReturnRows(summaryRows(is))
	mock.ExpectQuery(`FROM comments c JOIN users u`).WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery(`FROM attachments a JOIN users u`).WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery(`FROM issue_history h LEFT JOIN users u .* ORDER BY h\.timestamp DESC`).WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery(`FROM issue_feedback f`).WillReturnError(sql.ErrNoRows)
}

func openIssue() models.Issue {
	return models.Issue{
		ID:          7,
		Title:       "Checker rejects valid answer",
		Description: "The checker fails on task 3.",
		Category:    models.CategoryCheckerError,
		Urgency:     models.UrgencyMedium,
		Status:      models.StatusOpen,
		Cohort:      "2024-spring",
		WeekNumber:  2,
		CourseID:    1,
		ProjectID:   3,
		ReportedBy:  10,
		CreatedAt:   testNow.Add(-time.Hour),
		UpdatedAt:   testNow.Add(-time.Hour),
	}
}
