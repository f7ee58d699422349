package models

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_MarshalJSON(t *testing.T) {
	joined := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		user     User
		expected string
	}{
		{
			name: "complete user",
			user: User{
				ID:           1,
				Username:     "alice",
				Email:        sql.NullString{String: "alice@example.com", Valid: true},
				FirstName:    "Alice",
				LastName:     "Smith",
				Role:         RoleStudent,
				Cohort:       "2024-fall",
				PasswordHash: sql.NullString{String: "hash", Valid: true},
				IsActive:     true,
				DateJoined:   joined,
			},
			expected: `{"id":1,"username":"alice","email":"alice@example.com","first_name":"Alice","last_name":"Smith","full_name":"Alice Smith","role":"student","cohort":"2024-fall","is_active":true,"date_joined":"2024-09-01T00:00:00Z","last_login":null}`,
		},
		{
			name: "null email falls back to username for full name",
			user: User{
				ID:         2,
				Username:   "mentor1",
				Role:       RoleMentor,
				Cohort:     "2024-fall",
				DateJoined: joined,
			},
			expected: `{"id":2,"username":"mentor1","email":null,"first_name":"","last_name":"","full_name":"mentor1","role":"mentor","cohort":"2024-fall","is_active":false,"date_joined":"2024-09-01T00:00:00Z","last_login":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.user)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(out))
			assert.NotContains(t, string(out), "hash")
		})
	}
}

func TestRole(t *testing.T) {
	assert.True(t, RoleStudent.Valid())
	assert.False(t, Role("owner").Valid())
	assert.True(t, RoleMentor.IsStaff())
	assert.True(t, RoleAdmin.IsStaff())
	assert.False(t, RoleStudent.IsStaff())
	assert.Equal(t, "Mentor", RoleMentor.Display())
}

func TestIssueEnumDisplays(t *testing.T) {
	assert.Equal(t, "In Progress", StatusInProgress.Display())
	assert.Equal(t, "Resolved", StatusResolved.Display())
	assert.Equal(t, "Unclear Instructions", CategoryUnclearInstructions.Display())
	assert.Equal(t, "Technical Error", CategoryTechnicalError.Display())
	assert.Equal(t, "High", UrgencyHigh.Display())
	assert.Equal(t, "Comment Added", NotificationCommentAdded.Display())

	assert.False(t, IssueStatus("closed").Valid())
	assert.Equal(t, "closed", IssueStatus("closed").Display())
	assert.False(t, IssueCategory("bug").Valid())
	assert.False(t, IssueUrgency("urgent").Valid())
	assert.False(t, NotificationType("ping").Valid())
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"docker", "checker", "week 3"}, SplitTags(" docker, checker,,week 3 "))
	assert.Equal(t, []string{}, KBArticle{}.TagsList())
}

func TestNullHelpers(t *testing.T) {
	id := int64(5)
	assert.Equal(t, sql.NullInt64{Int64: 5, Valid: true}, NullInt64(&id))
	assert.Equal(t, sql.NullInt64{}, NullInt64(nil))
	assert.Equal(t, &id, NullInt64ToPointer(NullInt64(&id)))

	assert.True(t, SameNullInt64(sql.NullInt64{}, sql.NullInt64{Int64: 3}))
	assert.True(t, SameNullInt64(NullInt64(&id), NullInt64(&id)))
	assert.False(t, SameNullInt64(NullInt64(&id), sql.NullInt64{}))
}
