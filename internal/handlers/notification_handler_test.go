package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var notificationNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func notificationRouter(h *NotificationHandler) *gin.Engine {
	r := actorRouter(mentor)
	r.GET("/v1/notifications", h.ListNotifications)
	r.GET("/v1/notifications/unread-count", h.UnreadCount)
	r.POST("/v1/notifications/read-all", h.MarkAllRead)
	r.POST("/v1/notifications/:id/read", h.MarkRead)
	return r
}

func newNotificationHandlerForTest() (*NotificationHandler, *mockNotificationService) {
	svc := &mockNotificationService{}
	h := NewNotificationHandler(svc, testConfig(), observability.NewNopLogger())
	h.now = func() time.Time { return notificationNow }
	return h, svc
}

func TestConvertNotification(t *testing.T) {
	withIssue := models.NotificationWithIssue{
		Notification: models.Notification{
			ID:               1,
			RecipientID:      mentor.ID,
			IssueID:          sql.NullInt64{Int64: 7, Valid: true},
			NotificationType: models.NotificationIssueCreated,
			Message:          "New issue reported: Checker rejects a correct answer",
			CreatedAt:        notificationNow.Add(-3 * time.Minute),
		},
		IssueTitle:  sql.NullString{String: "Checker rejects a correct answer", Valid: true},
		IssueStatus: sql.NullString{String: "in_progress", Valid: true},
	}

	resp := convertNotification(withIssue, notificationNow)
	assert.Equal(t, "Issue Created", resp.NotificationTypeDisplay)
	assert.Equal(t, "3 minutes", resp.TimeSince)
	require.NotNil(t, resp.IssueDetails)
	assert.Equal(t, "In Progress", resp.IssueDetails.StatusDisplay)
	require.NotNil(t, resp.Issue)
	assert.Equal(t, int64(7), *resp.Issue)

	// the issue was deleted after the notification was sent
	orphan := withIssue
	orphan.IssueID = sql.NullInt64{}
	orphan.IssueTitle = sql.NullString{}
	resp = convertNotification(orphan, notificationNow)
	assert.Nil(t, resp.Issue)
	assert.Nil(t, resp.IssueDetails)
}

func TestNotificationHandler_ListNotifications(t *testing.T) {
	h, svc := newNotificationHandlerForTest()
	unread := false
	svc.On("ListNotifications", mock.Anything, mentor,
		services.NotificationFilter{IsRead: &unread, Type: models.NotificationCommentAdded},
		services.PageRequest{Page: 1, PageSize: 20}).
		Return([]models.NotificationWithIssue{{Notification: models.Notification{
			ID: 4, RecipientID: mentor.ID, NotificationType: models.NotificationCommentAdded,
			Message: "New comment", CreatedAt: notificationNow.Add(-2 * time.Hour),
		}}}, 1, nil)

	w := serve(notificationRouter(h), httptest.NewRequest(http.MethodGet, "/v1/notifications?is_read=false&notification_type=comment_added", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "2 hours", resp.Results[0]["time_since"])
	assert.Nil(t, resp.Results[0]["issue_details"])
	svc.AssertExpectations(t)
}

func TestNotificationHandler_ListNotifications_BadBool(t *testing.T) {
	h, svc := newNotificationHandlerForTest()

	w := serve(notificationRouter(h), httptest.NewRequest(http.MethodGet, "/v1/notifications?is_read=maybe", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "is_read")
	svc.AssertNotCalled(t, "ListNotifications", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotificationHandler_Counters(t *testing.T) {
	h, svc := newNotificationHandlerForTest()
	svc.On("UnreadCount", mock.Anything, mentor).Return(3, nil)
	svc.On("MarkAllRead", mock.Anything, mentor).Return(int64(3), nil)

	r := notificationRouter(h)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/notifications/unread-count", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":3}`, w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodPost, "/v1/notifications/read-all", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","updated":3}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	h, svc := newNotificationHandlerForTest()
	svc.On("MarkRead", mock.Anything, mentor, int64(4)).Return(&models.NotificationWithIssue{Notification: models.Notification{
		ID: 4, RecipientID: mentor.ID, NotificationType: models.NotificationIssueAssigned, IsRead: true, CreatedAt: notificationNow,
	}}, nil)

	w := serve(notificationRouter(h), httptest.NewRequest(http.MethodPost, "/v1/notifications/4/read", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_read":true`)
	assert.Contains(t, w.Body.String(), `"notification_type_display":"Issue Assigned"`)
}
