package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCommentHandler(t *testing.T) {
	svc := &mockCommentService{}
	h := NewCommentHandler(svc, testConfig(), observability.NewNopLogger())
	r := actorRouter(student)
	r.GET("/v1/comments", h.ListComments)
	r.PATCH("/v1/comments/:id", h.UpdateComment)
	r.DELETE("/v1/comments/:id", h.DeleteComment)

	issueID := int64(7)
	own := models.CommentWithAuthor{
		Comment: models.Comment{ID: 5, IssueID: 7, UserID: student.ID, Content: "Still failing"},
		Author:  models.UserBrief{ID: student.ID, Username: "sam", FirstName: "Sam", LastName: "Lee"},
	}
	svc.On("ListComments", mock.Anything, student, services.CommentFilter{IssueID: &issueID}, services.PageRequest{Page: 1, PageSize: 20}).
		Return([]models.CommentWithAuthor{own}, 1, nil)
	svc.On("UpdateComment", mock.Anything, student, int64(5), "Fixed now").Return(&own, nil)
	svc.On("DeleteComment", mock.Anything, student, int64(6)).
		Return(contextutils.Forbiddenf("You can only delete your own comments."))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/comments?issue=7", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"full_name":"Sam Lee"`)

	w = serve(r, jsonRequest(http.MethodPatch, "/v1/comments/5", `{"content":"Fixed now"}`))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodDelete, "/v1/comments/6", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "your own comments")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/v1/comments?user=me", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}
