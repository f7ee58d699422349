package handlers

import (
	"fmt"
	"strings"
	"time"

	"issuetracker/internal/attachments"
	"issuetracker/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

// Response shapes. The models carry sql.Null fields and joined columns; these
// flatten them and add the *_display strings clients render.

type userBriefResponse struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	FullName string      `json:"full_name"`
	Role     models.Role `json:"role"`
	Cohort   string      `json:"cohort"`
}

func convertUserBrief(u models.UserBrief) userBriefResponse {
	return userBriefResponse{
		ID:       u.ID,
		Username: u.Username,
		FullName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Role:     u.Role,
		Cohort:   u.Cohort,
	}
}

func convertUserBriefPtr(u *models.UserBrief) *userBriefResponse {
	if u == nil {
		return nil
	}
	r := convertUserBrief(*u)
	return &r
}

type issueListResponse struct {
	ID                int64                `json:"id"`
	Title             string               `json:"title"`
	Status            models.IssueStatus   `json:"status"`
	StatusDisplay     string               `json:"status_display"`
	Category          models.IssueCategory `json:"category"`
	CategoryDisplay   string               `json:"category_display"`
	Urgency           models.IssueUrgency  `json:"urgency"`
	UrgencyDisplay    string               `json:"urgency_display"`
	ReportedBy        int64                `json:"reported_by"`
	ReportedByDetails userBriefResponse    `json:"reported_by_details"`
	AssignedTo        *int64               `json:"assigned_to"`
	AssignedToDetails *userBriefResponse   `json:"assigned_to_details"`
	Course            int64                `json:"course"`
	CourseName        string               `json:"course_name"`
	Project           int64                `json:"project"`
	ProjectName       string               `json:"project_name"`
	Task              *int64               `json:"task"`
	TaskTitle         *string              `json:"task_title"`
	Cohort            string               `json:"cohort"`
	WeekNumber        int                  `json:"week_number"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	FirstResponseAt   *time.Time           `json:"first_response_at"`
	ResolvedAt        *time.Time           `json:"resolved_at"`
	CommentsCount     int                  `json:"comments_count"`
	AttachmentsCount  int                  `json:"attachments_count"`
}

func convertIssueSummary(s models.IssueSummary) issueListResponse {
	return issueListResponse{
		ID:                s.ID,
		Title:             s.Title,
		Status:            s.Status,
		StatusDisplay:     s.Status.Display(),
		Category:          s.Category,
		CategoryDisplay:   s.Category.Display(),
		Urgency:           s.Urgency,
		UrgencyDisplay:    s.Urgency.Display(),
		ReportedBy:        s.ReportedBy,
		ReportedByDetails: convertUserBrief(s.Reporter),
		AssignedTo:        models.NullInt64ToPointer(s.AssignedTo),
		AssignedToDetails: convertUserBriefPtr(s.Assignee),
		Course:            s.CourseID,
		CourseName:        s.CourseName,
		Project:           s.ProjectID,
		ProjectName:       s.ProjectName,
		Task:              models.NullInt64ToPointer(s.TaskID),
		TaskTitle:         models.NullStringToPointer(s.TaskTitle),
		Cohort:            s.Cohort,
		WeekNumber:        s.WeekNumber,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		FirstResponseAt:   models.NullTimeToPointer(s.FirstResponseAt),
		ResolvedAt:        models.NullTimeToPointer(s.ResolvedAt),
		CommentsCount:     s.CommentsCount,
		AttachmentsCount:  s.AttachmentsCount,
	}
}

type issueDetailResponse struct {
	issueListResponse
	Description string               `json:"description"`
	Comments    []commentResponse    `json:"comments"`
	Attachments []attachmentResponse `json:"attachments"`
	History     []historyResponse    `json:"history"`
	Feedback    *feedbackResponse    `json:"feedback"`
}

func convertIssueDetail(c *gin.Context, baseURL string, d *models.IssueDetail) issueDetailResponse {
	resp := issueDetailResponse{
		issueListResponse: convertIssueSummary(d.IssueSummary),
		Description:       d.Description,
		Comments:          make([]commentResponse, 0, len(d.Comments)),
		Attachments:       make([]attachmentResponse, 0, len(d.Attachments)),
		History:           make([]historyResponse, 0, len(d.History)),
	}
	// the detail view counts what it embeds
	resp.CommentsCount = len(d.Comments)
	resp.AttachmentsCount = len(d.Attachments)
	for _, cm := range d.Comments {
		resp.Comments = append(resp.Comments, convertComment(cm))
	}
	for _, a := range d.Attachments {
		resp.Attachments = append(resp.Attachments, convertAttachment(c, baseURL, a))
	}
	for _, h := range d.History {
		resp.History = append(resp.History, convertHistory(h))
	}
	if d.Feedback != nil {
		fb := convertFeedback(*d.Feedback)
		resp.Feedback = &fb
	}
	return resp
}

type commentResponse struct {
	ID          int64             `json:"id"`
	Issue       int64             `json:"issue"`
	User        int64             `json:"user"`
	UserDetails userBriefResponse `json:"user_details"`
	Content     string            `json:"content"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func convertComment(cm models.CommentWithAuthor) commentResponse {
	return commentResponse{
		ID:          cm.ID,
		Issue:       cm.IssueID,
		User:        cm.UserID,
		UserDetails: convertUserBrief(cm.Author),
		Content:     cm.Content,
		CreatedAt:   cm.CreatedAt,
		UpdatedAt:   cm.UpdatedAt,
	}
}

type attachmentResponse struct {
	ID                 int64     `json:"id"`
	Issue              int64     `json:"issue"`
	FileURL            string    `json:"file_url"`
	FileName           string    `json:"file_name"`
	ContentType        string    `json:"content_type"`
	FileSize           int64     `json:"file_size"`
	FileSizeDisplay    string    `json:"file_size_display"`
	UploadedBy         int64     `json:"uploaded_by"`
	UploadedByUsername string    `json:"uploaded_by_username"`
	UploadedAt         time.Time `json:"uploaded_at"`
}

// fileURL is absolute: the configured public base URL when set, otherwise
// the scheme and host the request came in on
func fileURL(c *gin.Context, baseURL string, id int64) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return fmt.Sprintf("%s/v1/attachments/%d/download", base, id)
}

func convertAttachment(c *gin.Context, baseURL string, a models.AttachmentWithUploader) attachmentResponse {
	return attachmentResponse{
		ID:                 a.ID,
		Issue:              a.IssueID,
		FileURL:            fileURL(c, baseURL, a.ID),
		FileName:           a.FileName,
		ContentType:        a.ContentType,
		FileSize:           a.FileSize,
		FileSizeDisplay:    attachments.FormatSize(a.FileSize),
		UploadedBy:         a.UploadedBy,
		UploadedByUsername: a.UploaderUsername,
		UploadedAt:         a.UploadedAt,
	}
}

type historyResponse struct {
	ID                  int64     `json:"id"`
	Issue               int64     `json:"issue"`
	Action              string    `json:"action"`
	PerformedBy         *int64    `json:"performed_by"`
	PerformedByUsername *string   `json:"performed_by_username"`
	Timestamp           time.Time `json:"timestamp"`
}

func convertHistory(h models.IssueHistoryEntry) historyResponse {
	return historyResponse{
		ID:                  h.ID,
		Issue:               h.IssueID,
		Action:              h.Action,
		PerformedBy:         models.NullInt64ToPointer(h.PerformedBy),
		PerformedByUsername: models.NullStringToPointer(h.PerformedByUsername),
		Timestamp:           h.Timestamp,
	}
}

type feedbackResponse struct {
	ID        int64     `json:"id"`
	Issue     int64     `json:"issue"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func convertFeedback(f models.IssueFeedback) feedbackResponse {
	return feedbackResponse{
		ID:        f.ID,
		Issue:     f.IssueID,
		Rating:    f.Rating,
		Comment:   models.NullStringToPointer(f.Comment),
		CreatedAt: f.CreatedAt,
	}
}

type issueBriefResponse struct {
	ID            int64              `json:"id"`
	Title         string             `json:"title"`
	Status        models.IssueStatus `json:"status"`
	StatusDisplay string             `json:"status_display"`
}

type notificationResponse struct {
	ID                      int64                   `json:"id"`
	User                    int64                   `json:"user"`
	Issue                   *int64                  `json:"issue"`
	IssueDetails            *issueBriefResponse     `json:"issue_details"`
	Message                 string                  `json:"message"`
	NotificationType        models.NotificationType `json:"notification_type"`
	NotificationTypeDisplay string                  `json:"notification_type_display"`
	IsRead                  bool                    `json:"is_read"`
	CreatedAt               time.Time               `json:"created_at"`
	TimeSince               string                  `json:"time_since"`
}

func convertNotification(n models.NotificationWithIssue, now time.Time) notificationResponse {
	resp := notificationResponse{
		ID:                      n.ID,
		User:                    n.RecipientID,
		Issue:                   models.NullInt64ToPointer(n.IssueID),
		Message:                 n.Message,
		NotificationType:        n.NotificationType,
		NotificationTypeDisplay: n.NotificationType.Display(),
		IsRead:                  n.IsRead,
		CreatedAt:               n.CreatedAt,
		TimeSince:               timeSince(n.CreatedAt, now),
	}
	if n.IssueID.Valid && n.IssueTitle.Valid {
		status := models.IssueStatus(n.IssueStatus.String)
		resp.IssueDetails = &issueBriefResponse{
			ID:            n.IssueID.Int64,
			Title:         n.IssueTitle.String,
			Status:        status,
			StatusDisplay: status.Display(),
		}
	}
	return resp
}

// timeSince renders "3 minutes" style spans without the "ago" suffix
func timeSince(t, now time.Time) string {
	return strings.TrimSpace(humanize.RelTime(t, now, "", ""))
}

type templateResponse struct {
	ID                  int64                `json:"id"`
	Title               string               `json:"title"`
	DescriptionTemplate string               `json:"description_template"`
	Category            models.IssueCategory `json:"category"`
	CategoryDisplay     string               `json:"category_display"`
	CreatedBy           int64                `json:"created_by"`
	CreatedAt           time.Time            `json:"created_at"`
}

func convertTemplate(t models.IssueTemplate) templateResponse {
	return templateResponse{
		ID:                  t.ID,
		Title:               t.Title,
		DescriptionTemplate: t.DescriptionTemplate,
		Category:            t.Category,
		CategoryDisplay:     t.Category.Display(),
		CreatedBy:           t.CreatedBy,
		CreatedAt:           t.CreatedAt,
	}
}

type articleResponse struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	RelatedIssue *int64    `json:"related_issue"`
	Tags         string    `json:"tags"`
	TagsList     []string  `json:"tags_list"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func convertArticle(a models.KBArticle) articleResponse {
	return articleResponse{
		ID:           a.ID,
		Title:        a.Title,
		Content:      a.Content,
		RelatedIssue: models.NullInt64ToPointer(a.RelatedIssue),
		Tags:         a.Tags,
		TagsList:     a.TagsList(),
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// mapSlice converts every element of a service result
func mapSlice[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}
