package models

import (
	"database/sql"
	"time"
)

// IssueStatus is the lifecycle state of an issue. Any state may follow any other.
type IssueStatus string

const (
	StatusOpen       IssueStatus = "open"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
)

// IssueCategory classifies what went wrong
type IssueCategory string

const (
	CategoryCheckerError        IssueCategory = "checker_error"
	CategoryUnclearInstructions IssueCategory = "unclear_instructions"
	CategoryTypo                IssueCategory = "typo"
	CategoryTechnicalError      IssueCategory = "technical_error"
	CategoryOther               IssueCategory = "other"
)

// IssueUrgency is the reporter's estimate of how blocking an issue is
type IssueUrgency string

const (
	UrgencyLow    IssueUrgency = "low"
	UrgencyMedium IssueUrgency = "medium"
	UrgencyHigh   IssueUrgency = "high"
)

var statusDisplay = map[IssueStatus]string{
	StatusOpen:       "Open",
	StatusInProgress: "In Progress",
	StatusResolved:   "Resolved",
}

var categoryDisplay = map[IssueCategory]string{
	CategoryCheckerError:        "Checker Error",
	CategoryUnclearInstructions: "Unclear Instructions",
	CategoryTypo:                "Typo",
	CategoryTechnicalError:      "Technical Error",
	CategoryOther:               "Other",
}

var urgencyDisplay = map[IssueUrgency]string{
	UrgencyLow:    "Low",
	UrgencyMedium: "Medium",
	UrgencyHigh:   "High",
}

func (s IssueStatus) Valid() bool {
	_, ok := statusDisplay[s]
	return ok
}

func (s IssueStatus) Display() string {
	if d, ok := statusDisplay[s]; ok {
		return d
	}
	return string(s)
}

func (c IssueCategory) Valid() bool {
	_, ok := categoryDisplay[c]
	return ok
}

func (c IssueCategory) Display() string {
	if d, ok := categoryDisplay[c]; ok {
		return d
	}
	return string(c)
}

func (u IssueUrgency) Valid() bool {
	_, ok := urgencyDisplay[u]
	return ok
}

func (u IssueUrgency) Display() string {
	if d, ok := urgencyDisplay[u]; ok {
		return d
	}
	return string(u)
}

// Issue is the aggregate root. ReportedBy never changes after creation.
type Issue struct {
	ID              int64         `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        IssueCategory `json:"category"`
	Urgency         IssueUrgency  `json:"urgency"`
	Status          IssueStatus   `json:"status"`
	Cohort          string        `json:"cohort"`
	WeekNumber      int           `json:"week_number"`
	CourseID        int64         `json:"course"`
	ProjectID       int64         `json:"project"`
	TaskID          sql.NullInt64 `json:"task"`
	ReportedBy      int64         `json:"reported_by"`
	AssignedTo      sql.NullInt64 `json:"assigned_to"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	FirstResponseAt sql.NullTime  `json:"first_response_at"`
	ResolvedAt      sql.NullTime  `json:"resolved_at"`
}

// IssueSummary is one row of an issue listing, joined with the names and
// counts the list view shows.
type IssueSummary struct {
	Issue
	CourseName       string
	ProjectName      string
	TaskTitle        sql.NullString
	Reporter         UserBrief
	Assignee         *UserBrief
	CommentsCount    int
	AttachmentsCount int
}

// IssueDetail is a single issue with all of its companions
type IssueDetail struct {
	IssueSummary
	Comments    []CommentWithAuthor
	Attachments []AttachmentWithUploader
	History     []IssueHistoryEntry
	Feedback    *IssueFeedback
}
