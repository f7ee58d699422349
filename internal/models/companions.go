package models

import (
	"database/sql"
	"time"
)

// Comment belongs to one issue and one author
type Comment struct {
	ID        int64     `json:"id"`
	IssueID   int64     `json:"issue"`
	UserID    int64     `json:"user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CommentWithAuthor struct {
	Comment
	Author UserBrief
}

// Attachment is a stored file on an issue. UploadedBy never changes.
type Attachment struct {
	ID          int64     `json:"id"`
	IssueID     int64     `json:"issue"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	FileSize    int64     `json:"file_size"`
	StoragePath string    `json:"-"`
	UploadedBy  int64     `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type AttachmentWithUploader struct {
	Attachment
	UploaderUsername string
}

// IssueFeedback is the reporter's rating of a resolved issue, at most one per issue
type IssueFeedback struct {
	ID        int64          `json:"id"`
	IssueID   int64          `json:"issue"`
	Rating    int            `json:"rating"`
	Comment   sql.NullString `json:"comment"`
	CreatedAt time.Time      `json:"created_at"`
}

// IssueHistory is an append-only audit row
type IssueHistory struct {
	ID          int64         `json:"id"`
	IssueID     int64         `json:"issue"`
	Action      string        `json:"action"`
	PerformedBy sql.NullInt64 `json:"performed_by"`
	Timestamp   time.Time     `json:"timestamp"`
}

type IssueHistoryEntry struct {
	IssueHistory
	PerformedByUsername sql.NullString
}
