package models

import (
	"database/sql"
	"strings"
	"time"
)

// IssueTemplate is a reusable description skeleton for a category
type IssueTemplate struct {
	ID                  int64         `json:"id"`
	Title               string        `json:"title"`
	DescriptionTemplate string        `json:"description_template"`
	Category            IssueCategory `json:"category"`
	CreatedBy           int64         `json:"created_by"`
	CreatedAt           time.Time     `json:"created_at"`
}

// KBArticle is a knowledge base entry, usually written up from a resolved issue
type KBArticle struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Content      string        `json:"content"`
	RelatedIssue sql.NullInt64 `json:"related_issue"`
	Tags         string        `json:"tags"`
	CreatedBy    int64         `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TagsList splits the comma separated tags, dropping blanks
func (a KBArticle) TagsList() []string {
	return SplitTags(a.Tags)
}

// SplitTags splits a comma separated tag string into trimmed, non-empty tags
func SplitTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
