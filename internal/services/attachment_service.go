package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"

	"issuetracker/internal/attachments"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

// AttachmentServiceInterface defines the interface for attachment operations
type AttachmentServiceInterface interface {
	UploadAttachment(ctx context.Context, actor visibility.Actor, in UploadInput) (*models.AttachmentWithUploader, error)
	ListAttachments(ctx context.Context, actor visibility.Actor, filter AttachmentFilter, page PageRequest) ([]models.AttachmentWithUploader, int, error)
	GetAttachment(ctx context.Context, actor visibility.Actor, id int64) (*models.AttachmentWithUploader, error)
	OpenAttachment(ctx context.Context, actor visibility.Actor, id int64) (*models.AttachmentWithUploader, io.ReadCloser, error)
	DeleteAttachment(ctx context.Context, actor visibility.Actor, id int64) error
}

// UploadInput is one multipart upload. Size is what the client declared;
// the stored byte count is checked against the ceiling again.
type UploadInput struct {
	IssueID  int64
	FileName string
	Size     int64
	Content  io.Reader
}

type AttachmentFilter struct {
	IssueID    *int64
	UploadedBy *int64
	Ordering   string
}

type AttachmentService struct {
	db     *sql.DB
	store  attachments.Store
	policy attachments.Policy
	logger *observability.Logger
}

func NewAttachmentService(db *sql.DB, store attachments.Store, policy attachments.Policy, logger *observability.Logger) *AttachmentService {
	return &AttachmentService{db: db, store: store, policy: policy, logger: logger}
}

var attachmentColumns = []string{
	"a.id", "a.issue_id", "a.file_name", "a.content_type", "a.file_size", "a.storage_path",
	"a.uploaded_by", "a.uploaded_at", "u.username",
}

const attachmentFrom = "attachments a JOIN users u ON u.id = a.uploaded_by"

var attachmentOrdering = ordering{
	"uploaded_at": "a.uploaded_at",
	"file_size":   "a.file_size",
}

func scanAttachment(row rowScanner) (*models.AttachmentWithUploader, error) {
	a := &models.AttachmentWithUploader{}
	err := row.Scan(&a.ID, &a.IssueID, &a.FileName, &a.ContentType, &a.FileSize, &a.StoragePath,
		&a.UploadedBy, &a.UploadedAt, &a.UploaderUsername)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AttachmentService) rejected(ctx context.Context, err error) error {
	var rejection *attachments.Rejection
	if errors.As(err, &rejection) {
		observability.RecordAttachmentRejected(ctx, rejection.Reason)
		s.logger.Info(ctx, "Attachment rejected", map[string]interface{}{"reason": rejection.Reason})
	}
	return err
}

// UploadAttachment validates the file against the upload policy, stores it
// under the issue's path and records the row. The uploader is always the
// actor.
func (s *AttachmentService) UploadAttachment(ctx context.Context, actor visibility.Actor, in UploadInput) (result0 *models.AttachmentWithUploader, err error) {
	ctx, span := observability.TraceAttachmentFunction(ctx, "upload_attachment",
		observability.AttributeUserID(actor.ID),
		observability.AttributeIssueID(in.IssueID),
		attribute.Int64("attachment.size", in.Size),
	)
	defer observability.FinishSpan(span, &err)

	if in.IssueID == 0 {
		return nil, contextutils.Validationf("issue", "This field is required.")
	}
	if in.Content == nil || in.FileName == "" {
		return nil, contextutils.Validationf("file", "No file was submitted.")
	}

	issue, err := loadIssue(ctx, s.db, in.IssueID, false)
	if errors.Is(err, contextutils.ErrRecordNotFound) {
		return nil, contextutils.Validationf("issue", "Issue does not exist.")
	} else if err != nil {
		return nil, err
	}
	if err = visibility.CanTarget(actor, issue, "attach files to"); err != nil {
		return nil, err
	}

	head := make([]byte, attachments.SniffLen)
	n, err := io.ReadFull(in.Content, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, contextutils.WrapError(err, "failed to read upload")
	}
	head = head[:n]

	contentType, err := s.policy.Validate(in.FileName, in.Size, head)
	if err != nil {
		return nil, s.rejected(ctx, err)
	}

	path := attachments.StoragePath(issue.ID, in.FileName)
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), in.Content), s.policy.MaxSize+1)
	written, err := s.store.Save(ctx, path, body)
	if err != nil {
		return nil, err
	}
	if err = s.policy.CheckSize(written); err != nil {
		s.removeBlob(ctx, path)
		return nil, s.rejected(ctx, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO attachments (issue_id, file_name, content_type, file_size, storage_path, uploaded_by, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id`,
		issue.ID, in.FileName, contentType, written, path, actor.ID).Scan(&id)
	if err != nil {
		s.removeBlob(ctx, path)
		return nil, contextutils.WrapError(err, "failed to insert attachment")
	}

	s.logger.Info(ctx, "Attachment uploaded", map[string]interface{}{
		"attachment_id": id,
		"issue_id":      issue.ID,
		"content_type":  contentType,
		"file_size":     written,
	})
	return getRow(ctx, s.db, psql.Select(attachmentColumns...).From(attachmentFrom).Where(sq.Eq{"a.id": id}),
		scanAttachment, "Attachment not found.")
}

func (s *AttachmentService) removeBlob(ctx context.Context, path string) {
	if err := s.store.Delete(ctx, path); err != nil {
		s.logger.Error(ctx, "Failed to remove attachment blob", err, map[string]interface{}{"path": path})
	}
}

// ListAttachments returns attachments the actor may see, newest first by default
func (s *AttachmentService) ListAttachments(ctx context.Context, actor visibility.Actor, filter AttachmentFilter, page PageRequest) (result0 []models.AttachmentWithUploader, result1 int, err error) {
	ctx, span := observability.TraceAttachmentFunction(ctx, "list_attachments", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)

	var filters []sq.Sqlizer
	if filter.IssueID != nil {
		filters = append(filters, sq.Eq{"a.issue_id": *filter.IssueID})
	}
	if filter.UploadedBy != nil {
		filters = append(filters, sq.Eq{"a.uploaded_by": *filter.UploadedBy})
	}
	where := visibility.Scope(actor, visibility.KindAttachment, filters...)

	total, err := count(ctx, s.db, "attachments a", where)
	if err != nil {
		return nil, 0, err
	}
	b := psql.Select(attachmentColumns...).From(attachmentFrom).Where(where).
		OrderBy(attachmentOrdering.resolve(filter.Ordering, "-uploaded_at", "a.id"))
	list, err := listRows(ctx, s.db, page.apply(b), scanAttachment)
	return list, total, err
}

func (s *AttachmentService) GetAttachment(ctx context.Context, actor visibility.Actor, id int64) (result0 *models.AttachmentWithUploader, err error) {
	ctx, span := observability.TraceAttachmentFunction(ctx, "get_attachment", attribute.Int64("attachment.id", id))
	defer observability.FinishSpan(span, &err)
	return s.visibleAttachment(ctx, actor, id)
}

func (s *AttachmentService) visibleAttachment(ctx context.Context, actor visibility.Actor, id int64) (*models.AttachmentWithUploader, error) {
	where := visibility.Scope(actor, visibility.KindAttachment, sq.Eq{"a.id": id})
	return getRow(ctx, s.db, psql.Select(attachmentColumns...).From(attachmentFrom).Where(where), scanAttachment, "Attachment not found.")
}

// OpenAttachment returns the row and its content. The caller closes the reader.
func (s *AttachmentService) OpenAttachment(ctx context.Context, actor visibility.Actor, id int64) (result0 *models.AttachmentWithUploader, result1 io.ReadCloser, err error) {
	ctx, span := observability.TraceAttachmentFunction(ctx, "open_attachment", attribute.Int64("attachment.id", id))
	defer observability.FinishSpan(span, &err)

	a, err := s.visibleAttachment(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, a.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return a, rc, nil
}

// DeleteAttachment removes the row, then the stored file
func (s *AttachmentService) DeleteAttachment(ctx context.Context, actor visibility.Actor, id int64) (err error) {
	ctx, span := observability.TraceAttachmentFunction(ctx, "delete_attachment", attribute.Int64("attachment.id", id))
	defer observability.FinishSpan(span, &err)

	a, err := s.visibleAttachment(ctx, actor, id)
	if err != nil {
		return err
	}
	if a.UploadedBy != actor.ID && !actor.Role.IsStaff() {
		return contextutils.Forbiddenf("You can only delete your own attachments.")
	}
	if _, err = s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id); err != nil {
		return contextutils.WrapError(err, "failed to delete attachment")
	}
	s.removeBlob(ctx, a.StoragePath)
	return nil
}
