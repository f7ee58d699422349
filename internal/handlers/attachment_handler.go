package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"issuetracker/internal/config"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// AttachmentHandler serves uploads and downloads. There is no update route.
type AttachmentHandler struct {
	attachments services.AttachmentServiceInterface
	pagination  config.PaginationConfig
	maxUpload   int64
	baseURL     string
	logger      *observability.Logger
}

func NewAttachmentHandler(attachments services.AttachmentServiceInterface, cfg *config.Config, logger *observability.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		attachments: attachments,
		pagination:  cfg.Pagination,
		maxUpload:   cfg.Attachments.MaxUploadSize,
		baseURL:     cfg.Server.PublicBaseURL,
		logger:      logger,
	}
}

// multipartSlack covers the form fields and part headers around the file
const multipartSlack = 1 << 20

// Upload is a multipart POST with an "issue" field and a "file" part
func (h *AttachmentHandler) Upload(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "upload_attachment")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartSlack)
	}

	if err := c.Request.ParseMultipartForm(config.MultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAppError(c, contextutils.Validationf("file", "File size exceeds the maximum limit."))
			return
		}
		invalidBody(c, err)
		return
	}

	rawIssue := strings.TrimSpace(c.PostForm("issue"))
	if rawIssue == "" {
		HandleAppError(c, contextutils.Validationf("issue", "This field is required."))
		return
	}
	issueID, err := strconv.ParseInt(rawIssue, 10, 64)
	if err != nil || issueID < 1 {
		HandleAppError(c, contextutils.Validationf("issue", "Incorrect type. Expected pk value."))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		HandleAppError(c, contextutils.Validationf("file", "No file was submitted."))
		return
	}
	file, err := header.Open()
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to open uploaded file"))
		return
	}
	defer func() { _ = file.Close() }()

	span.SetAttributes(observability.AttributeIssueID(issueID), attribute.Int64("attachment.size", header.Size))

	attachment, err := h.attachments.UploadAttachment(ctx, actor, services.UploadInput{
		IssueID:  issueID,
		FileName: header.Filename,
		Size:     header.Size,
		Content:  file,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertAttachment(c, h.baseURL, *attachment))
}

func (h *AttachmentHandler) ListAttachments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	q := newQueryFilters(c)
	filter := services.AttachmentFilter{
		IssueID:    q.int64("issue"),
		UploadedBy: q.int64("uploaded_by"),
		Ordering:   q.str("ordering"),
	}
	if !q.ok() {
		return
	}
	page := pageRequest(c, h.pagination)

	items, total, err := h.attachments.ListAttachments(c.Request.Context(), actor, filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	out := make([]attachmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, convertAttachment(c, h.baseURL, a))
	}
	writePage(c, out, total, page)
}

func (h *AttachmentHandler) GetAttachment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	attachment, err := h.attachments.GetAttachment(c.Request.Context(), actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertAttachment(c, h.baseURL, *attachment))
}

// Download streams the stored file with its recorded content type under the
// original file name
func (h *AttachmentHandler) Download(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	attachment, content, err := h.attachments.OpenAttachment(c.Request.Context(), actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	defer func() { _ = content.Close() }()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": attachment.FileName})
	c.DataFromReader(http.StatusOK, attachment.FileSize, attachment.ContentType, content,
		map[string]string{"Content-Disposition": disposition})
}

func (h *AttachmentHandler) DeleteAttachment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.attachments.DeleteAttachment(c.Request.Context(), actor, id); err != nil {
		HandleAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
