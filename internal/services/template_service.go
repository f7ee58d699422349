package services

import (
	"context"
	"database/sql"
	"strings"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

// TemplateServiceInterface defines the interface for issue template operations
type TemplateServiceInterface interface {
	ListTemplates(ctx context.Context, filter TemplateFilter, page PageRequest) ([]models.IssueTemplate, int, error)
	GetTemplate(ctx context.Context, id int64) (*models.IssueTemplate, error)
	CreateTemplate(ctx context.Context, actor visibility.Actor, in TemplateInput) (*models.IssueTemplate, error)
	UpdateTemplate(ctx context.Context, actor visibility.Actor, id int64, in TemplateInput) (*models.IssueTemplate, error)
	DeleteTemplate(ctx context.Context, actor visibility.Actor, id int64) error
}

type TemplateInput struct {
	Title               string               `json:"title"`
	DescriptionTemplate string               `json:"description_template"`
	Category            models.IssueCategory `json:"category"`
}

type TemplateFilter struct {
	Category  models.IssueCategory
	CreatedBy *int64
	Search    string
	Ordering  string
}

type TemplateService struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewTemplateService(db *sql.DB, logger *observability.Logger) *TemplateService {
	return &TemplateService{db: db, logger: logger}
}

var templateColumns = []string{"t.id", "t.title", "t.description_template", "t.category", "t.created_by", "t.created_at"}

var templateOrdering = ordering{
	"title":      "t.title",
	"category":   "t.category",
	"created_at": "t.created_at",
}

func scanTemplate(row rowScanner) (*models.IssueTemplate, error) {
	t := &models.IssueTemplate{}
	if err := row.Scan(&t.ID, &t.Title, &t.DescriptionTemplate, &t.Category, &t.CreatedBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

func (in *TemplateInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return contextutils.Validationf("title", "This field is required.")
	case len(in.Title) > 200:
		return contextutils.Validationf("title", "Ensure this field has no more than 200 characters.")
	case strings.TrimSpace(in.DescriptionTemplate) == "":
		return contextutils.Validationf("description_template", "This field is required.")
	case !in.Category.Valid():
		return contextutils.Validationf("category", "\"%s\" is not a valid choice.", in.Category)
	}
	return nil
}

// ownedOrStaff is the edit rule shared by templates and knowledge base articles
func ownedOrStaff(actor visibility.Actor, createdBy int64, what string) error {
	if createdBy == actor.ID || actor.Role.IsStaff() {
		return nil
	}
	return contextutils.Forbiddenf("You can only modify your own %s.", what)
}

func (s *TemplateService) ListTemplates(ctx context.Context, filter TemplateFilter, page PageRequest) (result0 []models.IssueTemplate, result1 int, err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "list_templates", observability.AttributeSearch(filter.Search))
	defer observability.FinishSpan(span, &err)

	where := sq.And{}
	if filter.Category != "" {
		where = append(where, sq.Eq{"t.category": filter.Category})
	}
	if filter.CreatedBy != nil {
		where = append(where, sq.Eq{"t.created_by": *filter.CreatedBy})
	}
	if f := ilikeAny(filter.Search, "t.title", "t.description_template"); f != nil {
		where = append(where, f)
	}
	total, err := count(ctx, s.db, "issue_templates t", where)
	if err != nil {
		return nil, 0, err
	}
	b := psql.Select(templateColumns...).From("issue_templates t").Where(where).
		OrderBy(templateOrdering.resolve(filter.Ordering, "title", "t.id"))
	list, err := listRows(ctx, s.db, page.apply(b), scanTemplate)
	return list, total, err
}

func (s *TemplateService) GetTemplate(ctx context.Context, id int64) (result0 *models.IssueTemplate, err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "get_template", attribute.Int64("template.id", id))
	defer observability.FinishSpan(span, &err)
	return getRow(ctx, s.db, psql.Select(templateColumns...).From("issue_templates t").Where(sq.Eq{"t.id": id}),
		scanTemplate, "Template not found.")
}

func (s *TemplateService) CreateTemplate(ctx context.Context, actor visibility.Actor, in TemplateInput) (result0 *models.IssueTemplate, err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "create_template", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)

	if !actor.Role.IsStaff() {
		return nil, contextutils.Forbiddenf("Only mentors and admins can create templates.")
	}
	if err = in.validate(); err != nil {
		return nil, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO issue_templates (title, description_template, category, created_by, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING id`,
		in.Title, in.DescriptionTemplate, in.Category, actor.ID).Scan(&id)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to insert template")
	}
	return s.GetTemplate(ctx, id)
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, actor visibility.Actor, id int64, in TemplateInput) (result0 *models.IssueTemplate, err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "update_template", attribute.Int64("template.id", id))
	defer observability.FinishSpan(span, &err)

	current, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = ownedOrStaff(actor, current.CreatedBy, "templates"); err != nil {
		return nil, err
	}
	if err = in.validate(); err != nil {
		return nil, err
	}
	if _, err = s.db.ExecContext(ctx,
		`UPDATE issue_templates SET title = $1, description_template = $2, category = $3 WHERE id = $4`,
		in.Title, in.DescriptionTemplate, in.Category, id); err != nil {
		return nil, contextutils.WrapError(err, "failed to update template")
	}
	return s.GetTemplate(ctx, id)
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, actor visibility.Actor, id int64) (err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "delete_template", attribute.Int64("template.id", id))
	defer observability.FinishSpan(span, &err)

	current, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if err = ownedOrStaff(actor, current.CreatedBy, "templates"); err != nil {
		return err
	}
	if _, err = s.db.ExecContext(ctx, `DELETE FROM issue_templates WHERE id = $1`, id); err != nil {
		return contextutils.WrapError(err, "failed to delete template")
	}
	return nil
}
