package services

import (
	"context"
	"database/sql"
	"strings"

	"issuetracker/internal/database"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

// KnowledgeServiceInterface defines the interface for knowledge base articles
type KnowledgeServiceInterface interface {
	ListArticles(ctx context.Context, filter ArticleFilter, page PageRequest) ([]models.KBArticle, int, error)
	GetArticle(ctx context.Context, id int64) (*models.KBArticle, error)
	CreateArticle(ctx context.Context, actor visibility.Actor, in ArticleInput) (*models.KBArticle, error)
	UpdateArticle(ctx context.Context, actor visibility.Actor, id int64, in ArticleInput) (*models.KBArticle, error)
	DeleteArticle(ctx context.Context, actor visibility.Actor, id int64) error
}

type ArticleInput struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	RelatedIssue *int64 `json:"related_issue"`
	Tags         string `json:"tags"`
}

type ArticleFilter struct {
	RelatedIssue *int64
	// Tags is comma separated; an article matches when it contains any of them
	Tags     string
	Search   string
	Ordering string
}

type KnowledgeService struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewKnowledgeService(db *sql.DB, logger *observability.Logger) *KnowledgeService {
	return &KnowledgeService{db: db, logger: logger}
}

var articleColumns = []string{"kb.id", "kb.title", "kb.content", "kb.related_issue_id", "kb.tags", "kb.created_by", "kb.created_at", "kb.updated_at"}

var articleOrdering = ordering{
	"created_at": "kb.created_at",
	"updated_at": "kb.updated_at",
	"title":      "kb.title",
}

func scanArticle(row rowScanner) (*models.KBArticle, error) {
	a := &models.KBArticle{}
	if err := row.Scan(&a.ID, &a.Title, &a.Content, &a.RelatedIssue, &a.Tags, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (in *ArticleInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Tags = strings.Join(models.SplitTags(in.Tags), ", ")
	switch {
	case in.Title == "":
		return contextutils.Validationf("title", "This field is required.")
	case len(in.Title) > 200:
		return contextutils.Validationf("title", "Ensure this field has no more than 200 characters.")
	case strings.TrimSpace(in.Content) == "":
		return contextutils.Validationf("content", "This field is required.")
	case len(in.Tags) > 200:
		return contextutils.Validationf("tags", "Ensure this field has no more than 200 characters.")
	}
	return nil
}

func articleWriteError(err error) error {
	if database.IsForeignKeyViolation(err) {
		return contextutils.Validationf("related_issue", "Invalid pk - object does not exist.")
	}
	return contextutils.WrapError(err, "failed to write article")
}

func (s *KnowledgeService) ListArticles(ctx context.Context, filter ArticleFilter, page PageRequest) (result0 []models.KBArticle, result1 int, err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "list_articles", observability.AttributeSearch(filter.Search))
	defer observability.FinishSpan(span, &err)

	where := sq.And{}
	if filter.RelatedIssue != nil {
		where = append(where, sq.Eq{"kb.related_issue_id": *filter.RelatedIssue})
	}
	if tags := models.SplitTags(filter.Tags); len(tags) > 0 {
		anyTag := sq.Or{}
		for _, t := range tags {
			anyTag = append(anyTag, sq.ILike{"kb.tags": "%" + t + "%"})
		}
		where = append(where, anyTag)
	}
	if f := ilikeAny(filter.Search, "kb.title", "kb.content", "kb.tags"); f != nil {
		where = append(where, f)
	}
	total, err := count(ctx, s.db, "kb_articles kb", where)
	if err != nil {
		return nil, 0, err
	}
	b := psql.Select(articleColumns...).From("kb_articles kb").Where(where).
		OrderBy(articleOrdering.resolve(filter.Ordering, "-created_at", "kb.id"))
	list, err := listRows(ctx, s.db, page.apply(b), scanArticle)
	return list, total, err
}

func (s *KnowledgeService) GetArticle(ctx context.Context, id int64) (result0 *models.KBArticle, err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "get_article", attribute.Int64("article.id", id))
	defer observability.FinishSpan(span, &err)
	return getRow(ctx, s.db, psql.Select(articleColumns...).From("kb_articles kb").Where(sq.Eq{"kb.id": id}),
		scanArticle, "Article not found.")
}

func (s *KnowledgeService) CreateArticle(ctx context.Context, actor visibility.Actor, in ArticleInput) (result0 *models.KBArticle, err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "create_article", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)

	if !actor.Role.IsStaff() {
		return nil, contextutils.Forbiddenf("Only mentors and admins can create articles.")
	}
	if err = in.validate(); err != nil {
		return nil, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO kb_articles (title, content, related_issue_id, tags, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		in.Title, in.Content, models.NullInt64(in.RelatedIssue), in.Tags, actor.ID).Scan(&id)
	if err != nil {
		return nil, articleWriteError(err)
	}
	s.logger.Info(ctx, "Knowledge base article created", map[string]interface{}{"article_id": id, "user_id": actor.ID})
	return s.GetArticle(ctx, id)
}

func (s *KnowledgeService) UpdateArticle(ctx context.Context, actor visibility.Actor, id int64, in ArticleInput) (result0 *models.KBArticle, err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "update_article", attribute.Int64("article.id", id))
	defer observability.FinishSpan(span, &err)

	current, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = ownedOrStaff(actor, current.CreatedBy, "articles"); err != nil {
		return nil, err
	}
	if err = in.validate(); err != nil {
		return nil, err
	}
	if _, err = s.db.ExecContext(ctx,
		`UPDATE kb_articles SET title = $1, content = $2, related_issue_id = $3, tags = $4, updated_at = NOW() WHERE id = $5`,
		in.Title, in.Content, models.NullInt64(in.RelatedIssue), in.Tags, id); err != nil {
		return nil, articleWriteError(err)
	}
	return s.GetArticle(ctx, id)
}

func (s *KnowledgeService) DeleteArticle(ctx context.Context, actor visibility.Actor, id int64) (err error) {
	ctx, span := observability.TraceKnowledgeFunction(ctx, "delete_article", attribute.Int64("article.id", id))
	defer observability.FinishSpan(span, &err)

	current, err := s.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	if err = ownedOrStaff(actor, current.CreatedBy, "articles"); err != nil {
		return err
	}
	if _, err = s.db.ExecContext(ctx, `DELETE FROM kb_articles WHERE id = $1`, id); err != nil {
		return contextutils.WrapError(err, "failed to delete article")
	}
	return nil
}
