package services

import (
	"context"
	"database/sql"
	"strings"

	"issuetracker/internal/database"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogServiceInterface covers courses, projects and tasks
type CatalogServiceInterface interface {
	ListCourses(ctx context.Context, search, order string, page PageRequest) ([]models.Course, int, error)
	GetCourse(ctx context.Context, id int64) (*models.Course, error)
	CreateCourse(ctx context.Context, in CourseInput) (*models.Course, error)
	UpdateCourse(ctx context.Context, id int64, in CourseInput) (*models.Course, error)
	DeleteCourse(ctx context.Context, id int64) error

	ListProjects(ctx context.Context, filter ProjectFilter, page PageRequest) ([]models.Project, int, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	CreateProject(ctx context.Context, in ProjectInput) (*models.Project, error)
	UpdateProject(ctx context.Context, id int64, in ProjectInput) (*models.Project, error)
	DeleteProject(ctx context.Context, id int64) error

	ListTasks(ctx context.Context, filter TaskFilter, page PageRequest) ([]models.Task, int, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	CreateTask(ctx context.Context, in TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, in TaskInput) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error

	Seed(ctx context.Context, seed models.CatalogSeed) (SeedResult, error)
}

type CourseInput struct {
	Name            string `json:"name" validate:"required,max=200"`
	DurationInWeeks int    `json:"duration_in_weeks" validate:"gte=1"`
}

type ProjectInput struct {
	CourseID   int64  `json:"course" validate:"required"`
	Name       string `json:"name" validate:"required,max=200"`
	WeekNumber int    `json:"week_number" validate:"gte=1"`
	TotalTasks int    `json:"total_tasks" validate:"gte=0"`
}

type TaskInput struct {
	ProjectID  int64  `json:"project" validate:"required"`
	TaskNumber int    `json:"task_number" validate:"gte=1"`
	Title      string `json:"title" validate:"required,max=200"`
}

type ProjectFilter struct {
	CourseID   *int64
	WeekNumber *int
	Search     string
	Ordering   string
}

type TaskFilter struct {
	ProjectID  *int64
	TaskNumber *int
	Search     string
	Ordering   string
}

// SeedResult counts what a catalog seed inserted
type SeedResult struct {
	Courses  int `json:"courses"`
	Projects int `json:"projects"`
	Tasks    int `json:"tasks"`
}

// CatalogService reads and maintains the curriculum hierarchy
type CatalogService struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewCatalogService(db *sql.DB, logger *observability.Logger) *CatalogService {
	return &CatalogService{db: db, logger: logger}
}

var (
	courseOrdering  = ordering{"name": "co.name", "duration_in_weeks": "co.duration_in_weeks", "created_at": "co.created_at"}
	projectOrdering = ordering{"name": "pr.name", "course": "pr.course_id", "week_number": "pr.week_number", "created_at": "pr.created_at"}
	taskOrdering    = ordering{"project": "tk.project_id", "task_number": "tk.task_number", "created_at": "tk.created_at"}
)

var (
	courseColumns  = []string{"co.id", "co.name", "co.duration_in_weeks", "co.created_at"}
	projectColumns = []string{"pr.id", "pr.course_id", "co.name", "pr.name", "pr.week_number", "pr.total_tasks", "pr.created_at"}
	taskColumns    = []string{"tk.id", "tk.project_id", "pr.name", "tk.task_number", "tk.title", "tk.created_at"}
)

const (
	projectFrom = "projects pr JOIN courses co ON co.id = pr.course_id"
	taskFrom    = "tasks tk JOIN projects pr ON pr.id = tk.project_id"
)

func scanCourse(row rowScanner) (*models.Course, error) {
	c := &models.Course{}
	if err := row.Scan(&c.ID, &c.Name, &c.DurationInWeeks, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func scanProject(row rowScanner) (*models.Project, error) {
	p := &models.Project{}
	if err := row.Scan(&p.ID, &p.CourseID, &p.CourseName, &p.Name, &p.WeekNumber, &p.TotalTasks, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	if err := row.Scan(&t.ID, &t.ProjectID, &t.ProjectName, &t.TaskNumber, &t.Title, &t.CreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// catalogConflict maps unique and foreign key violations on catalog writes
func catalogConflict(err error, entity, fields string) error {
	switch {
	case database.IsUniqueViolation(err):
		return contextutils.NewAppError(contextutils.ErrorCodeConflict, contextutils.SeverityWarn,
			"A "+entity+" with this "+fields+" already exists.", fields)
	case database.IsForeignKeyViolation(err):
		return contextutils.Validationf(fields, "Referenced object does not exist.")
	}
	return contextutils.WrapErrorf(err, "failed to write %s", entity)
}

func listRows[T any](ctx context.Context, q querier, b sq.SelectBuilder, scan func(rowScanner) (*T, error)) ([]T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build list query")
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to run list query")
	}
	defer func() { _ = rows.Close() }()

	out := []T{}
	for rows.Next() {
		item, scanErr := scan(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan row")
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate rows")
	}
	return out, nil
}

func getRow[T any](ctx context.Context, q querier, b sq.SelectBuilder, scan func(rowScanner) (*T, error), notFound string) (*T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build query")
	}
	item, err := scan(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFoundOnNoRows(err, notFound)
	}
	return item, nil
}

// ListCourses returns courses ordered by name unless order says otherwise
func (s *CatalogService) ListCourses(ctx context.Context, search, order string, page PageRequest) (result0 []models.Course, result1 int, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "list_courses", observability.AttributeSearch(search))
	defer observability.FinishSpan(span, &err)

	where := sq.And{}
	if f := ilikeAny(search, "co.name"); f != nil {
		where = append(where, f)
	}
	total, err := count(ctx, s.db, "courses co", where)
	if err != nil {
		return nil, 0, err
	}
	b := psql.Select(courseColumns...).From("courses co").Where(where).
		OrderBy(courseOrdering.resolve(order, "name", "co.id"))
	courses, err := listRows(ctx, s.db, page.apply(b), scanCourse)
	return courses, total, err
}

func (s *CatalogService) GetCourse(ctx context.Context, id int64) (result0 *models.Course, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_course", attribute.Int64("course.id", id))
	defer observability.FinishSpan(span, &err)
	return getRow(ctx, s.db, psql.Select(courseColumns...).From("courses co").Where(sq.Eq{"co.id": id}), scanCourse, "Course not found.")
}

func (s *CatalogService) CreateCourse(ctx context.Context, in CourseInput) (result0 *models.Course, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "create_course")
	defer observability.FinishSpan(span, &err)

	if in.DurationInWeeks == 0 {
		in.DurationInWeeks = 12
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO courses (name, duration_in_weeks) VALUES ($1, $2) RETURNING id`,
		strings.TrimSpace(in.Name), in.DurationInWeeks).Scan(&id)
	if err != nil {
		return nil, catalogConflict(err, "course", "name")
	}
	return s.GetCourse(ctx, id)
}

func (s *CatalogService) UpdateCourse(ctx context.Context, id int64, in CourseInput) (result0 *models.Course, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "update_course", attribute.Int64("course.id", id))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `UPDATE courses SET name = $1, duration_in_weeks = $2 WHERE id = $3`,
		strings.TrimSpace(in.Name), in.DurationInWeeks, id)
	if err != nil {
		return nil, catalogConflict(err, "course", "name")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, contextutils.NotFoundf("Course not found.")
	}
	return s.GetCourse(ctx, id)
}

func (s *CatalogService) DeleteCourse(ctx context.Context, id int64) (err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "delete_course", attribute.Int64("course.id", id))
	defer observability.FinishSpan(span, &err)
	return s.deleteByID(ctx, "courses", id, "Course not found.")
}

func (s *CatalogService) deleteByID(ctx context.Context, table string, id int64, notFound string) error {
	query, args, err := psql.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return contextutils.WrapError(err, "failed to build delete")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to delete from %s", table)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.NotFoundf("%s", notFound)
	}
	return nil
}

// ListProjects orders by course then week by default
func (s *CatalogService) ListProjects(ctx context.Context, filter ProjectFilter, page PageRequest) (result0 []models.Project, result1 int, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "list_projects", observability.AttributeSearch(filter.Search))
	defer observability.FinishSpan(span, &err)

	where := sq.And{}
	if filter.CourseID != nil {
		where = append(where, sq.Eq{"pr.course_id": *filter.CourseID})
	}
	if filter.WeekNumber != nil {
		where = append(where, sq.Eq{"pr.week_number": *filter.WeekNumber})
	}
	if f := ilikeAny(filter.Search, "pr.name"); f != nil {
		where = append(where, f)
	}
	total, err := count(ctx, s.db, projectFrom, where)
	if err != nil {
		return nil, 0, err
	}
	order := "pr.course_id ASC, pr.week_number ASC, pr.id ASC"
	if filter.Ordering != "" {
		order = projectOrdering.resolve(filter.Ordering, "week_number", "pr.id")
	}
	b := psql.Select(projectColumns...).From(projectFrom).Where(where).OrderBy(order)
	projects, err := listRows(ctx, s.db, page.apply(b), scanProject)
	return projects, total, err
}

func (s *CatalogService) GetProject(ctx context.Context, id int64) (result0 *models.Project, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_project", attribute.Int64("project.id", id))
	defer observability.FinishSpan(span, &err)
	return getRow(ctx, s.db, psql.Select(projectColumns...).From(projectFrom).Where(sq.Eq{"pr.id": id}), scanProject, "Project not found.")
}

func (s *CatalogService) CreateProject(ctx context.Context, in ProjectInput) (result0 *models.Project, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "create_project", attribute.Int64("course.id", in.CourseID))
	defer observability.FinishSpan(span, &err)

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO projects (course_id, name, week_number, total_tasks) VALUES ($1, $2, $3, $4) RETURNING id`,
		in.CourseID, strings.TrimSpace(in.Name), in.WeekNumber, in.TotalTasks).Scan(&id)
	if err != nil {
		return nil, catalogConflict(err, "project", "course, name, week_number")
	}
	return s.GetProject(ctx, id)
}

func (s *CatalogService) UpdateProject(ctx context.Context, id int64, in ProjectInput) (result0 *models.Project, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "update_project", attribute.Int64("project.id", id))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET course_id = $1, name = $2, week_number = $3, total_tasks = $4 WHERE id = $5`,
		in.CourseID, strings.TrimSpace(in.Name), in.WeekNumber, in.TotalTasks, id)
	if err != nil {
		return nil, catalogConflict(err, "project", "course, name, week_number")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, contextutils.NotFoundf("Project not found.")
	}
	return s.GetProject(ctx, id)
}

func (s *CatalogService) DeleteProject(ctx context.Context, id int64) (err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "delete_project", attribute.Int64("project.id", id))
	defer observability.FinishSpan(span, &err)
	return s.deleteByID(ctx, "projects", id, "Project not found.")
}

// ListTasks orders by project then task number by default
func (s *CatalogService) ListTasks(ctx context.Context, filter TaskFilter, page PageRequest) (result0 []models.Task, result1 int, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "list_tasks", observability.AttributeSearch(filter.Search))
	defer observability.FinishSpan(span, &err)

	where := sq.And{}
	if filter.ProjectID != nil {
		where = append(where, sq.Eq{"tk.project_id": *filter.ProjectID})
	}
	if filter.TaskNumber != nil {
		where = append(where, sq.Eq{"tk.task_number": *filter.TaskNumber})
	}
	if f := ilikeAny(filter.Search, "tk.title"); f != nil {
		where = append(where, f)
	}
	total, err := count(ctx, s.db, taskFrom, where)
	if err != nil {
		return nil, 0, err
	}
	order := "tk.project_id ASC, tk.task_number ASC, tk.id ASC"
	if filter.Ordering != "" {
		order = taskOrdering.resolve(filter.Ordering, "task_number", "tk.id")
	}
	b := psql.Select(taskColumns...).From(taskFrom).Where(where).OrderBy(order)
	tasks, err := listRows(ctx, s.db, page.apply(b), scanTask)
	return tasks, total, err
}

func (s *CatalogService) GetTask(ctx context.Context, id int64) (result0 *models.Task, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_task", attribute.Int64("task.id", id))
	defer observability.FinishSpan(span, &err)
	return getRow(ctx, s.db, psql.Select(taskColumns...).From(taskFrom).Where(sq.Eq{"tk.id": id}), scanTask, "Task not found.")
}

func (s *CatalogService) CreateTask(ctx context.Context, in TaskInput) (result0 *models.Task, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "create_task", attribute.Int64("project.id", in.ProjectID))
	defer observability.FinishSpan(span, &err)

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO tasks (project_id, task_number, title) VALUES ($1, $2, $3) RETURNING id`,
		in.ProjectID, in.TaskNumber, strings.TrimSpace(in.Title)).Scan(&id)
	if err != nil {
		return nil, catalogConflict(err, "task", "project, task_number")
	}
	return s.GetTask(ctx, id)
}

func (s *CatalogService) UpdateTask(ctx context.Context, id int64, in TaskInput) (result0 *models.Task, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "update_task", attribute.Int64("task.id", id))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET project_id = $1, task_number = $2, title = $3 WHERE id = $4`,
		in.ProjectID, in.TaskNumber, strings.TrimSpace(in.Title), id)
	if err != nil {
		return nil, catalogConflict(err, "task", "project, task_number")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, contextutils.NotFoundf("Task not found.")
	}
	return s.GetTask(ctx, id)
}

func (s *CatalogService) DeleteTask(ctx context.Context, id int64) (err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "delete_task", attribute.Int64("task.id", id))
	defer observability.FinishSpan(span, &err)
	return s.deleteByID(ctx, "tasks", id, "Task not found.")
}

// Seed upserts a course/project/task tree in one transaction. Existing rows
// matched on their natural keys are updated in place.
func (s *CatalogService) Seed(ctx context.Context, seed models.CatalogSeed) (result0 SeedResult, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "seed", attribute.Int("seed.courses", len(seed.Courses)))
	defer observability.FinishSpan(span, &err)

	var result SeedResult
	err = database.WithTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		for _, c := range seed.Courses {
			if strings.TrimSpace(c.Name) == "" {
				return contextutils.Validationf("name", "Course name is required.")
			}
			weeks := c.DurationInWeeks
			if weeks <= 0 {
				weeks = 12
			}
			var courseID int64
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO courses (name, duration_in_weeks) VALUES ($1, $2)
				 ON CONFLICT (name) DO UPDATE SET duration_in_weeks = EXCLUDED.duration_in_weeks RETURNING id`,
				c.Name, weeks).Scan(&courseID); err != nil {
				return contextutils.WrapErrorf(err, "failed to seed course %q", c.Name)
			}
			result.Courses++

			for _, p := range c.Projects {
				if p.WeekNumber < 1 {
					return contextutils.Validationf("week_number", "Ensure this value is greater than or equal to 1.")
				}
				var projectID int64
				if err := tx.QueryRowContext(ctx,
					`INSERT INTO projects (course_id, name, week_number, total_tasks) VALUES ($1, $2, $3, $4)
					 ON CONFLICT (course_id, name, week_number) DO UPDATE SET total_tasks = EXCLUDED.total_tasks RETURNING id`,
					courseID, p.Name, p.WeekNumber, len(p.Tasks)).Scan(&projectID); err != nil {
					return contextutils.WrapErrorf(err, "failed to seed project %q", p.Name)
				}
				result.Projects++

				for _, t := range p.Tasks {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO tasks (project_id, task_number, title) VALUES ($1, $2, $3)
						 ON CONFLICT (project_id, task_number) DO UPDATE SET title = EXCLUDED.title`,
						projectID, t.Number, t.Title); err != nil {
						return contextutils.WrapErrorf(err, "failed to seed task %d of %q", t.Number, p.Name)
					}
					result.Tasks++
				}
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	s.logger.Info(ctx, "Seeded catalog", map[string]interface{}{
		"courses": result.Courses, "projects": result.Projects, "tasks": result.Tasks,
	})
	return result, nil
}
