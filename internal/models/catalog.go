package models

import "time"

// Course is the top of the curriculum hierarchy
type Course struct {
	ID              int64     `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	DurationInWeeks int       `json:"duration_in_weeks" yaml:"duration_in_weeks"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
}

// Project belongs to a course and is unique on (course, name, week_number)
type Project struct {
	ID         int64     `json:"id" yaml:"id"`
	CourseID   int64     `json:"course" yaml:"course"`
	CourseName string    `json:"course_name" yaml:"-"`
	Name       string    `json:"name" yaml:"name"`
	WeekNumber int       `json:"week_number" yaml:"week_number"`
	TotalTasks int       `json:"total_tasks" yaml:"total_tasks"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
}

// Task belongs to a project and is unique on (project, task_number)
type Task struct {
	ID          int64     `json:"id" yaml:"id"`
	ProjectID   int64     `json:"project" yaml:"project"`
	ProjectName string    `json:"project_name" yaml:"-"`
	TaskNumber  int       `json:"task_number" yaml:"task_number"`
	Title       string    `json:"title" yaml:"title"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// CatalogSeed is the file format accepted by `adm catalog seed`.
type CatalogSeed struct {
	Courses []CourseSeed `yaml:"courses"`
}

type CourseSeed struct {
	Name            string        `yaml:"name"`
	DurationInWeeks int           `yaml:"duration_in_weeks"`
	Projects        []ProjectSeed `yaml:"projects"`
}

type ProjectSeed struct {
	Name       string     `yaml:"name"`
	WeekNumber int        `yaml:"week_number"`
	Tasks      []TaskSeed `yaml:"tasks"`
}

type TaskSeed struct {
	Number int    `yaml:"number"`
	Title  string `yaml:"title"`
}
