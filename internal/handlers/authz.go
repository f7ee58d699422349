package handlers

import (
	"strconv"
	"strings"
	"time"

	"issuetracker/internal/middleware"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	"github.com/gin-gonic/gin"
)

// currentActor returns the authenticated actor, answering 401 when the
// route was registered without RequireAuth
func currentActor(c *gin.Context) (visibility.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return visibility.Actor{}, false
	}
	return actor, true
}

// pathID parses a numeric path parameter. A malformed id cannot name any
// row, so it answers 404.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		HandleAppError(c, contextutils.NotFoundf("Not found."))
		return 0, false
	}
	return id, true
}

// queryFilters collects optional typed query filters, remembering the first
// malformed one
type queryFilters struct {
	c   *gin.Context
	err error
}

func newQueryFilters(c *gin.Context) *queryFilters {
	return &queryFilters{c: c}
}

func (q *queryFilters) str(key string) string {
	return strings.TrimSpace(q.c.Query(key))
}

func (q *queryFilters) int64(key string) *int64 {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		q.fail(key, "A valid integer is required.")
		return nil
	}
	return &v
}

func (q *queryFilters) int(key string) *int {
	v := q.int64(key)
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func (q *queryFilters) bool(key string) *bool {
	raw := strings.ToLower(q.str(key))
	switch raw {
	case "":
		return nil
	case "true", "1":
		v := true
		return &v
	case "false", "0":
		v := false
		return &v
	}
	q.fail(key, "Must be a valid boolean.")
	return nil
}

// time accepts RFC3339 or a bare date
func (q *queryFilters) time(key string) *time.Time {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	q.fail(key, "Enter a valid date/time.")
	return nil
}

func (q *queryFilters) fail(key, message string) {
	if q.err == nil {
		q.err = contextutils.Validationf(key, "%s", message)
	}
}

// ok answers 400 for the first malformed filter
func (q *queryFilters) ok() bool {
	if q.err != nil {
		HandleAppError(q.c, q.err)
		return false
	}
	return true
}
