package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentActor(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := currentActor(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPathID(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"7", 7, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Params = gin.Params{{Key: "id", Value: tt.raw}}

			id, ok := pathID(c, "id")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, id)
			if !tt.ok {
				assert.Equal(t, http.StatusNotFound, w.Code)
			}
		})
	}
}

func TestQueryFilters(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/?search=+loops+&course=4&week=2&read=1&after=2024-03-01T10:00:00Z&day=2024-03-02", nil)

	q := newQueryFilters(c)
	assert.Equal(t, "loops", q.str("search"))
	require.NotNil(t, q.int64("course"))
	assert.Equal(t, int64(4), *q.int64("course"))
	assert.Equal(t, 2, *q.int("week"))
	assert.True(t, *q.bool("read"))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), *q.time("after"))
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), *q.time("day"))
	assert.Nil(t, q.int64("missing"))
	assert.True(t, q.ok())
}

func TestQueryFilters_FirstErrorWins(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?course=x&created_after=yesterday", nil)

	q := newQueryFilters(c)
	q.int64("course")
	q.time("created_after")

	assert.False(t, q.ok())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"details":"course"`)
	assert.Contains(t, w.Body.String(), "A valid integer is required.")
}
