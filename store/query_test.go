package store_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtwin_back/store"
)

func queryContext(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()

	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request = httptest.NewRequest("GET", "/search?"+rawQuery, nil)
	return ctx
}

func TestParseListQueryDefaults(t *testing.T) {
	q, err := store.ParseListQuery(queryContext(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 10, q.PageSize)
	assert.Equal(t, 0, q.Offset())
}

func TestParseListQueryClampsPageSize(t *testing.T) {
	q, err := store.ParseListQuery(queryContext(t, "page_size=500"))
	require.NoError(t, err)
	assert.Equal(t, 100, q.PageSize)
}

func TestParseListQueryOffset(t *testing.T) {
	q, err := store.ParseListQuery(queryContext(t, "page=3&page_size=20"))
	require.NoError(t, err)
	assert.Equal(t, 40, q.Offset())
}

func TestParseListQueryRejectsInvalidInput(t *testing.T) {
	_, err := store.ParseListQuery(queryContext(t, "page=0"))
	assert.Error(t, err)

	_, err = store.ParseListQuery(queryContext(t, "page=abc"))
	assert.Error(t, err)

	_, err = store.ParseListQuery(queryContext(t, "page_size=-1"))
	assert.Error(t, err)
}
