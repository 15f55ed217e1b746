package content_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"virtwin_back/content"
	"virtwin_back/export"
	"virtwin_back/models"
	"virtwin_back/store"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	require.NoError(t, store.EnsureDefaults(db))

	router := gin.New()
	_, err = content.RegisterRoutes(router, db)
	require.NoError(t, err)

	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestCreateBookmarkDefaultsDuration(t *testing.T) {
	router, db := setupRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/bookmarks", gin.H{
		"title": "X", "x": 1, "y": 2, "z": 3,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var bookmark models.Bookmark
	require.NoError(t, db.First(&bookmark, "title = ?", "X").Error)
	assert.Equal(t, float64(1), bookmark.Duration)
}

func TestDeleteBookmarkCascadesToToolAssociations(t *testing.T) {
	router, db := setupRouter(t)

	bookmark := models.Bookmark{Title: "X", X: 1, Y: 2, Z: 3, Duration: 1}
	require.NoError(t, db.Create(&bookmark).Error)

	twin := models.DigitalTwin{Name: "bodem", Title: "Bodem"}
	require.NoError(t, db.Create(&twin).Error)

	var tool models.Tool
	require.NoError(t, db.First(&tool, "name = ?", "bookmarks").Error)
	var contentType models.ContentType
	require.NoError(t, db.First(&contentType, "name = ?", "bookmark").Error)

	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: tool.ID,
	}).Error)
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: tool.ID,
		ContentTypeID: &contentType.ID, ContentID: &bookmark.ID,
	}).Error)

	recorder := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/bookmarks/%d", bookmark.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	// 书签行和指向它的挂接行在同一事务内消失，启用行保留。
	var bookmarkCount int64
	require.NoError(t, db.Model(&models.Bookmark{}).Count(&bookmarkCount).Error)
	assert.Equal(t, int64(0), bookmarkCount)

	var attachmentCount int64
	require.NoError(t, db.Model(&models.DigitalTwinToolAssociation{}).
		Where("content_id IS NOT NULL").Count(&attachmentCount).Error)
	assert.Equal(t, int64(0), attachmentCount)

	var bareCount int64
	require.NoError(t, db.Model(&models.DigitalTwinToolAssociation{}).
		Where("content_id IS NULL").Count(&bareCount).Error)
	assert.Equal(t, int64(1), bareCount)

	// 随后的导出成功且不再包含该书签。
	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	twinTools, ok := document["tools"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, twinTools, 1)
	settings, _ := twinTools[0]["settings"].(map[string]interface{})
	if settings != nil {
		_, present := settings["bookmarks"]
		assert.False(t, present)
	}
}

func TestUpdateBookmarkPartial(t *testing.T) {
	router, db := setupRouter(t)

	bookmark := models.Bookmark{Title: "X", X: 1, Y: 2, Z: 3, Heading: 10, Pitch: -30, Duration: 2}
	require.NoError(t, db.Create(&bookmark).Error)

	recorder := doJSON(t, router, http.MethodPut, fmt.Sprintf("/bookmarks/%d", bookmark.ID), gin.H{
		"title": "Y",
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var reloaded models.Bookmark
	require.NoError(t, db.First(&reloaded, "id = ?", bookmark.ID).Error)
	assert.Equal(t, "Y", reloaded.Title)
	assert.Equal(t, float64(1), reloaded.X)
	assert.Equal(t, float64(-30), reloaded.Pitch)
	assert.Equal(t, float64(2), reloaded.Duration)
}
