package twins_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"virtwin_back/models"
	"virtwin_back/store"
	"virtwin_back/twins"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	require.NoError(t, store.EnsureDefaults(db))

	router := gin.New()
	_, err = twins.RegisterRoutes(router, db, nil)
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

func createTwin(t *testing.T, db *gorm.DB, name string) models.DigitalTwin {
	t.Helper()

	twin := models.DigitalTwin{Name: name, Title: name}
	require.NoError(t, db.Create(&twin).Error)
	return twin
}

func decodeCounters(t *testing.T, recorder *httptest.ResponseRecorder) map[string]int {
	t.Helper()

	var counters map[string]int
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &counters))
	return counters
}

func TestBulkLayersIdempotentCreate(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "bodem")

	layer := models.Layer{Type: "wms", Title: "BRT", URL: "https://example.test/brt"}
	require.NoError(t, db.Create(&layer).Error)

	body := gin.H{"operations": []gin.H{
		{"action": "create", "layer_id": layer.ID, "sort_order": 0},
	}}
	path := fmt.Sprintf("/digital-twins/%d/layers/bulk", twin.ID)

	first := doJSON(t, router, http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, 1, decodeCounters(t, first)["created"])

	// 第二次提交同一 create 条目是无操作。
	second := doJSON(t, router, http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, 0, decodeCounters(t, second)["created"])

	var count int64
	require.NoError(t, db.Model(&models.DigitalTwinLayerAssociation{}).
		Where("digital_twin_id = ?", twin.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBulkLayersUpdateMissingIsNoOp(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "bodem")

	body := gin.H{"operations": []gin.H{
		{"action": "update", "layer_id": 424242, "sort_order": 5},
	}}
	recorder := doJSON(t, router, http.MethodPost, fmt.Sprintf("/digital-twins/%d/layers/bulk", twin.ID), body)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	counters := decodeCounters(t, recorder)
	assert.Equal(t, 0, counters["updated"])
}

func TestBulkLayersUnknownTwin(t *testing.T) {
	router, _ := setupRouter(t)

	body := gin.H{"operations": []gin.H{}}
	recorder := doJSON(t, router, http.MethodPost, "/digital-twins/99999/layers/bulk", body)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestBulkGroupsRequireIDBeforeAnyWrite(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "groepen")

	body := gin.H{"operations": []gin.H{
		{"action": "create", "title": "Nieuwe groep"},
		{"action": "update", "title": "Zonder id"},
	}}
	recorder := doJSON(t, router, http.MethodPost, fmt.Sprintf("/digital-twins/%d/groups/bulk", twin.ID), body)
	require.Equal(t, http.StatusBadRequest, recorder.Code, recorder.Body.String())

	// 校验失败时批次里任何条目都不能落库。
	var count int64
	require.NoError(t, db.Model(&models.Group{}).Where("digital_twin_id = ?", twin.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestBulkGroupsDeleteUnfilesLayers(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "groepen")

	group := models.Group{Title: "Ondergrond", DigitalTwinID: twin.ID}
	require.NoError(t, db.Create(&group).Error)

	layer := models.Layer{Type: "wms", Title: "BRT", URL: "https://example.test/brt"}
	require.NoError(t, db.Create(&layer).Error)
	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: layer.ID, GroupID: &group.ID,
	}).Error)

	body := gin.H{"operations": []gin.H{
		{"action": "delete", "id": group.ID},
	}}
	recorder := doJSON(t, router, http.MethodPost, fmt.Sprintf("/digital-twins/%d/groups/bulk", twin.ID), body)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Equal(t, 1, decodeCounters(t, recorder)["deleted"])

	var association models.DigitalTwinLayerAssociation
	require.NoError(t, db.First(&association, "digital_twin_id = ? AND layer_id = ?", twin.ID, layer.ID).Error)
	assert.Nil(t, association.GroupID)
}

func TestBulkBookmarksAtomicRollback(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "bodem")

	bookmark := models.Bookmark{Title: "X", X: 1, Y: 2, Z: 3, Duration: 1}
	require.NoError(t, db.Create(&bookmark).Error)

	body := gin.H{"operations": []gin.H{
		{"action": "create", "content_id": bookmark.ID},
		{"action": "create", "content_id": 99999},
	}}
	recorder := doJSON(t, router, http.MethodPost, fmt.Sprintf("/digital-twins/%d/bookmarks/bulk", twin.ID), body)
	require.Equal(t, http.StatusBadRequest, recorder.Code, recorder.Body.String())

	// 第二条失败时第一条也必须回滚。
	var count int64
	require.NoError(t, db.Model(&models.DigitalTwinToolAssociation{}).
		Where("digital_twin_id = ?", twin.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestBulkBookmarksCreateAndDelete(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "bodem")

	bookmark := models.Bookmark{Title: "X", X: 1, Y: 2, Z: 3, Duration: 1}
	require.NoError(t, db.Create(&bookmark).Error)

	path := fmt.Sprintf("/digital-twins/%d/bookmarks/bulk", twin.ID)

	created := doJSON(t, router, http.MethodPost, path, gin.H{"operations": []gin.H{
		{"action": "create", "content_id": bookmark.ID, "sort_order": 2},
	}})
	require.Equal(t, http.StatusOK, created.Code, created.Body.String())
	assert.Equal(t, 1, decodeCounters(t, created)["created"])

	var association models.DigitalTwinToolAssociation
	require.NoError(t, db.First(&association, "digital_twin_id = ?", twin.ID).Error)
	require.NotNil(t, association.ContentID)
	assert.Equal(t, bookmark.ID, *association.ContentID)
	assert.Equal(t, 2, association.SortOrder)

	deleted := doJSON(t, router, http.MethodPost, path, gin.H{"operations": []gin.H{
		{"action": "delete", "content_id": bookmark.ID},
	}})
	require.Equal(t, http.StatusOK, deleted.Code, deleted.Body.String())
	assert.Equal(t, 1, decodeCounters(t, deleted)["deleted"])

	var count int64
	require.NoError(t, db.Model(&models.DigitalTwinToolAssociation{}).
		Where("digital_twin_id = ?", twin.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestBulkToolsEnableAndOverride(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "werkbalk")

	var tool models.Tool
	require.NoError(t, db.First(&tool, "name = ?", "measure").Error)

	path := fmt.Sprintf("/digital-twins/%d/tools/bulk", twin.ID)

	enabled := doJSON(t, router, http.MethodPost, path, gin.H{"operations": []gin.H{
		{"action": "create", "tool_id": tool.ID},
	}})
	require.Equal(t, http.StatusOK, enabled.Code, enabled.Body.String())
	assert.Equal(t, 1, decodeCounters(t, enabled)["created"])

	updated := doJSON(t, router, http.MethodPost, path, gin.H{"operations": []gin.H{
		{"action": "update", "tool_id": tool.ID, "content": gin.H{"unit": "meters"}},
	}})
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())
	assert.Equal(t, 1, decodeCounters(t, updated)["updated"])

	var association models.DigitalTwinToolAssociation
	require.NoError(t, db.First(&association, "digital_twin_id = ? AND tool_id = ?", twin.ID, tool.ID).Error)
	assert.JSONEq(t, `{"unit": "meters"}`, string(association.Content))
}

func TestBulkUnknownActionRejected(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "bodem")

	body := gin.H{"operations": []gin.H{
		{"action": "upsert", "layer_id": 1},
	}}
	recorder := doJSON(t, router, http.MethodPost, fmt.Sprintf("/digital-twins/%d/layers/bulk", twin.ID), body)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
