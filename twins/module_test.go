package twins_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtwin_back/models"
)

func TestCreateTwinNameConflict(t *testing.T) {
	router, _ := setupRouter(t)

	first := doJSON(t, router, http.MethodPost, "/digital-twins", gin.H{"name": "bodem", "title": "Bodem"})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := doJSON(t, router, http.MethodPost, "/digital-twins", gin.H{"name": "bodem", "title": "Ander"})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestUpdateTwinEmptyPayloadUnchanged(t *testing.T) {
	router, db := setupRouter(t)
	subtitle := "Ondergrond"
	twin := models.DigitalTwin{Name: "bodem", Title: "Bodem", Subtitle: &subtitle, Private: true}
	require.NoError(t, db.Create(&twin).Error)

	recorder := doJSON(t, router, http.MethodPut, fmt.Sprintf("/digital-twins/%d", twin.ID), gin.H{})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var reloaded models.DigitalTwin
	require.NoError(t, db.First(&reloaded, "id = ?", twin.ID).Error)
	assert.Equal(t, "bodem", reloaded.Name)
	assert.Equal(t, "Bodem", reloaded.Title)
	require.NotNil(t, reloaded.Subtitle)
	assert.Equal(t, "Ondergrond", *reloaded.Subtitle)
	assert.True(t, reloaded.Private)
}

func TestDeleteTwinCascades(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "bodem")

	layer := models.Layer{Type: "wms", Title: "BRT", URL: "https://example.test/brt"}
	require.NoError(t, db.Create(&layer).Error)
	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: layer.ID,
	}).Error)
	require.NoError(t, db.Create(&models.Group{Title: "Groep", DigitalTwinID: twin.ID}).Error)
	require.NoError(t, db.Create(&models.Viewer{
		DigitalTwinID: twin.ID,
		Content:       []byte(`{}`),
	}).Error)

	var tool models.Tool
	require.NoError(t, db.First(&tool, "name = ?", "bookmarks").Error)
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: tool.ID,
	}).Error)

	recorder := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/digital-twins/%d", twin.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	for _, model := range []any{
		&models.DigitalTwinLayerAssociation{},
		&models.DigitalTwinToolAssociation{},
		&models.Group{},
		&models.Viewer{},
	} {
		var count int64
		require.NoError(t, db.Model(model).Where("digital_twin_id = ?", twin.ID).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	}

	// 图层是共享的，不随孪生删除。
	var layerCount int64
	require.NoError(t, db.Model(&models.Layer{}).Count(&layerCount).Error)
	assert.Equal(t, int64(1), layerCount)
}

func TestViewerPutAndGet(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "viewer")

	path := fmt.Sprintf("/digital-twins/%d/viewer", twin.ID)

	missing := doJSON(t, router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)

	put := doJSON(t, router, http.MethodPut, path, gin.H{"logo": "https://example.test/logo.png"})
	require.Equal(t, http.StatusOK, put.Code, put.Body.String())

	get := doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, get.Code, get.Body.String())

	var payload struct {
		Viewer models.Viewer `json:"viewer"`
	}
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &payload))
	assert.JSONEq(t, `{"logo": "https://example.test/logo.png"}`, string(payload.Viewer.Content))
}

func TestCesiumLifecycle(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "cesium")

	path := fmt.Sprintf("/digital-twins/%d/cesium", twin.ID)

	missing := doJSON(t, router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)

	put := doJSON(t, router, http.MethodPut, path, gin.H{"cesiumSettingsMode": "custom", "shadows": true})
	require.Equal(t, http.StatusOK, put.Code, put.Body.String())

	get := doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, get.Code, get.Body.String())

	var payload struct {
		Cesium json.RawMessage `json:"cesium"`
	}
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &payload))
	assert.JSONEq(t, `{"cesiumSettingsMode": "custom", "shadows": true}`, string(payload.Cesium))

	deleted := doJSON(t, router, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, deleted.Code, deleted.Body.String())

	gone := doJSON(t, router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)

	var count int64
	require.NoError(t, db.Model(&models.DigitalTwinToolAssociation{}).
		Where("digital_twin_id = ?", twin.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestListTwinBookmarks(t *testing.T) {
	router, db := setupRouter(t)
	twin := createTwin(t, db, "bodem")

	bookmark := models.Bookmark{Title: "X", X: 1, Y: 2, Z: 3, Duration: 1}
	require.NoError(t, db.Create(&bookmark).Error)

	bulk := doJSON(t, router, http.MethodPost, fmt.Sprintf("/digital-twins/%d/bookmarks/bulk", twin.ID), gin.H{
		"operations": []gin.H{{"action": "create", "content_id": bookmark.ID}},
	})
	require.Equal(t, http.StatusOK, bulk.Code, bulk.Body.String())

	list := doJSON(t, router, http.MethodGet, fmt.Sprintf("/digital-twins/%d/bookmarks", twin.ID), nil)
	require.Equal(t, http.StatusOK, list.Code, list.Body.String())

	var payload struct {
		Bookmarks []models.Bookmark `json:"bookmarks"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &payload))
	require.Len(t, payload.Bookmarks, 1)
	assert.Equal(t, "X", payload.Bookmarks[0].Title)
}
