package layers_test

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

	"virtwin_back/layers"
	"virtwin_back/models"
	"virtwin_back/store"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))

	router := gin.New()
	_, err = layers.RegisterRoutes(router, db)
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

type searchPayload struct {
	Results  []models.Layer `json:"results"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

func seedLayers(t *testing.T, db *gorm.DB, count int) {
	t.Helper()

	for i := 0; i < count; i++ {
		layer := models.Layer{
			Type:  "wms",
			Title: fmt.Sprintf("Laag %02d", i),
			URL:   fmt.Sprintf("https://example.test/layers/%d", i),
		}
		require.NoError(t, db.Create(&layer).Error)
	}
}

func TestSearchLayersDefaultPageSize(t *testing.T) {
	router, db := setupRouter(t)
	seedLayers(t, db, 15)

	recorder := doJSON(t, router, http.MethodGet, "/layers/search", nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var payload searchPayload
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Len(t, payload.Results, 10)
	assert.Equal(t, int64(15), payload.Total)
	assert.Equal(t, 1, payload.Page)
	assert.Equal(t, 10, payload.PageSize)
}

func TestSearchLayersPageSizeClamped(t *testing.T) {
	router, db := setupRouter(t)
	seedLayers(t, db, 3)

	recorder := doJSON(t, router, http.MethodGet, "/layers/search?page_size=250", nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var payload searchPayload
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, 100, payload.PageSize)
	assert.Len(t, payload.Results, 3)
}

func TestSearchLayersInvalidPageRejected(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/layers/search?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/layers/search?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSearchLayersUnknownSortColumn(t *testing.T) {
	router, db := setupRouter(t)
	seedLayers(t, db, 2)

	// 未知排序列不报错，仅仅不排序。
	recorder := doJSON(t, router, http.MethodGet, "/layers/search?sort_column=geheim", nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var payload searchPayload
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, int64(2), payload.Total)
}

func TestSearchLayersFilterCountsAllMatches(t *testing.T) {
	router, db := setupRouter(t)
	seedLayers(t, db, 4)

	special := models.Layer{Type: "geojson", Title: "Waterlopen", URL: "https://example.test/water"}
	require.NoError(t, db.Create(&special).Error)

	recorder := doJSON(t, router, http.MethodGet, "/layers/search?search=waterlopen", nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var payload searchPayload
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, int64(1), payload.Total)
	require.Len(t, payload.Results, 1)
	assert.Equal(t, "Waterlopen", payload.Results[0].Title)
}

func TestUpdateLayerEmptyPayloadUnchanged(t *testing.T) {
	router, db := setupRouter(t)

	beschrijving := "Basisregistratie"
	layer := models.Layer{
		Type:         "wms",
		Title:        "BRT",
		URL:          "https://example.test/brt",
		Beschrijving: &beschrijving,
		IsBackground: true,
	}
	require.NoError(t, db.Create(&layer).Error)

	recorder := doJSON(t, router, http.MethodPut, fmt.Sprintf("/layers/%d", layer.ID), gin.H{})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var reloaded models.Layer
	require.NoError(t, db.First(&reloaded, "id = ?", layer.ID).Error)
	assert.Equal(t, "wms", reloaded.Type)
	assert.Equal(t, "BRT", reloaded.Title)
	assert.Equal(t, "https://example.test/brt", reloaded.URL)
	require.NotNil(t, reloaded.Beschrijving)
	assert.Equal(t, "Basisregistratie", *reloaded.Beschrijving)
	assert.True(t, reloaded.IsBackground)
}

func TestDeleteLayerRemovesAssociations(t *testing.T) {
	router, db := setupRouter(t)

	layer := models.Layer{Type: "wms", Title: "BRT", URL: "https://example.test/brt"}
	require.NoError(t, db.Create(&layer).Error)

	twin := models.DigitalTwin{Name: "bodem", Title: "Bodem"}
	require.NoError(t, db.Create(&twin).Error)
	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: layer.ID,
	}).Error)

	recorder := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/layers/%d", layer.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var count int64
	require.NoError(t, db.Model(&models.DigitalTwinLayerAssociation{}).
		Where("layer_id = ?", layer.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestGetLayerNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/layers/999", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
