package export_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtwin_back/export"
	"virtwin_back/models"
)

func TestDownloadAttachmentHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "Mijn Tweeling", Title: "Mijn Tweeling"}
	require.NoError(t, db.Create(&twin).Error)

	router := gin.New()
	_, err := export.RegisterRoutes(router, db)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/digital-twins/%d/export/download.json", twin.ID), nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, `attachment; filename="mijn_tweeling.config.json"`, recorder.Header().Get("Content-Disposition"))

	var document map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &document))
	assert.Contains(t, document, "layers")
	assert.Contains(t, document, "tools")
}

func TestDownloadErrorWithoutAttachmentHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupDB(t)

	router := gin.New()
	_, err := export.RegisterRoutes(router, db)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/digital-twins/999/export/download.json", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Empty(t, recorder.Header().Get("Content-Disposition"))
}
