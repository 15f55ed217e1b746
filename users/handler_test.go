package users_test

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
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"virtwin_back/models"
	"virtwin_back/store"
	"virtwin_back/users"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))

	router := gin.New()
	_, err = users.RegisterRoutes(router, db)
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

func TestCreateUserHashesPassword(t *testing.T) {
	router, db := setupRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/users", gin.H{
		"name": "Anna", "email": "anna@example.test", "password": "geheim123",
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var user models.User
	require.NoError(t, db.First(&user, "email = ?", "anna@example.test").Error)
	assert.NotEqual(t, "geheim123", user.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("geheim123")))

	// 密码哈希绝不能出现在响应里。
	assert.NotContains(t, recorder.Body.String(), user.Password)
}

func TestCreateUserEmailConflict(t *testing.T) {
	router, _ := setupRouter(t)

	first := doJSON(t, router, http.MethodPost, "/users", gin.H{
		"name": "Anna", "email": "anna@example.test", "password": "geheim123",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, router, http.MethodPost, "/users", gin.H{
		"name": "Andere Anna", "email": "ANNA@example.test", "password": "geheim456",
	})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestCreateUserWeakPasswordRejected(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/users", gin.H{
		"name": "Anna", "email": "anna@example.test", "password": "kort",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestUpdateUserEmptyPayloadUnchanged(t *testing.T) {
	router, db := setupRouter(t)

	created := doJSON(t, router, http.MethodPost, "/users", gin.H{
		"name": "Anna", "email": "anna@example.test", "password": "geheim123",
	})
	require.Equal(t, http.StatusCreated, created.Code)

	var before models.User
	require.NoError(t, db.First(&before, "email = ?", "anna@example.test").Error)

	recorder := doJSON(t, router, http.MethodPut, fmt.Sprintf("/users/%d", before.ID), gin.H{})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var after models.User
	require.NoError(t, db.First(&after, "id = ?", before.ID).Error)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, before.Email, after.Email)
	assert.Equal(t, before.Password, after.Password)
}

func TestSearchUsers(t *testing.T) {
	router, _ := setupRouter(t)

	for i := 0; i < 3; i++ {
		recorder := doJSON(t, router, http.MethodPost, "/users", gin.H{
			"name":     fmt.Sprintf("Gebruiker %d", i),
			"email":    fmt.Sprintf("gebruiker%d@example.test", i),
			"password": "geheim123",
		})
		require.Equal(t, http.StatusCreated, recorder.Code)
	}

	recorder := doJSON(t, router, http.MethodGet, "/users/search?search=gebruiker%201", nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var payload struct {
		Results []models.User `json:"results"`
		Total   int64         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, int64(1), payload.Total)
}
