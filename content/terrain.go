package content

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
	"virtwin_back/store"
)

var terrainSearchColumns = []string{"title", "url"}

var terrainSortColumns = map[string]string{
	"id":           "id",
	"title":        "title",
	"last_updated": "last_updated",
}

type createTerrainProviderRequest struct {
	Title         string  `json:"title" binding:"required"`
	URL           *string `json:"url"`
	VertexNormals bool    `json:"vertexNormals"`
}

type updateTerrainProviderRequest struct {
	Title         *string `json:"title"`
	URL           *string `json:"url"`
	VertexNormals *bool   `json:"vertexNormals"`
}

// handleListTerrainProviders godoc
// @Summary 列出全部地形源
// @Tags TerrainProviders
// @Produce json
// @Success 200 {object} map[string]interface{} "地形源列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListTerrainProviders 返回全部地形源行。
func (m *Module) handleListTerrainProviders(c *gin.Context) {
	ctx := c.Request.Context()

	var providers []models.TerrainProvider
	if err := m.db.WithContext(ctx).Find(&providers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list terrain providers", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"terrain_providers": providers})
}

// handleSearchTerrainProviders godoc
// @Summary 搜索地形源
// @Tags TerrainProviders
// @Produce json
// @Param search query string false "搜索词"
// @Param page query int false "页码，默认 1"
// @Param page_size query int false "每页数量，默认 10，最大 100"
// @Param sort_column query string false "排序列"
// @Param sort_direction query string false "排序方向 asc|desc"
// @Success 200 {object} map[string]interface{} "搜索结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleSearchTerrainProviders 分页搜索地形源。
func (m *Module) handleSearchTerrainProviders(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := store.ParseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := store.ApplySearch(m.db.WithContext(ctx).Model(&models.TerrainProvider{}), q.Search, terrainSearchColumns)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count terrain providers", "details": err.Error()})
		return
	}

	var results []models.TerrainProvider
	if err := store.ApplySort(tx, q, terrainSortColumns).
		Limit(q.PageSize).Offset(q.Offset()).
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search terrain providers", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// handleGetTerrainProvider godoc
// @Summary 获取地形源
// @Tags TerrainProviders
// @Produce json
// @Param id path int true "地形源ID"
// @Success 200 {object} map[string]interface{} "地形源"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetTerrainProvider 按 ID 查询地形源。
func (m *Module) handleGetTerrainProvider(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid terrain provider id"})
		return
	}

	ctx := c.Request.Context()

	var provider models.TerrainProvider
	if err := m.db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "terrain provider not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load terrain provider", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"terrain_provider": provider})
}

// handleCreateTerrainProvider godoc
// @Summary 创建地形源
// @Tags TerrainProviders
// @Accept json
// @Produce json
// @Param request body createTerrainProviderRequest true "地形源信息"
// @Success 201 {object} map[string]interface{} "创建成功的地形源"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateTerrainProvider 处理创建地形源的请求。
func (m *Module) handleCreateTerrainProvider(c *gin.Context) {
	var req createTerrainProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	provider := models.TerrainProvider{
		Title:         title,
		URL:           normalizeStringPointer(req.URL),
		VertexNormals: req.VertexNormals,
	}

	ctx := c.Request.Context()

	if err := m.db.WithContext(ctx).Create(&provider).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create terrain provider", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"terrain_provider": provider})
}

// handleUpdateTerrainProvider godoc
// @Summary 更新地形源
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags TerrainProviders
// @Accept json
// @Produce json
// @Param id path int true "地形源ID"
// @Param request body updateTerrainProviderRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的地形源"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateTerrainProvider 处理地形源的部分更新。
func (m *Module) handleUpdateTerrainProvider(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid terrain provider id"})
		return
	}

	var req updateTerrainProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var provider models.TerrainProvider
	if err := m.db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "terrain provider not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load terrain provider", "details": err.Error()})
		}
		return
	}

	updates := make(map[string]interface{})

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title cannot be empty"})
			return
		}
		updates["title"] = title
	}
	if req.URL != nil {
		updates["url"] = normalizeStringPointer(req.URL)
	}
	if req.VertexNormals != nil {
		updates["vertex_normals"] = *req.VertexNormals
	}

	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.TerrainProvider{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update terrain provider", "details": err.Error()})
			return
		}
		cache.DropAllExports(ctx)
	}

	if err := m.db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load terrain provider", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"terrain_provider": provider})
}

// handleDeleteTerrainProvider godoc
// @Summary 删除地形源
// @Tags TerrainProviders
// @Produce json
// @Param id path int true "地形源ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteTerrainProvider 删除地形源行；遗留的关联行由导出逻辑跳过。
func (m *Module) handleDeleteTerrainProvider(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid terrain provider id"})
		return
	}

	ctx := c.Request.Context()

	result := m.db.WithContext(ctx).Delete(&models.TerrainProvider{}, "id = ?", id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete terrain provider", "details": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "terrain provider not found"})
		return
	}

	cache.DropAllExports(ctx)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
