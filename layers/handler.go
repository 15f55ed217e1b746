package layers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
	"virtwin_back/store"
)

// Module 聚合图层管理相关的依赖。
type Module struct {
	db *gorm.DB
}

var layerSearchColumns = []string{"title", "type", "url"}

var layerSortColumns = map[string]string{
	"id":           "id",
	"title":        "title",
	"type":         "type",
	"url":          "url",
	"last_updated": "last_updated",
}

// RegisterRoutes 初始化图层模块并注册所有相关路由。
func RegisterRoutes(router *gin.Engine, db *gorm.DB) (*Module, error) {
	if db == nil {
		return nil, errors.New("layers: database handle is required")
	}

	module := &Module{db: db}

	group := router.Group("/layers")
	group.GET("", module.handleListLayers)
	group.GET("/search", module.handleSearchLayers)
	group.GET("/:id", module.handleGetLayer)
	group.POST("", module.handleCreateLayer)
	group.PUT("/:id", module.handleUpdateLayer)
	group.DELETE("/:id", module.handleDeleteLayer)

	return module, nil
}

type createLayerRequest struct {
	Type         string         `json:"type" binding:"required"`
	Title        string         `json:"title" binding:"required"`
	Beschrijving *string        `json:"beschrijving"`
	URL          string         `json:"url" binding:"required"`
	FeatureName  *string        `json:"featureName"`
	IsBackground bool           `json:"isBackground"`
	Content      datatypes.JSON `json:"content"`
}

type updateLayerRequest struct {
	Type         *string         `json:"type"`
	Title        *string         `json:"title"`
	Beschrijving *string         `json:"beschrijving"`
	URL          *string         `json:"url"`
	FeatureName  *string         `json:"featureName"`
	IsBackground *bool           `json:"isBackground"`
	Content      *datatypes.JSON `json:"content"`
}

// parseIDParam 解析路径中的数字主键。
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// handleListLayers godoc
// @Summary 列出全部图层
// @Description 返回所有图层定义，不做过滤
// @Tags Layers
// @Produce json
// @Success 200 {object} map[string]interface{} "图层列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListLayers 返回全部图层行。
func (m *Module) handleListLayers(c *gin.Context) {
	ctx := c.Request.Context()

	var layers []models.Layer
	if err := m.db.WithContext(ctx).Find(&layers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list layers", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"layers": layers})
}

// handleSearchLayers godoc
// @Summary 搜索图层
// @Description 按标题/类型/地址模糊搜索并分页返回
// @Tags Layers
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
// handleSearchLayers 分页搜索图层。
func (m *Module) handleSearchLayers(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := store.ParseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := store.ApplySearch(m.db.WithContext(ctx).Model(&models.Layer{}), q.Search, layerSearchColumns)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count layers", "details": err.Error()})
		return
	}

	var results []models.Layer
	if err := store.ApplySort(tx, q, layerSortColumns).
		Limit(q.PageSize).Offset(q.Offset()).
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search layers", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// handleGetLayer godoc
// @Summary 获取图层
// @Description 按主键返回单个图层
// @Tags Layers
// @Produce json
// @Param id path int true "图层ID"
// @Success 200 {object} map[string]interface{} "图层"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetLayer 按 ID 查询图层。
func (m *Module) handleGetLayer(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid layer id"})
		return
	}

	ctx := c.Request.Context()

	var layer models.Layer
	if err := m.db.WithContext(ctx).First(&layer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "layer not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load layer", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"layer": layer})
}

// handleCreateLayer godoc
// @Summary 创建图层
// @Description 新建图层定义并落库
// @Tags Layers
// @Accept json
// @Produce json
// @Param request body createLayerRequest true "图层信息"
// @Success 201 {object} map[string]interface{} "创建成功的图层"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateLayer 处理创建图层的请求。
func (m *Module) handleCreateLayer(c *gin.Context) {
	var req createLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	title := strings.TrimSpace(req.Title)
	layerType := strings.TrimSpace(req.Type)
	url := strings.TrimSpace(req.URL)
	if title == "" || layerType == "" || url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type, title and url are required"})
		return
	}

	layer := models.Layer{
		Type:         layerType,
		Title:        title,
		Beschrijving: normalizeStringPointer(req.Beschrijving),
		URL:          url,
		FeatureName:  normalizeStringPointer(req.FeatureName),
		IsBackground: req.IsBackground,
		Content:      req.Content,
	}

	ctx := c.Request.Context()

	if err := m.db.WithContext(ctx).Create(&layer).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create layer", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"layer": layer})
}

// handleUpdateLayer godoc
// @Summary 更新图层
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags Layers
// @Accept json
// @Produce json
// @Param id path int true "图层ID"
// @Param request body updateLayerRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的图层"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateLayer 处理图层的部分更新。
func (m *Module) handleUpdateLayer(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid layer id"})
		return
	}

	var req updateLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var layer models.Layer
	if err := m.db.WithContext(ctx).First(&layer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "layer not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load layer", "details": err.Error()})
		}
		return
	}

	updates := make(map[string]interface{})

	if req.Type != nil {
		layerType := strings.TrimSpace(*req.Type)
		if layerType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type cannot be empty"})
			return
		}
		updates["type"] = layerType
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title cannot be empty"})
			return
		}
		updates["title"] = title
	}
	if req.Beschrijving != nil {
		updates["beschrijving"] = normalizeStringPointer(req.Beschrijving)
	}
	if req.URL != nil {
		url := strings.TrimSpace(*req.URL)
		if url == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url cannot be empty"})
			return
		}
		updates["url"] = url
	}
	if req.FeatureName != nil {
		updates["feature_name"] = normalizeStringPointer(req.FeatureName)
	}
	if req.IsBackground != nil {
		updates["is_background"] = *req.IsBackground
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}

	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.Layer{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update layer", "details": err.Error()})
			return
		}
		cache.DropAllExports(ctx)
	}

	if err := m.db.WithContext(ctx).First(&layer, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load layer", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"layer": layer})
}

// handleDeleteLayer godoc
// @Summary 删除图层
// @Description 删除图层及其在所有孪生中的关联行
// @Tags Layers
// @Produce json
// @Param id path int true "图层ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteLayer 删除图层并同事务清理关联。
func (m *Module) handleDeleteLayer(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid layer id"})
		return
	}

	ctx := c.Request.Context()

	var layer models.Layer
	if err := m.db.WithContext(ctx).First(&layer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "layer not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load layer", "details": err.Error()})
		}
		return
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("layer_id = ?", id).Delete(&models.DigitalTwinLayerAssociation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Layer{}, "id = ?", id).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete layer", "details": err.Error()})
		return
	}

	cache.DropAllExports(ctx)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// normalizeStringPointer 去除首尾空白，空串归一化为 nil。
func normalizeStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
