package twins

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
	"virtwin_back/storage"
	"virtwin_back/store"
)

// Module 聚合数字孪生相关的依赖。
type Module struct {
	db     *gorm.DB
	assets *storage.AssetStorage
}

var (
	// ErrTwinNameTaken 标识孪生名称唯一性冲突。
	ErrTwinNameTaken = errors.New("twins: digital twin name already exists")
	// ErrTwinNotFound 标识目标孪生不存在。
	ErrTwinNotFound = errors.New("twins: digital twin not found")
)

var twinSearchColumns = []string{"name", "title", "subtitle", "owner"}

var twinSortColumns = map[string]string{
	"id":           "id",
	"name":         "name",
	"title":        "title",
	"last_updated": "last_updated",
}

// RegisterRoutes 初始化孪生模块并注册所有相关路由。
// assets 可以为 nil，此时 logo/缩略图上传接口返回 503。
func RegisterRoutes(router *gin.Engine, db *gorm.DB, assets *storage.AssetStorage) (*Module, error) {
	if db == nil {
		return nil, errors.New("twins: database handle is required")
	}

	module := &Module{db: db, assets: assets}

	group := router.Group("/digital-twins")
	group.GET("", module.handleListTwins)
	group.GET("/search", module.handleSearchTwins)
	group.GET("/:id", module.handleGetTwin)
	group.POST("", module.handleCreateTwin)
	group.PUT("/:id", module.handleUpdateTwin)
	group.DELETE("/:id", module.handleDeleteTwin)

	group.GET("/:id/layers", module.handleListLayerAssociations)
	group.POST("/:id/layers", module.handleCreateLayerAssociation)
	group.PUT("/:id/layers/:layerID", module.handleUpdateLayerAssociation)
	group.DELETE("/:id/layers/:layerID", module.handleDeleteLayerAssociation)
	group.POST("/:id/layers/bulk", module.handleBulkLayers)

	group.GET("/:id/groups", module.handleListGroups)
	group.POST("/:id/groups/bulk", module.handleBulkGroups)

	group.GET("/:id/tools", module.handleListToolAssociations)
	group.POST("/:id/tools/bulk", module.handleBulkTools)

	group.GET("/:id/bookmarks", module.handleListTwinBookmarks)
	group.POST("/:id/bookmarks/bulk", module.handleBulkBookmarks)
	group.GET("/:id/projects", module.handleListTwinProjects)
	group.POST("/:id/projects/bulk", module.handleBulkProjects)
	group.GET("/:id/stories", module.handleListTwinStories)
	group.POST("/:id/stories/bulk", module.handleBulkStories)
	group.GET("/:id/terrain-providers", module.handleListTwinTerrainProviders)
	group.POST("/:id/terrain-providers/bulk", module.handleBulkTerrainProviders)

	group.GET("/:id/cesium", module.handleGetCesium)
	group.PUT("/:id/cesium", module.handlePutCesium)
	group.DELETE("/:id/cesium", module.handleDeleteCesium)

	group.GET("/:id/viewer", module.handleGetViewer)
	group.PUT("/:id/viewer", module.handlePutViewer)
	group.POST("/:id/viewer/logo", module.handleUploadViewerLogo)
	group.POST("/:id/viewer/thumbnail", module.handleUploadViewerThumbnail)

	return module, nil
}

type createTwinRequest struct {
	Name     string  `json:"name" binding:"required"`
	Title    string  `json:"title" binding:"required"`
	Subtitle *string `json:"subtitle"`
	Owner    *string `json:"owner"`
	Private  *bool   `json:"private"`
}

type updateTwinRequest struct {
	Name     *string `json:"name"`
	Title    *string `json:"title"`
	Subtitle *string `json:"subtitle"`
	Owner    *string `json:"owner"`
	Private  *bool   `json:"private"`
}

// parseIDParam 解析路径中的数字主键。
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// findTwin 按 ID 加载孪生，未找到时返回 ErrTwinNotFound。
func (m *Module) findTwin(ctx context.Context, id uint64) (*models.DigitalTwin, error) {
	var twin models.DigitalTwin
	if err := m.db.WithContext(ctx).First(&twin, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTwinNotFound
		}
		return nil, err
	}
	return &twin, nil
}

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

// handleListTwins godoc
// @Summary 列出全部数字孪生
// @Tags DigitalTwins
// @Produce json
// @Success 200 {object} map[string]interface{} "孪生列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListTwins 返回全部孪生行。
func (m *Module) handleListTwins(c *gin.Context) {
	ctx := c.Request.Context()

	var twins []models.DigitalTwin
	if err := m.db.WithContext(ctx).Find(&twins).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list digital twins", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"digital_twins": twins})
}

// handleSearchTwins godoc
// @Summary 搜索数字孪生
// @Tags DigitalTwins
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
// handleSearchTwins 分页搜索孪生。
func (m *Module) handleSearchTwins(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := store.ParseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := store.ApplySearch(m.db.WithContext(ctx).Model(&models.DigitalTwin{}), q.Search, twinSearchColumns)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count digital twins", "details": err.Error()})
		return
	}

	var results []models.DigitalTwin
	if err := store.ApplySort(tx, q, twinSortColumns).
		Limit(q.PageSize).Offset(q.Offset()).
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search digital twins", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// handleGetTwin godoc
// @Summary 获取数字孪生
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "孪生"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetTwin 按 ID 查询孪生。
func (m *Module) handleGetTwin(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}

	twin, err := m.findTwin(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTwinNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "digital twin not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load digital twin", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"digital_twin": twin})
}

// handleCreateTwin godoc
// @Summary 创建数字孪生
// @Description 新建孪生，名称必须全局唯一
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param request body createTwinRequest true "孪生信息"
// @Success 201 {object} map[string]interface{} "创建成功的孪生"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 409 {object} map[string]string "名称冲突"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateTwin 处理创建孪生的请求。
func (m *Module) handleCreateTwin(c *gin.Context) {
	var req createTwinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	title := strings.TrimSpace(req.Title)
	if name == "" || title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and title are required"})
		return
	}

	ctx := c.Request.Context()

	var count int64
	if err := m.db.WithContext(ctx).Model(&models.DigitalTwin{}).Where("name = ?", name).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check twin name", "details": err.Error()})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": ErrTwinNameTaken.Error()})
		return
	}

	twin := models.DigitalTwin{
		Name:     name,
		Title:    title,
		Subtitle: normalizeStringPointer(req.Subtitle),
		Owner:    normalizeStringPointer(req.Owner),
	}
	if req.Private != nil {
		twin.Private = *req.Private
	}

	if err := m.db.WithContext(ctx).Create(&twin).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create digital twin", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"digital_twin": twin})
}

// handleUpdateTwin godoc
// @Summary 更新数字孪生
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body updateTwinRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的孪生"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 409 {object} map[string]string "名称冲突"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateTwin 处理孪生的部分更新。
func (m *Module) handleUpdateTwin(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}

	var req updateTwinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	twin, err := m.findTwin(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTwinNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "digital twin not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load digital twin", "details": err.Error()})
		}
		return
	}

	updates := make(map[string]interface{})

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		if name != twin.Name {
			var count int64
			if err := m.db.WithContext(ctx).Model(&models.DigitalTwin{}).Where("name = ? AND id <> ?", name, id).Count(&count).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check twin name", "details": err.Error()})
				return
			}
			if count > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": ErrTwinNameTaken.Error()})
				return
			}
		}
		updates["name"] = name
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title cannot be empty"})
			return
		}
		updates["title"] = title
	}
	if req.Subtitle != nil {
		updates["subtitle"] = normalizeStringPointer(req.Subtitle)
	}
	if req.Owner != nil {
		updates["owner"] = normalizeStringPointer(req.Owner)
	}
	if req.Private != nil {
		updates["private"] = *req.Private
	}

	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.DigitalTwin{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update digital twin", "details": err.Error()})
			return
		}
		cache.DropExport(ctx, id)
	}

	twin, err = m.findTwin(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load digital twin", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"digital_twin": twin})
}

// handleDeleteTwin godoc
// @Summary 删除数字孪生
// @Description 级联删除孪生的分组、查看器配置以及图层/工具关联
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteTwin 在单个事务内删除孪生及其附属数据。
func (m *Module) handleDeleteTwin(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}

	ctx := c.Request.Context()

	if _, err := m.findTwin(ctx, id); err != nil {
		if errors.Is(err, ErrTwinNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "digital twin not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load digital twin", "details": err.Error()})
		}
		return
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("digital_twin_id = ?", id).Delete(&models.DigitalTwinLayerAssociation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("digital_twin_id = ?", id).Delete(&models.DigitalTwinToolAssociation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("digital_twin_id = ?", id).Delete(&models.Group{}).Error; err != nil {
			return err
		}
		if err := tx.Where("digital_twin_id = ?", id).Delete(&models.Viewer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.DigitalTwin{}, "id = ?", id).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete digital twin", "details": err.Error()})
		return
	}

	cache.DropExport(ctx, id)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleListGroups godoc
// @Summary 列出孪生的分组
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "分组列表"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListGroups 返回孪生的全部分组节点。
func (m *Module) handleListGroups(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}

	ctx := c.Request.Context()

	if _, err := m.findTwin(ctx, id); err != nil {
		if errors.Is(err, ErrTwinNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "digital twin not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load digital twin", "details": err.Error()})
		}
		return
	}

	var groups []models.Group
	if err := m.db.WithContext(ctx).
		Where("digital_twin_id = ?", id).
		Order("sort_order ASC").
		Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list groups", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// handleListToolAssociations godoc
// @Summary 列出孪生的工具关联
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "工具关联列表"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListToolAssociations 返回孪生启用的工具行（不含内容挂接行）。
func (m *Module) handleListToolAssociations(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}

	ctx := c.Request.Context()

	if _, err := m.findTwin(ctx, id); err != nil {
		if errors.Is(err, ErrTwinNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "digital twin not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load digital twin", "details": err.Error()})
		}
		return
	}

	var associations []models.DigitalTwinToolAssociation
	if err := m.db.WithContext(ctx).
		Where("digital_twin_id = ? AND content_type_id IS NULL AND content_id IS NULL", id).
		Order("sort_order ASC").
		Find(&associations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tool associations", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tool_associations": associations})
}
