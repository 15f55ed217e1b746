package tools

import (
	"context"
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

// Module 聚合工具目录与内容类型注册表相关的依赖。
type Module struct {
	db *gorm.DB
}

// ErrToolNameTaken 标识工具名称唯一性冲突。
var ErrToolNameTaken = errors.New("tools: tool name already exists")

var toolSearchColumns = []string{"name", "description"}

var toolSortColumns = map[string]string{
	"id":           "id",
	"name":         "name",
	"last_updated": "last_updated",
}

// RegisterRoutes 初始化工具模块并注册所有相关路由。
func RegisterRoutes(router *gin.Engine, db *gorm.DB) (*Module, error) {
	if db == nil {
		return nil, errors.New("tools: database handle is required")
	}

	module := &Module{db: db}

	group := router.Group("/tools")
	group.GET("", module.handleListTools)
	group.GET("/search", module.handleSearchTools)
	group.GET("/:id", module.handleGetTool)
	group.POST("", module.handleCreateTool)
	group.PUT("/:id", module.handleUpdateTool)
	group.DELETE("/:id", module.handleDeleteTool)

	contentTypes := router.Group("/content-types")
	contentTypes.GET("", module.handleListContentTypes)
	contentTypes.GET("/:id", module.handleGetContentType)

	return module, nil
}

// FindByName 按名称解析工具目录行，供批量关联与导出逻辑使用。
func FindByName(ctx context.Context, db *gorm.DB, name string) (*models.Tool, error) {
	var tool models.Tool
	if err := db.WithContext(ctx).Where("name = ?", name).First(&tool).Error; err != nil {
		return nil, err
	}
	return &tool, nil
}

// FindContentTypeByName 按名称解析内容类型注册行。
func FindContentTypeByName(ctx context.Context, db *gorm.DB, name string) (*models.ContentType, error) {
	var contentType models.ContentType
	if err := db.WithContext(ctx).Where("name = ?", name).First(&contentType).Error; err != nil {
		return nil, err
	}
	return &contentType, nil
}

type createToolRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description *string        `json:"description"`
	Content     datatypes.JSON `json:"content"`
}

type updateToolRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Content     *datatypes.JSON `json:"content"`
}

// parseIDParam 解析路径中的数字主键。
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// handleListTools godoc
// @Summary 列出全部工具
// @Description 返回工具目录全部条目
// @Tags Tools
// @Produce json
// @Success 200 {object} map[string]interface{} "工具列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListTools 返回全部工具行。
func (m *Module) handleListTools(c *gin.Context) {
	ctx := c.Request.Context()

	var tools []models.Tool
	if err := m.db.WithContext(ctx).Find(&tools).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tools", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

// handleSearchTools godoc
// @Summary 搜索工具
// @Description 按名称/描述模糊搜索并分页返回
// @Tags Tools
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
// handleSearchTools 分页搜索工具。
func (m *Module) handleSearchTools(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := store.ParseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := store.ApplySearch(m.db.WithContext(ctx).Model(&models.Tool{}), q.Search, toolSearchColumns)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count tools", "details": err.Error()})
		return
	}

	var results []models.Tool
	if err := store.ApplySort(tx, q, toolSortColumns).
		Limit(q.PageSize).Offset(q.Offset()).
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search tools", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// handleGetTool godoc
// @Summary 获取工具
// @Description 按主键返回单个工具
// @Tags Tools
// @Produce json
// @Param id path int true "工具ID"
// @Success 200 {object} map[string]interface{} "工具"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetTool 按 ID 查询工具。
func (m *Module) handleGetTool(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tool id"})
		return
	}

	ctx := c.Request.Context()

	var tool models.Tool
	if err := m.db.WithContext(ctx).First(&tool, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tool not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tool", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"tool": tool})
}

// handleCreateTool godoc
// @Summary 创建工具
// @Description 新建工具目录条目，名称必须唯一
// @Tags Tools
// @Accept json
// @Produce json
// @Param request body createToolRequest true "工具信息"
// @Success 201 {object} map[string]interface{} "创建成功的工具"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 409 {object} map[string]string "名称冲突"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateTool 处理创建工具的请求。
func (m *Module) handleCreateTool(c *gin.Context) {
	var req createToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	ctx := c.Request.Context()

	var count int64
	if err := m.db.WithContext(ctx).Model(&models.Tool{}).Where("name = ?", name).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check tool name", "details": err.Error()})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": ErrToolNameTaken.Error()})
		return
	}

	tool := models.Tool{
		Name:        name,
		Description: normalizeStringPointer(req.Description),
		Content:     req.Content,
	}

	if err := m.db.WithContext(ctx).Create(&tool).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create tool", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"tool": tool})
}

// handleUpdateTool godoc
// @Summary 更新工具
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags Tools
// @Accept json
// @Produce json
// @Param id path int true "工具ID"
// @Param request body updateToolRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的工具"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 409 {object} map[string]string "名称冲突"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateTool 处理工具的部分更新。
func (m *Module) handleUpdateTool(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tool id"})
		return
	}

	var req updateToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var tool models.Tool
	if err := m.db.WithContext(ctx).First(&tool, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tool not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tool", "details": err.Error()})
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
		if name != tool.Name {
			var count int64
			if err := m.db.WithContext(ctx).Model(&models.Tool{}).Where("name = ? AND id <> ?", name, id).Count(&count).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check tool name", "details": err.Error()})
				return
			}
			if count > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": ErrToolNameTaken.Error()})
				return
			}
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = normalizeStringPointer(req.Description)
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}

	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.Tool{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update tool", "details": err.Error()})
			return
		}
		cache.DropAllExports(ctx)
	}

	if err := m.db.WithContext(ctx).First(&tool, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tool", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tool": tool})
}

// handleDeleteTool godoc
// @Summary 删除工具
// @Description 删除工具及其所有孪生关联行
// @Tags Tools
// @Produce json
// @Param id path int true "工具ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteTool 删除工具并同事务清理关联。
func (m *Module) handleDeleteTool(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tool id"})
		return
	}

	ctx := c.Request.Context()

	var tool models.Tool
	if err := m.db.WithContext(ctx).First(&tool, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tool not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tool", "details": err.Error()})
		}
		return
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tool_id = ?", id).Delete(&models.DigitalTwinToolAssociation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Tool{}, "id = ?", id).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete tool", "details": err.Error()})
		return
	}

	cache.DropAllExports(ctx)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleListContentTypes godoc
// @Summary 列出内容类型
// @Description 返回多态关联注册表全部条目
// @Tags ContentTypes
// @Produce json
// @Success 200 {object} map[string]interface{} "内容类型列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListContentTypes 返回全部内容类型。
func (m *Module) handleListContentTypes(c *gin.Context) {
	ctx := c.Request.Context()

	var contentTypes []models.ContentType
	if err := m.db.WithContext(ctx).Find(&contentTypes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list content types", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"content_types": contentTypes})
}

// handleGetContentType godoc
// @Summary 获取内容类型
// @Description 按主键返回单个内容类型
// @Tags ContentTypes
// @Produce json
// @Param id path int true "内容类型ID"
// @Success 200 {object} map[string]interface{} "内容类型"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetContentType 按 ID 查询内容类型。
func (m *Module) handleGetContentType(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content type id"})
		return
	}

	ctx := c.Request.Context()

	var contentType models.ContentType
	if err := m.db.WithContext(ctx).First(&contentType, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "content type not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load content type", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"content_type": contentType})
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
