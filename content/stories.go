package content

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
	"virtwin_back/store"
)

var storySearchColumns = []string{"name", "description"}

var storySortColumns = map[string]string{
	"id":           "id",
	"name":         "name",
	"last_updated": "last_updated",
}

type createStoryRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description *string        `json:"description"`
	Content     datatypes.JSON `json:"content"`
}

type updateStoryRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Content     *datatypes.JSON `json:"content"`
}

// handleListStories godoc
// @Summary 列出全部故事
// @Tags Stories
// @Produce json
// @Success 200 {object} map[string]interface{} "故事列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListStories 返回全部故事行。
func (m *Module) handleListStories(c *gin.Context) {
	ctx := c.Request.Context()

	var stories []models.Story
	if err := m.db.WithContext(ctx).Find(&stories).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list stories", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stories": stories})
}

// handleSearchStories godoc
// @Summary 搜索故事
// @Tags Stories
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
// handleSearchStories 分页搜索故事。
func (m *Module) handleSearchStories(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := store.ParseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := store.ApplySearch(m.db.WithContext(ctx).Model(&models.Story{}), q.Search, storySearchColumns)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count stories", "details": err.Error()})
		return
	}

	var results []models.Story
	if err := store.ApplySort(tx, q, storySortColumns).
		Limit(q.PageSize).Offset(q.Offset()).
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search stories", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// handleGetStory godoc
// @Summary 获取故事
// @Tags Stories
// @Produce json
// @Param id path int true "故事ID"
// @Success 200 {object} map[string]interface{} "故事"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetStory 按 ID 查询故事。
func (m *Module) handleGetStory(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid story id"})
		return
	}

	ctx := c.Request.Context()

	var story models.Story
	if err := m.db.WithContext(ctx).First(&story, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "story not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load story", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"story": story})
}

// handleCreateStory godoc
// @Summary 创建故事
// @Tags Stories
// @Accept json
// @Produce json
// @Param request body createStoryRequest true "故事信息"
// @Success 201 {object} map[string]interface{} "创建成功的故事"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateStory 处理创建故事的请求。
func (m *Module) handleCreateStory(c *gin.Context) {
	var req createStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	story := models.Story{
		Name:        name,
		Description: normalizeStringPointer(req.Description),
		Content:     req.Content,
	}

	ctx := c.Request.Context()

	if err := m.db.WithContext(ctx).Create(&story).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create story", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"story": story})
}

// handleUpdateStory godoc
// @Summary 更新故事
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags Stories
// @Accept json
// @Produce json
// @Param id path int true "故事ID"
// @Param request body updateStoryRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的故事"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateStory 处理故事的部分更新。
func (m *Module) handleUpdateStory(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid story id"})
		return
	}

	var req updateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var story models.Story
	if err := m.db.WithContext(ctx).First(&story, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "story not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load story", "details": err.Error()})
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
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = normalizeStringPointer(req.Description)
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}

	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.Story{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update story", "details": err.Error()})
			return
		}
		cache.DropAllExports(ctx)
	}

	if err := m.db.WithContext(ctx).First(&story, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load story", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"story": story})
}

// handleDeleteStory godoc
// @Summary 删除故事
// @Tags Stories
// @Produce json
// @Param id path int true "故事ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteStory 删除故事行；遗留的关联行由导出逻辑跳过。
func (m *Module) handleDeleteStory(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid story id"})
		return
	}

	ctx := c.Request.Context()

	result := m.db.WithContext(ctx).Delete(&models.Story{}, "id = ?", id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete story", "details": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "story not found"})
		return
	}

	cache.DropAllExports(ctx)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
