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
	"virtwin_back/tools"
)

var projectSearchColumns = []string{"name", "description"}

var projectSortColumns = map[string]string{
	"id":           "id",
	"name":         "name",
	"last_updated": "last_updated",
}

type createProjectRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description *string        `json:"description"`
	Content     datatypes.JSON `json:"content"`
}

type updateProjectRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Content     *datatypes.JSON `json:"content"`
}

// handleListProjects godoc
// @Summary 列出全部项目
// @Tags Projects
// @Produce json
// @Success 200 {object} map[string]interface{} "项目列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListProjects 返回全部项目行。
func (m *Module) handleListProjects(c *gin.Context) {
	ctx := c.Request.Context()

	var projects []models.Project
	if err := m.db.WithContext(ctx).Find(&projects).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// handleSearchProjects godoc
// @Summary 搜索项目
// @Tags Projects
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
// handleSearchProjects 分页搜索项目。
func (m *Module) handleSearchProjects(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := store.ParseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := store.ApplySearch(m.db.WithContext(ctx).Model(&models.Project{}), q.Search, projectSearchColumns)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count projects", "details": err.Error()})
		return
	}

	var results []models.Project
	if err := store.ApplySort(tx, q, projectSortColumns).
		Limit(q.PageSize).Offset(q.Offset()).
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search projects", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// handleGetProject godoc
// @Summary 获取项目
// @Tags Projects
// @Produce json
// @Param id path int true "项目ID"
// @Success 200 {object} map[string]interface{} "项目"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetProject 按 ID 查询项目。
func (m *Module) handleGetProject(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	ctx := c.Request.Context()

	var project models.Project
	if err := m.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

// handleCreateProject godoc
// @Summary 创建项目
// @Tags Projects
// @Accept json
// @Produce json
// @Param request body createProjectRequest true "项目信息"
// @Success 201 {object} map[string]interface{} "创建成功的项目"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateProject 处理创建项目的请求。
func (m *Module) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	project := models.Project{
		Name:        name,
		Description: normalizeStringPointer(req.Description),
		Content:     req.Content,
	}

	ctx := c.Request.Context()

	if err := m.db.WithContext(ctx).Create(&project).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": project})
}

// handleUpdateProject godoc
// @Summary 更新项目
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path int true "项目ID"
// @Param request body updateProjectRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的项目"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateProject 处理项目的部分更新。
func (m *Module) handleUpdateProject(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var project models.Project
	if err := m.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project", "details": err.Error()})
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
		if err := m.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update project", "details": err.Error()})
			return
		}
		cache.DropAllExports(ctx)
	}

	if err := m.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

// handleDeleteProject godoc
// @Summary 删除项目
// @Description 删除项目并在同一事务中清理指向它的工具关联行
// @Tags Projects
// @Produce json
// @Param id path int true "项目ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteProject 删除项目并级联清理多态关联。
func (m *Module) handleDeleteProject(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	ctx := c.Request.Context()

	var project models.Project
	if err := m.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project", "details": err.Error()})
		}
		return
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contentType, err := tools.FindContentTypeByName(ctx, tx, "project")
		if err == nil {
			if err := tx.Where("content_type_id = ? AND content_id = ?", contentType.ID, id).
				Delete(&models.DigitalTwinToolAssociation{}).Error; err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Delete(&models.Project{}, "id = ?", id).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete project", "details": err.Error()})
		return
	}

	cache.DropAllExports(ctx)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
