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
	"virtwin_back/tools"
)

var bookmarkSearchColumns = []string{"title", "description"}

var bookmarkSortColumns = map[string]string{
	"id":           "id",
	"title":        "title",
	"last_updated": "last_updated",
}

type createBookmarkRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description *string  `json:"description"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Z           float64  `json:"z"`
	Heading     float64  `json:"heading"`
	Pitch       float64  `json:"pitch"`
	Duration    *float64 `json:"duration"`
}

type updateBookmarkRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
	Z           *float64 `json:"z"`
	Heading     *float64 `json:"heading"`
	Pitch       *float64 `json:"pitch"`
	Duration    *float64 `json:"duration"`
}

// handleListBookmarks godoc
// @Summary 列出全部书签
// @Tags Bookmarks
// @Produce json
// @Success 200 {object} map[string]interface{} "书签列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListBookmarks 返回全部书签行。
func (m *Module) handleListBookmarks(c *gin.Context) {
	ctx := c.Request.Context()

	var bookmarks []models.Bookmark
	if err := m.db.WithContext(ctx).Find(&bookmarks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookmarks", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookmarks": bookmarks})
}

// handleSearchBookmarks godoc
// @Summary 搜索书签
// @Tags Bookmarks
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
// handleSearchBookmarks 分页搜索书签。
func (m *Module) handleSearchBookmarks(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := store.ParseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := store.ApplySearch(m.db.WithContext(ctx).Model(&models.Bookmark{}), q.Search, bookmarkSearchColumns)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count bookmarks", "details": err.Error()})
		return
	}

	var results []models.Bookmark
	if err := store.ApplySort(tx, q, bookmarkSortColumns).
		Limit(q.PageSize).Offset(q.Offset()).
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search bookmarks", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// handleGetBookmark godoc
// @Summary 获取书签
// @Tags Bookmarks
// @Produce json
// @Param id path int true "书签ID"
// @Success 200 {object} map[string]interface{} "书签"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetBookmark 按 ID 查询书签。
func (m *Module) handleGetBookmark(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bookmark id"})
		return
	}

	ctx := c.Request.Context()

	var bookmark models.Bookmark
	if err := m.db.WithContext(ctx).First(&bookmark, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bookmark not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bookmark", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookmark": bookmark})
}

// handleCreateBookmark godoc
// @Summary 创建书签
// @Tags Bookmarks
// @Accept json
// @Produce json
// @Param request body createBookmarkRequest true "书签信息"
// @Success 201 {object} map[string]interface{} "创建成功的书签"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateBookmark 处理创建书签的请求。
func (m *Module) handleCreateBookmark(c *gin.Context) {
	var req createBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	bookmark := models.Bookmark{
		Title:       title,
		Description: normalizeStringPointer(req.Description),
		X:           req.X,
		Y:           req.Y,
		Z:           req.Z,
		Heading:     req.Heading,
		Pitch:       req.Pitch,
		Duration:    1,
	}
	if req.Duration != nil && *req.Duration > 0 {
		bookmark.Duration = *req.Duration
	}

	ctx := c.Request.Context()

	if err := m.db.WithContext(ctx).Create(&bookmark).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create bookmark", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"bookmark": bookmark})
}

// handleUpdateBookmark godoc
// @Summary 更新书签
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags Bookmarks
// @Accept json
// @Produce json
// @Param id path int true "书签ID"
// @Param request body updateBookmarkRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的书签"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateBookmark 处理书签的部分更新。
func (m *Module) handleUpdateBookmark(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bookmark id"})
		return
	}

	var req updateBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var bookmark models.Bookmark
	if err := m.db.WithContext(ctx).First(&bookmark, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bookmark not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bookmark", "details": err.Error()})
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
	if req.Description != nil {
		updates["description"] = normalizeStringPointer(req.Description)
	}
	if req.X != nil {
		updates["x"] = *req.X
	}
	if req.Y != nil {
		updates["y"] = *req.Y
	}
	if req.Z != nil {
		updates["z"] = *req.Z
	}
	if req.Heading != nil {
		updates["heading"] = *req.Heading
	}
	if req.Pitch != nil {
		updates["pitch"] = *req.Pitch
	}
	if req.Duration != nil {
		if *req.Duration <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be positive"})
			return
		}
		updates["duration"] = *req.Duration
	}

	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.Bookmark{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update bookmark", "details": err.Error()})
			return
		}
		cache.DropAllExports(ctx)
	}

	if err := m.db.WithContext(ctx).First(&bookmark, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bookmark", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookmark": bookmark})
}

// handleDeleteBookmark godoc
// @Summary 删除书签
// @Description 删除书签并在同一事务中清理指向它的工具关联行
// @Tags Bookmarks
// @Produce json
// @Param id path int true "书签ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteBookmark 删除书签并级联清理多态关联。
func (m *Module) handleDeleteBookmark(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bookmark id"})
		return
	}

	ctx := c.Request.Context()

	var bookmark models.Bookmark
	if err := m.db.WithContext(ctx).First(&bookmark, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bookmark not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bookmark", "details": err.Error()})
		}
		return
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contentType, err := tools.FindContentTypeByName(ctx, tx, "bookmark")
		if err == nil {
			if err := tx.Where("content_type_id = ? AND content_id = ?", contentType.ID, id).
				Delete(&models.DigitalTwinToolAssociation{}).Error; err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Delete(&models.Bookmark{}, "id = ?", id).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete bookmark", "details": err.Error()})
		return
	}

	cache.DropAllExports(ctx)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
