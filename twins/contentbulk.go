package twins

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
	"virtwin_back/tools"
)

var (
	errSeedDataMissing = errors.New("twins: required content type or tool row is missing")
	errContentMissing  = errors.New("twins: referenced content row does not exist")
)

// contentBinding 描述一类内容的多态挂接方式：
// 内容类型名、固定的归属工具名以及目标表中的行存在性检查。
type contentBinding struct {
	contentTypeName string
	toolName        string
	rowExists       func(tx *gorm.DB, id uint64) (bool, error)
}

func countExists(tx *gorm.DB, model any, id uint64) (bool, error) {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// 书签/项目/故事/地形源各自固定挂接到一个工具，客户端不能指定。
var (
	bookmarkBinding = contentBinding{
		contentTypeName: "bookmark",
		toolName:        "bookmarks",
		rowExists: func(tx *gorm.DB, id uint64) (bool, error) {
			return countExists(tx, &models.Bookmark{}, id)
		},
	}
	projectBinding = contentBinding{
		contentTypeName: "project",
		toolName:        "projects",
		rowExists: func(tx *gorm.DB, id uint64) (bool, error) {
			return countExists(tx, &models.Project{}, id)
		},
	}
	storyBinding = contentBinding{
		contentTypeName: "story",
		toolName:        "stories",
		rowExists: func(tx *gorm.DB, id uint64) (bool, error) {
			return countExists(tx, &models.Story{}, id)
		},
	}
	terrainBinding = contentBinding{
		contentTypeName: "terrain_provider",
		toolName:        "cesium",
		rowExists: func(tx *gorm.DB, id uint64) (bool, error) {
			return countExists(tx, &models.TerrainProvider{}, id)
		},
	}
)

type contentBulkItem struct {
	Action    string         `json:"action" binding:"required"`
	ContentID uint64         `json:"content_id" binding:"required"`
	IsDefault *bool          `json:"is_default"`
	SortOrder *int           `json:"sort_order"`
	Content   datatypes.JSON `json:"content"`
}

type contentBulkRequest struct {
	Operations []contentBulkItem `json:"operations" binding:"required"`
}

// resolveBinding 查出绑定对应的 ContentType 与工具行。
// 任一缺失都意味着种子数据不完整，属于部署问题而非客户端错误。
func (m *Module) resolveBinding(ctx context.Context, binding contentBinding) (*models.ContentType, *models.Tool, error) {
	contentType, err := tools.FindContentTypeByName(ctx, m.db, binding.contentTypeName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: content type %q", errSeedDataMissing, binding.contentTypeName)
		}
		return nil, nil, err
	}
	tool, err := tools.FindByName(ctx, m.db, binding.toolName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: tool %q", errSeedDataMissing, binding.toolName)
		}
		return nil, nil, err
	}
	return contentType, tool, nil
}

// applyContentBulk 以 (tool_id, content_type_id, content_id) 为自然键处理内容挂接批次。
func (m *Module) applyContentBulk(c *gin.Context, binding contentBinding) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	var req contentBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for i, item := range req.Operations {
		if !validAction(item.Action) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("operation %d: unknown action %q", i, item.Action)})
			return
		}
	}

	ctx := c.Request.Context()

	contentType, tool, err := m.resolveBinding(ctx, binding)
	if err != nil {
		if errors.Is(err, errSeedDataMissing) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve content binding", "details": err.Error()})
		}
		return
	}

	var result bulkResult

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range req.Operations {
			var existing models.DigitalTwinToolAssociation
			lookupErr := tx.Where(
				"digital_twin_id = ? AND tool_id = ? AND content_type_id = ? AND content_id = ?",
				twinID, tool.ID, contentType.ID, item.ContentID,
			).First(&existing).Error
			found := lookupErr == nil
			if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
				return lookupErr
			}

			switch strings.TrimSpace(item.Action) {
			case actionCreate:
				if found {
					continue
				}
				exists, err := binding.rowExists(tx, item.ContentID)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("%w: %s %d", errContentMissing, binding.contentTypeName, item.ContentID)
				}
				contentTypeID := contentType.ID
				contentID := item.ContentID
				association := models.DigitalTwinToolAssociation{
					DigitalTwinID: twinID,
					ToolID:        tool.ID,
					ContentTypeID: &contentTypeID,
					ContentID:     &contentID,
					Content:       item.Content,
				}
				if item.IsDefault != nil {
					association.IsDefault = *item.IsDefault
				}
				if item.SortOrder != nil {
					association.SortOrder = *item.SortOrder
				}
				if err := tx.Create(&association).Error; err != nil {
					return err
				}
				result.Created++
			case actionUpdate:
				if !found {
					continue
				}
				updates := make(map[string]interface{})
				if item.IsDefault != nil {
					updates["is_default"] = *item.IsDefault
				}
				if item.SortOrder != nil {
					updates["sort_order"] = *item.SortOrder
				}
				if len(item.Content) > 0 {
					updates["content"] = item.Content
				}
				if len(updates) > 0 {
					if err := tx.Model(&models.DigitalTwinToolAssociation{}).
						Where("id = ?", existing.ID).
						Updates(updates).Error; err != nil {
						return err
					}
				}
				result.Updated++
			case actionDelete:
				if !found {
					continue
				}
				if err := tx.Delete(&models.DigitalTwinToolAssociation{}, "id = ?", existing.ID).Error; err != nil {
					return err
				}
				result.Deleted++
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errContentMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply content operations", "details": err.Error()})
		}
		return
	}

	cache.DropExport(ctx, twinID)

	c.JSON(http.StatusOK, result)
}

// attachedContentIDs 返回孪生上通过某内容类型挂接的全部 content_id。
func (m *Module) attachedContentIDs(ctx context.Context, twinID uint64, binding contentBinding) ([]uint64, error) {
	contentType, err := tools.FindContentTypeByName(ctx, m.db, binding.contentTypeName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var ids []uint64
	if err := m.db.WithContext(ctx).
		Model(&models.DigitalTwinToolAssociation{}).
		Where("digital_twin_id = ? AND content_type_id = ? AND content_id IS NOT NULL", twinID, contentType.ID).
		Order("sort_order ASC").
		Pluck("content_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// handleBulkBookmarks godoc
// @Summary 批量编辑孪生挂接的书签
// @Description 书签固定通过 bookmarks 工具挂接；整个批次在单个事务内执行
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body contentBulkRequest true "批量操作"
// @Success 200 {object} bulkResult "各动作生效行数"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleBulkBookmarks(c *gin.Context) {
	m.applyContentBulk(c, bookmarkBinding)
}

// handleBulkProjects godoc
// @Summary 批量编辑孪生挂接的项目
// @Description 项目固定通过 projects 工具挂接；整个批次在单个事务内执行
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body contentBulkRequest true "批量操作"
// @Success 200 {object} bulkResult "各动作生效行数"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleBulkProjects(c *gin.Context) {
	m.applyContentBulk(c, projectBinding)
}

// handleBulkStories godoc
// @Summary 批量编辑孪生挂接的故事
// @Description 故事固定通过 stories 工具挂接；整个批次在单个事务内执行
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body contentBulkRequest true "批量操作"
// @Success 200 {object} bulkResult "各动作生效行数"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleBulkStories(c *gin.Context) {
	m.applyContentBulk(c, storyBinding)
}

// handleBulkTerrainProviders godoc
// @Summary 批量编辑孪生挂接的地形源
// @Description 地形源固定通过 cesium 工具挂接；整个批次在单个事务内执行
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body contentBulkRequest true "批量操作"
// @Success 200 {object} bulkResult "各动作生效行数"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleBulkTerrainProviders(c *gin.Context) {
	m.applyContentBulk(c, terrainBinding)
}

// handleListTwinBookmarks godoc
// @Summary 列出孪生挂接的书签
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "书签列表"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleListTwinBookmarks(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	ids, err := m.attachedContentIDs(ctx, twinID, bookmarkBinding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookmarks", "details": err.Error()})
		return
	}

	bookmarks := make([]models.Bookmark, 0, len(ids))
	if len(ids) > 0 {
		if err := m.db.WithContext(ctx).Where("id IN ?", ids).Find(&bookmarks).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookmarks", "details": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"bookmarks": bookmarks})
}

// handleListTwinProjects godoc
// @Summary 列出孪生挂接的项目
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "项目列表"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleListTwinProjects(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	ids, err := m.attachedContentIDs(ctx, twinID, projectBinding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects", "details": err.Error()})
		return
	}

	projects := make([]models.Project, 0, len(ids))
	if len(ids) > 0 {
		if err := m.db.WithContext(ctx).Where("id IN ?", ids).Find(&projects).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects", "details": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// handleListTwinStories godoc
// @Summary 列出孪生挂接的故事
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "故事列表"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleListTwinStories(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	ids, err := m.attachedContentIDs(ctx, twinID, storyBinding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list stories", "details": err.Error()})
		return
	}

	stories := make([]models.Story, 0, len(ids))
	if len(ids) > 0 {
		if err := m.db.WithContext(ctx).Where("id IN ?", ids).Find(&stories).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list stories", "details": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"stories": stories})
}

// handleListTwinTerrainProviders godoc
// @Summary 列出孪生挂接的地形源
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "地形源列表"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleListTwinTerrainProviders(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	ids, err := m.attachedContentIDs(ctx, twinID, terrainBinding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list terrain providers", "details": err.Error()})
		return
	}

	providers := make([]models.TerrainProvider, 0, len(ids))
	if len(ids) > 0 {
		if err := m.db.WithContext(ctx).Where("id IN ?", ids).Find(&providers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list terrain providers", "details": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"terrain_providers": providers})
}
