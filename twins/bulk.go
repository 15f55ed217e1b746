package twins

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
)

// 批量操作的动作标签。
const (
	actionCreate = "create"
	actionUpdate = "update"
	actionDelete = "delete"
)

var (
	errLayerMissing = errors.New("twins: referenced layer does not exist")
	errToolMissing  = errors.New("twins: referenced tool does not exist")
)

// bulkResult 汇总一个批次内各动作实际生效的行数。
// 幂等 create 与落空的 update/delete 不计数。
type bulkResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

type layerBulkItem struct {
	Action    string         `json:"action" binding:"required"`
	LayerID   uint64         `json:"layer_id" binding:"required"`
	GroupID   *uint64        `json:"group_id"`
	IsDefault *bool          `json:"is_default"`
	SortOrder *int           `json:"sort_order"`
	Content   datatypes.JSON `json:"content"`
}

type layerBulkRequest struct {
	Operations []layerBulkItem `json:"operations" binding:"required"`
}

type groupBulkItem struct {
	Action    string  `json:"action" binding:"required"`
	ID        *uint64 `json:"id"`
	Title     *string `json:"title"`
	ParentID  *uint64 `json:"parent_id"`
	SortOrder *int    `json:"sort_order"`
}

type groupBulkRequest struct {
	Operations []groupBulkItem `json:"operations" binding:"required"`
}

type toolBulkItem struct {
	Action    string         `json:"action" binding:"required"`
	ToolID    uint64         `json:"tool_id" binding:"required"`
	IsDefault *bool          `json:"is_default"`
	SortOrder *int           `json:"sort_order"`
	Content   datatypes.JSON `json:"content"`
}

type toolBulkRequest struct {
	Operations []toolBulkItem `json:"operations" binding:"required"`
}

// validAction 检查动作标签是否合法。
func validAction(action string) bool {
	switch strings.TrimSpace(action) {
	case actionCreate, actionUpdate, actionDelete:
		return true
	default:
		return false
	}
}

// requireTwin 解析路径 ID 并校验孪生存在，失败时写出响应。
func (m *Module) requireTwin(c *gin.Context) (uint64, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return 0, false
	}

	if _, err := m.findTwin(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrTwinNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "digital twin not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load digital twin", "details": err.Error()})
		}
		return 0, false
	}

	return id, true
}

// handleBulkLayers godoc
// @Summary 批量编辑孪生的图层关联
// @Description 每个条目携带 create|update|delete 动作，整个批次在单个事务内执行，任一失败即整体回滚
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body layerBulkRequest true "批量操作"
// @Success 200 {object} bulkResult "各动作生效行数"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleBulkLayers 以 layer_id 为自然键处理图层关联批次。
func (m *Module) handleBulkLayers(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	var req layerBulkRequest
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
	var result bulkResult

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range req.Operations {
			var existing models.DigitalTwinLayerAssociation
			lookupErr := tx.Where("digital_twin_id = ? AND layer_id = ?", twinID, item.LayerID).
				First(&existing).Error
			found := lookupErr == nil
			if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
				return lookupErr
			}

			switch strings.TrimSpace(item.Action) {
			case actionCreate:
				if found {
					continue
				}
				var layerCount int64
				if err := tx.Model(&models.Layer{}).Where("id = ?", item.LayerID).Count(&layerCount).Error; err != nil {
					return err
				}
				if layerCount == 0 {
					return fmt.Errorf("%w: layer %d", errLayerMissing, item.LayerID)
				}
				association := models.DigitalTwinLayerAssociation{
					DigitalTwinID: twinID,
					LayerID:       item.LayerID,
					GroupID:       item.GroupID,
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
				if item.GroupID != nil {
					updates["group_id"] = *item.GroupID
				}
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
					if err := tx.Model(&models.DigitalTwinLayerAssociation{}).
						Where("digital_twin_id = ? AND layer_id = ?", twinID, item.LayerID).
						Updates(updates).Error; err != nil {
						return err
					}
				}
				result.Updated++
			case actionDelete:
				if !found {
					continue
				}
				if err := tx.Where("digital_twin_id = ? AND layer_id = ?", twinID, item.LayerID).
					Delete(&models.DigitalTwinLayerAssociation{}).Error; err != nil {
					return err
				}
				result.Deleted++
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errLayerMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply layer operations", "details": err.Error()})
		}
		return
	}

	cache.DropExport(ctx, twinID)

	c.JSON(http.StatusOK, result)
}

// handleBulkGroups godoc
// @Summary 批量编辑孪生的分组
// @Description update/delete 条目必须携带 id，整个批次在单个事务内执行
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body groupBulkRequest true "批量操作"
// @Success 200 {object} bulkResult "各动作生效行数"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleBulkGroups 以分组 id 为自然键处理分组批次。
func (m *Module) handleBulkGroups(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	var req groupBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 写入前整体校验，保证校验失败时没有任何条目落库。
	for i, item := range req.Operations {
		action := strings.TrimSpace(item.Action)
		if !validAction(action) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("operation %d: unknown action %q", i, item.Action)})
			return
		}
		if action != actionCreate && item.ID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("operation %d: %s requires an id", i, action)})
			return
		}
		if action == actionCreate && (item.Title == nil || strings.TrimSpace(*item.Title) == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("operation %d: create requires a title", i)})
			return
		}
	}

	ctx := c.Request.Context()
	var result bulkResult

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range req.Operations {
			switch strings.TrimSpace(item.Action) {
			case actionCreate:
				group := models.Group{
					Title:         strings.TrimSpace(*item.Title),
					DigitalTwinID: twinID,
					ParentID:      item.ParentID,
				}
				if item.SortOrder != nil {
					group.SortOrder = *item.SortOrder
				}
				if err := tx.Create(&group).Error; err != nil {
					return err
				}
				result.Created++
			case actionUpdate:
				var existing models.Group
				lookupErr := tx.Where("id = ? AND digital_twin_id = ?", *item.ID, twinID).
					First(&existing).Error
				if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
					continue
				}
				if lookupErr != nil {
					return lookupErr
				}
				updates := make(map[string]interface{})
				if item.Title != nil {
					updates["title"] = strings.TrimSpace(*item.Title)
				}
				if item.ParentID != nil {
					updates["parent_id"] = *item.ParentID
				}
				if item.SortOrder != nil {
					updates["sort_order"] = *item.SortOrder
				}
				if len(updates) > 0 {
					if err := tx.Model(&models.Group{}).
						Where("id = ? AND digital_twin_id = ?", *item.ID, twinID).
						Updates(updates).Error; err != nil {
						return err
					}
				}
				result.Updated++
			case actionDelete:
				deletion := tx.Where("id = ? AND digital_twin_id = ?", *item.ID, twinID).
					Delete(&models.Group{})
				if deletion.Error != nil {
					return deletion.Error
				}
				if deletion.RowsAffected == 0 {
					continue
				}
				// 引用该分组的图层关联回落到未分组状态。
				if err := tx.Model(&models.DigitalTwinLayerAssociation{}).
					Where("digital_twin_id = ? AND group_id = ?", twinID, *item.ID).
					Update("group_id", nil).Error; err != nil {
					return err
				}
				result.Deleted++
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply group operations", "details": err.Error()})
		return
	}

	cache.DropExport(ctx, twinID)

	c.JSON(http.StatusOK, result)
}

// handleBulkTools godoc
// @Summary 批量编辑孪生启用的工具
// @Description 仅作用于无内容挂接的工具行；整个批次在单个事务内执行
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body toolBulkRequest true "批量操作"
// @Success 200 {object} bulkResult "各动作生效行数"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleBulkTools 以 tool_id 为自然键处理工具启用批次。
func (m *Module) handleBulkTools(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	var req toolBulkRequest
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
	var result bulkResult

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range req.Operations {
			var existing models.DigitalTwinToolAssociation
			lookupErr := tx.Where("digital_twin_id = ? AND tool_id = ? AND content_type_id IS NULL AND content_id IS NULL", twinID, item.ToolID).
				First(&existing).Error
			found := lookupErr == nil
			if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
				return lookupErr
			}

			switch strings.TrimSpace(item.Action) {
			case actionCreate:
				if found {
					continue
				}
				var toolCount int64
				if err := tx.Model(&models.Tool{}).Where("id = ?", item.ToolID).Count(&toolCount).Error; err != nil {
					return err
				}
				if toolCount == 0 {
					return fmt.Errorf("%w: tool %d", errToolMissing, item.ToolID)
				}
				association := models.DigitalTwinToolAssociation{
					DigitalTwinID: twinID,
					ToolID:        item.ToolID,
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
		if errors.Is(err, errToolMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply tool operations", "details": err.Error()})
		}
		return
	}

	cache.DropExport(ctx, twinID)

	c.JSON(http.StatusOK, result)
}
