package twins

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
)

type createLayerAssociationRequest struct {
	LayerID   uint64         `json:"layer_id" binding:"required"`
	GroupID   *uint64        `json:"group_id"`
	IsDefault *bool          `json:"is_default"`
	SortOrder *int           `json:"sort_order"`
	Content   datatypes.JSON `json:"content"`
}

type updateLayerAssociationRequest struct {
	GroupID   *uint64        `json:"group_id"`
	IsDefault *bool          `json:"is_default"`
	SortOrder *int           `json:"sort_order"`
	Content   datatypes.JSON `json:"content"`
}

// handleListLayerAssociations godoc
// @Summary 列出孪生的图层关联
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "图层关联列表"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListLayerAssociations 返回孪生的全部图层关联，按 sort_order 排列。
func (m *Module) handleListLayerAssociations(c *gin.Context) {
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

	var associations []models.DigitalTwinLayerAssociation
	if err := m.db.WithContext(ctx).
		Where("digital_twin_id = ?", id).
		Order("sort_order ASC").
		Find(&associations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list layer associations", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"layer_associations": associations})
}

// handleCreateLayerAssociation godoc
// @Summary 关联图层到孪生
// @Description 幂等操作：关联已存在时直接返回现有行
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body createLayerAssociationRequest true "关联信息"
// @Success 201 {object} map[string]interface{} "创建的关联"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateLayerAssociation 新建单条图层关联。
func (m *Module) handleCreateLayerAssociation(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}

	var req createLayerAssociationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
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

	var layerCount int64
	if err := m.db.WithContext(ctx).Model(&models.Layer{}).Where("id = ?", req.LayerID).Count(&layerCount).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check layer", "details": err.Error()})
		return
	}
	if layerCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "layer not found"})
		return
	}

	var existing models.DigitalTwinLayerAssociation
	err := m.db.WithContext(ctx).
		Where("digital_twin_id = ? AND layer_id = ?", id, req.LayerID).
		First(&existing).Error
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"layer_association": existing})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check layer association", "details": err.Error()})
		return
	}

	association := models.DigitalTwinLayerAssociation{
		DigitalTwinID: id,
		LayerID:       req.LayerID,
		GroupID:       req.GroupID,
		Content:       req.Content,
	}
	if req.IsDefault != nil {
		association.IsDefault = *req.IsDefault
	}
	if req.SortOrder != nil {
		association.SortOrder = *req.SortOrder
	}

	if err := m.db.WithContext(ctx).Create(&association).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create layer association", "details": err.Error()})
		return
	}

	cache.DropExport(ctx, id)

	c.JSON(http.StatusCreated, gin.H{"layer_association": association})
}

// handleUpdateLayerAssociation godoc
// @Summary 更新孪生的图层关联
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param layerID path int true "图层ID"
// @Param request body updateLayerAssociationRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的关联"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateLayerAssociation 更新单条图层关联。
func (m *Module) handleUpdateLayerAssociation(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}
	layerID, ok := parseIDParam(c, "layerID")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid layer id"})
		return
	}

	var req updateLayerAssociationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var association models.DigitalTwinLayerAssociation
	if err := m.db.WithContext(ctx).
		Where("digital_twin_id = ? AND layer_id = ?", id, layerID).
		First(&association).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "layer association not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load layer association", "details": err.Error()})
		}
		return
	}

	updates := make(map[string]interface{})
	if req.GroupID != nil {
		updates["group_id"] = *req.GroupID
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if len(req.Content) > 0 {
		updates["content"] = req.Content
	}

	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.DigitalTwinLayerAssociation{}).
			Where("digital_twin_id = ? AND layer_id = ?", id, layerID).
			Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update layer association", "details": err.Error()})
			return
		}
		cache.DropExport(ctx, id)
	}

	if err := m.db.WithContext(ctx).
		Where("digital_twin_id = ? AND layer_id = ?", id, layerID).
		First(&association).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load layer association", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"layer_association": association})
}

// handleDeleteLayerAssociation godoc
// @Summary 删除孪生的图层关联
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Param layerID path int true "图层ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteLayerAssociation 删除单条图层关联。
func (m *Module) handleDeleteLayerAssociation(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}
	layerID, ok := parseIDParam(c, "layerID")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid layer id"})
		return
	}

	ctx := c.Request.Context()

	result := m.db.WithContext(ctx).
		Where("digital_twin_id = ? AND layer_id = ?", id, layerID).
		Delete(&models.DigitalTwinLayerAssociation{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete layer association", "details": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "layer association not found"})
		return
	}

	cache.DropExport(ctx, id)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
