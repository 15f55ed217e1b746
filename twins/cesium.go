package twins

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
	"virtwin_back/tools"
)

// findCesiumAssociation 查出孪生上无内容挂接的 cesium 工具行。
func (m *Module) findCesiumAssociation(c *gin.Context, twinID uint64) (*models.DigitalTwinToolAssociation, *models.Tool, error) {
	ctx := c.Request.Context()

	tool, err := tools.FindByName(ctx, m.db, "cesium")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errSeedDataMissing
		}
		return nil, nil, err
	}

	var association models.DigitalTwinToolAssociation
	err = m.db.WithContext(ctx).
		Where("digital_twin_id = ? AND tool_id = ? AND content_type_id IS NULL AND content_id IS NULL", twinID, tool.ID).
		First(&association).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tool, nil
		}
		return nil, tool, err
	}
	return &association, tool, nil
}

// handleGetCesium godoc
// @Summary 读取孪生的 cesium 配置
// @Description 返回 cesium 工具关联行携带的配置 JSON
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "cesium 配置"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleGetCesium(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	association, _, err := m.findCesiumAssociation(c, twinID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cesium configuration", "details": err.Error()})
		return
	}
	if association == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "cesium configuration not found"})
		return
	}

	content := association.Content
	if len(content) == 0 {
		content = datatypes.JSON([]byte("{}"))
	}

	c.JSON(http.StatusOK, gin.H{"cesium": content})
}

// handlePutCesium godoc
// @Summary 写入孪生的 cesium 配置
// @Description 不存在时创建 cesium 工具关联行，存在时整体覆盖其配置 JSON
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body map[string]interface{} true "cesium 配置"
// @Success 200 {object} map[string]interface{} "写入后的配置"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handlePutCesium(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	var content datatypes.JSON
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	association, tool, err := m.findCesiumAssociation(c, twinID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cesium configuration", "details": err.Error()})
		return
	}

	if association == nil {
		association = &models.DigitalTwinToolAssociation{
			DigitalTwinID: twinID,
			ToolID:        tool.ID,
			Content:       content,
		}
		if err := m.db.WithContext(ctx).Create(association).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save cesium configuration", "details": err.Error()})
			return
		}
	} else {
		if err := m.db.WithContext(ctx).
			Model(&models.DigitalTwinToolAssociation{}).
			Where("id = ?", association.ID).
			Update("content", content).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save cesium configuration", "details": err.Error()})
			return
		}
	}

	cache.DropExport(ctx, twinID)

	c.JSON(http.StatusOK, gin.H{"cesium": content})
}

// handleDeleteCesium godoc
// @Summary 删除孪生的 cesium 配置
// @Description 仅移除无内容挂接的 cesium 工具行，地形源挂接不受影响
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleDeleteCesium(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	association, _, err := m.findCesiumAssociation(c, twinID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cesium configuration", "details": err.Error()})
		return
	}
	if association == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "cesium configuration not found"})
		return
	}

	ctx := c.Request.Context()

	if err := m.db.WithContext(ctx).Delete(&models.DigitalTwinToolAssociation{}, "id = ?", association.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete cesium configuration", "details": err.Error()})
		return
	}

	cache.DropExport(ctx, twinID)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
