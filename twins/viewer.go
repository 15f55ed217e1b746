package twins

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
)

// handleGetViewer godoc
// @Summary 读取孪生的查看器配置
// @Tags DigitalTwins
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "查看器配置"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handleGetViewer(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	var viewer models.Viewer
	if err := m.db.WithContext(ctx).First(&viewer, "digital_twin_id = ?", twinID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "viewer not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load viewer", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"viewer": viewer})
}

// handlePutViewer godoc
// @Summary 写入孪生的查看器配置
// @Description 不存在时创建 viewer 行，存在时整体覆盖其配置 JSON
// @Tags DigitalTwins
// @Accept json
// @Produce json
// @Param id path int true "孪生ID"
// @Param request body map[string]interface{} true "查看器配置"
// @Success 200 {object} map[string]interface{} "写入后的查看器"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
func (m *Module) handlePutViewer(c *gin.Context) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	var content datatypes.JSON
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(content) == 0 {
		content = datatypes.JSON([]byte("{}"))
	}

	ctx := c.Request.Context()

	var viewer models.Viewer
	err := m.db.WithContext(ctx).First(&viewer, "digital_twin_id = ?", twinID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		viewer = models.Viewer{DigitalTwinID: twinID, Content: content}
		if err := m.db.WithContext(ctx).Create(&viewer).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save viewer", "details": err.Error()})
			return
		}
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load viewer", "details": err.Error()})
		return
	default:
		if err := m.db.WithContext(ctx).
			Model(&models.Viewer{}).
			Where("id = ?", viewer.ID).
			Update("content", content).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save viewer", "details": err.Error()})
			return
		}
		viewer.Content = content
	}

	cache.DropExport(ctx, twinID)

	c.JSON(http.StatusOK, gin.H{"viewer": viewer})
}

// patchViewerContentKey 更新 viewer 配置中的单个键，必要时创建 viewer 行。
// 被替换掉的对象存储资源会被顺带删除。
func (m *Module) patchViewerContentKey(c *gin.Context, twinID uint64, key, value string) (*models.Viewer, error) {
	ctx := c.Request.Context()

	var viewer models.Viewer
	err := m.db.WithContext(ctx).First(&viewer, "digital_twin_id = ?", twinID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	content := make(map[string]interface{})
	if len(viewer.Content) > 0 {
		if err := json.Unmarshal(viewer.Content, &content); err != nil {
			return nil, fmt.Errorf("decode viewer content: %w", err)
		}
	}
	previous, _ := content[key].(string)
	content[key] = value

	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	if viewer.ID == 0 {
		viewer = models.Viewer{DigitalTwinID: twinID, Content: datatypes.JSON(encoded)}
		if err := m.db.WithContext(ctx).Create(&viewer).Error; err != nil {
			return nil, err
		}
	} else {
		viewer.Content = datatypes.JSON(encoded)
		if err := m.db.WithContext(ctx).
			Model(&models.Viewer{}).
			Where("id = ?", viewer.ID).
			Update("content", viewer.Content).Error; err != nil {
			return nil, err
		}
	}

	cache.DropExport(ctx, twinID)

	// 清理被新 URL 顶替的旧资源，失败不影响本次更新。
	if previous != "" && previous != value && m.assets != nil {
		if err := m.assets.Remove(ctx, previous); err != nil {
			log.Printf("twins: remove replaced viewer asset %s: %v", previous, err)
		}
	}

	return &viewer, nil
}

// handleUploadViewerAsset 接收 multipart 图片，上传到对象存储并把公开 URL
// 写入 viewer 配置的指定键。
func (m *Module) handleUploadViewerAsset(c *gin.Context, key string) {
	twinID, ok := m.requireTwin(c)
	if !ok {
		return
	}

	if m.assets == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage is not configured"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "details": err.Error()})
		return
	}

	publicURL, err := m.assets.Upload(c.Request.Context(), fileHeader, fmt.Sprintf("%d", twinID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to store file", "details": err.Error()})
		return
	}

	viewer, err := m.patchViewerContentKey(c, twinID, key, publicURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update viewer", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"viewer": viewer, "url": publicURL})
}

// handleUploadViewerLogo godoc
// @Summary 上传查看器 logo
// @Tags DigitalTwins
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "孪生ID"
// @Param file formData file true "logo 图片"
// @Success 200 {object} map[string]interface{} "更新后的查看器与文件 URL"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 503 {object} map[string]string "对象存储未配置"
// @Author bizer
func (m *Module) handleUploadViewerLogo(c *gin.Context) {
	m.handleUploadViewerAsset(c, "logo")
}

// handleUploadViewerThumbnail godoc
// @Summary 上传查看器缩略图
// @Tags DigitalTwins
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "孪生ID"
// @Param file formData file true "缩略图图片"
// @Success 200 {object} map[string]interface{} "更新后的查看器与文件 URL"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 503 {object} map[string]string "对象存储未配置"
// @Author bizer
func (m *Module) handleUploadViewerThumbnail(c *gin.Context) {
	m.handleUploadViewerAsset(c, "thumbnail")
}
