package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"virtwin_back/cache"
	"virtwin_back/models"
)

// Module 聚合导出相关的依赖。
type Module struct {
	db      *gorm.DB
	service *Service
}

// RegisterRoutes 初始化导出模块并注册下载路由。
func RegisterRoutes(router *gin.Engine, db *gorm.DB) (*Module, error) {
	if db == nil {
		return nil, errors.New("export: database handle is required")
	}

	module := &Module{db: db, service: NewService(db)}

	router.GET("/digital-twins/:id/export/download.json", module.handleDownload)

	return module, nil
}

// handleDownload godoc
// @Summary 下载孪生的完整配置文档
// @Description 组装 {layers, viewer, groups, tools} 并以附件形式返回；结果会写入 Redis 缓存
// @Tags Export
// @Produce json
// @Param id path int true "孪生ID"
// @Success 200 {object} map[string]interface{} "配置文档"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDownload 返回孪生配置文档附件，命中缓存时跳过组装。
func (m *Module) handleDownload(c *gin.Context) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digital twin id"})
		return
	}

	ctx := c.Request.Context()

	var twin models.DigitalTwin
	if err := m.db.WithContext(ctx).First(&twin, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "digital twin not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load digital twin", "details": err.Error()})
		}
		return
	}

	// 只有成功响应才作为附件返回，错误 JSON 不带下载头。
	disposition := fmt.Sprintf("attachment; filename=%q", Filename(twin.Name))

	if cached, ok := cache.GetExport(ctx, id); ok {
		c.Header("Content-Disposition", disposition)
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	document, err := m.service.Assemble(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTwinNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "digital twin not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble export", "details": err.Error()})
		}
		return
	}

	data, err := json.Marshal(document)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode export", "details": err.Error()})
		return
	}

	cache.StoreExport(ctx, id, data)

	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, "application/json", data)
}
