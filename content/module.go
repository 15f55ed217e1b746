package content

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Module 聚合书签/项目/故事/地形源等工具内容的数据库依赖。
type Module struct {
	db *gorm.DB
}

// RegisterRoutes 初始化内容模块并注册所有相关路由。
func RegisterRoutes(router *gin.Engine, db *gorm.DB) (*Module, error) {
	if db == nil {
		return nil, errors.New("content: database handle is required")
	}

	module := &Module{db: db}

	bookmarks := router.Group("/bookmarks")
	bookmarks.GET("", module.handleListBookmarks)
	bookmarks.GET("/search", module.handleSearchBookmarks)
	bookmarks.GET("/:id", module.handleGetBookmark)
	bookmarks.POST("", module.handleCreateBookmark)
	bookmarks.PUT("/:id", module.handleUpdateBookmark)
	bookmarks.DELETE("/:id", module.handleDeleteBookmark)

	projects := router.Group("/projects")
	projects.GET("", module.handleListProjects)
	projects.GET("/search", module.handleSearchProjects)
	projects.GET("/:id", module.handleGetProject)
	projects.POST("", module.handleCreateProject)
	projects.PUT("/:id", module.handleUpdateProject)
	projects.DELETE("/:id", module.handleDeleteProject)

	stories := router.Group("/stories")
	stories.GET("", module.handleListStories)
	stories.GET("/search", module.handleSearchStories)
	stories.GET("/:id", module.handleGetStory)
	stories.POST("", module.handleCreateStory)
	stories.PUT("/:id", module.handleUpdateStory)
	stories.DELETE("/:id", module.handleDeleteStory)

	terrain := router.Group("/terrain-providers")
	terrain.GET("", module.handleListTerrainProviders)
	terrain.GET("/search", module.handleSearchTerrainProviders)
	terrain.GET("/:id", module.handleGetTerrainProvider)
	terrain.POST("", module.handleCreateTerrainProvider)
	terrain.PUT("/:id", module.handleUpdateTerrainProvider)
	terrain.DELETE("/:id", module.handleDeleteTerrainProvider)

	return module, nil
}

// parseIDParam 解析路径中的数字主键。
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
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
