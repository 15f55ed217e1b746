package store

import (
	"errors"

	"gorm.io/gorm"

	"virtwin_back/models"
)

// 固定工具目录。导出与批量关联逻辑按名称解析其中的行，
// 缺失时属于种子数据问题而不是请求错误。
var defaultTools = []string{
	"layerlibrary",
	"layermanager",
	"featureinfo",
	"info",
	"help",
	"bookmarks",
	"cesium",
	"stories",
	"measure",
	"search",
	"geocoder",
	"projects",
	"flooding",
	"config_switcher",
	"flyCamera",
	"modeswitcher",
}

var defaultContentTypes = []models.ContentType{
	{Name: "bookmark", Table: "bookmarks"},
	{Name: "project", Table: "projects"},
	{Name: "story", Table: "stories"},
	{Name: "terrain_provider", Table: "terrain_providers"},
}

// EnsureDefaults 在启动时补齐内容类型注册表与固定工具目录，已存在的行不做改动。
func EnsureDefaults(db *gorm.DB) error {
	for _, ct := range defaultContentTypes {
		var existing models.ContentType
		err := db.Where("name = ?", ct.Name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := ct
			if err := db.Create(&row).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}

	for _, name := range defaultTools {
		var existing models.Tool
		err := db.Where("name = ?", name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&models.Tool{Name: name}).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}
