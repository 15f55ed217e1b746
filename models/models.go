package models

import (
	"time"

	"gorm.io/datatypes"
)

// DigitalTwin 表示一个可配置的数字孪生地图查看器实例。
type DigitalTwin struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Subtitle    *string   `gorm:"size:255" json:"subtitle,omitempty"`
	Owner       *string   `gorm:"size:100" json:"owner,omitempty"`
	Private     bool      `gorm:"not null;default:false" json:"private"`
	LastUpdated time.Time `gorm:"autoUpdateTime;column:last_updated" json:"last_updated"`
}

// TableName 指定 DigitalTwin 模型对应的数据库表名。
func (DigitalTwin) TableName() string {
	return "digital_twin"
}

// Layer 表示一个地图数据源定义（WMS/WMTS/3D Tiles/GeoJSON 等）。
type Layer struct {
	ID           uint64         `gorm:"primaryKey" json:"id"`
	Type         string         `gorm:"size:32;not null" json:"type"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Beschrijving *string        `gorm:"type:text" json:"beschrijving,omitempty"`
	URL          string         `gorm:"size:1024;not null" json:"url"`
	FeatureName  *string        `gorm:"size:255" json:"featureName,omitempty"`
	IsBackground bool           `gorm:"not null;default:false" json:"isBackground"`
	Content      datatypes.JSON `gorm:"type:json" json:"content,omitempty"`
	LastUpdated  time.Time      `gorm:"autoUpdateTime;column:last_updated" json:"last_updated"`
}

// TableName 指定 Layer 模型对应的数据库表名。
func (Layer) TableName() string {
	return "layer"
}

// DigitalTwinLayerAssociation 记录孪生与图层的多对多关联及其覆盖配置。
type DigitalTwinLayerAssociation struct {
	DigitalTwinID uint64         `gorm:"primaryKey;autoIncrement:false" json:"digital_twin_id"`
	LayerID       uint64         `gorm:"primaryKey;autoIncrement:false" json:"layer_id"`
	GroupID       *uint64        `json:"group_id,omitempty"`
	IsDefault     bool           `gorm:"not null;default:false" json:"is_default"`
	SortOrder     int            `gorm:"not null;default:0" json:"sort_order"`
	Content       datatypes.JSON `gorm:"type:json" json:"content,omitempty"`
}

// TableName 指定图层关联表的表名。
func (DigitalTwinLayerAssociation) TableName() string {
	return "digital_twin_layer_association"
}

// Group 表示孪生内用于组织图层的分组节点，parent_id 构成树结构。
type Group struct {
	ID            uint64  `gorm:"primaryKey" json:"id"`
	Title         string  `gorm:"size:255;not null" json:"title"`
	DigitalTwinID uint64  `gorm:"not null;index" json:"digital_twin_id"`
	ParentID      *uint64 `json:"parent_id,omitempty"`
	SortOrder     int     `gorm:"not null;default:0" json:"sort_order"`
}

// TableName 指定 Group 模型对应的数据库表名。
func (Group) TableName() string {
	return "groups"
}

// Tool 表示前端功能插件的目录条目及其默认设置。
type Tool struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description *string        `gorm:"type:text" json:"description,omitempty"`
	Content     datatypes.JSON `gorm:"type:json" json:"content,omitempty"`
	LastUpdated time.Time      `gorm:"autoUpdateTime;column:last_updated" json:"last_updated"`
}

// TableName 指定 Tool 模型对应的数据库表名。
func (Tool) TableName() string {
	return "tool"
}

// DigitalTwinToolAssociation 是孪生与工具的多态关联行。
// content_type_id/content_id 均为空时表示启用该工具（content 可携带设置覆盖），
// 均非空时表示通过该工具挂接一条具体内容（书签/项目/故事/地形源）。
type DigitalTwinToolAssociation struct {
	ID            uint64         `gorm:"primaryKey" json:"id"`
	DigitalTwinID uint64         `gorm:"not null;index" json:"digital_twin_id"`
	ToolID        uint64         `gorm:"not null;index" json:"tool_id"`
	ContentTypeID *uint64        `json:"content_type_id,omitempty"`
	ContentID     *uint64        `json:"content_id,omitempty"`
	SortOrder     int            `gorm:"not null;default:0" json:"sort_order"`
	IsDefault     bool           `gorm:"not null;default:false" json:"is_default"`
	Content       datatypes.JSON `gorm:"type:json" json:"content,omitempty"`
}

// TableName 指定工具关联表的表名。
func (DigitalTwinToolAssociation) TableName() string {
	return "digital_twin_tool_association"
}

// ContentType 是手工维护的多态关联注册表，table 指向目标表。
type ContentType struct {
	ID    uint64 `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Table string `gorm:"column:table_name;size:100;not null" json:"table_name"`
}

// TableName 指定 ContentType 模型对应的数据库表名。
func (ContentType) TableName() string {
	return "content_types"
}

// Bookmark 表示一个相机位置书签。
type Bookmark struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description *string   `gorm:"size:255" json:"description,omitempty"`
	X           float64   `gorm:"not null" json:"x"`
	Y           float64   `gorm:"not null" json:"y"`
	Z           float64   `gorm:"not null" json:"z"`
	Heading     float64   `gorm:"not null;default:0" json:"heading"`
	Pitch       float64   `gorm:"not null;default:0" json:"pitch"`
	Duration    float64   `gorm:"not null;default:1" json:"duration"`
	LastUpdated time.Time `gorm:"autoUpdateTime;column:last_updated" json:"last_updated"`
}

// TableName 指定 Bookmark 模型对应的数据库表名。
func (Bookmark) TableName() string {
	return "bookmarks"
}

// Project 表示一个项目配置，content 包含多边形、图层列表与相机位置。
type Project struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Description *string        `gorm:"size:255" json:"description,omitempty"`
	Content     datatypes.JSON `gorm:"type:json" json:"content,omitempty"`
	LastUpdated time.Time      `gorm:"autoUpdateTime;column:last_updated" json:"last_updated"`
}

// TableName 指定 Project 模型对应的数据库表名。
func (Project) TableName() string {
	return "projects"
}

// Story 表示一个叙事配置，content 包含章节、步骤与相机动画。
type Story struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Description *string        `gorm:"size:255" json:"description,omitempty"`
	Content     datatypes.JSON `gorm:"type:json" json:"content,omitempty"`
	LastUpdated time.Time      `gorm:"autoUpdateTime;column:last_updated" json:"last_updated"`
}

// TableName 指定 Story 模型对应的数据库表名。
func (Story) TableName() string {
	return "stories"
}

// TerrainProvider 表示一个地形数据源。
type TerrainProvider struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	URL           *string   `gorm:"size:1024" json:"url,omitempty"`
	VertexNormals bool      `gorm:"not null;default:false" json:"vertexNormals"`
	LastUpdated   time.Time `gorm:"autoUpdateTime;column:last_updated" json:"last_updated"`
}

// TableName 指定 TerrainProvider 模型对应的数据库表名。
func (TerrainProvider) TableName() string {
	return "terrain_providers"
}

// Viewer 保存孪生查看器的外观配置（logo、缩略图、起始位置、主题色）。
type Viewer struct {
	ID            uint64         `gorm:"primaryKey" json:"id"`
	Content       datatypes.JSON `gorm:"type:json;not null" json:"content"`
	DigitalTwinID uint64         `gorm:"not null;uniqueIndex" json:"digital_twin_id"`
}

// TableName 指定 Viewer 模型对应的数据库表名。
func (Viewer) TableName() string {
	return "viewer"
}

// User 表示后台用户账号，密码以 bcrypt 哈希存储。
type User struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:100;not null" json:"name"`
	Email    string `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password string `gorm:"size:255;not null" json:"-"`
}

// TableName 指定 User 模型对应的数据库表名。
func (User) TableName() string {
	return "users"
}

// All 返回需要执行 AutoMigrate 的全部模型。
func All() []any {
	return []any{
		&DigitalTwin{},
		&Layer{},
		&DigitalTwinLayerAssociation{},
		&Group{},
		&Tool{},
		&DigitalTwinToolAssociation{},
		&ContentType{},
		&Bookmark{},
		&Project{},
		&Story{},
		&TerrainProvider{},
		&Viewer{},
		&User{},
	}
}
