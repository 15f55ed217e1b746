package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"gorm.io/gorm"

	"virtwin_back/models"
)

// ErrTwinNotFound 标识导出目标孪生不存在。
var ErrTwinNotFound = errors.New("export: digital twin not found")

// Service 将一个数字孪生的全部配置组装为前端可直接加载的单个 JSON 文档。
type Service struct {
	db *gorm.DB
}

// NewService 构造导出服务。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// 图层 content 中按类型区分的设置子对象。
var layerSettingSections = []string{"wms", "wmts", "3dtiles", "geojson", "modelanimation"}

// 设置扁平化时即使为空也保留的键。
var alwaysKeptSettingKeys = map[string]bool{
	"url":         true,
	"featureName": true,
	"contentType": true,
	"contenttype": true,
}

// 关联行 content 可覆盖图层 content 的字段。
var overridableLayerKeys = []string{"transparent", "opacity", "disablePopup"}

// Filename 返回导出文件名：孪生名称小写、空格替换为下划线。
func Filename(twinName string) string {
	name := strings.ToLower(strings.TrimSpace(twinName))
	name = strings.ReplaceAll(name, " ", "_")
	return name + ".config.json"
}

// Assemble 组装孪生的完整配置文档 {layers, viewer, groups, tools}。
func (s *Service) Assemble(ctx context.Context, twinID uint64) (map[string]interface{}, error) {
	tx := s.db.WithContext(ctx)

	var twin models.DigitalTwin
	if err := tx.First(&twin, "id = ?", twinID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTwinNotFound
		}
		return nil, fmt.Errorf("load digital twin: %w", err)
	}

	var layerAssociations []models.DigitalTwinLayerAssociation
	if err := tx.Where("digital_twin_id = ?", twinID).
		Order("sort_order ASC").
		Find(&layerAssociations).Error; err != nil {
		return nil, fmt.Errorf("load layer associations: %w", err)
	}

	layersByID, err := s.loadLayers(tx, layerAssociations)
	if err != nil {
		return nil, err
	}

	var groups []models.Group
	if err := tx.Where("digital_twin_id = ?", twinID).Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}

	var toolAssociations []models.DigitalTwinToolAssociation
	if err := tx.Where("digital_twin_id = ?", twinID).
		Order("sort_order ASC").
		Find(&toolAssociations).Error; err != nil {
		return nil, fmt.Errorf("load tool associations: %w", err)
	}

	toolsByID, err := s.loadTools(tx, toolAssociations)
	if err != nil {
		return nil, err
	}

	contentTypesByID, err := s.loadContentTypes(tx)
	if err != nil {
		return nil, err
	}

	layers := buildLayers(layerAssociations, layersByID)
	groupForest := buildGroups(layerAssociations, groups)
	twinTools, err := s.buildTools(tx, twin, toolAssociations, toolsByID, contentTypesByID, layersByID)
	if err != nil {
		return nil, err
	}
	viewer, err := s.buildViewer(tx, twin)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"layers": layers,
		"viewer": viewer,
		"groups": groupForest,
		"tools":  twinTools,
	}, nil
}

func (s *Service) loadLayers(tx *gorm.DB, associations []models.DigitalTwinLayerAssociation) (map[uint64]models.Layer, error) {
	ids := make([]uint64, 0, len(associations))
	for _, association := range associations {
		ids = append(ids, association.LayerID)
	}
	byID := make(map[uint64]models.Layer, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}

	var rows []models.Layer
	if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load layers: %w", err)
	}
	for _, row := range rows {
		byID[row.ID] = row
	}
	return byID, nil
}

func (s *Service) loadTools(tx *gorm.DB, associations []models.DigitalTwinToolAssociation) (map[uint64]models.Tool, error) {
	seen := make(map[uint64]bool)
	ids := make([]uint64, 0, len(associations))
	for _, association := range associations {
		if !seen[association.ToolID] {
			seen[association.ToolID] = true
			ids = append(ids, association.ToolID)
		}
	}
	byID := make(map[uint64]models.Tool, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}

	var rows []models.Tool
	if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}
	for _, row := range rows {
		byID[row.ID] = row
	}
	return byID, nil
}

func (s *Service) loadContentTypes(tx *gorm.DB) (map[uint64]models.ContentType, error) {
	var rows []models.ContentType
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load content types: %w", err)
	}
	byID := make(map[uint64]models.ContentType, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	return byID, nil
}

// buildLayers 按背景图层在前、各组内保持 sort_order 的顺序产出图层条目。
func buildLayers(associations []models.DigitalTwinLayerAssociation, layersByID map[uint64]models.Layer) []map[string]interface{} {
	background := make([]map[string]interface{}, 0)
	feature := make([]map[string]interface{}, 0)

	for _, association := range associations {
		layer, ok := layersByID[association.LayerID]
		if !ok {
			log.Printf("export: skipping association to missing layer %d", association.LayerID)
			continue
		}
		entry := buildLayerEntry(layer, association)
		if layer.IsBackground {
			background = append(background, entry)
		} else {
			feature = append(feature, entry)
		}
	}

	return append(background, feature...)
}

func buildLayerEntry(layer models.Layer, association models.DigitalTwinLayerAssociation) map[string]interface{} {
	content := decodeJSONMap(layer.Content)
	override := decodeJSONMap(association.Content)
	for _, key := range overridableLayerKeys {
		if value, ok := override[key]; ok {
			content[key] = value
		}
	}

	entry := map[string]interface{}{
		"id":           layer.ID,
		"title":        layer.Title,
		"type":         layer.Type,
		"isBackground": layer.IsBackground,
		"defaultOn":    association.IsDefault,
	}

	// 无论是否为空都要出现的键。
	entry["imageUrl"] = content["imageUrl"]
	entry["legendUrl"] = content["legendUrl"]
	entry["defaultAddToManager"] = content["defaultAddToManager"]
	if association.GroupID != nil {
		entry["groupId"] = *association.GroupID
	} else {
		entry["groupId"] = nil
	}

	if truthy(content["transparent"]) {
		entry["transparent"] = true
		if opacity, ok := content["opacity"]; ok {
			entry["opacity"] = opacity
		}
	}
	if truthy(content["disablePopup"]) {
		entry["disablePopup"] = true
	}

	entry["settings"] = buildLayerSettings(layer, content)

	handled := map[string]bool{
		"imageUrl": true, "legendUrl": true, "defaultAddToManager": true,
		"transparent": true, "opacity": true, "disablePopup": true,
	}
	for _, section := range layerSettingSections {
		handled[section] = true
	}
	for key, value := range content {
		if handled[key] {
			continue
		}
		if !isEmptyValue(value) {
			entry[key] = value
		}
	}

	return entry
}

// buildLayerSettings 将类型相关的设置子对象拍平为单个 settings 对象。
func buildLayerSettings(layer models.Layer, content map[string]interface{}) map[string]interface{} {
	settings := make(map[string]interface{})
	for _, section := range layerSettingSections {
		sub, ok := content[section].(map[string]interface{})
		if !ok {
			continue
		}
		for key, value := range sub {
			if alwaysKeptSettingKeys[key] || !isEmptyValue(value) {
				settings[key] = value
			}
		}
	}

	settings["url"] = layer.URL
	if layer.FeatureName != nil {
		settings["featureName"] = *layer.FeatureName
	} else if _, ok := settings["featureName"]; !ok {
		settings["featureName"] = ""
	}

	return settings
}

// buildGroups 把图层关联引用的分组展开为森林，父节点先于子节点输出，
// 同级按 sort_order 排列。输出对象不携带 sort_order。
func buildGroups(associations []models.DigitalTwinLayerAssociation, groups []models.Group) []map[string]interface{} {
	byID := make(map[uint64]models.Group, len(groups))
	for _, group := range groups {
		byID[group.ID] = group
	}

	// 被引用的分组连同其全部祖先都会出现在输出里。
	referenced := make(map[uint64]bool)
	for _, association := range associations {
		if association.GroupID == nil {
			continue
		}
		id := *association.GroupID
		for id != 0 {
			group, ok := byID[id]
			if !ok || referenced[id] {
				break
			}
			referenced[id] = true
			if group.ParentID == nil {
				break
			}
			id = *group.ParentID
		}
	}

	children := make(map[uint64][]models.Group)
	roots := make([]models.Group, 0)
	for _, group := range groups {
		if !referenced[group.ID] {
			continue
		}
		if group.ParentID != nil && referenced[*group.ParentID] {
			children[*group.ParentID] = append(children[*group.ParentID], group)
		} else {
			roots = append(roots, group)
		}
	}

	sortGroups := func(items []models.Group) {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].SortOrder < items[j].SortOrder
		})
	}
	sortGroups(roots)
	for id := range children {
		sortGroups(children[id])
	}

	ordered := make([]map[string]interface{}, 0, len(referenced))
	visited := make(map[uint64]bool)

	var emit func(group models.Group)
	emit = func(group models.Group) {
		if visited[group.ID] {
			log.Printf("export: group cycle detected at group %d, skipping", group.ID)
			return
		}
		visited[group.ID] = true

		entry := map[string]interface{}{
			"id":    group.ID,
			"title": group.Title,
		}
		if group.ParentID != nil {
			entry["parentId"] = *group.ParentID
		}
		ordered = append(ordered, entry)

		for _, child := range children[group.ID] {
			emit(child)
		}
	}
	for _, root := range roots {
		emit(root)
	}

	// 完全成环的祖先链里每个节点都有父节点，不会出现在 roots 里。
	// 根遍历结束后补发这些残留分组并记录告警。
	leftovers := make([]models.Group, 0)
	for _, group := range groups {
		if referenced[group.ID] && !visited[group.ID] {
			leftovers = append(leftovers, group)
		}
	}
	sortGroups(leftovers)
	for _, group := range leftovers {
		if visited[group.ID] {
			continue
		}
		log.Printf("export: group %d has a cyclic ancestry, emitting out of tree order", group.ID)
		emit(group)
	}

	return ordered
}

// buildViewer 产出查看器对象：viewer content 的键被整体保留，
// title/subtitle/isPrivate 来自孪生本身。缺失的 viewer 行被容忍。
func (s *Service) buildViewer(tx *gorm.DB, twin models.DigitalTwin) (map[string]interface{}, error) {
	viewerObj := make(map[string]interface{})

	var viewer models.Viewer
	err := tx.First(&viewer, "digital_twin_id = ?", twin.ID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load viewer: %w", err)
	}
	if err == nil {
		viewerObj = decodeJSONMap(viewer.Content)
	}

	viewerObj["title"] = twin.Title
	if twin.Subtitle != nil {
		viewerObj["subtitle"] = *twin.Subtitle
	} else {
		viewerObj["subtitle"] = ""
	}
	viewerObj["isPrivate"] = twin.Private

	return viewerObj, nil
}

func decodeJSONMap(raw []byte) map[string]interface{} {
	result := make(map[string]interface{})
	if len(raw) == 0 {
		return result
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		log.Printf("export: ignoring malformed content blob: %v", err)
		return make(map[string]interface{})
	}
	return result
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	case float64:
		return v != 0
	default:
		return false
	}
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}
