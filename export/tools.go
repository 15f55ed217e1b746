package export

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"gorm.io/gorm"

	"virtwin_back/models"
)

// attachment 是一条已解析内容类型名的内容挂接行。
type attachment struct {
	association models.DigitalTwinToolAssociation
	typeName    string
	contentID   uint64
}

// buildTools 产出 tools 数组：孪生启用的工具按 sort_order 排列，
// 各内容类型的挂接行嵌入其归属工具的 settings，挂接了内容但未被
// 启用的工具会补出一条合成条目，内容不会被静默丢弃。
func (s *Service) buildTools(
	tx *gorm.DB,
	twin models.DigitalTwin,
	associations []models.DigitalTwinToolAssociation,
	toolsByID map[uint64]models.Tool,
	contentTypesByID map[uint64]models.ContentType,
	layersByID map[uint64]models.Layer,
) ([]map[string]interface{}, error) {
	var bare []models.DigitalTwinToolAssociation
	attachmentsByTool := make(map[uint64][]attachment)

	for _, association := range associations {
		if association.ContentTypeID == nil || association.ContentID == nil {
			bare = append(bare, association)
			continue
		}
		contentType, ok := contentTypesByID[*association.ContentTypeID]
		if !ok {
			log.Printf("export: skipping association %d with unknown content type %d", association.ID, *association.ContentTypeID)
			continue
		}
		attachmentsByTool[association.ToolID] = append(attachmentsByTool[association.ToolID], attachment{
			association: association,
			typeName:    contentType.Name,
			contentID:   *association.ContentID,
		})
	}

	content, err := s.loadAttachedContent(tx, attachmentsByTool)
	if err != nil {
		return nil, err
	}

	entries := make([]map[string]interface{}, 0, len(bare))
	emittedTools := make(map[uint64]bool)

	for _, association := range bare {
		tool, ok := toolsByID[association.ToolID]
		if !ok {
			log.Printf("export: skipping association to missing tool %d", association.ToolID)
			continue
		}
		emittedTools[association.ToolID] = true

		settings := effectiveToolSettings(tool, association)
		entry, keep := s.buildToolEntry(tx, tool.Name, settings, attachmentsByTool[association.ToolID], content)
		if keep {
			entries = append(entries, entry)
		}
	}

	// 有内容挂接但未启用的工具仍需要一条合成条目。
	syntheticToolIDs := make([]uint64, 0)
	for toolID := range attachmentsByTool {
		if !emittedTools[toolID] {
			syntheticToolIDs = append(syntheticToolIDs, toolID)
		}
	}
	sort.Slice(syntheticToolIDs, func(i, j int) bool { return syntheticToolIDs[i] < syntheticToolIDs[j] })

	for _, toolID := range syntheticToolIDs {
		tool, ok := toolsByID[toolID]
		if !ok {
			log.Printf("export: skipping attachments to missing tool %d", toolID)
			continue
		}
		entry, keep := s.buildToolEntry(tx, tool.Name, make(map[string]interface{}), attachmentsByTool[toolID], content)
		if keep {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// effectiveToolSettings 取工具的有效设置：关联行上的覆盖优先于工具默认值。
func effectiveToolSettings(tool models.Tool, association models.DigitalTwinToolAssociation) map[string]interface{} {
	override := decodeJSONMap(association.Content)
	if len(override) > 0 {
		return override
	}
	defaults := decodeJSONMap(tool.Content)
	if settings, ok := defaults["settings"].(map[string]interface{}); ok {
		return settings
	}
	return make(map[string]interface{})
}

// attachedContent 缓存各内容类型已加载的行。
type attachedContent struct {
	bookmarks map[uint64]models.Bookmark
	projects  map[uint64]models.Project
	stories   map[uint64]models.Story
	terrain   map[uint64]models.TerrainProvider
}

func (s *Service) loadAttachedContent(tx *gorm.DB, attachmentsByTool map[uint64][]attachment) (*attachedContent, error) {
	ids := make(map[string][]uint64)
	for _, attachments := range attachmentsByTool {
		for _, item := range attachments {
			ids[item.typeName] = append(ids[item.typeName], item.contentID)
		}
	}

	content := &attachedContent{
		bookmarks: make(map[uint64]models.Bookmark),
		projects:  make(map[uint64]models.Project),
		stories:   make(map[uint64]models.Story),
		terrain:   make(map[uint64]models.TerrainProvider),
	}

	if wanted := ids["bookmark"]; len(wanted) > 0 {
		var rows []models.Bookmark
		if err := tx.Where("id IN ?", wanted).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load bookmarks: %w", err)
		}
		for _, row := range rows {
			content.bookmarks[row.ID] = row
		}
	}
	if wanted := ids["project"]; len(wanted) > 0 {
		var rows []models.Project
		if err := tx.Where("id IN ?", wanted).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load projects: %w", err)
		}
		for _, row := range rows {
			content.projects[row.ID] = row
		}
	}
	if wanted := ids["story"]; len(wanted) > 0 {
		var rows []models.Story
		if err := tx.Where("id IN ?", wanted).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load stories: %w", err)
		}
		for _, row := range rows {
			content.stories[row.ID] = row
		}
	}
	if wanted := ids["terrain_provider"]; len(wanted) > 0 {
		var rows []models.TerrainProvider
		if err := tx.Where("id IN ?", wanted).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load terrain providers: %w", err)
		}
		for _, row := range rows {
			content.terrain[row.ID] = row
		}
	}

	return content, nil
}

// buildToolEntry 产出单个工具条目；返回 false 表示该工具应整体省略。
func (s *Service) buildToolEntry(
	tx *gorm.DB,
	toolName string,
	settings map[string]interface{},
	attachments []attachment,
	content *attachedContent,
) (map[string]interface{}, bool) {
	bookmarks := buildBookmarkList(attachments, content)
	if len(bookmarks) > 0 {
		settings["bookmarks"] = bookmarks
	}

	if toolName != "layerlibrary" {
		projects, openProject := s.buildProjectList(tx, attachments, content)
		if len(projects) > 0 {
			if openProject != "" {
				settings["openProject"] = openProject
			}
			settings["projects"] = projects
		}
	}

	stories := buildStoryList(attachments, content)
	if len(stories) > 0 {
		settings["stories"] = stories
	}

	switch toolName {
	case "layerlibrary":
		cleanConnectors(settings)
	case "cesium":
		terrainProviders := buildTerrainProviderList(attachments, content)
		custom := false
		if mode, ok := settings["cesiumSettingsMode"].(string); ok {
			custom = strings.EqualFold(mode, "custom")
		}
		if !custom {
			// 非 custom 模式下只保留地形源列表。
			settings = make(map[string]interface{})
		}
		if len(terrainProviders) > 0 {
			settings["terrainProviders"] = terrainProviders
		}
		if len(terrainProviders) == 0 && !custom {
			return nil, false
		}
	}

	entry := map[string]interface{}{
		"id":      toolName,
		"enabled": true,
	}
	if len(settings) > 0 {
		entry["settings"] = settings
	}
	return entry, true
}

// buildBookmarkList 产出书签列表，指向已删除行的挂接被记日志后跳过。
func buildBookmarkList(attachments []attachment, content *attachedContent) []map[string]interface{} {
	result := make([]map[string]interface{}, 0)
	for _, item := range attachments {
		if item.typeName != "bookmark" {
			continue
		}
		bookmark, ok := content.bookmarks[item.contentID]
		if !ok {
			log.Printf("export: skipping dangling bookmark reference %d", item.contentID)
			continue
		}
		description := ""
		if bookmark.Description != nil {
			description = *bookmark.Description
		}
		result = append(result, map[string]interface{}{
			"title":       bookmark.Title,
			"x":           bookmark.X,
			"y":           bookmark.Y,
			"z":           bookmark.Z,
			"heading":     bookmark.Heading,
			"pitch":       bookmark.Pitch,
			"duration":    bookmark.Duration,
			"description": description,
		})
	}
	return result
}

// buildProjectList 产出项目列表以及 is_default 项目的名称。
// 项目 content 里以图层 ID 存储的 layers 在导出时翻译为图层标题。
func (s *Service) buildProjectList(tx *gorm.DB, attachments []attachment, content *attachedContent) ([]map[string]interface{}, string) {
	result := make([]map[string]interface{}, 0)
	openProject := ""

	for _, item := range attachments {
		if item.typeName != "project" {
			continue
		}
		project, ok := content.projects[item.contentID]
		if !ok {
			log.Printf("export: skipping dangling project reference %d", item.contentID)
			continue
		}

		projectObj := decodeJSONMap(project.Content)
		projectObj["name"] = project.Name
		if project.Description != nil {
			projectObj["description"] = *project.Description
		}
		if rawLayers, ok := projectObj["layers"].([]interface{}); ok {
			projectObj["layers"] = s.translateLayerIDs(tx, rawLayers)
		}

		if item.association.IsDefault && openProject == "" {
			openProject = project.Name
		}
		result = append(result, projectObj)
	}

	return result, openProject
}

// translateLayerIDs 把图层 ID 列表翻译为图层标题列表，未知 ID 被跳过。
func (s *Service) translateLayerIDs(tx *gorm.DB, raw []interface{}) []string {
	ids := make([]uint64, 0, len(raw))
	for _, value := range raw {
		if number, ok := value.(float64); ok && number > 0 {
			ids = append(ids, uint64(number))
		}
	}

	titles := make([]string, 0, len(ids))
	if len(ids) == 0 {
		return titles
	}

	var rows []models.Layer
	if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		log.Printf("export: failed to translate project layers: %v", err)
		return titles
	}
	byID := make(map[uint64]string, len(rows))
	for _, row := range rows {
		byID[row.ID] = row.Title
	}
	for _, id := range ids {
		if title, ok := byID[id]; ok {
			titles = append(titles, title)
		}
	}
	return titles
}

// buildStoryList 产出故事列表：步骤图层仅保留 id、透明时的 opacity
// 和非空的 style，并从章节标题派生 chapterGroups 导航摘要。
func buildStoryList(attachments []attachment, content *attachedContent) []map[string]interface{} {
	result := make([]map[string]interface{}, 0)

	for _, item := range attachments {
		if item.typeName != "story" {
			continue
		}
		story, ok := content.stories[item.contentID]
		if !ok {
			log.Printf("export: skipping dangling story reference %d", item.contentID)
			continue
		}

		storyObj := decodeJSONMap(story.Content)
		storyObj["name"] = story.Name
		if story.Description != nil {
			storyObj["description"] = *story.Description
		}

		chapters, _ := storyObj["chapters"].([]interface{})
		chapterGroups := make([]map[string]interface{}, 0, len(chapters))
		for index, rawChapter := range chapters {
			chapter, ok := rawChapter.(map[string]interface{})
			if !ok {
				continue
			}
			cleanChapterSteps(chapter)

			group := map[string]interface{}{
				"id":    index + 1,
				"title": chapter["title"],
			}
			if id, ok := chapter["id"]; ok {
				group["id"] = id
			}
			if buttonText, ok := chapter["buttonText"]; ok && !isEmptyValue(buttonText) {
				group["buttonText"] = buttonText
			} else {
				group["buttonText"] = chapter["title"]
			}
			chapterGroups = append(chapterGroups, group)
		}
		if len(chapterGroups) > 0 {
			storyObj["chapterGroups"] = chapterGroups
		}

		result = append(result, storyObj)
	}

	return result
}

func cleanChapterSteps(chapter map[string]interface{}) {
	steps, _ := chapter["steps"].([]interface{})
	for _, rawStep := range steps {
		step, ok := rawStep.(map[string]interface{})
		if !ok {
			continue
		}
		layers, _ := step["layers"].([]interface{})
		cleaned := make([]interface{}, 0, len(layers))
		for _, rawLayer := range layers {
			layer, ok := rawLayer.(map[string]interface{})
			if !ok {
				continue
			}
			entry := make(map[string]interface{})
			if id, ok := layer["id"]; ok {
				entry["id"] = id
			}
			if truthy(layer["transparent"]) {
				if opacity, ok := layer["opacity"]; ok {
					entry["opacity"] = opacity
				}
			}
			if style, ok := layer["style"].(string); ok && strings.TrimSpace(style) != "" {
				entry["style"] = style
			}
			cleaned = append(cleaned, entry)
		}
		if layers != nil {
			step["layers"] = cleaned
		}
	}
}

// buildTerrainProviderList 产出地形源列表。标题为 "uit" 的条目表示
// 关闭地形，只导出标题。
func buildTerrainProviderList(attachments []attachment, content *attachedContent) []map[string]interface{} {
	result := make([]map[string]interface{}, 0)
	for _, item := range attachments {
		if item.typeName != "terrain_provider" {
			continue
		}
		provider, ok := content.terrain[item.contentID]
		if !ok {
			log.Printf("export: skipping dangling terrain provider reference %d", item.contentID)
			continue
		}
		if strings.EqualFold(provider.Title, "uit") {
			result = append(result, map[string]interface{}{"title": provider.Title})
			continue
		}
		url := ""
		if provider.URL != nil {
			url = *provider.URL
		}
		result = append(result, map[string]interface{}{
			"title":         provider.Title,
			"url":           url,
			"vertexNormals": provider.VertexNormals,
		})
	}
	return result
}

// cleanConnectors 剔除 layerlibrary connectors 设置里的空字符串和空列表，
// 模板占位值不能泄漏进真实导出。
func cleanConnectors(settings map[string]interface{}) {
	connectors, ok := settings["connectors"].(map[string]interface{})
	if !ok {
		return
	}
	for name, rawConnector := range connectors {
		connector, ok := rawConnector.(map[string]interface{})
		if !ok {
			if isEmptyValue(rawConnector) {
				delete(connectors, name)
			}
			continue
		}
		for key, value := range connector {
			if isEmptyValue(value) {
				delete(connector, key)
			}
		}
		if len(connector) == 0 {
			delete(connectors, name)
		}
	}
	if len(connectors) == 0 {
		delete(settings, "connectors")
	}
}
