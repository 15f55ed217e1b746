package export_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"virtwin_back/export"
	"virtwin_back/models"
	"virtwin_back/store"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	require.NoError(t, store.EnsureDefaults(db))
	return db
}

func findToolID(t *testing.T, db *gorm.DB, name string) uint64 {
	t.Helper()

	var tool models.Tool
	require.NoError(t, db.First(&tool, "name = ?", name).Error)
	return tool.ID
}

func findContentTypeID(t *testing.T, db *gorm.DB, name string) uint64 {
	t.Helper()

	var contentType models.ContentType
	require.NoError(t, db.First(&contentType, "name = ?", name).Error)
	return contentType.ID
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "bodem.config.json", export.Filename("bodem"))
	assert.Equal(t, "mijn_digitale_tweeling.config.json", export.Filename("Mijn Digitale Tweeling"))
}

func TestAssembleTwinNotFound(t *testing.T) {
	db := setupDB(t)
	service := export.NewService(db)

	_, err := service.Assemble(context.Background(), 12345)
	assert.ErrorIs(t, err, export.ErrTwinNotFound)
}

func TestAssembleBackgroundLayersFirst(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "bodem", Title: "Bodem"}
	require.NoError(t, db.Create(&twin).Error)

	background := models.Layer{Type: "wms", Title: "BRT", URL: "https://example.test/brt", IsBackground: true}
	feature := models.Layer{Type: "wms", Title: "Percelen", URL: "https://example.test/percelen"}
	require.NoError(t, db.Create(&background).Error)
	require.NoError(t, db.Create(&feature).Error)

	// 背景图层 sort_order 更大，仍然必须排在最前面。
	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: background.ID, SortOrder: 1,
	}).Error)
	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: feature.ID, SortOrder: 0,
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	layers, ok := document["layers"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, layers, 2)
	assert.Equal(t, true, layers[0]["isBackground"])
	assert.Equal(t, "BRT", layers[0]["title"])
	assert.Equal(t, false, layers[1]["isBackground"])
}

func TestAssembleGroupOrdering(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "groepen", Title: "Groepen"}
	require.NoError(t, db.Create(&twin).Error)

	groupA := models.Group{Title: "A", DigitalTwinID: twin.ID, SortOrder: 1}
	require.NoError(t, db.Create(&groupA).Error)
	groupB := models.Group{Title: "B", DigitalTwinID: twin.ID, SortOrder: 0}
	require.NoError(t, db.Create(&groupB).Error)
	groupC := models.Group{Title: "C", DigitalTwinID: twin.ID, ParentID: &groupA.ID, SortOrder: 0}
	require.NoError(t, db.Create(&groupC).Error)

	layerOne := models.Layer{Type: "wms", Title: "L1", URL: "https://example.test/1"}
	layerTwo := models.Layer{Type: "wms", Title: "L2", URL: "https://example.test/2"}
	require.NoError(t, db.Create(&layerOne).Error)
	require.NoError(t, db.Create(&layerTwo).Error)

	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: layerOne.ID, GroupID: &groupC.ID,
	}).Error)
	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: layerTwo.ID, GroupID: &groupB.ID,
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	groups, ok := document["groups"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, groups, 3)

	// 同级按 sort_order，父节点先于子节点：B、A、C。
	assert.Equal(t, "B", groups[0]["title"])
	assert.Equal(t, "A", groups[1]["title"])
	assert.Equal(t, "C", groups[2]["title"])

	for _, group := range groups {
		_, present := group["sort_order"]
		assert.False(t, present)
	}
}

func TestAssembleGroupParentCycle(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "cyclus", Title: "Cyclus"}
	require.NoError(t, db.Create(&twin).Error)

	groupA := models.Group{Title: "A", DigitalTwinID: twin.ID, SortOrder: 0}
	require.NoError(t, db.Create(&groupA).Error)
	groupB := models.Group{Title: "B", DigitalTwinID: twin.ID, ParentID: &groupA.ID, SortOrder: 1}
	require.NoError(t, db.Create(&groupB).Error)

	// A 和 B 互为父节点，祖先链不存在真正的根。
	require.NoError(t, db.Model(&models.Group{}).
		Where("id = ?", groupA.ID).
		Update("parent_id", groupB.ID).Error)

	layer := models.Layer{Type: "wms", Title: "L", URL: "https://example.test/l"}
	require.NoError(t, db.Create(&layer).Error)
	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: layer.ID, GroupID: &groupA.ID,
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	groups, ok := document["groups"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, groups, 2)

	assert.Equal(t, "A", groups[0]["title"])
	assert.Equal(t, "B", groups[1]["title"])
}

func TestAssembleBookmarksTool(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "bodem", Title: "Bodem"}
	require.NoError(t, db.Create(&twin).Error)

	layer := models.Layer{Type: "wms", Title: "BRT", URL: "https://example.test/brt", IsBackground: true}
	require.NoError(t, db.Create(&layer).Error)
	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: layer.ID,
	}).Error)

	toolID := findToolID(t, db, "bookmarks")
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
	}).Error)

	bookmark := models.Bookmark{Title: "X", X: 1, Y: 2, Z: 3, Heading: 0, Pitch: 0, Duration: 1}
	require.NoError(t, db.Create(&bookmark).Error)

	contentTypeID := findContentTypeID(t, db, "bookmark")
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
		ContentTypeID: &contentTypeID, ContentID: &bookmark.ID,
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	layers, ok := document["layers"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, layers, 1)
	assert.Equal(t, true, layers[0]["isBackground"])

	twinTools, ok := document["tools"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, twinTools, 1)
	assert.Equal(t, "bookmarks", twinTools[0]["id"])
	assert.Equal(t, true, twinTools[0]["enabled"])

	settings, ok := twinTools[0]["settings"].(map[string]interface{})
	require.True(t, ok)
	bookmarks, ok := settings["bookmarks"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, bookmarks, 1)
	assert.Equal(t, map[string]interface{}{
		"title":       "X",
		"x":           float64(1),
		"y":           float64(2),
		"z":           float64(3),
		"heading":     float64(0),
		"pitch":       float64(0),
		"duration":    float64(1),
		"description": "",
	}, bookmarks[0])
}

func TestAssembleSkipsDanglingBookmark(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "dangling", Title: "Dangling"}
	require.NoError(t, db.Create(&twin).Error)

	toolID := findToolID(t, db, "bookmarks")
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
	}).Error)

	contentTypeID := findContentTypeID(t, db, "bookmark")
	missing := uint64(99999)
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
		ContentTypeID: &contentTypeID, ContentID: &missing,
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	twinTools, ok := document["tools"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, twinTools, 1)

	settings, _ := twinTools[0]["settings"].(map[string]interface{})
	if settings != nil {
		_, present := settings["bookmarks"]
		assert.False(t, present)
	}
}

func TestAssembleSyntheticToolEntry(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "synthetisch", Title: "Synthetisch"}
	require.NoError(t, db.Create(&twin).Error)

	// 书签挂接存在，但 bookmarks 工具未被启用。
	toolID := findToolID(t, db, "bookmarks")
	contentTypeID := findContentTypeID(t, db, "bookmark")
	bookmark := models.Bookmark{Title: "Alleen inhoud", X: 1, Y: 1, Z: 1, Duration: 1}
	require.NoError(t, db.Create(&bookmark).Error)
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
		ContentTypeID: &contentTypeID, ContentID: &bookmark.ID,
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	twinTools, ok := document["tools"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, twinTools, 1)
	assert.Equal(t, "bookmarks", twinTools[0]["id"])

	settings, ok := twinTools[0]["settings"].(map[string]interface{})
	require.True(t, ok)
	bookmarks, ok := settings["bookmarks"].([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, bookmarks, 1)
}

func TestAssembleCesiumOmittedWithoutProviders(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "cesium-leeg", Title: "Cesium"}
	require.NoError(t, db.Create(&twin).Error)

	toolID := findToolID(t, db, "cesium")
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	twinTools, ok := document["tools"].([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, twinTools, 0)
}

func TestAssembleCesiumTerrainProviders(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "cesium-terrein", Title: "Cesium"}
	require.NoError(t, db.Create(&twin).Error)

	toolID := findToolID(t, db, "cesium")
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
	}).Error)

	url := "https://example.test/terrain"
	provider := models.TerrainProvider{Title: "AHN", URL: &url, VertexNormals: true}
	off := models.TerrainProvider{Title: "Uit"}
	require.NoError(t, db.Create(&provider).Error)
	require.NoError(t, db.Create(&off).Error)

	contentTypeID := findContentTypeID(t, db, "terrain_provider")
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
		ContentTypeID: &contentTypeID, ContentID: &provider.ID, SortOrder: 0,
	}).Error)
	require.NoError(t, db.Create(&models.DigitalTwinToolAssociation{
		DigitalTwinID: twin.ID, ToolID: toolID,
		ContentTypeID: &contentTypeID, ContentID: &off.ID, SortOrder: 1,
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	twinTools, ok := document["tools"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, twinTools, 1)
	assert.Equal(t, "cesium", twinTools[0]["id"])

	settings, ok := twinTools[0]["settings"].(map[string]interface{})
	require.True(t, ok)
	providers, ok := settings["terrainProviders"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, providers, 2)

	assert.Equal(t, map[string]interface{}{
		"title":         "AHN",
		"url":           url,
		"vertexNormals": true,
	}, providers[0])
	// "Uit" 表示关闭地形，只导出标题。
	assert.Equal(t, map[string]interface{}{"title": "Uit"}, providers[1])
}

func TestAssembleLayerContentOverride(t *testing.T) {
	db := setupDB(t)

	twin := models.DigitalTwin{Name: "override", Title: "Override"}
	require.NoError(t, db.Create(&twin).Error)

	layer := models.Layer{
		Type:  "wms",
		Title: "Luchtfoto",
		URL:   "https://example.test/lucht",
		Content: datatypes.JSON([]byte(`{
			"transparent": false,
			"opacity": 0.3,
			"wms": {"contentType": "", "styles": "default", "leeg": ""}
		}`)),
	}
	require.NoError(t, db.Create(&layer).Error)

	require.NoError(t, db.Create(&models.DigitalTwinLayerAssociation{
		DigitalTwinID: twin.ID, LayerID: layer.ID,
		Content: datatypes.JSON([]byte(`{"transparent": true, "opacity": 0.8}`)),
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	layers, ok := document["layers"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, layers, 1)

	entry := layers[0]
	assert.Equal(t, true, entry["transparent"])
	assert.Equal(t, 0.8, entry["opacity"])

	settings, ok := entry["settings"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://example.test/lucht", settings["url"])
	assert.Equal(t, "default", settings["styles"])
	// 空的 contentType 属于始终保留的键，空的其它键被剔除。
	assert.Contains(t, settings, "contentType")
	assert.NotContains(t, settings, "leeg")
}

func TestAssembleViewerHoisting(t *testing.T) {
	db := setupDB(t)

	subtitle := "Ondergrond"
	twin := models.DigitalTwin{Name: "viewer", Title: "Viewer", Subtitle: &subtitle, Private: true}
	require.NoError(t, db.Create(&twin).Error)

	require.NoError(t, db.Create(&models.Viewer{
		DigitalTwinID: twin.ID,
		Content:       datatypes.JSON([]byte(`{"logo": "https://example.test/logo.png", "startPosition": {"x": 1}}`)),
	}).Error)

	document, err := export.NewService(db).Assemble(context.Background(), twin.ID)
	require.NoError(t, err)

	viewer, ok := document["viewer"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Viewer", viewer["title"])
	assert.Equal(t, "Ondergrond", viewer["subtitle"])
	assert.Equal(t, true, viewer["isPrivate"])
	assert.Equal(t, "https://example.test/logo.png", viewer["logo"])
	assert.Equal(t, map[string]interface{}{"x": float64(1)}, viewer["startPosition"])
}
