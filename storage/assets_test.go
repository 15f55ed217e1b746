package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveWithoutClientIsNoop(t *testing.T) {
	var s *AssetStorage
	require.NoError(t, s.Remove(context.Background(), "https://cdn.example.test/assets/viewers/1/logo.png"))
}

func TestObjectNameFromURL(t *testing.T) {
	s := &AssetStorage{bucket: "assets", publicURL: "https://cdn.example.test"}

	name, ok := s.objectNameFromURL("https://cdn.example.test/assets/viewers/7/logo.png")
	require.True(t, ok)
	assert.Equal(t, "viewers/7/logo.png", name)

	name, ok = s.objectNameFromURL("/assets/viewers/7/logo.png")
	require.True(t, ok)
	assert.Equal(t, "viewers/7/logo.png", name)

	_, ok = s.objectNameFromURL("https://elders.example.test/other.png")
	assert.False(t, ok)

	_, ok = s.objectNameFromURL("")
	assert.False(t, ok)
}

func TestPublicURLRoundTrip(t *testing.T) {
	s := &AssetStorage{bucket: "assets", publicURL: "https://cdn.example.test"}

	public := s.buildPublicURL("viewers/7/logo.png")
	assert.Equal(t, "https://cdn.example.test/assets/viewers/7/logo.png", public)

	name, ok := s.objectNameFromURL(public)
	require.True(t, ok)
	assert.Equal(t, "viewers/7/logo.png", name)
}
