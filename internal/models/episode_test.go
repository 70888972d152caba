package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilipod/internal/bili"
)

func testInfo() bili.EpisodeInfo {
	return bili.EpisodeInfo{
		Bvid:        "BV1xx411c7mD",
		Title:       "First episode",
		Description: "about things",
		Duration:    "12:34",
		Image:       "https://example.com/cover.jpg",
		Pubdate:     1700000000,
	}
}

func TestNewEpisodeDerivation(t *testing.T) {
	ep, err := NewEpisode(testInfo(), "audio", "medium", "/data", "http://localhost:8080", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://www.bilibili.com/video/BV1xx411c7mD", ep.Link)
	assert.Equal(t, "audio/mpeg", ep.MimeType)
	assert.Equal(t, "720P", ep.VideoQuality)
	assert.Equal(t, "132K", ep.AudioQuality)
	assert.Equal(t, filepath.Join("/data", "media", "BV1xx411c7mD_132K.mp3"), ep.Location)
	assert.Equal(t, "http://localhost:8080/media/BV1xx411c7mD_132K.mp3", ep.URL)
	assert.Equal(t, StatusPending, ep.Status)
	assert.True(t, ep.OnTrack)
}

func TestNewEpisodeVideoNaming(t *testing.T) {
	ep, err := NewEpisode(testInfo(), "video", "high", "/data", "http://localhost:8080", nil)
	require.NoError(t, err)

	assert.Equal(t, "video/mp4", ep.MimeType)
	assert.Equal(t, filepath.Join("/data", "media", "BV1xx411c7mD_4K.mp4"), ep.Location)
	assert.Equal(t, "http://localhost:8080/media/BV1xx411c7mD_4K.mp4", ep.URL)
}

func TestNewEpisodeDerivationIsPure(t *testing.T) {
	a, err := NewEpisode(testInfo(), "audio", "low", "/data", "http://host", nil)
	require.NoError(t, err)
	b, err := NewEpisode(testInfo(), "audio", "low", "/data", "http://host", nil)
	require.NoError(t, err)

	assert.Equal(t, a.Location, b.Location)
	assert.Equal(t, a.URL, b.URL)
}

func TestNewEpisodeRejectsUnknownInputs(t *testing.T) {
	_, err := NewEpisode(testInfo(), "audio", "ultra", "/data", "http://host", nil)
	assert.Error(t, err)

	_, err = NewEpisode(testInfo(), "text", "low", "/data", "http://host", nil)
	assert.Error(t, err)
}

func TestEpisodeIdentity(t *testing.T) {
	a, err := NewEpisode(testInfo(), "audio", "low", "/data", "http://host", nil)
	require.NoError(t, err)

	other := testInfo()
	other.Title = "Renamed upstream"
	other.Pubdate = 1800000000
	b, err := NewEpisode(other, "audio", "low", "/other", "http://elsewhere", nil)
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())

	c, err := NewEpisode(testInfo(), "audio", "high", "/data", "http://host", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestEpisodeExistsAndSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "media"), 0o755))

	ep, err := NewEpisode(testInfo(), "audio", "low", dir, "http://host", nil)
	require.NoError(t, err)
	assert.False(t, ep.Exists())

	require.NoError(t, os.WriteFile(ep.Location, []byte("audio bytes"), 0o644))
	assert.True(t, ep.Exists())

	require.NoError(t, ep.SetSize())
	assert.Equal(t, int64(len("audio bytes")), ep.Size)

	require.NoError(t, ep.Clean())
	assert.False(t, ep.Exists())
	assert.Error(t, ep.Clean())
}

func TestExpandDescription(t *testing.T) {
	ep, err := NewEpisode(testInfo(), "audio", "low", "/data", "http://host", nil)
	require.NoError(t, err)

	ep.ExpandDescription("dynamic text")
	assert.Equal(t, "about things\ndynamic text", ep.Description)

	ep.ExpandDescription("")
	assert.Equal(t, "about things\ndynamic text", ep.Description)
}
