package models

import (
	"fmt"
	"os"
	"path/filepath"

	"bilipod/internal/bili"
)

// Episode lifecycle states.
const (
	StatusPending    = "pending"
	StatusDownloaded = "downloaded"
	StatusDeleted    = "deleted"
)

// The abstract quality level on a feed maps to concrete video and audio
// tiers at episode construction time.
var (
	videoTiers = map[string]string{"low": "360P", "medium": "720P", "high": "4K"}
	audioTiers = map[string]string{"low": "64K", "medium": "132K", "high": "192K"}
)

// EpisodeKey is the identity of an episode and its store lookup key.
// Two episodes are the same iff their keys are equal.
type EpisodeKey struct {
	Bvid    string
	Quality string
	Format  string
}

// Episode is one downloadable unit. Link, MimeType, the quality tiers,
// Location and URL are derived in NewEpisode and persisted as-is; loading a
// row back does not re-run the derivation.
type Episode struct {
	Bvid         string     `db:"bvid"`
	Quality      string     `db:"quality"`
	Format       string     `db:"format"`
	Title        string     `db:"title"`
	Description  string     `db:"description"`
	Image        string     `db:"image"`
	Duration     string     `db:"duration"`
	Pubdate      int64      `db:"pubdate"`
	Explicit     string     `db:"explicit"`
	Link         string     `db:"link"`
	MimeType     string     `db:"mime_type"`
	VideoQuality string     `db:"video_quality"`
	AudioQuality string     `db:"audio_quality"`
	Location     string     `db:"location"`
	URL          string     `db:"url"`
	Size         int64      `db:"size"`
	Status       string     `db:"status"`
	OnTrack      bool       `db:"on_track"`
	Endorse      StringList `db:"endorse"`
}

// NewEpisode builds an episode from a snapshot entry plus the owning feed's
// settings, running the field derivation. Location and URL are pure functions
// of (bvid, format, quality, dataDir|baseURL).
func NewEpisode(info bili.EpisodeInfo, format, quality, dataDir, baseURL string, endorse []string) (*Episode, error) {
	videoTier, ok := videoTiers[quality]
	if !ok {
		return nil, fmt.Errorf("unknown quality %q", quality)
	}
	audioTier := audioTiers[quality]

	var mimeType, ext, tier string
	switch format {
	case "audio":
		mimeType, ext, tier = "audio/mpeg", "mp3", audioTier
	case "video":
		mimeType, ext, tier = "video/mp4", "mp4", videoTier
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	name := fmt.Sprintf("%s_%s.%s", info.Bvid, tier, ext)
	return &Episode{
		Bvid:         info.Bvid,
		Quality:      quality,
		Format:       format,
		Title:        info.Title,
		Description:  info.Description,
		Image:        info.Image,
		Duration:     info.Duration,
		Pubdate:      info.Pubdate,
		Explicit:     "no",
		Link:         "https://www.bilibili.com/video/" + info.Bvid,
		MimeType:     mimeType,
		VideoQuality: videoTier,
		AudioQuality: audioTier,
		Location:     filepath.Join(dataDir, "media", name),
		URL:          baseURL + "/media/" + name,
		Status:       StatusPending,
		OnTrack:      true,
		Endorse:      endorse,
	}, nil
}

func (e *Episode) Key() EpisodeKey {
	return EpisodeKey{Bvid: e.Bvid, Quality: e.Quality, Format: e.Format}
}

// Exists reports whether the media file is already on disk.
func (e *Episode) Exists() bool {
	if e.Location == "" {
		return false
	}
	_, err := os.Stat(e.Location)
	return err == nil
}

// SetSize records the on-disk file size. Only meaningful after a download.
func (e *Episode) SetSize() error {
	info, err := os.Stat(e.Location)
	if err != nil {
		return err
	}
	e.Size = info.Size()
	return nil
}

// Clean removes the media file from disk.
func (e *Episode) Clean() error {
	if e.Location == "" {
		return os.ErrNotExist
	}
	return os.Remove(e.Location)
}

// ExpandDescription appends fetched remote metadata text to the description.
func (e *Episode) ExpandDescription(text string) {
	if text == "" {
		return
	}
	e.Description = e.Description + "\n" + text
}
