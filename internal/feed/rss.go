// Package feed writes the podcast RSS documents and the aggregate OPML
// listing into the data directory.
package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eduncan911/podcast"
	"go.uber.org/zap"

	"bilipod/internal/models"
)

// EpisodeResolver resolves an episode identity to its persisted record.
// Satisfied by db.Store.
type EpisodeResolver interface {
	Episode(key models.EpisodeKey) (*models.Episode, error)
}

// Generate writes one pod's feed document. Episodes whose persisted record
// is missing or whose media file is not on disk are omitted. The document is
// named after the feed id with the reserved "feed." prefix stripped.
func Generate(pod *models.Pod, store EpisodeResolver, log *zap.Logger) error {
	now := time.Now()
	description := pod.Description
	if description == "" {
		description = pod.Title
	}

	p := podcast.New(sanitize(pod.DisplayTitle()), pod.Link, sanitize(description), nil, &now)
	if pod.CoverArt != "" {
		p.AddImage(pod.CoverArt)
	}
	if pod.Author != "" {
		p.AddAuthor(sanitize(pod.Author), "")
	}
	if pod.Category != "" {
		p.AddCategory(pod.Category, pod.Subcategories)
	}
	if pod.Lang != "" {
		p.Language = pod.Lang
	}
	p.IExplicit = pod.Explicit

	expanded, err := pod.Expand()
	if err != nil {
		return fmt.Errorf("expand %s: %w", pod.FeedID, err)
	}

	episodes := make([]*models.Episode, 0, len(expanded))
	for _, entry := range expanded {
		ep, err := store.Episode(entry.Key())
		if err != nil {
			log.Debug("episode not in catalog, omitting",
				zap.String("bvid", entry.Bvid), zap.Error(err))
			continue
		}
		if !ep.Exists() {
			continue
		}
		episodes = append(episodes, ep)
	}

	// Newest first, trim to keep_last, then honor the configured sort.
	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Pubdate > episodes[j].Pubdate })
	if pod.KeepLast > 0 && len(episodes) > pod.KeepLast {
		episodes = episodes[:pod.KeepLast]
	}
	if pod.PlaylistSort == "asc" {
		for i, j := 0, len(episodes)-1; i < j; i, j = i+1, j-1 {
			episodes[i], episodes[j] = episodes[j], episodes[i]
		}
	}

	for _, ep := range episodes {
		pubdate := time.Unix(ep.Pubdate, 0)
		item := podcast.Item{
			Title:       sanitize(ep.Title),
			Description: sanitize(ep.Description),
			Link:        ep.Link,
			GUID:        ep.Bvid,
			PubDate:     &pubdate,
			IExplicit:   ep.Explicit,
		}
		if item.Description == "" {
			item.Description = item.Title
		}
		if ep.Image != "" {
			item.IImage = &podcast.IImage{HREF: ep.Image}
		}
		if seconds := durationSeconds(ep.Duration); seconds > 0 {
			item.AddDuration(seconds)
		}

		enclosureType := podcast.MP3
		if ep.MimeType == "video/mp4" {
			enclosureType = podcast.MP4
		}
		item.AddEnclosure(ep.URL, enclosureType, ep.Size)

		if _, err := p.AddItem(item); err != nil {
			return fmt.Errorf("add item %s: %w", ep.Bvid, err)
		}
	}

	path := filepath.Join(pod.DataDir, pod.FeedName()+".xml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := p.Encode(f); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	log.Info("generated feed", zap.String("feed", pod.FeedName()))
	return nil
}

// sanitize strips control characters that are invalid in XML.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' || r >= 0x20 {
			return r
		}
		return -1
	}, s)
}

// durationSeconds parses "MM:SS" or "HH:MM:SS" clips into seconds.
func durationSeconds(s string) int64 {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
