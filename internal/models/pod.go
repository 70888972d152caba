package models

import (
	"strings"

	"bilipod/internal/bili"
)

// Pod is one subscription producing one feed document. Exactly one of UID
// and SID is set: UID selects a user feed, SID a collection feed.
type Pod struct {
	FeedID        string      `db:"feed_id"`
	UID           int64       `db:"uid"`
	SID           int64       `db:"sid"`
	Title         string      `db:"title"`
	Description   string      `db:"description"`
	CoverArt      string      `db:"cover_art"`
	Author        string      `db:"author"`
	Link          string      `db:"link"`
	Category      string      `db:"category"`
	Subcategories StringList  `db:"subcategories"`
	Explicit      string      `db:"explicit"`
	Lang          string      `db:"lang"`
	PageSize      int         `db:"page_size"`
	UpdatePeriod  string      `db:"update_period"`
	Format        string      `db:"format"`
	PlaylistSort  string      `db:"playlist_sort"`
	Quality       string      `db:"quality"`
	OPML          bool        `db:"opml"`
	KeepLast      int         `db:"keep_last"`
	PrivateFeed   bool        `db:"private_feed"`
	Endorse       StringList  `db:"endorse"`
	Keyword       string      `db:"keyword"`
	Episodes      EpisodeList `db:"episodes"`
	XMLURL        string      `db:"xml_url"`
	DataDir       string      `db:"data_dir"`
	BaseURL       string      `db:"base_url"`
	UpdateAt      int64       `db:"update_at"`
}

// NewPod finalizes a pod built from configuration, deriving XMLURL. Rows
// loaded back from the store skip this and scan the stored value.
func NewPod(p Pod) *Pod {
	p.XMLURL = p.BaseURL + "/" + p.FeedName() + ".xml"
	return &p
}

// FeedName is the feed id with the reserved "feed." prefix stripped; it names
// the generated document on disk and in URLs.
func (p *Pod) FeedName() string {
	return strings.Replace(p.FeedID, "feed.", "", 1)
}

// ApplyInfo merges freshly fetched remote metadata into the pod. Values set
// in configuration win over remote ones; the episode snapshot is always
// replaced.
func (p *Pod) ApplyInfo(info *bili.PodInfo) {
	if p.Title == "" {
		p.Title = info.Title
	}
	if p.Description == "" {
		p.Description = info.Description
	}
	if p.CoverArt == "" {
		p.CoverArt = info.CoverArt
	}
	if p.Author == "" {
		p.Author = info.Author
	}
	if p.Link == "" {
		p.Link = info.Link
	}
	p.Episodes = info.Episodes
}

// DisplayTitle is the feed title, suffixed with the keyword filter when one
// is configured.
func (p *Pod) DisplayTitle() string {
	if p.Keyword != "" {
		return p.Title + "[" + p.Keyword + "]"
	}
	return p.Title
}

// Expand turns the episode snapshot into full episode records, inheriting
// format, quality, data dir, base URL and endorse actions from the pod.
func (p *Pod) Expand() ([]*Episode, error) {
	episodes := make([]*Episode, 0, len(p.Episodes))
	for _, info := range p.Episodes {
		ep, err := NewEpisode(info, p.Format, p.Quality, p.DataDir, p.BaseURL, p.Endorse)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}
